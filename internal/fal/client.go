package fal

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/sorapixel/studio/internal/config"
)

var ErrDisabled = errors.New("hd upscale is not configured")

const (
	upscaleModel   = "fal-ai/flux/dev/image-to-image"
	upscalePrompt  = "high quality, detailed, sharp, 4k resolution, professional photography"
	maxResultBytes = 40 << 20
)

type Client struct {
	apiKey       string
	baseURL      string
	httpClient   *http.Client
	pollInterval time.Duration
	maxPolls     int
	log          zerolog.Logger
}

type UpscaleOptions struct {
	Width  int
	Height int
}

type Image struct {
	Data     []byte
	MIMEType string
	URL      string
}

func NewClient(cfg config.Config, log zerolog.Logger) *Client {
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &Client{
		apiKey:       cfg.FalKey,
		baseURL:      strings.TrimRight(cfg.FalBaseURL, "/"),
		httpClient:   &http.Client{Timeout: timeout},
		pollInterval: 2 * time.Second,
		maxPolls:     60,
		log:          log.With().Str("component", "fal").Logger(),
	}
}

func (c *Client) Enabled() bool {
	return c != nil && c.apiKey != ""
}

type queueResponse struct {
	RequestID   string `json:"request_id"`
	Status      string `json:"status"`
	StatusURL   string `json:"status_url"`
	ResponseURL string `json:"response_url"`
	Images      []struct {
		URL         string `json:"url"`
		ContentType string `json:"content_type"`
	} `json:"images"`
	Detail json.RawMessage `json:"detail"`
}

// Upscale runs an image-to-image pass at the requested size and returns the
// downloaded result.
func (c *Client) Upscale(ctx context.Context, data []byte, mimeType string, opts UpscaleOptions) (*Image, error) {
	if !c.Enabled() {
		return nil, ErrDisabled
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("image is empty")
	}
	if mimeType == "" {
		mimeType = "image/png"
	}
	if opts.Width <= 0 {
		opts.Width = 2048
	}
	if opts.Height <= 0 {
		opts.Height = 2048
	}

	payload := map[string]any{
		"prompt":                upscalePrompt,
		"image_url":             "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(data),
		"strength":              0.35,
		"image_size":            map[string]int{"width": opts.Width, "height": opts.Height},
		"num_inference_steps":   28,
		"guidance_scale":        3.5,
		"enable_safety_checker": false,
	}

	c.log.Info().Int("width", opts.Width).Int("height", opts.Height).Msg("submitting hd upscale")
	submitted, err := c.submit(ctx, payload)
	if err != nil {
		return nil, fmt.Errorf("submit upscale: %w", err)
	}

	result := submitted
	if len(result.Images) == 0 {
		result, err = c.wait(ctx, submitted)
		if err != nil {
			return nil, err
		}
	}
	if len(result.Images) == 0 || result.Images[0].URL == "" {
		return nil, fmt.Errorf("fal returned no images")
	}
	return c.download(ctx, result.Images[0].URL, result.Images[0].ContentType)
}

func (c *Client) submit(ctx context.Context, payload map[string]any) (*queueResponse, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/"+upscaleModel, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	var out queueResponse
	if err := c.doJSON(req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) wait(ctx context.Context, submitted *queueResponse) (*queueResponse, error) {
	if submitted.RequestID == "" && submitted.StatusURL == "" {
		return nil, fmt.Errorf("fal response carried neither images nor a request id")
	}
	statusURL := submitted.StatusURL
	if statusURL == "" {
		statusURL = fmt.Sprintf("%s/%s/requests/%s/status", c.baseURL, upscaleModel, submitted.RequestID)
	}
	responseURL := submitted.ResponseURL
	if responseURL == "" {
		responseURL = fmt.Sprintf("%s/%s/requests/%s", c.baseURL, upscaleModel, submitted.RequestID)
	}

	for attempt := 0; attempt < c.maxPolls; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, statusURL, nil)
		if err != nil {
			return nil, fmt.Errorf("new request: %w", err)
		}
		var status queueResponse
		if err := c.doJSON(req, &status); err != nil {
			return nil, fmt.Errorf("poll upscale status: %w", err)
		}

		switch strings.ToUpper(status.Status) {
		case "COMPLETED":
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, responseURL, nil)
			if err != nil {
				return nil, fmt.Errorf("new request: %w", err)
			}
			var result queueResponse
			if err := c.doJSON(req, &result); err != nil {
				return nil, fmt.Errorf("fetch upscale result: %w", err)
			}
			c.log.Info().Str("request_id", submitted.RequestID).Int("polls", attempt+1).Msg("hd upscale completed")
			return &result, nil
		case "IN_QUEUE", "IN_PROGRESS", "":
			if attempt%10 == 0 {
				c.log.Debug().Str("request_id", submitted.RequestID).Int("attempt", attempt+1).Msg("hd upscale pending")
			}
		default:
			return nil, fmt.Errorf("upscale failed: status=%s detail=%s", status.Status, truncateBody(status.Detail))
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(c.pollInterval):
		}
	}
	return nil, fmt.Errorf("upscale timeout after %d polls", c.maxPolls)
}

func (c *Client) download(ctx context.Context, url, contentType string) (*Image, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download upscale: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("download upscale: status=%d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResultBytes))
	if err != nil {
		return nil, fmt.Errorf("read upscale body: %w", err)
	}
	if contentType == "" {
		contentType = resp.Header.Get("Content-Type")
	}
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}
	return &Image{Data: data, MIMEType: contentType, URL: url}, nil
}

func (c *Client) doJSON(req *http.Request, out any) error {
	req.Header.Set("Authorization", "Key "+c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response body: %w", err)
	}
	if resp.StatusCode >= 300 {
		c.log.Error().Int("status", resp.StatusCode).Str("path", req.URL.Path).Str("body", truncateBody(raw)).Msg("fal request failed")
		return fmt.Errorf("fal error: status=%d body=%s", resp.StatusCode, truncateBody(raw))
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode response: %w (body=%s)", err, truncateBody(raw))
	}
	return nil
}

func truncateBody(body []byte) string {
	const limit = 512
	s := strings.TrimSpace(string(body))
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "…"
}
