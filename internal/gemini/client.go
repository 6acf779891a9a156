package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/genai"

	"github.com/sorapixel/studio/internal/config"
)

var ErrNoContent = errors.New("no content returned, possibly safety-filtered")

// NoImageError means the model answered without an image part.
type NoImageError struct {
	Text string
}

func (e *NoImageError) Error() string {
	if e.Text == "" {
		return "no image returned"
	}
	return "no image returned: " + e.Text
}

// ContentGenerator is the subset of the genai Models service the adapter uses.
type ContentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

type InputImage struct {
	Data     []byte
	MIMEType string
}

type Usage struct {
	InputTokens  int
	OutputTokens int
	TotalTokens  int
}

func (u Usage) Add(o Usage) Usage {
	return Usage{
		InputTokens:  u.InputTokens + o.InputTokens,
		OutputTokens: u.OutputTokens + o.OutputTokens,
		TotalTokens:  u.TotalTokens + o.TotalTokens,
	}
}

type Image struct {
	Data     []byte
	MIMEType string
	Usage    Usage
}

type Text struct {
	Text  string
	Usage Usage
}

type Options struct {
	ImageModel string
	TextModel  string
	Retry      RetryPolicy
}

type Client struct {
	models ContentGenerator
	opts   Options
	log    zerolog.Logger
}

// NewClient builds the process-wide Gemini client.
func NewClient(ctx context.Context, cfg config.Config, log zerolog.Logger) (*Client, error) {
	gc, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.GeminiAPIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return New(gc.Models, Options{
		ImageModel: cfg.GeminiImageModel,
		TextModel:  cfg.GeminiTextModel,
		Retry: RetryPolicy{
			MaxRetries: cfg.GeminiMaxRetries,
			BaseDelay:  cfg.GeminiRetryBaseDelay,
		},
	}, log), nil
}

func New(models ContentGenerator, opts Options, log zerolog.Logger) *Client {
	if opts.ImageModel == "" {
		opts.ImageModel = "gemini-2.5-flash-image"
	}
	if opts.TextModel == "" {
		opts.TextModel = "gemini-2.5-flash"
	}
	return &Client{
		models: models,
		opts:   opts,
		log:    log.With().Str("component", "gemini").Logger(),
	}
}

func (c *Client) ImageModel() string { return c.opts.ImageModel }
func (c *Client) TextModel() string  { return c.opts.TextModel }

// GenerateImage sends the prompt and input images and returns the first image
// part of the response. aspectRatio ("1:1", "4:5", ...) is optional.
func (c *Client) GenerateImage(ctx context.Context, prompt string, images []InputImage, aspectRatio string) (*Image, error) {
	if len(images) == 0 {
		return nil, fmt.Errorf("at least one input image is required")
	}
	contents, err := buildContents(prompt, images)
	if err != nil {
		return nil, err
	}
	cfg := &genai.GenerateContentConfig{
		ResponseModalities: []string{"IMAGE", "TEXT"},
	}
	if aspectRatio != "" {
		cfg.ImageConfig = &genai.ImageConfig{AspectRatio: aspectRatio}
	}

	resp, err := c.call(ctx, c.opts.ImageModel, contents, cfg)
	if err != nil {
		return nil, err
	}

	img, err := extractImage(resp)
	if err != nil {
		c.log.Warn().Err(err).Msg("generation returned no image")
		return nil, err
	}
	c.log.Info().Int("bytes", len(img.Data)).Str("mime", img.MIMEType).
		Int("input_tokens", img.Usage.InputTokens).Int("output_tokens", img.Usage.OutputTokens).
		Msg("image generated")
	return img, nil
}

// GenerateText runs a text completion, optionally grounded on images.
func (c *Client) GenerateText(ctx context.Context, prompt string, images []InputImage) (*Text, error) {
	contents, err := buildContents(prompt, images)
	if err != nil {
		return nil, err
	}
	resp, err := c.call(ctx, c.opts.TextModel, contents, nil)
	if err != nil {
		return nil, err
	}
	parts := responseParts(resp)
	if len(parts) == 0 {
		return nil, ErrNoContent
	}
	var sb strings.Builder
	for _, p := range parts {
		if p.Text != "" && !p.Thought {
			sb.WriteString(p.Text)
		}
	}
	return &Text{Text: sb.String(), Usage: usageOf(resp)}, nil
}

func (c *Client) call(ctx context.Context, model string, contents []*genai.Content, cfg *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	var resp *genai.GenerateContentResponse
	start := time.Now()
	err := c.opts.Retry.Do(ctx, c.log, model, func(ctx context.Context) error {
		r, err := c.models.GenerateContent(ctx, model, contents, cfg)
		if err != nil {
			return err
		}
		resp = r
		return nil
	})
	if err != nil {
		c.log.Error().Err(err).Str("model", model).Dur("elapsed", time.Since(start)).Msg("gemini call failed")
		return nil, fmt.Errorf("gemini generate content: %w", err)
	}
	return resp, nil
}

func buildContents(prompt string, images []InputImage) ([]*genai.Content, error) {
	if strings.TrimSpace(prompt) == "" {
		return nil, fmt.Errorf("prompt cannot be empty")
	}
	parts := []*genai.Part{genai.NewPartFromText(prompt)}
	for i, img := range images {
		if len(img.Data) == 0 {
			return nil, fmt.Errorf("input image %d is empty", i)
		}
		mime := img.MIMEType
		if mime == "" {
			mime = "image/png"
		}
		parts = append(parts, genai.NewPartFromBytes(img.Data, mime))
	}
	return []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}, nil
}

func responseParts(resp *genai.GenerateContentResponse) []*genai.Part {
	if resp == nil {
		return nil
	}
	var parts []*genai.Part
	for _, cand := range resp.Candidates {
		if cand == nil || cand.Content == nil {
			continue
		}
		for _, p := range cand.Content.Parts {
			if p != nil {
				parts = append(parts, p)
			}
		}
	}
	return parts
}

func extractImage(resp *genai.GenerateContentResponse) (*Image, error) {
	parts := responseParts(resp)
	if len(parts) == 0 {
		if reason := finishReason(resp); reason != "" {
			return nil, fmt.Errorf("%w (finish reason %s)", ErrNoContent, reason)
		}
		return nil, ErrNoContent
	}

	var texts []string
	for _, p := range parts {
		if p.InlineData != nil && len(p.InlineData.Data) > 0 {
			mime := p.InlineData.MIMEType
			if mime == "" {
				mime = "image/png"
			}
			return &Image{Data: p.InlineData.Data, MIMEType: mime, Usage: usageOf(resp)}, nil
		}
		if t := strings.TrimSpace(p.Text); t != "" && !p.Thought {
			texts = append(texts, t)
		}
	}
	return nil, &NoImageError{Text: strings.Join(texts, " ")}
}

func finishReason(resp *genai.GenerateContentResponse) string {
	if resp == nil {
		return ""
	}
	for _, cand := range resp.Candidates {
		if cand != nil && cand.FinishReason != "" {
			return string(cand.FinishReason)
		}
	}
	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
		return string(resp.PromptFeedback.BlockReason)
	}
	return ""
}

func usageOf(resp *genai.GenerateContentResponse) Usage {
	if resp == nil || resp.UsageMetadata == nil {
		return Usage{}
	}
	um := resp.UsageMetadata
	u := Usage{
		InputTokens:  int(um.PromptTokenCount),
		OutputTokens: int(um.CandidatesTokenCount),
		TotalTokens:  int(um.TotalTokenCount),
	}
	if u.TotalTokens == 0 {
		u.TotalTokens = u.InputTokens + u.OutputTokens
	}
	return u
}
