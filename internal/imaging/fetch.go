package imaging

import (
	"context"
	"fmt"
	"image"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

const maxLogoBytes = 5 << 20

// LogoFetcher downloads remote logos for the branding bar.
type LogoFetcher struct {
	client *http.Client
	log    zerolog.Logger
}

func NewLogoFetcher(timeout time.Duration, log zerolog.Logger) *LogoFetcher {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &LogoFetcher{client: &http.Client{Timeout: timeout}, log: log}
}

// Fetch returns nil when the logo cannot be loaded; the bar is drawn without it.
func (f *LogoFetcher) Fetch(ctx context.Context, url string) image.Image {
	if url == "" {
		return nil
	}
	img, err := f.fetch(ctx, url)
	if err != nil {
		f.log.Warn().Err(err).Str("url", url).Msg("logo fetch failed, branding without logo")
		return nil
	}
	return img
}

func (f *LogoFetcher) fetch(ctx context.Context, url string) (image.Image, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get logo: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("get logo: status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxLogoBytes))
	if err != nil {
		return nil, fmt.Errorf("read logo: %w", err)
	}
	img, _, err := Decode(data)
	return img, err
}
