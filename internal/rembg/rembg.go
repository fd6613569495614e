package rembg

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// Client calls an external background-segmentation service. Removal is
// best-effort: on any failure the original image comes back unchanged,
// which loses the cutout but never the asset.
type Client struct {
	url  string
	http *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// New creates a client for the segmentation service at url.
func New(url string, opts ...Option) *Client {
	c := &Client{
		url:  url,
		http: &http.Client{Timeout: 60 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Remove strips the background from a PNG image. Failures are logged and
// swallowed; the original bytes are returned unchanged.
func (c *Client) Remove(ctx context.Context, image []byte) []byte {
	if c == nil || c.url == "" {
		return image
	}
	out, err := c.remove(ctx, image)
	if err != nil {
		slog.Warn("rembg: removal failed, keeping original", "err", err)
		return image
	}
	return out
}

func (c *Client) remove(ctx context.Context, image []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(image))
	if err != nil {
		return nil, fmt.Errorf("rembg: create request: %w", err)
	}
	req.Header.Set("Content-Type", "image/png")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("rembg: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("rembg: service returned %d: %s", resp.StatusCode, body)
	}
	out, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("rembg: read response: %w", err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("rembg: empty response")
	}
	return out, nil
}
