// Package static serves canned pages in place of a real text generation backend.
package static

import (
	"context"
	"fmt"
	"html"
	"iter"
	"time"

	"github.com/JakeFAU/sitegen/internal/site"
)

const defaultChunkSize = 64

// Config controls how the canned page is streamed.
type Config struct {
	ChunkSize int
	// Delay is slept between chunks to mimic a live stream.
	Delay time.Duration
}

// Provider hands out static clients.
type Provider struct {
	cfg Config
}

// NewProvider returns a Provider with defaults applied.
func NewProvider(cfg Config) *Provider {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = defaultChunkSize
	}
	return &Provider{cfg: cfg}
}

// Acquire returns a new client. It fails when ctx is already done.
func (p *Provider) Acquire(ctx context.Context) (site.TextStreamer, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("acquire static client: %w", err)
	}
	return &Client{cfg: p.cfg}, nil
}

// Client streams a deterministic page built from the prompt.
type Client struct {
	cfg Config
}

// Close is a no-op.
func (c *Client) Close() error { return nil }

// Stream yields the canned page in fixed-size chunks.
func (c *Client) Stream(ctx context.Context, _ string, prompt string) iter.Seq2[string, error] {
	page := Page(prompt)
	return func(yield func(string, error) bool) {
		for start := 0; start < len(page); start += c.cfg.ChunkSize {
			end := min(start+c.cfg.ChunkSize, len(page))
			if c.cfg.Delay > 0 {
				select {
				case <-time.After(c.cfg.Delay):
				case <-ctx.Done():
					yield("", fmt.Errorf("static stream: %w", ctx.Err()))
					return
				}
			}
			if !yield(page[start:end], nil) {
				return
			}
		}
	}
}

// Page renders the canned document for prompt.
func Page(prompt string) string {
	escaped := html.EscapeString(prompt)
	return "<!DOCTYPE html>\n<html lang=\"en\">\n<head>\n<meta charset=\"utf-8\">\n" +
		"<title>" + escaped + "</title>\n</head>\n<body>\n" +
		"<header><h1>" + escaped + "</h1></header>\n" +
		"<main>\n<img data-image-query=\"" + escaped + "\" alt=\"" + escaped + "\">\n" +
		"<p>This page was produced without a language model.</p>\n</main>\n" +
		"</body>\n</html>\n"
}
