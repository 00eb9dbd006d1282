// Package remote renders screenshots through an HTTP rendering service.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/JakeFAU/sitegen/internal/site"
)

const maxErrorBody = 4 << 10

// Config points the renderer at a rendering service.
type Config struct {
	Endpoint string
	Timeout  time.Duration
	Width    int
	Height   int
	APIKey   string
}

// Renderer posts HTML to a rendering service and returns the PNG it replies with.
type Renderer struct {
	cfg    Config
	client *http.Client
}

// New builds a Renderer. A nil client gets a default one with cfg.Timeout.
func New(cfg Config, client *http.Client) (*Renderer, error) {
	if strings.TrimSpace(cfg.Endpoint) == "" {
		return nil, fmt.Errorf("renderer endpoint is required")
	}
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	return &Renderer{cfg: cfg, client: client}, nil
}

type renderRequest struct {
	HTML   string `json:"html"`
	Width  int    `json:"width,omitempty"`
	Height int    `json:"height,omitempty"`
	Format string `json:"format"`
}

// Render returns PNG bytes. Failures reported by the service with a 5xx
// status wrap site.ErrRenderServer.
func (r *Renderer) Render(ctx context.Context, html string) ([]byte, error) {
	payload, err := json.Marshal(renderRequest{
		HTML:   html,
		Width:  r.cfg.Width,
		Height: r.cfg.Height,
		Format: "png",
	})
	if err != nil {
		return nil, fmt.Errorf("marshal render request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.cfg.Endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build render request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", site.ContentTypePNG)
	if r.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+r.cfg.APIKey)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("render request: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck // body fully consumed below

	if resp.StatusCode >= http.StatusInternalServerError {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, fmt.Errorf("%w: status %d: %s", site.ErrRenderServer, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, fmt.Errorf("render rejected: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	png, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read render response: %w", err)
	}
	if len(png) == 0 {
		return nil, fmt.Errorf("%w: empty image", site.ErrRenderServer)
	}
	return png, nil
}
