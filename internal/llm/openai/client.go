// Package openai streams chat completions from OpenAI-compatible APIs such as DeepSeek.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"net"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/sitegen/internal/site"
)

const (
	defaultBaseURL = "https://api.deepseek.com"
	defaultModel   = "deepseek-chat"
	doneSentinel   = "[DONE]"
)

// ErrClientClosed is returned when a released client is used again.
var ErrClientClosed = errors.New("text client closed")

// errStop ends SSE processing after the consumer stopped iterating.
var errStop = errors.New("stop")

// Config configures the OpenAI-compatible backend.
type Config struct {
	BaseURL        string
	APIKey         string
	Model          string
	MaxTokens      int
	Temperature    float64
	MaxConnections int
	// Timeout bounds connection setup and the wait for response headers. The
	// body stream itself is bounded by the request context.
	Timeout time.Duration
}

// HTTPError is returned for non-2xx responses.
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("chat completions: status %d: %s", e.StatusCode, e.Body)
}

// Provider owns the pooled HTTP transport shared by all acquired clients.
type Provider struct {
	cfg        Config
	httpClient *http.Client
	logger     *zap.Logger
}

// NewProvider validates cfg and builds the shared transport.
func NewProvider(cfg Config, httpClient *http.Client, logger *zap.Logger) (*Provider, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("api key is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if httpClient == nil {
		httpClient = &http.Client{Transport: newTransport(cfg)}
	}
	return &Provider{cfg: cfg, httpClient: httpClient, logger: logger}, nil
}

func newTransport(cfg Config) *http.Transport {
	dialer := &net.Dialer{Timeout: cfg.Timeout, KeepAlive: 30 * time.Second}
	return &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		MaxConnsPerHost:       cfg.MaxConnections,
		MaxIdleConnsPerHost:   cfg.MaxConnections,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   cfg.Timeout,
		ResponseHeaderTimeout: cfg.Timeout,
	}
}

// Acquire returns a request-scoped client. It fails when ctx is already done.
func (p *Provider) Acquire(ctx context.Context) (site.TextStreamer, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("acquire chat client: %w", err)
	}
	released, release := context.WithCancel(context.Background())
	return &Client{provider: p, released: released, release: release}, nil
}

// Close drops idle pooled connections.
func (p *Provider) Close() {
	p.httpClient.CloseIdleConnections()
}

// Client streams one conversation at a time on behalf of a request.
type Client struct {
	provider *Provider
	released context.Context
	release  context.CancelFunc
}

// Close releases the client and aborts any stream still reading.
func (c *Client) Close() error {
	c.release()
	return nil
}

// bind derives a context that also ends when the client is closed.
func (c *Client) bind(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(c.released, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Stream      bool          `json:"stream"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature,omitempty"`
}

type chatChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Stream yields content deltas as they arrive.
func (c *Client) Stream(ctx context.Context, system, prompt string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		if c.released.Err() != nil {
			yield("", ErrClientClosed)
			return
		}
		ctx, cancel := c.bind(ctx)
		defer cancel()
		resp, err := c.open(ctx, system, prompt)
		if err != nil {
			yield("", err)
			return
		}
		defer resp.Body.Close() //nolint:errcheck // stream body

		err = readSSE(resp.Body, func(_ string, data string) error {
			data = strings.TrimSpace(data)
			if data == "" || data == doneSentinel {
				return nil
			}
			var chunk chatChunk
			if err := json.Unmarshal([]byte(data), &chunk); err != nil {
				c.provider.logger.Debug("skipping malformed stream chunk", zap.Error(err))
				return nil
			}
			if chunk.Error != nil {
				return fmt.Errorf("chat completions stream: %s", chunk.Error.Message)
			}
			for _, choice := range chunk.Choices {
				if choice.Delta.Content == "" {
					continue
				}
				if !yield(choice.Delta.Content, nil) {
					return errStop
				}
			}
			return nil
		})
		if errors.Is(err, errStop) {
			return
		}
		if err != nil {
			yield("", err)
		}
	}
}

func (c *Client) open(ctx context.Context, system, prompt string) (*http.Response, error) {
	cfg := c.provider.cfg
	body := chatRequest{
		Model: cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: strings.TrimSpace(system)},
			{Role: "user", Content: prompt},
		},
		Stream:      true,
		MaxTokens:   cfg.MaxTokens,
		Temperature: cfg.Temperature,
	}
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		return nil, fmt.Errorf("encode chat request: %w", err)
	}
	url := strings.TrimRight(cfg.BaseURL, "/") + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &buf)
	if err != nil {
		return nil, fmt.Errorf("build chat request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.provider.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("chat completions request: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		_ = resp.Body.Close()
		return nil, &HTTPError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
	}
	return resp, nil
}
