// Package anthropic streams page text from the Anthropic Messages API.
package anthropic

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"net/http"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"go.uber.org/zap"

	"github.com/JakeFAU/sitegen/internal/site"
)

const (
	defaultModel     = "claude-sonnet-4-5"
	defaultMaxTokens = 8192
)

// ErrClientClosed is returned when a released client is used again.
var ErrClientClosed = errors.New("text client closed")

// Config configures the Anthropic backend.
type Config struct {
	APIKey    string
	BaseURL   string
	Model     string
	MaxTokens int
	Timeout   time.Duration
}

// Provider owns the SDK client shared by all acquired clients.
type Provider struct {
	cfg    Config
	client anthropic.Client
	logger *zap.Logger
}

// NewProvider validates cfg and builds the SDK client. Retries are disabled;
// a failed stream surfaces to the caller.
func NewProvider(cfg Config, httpClient *http.Client, logger *zap.Logger) (*Provider, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("api key is required")
	}
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = defaultMaxTokens
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if httpClient != nil {
		opts = append(opts, option.WithHTTPClient(httpClient))
	}
	return &Provider{
		cfg:    cfg,
		client: anthropic.NewClient(opts...),
		logger: logger,
	}, nil
}

// Acquire returns a request-scoped client. It fails when ctx is already done.
func (p *Provider) Acquire(ctx context.Context) (site.TextStreamer, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("acquire anthropic client: %w", err)
	}
	released, release := context.WithCancel(context.Background())
	return &Client{provider: p, released: released, release: release}, nil
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

// Stream yields text deltas from a streaming Messages call.
func (c *Client) Stream(ctx context.Context, system, prompt string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		if c.released.Err() != nil {
			yield("", ErrClientClosed)
			return
		}
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()
		stop := context.AfterFunc(c.released, cancel)
		defer stop()
		cfg := c.provider.cfg
		if cfg.Timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, cfg.Timeout)
			defer cancel()
		}
		params := anthropic.MessageNewParams{
			Model:     anthropic.Model(cfg.Model),
			MaxTokens: int64(cfg.MaxTokens),
			Messages: []anthropic.MessageParam{
				anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
			},
		}
		if s := strings.TrimSpace(system); s != "" {
			params.System = []anthropic.TextBlockParam{{Text: s}}
		}

		stream := c.provider.client.Messages.NewStreaming(ctx, params)
		defer stream.Close() //nolint:errcheck // stream teardown

		for stream.Next() {
			event := stream.Current()
			ev, ok := event.AsAny().(anthropic.ContentBlockDeltaEvent)
			if !ok {
				continue
			}
			delta, ok := ev.Delta.AsAny().(anthropic.TextDelta)
			if !ok || delta.Text == "" {
				continue
			}
			if !yield(delta.Text, nil) {
				return
			}
		}
		if err := stream.Err(); err != nil {
			yield("", fmt.Errorf("anthropic stream: %w", err))
		}
	}
}
