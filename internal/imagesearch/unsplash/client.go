// Package unsplash searches stock photos through the Unsplash API.
package unsplash

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/JakeFAU/sitegen/internal/site"
)

const defaultBaseURL = "https://api.unsplash.com"

var (
	// ErrNoResults is returned when a query matches no photos.
	ErrNoResults = errors.New("no photos found")
	// ErrClientClosed is returned when a released client is used again.
	ErrClientClosed = errors.New("image client closed")
)

// Config configures the Unsplash client.
type Config struct {
	BaseURL        string
	AccessKey      string
	Timeout        time.Duration
	MaxConnections int
	// RequestsPerSecond caps outbound searches across all clients. Zero disables the limit.
	RequestsPerSecond float64
	Burst             int
}

// Provider owns the HTTP client and the process-wide rate limiter.
type Provider struct {
	cfg        Config
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *zap.Logger
}

// NewProvider validates cfg and builds the shared client.
func NewProvider(cfg Config, httpClient *http.Client, logger *zap.Logger) (*Provider, error) {
	if strings.TrimSpace(cfg.AccessKey) == "" {
		return nil, fmt.Errorf("unsplash access key is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if httpClient == nil {
		httpClient = &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				MaxConnsPerHost:     cfg.MaxConnections,
				MaxIdleConnsPerHost: cfg.MaxConnections,
				IdleConnTimeout:     90 * time.Second,
			},
		}
	}
	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}
	return &Provider{cfg: cfg, httpClient: httpClient, limiter: limiter, logger: logger}, nil
}

// Acquire returns a request-scoped client. It fails when ctx is already done.
func (p *Provider) Acquire(ctx context.Context) (site.ImageSearcher, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("acquire unsplash client: %w", err)
	}
	released, release := context.WithCancel(context.Background())
	return &Client{provider: p, released: released, release: release}, nil
}

// Close drops idle pooled connections.
func (p *Provider) Close() {
	p.httpClient.CloseIdleConnections()
}

// Client performs searches on behalf of one request.
type Client struct {
	provider *Provider
	released context.Context
	release  context.CancelFunc
}

// Close releases the client and aborts searches still in flight.
func (c *Client) Close() error {
	c.release()
	return nil
}

type searchResponse struct {
	Results []struct {
		ID             string `json:"id"`
		Description    string `json:"description"`
		AltDescription string `json:"alt_description"`
		URLs           struct {
			Regular string `json:"regular"`
			Small   string `json:"small"`
		} `json:"urls"`
		User struct {
			Name string `json:"name"`
		} `json:"user"`
	} `json:"results"`
}

// Search returns the best matching landscape photo for query.
func (c *Client) Search(ctx context.Context, query string) (site.Photo, error) {
	if c.released.Err() != nil {
		return site.Photo{}, ErrClientClosed
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(c.released, cancel)
	defer stop()
	query = strings.TrimSpace(query)
	if query == "" {
		return site.Photo{}, fmt.Errorf("query is required")
	}
	p := c.provider
	if p.limiter != nil {
		if err := p.limiter.Wait(ctx); err != nil {
			return site.Photo{}, fmt.Errorf("wait unsplash limiter: %w", err)
		}
	}

	params := url.Values{}
	params.Set("query", query)
	params.Set("per_page", "1")
	params.Set("orientation", "landscape")
	endpoint := strings.TrimRight(p.cfg.BaseURL, "/") + "/search/photos?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return site.Photo{}, fmt.Errorf("build search request: %w", err)
	}
	req.Header.Set("Authorization", "Client-ID "+p.cfg.AccessKey)
	req.Header.Set("Accept-Version", "v1")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return site.Photo{}, fmt.Errorf("unsplash search: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck // body consumed below

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return site.Photo{}, fmt.Errorf("unsplash search: status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	var decoded searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return site.Photo{}, fmt.Errorf("decode unsplash response: %w", err)
	}
	if len(decoded.Results) == 0 {
		return site.Photo{}, fmt.Errorf("%w: %q", ErrNoResults, query)
	}
	hit := decoded.Results[0]
	photo := site.Photo{
		URL:    hit.URLs.Regular,
		Alt:    hit.AltDescription,
		Author: hit.User.Name,
	}
	if photo.URL == "" {
		photo.URL = hit.URLs.Small
	}
	if photo.Alt == "" {
		photo.Alt = hit.Description
	}
	p.logger.Debug("unsplash hit", zap.String("query", query), zap.String("photo_id", hit.ID))
	return photo, nil
}
