// Package cache adds a Redis read-through cache in front of an image search backend.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/JakeFAU/sitegen/internal/site"
)

const (
	defaultPrefix = "sitegen:image:"
	defaultTTL    = 24 * time.Hour
	pingTimeout   = 5 * time.Second
)

// Config controls cache keys and expiry.
type Config struct {
	Prefix string
	TTL    time.Duration
}

// NewRedisClient connects to addr and verifies the connection.
func NewRedisClient(addr, password string, db int) (*redis.Client, error) {
	if addr == "" {
		return nil, fmt.Errorf("redis address is required")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return client, nil
}

// Provider wraps another ImageProvider.
type Provider struct {
	next   site.ImageProvider
	rdb    redis.Cmdable
	cfg    Config
	logger *zap.Logger
}

// NewProvider builds a caching provider in front of next.
func NewProvider(next site.ImageProvider, rdb redis.Cmdable, cfg Config, logger *zap.Logger) (*Provider, error) {
	if next == nil {
		return nil, fmt.Errorf("next provider is required")
	}
	if rdb == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if cfg.Prefix == "" {
		cfg.Prefix = defaultPrefix
	}
	if cfg.TTL <= 0 {
		cfg.TTL = defaultTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Provider{next: next, rdb: rdb, cfg: cfg, logger: logger}, nil
}

// Acquire acquires from the wrapped provider and adds caching.
func (p *Provider) Acquire(ctx context.Context) (site.ImageSearcher, error) {
	inner, err := p.next.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire image client: %w", err)
	}
	return &searcher{inner: inner, provider: p}, nil
}

type searcher struct {
	inner    site.ImageSearcher
	provider *Provider
}

func (s *searcher) Close() error {
	return s.inner.Close() //nolint:wrapcheck // pass-through
}

// Search serves hits from Redis and fills the cache on a miss. Redis
// failures degrade to an uncached search.
func (s *searcher) Search(ctx context.Context, query string) (site.Photo, error) {
	p := s.provider
	key := p.key(query)

	raw, err := p.rdb.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var photo site.Photo
		if jsonErr := json.Unmarshal(raw, &photo); jsonErr == nil {
			return photo, nil
		}
		p.logger.Warn("discarding corrupt image cache entry", zap.String("key", key))
	case errors.Is(err, redis.Nil):
	default:
		p.logger.Warn("image cache read failed", zap.String("key", key), zap.Error(err))
	}

	photo, err := s.inner.Search(ctx, query)
	if err != nil {
		return site.Photo{}, err //nolint:wrapcheck // backend error already carries context
	}
	encoded, err := json.Marshal(photo)
	if err != nil {
		return photo, nil
	}
	if err := p.rdb.Set(ctx, key, encoded, p.cfg.TTL).Err(); err != nil {
		p.logger.Warn("image cache write failed", zap.String("key", key), zap.Error(err))
	}
	return photo, nil
}

func (p *Provider) key(query string) string {
	return p.cfg.Prefix + strings.ToLower(strings.Join(strings.Fields(query), " "))
}
