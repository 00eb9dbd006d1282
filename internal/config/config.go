// Package config loads and validates sitegen configuration via Viper.
package config

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Backend names accepted by the selector fields.
const (
	StorageS3     = "s3"
	StorageGCS    = "gcs"
	StorageLocal  = "local"
	StorageMemory = "memory"

	GeneratorDeepSeek  = "deepseek"
	GeneratorAnthropic = "anthropic"
	GeneratorStatic    = "static"

	ImagesUnsplash = "unsplash"
	ImagesNone     = "none"

	RendererChromedp = "chromedp"
	RendererRemote   = "remote"
	RendererNone     = "none"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Logging     LoggingConfig     `mapstructure:"logging"`
	Debug       bool              `mapstructure:"debug"`
	Storage     StorageConfig     `mapstructure:"storage"`
	Generator   GeneratorConfig   `mapstructure:"generator"`
	Images      ImagesConfig      `mapstructure:"images"`
	Renderer    RendererConfig    `mapstructure:"renderer"`
	Screenshots ScreenshotsConfig `mapstructure:"screenshots"`
	Database    DatabaseConfig    `mapstructure:"database"`
	PubSub      PubSubConfig      `mapstructure:"pubsub"`
	Progress    ProgressConfig    `mapstructure:"progress"`
	RateLimit   RateLimitConfig   `mapstructure:"ratelimit"`
	Telemetry   TelemetryConfig   `mapstructure:"telemetry"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port                   int    `mapstructure:"port"`
	StaticDir              string `mapstructure:"static_dir"`
	RequestTimeoutSeconds  int    `mapstructure:"request_timeout_seconds"`
	ShutdownTimeoutSeconds int    `mapstructure:"shutdown_timeout_seconds"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// StorageConfig selects and configures the object store for artifacts.
type StorageConfig struct {
	Backend              string      `mapstructure:"backend"`
	Bucket               string      `mapstructure:"bucket"`
	PublicBaseURL        string      `mapstructure:"public_base_url"`
	UploadTimeoutSeconds int         `mapstructure:"upload_timeout_seconds"`
	S3                   S3Config    `mapstructure:"s3"`
	Local                LocalConfig `mapstructure:"local"`
}

// S3Config configures an S3-compatible endpoint.
type S3Config struct {
	Endpoint     string `mapstructure:"endpoint"`
	AccessKey    string `mapstructure:"access_key"`
	SecretKey    string `mapstructure:"secret_key"`
	Region       string `mapstructure:"region"`
	UseSSL       bool   `mapstructure:"use_ssl"`
	CreateBucket bool   `mapstructure:"create_bucket"`
}

// LocalConfig configures the filesystem backend.
type LocalConfig struct {
	BaseDir string `mapstructure:"base_dir"`
}

// GeneratorConfig configures the text generation backend.
type GeneratorConfig struct {
	Provider                 string       `mapstructure:"provider"`
	BaseURL                  string       `mapstructure:"base_url"`
	APIKey                   string       `mapstructure:"api_key"`
	Model                    string       `mapstructure:"model"`
	MaxTokens                int          `mapstructure:"max_tokens"`
	Temperature              float64      `mapstructure:"temperature"`
	MaxConnections           int          `mapstructure:"max_connections"`
	TimeoutSeconds           int          `mapstructure:"timeout_seconds"`
	GenerationTimeoutSeconds int          `mapstructure:"generation_timeout_seconds"`
	MaxImages                int          `mapstructure:"max_images"`
	Static                   StaticConfig `mapstructure:"static"`
}

// StaticConfig tunes the canned generator used in debug mode.
type StaticConfig struct {
	ChunkSize int `mapstructure:"chunk_size"`
	DelayMs   int `mapstructure:"delay_ms"`
}

// ImagesConfig configures photo search for generated pages.
type ImagesConfig struct {
	Provider       string      `mapstructure:"provider"`
	BaseURL        string      `mapstructure:"base_url"`
	APIKey         string      `mapstructure:"api_key"`
	TimeoutSeconds int         `mapstructure:"timeout_seconds"`
	MaxConnections int         `mapstructure:"max_connections"`
	RPS            float64     `mapstructure:"rps"`
	Burst          int         `mapstructure:"burst"`
	Cache          CacheConfig `mapstructure:"cache"`
}

// CacheConfig enables the Redis search cache when RedisAddr is set.
type CacheConfig struct {
	RedisAddr     string `mapstructure:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db"`
	TTLSeconds    int    `mapstructure:"ttl_seconds"`
}

// RendererConfig selects the screenshot renderer.
type RendererConfig struct {
	Backend        string `mapstructure:"backend"`
	Endpoint       string `mapstructure:"endpoint"`
	APIKey         string `mapstructure:"api_key"`
	MaxParallel    int    `mapstructure:"max_parallel"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	Width          int    `mapstructure:"width"`
	Height         int    `mapstructure:"height"`
	SettleMs       int    `mapstructure:"settle_ms"`
	ExecPath       string `mapstructure:"exec_path"`
}

// ScreenshotsConfig sizes the detached screenshot pool.
type ScreenshotsConfig struct {
	Workers             int `mapstructure:"workers"`
	QueueDepth          int `mapstructure:"queue_depth"`
	EnqueueTimeoutMs    int `mapstructure:"enqueue_timeout_ms"`
	TaskTimeoutSeconds  int `mapstructure:"task_timeout_seconds"`
	DrainTimeoutSeconds int `mapstructure:"drain_timeout_seconds"`
}

// DatabaseConfig controls access to Postgres. An empty DSN keeps sites in memory.
type DatabaseConfig struct {
	DSN      string `mapstructure:"dsn"`
	MaxConns int32  `mapstructure:"max_conns"`
	Table    string `mapstructure:"table"`
	Migrate  bool   `mapstructure:"migrate"`
}

// PubSubConfig holds metadata for publish-subscribe notifications.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// ProgressConfig configures the progress hub and its sinks.
type ProgressConfig struct {
	Enabled       bool                `mapstructure:"enabled"`
	BufferSize    int                 `mapstructure:"buffer_size"`
	Batch         ProgressBatchConfig `mapstructure:"batch"`
	SinkTimeoutMs int                 `mapstructure:"sink_timeout_ms"`
	LogEnabled    bool                `mapstructure:"log_enabled"`
}

// ProgressBatchConfig controls hub flushing.
type ProgressBatchConfig struct {
	MaxEvents int `mapstructure:"max_events"`
	MaxWaitMs int `mapstructure:"max_wait_ms"`
}

// RateLimitConfig admits generate requests per site.
type RateLimitConfig struct {
	Enabled       bool    `mapstructure:"enabled"`
	GenerateRPS   float64 `mapstructure:"generate_rps"`
	GenerateBurst int     `mapstructure:"generate_burst"`
}

// TelemetryConfig configures tracing.
type TelemetryConfig struct {
	ServiceName  string  `mapstructure:"service_name"`
	OTLPEndpoint string  `mapstructure:"otlp_endpoint"`
	Insecure     bool    `mapstructure:"insecure"`
	SampleRatio  float64 `mapstructure:"sample_ratio"`
}

// Load builds a Config from disk/environment. Environment variables use the
// SITEGEN_ prefix with dots replaced by underscores, e.g. SITEGEN_STORAGE_BUCKET.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("SITEGEN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.static_dir", "")
	v.SetDefault("server.request_timeout_seconds", 30)
	v.SetDefault("server.shutdown_timeout_seconds", 10)
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "")
	v.SetDefault("debug", false)

	v.SetDefault("storage.backend", StorageS3)
	v.SetDefault("storage.bucket", "")
	v.SetDefault("storage.public_base_url", "")
	v.SetDefault("storage.upload_timeout_seconds", 30)
	v.SetDefault("storage.s3.endpoint", "")
	v.SetDefault("storage.s3.access_key", "")
	v.SetDefault("storage.s3.secret_key", "")
	v.SetDefault("storage.s3.region", "")
	v.SetDefault("storage.s3.use_ssl", true)
	v.SetDefault("storage.s3.create_bucket", false)
	v.SetDefault("storage.local.base_dir", "data")

	v.SetDefault("generator.provider", GeneratorDeepSeek)
	v.SetDefault("generator.base_url", "https://api.deepseek.com")
	v.SetDefault("generator.api_key", "")
	v.SetDefault("generator.model", "deepseek-chat")
	v.SetDefault("generator.max_tokens", 8192)
	v.SetDefault("generator.temperature", 0.7)
	v.SetDefault("generator.max_connections", 5)
	v.SetDefault("generator.timeout_seconds", 100)
	v.SetDefault("generator.generation_timeout_seconds", 300)
	v.SetDefault("generator.max_images", 8)
	v.SetDefault("generator.static.chunk_size", 64)
	v.SetDefault("generator.static.delay_ms", 20)

	v.SetDefault("images.provider", ImagesUnsplash)
	v.SetDefault("images.base_url", "https://api.unsplash.com")
	v.SetDefault("images.api_key", "")
	v.SetDefault("images.timeout_seconds", 20)
	v.SetDefault("images.max_connections", 5)
	v.SetDefault("images.rps", 0)
	v.SetDefault("images.burst", 1)
	v.SetDefault("images.cache.redis_addr", "")
	v.SetDefault("images.cache.redis_password", "")
	v.SetDefault("images.cache.redis_db", 0)
	v.SetDefault("images.cache.ttl_seconds", 86400)

	v.SetDefault("renderer.backend", RendererChromedp)
	v.SetDefault("renderer.endpoint", "")
	v.SetDefault("renderer.api_key", "")
	v.SetDefault("renderer.max_parallel", 2)
	v.SetDefault("renderer.timeout_seconds", 45)
	v.SetDefault("renderer.width", 1280)
	v.SetDefault("renderer.height", 800)
	v.SetDefault("renderer.settle_ms", 500)
	v.SetDefault("renderer.exec_path", "")

	v.SetDefault("screenshots.workers", 2)
	v.SetDefault("screenshots.queue_depth", 64)
	v.SetDefault("screenshots.enqueue_timeout_ms", 100)
	v.SetDefault("screenshots.task_timeout_seconds", 60)
	v.SetDefault("screenshots.drain_timeout_seconds", 30)

	v.SetDefault("database.dsn", "")
	v.SetDefault("database.max_conns", 10)
	v.SetDefault("database.table", "sites")
	v.SetDefault("database.migrate", true)

	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("pubsub.topic_name", "site-events")

	v.SetDefault("progress.enabled", true)
	v.SetDefault("progress.buffer_size", 1024)
	v.SetDefault("progress.batch.max_events", 100)
	v.SetDefault("progress.batch.max_wait_ms", 500)
	v.SetDefault("progress.sink_timeout_ms", 5000)
	v.SetDefault("progress.log_enabled", true)

	v.SetDefault("ratelimit.enabled", true)
	v.SetDefault("ratelimit.generate_rps", 0.2)
	v.SetDefault("ratelimit.generate_burst", 2)

	v.SetDefault("telemetry.service_name", "sitegen")
	v.SetDefault("telemetry.otlp_endpoint", "")
	v.SetDefault("telemetry.insecure", false)
	v.SetDefault("telemetry.sample_ratio", 1.0)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if err := c.validateStorage(); err != nil {
		return err
	}
	if err := c.validateGenerator(); err != nil {
		return err
	}
	switch c.Images.Provider {
	case ImagesNone:
	case ImagesUnsplash:
		if c.Images.APIKey == "" && !c.Debug {
			return fmt.Errorf("images.api_key must be set for the unsplash provider")
		}
	default:
		return fmt.Errorf("images.provider %q is not one of %s, %s", c.Images.Provider, ImagesUnsplash, ImagesNone)
	}
	switch c.Renderer.Backend {
	case RendererChromedp, RendererNone:
	case RendererRemote:
		if c.Renderer.Endpoint == "" {
			return fmt.Errorf("renderer.endpoint must be set for the remote renderer")
		}
	default:
		return fmt.Errorf("renderer.backend %q is not one of %s, %s, %s",
			c.Renderer.Backend, RendererChromedp, RendererRemote, RendererNone)
	}
	if c.Screenshots.Workers <= 0 {
		return fmt.Errorf("screenshots.workers must be > 0")
	}
	if c.Screenshots.QueueDepth <= 0 {
		return fmt.Errorf("screenshots.queue_depth must be > 0")
	}
	if c.RateLimit.Enabled && c.RateLimit.GenerateRPS <= 0 {
		return fmt.Errorf("ratelimit.generate_rps must be > 0 when rate limiting is enabled")
	}
	return nil
}

func (c Config) validateStorage() error {
	switch c.Storage.Backend {
	case StorageMemory:
	case StorageLocal:
		if c.Storage.Local.BaseDir == "" {
			return fmt.Errorf("storage.local.base_dir must be set for the local backend")
		}
	case StorageGCS:
		if c.Storage.Bucket == "" {
			return fmt.Errorf("storage.bucket must be set for the gcs backend")
		}
	case StorageS3:
		if c.Storage.Bucket == "" {
			return fmt.Errorf("storage.bucket must be set for the s3 backend")
		}
		if c.Storage.S3.Endpoint == "" {
			return fmt.Errorf("storage.s3.endpoint must be set for the s3 backend")
		}
	default:
		return fmt.Errorf("storage.backend %q is not one of %s",
			c.Storage.Backend, strings.Join([]string{StorageS3, StorageGCS, StorageLocal, StorageMemory}, ", "))
	}
	return nil
}

func (c Config) validateGenerator() error {
	providers := []string{GeneratorDeepSeek, GeneratorAnthropic, GeneratorStatic}
	if !slices.Contains(providers, c.Generator.Provider) {
		return fmt.Errorf("generator.provider %q is not one of %s", c.Generator.Provider, strings.Join(providers, ", "))
	}
	if c.GeneratorProvider() != GeneratorStatic && c.Generator.APIKey == "" {
		return fmt.Errorf("generator.api_key must be set for the %s provider", c.Generator.Provider)
	}
	if c.Generator.MaxConnections < 0 {
		return fmt.Errorf("generator.max_connections must be >= 0")
	}
	return nil
}

// GeneratorProvider returns the text provider to use. Debug mode always
// serves canned pages.
func (c Config) GeneratorProvider() string {
	if c.Debug {
		return GeneratorStatic
	}
	return c.Generator.Provider
}

// ImagesProvider returns the image search provider to use. Debug mode
// without an API key disables search.
func (c Config) ImagesProvider() string {
	if c.Debug && c.Images.APIKey == "" {
		return ImagesNone
	}
	return c.Images.Provider
}

// RequestTimeout is the budget for non-streaming API routes.
func (c Config) RequestTimeout() time.Duration {
	return Seconds(c.Server.RequestTimeoutSeconds)
}

// ShutdownTimeout bounds HTTP server shutdown.
func (c Config) ShutdownTimeout() time.Duration {
	return Seconds(c.Server.ShutdownTimeoutSeconds)
}

// UploadTimeout bounds a single artifact upload.
func (c Config) UploadTimeout() time.Duration {
	return Seconds(c.Storage.UploadTimeoutSeconds)
}

// GenerationTimeout bounds one full generation.
func (c Config) GenerationTimeout() time.Duration {
	return Seconds(c.Generator.GenerationTimeoutSeconds)
}

// DrainTimeout bounds the screenshot pool drain at shutdown.
func (c Config) DrainTimeout() time.Duration {
	return Seconds(c.Screenshots.DrainTimeoutSeconds)
}

// Seconds converts a second-valued config field to a Duration.
func Seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}

// Millis converts a millisecond-valued config field to a Duration.
func Millis(n int) time.Duration {
	return time.Duration(n) * time.Millisecond
}
