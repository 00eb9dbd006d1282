// Package server provides the core application server and dependency wiring.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os/signal"
	"syscall"
	"time"

	pubsub "cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/storage"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"

	"github.com/JakeFAU/sitegen/internal/api"
	"github.com/JakeFAU/sitegen/internal/clock/system"
	"github.com/JakeFAU/sitegen/internal/config"
	"github.com/JakeFAU/sitegen/internal/hash/sha256"
	"github.com/JakeFAU/sitegen/internal/imagesearch"
	"github.com/JakeFAU/sitegen/internal/imagesearch/cache"
	"github.com/JakeFAU/sitegen/internal/imagesearch/unsplash"
	"github.com/JakeFAU/sitegen/internal/llm/anthropic"
	"github.com/JakeFAU/sitegen/internal/llm/openai"
	"github.com/JakeFAU/sitegen/internal/llm/static"
	"github.com/JakeFAU/sitegen/internal/logging"
	"github.com/JakeFAU/sitegen/internal/orchestrator"
	"github.com/JakeFAU/sitegen/internal/pagegen"
	"github.com/JakeFAU/sitegen/internal/policy/ratelimit"
	"github.com/JakeFAU/sitegen/internal/progress"
	progresssinks "github.com/JakeFAU/sitegen/internal/progress/sinks"
	gcppublisher "github.com/JakeFAU/sitegen/internal/publisher/pubsub"
	"github.com/JakeFAU/sitegen/internal/renderer"
	"github.com/JakeFAU/sitegen/internal/renderer/headless"
	"github.com/JakeFAU/sitegen/internal/renderer/remote"
	"github.com/JakeFAU/sitegen/internal/screenshot"
	"github.com/JakeFAU/sitegen/internal/site"
	sitestorage "github.com/JakeFAU/sitegen/internal/storage"
	gcsstorage "github.com/JakeFAU/sitegen/internal/storage/gcs"
	localstorage "github.com/JakeFAU/sitegen/internal/storage/local"
	memorystorage "github.com/JakeFAU/sitegen/internal/storage/memory"
	pgstore "github.com/JakeFAU/sitegen/internal/storage/postgres"
	s3storage "github.com/JakeFAU/sitegen/internal/storage/s3"
	"github.com/JakeFAU/sitegen/internal/telemetry"
	"github.com/JakeFAU/sitegen/internal/worker"
)

// Version is reported in traces. It is overridden at link time.
var Version = "dev"

const gcsPublicBaseURL = "https://storage.googleapis.com"

// App contains the application's dependencies.
type App struct {
	cfg             *config.Config
	logger          *zap.Logger
	apiServer       *api.Server
	sink            site.ContentSink
	repository      site.Repository
	generations     *orchestrator.Orchestrator
	pool            *screenshot.Pool
	progressHub     *progress.Hub
	pubsubClient    *pubsub.Client
	pubsubPublisher *gcppublisher.Publisher
	gcsClient       *storage.Client
	redisClient     *redis.Client
	siteStore       *pgstore.SiteStore
	browser         *headless.Renderer
	closers         []func()
	tracerProvider  *sdktrace.TracerProvider
}

// NewApp creates a new App with the given configuration.
func NewApp(cfg *config.Config, logger *zap.Logger) (*App, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	logger.Info("creating application",
		zap.Int("port", cfg.Server.Port),
		zap.Bool("debug", cfg.Debug),
		zap.String("storage", cfg.Storage.Backend),
		zap.String("generator", cfg.GeneratorProvider()),
		zap.String("images", cfg.ImagesProvider()),
		zap.String("renderer", cfg.Renderer.Backend),
	)
	return &App{cfg: cfg, logger: logger}, nil
}

// Run starts the application and blocks until the context is canceled or a
// termination signal arrives.
func (a *App) Run(ctx context.Context) error {
	a.logger.Info("application started")
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// No WriteTimeout: the generate route streams for minutes.
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           a.apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	a.logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout())
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", zap.Error(err))
	}

	return a.Close(context.Background())
}

// Close waits for shielded generations, drains screenshots, flushes progress
// events and releases clients.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.generations != nil {
		waitCtx, cancel := context.WithTimeout(ctx, a.generations.ShieldedBudget())
		if err := a.generations.Wait(waitCtx); err != nil {
			a.logger.Warn("in-flight generations did not finish",
				zap.Int("in_flight", a.generations.InFlight()), zap.Error(err))
			errs = append(errs, err)
		}
		cancel()
	}
	if a.pool != nil {
		drainCtx, cancel := context.WithTimeout(ctx, a.cfg.DrainTimeout())
		if err := a.pool.Drain(drainCtx); err != nil {
			a.logger.Warn("screenshot pool drain incomplete", zap.Int("pending", a.pool.Pending()), zap.Error(err))
			errs = append(errs, err)
		}
		cancel()
	}
	a.closeInfrastructure(ctx)
	a.closeObservability(ctx)
	a.logger.Info("shutdown complete")
	return errors.Join(errs...)
}

func (a *App) closeInfrastructure(ctx context.Context) {
	if a.progressHub != nil {
		hubCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		if err := a.progressHub.Close(hubCtx); err != nil {
			a.logger.Warn("progress hub close failed", zap.Error(err))
		}
		cancel()
	}
	if a.pubsubPublisher != nil {
		a.pubsubPublisher.Stop()
	}
	if a.pubsubClient != nil {
		if err := a.pubsubClient.Close(); err != nil {
			a.logger.Warn("pubsub client close failed", zap.Error(err))
		}
	}
	if a.gcsClient != nil {
		if err := a.gcsClient.Close(); err != nil {
			a.logger.Warn("gcs client close failed", zap.Error(err))
		}
	}
	if a.redisClient != nil {
		if err := a.redisClient.Close(); err != nil {
			a.logger.Warn("redis client close failed", zap.Error(err))
		}
	}
	if a.siteStore != nil {
		a.siteStore.Close()
	}
	if a.browser != nil {
		a.browser.Close()
	}
	for _, closeFn := range a.closers {
		closeFn()
	}
}

func (a *App) closeObservability(ctx context.Context) {
	if a.tracerProvider != nil {
		if err := a.tracerProvider.Shutdown(ctx); err != nil {
			a.logger.Warn("tracer shutdown failed", zap.Error(err))
		}
	}
	// Sync fails on stderr/stdout for some platforms; nothing to do about it.
	_ = a.logger.Sync()
}

// Build creates the application's dependencies.
func Build(ctx context.Context, cfg *config.Config) (*App, error) {
	logger, err := logging.New(cfg.Logging.Development, cfg.Logging.Level)
	if err != nil {
		return nil, fmt.Errorf("logger init failed: %w", err)
	}
	zap.ReplaceGlobals(logger)
	return build(ctx, cfg, logger, prometheus.DefaultRegisterer)
}

func build(ctx context.Context, cfg *config.Config, logger *zap.Logger, reg prometheus.Registerer) (*App, error) {
	app, err := NewApp(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("app init failed: %w", err)
	}

	app.tracerProvider, err = telemetry.InitTracerProvider(ctx, telemetry.Config{
		ServiceName:  cfg.Telemetry.ServiceName,
		Version:      Version,
		OTLPEndpoint: cfg.Telemetry.OTLPEndpoint,
		Insecure:     cfg.Telemetry.Insecure,
		SampleRatio:  cfg.Telemetry.SampleRatio,
	})
	if err != nil {
		return nil, fmt.Errorf("tracer init failed: %w", err)
	}
	tracer := telemetry.Tracer()

	app.logger.Info("building application dependencies")
	app.sink, err = setupStorage(ctx, app)
	if err != nil {
		return nil, err
	}
	app.repository, err = setupDatabase(ctx, app)
	if err != nil {
		return nil, err
	}
	emitter, err := setupProgress(ctx, app, reg)
	if err != nil {
		return nil, err
	}
	text, err := setupText(app)
	if err != nil {
		return nil, err
	}
	images, err := setupImages(app)
	if err != nil {
		return nil, err
	}
	render, err := setupRenderer(app)
	if err != nil {
		return nil, err
	}

	clock := system.New()
	hasher := sha256.New()
	screenshots := worker.New(
		render,
		app.sink,
		app.repository,
		hasher,
		clock,
		emitter,
		tracer,
		worker.Config{TaskTimeout: config.Seconds(cfg.Screenshots.TaskTimeoutSeconds)},
		app.logger.Named("screenshot_worker"),
	)
	app.pool = screenshot.NewPool(screenshots, screenshot.Config{
		Workers:        cfg.Screenshots.Workers,
		QueueDepth:     cfg.Screenshots.QueueDepth,
		EnqueueTimeout: config.Millis(cfg.Screenshots.EnqueueTimeoutMs),
	}, app.logger.Named("screenshot_pool"))
	app.pool.Start()
	app.logger.Info("screenshot pool started",
		zap.Int("workers", cfg.Screenshots.Workers),
		zap.Int("queue_depth", cfg.Screenshots.QueueDepth),
	)

	orch, err := orchestrator.New(orchestrator.Deps{
		Text:   text,
		Images: images,
		Generators: pagegen.NewFactory(pagegen.Options{
			MaxImages:     cfg.Generator.MaxImages,
			SearchTimeout: config.Seconds(cfg.Images.TimeoutSeconds),
		}, app.logger.Named("pagegen")),
		Sink:        app.sink,
		Screenshots: app.pool,
		Repository:  app.repository,
		Hasher:      hasher,
		Clock:       clock,
		Emitter:     emitter,
		Tracer:      tracer,
	}, orchestrator.Config{
		GenerationTimeout: cfg.GenerationTimeout(),
		UploadTimeout:     cfg.UploadTimeout(),
	}, app.logger.Named("orchestrator"))
	if err != nil {
		return nil, fmt.Errorf("orchestrator init failed: %w", err)
	}
	app.generations = orch

	opts := api.Options{
		StaticDir:      cfg.Server.StaticDir,
		RequestTimeout: cfg.RequestTimeout(),
		URLs:           urlBuilder(cfg),
		Ready:          app.ready,
	}
	if cfg.RateLimit.Enabled {
		opts.Limiter = ratelimit.New(ratelimit.Config{
			RPS:   cfg.RateLimit.GenerateRPS,
			Burst: cfg.RateLimit.GenerateBurst,
		})
		app.logger.Info("generate rate limiter enabled",
			zap.Float64("rps", cfg.RateLimit.GenerateRPS),
			zap.Int("burst", cfg.RateLimit.GenerateBurst),
		)
	}
	app.apiServer = api.NewServer(app.repository, orch, opts, app.logger.Named("api"))

	return app, nil
}

func (a *App) ready(ctx context.Context) error {
	if a.siteStore != nil {
		if err := a.siteStore.Ping(ctx); err != nil {
			return err
		}
	}
	if a.redisClient != nil {
		if err := a.redisClient.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("ping redis: %w", err)
		}
	}
	return nil
}

func setupStorage(ctx context.Context, app *App) (site.ContentSink, error) {
	cfg := app.cfg.Storage
	switch cfg.Backend {
	case config.StorageS3:
		app.logger.Info("using S3 storage backend", zap.String("endpoint", cfg.S3.Endpoint))
		sink, err := s3storage.New(s3storage.Config{
			Endpoint:  cfg.S3.Endpoint,
			AccessKey: cfg.S3.AccessKey,
			SecretKey: cfg.S3.SecretKey,
			Bucket:    cfg.Bucket,
			Region:    cfg.S3.Region,
			UseSSL:    cfg.S3.UseSSL,
		})
		if err != nil {
			return nil, fmt.Errorf("s3 sink init failed: %w", err)
		}
		if cfg.S3.CreateBucket {
			if err := sink.EnsureBucket(ctx); err != nil {
				return nil, fmt.Errorf("s3 bucket init failed: %w", err)
			}
		}
		return sink, nil
	case config.StorageGCS:
		app.logger.Info("using GCS storage backend", zap.String("bucket", cfg.Bucket))
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("gcs client init failed: %w", err)
		}
		app.gcsClient = client
		sink, err := gcsstorage.New(client, gcsstorage.Config{Bucket: cfg.Bucket})
		if err != nil {
			return nil, fmt.Errorf("gcs sink init failed: %w", err)
		}
		return sink, nil
	case config.StorageLocal:
		app.logger.Info("using local storage backend", zap.String("path", cfg.Local.BaseDir))
		sink, err := localstorage.New(localstorage.Config{BaseDir: cfg.Local.BaseDir})
		if err != nil {
			return nil, fmt.Errorf("local sink init failed: %w", err)
		}
		return sink, nil
	default:
		app.logger.Warn("using in-memory storage backend; artifacts are lost on restart")
		return memorystorage.NewSink(), nil
	}
}

func setupDatabase(ctx context.Context, app *App) (site.Repository, error) {
	if app.cfg.Database.DSN == "" {
		app.logger.Warn("no DSN specified for database, keeping sites in memory")
		return memorystorage.NewSiteStore(), nil
	}
	store, err := pgstore.NewSiteStore(ctx, pgstore.SiteStoreConfig{
		DSN:      app.cfg.Database.DSN,
		Table:    app.cfg.Database.Table,
		MaxConns: app.cfg.Database.MaxConns,
	})
	if err != nil {
		return nil, fmt.Errorf("site store init failed: %w", err)
	}
	app.siteStore = store
	if app.cfg.Database.Migrate {
		if err := store.Migrate(ctx); err != nil {
			return nil, fmt.Errorf("site store migrate failed: %w", err)
		}
	}
	app.logger.Info("site store initialized", zap.String("table", app.cfg.Database.Table))
	return store, nil
}

func setupPublisher(ctx context.Context, app *App) (site.Publisher, error) {
	if app.cfg.PubSub.TopicName == "" || app.cfg.PubSub.ProjectID == "" {
		return nil, nil
	}
	client, err := pubsub.NewClient(ctx, app.cfg.PubSub.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("pubsub client init failed: %w", err)
	}
	app.pubsubClient = client
	app.pubsubPublisher = gcppublisher.New(client.Publisher(app.cfg.PubSub.TopicName))
	app.logger.Info("Pub/Sub publisher initialized",
		zap.String("project", app.cfg.PubSub.ProjectID),
		zap.String("topic", app.cfg.PubSub.TopicName),
	)
	return app.pubsubPublisher, nil
}

func setupProgress(ctx context.Context, app *App, reg prometheus.Registerer) (progress.Emitter, error) {
	cfg := app.cfg.Progress
	if !cfg.Enabled {
		app.logger.Info("progress tracking disabled")
		return progress.Discard{}, nil
	}
	var sinkList []progress.Sink
	if cfg.LogEnabled {
		sinkList = append(sinkList, progresssinks.NewLogSink(app.logger.Named("progress_log")))
	}
	promSink, err := progresssinks.NewPrometheusSink(reg)
	if err != nil {
		return nil, fmt.Errorf("progress metrics init failed: %w", err)
	}
	sinkList = append(sinkList, promSink)

	publisher, err := setupPublisher(ctx, app)
	if err != nil {
		return nil, err
	}
	if publisher != nil {
		pubSink, err := progresssinks.NewPublisherSink(publisher, app.cfg.PubSub.TopicName)
		if err != nil {
			return nil, fmt.Errorf("progress publisher sink init failed: %w", err)
		}
		sinkList = append(sinkList, pubSink)
	}

	hubCfg := progress.Config{
		BufferSize:     cfg.BufferSize,
		MaxBatchEvents: cfg.Batch.MaxEvents,
		MaxBatchWait:   config.Millis(cfg.Batch.MaxWaitMs),
		SinkTimeout:    config.Millis(cfg.SinkTimeoutMs),
		Logger:         app.logger.Named("progress_hub"),
	}
	app.progressHub = progress.NewHub(hubCfg, sinkList...)
	app.logger.Info("progress hub initialized",
		zap.Int("sinks", len(sinkList)),
		zap.Int("buffer_size", hubCfg.BufferSize),
		zap.Int("max_batch_events", hubCfg.MaxBatchEvents),
		zap.Duration("max_batch_wait", hubCfg.MaxBatchWait),
	)
	return app.progressHub, nil
}

func setupText(app *App) (site.TextProvider, error) {
	cfg := app.cfg.Generator
	timeout := config.Seconds(cfg.TimeoutSeconds)
	switch app.cfg.GeneratorProvider() {
	case config.GeneratorStatic:
		app.logger.Info("using static text generator")
		return static.NewProvider(static.Config{
			ChunkSize: cfg.Static.ChunkSize,
			Delay:     config.Millis(cfg.Static.DelayMs),
		}), nil
	case config.GeneratorAnthropic:
		provider, err := anthropic.NewProvider(anthropic.Config{
			APIKey:    cfg.APIKey,
			BaseURL:   cfg.BaseURL,
			Model:     cfg.Model,
			MaxTokens: cfg.MaxTokens,
			Timeout:   timeout,
		}, nil, app.logger.Named("anthropic"))
		if err != nil {
			return nil, fmt.Errorf("anthropic client init failed: %w", err)
		}
		app.logger.Info("using anthropic text generator", zap.String("model", cfg.Model))
		return provider, nil
	default:
		provider, err := openai.NewProvider(openai.Config{
			BaseURL:        cfg.BaseURL,
			APIKey:         cfg.APIKey,
			Model:          cfg.Model,
			MaxTokens:      cfg.MaxTokens,
			Temperature:    cfg.Temperature,
			MaxConnections: cfg.MaxConnections,
			Timeout:        timeout,
		}, nil, app.logger.Named("deepseek"))
		if err != nil {
			return nil, fmt.Errorf("deepseek client init failed: %w", err)
		}
		app.closers = append(app.closers, provider.Close)
		app.logger.Info("using deepseek text generator",
			zap.String("model", cfg.Model),
			zap.Int("max_connections", cfg.MaxConnections),
		)
		return provider, nil
	}
}

func setupImages(app *App) (site.ImageProvider, error) {
	cfg := app.cfg.Images
	if app.cfg.ImagesProvider() == config.ImagesNone {
		app.logger.Info("image search disabled")
		return imagesearch.Disabled{}, nil
	}
	provider, err := unsplash.NewProvider(unsplash.Config{
		BaseURL:           cfg.BaseURL,
		AccessKey:         cfg.APIKey,
		Timeout:           config.Seconds(cfg.TimeoutSeconds),
		MaxConnections:    cfg.MaxConnections,
		RequestsPerSecond: cfg.RPS,
		Burst:             cfg.Burst,
	}, nil, app.logger.Named("unsplash"))
	if err != nil {
		return nil, fmt.Errorf("unsplash client init failed: %w", err)
	}
	app.closers = append(app.closers, provider.Close)
	if cfg.Cache.RedisAddr == "" {
		return provider, nil
	}
	app.redisClient, err = cache.NewRedisClient(cfg.Cache.RedisAddr, cfg.Cache.RedisPassword, cfg.Cache.RedisDB)
	if err != nil {
		return nil, fmt.Errorf("image cache init failed: %w", err)
	}
	cached, err := cache.NewProvider(provider, app.redisClient, cache.Config{
		TTL: config.Seconds(cfg.Cache.TTLSeconds),
	}, app.logger.Named("image_cache"))
	if err != nil {
		return nil, fmt.Errorf("image cache init failed: %w", err)
	}
	app.logger.Info("image search cache enabled", zap.String("redis", cfg.Cache.RedisAddr))
	return cached, nil
}

func setupRenderer(app *App) (site.ImageRenderer, error) {
	cfg := app.cfg.Renderer
	timeout := config.Seconds(cfg.TimeoutSeconds)
	switch cfg.Backend {
	case config.RendererNone:
		app.logger.Warn("screenshot rendering disabled")
		return renderer.Disabled{}, nil
	case config.RendererRemote:
		r, err := remote.New(remote.Config{
			Endpoint: cfg.Endpoint,
			Timeout:  timeout,
			Width:    cfg.Width,
			Height:   cfg.Height,
			APIKey:   cfg.APIKey,
		}, nil)
		if err != nil {
			return nil, fmt.Errorf("remote renderer init failed: %w", err)
		}
		app.logger.Info("using remote renderer", zap.String("endpoint", cfg.Endpoint))
		return r, nil
	default:
		r, err := headless.New(headless.Config{
			MaxParallel: cfg.MaxParallel,
			Timeout:     timeout,
			Width:       cfg.Width,
			Height:      cfg.Height,
			Settle:      config.Millis(cfg.SettleMs),
			ExecPath:    cfg.ExecPath,
		})
		if err != nil {
			return nil, fmt.Errorf("headless renderer init failed: %w", err)
		}
		app.browser = r
		app.logger.Info("using headless chrome renderer", zap.Int("max_parallel", cfg.MaxParallel))
		return r, nil
	}
}

// urlBuilder derives the public artifact base for the configured backend.
func urlBuilder(cfg *config.Config) sitestorage.URLBuilder {
	base := cfg.Storage.PublicBaseURL
	switch cfg.Storage.Backend {
	case config.StorageS3:
		if base == "" {
			base = s3PublicBase(cfg.Storage.S3.Endpoint, cfg.Storage.S3.UseSSL)
		}
		return sitestorage.NewURLBuilder(base, cfg.Storage.Bucket)
	case config.StorageGCS:
		if base == "" {
			base = gcsPublicBaseURL
		}
		return sitestorage.NewURLBuilder(base, cfg.Storage.Bucket)
	default:
		return sitestorage.NewURLBuilder(base, "")
	}
}

func s3PublicBase(endpoint string, useSSL bool) string {
	if endpoint == "" {
		return ""
	}
	if u, err := url.Parse(endpoint); err == nil && u.Scheme != "" && u.Host != "" {
		return u.Scheme + "://" + u.Host
	}
	if useSSL {
		return "https://" + endpoint
	}
	return "http://" + endpoint
}
