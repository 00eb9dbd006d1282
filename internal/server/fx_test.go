package server

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/sitegen/internal/config"
	"github.com/JakeFAU/sitegen/internal/site"
	memorystorage "github.com/JakeFAU/sitegen/internal/storage/memory"
)

func debugConfig() *config.Config {
	return &config.Config{
		Debug:     true,
		Server:    config.ServerConfig{Port: 8000, RequestTimeoutSeconds: 5},
		Storage:   config.StorageConfig{Backend: config.StorageMemory, PublicBaseURL: "http://localhost:9000/sites"},
		Generator: config.GeneratorConfig{Provider: config.GeneratorStatic, Static: config.StaticConfig{ChunkSize: 32}},
		Images:    config.ImagesConfig{Provider: config.ImagesNone},
		Renderer:  config.RendererConfig{Backend: config.RendererNone},
		Screenshots: config.ScreenshotsConfig{
			Workers:             1,
			QueueDepth:          4,
			EnqueueTimeoutMs:    50,
			TaskTimeoutSeconds:  5,
			DrainTimeoutSeconds: 5,
		},
		Progress: config.ProgressConfig{
			Enabled:    true,
			BufferSize: 16,
			Batch:      config.ProgressBatchConfig{MaxEvents: 4, MaxWaitMs: 10},
			LogEnabled: true,
		},
		RateLimit: config.RateLimitConfig{Enabled: true, GenerateRPS: 1, GenerateBurst: 1},
		Telemetry: config.TelemetryConfig{ServiceName: "sitegen-test", SampleRatio: 1},
	}
}

func TestBuildServesGeneratedSite(t *testing.T) {
	cfg := debugConfig()
	app, err := build(context.Background(), cfg, zap.NewNop(), prometheus.NewRegistry())
	require.NoError(t, err)
	t.Cleanup(func() { _ = app.Close(context.Background()) })

	srv := httptest.NewServer(app.apiServer.Handler())
	t.Cleanup(srv.Close)

	resp, err := http.Post(srv.URL+"/frontend-api/sites/create", "application/json",
		bytes.NewBufferString(`{"prompt":"A tea shop"}`))
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	require.NoError(t, resp.Body.Close())

	resp, err = http.Post(srv.URL+"/frontend-api/sites/1/generate", "application/json",
		bytes.NewBufferString(`{"prompt":"A tea shop"}`))
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, string(body), "A tea shop")
	require.NotContains(t, string(body), "[[sitegen:error]]")

	sink, ok := app.sink.(*memorystorage.Sink)
	require.True(t, ok)
	obj, ok := sink.Get(site.HTMLKey(1))
	require.True(t, ok)
	require.Contains(t, string(obj.Body), "A tea shop")
	require.Equal(t, site.ContentTypeHTML, obj.ContentType)

	rec, err := app.repository.Get(context.Background(), 1)
	require.NoError(t, err)
	require.True(t, rec.HasHTML())

	resp, err = http.Post(srv.URL+"/frontend-api/sites/1/generate", "application/json",
		bytes.NewBufferString(`{"prompt":"again"}`))
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	require.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
}

func TestCloseDrainsScreenshotPool(t *testing.T) {
	cfg := debugConfig()
	app, err := build(context.Background(), cfg, zap.NewNop(), prometheus.NewRegistry())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, app.Close(ctx))
	require.Zero(t, app.pool.Pending())
}

func TestCloseWaitsForInFlightGeneration(t *testing.T) {
	cfg := debugConfig()
	cfg.Generator.Static = config.StaticConfig{ChunkSize: 16, DelayMs: 20}
	app, err := build(context.Background(), cfg, zap.NewNop(), prometheus.NewRegistry())
	require.NoError(t, err)

	srv := httptest.NewServer(app.apiServer.Handler())
	t.Cleanup(srv.Close)

	resp, err := http.Post(srv.URL+"/frontend-api/sites/create", "application/json",
		bytes.NewBufferString(`{"prompt":"A bike repair shop"}`))
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())

	resp, err = http.Post(srv.URL+"/frontend-api/sites/1/generate", "application/json",
		bytes.NewBufferString(`{"prompt":"A bike repair shop"}`))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	first := make([]byte, 8)
	_, err = io.ReadFull(resp.Body, first)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	require.Equal(t, 1, app.generations.InFlight())

	sink, ok := app.sink.(*memorystorage.Sink)
	require.True(t, ok)
	_, ok = sink.Get(site.HTMLKey(1))
	require.False(t, ok)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, app.Close(ctx))

	obj, ok := sink.Get(site.HTMLKey(1))
	require.True(t, ok)
	require.Contains(t, string(obj.Body), "A bike repair shop")
	require.Zero(t, app.generations.InFlight())
}

func TestURLBuilder(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		cfg  config.Config
		want string
	}{
		{
			name: "s3 derives from endpoint",
			cfg: config.Config{Storage: config.StorageConfig{
				Backend: config.StorageS3, Bucket: "sites",
				S3: config.S3Config{Endpoint: "minio:9000"},
			}},
			want: "http://minio:9000/sites/data/index_7.html",
		},
		{
			name: "s3 explicit public base",
			cfg: config.Config{Storage: config.StorageConfig{
				Backend: config.StorageS3, Bucket: "sites", PublicBaseURL: "https://cdn.example.com",
				S3: config.S3Config{Endpoint: "https://s3.example.com", UseSSL: true},
			}},
			want: "https://cdn.example.com/sites/data/index_7.html",
		},
		{
			name: "gcs default host",
			cfg:  config.Config{Storage: config.StorageConfig{Backend: config.StorageGCS, Bucket: "sites"}},
			want: "https://storage.googleapis.com/sites/data/index_7.html",
		},
		{
			name: "local without base",
			cfg:  config.Config{Storage: config.StorageConfig{Backend: config.StorageLocal}},
			want: "",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tt.want, urlBuilder(&tt.cfg).ObjectURL(site.HTMLKey(7)))
		})
	}
}
