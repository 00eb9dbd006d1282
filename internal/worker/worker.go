// Package worker executes detached screenshot tasks: render the stored HTML,
// upload the PNG, and record the outcome. Failures never propagate to callers.
package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"github.com/JakeFAU/sitegen/internal/metrics"
	"github.com/JakeFAU/sitegen/internal/progress"
	"github.com/JakeFAU/sitegen/internal/site"
)

const defaultTaskTimeout = 60 * time.Second

// Task is one screenshot to capture. HTML is the exact document that was
// uploaded under site.HTMLKey(SiteID).
type Task struct {
	SiteID    int64
	HTML      string
	Key       string
	Submitted time.Time
}

// Config controls Worker behavior.
type Config struct {
	// TaskTimeout bounds render plus upload.
	TaskTimeout time.Duration
}

// Worker handles screenshot Tasks.
type Worker struct {
	renderer site.ImageRenderer
	sink     site.ContentSink
	repo     site.Repository
	hasher   site.Hasher
	clock    site.Clock
	emitter  progress.Emitter
	tracer   trace.Tracer
	cfg      Config
	logger   *zap.Logger
}

// New constructs a Worker. repo, hasher, emitter and tracer may be nil.
func New(
	renderer site.ImageRenderer,
	sink site.ContentSink,
	repo site.Repository,
	hasher site.Hasher,
	clock site.Clock,
	emitter progress.Emitter,
	tracer trace.Tracer,
	cfg Config,
	logger *zap.Logger,
) *Worker {
	if cfg.TaskTimeout <= 0 {
		cfg.TaskTimeout = defaultTaskTimeout
	}
	if emitter == nil {
		emitter = progress.Discard{}
	}
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer("")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{
		renderer: renderer,
		sink:     sink,
		repo:     repo,
		hasher:   hasher,
		clock:    clock,
		emitter:  emitter,
		tracer:   tracer,
		cfg:      cfg,
		logger:   logger,
	}
}

// Handle runs one task. Errors and panics are logged and recorded, never returned.
func (w *Worker) Handle(ctx context.Context, task Task) {
	start := w.now()
	logger := w.logger.With(zap.Int64("site_id", task.SiteID), zap.String("key", task.Key))
	defer func() {
		if r := recover(); r != nil {
			logger.Error("screenshot task panicked", zap.Any("panic", r), zap.Stack("stack"))
			w.fail(task, start, fmt.Errorf("panic: %v", r))
		}
	}()

	ctx, span := w.tracer.Start(ctx, "screenshot.task", trace.WithAttributes(
		attribute.Int64("site.id", task.SiteID),
		attribute.String("storage.key", task.Key),
	))
	defer span.End()

	png, err := w.capture(ctx, task)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if errors.Is(err, site.ErrRenderServer) {
			logger.Error("renderer reported a server error", zap.Error(err))
		} else {
			logger.Error("screenshot task failed", zap.Error(err))
		}
		w.fail(task, start, err)
		return
	}

	storedAt := w.now()
	if w.repo != nil {
		if err := w.repo.MarkScreenshotStored(ctx, task.SiteID, storedAt); err != nil {
			logger.Warn("mark screenshot stored failed", zap.Error(err))
		}
	}
	metrics.ObserveScreenshot(metrics.ResultStored)
	w.emitter.Emit(progress.Event{
		SiteID: task.SiteID,
		TS:     storedAt,
		Stage:  progress.StageScreenshotStored,
		Key:    task.Key,
		Bytes:  int64(len(png)),
		Digest: w.digest(png),
		Dur:    storedAt.Sub(start),
	})
	logger.Info("screenshot stored",
		zap.Int("bytes", len(png)),
		zap.Duration("queued", start.Sub(task.Submitted)),
		zap.Duration("dur", storedAt.Sub(start)),
	)
}

func (w *Worker) capture(ctx context.Context, task Task) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, w.cfg.TaskTimeout)
	defer cancel()

	png, err := w.renderer.Render(ctx, task.HTML)
	if err != nil {
		return nil, fmt.Errorf("render screenshot: %w", err)
	}
	uploadStart := time.Now()
	if err := w.sink.Put(ctx, task.Key, png, site.ContentTypePNG, site.DispositionInline); err != nil {
		return nil, fmt.Errorf("upload screenshot: %w", err)
	}
	metrics.ObserveUpload("screenshot", time.Since(uploadStart))
	return png, nil
}

func (w *Worker) fail(task Task, start time.Time, err error) {
	metrics.ObserveScreenshot(metrics.ResultFailed)
	now := w.now()
	w.emitter.Emit(progress.Event{
		SiteID: task.SiteID,
		TS:     now,
		Stage:  progress.StageScreenshotError,
		Key:    task.Key,
		Dur:    now.Sub(start),
		Note:   err.Error(),
	})
}

func (w *Worker) digest(data []byte) string {
	if w.hasher == nil {
		return ""
	}
	sum, err := w.hasher.Hash(data)
	if err != nil {
		w.logger.Debug("hash screenshot failed", zap.Error(err))
		return ""
	}
	return sum
}

func (w *Worker) now() time.Time {
	if w.clock == nil {
		return time.Now().UTC()
	}
	return w.clock.Now()
}
