// Package orchestrator drives one site generation: it streams chunks to the
// caller and then persists the page and schedules its screenshot, even when
// the caller goes away mid-stream.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"github.com/JakeFAU/sitegen/internal/metrics"
	"github.com/JakeFAU/sitegen/internal/progress"
	"github.com/JakeFAU/sitegen/internal/site"
	"github.com/JakeFAU/sitegen/internal/worker"
)

const (
	defaultGenerationTimeout = 5 * time.Minute
	defaultUploadTimeout     = 30 * time.Second
)

// Submitter accepts detached screenshot tasks.
type Submitter interface {
	Submit(ctx context.Context, task worker.Task) error
}

// Config bounds the shielded section.
type Config struct {
	GenerationTimeout time.Duration
	UploadTimeout     time.Duration
}

// Deps are the collaborators of an Orchestrator. Repository, Hasher, Clock,
// Emitter and Tracer are optional.
type Deps struct {
	Text        site.TextProvider
	Images      site.ImageProvider
	Generators  site.GeneratorFactory
	Sink        site.ContentSink
	Screenshots Submitter
	Repository  site.Repository
	Hasher      site.Hasher
	Clock       site.Clock
	Emitter     progress.Emitter
	Tracer      trace.Tracer
}

// Orchestrator runs generation requests.
type Orchestrator struct {
	deps   Deps
	cfg    Config
	logger *zap.Logger

	mu     sync.Mutex
	active int
	idle   chan struct{}
}

// New validates deps and returns an Orchestrator.
func New(deps Deps, cfg Config, logger *zap.Logger) (*Orchestrator, error) {
	switch {
	case deps.Text == nil:
		return nil, errors.New("text provider is required")
	case deps.Images == nil:
		return nil, errors.New("image provider is required")
	case deps.Generators == nil:
		return nil, errors.New("generator factory is required")
	case deps.Sink == nil:
		return nil, errors.New("content sink is required")
	case deps.Screenshots == nil:
		return nil, errors.New("screenshot submitter is required")
	}
	if deps.Emitter == nil {
		deps.Emitter = progress.Discard{}
	}
	if deps.Tracer == nil {
		deps.Tracer = noop.NewTracerProvider().Tracer("")
	}
	if cfg.GenerationTimeout <= 0 {
		cfg.GenerationTimeout = defaultGenerationTimeout
	}
	if cfg.UploadTimeout <= 0 {
		cfg.UploadTimeout = defaultUploadTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{deps: deps, cfg: cfg, logger: logger}, nil
}

// Generate returns the chunk stream for req. Ranging over it acquires the
// image search client and then the text client, releasing them in reverse
// order when the sequence ends. A ctx that is already done when setup
// finishes ends the sequence with its error before any work starts. Once
// generation starts, breaking out of the loop or cancelling ctx only stops
// delivery: the generator is drained, the HTML uploaded and the screenshot
// submitted before the loop exits.
//
// A failed HTML upload is yielded last as an error wrapping site.ErrPersistFailed.
func (o *Orchestrator) Generate(ctx context.Context, req site.GenerationRequest) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		if err := req.Validate(); err != nil {
			yield("", err)
			return
		}
		images, err := o.deps.Images.Acquire(ctx)
		if err != nil {
			yield("", fmt.Errorf("acquire image search client: %w", err))
			return
		}
		defer o.release("image search", req.SiteID, images)

		text, err := o.deps.Text.Acquire(ctx)
		if err != nil {
			yield("", fmt.Errorf("acquire text generation client: %w", err))
			return
		}
		defer o.release("text generation", req.SiteID, text)

		if err := ctx.Err(); err != nil {
			yield("", fmt.Errorf("generation not started: %w", err))
			return
		}
		o.begin()
		defer o.end()
		o.run(ctx, req, text, images, yield)
	}
}

func (o *Orchestrator) begin() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.active == 0 {
		o.idle = make(chan struct{})
	}
	o.active++
}

func (o *Orchestrator) end() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.active--
	if o.active == 0 {
		close(o.idle)
	}
}

// ShieldedBudget is the longest a single shielded section can run.
func (o *Orchestrator) ShieldedBudget() time.Duration {
	return o.cfg.GenerationTimeout + o.cfg.UploadTimeout
}

// InFlight reports how many generations are inside the shielded section.
func (o *Orchestrator) InFlight() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.active
}

// Wait blocks until no generation is inside the shielded section or ctx ends.
func (o *Orchestrator) Wait(ctx context.Context) error {
	o.mu.Lock()
	if o.active == 0 {
		o.mu.Unlock()
		return nil
	}
	idle := o.idle
	o.mu.Unlock()
	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("wait for in-flight generations: %w", ctx.Err())
	}
}

type stream struct {
	caller    context.Context
	yield     func(string, error) bool
	connected bool
	chunks    int
}

// deliver forwards a chunk while the consumer is still listening.
func (r *stream) deliver(chunk string) bool {
	if !r.connected {
		return false
	}
	if r.caller.Err() != nil || !r.yield(chunk, nil) {
		r.connected = false
		return false
	}
	r.chunks++
	return true
}

// fail yields err as the final element if the consumer is still listening.
func (r *stream) fail(err error) {
	if r.connected {
		r.connected = false
		r.yield("", err)
	}
}

func (o *Orchestrator) run(
	caller context.Context,
	req site.GenerationRequest,
	text site.TextStreamer,
	images site.ImageSearcher,
	yield func(string, error) bool,
) {
	shielded := context.WithoutCancel(caller)
	logger := o.logger.With(zap.Int64("site_id", req.SiteID))
	start := o.now()

	ctx, span := o.deps.Tracer.Start(shielded, "site.generate",
		trace.WithAttributes(attribute.Int64("site.id", req.SiteID)))
	defer span.End()

	o.deps.Emitter.Emit(progress.Event{SiteID: req.SiteID, TS: start, Stage: progress.StageGenerationStart})

	r := &stream{caller: caller, yield: yield, connected: true}
	artifact, err := o.generate(ctx, req, text, images, r, logger)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "generation failed")
		logger.Error("site generation failed", zap.Int("chunks", r.chunks), zap.Error(err))
		o.emitError(req.SiteID, start, err)
		metrics.ObserveGeneration(metrics.ResultGenerateFail)
		r.fail(err)
		return
	}

	body := []byte(artifact.HTML)
	key := site.HTMLKey(req.SiteID)
	if err := o.upload(ctx, key, body); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "html upload failed")
		logger.Error("html upload failed", zap.String("key", key), zap.Error(err))
		o.emitError(req.SiteID, start, err)
		metrics.ObserveGeneration(metrics.ResultPersistFail)
		r.fail(fmt.Errorf("%w: %w", site.ErrPersistFailed, err))
		return
	}
	storedAt := o.now()
	logger.Info("html stored",
		zap.String("key", key),
		zap.Int("bytes", len(body)),
		zap.Int("chunks", r.chunks),
		zap.Bool("client_connected", r.connected),
		zap.Duration("dur", storedAt.Sub(start)),
	)
	if o.deps.Repository != nil {
		if err := o.deps.Repository.MarkHTMLStored(ctx, req.SiteID, artifact.Title, storedAt); err != nil {
			logger.Warn("mark html stored failed", zap.Error(err))
		}
	}
	o.deps.Emitter.Emit(progress.Event{
		SiteID: req.SiteID,
		TS:     storedAt,
		Stage:  progress.StageHTMLStored,
		Key:    key,
		Bytes:  int64(len(body)),
		Digest: o.digest(body),
		Dur:    storedAt.Sub(start),
	})
	metrics.ObserveGeneration(metrics.ResultSuccess)

	task := worker.Task{
		SiteID:    req.SiteID,
		HTML:      artifact.HTML,
		Key:       site.ScreenshotKey(req.SiteID),
		Submitted: storedAt,
	}
	if err := o.deps.Screenshots.Submit(ctx, task); err != nil {
		logger.Warn("screenshot not scheduled", zap.Error(err))
	}
}

// generate drains the generator completely, forwarding chunks while the
// consumer listens.
func (o *Orchestrator) generate(
	ctx context.Context,
	req site.GenerationRequest,
	text site.TextStreamer,
	images site.ImageSearcher,
	r *stream,
	logger *zap.Logger,
) (site.Artifact, error) {
	ctx, cancel := context.WithTimeout(ctx, o.cfg.GenerationTimeout)
	defer cancel()

	gen := o.deps.Generators.NewGenerator(text, images)
	for chunk, err := range gen.Chunks(ctx, req.Prompt) {
		if err != nil {
			return site.Artifact{}, err
		}
		wasConnected := r.connected
		if r.deliver(chunk) {
			metrics.ObserveChunk()
			continue
		}
		if wasConnected {
			metrics.ObserveDisconnect()
			logger.Info("client disconnected, finishing generation in background", zap.Int("chunks", r.chunks))
		}
	}
	artifact, err := gen.Artifact()
	if err != nil {
		return site.Artifact{}, fmt.Errorf("read artifact: %w", err)
	}
	return artifact, nil
}

func (o *Orchestrator) upload(ctx context.Context, key string, body []byte) error {
	ctx, cancel := context.WithTimeout(ctx, o.cfg.UploadTimeout)
	defer cancel()
	start := time.Now()
	if err := o.deps.Sink.Put(ctx, key, body, site.ContentTypeHTML, site.DispositionInline); err != nil {
		return fmt.Errorf("upload html: %w", err)
	}
	metrics.ObserveUpload("html", time.Since(start))
	return nil
}

func (o *Orchestrator) release(name string, siteID int64, c interface{ Close() error }) {
	if err := c.Close(); err != nil {
		o.logger.Warn("release client failed",
			zap.String("client", name),
			zap.Int64("site_id", siteID),
			zap.Error(err),
		)
	}
}

func (o *Orchestrator) emitError(siteID int64, start time.Time, err error) {
	now := o.now()
	o.deps.Emitter.Emit(progress.Event{
		SiteID: siteID,
		TS:     now,
		Stage:  progress.StageGenerationError,
		Dur:    now.Sub(start),
		Note:   err.Error(),
	})
}

func (o *Orchestrator) digest(data []byte) string {
	if o.deps.Hasher == nil {
		return ""
	}
	sum, err := o.deps.Hasher.Hash(data)
	if err != nil {
		return ""
	}
	return sum
}

func (o *Orchestrator) now() time.Time {
	if o.deps.Clock == nil {
		return time.Now().UTC()
	}
	return o.deps.Clock.Now()
}
