// Package screenshot runs detached screenshot tasks on a bounded worker pool
// that outlives the requests submitting them.
package screenshot

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/sitegen/internal/dispatcher"
	"github.com/JakeFAU/sitegen/internal/metrics"
	"github.com/JakeFAU/sitegen/internal/queue"
	"github.com/JakeFAU/sitegen/internal/queue/memory"
	"github.com/JakeFAU/sitegen/internal/site"
	"github.com/JakeFAU/sitegen/internal/worker"
)

// Config sizes the pool.
type Config struct {
	Workers        int
	QueueDepth     int
	EnqueueTimeout time.Duration
}

const (
	defaultWorkers        = 2
	defaultQueueDepth     = 64
	defaultEnqueueTimeout = 100 * time.Millisecond
)

// Pool owns the task queue and its workers. Tasks run under the pool's own
// context, which is cancelled only when Drain gives up.
type Pool struct {
	dispatcher *dispatcher.Dispatcher[worker.Task]
	cfg        Config
	logger     *zap.Logger

	baseCtx context.Context
	cancel  context.CancelFunc

	startOnce sync.Once
	done      chan struct{}
}

// NewPool builds a pool over handler. Call Start before submitting.
func NewPool(handler dispatcher.Handler[worker.Task], cfg Config, logger *zap.Logger) *Pool {
	if cfg.Workers <= 0 {
		cfg.Workers = defaultWorkers
	}
	if cfg.QueueDepth <= 0 {
		cfg.QueueDepth = defaultQueueDepth
	}
	if cfg.EnqueueTimeout <= 0 {
		cfg.EnqueueTimeout = defaultEnqueueTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &Pool{
		cfg:    cfg,
		logger: logger,
		done:   make(chan struct{}),
	}
	p.baseCtx, p.cancel = context.WithCancel(context.Background())
	q := memory.NewQueue[worker.Task](cfg.QueueDepth)
	p.dispatcher = dispatcher.New[worker.Task](q, dispatcher.HandlerFunc[worker.Task](func(ctx context.Context, task worker.Task) {
		metrics.SetScreenshotQueueDepth(p.dispatcher.Pending())
		handler.Handle(ctx, task)
	}), cfg.Workers, logger)
	return p
}

// Start launches the workers. Later calls are no-ops.
func (p *Pool) Start() {
	p.startOnce.Do(func() {
		go func() {
			defer close(p.done)
			p.dispatcher.Run(p.baseCtx)
		}()
		p.logger.Info("screenshot pool started",
			zap.Int("workers", p.cfg.Workers),
			zap.Int("queue_depth", p.cfg.QueueDepth),
		)
	})
}

// Submit enqueues task without waiting for it to run. A full queue that does
// not free up within the enqueue timeout rejects the task with site.ErrQueueFull.
func (p *Pool) Submit(ctx context.Context, task worker.Task) error {
	if task.Submitted.IsZero() {
		task.Submitted = time.Now().UTC()
	}
	enqueueCtx, cancel := context.WithTimeout(ctx, p.cfg.EnqueueTimeout)
	defer cancel()

	err := p.dispatcher.Enqueue(enqueueCtx, task)
	metrics.SetScreenshotQueueDepth(p.dispatcher.Pending())
	switch {
	case err == nil:
		return nil
	case errors.Is(err, queue.ErrClosed):
		metrics.ObserveScreenshot(metrics.ResultDropped)
		return fmt.Errorf("submit screenshot for site %d: %w", task.SiteID, err)
	default:
		metrics.ObserveScreenshot(metrics.ResultDropped)
		p.logger.Warn("screenshot queue full, dropping task",
			zap.Int64("site_id", task.SiteID),
			zap.Int("queue_depth", p.cfg.QueueDepth),
			zap.Error(err),
		)
		return fmt.Errorf("submit screenshot for site %d: %w", task.SiteID, site.ErrQueueFull)
	}
}

// Pending reports queued tasks.
func (p *Pool) Pending() int {
	return p.dispatcher.Pending()
}

// Drain stops intake and waits for queued and in-flight tasks. When ctx ends
// first, running tasks are cancelled and Drain returns ctx's error after the
// workers exit.
func (p *Pool) Drain(ctx context.Context) error {
	p.Start()
	p.dispatcher.Close()
	select {
	case <-p.done:
		p.cancel()
		return nil
	case <-ctx.Done():
		left := p.dispatcher.Pending()
		p.cancel()
		<-p.done
		p.logger.Warn("screenshot pool drain timed out", zap.Int("abandoned", left))
		return fmt.Errorf("drain screenshot pool: %w", ctx.Err())
	}
}
