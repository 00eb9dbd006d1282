// Package dispatcher fans queued work out to a fixed set of workers.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/JakeFAU/sitegen/internal/queue"
)

// Handler processes one item. It owns error handling for the item.
type Handler[T any] interface {
	Handle(ctx context.Context, item T)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc[T any] func(ctx context.Context, item T)

// Handle implements Handler.
func (f HandlerFunc[T]) Handle(ctx context.Context, item T) {
	f(ctx, item)
}

// Dispatcher runs workers that pull from a queue.
type Dispatcher[T any] struct {
	queue   queue.Queue[T]
	handler Handler[T]
	workers int
	logger  *zap.Logger
}

// New creates a Dispatcher with the given worker count (minimum 1).
func New[T any](q queue.Queue[T], handler Handler[T], workers int, logger *zap.Logger) *Dispatcher[T] {
	if workers <= 0 {
		workers = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher[T]{
		queue:   q,
		handler: handler,
		workers: workers,
		logger:  logger,
	}
}

// Run starts the workers and blocks until all of them exit, which happens
// when ctx ends or the queue is closed and drained.
func (d *Dispatcher[T]) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for i := range d.workers {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			d.loop(ctx, id)
		}(i)
	}
	wg.Wait()
}

func (d *Dispatcher[T]) loop(ctx context.Context, id int) {
	for {
		item, err := d.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, queue.ErrClosed) {
				return
			}
			d.logger.Error("queue dequeue failed", zap.Int("worker", id), zap.Error(err))
			continue
		}
		d.handler.Handle(ctx, item)
	}
}

// Enqueue proxies to the underlying queue.
func (d *Dispatcher[T]) Enqueue(ctx context.Context, item T) error {
	if err := d.queue.Enqueue(ctx, item); err != nil {
		return fmt.Errorf("queue enqueue: %w", err)
	}
	return nil
}

// Pending reports the number of queued items.
func (d *Dispatcher[T]) Pending() int {
	return d.queue.Len()
}

// Close stops intake; workers exit once the queue drains.
func (d *Dispatcher[T]) Close() {
	d.queue.Close()
}
