// Package queue defines the work queue abstraction used by background runners.
package queue

import (
	"context"
	"errors"
)

// ErrClosed is returned by Dequeue once a closed queue has been drained and
// by Enqueue after Close.
var ErrClosed = errors.New("queue closed")

// Queue is a FIFO of work items. Implementations must be safe for concurrent use.
type Queue[T any] interface {
	Enqueue(ctx context.Context, item T) error
	Dequeue(ctx context.Context) (T, error)
	Len() int
	Close()
}
