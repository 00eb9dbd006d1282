package screenshot

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/sitegen/internal/dispatcher"
	"github.com/JakeFAU/sitegen/internal/queue"
	"github.com/JakeFAU/sitegen/internal/site"
	"github.com/JakeFAU/sitegen/internal/worker"
)

type recordingHandler struct {
	mu    sync.Mutex
	tasks []worker.Task
}

func (h *recordingHandler) Handle(_ context.Context, task worker.Task) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.tasks = append(h.tasks, task)
}

func (h *recordingHandler) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.tasks)
}

func TestPoolRunsSubmittedTasks(t *testing.T) {
	t.Parallel()

	h := &recordingHandler{}
	p := NewPool(h, Config{Workers: 2, QueueDepth: 4}, nil)
	p.Start()

	for i := int64(1); i <= 3; i++ {
		require.NoError(t, p.Submit(context.Background(), worker.Task{SiteID: i, Key: site.ScreenshotKey(i)}))
	}
	require.Eventually(t, func() bool { return h.Len() == 3 }, time.Second, 5*time.Millisecond)
	require.NoError(t, p.Drain(context.Background()))

	for _, task := range h.tasks {
		require.False(t, task.Submitted.IsZero())
	}
}

func TestPoolRejectsWhenFull(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	started := make(chan struct{}, 1)
	blocking := dispatcher.HandlerFunc[worker.Task](func(context.Context, worker.Task) {
		started <- struct{}{}
		<-release
	})
	p := NewPool(blocking, Config{Workers: 1, QueueDepth: 1, EnqueueTimeout: 10 * time.Millisecond}, nil)
	p.Start()

	require.NoError(t, p.Submit(context.Background(), worker.Task{SiteID: 1}))
	<-started
	require.NoError(t, p.Submit(context.Background(), worker.Task{SiteID: 2}))

	err := p.Submit(context.Background(), worker.Task{SiteID: 3})
	require.ErrorIs(t, err, site.ErrQueueFull)

	close(release)
	require.NoError(t, p.Drain(context.Background()))
}

func TestPoolTaskOutlivesSubmitterContext(t *testing.T) {
	t.Parallel()

	var taskErr atomic.Value
	handled := make(chan struct{})
	h := dispatcher.HandlerFunc[worker.Task](func(ctx context.Context, _ worker.Task) {
		time.Sleep(20 * time.Millisecond)
		taskErr.Store(fmt.Sprint(ctx.Err()))
		close(handled)
	})
	p := NewPool(h, Config{Workers: 1, QueueDepth: 1}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, p.Submit(ctx, worker.Task{SiteID: 1}))
	cancel()
	p.Start()

	<-handled
	require.Equal(t, "<nil>", taskErr.Load())
	require.NoError(t, p.Drain(context.Background()))
}

func TestPoolDrainProcessesBacklog(t *testing.T) {
	t.Parallel()

	h := &recordingHandler{}
	p := NewPool(h, Config{Workers: 1, QueueDepth: 8}, nil)
	for i := int64(1); i <= 5; i++ {
		require.NoError(t, p.Submit(context.Background(), worker.Task{SiteID: i}))
	}
	require.Equal(t, 5, p.Pending())

	require.NoError(t, p.Drain(context.Background()))
	require.Equal(t, 5, h.Len())

	err := p.Submit(context.Background(), worker.Task{SiteID: 6})
	require.ErrorIs(t, err, queue.ErrClosed)
}

func TestPoolDrainTimeoutCancelsTasks(t *testing.T) {
	t.Parallel()

	var cancelled atomic.Bool
	started := make(chan struct{}, 1)
	stuck := dispatcher.HandlerFunc[worker.Task](func(ctx context.Context, _ worker.Task) {
		started <- struct{}{}
		<-ctx.Done()
		cancelled.Store(true)
	})
	p := NewPool(stuck, Config{Workers: 1, QueueDepth: 1}, nil)
	p.Start()
	require.NoError(t, p.Submit(context.Background(), worker.Task{SiteID: 1}))
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := p.Drain(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.True(t, cancelled.Load())
}
