package headless

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"
)

func TestNewValidation(t *testing.T) {
	t.Parallel()

	if _, err := New(Config{MaxParallel: -1}); err == nil {
		t.Fatal("expected error for negative max parallel")
	}
	if _, err := New(Config{Width: -5}); err == nil {
		t.Fatal("expected error for negative width")
	}
	r, err := New(Config{MaxParallel: 2})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer r.Close()
	if cap(r.limiter) != 2 {
		t.Fatalf("expected limiter capacity 2, got %d", cap(r.limiter))
	}
}

func TestRendererDefaults(t *testing.T) {
	t.Parallel()

	r := &Renderer{}
	if got := r.timeout(); got != defaultTimeout {
		t.Fatalf("expected default timeout, got %v", got)
	}
	if w, h := r.viewport(); w != defaultWidth || h != defaultHeight {
		t.Fatalf("expected default viewport, got %dx%d", w, h)
	}
	r.cfg = Config{Timeout: time.Second, Width: 640, Height: 480}
	if got := r.timeout(); got != time.Second {
		t.Fatalf("expected override, got %v", got)
	}
	if w, h := r.viewport(); w != 640 || h != 480 {
		t.Fatalf("expected 640x480, got %dx%d", w, h)
	}
}

func TestAcquireSlotHonorsContext(t *testing.T) {
	t.Parallel()

	r := &Renderer{limiter: make(chan struct{}, 1)}
	release, err := r.acquireSlot(context.Background())
	if err != nil {
		t.Fatalf("first acquire failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := r.acquireSlot(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}

	release()
	release2, err := r.acquireSlot(context.Background())
	if err != nil {
		t.Fatalf("acquire after release failed: %v", err)
	}
	release2()
}

func TestForwardCancel(t *testing.T) {
	t.Parallel()

	parent, cancelParent := context.WithCancel(context.Background())
	child, cancelChild := context.WithCancel(context.Background())
	defer cancelChild()

	stop := forwardCancel(parent, cancelChild)
	defer stop()
	cancelParent()

	select {
	case <-child.Done():
	case <-time.After(time.Second):
		t.Fatal("expected child to be canceled")
	}
}

func TestRenderProducesPNG(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping browser test in short mode")
	}
	r, err := New(Config{MaxParallel: 1, Timeout: 10 * time.Second, Width: 320, Height: 240})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer r.Close()

	png, err := r.Render(context.Background(), `<html><body><h1>hello</h1></body></html>`)
	if err != nil {
		t.Skipf("chromedp unavailable: %v", err)
	}
	if !bytes.HasPrefix(png, []byte("\x89PNG")) {
		t.Fatalf("expected PNG signature, got %d bytes", len(png))
	}
}
