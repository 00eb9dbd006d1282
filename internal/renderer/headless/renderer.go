// Package headless renders HTML documents to PNG with headless Chrome.
package headless

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
)

const (
	defaultTimeout = 45 * time.Second
	defaultWidth   = 1280
	defaultHeight  = 800
)

// Config controls the behavior of the headless renderer.
type Config struct {
	MaxParallel int
	Timeout     time.Duration
	Width       int
	Height      int
	// Settle is how long to wait after the document loads before capturing.
	Settle time.Duration
	// ExecPath overrides the Chrome binary chromedp launches.
	ExecPath string
}

// Renderer implements site.ImageRenderer using chromedp. A single browser is
// launched on first use and each render runs in its own tab.
type Renderer struct {
	cfg           Config
	limiter       chan struct{}
	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc

	startOnce sync.Once
	startErr  error
}

// New creates a renderer. Chrome is not started until the first Render.
func New(cfg Config) (*Renderer, error) {
	if cfg.MaxParallel < 0 {
		return nil, fmt.Errorf("max parallel must be >= 0")
	}
	if cfg.Width < 0 || cfg.Height < 0 {
		return nil, fmt.Errorf("viewport dimensions must be >= 0")
	}
	var limiter chan struct{}
	if cfg.MaxParallel > 0 {
		limiter = make(chan struct{}, cfg.MaxParallel)
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", "new"),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("enable-automation", false),
	)
	if cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
	}
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	return &Renderer{
		cfg:           cfg,
		limiter:       limiter,
		allocCancel:   allocCancel,
		browserCtx:    browserCtx,
		browserCancel: browserCancel,
	}, nil
}

// Close tears down the browser and allocator.
func (r *Renderer) Close() {
	if r == nil {
		return
	}
	r.browserCancel()
	r.allocCancel()
}

// Render loads html into a blank tab and captures the viewport as PNG.
func (r *Renderer) Render(ctx context.Context, html string) ([]byte, error) {
	if err := r.start(); err != nil {
		return nil, err
	}
	release, err := r.acquireSlot(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	tabCtx, cancelTab := chromedp.NewContext(r.browserCtx)
	defer cancelTab()

	taskCtx, cancelTask := context.WithTimeout(tabCtx, r.timeout())
	defer cancelTask()

	stopForward := forwardCancel(ctx, cancelTask)
	defer stopForward()

	width, height := r.viewport()
	var buf []byte
	tasks := chromedp.Tasks{
		chromedp.EmulateViewport(int64(width), int64(height)),
		chromedp.Navigate("about:blank"),
		setDocument(html),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(r.cfg.Settle),
		chromedp.CaptureScreenshot(&buf),
	}
	if err := chromedp.Run(taskCtx, tasks); err != nil {
		return nil, fmt.Errorf("chromedp screenshot: %w", err)
	}
	return buf, nil
}

func (r *Renderer) start() error {
	r.startOnce.Do(func() {
		if err := chromedp.Run(r.browserCtx); err != nil {
			r.startErr = fmt.Errorf("chromedp warmup: %w", err)
		}
	})
	return r.startErr
}

func setDocument(html string) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		tree, err := page.GetFrameTree().Do(ctx)
		if err != nil {
			return fmt.Errorf("get frame tree: %w", err)
		}
		if err := page.SetDocumentContent(tree.Frame.ID, html).Do(ctx); err != nil {
			return fmt.Errorf("set document content: %w", err)
		}
		return nil
	})
}

func (r *Renderer) acquireSlot(ctx context.Context) (func(), error) {
	if r.limiter == nil {
		return func() {}, nil
	}
	select {
	case r.limiter <- struct{}{}:
		return func() { <-r.limiter }, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("acquire render slot: %w", ctx.Err())
	}
}

func (r *Renderer) timeout() time.Duration {
	if r.cfg.Timeout > 0 {
		return r.cfg.Timeout
	}
	return defaultTimeout
}

func (r *Renderer) viewport() (int, int) {
	w, h := r.cfg.Width, r.cfg.Height
	if w == 0 {
		w = defaultWidth
	}
	if h == 0 {
		h = defaultHeight
	}
	return w, h
}

func forwardCancel(parent context.Context, cancel context.CancelFunc) func() {
	if parent == nil {
		return func() {}
	}
	done := make(chan struct{})
	go func() {
		select {
		case <-parent.Done():
			cancel()
		case <-done:
		}
	}()
	return func() { close(done) }
}
