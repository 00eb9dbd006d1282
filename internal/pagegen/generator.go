// Package pagegen turns a streamed model response into a finished web page.
package pagegen

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/sitegen/internal/site"
)

// ErrEmptyPage is yielded when the model produced no HTML.
var ErrEmptyPage = errors.New("generated page is empty")

// Options tunes page assembly.
type Options struct {
	SystemPrompt      string
	MaxImages         int
	SearchConcurrency int
	SearchTimeout     time.Duration
}

func (o Options) withDefaults() Options {
	if o.SystemPrompt == "" {
		o.SystemPrompt = DefaultSystemPrompt
	}
	if o.MaxImages <= 0 {
		o.MaxImages = 8
	}
	if o.SearchConcurrency <= 0 {
		o.SearchConcurrency = 4
	}
	if o.SearchTimeout <= 0 {
		o.SearchTimeout = 10 * time.Second
	}
	return o
}

// Generator implements site.ContentGenerator for a single request.
type Generator struct {
	text     site.TextStreamer
	images   site.ImageSearcher
	opts     Options
	logger   *zap.Logger
	consumed atomic.Bool

	mu       sync.Mutex
	artifact *site.Artifact
}

// New builds a Generator. images may be nil to skip placeholder resolution.
func New(text site.TextStreamer, images site.ImageSearcher, opts Options, logger *zap.Logger) *Generator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Generator{
		text:   text,
		images: images,
		opts:   opts.withDefaults(),
		logger: logger,
	}
}

// Chunks streams raw model output. The finished artifact is assembled after
// the last chunk, before the sequence ends.
func (g *Generator) Chunks(ctx context.Context, prompt string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		if !g.consumed.CompareAndSwap(false, true) {
			yield("", site.ErrGeneratorConsumed)
			return
		}
		var buf strings.Builder
		for chunk, err := range g.text.Stream(ctx, g.opts.SystemPrompt, prompt) {
			if err != nil {
				yield("", fmt.Errorf("generate page: %w", err))
				return
			}
			buf.WriteString(chunk)
			if !yield(chunk, nil) {
				return
			}
		}

		html := StripFences(buf.String())
		if strings.TrimSpace(html) == "" {
			yield("", ErrEmptyPage)
			return
		}
		html = g.resolveImages(ctx, html)

		g.mu.Lock()
		g.artifact = &site.Artifact{HTML: html, Title: Title(html)}
		g.mu.Unlock()
	}
}

// Artifact returns the assembled page once Chunks completed.
func (g *Generator) Artifact() (site.Artifact, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.artifact == nil {
		return site.Artifact{}, site.ErrArtifactNotReady
	}
	return *g.artifact, nil
}

// Factory builds Generators with shared options.
type Factory struct {
	opts   Options
	logger *zap.Logger
}

// NewFactory returns a site.GeneratorFactory.
func NewFactory(opts Options, logger *zap.Logger) *Factory {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Factory{opts: opts, logger: logger}
}

// NewGenerator implements site.GeneratorFactory.
func (f *Factory) NewGenerator(text site.TextStreamer, images site.ImageSearcher) site.ContentGenerator {
	return New(text, images, f.opts, f.logger)
}
