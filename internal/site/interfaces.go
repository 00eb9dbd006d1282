package site

import (
	"context"
	"iter"
	"time"
)

// ContentSink stores objects under a key. Implementations must be safe for concurrent use.
type ContentSink interface {
	Put(ctx context.Context, key string, body []byte, contentType string, disposition Disposition) error
}

// ImageRenderer turns an HTML document into PNG bytes.
type ImageRenderer interface {
	Render(ctx context.Context, html string) ([]byte, error)
}

// ContentGenerator produces a page as a stream of text chunks.
//
// Chunks may be ranged over once. Artifact is valid only after that sequence
// was exhausted without error.
type ContentGenerator interface {
	Chunks(ctx context.Context, prompt string) iter.Seq2[string, error]
	Artifact() (Artifact, error)
}

// TextStreamer is a request-scoped text generation client.
type TextStreamer interface {
	Stream(ctx context.Context, system, prompt string) iter.Seq2[string, error]
	Close() error
}

// TextProvider hands out TextStreamers.
type TextProvider interface {
	Acquire(ctx context.Context) (TextStreamer, error)
}

// ImageSearcher is a request-scoped image search client.
type ImageSearcher interface {
	Search(ctx context.Context, query string) (Photo, error)
	Close() error
}

// ImageProvider hands out ImageSearchers.
type ImageProvider interface {
	Acquire(ctx context.Context) (ImageSearcher, error)
}

// GeneratorFactory builds a ContentGenerator over acquired clients.
type GeneratorFactory interface {
	NewGenerator(text TextStreamer, images ImageSearcher) ContentGenerator
}

// Repository persists site records.
type Repository interface {
	Create(ctx context.Context, title, prompt string) (Site, error)
	Get(ctx context.Context, id int64) (Site, error)
	List(ctx context.Context) ([]Site, error)
	MarkHTMLStored(ctx context.Context, id int64, title string, at time.Time) error
	MarkScreenshotStored(ctx context.Context, id int64, at time.Time) error
}

// Publisher pushes pipeline events to a topic.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Hasher computes content digests.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock returns the current time.
type Clock interface {
	Now() time.Time
}
