// Package imagesearch holds shared pieces of the image search backends.
package imagesearch

import (
	"context"
	"errors"

	"github.com/JakeFAU/sitegen/internal/site"
)

// ErrDisabled is returned by the Disabled searcher.
var ErrDisabled = errors.New("image search disabled")

// Disabled is an ImageProvider used when no search backend is configured.
type Disabled struct{}

// Acquire returns a searcher that never finds anything.
func (Disabled) Acquire(context.Context) (site.ImageSearcher, error) {
	return disabledSearcher{}, nil
}

type disabledSearcher struct{}

func (disabledSearcher) Search(context.Context, string) (site.Photo, error) {
	return site.Photo{}, ErrDisabled
}

func (disabledSearcher) Close() error { return nil }
