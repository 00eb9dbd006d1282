// Package renderer holds the screenshot backends and their shared pieces.
package renderer

import (
	"context"
	"errors"
)

// ErrDisabled indicates rendering has been disabled via configuration.
var ErrDisabled = errors.New("renderer disabled")

// Disabled is an ImageRenderer that always fails with ErrDisabled.
type Disabled struct{}

// Render returns ErrDisabled.
func (Disabled) Render(_ context.Context, _ string) ([]byte, error) {
	return nil, ErrDisabled
}
