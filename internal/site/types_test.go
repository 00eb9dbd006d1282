package site

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestStorageKeys(t *testing.T) {
	t.Parallel()

	require.Equal(t, "data/index_42.html", HTMLKey(42))
	require.Equal(t, "data/screenshot_42.png", ScreenshotKey(42))
}

func TestGenerationRequestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		req     GenerationRequest
		wantErr bool
	}{
		{name: "valid", req: GenerationRequest{SiteID: 1, Prompt: "bakery"}},
		{name: "zero id", req: GenerationRequest{SiteID: 0, Prompt: "bakery"}, wantErr: true},
		{name: "negative id", req: GenerationRequest{SiteID: -3, Prompt: "bakery"}, wantErr: true},
		{name: "blank prompt", req: GenerationRequest{SiteID: 1, Prompt: "   "}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.req.Validate()
			if !tt.wantErr {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			require.True(t, errors.Is(err, ErrInvalidRequest))
		})
	}
}

func TestSiteStoredFlags(t *testing.T) {
	t.Parallel()

	var s Site
	require.False(t, s.HasHTML())
	require.False(t, s.HasScreenshot())

	now := time.Now()
	s.HTMLStoredAt = &now
	require.True(t, s.HasHTML())
	require.False(t, s.HasScreenshot())
}
