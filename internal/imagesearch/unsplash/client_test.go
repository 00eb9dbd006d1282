package unsplash

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestProvider(t *testing.T, handler http.HandlerFunc) *Provider {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	p, err := NewProvider(Config{BaseURL: srv.URL, AccessKey: "key"}, srv.Client(), nil)
	require.NoError(t, err)
	return p
}

func TestNewProviderRequiresKey(t *testing.T) {
	t.Parallel()

	_, err := NewProvider(Config{}, nil, nil)
	require.Error(t, err)
}

func TestSearchReturnsFirstHit(t *testing.T) {
	t.Parallel()

	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/search/photos", r.URL.Path)
		assert.Equal(t, "fresh bread", r.URL.Query().Get("query"))
		assert.Equal(t, "Client-ID key", r.Header.Get("Authorization"))
		fmt.Fprint(w, `{"results":[{"id":"p1","alt_description":"loaf","urls":{"regular":"https://img/p1"},"user":{"name":"Ann"}}]}`)
	})
	client, err := p.Acquire(context.Background())
	require.NoError(t, err)

	photo, err := client.Search(context.Background(), " fresh bread ")
	require.NoError(t, err)
	require.Equal(t, "https://img/p1", photo.URL)
	require.Equal(t, "loaf", photo.Alt)
	require.Equal(t, "Ann", photo.Author)
}

func TestSearchNoResults(t *testing.T) {
	t.Parallel()

	p := newTestProvider(t, func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"results":[]}`)
	})
	_, err := acquireClient(t, p).Search(context.Background(), "nothing")
	require.True(t, errors.Is(err, ErrNoResults))
}

func TestSearchHTTPError(t *testing.T) {
	t.Parallel()

	p := newTestProvider(t, func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "rate limited", http.StatusForbidden)
	})
	_, err := acquireClient(t, p).Search(context.Background(), "bread")
	require.Error(t, err)
	require.Contains(t, err.Error(), "403")
}

func TestSearchRateLimitHonorsContext(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		fmt.Fprint(w, `{"results":[{"id":"p","urls":{"regular":"u"}}]}`)
	}))
	defer srv.Close()

	p, err := NewProvider(Config{BaseURL: srv.URL, AccessKey: "key", RequestsPerSecond: 0.001, Burst: 1}, srv.Client(), nil)
	require.NoError(t, err)
	client := acquireClient(t, p)

	_, err = client.Search(context.Background(), "first")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = client.Search(ctx, "second")
	require.Error(t, err)
	require.Equal(t, int32(1), calls.Load())
}

func TestClosedClient(t *testing.T) {
	t.Parallel()

	p := newTestProvider(t, func(http.ResponseWriter, *http.Request) {})
	client := acquireClient(t, p)
	require.NoError(t, client.Close())
	_, err := client.Search(context.Background(), "bread")
	require.True(t, errors.Is(err, ErrClientClosed))
}

func acquireClient(t *testing.T, p *Provider) *Client {
	t.Helper()
	acquired, err := p.Acquire(context.Background())
	require.NoError(t, err)
	client, ok := acquired.(*Client)
	require.True(t, ok)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestAcquireHonorsCancelledContext(t *testing.T) {
	t.Parallel()

	p := newTestProvider(t, func(http.ResponseWriter, *http.Request) {})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.Acquire(ctx)
	require.ErrorIs(t, err, context.Canceled)
}

func TestCloseAbortsInFlightSearch(t *testing.T) {
	t.Parallel()

	started := make(chan struct{})
	p := newTestProvider(t, func(_ http.ResponseWriter, r *http.Request) {
		close(started)
		<-r.Context().Done()
	})
	client := acquireClient(t, p)

	errCh := make(chan error, 1)
	go func() {
		_, err := client.Search(context.Background(), "bread")
		errCh <- err
	}()
	<-started
	require.NoError(t, client.Close())

	select {
	case err := <-errCh:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("search was not aborted by Close")
	}
}
