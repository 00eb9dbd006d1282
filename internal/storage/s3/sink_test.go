package s3

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/sitegen/internal/site"
)

type recordedRequest struct {
	Method             string
	Path               string
	ContentType        string
	ContentDisposition string
}

type fakeS3 struct {
	mu       sync.Mutex
	requests []recordedRequest
	status   int
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.requests = append(f.requests, recordedRequest{
		Method:             r.Method,
		Path:               r.URL.Path,
		ContentType:        r.Header.Get("Content-Type"),
		ContentDisposition: r.Header.Get("Content-Disposition"),
	})
	status := f.status
	f.mu.Unlock()
	if status != 0 {
		w.WriteHeader(status)
		return
	}
	w.Header().Set("ETag", `"d41d8cd98f00b204e9800998ecf8427e"`)
	w.WriteHeader(http.StatusOK)
}

func (f *fakeS3) recorded() []recordedRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]recordedRequest, len(f.requests))
	copy(out, f.requests)
	return out
}

func newTestSink(t *testing.T, fake *fakeS3) *Sink {
	t.Helper()
	server := httptest.NewServer(fake)
	t.Cleanup(server.Close)

	sink, err := New(Config{
		Endpoint:  server.URL,
		AccessKey: "minio",
		SecretKey: "minio123",
		Bucket:    "sites",
		Region:    "us-east-1",
	})
	require.NoError(t, err)
	return sink
}

func TestNewValidation(t *testing.T) {
	t.Parallel()

	_, err := New(Config{Bucket: "sites"})
	require.Error(t, err)
	_, err = New(Config{Endpoint: "localhost:9000"})
	require.Error(t, err)
}

func TestSinkPutSendsMetadata(t *testing.T) {
	t.Parallel()

	fake := &fakeS3{}
	sink := newTestSink(t, fake)

	err := sink.Put(context.Background(), site.HTMLKey(42), []byte("<html>ABC</html>"), site.ContentTypeHTML, site.DispositionInline)
	require.NoError(t, err)

	reqs := fake.recorded()
	require.NotEmpty(t, reqs)
	last := reqs[len(reqs)-1]
	require.Equal(t, http.MethodPut, last.Method)
	require.Equal(t, "/sites/data/index_42.html", last.Path)
	require.Equal(t, "text/html", last.ContentType)
	require.Equal(t, "inline", last.ContentDisposition)
}

func TestSinkPutPropagatesFailure(t *testing.T) {
	t.Parallel()

	fake := &fakeS3{status: http.StatusForbidden}
	sink := newTestSink(t, fake)

	err := sink.Put(context.Background(), site.ScreenshotKey(1), []byte("png"), site.ContentTypePNG, site.DispositionInline)
	require.Error(t, err)
}

func TestEnsureBucketExisting(t *testing.T) {
	t.Parallel()

	fake := &fakeS3{}
	sink := newTestSink(t, fake)

	require.NoError(t, sink.EnsureBucket(context.Background()))
	reqs := fake.recorded()
	require.Len(t, reqs, 1)
	require.Equal(t, http.MethodHead, reqs[0].Method)
}

func TestNormalizeEndpoint(t *testing.T) {
	t.Parallel()

	host, secure := normalizeEndpoint("https://s3.example.com/", false)
	require.Equal(t, "s3.example.com", host)
	require.True(t, secure)

	host, secure = normalizeEndpoint("http://localhost:9000", true)
	require.Equal(t, "localhost:9000", host)
	require.False(t, secure)

	host, secure = normalizeEndpoint("minio:9000", true)
	require.Equal(t, "minio:9000", host)
	require.True(t, secure)
}
