// Package storage holds helpers shared by the ContentSink backends.
package storage

import (
	"net/url"
	"strings"
)

// URLBuilder turns storage keys into public URLs.
type URLBuilder struct {
	base string
}

// NewURLBuilder returns a builder rooted at publicBaseURL/bucket.
// An empty bucket means publicBaseURL already points at the bucket root.
func NewURLBuilder(publicBaseURL, bucket string) URLBuilder {
	base := strings.TrimRight(publicBaseURL, "/")
	if bucket != "" {
		base = base + "/" + strings.Trim(bucket, "/")
	}
	return URLBuilder{base: base}
}

// ObjectURL returns the URL for key, or "" when no public base is configured.
func (b URLBuilder) ObjectURL(key string) string {
	if b.base == "" {
		return ""
	}
	return b.base + "/" + strings.TrimLeft(key, "/")
}

// DownloadURL returns ObjectURL with an attachment content-disposition override.
func (b URLBuilder) DownloadURL(key string) string {
	u := b.ObjectURL(key)
	if u == "" {
		return ""
	}
	q := url.Values{}
	q.Set("response-content-disposition", "attachment")
	return u + "?" + q.Encode()
}
