// Package site defines the core types shared across the generation pipeline.
package site

import (
	"fmt"
	"strings"
	"time"
)

// Disposition controls how a stored object is presented when fetched.
type Disposition string

// Disposition values understood by every ContentSink.
const (
	DispositionInline     Disposition = "inline"
	DispositionAttachment Disposition = "attachment"
)

// Content types written by the pipeline.
const (
	ContentTypeHTML = "text/html"
	ContentTypePNG  = "image/png"
)

// Site is the persisted record behind the sites API.
type Site struct {
	ID                 int64      `json:"id"`
	Title              string     `json:"title"`
	Prompt             string     `json:"prompt"`
	HTMLStoredAt       *time.Time `json:"html_stored_at,omitempty"`
	ScreenshotStoredAt *time.Time `json:"screenshot_stored_at,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// HasHTML reports whether generated HTML has been persisted for the site.
func (s Site) HasHTML() bool {
	return s.HTMLStoredAt != nil
}

// HasScreenshot reports whether a screenshot has been persisted for the site.
func (s Site) HasScreenshot() bool {
	return s.ScreenshotStoredAt != nil
}

// GenerationRequest is one request to generate and persist a site.
type GenerationRequest struct {
	SiteID int64
	Prompt string
}

// Validate enforces a positive site ID and a non-empty prompt.
func (r GenerationRequest) Validate() error {
	if r.SiteID <= 0 {
		return fmt.Errorf("%w: site id must be positive", ErrInvalidRequest)
	}
	if strings.TrimSpace(r.Prompt) == "" {
		return fmt.Errorf("%w: prompt is required", ErrInvalidRequest)
	}
	return nil
}

// Artifact is the final output of a completed generation.
type Artifact struct {
	HTML  string
	Title string
}

// Photo is a single image search hit.
type Photo struct {
	URL    string `json:"url"`
	Alt    string `json:"alt"`
	Author string `json:"author"`
}

// HTMLKey returns the storage key for a site's generated HTML.
func HTMLKey(siteID int64) string {
	return fmt.Sprintf("data/index_%d.html", siteID)
}

// ScreenshotKey returns the storage key for a site's screenshot.
func ScreenshotKey(siteID int64) string {
	return fmt.Sprintf("data/screenshot_%d.png", siteID)
}
