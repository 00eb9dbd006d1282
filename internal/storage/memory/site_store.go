package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/JakeFAU/sitegen/internal/site"
)

// SiteStore is an in-memory site.Repository with sequential IDs.
type SiteStore struct {
	mu     sync.RWMutex
	nextID int64
	sites  map[int64]site.Site
	now    func() time.Time
}

// NewSiteStore constructs an empty SiteStore.
func NewSiteStore() *SiteStore {
	return &SiteStore{
		sites: make(map[int64]site.Site),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// Create inserts a new site and assigns the next ID.
func (s *SiteStore) Create(_ context.Context, title, prompt string) (site.Site, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	now := s.now()
	rec := site.Site{
		ID:        s.nextID,
		Title:     title,
		Prompt:    prompt,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.sites[rec.ID] = rec
	return rec, nil
}

// Get fetches a site by ID.
func (s *SiteStore) Get(_ context.Context, id int64) (site.Site, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.sites[id]
	if !ok {
		return site.Site{}, site.ErrNotFound
	}
	return rec, nil
}

// List returns all sites ordered by ID.
func (s *SiteStore) List(_ context.Context) ([]site.Site, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]site.Site, 0, len(s.sites))
	for _, rec := range s.sites {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// MarkHTMLStored records the HTML upload time and fills in an empty title.
func (s *SiteStore) MarkHTMLStored(_ context.Context, id int64, title string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.sites[id]
	if !ok {
		return site.ErrNotFound
	}
	if rec.Title == "" {
		rec.Title = title
	}
	rec.HTMLStoredAt = pointerTime(at)
	rec.UpdatedAt = at
	s.sites[id] = rec
	return nil
}

// MarkScreenshotStored records the screenshot upload time.
func (s *SiteStore) MarkScreenshotStored(_ context.Context, id int64, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.sites[id]
	if !ok {
		return site.ErrNotFound
	}
	rec.ScreenshotStoredAt = pointerTime(at)
	rec.UpdatedAt = at
	s.sites[id] = rec
	return nil
}

func pointerTime(t time.Time) *time.Time {
	return &t
}
