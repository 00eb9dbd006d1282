// Package memory keeps sites and stored objects in-process for development and tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/JakeFAU/sitegen/internal/site"
)

// Object is one stored value together with its metadata.
type Object struct {
	Body        []byte
	ContentType string
	Disposition site.Disposition
	Writes      int
}

// Sink stores objects in a map.
type Sink struct {
	mu      sync.RWMutex
	objects map[string]Object
}

// NewSink creates an empty in-memory sink.
func NewSink() *Sink {
	return &Sink{objects: make(map[string]Object)}
}

// Put stores a copy of body under key.
func (s *Sink) Put(_ context.Context, key string, body []byte, contentType string, disposition site.Disposition) error {
	if key == "" {
		return fmt.Errorf("key is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	prev := s.objects[key]
	s.objects[key] = Object{
		Body:        append([]byte(nil), body...),
		ContentType: contentType,
		Disposition: disposition,
		Writes:      prev.Writes + 1,
	}
	return nil
}

// Get returns a copy of the object stored under key.
func (s *Sink) Get(key string) (Object, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	obj, ok := s.objects[key]
	if !ok {
		return Object{}, false
	}
	obj.Body = append([]byte(nil), obj.Body...)
	return obj, true
}

// Keys lists stored keys in sorted order.
func (s *Sink) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.objects))
	for k := range s.objects {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
