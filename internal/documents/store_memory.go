package documents

import (
	"context"
	"fmt"
	"io"
	"sync"
)

// InMemory keeps blobs in a map; used in tests and when no bucket is configured.
type InMemory struct {
	mu      sync.RWMutex
	baseURL string
	objects map[string][]byte
	types   map[string]string
}

func NewInMemory(baseURL string) *InMemory {
	return &InMemory{
		baseURL: baseURL,
		objects: make(map[string][]byte),
		types:   make(map[string]string),
	}
}

func (s *InMemory) Put(_ context.Context, path string, body io.Reader, _ int64, contentType string) (string, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return "", fmt.Errorf("read object %s: %w", path, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[path] = data
	s.types[path] = contentType
	return s.PublicURL(path), nil
}

func (s *InMemory) PublicURL(path string) string {
	return s.baseURL + "/" + path
}

// Object returns a stored blob and its content type.
func (s *InMemory) Object(path string) ([]byte, string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.objects[path]
	return data, s.types[path], ok
}
