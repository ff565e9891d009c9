package ledger

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	dErrors "formalitys/pkg/domain-errors"
)

// ObjectStorage stores raw document bytes. The ledger keeps only metadata; the
// blob lives behind this port so deployments can point it at any bucket.
type ObjectStorage interface {
	Put(ctx context.Context, key string, mimetype string, body io.Reader) (url string, err error)
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	SignURL(ctx context.Context, key string, ttl time.Duration) (string, error)
	Delete(ctx context.Context, key string) error
}

// InMemoryStorage backs tests and single-node runs.
type InMemoryStorage struct {
	mu    sync.RWMutex
	blobs map[string][]byte
}

func NewInMemoryStorage() *InMemoryStorage {
	return &InMemoryStorage{blobs: make(map[string][]byte)}
}

func (s *InMemoryStorage) Put(_ context.Context, key string, _ string, body io.Reader) (string, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return "", fmt.Errorf("read document body: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blobs[key] = data
	return "memory://" + key, nil
}

func (s *InMemoryStorage) Get(_ context.Context, key string) (io.ReadCloser, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.blobs[key]
	if !ok {
		return nil, dErrors.New(dErrors.CodeNotFound, "document not found: "+key)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (s *InMemoryStorage) SignURL(_ context.Context, key string, _ time.Duration) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.blobs[key]; !ok {
		return "", dErrors.New(dErrors.CodeNotFound, "document not found: "+key)
	}
	return "memory://" + key, nil
}

func (s *InMemoryStorage) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.blobs, key)
	return nil
}
