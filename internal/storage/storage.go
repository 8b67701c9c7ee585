package storage

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

var ErrNotFound = errors.New("object not found")

// BlobStore is content-addressable file storage: objects are stored under
// their caller-supplied content hash.
type BlobStore interface {
	Put(ctx context.Context, hash string, data []byte) (string, error)
	Get(ctx context.Context, path string) ([]byte, error)
}

// MemoryStore keeps blobs in memory. Used in tests and for local runs
// without a bucket configured.
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{objects: make(map[string][]byte)}
}

func (s *MemoryStore) Put(_ context.Context, hash string, data []byte) (string, error) {
	path := objectName(hash)
	s.mu.Lock()
	defer s.mu.Unlock()
	buf := make([]byte, len(data))
	copy(buf, data)
	s.objects[path] = buf
	return path, nil
}

func (s *MemoryStore) Get(_ context.Context, path string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.objects[path]
	if !ok {
		return nil, ErrNotFound
	}
	return data, nil
}

func objectName(hash string) string {
	return fmt.Sprintf("uploads/%s", hash)
}
