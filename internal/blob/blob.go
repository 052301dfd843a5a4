// Package blob defines the object-storage and text-extraction
// collaborator contracts. The core never inspects blob contents; only
// file-metadata records cross into the entity model.
package blob

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Store is the opaque object store the service uploads file bytes to.
type Store interface {
	// Put stores the bytes under key and returns a stable URL.
	Put(ctx context.Context, data []byte, key, contentType string) (string, error)
	// Delete removes the object under key. Absence is not an error.
	Delete(ctx context.Context, key string) error
	// PresignUpload returns a URL a client can PUT the object to directly.
	PresignUpload(ctx context.Context, key, contentType string, ttl time.Duration) (string, error)
	// PresignDownload returns a URL a client can GET the object from.
	PresignDownload(ctx context.Context, key string, ttl time.Duration) (string, error)
}

// Extraction is the result of running optical text extraction over an
// uploaded document. Fields are merged into the document's metadata
// without further validation.
type Extraction struct {
	RawText string
	Fields  map[string]string
}

// Extractor is the opaque text-extraction collaborator.
type Extractor interface {
	Extract(ctx context.Context, key string) (*Extraction, error)
}

// MemoryStore is an in-process Store used in development mode and tests.
type MemoryStore struct {
	bucket string

	mu      sync.RWMutex
	objects map[string][]byte
}

// NewMemoryStore returns an empty in-memory object store.
func NewMemoryStore(bucket string) *MemoryStore {
	return &MemoryStore{
		bucket:  bucket,
		objects: make(map[string][]byte),
	}
}

func (m *MemoryStore) Put(ctx context.Context, data []byte, key, contentType string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = append([]byte(nil), data...)
	return m.url(key), nil
}

func (m *MemoryStore) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	return nil
}

func (m *MemoryStore) PresignUpload(ctx context.Context, key, contentType string, ttl time.Duration) (string, error) {
	return m.url(key) + fmt.Sprintf("?upload=1&expires=%d", time.Now().Add(ttl).Unix()), nil
}

func (m *MemoryStore) PresignDownload(ctx context.Context, key string, ttl time.Duration) (string, error) {
	return m.url(key) + fmt.Sprintf("?expires=%d", time.Now().Add(ttl).Unix()), nil
}

// Get reads an object back; test helper.
func (m *MemoryStore) Get(key string) ([]byte, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.objects[key]
	return data, ok
}

func (m *MemoryStore) url(key string) string {
	return fmt.Sprintf("memory://%s/%s", m.bucket, key)
}

// NopExtractor is an Extractor that extracts nothing; used when no
// extraction backend is configured.
type NopExtractor struct{}

func (NopExtractor) Extract(ctx context.Context, key string) (*Extraction, error) {
	return &Extraction{Fields: map[string]string{}}, nil
}
