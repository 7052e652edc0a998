package persistence

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

// MemoryStore is a process-local StateStore.
type MemoryStore struct {
	mu   sync.RWMutex
	docs map[string]Document
	now  func() time.Time
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return NewMemoryStoreWithClock(nil)
}

// NewMemoryStoreWithClock constructs a MemoryStore stamping documents with now.
func NewMemoryStoreWithClock(now func() time.Time) *MemoryStore {
	if now == nil {
		now = time.Now
	}
	return &MemoryStore{docs: make(map[string]Document), now: now}
}

// Load returns a copy of the stored document.
func (s *MemoryStore) Load(_ context.Context, namespace string) (Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, ok := s.docs[namespace]
	if !ok {
		return Document{}, ErrNotFound
	}
	return doc.Clone(), nil
}

// Save stores a copy of data unless the digest matches the stored document.
func (s *MemoryStore) Save(_ context.Context, namespace string, data []byte) (bool, error) {
	if !ValidNamespace(namespace) {
		return false, ErrInvalidNamespace
	}
	digest := Digest(data)

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.docs[namespace]; ok && existing.Digest == digest {
		return false, nil
	}
	s.docs[namespace] = Document{
		Namespace: namespace,
		Data:      append([]byte(nil), data...),
		Digest:    digest,
		UpdatedAt: s.now().UTC(),
	}
	return true, nil
}

// Delete removes a document.
func (s *MemoryStore) Delete(_ context.Context, namespace string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.docs, namespace)
	return nil
}

// List returns the stored namespaces beginning with prefix.
func (s *MemoryStore) List(_ context.Context, prefix string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	namespaces := make([]string, 0)
	for namespace := range s.docs {
		if strings.HasPrefix(namespace, prefix) {
			namespaces = append(namespaces, namespace)
		}
	}
	sort.Strings(namespaces)
	return namespaces, nil
}

var _ StateStore = (*MemoryStore)(nil)
