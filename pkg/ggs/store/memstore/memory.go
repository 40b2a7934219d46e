package memstore

import (
	"context"
	"sync"
	"time"

	"github.com/cognicore/ggs/pkg/ggs/store"
)

// Store is an in-memory implementation of store.Store for tests and
// one-shot runs.
type Store struct {
	mu        sync.RWMutex
	entries   map[string]store.CacheEntry
	artifacts map[string]store.Artifact
	manifests map[string][]byte
}

// New creates a new in-memory store.
func New() *Store {
	return &Store{
		entries:   make(map[string]store.CacheEntry),
		artifacts: make(map[string]store.Artifact),
		manifests: make(map[string][]byte),
	}
}

// Close implements store.Store.
func (s *Store) Close() error { return nil }

// GetCacheEntry implements store.Store.
func (s *Store) GetCacheEntry(ctx context.Context, phase string) (store.CacheEntry, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[phase]
	return e, ok, nil
}

// PutCacheEntry implements store.Store.
func (s *Store) PutCacheEntry(ctx context.Context, e store.CacheEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	s.entries[e.Phase] = e
	return nil
}

// InvalidateCache implements store.Store.
func (s *Store) InvalidateCache(ctx context.Context, phase string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if phase == "" {
		s.entries = make(map[string]store.CacheEntry)
		return nil
	}
	delete(s.entries, phase)
	return nil
}

// PutArtifact implements store.Store. The data is copied.
func (s *Store) PutArtifact(ctx context.Context, a store.Artifact) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a.Data = append([]byte(nil), a.Data...)
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	s.artifacts[a.Key] = a
	return nil
}

// GetArtifact implements store.Store.
func (s *Store) GetArtifact(ctx context.Context, key string) (store.Artifact, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.artifacts[key]
	if !ok {
		return store.Artifact{}, false, nil
	}
	a.Data = append([]byte(nil), a.Data...)
	return a, true, nil
}

// Corrupt flips a byte of a stored artifact without updating its
// checksum. Tests use it to exercise checksum verification.
func (s *Store) Corrupt(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.artifacts[key]
	if !ok || len(a.Data) == 0 {
		return false
	}
	a.Data = append([]byte(nil), a.Data...)
	a.Data[0] ^= 0xff
	s.artifacts[key] = a
	return true
}

// PutManifest implements store.Store.
func (s *Store) PutManifest(ctx context.Context, runID string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.manifests[runID] = append([]byte(nil), data...)
	return nil
}

// GetManifest implements store.Store.
func (s *Store) GetManifest(ctx context.Context, runID string) ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.manifests[runID]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), m...), true, nil
}

var _ store.Store = (*Store)(nil)
