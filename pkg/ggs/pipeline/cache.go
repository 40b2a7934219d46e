package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/charmbracelet/log"

	"github.com/cognicore/ggs/internal/logging"
	"github.com/cognicore/ggs/pkg/ggs/store"
)

// CacheStatus is how a phase was satisfied.
type CacheStatus string

const (
	// CacheHit means the stored artifact was reused.
	CacheHit CacheStatus = "hit"
	// CacheMiss means no entry matched the phase input.
	CacheMiss CacheStatus = "miss"
	// CacheStale means an entry matched but its artifact was missing or
	// failed verification.
	CacheStale CacheStatus = "stale"
	// CacheForced means the lookup was skipped on request.
	CacheForced CacheStatus = "forced"
)

// HashKey derives an input hash from its parts. Parts are separated by a
// NUL so ("ab","c") and ("a","bc") differ.
func HashKey(parts ...string) string {
	h := sha256.New()
	for _, p := range parts {
		h.Write([]byte(p))
		h.Write([]byte{0})
	}
	return "sha256:" + hex.EncodeToString(h.Sum(nil))
}

// ContentHash returns the SHA-256 of data.
func ContentHash(data []byte) string {
	sum := sha256.Sum256(data)
	return "sha256:" + hex.EncodeToString(sum[:])
}

// ArtifactKey is the content address of a phase artifact.
func ArtifactKey(phase string, data []byte) string {
	return phase + "/" + ContentHash(data)
}

// Cache decides whether a phase can reuse a stored artifact.
type Cache struct {
	store  store.Store
	force  bool
	logger *log.Logger
	now    func() time.Time
}

// NewCache wraps a store. With force set every lookup misses.
func NewCache(s store.Store, force bool, logger *log.Logger) *Cache {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Cache{store: s, force: force, logger: logger, now: time.Now}
}

// Lookup returns the artifact bytes recorded for phase when its cache
// entry was written for inputHash and the artifact verifies.
func (c *Cache) Lookup(ctx context.Context, phase, inputHash string) ([]byte, CacheStatus, error) {
	if c.force {
		return nil, CacheForced, nil
	}
	entry, ok, err := c.store.GetCacheEntry(ctx, phase)
	if err != nil {
		return nil, CacheMiss, fmt.Errorf("cache entry %s: %w", phase, err)
	}
	if !ok || entry.InputHash != inputHash {
		return nil, CacheMiss, nil
	}
	art, ok, err := c.store.GetArtifact(ctx, entry.ArtifactKey)
	if err != nil {
		return nil, CacheMiss, fmt.Errorf("artifact %s: %w", entry.ArtifactKey, err)
	}
	if !ok {
		c.logger.Warn("cached artifact missing", "phase", phase, "key", entry.ArtifactKey)
		return nil, CacheStale, nil
	}
	if err := art.Verify(); err != nil {
		c.logger.Warn("cached artifact rejected", "phase", phase, "err", err)
		return nil, CacheStale, nil
	}
	return art.Data, CacheHit, nil
}

// Save stores data as the artifact of phase and points the phase's cache
// entry at it. Artifacts are keyed by content, so an unchanged output is
// stored once. It returns the artifact key.
func (c *Cache) Save(ctx context.Context, phase, inputHash, runID string, records int, data []byte) (string, error) {
	key := ArtifactKey(phase, data)
	now := c.now().UTC()

	art := store.NewArtifact(key, phase, records, data)
	art.CreatedAt = now
	if err := c.store.PutArtifact(ctx, art); err != nil {
		return "", fmt.Errorf("store artifact %s: %w", key, err)
	}
	entry := store.CacheEntry{
		Phase:       phase,
		InputHash:   inputHash,
		ArtifactKey: key,
		RunID:       runID,
		Records:     records,
		CreatedAt:   now,
	}
	if err := c.store.PutCacheEntry(ctx, entry); err != nil {
		return "", fmt.Errorf("store cache entry %s: %w", phase, err)
	}
	return key, nil
}
