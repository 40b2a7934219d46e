// Package store persists phase artifacts, the per-phase cache table and
// run manifests so unchanged phases can be skipped on the next run.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cespare/xxhash/v2"
)

// ErrChecksumMismatch is returned when stored artifact bytes no longer
// match their recorded checksum.
var ErrChecksumMismatch = errors.New("artifact checksum mismatch")

// Store is the interface for persisting pipeline state.
type Store interface {
	Close() error

	// Cache entries, one per phase
	GetCacheEntry(ctx context.Context, phase string) (CacheEntry, bool, error)
	PutCacheEntry(ctx context.Context, e CacheEntry) error
	// InvalidateCache drops the entry for phase, or every entry when
	// phase is empty. Artifacts are kept.
	InvalidateCache(ctx context.Context, phase string) error

	// Artifacts, content-addressed by key
	PutArtifact(ctx context.Context, a Artifact) error
	GetArtifact(ctx context.Context, key string) (Artifact, bool, error)

	// Manifests, one per run
	PutManifest(ctx context.Context, runID string, data []byte) error
	GetManifest(ctx context.Context, runID string) ([]byte, bool, error)
}

// CacheEntry records the input a phase last completed with.
type CacheEntry struct {
	Phase       string
	InputHash   string
	ArtifactKey string
	RunID       string
	Records     int
	CreatedAt   time.Time
}

// Artifact is the encoded output of one phase.
type Artifact struct {
	Key       string
	Phase     string
	Checksum  uint64 // xxhash64 of Data
	Records   int
	Data      []byte
	CreatedAt time.Time
}

// NewArtifact builds an artifact and stamps its checksum.
func NewArtifact(key, phase string, records int, data []byte) Artifact {
	return Artifact{
		Key:      key,
		Phase:    phase,
		Checksum: Checksum(data),
		Records:  records,
		Data:     data,
	}
}

// Checksum returns the xxhash64 of data.
func Checksum(data []byte) uint64 {
	return xxhash.Sum64(data)
}

// Verify checks the data against the recorded checksum.
func (a Artifact) Verify() error {
	if got := Checksum(a.Data); got != a.Checksum {
		return fmt.Errorf("%w: %s: have %016x, want %016x", ErrChecksumMismatch, a.Key, got, a.Checksum)
	}
	return nil
}
