package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/cognicore/ggs/pkg/ggs/internalerr"
	"github.com/cognicore/ggs/pkg/ggs/store"
)

// sqliteStore implements the Store interface using SQLite
type sqliteStore struct {
	db *sql.DB
}

// OpenSQLite opens a SQLite database with WAL mode enabled.
func OpenSQLite(ctx context.Context, path string) (store.Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", internalerr.ErrStoreUnavailable, err)
	}

	// Enable WAL mode for better concurrency
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: %v", internalerr.ErrStoreUnavailable, err)
	}

	// Initialize schema
	if err := initSchema(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: init schema: %v", internalerr.ErrStoreUnavailable, err)
	}

	return &sqliteStore{db: db}, nil
}

// Close closes the database connection
func (s *sqliteStore) Close() error {
	return s.db.Close()
}

// initSchema creates tables if they don't exist
func initSchema(ctx context.Context, db *sql.DB) error {
	schema := `
CREATE TABLE IF NOT EXISTS cache_entries (
	phase TEXT PRIMARY KEY,
	input_hash TEXT NOT NULL,
	artifact_key TEXT NOT NULL,
	run_id TEXT,
	records INTEGER NOT NULL DEFAULT 0,
	created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS artifacts (
	key TEXT PRIMARY KEY,
	phase TEXT NOT NULL,
	checksum INTEGER NOT NULL,
	records INTEGER NOT NULL DEFAULT 0,
	data BLOB NOT NULL,
	created_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_artifacts_phase ON artifacts(phase);

CREATE TABLE IF NOT EXISTS manifests (
	run_id TEXT PRIMARY KEY,
	data BLOB NOT NULL,
	created_at TEXT NOT NULL
);
`

	_, err := db.ExecContext(ctx, schema)
	return err
}

// GetCacheEntry returns the cache entry for a phase
func (s *sqliteStore) GetCacheEntry(ctx context.Context, phase string) (store.CacheEntry, bool, error) {
	var (
		e       store.CacheEntry
		runID   sql.NullString
		created string
	)
	err := s.db.QueryRowContext(ctx, `
SELECT phase, input_hash, artifact_key, run_id, records, created_at
FROM cache_entries WHERE phase = ?`, phase).Scan(&e.Phase, &e.InputHash, &e.ArtifactKey, &runID, &e.Records, &created)
	if err == sql.ErrNoRows {
		return store.CacheEntry{}, false, nil
	}
	if err != nil {
		return store.CacheEntry{}, false, err
	}
	e.RunID = runID.String
	e.CreatedAt = parseTime(created)
	return e, true, nil
}

// PutCacheEntry inserts or replaces the cache entry for a phase
func (s *sqliteStore) PutCacheEntry(ctx context.Context, e store.CacheEntry) error {
	const stmt = `
INSERT INTO cache_entries (phase, input_hash, artifact_key, run_id, records, created_at)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT(phase) DO UPDATE SET
	input_hash=excluded.input_hash,
	artifact_key=excluded.artifact_key,
	run_id=excluded.run_id,
	records=excluded.records,
	created_at=excluded.created_at;
`
	_, err := s.db.ExecContext(ctx, stmt, e.Phase, e.InputHash, e.ArtifactKey, e.RunID, e.Records, formatTime(e.CreatedAt))
	return err
}

// InvalidateCache removes the entry for phase, or all entries
func (s *sqliteStore) InvalidateCache(ctx context.Context, phase string) error {
	if phase == "" {
		_, err := s.db.ExecContext(ctx, `DELETE FROM cache_entries`)
		return err
	}
	_, err := s.db.ExecContext(ctx, `DELETE FROM cache_entries WHERE phase = ?`, phase)
	return err
}

// PutArtifact stores an artifact. Keys are content addresses, so an
// existing key is overwritten with identical content.
func (s *sqliteStore) PutArtifact(ctx context.Context, a store.Artifact) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	const stmt = `
INSERT INTO artifacts (key, phase, checksum, records, data, created_at)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT(key) DO UPDATE SET
	phase=excluded.phase,
	checksum=excluded.checksum,
	records=excluded.records,
	data=excluded.data,
	created_at=excluded.created_at;
`
	// uint64 is stored bit-for-bit in SQLite's signed INTEGER.
	if _, err := tx.ExecContext(ctx, stmt, a.Key, a.Phase, int64(a.Checksum), a.Records, a.Data, formatTime(a.CreatedAt)); err != nil {
		return err
	}
	return tx.Commit()
}

// GetArtifact loads an artifact by key
func (s *sqliteStore) GetArtifact(ctx context.Context, key string) (store.Artifact, bool, error) {
	var (
		a        store.Artifact
		checksum int64
		created  string
	)
	err := s.db.QueryRowContext(ctx, `
SELECT key, phase, checksum, records, data, created_at
FROM artifacts WHERE key = ?`, key).Scan(&a.Key, &a.Phase, &checksum, &a.Records, &a.Data, &created)
	if err == sql.ErrNoRows {
		return store.Artifact{}, false, nil
	}
	if err != nil {
		return store.Artifact{}, false, err
	}
	a.Checksum = uint64(checksum)
	a.CreatedAt = parseTime(created)
	return a, true, nil
}

// PutManifest stores a run manifest
func (s *sqliteStore) PutManifest(ctx context.Context, runID string, data []byte) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO manifests (run_id, data, created_at) VALUES (?, ?, ?)
ON CONFLICT(run_id) DO UPDATE SET data=excluded.data`, runID, data, formatTime(time.Now()))
	return err
}

// GetManifest loads a run manifest
func (s *sqliteStore) GetManifest(ctx context.Context, runID string) ([]byte, bool, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx, `SELECT data FROM manifests WHERE run_id = ?`, runID).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		t = time.Now()
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
