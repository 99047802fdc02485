// Package sqlite provides the durable on-device implementation of the local
// specimen store. The embedded in-memory store stays authoritative; every
// successful mutation snapshots the full state into sqlite within one
// transaction, so a failed write leaves both layers exactly as they were.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite" // pure go sqlite driver

	"fieldcore/internal/infra/persistence/memory"
	"fieldcore/pkg/domain"
)

// Compile-time contract assertion.
var _ domain.SpecimenStore = (*Store)(nil)

// DefaultPath is used when no database path is configured.
const DefaultPath = "fieldcore.db"

// The column names below are part of the persisted schema contract; they and
// the secondary indexes must remain stable across versions so existing
// databases keep loading.
const schemaDDL = `
CREATE TABLE IF NOT EXISTS specimens (
	id TEXT PRIMARY KEY,
	specimen_number TEXT NOT NULL,
	collected_date TEXT NOT NULL,
	sync_status TEXT NOT NULL,
	common_name TEXT,
	scientific_name TEXT,
	payload BLOB NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_specimens_number ON specimens(specimen_number);
CREATE INDEX IF NOT EXISTS idx_specimens_collected ON specimens(collected_date);
CREATE INDEX IF NOT EXISTS idx_specimens_sync ON specimens(sync_status);
CREATE INDEX IF NOT EXISTS idx_specimens_common ON specimens(common_name);
CREATE INDEX IF NOT EXISTS idx_specimens_scientific ON specimens(scientific_name);
CREATE TABLE IF NOT EXISTS safety_checkpoints (
	id TEXT PRIMARY KEY,
	timestamp TEXT NOT NULL,
	status TEXT NOT NULL,
	user_id TEXT NOT NULL,
	payload BLOB NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_checkpoints_timestamp ON safety_checkpoints(timestamp);
CREATE INDEX IF NOT EXISTS idx_checkpoints_status ON safety_checkpoints(status);
CREATE INDEX IF NOT EXISTS idx_checkpoints_user ON safety_checkpoints(user_id);
`

// Store persists specimen and checkpoint records to a sqlite file.
type Store struct {
	*memory.Store
	db   *sql.DB
	mu   sync.Mutex
	path string
}

// NewStore opens (creating if needed) the sqlite database at path and
// hydrates the in-memory state from any previously persisted records.
func NewStore(path string) (*Store, error) {
	if path == "" {
		path = DefaultPath
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil && !errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("create dirs: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if _, err := db.Exec(schemaDDL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	s := &Store{Store: memory.NewStore(), db: db, path: path}
	if err := s.load(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) load() error {
	snapshot := memory.Snapshot{
		Specimens:   make(map[string]domain.Specimen),
		Checkpoints: make(map[string]domain.SafetyCheckpoint),
	}
	rows, err := s.db.Query(`SELECT id, payload FROM specimens`)
	if err != nil {
		return fmt.Errorf("select specimens: %w", err)
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var id string
		var payload []byte
		if err := rows.Scan(&id, &payload); err != nil {
			return fmt.Errorf("scan specimen: %w", err)
		}
		var sp domain.Specimen
		if err := json.Unmarshal(payload, &sp); err != nil {
			return fmt.Errorf("decode specimen %s: %w", id, err)
		}
		snapshot.Specimens[id] = sp
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate specimens: %w", err)
	}

	cpRows, err := s.db.Query(`SELECT id, payload FROM safety_checkpoints`)
	if err != nil {
		return fmt.Errorf("select checkpoints: %w", err)
	}
	defer func() { _ = cpRows.Close() }()
	for cpRows.Next() {
		var id string
		var payload []byte
		if err := cpRows.Scan(&id, &payload); err != nil {
			return fmt.Errorf("scan checkpoint: %w", err)
		}
		var cp domain.SafetyCheckpoint
		if err := json.Unmarshal(payload, &cp); err != nil {
			return fmt.Errorf("decode checkpoint %s: %w", id, err)
		}
		snapshot.Checkpoints[id] = cp
	}
	if err := cpRows.Err(); err != nil {
		return fmt.Errorf("iterate checkpoints: %w", err)
	}

	s.ImportState(snapshot)
	return nil
}

func nullable(p *string) any {
	if p == nil {
		return nil
	}
	return *p
}

func (s *Store) persist() (retErr error) {
	snapshot := s.ExportState()
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	if _, err := tx.Exec(`DELETE FROM specimens`); err != nil {
		return fmt.Errorf("clear specimens: %w", err)
	}
	for id, sp := range snapshot.Specimens {
		payload, err := json.Marshal(sp)
		if err != nil {
			return fmt.Errorf("encode specimen %s: %w", id, err)
		}
		if _, err := tx.Exec(
			`INSERT INTO specimens(id, specimen_number, collected_date, sync_status, common_name, scientific_name, payload)
			 VALUES(?,?,?,?,?,?,?)`,
			id, sp.SpecimenNumber, sp.CollectedDate.UTC().Format("2006-01-02T15:04:05.000Z"),
			string(sp.SyncStatus), nullable(sp.CommonName), nullable(sp.ScientificName), payload,
		); err != nil {
			return fmt.Errorf("insert specimen %s: %w", id, err)
		}
	}
	if _, err := tx.Exec(`DELETE FROM safety_checkpoints`); err != nil {
		return fmt.Errorf("clear checkpoints: %w", err)
	}
	for id, cp := range snapshot.Checkpoints {
		payload, err := json.Marshal(cp)
		if err != nil {
			return fmt.Errorf("encode checkpoint %s: %w", id, err)
		}
		if _, err := tx.Exec(
			`INSERT INTO safety_checkpoints(id, timestamp, status, user_id, payload) VALUES(?,?,?,?,?)`,
			id, cp.Timestamp.UTC().Format("2006-01-02T15:04:05.000Z"), string(cp.Status), cp.UserID, payload,
		); err != nil {
			return fmt.Errorf("insert checkpoint %s: %w", id, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	committed = true
	return nil
}

// mutate applies fn to the in-memory state, then snapshots to sqlite. When
// persistence fails the in-memory state is rolled back to the pre-mutation
// snapshot so the caller observes no partial write.
func (s *Store) mutate(fn func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	before := s.ExportState()
	if err := fn(); err != nil {
		return err
	}
	if err := s.persist(); err != nil {
		s.ImportState(before)
		return fmt.Errorf("persist: %w", err)
	}
	return nil
}

// InsertSpecimen durably persists a new record.
func (s *Store) InsertSpecimen(ctx context.Context, sp domain.Specimen) error {
	return s.mutate(func() error { return s.Store.InsertSpecimen(ctx, sp) })
}

// ReplaceSpecimen durably overwrites an existing record.
func (s *Store) ReplaceSpecimen(ctx context.Context, sp domain.Specimen) error {
	return s.mutate(func() error { return s.Store.ReplaceSpecimen(ctx, sp) })
}

// DeleteSpecimen durably removes a record; absent ids are a no-op.
func (s *Store) DeleteSpecimen(ctx context.Context, id string) (bool, error) {
	var existed bool
	err := s.mutate(func() error {
		var err error
		existed, err = s.Store.DeleteSpecimen(ctx, id)
		return err
	})
	return existed, err
}

// InsertCheckpoint durably persists a safety checkpoint record.
func (s *Store) InsertCheckpoint(ctx context.Context, cp domain.SafetyCheckpoint) error {
	return s.mutate(func() error { return s.Store.InsertCheckpoint(ctx, cp) })
}

// DeleteCheckpoint durably removes a checkpoint; absent ids are a no-op.
func (s *Store) DeleteCheckpoint(ctx context.Context, id string) (bool, error) {
	var existed bool
	err := s.mutate(func() error {
		var err error
		existed, err = s.Store.DeleteCheckpoint(ctx, id)
		return err
	})
	return existed, err
}

// Close releases the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *Store) DB() *sql.DB { return s.db }

// Path returns the configured database path.
func (s *Store) Path() string { return s.path }
