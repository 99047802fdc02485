// Package memory provides the in-memory implementation of the local specimen
// store, used directly for tests and ephemeral runs and embedded by the
// sqlite-backed store as its authoritative state.
package memory

import (
	"context"
	"sync"

	"fieldcore/pkg/domain"
)

// Compile-time contract assertion.
var _ domain.SpecimenStore = (*Store)(nil)

type state struct {
	specimens   map[string]domain.Specimen
	checkpoints map[string]domain.SafetyCheckpoint
}

func newState() state {
	return state{
		specimens:   make(map[string]domain.Specimen),
		checkpoints: make(map[string]domain.SafetyCheckpoint),
	}
}

func (s state) clone() state {
	cloned := newState()
	for id, sp := range s.specimens {
		cloned.specimens[id] = domain.CloneSpecimen(sp)
	}
	for id, cp := range s.checkpoints {
		cloned.checkpoints[id] = domain.CloneCheckpoint(cp)
	}
	return cloned
}

// Snapshot captures a point-in-time clone of the store state. The field names
// double as persistence bucket names and must remain stable.
type Snapshot struct {
	Specimens   map[string]domain.Specimen         `json:"specimens"`
	Checkpoints map[string]domain.SafetyCheckpoint `json:"safety_checkpoints"`
}

// Store holds specimen and checkpoint records behind a single mutex. A single
// logical writer at a time is sufficient for this store's callers; the mutex
// serializes concurrent insert/delete against the same key space.
type Store struct {
	mu    sync.RWMutex
	state state
}

// NewStore constructs an empty in-memory store.
func NewStore() *Store {
	return &Store{state: newState()}
}

// InsertSpecimen persists a new record, rejecting duplicate ids.
func (s *Store) InsertSpecimen(_ context.Context, sp domain.Specimen) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.state.specimens[sp.ID]; exists {
		return domain.DuplicateKeyError{Kind: domain.KindSpecimen, ID: sp.ID}
	}
	s.state.specimens[sp.ID] = domain.CloneSpecimen(sp)
	return nil
}

// GetSpecimen retrieves a record by id.
func (s *Store) GetSpecimen(_ context.Context, id string) (domain.Specimen, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sp, exists := s.state.specimens[id]
	if !exists {
		return domain.Specimen{}, false, nil
	}
	return domain.CloneSpecimen(sp), true, nil
}

// ListSpecimens returns every persisted specimen, unordered.
func (s *Store) ListSpecimens(_ context.Context) ([]domain.Specimen, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Specimen, 0, len(s.state.specimens))
	for _, sp := range s.state.specimens {
		out = append(out, domain.CloneSpecimen(sp))
	}
	return out, nil
}

// ReplaceSpecimen overwrites an existing record wholesale. The id must match
// a persisted record; ids are immutable once persisted.
func (s *Store) ReplaceSpecimen(_ context.Context, sp domain.Specimen) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.state.specimens[sp.ID]; !exists {
		return domain.NotFoundError{Kind: domain.KindSpecimen, ID: sp.ID}
	}
	s.state.specimens[sp.ID] = domain.CloneSpecimen(sp)
	return nil
}

// DeleteSpecimen removes a record if present; absent ids are a no-op.
func (s *Store) DeleteSpecimen(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.state.specimens[id]; !exists {
		return false, nil
	}
	delete(s.state.specimens, id)
	return true, nil
}

// InsertCheckpoint persists a safety checkpoint record.
func (s *Store) InsertCheckpoint(_ context.Context, cp domain.SafetyCheckpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.state.checkpoints[cp.ID]; exists {
		return domain.DuplicateKeyError{Kind: domain.KindCheckpoint, ID: cp.ID}
	}
	s.state.checkpoints[cp.ID] = domain.CloneCheckpoint(cp)
	return nil
}

// ListCheckpoints returns every persisted checkpoint, unordered.
func (s *Store) ListCheckpoints(_ context.Context) ([]domain.SafetyCheckpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.SafetyCheckpoint, 0, len(s.state.checkpoints))
	for _, cp := range s.state.checkpoints {
		out = append(out, domain.CloneCheckpoint(cp))
	}
	return out, nil
}

// DeleteCheckpoint removes a checkpoint; absent ids are a no-op.
func (s *Store) DeleteCheckpoint(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.state.checkpoints[id]; !exists {
		return false, nil
	}
	delete(s.state.checkpoints, id)
	return true, nil
}

// Close is a no-op for the in-memory store.
func (s *Store) Close() error { return nil }

// ExportState returns a deep-cloned snapshot of the current state.
func (s *Store) ExportState() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cloned := s.state.clone()
	return Snapshot{Specimens: cloned.specimens, Checkpoints: cloned.checkpoints}
}

// ImportState replaces the current state with the provided snapshot.
func (s *Store) ImportState(snapshot Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := newState()
	for id, sp := range snapshot.Specimens {
		next.specimens[id] = domain.CloneSpecimen(sp)
	}
	for id, cp := range snapshot.Checkpoints {
		next.checkpoints[id] = domain.CloneCheckpoint(cp)
	}
	s.state = next
}
