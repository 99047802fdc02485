package domain

import (
	"context"
	"fmt"
)

// SpecimenStore is the local persistent keyed store for specimen and safety
// checkpoint records. The store is a dumb persistence layer: it accepts
// whatever record shape it is handed, including out-of-range coordinates.
// Field-level policy belongs to the collection form, keeping the store
// reusable by collaborators with different validation policies.
//
// Implementations must serialize concurrent mutations against the same key
// space and must leave state untouched when an insert fails.
type SpecimenStore interface {
	// InsertSpecimen persists a new record, failing with DuplicateKeyError
	// when the id is already present. The record is durable once this
	// returns nil.
	InsertSpecimen(ctx context.Context, s Specimen) error
	// GetSpecimen retrieves a record by id.
	GetSpecimen(ctx context.Context, id string) (Specimen, bool, error)
	// ListSpecimens returns every persisted specimen, unordered with respect
	// to insertion. Callers sort for display.
	ListSpecimens(ctx context.Context) ([]Specimen, error)
	// ReplaceSpecimen overwrites an existing record wholesale. There is no
	// partial field-level update; full replacement is the only mutation.
	ReplaceSpecimen(ctx context.Context, s Specimen) error
	// DeleteSpecimen removes a record if present. Deleting an absent id is a
	// no-op, not an error; the returned bool reports whether a record existed.
	DeleteSpecimen(ctx context.Context, id string) (bool, error)

	// InsertCheckpoint persists a safety checkpoint record.
	InsertCheckpoint(ctx context.Context, c SafetyCheckpoint) error
	// ListCheckpoints returns every persisted checkpoint, unordered.
	ListCheckpoints(ctx context.Context) ([]SafetyCheckpoint, error)
	// DeleteCheckpoint removes a checkpoint; absent ids are a no-op.
	DeleteCheckpoint(ctx context.Context, id string) (bool, error)

	// Close releases any underlying resources.
	Close() error
}

// EntityKind names the record collections held by the local store. The values
// double as persistence bucket names and must remain stable.
type EntityKind string

// Stable collection identifiers.
const (
	KindSpecimen   EntityKind = "specimen"
	KindCheckpoint EntityKind = "safety_checkpoint"
)

// DuplicateKeyError reports an insert that collided with an existing primary
// key. Freshly generated ids make this rare; callers treat it as retryable.
type DuplicateKeyError struct {
	Kind EntityKind
	ID   string
}

func (e DuplicateKeyError) Error() string {
	return fmt.Sprintf("%s %q already exists", e.Kind, e.ID)
}

// NotFoundError reports a replacement targeting an id that is not persisted.
type NotFoundError struct {
	Kind EntityKind
	ID   string
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.ID)
}
