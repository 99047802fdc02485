package core

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"fieldcore/pkg/domain"
)

// Type aliases re-exported for callers that only import core.
type (
	Specimen         = domain.Specimen
	SafetyCheckpoint = domain.SafetyCheckpoint
	CustodyEntry     = domain.CustodyEntry
	GeoPoint         = domain.GeoPoint
)

// SpecimenForm is the raw collection input before policy validation. String
// coordinate fields tolerate locale formatting; AutoCorrect normalizes them
// before parsing.
type SpecimenForm struct {
	CommonName          string
	ScientificName      string
	Description         string
	Latitude            *float64
	Longitude           *float64
	Altitude            *float64
	LocationDescription string
	Habitat             string
	Slope               string
	Aspect              string
	SoilType            string
	Height              *float64
	Diameter            *float64
	Measurements        map[string]float64
	Units               string
	Photos              []string
	CollectedBy         string
	CollectedDate       *time.Time
	Notes               string
	Tags                []string
}

// CheckpointForm is the raw input for a safety checkpoint.
type CheckpointForm struct {
	UserID    string
	Status    domain.CheckpointStatus
	Latitude  *float64
	Longitude *float64
	Notes     string
}

// SpecimenFilter selects records for listing. Zero value matches everything.
type SpecimenFilter struct {
	// Search matches case-insensitively against specimen number, common
	// name, scientific name, and collector.
	Search string
	// Tag, when set, requires an exact tag match.
	Tag string
	// SyncStatus, when set, requires the given status.
	SyncStatus domain.SyncStatus
}

// ValidationError aggregates field-level failures from a create or update.
type ValidationError struct {
	Fields map[string][]string
}

func (e ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %s", k, strings.Join(e.Fields[k], "; ")))
	}
	return "validation failed: " + strings.Join(parts, ", ")
}

func (e *ValidationError) add(field, message string) {
	if e.Fields == nil {
		e.Fields = make(map[string][]string)
	}
	e.Fields[field] = append(e.Fields[field], message)
}

func (e ValidationError) empty() bool { return len(e.Fields) == 0 }
