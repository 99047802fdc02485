// Package domain defines the core persistent entities and store contracts
// used by fieldcore.
package domain

import "time"

// SyncStatus tracks whether a locally persisted record has been reconciled
// with a remote store. The core only ever produces pending; synced and error
// are reserved for a future remote-sync collaborator.
type SyncStatus string

// Canonical sync statuses stamped on locally persisted records.
const (
	SyncPending SyncStatus = "pending"
	SyncSynced  SyncStatus = "synced"
	SyncError   SyncStatus = "error"
)

// CustodyAction identifies a chain-of-custody event kind.
type CustodyAction string

// Canonical custody actions recorded in the specimen audit trail.
const (
	CustodyCollected   CustodyAction = "collected"
	CustodyTransferred CustodyAction = "transferred"
	CustodyProcessed   CustodyAction = "processed"
	CustodyStored      CustodyAction = "stored"
	CustodyAnalyzed    CustodyAction = "analyzed"
)

// ValidCustodyAction reports whether a is one of the recorded action kinds.
func ValidCustodyAction(a CustodyAction) bool {
	switch a {
	case CustodyCollected, CustodyTransferred, CustodyProcessed,
		CustodyStored, CustodyAnalyzed:
		return true
	}
	return false
}

// CheckpointStatus describes the outcome of a field safety check-in.
type CheckpointStatus string

// Canonical safety checkpoint statuses.
const (
	CheckpointOK        CheckpointStatus = "ok"
	CheckpointAlert     CheckpointStatus = "alert"
	CheckpointEmergency CheckpointStatus = "emergency"
)

// Aspect is the compass octant a slope faces, or empty when unrecorded.
type Aspect string

// The eight compass octants accepted for the aspect field.
const (
	AspectNorth     Aspect = "N"
	AspectNortheast Aspect = "NE"
	AspectEast      Aspect = "E"
	AspectSoutheast Aspect = "SE"
	AspectSouth     Aspect = "S"
	AspectSouthwest Aspect = "SW"
	AspectWest      Aspect = "W"
	AspectNorthwest Aspect = "NW"
)

// ValidAspect reports whether a is one of the eight octants or empty.
func ValidAspect(a Aspect) bool {
	switch a {
	case "", AspectNorth, AspectNortheast, AspectEast, AspectSoutheast,
		AspectSouth, AspectSouthwest, AspectWest, AspectNorthwest:
		return true
	}
	return false
}

// Specimen is a single field-collected observation record. JSON field names
// are the persisted shape; they must remain stable across versions because
// exports and the local store payloads share this encoding.
type Specimen struct {
	ID             string  `json:"id"`
	SpecimenNumber string  `json:"specimenNumber"`
	QRCode         *string `json:"qrCode,omitempty"`

	CommonName     *string `json:"commonName,omitempty"`
	ScientificName *string `json:"scientificName,omitempty"`
	Description    *string `json:"description,omitempty"`

	Latitude            *float64 `json:"latitude,omitempty"`
	Longitude           *float64 `json:"longitude,omitempty"`
	Altitude            *float64 `json:"altitude,omitempty"`
	LocationDescription *string  `json:"locationDescription,omitempty"`

	Habitat  *string `json:"habitat,omitempty"`
	Slope    *string `json:"slope,omitempty"`
	Aspect   Aspect  `json:"aspect,omitempty"`
	SoilType *string `json:"soilType,omitempty"`

	Height       *float64           `json:"height,omitempty"`
	Diameter     *float64           `json:"diameter,omitempty"`
	Measurements map[string]float64 `json:"measurements,omitempty"`
	Units        *string            `json:"units,omitempty"`

	Photos []string `json:"photos,omitempty"`

	CollectedBy   string    `json:"collectedBy"`
	CollectedDate time.Time `json:"collectedDate"`
	ModifiedDate  time.Time `json:"modifiedDate"`
	Notes         *string   `json:"notes,omitempty"`
	Tags          []string  `json:"tags,omitempty"`

	ChainOfCustody []CustodyEntry `json:"chainOfCustody,omitempty"`

	SyncStatus   SyncStatus `json:"syncStatus"`
	LastSyncDate *time.Time `json:"lastSyncDate,omitempty"`
}

// CustodyEntry logs a change of possession or handling for a specimen.
type CustodyEntry struct {
	ID        string        `json:"id"`
	Timestamp time.Time     `json:"timestamp"`
	Action    CustodyAction `json:"action"`
	Person    string        `json:"person"`
	Location  *GeoPoint     `json:"location,omitempty"`
	Notes     *string       `json:"notes,omitempty"`
}

// GeoPoint is a bare latitude/longitude pair.
type GeoPoint struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// SafetyCheckpoint is an independent periodic location/status check-in.
// It shares the local store with specimens but has no structural relationship
// to them.
type SafetyCheckpoint struct {
	ID        string           `json:"id"`
	Timestamp time.Time        `json:"timestamp"`
	Location  *GeoPoint        `json:"location,omitempty"`
	Status    CheckpointStatus `json:"status"`
	Notes     *string          `json:"notes,omitempty"`
	UserID    string           `json:"userId"`
}

// CloneSpecimen returns a deep copy so callers can never alias store state.
func CloneSpecimen(s Specimen) Specimen {
	cp := s
	cp.QRCode = clonePtr(s.QRCode)
	cp.CommonName = clonePtr(s.CommonName)
	cp.ScientificName = clonePtr(s.ScientificName)
	cp.Description = clonePtr(s.Description)
	cp.Latitude = clonePtr(s.Latitude)
	cp.Longitude = clonePtr(s.Longitude)
	cp.Altitude = clonePtr(s.Altitude)
	cp.LocationDescription = clonePtr(s.LocationDescription)
	cp.Habitat = clonePtr(s.Habitat)
	cp.Slope = clonePtr(s.Slope)
	cp.SoilType = clonePtr(s.SoilType)
	cp.Height = clonePtr(s.Height)
	cp.Diameter = clonePtr(s.Diameter)
	cp.Units = clonePtr(s.Units)
	cp.Notes = clonePtr(s.Notes)
	cp.LastSyncDate = clonePtr(s.LastSyncDate)
	if s.Measurements != nil {
		cp.Measurements = make(map[string]float64, len(s.Measurements))
		for k, v := range s.Measurements {
			cp.Measurements[k] = v
		}
	}
	cp.Photos = append([]string(nil), s.Photos...)
	cp.Tags = append([]string(nil), s.Tags...)
	if s.ChainOfCustody != nil {
		cp.ChainOfCustody = make([]CustodyEntry, len(s.ChainOfCustody))
		for i, e := range s.ChainOfCustody {
			ce := e
			ce.Location = clonePtr(e.Location)
			ce.Notes = clonePtr(e.Notes)
			cp.ChainOfCustody[i] = ce
		}
	}
	return cp
}

// CloneCheckpoint returns a deep copy of a safety checkpoint record.
func CloneCheckpoint(c SafetyCheckpoint) SafetyCheckpoint {
	cp := c
	cp.Notes = clonePtr(c.Notes)
	if c.Location != nil {
		loc := *c.Location
		cp.Location = &loc
	}
	return cp
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
