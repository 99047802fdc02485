// Package core implements the collection service: specimen lifecycle, safety
// checkpoints, validation policy, and the seams for positioning and
// observability.
package core

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"fieldcore/internal/geo"
	"fieldcore/internal/validation"
	"fieldcore/pkg/domain"
	"fieldcore/pkg/specimenid"
)

const numberRetryLimit = 5

// Service exposes the collection operations over a SpecimenStore.
type Service struct {
	store   domain.SpecimenStore
	geo     geo.Provider
	metrics MetricsRecorder
	audit   AuditRecorder

	nowFn    func() time.Time
	newID    func() string
	numberFn func() string
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the service clock.
func WithClock(fn func() time.Time) Option {
	return func(s *Service) {
		if fn != nil {
			s.nowFn = fn
		}
	}
}

// WithGeoProvider attaches a positioning source. Without one,
// CaptureLocation reports geo.ErrUnavailable.
func WithGeoProvider(p geo.Provider) Option {
	return func(s *Service) { s.geo = p }
}

// WithMetricsRecorder attaches an operation metrics sink.
func WithMetricsRecorder(rec MetricsRecorder) Option {
	return func(s *Service) {
		if rec != nil {
			s.metrics = rec
		}
	}
}

// WithAuditRecorder attaches an audit sink.
func WithAuditRecorder(rec AuditRecorder) Option {
	return func(s *Service) {
		if rec != nil {
			s.audit = rec
		}
	}
}

// WithNumberGenerator overrides specimen number generation.
func WithNumberGenerator(fn func() string) Option {
	return func(s *Service) {
		if fn != nil {
			s.numberFn = fn
		}
	}
}

// NewService constructs a service backed by the supplied store.
func NewService(store domain.SpecimenStore, opts ...Option) *Service {
	s := &Service{
		store:    store,
		nowFn:    func() time.Time { return time.Now().UTC() },
		newID:    uuid.NewString,
		numberFn: func() string { return specimenid.Generate(specimenid.DefaultPrefix) },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Store returns the underlying storage implementation.
func (s *Service) Store() domain.SpecimenStore { return s.store }

func (s *Service) observe(ctx context.Context, op, entityID string, start time.Time, err error) {
	if s.metrics != nil {
		s.metrics.Observe(ctx, op, err == nil, time.Since(start))
	}
	if s.audit != nil {
		status := AuditStatusSuccess
		detail := ""
		if err != nil {
			status = AuditStatusError
			detail = err.Error()
		}
		s.audit.Record(ctx, AuditEntry{
			Operation:  op,
			EntityID:   entityID,
			Status:     status,
			Detail:     detail,
			OccurredAt: s.nowFn(),
		})
	}
}

// CreateSpecimen validates the form, assigns identity and provenance, and
// persists the record. Validation failures come back as ValidationError with
// per-field messages.
func (s *Service) CreateSpecimen(ctx context.Context, form SpecimenForm) (spec domain.Specimen, err error) {
	start := s.nowFn()
	defer func() { s.observe(ctx, "create_specimen", spec.ID, start, err) }()

	form = normalizeForm(form)
	if verr := s.validateForm(form); !verr.empty() {
		return domain.Specimen{}, verr
	}

	now := s.nowFn()
	collected := now
	if form.CollectedDate != nil {
		collected = form.CollectedDate.UTC()
	}

	spec = domain.Specimen{
		ID:                  s.newID(),
		CommonName:          optStr(form.CommonName),
		ScientificName:      optStr(form.ScientificName),
		Description:         optStr(form.Description),
		Latitude:            form.Latitude,
		Longitude:           form.Longitude,
		Altitude:            form.Altitude,
		LocationDescription: optStr(form.LocationDescription),
		Habitat:             optStr(form.Habitat),
		Slope:               optStr(form.Slope),
		Aspect:              domain.Aspect(form.Aspect),
		SoilType:            optStr(form.SoilType),
		Height:              form.Height,
		Diameter:            form.Diameter,
		Measurements:        form.Measurements,
		Units:               optStr(form.Units),
		Photos:              form.Photos,
		CollectedBy:         form.CollectedBy,
		CollectedDate:       collected,
		ModifiedDate:        now,
		Notes:               optStr(form.Notes),
		Tags:                form.Tags,
		SyncStatus:          domain.SyncPending,
		ChainOfCustody: []domain.CustodyEntry{{
			ID:        s.newID(),
			Action:    domain.CustodyCollected,
			Person:    form.CollectedBy,
			Timestamp: collected,
		}},
	}

	number, err := s.uniqueNumber(ctx)
	if err != nil {
		return domain.Specimen{}, err
	}
	spec.SpecimenNumber = number
	spec.QRCode = &number

	if err = s.store.InsertSpecimen(ctx, spec); err != nil {
		return domain.Specimen{}, fmt.Errorf("insert specimen: %w", err)
	}
	return spec, nil
}

// uniqueNumber generates a specimen number not already in use. The random
// suffix makes collisions rare; a bounded retry covers the residual chance.
func (s *Service) uniqueNumber(ctx context.Context) (string, error) {
	existing, err := s.store.ListSpecimens(ctx)
	if err != nil {
		return "", fmt.Errorf("list specimens: %w", err)
	}
	used := make(map[string]struct{}, len(existing))
	for _, sp := range existing {
		used[sp.SpecimenNumber] = struct{}{}
	}
	for i := 0; i < numberRetryLimit; i++ {
		number := s.numberFn()
		if _, taken := used[number]; !taken {
			return number, nil
		}
	}
	return "", fmt.Errorf("could not allocate unique specimen number after %d attempts", numberRetryLimit)
}

// GetSpecimen returns one record by id, or NotFoundError.
func (s *Service) GetSpecimen(ctx context.Context, id string) (domain.Specimen, error) {
	spec, found, err := s.store.GetSpecimen(ctx, id)
	if err != nil {
		return domain.Specimen{}, err
	}
	if !found {
		return domain.Specimen{}, domain.NotFoundError{Kind: domain.KindSpecimen, ID: id}
	}
	return spec, nil
}

// ListSpecimens returns all records ordered by collection date, newest first.
func (s *Service) ListSpecimens(ctx context.Context) ([]domain.Specimen, error) {
	specimens, err := s.store.ListSpecimens(ctx)
	if err != nil {
		return nil, err
	}
	sortByCollectedDesc(specimens)
	return specimens, nil
}

// FilterSpecimens returns records matching the filter, ordered by collection
// date, newest first.
func (s *Service) FilterSpecimens(ctx context.Context, filter SpecimenFilter) ([]domain.Specimen, error) {
	specimens, err := s.store.ListSpecimens(ctx)
	if err != nil {
		return nil, err
	}
	out := specimens[:0]
	for _, sp := range specimens {
		if filter.matches(sp) {
			out = append(out, sp)
		}
	}
	sortByCollectedDesc(out)
	return out, nil
}

func (f SpecimenFilter) matches(sp domain.Specimen) bool {
	if f.SyncStatus != "" && sp.SyncStatus != f.SyncStatus {
		return false
	}
	if f.Tag != "" {
		found := false
		for _, tag := range sp.Tags {
			if tag == f.Tag {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.Search == "" {
		return true
	}
	needle := strings.ToLower(f.Search)
	for _, hay := range []string{sp.SpecimenNumber, derefStr(sp.CommonName), derefStr(sp.ScientificName), sp.CollectedBy} {
		if hay != "" && strings.Contains(strings.ToLower(hay), needle) {
			return true
		}
	}
	return false
}

func sortByCollectedDesc(specimens []domain.Specimen) {
	sort.SliceStable(specimens, func(i, j int) bool {
		return specimens[i].CollectedDate.After(specimens[j].CollectedDate)
	})
}

// UpdateSpecimen mutates a record via the supplied mutator and bumps its
// modification timestamp. The mutated record replaces the stored one; the
// id is immutable.
func (s *Service) UpdateSpecimen(ctx context.Context, id string, mutator func(*domain.Specimen) error) (spec domain.Specimen, err error) {
	start := s.nowFn()
	defer func() { s.observe(ctx, "update_specimen", id, start, err) }()

	spec, err = s.GetSpecimen(ctx, id)
	if err != nil {
		return domain.Specimen{}, err
	}
	if err = mutator(&spec); err != nil {
		return domain.Specimen{}, err
	}
	spec.ID = id
	spec.ModifiedDate = s.nowFn()
	if spec.SyncStatus == domain.SyncSynced {
		spec.SyncStatus = domain.SyncPending
	}
	if err = s.store.ReplaceSpecimen(ctx, spec); err != nil {
		return domain.Specimen{}, err
	}
	return spec, nil
}

// DeleteSpecimen removes a record, reporting whether it existed. Deleting a
// missing id is not an error.
func (s *Service) DeleteSpecimen(ctx context.Context, id string) (existed bool, err error) {
	start := s.nowFn()
	defer func() { s.observe(ctx, "delete_specimen", id, start, err) }()
	return s.store.DeleteSpecimen(ctx, id)
}

// AppendCustodyEntry records a custody transition on the specimen's chain.
func (s *Service) AppendCustodyEntry(ctx context.Context, id string, action domain.CustodyAction, handler, notes string, location *domain.GeoPoint) (domain.Specimen, error) {
	if handler == "" {
		return domain.Specimen{}, fmt.Errorf("custody handler required")
	}
	if !domain.ValidCustodyAction(action) {
		verr := ValidationError{}
		verr.add("action", fmt.Sprintf("Invalid action: %s", action))
		return domain.Specimen{}, verr
	}
	return s.UpdateSpecimen(ctx, id, func(sp *domain.Specimen) error {
		sp.ChainOfCustody = append(sp.ChainOfCustody, domain.CustodyEntry{
			ID:        s.newID(),
			Action:    action,
			Person:    handler,
			Notes:     optStr(notes),
			Location:  location,
			Timestamp: s.nowFn(),
		})
		return nil
	})
}

// MarkSynced flags a record as uploaded, stamping the sync time.
func (s *Service) MarkSynced(ctx context.Context, id string) (domain.Specimen, error) {
	spec, err := s.GetSpecimen(ctx, id)
	if err != nil {
		return domain.Specimen{}, err
	}
	now := s.nowFn()
	spec.SyncStatus = domain.SyncSynced
	spec.LastSyncDate = &now
	if err := s.store.ReplaceSpecimen(ctx, spec); err != nil {
		return domain.Specimen{}, err
	}
	return spec, nil
}

// CaptureLocation asks the positioning source for a fix. The request is
// bounded by the provider timeout; collection flows treat failure here as
// non-fatal and fall back to manual entry.
func (s *Service) CaptureLocation(ctx context.Context) (domain.GeoPoint, error) {
	if s.geo == nil {
		return domain.GeoPoint{}, geo.ErrUnavailable
	}
	pos, err := s.geo.Current(ctx, geo.Options{HighAccuracy: true})
	if err != nil {
		return domain.GeoPoint{}, err
	}
	return domain.GeoPoint{Latitude: pos.Latitude, Longitude: pos.Longitude}, nil
}

// RecordCheckpoint persists a safety checkpoint.
func (s *Service) RecordCheckpoint(ctx context.Context, form CheckpointForm) (cp domain.SafetyCheckpoint, err error) {
	start := s.nowFn()
	defer func() { s.observe(ctx, "record_checkpoint", cp.ID, start, err) }()

	if form.UserID == "" {
		verr := ValidationError{}
		verr.add("userId", "User is required")
		return domain.SafetyCheckpoint{}, verr
	}
	status := form.Status
	if status == "" {
		status = domain.CheckpointOK
	}
	switch status {
	case domain.CheckpointOK, domain.CheckpointAlert, domain.CheckpointEmergency:
	default:
		verr := ValidationError{}
		verr.add("status", fmt.Sprintf("Invalid status: %s", status))
		return domain.SafetyCheckpoint{}, verr
	}
	if verr := coordinateErrors(form.Latitude, form.Longitude); !verr.empty() {
		return domain.SafetyCheckpoint{}, verr
	}

	cp = domain.SafetyCheckpoint{
		ID:        s.newID(),
		UserID:    form.UserID,
		Status:    status,
		Notes:     optStr(form.Notes),
		Timestamp: s.nowFn(),
	}
	if form.Latitude != nil && form.Longitude != nil {
		cp.Location = &domain.GeoPoint{Latitude: *form.Latitude, Longitude: *form.Longitude}
	}
	if err = s.store.InsertCheckpoint(ctx, cp); err != nil {
		return domain.SafetyCheckpoint{}, fmt.Errorf("insert checkpoint: %w", err)
	}
	return cp, nil
}

// ListCheckpoints returns all checkpoints ordered by time, newest first.
func (s *Service) ListCheckpoints(ctx context.Context) ([]domain.SafetyCheckpoint, error) {
	checkpoints, err := s.store.ListCheckpoints(ctx)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(checkpoints, func(i, j int) bool {
		return checkpoints[i].Timestamp.After(checkpoints[j].Timestamp)
	})
	return checkpoints, nil
}

// DeleteCheckpoint removes a checkpoint, reporting whether it existed.
func (s *Service) DeleteCheckpoint(ctx context.Context, id string) (bool, error) {
	return s.store.DeleteCheckpoint(ctx, id)
}

// optStr maps an empty form field to an absent optional.
func optStr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func derefStr(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

func normalizeForm(form SpecimenForm) SpecimenForm {
	form.CommonName = strings.TrimSpace(form.CommonName)
	form.ScientificName = strings.TrimSpace(form.ScientificName)
	form.CollectedBy = strings.TrimSpace(form.CollectedBy)
	form.Aspect = strings.TrimSpace(form.Aspect)
	form.Units = strings.TrimSpace(form.Units)
	return form
}

func (s *Service) validateForm(form SpecimenForm) ValidationError {
	verr := coordinateErrors(form.Latitude, form.Longitude)
	if form.CollectedBy == "" {
		verr.add("collectedBy", "Collector is required")
	}
	if form.Aspect != "" && !domain.ValidAspect(domain.Aspect(form.Aspect)) {
		verr.add("aspect", fmt.Sprintf("Invalid aspect: %s", form.Aspect))
	}
	for name, value := range form.Measurements {
		if form.Units == "" {
			verr.add(name, fmt.Sprintf("Missing unit for measurement %s", name))
			continue
		}
		if res := validation.Units(value, form.Units); !res.Valid {
			verr.add(name, res.Message)
		}
	}
	if form.Height != nil && *form.Height < 0 {
		verr.add("height", "Measurement cannot be negative")
	}
	if form.Diameter != nil && *form.Diameter < 0 {
		verr.add("diameter", "Measurement cannot be negative")
	}
	return verr
}

func coordinateErrors(lat, lon *float64) ValidationError {
	verr := ValidationError{}
	if res := validation.Coordinates(lat, lon); !res.Valid {
		field := "longitude"
		if strings.HasPrefix(res.Message, "Latitude") {
			field = "latitude"
		}
		verr.add(field, res.Message)
	}
	return verr
}
