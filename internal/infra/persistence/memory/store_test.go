package memory

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"fieldcore/pkg/domain"
)

func strPtr(s string) *string   { return &s }
func f64Ptr(v float64) *float64 { return &v }

func sampleSpecimen(id string) domain.Specimen {
	collected := time.Date(2025, 12, 1, 9, 30, 0, 0, time.UTC)
	return domain.Specimen{
		ID:             id,
		SpecimenNumber: id,
		CommonName:     strPtr("Douglas Fir"),
		ScientificName: strPtr("Pseudotsuga menziesii"),
		Latitude:       f64Ptr(40.7128),
		Longitude:      f64Ptr(-74.0060),
		Habitat:        strPtr("Mixed conifer forest"),
		Aspect:         domain.AspectNorthwest,
		Measurements:   map[string]float64{"height": 42.5},
		Units:          strPtr("m"),
		CollectedBy:    "J. Doe",
		CollectedDate:  collected,
		ModifiedDate:   collected,
		Tags:           []string{"conifer"},
		ChainOfCustody: []domain.CustodyEntry{{
			ID:        "CUST-1",
			Timestamp: collected,
			Action:    domain.CustodyCollected,
			Person:    "J. Doe",
		}},
		SyncStatus: domain.SyncPending,
	}
}

func TestInsertThenListRoundTrips(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	want := sampleSpecimen("SPEC-20251201-A3F2")
	if err := store.InsertSpecimen(ctx, want); err != nil {
		t.Fatalf("insert: %v", err)
	}
	got, err := store.ListSpecimens(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 specimen, got %d", len(got))
	}
	if !reflect.DeepEqual(got[0], want) {
		t.Fatalf("round trip mismatch:\n got %+v\nwant %+v", got[0], want)
	}
}

func TestInsertRejectsDuplicateAndKeepsFirst(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	first := sampleSpecimen("SPEC-20251201-A3F2")
	second := sampleSpecimen("SPEC-20251201-A3F2")
	second.CollectedBy = "Impostor"

	if err := store.InsertSpecimen(ctx, first); err != nil {
		t.Fatalf("first insert: %v", err)
	}
	err := store.InsertSpecimen(ctx, second)
	var dup domain.DuplicateKeyError
	if !errors.As(err, &dup) {
		t.Fatalf("expected DuplicateKeyError, got %v", err)
	}
	if dup.ID != first.ID || dup.Kind != domain.KindSpecimen {
		t.Fatalf("unexpected error detail: %+v", dup)
	}

	got, _, err := store.GetSpecimen(ctx, first.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.CollectedBy != "J. Doe" {
		t.Fatalf("failed insert mutated store: collectedBy = %q", got.CollectedBy)
	}
}

func TestDeleteIsIdempotent(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	sp := sampleSpecimen("SPEC-20251201-A3F2")
	if err := store.InsertSpecimen(ctx, sp); err != nil {
		t.Fatalf("insert: %v", err)
	}
	existed, err := store.DeleteSpecimen(ctx, sp.ID)
	if err != nil || !existed {
		t.Fatalf("first delete: existed=%v err=%v", existed, err)
	}
	existed, err = store.DeleteSpecimen(ctx, sp.ID)
	if err != nil {
		t.Fatalf("second delete must not error: %v", err)
	}
	if existed {
		t.Fatal("second delete reported a record")
	}
	if all, _ := store.ListSpecimens(ctx); len(all) != 0 {
		t.Fatalf("store not empty after delete: %d records", len(all))
	}
}

func TestReplaceRequiresExistingID(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	sp := sampleSpecimen("SPEC-20251201-A3F2")
	err := store.ReplaceSpecimen(ctx, sp)
	var nf domain.NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
	if err := store.InsertSpecimen(ctx, sp); err != nil {
		t.Fatalf("insert: %v", err)
	}
	sp.Notes = strPtr("bark sample taken")
	if err := store.ReplaceSpecimen(ctx, sp); err != nil {
		t.Fatalf("replace: %v", err)
	}
	got, _, _ := store.GetSpecimen(ctx, sp.ID)
	if got.Notes == nil || *got.Notes != "bark sample taken" {
		t.Fatalf("replacement not visible: %+v", got.Notes)
	}
}

func TestListedRecordsDoNotAliasStoreState(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	sp := sampleSpecimen("SPEC-20251201-A3F2")
	if err := store.InsertSpecimen(ctx, sp); err != nil {
		t.Fatalf("insert: %v", err)
	}
	listed, _ := store.ListSpecimens(ctx)
	listed[0].Measurements["height"] = -1
	listed[0].Tags[0] = "mutated"

	got, _, _ := store.GetSpecimen(ctx, sp.ID)
	if got.Measurements["height"] != 42.5 || got.Tags[0] != "conifer" {
		t.Fatalf("caller mutation leaked into store: %+v", got)
	}
}

func TestCheckpointLifecycle(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	cp := domain.SafetyCheckpoint{
		ID:        "CHK-1",
		Timestamp: time.Date(2025, 12, 1, 12, 0, 0, 0, time.UTC),
		Location:  &domain.GeoPoint{Latitude: 47.6, Longitude: -122.3},
		Status:    domain.CheckpointOK,
		UserID:    "user-1",
	}
	if err := store.InsertCheckpoint(ctx, cp); err != nil {
		t.Fatalf("insert checkpoint: %v", err)
	}
	if err := store.InsertCheckpoint(ctx, cp); err == nil {
		t.Fatal("expected duplicate checkpoint insert to fail")
	}
	all, err := store.ListCheckpoints(ctx)
	if err != nil || len(all) != 1 {
		t.Fatalf("list checkpoints: %v (%d)", err, len(all))
	}
	if existed, _ := store.DeleteCheckpoint(ctx, "CHK-1"); !existed {
		t.Fatal("delete reported missing checkpoint")
	}
	if existed, _ := store.DeleteCheckpoint(ctx, "CHK-1"); existed {
		t.Fatal("second delete reported a checkpoint")
	}
}

func TestExportImportState(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	sp := sampleSpecimen("SPEC-20251201-A3F2")
	if err := store.InsertSpecimen(ctx, sp); err != nil {
		t.Fatalf("insert: %v", err)
	}
	snapshot := store.ExportState()

	other := NewStore()
	other.ImportState(snapshot)
	got, found, _ := other.GetSpecimen(ctx, sp.ID)
	if !found || !reflect.DeepEqual(got, sp) {
		t.Fatalf("imported state mismatch: found=%v", found)
	}
}
