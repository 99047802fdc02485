package postgres

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"fieldcore/internal/infra/persistence/postgres/testutil"
)

func openStubClient(t *testing.T) (*Client, *testutil.StubDB) {
	t.Helper()
	db, stub := testutil.Open()
	restore := OverrideSQLOpen(func(driverName, dsn string) (*sql.DB, error) {
		if driverName != "pgx" {
			t.Fatalf("unexpected driver %q", driverName)
		}
		return db, nil
	})
	t.Cleanup(restore)
	client, err := Open(context.Background(), "postgres://stub")
	if err != nil {
		t.Fatalf("open client: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	return client, stub
}

func TestCreateAndListProjectsNewestFirst(t *testing.T) {
	client, _ := openStubClient(t)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	clockCalls := 0
	client.nowFn = func() time.Time {
		clockCalls++
		return base.Add(time.Duration(clockCalls) * time.Minute)
	}

	desc := "alpine transect survey"
	first, err := client.CreateProject(ctx, "Transect A", &desc, "user-1")
	if err != nil {
		t.Fatalf("create first: %v", err)
	}
	second, err := client.CreateProject(ctx, "Transect B", nil, "user-2")
	if err != nil {
		t.Fatalf("create second: %v", err)
	}
	if first.Status != "active" || first.ID == "" {
		t.Fatalf("unexpected returned row: %+v", first)
	}

	projects, err := client.ListProjects(ctx)
	if err != nil {
		t.Fatalf("list projects: %v", err)
	}
	if len(projects) != 2 {
		t.Fatalf("expected 2 projects, got %d", len(projects))
	}
	if projects[0].ID != second.ID || projects[1].ID != first.ID {
		t.Fatalf("expected newest first, got %q then %q", projects[0].Name, projects[1].Name)
	}
	if projects[1].Description == nil || *projects[1].Description != desc {
		t.Fatalf("description not round-tripped: %+v", projects[1])
	}
	if projects[0].Description != nil {
		t.Fatalf("expected nil description, got %q", *projects[0].Description)
	}
}

func TestCreateProjectRequiresName(t *testing.T) {
	client, stub := openStubClient(t)
	if _, err := client.CreateProject(context.Background(), "   ", nil, "user-1"); err == nil {
		t.Fatal("expected error for blank name")
	}
	if len(stub.Rows("projects")) != 0 {
		t.Fatal("blank project must not be inserted")
	}
}

func TestUpsertProfileReplacesByID(t *testing.T) {
	client, stub := openStubClient(t)
	ctx := context.Background()

	name := "Jordan Reyes"
	if _, err := client.UpsertProfile(ctx, ProfileRow{ID: "u-1", Email: "jordan@example.org", FullName: &name}); err != nil {
		t.Fatalf("first upsert: %v", err)
	}
	org := "Herbarium North"
	if _, err := client.UpsertProfile(ctx, ProfileRow{ID: "u-1", Email: "j.reyes@example.org", Organization: &org}); err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	if got := len(stub.Rows("profiles")); got != 1 {
		t.Fatalf("expected 1 profile row, got %d", got)
	}
	profiles, err := client.ListProfiles(ctx)
	if err != nil {
		t.Fatalf("list profiles: %v", err)
	}
	if profiles[0].Email != "j.reyes@example.org" {
		t.Fatalf("email not replaced: %+v", profiles[0])
	}
	if profiles[0].Organization == nil || *profiles[0].Organization != org {
		t.Fatalf("organization missing: %+v", profiles[0])
	}
}

func TestUpsertProfileRequiresID(t *testing.T) {
	client, _ := openStubClient(t)
	if _, err := client.UpsertProfile(context.Background(), ProfileRow{Email: "x@example.org"}); err == nil {
		t.Fatal("expected error for missing id")
	}
}

func TestInsertSpecimenRowDefaults(t *testing.T) {
	client, stub := openStubClient(t)
	ctx := context.Background()

	now := time.Date(2026, 7, 14, 12, 0, 0, 0, time.UTC)
	client.nowFn = func() time.Time { return now }

	row, err := client.InsertSpecimenRow(ctx, SpecimenRow{
		ProjectID:      "p-1",
		SpecimenNumber: "SPEC-20260714-AB12",
		CollectedBy:    "user-1",
		Verified:       true,
	})
	if err != nil {
		t.Fatalf("insert specimen row: %v", err)
	}
	if row.ID == "" {
		t.Fatal("expected generated id")
	}
	if row.SyncStatus != "pending" {
		t.Fatalf("expected pending sync status, got %q", row.SyncStatus)
	}
	if !row.CollectedDate.Equal(now) {
		t.Fatalf("expected collected date defaulted to now, got %v", row.CollectedDate)
	}

	stored := stub.Rows("specimens")
	if len(stored) != 1 {
		t.Fatalf("expected 1 stored row, got %d", len(stored))
	}
	if stored[0]["specimen_number"] != "SPEC-20260714-AB12" {
		t.Fatalf("specimen_number not stored: %v", stored[0])
	}
	if stored[0]["verified"] != true {
		t.Fatalf("verified flag not stored: %v", stored[0])
	}
}

func TestInsertSpecimenRowRequiresProjectAndCollector(t *testing.T) {
	client, _ := openStubClient(t)
	ctx := context.Background()
	if _, err := client.InsertSpecimenRow(ctx, SpecimenRow{CollectedBy: "user-1"}); err == nil {
		t.Fatal("expected error for missing project_id")
	}
	if _, err := client.InsertSpecimenRow(ctx, SpecimenRow{ProjectID: "p-1"}); err == nil {
		t.Fatal("expected error for missing collected_by")
	}
}

func TestListSpecimenRowsNewestFirst(t *testing.T) {
	client, _ := openStubClient(t)
	ctx := context.Background()

	base := time.Date(2026, 7, 14, 12, 0, 0, 0, time.UTC)
	calls := 0
	client.nowFn = func() time.Time {
		calls++
		return base.Add(time.Duration(calls) * time.Hour)
	}

	older, err := client.InsertSpecimenRow(ctx, SpecimenRow{ProjectID: "p-1", SpecimenNumber: "SPEC-000001", CollectedBy: "user-1"})
	if err != nil {
		t.Fatalf("insert older: %v", err)
	}
	newer, err := client.InsertSpecimenRow(ctx, SpecimenRow{ProjectID: "p-1", SpecimenNumber: "SPEC-000002", CollectedBy: "user-1"})
	if err != nil {
		t.Fatalf("insert newer: %v", err)
	}

	rows, err := client.ListSpecimenRows(ctx)
	if err != nil {
		t.Fatalf("list specimen rows: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	if rows[0].ID != newer.ID || rows[1].ID != older.ID {
		t.Fatalf("expected newest first, got %q then %q", rows[0].SpecimenNumber, rows[1].SpecimenNumber)
	}
}

func TestOpenFailsWhenPingFails(t *testing.T) {
	db, stub := testutil.Open()
	stub.FailPing = true
	restore := OverrideSQLOpen(func(string, string) (*sql.DB, error) { return db, nil })
	defer restore()
	if _, err := Open(context.Background(), ""); err == nil {
		t.Fatal("expected ping failure to surface")
	}
}
