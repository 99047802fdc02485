package fs

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"fieldcore/internal/infra/blob/core"
)

func TestPutGetRoundTrip(t *testing.T) {
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	ctx := context.Background()

	info, err := store.Put(ctx, "exports/specimens-export-2026-07-14.json", strings.NewReader(`[{"id":"s-1"}]`), core.PutOptions{
		ContentType: "application/json",
		Metadata:    map[string]string{"recordCount": "1"},
	})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if info.Size != int64(len(`[{"id":"s-1"}]`)) {
		t.Fatalf("unexpected size %d", info.Size)
	}
	if info.ETag == "" {
		t.Fatal("expected checksum etag")
	}

	got, rc, err := store.Get(ctx, "exports/specimens-export-2026-07-14.json")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer func() { _ = rc.Close() }()
	body, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	if string(body) != `[{"id":"s-1"}]` {
		t.Fatalf("unexpected body %q", body)
	}
	if got.ContentType != "application/json" || got.Metadata["recordCount"] != "1" {
		t.Fatalf("metadata not round-tripped: %+v", got)
	}
}

func TestPutReplacesExistingObject(t *testing.T) {
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	ctx := context.Background()

	if _, err := store.Put(ctx, "specimens-export-2026-07-14.json", strings.NewReader("[]"), core.PutOptions{}); err != nil {
		t.Fatalf("first put: %v", err)
	}
	info, err := store.Put(ctx, "specimens-export-2026-07-14.json", strings.NewReader(`[{"id":"s-2"}]`), core.PutOptions{})
	if err != nil {
		t.Fatalf("second put: %v", err)
	}
	if info.Size != int64(len(`[{"id":"s-2"}]`)) {
		t.Fatalf("replacement size not reflected: %d", info.Size)
	}

	_, rc, err := store.Get(ctx, "specimens-export-2026-07-14.json")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	body, _ := io.ReadAll(rc)
	_ = rc.Close()
	if string(body) != `[{"id":"s-2"}]` {
		t.Fatalf("old content survived replace: %q", body)
	}
}

func TestGetMissingReturnsNotFound(t *testing.T) {
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	_, _, err = store.Get(context.Background(), "missing.json")
	var nf core.NotFoundError
	if !errors.As(err, &nf) || nf.Key != "missing.json" {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
}

func TestDeleteReportsExistence(t *testing.T) {
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	ctx := context.Background()
	if _, err := store.Put(ctx, "photos/s-1/leaf.jpg", strings.NewReader("jpeg"), core.PutOptions{}); err != nil {
		t.Fatalf("put: %v", err)
	}
	existed, err := store.Delete(ctx, "photos/s-1/leaf.jpg")
	if err != nil || !existed {
		t.Fatalf("first delete: existed=%v err=%v", existed, err)
	}
	existed, err = store.Delete(ctx, "photos/s-1/leaf.jpg")
	if err != nil || existed {
		t.Fatalf("second delete: existed=%v err=%v", existed, err)
	}
	// sidecar must be gone too
	if _, err := os.Stat(filepath.Join(store.Root(), "photos/s-1/leaf.jpg.meta")); !errors.Is(err, os.ErrNotExist) {
		t.Fatal("sidecar left behind")
	}
}

func TestListFiltersByPrefix(t *testing.T) {
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	ctx := context.Background()
	for _, key := range []string{"exports/a.json", "exports/b.json", "photos/c.jpg"} {
		if _, err := store.Put(ctx, key, strings.NewReader("x"), core.PutOptions{}); err != nil {
			t.Fatalf("put %s: %v", key, err)
		}
	}
	infos, err := store.List(ctx, "exports/")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(infos) != 2 || infos[0].Key != "exports/a.json" || infos[1].Key != "exports/b.json" {
		t.Fatalf("unexpected listing: %+v", infos)
	}
}

func TestRejectsTraversalKeys(t *testing.T) {
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	ctx := context.Background()
	for _, key := range []string{"", "/etc/passwd", "../escape", "a/../../escape"} {
		if _, err := store.Put(ctx, key, strings.NewReader("x"), core.PutOptions{}); err == nil {
			t.Fatalf("key %q accepted", key)
		}
	}
}
