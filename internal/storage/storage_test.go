package storage

import (
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/lotas/keeptabs/internal/types"
)

func testDB(t *testing.T) *sql.DB {
	t.Helper()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "test.db")
	db, err := OpenDB(dbPath)
	if err != nil {
		t.Fatalf("OpenDB(%q): %v", dbPath, err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestGetMissingKey(t *testing.T) {
	db := testDB(t)

	_, ok, err := Get(db, "nope")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if ok {
		t.Error("expected ok=false for missing key")
	}
}

func TestPutGetRoundtrip(t *testing.T) {
	db := testDB(t)

	if err := Put(db, "k", []byte("v1")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	// Overwrite.
	if err := Put(db, "k", []byte("v2")); err != nil {
		t.Fatalf("Put overwrite: %v", err)
	}

	got, ok, err := Get(db, "k")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !ok {
		t.Fatal("expected ok=true")
	}
	if string(got) != "v2" {
		t.Errorf("got %q, want v2", got)
	}
}

func TestLoadStateEmpty(t *testing.T) {
	db := testDB(t)

	ps, err := LoadState(db)
	if err != nil {
		t.Fatalf("LoadState: %v", err)
	}
	if ps != nil {
		t.Errorf("expected nil state for empty store, got %+v", ps)
	}
}

func TestSaveLoadState(t *testing.T) {
	db := testDB(t)

	now := time.Now().UTC().Truncate(time.Second)
	in := &types.PersistedState{
		Collections: []types.Collection{
			{
				ID:        "c1",
				Name:      "Hiking",
				Tabs:      []types.Tab{{ID: "t1", Title: "Trail Guide", URL: "https://example.com/trails"}},
				CreatedAt: now,
				UpdatedAt: now,
				Color:     types.DefaultCollectionColor,
			},
		},
		Theme:     types.ThemeDark,
		AutoSave:  true,
		APIKey:    "sk-test",
		AIEnabled: true,
	}

	if err := SaveState(db, in); err != nil {
		t.Fatalf("SaveState: %v", err)
	}

	out, err := LoadState(db)
	if err != nil {
		t.Fatalf("LoadState: %v", err)
	}
	if out == nil {
		t.Fatal("expected state")
	}
	if len(out.Collections) != 1 {
		t.Fatalf("expected 1 collection, got %d", len(out.Collections))
	}
	c := out.Collections[0]
	if c.Name != "Hiking" || c.ID != "c1" || len(c.Tabs) != 1 {
		t.Errorf("collection mismatch: %+v", c)
	}
	if !c.CreatedAt.Equal(now) {
		t.Errorf("createdAt changed: got %v, want %v", c.CreatedAt, now)
	}
	if out.APIKey != "sk-test" || !out.AIEnabled {
		t.Errorf("ai config mismatch: %+v", out)
	}
}

func TestLoadStateNormalizesNilTabs(t *testing.T) {
	db := testDB(t)

	// A hand-written blob with no tabs field at all.
	blob := `{"collections":[{"id":"c1","name":"Empty","createdAt":"2024-01-01T00:00:00Z","updatedAt":"2024-01-01T00:00:00Z"}],"theme":"dark","autoSave":true}`
	if err := Put(db, KeyAppData, []byte(blob)); err != nil {
		t.Fatalf("Put: %v", err)
	}

	ps, err := LoadState(db)
	if err != nil {
		t.Fatalf("LoadState: %v", err)
	}
	if ps.Collections[0].Tabs == nil {
		t.Error("expected tabs normalized to empty slice, got nil")
	}
	if len(ps.Collections[0].Tabs) != 0 {
		t.Errorf("expected 0 tabs, got %d", len(ps.Collections[0].Tabs))
	}
}

func TestCurrentTabsCache(t *testing.T) {
	db := testDB(t)

	tabs, err := LoadCurrentTabs(db)
	if err != nil {
		t.Fatalf("LoadCurrentTabs: %v", err)
	}
	if tabs != nil {
		t.Errorf("expected nil for empty cache, got %v", tabs)
	}

	in := []types.Tab{
		{ID: "12", Title: "Example", URL: "https://example.com", Pinned: true},
		{ID: "13", Title: "Untitled", URL: ""},
	}
	if err := SaveCurrentTabs(db, in); err != nil {
		t.Fatalf("SaveCurrentTabs: %v", err)
	}

	out, err := LoadCurrentTabs(db)
	if err != nil {
		t.Fatalf("LoadCurrentTabs: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("expected 2 tabs, got %d", len(out))
	}
	if out[0].ID != "12" || !out[0].Pinned {
		t.Errorf("tab mismatch: %+v", out[0])
	}
}

func TestMigrationsIdempotent(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "test.db")

	db, err := OpenDB(dbPath)
	if err != nil {
		t.Fatalf("OpenDB: %v", err)
	}
	if err := Put(db, "k", []byte("v")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	db.Close()

	// Reopen — migrations must not reapply or clobber data.
	db2, err := OpenDB(dbPath)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer db2.Close()

	got, ok, err := Get(db2, "k")
	if err != nil || !ok {
		t.Fatalf("Get after reopen: ok=%v err=%v", ok, err)
	}
	if string(got) != "v" {
		t.Errorf("got %q, want v", got)
	}
}
