package state

import (
	"testing"
	"time"

	"github.com/lotas/keeptabs/internal/types"
)

// fakePersister counts saves and keeps the last persisted state.
type fakePersister struct {
	saves    int
	tabSaves int
	last     *types.PersistedState
	lastTabs []types.Tab
	saveErr  error
}

func (f *fakePersister) SaveState(ps *types.PersistedState) error {
	f.saves++
	f.last = ps
	return f.saveErr
}

func (f *fakePersister) SaveCurrentTabs(tabs []types.Tab) error {
	f.tabSaves++
	f.lastTabs = tabs
	return nil
}

func newTestStore() (*Store, *fakePersister) {
	p := &fakePersister{}
	return NewStore(types.NewAppState(), p), p
}

func TestCreatePrependsAndGeneratesIDs(t *testing.T) {
	s, p := newTestStore()

	a := s.Create("First", "", nil)
	b := s.Create("Second", "", nil)

	if a.ID == "" || b.ID == "" {
		t.Fatal("expected generated ids")
	}
	if a.ID == b.ID {
		t.Error("ids must be unique")
	}
	if a.Color != types.DefaultCollectionColor {
		t.Errorf("expected default color, got %q", a.Color)
	}
	if a.CreatedAt.IsZero() || !a.UpdatedAt.Equal(a.CreatedAt) {
		t.Errorf("timestamps not set at creation: %+v", a)
	}

	cols := s.Collections()
	if len(cols) != 2 {
		t.Fatalf("expected 2 collections, got %d", len(cols))
	}
	if cols[0].ID != b.ID || cols[1].ID != a.ID {
		t.Error("expected newest collection first")
	}
	if p.saves != 2 {
		t.Errorf("expected 2 persists, got %d", p.saves)
	}
}

func TestCreateAssignsFreshTabIDs(t *testing.T) {
	s, _ := newTestStore()

	live := []types.Tab{
		{ID: "42", Title: "Example", URL: "https://example.com", Pinned: true},
	}
	c := s.Create("Snapshot", "", live)

	if len(c.Tabs) != 1 {
		t.Fatalf("expected 1 tab, got %d", len(c.Tabs))
	}
	if c.Tabs[0].ID == "42" {
		t.Error("collection tabs must not reuse live-tab ids")
	}
	if !c.Tabs[0].Pinned || c.Tabs[0].URL != "https://example.com" {
		t.Errorf("tab fields lost: %+v", c.Tabs[0])
	}
}

func TestCreateDeleteNoDuplicateIDs(t *testing.T) {
	s, _ := newTestStore()

	var ids []string
	for i := 0; i < 10; i++ {
		c := s.Create("c", "", nil)
		ids = append(ids, c.ID)
	}
	s.Delete(ids[3])
	s.Delete(ids[7])
	s.Create("more", "", nil)
	s.Create("more", "", nil)

	seen := make(map[string]bool)
	for _, c := range s.Collections() {
		if seen[c.ID] {
			t.Fatalf("duplicate id %q", c.ID)
		}
		seen[c.ID] = true
	}
}

func TestDeleteNotFound(t *testing.T) {
	s, _ := newTestStore()
	if err := s.Delete("missing"); err != ErrNotFound {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestDeleteClearsSelection(t *testing.T) {
	s, _ := newTestStore()
	c := s.Create("Hiking", "", nil)
	s.SelectCollection(c.ID)

	if err := s.Delete(c.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if sel := s.Selected(); sel.Kind != types.SelectionNone {
		t.Errorf("expected selection cleared, got %+v", sel)
	}
}

func TestDeleteKeepsUnrelatedSelection(t *testing.T) {
	s, _ := newTestStore()
	a := s.Create("A", "", nil)
	b := s.Create("B", "", nil)
	s.SelectCollection(a.ID)

	s.Delete(b.ID)
	if sel := s.Selected(); sel.CollectionID != a.ID {
		t.Errorf("selection should survive unrelated delete, got %+v", sel)
	}
}

func TestAddTabDuplicateURL(t *testing.T) {
	s, p := newTestStore()
	c := s.Create("Hiking", "", nil)
	savesBefore := p.saves

	tab := types.Tab{Title: "Trail Guide", URL: "https://example.com/trails"}
	added, err := s.AddTab(c.ID, tab)
	if err != nil || !added {
		t.Fatalf("first add: added=%v err=%v", added, err)
	}
	added, err = s.AddTab(c.ID, tab)
	if err != nil {
		t.Fatalf("second add: %v", err)
	}
	if added {
		t.Error("expected duplicate URL to be a no-op")
	}

	got, _ := s.Get(c.ID)
	if len(got.Tabs) != 1 {
		t.Errorf("expected 1 tab, got %d", len(got.Tabs))
	}
	// Only the successful add persists.
	if p.saves != savesBefore+1 {
		t.Errorf("expected 1 persist from adds, got %d", p.saves-savesBefore)
	}
}

func TestAddTabAssignsFreshIDAndStamp(t *testing.T) {
	s, _ := newTestStore()
	c := s.Create("Reading", "", nil)

	_, err := s.AddTab(c.ID, types.Tab{ID: "99", Title: "Doc", URL: "https://docs.example.com", Active: true, GroupID: 3})
	if err != nil {
		t.Fatalf("AddTab: %v", err)
	}
	got, _ := s.Get(c.ID)
	tab := got.Tabs[0]
	if tab.ID == "99" || tab.ID == "" {
		t.Errorf("expected fresh id, got %q", tab.ID)
	}
	if tab.LastAccessed.IsZero() {
		t.Error("expected lastAccessed stamp")
	}
	if tab.Active || tab.GroupID != 0 {
		t.Errorf("host-only fields should be dropped: %+v", tab)
	}
}

func TestAddTabCollectionNotFound(t *testing.T) {
	s, _ := newTestStore()
	if _, err := s.AddTab("missing", types.Tab{URL: "https://x"}); err != ErrNotFound {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestRemoveTab(t *testing.T) {
	s, _ := newTestStore()
	c := s.Create("Reading", "", nil)
	s.AddTab(c.ID, types.Tab{Title: "A", URL: "https://a"})
	s.AddTab(c.ID, types.Tab{Title: "B", URL: "https://b"})

	got, _ := s.Get(c.ID)
	if err := s.RemoveTab(c.ID, got.Tabs[0].ID); err != nil {
		t.Fatalf("RemoveTab: %v", err)
	}
	got, _ = s.Get(c.ID)
	if len(got.Tabs) != 1 || got.Tabs[0].URL != "https://b" {
		t.Errorf("unexpected tabs after remove: %+v", got.Tabs)
	}

	if err := s.RemoveTab(c.ID, "ghost"); err != ErrTabNotFound {
		t.Errorf("expected ErrTabNotFound, got %v", err)
	}
}

func TestUpdatePatchAndTimestamps(t *testing.T) {
	s, _ := newTestStore()
	c := s.Create("Old Name", "old desc", nil)
	created := c.CreatedAt

	time.Sleep(2 * time.Millisecond)
	name := "New Name"
	tags := []string{"work", "go"}
	if err := s.Update(c.ID, CollectionPatch{Name: &name, Tags: &tags}); err != nil {
		t.Fatalf("Update: %v", err)
	}

	got, _ := s.Get(c.ID)
	if got.Name != "New Name" {
		t.Errorf("name not updated: %q", got.Name)
	}
	if got.Description != "old desc" {
		t.Errorf("unpatched field changed: %q", got.Description)
	}
	if len(got.Tags) != 2 {
		t.Errorf("tags not updated: %v", got.Tags)
	}
	if !got.CreatedAt.Equal(created) {
		t.Error("createdAt must never change")
	}
	if got.UpdatedAt.Before(created) {
		t.Error("updatedAt must never decrease")
	}
	if !got.UpdatedAt.After(created) {
		t.Error("expected updatedAt refresh on update")
	}
}

func TestUpdatedAtMonotonic(t *testing.T) {
	s, _ := newTestStore()
	c := s.Create("M", "", nil)

	prev := c.UpdatedAt
	ops := []func(){
		func() { s.AddTab(c.ID, types.Tab{Title: "A", URL: "https://a"}) },
		func() { d := "desc"; s.Update(c.ID, CollectionPatch{Description: &d}) },
		func() {
			got, _ := s.Get(c.ID)
			s.RemoveTab(c.ID, got.Tabs[0].ID)
		},
	}
	for i, op := range ops {
		op()
		got, _ := s.Get(c.ID)
		if got.UpdatedAt.Before(prev) {
			t.Fatalf("op %d: updatedAt went backwards", i)
		}
		if !got.CreatedAt.Equal(c.CreatedAt) {
			t.Fatalf("op %d: createdAt changed", i)
		}
		prev = got.UpdatedAt
	}
}

func TestUpdateNotFound(t *testing.T) {
	s, _ := newTestStore()
	name := "x"
	if err := s.Update("missing", CollectionPatch{Name: &name}); err != ErrNotFound {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestSearch(t *testing.T) {
	s, _ := newTestStore()
	music := s.Create("Music", "Music production and theory", nil)
	s.AddTab(music.ID, types.Tab{Title: "Ableton Live Tutorials", URL: "https://www.ableton.com/tutorials"})
	hiking := s.Create("Hiking", "Best hiking trails and gear", nil)
	tags := []string{"nature", "trails"}
	s.Update(hiking.ID, CollectionPatch{Tags: &tags})

	// Empty query returns everything, in order.
	all := s.Search("")
	if len(all) != 2 {
		t.Fatalf("expected 2, got %d", len(all))
	}
	if all[0].ID != hiking.ID || all[1].ID != music.ID {
		t.Error("empty search must preserve order")
	}

	cases := []struct {
		query string
		want  string
	}{
		{"hik", hiking.ID},        // name, case-insensitive substring
		{"THEORY", music.ID},      // description
		{"nature", hiking.ID},     // tag
		{"ableton.com", music.ID}, // tab url
		{"Tutorials", music.ID},   // tab title
	}
	for _, tc := range cases {
		got := s.Search(tc.query)
		if len(got) != 1 || got[0].ID != tc.want {
			t.Errorf("Search(%q): got %d results, want collection %s", tc.query, len(got), tc.want)
		}
	}

	if got := s.Search("zzz-no-match"); len(got) != 0 {
		t.Errorf("expected empty result, got %d", len(got))
	}
}

func TestTotalTabCount(t *testing.T) {
	s, _ := newTestStore()
	if s.TotalTabCount() != 0 {
		t.Error("expected 0 for empty store")
	}
	a := s.Create("A", "", nil)
	s.AddTab(a.ID, types.Tab{Title: "1", URL: "https://1"})
	s.AddTab(a.ID, types.Tab{Title: "2", URL: "https://2"})
	b := s.Create("B", "", nil)
	s.AddTab(b.ID, types.Tab{Title: "3", URL: "https://3"})

	if got := s.TotalTabCount(); got != 3 {
		t.Errorf("expected 3, got %d", got)
	}
}

func TestSaveCurrentTabsSnapshotsCopy(t *testing.T) {
	s, _ := newTestStore()
	s.SetCurrentTabs([]types.Tab{
		{ID: "1", Title: "Example", URL: "https://example.com"},
	})

	c := s.SaveCurrentTabs("Session", "open tabs")
	if len(c.Tabs) != 1 {
		t.Fatalf("expected 1 tab, got %d", len(c.Tabs))
	}

	// Mutating the mirror afterwards must not touch the collection.
	s.SetCurrentTabs([]types.Tab{})
	got, _ := s.Get(c.ID)
	if len(got.Tabs) != 1 {
		t.Error("collection tabs must be a snapshot, not a live reference")
	}
}

func TestSetCurrentTabsCaches(t *testing.T) {
	s, p := newTestStore()
	s.SetCurrentTabs([]types.Tab{{ID: "1", URL: "https://a"}})
	if p.tabSaves != 1 {
		t.Errorf("expected currentTabs cache write, got %d", p.tabSaves)
	}
	// The state blob itself is not rewritten for mirror refreshes.
	if p.saves != 0 {
		t.Errorf("mirror refresh must not persist the app blob, got %d saves", p.saves)
	}
}

func TestImportAppends(t *testing.T) {
	s, _ := newTestStore()
	s.Create("Existing", "", nil)

	s.Import([]types.Collection{
		{ID: "i1", Name: "Imported", Tabs: nil},
	})

	cols := s.Collections()
	if len(cols) != 2 {
		t.Fatalf("expected 2, got %d", len(cols))
	}
	if cols[1].Name != "Imported" {
		t.Error("imports must append, not prepend")
	}
	if cols[1].Tabs == nil {
		t.Error("nil tabs must be normalized to empty")
	}
}

func TestAutoSaveOffSkipsPersist(t *testing.T) {
	p := &fakePersister{}
	st := types.NewAppState()
	st.AutoSave = false
	s := NewStore(st, p)

	s.Create("quiet", "", nil)
	if p.saves != 0 {
		t.Errorf("expected no persists with autoSave off, got %d", p.saves)
	}
}

func TestApplyPersisted(t *testing.T) {
	s, _ := newTestStore()
	s.ApplyPersisted(&types.PersistedState{
		Collections: nil,
		Theme:       types.ThemeLight,
		AutoSave:    true,
		APIKey:      "sk-abc",
		AIEnabled:   true,
	})
	if s.Theme() != types.ThemeLight || s.APIKey() != "sk-abc" || !s.AIEnabled() {
		t.Error("persisted fields not applied")
	}
	if s.Collections() == nil {
		t.Error("nil collections must normalize to empty")
	}
}
