// Package state owns the in-memory application state: the authoritative
// list of collections plus the live tab mirror's latest snapshot.
//
// Every mutating operation ends with an explicit synchronous persist
// through the Persister, replacing the original extension's implicit
// deep-watch save. Persistence failures are logged and not retried; the
// in-memory state stays the source of truth until the next save succeeds.
package state

import (
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lotas/keeptabs/internal/applog"
	"github.com/lotas/keeptabs/internal/types"
)

var (
	// ErrNotFound is returned when no collection matches the given id.
	ErrNotFound = errors.New("collection not found")
	// ErrTabNotFound is returned when no tab matches the given id within
	// the target collection.
	ErrTabNotFound = errors.New("tab not found in collection")
)

// Persister receives the durable state after each mutation.
type Persister interface {
	SaveState(*types.PersistedState) error
	SaveCurrentTabs([]types.Tab) error
}

// Store is the mutex-guarded owner of AppState.
type Store struct {
	mu sync.Mutex
	st *types.AppState
	p  Persister // nil disables persistence entirely
}

// NewStore wraps the given state. A nil persister is allowed (tests,
// import dry-runs) and simply skips all saves.
func NewStore(st *types.AppState, p Persister) *Store {
	if st == nil {
		st = types.NewAppState()
	}
	if st.Collections == nil {
		st.Collections = []types.Collection{}
	}
	return &Store{st: st, p: p}
}

// ApplyPersisted overwrites the durable fields from a loaded blob.
// Called once at startup before any mutation.
func (s *Store) ApplyPersisted(ps *types.PersistedState) {
	if ps == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.Collections = ps.Collections
	if s.st.Collections == nil {
		s.st.Collections = []types.Collection{}
	}
	if ps.Theme != "" {
		s.st.Theme = ps.Theme
	}
	s.st.AutoSave = ps.AutoSave
	s.st.APIKey = ps.APIKey
	s.st.AIEnabled = ps.AIEnabled
}

// persist writes the durable subset of state. Caller must hold s.mu.
func (s *Store) persist() {
	if s.p == nil || !s.st.AutoSave {
		return
	}
	ps := &types.PersistedState{
		Collections: s.st.Collections,
		Theme:       s.st.Theme,
		AutoSave:    s.st.AutoSave,
		APIKey:      s.st.APIKey,
		AIEnabled:   s.st.AIEnabled,
	}
	if err := s.p.SaveState(ps); err != nil {
		applog.Error("state.persist", err)
	}
}

// Create makes a new collection and prepends it to the list, so the
// newest collection is always first. Empty names are permitted.
// The provided tabs are copied in with fresh ids — collection tabs never
// reuse live-tab identity.
func (s *Store) Create(name, description string, tabs []types.Tab) types.Collection {
	now := time.Now()
	c := types.Collection{
		ID:          uuid.NewString(),
		Name:        name,
		Description: description,
		Tabs:        make([]types.Tab, 0, len(tabs)),
		CreatedAt:   now,
		UpdatedAt:   now,
		Color:       types.DefaultCollectionColor,
	}
	for _, t := range tabs {
		t.ID = uuid.NewString()
		c.Tabs = append(c.Tabs, t)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.Collections = append([]types.Collection{c}, s.st.Collections...)
	applog.Info("collection.created", "id", c.ID, "name", c.Name, "tabs", len(c.Tabs))
	s.persist()
	return c
}

// CollectionPatch holds the fields Update can merge into an existing
// collection. Nil fields are left untouched.
type CollectionPatch struct {
	Name        *string
	Description *string
	Category    *string
	Tags        *[]string
	Color       *string
	Tabs        *[]types.Tab
}

// Update merges the patch into the collection with the given id and
// refreshes updatedAt. CreatedAt and the id itself never change.
func (s *Store) Update(id string, patch CollectionPatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(id)
	if i < 0 {
		return ErrNotFound
	}
	c := &s.st.Collections[i]
	if patch.Name != nil {
		c.Name = *patch.Name
	}
	if patch.Description != nil {
		c.Description = *patch.Description
	}
	if patch.Category != nil {
		c.Category = *patch.Category
	}
	if patch.Tags != nil {
		c.Tags = *patch.Tags
	}
	if patch.Color != nil {
		c.Color = *patch.Color
	}
	if patch.Tabs != nil {
		c.Tabs = *patch.Tabs
		if c.Tabs == nil {
			c.Tabs = []types.Tab{}
		}
	}
	c.UpdatedAt = time.Now()
	s.persist()
	return nil
}

// Delete removes the collection. If it was the current selection, the
// selection is cleared.
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(id)
	if i < 0 {
		return ErrNotFound
	}
	s.st.Collections = append(s.st.Collections[:i], s.st.Collections[i+1:]...)
	if s.st.Selected.Kind == types.SelectionCollection && s.st.Selected.CollectionID == id {
		s.st.Selected = types.Selection{}
	}
	applog.Info("collection.deleted", "id", id)
	s.persist()
	return nil
}

// AddTab appends a tab to the collection unless a tab with the same URL
// is already present (exact string match, per-collection). The stored tab
// gets a fresh id and a lastAccessed stamp; host-only fields (active,
// group) are dropped. Returns false when the URL was a duplicate.
func (s *Store) AddTab(collectionID string, tab types.Tab) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(collectionID)
	if i < 0 {
		return false, ErrNotFound
	}
	c := &s.st.Collections[i]
	for _, t := range c.Tabs {
		if t.URL == tab.URL {
			return false, nil
		}
	}
	c.Tabs = append(c.Tabs, types.Tab{
		ID:           uuid.NewString(),
		Title:        tab.Title,
		URL:          tab.URL,
		Favicon:      tab.Favicon,
		Pinned:       tab.Pinned,
		LastAccessed: time.Now(),
	})
	c.UpdatedAt = time.Now()
	applog.Info("collection.tab.added", "collection", collectionID, "url", tab.URL)
	s.persist()
	return true, nil
}

// RemoveTab removes a tab by id from the collection.
func (s *Store) RemoveTab(collectionID, tabID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(collectionID)
	if i < 0 {
		return ErrNotFound
	}
	c := &s.st.Collections[i]
	for j, t := range c.Tabs {
		if t.ID == tabID {
			c.Tabs = append(c.Tabs[:j], c.Tabs[j+1:]...)
			c.UpdatedAt = time.Now()
			s.persist()
			return nil
		}
	}
	return ErrTabNotFound
}

// SaveCurrentTabs snapshots the mirror's current tabs into a new
// collection. The caller is expected to refresh the mirror first.
func (s *Store) SaveCurrentTabs(name, description string) types.Collection {
	s.mu.Lock()
	tabs := make([]types.Tab, len(s.st.CurrentTabs))
	copy(tabs, s.st.CurrentTabs)
	s.mu.Unlock()
	return s.Create(name, description, tabs)
}

// Import appends collections to the existing list (imports never
// prepend, and no deduplication against existing collections occurs).
func (s *Store) Import(collections []types.Collection) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range collections {
		if c.Tabs == nil {
			c.Tabs = []types.Tab{}
		}
		s.st.Collections = append(s.st.Collections, c)
	}
	applog.Info("collections.imported", "count", len(collections))
	s.persist()
}

// Search returns collections whose name, description, any tag, or any
// member tab title/url contains the query (case-insensitive). An empty
// query returns all collections in order.
func (s *Store) Search(query string) []types.Collection {
	s.mu.Lock()
	defer s.mu.Unlock()

	if query == "" {
		out := make([]types.Collection, len(s.st.Collections))
		copy(out, s.st.Collections)
		return out
	}

	q := strings.ToLower(query)
	var out []types.Collection
	for _, c := range s.st.Collections {
		if collectionMatches(&c, q) {
			out = append(out, c)
		}
	}
	return out
}

func collectionMatches(c *types.Collection, q string) bool {
	if strings.Contains(strings.ToLower(c.Name), q) ||
		strings.Contains(strings.ToLower(c.Description), q) {
		return true
	}
	for _, tag := range c.Tags {
		if strings.Contains(strings.ToLower(tag), q) {
			return true
		}
	}
	for _, t := range c.Tabs {
		if strings.Contains(strings.ToLower(t.Title), q) ||
			strings.Contains(strings.ToLower(t.URL), q) {
			return true
		}
	}
	return false
}

// TotalTabCount sums tab counts across all collections.
func (s *Store) TotalTabCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	sum := 0
	for i := range s.st.Collections {
		sum += s.st.Collections[i].TabCount()
	}
	return sum
}

// Get returns the collection with the given id.
func (s *Store) Get(id string) (types.Collection, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i := s.indexOf(id); i >= 0 {
		return s.st.Collections[i], true
	}
	return types.Collection{}, false
}

// Collections returns a copy of the full collection list (newest first).
func (s *Store) Collections() []types.Collection {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]types.Collection, len(s.st.Collections))
	copy(out, s.st.Collections)
	return out
}

// indexOf returns the position of the collection with the given id, or
// -1. Caller must hold s.mu.
func (s *Store) indexOf(id string) int {
	for i := range s.st.Collections {
		if s.st.Collections[i].ID == id {
			return i
		}
	}
	return -1
}

// --- Live mirror state ---

// SetCurrentTabs replaces the live tab snapshot wholesale and caches it
// under its own storage key for instant display on the next start.
func (s *Store) SetCurrentTabs(tabs []types.Tab) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.CurrentTabs = tabs
	if s.p != nil {
		if err := s.p.SaveCurrentTabs(tabs); err != nil {
			applog.Error("state.cache.tabs", err)
		}
	}
}

// SetTabGroups replaces the live group snapshot. Groups are re-derived
// from the host on every refresh and never persisted.
func (s *Store) SetTabGroups(groups []types.TabGroup) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.TabGroups = groups
}

// CurrentTabs returns a copy of the live tab snapshot.
func (s *Store) CurrentTabs() []types.Tab {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]types.Tab, len(s.st.CurrentTabs))
	copy(out, s.st.CurrentTabs)
	return out
}

// TabGroups returns a copy of the live group snapshot.
func (s *Store) TabGroups() []types.TabGroup {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]types.TabGroup, len(s.st.TabGroups))
	copy(out, s.st.TabGroups)
	return out
}

// --- Session transients (not persisted) ---

// SetSearchQuery stores the transient UI filter. It is deliberately not
// part of the persisted blob.
func (s *Store) SetSearchQuery(q string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.SearchQuery = q
}

// SearchQuery returns the transient UI filter.
func (s *Store) SearchQuery() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.SearchQuery
}

// SelectCollection points the selection at a persisted collection.
func (s *Store) SelectCollection(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.Selected = types.Selection{Kind: types.SelectionCollection, CollectionID: id}
}

// SelectLiveGroup points the selection at a live tab group.
func (s *Store) SelectLiveGroup(groupID int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.Selected = types.Selection{Kind: types.SelectionLiveGroup, GroupID: groupID}
}

// ClearSelection resets the selection.
func (s *Store) ClearSelection() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.Selected = types.Selection{}
}

// Selected returns the current tagged selection.
func (s *Store) Selected() types.Selection {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.Selected
}

// --- Settings ---

// SetTheme switches between light and dark.
func (s *Store) SetTheme(theme string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.Theme = theme
	s.persist()
}

// Theme returns the current theme.
func (s *Store) Theme() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.Theme
}

// SetAPIKey stores the naming assistant credential.
func (s *Store) SetAPIKey(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.APIKey = key
	s.persist()
}

// APIKey returns the naming assistant credential.
func (s *Store) APIKey() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.APIKey
}

// SetAIEnabled toggles whether the naming assistant is offered.
func (s *Store) SetAIEnabled(on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.AIEnabled = on
	s.persist()
}

// AIEnabled reports whether the naming assistant is offered.
func (s *Store) AIEnabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.AIEnabled
}
