package types

import "time"

// DefaultCollectionColor is the accent assigned to new collections.
const DefaultCollectionColor = "#3B82F6"

// Tab is a snapshot of one open or saved browser tab.
//
// For live tabs the ID is the host's numeric tab id stringified (or a
// generated uuid when the host doesn't report one). Tabs stored inside a
// collection always carry a fresh generated id, so collection-tab identity
// is decoupled from live-tab identity.
type Tab struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	URL          string    `json:"url"`
	Favicon      string    `json:"favicon,omitempty"`
	Pinned       bool      `json:"pinned,omitempty"`
	Active       bool      `json:"active,omitempty"`
	GroupID      int       `json:"groupId,omitempty"` // 0 = ungrouped; host sentinel -1 is normalized to 0
	LastAccessed time.Time `json:"lastAccessed,omitzero"`
}

// TabGroup is a live grouping of tabs as reported by the host.
// It is a read-only snapshot, re-derived on every refresh and never
// persisted on its own.
type TabGroup struct {
	ID        int    `json:"id"`
	Title     string `json:"title,omitempty"`
	Color     string `json:"color"`
	Collapsed bool   `json:"collapsed"`
	WindowID  int    `json:"windowId"`
	Tabs      []Tab  `json:"tabs"`
}

// GroupColors is the fixed palette the host uses for tab groups.
var GroupColors = []string{"grey", "blue", "red", "yellow", "green", "pink", "purple", "cyan", "orange"}

// Collection is a user-created, named, persisted bag of tabs.
type Collection struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Tabs        []Tab     `json:"tabs"`
	Category    string    `json:"category,omitempty"`
	Tags        []string  `json:"tags,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
	Color       string    `json:"color,omitempty"`
}

// TabCount returns the number of tabs, treating a nil slice as zero.
func (c *Collection) TabCount() int {
	return len(c.Tabs)
}

// SelectionKind tags what the UI currently has selected.
type SelectionKind int

const (
	SelectionNone SelectionKind = iota
	SelectionCollection
	SelectionLiveGroup
)

// Selection is the tagged replacement for the original duck-typed
// "collection or live group" selection value. It stores ids only;
// callers resolve the full record via lookup.
type Selection struct {
	Kind         SelectionKind
	CollectionID string // set when Kind == SelectionCollection
	GroupID      int    // set when Kind == SelectionLiveGroup
}

// Theme values.
const (
	ThemeLight = "light"
	ThemeDark  = "dark"
)

// AppState is the process-wide root aggregate. It is owned by the
// collection store; nothing else mutates it directly.
type AppState struct {
	Collections []Collection
	CurrentTabs []Tab
	TabGroups   []TabGroup
	SearchQuery string
	Selected    Selection
	Theme       string
	AutoSave    bool
	APIKey      string
	AIEnabled   bool
}

// NewAppState returns the empty default state used before the persisted
// blob is loaded.
func NewAppState() *AppState {
	return &AppState{
		Theme:    ThemeDark,
		AutoSave: true,
	}
}

// PersistedState is the durable subset of AppState stored under the
// keep-tabs-data key. The search query and selection are session
// transients and deliberately left out; currentTabs are cached under
// their own key.
type PersistedState struct {
	Collections []Collection `json:"collections"`
	Theme       string       `json:"theme"`
	AutoSave    bool         `json:"autoSave"`
	APIKey      string       `json:"apiKey,omitempty"`
	AIEnabled   bool         `json:"isAiEnabled"`
}
