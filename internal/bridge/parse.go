package bridge

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/lotas/keeptabs/internal/types"
)

// wireTab is a tab as the extension reports it: numeric host id, favicon
// under favIconUrl, lastAccessed in epoch milliseconds.
type wireTab struct {
	ID           int    `json:"id"`
	Title        string `json:"title"`
	URL          string `json:"url"`
	FavIconURL   string `json:"favIconUrl"`
	Pinned       bool   `json:"pinned"`
	Active       bool   `json:"active"`
	GroupID      int    `json:"groupId"`
	LastAccessed int64  `json:"lastAccessed"`
}

type wireGroup struct {
	ID        int    `json:"id"`
	Title     string `json:"title"`
	Color     string `json:"color"`
	Collapsed bool   `json:"collapsed"`
	WindowID  int    `json:"windowId"`
}

func normalizeTab(wt wireTab) types.Tab {
	id := strconv.Itoa(wt.ID)
	if wt.ID <= 0 {
		// Tabs without a host id (restoring, discarded) still need a
		// stable identity on our side.
		id = uuid.NewString()
	}
	title := wt.Title
	if title == "" {
		title = "Untitled"
	}
	groupID := wt.GroupID
	if groupID < 0 {
		groupID = 0
	}
	last := time.Now()
	if wt.LastAccessed > 0 {
		last = time.UnixMilli(wt.LastAccessed)
	}
	return types.Tab{
		ID:           id,
		Title:        title,
		URL:          wt.URL,
		Favicon:      wt.FavIconURL,
		Pinned:       wt.Pinned,
		Active:       wt.Active,
		GroupID:      groupID,
		LastAccessed: last,
	}
}

// parseTabs decodes the extension's tab array and normalizes each entry.
func parseTabs(raw json.RawMessage) ([]types.Tab, error) {
	var wire []wireTab
	if err := json.Unmarshal(raw, &wire); err != nil {
		return nil, err
	}
	tabs := make([]types.Tab, 0, len(wire))
	for _, wt := range wire {
		tabs = append(tabs, normalizeTab(wt))
	}
	return tabs, nil
}

// parseGroups decodes the extension's group array and attaches each
// group's member tabs, matched by the tabs' groupId.
func parseGroups(raw json.RawMessage, tabs []types.Tab) ([]types.TabGroup, error) {
	var wire []wireGroup
	if err := json.Unmarshal(raw, &wire); err != nil {
		return nil, err
	}
	groups := make([]types.TabGroup, 0, len(wire))
	for _, wg := range wire {
		g := types.TabGroup{
			ID:        wg.ID,
			Title:     wg.Title,
			Color:     wg.Color,
			Collapsed: wg.Collapsed,
			WindowID:  wg.WindowID,
			Tabs:      []types.Tab{},
		}
		for _, t := range tabs {
			if t.GroupID == wg.ID {
				g.Tabs = append(g.Tabs, t)
			}
		}
		groups = append(groups, g)
	}
	return groups, nil
}
