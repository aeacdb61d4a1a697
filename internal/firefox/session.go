// Package firefox reads tabs out of a Firefox profile's session
// recovery files. No extension or debugging port is needed; the
// trade-off is a read-only view that lags the browser by however often
// Firefox flushes its session store.
package firefox

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/lotas/keeptabs/internal/types"
	"github.com/pierrec/lz4/v4"
)

// mozlz4 header: 8-byte magic "mozLz40\x00"
var mozLz4Magic = []byte("mozLz40\x00")

// DecompressMozLz4 decompresses data in Mozilla's mozlz4 format:
// 8-byte magic + 4-byte LE uint32 uncompressed size + raw lz4 block.
func DecompressMozLz4(data []byte) ([]byte, error) {
	const headerSize = 12 // 8 magic + 4 size

	if len(data) < headerSize {
		return nil, fmt.Errorf("mozlz4: data too short (%d bytes)", len(data))
	}

	for i := 0; i < len(mozLz4Magic); i++ {
		if data[i] != mozLz4Magic[i] {
			return nil, fmt.Errorf("mozlz4: invalid header magic")
		}
	}

	uncompressedSize := binary.LittleEndian.Uint32(data[8:12])

	dst := make([]byte, uncompressedSize)
	n, err := lz4.UncompressBlock(data[headerSize:], dst)
	if err != nil {
		return nil, fmt.Errorf("mozlz4: decompress failed: %w", err)
	}

	return dst[:n], nil
}

// Raw JSON types for the session file.
type rawEntry struct {
	URL   string `json:"url"`
	Title string `json:"title"`
}

type rawTab struct {
	Entries      []rawEntry `json:"entries"`
	Index        int        `json:"index"`
	LastAccessed int64      `json:"lastAccessed"`
	Image        string     `json:"image"`
	Pinned       bool       `json:"pinned"`
	Group        string     `json:"groupId"`
}

type rawGroup struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Color     string `json:"color"`
	Collapsed bool   `json:"collapsed"`
}

type rawWindow struct {
	Tabs   []rawTab   `json:"tabs"`
	Groups []rawGroup `json:"groups"`
}

type rawSession struct {
	Windows []rawWindow `json:"windows"`
}

// Session is the parsed view of a session file: all tabs across
// windows, plus named tab groups with their member tabs.
type Session struct {
	Tabs   []types.Tab
	Groups []types.TabGroup
}

// ParseSession parses raw session JSON. Firefox identifies groups by
// string ids; they are mapped to sequential numeric ids in encounter
// order, starting at 1, with 0 left for ungrouped tabs. Tabs get
// generated ids since the session file carries no usable ones.
func ParseSession(data []byte) (*Session, error) {
	var raw rawSession
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse session JSON: %w", err)
	}

	s := &Session{
		Tabs:   []types.Tab{},
		Groups: []types.TabGroup{},
	}

	groupIDs := make(map[string]int)
	nextGroupID := 1

	for winIdx, window := range raw.Windows {
		groupIdx := make(map[int]int) // numeric id -> index in s.Groups
		for _, rg := range window.Groups {
			id, ok := groupIDs[rg.ID]
			if !ok {
				id = nextGroupID
				nextGroupID++
				groupIDs[rg.ID] = id
			}
			groupIdx[id] = len(s.Groups)
			s.Groups = append(s.Groups, types.TabGroup{
				ID:        id,
				Title:     rg.Name,
				Color:     rg.Color,
				Collapsed: rg.Collapsed,
				WindowID:  winIdx,
				Tabs:      []types.Tab{},
			})
		}

		for _, rt := range window.Tabs {
			if len(rt.Entries) == 0 {
				continue
			}

			// index is 1-based; the current page is entries[index-1].
			entryIdx := rt.Index - 1
			if entryIdx < 0 || entryIdx >= len(rt.Entries) {
				entryIdx = len(rt.Entries) - 1
			}
			entry := rt.Entries[entryIdx]

			title := entry.Title
			if title == "" {
				title = "Untitled"
			}

			groupID := 0
			if rt.Group != "" {
				if id, ok := groupIDs[rt.Group]; ok {
					groupID = id
				}
			}

			tab := types.Tab{
				ID:           uuid.NewString(),
				Title:        title,
				URL:          entry.URL,
				Favicon:      rt.Image,
				Pinned:       rt.Pinned,
				GroupID:      groupID,
				LastAccessed: time.UnixMilli(rt.LastAccessed),
			}
			s.Tabs = append(s.Tabs, tab)

			if idx, ok := groupIdx[groupID]; ok && groupID != 0 {
				s.Groups[idx].Tabs = append(s.Groups[idx].Tabs, tab)
			}
		}
	}

	sort.SliceStable(s.Groups, func(i, j int) bool { return s.Groups[i].ID < s.Groups[j].ID })
	return s, nil
}

// sessionFileNames in preference order: the active session first, then
// the last closed one.
var sessionFileNames = []string{"recovery.jsonlz4", "previous.jsonlz4"}

// ReadSessionFile reads and parses the session recovery file of the
// given profile directory.
func ReadSessionFile(profileDir string) (*Session, error) {
	backupDir := filepath.Join(profileDir, "sessionstore-backups")
	var data []byte
	var err error
	for _, name := range sessionFileNames {
		data, err = os.ReadFile(filepath.Join(backupDir, name))
		if err == nil {
			break
		}
	}
	if err != nil {
		return nil, fmt.Errorf("no session file found in %s", backupDir)
	}

	decompressed, err := DecompressMozLz4(data)
	if err != nil {
		return nil, fmt.Errorf("decompress session file: %w", err)
	}

	return ParseSession(decompressed)
}
