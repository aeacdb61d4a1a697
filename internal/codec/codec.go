// Package codec serializes the collection store to the exchange document
// format and back. Imports always assign fresh collection ids so a file
// can be re-imported without colliding with existing collections.
package codec

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/lotas/keeptabs/internal/types"
)

// Version is the exchange document version.
const Version = "1.0"

// ErrInvalidFormat is returned when the document has no collections
// array (missing key or wrong shape).
var ErrInvalidFormat = errors.New("invalid file format: missing collections array")

// Document is the top-level export structure.
type Document struct {
	Collections []types.Collection `json:"collections"`
	ExportDate  time.Time          `json:"exportDate"`
	Version     string             `json:"version"`
}

// Export builds a pretty-printed exchange document from the given
// collections.
func Export(collections []types.Collection) ([]byte, error) {
	if collections == nil {
		collections = []types.Collection{}
	}
	doc := Document{
		Collections: collections,
		ExportDate:  time.Now(),
		Version:     Version,
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode export: %w", err)
	}
	return append(data, '\n'), nil
}

// Filename returns the conventional export file name for the given day,
// e.g. keep-tabs-export-2025-06-01.json.
func Filename(now time.Time) string {
	return "keep-tabs-export-" + now.Format("2006-01-02") + ".json"
}

// importedCollection mirrors Collection but parses timestamps leniently:
// exports from other tools may carry RFC 3339 strings or epoch millis.
type importedCollection struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Tabs        []types.Tab `json:"tabs"`
	Category    string      `json:"category"`
	Tags        []string    `json:"tags"`
	CreatedAt   flexTime    `json:"createdAt"`
	UpdatedAt   flexTime    `json:"updatedAt"`
	Color       string      `json:"color"`
}

// flexTime accepts an RFC 3339 string or an epoch-milliseconds number.
// Anything unparseable becomes the zero time rather than failing the
// whole import.
type flexTime struct {
	time.Time
}

func (t *flexTime) UnmarshalJSON(b []byte) error {
	s := string(bytes.TrimSpace(b))
	if s == "null" || s == `""` {
		t.Time = time.Time{}
		return nil
	}
	var parsed time.Time
	if err := json.Unmarshal(b, &parsed); err == nil {
		t.Time = parsed
		return nil
	}
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		t.Time = time.UnixMilli(ms)
		return nil
	}
	t.Time = time.Time{}
	return nil
}

// Import parses an exchange document. Every imported collection gets a
// new generated id (imported ids are never trusted) and re-parsed
// timestamps. The caller appends the result to its existing list.
func Import(data []byte) ([]types.Collection, error) {
	var raw struct {
		Collections json.RawMessage `json:"collections"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse import: %w", err)
	}
	if len(raw.Collections) == 0 {
		return nil, ErrInvalidFormat
	}
	trimmed := bytes.TrimSpace(raw.Collections)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return nil, ErrInvalidFormat
	}

	var imported []importedCollection
	if err := json.Unmarshal(trimmed, &imported); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFormat, err)
	}

	out := make([]types.Collection, 0, len(imported))
	for _, ic := range imported {
		c := types.Collection{
			ID:          uuid.NewString(),
			Name:        ic.Name,
			Description: ic.Description,
			Tabs:        ic.Tabs,
			Category:    ic.Category,
			Tags:        ic.Tags,
			CreatedAt:   ic.CreatedAt.Time,
			UpdatedAt:   ic.UpdatedAt.Time,
			Color:       ic.Color,
		}
		if c.Tabs == nil {
			c.Tabs = []types.Tab{}
		}
		out = append(out, c)
	}
	return out, nil
}
