// Package mirror keeps the in-memory view of the browser's open tabs in
// sync with a tab source and drives restore operations against it.
package mirror

import (
	"context"
	"errors"
	"fmt"

	"github.com/lotas/keeptabs/internal/applog"
	"github.com/lotas/keeptabs/internal/state"
	"github.com/lotas/keeptabs/internal/types"
)

// ErrGroupsUnsupported is returned by sources whose browser has no tab
// group concept. The mirror treats it as "no groups", not a failure.
var ErrGroupsUnsupported = errors.New("tab groups not supported by this source")

// ErrReadOnly is returned by sources that can observe tabs but not open
// or close them, such as a session file on disk.
var ErrReadOnly = errors.New("source is read-only")

// Source is a connected browser (or a stand-in for one). Query methods
// return the full current set; the mirror replaces wholesale rather
// than diffing.
type Source interface {
	Name() string
	QueryTabs(ctx context.Context) ([]types.Tab, error)
	QueryGroups(ctx context.Context) ([]types.TabGroup, error)
	OpenTab(ctx context.Context, url string, pinned bool) error
	CloseTab(ctx context.Context, id string) error
}

// Mirror refreshes the store's live tab view from a source.
type Mirror struct {
	src   Source
	store *state.Store
}

func New(src Source, store *state.Store) *Mirror {
	return &Mirror{src: src, store: store}
}

// Source returns the underlying tab source.
func (m *Mirror) Source() Source { return m.src }

// RefreshTabs replaces the store's current-tabs view with a fresh query.
func (m *Mirror) RefreshTabs(ctx context.Context) error {
	tabs, err := m.src.QueryTabs(ctx)
	if err != nil {
		return fmt.Errorf("refresh tabs: %w", err)
	}
	m.store.SetCurrentTabs(tabs)
	return nil
}

// RefreshGroups replaces the store's tab-group view. A source without
// group support yields an empty view; a query failure keeps the
// previous one.
func (m *Mirror) RefreshGroups(ctx context.Context) error {
	groups, err := m.src.QueryGroups(ctx)
	if errors.Is(err, ErrGroupsUnsupported) {
		m.store.SetTabGroups([]types.TabGroup{})
		return nil
	}
	if err != nil {
		applog.Error("mirror.groups", err, "source", m.src.Name())
		return fmt.Errorf("refresh groups: %w", err)
	}
	m.store.SetTabGroups(groups)
	return nil
}

// RefreshAll refreshes tabs, then groups. Groups depend on the tab set,
// so the order is fixed.
func (m *Mirror) RefreshAll(ctx context.Context) error {
	if err := m.RefreshTabs(ctx); err != nil {
		return err
	}
	return m.RefreshGroups(ctx)
}

// Run refreshes whenever the source signals a change, until ctx is done.
// Refresh failures are logged and the loop keeps going; a transient
// browser hiccup shouldn't kill the watcher.
func (m *Mirror) Run(ctx context.Context, events <-chan struct{}) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-events:
			if err := m.RefreshAll(ctx); err != nil {
				applog.Error("mirror.refresh", err, "source", m.src.Name())
			}
		}
	}
}

// RestoreError reports how far a restore got before failing.
type RestoreError struct {
	Closed int
	Opened int
	Err    error
}

func (e *RestoreError) Error() string {
	return fmt.Sprintf("restore stopped after closing %d and opening %d tabs: %v", e.Closed, e.Opened, e.Err)
}

func (e *RestoreError) Unwrap() error { return e.Err }

// Restore replaces the browser's open tabs with the collection's:
// every non-pinned current tab is closed, then each collection tab is
// opened, both sequentially in order. The first failure stops the
// operation; the partial browser state stands and the error reports
// the progress made. The live view is refreshed afterwards either way.
func (m *Mirror) Restore(ctx context.Context, c types.Collection) error {
	closed, opened := 0, 0
	restoreErr := func(err error) error {
		if rerr := m.RefreshAll(ctx); rerr != nil {
			applog.Error("mirror.restore.refresh", rerr)
		}
		return &RestoreError{Closed: closed, Opened: opened, Err: err}
	}

	for _, t := range m.store.CurrentTabs() {
		if t.Pinned {
			continue
		}
		if err := m.src.CloseTab(ctx, t.ID); err != nil {
			return restoreErr(fmt.Errorf("close tab %s: %w", t.ID, err))
		}
		closed++
	}

	for _, t := range c.Tabs {
		if err := m.src.OpenTab(ctx, t.URL, t.Pinned); err != nil {
			return restoreErr(fmt.Errorf("open %s: %w", t.URL, err))
		}
		opened++
	}

	applog.Info("mirror.restore", "collection", c.ID, "closed", closed, "opened", opened)
	return m.RefreshAll(ctx)
}
