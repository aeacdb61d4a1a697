package firefox

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/lotas/keeptabs/internal/mirror"
)

func writeSessionFile(t *testing.T, profileDir string, sessionJSON []byte) {
	t.Helper()
	backupDir := filepath.Join(profileDir, "sessionstore-backups")
	if err := os.MkdirAll(backupDir, 0o755); err != nil {
		t.Fatal(err)
	}
	payload := mozLz4(t, sessionJSON)
	if err := os.WriteFile(filepath.Join(backupDir, "recovery.jsonlz4"), payload, 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestSourceQueryTabs(t *testing.T) {
	dir := t.TempDir()
	writeSessionFile(t, dir, []byte(`{"windows":[{"tabs":[
		{"entries":[{"url":"https://a","title":"A"}],"index":1,"lastAccessed":1707654321000}
	]}]}`))

	src, err := NewSource(dir)
	if err != nil {
		t.Fatalf("NewSource: %v", err)
	}

	tabs, err := src.QueryTabs(context.Background())
	if err != nil {
		t.Fatalf("QueryTabs: %v", err)
	}
	if len(tabs) != 1 || tabs[0].URL != "https://a" {
		t.Errorf("tabs = %+v", tabs)
	}
}

func TestSourceRereadsOnEachQuery(t *testing.T) {
	dir := t.TempDir()
	writeSessionFile(t, dir, []byte(`{"windows":[{"tabs":[
		{"entries":[{"url":"https://a","title":"A"}],"index":1}
	]}]}`))

	src, err := NewSource(dir)
	if err != nil {
		t.Fatalf("NewSource: %v", err)
	}
	if _, err := src.QueryTabs(context.Background()); err != nil {
		t.Fatalf("QueryTabs: %v", err)
	}

	// Firefox rewrote the session in the meantime.
	writeSessionFile(t, dir, []byte(`{"windows":[{"tabs":[
		{"entries":[{"url":"https://a","title":"A"}],"index":1},
		{"entries":[{"url":"https://b","title":"B"}],"index":1}
	]}]}`))

	tabs, err := src.QueryTabs(context.Background())
	if err != nil {
		t.Fatalf("QueryTabs: %v", err)
	}
	if len(tabs) != 2 {
		t.Errorf("expected fresh read with 2 tabs, got %d", len(tabs))
	}
}

func TestSourceIsReadOnly(t *testing.T) {
	src := &Source{profileDir: t.TempDir()}
	if err := src.OpenTab(context.Background(), "https://x", false); !errors.Is(err, mirror.ErrReadOnly) {
		t.Errorf("OpenTab: expected ErrReadOnly, got %v", err)
	}
	if err := src.CloseTab(context.Background(), "1"); !errors.Is(err, mirror.ErrReadOnly) {
		t.Errorf("CloseTab: expected ErrReadOnly, got %v", err)
	}
}

func TestSourceMissingSessionFile(t *testing.T) {
	src := &Source{profileDir: t.TempDir()}
	if _, err := src.QueryTabs(context.Background()); err == nil {
		t.Error("expected error for a profile without session files")
	}
}
