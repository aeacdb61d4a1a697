package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/lotas/keeptabs/internal/types"
	_ "modernc.org/sqlite"
)

// Storage keys. The whole app state lives under one key; the last-known
// live tab snapshot is cached separately so the UI can show something
// before the first mirror refresh completes.
const (
	KeyAppData     = "keep-tabs-data"
	KeyCurrentTabs = "currentTabs"
)

// migration is a numbered schema change. Migrations are applied in order
// and tracked in the schema_migrations table so each runs exactly once.
type migration struct {
	Version     int
	Description string
	SQL         string
}

var migrations = []migration{
	{
		Version:     1,
		Description: "initial kv schema",
		SQL: `
CREATE TABLE IF NOT EXISTS kv (
    key   TEXT PRIMARY KEY,
    value BLOB NOT NULL
);`,
	},
	{
		Version:     2,
		Description: "track last write time per key",
		SQL:         `ALTER TABLE kv ADD COLUMN updated_at DATETIME;`,
	},
}

// OpenDB opens (or creates) a SQLite database at the given path.
// It creates parent directories if needed, enables foreign keys and WAL
// mode, and runs any pending migrations.
func OpenDB(path string) (*sql.DB, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create directory %s: %w", dir, err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return db, nil
}

func runMigrations(db *sql.DB) error {
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
		version     INTEGER PRIMARY KEY,
		description TEXT NOT NULL,
		applied_at  DATETIME DEFAULT CURRENT_TIMESTAMP
	)`)
	if err != nil {
		return fmt.Errorf("create schema_migrations table: %w", err)
	}

	for _, m := range migrations {
		var exists int
		err := db.QueryRow("SELECT COUNT(*) FROM schema_migrations WHERE version = ?", m.Version).Scan(&exists)
		if err != nil {
			return fmt.Errorf("check migration %d: %w", m.Version, err)
		}
		if exists > 0 {
			continue
		}

		if _, err := db.Exec(m.SQL); err != nil {
			return fmt.Errorf("apply migration %d (%s): %w", m.Version, m.Description, err)
		}
		if _, err := db.Exec(
			"INSERT INTO schema_migrations (version, description) VALUES (?, ?)",
			m.Version, m.Description,
		); err != nil {
			return fmt.Errorf("record migration %d: %w", m.Version, err)
		}
	}

	return nil
}

// DefaultDBPath returns the default database file path:
// ~/.local/share/keeptabs/keeptabs.db
func DefaultDBPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home directory: %w", err)
	}
	return filepath.Join(home, ".local", "share", "keeptabs", "keeptabs.db"), nil
}

// Get reads the blob stored under key. The second return value reports
// whether the key exists.
func Get(db *sql.DB, key string) ([]byte, bool, error) {
	var value []byte
	err := db.QueryRow("SELECT value FROM kv WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get %q: %w", key, err)
	}
	return value, true, nil
}

// Put writes the blob under key, replacing any previous value.
func Put(db *sql.DB, key string, value []byte) error {
	_, err := db.Exec(
		"INSERT INTO kv (key, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP) "+
			"ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at",
		key, value,
	)
	if err != nil {
		return fmt.Errorf("put %q: %w", key, err)
	}
	return nil
}

// LoadState reads and decodes the persisted app state.
// Returns nil, nil when nothing has been saved yet, so the caller can
// fall back to defaults.
func LoadState(db *sql.DB) (*types.PersistedState, error) {
	data, ok, err := Get(db, KeyAppData)
	if err != nil || !ok {
		return nil, err
	}
	var ps types.PersistedState
	if err := json.Unmarshal(data, &ps); err != nil {
		return nil, fmt.Errorf("decode %s: %w", KeyAppData, err)
	}
	// Absent tab arrays are normalized to empty on load.
	for i := range ps.Collections {
		if ps.Collections[i].Tabs == nil {
			ps.Collections[i].Tabs = []types.Tab{}
		}
	}
	return &ps, nil
}

// SaveState encodes and writes the persisted app state.
func SaveState(db *sql.DB, ps *types.PersistedState) error {
	data, err := json.Marshal(ps)
	if err != nil {
		return fmt.Errorf("encode %s: %w", KeyAppData, err)
	}
	return Put(db, KeyAppData, data)
}

// LoadCurrentTabs reads the cached live tab snapshot.
// Returns nil, nil when no snapshot has been cached.
func LoadCurrentTabs(db *sql.DB) ([]types.Tab, error) {
	data, ok, err := Get(db, KeyCurrentTabs)
	if err != nil || !ok {
		return nil, err
	}
	var tabs []types.Tab
	if err := json.Unmarshal(data, &tabs); err != nil {
		return nil, fmt.Errorf("decode %s: %w", KeyCurrentTabs, err)
	}
	return tabs, nil
}

// SaveCurrentTabs writes the live tab snapshot cache.
func SaveCurrentTabs(db *sql.DB, tabs []types.Tab) error {
	data, err := json.Marshal(tabs)
	if err != nil {
		return fmt.Errorf("encode %s: %w", KeyCurrentTabs, err)
	}
	return Put(db, KeyCurrentTabs, data)
}

// Persister adapts the database to the collection store's persistence
// hooks so the store doesn't depend on database/sql directly.
type Persister struct {
	DB *sql.DB
}

func (p Persister) SaveState(ps *types.PersistedState) error {
	return SaveState(p.DB, ps)
}

func (p Persister) SaveCurrentTabs(tabs []types.Tab) error {
	return SaveCurrentTabs(p.DB, tabs)
}
