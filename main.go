package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"
	"github.com/lotas/keeptabs/internal/applog"
	"github.com/lotas/keeptabs/internal/bridge"
	"github.com/lotas/keeptabs/internal/chrome"
	"github.com/lotas/keeptabs/internal/codec"
	"github.com/lotas/keeptabs/internal/firefox"
	"github.com/lotas/keeptabs/internal/mirror"
	"github.com/lotas/keeptabs/internal/naming"
	"github.com/lotas/keeptabs/internal/state"
	"github.com/lotas/keeptabs/internal/storage"
	"github.com/lotas/keeptabs/internal/tui"
	"github.com/lotas/keeptabs/internal/types"
)

const defaultPort = 19292

func main() {
	// Optional .env for API keys and local overrides.
	godotenv.Load()

	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "save":
			runSave(os.Args[2:])
			return
		case "list":
			runList(os.Args[2:])
			return
		case "show":
			runShow(os.Args[2:])
			return
		case "delete":
			runDelete(os.Args[2:])
			return
		case "restore":
			runRestore(os.Args[2:])
			return
		case "search":
			runSearch(os.Args[2:])
			return
		case "export":
			runExport(os.Args[2:])
			return
		case "import":
			runImport(os.Args[2:])
			return
		case "suggest":
			runSuggest(os.Args[2:])
			return
		case "config":
			runConfig(os.Args[2:])
			return
		case "profiles":
			runProfiles()
			return
		case "help", "--help", "-h":
			printHelp()
			return
		}
	}

	fs := flag.NewFlagSet("keeptabs", flag.ExitOnError)
	sourceKind := fs.String("source", envOr("KEEPTABS_SOURCE", "extension"), "Tab source: extension, chrome, firefox or none")
	port := fs.Int("port", defaultPort, "WebSocket port for the extension bridge")
	cdpURL := fs.String("cdp-url", envOr("KEEPTABS_CDP_URL", "ws://127.0.0.1:9222"), "DevTools URL for the chrome source")
	profile := fs.String("profile", os.Getenv("KEEPTABS_PROFILE"), "Firefox profile name for the firefox source")
	fs.Parse(os.Args[1:])

	initLog()
	defer applog.Close()

	db, store, err := openStore()
	if err != nil {
		fatal(err)
	}
	defer db.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mir *mirror.Mirror
	var events <-chan struct{}
	if *sourceKind != "none" {
		src, ev, err := openSource(ctx, *sourceKind, *port, *cdpURL, *profile)
		if err != nil {
			fatal(err)
		}
		mir = mirror.New(src, store)
		events = ev
	}

	model := tui.NewModel(store, mir, newNamer(store), events)
	p := tea.NewProgram(model, tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		fatal(err)
	}
}

func printHelp() {
	fmt.Print(`keeptabs — save and restore browser tab collections

Usage:
  keeptabs                                      Start the TUI (default)
    --source <kind>        Tab source: extension, chrome, firefox, none
    --port <n>             Extension bridge port (default: 19292)
    --cdp-url <url>        DevTools URL for the chrome source
    --profile <name>       Firefox profile name for the firefox source

  keeptabs save --name <name>                   Snapshot current tabs into a collection
    --description <text>   Collection description
    --source/--port/--cdp-url/--profile as above

  keeptabs list                                 List collections
  keeptabs show <name-or-id>                    Print a collection's tabs
  keeptabs delete <name-or-id> [--yes]          Delete a collection
  keeptabs restore <name-or-id>                 Open a collection's tabs in the browser
  keeptabs search <query>                       Search collections and their tabs
  keeptabs export [--out <file>] [--markdown]   Export all collections as JSON or markdown
  keeptabs import <file>                        Import collections from a JSON export
  keeptabs suggest [<name-or-id>]               Ask the AI for a name and description
  keeptabs config [--api-key K] [--ai on|off] [--theme light|dark]
                                                Show or change persisted settings
  keeptabs profiles                             List Firefox profiles

Environment:
  KEEPTABS_DB            Database path (default: ~/.local/share/keeptabs/keeptabs.db)
  KEEPTABS_SOURCE        Default tab source (overridden by --source)
  KEEPTABS_PROFILE       Default Firefox profile
  KEEPTABS_CDP_URL       Default DevTools URL
  OPENAI_API_KEY         API key for name suggestions
  KEEPTABS_MODEL         Completion model (default: gpt-4o-mini)
  KEEPTABS_API_HOST      OpenAI-compatible API base URL
`)
}

// --- Wiring helpers ---

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}

func initLog() {
	home, err := os.UserHomeDir()
	if err != nil {
		return
	}
	applog.Init(filepath.Join(home, ".local", "share", "keeptabs"))
}

func dbPath() (string, error) {
	if p := os.Getenv("KEEPTABS_DB"); p != "" {
		return p, nil
	}
	return storage.DefaultDBPath()
}

// openStore opens the database and builds the store from the persisted
// blob and the cached live-tab snapshot.
func openStore() (*sql.DB, *state.Store, error) {
	path, err := dbPath()
	if err != nil {
		return nil, nil, err
	}
	db, err := storage.OpenDB(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open database: %w", err)
	}

	store := state.NewStore(nil, &storage.Persister{DB: db})

	ps, err := storage.LoadState(db)
	if err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("load state: %w", err)
	}
	store.ApplyPersisted(ps)

	if tabs, err := storage.LoadCurrentTabs(db); err == nil && len(tabs) > 0 {
		store.SetCurrentTabs(tabs)
	}

	return db, store, nil
}

func newNamer(store *state.Store) *naming.Client {
	key := os.Getenv("OPENAI_API_KEY")
	if key == "" {
		key = store.APIKey()
	}
	if key == "" || !store.AIEnabled() {
		return nil
	}
	return naming.New(key, os.Getenv("KEEPTABS_API_HOST"), os.Getenv("KEEPTABS_MODEL"))
}

// openSource starts the requested tab source. The extension bridge and
// its dispatch loop run until ctx is cancelled.
func openSource(ctx context.Context, kind string, port int, cdpURL, profile string) (mirror.Source, <-chan struct{}, error) {
	switch kind {
	case "extension":
		srv := bridge.New(port)
		go srv.ListenAndServe(ctx)
		src := bridge.NewSource(srv)
		go src.Run(ctx)
		return src, src.Events(), nil
	case "chrome":
		src, err := chrome.Connect(ctx, cdpURL)
		if err != nil {
			return nil, nil, err
		}
		return src, nil, nil
	case "firefox":
		dir, err := resolveProfileDir(profile)
		if err != nil {
			return nil, nil, err
		}
		src, err := firefox.NewSource(dir)
		if err != nil {
			return nil, nil, err
		}
		return src, nil, nil
	default:
		return nil, nil, fmt.Errorf("unknown source %q (want extension, chrome, firefox or none)", kind)
	}
}

func resolveProfileDir(name string) (string, error) {
	if name == "" {
		return "", nil // NewSource discovers the default profile
	}
	profiles, err := firefox.DiscoverProfiles()
	if err != nil {
		return "", err
	}
	for _, p := range profiles {
		if p.Name == name {
			return p.Path, nil
		}
	}
	return "", fmt.Errorf("profile %q not found", name)
}

// waitForTabs polls the source until it yields tabs, for one-shot
// commands where the extension needs a moment to connect.
func waitForTabs(ctx context.Context, src mirror.Source, timeout time.Duration) ([]types.Tab, error) {
	deadline := time.Now().Add(timeout)
	for {
		tabs, err := src.QueryTabs(ctx)
		if err == nil {
			return tabs, nil
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("no tabs from %s within %s: %w", src.Name(), timeout, err)
		}
		time.Sleep(500 * time.Millisecond)
	}
}

// findCollection resolves a name-or-id argument against the store.
func findCollection(store *state.Store, arg string) (types.Collection, error) {
	if c, ok := store.Get(arg); ok {
		return c, nil
	}
	var matches []types.Collection
	for _, c := range store.Collections() {
		if strings.EqualFold(c.Name, arg) {
			matches = append(matches, c)
		}
	}
	switch len(matches) {
	case 0:
		return types.Collection{}, fmt.Errorf("no collection named %q", arg)
	case 1:
		return matches[0], nil
	default:
		return types.Collection{}, fmt.Errorf("%d collections named %q, use the id", len(matches), arg)
	}
}

// --- Subcommands ---

func runSave(args []string) {
	fs := flag.NewFlagSet("save", flag.ExitOnError)
	name := fs.String("name", "", "Collection name (required)")
	description := fs.String("description", "", "Collection description")
	sourceKind := fs.String("source", envOr("KEEPTABS_SOURCE", "extension"), "Tab source")
	port := fs.Int("port", defaultPort, "Extension bridge port")
	cdpURL := fs.String("cdp-url", envOr("KEEPTABS_CDP_URL", "ws://127.0.0.1:9222"), "DevTools URL")
	profile := fs.String("profile", os.Getenv("KEEPTABS_PROFILE"), "Firefox profile name")
	fs.Parse(args)

	if *name == "" {
		fatal(fmt.Errorf("--name is required"))
	}

	initLog()
	defer applog.Close()

	db, store, err := openStore()
	if err != nil {
		fatal(err)
	}
	defer db.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	src, _, err := openSource(ctx, *sourceKind, *port, *cdpURL, *profile)
	if err != nil {
		fatal(err)
	}

	if *sourceKind == "extension" {
		fmt.Fprintf(os.Stderr, "Waiting for the extension on port %d...\n", *port)
	}
	tabs, err := waitForTabs(ctx, src, 10*time.Second)
	if err != nil {
		fatal(err)
	}
	if len(tabs) == 0 {
		fatal(fmt.Errorf("no open tabs to save"))
	}

	store.SetCurrentTabs(tabs)
	c := store.SaveCurrentTabs(*name, *description)
	fmt.Printf("Saved %q with %d tabs (%s)\n", c.Name, c.TabCount(), c.ID)
}

func runList(args []string) {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	fs.Parse(args)

	db, store, err := openStore()
	if err != nil {
		fatal(err)
	}
	defer db.Close()

	collections := store.Collections()
	if len(collections) == 0 {
		fmt.Println("No collections yet. Save one with: keeptabs save --name <name>")
		return
	}
	for _, c := range collections {
		fmt.Printf("%-36s  %-24s  %3d tabs  %s\n",
			c.ID, c.Name, c.TabCount(), c.UpdatedAt.Format("2006-01-02 15:04"))
	}
}

func runShow(args []string) {
	if len(args) == 0 || strings.HasPrefix(args[0], "-") {
		fatal(fmt.Errorf("usage: keeptabs show <name-or-id>"))
	}

	db, store, err := openStore()
	if err != nil {
		fatal(err)
	}
	defer db.Close()

	c, err := findCollection(store, args[0])
	if err != nil {
		fatal(err)
	}

	fmt.Printf("%s (%s)\n", c.Name, c.ID)
	if c.Description != "" {
		fmt.Println(c.Description)
	}
	if len(c.Tags) > 0 {
		fmt.Printf("tags: %s\n", strings.Join(c.Tags, ", "))
	}
	fmt.Printf("saved %s · %d tabs\n\n", c.CreatedAt.Format("2006-01-02 15:04"), c.TabCount())
	for _, t := range c.Tabs {
		pin := "  "
		if t.Pinned {
			pin = "⁕ "
		}
		fmt.Printf("%s%s\n    %s\n", pin, t.Title, t.URL)
	}
}

func runDelete(args []string) {
	fs := flag.NewFlagSet("delete", flag.ExitOnError)
	yes := fs.Bool("yes", false, "Skip confirmation")
	fs.Parse(reorderArgs(args))
	if fs.NArg() == 0 {
		fatal(fmt.Errorf("usage: keeptabs delete <name-or-id> [--yes]"))
	}

	initLog()
	defer applog.Close()

	db, store, err := openStore()
	if err != nil {
		fatal(err)
	}
	defer db.Close()

	c, err := findCollection(store, fs.Arg(0))
	if err != nil {
		fatal(err)
	}

	if !*yes {
		fmt.Printf("Delete %q (%d tabs)? [y/N] ", c.Name, c.TabCount())
		var answer string
		fmt.Scanln(&answer)
		if !strings.EqualFold(answer, "y") {
			fmt.Println("Aborted.")
			return
		}
	}

	if err := store.Delete(c.ID); err != nil {
		fatal(err)
	}
	fmt.Printf("Deleted %q\n", c.Name)
}

func runRestore(args []string) {
	fs := flag.NewFlagSet("restore", flag.ExitOnError)
	sourceKind := fs.String("source", envOr("KEEPTABS_SOURCE", "extension"), "Tab source")
	port := fs.Int("port", defaultPort, "Extension bridge port")
	cdpURL := fs.String("cdp-url", envOr("KEEPTABS_CDP_URL", "ws://127.0.0.1:9222"), "DevTools URL")
	profile := fs.String("profile", os.Getenv("KEEPTABS_PROFILE"), "Firefox profile name")
	fs.Parse(reorderArgs(args))
	if fs.NArg() == 0 {
		fatal(fmt.Errorf("usage: keeptabs restore <name-or-id>"))
	}

	initLog()
	defer applog.Close()

	db, store, err := openStore()
	if err != nil {
		fatal(err)
	}
	defer db.Close()

	c, err := findCollection(store, fs.Arg(0))
	if err != nil {
		fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	src, _, err := openSource(ctx, *sourceKind, *port, *cdpURL, *profile)
	if err != nil {
		fatal(err)
	}
	mir := mirror.New(src, store)

	if *sourceKind == "extension" {
		fmt.Fprintf(os.Stderr, "Waiting for the extension on port %d...\n", *port)
	}
	tabs, err := waitForTabs(ctx, src, 10*time.Second)
	if err != nil {
		fatal(err)
	}
	store.SetCurrentTabs(tabs)

	if err := mir.Restore(ctx, c); err != nil {
		fatal(err)
	}
	fmt.Printf("Restored %q (%d tabs)\n", c.Name, c.TabCount())
}

func runSearch(args []string) {
	if len(args) == 0 {
		fatal(fmt.Errorf("usage: keeptabs search <query>"))
	}
	query := strings.Join(args, " ")

	db, store, err := openStore()
	if err != nil {
		fatal(err)
	}
	defer db.Close()

	results := store.Search(query)
	if len(results) == 0 {
		fmt.Printf("No collections match %q\n", query)
		return
	}
	for _, c := range results {
		fmt.Printf("%-24s  %3d tabs  %s\n", c.Name, c.TabCount(), c.ID)
	}
}

func runExport(args []string) {
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	outFile := fs.String("out", "", "Output file path (default: keep-tabs-export-<date>.json)")
	stdout := fs.Bool("stdout", false, "Write to stdout instead of a file")
	markdown := fs.Bool("markdown", false, "Export as markdown instead of JSON")
	fs.Parse(args)

	db, store, err := openStore()
	if err != nil {
		fatal(err)
	}
	defer db.Close()

	var data []byte
	if *markdown {
		data = []byte(codec.Markdown(store.Collections(), time.Now()))
	} else {
		data, err = codec.Export(store.Collections())
		if err != nil {
			fatal(err)
		}
	}

	if *stdout {
		os.Stdout.Write(data)
		return
	}
	path := *outFile
	if path == "" {
		path = codec.Filename(time.Now())
		if *markdown {
			path = strings.TrimSuffix(path, ".json") + ".md"
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		fatal(err)
	}
	fmt.Printf("Exported %d collections to %s\n", len(store.Collections()), path)
}

func runImport(args []string) {
	if len(args) == 0 || strings.HasPrefix(args[0], "-") {
		fatal(fmt.Errorf("usage: keeptabs import <file>"))
	}

	initLog()
	defer applog.Close()

	data, err := os.ReadFile(args[0])
	if err != nil {
		fatal(err)
	}

	collections, err := codec.Import(data)
	if err != nil {
		fatal(err)
	}

	db, store, err := openStore()
	if err != nil {
		fatal(err)
	}
	defer db.Close()

	store.Import(collections)
	fmt.Printf("Imported %d collections\n", len(collections))
}

func runSuggest(args []string) {
	fs := flag.NewFlagSet("suggest", flag.ExitOnError)
	pages := fs.Int("pages", 0, "Also fetch readable excerpts from up to n tabs")
	fs.Parse(reorderArgs(args))

	db, store, err := openStore()
	if err != nil {
		fatal(err)
	}
	defer db.Close()

	namer := newNamer(store)
	if namer == nil {
		key := os.Getenv("OPENAI_API_KEY")
		if key == "" {
			key = store.APIKey()
		}
		if key == "" {
			fatal(fmt.Errorf("no API key: set OPENAI_API_KEY or configure one in the app"))
		}
		namer = naming.New(key, os.Getenv("KEEPTABS_API_HOST"), os.Getenv("KEEPTABS_MODEL"))
	}

	var tabs []types.Tab
	if fs.NArg() > 0 {
		c, err := findCollection(store, fs.Arg(0))
		if err != nil {
			fatal(err)
		}
		tabs = c.Tabs
	} else {
		tabs = store.CurrentTabs()
		if len(tabs) == 0 {
			fatal(fmt.Errorf("no cached current tabs; run the TUI or `keeptabs save` first"))
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var s naming.Suggestion
	if *pages > 0 {
		s, err = namer.SuggestWithExcerpts(ctx, tabs, *pages)
	} else {
		s, err = namer.Suggest(ctx, tabs)
	}
	if err != nil {
		fatal(err)
	}
	fmt.Printf("Name:        %s\nDescription: %s\n", s.Name, s.Description)
}

func runConfig(args []string) {
	fs := flag.NewFlagSet("config", flag.ExitOnError)
	apiKey := fs.String("api-key", "", "Store an API key for name suggestions")
	ai := fs.String("ai", "", "Enable or disable name suggestions: on or off")
	theme := fs.String("theme", "", "UI theme: light or dark")
	fs.Parse(args)

	initLog()
	defer applog.Close()

	db, store, err := openStore()
	if err != nil {
		fatal(err)
	}
	defer db.Close()

	changed := false
	if *apiKey != "" {
		store.SetAPIKey(*apiKey)
		changed = true
	}
	switch *ai {
	case "":
	case "on":
		store.SetAIEnabled(true)
		changed = true
	case "off":
		store.SetAIEnabled(false)
		changed = true
	default:
		fatal(fmt.Errorf("--ai must be on or off"))
	}
	switch *theme {
	case "":
	case types.ThemeLight, types.ThemeDark:
		store.SetTheme(*theme)
		changed = true
	default:
		fatal(fmt.Errorf("--theme must be light or dark"))
	}

	if changed {
		fmt.Println("Settings updated.")
	}
	key := "not set"
	if store.APIKey() != "" {
		key = "set"
	}
	fmt.Printf("theme: %s\nai suggestions: %v\napi key: %s\n", store.Theme(), store.AIEnabled(), key)
}

func runProfiles() {
	profiles, err := firefox.DiscoverProfiles()
	if err != nil {
		fatal(err)
	}
	if len(profiles) == 0 {
		fmt.Fprintln(os.Stderr, "No Firefox profiles with session data found.")
		os.Exit(1)
	}
	for _, p := range profiles {
		suffix := ""
		if p.IsDefault {
			suffix = " [default]"
		}
		fmt.Printf("%s (%s)%s\n", p.Name, p.Path, suffix)
	}
}

// reorderArgs moves flag arguments before positional arguments so that
// flag.Parse handles them correctly (it stops at the first non-flag arg).
func reorderArgs(args []string) []string {
	var flags, positional []string
	for i := 0; i < len(args); i++ {
		if strings.HasPrefix(args[i], "-") {
			flags = append(flags, args[i])
			if i+1 < len(args) && !strings.HasPrefix(args[i+1], "-") {
				flags = append(flags, args[i+1])
				i++
			}
		} else {
			positional = append(positional, args[i])
		}
	}
	return append(flags, positional...)
}
