// Package chrome mirrors tabs from a Chromium browser over the DevTools
// protocol. Unlike the extension bridge it needs no install in the
// browser, only --remote-debugging-port; the trade-off is that CDP
// exposes neither pinned state nor tab groups.
package chrome

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"
	"github.com/lotas/keeptabs/internal/applog"
	"github.com/lotas/keeptabs/internal/mirror"
	"github.com/lotas/keeptabs/internal/types"
)

// Source is a DevTools connection to a running Chromium instance.
type Source struct {
	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	cancels []context.CancelFunc // contexts of tabs we opened
}

// Connect attaches to the browser at cdpURL, e.g. ws://127.0.0.1:9222.
func Connect(ctx context.Context, cdpURL string) (*Source, error) {
	allocCtx, allocCancel := chromedp.NewRemoteAllocator(ctx, cdpURL)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	// Force the connection now so a wrong URL fails here, not on the
	// first query.
	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocCancel()
		return nil, fmt.Errorf("connect to browser at %s: %w", cdpURL, err)
	}

	applog.Info("chrome.connected", "url", cdpURL)
	return &Source{
		ctx: browserCtx,
		cancel: func() {
			browserCancel()
			allocCancel()
		},
	}, nil
}

// Close detaches from the browser. Tabs opened through this source stay
// open.
func (s *Source) Close() {
	s.mu.Lock()
	s.cancels = nil
	s.mu.Unlock()
	s.cancel()
}

func (s *Source) Name() string { return "chrome" }

// QueryTabs lists the browser's page targets.
func (s *Source) QueryTabs(ctx context.Context) ([]types.Tab, error) {
	infos, err := chromedp.Targets(s.ctx)
	if err != nil {
		return nil, fmt.Errorf("list targets: %w", err)
	}

	tabs := make([]types.Tab, 0, len(infos))
	for _, info := range infos {
		if info.Type != "page" {
			continue
		}
		tabs = append(tabs, toTab(info))
	}
	return tabs, nil
}

// QueryGroups always reports groups as unsupported; the DevTools
// protocol has no view of the tab strip's grouping.
func (s *Source) QueryGroups(ctx context.Context) ([]types.TabGroup, error) {
	return nil, mirror.ErrGroupsUnsupported
}

// OpenTab opens url in a new browser tab. The pinned flag is accepted
// for interface symmetry but CDP cannot pin a tab.
func (s *Source) OpenTab(ctx context.Context, url string, pinned bool) error {
	tabCtx, cancel := chromedp.NewContext(s.ctx)
	// Cancelling the tab context would close the tab again; hold on to
	// it until the source is closed.
	s.mu.Lock()
	s.cancels = append(s.cancels, cancel)
	s.mu.Unlock()

	if err := chromedp.Run(tabCtx, chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("open %s: %w", url, err)
	}
	return nil
}

// CloseTab closes the tab whose target id matches.
func (s *Source) CloseTab(ctx context.Context, id string) error {
	tabCtx, cancel := chromedp.NewContext(s.ctx, chromedp.WithTargetID(target.ID(id)))
	defer cancel()

	if err := chromedp.Run(tabCtx, page.Close()); err != nil {
		return fmt.Errorf("close tab %s: %w", id, err)
	}
	return nil
}

func toTab(info *target.Info) types.Tab {
	title := info.Title
	if title == "" {
		title = "Untitled"
	}
	return types.Tab{
		ID:           string(info.TargetID),
		Title:        title,
		URL:          info.URL,
		Active:       info.Attached,
		LastAccessed: time.Now(),
	}
}
