package bridge

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lotas/keeptabs/internal/applog"
	"github.com/lotas/keeptabs/internal/types"
)

// DefaultTimeout bounds how long a command waits for the extension to
// answer before the browser is considered unreachable.
const DefaultTimeout = 5 * time.Second

// Source adapts the extension connection to the tab-source operations:
// querying the live window and opening or closing tabs. It owns the
// server's message stream; Run must be started before issuing commands.
type Source struct {
	srv     *Server
	timeout time.Duration

	mu          sync.Mutex
	snapWaiters []chan IncomingMsg
	respWaiters map[string]chan IncomingMsg

	events chan struct{}
}

// NewSource wraps srv. The server's Messages channel is consumed by
// Run; nothing else may read it.
func NewSource(srv *Server) *Source {
	return &Source{
		srv:         srv,
		timeout:     DefaultTimeout,
		respWaiters: make(map[string]chan IncomingMsg),
		events:      make(chan struct{}, 1),
	}
}

// Name identifies the source in logs and the UI.
func (s *Source) Name() string { return "extension" }

// Events signals that the browser's tab set changed. The channel is
// coalescing: a pending tick absorbs further ones.
func (s *Source) Events() <-chan struct{} {
	return s.events
}

// Run dispatches incoming messages to command waiters and the event
// channel until ctx is done.
func (s *Source) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-s.srv.Messages():
			s.dispatch(msg)
		}
	}
}

func (s *Source) dispatch(msg IncomingMsg) {
	switch msg.Type {
	case MsgSnapshot:
		s.mu.Lock()
		waiters := s.snapWaiters
		s.snapWaiters = nil
		s.mu.Unlock()
		for _, w := range waiters {
			w <- msg
		}
		if len(waiters) == 0 {
			// Unsolicited snapshot, e.g. on reconnect.
			s.signal()
		}
	case MsgTabCreated, MsgTabRemoved, MsgGroupUpdated:
		s.signal()
	case MsgTabUpdated:
		// Intermediate loading states are noise; refresh on completion.
		if msg.Status == "" || msg.Status == "complete" {
			s.signal()
		}
	default:
		if msg.ID != "" {
			s.mu.Lock()
			w, ok := s.respWaiters[msg.ID]
			if ok {
				delete(s.respWaiters, msg.ID)
			}
			s.mu.Unlock()
			if ok {
				w <- msg
			}
		}
	}
}

func (s *Source) signal() {
	select {
	case s.events <- struct{}{}:
	default:
	}
}

// snapshot sends a query command and waits for the next snapshot.
func (s *Source) snapshot(ctx context.Context) (IncomingMsg, error) {
	if !s.srv.Connected() {
		return IncomingMsg{}, fmt.Errorf("extension not connected")
	}

	w := make(chan IncomingMsg, 1)
	s.mu.Lock()
	s.snapWaiters = append(s.snapWaiters, w)
	s.mu.Unlock()

	if err := s.srv.Send(OutgoingMsg{ID: uuid.NewString(), Action: ActionQuery}); err != nil {
		s.dropSnapWaiter(w)
		return IncomingMsg{}, fmt.Errorf("query tabs: %w", err)
	}

	select {
	case msg := <-w:
		return msg, nil
	case <-time.After(s.timeout):
		s.dropSnapWaiter(w)
		return IncomingMsg{}, fmt.Errorf("query tabs: no snapshot within %s", s.timeout)
	case <-ctx.Done():
		s.dropSnapWaiter(w)
		return IncomingMsg{}, ctx.Err()
	}
}

func (s *Source) dropSnapWaiter(w chan IncomingMsg) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, sw := range s.snapWaiters {
		if sw == w {
			s.snapWaiters = append(s.snapWaiters[:i], s.snapWaiters[i+1:]...)
			return
		}
	}
}

// QueryTabs asks the extension for the current window's tabs.
func (s *Source) QueryTabs(ctx context.Context) ([]types.Tab, error) {
	msg, err := s.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	tabs, err := parseTabs(msg.Tabs)
	if err != nil {
		return nil, fmt.Errorf("parse snapshot tabs: %w", err)
	}
	return tabs, nil
}

// QueryGroups asks the extension for the current tab groups, with their
// member tabs attached.
func (s *Source) QueryGroups(ctx context.Context) ([]types.TabGroup, error) {
	msg, err := s.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	if len(msg.Groups) == 0 {
		return []types.TabGroup{}, nil
	}
	tabs, err := parseTabs(msg.Tabs)
	if err != nil {
		return nil, fmt.Errorf("parse snapshot tabs: %w", err)
	}
	groups, err := parseGroups(msg.Groups, tabs)
	if err != nil {
		return nil, fmt.Errorf("parse snapshot groups: %w", err)
	}
	return groups, nil
}

// command sends msg and waits for the extension's {id, ok} response.
func (s *Source) command(ctx context.Context, msg OutgoingMsg) error {
	if !s.srv.Connected() {
		return fmt.Errorf("extension not connected")
	}

	w := make(chan IncomingMsg, 1)
	s.mu.Lock()
	s.respWaiters[msg.ID] = w
	s.mu.Unlock()

	if err := s.srv.Send(msg); err != nil {
		s.mu.Lock()
		delete(s.respWaiters, msg.ID)
		s.mu.Unlock()
		return err
	}

	select {
	case resp := <-w:
		if resp.OK != nil && !*resp.OK {
			if resp.Error != "" {
				return fmt.Errorf("%s: %s", msg.Action, resp.Error)
			}
			return fmt.Errorf("%s: rejected by extension", msg.Action)
		}
		return nil
	case <-time.After(s.timeout):
		s.mu.Lock()
		delete(s.respWaiters, msg.ID)
		s.mu.Unlock()
		return fmt.Errorf("%s: no response within %s", msg.Action, s.timeout)
	case <-ctx.Done():
		s.mu.Lock()
		delete(s.respWaiters, msg.ID)
		s.mu.Unlock()
		return ctx.Err()
	}
}

// OpenTab asks the browser to open url in a new tab.
func (s *Source) OpenTab(ctx context.Context, url string, pinned bool) error {
	return s.command(ctx, OutgoingMsg{
		ID:     uuid.NewString(),
		Action: ActionOpen,
		Tabs:   []TabToOpen{{URL: url, Pinned: pinned}},
	})
}

// CloseTab asks the browser to close the tab with the given id. Ids that
// don't parse back to a host tab id were never live in this browser.
func (s *Source) CloseTab(ctx context.Context, id string) error {
	hostID, err := strconv.Atoi(id)
	if err != nil {
		applog.Info("bridge.close.skip", "id", id)
		return fmt.Errorf("tab %s has no browser id", id)
	}
	return s.command(ctx, OutgoingMsg{
		ID:     uuid.NewString(),
		Action: ActionClose,
		TabIDs: []int{hostID},
	})
}
