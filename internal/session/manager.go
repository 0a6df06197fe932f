// ABOUTME: Registry of live sessions and the control API used by the request layer
// ABOUTME: Creates sessions, routes commands by id and terminates children on close

package session

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/yashraj-dudhe/mcp-client/internal/broadcast"
	"github.com/yashraj-dudhe/mcp-client/internal/jsonrpc"
	"github.com/yashraj-dudhe/mcp-client/internal/process"
)

// Manager owns every session it creates.
type Manager struct {
	spawner   process.Spawner
	publisher broadcast.Publisher
	opts      Options
	logger    *slog.Logger

	mu       sync.RWMutex
	sessions map[string]*Session
	closed   bool
}

// NewManager creates a Manager. A nil publisher discards events; a nil logger
// uses the default.
func NewManager(spawner process.Spawner, publisher broadcast.Publisher, opts Options, logger *slog.Logger) *Manager {
	if publisher == nil {
		publisher = broadcast.Discard
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		spawner:   spawner,
		publisher: publisher,
		opts:      opts.withDefaults(),
		logger:    logger.With("component", "sessions"),
		sessions:  make(map[string]*Session),
	}
}

// Connect spawns the server at path and starts its handshake. It returns as
// soon as the child is running and initialize has been written; use
// WaitReady to block until the session can take commands.
func (m *Manager) Connect(ctx context.Context, path string) (string, error) {
	if m.isClosed() {
		return "", ErrManagerClosed
	}

	cmd, err := m.opts.Interpreters.CommandFor(path)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrSpawnFailure, err)
	}

	id := "server_" + uuid.New().String()
	s := newSession(id, strings.TrimSpace(path), cmd, m.opts, m.publisher, m.logger)

	proc, err := m.spawner.Spawn(ctx, cmd)
	if err != nil {
		err = fmt.Errorf("%w: %s: %w", ErrSpawnFailure, cmd, err)
		s.fail(err)
		return "", err
	}

	s.attach(proc)

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		_ = proc.Kill()
		return "", ErrManagerClosed
	}
	m.sessions[id] = s
	total := len(m.sessions)
	m.mu.Unlock()

	m.logger.Info("=== SESSION CONNECTED ===",
		"session_id", id,
		"command", cmd.String(),
		"pid", proc.Pid(),
		"total_sessions", total,
	)

	if err := s.start(); err != nil {
		m.remove(id)
		return "", err
	}
	return id, nil
}

// WaitReady blocks until the session is Ready (nil), Failed (the failure
// cause), Closed (ErrSessionClosed) or ctx ends.
func (m *Manager) WaitReady(ctx context.Context, id string) error {
	s, err := m.lookup(id)
	if err != nil {
		return err
	}
	return s.waitReady(ctx)
}

// ListTools sends tools/list.
func (m *Manager) ListTools(id string) (jsonrpc.ID, error) {
	return m.send(id, "tools/list", nil)
}

// ListResources sends resources/list.
func (m *Manager) ListResources(id string) (jsonrpc.ID, error) {
	return m.send(id, "resources/list", nil)
}

// ListPrompts sends prompts/list.
func (m *Manager) ListPrompts(id string) (jsonrpc.ID, error) {
	return m.send(id, "prompts/list", nil)
}

type callToolParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// CallTool sends tools/call. Empty args are sent as an empty object.
func (m *Manager) CallTool(id, name string, args json.RawMessage) (jsonrpc.ID, error) {
	if len(args) == 0 || string(args) == "null" {
		args = json.RawMessage(`{}`)
	}
	return m.send(id, "tools/call", callToolParams{Name: name, Arguments: args})
}

type readResourceParams struct {
	URI string `json:"uri"`
}

// ReadResource sends resources/read.
func (m *Manager) ReadResource(id, uri string) (jsonrpc.ID, error) {
	return m.send(id, "resources/read", readResourceParams{URI: uri})
}

func (m *Manager) send(id, method string, params any) (jsonrpc.ID, error) {
	s, err := m.lookup(id)
	if err != nil {
		return jsonrpc.ID{}, err
	}
	return s.send(method, params)
}

// Session returns a snapshot of one session.
func (m *Manager) Session(id string) (Snapshot, error) {
	s, err := m.lookup(id)
	if err != nil {
		return Snapshot{}, err
	}
	return s.Snapshot(), nil
}

// Sessions returns snapshots of every session, oldest first.
func (m *Manager) Sessions() []Snapshot {
	m.mu.RLock()
	list := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		list = append(list, s)
	}
	m.mu.RUnlock()

	snaps := make([]Snapshot, 0, len(list))
	for _, s := range list {
		snaps = append(snaps, s.Snapshot())
	}
	slices.SortFunc(snaps, func(a, b Snapshot) int {
		if c := a.StartedAt.Compare(b.StartedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return snaps
}

// Disconnect kills the session's child, marks it Closed and forgets it.
func (m *Manager) Disconnect(id string) error {
	s := m.remove(id)
	if s == nil {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	s.close()
	return nil
}

// Close terminates every child and waits, bounded by ctx, for them to exit.
// Later calls to Connect fail with ErrManagerClosed.
func (m *Manager) Close(ctx context.Context) error {
	m.mu.Lock()
	m.closed = true
	list := make([]*Session, 0, len(m.sessions))
	for id, s := range m.sessions {
		list = append(list, s)
		delete(m.sessions, id)
	}
	m.mu.Unlock()

	for _, s := range list {
		s.close()
	}
	for _, s := range list {
		select {
		case <-s.Done():
		case <-ctx.Done():
			return fmt.Errorf("waiting for server processes: %w", ctx.Err())
		}
	}

	m.logger.Info("session manager closed", "sessions", len(list))
	return nil
}

func (m *Manager) lookup(id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return s, nil
}

func (m *Manager) remove(id string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok {
		return nil
	}
	delete(m.sessions, id)
	m.logger.Info("=== SESSION REMOVED ===",
		"session_id", id,
		"total_sessions", len(m.sessions),
	)
	return s
}

func (m *Manager) isClosed() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.closed
}
