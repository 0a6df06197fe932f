// ABOUTME: A supervised MCP server child: lifecycle state, catalogs and stream loops
// ABOUTME: One goroutine reads stdout in order; stderr is logged, never parsed

package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/yashraj-dudhe/mcp-client/internal/broadcast"
	"github.com/yashraj-dudhe/mcp-client/internal/jsonrpc"
	"github.com/yashraj-dudhe/mcp-client/internal/process"
	"github.com/yashraj-dudhe/mcp-client/internal/transport"
)

// Session is the manager's live binding to one child process.
type Session struct {
	id        string
	path      string
	cmd       process.Command
	opts      Options
	publisher broadcast.Publisher
	logger    *slog.Logger
	startedAt time.Time

	proc   process.Process
	writer *transport.FrameWriter
	ids    *jsonrpc.IDGenerator

	// sendMu keeps id assignment and frame write in the same order.
	sendMu sync.Mutex

	mu        sync.Mutex
	state     State
	tools     []json.RawMessage
	resources []json.RawMessage
	prompts   []json.RawMessage
	pendingID *jsonrpc.ID
	pending   map[jsonrpc.ID]string // request id -> method
	failure   error
	deadline  *time.Timer

	settled   chan struct{} // closed on Ready or a terminal state
	settledMu sync.Once
	streams   sync.WaitGroup
	done      chan struct{} // closed once the child has exited
}

func newSession(id, path string, cmd process.Command, opts Options, pub broadcast.Publisher, logger *slog.Logger) *Session {
	return &Session{
		id:        id,
		path:      path,
		cmd:       cmd,
		opts:      opts,
		publisher: pub,
		logger:    logger.With("session_id", id),
		startedAt: time.Now().UTC(),
		ids:       jsonrpc.NewIDGenerator(),
		state:     StateConnecting,
		pending:   make(map[jsonrpc.ID]string),
		settled:   make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Done is closed once the child process has exited and its streams drained.
func (s *Session) Done() <-chan struct{} { return s.done }

// attach binds the spawned child. The manager calls it before the session
// becomes visible in the registry.
func (s *Session) attach(proc process.Process) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.proc = proc
	s.writer = transport.NewFrameWriter(proc.Stdin())
}

// start runs the stream loops and sends initialize. The returned error means
// the session is already terminal; a session closed between attach and start
// has had its child killed and is only reaped.
func (s *Session) start() error {
	s.mu.Lock()
	began := s.transitionLocked(StateAwaitingInitResult, nil)
	if began {
		timeout := s.opts.HandshakeTimeout
		s.deadline = time.AfterFunc(timeout, func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			if s.state < StateReady {
				s.failLocked(fmt.Errorf("%w: not ready after %s", ErrHandshakeTimeout, timeout))
			}
		})
	}
	s.mu.Unlock()

	s.streams.Add(2)
	go s.readLoop()
	go s.stderrLoop()
	go s.monitor()

	if !began {
		return fmt.Errorf("%w: %s", ErrSessionClosed, s.id)
	}

	frame, err := jsonrpc.Encode(jsonrpc.NewRequest(jsonrpc.NewID(jsonrpc.InitializeID), "initialize", s.initializeParams()))
	if err == nil {
		err = s.writer.Write(frame)
	}
	if err != nil {
		if s.State() == StateClosed {
			return fmt.Errorf("%w: %s", ErrSessionClosed, s.id)
		}
		err = fmt.Errorf("%w: sending initialize: %w", ErrSpawnFailure, err)
		s.fail(err)
		return err
	}
	return nil
}

type clientInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

type initializeParams struct {
	ProtocolVersion string              `json:"protocolVersion"`
	Capabilities    map[string]struct{} `json:"capabilities"`
	ClientInfo      clientInfo          `json:"clientInfo"`
}

func (s *Session) initializeParams() initializeParams {
	return initializeParams{
		ProtocolVersion: s.opts.ProtocolVersion,
		Capabilities:    map[string]struct{}{"tools": {}, "resources": {}},
		ClientInfo:      clientInfo{Name: s.opts.ClientName, Version: s.opts.ClientVersion},
	}
}

func (s *Session) readLoop() {
	defer s.streams.Done()

	lines := transport.NewLineReader(s.proc.Stdout())
	for {
		line, err := lines.Next()
		if errors.Is(err, transport.ErrLineTooLong) {
			s.logger.Warn("dropped oversized frame", "limit", transport.MaxLineSize)
			s.publishDecodeError(nil, err)
			continue
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrClosedPipe) {
				s.logger.Warn("stdout read failed", "error", err)
				s.fail(fmt.Errorf("%w: reading stdout: %w", ErrProcessExited, err))
			}
			return
		}
		s.handleLine(line)
	}
}

func (s *Session) stderrLoop() {
	defer s.streams.Done()

	for line, err := range transport.NewLineReader(s.proc.Stderr()).Lines() {
		if err != nil {
			if !errors.Is(err, io.ErrClosedPipe) {
				s.logger.Debug("stderr read failed", "error", err)
			}
			return
		}
		s.logger.Warn("server output", "stream", "stderr", "line", string(line))
	}
}

// monitor waits for the child to exit and settles the final state.
func (s *Session) monitor() {
	s.streams.Wait()
	waitErr := s.proc.Wait()
	_ = s.writer.Close()

	s.mu.Lock()
	switch {
	case s.state.Terminal():
	case s.state == StateReady && waitErr == nil:
		s.transitionLocked(StateClosed, nil)
	default:
		cause := fmt.Errorf("%w: %s", ErrProcessExited, exitDescription(waitErr))
		s.failLocked(cause)
	}
	s.mu.Unlock()

	s.logger.Info("server process exited", "error", waitErr)
	close(s.done)
}

func exitDescription(err error) string {
	if err == nil {
		return "exit status 0"
	}
	return err.Error()
}

// handleLine processes one inbound frame. Only readLoop calls it.
func (s *Session) handleLine(line []byte) {
	msg := jsonrpc.Decode(line)

	switch msg.Kind {
	case jsonrpc.KindMalformed:
		s.logger.Debug("malformed frame", "error", msg.Err)
		s.publishDecodeError(msg.Raw, msg.Err)
	case jsonrpc.KindNotification:
		s.publish(&broadcast.Envelope{
			Type:    broadcast.EventNotification,
			Method:  msg.Method,
			Payload: msg.Raw,
		})
	case jsonrpc.KindRequest:
		s.publish(&broadcast.Envelope{
			Type:    broadcast.EventRequest,
			Method:  msg.Method,
			Payload: msg.Raw,
		})
		go s.answerServerRequest(msg)
	case jsonrpc.KindResponse:
		s.handleResponse(msg)
	}
}

func (s *Session) handleResponse(msg jsonrpc.Message) {
	s.mu.Lock()

	if s.state == StateAwaitingInitResult && msg.HasID(jsonrpc.NewID(jsonrpc.InitializeID)) {
		s.publishLocked(&broadcast.Envelope{
			Type:    broadcast.EventResponse,
			Method:  "initialize",
			Payload: msg.Raw,
		})
		if msg.Error != nil {
			s.failLocked(fmt.Errorf("%w: %s", ErrHandshakeRejected, msg.Error.Message))
			s.mu.Unlock()
			return
		}
		s.transitionLocked(StateAwaitingInitializedAck, nil)
		s.mu.Unlock()

		s.completeHandshake()
		return
	}

	var method string
	if msg.ID != nil {
		method = s.pending[*msg.ID]
		delete(s.pending, *msg.ID)
		if s.pendingID != nil && *s.pendingID == *msg.ID {
			s.pendingID = nil
		}
	}
	if msg.Error == nil && !s.state.Terminal() {
		s.updateCatalogsLocked(msg.Result)
	}
	s.publishLocked(&broadcast.Envelope{
		Type:    broadcast.EventResponse,
		Method:  method,
		Payload: msg.Raw,
	})
	s.mu.Unlock()
}

// completeHandshake sends notifications/initialized and moves to Ready once
// the frame is flushed and any settle delay has passed.
func (s *Session) completeHandshake() {
	frame, err := jsonrpc.Encode(jsonrpc.NewNotification("notifications/initialized", nil))
	if err == nil {
		err = s.writer.Write(frame)
	}
	if err != nil {
		s.fail(fmt.Errorf("%w: sending initialized notification: %w", ErrProcessExited, err))
		return
	}

	if s.opts.SettleDelay <= 0 {
		s.markReady()
		return
	}
	time.AfterFunc(s.opts.SettleDelay, s.markReady)
}

func (s *Session) markReady() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateAwaitingInitializedAck {
		return
	}
	s.deadline.Stop()
	s.transitionLocked(StateReady, nil)
}

// catalogResult picks out the catalog arrays a list response may carry.
// Updates are keyed on result shape, so a response without a usable id still
// refreshes the catalog.
type catalogResult struct {
	Tools     *[]json.RawMessage `json:"tools"`
	Resources *[]json.RawMessage `json:"resources"`
	Prompts   *[]json.RawMessage `json:"prompts"`
}

func (s *Session) updateCatalogsLocked(result json.RawMessage) {
	if len(result) == 0 {
		return
	}
	var cat catalogResult
	if err := json.Unmarshal(result, &cat); err != nil {
		return
	}
	if cat.Tools != nil {
		s.tools = *cat.Tools
	}
	if cat.Resources != nil {
		s.resources = *cat.Resources
	}
	if cat.Prompts != nil {
		s.prompts = *cat.Prompts
	}
}

// answerServerRequest replies to requests the server initiates. Only ping is
// supported; everything else gets method-not-found.
func (s *Session) answerServerRequest(msg jsonrpc.Message) {
	var resp *jsonrpc.Response
	if msg.Method == "ping" {
		resp = jsonrpc.NewResult(msg.ID, struct{}{})
	} else {
		resp = jsonrpc.NewErrorResponse(msg.ID, jsonrpc.CodeMethodNotFound, "method not supported by client: "+msg.Method)
	}
	frame, err := jsonrpc.Encode(resp)
	if err != nil {
		return
	}
	if err := s.writer.Write(frame); err != nil {
		s.logger.Debug("reply to server request failed", "method", msg.Method, "error", err)
	}
}

// send writes a request for method if the session is Ready.
func (s *Session) send(method string, params any) (jsonrpc.ID, error) {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()

	s.mu.Lock()
	if s.state != StateReady {
		err := s.notReadyErrLocked()
		s.mu.Unlock()
		return jsonrpc.ID{}, err
	}
	id := s.ids.Next()
	s.pending[id] = method
	s.pendingID = &id
	s.mu.Unlock()

	frame, err := jsonrpc.Encode(jsonrpc.NewRequest(id, method, params))
	if err != nil {
		s.mu.Lock()
		delete(s.pending, id)
		s.mu.Unlock()
		return jsonrpc.ID{}, err
	}
	if err := s.writer.Write(frame); err != nil {
		s.fail(fmt.Errorf("%w: %w", ErrProcessExited, err))
		return jsonrpc.ID{}, fmt.Errorf("sending %s: %w", method, err)
	}

	s.logger.Debug("request sent", "method", method, "request_id", id.String())
	return id, nil
}

func (s *Session) notReadyErrLocked() error {
	if s.state.Terminal() && s.failure != nil {
		return fmt.Errorf("%w: session is %s: %v", ErrNotInitialized, s.state, s.failure)
	}
	return fmt.Errorf("%w: session is %s", ErrNotInitialized, s.state)
}

// waitReady blocks until the session is Ready, terminal, or ctx ends.
func (s *Session) waitReady(ctx context.Context) error {
	select {
	case <-s.settled:
	case <-ctx.Done():
		return ctx.Err()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.state {
	case StateReady:
		return nil
	case StateFailed:
		return s.failure
	default:
		return ErrSessionClosed
	}
}

// close kills the child and marks the session Closed.
func (s *Session) close() {
	s.mu.Lock()
	if s.transitionLocked(StateClosed, nil) {
		s.stopLocked()
	}
	s.mu.Unlock()
}

func (s *Session) fail(cause error) {
	s.mu.Lock()
	s.failLocked(cause)
	s.mu.Unlock()
}

func (s *Session) failLocked(cause error) {
	if s.state.Terminal() {
		return
	}
	s.failure = cause
	s.logger.Warn("session failed", "error", cause)
	s.transitionLocked(StateFailed, cause)
	s.stopLocked()
}

// stopLocked releases everything a terminal session holds.
func (s *Session) stopLocked() {
	if s.deadline != nil {
		s.deadline.Stop()
	}
	clear(s.pending)
	s.pendingID = nil
	if s.proc != nil {
		if err := s.proc.Kill(); err != nil {
			s.logger.Debug("kill failed", "error", err)
		}
	}
}

func (s *Session) transitionLocked(next State, cause error) bool {
	if !s.state.canTransition(next) {
		return false
	}
	prev := s.state
	s.state = next

	s.logger.Info("session state changed", "from", prev.String(), "to", next.String())
	if next == StateReady || next.Terminal() {
		s.settledMu.Do(func() { close(s.settled) })
	}

	env := &broadcast.Envelope{
		Type:  broadcast.EventSessionState,
		State: next.String(),
	}
	if cause != nil {
		env.Error = cause.Error()
	}
	s.publishLocked(env)
	return true
}

func (s *Session) publishDecodeError(raw []byte, cause error) {
	payload, _ := json.Marshal(string(raw))
	s.publish(&broadcast.Envelope{
		Type:    broadcast.EventDecodeError,
		Payload: payload,
		Error:   cause.Error(),
	})
}

func (s *Session) publish(env *broadcast.Envelope) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.publishLocked(env)
}

// publishLocked stamps and delivers env. Holding mu keeps envelopes in the
// same order as the state changes they describe.
func (s *Session) publishLocked(env *broadcast.Envelope) {
	env.SessionID = s.id
	env.Time = time.Now().UTC()
	s.publisher.Publish(env)
}

// Snapshot is a read-only copy of a session's state.
type Snapshot struct {
	ID               string            `json:"id"`
	ServerPath       string            `json:"serverPath"`
	Command          string            `json:"command"`
	PID              int               `json:"pid,omitempty"`
	State            State             `json:"state"`
	Tools            []json.RawMessage `json:"tools"`
	Resources        []json.RawMessage `json:"resources"`
	Prompts          []json.RawMessage `json:"prompts"`
	PendingRequestID *jsonrpc.ID       `json:"pendingRequestId,omitempty"`
	Error            string            `json:"error,omitempty"`
	StartedAt        time.Time         `json:"startedAt"`
}

// Snapshot copies the session's state under its lock.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		ID:         s.id,
		ServerPath: s.path,
		Command:    s.cmd.String(),
		State:      s.state,
		Tools:      cloneItems(s.tools),
		Resources:  cloneItems(s.resources),
		Prompts:    cloneItems(s.prompts),
		StartedAt:  s.startedAt,
	}
	if s.proc != nil {
		snap.PID = s.proc.Pid()
	}
	if s.pendingID != nil {
		id := *s.pendingID
		snap.PendingRequestID = &id
	}
	if s.failure != nil {
		snap.Error = s.failure.Error()
	}
	return snap
}

func cloneItems(items []json.RawMessage) []json.RawMessage {
	out := make([]json.RawMessage, len(items))
	copy(out, items)
	return out
}
