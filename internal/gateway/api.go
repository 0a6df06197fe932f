// ABOUTME: HTTP control API that forwards commands to MCP sessions
// ABOUTME: Handles connect, list and call commands, session snapshots and history

package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"slices"
	"strconv"
	"strings"

	"github.com/yashraj-dudhe/mcp-client/internal/auth"
	"github.com/yashraj-dudhe/mcp-client/internal/broadcast"
	"github.com/yashraj-dudhe/mcp-client/internal/jsonrpc"
	"github.com/yashraj-dudhe/mcp-client/internal/process"
	"github.com/yashraj-dudhe/mcp-client/internal/session"
	"github.com/yashraj-dudhe/mcp-client/internal/store"
)

// maxBodySize bounds request bodies on the control API.
const maxBodySize = 1 << 20

// ConnectRequest is the body of POST /api/connect.
type ConnectRequest struct {
	ServerPath string `json:"serverPath"`
}

// ConnectResponse is returned by POST /api/connect.
type ConnectResponse struct {
	Success   bool   `json:"success"`
	SessionID string `json:"sessionId"`
	State     string `json:"state,omitempty"`
	Error     string `json:"error,omitempty"`
}

// CallToolRequest is the body of POST /api/tools/call/{id}.
type CallToolRequest struct {
	ToolName string          `json:"toolName"`
	Args     json.RawMessage `json:"args,omitempty"`
}

// ReadResourceRequest is the body of POST /api/resources/read/{id}.
type ReadResourceRequest struct {
	URI string `json:"uri"`
}

// CommandResponse acknowledges a command written to a session.
type CommandResponse struct {
	Success   bool       `json:"success"`
	RequestID jsonrpc.ID `json:"requestId"`
}

// HistoryResponse is returned by GET /api/sessions/{id}/history.
type HistoryResponse struct {
	SessionID string               `json:"sessionId"`
	Events    []broadcast.Envelope `json:"events"`
}

// RecentResponse is returned by GET /api/events/recent.
type RecentResponse struct {
	Events []broadcast.Envelope `json:"events"`
}

// routes builds the HTTP mux. /health stays open; everything else requires a
// bearer token when auth is enabled.
func (g *Gateway) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", g.handleHealth)
	mux.HandleFunc("GET /health/ready", g.handleReady)

	g.handle(mux, "POST /api/connect", g.handleConnect)
	g.handle(mux, "POST /api/tools/list/{id}", g.handleListTools)
	g.handle(mux, "POST /api/tools/call/{id}", g.handleCallTool)
	g.handle(mux, "POST /api/resources/list/{id}", g.handleListResources)
	g.handle(mux, "POST /api/resources/read/{id}", g.handleReadResource)
	g.handle(mux, "POST /api/prompts/list/{id}", g.handleListPrompts)

	g.handle(mux, "GET /api/sessions", g.handleListSessions)
	g.handle(mux, "GET /api/sessions/{id}", g.handleGetSession)
	g.handle(mux, "DELETE /api/sessions/{id}", g.handleDisconnect)
	g.handle(mux, "GET /api/sessions/{id}/history", g.handleHistory)

	g.handle(mux, "GET /api/events", g.handleSSE)
	g.handle(mux, "GET /api/events/recent", g.handleRecent)
	g.handle(mux, "GET /ws", g.handleWebSocket)

	return mux
}

func (g *Gateway) handle(mux *http.ServeMux, pattern string, h http.HandlerFunc) {
	if g.verifier == nil {
		mux.Handle(pattern, h)
		return
	}
	mux.Handle(pattern, auth.Middleware(g.verifier, g.logger)(h))
}

// handleConnect spawns a server. With ?wait=true it answers once the
// session is Ready or has failed.
func (g *Gateway) handleConnect(w http.ResponseWriter, r *http.Request) {
	var req ConnectRequest
	if err := decodeBody(w, r, &req); err != nil {
		g.sendJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.ServerPath) == "" {
		g.sendJSONError(w, http.StatusBadRequest, "serverPath is required")
		return
	}

	id, err := g.connect(r.Context(), req.ServerPath, r.Header.Get("Idempotency-Key"))
	if err != nil {
		g.logger.Warn("connect failed", "server_path", req.ServerPath, "error", err)
		g.sendSessionError(w, err)
		return
	}

	resp := ConnectResponse{Success: true, SessionID: id}
	if wait, _ := strconv.ParseBool(r.URL.Query().Get("wait")); wait {
		if err := g.manager.WaitReady(r.Context(), id); err != nil {
			resp.Success = false
			resp.Error = err.Error()
			if snap, snapErr := g.manager.Session(id); snapErr == nil {
				resp.State = snap.State.String()
			}
			g.sendJSON(w, sessionErrorStatus(err), resp)
			return
		}
		resp.State = session.StateReady.String()
	}

	g.sendJSON(w, http.StatusOK, resp)
}

// connect spawns a session, reusing the session of an earlier request that
// carried the same idempotency key while that session is still alive.
func (g *Gateway) connect(ctx context.Context, path, key string) (string, error) {
	spawn := func() (string, error) {
		return g.manager.Connect(ctx, path)
	}
	if key == "" {
		return spawn()
	}

	id, shared, err := g.connects.Do(key, spawn)
	if err != nil || !shared {
		return id, err
	}
	if !g.sessionLive(id) {
		g.logger.Debug("idempotency key names an ended session, connecting again", "session_id", id)
		g.connects.Forget(key)
		id, _, err = g.connects.Do(key, spawn)
		return id, err
	}
	g.logger.Debug("connect replayed from idempotency key", "session_id", id)
	return id, nil
}

// sessionLive reports whether id is registered and not yet terminal.
func (g *Gateway) sessionLive(id string) bool {
	snap, err := g.manager.Session(id)
	return err == nil && !snap.State.Terminal()
}

func (g *Gateway) handleListTools(w http.ResponseWriter, r *http.Request) {
	g.sendCommand(w, r, g.manager.ListTools)
}

func (g *Gateway) handleListResources(w http.ResponseWriter, r *http.Request) {
	g.sendCommand(w, r, g.manager.ListResources)
}

func (g *Gateway) handleListPrompts(w http.ResponseWriter, r *http.Request) {
	g.sendCommand(w, r, g.manager.ListPrompts)
}

func (g *Gateway) handleCallTool(w http.ResponseWriter, r *http.Request) {
	var req CallToolRequest
	if err := decodeBody(w, r, &req); err != nil {
		g.sendJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.ToolName == "" {
		g.sendJSONError(w, http.StatusBadRequest, "toolName is required")
		return
	}
	g.sendCommand(w, r, func(id string) (jsonrpc.ID, error) {
		return g.manager.CallTool(id, req.ToolName, req.Args)
	})
}

func (g *Gateway) handleReadResource(w http.ResponseWriter, r *http.Request) {
	var req ReadResourceRequest
	if err := decodeBody(w, r, &req); err != nil {
		g.sendJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.URI == "" {
		g.sendJSONError(w, http.StatusBadRequest, "uri is required")
		return
	}
	g.sendCommand(w, r, func(id string) (jsonrpc.ID, error) {
		return g.manager.ReadResource(id, req.URI)
	})
}

// sendCommand runs a fire-and-forget command against the session in the path.
func (g *Gateway) sendCommand(w http.ResponseWriter, r *http.Request, send func(id string) (jsonrpc.ID, error)) {
	id := r.PathValue("id")
	requestID, err := send(id)
	if err != nil {
		g.logger.Debug("command rejected", "session_id", id, "path", r.URL.Path, "error", err)
		g.sendSessionError(w, err)
		return
	}
	g.sendJSON(w, http.StatusOK, CommandResponse{Success: true, RequestID: requestID})
}

func (g *Gateway) handleListSessions(w http.ResponseWriter, r *http.Request) {
	g.sendJSON(w, http.StatusOK, map[string][]session.Snapshot{"sessions": g.manager.Sessions()})
}

func (g *Gateway) handleGetSession(w http.ResponseWriter, r *http.Request) {
	snap, err := g.manager.Session(r.PathValue("id"))
	if err != nil {
		g.sendSessionError(w, err)
		return
	}
	g.sendJSON(w, http.StatusOK, newSessionView(snap))
}

func (g *Gateway) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	if err := g.manager.Disconnect(r.PathValue("id")); err != nil {
		g.sendSessionError(w, err)
		return
	}
	g.sendJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// handleHistory serves recorded envelopes. It works for sessions that have
// already been disconnected.
func (g *Gateway) handleHistory(w http.ResponseWriter, r *http.Request) {
	if g.store == nil {
		g.sendJSONError(w, http.StatusNotFound, "history disabled")
		return
	}

	limit, ok := g.parseLimit(w, r)
	if !ok {
		return
	}

	id := r.PathValue("id")
	events, err := g.store.ListSessionEvents(r.Context(), id, limit)
	if err != nil {
		g.logger.Error("failed to list history", "session_id", id, "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "failed to load history")
		return
	}

	resp := HistoryResponse{SessionID: id, Events: make([]broadcast.Envelope, 0, len(events))}
	for _, e := range events {
		resp.Events = append(resp.Events, eventToEnvelope(e))
	}
	g.sendJSON(w, http.StatusOK, resp)
}

// handleRecent serves the newest envelopes across all sessions from the
// Redis mirror, oldest first.
func (g *Gateway) handleRecent(w http.ResponseWriter, r *http.Request) {
	if g.mirror == nil {
		g.sendJSONError(w, http.StatusNotFound, "mirror disabled")
		return
	}

	limit, ok := g.parseLimit(w, r)
	if !ok {
		return
	}

	envs, err := g.mirror.Recent(r.Context(), int64(limit))
	if err != nil {
		g.logger.Error("failed to read mirror", "error", err)
		g.sendJSONError(w, http.StatusBadGateway, "failed to read mirror")
		return
	}
	slices.Reverse(envs)
	g.sendJSON(w, http.StatusOK, RecentResponse{Events: envs})
}

// parseLimit reads the limit query parameter, writing a 400 when it is not a
// positive integer.
func (g *Gateway) parseLimit(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return store.DefaultHistoryLimit, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		g.sendJSONError(w, http.StatusBadRequest, "limit must be a positive integer")
		return 0, false
	}
	return store.ClampLimit(n), true
}

// decodeBody parses a JSON request body into v.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	body := http.MaxBytesReader(w, r.Body, maxBodySize)
	if err := json.NewDecoder(body).Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return fmt.Errorf("invalid JSON: %w", err)
	}
	return nil
}

// sessionErrorStatus maps session errors onto HTTP status codes.
func sessionErrorStatus(err error) int {
	switch {
	case errors.Is(err, session.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, session.ErrNotInitialized), errors.Is(err, session.ErrSessionClosed):
		return http.StatusConflict
	case errors.Is(err, process.ErrEmptyPath):
		return http.StatusBadRequest
	case errors.Is(err, session.ErrHandshakeTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, session.ErrSpawnFailure),
		errors.Is(err, session.ErrHandshakeRejected),
		errors.Is(err, session.ErrProcessExited):
		return http.StatusBadGateway
	case errors.Is(err, session.ErrManagerClosed),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (g *Gateway) sendSessionError(w http.ResponseWriter, err error) {
	g.sendJSONError(w, sessionErrorStatus(err), err.Error())
}

// sendJSONError writes a JSON error response.
func (g *Gateway) sendJSONError(w http.ResponseWriter, status int, message string) {
	g.sendJSON(w, status, map[string]string{"error": message})
}

func (g *Gateway) sendJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		g.logger.Debug("failed to write response", "error", err)
	}
}
