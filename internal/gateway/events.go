// ABOUTME: Subscriber transports that stream broadcast envelopes to clients
// ABOUTME: Serves the fan-out over WebSocket (/ws) and server-sent events (/api/events)

package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/tmaxmax/go-sse"

	"github.com/yashraj-dudhe/mcp-client/internal/broadcast"
)

// writeTimeout bounds a single frame write to a subscriber.
const writeTimeout = 10 * time.Second

// matchesFilter reports whether env belongs to the session named by the
// optional ?session= query parameter.
func matchesFilter(env *broadcast.Envelope, sessionID string) bool {
	return sessionID == "" || env.SessionID == sessionID
}

// handleWebSocket streams every envelope as one text message. Messages from
// the client are ignored.
func (g *Gateway) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	// Browser UIs are commonly served from a different origin than the API.
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{InsecureSkipVerify: true})
	if err != nil {
		g.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.CloseNow()

	ctx := conn.CloseRead(r.Context())
	filter := r.URL.Query().Get("session")
	events, subID := g.broadcaster.Subscribe(ctx)
	defer g.broadcaster.Unsubscribe(subID)

	g.logger.Info("websocket subscriber connected", "subscriber_id", subID, "session_filter", filter)
	defer g.logger.Info("websocket subscriber disconnected", "subscriber_id", subID)

	for {
		select {
		case <-ctx.Done():
			return
		case env, ok := <-events:
			if !ok {
				_ = conn.Close(websocket.StatusGoingAway, "server shutting down")
				return
			}
			if !matchesFilter(env, filter) {
				continue
			}
			if err := writeWebSocketEnvelope(ctx, conn, env); err != nil {
				g.logger.Debug("websocket write failed", "subscriber_id", subID, "error", err)
				return
			}
		}
	}
}

func writeWebSocketEnvelope(ctx context.Context, conn *websocket.Conn, env *broadcast.Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return conn.Write(ctx, websocket.MessageText, data)
}

// handleSSE streams every envelope as an event named after its type.
func (g *Gateway) handleSSE(w http.ResponseWriter, r *http.Request) {
	sess, err := sse.Upgrade(w, r)
	if err != nil {
		g.logger.Error("failed to upgrade session", "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	ctx := r.Context()
	filter := r.URL.Query().Get("session")
	events, subID := g.broadcaster.Subscribe(ctx)
	defer g.broadcaster.Unsubscribe(subID)

	// Flush the headers so clients see the stream open before the first event.
	open := sse.Message{Type: sse.Type("open")}
	open.AppendData(subID)
	if err := sendSSE(sess, &open); err != nil {
		g.logger.Debug("sse write failed", "subscriber_id", subID, "error", err)
		return
	}

	g.logger.Info("sse subscriber connected", "subscriber_id", subID, "session_filter", filter)
	defer g.logger.Info("sse subscriber disconnected", "subscriber_id", subID)

	for {
		select {
		case <-ctx.Done():
			return
		case env, ok := <-events:
			if !ok {
				return
			}
			if !matchesFilter(env, filter) {
				continue
			}
			data, err := json.Marshal(env)
			if err != nil {
				g.logger.Error("failed to marshal envelope", "error", err)
				continue
			}
			msg := sse.Message{Type: sse.Type(string(env.Type))}
			msg.AppendData(string(data))
			if err := sendSSE(sess, &msg); err != nil {
				g.logger.Debug("sse write failed", "subscriber_id", subID, "error", err)
				return
			}
		}
	}
}

func sendSSE(sess *sse.Session, msg *sse.Message) error {
	if err := sess.Send(msg); err != nil {
		return err
	}
	return sess.Flush()
}
