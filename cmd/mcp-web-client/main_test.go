// ABOUTME: Tests for the mcp-web-client subcommands and logger
// ABOUTME: Exercises commands through cobra with temp configs and httptest servers

package main

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yashraj-dudhe/mcp-client/internal/auth"
	"github.com/yashraj-dudhe/mcp-client/internal/config"
	"github.com/yashraj-dudhe/mcp-client/internal/session"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func TestMain(m *testing.M) {
	color.NoColor = true
	os.Exit(m.Run())
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := rootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(t.Context())
	return out.String(), err
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "mcp-web-client dev\n", out)
}

func TestInitCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	out, err := execute(t, "init", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Wrote "+path)
	assert.Contains(t, out, "MCP_WEB_CLIENT_JWT_SECRET=")

	_, err = os.Stat(path)
	require.NoError(t, err)

	_, err = execute(t, "init", "--config", path)
	assert.ErrorIs(t, err, config.ErrConfigExists)

	_, err = execute(t, "init", "--config", path, "--force")
	assert.NoError(t, err)
}

func TestTokenCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("auth:\n  jwt_secret: \""+testSecret+"\"\n"), 0o600))

	out, err := execute(t, "token", "--config", path, "--subject", "alice", "--ttl", "1h")
	require.NoError(t, err)

	subject, err := auth.NewJWTVerifier([]byte(testSecret)).Verify(strings.TrimSpace(out))
	require.NoError(t, err)
	assert.Equal(t, "alice", subject)

	_, err = execute(t, "token", "--config", path)
	assert.Error(t, err, "subject is required")
}

func TestIssueTokenRequiresSecret(t *testing.T) {
	_, err := issueToken(config.Default(), "alice", time.Hour)
	assert.ErrorContains(t, err, "jwt_secret")

	cfg := config.Default()
	cfg.Auth.JWTSecret = testSecret
	_, err = issueToken(cfg, "alice", 0)
	assert.Error(t, err)
}

func TestRunSessions(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/sessions", r.URL.Path)
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewEncoder(w).Encode(map[string][]session.Snapshot{
			"sessions": {{
				ID:      "server_1",
				Command: "node server.js",
				State:   session.StateReady,
				Tools:   []json.RawMessage{json.RawMessage(`{"name":"echo"}`)},
			}},
		})
	}))
	defer srv.Close()

	var out bytes.Buffer
	require.NoError(t, runSessions(t.Context(), &out, srv.URL+"/", "tok"))
	assert.Equal(t, "Bearer tok", gotAuth)
	assert.Contains(t, out.String(), "server_1")
	assert.Contains(t, out.String(), "Ready")
	assert.Contains(t, out.String(), "node server.js")
}

func TestRunSessionsEmptyAndUnauthorized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") == "" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":"missing authorization"}`))
			return
		}
		_, _ = w.Write([]byte(`{"sessions":[]}`))
	}))
	defer srv.Close()

	var out bytes.Buffer
	err := runSessions(t.Context(), &out, srv.URL, "")
	assert.ErrorContains(t, err, "status 401")

	out.Reset()
	require.NoError(t, runSessions(t.Context(), &out, srv.URL, "tok"))
	assert.Equal(t, "no sessions\n", out.String())
}

func TestRunHealth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/health/ready", r.URL.Path)
		_, _ = w.Write([]byte("ready (2 sessions, 1 subscribers)"))
	}))
	defer srv.Close()

	var out bytes.Buffer
	require.NoError(t, runHealth(t.Context(), &out, srv.URL))
	assert.Equal(t, "healthy: ready (2 sessions, 1 subscribers)\n", out.String())

	srv.Close()
	assert.Error(t, runHealth(t.Context(), &out, srv.URL))
}

func TestGatewayURL(t *testing.T) {
	cfg := config.Default()
	assert.Equal(t, "http://127.0.0.1:3000", gatewayURL(cfg))

	cfg.Tailscale.Enabled = true
	cfg.Tailscale.Hostname = "mcp"
	assert.Equal(t, "http://mcp", gatewayURL(cfg))
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, parseLevel("debug"))
	assert.Equal(t, slog.LevelWarn, parseLevel("WARN"))
	assert.Equal(t, slog.LevelError, parseLevel("error"))
	assert.Equal(t, slog.LevelInfo, parseLevel(""))
	assert.Equal(t, slog.LevelInfo, parseLevel("verbose"))
}

func TestColorHandler(t *testing.T) {
	var out bytes.Buffer
	logger := newLogger(config.LoggingConfig{Level: "info", Format: "text"}, &out)

	logger.Debug("hidden")
	logger.With("component", "session").WithGroup("req").Warn("slow", "id", 7)

	line := out.String()
	assert.NotContains(t, line, "hidden")
	assert.Contains(t, line, "WRN slow")
	assert.Contains(t, line, " component=session")
	assert.NotContains(t, line, "req.component")
	assert.Contains(t, line, "req.id=7")
}

func TestJSONLogger(t *testing.T) {
	var out bytes.Buffer
	logger := newLogger(config.LoggingConfig{Level: "debug", Format: "json"}, &out)
	logger.Debug("hello", "session_id", "server_1")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(out.Bytes(), &rec))
	assert.Equal(t, "hello", rec["msg"])
	assert.Equal(t, "server_1", rec["session_id"])
}
