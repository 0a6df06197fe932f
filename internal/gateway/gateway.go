// ABOUTME: Gateway orchestrator that wires sessions, fan-out, ledger and HTTP server
// ABOUTME: Manages listener setup, background subscribers and graceful shutdown

package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"tailscale.com/tsnet"

	"github.com/yashraj-dudhe/mcp-client/internal/auth"
	"github.com/yashraj-dudhe/mcp-client/internal/broadcast"
	"github.com/yashraj-dudhe/mcp-client/internal/config"
	"github.com/yashraj-dudhe/mcp-client/internal/dedupe"
	"github.com/yashraj-dudhe/mcp-client/internal/mirror"
	"github.com/yashraj-dudhe/mcp-client/internal/process"
	"github.com/yashraj-dudhe/mcp-client/internal/session"
	"github.com/yashraj-dudhe/mcp-client/internal/store"
)

const (
	// idempotencyTTL is how long a connect Idempotency-Key is remembered.
	idempotencyTTL = 5 * time.Minute
	// idempotencyMaxKeys bounds the connect idempotency cache.
	idempotencyMaxKeys = 1024

	defaultShutdownTimeout = 5 * time.Second
)

// Deps are the collaborators a Gateway needs. Nil Store disables history,
// nil Mirror disables the Redis stream.
type Deps struct {
	Spawner process.Spawner
	Store   store.Store
	Mirror  *mirror.RedisMirror
}

// Gateway owns the session manager and serves it over HTTP.
type Gateway struct {
	config      *config.Config
	manager     *session.Manager
	broadcaster *broadcast.Broadcaster
	store       store.Store
	mirror      *mirror.RedisMirror
	recorder    *recorder
	verifier    auth.TokenVerifier
	httpServer  *http.Server
	tsnetServer *tsnet.Server
	logger      *slog.Logger

	// connects maps Idempotency-Key headers to session ids
	connects *dedupe.Cache[string]

	shuttingDown atomic.Bool
	stopOnce     sync.Once
	stopErr      error
	releaseOnce  sync.Once
	releaseErr   error
}

// New creates a Gateway that spawns real processes and opens the stores named
// in cfg.
func New(cfg *config.Config, logger *slog.Logger) (*Gateway, error) {
	deps := Deps{Spawner: process.ExecSpawner{}}

	if cfg.Database.Path != "" {
		s, err := store.NewSQLiteStore(cfg.Database.Path)
		if err != nil {
			return nil, fmt.Errorf("initializing store: %w", err)
		}
		deps.Store = s
	}

	if cfg.Redis.Addr != "" {
		deps.Mirror = mirror.New(mirror.Config{
			Addr:   cfg.Redis.Addr,
			Stream: cfg.Redis.Stream,
			MaxLen: cfg.Redis.MaxLen,
		}, logger)
	}

	return NewWithDeps(cfg, deps, logger)
}

// NewWithDeps creates a Gateway from explicit collaborators.
func NewWithDeps(cfg *config.Config, deps Deps, logger *slog.Logger) (*Gateway, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if deps.Spawner == nil {
		return nil, errors.New("spawner is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	b := broadcast.New(cfg.Broadcast.BufferSize, logger)
	opts := session.Options{
		Interpreters: process.Interpreters{
			Extensions: cfg.Interpreters.Extensions,
			Fallback:   cfg.Interpreters.Fallback,
		},
		HandshakeTimeout: cfg.Sessions.HandshakeTimeout,
		SettleDelay:      cfg.Sessions.SettleDelay,
		ProtocolVersion:  cfg.Sessions.ProtocolVersion,
		ClientName:       cfg.Sessions.ClientName,
		ClientVersion:    cfg.Sessions.ClientVersion,
	}

	gw := &Gateway{
		config:      cfg,
		manager:     session.NewManager(deps.Spawner, b, opts, logger),
		broadcaster: b,
		store:       deps.Store,
		mirror:      deps.Mirror,
		connects:    dedupe.New[string](idempotencyTTL, idempotencyMaxKeys),
		logger:      logger.With("component", "gateway"),
	}

	if deps.Store != nil {
		gw.recorder = newRecorder(deps.Store, cfg.Database.Retention, logger)
	}

	if cfg.Auth.JWTSecret != "" {
		gw.verifier = auth.NewJWTVerifier([]byte(cfg.Auth.JWTSecret))
		gw.logger.Info("bearer auth enabled for /api and /ws")
	} else {
		gw.logger.Warn("auth disabled - no jwt_secret configured")
	}

	gw.httpServer = &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           gw.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	return gw, nil
}

// Handler returns the gateway's HTTP handler.
func (g *Gateway) Handler() http.Handler {
	return g.httpServer.Handler
}

// Manager returns the session manager.
func (g *Gateway) Manager() *session.Manager {
	return g.manager
}

// Run starts the HTTP server and the ledger and mirror subscribers, and
// blocks until ctx is canceled or a server fails. Returns nil on graceful
// shutdown.
func (g *Gateway) Run(ctx context.Context) error {
	ln, err := g.setupListener(ctx)
	if err != nil {
		return err
	}

	if g.mirror != nil {
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		if err := g.mirror.Ping(pingCtx); err != nil {
			g.logger.Warn("redis mirror unreachable, envelopes will be dropped until it answers", "error", err)
		}
		cancel()
	}

	eg, egCtx := errgroup.WithContext(ctx)

	// Background subscribers outlive ctx so the final state transitions are
	// still drained; their channels close when the broadcaster does.
	if g.recorder != nil {
		events, _ := g.broadcaster.Subscribe(context.Background())
		eg.Go(func() error {
			return g.recorder.Run(context.WithoutCancel(egCtx), events)
		})
	}
	if g.mirror != nil {
		events, _ := g.broadcaster.Subscribe(context.Background())
		eg.Go(func() error {
			return g.mirror.Run(context.WithoutCancel(egCtx), events)
		})
	}

	eg.Go(func() error {
		g.logger.Info("HTTP server listening", "addr", ln.Addr().String())
		if err := g.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server: %w", err)
		}
		return nil
	})

	eg.Go(func() error {
		<-egCtx.Done()
		g.logger.Info("context canceled, initiating shutdown")
		return g.gracefulShutdown()
	})

	runErr := eg.Wait()
	if err := g.release(); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}

// setupListener creates the HTTP listener on TCP or the tailnet.
func (g *Gateway) setupListener(ctx context.Context) (net.Listener, error) {
	if g.config.Tailscale.Enabled {
		if g.config.Server.HTTPAddr != "" {
			g.logger.Warn("server.http_addr is ignored when tailscale is enabled",
				"http_addr", g.config.Server.HTTPAddr)
		}
		return g.setupTailscaleListener(ctx)
	}

	g.logger.Info("starting gateway", "http_addr", g.config.Server.HTTPAddr)
	ln, err := net.Listen("tcp", g.config.Server.HTTPAddr)
	if err != nil {
		return nil, fmt.Errorf("listening on HTTP address: %w", err)
	}
	return ln, nil
}

// gracefulShutdown performs shutdown with a fresh context and timeout.
// Uses context.Background() since the run context is already canceled.
func (g *Gateway) gracefulShutdown() error {
	timeout := g.config.Sessions.ShutdownTimeout
	if timeout <= 0 {
		timeout = defaultShutdownTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return g.stop(ctx)
}

// Shutdown terminates every session, stops the HTTP server and releases the
// stores. It is safe to call more than once.
func (g *Gateway) Shutdown(ctx context.Context) error {
	return errors.Join(g.stop(ctx), g.release())
}

// stop kills the children, closes subscriptions and stops serving. Closing
// the broadcaster ends streaming handlers so the HTTP shutdown can finish.
func (g *Gateway) stop(ctx context.Context) error {
	g.stopOnce.Do(func() {
		g.shuttingDown.Store(true)
		g.logger.Info("shutting down gateway")

		var errs []error
		errs = appendCloseError(errs, "session shutdown", g.manager.Close(ctx))
		g.broadcaster.Close()
		errs = appendCloseError(errs, "HTTP shutdown", g.httpServer.Shutdown(ctx))
		g.stopErr = errors.Join(errs...)
	})
	return g.stopErr
}

// release closes the stores and the tailnet node once subscribers are done.
func (g *Gateway) release() error {
	g.releaseOnce.Do(func() {
		var errs []error
		if g.mirror != nil {
			errs = appendCloseError(errs, "mirror close", g.mirror.Close())
		}
		if g.store != nil {
			errs = appendCloseError(errs, "store close", g.store.Close())
		}
		if g.tsnetServer != nil {
			errs = appendCloseError(errs, "tailscale shutdown", g.tsnetServer.Close())
		}
		g.connects.Close()
		g.releaseErr = errors.Join(errs...)
	})
	return g.releaseErr
}

// appendCloseError appends an error with label if err is non-nil.
func appendCloseError(errs []error, label string, err error) []error {
	if err != nil {
		return append(errs, fmt.Errorf("%s: %w", label, err))
	}
	return errs
}

// handleHealth returns 200 OK if the server is alive.
func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// handleReady returns 200 OK unless the gateway is shutting down.
func (g *Gateway) handleReady(w http.ResponseWriter, r *http.Request) {
	if g.shuttingDown.Load() {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("shutting down"))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprintf(w, "ready (%d sessions, %d subscribers)",
		len(g.manager.Sessions()), g.broadcaster.Count())
}
