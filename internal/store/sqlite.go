// ABOUTME: SQLite implementation of the frame ledger using modernc.org/sqlite
// ABOUTME: Creates its schema on open and keeps arrival order with an autoincrement key

package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// timeLayout is fixed width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore opens (creating if needed) the ledger at path. Parent
// directories are created. ":memory:" opens a private in-memory database.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	inMemory := path == ":memory:" || strings.Contains(path, "mode=memory")
	if !inMemory {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if inMemory {
		// Every connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	} else {
		if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
			db.Close()
			return nil, fmt.Errorf("enabling WAL mode: %w", err)
		}
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	s := &SQLiteStore{db: db, logger: logger}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS frames (
			seq        INTEGER PRIMARY KEY AUTOINCREMENT,
			id         TEXT NOT NULL UNIQUE,
			session_id TEXT NOT NULL,
			type       TEXT NOT NULL,
			method     TEXT NOT NULL DEFAULT '',
			state      TEXT NOT NULL DEFAULT '',
			error      TEXT NOT NULL DEFAULT '',
			payload    TEXT,
			created_at TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_frames_session_seq
			ON frames(session_id, seq);

		CREATE INDEX IF NOT EXISTS idx_frames_created
			ON frames(created_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// SaveEvent appends an event to the ledger.
func (s *SQLiteStore) SaveEvent(ctx context.Context, event *Event) error {
	if err := validate(event); err != nil {
		return err
	}
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	var payload any
	if len(event.Payload) > 0 {
		payload = string(event.Payload)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO frames (id, session_id, type, method, state, error, payload, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		event.ID, event.SessionID, event.Type, event.Method, event.State, event.Error,
		payload, event.CreatedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("inserting frame: %w", err)
	}
	return nil
}

// ListSessionEvents returns the session's most recent events, oldest first.
func (s *SQLiteStore) ListSessionEvents(ctx context.Context, sessionID string, limit int) ([]Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, type, method, state, error, payload, created_at
		FROM frames
		WHERE session_id = ?
		ORDER BY seq DESC
		LIMIT ?`,
		sessionID, ClampLimit(limit),
	)
	if err != nil {
		return nil, fmt.Errorf("querying frames: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var (
			e         Event
			payload   sql.NullString
			createdAt string
		)
		if err := rows.Scan(&e.ID, &e.SessionID, &e.Type, &e.Method, &e.State, &e.Error, &payload, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning frame: %w", err)
		}
		if payload.Valid {
			e.Payload = []byte(payload.String)
		}
		e.CreatedAt, err = time.Parse(timeLayout, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parsing created_at %q: %w", createdAt, err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating frames: %w", err)
	}

	slices.Reverse(events)
	return events, nil
}

// PruneEvents deletes events older than cutoff.
func (s *SQLiteStore) PruneEvents(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM frames WHERE created_at < ?`,
		cutoff.UTC().Format(timeLayout),
	)
	if err != nil {
		return 0, fmt.Errorf("pruning frames: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("counting pruned frames: %w", err)
	}
	if n > 0 {
		s.logger.Debug("pruned frames", "count", n, "cutoff", cutoff)
	}
	return n, nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
