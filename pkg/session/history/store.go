// Package history implements the host-side chat history spec.md §6 names
// alongside the core external interface (create/list/load/updateTitle/
// delete) but treats as outside the orchestrator's own state machine: one
// row per thread, independent of that thread's checkpoint history.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // pure-Go sqlite driver, registered as "sqlite"

	"graphcore/pkg/logx"
)

// ErrNotFound is returned by Load, UpdateTitle, and Delete when no thread
// with the given id exists.
var ErrNotFound = errors.New("history: thread not found")

// Thread is one chat thread's host-side metadata. The transcript itself
// lives in the checkpoint store under the same thread id; Thread only
// carries what a thread-picker UI needs to list and label it.
type Thread struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Store is the chat-history table backed by one embedded SQLite handle.
type Store struct {
	db     *sql.DB
	logger *logx.Logger
}

// Open creates (or migrates in place) the chat_threads schema at dbPath
// and returns a ready Store. dbPath is typically the same file the graph's
// checkpoint store uses — SQLite's WAL mode permits both to hold open
// connections to it concurrently.
func Open(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", fmt.Sprintf(
		"file:%s?_foreign_keys=ON&_journal_mode=WAL&_busy_timeout=5000",
		dbPath,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to open history store: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping history store: %w", err)
	}
	if err := createSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize history schema: %w", err)
	}
	return &Store{db: db, logger: logx.NewLogger("history")}, nil
}

// NewStore wraps an already-open, already-migrated handle. Used by tests
// and by callers that share one *sql.DB across stores.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db, logger: logx.NewLogger("history")}
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("failed to close history store: %w", err)
	}
	return nil
}

func createSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS chat_threads (
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL DEFAULT '',
			created_at DATETIME NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now')),
			updated_at DATETIME NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now'))
		)`)
	if err != nil {
		return fmt.Errorf("failed to create chat_threads table: %w", err)
	}
	return nil
}

// Create inserts a new thread with a fresh id and returns it. An empty
// title is stored as-is; callers typically rename it once the first
// exchange gives them something better to show.
func (s *Store) Create(ctx context.Context, title string) (Thread, error) {
	return s.CreateWithID(ctx, uuid.New().String(), title)
}

// CreateWithID inserts a new thread under a caller-chosen id. Used by
// pkg/session to lazily back-fill a history row for a thread id the host
// already started talking to via Ask before ever calling history.create.
func (s *Store) CreateWithID(ctx context.Context, id, title string) (Thread, error) {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO chat_threads (id, title) VALUES (?, ?)`, id, title)
	if err != nil {
		return Thread{}, fmt.Errorf("failed to create thread: %w", err)
	}
	return s.Load(ctx, id)
}

// List returns every thread, most recently updated first.
func (s *Store) List(ctx context.Context) ([]Thread, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, created_at, updated_at FROM chat_threads
		ORDER BY updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list threads: %w", err)
	}
	defer rows.Close()

	var threads []Thread
	for rows.Next() {
		var t Thread
		if err := rows.Scan(&t.ID, &t.Title, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan thread row: %w", err)
		}
		threads = append(threads, t)
	}
	return threads, rows.Err()
}

// Load returns one thread by id.
func (s *Store) Load(ctx context.Context, id string) (Thread, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, title, created_at, updated_at FROM chat_threads WHERE id = ?`, id)
	var t Thread
	if err := row.Scan(&t.ID, &t.Title, &t.CreatedAt, &t.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Thread{}, ErrNotFound
		}
		return Thread{}, fmt.Errorf("failed to load thread: %w", err)
	}
	return t, nil
}

// UpdateTitle renames a thread and bumps its updated_at.
func (s *Store) UpdateTitle(ctx context.Context, id, title string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE chat_threads
		SET title = ?, updated_at = strftime('%Y-%m-%dT%H:%M:%fZ','now')
		WHERE id = ?`, title, id)
	if err != nil {
		return fmt.Errorf("failed to update thread title: %w", err)
	}
	return requireRowAffected(result)
}

// Touch bumps updated_at without changing the title, so a thread with a
// new exchange sorts to the top of List even when its title hasn't
// changed.
func (s *Store) Touch(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE chat_threads
		SET updated_at = strftime('%Y-%m-%dT%H:%M:%fZ','now')
		WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to touch thread: %w", err)
	}
	return requireRowAffected(result)
}

// Delete removes a thread's host-side metadata. It does not touch the
// checkpoint store; callers that want the transcript gone too must also
// call checkpoint.Store.DeleteThread.
func (s *Store) Delete(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM chat_threads WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete thread: %w", err)
	}
	return requireRowAffected(result)
}

func requireRowAffected(result sql.Result) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
