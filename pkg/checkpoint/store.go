// Package checkpoint implements a content-addressed, append-style
// snapshot store for graph threads over an embedded SQLite database: get
// the latest (or an exact) checkpoint for a thread, list checkpoints
// newest-first, put a new checkpoint linked to its parent, persist pending
// channel writes for a task, and purge a thread entirely.
package checkpoint

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite" // pure-Go sqlite driver, registered as "sqlite"

	"graphcore/pkg/graphmetrics"
	"graphcore/pkg/logx"
)

// Config identifies a single checkpoint within a thread's namespace.
// CheckpointID empty means "most recent" when passed to GetTuple.
type Config struct {
	ThreadID     string
	CheckpointNS string
	CheckpointID string
}

// CheckpointTuple is one persisted snapshot plus the config needed to
// locate its parent.
type CheckpointTuple struct {
	Config         Config
	ParentConfig   *Config
	Checkpoint     []byte
	CheckpointType string
	Metadata       []byte
	MetadataType   string
	Versions       map[string]string
	CreatedAt      time.Time
}

// PendingWrite is one channel write queued by a task within a step, prior
// to the next checkpoint that commits it.
type PendingWrite struct {
	Channel string
	Value   []byte
	Type    string
}

// ListOptions narrows List's result set.
type ListOptions struct {
	Limit  int
	Before *time.Time
	// Filter is ANDed equality over metadata keys, decoded from the JSON
	// metadata blob — applied in Go rather than SQL, since metadata shape
	// is caller-defined.
	Filter map[string]string
}

// Store is a checkpointer backed by one embedded SQLite handle. The handle
// is configured for WAL-style concurrency and a single writer, matching
// SQLite's own concurrency model; callers share one Store per process.
type Store struct {
	db      *sql.DB
	logger  *logx.Logger
	mu      sync.Mutex // serializes put/putWrites at the store level
	metrics *graphmetrics.Recorder
}

// SetMetrics attaches a Recorder so Put and PutWrites observe their
// durations. Passing nil (the default) disables recording.
func (s *Store) SetMetrics(r *graphmetrics.Recorder) {
	s.metrics = r
}

// Open creates (or migrates in place) the checkpoint schema at dbPath and
// returns a ready Store.
func Open(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", fmt.Sprintf(
		"file:%s?_foreign_keys=ON&_journal_mode=WAL&_busy_timeout=5000",
		dbPath,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to open checkpoint store: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping checkpoint store: %w", err)
	}
	if err := createSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize checkpoint schema: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	return &Store{db: db, logger: logx.NewLogger("checkpoint")}, nil
}

// NewStore wraps an already-open, already-migrated handle. Used by tests
// and by callers that share one *sql.DB across stores.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db, logger: logx.NewLogger("checkpoint")}
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("failed to close checkpoint store: %w", err)
	}
	return nil
}

type storedMetadata struct {
	Metadata json.RawMessage   `json:"metadata,omitempty"`
	Versions map[string]string `json:"versions,omitempty"`
}

// GetTuple returns the most recent checkpoint for config's thread and
// namespace, or the exact one if config.CheckpointID is set. It returns
// (nil, nil) when no checkpoint exists.
func (s *Store) GetTuple(ctx context.Context, config Config) (*CheckpointTuple, error) {
	var row *sql.Row
	if config.CheckpointID != "" {
		row = s.db.QueryRowContext(ctx, `
			SELECT thread_id, checkpoint_ns, checkpoint_id, parent_checkpoint_id,
			       checkpoint, checkpoint_type, metadata, metadata_type, created_at
			FROM graph_checkpoints
			WHERE thread_id = ? AND checkpoint_ns = ? AND checkpoint_id = ?`,
			config.ThreadID, config.CheckpointNS, config.CheckpointID)
	} else {
		row = s.db.QueryRowContext(ctx, `
			SELECT thread_id, checkpoint_ns, checkpoint_id, parent_checkpoint_id,
			       checkpoint, checkpoint_type, metadata, metadata_type, created_at
			FROM graph_checkpoints
			WHERE thread_id = ? AND checkpoint_ns = ?
			ORDER BY created_at DESC, rowid DESC
			LIMIT 1`,
			config.ThreadID, config.CheckpointNS)
	}

	tuple, err := scanTuple(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get checkpoint tuple: %w", err)
	}
	return tuple, nil
}

func scanTuple(row *sql.Row) (*CheckpointTuple, error) {
	var (
		threadID, ns, checkpointID string
		parentID                   sql.NullString
		checkpointBlob             []byte
		checkpointType             string
		metadataBlob               []byte
		metadataType               string
		createdAt                  time.Time
	)
	if err := row.Scan(&threadID, &ns, &checkpointID, &parentID,
		&checkpointBlob, &checkpointType, &metadataBlob, &metadataType, &createdAt); err != nil {
		return nil, err
	}

	tuple := &CheckpointTuple{
		Config:         Config{ThreadID: threadID, CheckpointNS: ns, CheckpointID: checkpointID},
		Checkpoint:     checkpointBlob,
		CheckpointType: checkpointType,
		MetadataType:   metadataType,
		CreatedAt:      createdAt,
	}
	if parentID.Valid && parentID.String != "" {
		tuple.ParentConfig = &Config{ThreadID: threadID, CheckpointNS: ns, CheckpointID: parentID.String}
	}
	if len(metadataBlob) > 0 {
		var wrapped storedMetadata
		if err := json.Unmarshal(metadataBlob, &wrapped); err == nil {
			tuple.Metadata = wrapped.Metadata
			tuple.Versions = wrapped.Versions
		} else {
			// Pre-migration rows may hold a bare metadata blob with no wrapper.
			tuple.Metadata = metadataBlob
		}
	}
	return tuple, nil
}

// List returns checkpoints for config's thread and namespace, newest
// first, honoring opts.Limit, opts.Before, and opts.Filter.
func (s *Store) List(ctx context.Context, config Config, opts ListOptions) ([]CheckpointTuple, error) {
	query := `
		SELECT thread_id, checkpoint_ns, checkpoint_id, parent_checkpoint_id,
		       checkpoint, checkpoint_type, metadata, metadata_type, created_at
		FROM graph_checkpoints
		WHERE thread_id = ? AND checkpoint_ns = ?`
	args := []any{config.ThreadID, config.CheckpointNS}

	if opts.Before != nil {
		query += " AND created_at < ?"
		args = append(args, *opts.Before)
	}
	query += " ORDER BY created_at DESC, rowid DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list checkpoints: %w", err)
	}
	defer rows.Close()

	var results []CheckpointTuple
	for rows.Next() {
		var (
			threadID, ns, checkpointID string
			parentID                   sql.NullString
			checkpointBlob             []byte
			checkpointType             string
			metadataBlob               []byte
			metadataType               string
			createdAt                  time.Time
		)
		if err := rows.Scan(&threadID, &ns, &checkpointID, &parentID,
			&checkpointBlob, &checkpointType, &metadataBlob, &metadataType, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan checkpoint row: %w", err)
		}
		tuple := CheckpointTuple{
			Config:         Config{ThreadID: threadID, CheckpointNS: ns, CheckpointID: checkpointID},
			Checkpoint:     checkpointBlob,
			CheckpointType: checkpointType,
			MetadataType:   metadataType,
			CreatedAt:      createdAt,
		}
		if parentID.Valid && parentID.String != "" {
			tuple.ParentConfig = &Config{ThreadID: threadID, CheckpointNS: ns, CheckpointID: parentID.String}
		}
		if len(metadataBlob) > 0 {
			var wrapped storedMetadata
			if err := json.Unmarshal(metadataBlob, &wrapped); err == nil {
				tuple.Metadata = wrapped.Metadata
				tuple.Versions = wrapped.Versions
			} else {
				tuple.Metadata = metadataBlob
			}
		}
		if !matchesFilter(tuple, opts.Filter) {
			continue
		}
		results = append(results, tuple)
		if opts.Limit > 0 && len(results) >= opts.Limit {
			break
		}
	}
	return results, rows.Err()
}

func matchesFilter(tuple CheckpointTuple, filter map[string]string) bool {
	if len(filter) == 0 {
		return true
	}
	if len(tuple.Metadata) == 0 {
		return false
	}
	var decoded map[string]string
	if err := json.Unmarshal(tuple.Metadata, &decoded); err != nil {
		return false
	}
	for k, want := range filter {
		if decoded[k] != want {
			return false
		}
	}
	return true
}

// Put inserts or replaces the checkpoint identified by
// (config.ThreadID, config.CheckpointNS, newCheckpointID), links
// parent_checkpoint_id from config.CheckpointID (the caller's incoming
// checkpoint, i.e. the one this write is building on), and returns a
// config pointing at the newly stored checkpoint.
func (s *Store) Put(ctx context.Context, config Config, newCheckpointID string, checkpoint []byte, metadata []byte, versions map[string]string) (Config, error) {
	start := time.Now()
	if s.metrics != nil {
		defer func() { s.metrics.ObserveCheckpointWrite("put", time.Since(start)) }()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	wrapped, err := json.Marshal(storedMetadata{Metadata: metadata, Versions: versions})
	if err != nil {
		return Config{}, fmt.Errorf("failed to encode checkpoint metadata: %w", err)
	}

	var parentID any
	if config.CheckpointID != "" {
		parentID = config.CheckpointID
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO graph_checkpoints
			(thread_id, checkpoint_ns, checkpoint_id, parent_checkpoint_id, checkpoint, metadata)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (thread_id, checkpoint_ns, checkpoint_id) DO UPDATE SET
			parent_checkpoint_id = excluded.parent_checkpoint_id,
			checkpoint = excluded.checkpoint,
			metadata = excluded.metadata`,
		config.ThreadID, config.CheckpointNS, newCheckpointID, parentID, checkpoint, wrapped)
	if err != nil {
		return Config{}, fmt.Errorf("failed to put checkpoint: %w", err)
	}

	return Config{ThreadID: config.ThreadID, CheckpointNS: config.CheckpointNS, CheckpointID: newCheckpointID}, nil
}

// PutWrites persists taskID's pending channel writes for the checkpoint
// named by config, replacing any writes previously recorded at the same
// (checkpoint, task, idx). All writes in one call commit atomically.
func (s *Store) PutWrites(ctx context.Context, config Config, writes []PendingWrite, taskID string) error {
	start := time.Now()
	if s.metrics != nil {
		defer func() { s.metrics.ObserveCheckpointWrite("put_writes", time.Since(start)) }()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin writes transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rolled back only if commit is never reached

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO graph_writes (thread_id, checkpoint_ns, checkpoint_id, task_id, idx, channel, value)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (thread_id, checkpoint_ns, checkpoint_id, task_id, idx) DO UPDATE SET
			channel = excluded.channel,
			value = excluded.value`)
	if err != nil {
		return fmt.Errorf("failed to prepare writes statement: %w", err)
	}
	defer stmt.Close()

	for idx, w := range writes {
		if _, err := stmt.ExecContext(ctx, config.ThreadID, config.CheckpointNS, config.CheckpointID, taskID, idx, w.Channel, w.Value); err != nil {
			return fmt.Errorf("failed to persist write %d: %w", idx, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit writes: %w", err)
	}
	return nil
}

// GetWrites returns the pending writes recorded for one checkpoint, in
// (task_id, idx) order.
func (s *Store) GetWrites(ctx context.Context, config Config) ([]PendingWrite, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT channel, value, type FROM graph_writes
		WHERE thread_id = ? AND checkpoint_ns = ? AND checkpoint_id = ?
		ORDER BY task_id, idx`,
		config.ThreadID, config.CheckpointNS, config.CheckpointID)
	if err != nil {
		return nil, fmt.Errorf("failed to get writes: %w", err)
	}
	defer rows.Close()

	var writes []PendingWrite
	for rows.Next() {
		var w PendingWrite
		if err := rows.Scan(&w.Channel, &w.Value, &w.Type); err != nil {
			return nil, fmt.Errorf("failed to scan write row: %w", err)
		}
		writes = append(writes, w)
	}
	return writes, rows.Err()
}

// DeleteThread purges every checkpoint and write belonging to threadID,
// across all namespaces. Writes are removed before checkpoints so a
// crash mid-delete never leaves an orphaned write pointing at a
// now-missing checkpoint.
func (s *Store) DeleteThread(ctx context.Context, threadID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin delete transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `DELETE FROM graph_writes WHERE thread_id = ?`, threadID); err != nil {
		return fmt.Errorf("failed to delete writes for thread: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM graph_checkpoints WHERE thread_id = ?`, threadID); err != nil {
		return fmt.Errorf("failed to delete checkpoints for thread: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit thread deletion: %w", err)
	}
	return nil
}

// Prune trims threadID's checkpoint history to the most recent keep
// checkpoints per namespace, deleting older checkpoints and their writes.
// This is an operational convenience beyond the core checkpointer
// contract: long-running threads would otherwise grow without bound.
func (s *Store) Prune(ctx context.Context, threadID string, keep int) error {
	if keep <= 0 {
		return fmt.Errorf("keep must be positive, got %d", keep)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT checkpoint_ns FROM graph_checkpoints WHERE thread_id = ?`, threadID)
	if err != nil {
		return fmt.Errorf("failed to list namespaces for pruning: %w", err)
	}
	var namespaces []string
	for rows.Next() {
		var ns string
		if err := rows.Scan(&ns); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan namespace: %w", err)
		}
		namespaces = append(namespaces, ns)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to iterate namespaces: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin prune transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	for _, ns := range namespaces {
		stale, err := tx.QueryContext(ctx, `
			SELECT checkpoint_id FROM graph_checkpoints
			WHERE thread_id = ? AND checkpoint_ns = ?
			ORDER BY created_at DESC, rowid DESC
			LIMIT -1 OFFSET ?`, threadID, ns, keep)
		if err != nil {
			return fmt.Errorf("failed to find stale checkpoints: %w", err)
		}
		var staleIDs []string
		for stale.Next() {
			var id string
			if err := stale.Scan(&id); err != nil {
				stale.Close()
				return fmt.Errorf("failed to scan stale checkpoint id: %w", err)
			}
			staleIDs = append(staleIDs, id)
		}
		stale.Close()
		if err := stale.Err(); err != nil {
			return fmt.Errorf("failed to iterate stale checkpoints: %w", err)
		}

		for _, id := range staleIDs {
			if _, err := tx.ExecContext(ctx, `DELETE FROM graph_writes WHERE thread_id = ? AND checkpoint_ns = ? AND checkpoint_id = ?`, threadID, ns, id); err != nil {
				return fmt.Errorf("failed to prune writes: %w", err)
			}
			if _, err := tx.ExecContext(ctx, `DELETE FROM graph_checkpoints WHERE thread_id = ? AND checkpoint_ns = ? AND checkpoint_id = ?`, threadID, ns, id); err != nil {
				return fmt.Errorf("failed to prune checkpoint: %w", err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit prune: %w", err)
	}
	return nil
}
