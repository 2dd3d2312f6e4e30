package checkpoint

import (
	"database/sql"
	"fmt"
)

// createSchema creates the checkpoint tables and their indexes if they do
// not already exist. Tables are created with the `_type` columns already
// present; migrateColumns below handles stores that predate them.
func createSchema(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute pragma %s: %w", pragma, err)
		}
	}

	ddl := []string{
		`CREATE TABLE IF NOT EXISTS graph_checkpoints (
			thread_id TEXT NOT NULL,
			checkpoint_ns TEXT NOT NULL DEFAULT '',
			checkpoint_id TEXT NOT NULL,
			parent_checkpoint_id TEXT,
			checkpoint BLOB NOT NULL,
			metadata BLOB,
			checkpoint_type TEXT NOT NULL DEFAULT 'json',
			metadata_type TEXT NOT NULL DEFAULT 'json',
			created_at DATETIME DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now')),
			PRIMARY KEY (thread_id, checkpoint_ns, checkpoint_id)
		)`,
		`CREATE TABLE IF NOT EXISTS graph_writes (
			thread_id TEXT NOT NULL,
			checkpoint_ns TEXT NOT NULL DEFAULT '',
			checkpoint_id TEXT NOT NULL,
			task_id TEXT NOT NULL,
			idx INTEGER NOT NULL,
			channel TEXT NOT NULL,
			value BLOB,
			type TEXT NOT NULL DEFAULT 'json',
			PRIMARY KEY (thread_id, checkpoint_ns, checkpoint_id, task_id, idx)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_graph_checkpoints_thread_ns
			ON graph_checkpoints(thread_id, checkpoint_ns)`,
		`CREATE INDEX IF NOT EXISTS idx_graph_writes_lookup
			ON graph_writes(thread_id, checkpoint_ns, checkpoint_id)`,
	}
	for _, stmt := range ddl {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}

	return migrateColumns(db)
}

// migrateColumns adds the checkpoint_type/metadata_type/type columns to a
// store created before this rewrite tracked them, defaulting existing rows
// to 'json'. It never drops data.
func migrateColumns(db *sql.DB) error {
	checkpointCols, err := existingColumns(db, "graph_checkpoints")
	if err != nil {
		return err
	}
	if !checkpointCols["checkpoint_type"] {
		if _, err := db.Exec(`ALTER TABLE graph_checkpoints ADD COLUMN checkpoint_type TEXT NOT NULL DEFAULT 'json'`); err != nil {
			return fmt.Errorf("failed to add checkpoint_type column: %w", err)
		}
	}
	if !checkpointCols["metadata_type"] {
		if _, err := db.Exec(`ALTER TABLE graph_checkpoints ADD COLUMN metadata_type TEXT NOT NULL DEFAULT 'json'`); err != nil {
			return fmt.Errorf("failed to add metadata_type column: %w", err)
		}
	}

	writeCols, err := existingColumns(db, "graph_writes")
	if err != nil {
		return err
	}
	if !writeCols["type"] {
		if _, err := db.Exec(`ALTER TABLE graph_writes ADD COLUMN type TEXT NOT NULL DEFAULT 'json'`); err != nil {
			return fmt.Errorf("failed to add type column: %w", err)
		}
	}
	return nil
}

// existingColumns returns the set of column names currently present on
// table, via PRAGMA table_info since SQLite has no portable
// "ADD COLUMN IF NOT EXISTS".
func existingColumns(db *sql.DB, table string) (map[string]bool, error) {
	rows, err := db.Query(fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return nil, fmt.Errorf("failed to inspect %s: %w", table, err)
	}
	defer rows.Close()

	cols := make(map[string]bool)
	for rows.Next() {
		var (
			cid        int
			name       string
			colType    string
			notNull    int
			dfltValue  any
			primaryKey int
		)
		if err := rows.Scan(&cid, &name, &colType, &notNull, &dfltValue, &primaryKey); err != nil {
			return nil, fmt.Errorf("failed to scan table_info row: %w", err)
		}
		cols[name] = true
	}
	return cols, rows.Err()
}
