// Package knowledge indexes a directory of plain-text and markdown
// documents into a SQLite FTS5 table and serves keyword search over them,
// for the researcher worker's read_knowledge_base tool.
//
// This replaces the graph-structured, session-scoped knowledge base the
// teacher builds for tracking architectural decisions across a single
// project's lifetime (pkg/knowledge/retrieval.go's FTS5-over-nodes MATCH
// query). That system's session_id scoping and DOT-graph neighbor
// expansion have no equivalent concept here; the FTS5 MATCH idiom itself
// is kept.
package knowledge

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	_ "modernc.org/sqlite" // SQLite driver, registered as "sqlite"

	"graphcore/pkg/logx"
)

var logger = logx.NewLogger("knowledge")

// Document is one indexed file.
type Document struct {
	Path string
	Body string
}

// Result is a single search hit.
type Result struct {
	Path    string `json:"path"`
	Snippet string `json:"snippet"`
}

// Store is an in-memory FTS5 index built once from a root directory and
// reused for the lifetime of the process. Building is lazy and
// synchronized; concurrent Search calls are safe.
type Store struct {
	root string
	db   *sql.DB
	mu   sync.Mutex
	built bool
}

// NewStore creates a Store rooted at root. The index is built on first
// Search call, not here, so constructing a Store for a worker that never
// calls read_knowledge_base costs nothing.
func NewStore(root string) *Store {
	return &Store{root: root}
}

func (s *Store) ensureBuilt() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.built {
		return nil
	}

	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return fmt.Errorf("knowledge: open index: %w", err)
	}

	if _, err := db.Exec(`CREATE VIRTUAL TABLE documents_fts USING fts5(path, body)`); err != nil {
		_ = db.Close()
		return fmt.Errorf("knowledge: create fts table: %w", err)
	}

	docs, err := loadDocuments(s.root)
	if err != nil {
		_ = db.Close()
		return fmt.Errorf("knowledge: load documents from %s: %w", s.root, err)
	}

	for _, doc := range docs {
		if _, err := db.Exec(`INSERT INTO documents_fts (path, body) VALUES (?, ?)`, doc.Path, doc.Body); err != nil {
			_ = db.Close()
			return fmt.Errorf("knowledge: index %s: %w", doc.Path, err)
		}
	}

	s.db = db
	s.built = true
	logger.Info("indexed %d documents under %s", len(docs), s.root)
	return nil
}

// Search runs an FTS5 MATCH query over the indexed documents and returns
// up to maxResults hits with a short snippet of surrounding context.
func (s *Store) Search(query string, maxResults int) ([]Result, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("query must not be empty")
	}
	if maxResults <= 0 {
		maxResults = 5
	}

	if err := s.ensureBuilt(); err != nil {
		return nil, err
	}

	terms := strings.Fields(query)
	ftsQuery := strings.Join(terms, " OR ")

	rows, err := s.db.Query(`
		SELECT path, snippet(documents_fts, 1, '[', ']', '...', 24)
		FROM documents_fts
		WHERE documents_fts MATCH ?
		ORDER BY rank
		LIMIT ?
	`, ftsQuery, maxResults)
	if err != nil {
		return nil, fmt.Errorf("knowledge: search: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var results []Result
	for rows.Next() {
		var r Result
		if err := rows.Scan(&r.Path, &r.Snippet); err != nil {
			return nil, fmt.Errorf("knowledge: scan result: %w", err)
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("knowledge: row iteration: %w", err)
	}
	return results, nil
}

// loadDocuments walks root and reads every .md/.txt file into memory.
// Knowledge bases are operator-curated reference material, small enough
// to hold in full; there is no incremental re-indexing.
func loadDocuments(root string) ([]Document, error) {
	if root == "" {
		return nil, nil
	}
	info, err := os.Stat(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", root)
	}

	var docs []Document
	walkErr := filepath.Walk(root, func(path string, fi os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if fi.IsDir() {
			return nil
		}
		ext := strings.ToLower(filepath.Ext(path))
		if ext != ".md" && ext != ".txt" {
			return nil
		}
		content, readErr := os.ReadFile(path) //nolint:gosec // root is operator-configured
		if readErr != nil {
			return readErr
		}
		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			rel = path
		}
		docs = append(docs, Document{Path: rel, Body: string(content)})
		return nil
	})
	if walkErr != nil {
		return nil, walkErr
	}
	return docs, nil
}
