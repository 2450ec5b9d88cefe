package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/ShayCichocki/loom/pkg/events"
	"github.com/ShayCichocki/loom/pkg/keys"
	"github.com/ShayCichocki/loom/pkg/models"
)

// DB wraps an SQLite connection shared by the durable repositories.
type DB struct {
	conn *sql.DB
	path string
	mu   sync.RWMutex
}

// ProjectDBPath returns the path to the project-local database.
func ProjectDBPath(projectRoot string) string {
	return filepath.Join(projectRoot, ".loom", "loom.db")
}

// Open opens an SQLite database at the given path, creating parent
// directories if needed. WAL mode is enabled for concurrent reads.
func Open(path string) (*DB, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	if _, err := conn.Exec("PRAGMA foreign_keys=ON"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	return &DB{conn: conn, path: path}, nil
}

// OpenProject opens the project-local database.
func OpenProject(projectRoot string) (*DB, error) {
	return Open(ProjectDBPath(projectRoot))
}

// Close closes the database connection.
func (db *DB) Close() error {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.conn.Close()
}

// Path returns the path to the database file.
func (db *DB) Path() string {
	return db.path
}

// Migrate applies all pending schema migrations.
func (db *DB) Migrate() error {
	db.mu.Lock()
	defer db.mu.Unlock()

	_, err := db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("create schema_version table: %w", err)
	}

	var currentVersion int
	row := db.conn.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_version")
	if err := row.Scan(&currentVersion); err != nil {
		return fmt.Errorf("get schema version: %w", err)
	}

	migrations := []struct {
		version int
		sql     string
	}{
		{1, migrationV1Nodes},
		{2, migrationV2Events},
		{3, migrationV3Worktrees},
		{4, migrationV4Artifacts},
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}

		tx, err := db.conn.Begin()
		if err != nil {
			return fmt.Errorf("begin transaction: %w", err)
		}

		if _, err := tx.Exec(m.sql); err != nil {
			tx.Rollback()
			return fmt.Errorf("apply migration v%d: %w", m.version, err)
		}

		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", m.version); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration v%d: %w", m.version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration v%d: %w", m.version, err)
		}
	}

	return nil
}

const migrationV1Nodes = `
CREATE TABLE IF NOT EXISTS nodes (
	key TEXT PRIMARY KEY,
	parent_key TEXT,
	kind TEXT NOT NULL,
	status TEXT NOT NULL,
	payload TEXT NOT NULL,
	updated_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_nodes_parent_key ON nodes(parent_key);
CREATE INDEX IF NOT EXISTS idx_nodes_kind ON nodes(kind);
CREATE INDEX IF NOT EXISTS idx_nodes_status ON nodes(status);
`

const migrationV2Events = `
CREATE TABLE IF NOT EXISTS events (
	seq INTEGER PRIMARY KEY AUTOINCREMENT,
	event_id TEXT NOT NULL UNIQUE,
	event_type TEXT NOT NULL,
	node_key TEXT,
	payload TEXT NOT NULL,
	occurred_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_events_node_key ON events(node_key);
CREATE INDEX IF NOT EXISTS idx_events_event_type ON events(event_type);
`

const migrationV3Worktrees = `
CREATE TABLE IF NOT EXISTS worktrees (
	id TEXT PRIMARY KEY,
	node_key TEXT NOT NULL,
	parent_id TEXT,
	path TEXT,
	branch TEXT,
	status TEXT NOT NULL,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_worktrees_node_key ON worktrees(node_key);
CREATE INDEX IF NOT EXISTS idx_worktrees_status ON worktrees(status);
`

const migrationV4Artifacts = `
CREATE TABLE IF NOT EXISTS artifacts (
	key TEXT PRIMARY KEY,
	parent_key TEXT,
	execution_key TEXT,
	artifact_type TEXT NOT NULL,
	content_hash TEXT NOT NULL,
	depth INTEGER NOT NULL,
	template_static_id TEXT,
	shared INTEGER NOT NULL DEFAULT 0,
	payload BLOB,
	metadata TEXT,
	created_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_artifacts_content_hash ON artifacts(content_hash);
CREATE INDEX IF NOT EXISTS idx_artifacts_execution_key ON artifacts(execution_key);
`

// Exec executes a query that doesn't return rows.
func (db *DB) Exec(query string, args ...any) (sql.Result, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.conn.Exec(query, args...)
}

// Query executes a query that returns rows.
func (db *DB) Query(query string, args ...any) (*sql.Rows, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return db.conn.Query(query, args...)
}

// QueryRow executes a query that returns at most one row.
func (db *DB) QueryRow(query string, args ...any) *sql.Row {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return db.conn.QueryRow(query, args...)
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// SQLiteGraph is the durable node repository. Nodes are stored as tagged
// JSON next to the columns queries filter on.
type SQLiteGraph struct {
	db *DB
}

// NewSQLiteGraph creates a graph repository over an opened, migrated DB.
func NewSQLiteGraph(db *DB) *SQLiteGraph {
	return &SQLiteGraph{db: db}
}

func (g *SQLiteGraph) Save(n models.Node) error {
	base := n.Base()
	if base.ID.IsZero() {
		return fmt.Errorf("save node: zero key")
	}
	payload, err := models.MarshalNode(n)
	if err != nil {
		return fmt.Errorf("encode node %s: %w", base.ID, err)
	}

	parent := ""
	if !base.ParentID.IsZero() {
		parent = base.ParentID.String()
	}
	_, err = g.db.Exec(`
		INSERT INTO nodes (key, parent_key, kind, status, payload, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			parent_key = excluded.parent_key,
			kind = excluded.kind,
			status = excluded.status,
			payload = excluded.payload,
			updated_at = excluded.updated_at
	`, base.ID.String(), parent, string(n.Kind()), string(base.Status), string(payload), formatTime(base.UpdatedAt))
	if err != nil {
		return fmt.Errorf("save node %s: %w", base.ID, err)
	}
	return nil
}

func (g *SQLiteGraph) FindByID(id keys.Key) (models.Node, error) {
	var payload string
	row := g.db.QueryRow("SELECT payload FROM nodes WHERE key = ?", id.String())
	if err := row.Scan(&payload); err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("node %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("find node %s: %w", id, err)
	}
	return decodeNode(payload)
}

func (g *SQLiteGraph) FindAll() ([]models.Node, error) {
	return g.query("SELECT payload FROM nodes ORDER BY key")
}

func (g *SQLiteGraph) FindByParentID(parent keys.Key) ([]models.Node, error) {
	return g.query("SELECT payload FROM nodes WHERE parent_key = ? ORDER BY key", parent.String())
}

func (g *SQLiteGraph) FindByKind(kind models.Kind) ([]models.Node, error) {
	return g.query("SELECT payload FROM nodes WHERE kind = ? ORDER BY key", string(kind))
}

func (g *SQLiteGraph) FindByKeyPrefix(prefix keys.Key) ([]models.Node, error) {
	// Slash-joined keys make subtree queries a string range: the node
	// itself plus everything under "<prefix>/".
	p := prefix.String()
	return g.query(
		"SELECT payload FROM nodes WHERE key = ? OR key LIKE ? ORDER BY key",
		p, p+keys.Separator+"%",
	)
}

func (g *SQLiteGraph) query(q string, args ...any) ([]models.Node, error) {
	rows, err := g.db.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("query nodes: %w", err)
	}
	defer rows.Close()

	var out []models.Node
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan node: %w", err)
		}
		n, err := decodeNode(payload)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func decodeNode(payload string) (models.Node, error) {
	n, err := models.UnmarshalNode([]byte(payload))
	if err != nil {
		return nil, fmt.Errorf("decode node: %w", err)
	}
	return n, nil
}

func (g *SQLiteGraph) Delete(id keys.Key) error {
	res, err := g.db.Exec("DELETE FROM nodes WHERE key = ?", id.String())
	if err != nil {
		return fmt.Errorf("delete node %s: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete node %s: %w", id, err)
	}
	if affected == 0 {
		return fmt.Errorf("node %s: %w", id, ErrNotFound)
	}
	return nil
}

func (g *SQLiteGraph) Exists(id keys.Key) (bool, error) {
	var one int
	row := g.db.QueryRow("SELECT 1 FROM nodes WHERE key = ?", id.String())
	if err := row.Scan(&one); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("node exists %s: %w", id, err)
	}
	return true, nil
}

func (g *SQLiteGraph) Count() (int, error) {
	var n int
	row := g.db.QueryRow("SELECT COUNT(*) FROM nodes")
	if err := row.Scan(&n); err != nil {
		return 0, fmt.Errorf("count nodes: %w", err)
	}
	return n, nil
}

func (g *SQLiteGraph) Clear() error {
	if _, err := g.db.Exec("DELETE FROM nodes"); err != nil {
		return fmt.Errorf("clear nodes: %w", err)
	}
	return nil
}

// SQLiteEventLog is the durable append-only event log. Append order is
// preserved by the autoincrementing seq column.
type SQLiteEventLog struct {
	db *DB
}

// NewSQLiteEventLog creates an event log over an opened, migrated DB.
func NewSQLiteEventLog(db *DB) *SQLiteEventLog {
	return &SQLiteEventLog{db: db}
}

func (l *SQLiteEventLog) Append(e events.Event) error {
	payload, err := events.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode event %s: %w", e.EventID(), err)
	}
	nodeKey := ""
	if k := events.NodeKey(e); !k.IsZero() {
		nodeKey = k.String()
	}
	_, err = l.db.Exec(`
		INSERT INTO events (event_id, event_type, node_key, payload, occurred_at)
		VALUES (?, ?, ?, ?, ?)
	`, e.EventID(), string(e.Type()), nodeKey, string(payload), formatTime(e.OccurredAt()))
	if err != nil {
		return fmt.Errorf("append event %s: %w", e.EventID(), err)
	}
	return nil
}

func (l *SQLiteEventLog) List() ([]events.Event, error) {
	return l.query("SELECT payload FROM events ORDER BY seq")
}

func (l *SQLiteEventLog) ListForNode(id keys.Key) ([]events.Event, error) {
	p := id.String()
	return l.query(
		"SELECT payload FROM events WHERE node_key = ? OR node_key LIKE ? ORDER BY seq",
		p, p+keys.Separator+"%",
	)
}

func (l *SQLiteEventLog) query(q string, args ...any) ([]events.Event, error) {
	rows, err := l.db.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var out []events.Event
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		e, err := events.Unmarshal([]byte(payload))
		if err != nil {
			return nil, fmt.Errorf("decode event: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (l *SQLiteEventLog) Replay(fn func(events.Event) error) error {
	all, err := l.List()
	if err != nil {
		return err
	}
	for _, e := range all {
		if err := fn(e); err != nil {
			return err
		}
	}
	return nil
}

func (l *SQLiteEventLog) Count() (int, error) {
	var n int
	row := l.db.QueryRow("SELECT COUNT(*) FROM events")
	if err := row.Scan(&n); err != nil {
		return 0, fmt.Errorf("count events: %w", err)
	}
	return n, nil
}

// SQLiteWorktrees is the durable worktree store.
type SQLiteWorktrees struct {
	db *DB
}

// NewSQLiteWorktrees creates a worktree store over an opened, migrated DB.
func NewSQLiteWorktrees(db *DB) *SQLiteWorktrees {
	return &SQLiteWorktrees{db: db}
}

func (s *SQLiteWorktrees) Save(w models.Worktree) error {
	if w.ID == "" {
		return fmt.Errorf("save worktree: empty id")
	}
	_, err := s.db.Exec(`
		INSERT INTO worktrees (id, node_key, parent_id, path, branch, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			node_key = excluded.node_key,
			parent_id = excluded.parent_id,
			path = excluded.path,
			branch = excluded.branch,
			status = excluded.status,
			updated_at = excluded.updated_at
	`, w.ID, w.NodeID.String(), w.ParentID, w.Path, w.Branch, string(w.Status),
		formatTime(w.CreatedAt), formatTime(w.UpdatedAt))
	if err != nil {
		return fmt.Errorf("save worktree %s: %w", w.ID, err)
	}
	return nil
}

func (s *SQLiteWorktrees) FindByID(id string) (models.Worktree, error) {
	row := s.db.QueryRow(`
		SELECT id, node_key, parent_id, path, branch, status, created_at, updated_at
		FROM worktrees WHERE id = ?
	`, id)
	w, err := scanWorktree(row.Scan)
	if err != nil {
		if err == sql.ErrNoRows {
			return models.Worktree{}, fmt.Errorf("worktree %s: %w", id, ErrNotFound)
		}
		return models.Worktree{}, fmt.Errorf("find worktree %s: %w", id, err)
	}
	return w, nil
}

func (s *SQLiteWorktrees) FindByNodeID(node keys.Key) ([]models.Worktree, error) {
	return s.query(`
		SELECT id, node_key, parent_id, path, branch, status, created_at, updated_at
		FROM worktrees WHERE node_key = ? ORDER BY id
	`, node.String())
}

func (s *SQLiteWorktrees) FindByStatus(status models.WorktreeStatus) ([]models.Worktree, error) {
	return s.query(`
		SELECT id, node_key, parent_id, path, branch, status, created_at, updated_at
		FROM worktrees WHERE status = ? ORDER BY id
	`, string(status))
}

func (s *SQLiteWorktrees) FindAll() ([]models.Worktree, error) {
	return s.query(`
		SELECT id, node_key, parent_id, path, branch, status, created_at, updated_at
		FROM worktrees ORDER BY id
	`)
}

func (s *SQLiteWorktrees) query(q string, args ...any) ([]models.Worktree, error) {
	rows, err := s.db.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("query worktrees: %w", err)
	}
	defer rows.Close()

	var out []models.Worktree
	for rows.Next() {
		w, err := scanWorktree(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan worktree: %w", err)
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

func scanWorktree(scan func(dest ...any) error) (models.Worktree, error) {
	var w models.Worktree
	var nodeKey, status, createdAt, updatedAt string
	if err := scan(&w.ID, &nodeKey, &w.ParentID, &w.Path, &w.Branch, &status, &createdAt, &updatedAt); err != nil {
		return models.Worktree{}, err
	}
	k, err := keys.Parse(nodeKey)
	if err != nil {
		return models.Worktree{}, fmt.Errorf("parse node key %q: %w", nodeKey, err)
	}
	w.NodeID = k
	w.Status = models.WorktreeStatus(status)
	if w.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return models.Worktree{}, fmt.Errorf("parse created_at: %w", err)
	}
	if w.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt); err != nil {
		return models.Worktree{}, fmt.Errorf("parse updated_at: %w", err)
	}
	return w, nil
}

// SQLiteArtifacts is the durable content-addressed artifact store.
type SQLiteArtifacts struct {
	db *DB
}

// NewSQLiteArtifacts creates an artifact store over an opened, migrated DB.
func NewSQLiteArtifacts(db *DB) *SQLiteArtifacts {
	return &SQLiteArtifacts{db: db}
}

func (s *SQLiteArtifacts) Save(a models.Artifact) error {
	if a.Key.IsZero() {
		return fmt.Errorf("save artifact: zero key")
	}
	var existingHash string
	row := s.db.QueryRow("SELECT content_hash FROM artifacts WHERE key = ?", a.Key.String())
	if err := row.Scan(&existingHash); err == nil && existingHash == a.ContentHash {
		return nil
	}

	parent := ""
	if !a.ParentKey.IsZero() {
		parent = a.ParentKey.String()
	}
	execution := ""
	if !a.ExecutionKey.IsZero() {
		execution = a.ExecutionKey.String()
	}
	shared := 0
	if a.Shared {
		shared = 1
	}
	metadata, err := json.Marshal(a.Metadata)
	if err != nil {
		return fmt.Errorf("encode artifact metadata %s: %w", a.Key, err)
	}
	_, err = s.db.Exec(`
		INSERT INTO artifacts (key, parent_key, execution_key, artifact_type, content_hash,
			depth, template_static_id, shared, payload, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			artifact_type = excluded.artifact_type,
			content_hash = excluded.content_hash,
			template_static_id = excluded.template_static_id,
			shared = excluded.shared,
			payload = excluded.payload,
			metadata = excluded.metadata
	`, a.Key.String(), parent, execution, a.Type, a.ContentHash,
		a.Depth, a.TemplateStaticID, shared, a.Payload, string(metadata), formatTime(a.CreatedAt))
	if err != nil {
		return fmt.Errorf("save artifact %s: %w", a.Key, err)
	}
	return nil
}

func (s *SQLiteArtifacts) FindByKey(key keys.Key) (models.Artifact, error) {
	row := s.db.QueryRow(artifactSelect+" WHERE key = ?", key.String())
	a, err := scanArtifact(row.Scan)
	if err != nil {
		if err == sql.ErrNoRows {
			return models.Artifact{}, fmt.Errorf("artifact %s: %w", key, ErrNotFound)
		}
		return models.Artifact{}, fmt.Errorf("find artifact %s: %w", key, err)
	}
	return a, nil
}

func (s *SQLiteArtifacts) FindByKeyPrefix(prefix keys.Key) ([]models.Artifact, error) {
	p := prefix.String()
	return s.query(artifactSelect+" WHERE key = ? OR key LIKE ? ORDER BY key", p, p+keys.Separator+"%")
}

func (s *SQLiteArtifacts) FindByContentHash(hash string) ([]models.Artifact, error) {
	return s.query(artifactSelect+" WHERE content_hash = ? ORDER BY key", hash)
}

const artifactSelect = `
	SELECT key, parent_key, execution_key, artifact_type, content_hash,
		depth, template_static_id, shared, payload, metadata, created_at
	FROM artifacts`

func (s *SQLiteArtifacts) query(q string, args ...any) ([]models.Artifact, error) {
	rows, err := s.db.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("query artifacts: %w", err)
	}
	defer rows.Close()

	var out []models.Artifact
	for rows.Next() {
		a, err := scanArtifact(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan artifact: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func scanArtifact(scan func(dest ...any) error) (models.Artifact, error) {
	var a models.Artifact
	var key, parent, execution, metadata, createdAt string
	var shared int
	if err := scan(&key, &parent, &execution, &a.Type, &a.ContentHash,
		&a.Depth, &a.TemplateStaticID, &shared, &a.Payload, &metadata, &createdAt); err != nil {
		return models.Artifact{}, err
	}
	if metadata != "" && metadata != "null" {
		if err := json.Unmarshal([]byte(metadata), &a.Metadata); err != nil {
			return models.Artifact{}, fmt.Errorf("decode artifact metadata: %w", err)
		}
	}
	k, err := keys.Parse(key)
	if err != nil {
		return models.Artifact{}, fmt.Errorf("parse artifact key %q: %w", key, err)
	}
	a.Key = k
	if parent != "" {
		if a.ParentKey, err = keys.Parse(parent); err != nil {
			return models.Artifact{}, fmt.Errorf("parse parent key %q: %w", parent, err)
		}
	}
	if execution != "" {
		if a.ExecutionKey, err = keys.Parse(execution); err != nil {
			return models.Artifact{}, fmt.Errorf("parse execution key %q: %w", execution, err)
		}
	}
	a.Shared = shared != 0
	if a.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return models.Artifact{}, fmt.Errorf("parse created_at: %w", err)
	}
	return a, nil
}
