// Package index keeps a SQLite cache of the records in a repository so that
// listings and manifest checks do not have to walk the tree.
//
// The JSON documents on disk stay the source of truth. The cache can be
// dropped and rebuilt at any time with a full sync.
//
// Layout:
//   - Database file: <repo>/.ddrsync/index.db
//   - WAL mode: readers proceed while a sync writes
//   - Tables: records, manifest_entries
package index

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
	"go.uber.org/zap"

	"github.com/ddrkit/ddrsync/internal/manifest"
	"github.com/ddrkit/ddrsync/internal/natsort"
	"github.com/ddrkit/ddrsync/internal/record"
)

// DefaultPath is where the index lives relative to the repository root.
const DefaultPath = ".ddrsync/index.db"

// ErrNotIndexed is returned for a record the cache does not know.
var ErrNotIndexed = errors.New("record not indexed")

// DB wraps the SQLite connection.
type DB struct {
	conn *sql.DB
	path string
	log  *zap.Logger
}

// Entry is one cached record.
type Entry struct {
	ID        string
	Kind      record.Kind
	Parent    string
	Path      string
	UpdatedAt time.Time
	Doc       string
}

// Open opens (creating when needed) the index at path.
//
// The caller must Close the DB.
func Open(path string, logger *zap.Logger) (*DB, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create index directory: %w", err)
	}

	conn, err := sql.Open("sqlite3", "file:"+path)
	if err != nil {
		return nil, fmt.Errorf("failed to open index: %w", err)
	}
	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping index: %w", err)
	}
	conn.SetMaxOpenConns(4)
	conn.SetMaxIdleConns(2)
	conn.SetConnMaxLifetime(5 * time.Minute)

	db := &DB{conn: conn, path: path, log: logger}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := conn.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to run %s: %w", pragma, err)
		}
	}
	return db, nil
}

// Path returns the database file path.
func (db *DB) Path() string {
	return db.path
}

// Close checkpoints the WAL and closes the connection.
func (db *DB) Close() error {
	if db.conn == nil {
		return nil
	}
	if _, err := db.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		db.log.Warn("failed to checkpoint WAL", zap.Error(err))
	}
	if err := db.conn.Close(); err != nil {
		return fmt.Errorf("failed to close index: %w", err)
	}
	db.conn = nil
	return nil
}

// InitSchema creates the tables if they do not exist. Safe to call
// repeatedly.
func (db *DB) InitSchema(ctx context.Context) error {
	const ddl = `
	CREATE TABLE IF NOT EXISTS records (
		id TEXT PRIMARY KEY,
		kind TEXT NOT NULL,
		parent TEXT NOT NULL DEFAULT '',
		path TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		doc TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS manifest_entries (
		record_id TEXT NOT NULL,
		path TEXT NOT NULL,
		size INTEGER NOT NULL,
		sha1 TEXT NOT NULL,
		sha256 TEXT NOT NULL,
		PRIMARY KEY (record_id, path),
		FOREIGN KEY (record_id) REFERENCES records(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_records_kind ON records(kind);
	CREATE INDEX IF NOT EXISTS idx_records_parent ON records(kind, parent);
	`
	if _, err := db.conn.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("failed to initialize index schema: %w", err)
	}
	return nil
}

// Upsert caches a record together with its manifest.
func (db *DB) Upsert(ctx context.Context, e Entry, m manifest.Manifest) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
	INSERT INTO records (id, kind, parent, path, updated_at, doc)
	VALUES (?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		kind = excluded.kind,
		parent = excluded.parent,
		path = excluded.path,
		updated_at = excluded.updated_at,
		doc = excluded.doc
	`, e.ID, e.Kind.String(), e.Parent, e.Path, e.UpdatedAt.UTC().Format(time.RFC3339), e.Doc)
	if err != nil {
		return fmt.Errorf("failed to upsert record %s: %w", e.ID, err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM manifest_entries WHERE record_id = ?`, e.ID); err != nil {
		return fmt.Errorf("failed to clear manifest of %s: %w", e.ID, err)
	}
	for _, me := range m {
		_, err := tx.ExecContext(ctx, `
		INSERT INTO manifest_entries (record_id, path, size, sha1, sha256)
		VALUES (?, ?, ?, ?, ?)
		`, e.ID, me.Path, me.Size, me.SHA1, me.SHA256)
		if err != nil {
			return fmt.Errorf("failed to insert manifest entry %s/%s: %w", e.ID, me.Path, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Delete drops a record and its manifest. Deleting an unknown record is
// not an error.
func (db *DB) Delete(ctx context.Context, id string) error {
	if _, err := db.conn.ExecContext(ctx, `DELETE FROM records WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete record %s: %w", id, err)
	}
	return nil
}

// Get returns a cached record.
func (db *DB) Get(ctx context.Context, id string) (*Entry, error) {
	var (
		e       Entry
		kind    string
		updated string
	)
	err := db.conn.QueryRowContext(ctx,
		`SELECT id, kind, parent, path, updated_at, doc FROM records WHERE id = ?`, id,
	).Scan(&e.ID, &kind, &e.Parent, &e.Path, &updated, &e.Doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", id, ErrNotIndexed)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get record %s: %w", id, err)
	}
	if e.Kind, err = record.ParseKind(kind); err != nil {
		return nil, err
	}
	if e.UpdatedAt, err = time.Parse(time.RFC3339, updated); err != nil {
		return nil, fmt.Errorf("record %s: bad updated_at %q: %w", id, updated, err)
	}
	return &e, nil
}

// IDs lists cached identifiers of a kind in natural order, optionally only
// those under parent.
func (db *DB) IDs(ctx context.Context, kind record.Kind, parent string) ([]string, error) {
	query := `SELECT id FROM records WHERE kind = ?`
	args := []any{kind.String()}
	if parent != "" {
		query += ` AND parent = ?`
		args = append(args, parent)
	}

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s records: %w", kind, err)
	}
	defer func() { _ = rows.Close() }()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list %s records: %w", kind, err)
	}
	natsort.Sort(ids)
	return ids, nil
}

// AllIDs lists every cached identifier.
func (db *DB) AllIDs(ctx context.Context) ([]string, error) {
	var all []string
	for _, k := range record.Kinds {
		ids, err := db.IDs(ctx, k, "")
		if err != nil {
			return nil, err
		}
		all = append(all, ids...)
	}
	return all, nil
}

// Count returns the number of cached records per kind.
func (db *DB) Count(ctx context.Context) (map[record.Kind]int, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT kind, COUNT(*) FROM records GROUP BY kind`)
	if err != nil {
		return nil, fmt.Errorf("failed to count records: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := make(map[record.Kind]int, len(record.Kinds))
	for rows.Next() {
		var (
			kind string
			n    int
		)
		if err := rows.Scan(&kind, &n); err != nil {
			return nil, fmt.Errorf("failed to scan count: %w", err)
		}
		k, err := record.ParseKind(kind)
		if err != nil {
			return nil, err
		}
		out[k] = n
	}
	return out, rows.Err()
}

// Manifest returns the cached manifest entries of a record, sorted by path.
// Only the mandatory digests are cached.
func (db *DB) Manifest(ctx context.Context, id string) (manifest.Manifest, error) {
	rows, err := db.conn.QueryContext(ctx, `
	SELECT path, size, sha1, sha256 FROM manifest_entries
	WHERE record_id = ? ORDER BY path
	`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest of %s: %w", id, err)
	}
	defer func() { _ = rows.Close() }()

	var m manifest.Manifest
	for rows.Next() {
		var e manifest.Entry
		if err := rows.Scan(&e.Path, &e.Size, &e.SHA1, &e.SHA256); err != nil {
			return nil, fmt.Errorf("failed to scan manifest entry: %w", err)
		}
		e.Basename = filepath.Base(filepath.FromSlash(e.Path))
		m = append(m, e)
	}
	return m, rows.Err()
}
