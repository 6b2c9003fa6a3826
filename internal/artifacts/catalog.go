package artifacts

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"vidscribe/internal/services"
)

//go:embed schema.sql
var schemaSQL string

// schemaVersion is the current schema version. Bump this when the schema changes.
const schemaVersion = 1

// ErrSchemaMismatch indicates the catalog was created by a different schema version.
var ErrSchemaMismatch = errors.New("schema version mismatch")

// Entry is one cataloged artifact.
type Entry struct {
	Name      string    `json:"name"`
	TaskID    string    `json:"task_id"`
	Kind      Kind      `json:"kind"`
	Path      string    `json:"path"`
	SizeBytes int64     `json:"size_bytes"`
	CreatedAt time.Time `json:"created_at"`
}

// Catalog indexes artifacts by file name.
type Catalog struct {
	db   *sql.DB
	path string
}

// OpenCatalog opens or creates the catalog database at path.
func OpenCatalog(path string) (*Catalog, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("ensure catalog dir: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	catalog := &Catalog{db: db, path: path}
	if err := catalog.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return catalog, nil
}

// Path returns the database file location.
func (c *Catalog) Path() string { return c.path }

// Close closes the underlying database connection.
func (c *Catalog) Close() error {
	if c == nil || c.db == nil {
		return nil
	}
	return c.db.Close()
}

func (c *Catalog) initSchema(ctx context.Context) error {
	var tableExists int
	err := c.db.QueryRowContext(ctx,
		"SELECT COUNT(1) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	).Scan(&tableExists)
	if err != nil {
		return fmt.Errorf("check schema_version table: %w", err)
	}
	if tableExists == 0 {
		return c.createSchema(ctx)
	}

	var version int
	if err := c.db.QueryRowContext(ctx, "SELECT version FROM schema_version LIMIT 1").Scan(&version); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if version != schemaVersion {
		return fmt.Errorf("%w: catalog has version %d, expected %d (delete %s to rebuild it)",
			ErrSchemaMismatch, version, schemaVersion, c.path)
	}
	return nil
}

func (c *Catalog) createSchema(ctx context.Context) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "INSERT INTO schema_version (version) VALUES (?)", schemaVersion); err != nil {
		return fmt.Errorf("record schema version: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema: %w", err)
	}
	return nil
}

// Record inserts an entry or refreshes one the same task recorded earlier. A
// name that belongs to another task is rejected. A zero CreatedAt is stamped
// with now.
func (c *Catalog) Record(ctx context.Context, entry Entry) error {
	if err := ValidateName(entry.Name); err != nil {
		return err
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	res, err := c.db.ExecContext(ctx,
		`INSERT INTO artifacts (name, task_id, kind, path, size_bytes, created_at)
         VALUES (?, ?, ?, ?, ?, ?)
         ON CONFLICT(name) DO UPDATE SET
            kind = excluded.kind,
            path = excluded.path,
            size_bytes = excluded.size_bytes,
            created_at = excluded.created_at
         WHERE artifacts.task_id = excluded.task_id`,
		entry.Name,
		entry.TaskID,
		string(entry.Kind),
		entry.Path,
		entry.SizeBytes,
		entry.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("record artifact: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return services.Wrap(services.ErrValidation, "artifacts", "record",
			"artifact name already belongs to another task: "+entry.Name, nil)
	}
	return nil
}

// Resolve returns the entry registered under name.
func (c *Catalog) Resolve(ctx context.Context, name string) (Entry, error) {
	row := c.db.QueryRowContext(ctx,
		`SELECT name, task_id, kind, path, size_bytes, created_at FROM artifacts WHERE name = ?`, name)
	entry, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, services.Wrap(services.ErrNotFound, "artifacts", "resolve", name, nil)
	}
	if err != nil {
		return Entry{}, fmt.Errorf("resolve artifact: %w", err)
	}
	return entry, nil
}

// ListByTask returns the entries of one task ordered by creation.
func (c *Catalog) ListByTask(ctx context.Context, taskID string) ([]Entry, error) {
	rows, err := c.db.QueryContext(ctx,
		`SELECT name, task_id, kind, path, size_bytes, created_at FROM artifacts
         WHERE task_id = ? ORDER BY created_at, name`, taskID)
	if err != nil {
		return nil, fmt.Errorf("list artifacts: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan artifact: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate artifacts: %w", err)
	}
	return entries, nil
}

// Count returns the number of cataloged artifacts.
func (c *Catalog) Count(ctx context.Context) (int, error) {
	var n int
	if err := c.db.QueryRowContext(ctx, "SELECT COUNT(1) FROM artifacts").Scan(&n); err != nil {
		return 0, fmt.Errorf("count artifacts: %w", err)
	}
	return n, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(row scanner) (Entry, error) {
	var (
		entry   Entry
		kind    string
		created string
	)
	if err := row.Scan(&entry.Name, &entry.TaskID, &kind, &entry.Path, &entry.SizeBytes, &created); err != nil {
		return Entry{}, err
	}
	entry.Kind = Kind(kind)
	if ts, err := time.Parse(time.RFC3339Nano, created); err == nil {
		entry.CreatedAt = ts
	}
	return entry, nil
}
