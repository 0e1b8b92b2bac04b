package frontier

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // SQLite driver

	"go.uber.org/zap"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS urls (
	url      TEXT PRIMARY KEY,
	status   TEXT NOT NULL DEFAULT 'todo',
	tries    INTEGER NOT NULL DEFAULT 0,
	level    INTEGER NOT NULL DEFAULT 0,
	referrer  TEXT NOT NULL DEFAULT '',
	requisite INTEGER NOT NULL DEFAULT 0,
	redirects INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_urls_status ON urls(status);
`

// SQLiteTable is the default durable frontier backend: a single file,
// no external services, CGO-free via modernc.org/sqlite.
type SQLiteTable struct {
	db       *sql.DB
	maxTries int
	logger   *zap.Logger
}

// OpenSQLite opens or creates the URL table at path. Entries left
// in_progress by an interrupted run are reset to todo so resume re-offers
// them without touching done rows.
func OpenSQLite(ctx context.Context, path string, maxTries int, logger *zap.Logger) (*SQLiteTable, error) {
	if maxTries < 1 {
		maxTries = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("create frontier dir %s: %w", dir, err)
		}
	}

	db, err := sql.Open("sqlite", path+"?mode=rwc")
	if err != nil {
		return nil, fmt.Errorf("open frontier db %s: %w", path, err)
	}
	// A single connection serializes writers; claims stay atomic without
	// retry loops around SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply %s: %w", pragma, err)
		}
	}
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create frontier schema: %w", err)
	}

	res, err := db.ExecContext(ctx, `UPDATE urls SET status = 'todo' WHERE status = 'in_progress'`)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("requeue interrupted entries: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n > 0 {
		logger.Info("Re-queued entries interrupted by a previous run", zap.Int64("count", n))
	}

	return &SQLiteTable{db: db, maxTries: maxTries, logger: logger}, nil
}

// Add implements Table.
func (t *SQLiteTable) Add(ctx context.Context, candidates []Candidate) error {
	if len(candidates) == 0 {
		return nil
	}
	tx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin frontier insert: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT OR IGNORE INTO urls (url, status, level, referrer, requisite, redirects) VALUES (?, 'todo', ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare frontier insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, c := range candidates {
		if _, err := stmt.ExecContext(ctx, c.URL.URL, c.Level, c.Referrer, c.Requisite, c.RedirectDepth); err != nil {
			return fmt.Errorf("insert %s: %w", c.URL.URL, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit frontier insert: %w", err)
	}
	return nil
}

// GetAndClaim implements Table. The single-statement UPDATE..RETURNING
// plus the one-connection pool makes the todo->in_progress transition
// atomic under concurrent workers.
func (t *SQLiteTable) GetAndClaim(ctx context.Context) (Entry, error) {
	const query = `
		UPDATE urls SET status = 'in_progress'
		WHERE url = (SELECT url FROM urls WHERE status = 'todo' ORDER BY rowid LIMIT 1)
		RETURNING url, tries, level, referrer, requisite, redirects`

	e := Entry{Status: StatusInProgress}
	err := t.db.QueryRowContext(ctx, query).Scan(&e.URL, &e.Tries, &e.Level, &e.Referrer, &e.Requisite, &e.RedirectDepth)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, ErrEmpty
	}
	if err != nil {
		return Entry{}, fmt.Errorf("claim frontier entry: %w", err)
	}
	return e, nil
}

// SetDone implements Table.
func (t *SQLiteTable) SetDone(ctx context.Context, url string) error {
	if _, err := t.db.ExecContext(ctx, `UPDATE urls SET status = 'done' WHERE url = ?`, url); err != nil {
		return fmt.Errorf("finalize %s as done: %w", url, err)
	}
	return nil
}

// SetError implements Table.
func (t *SQLiteTable) SetError(ctx context.Context, url string) error {
	const query = `
		UPDATE urls SET
			tries = tries + 1,
			status = CASE WHEN tries + 1 < ? THEN 'todo' ELSE 'error' END
		WHERE url = ?`
	if _, err := t.db.ExecContext(ctx, query, t.maxTries, url); err != nil {
		return fmt.Errorf("finalize %s as error: %w", url, err)
	}
	return nil
}

// Counts implements Table.
func (t *SQLiteTable) Counts(ctx context.Context) (Counts, error) {
	rows, err := t.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM urls GROUP BY status`)
	if err != nil {
		return Counts{}, fmt.Errorf("count frontier entries: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var c Counts
	for rows.Next() {
		var status Status
		var n int64
		if err := rows.Scan(&status, &n); err != nil {
			return Counts{}, fmt.Errorf("scan frontier counts: %w", err)
		}
		switch status {
		case StatusTodo:
			c.Todo = n
		case StatusInProgress:
			c.InProgress = n
		case StatusDone:
			c.Done = n
		case StatusError:
			c.Errored = n
		}
	}
	if err := rows.Err(); err != nil {
		return Counts{}, fmt.Errorf("iterate frontier counts: %w", err)
	}
	return c, nil
}

// Close implements Table.
func (t *SQLiteTable) Close() error {
	if err := t.db.Close(); err != nil {
		return fmt.Errorf("close frontier db: %w", err)
	}
	return nil
}
