package frontier

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS urls (
	url      TEXT PRIMARY KEY,
	status   TEXT NOT NULL DEFAULT 'todo',
	tries    INTEGER NOT NULL DEFAULT 0,
	level    INTEGER NOT NULL DEFAULT 0,
	referrer  TEXT NOT NULL DEFAULT '',
	requisite BOOLEAN NOT NULL DEFAULT FALSE,
	redirects INTEGER NOT NULL DEFAULT 0,
	added_at BIGSERIAL
);
CREATE INDEX IF NOT EXISTS idx_urls_status ON urls(status, added_at);
`

// pgPool is the subset of pgxpool.Pool the table uses; pgxmock satisfies
// it in tests.
type pgPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Close()
}

// PostgresTable is a frontier backend for crawls too large or too shared
// for a local SQLite file. FOR UPDATE SKIP LOCKED keeps concurrent claims
// from ever handing out the same entry twice.
type PostgresTable struct {
	pool     pgPool
	maxTries int
}

// OpenPostgres connects to dsn, ensures the schema, and re-queues
// entries interrupted by a previous run.
func OpenPostgres(ctx context.Context, dsn string, maxTries int) (*PostgresTable, error) {
	if dsn == "" {
		return nil, fmt.Errorf("frontier dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect frontier postgres: %w", err)
	}
	t, err := NewPostgresTableWithPool(pool, maxTries)
	if err != nil {
		pool.Close()
		return nil, err
	}
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("create frontier schema: %w", err)
	}
	if _, err := pool.Exec(ctx, `UPDATE urls SET status = 'todo' WHERE status = 'in_progress'`); err != nil {
		pool.Close()
		return nil, fmt.Errorf("requeue interrupted entries: %w", err)
	}
	return t, nil
}

// NewPostgresTableWithPool constructs a table from an existing pool
// (primarily for testing).
func NewPostgresTableWithPool(pool pgPool, maxTries int) (*PostgresTable, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if maxTries < 1 {
		maxTries = 1
	}
	return &PostgresTable{pool: pool, maxTries: maxTries}, nil
}

// Add implements Table.
func (t *PostgresTable) Add(ctx context.Context, candidates []Candidate) error {
	for _, c := range candidates {
		_, err := t.pool.Exec(ctx,
			`INSERT INTO urls (url, status, level, referrer, requisite, redirects) VALUES ($1, 'todo', $2, $3, $4, $5) ON CONFLICT (url) DO NOTHING`,
			c.URL.URL, c.Level, c.Referrer, c.Requisite, c.RedirectDepth)
		if err != nil {
			return fmt.Errorf("insert %s: %w", c.URL.URL, err)
		}
	}
	return nil
}

// GetAndClaim implements Table.
func (t *PostgresTable) GetAndClaim(ctx context.Context) (Entry, error) {
	const query = `
		WITH next AS (
			SELECT url FROM urls
			WHERE status = 'todo'
			ORDER BY added_at
			FOR UPDATE SKIP LOCKED
			LIMIT 1
		)
		UPDATE urls SET status = 'in_progress' FROM next
		WHERE urls.url = next.url
		RETURNING urls.url, urls.tries, urls.level, urls.referrer, urls.requisite, urls.redirects`

	e := Entry{Status: StatusInProgress}
	err := t.pool.QueryRow(ctx, query).Scan(&e.URL, &e.Tries, &e.Level, &e.Referrer, &e.Requisite, &e.RedirectDepth)
	if errors.Is(err, pgx.ErrNoRows) {
		return Entry{}, ErrEmpty
	}
	if err != nil {
		return Entry{}, fmt.Errorf("claim frontier entry: %w", err)
	}
	return e, nil
}

// SetDone implements Table.
func (t *PostgresTable) SetDone(ctx context.Context, url string) error {
	if _, err := t.pool.Exec(ctx, `UPDATE urls SET status = 'done' WHERE url = $1`, url); err != nil {
		return fmt.Errorf("finalize %s as done: %w", url, err)
	}
	return nil
}

// SetError implements Table.
func (t *PostgresTable) SetError(ctx context.Context, url string) error {
	const query = `
		UPDATE urls SET
			tries = tries + 1,
			status = CASE WHEN tries + 1 < $1 THEN 'todo' ELSE 'error' END
		WHERE url = $2`
	if _, err := t.pool.Exec(ctx, query, t.maxTries, url); err != nil {
		return fmt.Errorf("finalize %s as error: %w", url, err)
	}
	return nil
}

// Counts implements Table.
func (t *PostgresTable) Counts(ctx context.Context) (Counts, error) {
	rows, err := t.pool.Query(ctx, `SELECT status, COUNT(*) FROM urls GROUP BY status`)
	if err != nil {
		return Counts{}, fmt.Errorf("count frontier entries: %w", err)
	}
	defer rows.Close()

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
func (t *PostgresTable) Close() error {
	t.pool.Close()
	return nil
}
