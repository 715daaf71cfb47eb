package pg

import (
	"context"
	"fmt"
	"hash/fnv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Executor abstracts pgx query execution so the bindings store and notifier
// can run against a pool or any compatible wrapper.
type Executor interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Pool wraps a pgxpool.Pool.
type Pool struct {
	pool *pgxpool.Pool
}

// NewPool connects to PostgreSQL and returns a connection pool.
func NewPool(ctx context.Context, connString string) (*Pool, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("pg: connect: %w", err)
	}
	return &Pool{pool: pool}, nil
}

func (p *Pool) Close() {
	p.pool.Close()
}

func (p *Pool) PgxPool() *pgxpool.Pool { return p.pool }

func (p *Pool) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	return p.pool.Exec(ctx, sql, args...)
}

func (p *Pool) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return p.pool.Query(ctx, sql, args...)
}

func (p *Pool) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return p.pool.QueryRow(ctx, sql, args...)
}

// LockKey hashes a name into an advisory lock key.
func LockKey(name string) int64 {
	h := fnv.New64a()
	h.Write([]byte(name))
	return int64(h.Sum64())
}

// TryAdvisoryLock attempts a session-level advisory lock for the named
// resource without blocking. Returns whether the lock was acquired.
func TryAdvisoryLock(ctx context.Context, exec Executor, name string) (bool, error) {
	var acquired bool
	err := exec.QueryRow(ctx, "SELECT pg_try_advisory_lock($1)", LockKey(name)).Scan(&acquired)
	if err != nil {
		return false, fmt.Errorf("pg: acquire advisory lock %s: %w", name, err)
	}
	return acquired, nil
}

// AdvisoryUnlock releases a session-level advisory lock for the named resource.
func AdvisoryUnlock(ctx context.Context, exec Executor, name string) error {
	var released bool
	err := exec.QueryRow(ctx, "SELECT pg_advisory_unlock($1)", LockKey(name)).Scan(&released)
	if err != nil {
		return fmt.Errorf("pg: release advisory lock %s: %w", name, err)
	}
	return nil
}
