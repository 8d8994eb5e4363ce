// Package store implements the core.Store contract on PostgreSQL via pgx.
//
// All SQL lives here; the core package never sees a connection. A Store
// either wraps the pool or a single transaction, so the same query methods
// serve both paths.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/gagan2k22/OPEX-Manager/internal/core"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DB is the subset of pgx operations the queries need.
// Satisfied by both *pgxpool.Pool and pgx.Tx.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store is the PostgreSQL implementation of core.Store.
type Store struct {
	pool *pgxpool.Pool // nil when this Store wraps a transaction
	db   DB
}

var _ core.Store = (*Store)(nil)

// New creates a Store backed by the given pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool, db: pool}
}

// InTx runs fn inside a transaction. The Store handed to fn routes every
// query through that transaction; a non-nil error from fn rolls back.
//
// Nested calls reuse the enclosing transaction rather than opening a second
// one, matching how the engines compose multi-step operations.
func (s *Store) InTx(ctx context.Context, fn func(core.Store) error) error {
	if s.pool == nil {
		return fn(s)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(&Store{db: tx}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// notFound maps pgx's no-rows sentinel onto the domain sentinel.
func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return core.ErrNotFound
	}
	return err
}
