package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

var (
	ErrConflict   = errors.New("conflict")
	ErrForeignKey = errors.New("foreign key violation")
)

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Queries runs statements against either the pool or an open transaction.
type Queries struct {
	q querier
}

type PostgresStore struct {
	*Queries
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{Queries: &Queries{q: db}, db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

// InTx runs fn inside one transaction. fn's error rolls everything back.
func (s *PostgresStore) InTx(ctx context.Context, fn func(*Queries) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(&Queries{q: tx}); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// LockPartner serialises writers on one partner until the enclosing
// transaction ends. Outside a transaction the lock is released immediately.
func (q *Queries) LockPartner(ctx context.Context, partnerID int64) error {
	if _, err := q.q.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, partnerID); err != nil {
		return fmt.Errorf("lock partner %d: %w", partnerID, err)
	}
	return nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func mapPgError(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case "23505":
		return fmt.Errorf("%w: %s", ErrConflict, pgErr.ConstraintName)
	case "23503":
		return fmt.Errorf("%w: %s", ErrForeignKey, pgErr.ConstraintName)
	}
	return err
}

// args collects positional parameters for dynamically built statements.
type args []any

func (a *args) add(v any) string {
	*a = append(*a, v)
	return "$" + strconv.Itoa(len(*a))
}

func whereSQL(clauses []string) string {
	if len(clauses) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(clauses, " AND ")
}

func direction(desc bool) string {
	if desc {
		return "DESC"
	}
	return "ASC"
}

func limitSQL(a *args, limit, offset int) string {
	if limit <= 0 {
		return ""
	}
	return " LIMIT " + a.add(limit) + " OFFSET " + a.add(offset)
}
