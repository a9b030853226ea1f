package resources

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	_ DBInstance = (*pgxpool.Pool)(nil)
	_ Querier    = (pgx.Tx)(nil)
)

// Querier is what both a pool and a transaction can run statements on.
type Querier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type DBInstance interface {
	Querier
	Begin(ctx context.Context) (pgx.Tx, error)
}

type Closable interface {
	Close()
}

// StopFn releases a resource, giving it at most timeout to finish.
type StopFn func(ctx context.Context, timeout time.Duration)

func NoopStop(context.Context, time.Duration) {}
