package postgres

import (
	"context"
	"errors"
	"github.com/ariefcatur/go-order-fulfillment/internal/inventory"
	"github.com/ariefcatur/go-order-fulfillment/internal/orders"
	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
	"time"
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store implements the order and lot stores on Postgres. Consistency comes
// from row locks (SELECT ... FOR UPDATE) taken inside READ COMMITTED
// transactions; a transaction aborted by a deadlock or serialization failure
// is retried with backoff.
type Store struct {
	DB         *pgxpool.Pool
	Log        *zap.Logger
	MaxRetries uint64
}

const (
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
	codeForeignKeyViolation  = "23503"
	codeUniqueViolation      = "23505"
)

func pgCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

func retryable(err error) bool {
	c := pgCode(err)
	return c == codeSerializationFailure || c == codeDeadlockDetected
}

func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx orders.Tx) error) error {
	retries := s.MaxRetries
	if retries == 0 {
		retries = 3
	}
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = 20 * time.Millisecond
	eb.MaxInterval = 500 * time.Millisecond
	eb.MaxElapsedTime = 5 * time.Second
	b := backoff.WithContext(backoff.WithMaxRetries(eb, retries), ctx)

	attempt := 0
	return backoff.Retry(func() error {
		attempt++
		err := s.runTx(ctx, fn)
		if err == nil {
			return nil
		}
		if retryable(err) {
			if s.Log != nil {
				s.Log.Warn("transaction aborted, retrying", zap.Int("attempt", attempt), zap.Error(err))
			}
			return err
		}
		return backoff.Permanent(err)
	}, b)
}

func (s *Store) runTx(ctx context.Context, fn func(ctx context.Context, tx orders.Tx) error) error {
	tx, err := s.DB.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(ctx, &pgTx{q: tx}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *Store) WithinLotTx(ctx context.Context, fn func(ctx context.Context, lots inventory.LotStore) error) error {
	return s.WithinTx(ctx, func(ctx context.Context, tx orders.Tx) error {
		return fn(ctx, tx)
	})
}

func (s *Store) Order(ctx context.Context, id string) (orders.Order, error) {
	return loadOrder(ctx, s.DB, id, false)
}

// ClearExpiredSuspensions is a single UPDATE, so concurrent sweeps are safe
// and a second run finds nothing.
func (s *Store) ClearExpiredSuspensions(ctx context.Context, now time.Time) (int, error) {
	ct, err := s.DB.Exec(ctx, `
		UPDATE customers SET suspended_until = NULL
		WHERE suspended_until IS NOT NULL AND suspended_until <= $1`, now)
	if err != nil {
		return 0, err
	}
	return int(ct.RowsAffected()), nil
}

// pgTx is the orders.Tx view over one pgx transaction.
type pgTx struct{ q querier }

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
