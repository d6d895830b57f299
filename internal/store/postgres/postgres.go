// Package postgres is the pgx-backed store. All repositories read their
// querier from the context: inside a unit of work they share one transaction,
// outside they hit the pool directly.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/anirudhbs/corebank/internal/domain"
)

type Store struct {
	pool *pgxpool.Pool
}

func NewStore(connString string) (*Store, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("unable to parse database config: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(context.Background(), config)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	if err := pool.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	s.pool.Close()
}

// querier is the subset of pgx shared by *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type txKey struct{}

// Within runs fn inside a transaction carried on the context. A nested call
// finds the transaction already present and joins it, so the outermost caller
// owns commit and rollback. Read committed suffices: every row a unit of
// work mutates is first taken with FOR UPDATE, so the loser of a lock wait
// re-reads the winner's committed balance instead of failing on a
// serialization conflict.
func (s *Store) Within(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(pgx.Tx); ok {
		return fn(ctx)
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("tx begin failed: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("tx commit failed: %w", err)
	}
	return nil
}

func (s *Store) db(ctx context.Context) querier {
	if tx, ok := ctx.Value(txKey{}).(pgx.Tx); ok {
		return tx
	}
	return s.pool
}

func (s *Store) Accounts() domain.AccountRepository             { return accountRepo{s} }
func (s *Store) Transactions() domain.TransactionRepository     { return transactionRepo{s} }
func (s *Store) EFTs() domain.EFTRepository                     { return eftRepo{s} }
func (s *Store) Beneficiaries() domain.BeneficiaryRepository    { return beneficiaryRepo{s} }
func (s *Store) QRRequests() domain.QRRequestRepository         { return qrRequestRepo{s} }
func (s *Store) QRTransactions() domain.QRTransactionRepository { return qrTxRepo{s} }
func (s *Store) UPIHandles() domain.UPIHandleRepository         { return upiRepo{s} }
func (s *Store) IdempotencyKeys() domain.IdempotencyRepository  { return idemRepo{s} }

// nullTime maps the zero time to NULL for optional timestamp columns.
func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func fromNullTime(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}
