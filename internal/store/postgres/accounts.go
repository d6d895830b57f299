package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/anirudhbs/corebank/internal/domain"
)

type accountRepo struct {
	s *Store
}

const accountColumns = "id, account_number, currency, balance, available_balance, status, minimum_balance, created_at, last_activity_at"

func scanAccount(row pgx.Row) (*domain.Account, error) {
	var a domain.Account
	err := row.Scan(&a.ID, &a.AccountNumber, &a.Currency, &a.Balance, &a.AvailableBalance, &a.Status, &a.MinimumBalance, &a.CreatedAt, &a.LastActivityAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrAccountNotFound
		}
		return nil, err
	}
	return &a, nil
}

func (r accountRepo) Create(ctx context.Context, account *domain.Account) error {
	return r.s.db(ctx).QueryRow(ctx,
		`INSERT INTO accounts (account_number, currency, balance, available_balance, status, minimum_balance, created_at, last_activity_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING id`,
		account.AccountNumber, account.Currency, account.Balance, account.AvailableBalance,
		account.Status, account.MinimumBalance, account.CreatedAt, account.LastActivityAt,
	).Scan(&account.ID)
}

func (r accountRepo) GetByNumber(ctx context.Context, number string) (*domain.Account, error) {
	return scanAccount(r.s.db(ctx).QueryRow(ctx,
		"SELECT "+accountColumns+" FROM accounts WHERE account_number = $1", number))
}

// Lock acquires a row lock held until the enclosing transaction ends.
func (r accountRepo) Lock(ctx context.Context, number string) (*domain.Account, error) {
	return scanAccount(r.s.db(ctx).QueryRow(ctx,
		"SELECT "+accountColumns+" FROM accounts WHERE account_number = $1 FOR UPDATE", number))
}

func (r accountRepo) Update(ctx context.Context, account *domain.Account) error {
	tag, err := r.s.db(ctx).Exec(ctx,
		`UPDATE accounts SET balance = $1, available_balance = $2, status = $3, last_activity_at = $4
		 WHERE account_number = $5`,
		account.Balance, account.AvailableBalance, account.Status, account.LastActivityAt, account.AccountNumber)
	if err != nil {
		return fmt.Errorf("account update failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrAccountNotFound
	}
	return nil
}

type transactionRepo struct {
	s *Store
}

const transactionColumns = "id, reference, account_number, counterparty, type, amount, currency, balance_before, balance_after, category, description, status, failure_reason, created_at, updated_at"

func scanTransaction(row pgx.Row) (*domain.Transaction, error) {
	var t domain.Transaction
	err := row.Scan(&t.ID, &t.Reference, &t.AccountNumber, &t.Counterparty, &t.Type, &t.Amount,
		&t.Currency, &t.BalanceBefore, &t.BalanceAfter, &t.Category, &t.Description,
		&t.Status, &t.FailureReason, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrTransactionNotFound
		}
		return nil, err
	}
	return &t, nil
}

func (r transactionRepo) Create(ctx context.Context, tx *domain.Transaction) error {
	return r.s.db(ctx).QueryRow(ctx,
		`INSERT INTO transactions (reference, account_number, counterparty, type, amount, currency, balance_before, balance_after, category, description, status, failure_reason, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14) RETURNING id`,
		tx.Reference, tx.AccountNumber, tx.Counterparty, tx.Type, tx.Amount, tx.Currency,
		tx.BalanceBefore, tx.BalanceAfter, tx.Category, tx.Description, tx.Status,
		tx.FailureReason, tx.CreatedAt, tx.UpdatedAt,
	).Scan(&tx.ID)
}

func (r transactionRepo) GetByReference(ctx context.Context, reference string) (*domain.Transaction, error) {
	return scanTransaction(r.s.db(ctx).QueryRow(ctx,
		"SELECT "+transactionColumns+" FROM transactions WHERE reference = $1", reference))
}

func (r transactionRepo) ListByAccount(ctx context.Context, accountNumber string, limit, offset int) ([]*domain.Transaction, error) {
	rows, err := r.s.db(ctx).Query(ctx,
		"SELECT "+transactionColumns+" FROM transactions WHERE account_number = $1 ORDER BY id DESC LIMIT $2 OFFSET $3",
		accountNumber, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var txs []*domain.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		txs = append(txs, t)
	}
	return txs, rows.Err()
}

func (r transactionRepo) UpdateStatus(ctx context.Context, tx *domain.Transaction) error {
	tag, err := r.s.db(ctx).Exec(ctx,
		"UPDATE transactions SET status = $1, failure_reason = $2, updated_at = $3 WHERE reference = $4",
		tx.Status, tx.FailureReason, tx.UpdatedAt, tx.Reference)
	if err != nil {
		return fmt.Errorf("transaction status update failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrTransactionNotFound
	}
	return nil
}
