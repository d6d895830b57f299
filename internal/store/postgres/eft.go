package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/anirudhbs/corebank/internal/domain"
)

type eftRepo struct {
	s *Store
}

const eftColumns = "id, reference, rail, source_account, beneficiary_id, amount, charges, total_amount, currency, description, status, failure_reason, batch_id, scheduled_at, estimated_completion, actual_completion, debit_reference, reversal_reference, created_at, updated_at"

func scanEFT(row pgx.Row) (*domain.EFTTransaction, error) {
	var e domain.EFTTransaction
	var scheduled, estimated, actual *time.Time
	err := row.Scan(&e.ID, &e.Reference, &e.Rail, &e.SourceAccount, &e.BeneficiaryID,
		&e.Amount, &e.Charges, &e.TotalAmount, &e.Currency, &e.Description,
		&e.Status, &e.FailureReason, &e.BatchID, &scheduled, &estimated, &actual,
		&e.DebitReference, &e.ReversalReference, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrTransferNotFound
		}
		return nil, err
	}
	e.ScheduledAt = fromNullTime(scheduled)
	e.EstimatedCompletion = fromNullTime(estimated)
	e.ActualCompletion = fromNullTime(actual)
	return &e, nil
}

func (r eftRepo) Create(ctx context.Context, eft *domain.EFTTransaction) error {
	return r.s.db(ctx).QueryRow(ctx,
		`INSERT INTO eft_transactions (reference, rail, source_account, beneficiary_id, amount, charges, total_amount, currency, description, status, failure_reason, batch_id, scheduled_at, estimated_completion, actual_completion, debit_reference, reversal_reference, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19) RETURNING id`,
		eft.Reference, eft.Rail, eft.SourceAccount, eft.BeneficiaryID, eft.Amount, eft.Charges,
		eft.TotalAmount, eft.Currency, eft.Description, eft.Status, eft.FailureReason, eft.BatchID,
		nullTime(eft.ScheduledAt), nullTime(eft.EstimatedCompletion), nullTime(eft.ActualCompletion),
		eft.DebitReference, eft.ReversalReference, eft.CreatedAt, eft.UpdatedAt,
	).Scan(&eft.ID)
}

func (r eftRepo) GetByReference(ctx context.Context, reference string) (*domain.EFTTransaction, error) {
	return scanEFT(r.s.db(ctx).QueryRow(ctx,
		"SELECT "+eftColumns+" FROM eft_transactions WHERE reference = $1", reference))
}

func (r eftRepo) Update(ctx context.Context, eft *domain.EFTTransaction) error {
	tag, err := r.s.db(ctx).Exec(ctx,
		`UPDATE eft_transactions SET status = $1, failure_reason = $2, batch_id = $3, scheduled_at = $4,
		 estimated_completion = $5, actual_completion = $6, debit_reference = $7, reversal_reference = $8, updated_at = $9
		 WHERE reference = $10`,
		eft.Status, eft.FailureReason, eft.BatchID, nullTime(eft.ScheduledAt),
		nullTime(eft.EstimatedCompletion), nullTime(eft.ActualCompletion),
		eft.DebitReference, eft.ReversalReference, eft.UpdatedAt, eft.Reference)
	if err != nil {
		return fmt.Errorf("eft update failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrTransferNotFound
	}
	return nil
}

// ListDue claims batch candidates with SKIP LOCKED so overlapping batch runs
// never pick the same row.
func (r eftRepo) ListDue(ctx context.Context, at time.Time, limit int) ([]*domain.EFTTransaction, error) {
	rows, err := r.s.db(ctx).Query(ctx,
		"SELECT "+eftColumns+` FROM eft_transactions
		 WHERE status = $1 AND scheduled_at <= $2
		 ORDER BY scheduled_at, id LIMIT $3 FOR UPDATE SKIP LOCKED`,
		domain.EFTQueued, at, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var efts []*domain.EFTTransaction
	for rows.Next() {
		e, err := scanEFT(rows)
		if err != nil {
			return nil, err
		}
		efts = append(efts, e)
	}
	return efts, rows.Err()
}

// ListStaleProcessing picks up transfers a crashed run left claimed but
// unresolved. Same SKIP LOCKED discipline as ListDue.
func (r eftRepo) ListStaleProcessing(ctx context.Context, cutoff time.Time, limit int) ([]*domain.EFTTransaction, error) {
	rows, err := r.s.db(ctx).Query(ctx,
		"SELECT "+eftColumns+` FROM eft_transactions
		 WHERE status = $1 AND updated_at <= $2
		 ORDER BY updated_at, id LIMIT $3 FOR UPDATE SKIP LOCKED`,
		domain.EFTProcessing, cutoff, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var efts []*domain.EFTTransaction
	for rows.Next() {
		e, err := scanEFT(rows)
		if err != nil {
			return nil, err
		}
		efts = append(efts, e)
	}
	return efts, rows.Err()
}

type beneficiaryRepo struct {
	s *Store
}

const beneficiaryColumns = "id, customer_id, name, account_number, routing_code, verified, status, created_at"

func scanBeneficiary(row pgx.Row) (*domain.Beneficiary, error) {
	var b domain.Beneficiary
	err := row.Scan(&b.ID, &b.CustomerID, &b.Name, &b.AccountNumber, &b.RoutingCode, &b.Verified, &b.Status, &b.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrBeneficiaryNotFound
		}
		return nil, err
	}
	return &b, nil
}

func (r beneficiaryRepo) Create(ctx context.Context, b *domain.Beneficiary) error {
	return r.s.db(ctx).QueryRow(ctx,
		`INSERT INTO beneficiaries (customer_id, name, account_number, routing_code, verified, status, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id`,
		b.CustomerID, b.Name, b.AccountNumber, b.RoutingCode, b.Verified, b.Status, b.CreatedAt,
	).Scan(&b.ID)
}

func (r beneficiaryRepo) GetByID(ctx context.Context, id int64) (*domain.Beneficiary, error) {
	return scanBeneficiary(r.s.db(ctx).QueryRow(ctx,
		"SELECT "+beneficiaryColumns+" FROM beneficiaries WHERE id = $1", id))
}

func (r beneficiaryRepo) ListByCustomer(ctx context.Context, customerID string) ([]*domain.Beneficiary, error) {
	rows, err := r.s.db(ctx).Query(ctx,
		"SELECT "+beneficiaryColumns+" FROM beneficiaries WHERE customer_id = $1 ORDER BY id", customerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var bs []*domain.Beneficiary
	for rows.Next() {
		b, err := scanBeneficiary(rows)
		if err != nil {
			return nil, err
		}
		bs = append(bs, b)
	}
	return bs, rows.Err()
}

func (r beneficiaryRepo) Update(ctx context.Context, b *domain.Beneficiary) error {
	tag, err := r.s.db(ctx).Exec(ctx,
		"UPDATE beneficiaries SET name = $1, verified = $2, status = $3 WHERE id = $4",
		b.Name, b.Verified, b.Status, b.ID)
	if err != nil {
		return fmt.Errorf("beneficiary update failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrBeneficiaryNotFound
	}
	return nil
}
