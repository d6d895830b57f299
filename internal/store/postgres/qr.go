package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/anirudhbs/corebank/internal/domain"
)

type qrRequestRepo struct {
	s *Store
}

const qrRequestColumns = "id, request_id, receiver_account, amount, currency, description, status, created_at, expires_at, payer_account, paid_at"

func scanQRRequest(row pgx.Row) (*domain.QRPaymentRequest, error) {
	var q domain.QRPaymentRequest
	var paidAt *time.Time
	err := row.Scan(&q.ID, &q.RequestID, &q.ReceiverAccount, &q.Amount, &q.Currency,
		&q.Description, &q.Status, &q.CreatedAt, &q.ExpiresAt, &q.PayerAccount, &paidAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrRequestNotFound
		}
		return nil, err
	}
	q.PaidAt = fromNullTime(paidAt)
	return &q, nil
}

func (r qrRequestRepo) Create(ctx context.Context, req *domain.QRPaymentRequest) error {
	return r.s.db(ctx).QueryRow(ctx,
		`INSERT INTO qr_payment_requests (request_id, receiver_account, amount, currency, description, status, created_at, expires_at, payer_account, paid_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10) RETURNING id`,
		req.RequestID, req.ReceiverAccount, req.Amount, req.Currency, req.Description,
		req.Status, req.CreatedAt, req.ExpiresAt, req.PayerAccount, nullTime(req.PaidAt),
	).Scan(&req.ID)
}

func (r qrRequestRepo) GetByRequestID(ctx context.Context, requestID string) (*domain.QRPaymentRequest, error) {
	return scanQRRequest(r.s.db(ctx).QueryRow(ctx,
		"SELECT "+qrRequestColumns+" FROM qr_payment_requests WHERE request_id = $1 FOR UPDATE", requestID))
}

func (r qrRequestRepo) Update(ctx context.Context, req *domain.QRPaymentRequest) error {
	tag, err := r.s.db(ctx).Exec(ctx,
		"UPDATE qr_payment_requests SET status = $1, payer_account = $2, paid_at = $3 WHERE request_id = $4",
		req.Status, req.PayerAccount, nullTime(req.PaidAt), req.RequestID)
	if err != nil {
		return fmt.Errorf("qr request update failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrRequestNotFound
	}
	return nil
}

type qrTxRepo struct {
	s *Store
}

const qrTxColumns = "id, reference, type, payer_account, receiver_account, amount, net_amount, currency, status, request_id, debit_reference, credit_reference, failure_reason, created_at, updated_at"

func scanQRTx(row pgx.Row) (*domain.QRTransaction, error) {
	var q domain.QRTransaction
	err := row.Scan(&q.ID, &q.Reference, &q.Type, &q.PayerAccount, &q.ReceiverAccount,
		&q.Amount, &q.NetAmount, &q.Currency, &q.Status, &q.RequestID,
		&q.DebitReference, &q.CreditReference, &q.FailureReason, &q.CreatedAt, &q.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrTransactionNotFound
		}
		return nil, err
	}
	return &q, nil
}

func (r qrTxRepo) Create(ctx context.Context, q *domain.QRTransaction) error {
	return r.s.db(ctx).QueryRow(ctx,
		`INSERT INTO qr_transactions (reference, type, payer_account, receiver_account, amount, net_amount, currency, status, request_id, debit_reference, credit_reference, failure_reason, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14) RETURNING id`,
		q.Reference, q.Type, q.PayerAccount, q.ReceiverAccount, q.Amount, q.NetAmount,
		q.Currency, q.Status, q.RequestID, q.DebitReference, q.CreditReference,
		q.FailureReason, q.CreatedAt, q.UpdatedAt,
	).Scan(&q.ID)
}

func (r qrTxRepo) GetByReference(ctx context.Context, reference string) (*domain.QRTransaction, error) {
	return scanQRTx(r.s.db(ctx).QueryRow(ctx,
		"SELECT "+qrTxColumns+" FROM qr_transactions WHERE reference = $1", reference))
}

func (r qrTxRepo) Update(ctx context.Context, q *domain.QRTransaction) error {
	tag, err := r.s.db(ctx).Exec(ctx,
		`UPDATE qr_transactions SET status = $1, debit_reference = $2, credit_reference = $3, failure_reason = $4, updated_at = $5
		 WHERE reference = $6`,
		q.Status, q.DebitReference, q.CreditReference, q.FailureReason, q.UpdatedAt, q.Reference)
	if err != nil {
		return fmt.Errorf("qr transaction update failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrTransactionNotFound
	}
	return nil
}

type upiRepo struct {
	s *Store
}

const upiColumns = "id, handle, owner_id, account_number, is_primary, created_at"

func scanHandle(row pgx.Row) (*domain.UPIHandle, error) {
	var h domain.UPIHandle
	err := row.Scan(&h.ID, &h.Handle, &h.OwnerID, &h.AccountNumber, &h.Primary, &h.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrHandleNotFound
		}
		return nil, err
	}
	return &h, nil
}

func (r upiRepo) Create(ctx context.Context, h *domain.UPIHandle) error {
	err := r.s.db(ctx).QueryRow(ctx,
		`INSERT INTO upi_handles (handle, owner_id, account_number, is_primary, created_at)
		 VALUES ($1, $2, $3, $4, $5) RETURNING id`,
		h.Handle, h.OwnerID, h.AccountNumber, h.Primary, h.CreatedAt,
	).Scan(&h.ID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return domain.ErrHandleTaken
		}
		return err
	}
	return nil
}

func (r upiRepo) GetByHandle(ctx context.Context, handle string) (*domain.UPIHandle, error) {
	return scanHandle(r.s.db(ctx).QueryRow(ctx,
		"SELECT "+upiColumns+" FROM upi_handles WHERE handle = $1", handle))
}

func (r upiRepo) ListByOwner(ctx context.Context, ownerID string) ([]*domain.UPIHandle, error) {
	rows, err := r.s.db(ctx).Query(ctx,
		"SELECT "+upiColumns+" FROM upi_handles WHERE owner_id = $1 ORDER BY id", ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var hs []*domain.UPIHandle
	for rows.Next() {
		h, err := scanHandle(rows)
		if err != nil {
			return nil, err
		}
		hs = append(hs, h)
	}
	return hs, rows.Err()
}

func (r upiRepo) Update(ctx context.Context, h *domain.UPIHandle) error {
	tag, err := r.s.db(ctx).Exec(ctx,
		"UPDATE upi_handles SET account_number = $1, is_primary = $2 WHERE handle = $3",
		h.AccountNumber, h.Primary, h.Handle)
	if err != nil {
		return fmt.Errorf("upi handle update failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrHandleNotFound
	}
	return nil
}
