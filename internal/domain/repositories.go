package domain

import (
	"context"
	"time"
)

// UnitOfWork runs fn atomically: every repository call made with the ctx it
// passes to fn commits together or not at all. Nested calls join the
// enclosing unit of work instead of opening a new one.
type UnitOfWork interface {
	Within(ctx context.Context, fn func(ctx context.Context) error) error
}

// AccountRepository persists accounts. Lock returns the account with a write
// lock held for the remainder of the enclosing unit of work; callers that
// lock more than one account must lock in ascending account-number order.
type AccountRepository interface {
	Create(ctx context.Context, account *Account) error
	GetByNumber(ctx context.Context, number string) (*Account, error)
	Lock(ctx context.Context, number string) (*Account, error)
	Update(ctx context.Context, account *Account) error
}

// TransactionRepository is the append-only ledger store. Create assigns ID;
// UpdateStatus persists only status, failure reason and updated-at.
type TransactionRepository interface {
	Create(ctx context.Context, tx *Transaction) error
	GetByReference(ctx context.Context, reference string) (*Transaction, error)
	ListByAccount(ctx context.Context, accountNumber string, limit, offset int) ([]*Transaction, error)
	UpdateStatus(ctx context.Context, tx *Transaction) error
}

type EFTRepository interface {
	Create(ctx context.Context, eft *EFTTransaction) error
	GetByReference(ctx context.Context, reference string) (*EFTTransaction, error)
	Update(ctx context.Context, eft *EFTTransaction) error
	// ListDue returns QUEUED transfers whose batch window is at or before
	// the given time.
	ListDue(ctx context.Context, at time.Time, limit int) ([]*EFTTransaction, error)
	// ListStaleProcessing returns PROCESSING transfers last touched at or
	// before the cutoff. A transfer only lingers there when a settlement run
	// died between claiming it and recording an outcome.
	ListStaleProcessing(ctx context.Context, cutoff time.Time, limit int) ([]*EFTTransaction, error)
}

type BeneficiaryRepository interface {
	Create(ctx context.Context, b *Beneficiary) error
	GetByID(ctx context.Context, id int64) (*Beneficiary, error)
	ListByCustomer(ctx context.Context, customerID string) ([]*Beneficiary, error)
	Update(ctx context.Context, b *Beneficiary) error
}

type QRRequestRepository interface {
	Create(ctx context.Context, r *QRPaymentRequest) error
	GetByRequestID(ctx context.Context, requestID string) (*QRPaymentRequest, error)
	Update(ctx context.Context, r *QRPaymentRequest) error
}

type QRTransactionRepository interface {
	Create(ctx context.Context, q *QRTransaction) error
	GetByReference(ctx context.Context, reference string) (*QRTransaction, error)
	Update(ctx context.Context, q *QRTransaction) error
}

type UPIHandleRepository interface {
	Create(ctx context.Context, h *UPIHandle) error
	GetByHandle(ctx context.Context, handle string) (*UPIHandle, error)
	ListByOwner(ctx context.Context, ownerID string) ([]*UPIHandle, error)
	Update(ctx context.Context, h *UPIHandle) error
}

// IdempotencyRepository provides the atomic check-then-act step of the
// guard. Reserve inserts a new record for the key and reports created=true,
// or returns the existing record with created=false; two concurrent calls
// for the same key must not both report created.
type IdempotencyRepository interface {
	Reserve(ctx context.Context, key, requestHash, ownerID string, now time.Time) (rec *IdempotencyRecord, created bool, err error)
	Finalize(ctx context.Context, key string, status int, body []byte, responseHash string) error
	Get(ctx context.Context, key string) (*IdempotencyRecord, error)
}
