package memory

import (
	"context"
	"time"

	"github.com/anirudhbs/corebank/internal/domain"
)

// Repository views over the single store. Each view satisfies one of the
// domain repository interfaces.

func (s *Store) Accounts() domain.AccountRepository             { return accountRepo{s} }
func (s *Store) Transactions() domain.TransactionRepository     { return transactionRepo{s} }
func (s *Store) EFTs() domain.EFTRepository                     { return eftRepo{s} }
func (s *Store) Beneficiaries() domain.BeneficiaryRepository    { return beneficiaryRepo{s} }
func (s *Store) QRRequests() domain.QRRequestRepository         { return qrRequestRepo{s} }
func (s *Store) QRTransactions() domain.QRTransactionRepository { return qrTxRepo{s} }
func (s *Store) UPIHandles() domain.UPIHandleRepository         { return upiRepo{s} }
func (s *Store) IdempotencyKeys() domain.IdempotencyRepository  { return idemRepo{s} }

type accountRepo struct{ s *Store }

func (r accountRepo) Create(ctx context.Context, a *domain.Account) error {
	return r.s.CreateAccount(ctx, a)
}
func (r accountRepo) GetByNumber(ctx context.Context, number string) (*domain.Account, error) {
	return r.s.GetAccountByNumber(ctx, number)
}
func (r accountRepo) Lock(ctx context.Context, number string) (*domain.Account, error) {
	return r.s.LockAccount(ctx, number)
}
func (r accountRepo) Update(ctx context.Context, a *domain.Account) error {
	return r.s.UpdateAccount(ctx, a)
}

type transactionRepo struct{ s *Store }

func (r transactionRepo) Create(ctx context.Context, tx *domain.Transaction) error {
	return r.s.CreateTransaction(ctx, tx)
}
func (r transactionRepo) GetByReference(ctx context.Context, ref string) (*domain.Transaction, error) {
	return r.s.GetTransactionByReference(ctx, ref)
}
func (r transactionRepo) ListByAccount(ctx context.Context, accountNumber string, limit, offset int) ([]*domain.Transaction, error) {
	return r.s.ListTransactionsByAccount(ctx, accountNumber, limit, offset)
}
func (r transactionRepo) UpdateStatus(ctx context.Context, tx *domain.Transaction) error {
	return r.s.UpdateTransactionStatus(ctx, tx)
}

type eftRepo struct{ s *Store }

func (r eftRepo) Create(ctx context.Context, eft *domain.EFTTransaction) error {
	return r.s.CreateEFT(ctx, eft)
}
func (r eftRepo) GetByReference(ctx context.Context, ref string) (*domain.EFTTransaction, error) {
	return r.s.GetEFTByReference(ctx, ref)
}
func (r eftRepo) Update(ctx context.Context, eft *domain.EFTTransaction) error {
	return r.s.UpdateEFT(ctx, eft)
}
func (r eftRepo) ListDue(ctx context.Context, at time.Time, limit int) ([]*domain.EFTTransaction, error) {
	return r.s.ListDueEFTs(ctx, at, limit)
}
func (r eftRepo) ListStaleProcessing(ctx context.Context, cutoff time.Time, limit int) ([]*domain.EFTTransaction, error) {
	return r.s.ListStaleProcessingEFTs(ctx, cutoff, limit)
}

type beneficiaryRepo struct{ s *Store }

func (r beneficiaryRepo) Create(ctx context.Context, b *domain.Beneficiary) error {
	return r.s.CreateBeneficiary(ctx, b)
}
func (r beneficiaryRepo) GetByID(ctx context.Context, id int64) (*domain.Beneficiary, error) {
	return r.s.GetBeneficiaryByID(ctx, id)
}
func (r beneficiaryRepo) ListByCustomer(ctx context.Context, customerID string) ([]*domain.Beneficiary, error) {
	return r.s.ListBeneficiariesByCustomer(ctx, customerID)
}
func (r beneficiaryRepo) Update(ctx context.Context, b *domain.Beneficiary) error {
	return r.s.UpdateBeneficiary(ctx, b)
}

type qrRequestRepo struct{ s *Store }

func (r qrRequestRepo) Create(ctx context.Context, req *domain.QRPaymentRequest) error {
	return r.s.CreateQRRequest(ctx, req)
}
func (r qrRequestRepo) GetByRequestID(ctx context.Context, requestID string) (*domain.QRPaymentRequest, error) {
	return r.s.GetQRRequestByRequestID(ctx, requestID)
}
func (r qrRequestRepo) Update(ctx context.Context, req *domain.QRPaymentRequest) error {
	return r.s.UpdateQRRequest(ctx, req)
}

type qrTxRepo struct{ s *Store }

func (r qrTxRepo) Create(ctx context.Context, q *domain.QRTransaction) error {
	return r.s.CreateQRTransaction(ctx, q)
}
func (r qrTxRepo) GetByReference(ctx context.Context, ref string) (*domain.QRTransaction, error) {
	return r.s.GetQRTransactionByReference(ctx, ref)
}
func (r qrTxRepo) Update(ctx context.Context, q *domain.QRTransaction) error {
	return r.s.UpdateQRTransaction(ctx, q)
}

type upiRepo struct{ s *Store }

func (r upiRepo) Create(ctx context.Context, h *domain.UPIHandle) error {
	return r.s.CreateUPIHandle(ctx, h)
}
func (r upiRepo) GetByHandle(ctx context.Context, handle string) (*domain.UPIHandle, error) {
	return r.s.GetUPIHandle(ctx, handle)
}
func (r upiRepo) ListByOwner(ctx context.Context, ownerID string) ([]*domain.UPIHandle, error) {
	return r.s.ListUPIHandlesByOwner(ctx, ownerID)
}
func (r upiRepo) Update(ctx context.Context, h *domain.UPIHandle) error {
	return r.s.UpdateUPIHandle(ctx, h)
}

type idemRepo struct{ s *Store }

func (r idemRepo) Reserve(ctx context.Context, key, requestHash, ownerID string, now time.Time) (*domain.IdempotencyRecord, bool, error) {
	return r.s.ReserveIdempotencyKey(ctx, key, requestHash, ownerID, now)
}
func (r idemRepo) Finalize(ctx context.Context, key string, status int, body []byte, responseHash string) error {
	return r.s.FinalizeIdempotencyKey(ctx, key, status, body, responseHash)
}
func (r idemRepo) Get(ctx context.Context, key string) (*domain.IdempotencyRecord, error) {
	return r.s.GetIdempotencyKey(ctx, key)
}
