// Package memory implements every repository against process memory. It is
// the store used by the unit tests and by the API server when no database is
// configured. A single mutex serializes all mutations; a unit of work takes
// a snapshot up front and restores it if the wrapped function fails, so the
// commit/rollback semantics match the Postgres store.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/anirudhbs/corebank/internal/domain"
)

type txKey struct{}

func inTx(ctx context.Context) bool {
	v, _ := ctx.Value(txKey{}).(bool)
	return v
}

type Store struct {
	mu sync.Mutex

	accounts      map[string]*domain.Account
	transactions  map[string]*domain.Transaction
	accountTxRefs map[string][]string
	efts          map[string]*domain.EFTTransaction
	beneficiaries map[int64]*domain.Beneficiary
	qrRequests    map[string]*domain.QRPaymentRequest
	qrTxns        map[string]*domain.QRTransaction
	handles       map[string]*domain.UPIHandle
	idempotency   map[string]*domain.IdempotencyRecord

	nextID map[string]int64
}

func NewStore() *Store {
	return &Store{
		accounts:      make(map[string]*domain.Account),
		transactions:  make(map[string]*domain.Transaction),
		accountTxRefs: make(map[string][]string),
		efts:          make(map[string]*domain.EFTTransaction),
		beneficiaries: make(map[int64]*domain.Beneficiary),
		qrRequests:    make(map[string]*domain.QRPaymentRequest),
		qrTxns:        make(map[string]*domain.QRTransaction),
		handles:       make(map[string]*domain.UPIHandle),
		idempotency:   make(map[string]*domain.IdempotencyRecord),
		nextID:        make(map[string]int64),
	}
}

func (s *Store) nextFor(entity string) int64 {
	s.nextID[entity]++
	return s.nextID[entity]
}

// Within implements domain.UnitOfWork. Nested calls join the enclosing unit
// of work; the outermost call owns the lock and the snapshot.
func (s *Store) Within(ctx context.Context, fn func(ctx context.Context) error) error {
	if inTx(ctx) {
		return fn(ctx)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := s.snapshot()
	if err := fn(context.WithValue(ctx, txKey{}, true)); err != nil {
		s.restore(snap)
		return err
	}
	return nil
}

// run executes fn under the store lock unless the ctx is already inside a
// unit of work, which holds the lock for its whole extent.
func (s *Store) run(ctx context.Context, fn func() error) error {
	if inTx(ctx) {
		return fn()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn()
}

type snapshot struct {
	accounts      map[string]*domain.Account
	transactions  map[string]*domain.Transaction
	accountTxRefs map[string][]string
	efts          map[string]*domain.EFTTransaction
	beneficiaries map[int64]*domain.Beneficiary
	qrRequests    map[string]*domain.QRPaymentRequest
	qrTxns        map[string]*domain.QRTransaction
	handles       map[string]*domain.UPIHandle
	idempotency   map[string]*domain.IdempotencyRecord
	nextID        map[string]int64
}

func (s *Store) snapshot() snapshot {
	snap := snapshot{
		accounts:      make(map[string]*domain.Account, len(s.accounts)),
		transactions:  make(map[string]*domain.Transaction, len(s.transactions)),
		accountTxRefs: make(map[string][]string, len(s.accountTxRefs)),
		efts:          make(map[string]*domain.EFTTransaction, len(s.efts)),
		beneficiaries: make(map[int64]*domain.Beneficiary, len(s.beneficiaries)),
		qrRequests:    make(map[string]*domain.QRPaymentRequest, len(s.qrRequests)),
		qrTxns:        make(map[string]*domain.QRTransaction, len(s.qrTxns)),
		handles:       make(map[string]*domain.UPIHandle, len(s.handles)),
		idempotency:   make(map[string]*domain.IdempotencyRecord, len(s.idempotency)),
		nextID:        make(map[string]int64, len(s.nextID)),
	}
	for k, v := range s.accounts {
		cp := *v
		snap.accounts[k] = &cp
	}
	for k, v := range s.transactions {
		cp := *v
		snap.transactions[k] = &cp
	}
	for k, v := range s.accountTxRefs {
		snap.accountTxRefs[k] = append([]string(nil), v...)
	}
	for k, v := range s.efts {
		cp := *v
		snap.efts[k] = &cp
	}
	for k, v := range s.beneficiaries {
		cp := *v
		snap.beneficiaries[k] = &cp
	}
	for k, v := range s.qrRequests {
		cp := *v
		snap.qrRequests[k] = &cp
	}
	for k, v := range s.qrTxns {
		cp := *v
		snap.qrTxns[k] = &cp
	}
	for k, v := range s.handles {
		cp := *v
		snap.handles[k] = &cp
	}
	for k, v := range s.idempotency {
		cp := *v
		cp.ResponseBody = append([]byte(nil), v.ResponseBody...)
		snap.idempotency[k] = &cp
	}
	for k, v := range s.nextID {
		snap.nextID[k] = v
	}
	return snap
}

func (s *Store) restore(snap snapshot) {
	s.accounts = snap.accounts
	s.transactions = snap.transactions
	s.accountTxRefs = snap.accountTxRefs
	s.efts = snap.efts
	s.beneficiaries = snap.beneficiaries
	s.qrRequests = snap.qrRequests
	s.qrTxns = snap.qrTxns
	s.handles = snap.handles
	s.idempotency = snap.idempotency
	s.nextID = snap.nextID
}

// --- AccountRepository ---

func (s *Store) CreateAccount(ctx context.Context, account *domain.Account) error {
	return s.run(ctx, func() error {
		account.ID = s.nextFor("account")
		cp := *account
		s.accounts[account.AccountNumber] = &cp
		return nil
	})
}

func (s *Store) GetAccountByNumber(ctx context.Context, number string) (*domain.Account, error) {
	var out *domain.Account
	err := s.run(ctx, func() error {
		acct, ok := s.accounts[number]
		if !ok {
			return domain.ErrAccountNotFound
		}
		cp := *acct
		out = &cp
		return nil
	})
	return out, err
}

// LockAccount behaves like GetAccountByNumber; the store mutex already
// serializes the enclosing unit of work.
func (s *Store) LockAccount(ctx context.Context, number string) (*domain.Account, error) {
	return s.GetAccountByNumber(ctx, number)
}

func (s *Store) UpdateAccount(ctx context.Context, account *domain.Account) error {
	return s.run(ctx, func() error {
		if _, ok := s.accounts[account.AccountNumber]; !ok {
			return domain.ErrAccountNotFound
		}
		cp := *account
		s.accounts[account.AccountNumber] = &cp
		return nil
	})
}

// --- TransactionRepository ---

func (s *Store) CreateTransaction(ctx context.Context, tx *domain.Transaction) error {
	return s.run(ctx, func() error {
		tx.ID = s.nextFor("transaction")
		cp := *tx
		s.transactions[tx.Reference] = &cp
		s.accountTxRefs[tx.AccountNumber] = append(s.accountTxRefs[tx.AccountNumber], tx.Reference)
		return nil
	})
}

func (s *Store) GetTransactionByReference(ctx context.Context, reference string) (*domain.Transaction, error) {
	var out *domain.Transaction
	err := s.run(ctx, func() error {
		tx, ok := s.transactions[reference]
		if !ok {
			return domain.ErrTransactionNotFound
		}
		cp := *tx
		out = &cp
		return nil
	})
	return out, err
}

func (s *Store) ListTransactionsByAccount(ctx context.Context, accountNumber string, limit, offset int) ([]*domain.Transaction, error) {
	var out []*domain.Transaction
	err := s.run(ctx, func() error {
		refs := s.accountTxRefs[accountNumber]
		// Newest first.
		for i := len(refs) - 1 - offset; i >= 0 && len(out) < limit; i-- {
			cp := *s.transactions[refs[i]]
			out = append(out, &cp)
		}
		return nil
	})
	return out, err
}

func (s *Store) UpdateTransactionStatus(ctx context.Context, tx *domain.Transaction) error {
	return s.run(ctx, func() error {
		stored, ok := s.transactions[tx.Reference]
		if !ok {
			return domain.ErrTransactionNotFound
		}
		stored.Status = tx.Status
		stored.FailureReason = tx.FailureReason
		stored.UpdatedAt = tx.UpdatedAt
		return nil
	})
}

// --- EFTRepository ---

func (s *Store) CreateEFT(ctx context.Context, eft *domain.EFTTransaction) error {
	return s.run(ctx, func() error {
		eft.ID = s.nextFor("eft")
		cp := *eft
		s.efts[eft.Reference] = &cp
		return nil
	})
}

func (s *Store) GetEFTByReference(ctx context.Context, reference string) (*domain.EFTTransaction, error) {
	var out *domain.EFTTransaction
	err := s.run(ctx, func() error {
		eft, ok := s.efts[reference]
		if !ok {
			return domain.ErrTransferNotFound
		}
		cp := *eft
		out = &cp
		return nil
	})
	return out, err
}

func (s *Store) UpdateEFT(ctx context.Context, eft *domain.EFTTransaction) error {
	return s.run(ctx, func() error {
		if _, ok := s.efts[eft.Reference]; !ok {
			return domain.ErrTransferNotFound
		}
		cp := *eft
		s.efts[eft.Reference] = &cp
		return nil
	})
}

func (s *Store) ListDueEFTs(ctx context.Context, at time.Time, limit int) ([]*domain.EFTTransaction, error) {
	var out []*domain.EFTTransaction
	err := s.run(ctx, func() error {
		for _, eft := range s.efts {
			if eft.Status == domain.EFTQueued && !eft.ScheduledAt.After(at) {
				cp := *eft
				out = append(out, &cp)
			}
		}
		sort.Slice(out, func(i, j int) bool { return out[i].ScheduledAt.Before(out[j].ScheduledAt) })
		if limit > 0 && len(out) > limit {
			out = out[:limit]
		}
		return nil
	})
	return out, err
}

func (s *Store) ListStaleProcessingEFTs(ctx context.Context, cutoff time.Time, limit int) ([]*domain.EFTTransaction, error) {
	var out []*domain.EFTTransaction
	err := s.run(ctx, func() error {
		for _, eft := range s.efts {
			if eft.Status == domain.EFTProcessing && !eft.UpdatedAt.After(cutoff) {
				cp := *eft
				out = append(out, &cp)
			}
		}
		sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.Before(out[j].UpdatedAt) })
		if limit > 0 && len(out) > limit {
			out = out[:limit]
		}
		return nil
	})
	return out, err
}

// --- BeneficiaryRepository ---

func (s *Store) CreateBeneficiary(ctx context.Context, b *domain.Beneficiary) error {
	return s.run(ctx, func() error {
		b.ID = s.nextFor("beneficiary")
		cp := *b
		s.beneficiaries[b.ID] = &cp
		return nil
	})
}

func (s *Store) GetBeneficiaryByID(ctx context.Context, id int64) (*domain.Beneficiary, error) {
	var out *domain.Beneficiary
	err := s.run(ctx, func() error {
		b, ok := s.beneficiaries[id]
		if !ok {
			return domain.ErrBeneficiaryNotFound
		}
		cp := *b
		out = &cp
		return nil
	})
	return out, err
}

func (s *Store) ListBeneficiariesByCustomer(ctx context.Context, customerID string) ([]*domain.Beneficiary, error) {
	var out []*domain.Beneficiary
	err := s.run(ctx, func() error {
		for _, b := range s.beneficiaries {
			if b.CustomerID == customerID {
				cp := *b
				out = append(out, &cp)
			}
		}
		sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
		return nil
	})
	return out, err
}

func (s *Store) UpdateBeneficiary(ctx context.Context, b *domain.Beneficiary) error {
	return s.run(ctx, func() error {
		if _, ok := s.beneficiaries[b.ID]; !ok {
			return domain.ErrBeneficiaryNotFound
		}
		cp := *b
		s.beneficiaries[b.ID] = &cp
		return nil
	})
}

// --- QRRequestRepository ---

func (s *Store) CreateQRRequest(ctx context.Context, r *domain.QRPaymentRequest) error {
	return s.run(ctx, func() error {
		r.ID = s.nextFor("qr_request")
		cp := *r
		s.qrRequests[r.RequestID] = &cp
		return nil
	})
}

func (s *Store) GetQRRequestByRequestID(ctx context.Context, requestID string) (*domain.QRPaymentRequest, error) {
	var out *domain.QRPaymentRequest
	err := s.run(ctx, func() error {
		r, ok := s.qrRequests[requestID]
		if !ok {
			return domain.ErrRequestNotFound
		}
		cp := *r
		out = &cp
		return nil
	})
	return out, err
}

func (s *Store) UpdateQRRequest(ctx context.Context, r *domain.QRPaymentRequest) error {
	return s.run(ctx, func() error {
		if _, ok := s.qrRequests[r.RequestID]; !ok {
			return domain.ErrRequestNotFound
		}
		cp := *r
		s.qrRequests[r.RequestID] = &cp
		return nil
	})
}

// --- QRTransactionRepository ---

func (s *Store) CreateQRTransaction(ctx context.Context, q *domain.QRTransaction) error {
	return s.run(ctx, func() error {
		q.ID = s.nextFor("qr_transaction")
		cp := *q
		s.qrTxns[q.Reference] = &cp
		return nil
	})
}

func (s *Store) GetQRTransactionByReference(ctx context.Context, reference string) (*domain.QRTransaction, error) {
	var out *domain.QRTransaction
	err := s.run(ctx, func() error {
		q, ok := s.qrTxns[reference]
		if !ok {
			return domain.ErrTransactionNotFound
		}
		cp := *q
		out = &cp
		return nil
	})
	return out, err
}

func (s *Store) UpdateQRTransaction(ctx context.Context, q *domain.QRTransaction) error {
	return s.run(ctx, func() error {
		if _, ok := s.qrTxns[q.Reference]; !ok {
			return domain.ErrTransactionNotFound
		}
		cp := *q
		s.qrTxns[q.Reference] = &cp
		return nil
	})
}

// --- UPIHandleRepository ---

func (s *Store) CreateUPIHandle(ctx context.Context, h *domain.UPIHandle) error {
	return s.run(ctx, func() error {
		if _, ok := s.handles[h.Handle]; ok {
			return domain.ErrHandleTaken
		}
		h.ID = s.nextFor("upi_handle")
		cp := *h
		s.handles[h.Handle] = &cp
		return nil
	})
}

func (s *Store) GetUPIHandle(ctx context.Context, handle string) (*domain.UPIHandle, error) {
	var out *domain.UPIHandle
	err := s.run(ctx, func() error {
		h, ok := s.handles[handle]
		if !ok {
			return domain.ErrHandleNotFound
		}
		cp := *h
		out = &cp
		return nil
	})
	return out, err
}

func (s *Store) ListUPIHandlesByOwner(ctx context.Context, ownerID string) ([]*domain.UPIHandle, error) {
	var out []*domain.UPIHandle
	err := s.run(ctx, func() error {
		for _, h := range s.handles {
			if h.OwnerID == ownerID {
				cp := *h
				out = append(out, &cp)
			}
		}
		sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
		return nil
	})
	return out, err
}

func (s *Store) UpdateUPIHandle(ctx context.Context, h *domain.UPIHandle) error {
	return s.run(ctx, func() error {
		if _, ok := s.handles[h.Handle]; !ok {
			return domain.ErrHandleNotFound
		}
		cp := *h
		s.handles[h.Handle] = &cp
		return nil
	})
}

// --- IdempotencyRepository ---

func (s *Store) ReserveIdempotencyKey(ctx context.Context, key, requestHash, ownerID string, now time.Time) (*domain.IdempotencyRecord, bool, error) {
	var rec *domain.IdempotencyRecord
	var created bool
	err := s.run(ctx, func() error {
		if existing, ok := s.idempotency[key]; ok {
			cp := *existing
			cp.ResponseBody = append([]byte(nil), existing.ResponseBody...)
			rec = &cp
			return nil
		}
		stored := &domain.IdempotencyRecord{
			Key:         key,
			RequestHash: requestHash,
			OwnerID:     ownerID,
			CreatedAt:   now,
		}
		s.idempotency[key] = stored
		cp := *stored
		rec = &cp
		created = true
		return nil
	})
	return rec, created, err
}

func (s *Store) FinalizeIdempotencyKey(ctx context.Context, key string, status int, body []byte, responseHash string) error {
	return s.run(ctx, func() error {
		rec, ok := s.idempotency[key]
		if !ok {
			return domain.ErrIdempotencyInProgress
		}
		rec.ResponseStatus = status
		rec.ResponseBody = append([]byte(nil), body...)
		rec.ResponseHash = responseHash
		rec.Completed = true
		return nil
	})
}

func (s *Store) GetIdempotencyKey(ctx context.Context, key string) (*domain.IdempotencyRecord, error) {
	var out *domain.IdempotencyRecord
	err := s.run(ctx, func() error {
		rec, ok := s.idempotency[key]
		if !ok {
			return domain.ErrIdempotencyInProgress
		}
		cp := *rec
		cp.ResponseBody = append([]byte(nil), rec.ResponseBody...)
		out = &cp
		return nil
	})
	return out, err
}
