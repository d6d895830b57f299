// Package ledger implements the balance-mutation primitives. Every credit or
// debit pairs the balance change with an append-only transaction record
// carrying before/after snapshots; the two commit atomically inside one unit
// of work.
package ledger

import (
	"context"
	"encoding/json"
	"log"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/anirudhbs/corebank/internal/clock"
	"github.com/anirudhbs/corebank/internal/domain"
)

var movementsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "corebank",
	Subsystem: "ledger",
	Name:      "movements_total",
	Help:      "Ledger movements partitioned by transaction type and result.",
}, []string{"type", "result"})

type Service struct {
	accounts domain.AccountRepository
	ledger   domain.TransactionRepository
	uow      domain.UnitOfWork
	clock    clock.Clock
	auditor  domain.AuditRecorder
}

// NewService wires the ledger primitives. auditor may be nil.
func NewService(accounts domain.AccountRepository, ledger domain.TransactionRepository, uow domain.UnitOfWork, clk clock.Clock, auditor domain.AuditRecorder) *Service {
	return &Service{accounts: accounts, ledger: ledger, uow: uow, clock: clk, auditor: auditor}
}

// Entry describes a single-leg movement against one account.
type Entry struct {
	AccountNumber string
	Amount        int64
	Type          domain.TransactionType
	Category      string
	Counterparty  string
	Description   string
}

// OpenAccount creates an account with zero balances.
func (s *Service) OpenAccount(ctx context.Context, currency string, minimumBalance int64) (*domain.Account, error) {
	now := s.clock.Now()
	acct := domain.NewAccount(domain.NewAccountNumber(now), currency, minimumBalance, now)
	err := s.uow.Within(ctx, func(ctx context.Context) error {
		return s.accounts.Create(ctx, acct)
	})
	if err != nil {
		return nil, err
	}
	return acct, nil
}

func (s *Service) GetAccount(ctx context.Context, number string) (*domain.Account, error) {
	return s.accounts.GetByNumber(ctx, number)
}

func (s *Service) ListTransactions(ctx context.Context, accountNumber string, limit, offset int) ([]*domain.Transaction, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.ledger.ListByAccount(ctx, accountNumber, limit, offset)
}

func (s *Service) GetTransaction(ctx context.Context, reference string) (*domain.Transaction, error) {
	return s.ledger.GetByReference(ctx, reference)
}

// Credit increases the account's balances by e.Amount.
func (s *Service) Credit(ctx context.Context, e Entry) (*domain.Transaction, error) {
	if e.Type == "" {
		e.Type = domain.TxCredit
	}
	if !e.Type.IsCreditDirection() {
		return nil, domain.ErrInvalidTransition
	}
	return s.singleLeg(ctx, e)
}

// Debit decreases the account's balances by e.Amount, failing with
// ErrInsufficientFunds if the available balance does not cover it.
func (s *Service) Debit(ctx context.Context, e Entry) (*domain.Transaction, error) {
	if e.Type == "" {
		e.Type = domain.TxDebit
	}
	if e.Type.IsCreditDirection() {
		return nil, domain.ErrInvalidTransition
	}
	return s.singleLeg(ctx, e)
}

func (s *Service) singleLeg(ctx context.Context, e Entry) (*domain.Transaction, error) {
	if e.Amount <= 0 {
		movementsTotal.WithLabelValues(string(e.Type), "rejected").Inc()
		return nil, domain.ErrInvalidAmount
	}
	var out *domain.Transaction
	err := s.uow.Within(ctx, func(ctx context.Context) error {
		acct, err := s.accounts.Lock(ctx, e.AccountNumber)
		if err != nil {
			return err
		}
		if !acct.IsActive() {
			return domain.ErrAccountNotActive
		}
		out, err = s.apply(ctx, acct, e)
		return err
	})
	if err != nil {
		movementsTotal.WithLabelValues(string(e.Type), "failed").Inc()
		return nil, err
	}
	movementsTotal.WithLabelValues(string(e.Type), "completed").Inc()
	return out, nil
}

// apply mutates an already-locked account and appends the paired transaction
// record. Callers run it inside a unit of work.
func (s *Service) apply(ctx context.Context, acct *domain.Account, e Entry) (*domain.Transaction, error) {
	now := s.clock.Now()
	before := snapshotAccount(acct)

	tx := domain.NewTransaction(e.AccountNumber, e.Type, e.Amount, acct.Currency, now)
	tx.Counterparty = e.Counterparty
	tx.Category = e.Category
	tx.Description = e.Description
	tx.BalanceBefore = acct.Balance

	if e.Type.IsCreditDirection() {
		acct.ApplyCredit(e.Amount, now)
	} else {
		if !acct.CanDebit(e.Amount) {
			return nil, domain.ErrInsufficientFunds
		}
		acct.ApplyDebit(e.Amount, now)
	}
	tx.BalanceAfter = acct.Balance

	if err := tx.MarkProcessing(now); err != nil {
		return nil, err
	}
	if err := tx.MarkCompleted(now); err != nil {
		return nil, err
	}
	if err := tx.CheckSnapshot(); err != nil {
		return nil, err
	}
	if err := acct.CheckInvariant(); err != nil {
		return nil, err
	}
	if err := s.accounts.Update(ctx, acct); err != nil {
		return nil, err
	}
	if err := s.ledger.Create(ctx, tx); err != nil {
		return nil, err
	}
	s.audit(ctx, string(e.Type), acct.AccountNumber, before, snapshotAccount(acct))
	return tx, nil
}

// Transfer moves amount between two ledger accounts. Locks are acquired in
// ascending account-number order so concurrent opposite transfers cannot
// deadlock; the debit and credit legs commit together or not at all.
func (s *Service) Transfer(ctx context.Context, from, to string, amount int64, category, description string) (*domain.Transaction, *domain.Transaction, error) {
	if amount <= 0 {
		return nil, nil, domain.ErrInvalidAmount
	}
	if from == to {
		return nil, nil, domain.ErrSameAccount
	}

	var debitTx, creditTx *domain.Transaction
	err := s.uow.Within(ctx, func(ctx context.Context) error {
		first, second := from, to
		if second < first {
			first, second = second, first
		}
		locked := make(map[string]*domain.Account, 2)
		for _, number := range []string{first, second} {
			acct, err := s.accounts.Lock(ctx, number)
			if err != nil {
				return err
			}
			locked[number] = acct
		}
		src, dst := locked[from], locked[to]
		if !src.IsActive() || !dst.IsActive() {
			return domain.ErrAccountNotActive
		}

		var err error
		debitTx, err = s.apply(ctx, src, Entry{
			AccountNumber: from,
			Amount:        amount,
			Type:          domain.TxTransfer,
			Category:      category,
			Counterparty:  to,
			Description:   description,
		})
		if err != nil {
			return err
		}
		creditTx, err = s.apply(ctx, dst, Entry{
			AccountNumber: to,
			Amount:        amount,
			Type:          domain.TxCredit,
			Category:      category,
			Counterparty:  from,
			Description:   description,
		})
		return err
	})
	if err != nil {
		movementsTotal.WithLabelValues(string(domain.TxTransfer), "failed").Inc()
		return nil, nil, err
	}
	movementsTotal.WithLabelValues(string(domain.TxTransfer), "completed").Inc()
	return debitTx, creditTx, nil
}

// Reverse posts a compensating entry for a COMPLETED transaction and marks
// the original REVERSED. The original record is never deleted.
func (s *Service) Reverse(ctx context.Context, reference, reason string) (*domain.Transaction, error) {
	var rev *domain.Transaction
	err := s.uow.Within(ctx, func(ctx context.Context) error {
		orig, err := s.ledger.GetByReference(ctx, reference)
		if err != nil {
			return err
		}
		if orig.Status != domain.TxCompleted {
			return domain.ErrInvalidTransition
		}

		acct, err := s.accounts.Lock(ctx, orig.AccountNumber)
		if err != nil {
			return err
		}

		compType := domain.TxCredit
		if orig.Type.IsCreditDirection() {
			compType = domain.TxDebit
		}
		rev, err = s.apply(ctx, acct, Entry{
			AccountNumber: orig.AccountNumber,
			Amount:        orig.Amount,
			Type:          compType,
			Category:      "reversal",
			Counterparty:  orig.Counterparty,
			Description:   "reversal of " + reference + ": " + reason,
		})
		if err != nil {
			return err
		}

		now := s.clock.Now()
		if err := orig.MarkReversed(now); err != nil {
			return err
		}
		return s.ledger.UpdateStatus(ctx, orig)
	})
	if err != nil {
		movementsTotal.WithLabelValues("REVERSAL", "failed").Inc()
		return nil, err
	}
	movementsTotal.WithLabelValues("REVERSAL", "completed").Inc()
	return rev, nil
}

func (s *Service) audit(ctx context.Context, action, accountNumber string, before, after []byte) {
	if s.auditor == nil {
		return
	}
	ev := domain.AuditEvent{
		ActorID:    actorFrom(ctx),
		Action:     action,
		ObjectType: "ledger_account",
		ObjectID:   accountNumber,
		Before:     before,
		After:      after,
		Result:     "success",
		OccurredAt: s.clock.Now(),
	}
	if err := s.auditor.Record(ctx, ev); err != nil {
		log.Printf("audit record failed for %s on %s: %v", action, accountNumber, err)
	}
}

type actorKey struct{}

// WithActor tags the context with the authenticated caller identity supplied
// by the boundary layer.
func WithActor(ctx context.Context, actorID string) context.Context {
	return context.WithValue(ctx, actorKey{}, actorID)
}

func actorFrom(ctx context.Context) string {
	if id, ok := ctx.Value(actorKey{}).(string); ok && id != "" {
		return id
	}
	return "system"
}

func snapshotAccount(acct *domain.Account) []byte {
	b, _ := json.Marshal(map[string]any{
		"account_number":    acct.AccountNumber,
		"currency":          acct.Currency,
		"balance":           acct.Balance,
		"available_balance": acct.AvailableBalance,
		"status":            acct.Status,
	})
	return b
}
