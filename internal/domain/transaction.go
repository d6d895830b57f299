package domain

import "time"

// TransactionType classifies a ledger movement. The type fixes the direction
// of the balance change: credit-direction types increase the account balance,
// debit-direction types decrease it.
type TransactionType string

const (
	TxDebit      TransactionType = "DEBIT"
	TxCredit     TransactionType = "CREDIT"
	TxTransfer   TransactionType = "TRANSFER"
	TxWithdrawal TransactionType = "WITHDRAWAL"
	TxDeposit    TransactionType = "DEPOSIT"
	TxFee        TransactionType = "FEE"
	TxInterest   TransactionType = "INTEREST"
)

// IsCreditDirection reports whether the type increases the account balance.
func (t TransactionType) IsCreditDirection() bool {
	switch t {
	case TxCredit, TxDeposit, TxInterest:
		return true
	default:
		return false
	}
}

type TransactionStatus string

const (
	TxPending    TransactionStatus = "PENDING"
	TxProcessing TransactionStatus = "PROCESSING"
	TxCompleted  TransactionStatus = "COMPLETED"
	TxFailed     TransactionStatus = "FAILED"
	TxCancelled  TransactionStatus = "CANCELLED"
	TxReversed   TransactionStatus = "REVERSED"
)

var transactionTransitions = map[TransactionStatus][]TransactionStatus{
	TxPending:    {TxProcessing, TxFailed, TxCancelled},
	TxProcessing: {TxCompleted, TxFailed, TxCancelled},
	TxCompleted:  {TxReversed},
	TxFailed:     {},
	TxCancelled:  {},
	TxReversed:   {},
}

func (s TransactionStatus) CanTransitionTo(next TransactionStatus) bool {
	for _, allowed := range transactionTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Terminal reports whether the record is immutable. COMPLETED admits exactly
// one further transition, to REVERSED.
func (s TransactionStatus) Terminal() bool {
	return s == TxFailed || s == TxCancelled || s == TxReversed
}

// Transaction is one row of the append-only ledger. Once COMPLETED or
// REVERSED its amounts and snapshots never change.
type Transaction struct {
	ID            int64             `json:"id"`
	Reference     string            `json:"reference"`
	AccountNumber string            `json:"account_number"`
	Counterparty  string            `json:"counterparty,omitempty"`
	Type          TransactionType   `json:"type"`
	Amount        int64             `json:"amount"`
	Currency      string            `json:"currency"`
	BalanceBefore int64             `json:"balance_before"`
	BalanceAfter  int64             `json:"balance_after"`
	Category      string            `json:"category,omitempty"`
	Description   string            `json:"description,omitempty"`
	Status        TransactionStatus `json:"status"`
	FailureReason string            `json:"failure_reason,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
}

// NewTransaction constructs a PENDING transaction with its reference assigned
// at creation. References are never reassigned.
func NewTransaction(accountNumber string, txType TransactionType, amount int64, currency string, now time.Time) *Transaction {
	return &Transaction{
		Reference:     NewTransactionRef(now),
		AccountNumber: accountNumber,
		Type:          txType,
		Amount:        amount,
		Currency:      currency,
		Status:        TxPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

func (t *Transaction) transition(next TransactionStatus, now time.Time) error {
	if !t.Status.CanTransitionTo(next) {
		return ErrInvalidTransition
	}
	t.Status = next
	t.UpdatedAt = now
	return nil
}

func (t *Transaction) MarkProcessing(now time.Time) error {
	return t.transition(TxProcessing, now)
}

func (t *Transaction) MarkCompleted(now time.Time) error {
	return t.transition(TxCompleted, now)
}

// MarkFailed records the reason alongside the transition. The reason is never
// cleared afterwards.
func (t *Transaction) MarkFailed(reason string, now time.Time) error {
	if err := t.transition(TxFailed, now); err != nil {
		return err
	}
	t.FailureReason = reason
	return nil
}

func (t *Transaction) MarkCancelled(now time.Time) error {
	return t.transition(TxCancelled, now)
}

func (t *Transaction) MarkReversed(now time.Time) error {
	return t.transition(TxReversed, now)
}

// CheckSnapshot verifies balanceAfter = balanceBefore ± amount consistent
// with the transaction type.
func (t *Transaction) CheckSnapshot() error {
	expected := t.BalanceBefore - t.Amount
	if t.Type.IsCreditDirection() {
		expected = t.BalanceBefore + t.Amount
	}
	if t.BalanceAfter != expected {
		return ErrSnapshotMismatch
	}
	return nil
}
