package domain

import "time"

// AccountStatus is the closed set of account lifecycle states. Accounts are
// never deleted; they transition to CLOSED or SUSPENDED instead.
type AccountStatus string

const (
	AccountActive    AccountStatus = "ACTIVE"
	AccountClosed    AccountStatus = "CLOSED"
	AccountSuspended AccountStatus = "SUSPENDED"
	AccountDormant   AccountStatus = "DORMANT"
)

var accountTransitions = map[AccountStatus][]AccountStatus{
	AccountActive:    {AccountSuspended, AccountDormant, AccountClosed},
	AccountSuspended: {AccountActive, AccountClosed},
	AccountDormant:   {AccountActive, AccountClosed},
	AccountClosed:    {},
}

func (s AccountStatus) CanTransitionTo(next AccountStatus) bool {
	for _, allowed := range accountTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Account holds the balance state of a single ledger account. All amounts are
// int64 minor units (paise). Balance and AvailableBalance may only be mutated
// through the ledger credit/debit operations.
type Account struct {
	ID               int64         `json:"id"`
	AccountNumber    string        `json:"account_number"`
	Currency         string        `json:"currency"`
	Balance          int64         `json:"balance"`
	AvailableBalance int64         `json:"available_balance"`
	Status           AccountStatus `json:"status"`
	MinimumBalance   int64         `json:"minimum_balance"`
	CreatedAt        time.Time     `json:"created_at"`
	LastActivityAt   time.Time     `json:"last_activity_at"`
}

// NewAccount constructs an account with zero balances in ACTIVE status.
func NewAccount(number, currency string, minimumBalance int64, now time.Time) *Account {
	return &Account{
		AccountNumber:  number,
		Currency:       currency,
		Status:         AccountActive,
		MinimumBalance: minimumBalance,
		CreatedAt:      now,
		LastActivityAt: now,
	}
}

func (a *Account) IsActive() bool {
	return a.Status == AccountActive
}

// CanDebit reports whether a debit of amount leaves the available balance at
// or above the minimum-balance floor.
func (a *Account) CanDebit(amount int64) bool {
	return a.AvailableBalance-amount >= a.MinimumBalance && a.AvailableBalance-amount >= 0
}

// ApplyCredit increases both balances. Callers must have validated amount > 0.
func (a *Account) ApplyCredit(amount int64, now time.Time) {
	a.Balance += amount
	a.AvailableBalance += amount
	a.LastActivityAt = now
}

// ApplyDebit decreases both balances. Callers must have validated CanDebit.
func (a *Account) ApplyDebit(amount int64, now time.Time) {
	a.Balance -= amount
	a.AvailableBalance -= amount
	a.LastActivityAt = now
}

// CheckInvariant verifies 0 <= availableBalance <= balance.
func (a *Account) CheckInvariant() error {
	if a.AvailableBalance < 0 || a.AvailableBalance > a.Balance {
		return ErrBalanceInvariant
	}
	return nil
}
