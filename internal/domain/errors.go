package domain

import "errors"

// Sentinel errors form the machine-checkable error taxonomy. Callers match
// with errors.Is; the message is the stable reason string surfaced to users.
var (
	ErrAccountNotFound        = errors.New("account not found")
	ErrAccountNotActive       = errors.New("account not active")
	ErrInsufficientFunds      = errors.New("insufficient funds")
	ErrInvalidAmount          = errors.New("amount must be positive")
	ErrAmountOutOfRange       = errors.New("amount outside rail bounds")
	ErrSameAccount            = errors.New("source and destination must differ")
	ErrBalanceInvariant       = errors.New("balance invariant violated")
	ErrSnapshotMismatch       = errors.New("balance snapshot inconsistent with amount")
	ErrInvalidTransition      = errors.New("status transition not allowed")
	ErrIdempotencyConflict    = errors.New("idempotency key reused with different payload")
	ErrIdempotencyInProgress  = errors.New("request with this idempotency key is in progress")
	ErrBeneficiaryNotFound    = errors.New("beneficiary not found")
	ErrBeneficiaryNotEligible = errors.New("beneficiary not eligible for transfers")
	ErrUnknownRail            = errors.New("unknown settlement rail")
	ErrDebitNotSettled        = errors.New("linked debit transaction not settled")
	ErrSettlementFailure      = errors.New("settlement failed")
	ErrTransferNotFound       = errors.New("transfer not found")
	ErrTransferNotCancellable = errors.New("transfer can no longer be cancelled")
	ErrTransactionNotFound    = errors.New("transaction not found")
	ErrRequestNotFound        = errors.New("payment request not found")
	ErrRequestExpired         = errors.New("payment request expired")
	ErrRequestAlreadySettled  = errors.New("payment request already settled")
	ErrRequestNotPayable      = errors.New("payment request not payable")
	ErrLegAlreadyLinked       = errors.New("ledger leg already linked")
	ErrHandleNotFound         = errors.New("upi handle not registered")
	ErrHandleTaken            = errors.New("upi handle already registered")
)
