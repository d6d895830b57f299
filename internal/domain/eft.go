package domain

import "time"

// Rail identifies the external settlement rail.
type Rail string

const (
	RailNEFT Rail = "NEFT"
	RailRTGS Rail = "RTGS"
	RailIMPS Rail = "IMPS"
)

func (r Rail) Valid() bool {
	return r == RailNEFT || r == RailRTGS || r == RailIMPS
}

// Deferred reports whether the rail settles in a scheduled batch window
// rather than in the submitting operation.
func (r Rail) Deferred() bool {
	return r == RailNEFT
}

// Amount bounds per rail, in minor units.
const (
	NEFTMinAmount = 100             // 1.00
	NEFTMaxAmount = 1_000_000_000   // 10,000,000.00
	RTGSMinAmount = 20_000_000      // 200,000.00
	RTGSMaxAmount = 100_000_000_000 // 1,000,000,000.00
	IMPSMinAmount = 100             // 1.00
	IMPSMaxAmount = 50_000_000      // 500,000.00
)

// CheckAmount validates the rail's amount bounds.
func (r Rail) CheckAmount(amount int64) error {
	var min, max int64
	switch r {
	case RailNEFT:
		min, max = NEFTMinAmount, NEFTMaxAmount
	case RailRTGS:
		min, max = RTGSMinAmount, RTGSMaxAmount
	case RailIMPS:
		min, max = IMPSMinAmount, IMPSMaxAmount
	default:
		return ErrUnknownRail
	}
	if amount < min || amount > max {
		return ErrAmountOutOfRange
	}
	return nil
}

type EFTStatus string

const (
	EFTPending    EFTStatus = "PENDING"
	EFTQueued     EFTStatus = "QUEUED"
	EFTProcessing EFTStatus = "PROCESSING"
	EFTCompleted  EFTStatus = "COMPLETED"
	EFTFailed     EFTStatus = "FAILED"
	EFTCancelled  EFTStatus = "CANCELLED"
)

var eftTransitions = map[EFTStatus][]EFTStatus{
	EFTPending:    {EFTQueued, EFTProcessing, EFTCancelled},
	EFTQueued:     {EFTProcessing, EFTCancelled},
	EFTProcessing: {EFTCompleted, EFTFailed},
	EFTCompleted:  {},
	EFTFailed:     {},
	EFTCancelled:  {},
}

func (s EFTStatus) CanTransitionTo(next EFTStatus) bool {
	for _, allowed := range eftTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// EFTTransaction is an external funds transfer to a registered beneficiary.
// It transitions past PENDING only after its linked debit transaction has
// completed against the source account.
type EFTTransaction struct {
	ID                  int64     `json:"id"`
	Reference           string    `json:"reference"`
	Rail                Rail      `json:"rail"`
	SourceAccount       string    `json:"source_account"`
	BeneficiaryID       int64     `json:"beneficiary_id"`
	Amount              int64     `json:"amount"`
	Charges             int64     `json:"charges"`
	TotalAmount         int64     `json:"total_amount"`
	Currency            string    `json:"currency"`
	Description         string    `json:"description,omitempty"`
	Status              EFTStatus `json:"status"`
	FailureReason       string    `json:"failure_reason,omitempty"`
	BatchID             string    `json:"batch_id,omitempty"`
	ScheduledAt         time.Time `json:"scheduled_at,omitzero"`
	EstimatedCompletion time.Time `json:"estimated_completion,omitzero"`
	ActualCompletion    time.Time `json:"actual_completion,omitzero"`
	DebitReference      string    `json:"debit_reference,omitempty"`
	ReversalReference   string    `json:"reversal_reference,omitempty"`
	CreatedAt           time.Time `json:"created_at"`
	UpdatedAt           time.Time `json:"updated_at"`
}

// NewEFTTransaction constructs a PENDING transfer with a rail-prefixed
// reference and totalAmount = amount + charges.
func NewEFTTransaction(rail Rail, sourceAccount string, beneficiaryID int64, amount, charges int64, currency string, now time.Time) *EFTTransaction {
	return &EFTTransaction{
		Reference:     NewEFTRef(rail, now),
		Rail:          rail,
		SourceAccount: sourceAccount,
		BeneficiaryID: beneficiaryID,
		Amount:        amount,
		Charges:       charges,
		TotalAmount:   amount + charges,
		Currency:      currency,
		Status:        EFTPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

func (e *EFTTransaction) transition(next EFTStatus, now time.Time) error {
	if !e.Status.CanTransitionTo(next) {
		return ErrInvalidTransition
	}
	e.Status = next
	e.UpdatedAt = now
	return nil
}

// Queue places the transfer into a batch window. Requires the linked debit to
// be recorded first.
func (e *EFTTransaction) Queue(batchID string, window time.Time, now time.Time) error {
	if e.DebitReference == "" {
		return ErrDebitNotSettled
	}
	if err := e.transition(EFTQueued, now); err != nil {
		return err
	}
	e.BatchID = batchID
	e.ScheduledAt = window
	e.EstimatedCompletion = window
	return nil
}

func (e *EFTTransaction) StartProcessing(now time.Time) error {
	if e.DebitReference == "" {
		return ErrDebitNotSettled
	}
	return e.transition(EFTProcessing, now)
}

func (e *EFTTransaction) Complete(now time.Time) error {
	if err := e.transition(EFTCompleted, now); err != nil {
		return err
	}
	e.ActualCompletion = now
	return nil
}

func (e *EFTTransaction) Fail(reason string, now time.Time) error {
	if err := e.transition(EFTFailed, now); err != nil {
		return err
	}
	e.FailureReason = reason
	return nil
}

func (e *EFTTransaction) Cancel(now time.Time) error {
	return e.transition(EFTCancelled, now)
}
