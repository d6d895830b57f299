package domain

import "time"

type QRRequestStatus string

const (
	QRRequestCreated   QRRequestStatus = "CREATED"
	QRRequestPaid      QRRequestStatus = "PAID"
	QRRequestExpired   QRRequestStatus = "EXPIRED"
	QRRequestFailed    QRRequestStatus = "FAILED"
	QRRequestCancelled QRRequestStatus = "CANCELLED"
)

var qrRequestTransitions = map[QRRequestStatus][]QRRequestStatus{
	QRRequestCreated:   {QRRequestPaid, QRRequestExpired, QRRequestFailed, QRRequestCancelled},
	QRRequestPaid:      {},
	QRRequestExpired:   {},
	QRRequestFailed:    {},
	QRRequestCancelled: {},
}

func (s QRRequestStatus) CanTransitionTo(next QRRequestStatus) bool {
	for _, allowed := range qrRequestTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// DefaultQRExpiry is applied when a request is created without an explicit
// expiry window.
const DefaultQRExpiry = 24 * time.Hour

// QRPaymentRequest gates an eventual ledger transfer to the receiver.
// Expiry is lazy: a request past ExpiresAt is treated as EXPIRED when it is
// next read or paid, not by an active timer.
type QRPaymentRequest struct {
	ID              int64           `json:"id"`
	RequestID       string          `json:"request_id"`
	ReceiverAccount string          `json:"receiver_account"`
	Amount          int64           `json:"amount"`
	Currency        string          `json:"currency"`
	Description     string          `json:"description,omitempty"`
	Status          QRRequestStatus `json:"status"`
	CreatedAt       time.Time       `json:"created_at"`
	ExpiresAt       time.Time       `json:"expires_at"`
	PayerAccount    string          `json:"payer_account,omitempty"`
	PaidAt          time.Time       `json:"paid_at,omitzero"`
}

func NewQRPaymentRequest(receiverAccount string, amount int64, currency string, expiresIn time.Duration, now time.Time) *QRPaymentRequest {
	if expiresIn <= 0 {
		expiresIn = DefaultQRExpiry
	}
	return &QRPaymentRequest{
		RequestID:       NewQRRequestID(now),
		ReceiverAccount: receiverAccount,
		Amount:          amount,
		Currency:        currency,
		Status:          QRRequestCreated,
		CreatedAt:       now,
		ExpiresAt:       now.Add(expiresIn),
	}
}

func (r *QRPaymentRequest) Expired(now time.Time) bool {
	return now.After(r.ExpiresAt)
}

// CheckPayable reports why the request cannot be paid, or nil while it is
// CREATED and unexpired.
func (r *QRPaymentRequest) CheckPayable(now time.Time) error {
	switch r.Status {
	case QRRequestPaid:
		return ErrRequestAlreadySettled
	case QRRequestExpired, QRRequestCancelled, QRRequestFailed:
		return ErrRequestNotPayable
	}
	if r.Expired(now) {
		return ErrRequestExpired
	}
	return nil
}

func (r *QRPaymentRequest) transition(next QRRequestStatus) error {
	if !r.Status.CanTransitionTo(next) {
		return ErrInvalidTransition
	}
	r.Status = next
	return nil
}

func (r *QRPaymentRequest) MarkPaid(payerAccount string, now time.Time) error {
	if err := r.transition(QRRequestPaid); err != nil {
		return err
	}
	r.PayerAccount = payerAccount
	r.PaidAt = now
	return nil
}

func (r *QRPaymentRequest) MarkExpired() error {
	return r.transition(QRRequestExpired)
}

func (r *QRPaymentRequest) MarkCancelled() error {
	return r.transition(QRRequestCancelled)
}

// PaymentType distinguishes the two UPI-style payment methods.
type PaymentType string

const (
	PaymentQRCode PaymentType = "QR_CODE"
	PaymentUPI    PaymentType = "UPI"
)

type QRTransactionStatus string

const (
	QRTxInitiated  QRTransactionStatus = "INITIATED"
	QRTxPending    QRTransactionStatus = "PENDING"
	QRTxAuthorized QRTransactionStatus = "AUTHORIZED"
	QRTxCaptured   QRTransactionStatus = "CAPTURED"
	QRTxSettled    QRTransactionStatus = "SETTLED"
	QRTxFailed     QRTransactionStatus = "FAILED"
	QRTxRefunded   QRTransactionStatus = "REFUNDED"
)

var qrTxTransitions = map[QRTransactionStatus][]QRTransactionStatus{
	QRTxInitiated:  {QRTxPending, QRTxAuthorized, QRTxFailed},
	QRTxPending:    {QRTxAuthorized, QRTxFailed},
	QRTxAuthorized: {QRTxCaptured, QRTxFailed},
	QRTxCaptured:   {QRTxSettled, QRTxFailed},
	QRTxSettled:    {QRTxRefunded},
	QRTxFailed:     {},
	QRTxRefunded:   {},
}

func (s QRTransactionStatus) CanTransitionTo(next QRTransactionStatus) bool {
	for _, allowed := range qrTxTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// QRTransaction records one QR or UPI payment. Once settled it links the
// debit and credit ledger transactions it produced; each link is set once.
type QRTransaction struct {
	ID              int64               `json:"id"`
	Reference       string              `json:"reference"`
	Type            PaymentType         `json:"type"`
	PayerAccount    string              `json:"payer_account"`
	ReceiverAccount string              `json:"receiver_account"`
	Amount          int64               `json:"amount"`
	NetAmount       int64               `json:"net_amount"`
	Currency        string              `json:"currency"`
	Status          QRTransactionStatus `json:"status"`
	RequestID       string              `json:"request_id,omitempty"`
	DebitReference  string              `json:"debit_reference,omitempty"`
	CreditReference string              `json:"credit_reference,omitempty"`
	FailureReason   string              `json:"failure_reason,omitempty"`
	CreatedAt       time.Time           `json:"created_at"`
	UpdatedAt       time.Time           `json:"updated_at"`
}

func NewQRTransaction(paymentType PaymentType, payer, receiver string, amount int64, currency string, now time.Time) *QRTransaction {
	return &QRTransaction{
		Reference:       NewQRTransactionRef(paymentType, now),
		Type:            paymentType,
		PayerAccount:    payer,
		ReceiverAccount: receiver,
		Amount:          amount,
		NetAmount:       amount,
		Currency:        currency,
		Status:          QRTxInitiated,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

func (q *QRTransaction) transition(next QRTransactionStatus, now time.Time) error {
	if !q.Status.CanTransitionTo(next) {
		return ErrInvalidTransition
	}
	q.Status = next
	q.UpdatedAt = now
	return nil
}

func (q *QRTransaction) Authorize(now time.Time) error {
	return q.transition(QRTxAuthorized, now)
}

func (q *QRTransaction) Capture(now time.Time) error {
	return q.transition(QRTxCaptured, now)
}

// Settle records the ledger legs. The debit/credit links are 1:1 set-once.
func (q *QRTransaction) Settle(debitRef, creditRef string, now time.Time) error {
	if q.DebitReference != "" || q.CreditReference != "" {
		return ErrLegAlreadyLinked
	}
	if err := q.transition(QRTxSettled, now); err != nil {
		return err
	}
	q.DebitReference = debitRef
	q.CreditReference = creditRef
	return nil
}

func (q *QRTransaction) Fail(reason string, now time.Time) error {
	if err := q.transition(QRTxFailed, now); err != nil {
		return err
	}
	q.FailureReason = reason
	return nil
}

// UPIHandle maps a UPI identifier to a ledger account. At most one handle per
// owner is marked primary.
type UPIHandle struct {
	ID            int64     `json:"id"`
	Handle        string    `json:"handle"`
	OwnerID       string    `json:"owner_id"`
	AccountNumber string    `json:"account_number"`
	Primary       bool      `json:"primary"`
	CreatedAt     time.Time `json:"created_at"`
}
