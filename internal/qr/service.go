// Package qr implements the QR and UPI payment-request lifecycle. A request
// gates an eventual ledger transfer; paying it debits the payer and credits
// the receiver in one unit of work, so a failure on the credit leg unwinds
// the debit before the error is reported.
package qr

import (
	"context"
	"log"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/anirudhbs/corebank/internal/clock"
	"github.com/anirudhbs/corebank/internal/domain"
	"github.com/anirudhbs/corebank/internal/ledger"
)

var paymentsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "corebank",
	Subsystem: "qr",
	Name:      "payments_total",
	Help:      "QR/UPI payments partitioned by payment type and result.",
}, []string{"type", "result"})

type Service struct {
	requests domain.QRRequestRepository
	payments domain.QRTransactionRepository
	handles  domain.UPIHandleRepository
	ledger   *ledger.Service
	uow      domain.UnitOfWork
	clock    clock.Clock
	notifier domain.Notifier
}

// NewService wires the payment-request lifecycle. notifier may be nil.
func NewService(requests domain.QRRequestRepository, payments domain.QRTransactionRepository, handles domain.UPIHandleRepository, ldg *ledger.Service, uow domain.UnitOfWork, clk clock.Clock, notifier domain.Notifier) *Service {
	return &Service{
		requests: requests,
		payments: payments,
		handles:  handles,
		ledger:   ldg,
		uow:      uow,
		clock:    clk,
		notifier: notifier,
	}
}

// CreateRequest issues a payment request for the receiver account. A zero
// expiresIn applies the 24h default.
func (s *Service) CreateRequest(ctx context.Context, receiverAccount string, amount int64, expiresIn time.Duration, description string) (*domain.QRPaymentRequest, error) {
	if amount <= 0 {
		return nil, domain.ErrInvalidAmount
	}
	var req *domain.QRPaymentRequest
	err := s.uow.Within(ctx, func(ctx context.Context) error {
		receiver, err := s.ledger.GetAccount(ctx, receiverAccount)
		if err != nil {
			return err
		}
		if !receiver.IsActive() {
			return domain.ErrAccountNotActive
		}
		req = domain.NewQRPaymentRequest(receiverAccount, amount, receiver.Currency, expiresIn, s.clock.Now())
		req.Description = description
		return s.requests.Create(ctx, req)
	})
	if err != nil {
		return nil, err
	}
	return req, nil
}

// GetRequest loads a request, applying lazy expiry: a CREATED request past
// its expiry is transitioned to EXPIRED on read.
func (s *Service) GetRequest(ctx context.Context, requestID string) (*domain.QRPaymentRequest, error) {
	var req *domain.QRPaymentRequest
	err := s.uow.Within(ctx, func(ctx context.Context) error {
		var err error
		req, err = s.requests.GetByRequestID(ctx, requestID)
		if err != nil {
			return err
		}
		if req.Status == domain.QRRequestCreated && req.Expired(s.clock.Now()) {
			if err := req.MarkExpired(); err != nil {
				return err
			}
			return s.requests.Update(ctx, req)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return req, nil
}

// CancelRequest cancels a CREATED request. No funds have moved yet, so this
// is a pure state transition.
func (s *Service) CancelRequest(ctx context.Context, requestID string) (*domain.QRPaymentRequest, error) {
	var req *domain.QRPaymentRequest
	err := s.uow.Within(ctx, func(ctx context.Context) error {
		var err error
		req, err = s.requests.GetByRequestID(ctx, requestID)
		if err != nil {
			return err
		}
		if err := req.CheckPayable(s.clock.Now()); err != nil {
			return err
		}
		if err := req.MarkCancelled(); err != nil {
			return err
		}
		return s.requests.Update(ctx, req)
	})
	if err != nil {
		return nil, err
	}
	return req, nil
}

// PayRequest settles a payment request from the payer account.
func (s *Service) PayRequest(ctx context.Context, requestID, payerAccount string) (*domain.QRTransaction, error) {
	var payment *domain.QRTransaction
	err := s.uow.Within(ctx, func(ctx context.Context) error {
		req, err := s.requests.GetByRequestID(ctx, requestID)
		if err != nil {
			return err
		}
		now := s.clock.Now()
		if req.Status == domain.QRRequestCreated && req.Expired(now) {
			if err := req.MarkExpired(); err != nil {
				return err
			}
			if err := s.requests.Update(ctx, req); err != nil {
				return err
			}
			return domain.ErrRequestExpired
		}
		if err := req.CheckPayable(now); err != nil {
			return err
		}
		if payerAccount == req.ReceiverAccount {
			return domain.ErrSameAccount
		}

		payment, err = s.settle(ctx, domain.PaymentQRCode, payerAccount, req.ReceiverAccount, req.Amount, requestID)
		if err != nil {
			return err
		}
		if err := req.MarkPaid(payerAccount, now); err != nil {
			return err
		}
		return s.requests.Update(ctx, req)
	})
	if err != nil {
		paymentsTotal.WithLabelValues(string(domain.PaymentQRCode), "failed").Inc()
		return nil, err
	}
	paymentsTotal.WithLabelValues(string(domain.PaymentQRCode), "settled").Inc()
	s.notify(ctx, payment)
	return payment, nil
}

// PayUPI settles a payment addressed to a registered UPI handle.
func (s *Service) PayUPI(ctx context.Context, payerAccount, handle string, amount int64) (*domain.QRTransaction, error) {
	if amount <= 0 {
		return nil, domain.ErrInvalidAmount
	}
	var payment *domain.QRTransaction
	err := s.uow.Within(ctx, func(ctx context.Context) error {
		h, err := s.handles.GetByHandle(ctx, handle)
		if err != nil {
			return err
		}
		if payerAccount == h.AccountNumber {
			return domain.ErrSameAccount
		}
		payment, err = s.settle(ctx, domain.PaymentUPI, payerAccount, h.AccountNumber, amount, "")
		return err
	})
	if err != nil {
		paymentsTotal.WithLabelValues(string(domain.PaymentUPI), "failed").Inc()
		return nil, err
	}
	paymentsTotal.WithLabelValues(string(domain.PaymentUPI), "settled").Inc()
	s.notify(ctx, payment)
	return payment, nil
}

// settle runs the shared settlement path: the ledger transfer plus the
// payment record walking INITIATED through SETTLED, all inside the caller's
// unit of work. Any leg failing unwinds the whole payment.
func (s *Service) settle(ctx context.Context, paymentType domain.PaymentType, payer, receiver string, amount int64, requestID string) (*domain.QRTransaction, error) {
	now := s.clock.Now()
	payment := domain.NewQRTransaction(paymentType, payer, receiver, amount, "", now)
	payment.RequestID = requestID

	debitTx, creditTx, err := s.ledger.Transfer(ctx, payer, receiver, amount, "qr_payment", "payment "+payment.Reference)
	if err != nil {
		return nil, err
	}
	payment.Currency = debitTx.Currency

	if err := payment.Authorize(now); err != nil {
		return nil, err
	}
	if err := payment.Capture(now); err != nil {
		return nil, err
	}
	if err := payment.Settle(debitTx.Reference, creditTx.Reference, now); err != nil {
		return nil, err
	}
	if err := s.payments.Create(ctx, payment); err != nil {
		return nil, err
	}
	return payment, nil
}

func (s *Service) GetPayment(ctx context.Context, reference string) (*domain.QRTransaction, error) {
	return s.payments.GetByReference(ctx, reference)
}

// RegisterHandle maps a UPI identifier to an account. The first handle an
// owner registers becomes primary; marking a later handle primary demotes
// the previous one, so exactly one handle per owner is primary.
func (s *Service) RegisterHandle(ctx context.Context, handle, ownerID, accountNumber string, primary bool) (*domain.UPIHandle, error) {
	var h *domain.UPIHandle
	err := s.uow.Within(ctx, func(ctx context.Context) error {
		acct, err := s.ledger.GetAccount(ctx, accountNumber)
		if err != nil {
			return err
		}
		if !acct.IsActive() {
			return domain.ErrAccountNotActive
		}
		existing, err := s.handles.ListByOwner(ctx, ownerID)
		if err != nil {
			return err
		}
		if len(existing) == 0 {
			primary = true
		}
		h = &domain.UPIHandle{
			Handle:        handle,
			OwnerID:       ownerID,
			AccountNumber: accountNumber,
			Primary:       primary,
			CreatedAt:     s.clock.Now(),
		}
		if err := s.handles.Create(ctx, h); err != nil {
			return err
		}
		if primary {
			return s.demoteOthers(ctx, existing, handle)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return h, nil
}

// SetPrimaryHandle makes the given handle the owner's primary mapping.
func (s *Service) SetPrimaryHandle(ctx context.Context, ownerID, handle string) error {
	return s.uow.Within(ctx, func(ctx context.Context) error {
		h, err := s.handles.GetByHandle(ctx, handle)
		if err != nil {
			return err
		}
		if h.OwnerID != ownerID {
			return domain.ErrHandleNotFound
		}
		existing, err := s.handles.ListByOwner(ctx, ownerID)
		if err != nil {
			return err
		}
		if err := s.demoteOthers(ctx, existing, handle); err != nil {
			return err
		}
		h.Primary = true
		return s.handles.Update(ctx, h)
	})
}

func (s *Service) demoteOthers(ctx context.Context, owned []*domain.UPIHandle, keep string) error {
	for _, other := range owned {
		if other.Handle == keep || !other.Primary {
			continue
		}
		other.Primary = false
		if err := s.handles.Update(ctx, other); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) ListHandles(ctx context.Context, ownerID string) ([]*domain.UPIHandle, error) {
	return s.handles.ListByOwner(ctx, ownerID)
}

func (s *Service) notify(ctx context.Context, payment *domain.QRTransaction) {
	if s.notifier == nil || payment == nil {
		return
	}
	ev := domain.SettlementEvent{
		Kind:        "qr",
		Reference:   payment.Reference,
		Source:      payment.PayerAccount,
		Destination: payment.ReceiverAccount,
		Amount:      payment.Amount,
		Currency:    payment.Currency,
		SettledAt:   payment.UpdatedAt,
	}
	if payment.Type == domain.PaymentUPI {
		ev.Kind = "upi"
	}
	if err := s.notifier.SettlementCompleted(ctx, ev); err != nil {
		log.Printf("qr: settlement notification for %s failed: %v", payment.Reference, err)
	}
}
