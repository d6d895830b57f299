// Package eft settles external funds transfers over the NEFT, RTGS and IMPS
// rails. NEFT debits immediately and settles in the next batch window; RTGS
// and IMPS debit and settle in the same operation. Once a debit has
// committed, every failure path issues a compensating credit before the
// error is reported.
package eft

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/anirudhbs/corebank/internal/clock"
	"github.com/anirudhbs/corebank/internal/domain"
	"github.com/anirudhbs/corebank/internal/ledger"
)

var (
	settlementsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "corebank",
		Subsystem: "eft",
		Name:      "settlements_total",
		Help:      "EFT settlements partitioned by rail and terminal status.",
	}, []string{"rail", "status"})

	batchRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "corebank",
		Subsystem: "eft",
		Name:      "batch_runs_total",
		Help:      "Batch settlement runs partitioned by result.",
	}, []string{"result"})
)

// RailGateway is the external rail collaborator. Dispatch returning nil
// means the beneficiary leg settled.
type RailGateway interface {
	Dispatch(ctx context.Context, eft *domain.EFTTransaction) error
}

// BatchSchedule produces the fixed batch windows for deferred rails.
type BatchSchedule struct {
	Every time.Duration

	// StaleAfter bounds how long a claimed transfer may sit in PROCESSING
	// before a later run re-dispatches it. Zero applies 15 minutes.
	StaleAfter time.Duration
}

// NextWindow returns the first window boundary strictly after now.
func (s BatchSchedule) NextWindow(now time.Time) time.Time {
	every := s.Every
	if every <= 0 {
		every = time.Hour
	}
	return now.Truncate(every).Add(every)
}

func (s BatchSchedule) staleCutoff(now time.Time) time.Time {
	after := s.StaleAfter
	if after <= 0 {
		after = 15 * time.Minute
	}
	return now.Add(-after)
}

type Service struct {
	efts          domain.EFTRepository
	beneficiaries domain.BeneficiaryRepository
	ledger        *ledger.Service
	uow           domain.UnitOfWork
	clock         clock.Clock
	gateway       RailGateway
	schedule      BatchSchedule
	notifier      domain.Notifier
}

// NewService wires the settlement engine. notifier may be nil.
func NewService(efts domain.EFTRepository, beneficiaries domain.BeneficiaryRepository, ldg *ledger.Service, uow domain.UnitOfWork, clk clock.Clock, gateway RailGateway, schedule BatchSchedule, notifier domain.Notifier) *Service {
	return &Service{
		efts:          efts,
		beneficiaries: beneficiaries,
		ledger:        ldg,
		uow:           uow,
		clock:         clk,
		gateway:       gateway,
		schedule:      schedule,
		notifier:      notifier,
	}
}

type SubmitRequest struct {
	SourceAccount string
	BeneficiaryID int64
	Rail          domain.Rail
	Amount        int64
	Description   string
}

// Submit debits amount+charges from the source account as a single ledger
// movement and either queues the transfer for the next batch window (NEFT)
// or settles it in the same operation (RTGS, IMPS). On immediate rails a
// gateway failure after the debit produces a compensating credit and a
// FAILED record; the record is returned alongside the error.
func (s *Service) Submit(ctx context.Context, req SubmitRequest) (*domain.EFTTransaction, error) {
	if !req.Rail.Valid() {
		return nil, domain.ErrUnknownRail
	}
	if req.Amount <= 0 {
		return nil, domain.ErrInvalidAmount
	}
	if err := req.Rail.CheckAmount(req.Amount); err != nil {
		return nil, err
	}

	charges := ChargeFor(req.Rail, req.Amount)
	var eft *domain.EFTTransaction
	err := s.uow.Within(ctx, func(ctx context.Context) error {
		ben, err := s.beneficiaries.GetByID(ctx, req.BeneficiaryID)
		if err != nil {
			return err
		}
		if !ben.Eligible() {
			return domain.ErrBeneficiaryNotEligible
		}

		now := s.clock.Now()
		eft = domain.NewEFTTransaction(req.Rail, req.SourceAccount, req.BeneficiaryID, req.Amount, charges, "", now)
		eft.Description = req.Description

		debitTx, err := s.ledger.Debit(ctx, ledger.Entry{
			AccountNumber: req.SourceAccount,
			Amount:        eft.TotalAmount,
			Type:          domain.TxDebit,
			Category:      "eft_" + string(req.Rail),
			Counterparty:  ben.AccountNumber,
			Description:   req.Description,
		})
		if err != nil {
			return err
		}
		eft.Currency = debitTx.Currency
		eft.DebitReference = debitTx.Reference

		if req.Rail.Deferred() {
			window := s.schedule.NextWindow(now)
			if err := eft.Queue(uuid.NewString(), window, now); err != nil {
				return err
			}
		} else {
			if err := eft.StartProcessing(now); err != nil {
				return err
			}
		}
		return s.efts.Create(ctx, eft)
	})
	if err != nil {
		return nil, err
	}

	if eft.Status == domain.EFTQueued {
		settlementsTotal.WithLabelValues(string(req.Rail), "queued").Inc()
		return eft, nil
	}

	// Immediate rails: the debit is committed, dispatch outside the unit of
	// work and compensate on failure.
	if err := s.gateway.Dispatch(ctx, eft); err != nil {
		return s.failAfterDebit(ctx, eft, err)
	}
	return s.complete(ctx, eft)
}

// Cancel reverses a transfer that has not started processing. The committed
// debit comes back as a compensating credit.
func (s *Service) Cancel(ctx context.Context, reference string) (*domain.EFTTransaction, error) {
	var eft *domain.EFTTransaction
	err := s.uow.Within(ctx, func(ctx context.Context) error {
		var err error
		eft, err = s.efts.GetByReference(ctx, reference)
		if err != nil {
			return err
		}
		if eft.Status != domain.EFTPending && eft.Status != domain.EFTQueued {
			return domain.ErrTransferNotCancellable
		}
		rev, err := s.ledger.Reverse(ctx, eft.DebitReference, "transfer cancelled")
		if err != nil {
			return err
		}
		now := s.clock.Now()
		if err := eft.Cancel(now); err != nil {
			return err
		}
		eft.ReversalReference = rev.Reference
		return s.efts.Update(ctx, eft)
	})
	if err != nil {
		return nil, err
	}
	settlementsTotal.WithLabelValues(string(eft.Rail), "cancelled").Inc()
	return eft, nil
}

func (s *Service) Get(ctx context.Context, reference string) (*domain.EFTTransaction, error) {
	return s.efts.GetByReference(ctx, reference)
}

// RegisterBeneficiary stores an external payee in PENDING_VERIFICATION.
func (s *Service) RegisterBeneficiary(ctx context.Context, customerID, name, accountNumber, routingCode string) (*domain.Beneficiary, error) {
	b := &domain.Beneficiary{
		CustomerID:    customerID,
		Name:          name,
		AccountNumber: accountNumber,
		RoutingCode:   routingCode,
		Status:        domain.BeneficiaryPendingVerification,
		CreatedAt:     s.clock.Now(),
	}
	err := s.uow.Within(ctx, func(ctx context.Context) error {
		return s.beneficiaries.Create(ctx, b)
	})
	if err != nil {
		return nil, err
	}
	return b, nil
}

// VerifyBeneficiary marks the payee verified and ACTIVE.
func (s *Service) VerifyBeneficiary(ctx context.Context, id int64) (*domain.Beneficiary, error) {
	var b *domain.Beneficiary
	err := s.uow.Within(ctx, func(ctx context.Context) error {
		var err error
		b, err = s.beneficiaries.GetByID(ctx, id)
		if err != nil {
			return err
		}
		b.Verified = true
		b.Status = domain.BeneficiaryActive
		return s.beneficiaries.Update(ctx, b)
	})
	if err != nil {
		return nil, err
	}
	return b, nil
}

func (s *Service) ListBeneficiaries(ctx context.Context, customerID string) ([]*domain.Beneficiary, error) {
	return s.beneficiaries.ListByCustomer(ctx, customerID)
}

// SettleDue processes every QUEUED transfer whose batch window has arrived,
// then re-dispatches transfers stranded in PROCESSING by a crashed run. It
// is safe to re-run: items that reached a terminal status are skipped, so an
// already-settled transfer can never settle twice. Re-dispatch is
// at-least-once; the rail dedupes on the transfer reference.
func (s *Service) SettleDue(ctx context.Context, limit int) (int, error) {
	now := s.clock.Now()
	due, err := s.efts.ListDue(ctx, now, limit)
	if err != nil {
		batchRunsTotal.WithLabelValues("error").Inc()
		return 0, err
	}

	processed := 0
	for _, item := range due {
		if err := s.settleOne(ctx, item.Reference); err != nil {
			log.Printf("eft batch: %s settlement failed: %v", item.Reference, err)
			continue
		}
		processed++
	}

	stale, err := s.efts.ListStaleProcessing(ctx, s.schedule.staleCutoff(now), limit)
	if err != nil {
		batchRunsTotal.WithLabelValues("error").Inc()
		return processed, err
	}
	for _, item := range stale {
		if err := s.redispatchOne(ctx, item.Reference); err != nil {
			log.Printf("eft batch: %s re-dispatch failed: %v", item.Reference, err)
			continue
		}
		processed++
	}
	batchRunsTotal.WithLabelValues("ok").Inc()
	return processed, nil
}

func (s *Service) settleOne(ctx context.Context, reference string) error {
	var eft *domain.EFTTransaction
	claimed := false
	err := s.uow.Within(ctx, func(ctx context.Context) error {
		var err error
		eft, err = s.efts.GetByReference(ctx, reference)
		if err != nil {
			return err
		}
		if eft.Status != domain.EFTQueued {
			return nil // already claimed or settled, re-run no-op
		}
		if err := eft.StartProcessing(s.clock.Now()); err != nil {
			return err
		}
		claimed = true
		return s.efts.Update(ctx, eft)
	})
	if err != nil || !claimed {
		return err
	}

	if err := s.gateway.Dispatch(ctx, eft); err != nil {
		_, ferr := s.failAfterDebit(ctx, eft, err)
		return ferr
	}
	_, err = s.complete(ctx, eft)
	return err
}

// redispatchOne recovers a transfer whose claiming run died before
// recording an outcome: dispatch again from the committed PROCESSING state.
func (s *Service) redispatchOne(ctx context.Context, reference string) error {
	eft, err := s.efts.GetByReference(ctx, reference)
	if err != nil {
		return err
	}
	if eft.Status != domain.EFTProcessing {
		return nil
	}

	if err := s.gateway.Dispatch(ctx, eft); err != nil {
		_, ferr := s.failAfterDebit(ctx, eft, err)
		return ferr
	}
	_, err = s.complete(ctx, eft)
	return err
}

// complete marks a PROCESSING transfer COMPLETED, stamps actualCompletion
// and emits the settlement notification.
func (s *Service) complete(ctx context.Context, eft *domain.EFTTransaction) (*domain.EFTTransaction, error) {
	err := s.uow.Within(ctx, func(ctx context.Context) error {
		if err := eft.Complete(s.clock.Now()); err != nil {
			return err
		}
		return s.efts.Update(ctx, eft)
	})
	if err != nil {
		return nil, err
	}
	settlementsTotal.WithLabelValues(string(eft.Rail), "completed").Inc()
	s.notify(ctx, eft)
	return eft, nil
}

// failAfterDebit compensates a committed debit: the reversal credit, the
// REVERSED mark on the original debit and the FAILED status commit together.
// Funds are never left in limbo.
func (s *Service) failAfterDebit(ctx context.Context, eft *domain.EFTTransaction, cause error) (*domain.EFTTransaction, error) {
	reason := cause.Error()
	err := s.uow.Within(ctx, func(ctx context.Context) error {
		rev, err := s.ledger.Reverse(ctx, eft.DebitReference, reason)
		if err != nil {
			return err
		}
		now := s.clock.Now()
		if err := eft.Fail(reason, now); err != nil {
			return err
		}
		eft.ReversalReference = rev.Reference
		return s.efts.Update(ctx, eft)
	})
	if err != nil {
		// The compensating action must never be lost silently.
		log.Printf("eft: COMPENSATION PENDING for %s (debit %s): %v", eft.Reference, eft.DebitReference, err)
		return nil, fmt.Errorf("compensation for %s failed: %w", eft.Reference, err)
	}
	settlementsTotal.WithLabelValues(string(eft.Rail), "failed").Inc()
	return eft, fmt.Errorf("%w: %s", domain.ErrSettlementFailure, reason)
}

func (s *Service) notify(ctx context.Context, eft *domain.EFTTransaction) {
	if s.notifier == nil {
		return
	}
	ev := domain.SettlementEvent{
		Kind:      "eft",
		Reference: eft.Reference,
		Rail:      string(eft.Rail),
		Source:    eft.SourceAccount,
		Amount:    eft.Amount,
		Currency:  eft.Currency,
		SettledAt: eft.ActualCompletion,
	}
	if err := s.notifier.SettlementCompleted(ctx, ev); err != nil {
		log.Printf("eft: settlement notification for %s failed: %v", eft.Reference, err)
	}
}

// IsNotFound reports whether err is any of the lookup failures a caller maps
// to a 404.
func IsNotFound(err error) bool {
	return errors.Is(err, domain.ErrTransferNotFound) || errors.Is(err, domain.ErrBeneficiaryNotFound)
}
