package qr

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/anirudhbs/corebank/internal/clock"
	"github.com/anirudhbs/corebank/internal/domain"
	"github.com/anirudhbs/corebank/internal/ledger"
	"github.com/anirudhbs/corebank/internal/store/memory"
)

type fixture struct {
	svc    *Service
	ledger *ledger.Service
	store  *memory.Store
	clk    *clock.Fake
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st := memory.NewStore()
	clk := clock.NewFake(time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC))
	ldg := ledger.NewService(st.Accounts(), st.Transactions(), st, clk, nil)
	svc := NewService(st.QRRequests(), st.QRTransactions(), st.UPIHandles(), ldg, st, clk, nil)
	return &fixture{svc: svc, ledger: ldg, store: st, clk: clk}
}

func (f *fixture) fundedAccount(t *testing.T, balance int64) string {
	t.Helper()
	ctx := context.Background()
	acct, err := f.ledger.OpenAccount(ctx, "INR", 0)
	if err != nil {
		t.Fatal(err)
	}
	if balance > 0 {
		if _, err := f.ledger.Credit(ctx, ledger.Entry{AccountNumber: acct.AccountNumber, Amount: balance, Type: domain.TxDeposit}); err != nil {
			t.Fatal(err)
		}
	}
	return acct.AccountNumber
}

func TestCreateAndPayRequest(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	receiver := f.fundedAccount(t, 0)
	payer := f.fundedAccount(t, 10_000)

	req, err := f.svc.CreateRequest(ctx, receiver, 2_500, 0, "coffee")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(req.RequestID, "QR") {
		t.Errorf("request id = %s", req.RequestID)
	}
	if !req.ExpiresAt.Equal(f.clk.Now().Add(domain.DefaultQRExpiry)) {
		t.Errorf("expiry = %s", req.ExpiresAt)
	}

	payment, err := f.svc.PayRequest(ctx, req.RequestID, payer)
	if err != nil {
		t.Fatal(err)
	}
	if payment.Status != domain.QRTxSettled {
		t.Fatalf("payment status = %s", payment.Status)
	}
	if !strings.HasPrefix(payment.Reference, "QRTXN") {
		t.Errorf("payment reference = %s", payment.Reference)
	}
	if payment.DebitReference == "" || payment.CreditReference == "" {
		t.Error("settled payment must link both ledger legs")
	}

	gotPayer, _ := f.ledger.GetAccount(ctx, payer)
	gotReceiver, _ := f.ledger.GetAccount(ctx, receiver)
	if gotPayer.Balance != 7_500 || gotReceiver.Balance != 2_500 {
		t.Errorf("balances = %d/%d", gotPayer.Balance, gotReceiver.Balance)
	}

	stored, _ := f.svc.GetRequest(ctx, req.RequestID)
	if stored.Status != domain.QRRequestPaid || stored.PayerAccount != payer {
		t.Errorf("request after pay: %s payer=%s", stored.Status, stored.PayerAccount)
	}
}

func TestDoublePayRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	receiver := f.fundedAccount(t, 0)
	payer := f.fundedAccount(t, 10_000)

	req, _ := f.svc.CreateRequest(ctx, receiver, 2_500, 0, "")
	if _, err := f.svc.PayRequest(ctx, req.RequestID, payer); err != nil {
		t.Fatal(err)
	}

	_, err := f.svc.PayRequest(ctx, req.RequestID, payer)
	if !errors.Is(err, domain.ErrRequestAlreadySettled) {
		t.Fatalf("got %v, want ErrRequestAlreadySettled", err)
	}

	// Funds moved exactly once.
	gotPayer, _ := f.ledger.GetAccount(ctx, payer)
	if gotPayer.Balance != 7_500 {
		t.Errorf("payer balance = %d", gotPayer.Balance)
	}
}

func TestExpiredRequestNotPayable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	receiver := f.fundedAccount(t, 0)
	payer := f.fundedAccount(t, 10_000)

	req, _ := f.svc.CreateRequest(ctx, receiver, 2_500, time.Minute, "")
	f.clk.Advance(2 * time.Minute)

	_, err := f.svc.PayRequest(ctx, req.RequestID, payer)
	if !errors.Is(err, domain.ErrRequestExpired) {
		t.Fatalf("got %v, want ErrRequestExpired", err)
	}

	// Reading the request after the failed pay surfaces it as EXPIRED.
	stored, err := f.svc.GetRequest(ctx, req.RequestID)
	if err != nil {
		t.Fatal(err)
	}
	if stored.Status != domain.QRRequestExpired {
		t.Errorf("request status = %s, want EXPIRED", stored.Status)
	}

	gotPayer, _ := f.ledger.GetAccount(ctx, payer)
	if gotPayer.Balance != 10_000 {
		t.Errorf("payer balance = %d after expired pay attempt", gotPayer.Balance)
	}
}

func TestLazyExpiryOnRead(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	receiver := f.fundedAccount(t, 0)

	req, _ := f.svc.CreateRequest(ctx, receiver, 2_500, time.Minute, "")
	f.clk.Advance(time.Hour)

	stored, err := f.svc.GetRequest(ctx, req.RequestID)
	if err != nil {
		t.Fatal(err)
	}
	if stored.Status != domain.QRRequestExpired {
		t.Errorf("status = %s, want EXPIRED on read", stored.Status)
	}
}

func TestCancelRequest(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	receiver := f.fundedAccount(t, 0)
	payer := f.fundedAccount(t, 10_000)

	req, _ := f.svc.CreateRequest(ctx, receiver, 2_500, 0, "")
	cancelled, err := f.svc.CancelRequest(ctx, req.RequestID)
	if err != nil {
		t.Fatal(err)
	}
	if cancelled.Status != domain.QRRequestCancelled {
		t.Fatalf("status = %s", cancelled.Status)
	}

	if _, err := f.svc.PayRequest(ctx, req.RequestID, payer); !errors.Is(err, domain.ErrRequestNotPayable) {
		t.Errorf("pay cancelled: got %v", err)
	}
}

func TestPayFailureLeavesRequestOpen(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	receiver := f.fundedAccount(t, 0)
	payer := f.fundedAccount(t, 1_000)

	req, _ := f.svc.CreateRequest(ctx, receiver, 2_500, 0, "")
	_, err := f.svc.PayRequest(ctx, req.RequestID, payer)
	if !errors.Is(err, domain.ErrInsufficientFunds) {
		t.Fatalf("got %v, want ErrInsufficientFunds", err)
	}

	stored, _ := f.svc.GetRequest(ctx, req.RequestID)
	if stored.Status != domain.QRRequestCreated {
		t.Errorf("request status = %s after failed pay, want CREATED", stored.Status)
	}
	gotReceiver, _ := f.ledger.GetAccount(ctx, receiver)
	if gotReceiver.Balance != 0 {
		t.Errorf("receiver balance = %d after failed pay", gotReceiver.Balance)
	}
}

func TestSelfPayRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	receiver := f.fundedAccount(t, 10_000)

	req, _ := f.svc.CreateRequest(ctx, receiver, 2_500, 0, "")
	if _, err := f.svc.PayRequest(ctx, req.RequestID, receiver); !errors.Is(err, domain.ErrSameAccount) {
		t.Errorf("self pay: got %v", err)
	}
}

func TestRegisterHandleAndPayUPI(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	receiverAcct := f.fundedAccount(t, 0)
	payer := f.fundedAccount(t, 10_000)

	h, err := f.svc.RegisterHandle(ctx, "asha@corebank", "cust-1", receiverAcct, false)
	if err != nil {
		t.Fatal(err)
	}
	if !h.Primary {
		t.Error("first handle must become primary")
	}

	payment, err := f.svc.PayUPI(ctx, payer, "asha@corebank", 3_000)
	if err != nil {
		t.Fatal(err)
	}
	if payment.Type != domain.PaymentUPI {
		t.Errorf("type = %s", payment.Type)
	}
	if !strings.HasPrefix(payment.Reference, "UPITXN") {
		t.Errorf("reference = %s", payment.Reference)
	}

	gotReceiver, _ := f.ledger.GetAccount(ctx, receiverAcct)
	if gotReceiver.Balance != 3_000 {
		t.Errorf("receiver balance = %d", gotReceiver.Balance)
	}
}

func TestDuplicateHandleRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	acct := f.fundedAccount(t, 0)

	if _, err := f.svc.RegisterHandle(ctx, "asha@corebank", "cust-1", acct, false); err != nil {
		t.Fatal(err)
	}
	_, err := f.svc.RegisterHandle(ctx, "asha@corebank", "cust-2", acct, false)
	if !errors.Is(err, domain.ErrHandleTaken) {
		t.Fatalf("got %v, want ErrHandleTaken", err)
	}
}

func TestSinglePrimaryHandlePerOwner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	acct := f.fundedAccount(t, 0)

	if _, err := f.svc.RegisterHandle(ctx, "one@corebank", "cust-1", acct, false); err != nil {
		t.Fatal(err)
	}
	if _, err := f.svc.RegisterHandle(ctx, "two@corebank", "cust-1", acct, true); err != nil {
		t.Fatal(err)
	}

	assertSinglePrimary := func(want string) {
		t.Helper()
		handles, err := f.svc.ListHandles(ctx, "cust-1")
		if err != nil {
			t.Fatal(err)
		}
		var primaries []string
		for _, h := range handles {
			if h.Primary {
				primaries = append(primaries, h.Handle)
			}
		}
		if len(primaries) != 1 || primaries[0] != want {
			t.Errorf("primaries = %v, want [%s]", primaries, want)
		}
	}
	assertSinglePrimary("two@corebank")

	if err := f.svc.SetPrimaryHandle(ctx, "cust-1", "one@corebank"); err != nil {
		t.Fatal(err)
	}
	assertSinglePrimary("one@corebank")
}

func TestSetPrimaryForeignHandleRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	acct := f.fundedAccount(t, 0)

	if _, err := f.svc.RegisterHandle(ctx, "asha@corebank", "cust-1", acct, false); err != nil {
		t.Fatal(err)
	}
	if err := f.svc.SetPrimaryHandle(ctx, "cust-2", "asha@corebank"); !errors.Is(err, domain.ErrHandleNotFound) {
		t.Errorf("foreign handle: got %v", err)
	}
}

func TestPayUPIUnknownHandle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	payer := f.fundedAccount(t, 10_000)

	if _, err := f.svc.PayUPI(ctx, payer, "ghost@corebank", 1_000); !errors.Is(err, domain.ErrHandleNotFound) {
		t.Errorf("got %v, want ErrHandleNotFound", err)
	}
}
