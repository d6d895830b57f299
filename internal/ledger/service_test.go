package ledger

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/anirudhbs/corebank/internal/audit"
	"github.com/anirudhbs/corebank/internal/clock"
	"github.com/anirudhbs/corebank/internal/domain"
	"github.com/anirudhbs/corebank/internal/store/memory"
)

func newTestService(t *testing.T) (*Service, *memory.Store, *clock.Fake, *audit.Log) {
	t.Helper()
	st := memory.NewStore()
	clk := clock.NewFake(time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC))
	auditLog := audit.NewLog()
	svc := NewService(st.Accounts(), st.Transactions(), st, clk, auditLog)
	return svc, st, clk, auditLog
}

func openFunded(t *testing.T, svc *Service, balance int64) *domain.Account {
	t.Helper()
	ctx := context.Background()
	acct, err := svc.OpenAccount(ctx, "INR", 0)
	if err != nil {
		t.Fatal(err)
	}
	if balance > 0 {
		if _, err := svc.Credit(ctx, Entry{AccountNumber: acct.AccountNumber, Amount: balance, Type: domain.TxDeposit}); err != nil {
			t.Fatal(err)
		}
	}
	return acct
}

func TestCreditDebitPairing(t *testing.T) {
	svc, _, _, auditLog := newTestService(t)
	ctx := context.Background()

	acct := openFunded(t, svc, 0)
	credit, err := svc.Credit(ctx, Entry{AccountNumber: acct.AccountNumber, Amount: 1000, Type: domain.TxDeposit, Description: "opening"})
	if err != nil {
		t.Fatal(err)
	}
	if credit.Status != domain.TxCompleted {
		t.Errorf("credit status = %s", credit.Status)
	}
	if credit.BalanceBefore != 0 || credit.BalanceAfter != 1000 {
		t.Errorf("credit snapshots = %d/%d", credit.BalanceBefore, credit.BalanceAfter)
	}

	debit, err := svc.Debit(ctx, Entry{AccountNumber: acct.AccountNumber, Amount: 300, Type: domain.TxWithdrawal})
	if err != nil {
		t.Fatal(err)
	}
	if debit.BalanceBefore != 1000 || debit.BalanceAfter != 700 {
		t.Errorf("debit snapshots = %d/%d", debit.BalanceBefore, debit.BalanceAfter)
	}

	got, err := svc.GetAccount(ctx, acct.AccountNumber)
	if err != nil {
		t.Fatal(err)
	}
	if got.Balance != 700 || got.AvailableBalance != 700 {
		t.Errorf("balances = %d/%d, want 700/700", got.Balance, got.AvailableBalance)
	}

	txs, err := svc.ListTransactions(ctx, acct.AccountNumber, 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(txs) != 2 {
		t.Fatalf("transaction count = %d, want 2", len(txs))
	}
	// Newest first.
	if txs[0].Reference != debit.Reference {
		t.Errorf("ordering: first = %s, want %s", txs[0].Reference, debit.Reference)
	}

	if err := auditLog.Verify(); err != nil {
		t.Errorf("audit chain broken: %v", err)
	}
}

func TestDebitInsufficientFundsLeavesNoTrace(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()

	acct := openFunded(t, svc, 100)
	_, err := svc.Debit(ctx, Entry{AccountNumber: acct.AccountNumber, Amount: 200, Type: domain.TxWithdrawal})
	if !errors.Is(err, domain.ErrInsufficientFunds) {
		t.Fatalf("got %v, want ErrInsufficientFunds", err)
	}

	got, _ := svc.GetAccount(ctx, acct.AccountNumber)
	if got.Balance != 100 {
		t.Errorf("balance mutated to %d on failed debit", got.Balance)
	}
	txs, _ := svc.ListTransactions(ctx, acct.AccountNumber, 0, 0)
	if len(txs) != 1 {
		t.Errorf("failed debit appended a record; count = %d", len(txs))
	}
}

func TestDebitRespectsMinimumBalance(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()

	acct, err := svc.OpenAccount(ctx, "INR", 500)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Credit(ctx, Entry{AccountNumber: acct.AccountNumber, Amount: 1000, Type: domain.TxDeposit}); err != nil {
		t.Fatal(err)
	}

	if _, err := svc.Debit(ctx, Entry{AccountNumber: acct.AccountNumber, Amount: 600, Type: domain.TxWithdrawal}); !errors.Is(err, domain.ErrInsufficientFunds) {
		t.Fatalf("debit below minimum balance: got %v", err)
	}
	if _, err := svc.Debit(ctx, Entry{AccountNumber: acct.AccountNumber, Amount: 500, Type: domain.TxWithdrawal}); err != nil {
		t.Fatalf("debit to the floor should succeed: %v", err)
	}
}

func TestInactiveAccountRejected(t *testing.T) {
	svc, st, _, _ := newTestService(t)
	ctx := context.Background()

	acct := openFunded(t, svc, 1000)
	stored, _ := st.Accounts().GetByNumber(ctx, acct.AccountNumber)
	stored.Status = domain.AccountSuspended
	if err := st.Accounts().Update(ctx, stored); err != nil {
		t.Fatal(err)
	}

	if _, err := svc.Credit(ctx, Entry{AccountNumber: acct.AccountNumber, Amount: 100, Type: domain.TxDeposit}); !errors.Is(err, domain.ErrAccountNotActive) {
		t.Errorf("credit to suspended account: got %v", err)
	}
	if _, err := svc.Debit(ctx, Entry{AccountNumber: acct.AccountNumber, Amount: 100, Type: domain.TxWithdrawal}); !errors.Is(err, domain.ErrAccountNotActive) {
		t.Errorf("debit from suspended account: got %v", err)
	}
}

func TestConcurrentDebitsNeverOverdraw(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()

	acct := openFunded(t, svc, 100)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.Debit(ctx, Entry{AccountNumber: acct.AccountNumber, Amount: 60, Type: domain.TxWithdrawal})
		}(i)
	}
	wg.Wait()

	var failures int
	for _, err := range errs {
		if err != nil {
			if !errors.Is(err, domain.ErrInsufficientFunds) {
				t.Fatalf("unexpected error: %v", err)
			}
			failures++
		}
	}
	if failures != 1 {
		t.Fatalf("exactly one of two 60-unit debits against 100 must fail; failures = %d", failures)
	}

	got, _ := svc.GetAccount(ctx, acct.AccountNumber)
	if got.Balance != 40 {
		t.Errorf("final balance = %d, want 40", got.Balance)
	}
}

func TestTransferMovesFundsAtomically(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()

	src := openFunded(t, svc, 1000)
	dst := openFunded(t, svc, 0)

	debit, credit, err := svc.Transfer(ctx, src.AccountNumber, dst.AccountNumber, 400, "p2p", "rent share")
	if err != nil {
		t.Fatal(err)
	}
	if debit.Type != domain.TxTransfer || credit.Type != domain.TxCredit {
		t.Errorf("leg types = %s/%s", debit.Type, credit.Type)
	}
	if debit.Counterparty != dst.AccountNumber || credit.Counterparty != src.AccountNumber {
		t.Errorf("counterparties = %s/%s", debit.Counterparty, credit.Counterparty)
	}

	gotSrc, _ := svc.GetAccount(ctx, src.AccountNumber)
	gotDst, _ := svc.GetAccount(ctx, dst.AccountNumber)
	if gotSrc.Balance != 600 || gotDst.Balance != 400 {
		t.Errorf("balances = %d/%d, want 600/400", gotSrc.Balance, gotDst.Balance)
	}
}

func TestTransferRollsBackOnInactiveDestination(t *testing.T) {
	svc, st, _, _ := newTestService(t)
	ctx := context.Background()

	src := openFunded(t, svc, 1000)
	dst := openFunded(t, svc, 0)

	stored, _ := st.Accounts().GetByNumber(ctx, dst.AccountNumber)
	stored.Status = domain.AccountSuspended
	if err := st.Accounts().Update(ctx, stored); err != nil {
		t.Fatal(err)
	}

	_, _, err := svc.Transfer(ctx, src.AccountNumber, dst.AccountNumber, 400, "p2p", "")
	if !errors.Is(err, domain.ErrAccountNotActive) {
		t.Fatalf("got %v, want ErrAccountNotActive", err)
	}

	gotSrc, _ := svc.GetAccount(ctx, src.AccountNumber)
	if gotSrc.Balance != 1000 {
		t.Errorf("source balance = %d after failed transfer, want 1000", gotSrc.Balance)
	}
	txs, _ := svc.ListTransactions(ctx, src.AccountNumber, 0, 0)
	if len(txs) != 1 {
		t.Errorf("failed transfer left %d records on source, want 1", len(txs))
	}
}

func TestTransferValidation(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()
	acct := openFunded(t, svc, 1000)

	if _, _, err := svc.Transfer(ctx, acct.AccountNumber, acct.AccountNumber, 100, "", ""); !errors.Is(err, domain.ErrSameAccount) {
		t.Errorf("self transfer: got %v", err)
	}
	if _, _, err := svc.Transfer(ctx, acct.AccountNumber, "UNKNOWN", 0, "", ""); !errors.Is(err, domain.ErrInvalidAmount) {
		t.Errorf("zero amount: got %v", err)
	}
	if _, _, err := svc.Transfer(ctx, acct.AccountNumber, "UNKNOWN", 100, "", ""); !errors.Is(err, domain.ErrAccountNotFound) {
		t.Errorf("unknown destination: got %v", err)
	}
}

func TestOppositeTransfersComplete(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()

	a := openFunded(t, svc, 10_000)
	b := openFunded(t, svc, 10_000)

	const rounds = 50
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < rounds; i++ {
			if _, _, err := svc.Transfer(ctx, a.AccountNumber, b.AccountNumber, 10, "p2p", ""); err != nil {
				t.Errorf("a->b: %v", err)
				return
			}
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < rounds; i++ {
			if _, _, err := svc.Transfer(ctx, b.AccountNumber, a.AccountNumber, 10, "p2p", ""); err != nil {
				t.Errorf("b->a: %v", err)
				return
			}
		}
	}()
	wg.Wait()

	gotA, _ := svc.GetAccount(ctx, a.AccountNumber)
	gotB, _ := svc.GetAccount(ctx, b.AccountNumber)
	if gotA.Balance+gotB.Balance != 20_000 {
		t.Errorf("funds not conserved: %d + %d", gotA.Balance, gotB.Balance)
	}
	if gotA.Balance != 10_000 || gotB.Balance != 10_000 {
		t.Errorf("symmetric transfers should net to zero: %d/%d", gotA.Balance, gotB.Balance)
	}
}

func TestReverseCompensates(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()

	acct := openFunded(t, svc, 1000)
	debit, err := svc.Debit(ctx, Entry{AccountNumber: acct.AccountNumber, Amount: 300, Type: domain.TxWithdrawal})
	if err != nil {
		t.Fatal(err)
	}

	rev, err := svc.Reverse(ctx, debit.Reference, "operator correction")
	if err != nil {
		t.Fatal(err)
	}
	if !rev.Type.IsCreditDirection() {
		t.Errorf("reversal of a debit must credit; type = %s", rev.Type)
	}
	if rev.Category != "reversal" {
		t.Errorf("reversal category = %q", rev.Category)
	}

	got, _ := svc.GetAccount(ctx, acct.AccountNumber)
	if got.Balance != 1000 {
		t.Errorf("balance = %d after reversal, want 1000", got.Balance)
	}

	orig, _ := svc.GetTransaction(ctx, debit.Reference)
	if orig.Status != domain.TxReversed {
		t.Errorf("original status = %s, want REVERSED", orig.Status)
	}

	// A reversed transaction cannot be reversed again.
	if _, err := svc.Reverse(ctx, debit.Reference, "again"); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Errorf("double reverse: got %v", err)
	}
}
