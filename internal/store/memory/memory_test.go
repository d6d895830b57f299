package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/anirudhbs/corebank/internal/domain"
)

var now = time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)

func TestWithinRollsBackOnError(t *testing.T) {
	st := NewStore()
	ctx := context.Background()

	acct := domain.NewAccount("ACC1", "INR", 0, now)
	if err := st.Accounts().Create(ctx, acct); err != nil {
		t.Fatal(err)
	}

	boom := errors.New("abort")
	err := st.Within(ctx, func(ctx context.Context) error {
		got, err := st.Accounts().GetByNumber(ctx, "ACC1")
		if err != nil {
			return err
		}
		got.Balance = 500
		got.AvailableBalance = 500
		if err := st.Accounts().Update(ctx, got); err != nil {
			return err
		}
		second := domain.NewAccount("ACC2", "INR", 0, now)
		if err := st.Accounts().Create(ctx, second); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("got %v", err)
	}

	got, err := st.Accounts().GetByNumber(ctx, "ACC1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Balance != 0 {
		t.Errorf("balance = %d after rollback, want 0", got.Balance)
	}
	if _, err := st.Accounts().GetByNumber(ctx, "ACC2"); !errors.Is(err, domain.ErrAccountNotFound) {
		t.Errorf("ACC2 survived rollback: %v", err)
	}
}

func TestWithinNestedJoinsEnclosing(t *testing.T) {
	st := NewStore()
	ctx := context.Background()

	boom := errors.New("abort")
	err := st.Within(ctx, func(ctx context.Context) error {
		inner := st.Within(ctx, func(ctx context.Context) error {
			return st.Accounts().Create(ctx, domain.NewAccount("ACC1", "INR", 0, now))
		})
		if inner != nil {
			return inner
		}
		// The outer failure must undo the inner create too.
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatal(err)
	}
	if _, err := st.Accounts().GetByNumber(ctx, "ACC1"); !errors.Is(err, domain.ErrAccountNotFound) {
		t.Errorf("nested create survived outer rollback: %v", err)
	}
}

func TestTransactionListingNewestFirst(t *testing.T) {
	st := NewStore()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		tx := domain.NewTransaction("ACC1", domain.TxDeposit, int64(i+1), "INR", now.Add(time.Duration(i)*time.Second))
		if err := st.Transactions().Create(ctx, tx); err != nil {
			t.Fatal(err)
		}
	}

	txs, err := st.Transactions().ListByAccount(ctx, "ACC1", 3, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(txs) != 3 {
		t.Fatalf("len = %d", len(txs))
	}
	if txs[0].Amount != 5 || txs[2].Amount != 3 {
		t.Errorf("ordering: amounts = %d..%d, want newest first", txs[0].Amount, txs[2].Amount)
	}

	page2, err := st.Transactions().ListByAccount(ctx, "ACC1", 3, 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(page2) != 2 || page2[0].Amount != 2 {
		t.Errorf("offset page: len=%d first=%d", len(page2), page2[0].Amount)
	}
}

func TestListDueFiltersQueuedByWindow(t *testing.T) {
	st := NewStore()
	ctx := context.Background()

	mk := func(ref string, status domain.EFTStatus, scheduled time.Time) {
		eft := domain.NewEFTTransaction(domain.RailNEFT, "ACC1", 1, 10_000, 250, "INR", now)
		eft.Reference = ref
		eft.DebitReference = "TXN" + ref
		eft.Status = status
		eft.ScheduledAt = scheduled
		if err := st.EFTs().Create(ctx, eft); err != nil {
			t.Fatal(err)
		}
	}
	mk("A", domain.EFTQueued, now.Add(-time.Minute))
	mk("B", domain.EFTQueued, now.Add(time.Hour))
	mk("C", domain.EFTCompleted, now.Add(-time.Minute))
	mk("D", domain.EFTQueued, now)

	due, err := st.EFTs().ListDue(ctx, now, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(due) != 2 {
		t.Fatalf("due = %d, want 2", len(due))
	}
	if due[0].Reference != "A" || due[1].Reference != "D" {
		t.Errorf("due order = %s,%s", due[0].Reference, due[1].Reference)
	}
}

func TestReserveIdempotencyKey(t *testing.T) {
	st := NewStore()
	ctx := context.Background()

	rec, created, err := st.IdempotencyKeys().Reserve(ctx, "key-1", "hash-a", "cust-1", now)
	if err != nil {
		t.Fatal(err)
	}
	if !created || rec.Completed {
		t.Fatalf("first reserve: created=%v completed=%v", created, rec.Completed)
	}

	again, created, err := st.IdempotencyKeys().Reserve(ctx, "key-1", "hash-b", "cust-1", now)
	if err != nil {
		t.Fatal(err)
	}
	if created {
		t.Error("second reserve must not report created")
	}
	if again.RequestHash != "hash-a" {
		t.Errorf("existing record hash = %s", again.RequestHash)
	}

	if err := st.IdempotencyKeys().Finalize(ctx, "key-1", 201, []byte(`{}`), "resp-hash"); err != nil {
		t.Fatal(err)
	}
	got, err := st.IdempotencyKeys().Get(ctx, "key-1")
	if err != nil {
		t.Fatal(err)
	}
	if !got.Completed || got.ResponseStatus != 201 {
		t.Errorf("finalized record: completed=%v status=%d", got.Completed, got.ResponseStatus)
	}
}
