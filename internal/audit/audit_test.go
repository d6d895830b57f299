package audit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/anirudhbs/corebank/internal/domain"
)

func event(action string, seq int) domain.AuditEvent {
	return domain.AuditEvent{
		ActorID:    "teller-7",
		Action:     action,
		ObjectType: "ledger_account",
		ObjectID:   "ACC1",
		Before:     []byte(`{"balance":100}`),
		After:      []byte(`{"balance":200}`),
		Result:     "success",
		OccurredAt: time.Date(2026, 3, 14, 10, 0, seq, 0, time.UTC),
	}
}

func TestChainLinksAndVerifies(t *testing.T) {
	l := NewLog()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if err := l.Record(ctx, event("DEPOSIT", i)); err != nil {
			t.Fatal(err)
		}
	}

	entries := l.Entries()
	if len(entries) != 5 {
		t.Fatalf("entries = %d", len(entries))
	}
	if entries[0].HashPrev != "GENESIS" {
		t.Errorf("first entry prev = %s", entries[0].HashPrev)
	}
	for i := 1; i < len(entries); i++ {
		if entries[i].HashPrev != entries[i-1].HashCurr {
			t.Errorf("entry %d not linked to predecessor", i)
		}
		if entries[i].Seq != entries[i-1].Seq+1 {
			t.Errorf("entry %d sequence gap", i)
		}
	}

	if err := l.Verify(); err != nil {
		t.Errorf("verify: %v", err)
	}
}

func TestTamperDetection(t *testing.T) {
	l := NewLog()
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if err := l.Record(ctx, event("WITHDRAWAL", i)); err != nil {
			t.Fatal(err)
		}
	}

	// Mutate a recorded event behind the log's back.
	l.entries[1].Event.After = []byte(`{"balance":999999}`)

	if err := l.Verify(); !errors.Is(err, ErrCorruptChain) {
		t.Fatalf("verify after tamper: got %v, want ErrCorruptChain", err)
	}
	if err := l.Record(ctx, event("DEPOSIT", 9)); !errors.Is(err, ErrCorruptChain) {
		t.Errorf("append after tamper: got %v, want ErrCorruptChain", err)
	}
}
