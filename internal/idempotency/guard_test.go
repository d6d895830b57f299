package idempotency

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/anirudhbs/corebank/internal/clock"
	"github.com/anirudhbs/corebank/internal/domain"
	"github.com/anirudhbs/corebank/internal/store/memory"
)

func newGuard(t *testing.T) *Guard {
	t.Helper()
	st := memory.NewStore()
	clk := clock.NewFake(time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC))
	return NewGuard(st.IdempotencyKeys(), st, clk)
}

func TestExecuteRunsOnceAndReplays(t *testing.T) {
	g := newGuard(t)
	ctx := context.Background()
	hash := HashRequest([]byte(`{"amount":100}`))

	var calls int32
	op := func(ctx context.Context) (int, []byte, error) {
		atomic.AddInt32(&calls, 1)
		return http.StatusCreated, []byte(`{"ok":true}`), nil
	}

	status, body, replayed, err := g.Execute(ctx, "key-1", hash, "cust-1", op)
	if err != nil {
		t.Fatal(err)
	}
	if replayed || status != http.StatusCreated || string(body) != `{"ok":true}` {
		t.Fatalf("first execution: status=%d replayed=%v body=%s", status, replayed, body)
	}

	status, body, replayed, err = g.Execute(ctx, "key-1", hash, "cust-1", op)
	if err != nil {
		t.Fatal(err)
	}
	if !replayed {
		t.Error("second execution with same key and hash must replay")
	}
	if status != http.StatusCreated || string(body) != `{"ok":true}` {
		t.Errorf("replayed response: status=%d body=%s", status, body)
	}
	if atomic.LoadInt32(&calls) != 1 {
		t.Errorf("operation ran %d times, want 1", calls)
	}
}

func TestExecuteRejectsMismatchedPayload(t *testing.T) {
	g := newGuard(t)
	ctx := context.Background()

	op := func(ctx context.Context) (int, []byte, error) {
		return http.StatusCreated, []byte(`{}`), nil
	}
	if _, _, _, err := g.Execute(ctx, "key-1", HashRequest([]byte(`a`)), "", op); err != nil {
		t.Fatal(err)
	}

	_, _, _, err := g.Execute(ctx, "key-1", HashRequest([]byte(`b`)), "", op)
	if !errors.Is(err, domain.ErrIdempotencyConflict) {
		t.Fatalf("got %v, want ErrIdempotencyConflict", err)
	}
}

func TestExecuteRollsBackReservationOnFailure(t *testing.T) {
	g := newGuard(t)
	ctx := context.Background()
	hash := HashRequest([]byte(`{}`))

	boom := errors.New("downstream failure")
	_, _, _, err := g.Execute(ctx, "key-1", hash, "", func(ctx context.Context) (int, []byte, error) {
		return 0, nil, boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("got %v, want downstream failure", err)
	}

	// The failed attempt must not poison the key.
	status, _, replayed, err := g.Execute(ctx, "key-1", hash, "", func(ctx context.Context) (int, []byte, error) {
		return http.StatusOK, []byte(`{}`), nil
	})
	if err != nil {
		t.Fatalf("retry after failure: %v", err)
	}
	if replayed || status != http.StatusOK {
		t.Errorf("retry: status=%d replayed=%v", status, replayed)
	}
}

func TestConcurrentExecutionsSingleEffect(t *testing.T) {
	g := newGuard(t)
	ctx := context.Background()
	hash := HashRequest([]byte(`{}`))

	var calls int32
	op := func(ctx context.Context) (int, []byte, error) {
		atomic.AddInt32(&calls, 1)
		return http.StatusCreated, []byte(`{}`), nil
	}

	const attempts = 8
	var wg sync.WaitGroup
	wg.Add(attempts)
	var executed, replayed, rejected int32
	for i := 0; i < attempts; i++ {
		go func() {
			defer wg.Done()
			_, _, rep, err := g.Execute(ctx, "key-1", hash, "", op)
			switch {
			case err != nil:
				atomic.AddInt32(&rejected, 1)
			case rep:
				atomic.AddInt32(&replayed, 1)
			default:
				atomic.AddInt32(&executed, 1)
			}
		}()
	}
	wg.Wait()

	if calls != 1 {
		t.Fatalf("operation ran %d times under concurrent retries, want 1", calls)
	}
	if executed != 1 {
		t.Errorf("executed = %d, want 1", executed)
	}
	if int(executed+replayed+rejected) != attempts {
		t.Errorf("outcomes do not add up: %d + %d + %d", executed, replayed, rejected)
	}
}
