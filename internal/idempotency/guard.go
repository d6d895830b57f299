// Package idempotency deduplicates retried side-effecting requests keyed by
// a caller-supplied key. The reservation, the wrapped operation and the
// stored response commit in one unit of work, so a retried transfer can
// never double-move funds: either the first attempt committed everything or
// it committed nothing.
package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/anirudhbs/corebank/internal/clock"
	"github.com/anirudhbs/corebank/internal/domain"
)

var outcomesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "corebank",
	Subsystem: "idempotency",
	Name:      "outcomes_total",
	Help:      "Guarded executions partitioned by outcome.",
}, []string{"outcome"})

// HashRequest produces the canonical hash of a request payload.
func HashRequest(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}

// Operation builds the response to store and replay. It runs at most once
// per key.
type Operation func(ctx context.Context) (status int, body []byte, err error)

type Guard struct {
	keys  domain.IdempotencyRepository
	uow   domain.UnitOfWork
	clock clock.Clock
}

func NewGuard(keys domain.IdempotencyRepository, uow domain.UnitOfWork, clk clock.Clock) *Guard {
	return &Guard{keys: keys, uow: uow, clock: clk}
}

// Execute runs op under the key. A completed record with a matching request
// hash replays the stored response (replayed=true, no side effects); a
// matching key with a different hash fails with ErrIdempotencyConflict; a
// reservation that has not completed yet fails with
// ErrIdempotencyInProgress. If op returns an error the whole unit of work,
// reservation included, rolls back, so the key may be retried.
func (g *Guard) Execute(ctx context.Context, key, requestHash, ownerID string, op Operation) (status int, body []byte, replayed bool, err error) {
	err = g.uow.Within(ctx, func(ctx context.Context) error {
		rec, created, rerr := g.keys.Reserve(ctx, key, requestHash, ownerID, g.clock.Now())
		if rerr != nil {
			return rerr
		}
		if !created {
			if rec.RequestHash != requestHash {
				return domain.ErrIdempotencyConflict
			}
			if !rec.Completed {
				return domain.ErrIdempotencyInProgress
			}
			status = rec.ResponseStatus
			body = rec.ResponseBody
			replayed = true
			return nil
		}

		var oerr error
		status, body, oerr = op(ctx)
		if oerr != nil {
			return oerr
		}
		return g.keys.Finalize(ctx, key, status, body, HashRequest(body))
	})
	if err != nil {
		switch err {
		case domain.ErrIdempotencyConflict:
			outcomesTotal.WithLabelValues("conflict").Inc()
		case domain.ErrIdempotencyInProgress:
			outcomesTotal.WithLabelValues("in_progress").Inc()
		default:
			outcomesTotal.WithLabelValues("failed").Inc()
		}
		return 0, nil, false, err
	}
	if replayed {
		outcomesTotal.WithLabelValues("replayed").Inc()
	} else {
		outcomesTotal.WithLabelValues("executed").Inc()
	}
	return status, body, replayed, nil
}
