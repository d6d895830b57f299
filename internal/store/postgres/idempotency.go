package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/anirudhbs/corebank/internal/domain"
)

type idemRepo struct {
	s *Store
}

const idemColumns = "key, request_hash, response_hash, owner_id, response_status, response_body, completed, created_at"

func scanIdemRecord(row pgx.Row) (*domain.IdempotencyRecord, error) {
	var rec domain.IdempotencyRecord
	err := row.Scan(&rec.Key, &rec.RequestHash, &rec.ResponseHash, &rec.OwnerID,
		&rec.ResponseStatus, &rec.ResponseBody, &rec.Completed, &rec.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// Reserve inserts the key or surfaces the existing record. The unique index
// on key arbitrates concurrent reservations: exactly one insert wins.
// ON CONFLICT DO NOTHING keeps a lost insert from aborting the enclosing
// transaction, so the follow-up read still runs. If that read cannot see
// the winner's row yet the loser reports in-progress.
func (r idemRepo) Reserve(ctx context.Context, key, requestHash, ownerID string, now time.Time) (*domain.IdempotencyRecord, bool, error) {
	tag, err := r.s.db(ctx).Exec(ctx,
		`INSERT INTO idempotency_keys (key, request_hash, owner_id, completed, created_at)
		 VALUES ($1, $2, $3, false, $4)
		 ON CONFLICT (key) DO NOTHING`,
		key, requestHash, ownerID, now)
	if err != nil {
		return nil, false, fmt.Errorf("key reservation failed: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return &domain.IdempotencyRecord{
			Key:         key,
			RequestHash: requestHash,
			OwnerID:     ownerID,
			CreatedAt:   now,
		}, true, nil
	}

	rec, err := r.Get(ctx, key)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, domain.ErrIdempotencyInProgress
		}
		return nil, false, err
	}
	return rec, false, nil
}

func (r idemRepo) Finalize(ctx context.Context, key string, status int, body []byte, responseHash string) error {
	tag, err := r.s.db(ctx).Exec(ctx,
		`UPDATE idempotency_keys SET completed = true, response_status = $1, response_body = $2, response_hash = $3
		 WHERE key = $4`,
		status, body, responseHash, key)
	if err != nil {
		return fmt.Errorf("idempotency finalize failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("idempotency finalize: key %q not reserved", key)
	}
	return nil
}

func (r idemRepo) Get(ctx context.Context, key string) (*domain.IdempotencyRecord, error) {
	return scanIdemRecord(r.s.db(ctx).QueryRow(ctx,
		"SELECT "+idemColumns+" FROM idempotency_keys WHERE key = $1", key))
}
