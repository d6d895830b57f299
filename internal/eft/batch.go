package eft

import (
	"context"
	"log"
	"time"
)

// BatchRunner drives deferred-rail settlement as a periodic background
// task. It is the only background scheduling the engine performs.
type BatchRunner struct {
	svc      *Service
	interval time.Duration
	limit    int
}

func NewBatchRunner(svc *Service, interval time.Duration, limit int) *BatchRunner {
	if interval <= 0 {
		interval = time.Minute
	}
	if limit <= 0 {
		limit = 500
	}
	return &BatchRunner{svc: svc, interval: interval, limit: limit}
}

// Start launches the runner goroutine. It stops when ctx is cancelled.
func (r *BatchRunner) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				processed, err := r.svc.SettleDue(ctx, r.limit)
				if err != nil {
					log.Printf("eft batch run failed: %v", err)
					continue
				}
				if processed > 0 {
					log.Printf("eft batch settled %d transfers", processed)
				}
			}
		}
	}()
}
