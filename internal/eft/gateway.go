package eft

import (
	"context"
	"log"

	"github.com/anirudhbs/corebank/internal/domain"
)

// SimulatedGateway stands in for the rail network. It accepts every dispatch
// and only logs it; deployments with a real rail connection supply their own
// RailGateway.
type SimulatedGateway struct{}

func (SimulatedGateway) Dispatch(ctx context.Context, eft *domain.EFTTransaction) error {
	log.Printf("eft: dispatched %s over %s for %d %s", eft.Reference, eft.Rail, eft.Amount, eft.Currency)
	return nil
}
