package domain

import (
	"context"
	"time"
)

// SettlementEvent is published to the notification collaborator after a
// value movement settles. Delivery is fire-and-forget: publish failures are
// logged and never roll back the settlement.
type SettlementEvent struct {
	Kind        string    `json:"kind"` // transfer | eft | qr | upi
	Reference   string    `json:"reference"`
	Rail        string    `json:"rail,omitempty"`
	Source      string    `json:"source_account,omitempty"`
	Destination string    `json:"destination_account,omitempty"`
	Amount      int64     `json:"amount"`
	Currency    string    `json:"currency"`
	SettledAt   time.Time `json:"settled_at"`
}

type Notifier interface {
	SettlementCompleted(ctx context.Context, ev SettlementEvent) error
}

// AuditEvent captures actor, action and before/after state for a mutation.
type AuditEvent struct {
	ActorID    string
	Action     string
	ObjectType string
	ObjectID   string
	Before     []byte
	After      []byte
	Result     string
	Reason     string
	OccurredAt time.Time
}

// AuditRecorder is the audit collaborator. Recording failures are logged by
// callers; they do not abort the mutation being audited.
type AuditRecorder interface {
	Record(ctx context.Context, ev AuditEvent) error
}
