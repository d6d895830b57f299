package domain

import "time"

// IdempotencyRecord stores the outcome of a side-effecting request keyed by
// the caller-supplied idempotency key. A completed record replays its stored
// response; a key reused with a different request hash is a conflict.
type IdempotencyRecord struct {
	Key            string    `json:"key"`
	RequestHash    string    `json:"request_hash"`
	ResponseHash   string    `json:"response_hash,omitempty"`
	OwnerID        string    `json:"owner_id,omitempty"`
	ResponseStatus int       `json:"response_status,omitempty"`
	ResponseBody   []byte    `json:"response_body,omitempty"`
	Completed      bool      `json:"completed"`
	CreatedAt      time.Time `json:"created_at"`
}
