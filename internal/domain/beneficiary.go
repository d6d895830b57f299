package domain

import "time"

type BeneficiaryStatus string

const (
	BeneficiaryActive              BeneficiaryStatus = "ACTIVE"
	BeneficiaryInactive            BeneficiaryStatus = "INACTIVE"
	BeneficiaryPendingVerification BeneficiaryStatus = "PENDING_VERIFICATION"
	BeneficiaryBlocked             BeneficiaryStatus = "BLOCKED"
)

// Beneficiary is a registered external payee. It belongs to exactly one
// customer and may receive transfers only while ACTIVE and verified.
type Beneficiary struct {
	ID            int64             `json:"id"`
	CustomerID    string            `json:"customer_id"`
	Name          string            `json:"name"`
	AccountNumber string            `json:"account_number"`
	RoutingCode   string            `json:"routing_code"`
	Verified      bool              `json:"verified"`
	Status        BeneficiaryStatus `json:"status"`
	CreatedAt     time.Time         `json:"created_at"`
}

func (b *Beneficiary) Eligible() bool {
	return b.Status == BeneficiaryActive && b.Verified
}
