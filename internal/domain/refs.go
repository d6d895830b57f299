package domain

import (
	"fmt"
	"math/rand"
	"sync/atomic"
	"time"
)

// Reference format: prefix + millisecond timestamp + 4-digit zero-padded
// suffix. Downstream systems parse the prefix, so the shape is a contract.
// The suffix advances from a random seed rather than drawing independent
// random digits, which keeps references collision-free under burst load.
var refSuffix atomic.Uint32

func init() {
	refSuffix.Store(rand.Uint32())
}

func nextSuffix() uint32 {
	return refSuffix.Add(1) % 10000
}

func stampRef(prefix string, now time.Time) string {
	return fmt.Sprintf("%s%d%04d", prefix, now.UnixMilli(), nextSuffix())
}

// NewTransactionRef issues a TXN ledger reference.
func NewTransactionRef(now time.Time) string {
	return stampRef("TXN", now)
}

// NewEFTRef issues a rail-prefixed reference (NEFT/RTGS/IMPS).
func NewEFTRef(rail Rail, now time.Time) string {
	return stampRef(string(rail), now)
}

// NewQRRequestID issues a QR payment-request id.
func NewQRRequestID(now time.Time) string {
	return stampRef("QR", now)
}

// NewQRTransactionRef issues a QRTXN or UPITXN reference by payment type.
func NewQRTransactionRef(paymentType PaymentType, now time.Time) string {
	if paymentType == PaymentUPI {
		return stampRef("UPITXN", now)
	}
	return stampRef("QRTXN", now)
}

// NewAccountNumber issues a unique account number. Account numbers are
// stable for the life of the account.
func NewAccountNumber(now time.Time) string {
	return fmt.Sprintf("%d%04d", now.UnixMilli(), nextSuffix())
}
