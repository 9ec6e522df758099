package payments

import (
	"crypto/rand"
	"fmt"
	"io"
	"math/big"
	"strings"
	"time"
)

const (
	base36Alphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	suffixLength   = 6
)

var base36 = big.NewInt(int64(len(base36Alphabet)))

// TransactionIDFactory builds gateway transaction ids of the form
// TXN-{orderNumber}-{unixMillis}-{6 base36 chars}.
type TransactionIDFactory struct {
	now     func() time.Time
	entropy io.Reader
}

// NewTransactionIDFactory uses the wall clock and crypto/rand.
func NewTransactionIDFactory() *TransactionIDFactory {
	return &TransactionIDFactory{now: time.Now, entropy: rand.Reader}
}

// NewTransactionIDFactoryWith lets callers pin the clock and entropy source.
func NewTransactionIDFactoryWith(now func() time.Time, entropy io.Reader) *TransactionIDFactory {
	if now == nil {
		now = time.Now
	}
	if entropy == nil {
		entropy = rand.Reader
	}
	return &TransactionIDFactory{now: now, entropy: entropy}
}

// New returns a transaction id for orderNumber.
func (f *TransactionIDFactory) New(orderNumber string) (string, error) {
	orderNumber = strings.TrimSpace(orderNumber)
	if orderNumber == "" {
		return "", fmt.Errorf("order number required")
	}
	var suffix strings.Builder
	suffix.Grow(suffixLength)
	for i := 0; i < suffixLength; i++ {
		n, err := rand.Int(f.entropy, base36)
		if err != nil {
			return "", fmt.Errorf("transaction id entropy: %w", err)
		}
		suffix.WriteByte(base36Alphabet[n.Int64()])
	}
	return fmt.Sprintf("TXN-%s-%d-%s", orderNumber, f.now().UnixMilli(), suffix.String()), nil
}
