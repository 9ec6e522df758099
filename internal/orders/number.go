package orders

import (
	"crypto/rand"
	"fmt"
	"io"
	"math/big"
	"time"

	"github.com/angelmondragon/agromarket-backend/pkg/enums"
)

// NumberGenerator produces human-readable order numbers such as
// ORD-12345678-0042: role prefix, last 8 digits of unix millis, 4 random digits.
type NumberGenerator struct {
	now     func() time.Time
	entropy io.Reader
}

// NewNumberGenerator returns a generator backed by the wall clock and crypto/rand.
func NewNumberGenerator() *NumberGenerator {
	return &NumberGenerator{now: time.Now, entropy: rand.Reader}
}

// Next returns a fresh order number for a buyer of the given role.
func (g *NumberGenerator) Next(role enums.BuyerRole) (string, error) {
	suffix, err := rand.Int(g.entropy, big.NewInt(10000))
	if err != nil {
		return "", fmt.Errorf("order number entropy: %w", err)
	}
	millis := g.now().UnixMilli() % 100_000_000
	return fmt.Sprintf("%s-%08d-%04d", role.OrderPrefix(), millis, suffix.Int64()), nil
}
