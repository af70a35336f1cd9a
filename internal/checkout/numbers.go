package checkout

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"time"
)

const orderSuffixAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// NewOrderNumber returns ORD-<unix millis>-<6 random upper-case alphanumerics>.
func NewOrderNumber(at time.Time) (string, error) {
	suffix := make([]byte, 6)
	limit := big.NewInt(int64(len(orderSuffixAlphabet)))
	for i := range suffix {
		n, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", fmt.Errorf("order number entropy: %w", err)
		}
		suffix[i] = orderSuffixAlphabet[n.Int64()]
	}
	return fmt.Sprintf("ORD-%d-%s", at.UnixMilli(), suffix), nil
}

// UnitNumber derives the seller unit number from the order number.
func UnitNumber(orderNumber string, sequence int) string {
	return fmt.Sprintf("%s-S%d", orderNumber, sequence)
}
