package checkout

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"time"
)

// orderNumberAttempts bounds regeneration when a generated number collides
// with an existing order.
const orderNumberAttempts = 5

// orderNumberAlphabet spells the uppercase base-36 suffix characters.
const orderNumberAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"

// GenerateOrderNumber produces a human-readable order number of the form
// ORD-YYYYMMDD-XXXX where XXXX is a random base-36 suffix.
func GenerateOrderNumber(now time.Time) (string, error) {
	suffix := make([]byte, 4)
	for i := range suffix {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(orderNumberAlphabet))))
		if err != nil {
			return "", fmt.Errorf("generating order number suffix: %w", err)
		}
		suffix[i] = orderNumberAlphabet[n.Int64()]
	}
	return fmt.Sprintf("ORD-%s-%s", now.Format("20060102"), suffix), nil
}
