package passcode

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

// CodeLength is the fixed length of temporary verification codes.
const CodeLength = 6

// GenerateCode returns a random digits-only code of CodeLength characters,
// drawn from crypto/rand. Leading zeros are allowed.
func GenerateCode() (string, error) {
	bound := big.NewInt(1)
	for i := 0; i < CodeLength; i++ {
		bound.Mul(bound, big.NewInt(10))
	}
	n, err := rand.Int(rand.Reader, bound)
	if err != nil {
		return "", fmt.Errorf("generate code: %w", err)
	}
	return fmt.Sprintf("%0*d", CodeLength, n), nil
}
