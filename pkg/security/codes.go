package security

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"
)

// GenerateNumericCode returns a zero-padded random numeric string of the
// given length, used for email verification challenges.
func GenerateNumericCode(length int) (string, error) {
	if length <= 0 || length > 18 {
		return "", fmt.Errorf("invalid code length %d", length)
	}

	max := big.NewInt(1)
	for i := 0; i < length; i++ {
		max.Mul(max, big.NewInt(10))
	}

	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		return "", fmt.Errorf("generate code: %w", err)
	}

	return fmt.Sprintf("%0*d", length, n), nil
}

// GenerateToken returns a random hex token with byteLen bytes of entropy.
func GenerateToken(byteLen int) (string, error) {
	if byteLen <= 0 {
		return "", fmt.Errorf("invalid token length %d", byteLen)
	}
	buf := make([]byte, byteLen)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// HashSecret returns the hex SHA-256 digest stored in place of a code or token.
func HashSecret(secret string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(secret)))
	return hex.EncodeToString(sum[:])
}

// CheckSecret compares a candidate against a stored digest in constant time.
func CheckSecret(candidate, storedHash string) bool {
	computed := HashSecret(candidate)
	return subtle.ConstantTimeCompare([]byte(computed), []byte(storedHash)) == 1
}
