package cryptox

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"
)

// MinTokenBytes is the smallest amount of randomness a token carries
const MinTokenBytes = 32

// RandomToken returns n random bytes from crypto/rand as a hex string.
// Requests below MinTokenBytes are raised to MinTokenBytes.
func RandomToken(n int) (string, error) {
	if n < MinTokenBytes {
		n = MinTokenBytes
	}
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate random token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// HashHex returns the hex SHA-256 digest of the concatenated parts
func HashHex(parts ...string) string {
	sum := sha256.Sum256([]byte(strings.Join(parts, "")))
	return hex.EncodeToString(sum[:])
}

// EncodeToken encodes binary protocol values for transport
func EncodeToken(b []byte) string {
	return base64.StdEncoding.EncodeToString(b)
}

// DecodeToken reverses EncodeToken
func DecodeToken(s string) ([]byte, error) {
	b, err := base64.StdEncoding.DecodeString(strings.TrimSpace(s))
	if err != nil {
		return nil, fmt.Errorf("invalid token encoding: %w", err)
	}
	return b, nil
}
