// Package domain holds the value types shared by every stage of a vetting run.
package domain

import (
	"fmt"
	"strings"

	"github.com/mr-tron/base58"
)

// TokenID names a token by its mint address. It is the key of every lookup.
type TokenID string

// addressLen is the decoded length of a Solana public key.
const addressLen = 32

// ParseTokenID validates raw as a base58 mint address.
func ParseTokenID(raw string) (TokenID, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", fmt.Errorf("%w: empty identifier", ErrInvalidToken)
	}

	decoded, err := base58.Decode(s)
	if err != nil {
		return "", fmt.Errorf("%w: %q is not base58", ErrInvalidToken, s)
	}
	if len(decoded) != addressLen {
		return "", fmt.Errorf("%w: %q decodes to %d bytes, want %d", ErrInvalidToken, s, len(decoded), addressLen)
	}

	return TokenID(s), nil
}

// String returns the address.
func (t TokenID) String() string {
	return string(t)
}

// Bytes returns the decoded 32-byte key, or nil if t is not a valid address.
func (t TokenID) Bytes() []byte {
	decoded, err := base58.Decode(string(t))
	if err != nil || len(decoded) != addressLen {
		return nil
	}
	return decoded
}
