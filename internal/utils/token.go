// Package utils provides helpers for token generation and operator
// credentials.
package utils

import (
	"crypto/rand"
	"encoding/hex"
)

// RandomToken generates a random hexadecimal string of n bytes (2n hex
// characters) using crypto/rand. Session capability tokens use 16 bytes:
// 128 bits of entropy, unguessable, and the sole credential for a session.
func RandomToken(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// NewSessionToken returns a fresh 128-bit capability token.
func NewSessionToken() (string, error) {
	return RandomToken(16)
}
