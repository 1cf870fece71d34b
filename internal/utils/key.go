package utils // package utils provides helper functions shared across the service

import (
	"crypto/rand"     // secure random number generation
	"encoding/base64" // URL-safe encoding for confirmation keys
)

// DefaultKeyLength is the number of characters in a confirmation key
// when the caller does not request a specific length.
const DefaultKeyLength = 12

// MaxKeyLength is the widest key the email_addresses.confirmation_key
// column can store.  Requested lengths are clamped to this value.
const MaxKeyLength = 40

// GenerateKey returns a cryptographically random, URL-safe confirmation
// key of the requested length.  A length of zero or less selects
// DefaultKeyLength; anything above MaxKeyLength is clamped so the key
// always fits in the column.  The function has no side effects beyond
// consuming entropy.
func GenerateKey(length int) (string, error) {
	if length <= 0 {
		length = DefaultKeyLength
	}
	if length > MaxKeyLength {
		length = MaxKeyLength
	}
	// base64 expands 3 bytes into 4 characters, so length random bytes
	// always encode to at least length characters.
	buf := make([]byte, length)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf)[:length], nil
}
