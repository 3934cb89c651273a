// Package crypto provides credential hashing for API keys and passwords.
package crypto

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// bcryptCost matches the work factor the stored hashes were created with.
const bcryptCost = 10

// GenerateAPIKey returns a new random API key in plaintext.
// The plaintext is shown exactly once; only its hash is ever stored.
func GenerateAPIKey() (string, error) {
	raw := make([]byte, 24)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("generate api key: %w", err)
	}
	return "sg_" + hex.EncodeToString(raw), nil
}

// HashSecret hashes an API key or password for storage.
func HashSecret(secret string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcryptCost)
	if err != nil {
		return "", fmt.Errorf("hash secret: %w", err)
	}
	return string(hash), nil
}

// VerifySecret reports whether the plaintext secret matches the stored hash.
// bcrypt comparison is constant-work per candidate, so probing an API key
// against the active key set costs the same whether or not it matches.
func VerifySecret(secret, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(secret)) == nil
}
