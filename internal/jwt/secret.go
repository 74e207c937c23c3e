package jwt

import (
	"crypto/subtle"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

const bcryptCost = 10

// HashSecret returns a bcrypt hash suitable for RELAY_SECRET.
func HashSecret(secret string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(secret), bcryptCost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

func ValidatePassword(hashedPassword, password string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hashedPassword), []byte(password))
	return err == nil
}

// IsHashed reports whether secret looks like a bcrypt hash.
func IsHashed(secret string) bool {
	return strings.HasPrefix(secret, "$2")
}

// NewSecretMatcher returns a predicate that accepts exactly the configured
// shared secret. A bcrypt hash is compared with bcrypt, anything else in
// constant time. An empty secret matches nothing.
func NewSecretMatcher(secret string) func(string) bool {
	if secret == "" {
		return func(string) bool { return false }
	}
	if IsHashed(secret) {
		return func(key string) bool {
			return key != "" && ValidatePassword(secret, key)
		}
	}
	want := []byte(secret)
	return func(key string) bool {
		return subtle.ConstantTimeCompare([]byte(key), want) == 1
	}
}
