// Package security implements the cryptographic core of the patient API:
// peppered password hashing, JWT access/refresh token issuance and
// verification, and field-level encryption of sensitive columns.
package security

import (
	"crypto/sha256"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// ErrEmptyHash is returned by Verify when the stored hash is empty. An empty
// hash is a programmer error (a credential row should never be persisted
// without one), so it is surfaced instead of being folded into "no match".
var ErrEmptyHash = errors.New("security: empty password hash")

// PasswordHasher hashes and verifies passwords. A process-wide secret pepper
// is appended to the password before hashing; bcrypt supplies the per-hash
// random salt. Because bcrypt only considers the first 72 bytes of input, the
// peppered password is pre-hashed with SHA-256 so that no entropy is silently
// truncated.
type PasswordHasher struct {
	pepper    string
	dummyHash string
}

// NewPasswordHasher creates a PasswordHasher with the given pepper. An empty
// pepper is permitted in development; config validation forbids it in
// production.
func NewPasswordHasher(pepper string) *PasswordHasher {
	h := &PasswordHasher{pepper: pepper}
	// Precomputed hash for DummyVerify; same cost as every real hash.
	dummy, _ := bcrypt.GenerateFromPassword(h.prehash("dummy"), bcrypt.DefaultCost)
	h.dummyHash = string(dummy)
	return h
}

// prehash reduces the peppered password to a fixed-length digest so bcrypt's
// 72-byte input limit never applies.
func (h *PasswordHasher) prehash(password string) []byte {
	sum := sha256.Sum256([]byte(password + h.pepper))
	return sum[:]
}

// Hash returns a bcrypt hash of the peppered password.
func (h *PasswordHasher) Hash(password string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword(h.prehash(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hashed), nil
}

// Verify reports whether password matches the stored hash. A malformed hash
// yields false rather than an error; an empty hash returns ErrEmptyHash.
func (h *PasswordHasher) Verify(password, hash string) (bool, error) {
	if hash == "" {
		return false, ErrEmptyHash
	}

	err := bcrypt.CompareHashAndPassword([]byte(hash), h.prehash(password))
	if err != nil {
		// Mismatches and malformed hashes are both "no match"; the caller
		// must not learn which.
		return false, nil
	}
	return true, nil
}

// DummyVerify burns one bcrypt comparison against a fixed hash and discards
// the result. Callers run it on code paths with no stored hash to compare
// against, so those paths cost the same as a real verification and cannot be
// told apart by timing.
func (h *PasswordHasher) DummyVerify(password string) {
	_ = bcrypt.CompareHashAndPassword([]byte(h.dummyHash), h.prehash(password))
}
