package security

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
)

// ErrUndecryptable is returned when ciphertext cannot be decrypted: it was
// tampered with, truncated, or produced under a different key. Callers must
// treat this distinctly from an absent field; corrupted ciphertext is never
// silently read as empty data.
var ErrUndecryptable = errors.New("security: undecryptable ciphertext")

// fallbackPrefix marks values produced by the insecure development fallback so
// they are never confused with real AES-GCM ciphertext.
var fallbackPrefix = []byte("b64!")

// FieldCipher encrypts and decrypts individual sensitive column values
// (names, clinical notes, message bodies, storage keys). It has no knowledge
// of which columns are sensitive; data-access code decides that, one field at
// a time.
//
// The secure implementation is AES-256-GCM with a fresh random nonce per call
// prepended to the ciphertext, so encrypting the same plaintext twice yields
// different bytes and column equality leaks nothing.
type FieldCipher struct {
	aead cipher.AEAD
}

// NewFieldCipher creates a FieldCipher with the given 32-byte AES-256 key.
func NewFieldCipher(key []byte) (*FieldCipher, error) {
	if len(key) != 32 {
		return nil, fmt.Errorf("field cipher: key must be 32 bytes, got %d", len(key))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("field cipher: create cipher: %w", err)
	}

	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("field cipher: create GCM: %w", err)
	}

	return &FieldCipher{aead: aead}, nil
}

// NewInsecureFallbackCipher creates a FieldCipher that merely base64-encodes
// values. It exists so development environments without a configured key do
// not lose data, and it is INSECURE: it must only be selected by explicit
// startup logic when no real key is configured, never through the production
// secret path. Config validation makes it unreachable when ENV=production.
func NewInsecureFallbackCipher() *FieldCipher {
	return &FieldCipher{aead: nil}
}

// Insecure reports whether this cipher is the development fallback.
func (c *FieldCipher) Insecure() bool {
	return c.aead == nil
}

// Encrypt encrypts plaintext to an opaque byte blob.
func (c *FieldCipher) Encrypt(plaintext string) ([]byte, error) {
	if c.aead == nil {
		encoded := make([]byte, len(fallbackPrefix)+base64.StdEncoding.EncodedLen(len(plaintext)))
		copy(encoded, fallbackPrefix)
		base64.StdEncoding.Encode(encoded[len(fallbackPrefix):], []byte(plaintext))
		return encoded, nil
	}

	nonce := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("field encrypt: generate nonce: %w", err)
	}

	// Seal appends the ciphertext to nonce, so the result is nonce + ciphertext.
	return c.aead.Seal(nonce, nonce, []byte(plaintext), nil), nil
}

// Decrypt decrypts a blob produced by Encrypt. Tampered or wrong-key input
// returns ErrUndecryptable.
func (c *FieldCipher) Decrypt(ciphertext []byte) (string, error) {
	if c.aead == nil {
		if !bytes.HasPrefix(ciphertext, fallbackPrefix) {
			return "", ErrUndecryptable
		}
		decoded, err := base64.StdEncoding.DecodeString(string(ciphertext[len(fallbackPrefix):]))
		if err != nil {
			return "", ErrUndecryptable
		}
		return string(decoded), nil
	}

	nonceSize := c.aead.NonceSize()
	if len(ciphertext) < nonceSize {
		return "", ErrUndecryptable
	}

	nonce, sealed := ciphertext[:nonceSize], ciphertext[nonceSize:]
	plaintext, err := c.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", ErrUndecryptable
	}
	return string(plaintext), nil
}

// EncryptPtr encrypts the pointed-to string, passing nil through unchanged.
func (c *FieldCipher) EncryptPtr(plaintext *string) ([]byte, error) {
	if plaintext == nil {
		return nil, nil
	}
	return c.Encrypt(*plaintext)
}

// DecryptPtr decrypts the blob, passing nil through unchanged.
func (c *FieldCipher) DecryptPtr(ciphertext []byte) (*string, error) {
	if ciphertext == nil {
		return nil, nil
	}
	plaintext, err := c.Decrypt(ciphertext)
	if err != nil {
		return nil, err
	}
	return &plaintext, nil
}
