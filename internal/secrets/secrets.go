// Package secrets seals small blobs, such as OAuth tokens, before they are
// written to storage.
package secrets

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"filippo.io/age"
)

// ErrNoKey is returned when a sealer is requested without a key.
var ErrNoKey = errors.New("no encryption key configured")

// Sealer encrypts and decrypts opaque payloads.
type Sealer interface {
	Seal(plaintext []byte) ([]byte, error)
	Open(ciphertext []byte) ([]byte, error)
}

// AgeSealer implements Sealer with an age X25519 identity. The identity's
// recipient is used for sealing, so the same key opens what it sealed.
type AgeSealer struct {
	identity  *age.X25519Identity
	recipient *age.X25519Recipient
}

var _ Sealer = (*AgeSealer)(nil)

// NewAgeSealer parses an "AGE-SECRET-KEY-1..." identity string.
func NewAgeSealer(key string) (*AgeSealer, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, ErrNoKey
	}
	identity, err := age.ParseX25519Identity(key)
	if err != nil {
		return nil, fmt.Errorf("parsing age identity: %w", err)
	}
	return &AgeSealer{identity: identity, recipient: identity.Recipient()}, nil
}

// GenerateKey returns a new age identity string suitable for NewAgeSealer.
func GenerateKey() (string, error) {
	identity, err := age.GenerateX25519Identity()
	if err != nil {
		return "", fmt.Errorf("generating key: %w", err)
	}
	return identity.String(), nil
}

// Seal encrypts plaintext to the sealer's recipient.
func (s *AgeSealer) Seal(plaintext []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := age.Encrypt(&buf, s.recipient)
	if err != nil {
		return nil, fmt.Errorf("creating encrypted writer: %w", err)
	}
	if _, err := w.Write(plaintext); err != nil {
		return nil, fmt.Errorf("encrypting data: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("finalizing encryption: %w", err)
	}
	return buf.Bytes(), nil
}

// Open decrypts ciphertext produced by Seal.
func (s *AgeSealer) Open(ciphertext []byte) ([]byte, error) {
	r, err := age.Decrypt(bytes.NewReader(ciphertext), s.identity)
	if err != nil {
		return nil, fmt.Errorf("decrypting data: %w", err)
	}
	out, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading decrypted data: %w", err)
	}
	return out, nil
}
