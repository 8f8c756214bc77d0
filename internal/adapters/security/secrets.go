package security

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base32"
	"encoding/base64"
	"encoding/binary"
	"fmt"
)

const (
	saltBytes          = 16
	secretBytes        = 15
	recoveryCodeBytes  = 10
	verificationDigits = 6
)

// RandomGenerator draws secrets from crypto/rand.
type RandomGenerator struct{}

func NewRandomGenerator() *RandomGenerator {
	return &RandomGenerator{}
}

// NewSecret returns an URL safe token used as a secret record key.
func (g *RandomGenerator) NewSecret() (string, error) {
	raw, err := randomBytes(secretBytes)
	if err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(raw), nil
}

func (g *RandomGenerator) NewSalt() (string, error) {
	raw, err := randomBytes(saltBytes)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

// NewRecoveryCode returns 16 base32 characters.
func (g *RandomGenerator) NewRecoveryCode() (string, error) {
	raw, err := randomBytes(recoveryCodeBytes)
	if err != nil {
		return "", err
	}
	return base32.StdEncoding.EncodeToString(raw), nil
}

// NewVerificationCode returns a zero padded decimal code.
func (g *RandomGenerator) NewVerificationCode() (string, error) {
	raw, err := randomBytes(4)
	if err != nil {
		return "", err
	}
	modulus := uint32(1)
	for range verificationDigits {
		modulus *= 10
	}
	n := binary.LittleEndian.Uint32(raw) % modulus
	return fmt.Sprintf("%0*d", verificationDigits, n), nil
}

// Digest is the URL safe base64 SHA-256 of value. Client-held secrets are
// only ever stored in this form.
func (g *RandomGenerator) Digest(value string) string {
	return DigestSHA256(value)
}

func DigestSHA256(value string) string {
	sum := sha256.Sum256([]byte(value))
	return base64.URLEncoding.EncodeToString(sum[:])
}

func randomBytes(n int) ([]byte, error) {
	raw := make([]byte, n)
	if _, err := rand.Read(raw); err != nil {
		return nil, fmt.Errorf("read random bytes: %w", err)
	}
	return raw, nil
}
