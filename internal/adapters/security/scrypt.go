package security

import (
	"encoding/base64"
	"fmt"
	"strings"

	"golang.org/x/crypto/scrypt"

	"github.com/swaptacular/swpt-login/internal/domain"
)

const (
	// MaxSecretBytes bounds the input of a single hash call.
	MaxSecretBytes = 1024

	scryptN      = 128
	scryptR      = 8
	scryptP      = 1
	scryptKeyLen = 32
)

// ScryptHasher derives base64 encoded scrypt digests. A salt starting with
// "$" selects a hashing method; no such method is supported yet, so these
// salts are rejected.
type ScryptHasher struct{}

func NewScryptHasher() *ScryptHasher {
	return &ScryptHasher{}
}

func (h *ScryptHasher) Hash(salt, secret string) (string, error) {
	if strings.HasPrefix(salt, "$") {
		method := salt[:strings.LastIndex(salt, "$")]
		return "", fmt.Errorf("%w %q", domain.ErrUnsupportedHashMethod, method)
	}
	saltBytes, err := base64.StdEncoding.DecodeString(salt)
	if err != nil {
		return "", fmt.Errorf("%w: decode salt: %v", domain.ErrInvalidInput, err)
	}
	if len(secret) > MaxSecretBytes {
		return "", domain.ErrSecretTooLong
	}

	// 128*N*r bytes of memory per call.
	digest, err := scrypt.Key([]byte(secret), saltBytes, scryptN, scryptR, scryptP, scryptKeyLen)
	if err != nil {
		return "", fmt.Errorf("scrypt: %w", err)
	}
	return base64.StdEncoding.EncodeToString(digest), nil
}

// HashRecoveryCode normalizes the code and hashes it with an empty salt,
// independent of the account's password salt.
func (h *ScryptHasher) HashRecoveryCode(code string) (string, error) {
	return h.Hash("", domain.NormalizeRecoveryCode(code))
}
