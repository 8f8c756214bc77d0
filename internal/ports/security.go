package ports

// CredentialHasher derives password and recovery-code digests.
type CredentialHasher interface {
	Hash(salt, secret string) (string, error)
	// HashRecoveryCode uses a pinned configuration and an empty salt.
	HashRecoveryCode(code string) (string, error)
}

// SecretGenerator produces random secrets and digests of client-held
// secrets (computer codes, verification cookies).
type SecretGenerator interface {
	NewSecret() (string, error)
	NewSalt() (string, error)
	NewRecoveryCode() (string, error)
	NewVerificationCode() (string, error)
	Digest(value string) string
}
