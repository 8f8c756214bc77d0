package domain

import "fmt"

// RecordKind selects one of the secret record variants and its key space.
type RecordKind string

const (
	KindSignup             RecordKind = "signup"
	KindLoginVerification  RecordKind = "vcode"
	KindChangeEmail        RecordKind = "setemail"
	KindChangeRecoveryCode RecordKind = "changerc"
)

// Prefix is the key namespace of the kind in the ephemeral store.
func (k RecordKind) Prefix() string {
	return string(k) + ":"
}

// SecretRecord is an ephemeral, single-use record addressed by an
// unguessable secret. The concrete types below are the only variants.
type SecretRecord interface {
	Kind() RecordKind
	Secret() string
	// Subject is the user ID failures are counted against, or "" when the
	// record has no subject.
	Subject() string
	// Fields returns the stored field set. Empty optional fields are omitted.
	Fields() map[string]string
	isSecretRecord()
}

const (
	fieldEmail       = "email"
	fieldOldEmail    = "old_email"
	fieldUserID      = "user_id"
	fieldCode        = "code"
	fieldChallengeID = "challenge_id"
	fieldComputer    = "cc"
	fieldRecover     = "recover"
)

// RecordFieldNames returns the fields stored for kind. The first name is
// always present in a live record and is used as an existence marker.
func RecordFieldNames(kind RecordKind) []string {
	switch kind {
	case KindSignup:
		return []string{fieldEmail, fieldComputer, fieldRecover, fieldUserID}
	case KindLoginVerification:
		return []string{fieldUserID, fieldCode, fieldChallengeID, fieldEmail}
	case KindChangeEmail:
		return []string{fieldEmail, fieldOldEmail, fieldUserID}
	case KindChangeRecoveryCode:
		return []string{fieldEmail}
	default:
		return nil
	}
}

// SignupRecord starts either a new registration or, when Recover is set, a
// password reset of an existing account.
type SignupRecord struct {
	Token            string
	Email            string
	ComputerCodeHash string
	Recover          bool
	// UserID is set for recovery records only.
	UserID string
}

func (r *SignupRecord) Kind() RecordKind { return KindSignup }
func (r *SignupRecord) Secret() string   { return r.Token }
func (r *SignupRecord) Subject() string  { return r.UserID }
func (*SignupRecord) isSecretRecord()    {}

func (r *SignupRecord) Fields() map[string]string {
	fields := map[string]string{
		fieldEmail:    r.Email,
		fieldComputer: r.ComputerCodeHash,
	}
	if r.Recover {
		fields[fieldRecover] = "yes"
	}
	if r.UserID != "" {
		fields[fieldUserID] = r.UserID
	}
	return fields
}

// LoginVerificationRecord proves that a browser knows the account password.
// A record with an empty Code only authorizes choosing a new email.
type LoginVerificationRecord struct {
	Token       string
	UserID      string
	Email       string
	Code        string
	ChallengeID string
}

func (r *LoginVerificationRecord) Kind() RecordKind { return KindLoginVerification }
func (r *LoginVerificationRecord) Secret() string   { return r.Token }
func (r *LoginVerificationRecord) Subject() string  { return r.UserID }
func (*LoginVerificationRecord) isSecretRecord()    {}

func (r *LoginVerificationRecord) Fields() map[string]string {
	fields := map[string]string{
		fieldUserID: r.UserID,
		fieldEmail:  r.Email,
	}
	if r.Code != "" {
		fields[fieldCode] = r.Code
	}
	if r.ChallengeID != "" {
		fields[fieldChallengeID] = r.ChallengeID
	}
	return fields
}

type ChangeEmailRecord struct {
	Token    string
	UserID   string
	Email    string
	OldEmail string
}

func (r *ChangeEmailRecord) Kind() RecordKind { return KindChangeEmail }
func (r *ChangeEmailRecord) Secret() string   { return r.Token }
func (r *ChangeEmailRecord) Subject() string  { return r.UserID }
func (*ChangeEmailRecord) isSecretRecord()    {}

func (r *ChangeEmailRecord) Fields() map[string]string {
	return map[string]string{
		fieldEmail:    r.Email,
		fieldOldEmail: r.OldEmail,
		fieldUserID:   r.UserID,
	}
}

type ChangeRecoveryCodeRecord struct {
	Token string
	Email string
}

func (r *ChangeRecoveryCodeRecord) Kind() RecordKind { return KindChangeRecoveryCode }
func (r *ChangeRecoveryCodeRecord) Secret() string   { return r.Token }
func (r *ChangeRecoveryCodeRecord) Subject() string  { return "" }
func (*ChangeRecoveryCodeRecord) isSecretRecord()    {}

func (r *ChangeRecoveryCodeRecord) Fields() map[string]string {
	return map[string]string{fieldEmail: r.Email}
}

// DecodeSecretRecord rebuilds a record of the given kind from stored fields.
func DecodeSecretRecord(kind RecordKind, secret string, fields map[string]string) (SecretRecord, error) {
	switch kind {
	case KindSignup:
		return &SignupRecord{
			Token:            secret,
			Email:            fields[fieldEmail],
			ComputerCodeHash: fields[fieldComputer],
			Recover:          fields[fieldRecover] == "yes",
			UserID:           fields[fieldUserID],
		}, nil
	case KindLoginVerification:
		return &LoginVerificationRecord{
			Token:       secret,
			UserID:      fields[fieldUserID],
			Email:       fields[fieldEmail],
			Code:        fields[fieldCode],
			ChallengeID: fields[fieldChallengeID],
		}, nil
	case KindChangeEmail:
		return &ChangeEmailRecord{
			Token:    secret,
			UserID:   fields[fieldUserID],
			Email:    fields[fieldEmail],
			OldEmail: fields[fieldOldEmail],
		}, nil
	case KindChangeRecoveryCode:
		return &ChangeRecoveryCodeRecord{
			Token: secret,
			Email: fields[fieldEmail],
		}, nil
	default:
		return nil, fmt.Errorf("%w: unknown record kind %q", ErrInvalidInput, kind)
	}
}
