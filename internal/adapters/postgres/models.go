package postgres

import (
	"time"

	"github.com/swaptacular/swpt-login/internal/domain"
)

type userRegistrationModel struct {
	Email            string    `gorm:"column:email;primaryKey"`
	UserID           string    `gorm:"column:user_id"`
	Salt             string    `gorm:"column:salt"`
	PasswordHash     string    `gorm:"column:password_hash"`
	RecoveryCodeHash string    `gorm:"column:recovery_code_hash"`
	RegisteredFromIP *string   `gorm:"column:registered_from_ip"`
	RegisteredAt     time.Time `gorm:"column:registered_at"`
	Status           int16     `gorm:"column:status"`
}

func (userRegistrationModel) TableName() string { return "user_registration" }

type activateUserSignalModel struct {
	UserID           string    `gorm:"column:user_id;primaryKey"`
	ReservationID    string    `gorm:"column:reservation_id;primaryKey"`
	Email            string    `gorm:"column:email"`
	Salt             string    `gorm:"column:salt"`
	PasswordHash     string    `gorm:"column:password_hash"`
	RecoveryCodeHash string    `gorm:"column:recovery_code_hash"`
	RegisteredFromIP *string   `gorm:"column:registered_from_ip"`
	InsertedAt       time.Time `gorm:"column:inserted_at"`
}

func (activateUserSignalModel) TableName() string { return "activate_user_signal" }

type deactivateUserSignalModel struct {
	UserID     string    `gorm:"column:user_id;primaryKey"`
	InsertedAt time.Time `gorm:"column:inserted_at"`
}

func (deactivateUserSignalModel) TableName() string { return "deactivate_user_signal" }

type userUpdateSignalModel struct {
	ID         int64     `gorm:"column:user_update_signal_id;primaryKey;autoIncrement"`
	UserID     string    `gorm:"column:user_id"`
	Email      *string   `gorm:"column:email"`
	InsertedAt time.Time `gorm:"column:inserted_at"`
}

func (userUpdateSignalModel) TableName() string { return "user_update_signal" }

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func toCredential(m userRegistrationModel) domain.CredentialRecord {
	return domain.CredentialRecord{
		Email:            m.Email,
		UserID:           m.UserID,
		Salt:             m.Salt,
		PasswordHash:     m.PasswordHash,
		RecoveryCodeHash: m.RecoveryCodeHash,
		RegisteredFromIP: derefString(m.RegisteredFromIP),
		RegisteredAt:     m.RegisteredAt,
		Status:           domain.CredentialStatus(m.Status),
	}
}

func fromCredential(r domain.CredentialRecord) userRegistrationModel {
	return userRegistrationModel{
		Email:            r.Email,
		UserID:           r.UserID,
		Salt:             r.Salt,
		PasswordHash:     r.PasswordHash,
		RecoveryCodeHash: r.RecoveryCodeHash,
		RegisteredFromIP: optionalString(r.RegisteredFromIP),
		RegisteredAt:     r.RegisteredAt,
		Status:           int16(r.Status),
	}
}

func toActivationSignal(m activateUserSignalModel) domain.ActivationSignal {
	return domain.ActivationSignal{
		UserID:           m.UserID,
		ReservationID:    m.ReservationID,
		Email:            m.Email,
		Salt:             m.Salt,
		PasswordHash:     m.PasswordHash,
		RecoveryCodeHash: m.RecoveryCodeHash,
		RegisteredFromIP: derefString(m.RegisteredFromIP),
		InsertedAt:       m.InsertedAt,
	}
}

func fromActivationSignal(s domain.ActivationSignal) activateUserSignalModel {
	return activateUserSignalModel{
		UserID:           s.UserID,
		ReservationID:    s.ReservationID,
		Email:            s.Email,
		Salt:             s.Salt,
		PasswordHash:     s.PasswordHash,
		RecoveryCodeHash: s.RecoveryCodeHash,
		RegisteredFromIP: optionalString(s.RegisteredFromIP),
		InsertedAt:       s.InsertedAt,
	}
}
