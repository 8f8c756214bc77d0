package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/swaptacular/swpt-login/internal/domain"
)

// CredentialRepository reads from the replica and writes to the primary.
type CredentialRepository struct {
	db      *gorm.DB
	replica *gorm.DB
}

func NewCredentialRepository(db, replica *gorm.DB) *CredentialRepository {
	if replica == nil {
		replica = db
	}
	return &CredentialRepository{db: db, replica: replica}
}

func (r *CredentialRepository) GetByEmail(ctx context.Context, email string) (domain.CredentialRecord, error) {
	var row userRegistrationModel
	err := r.replica.WithContext(ctx).Where("email = ?", email).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.CredentialRecord{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.CredentialRecord{}, err
	}
	return toCredential(row), nil
}

func (r *CredentialRepository) GetByUserID(ctx context.Context, userID string) (domain.CredentialRecord, error) {
	var row userRegistrationModel
	err := r.replica.WithContext(ctx).Where("user_id = ?", userID).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.CredentialRecord{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.CredentialRecord{}, err
	}
	return toCredential(row), nil
}

func (r *CredentialRepository) UpdatePasswordHash(ctx context.Context, email, passwordHash string) error {
	return r.updateByEmail(ctx, email, map[string]any{"password_hash": passwordHash})
}

func (r *CredentialRepository) UpdateRecoveryCodeHash(ctx context.Context, email, recoveryCodeHash string) error {
	return r.updateByEmail(ctx, email, map[string]any{"recovery_code_hash": recoveryCodeHash})
}

func (r *CredentialRepository) updateByEmail(ctx context.Context, email string, updates map[string]any) error {
	res := r.db.WithContext(ctx).
		Model(&userRegistrationModel{}).
		Where("email = ?", email).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *CredentialRepository) ChangeEmail(ctx context.Context, userID, oldEmail, newEmail string, update *domain.UserUpdateSignal) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&userRegistrationModel{}).
			Where("user_id = ? AND email = ?", userID, oldEmail).
			Update("email", newEmail)
		if res.Error != nil {
			if errors.Is(res.Error, gorm.ErrDuplicatedKey) {
				return domain.ErrEmailAlreadyRegistered
			}
			return res.Error
		}
		if res.RowsAffected == 0 {
			return domain.ErrNotFound
		}
		if update == nil {
			return nil
		}
		return tx.Create(&userUpdateSignalModel{
			UserID:     update.UserID,
			Email:      optionalString(update.Email),
			InsertedAt: update.InsertedAt,
		}).Error
	})
}

func (r *CredentialRepository) SetStatus(ctx context.Context, userIDs []string, status domain.CredentialStatus) (int64, error) {
	if len(userIDs) == 0 {
		return 0, nil
	}
	res := r.db.WithContext(ctx).
		Model(&userRegistrationModel{}).
		Where("user_id IN ?", userIDs).
		Update("status", int16(status))
	return res.RowsAffected, res.Error
}

func (r *CredentialRepository) DeleteWithDeactivation(ctx context.Context, userID string, at time.Time) (bool, error) {
	deleted := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("user_id = ?", userID).Delete(&userRegistrationModel{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}
		deleted = true
		return tx.Clauses(clause.OnConflict{DoNothing: true}).
			Create(&deactivateUserSignalModel{UserID: userID, InsertedAt: at}).Error
	})
	if err != nil {
		return false, fmt.Errorf("delete user %s: %w", userID, err)
	}
	return deleted, nil
}

// insertActivatedCredential inserts the credential created by a confirmed
// activation. A row with the same email already existing is a benign race
// and is ignored; a collision on user_id is reported as
// domain.ErrUserIDReused.
func insertActivatedCredential(tx *gorm.DB, record domain.CredentialRecord) (bool, error) {
	row := fromCredential(record)
	res := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "email"}},
		DoNothing: true,
	}).Create(&row)
	if res.Error != nil {
		if errors.Is(res.Error, gorm.ErrDuplicatedKey) {
			return false, fmt.Errorf("%w: user_id %s, email %s", domain.ErrUserIDReused, record.UserID, record.Email)
		}
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
