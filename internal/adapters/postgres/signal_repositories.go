package postgres

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/swaptacular/swpt-login/internal/domain"
	"github.com/swaptacular/swpt-login/internal/ports"
)

// candidateOrder spreads concurrent flush workers over different rows, so
// that N workers cover up to N bursts per cycle. Activation and deactivation
// rows are independent of each other; user updates keep their insertion
// order because consumers apply them in sequence.
const candidateOrder = "random()"

// skipLocked makes a worker pass over rows another worker is delivering
// instead of waiting for them.
var skipLocked = clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}

// lockRow loads at most one matching row into dest under skipLocked. It
// reports false when the row is gone or held by another transaction.
func lockRow(tx *gorm.DB, dest any, query string, args ...any) (bool, error) {
	res := tx.Clauses(skipLocked).Where(query, args...).Limit(1).Find(dest)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// runProcess wraps one row transaction. Delivery errors roll the
// transaction back and are reported with DeliveryDeferred, unless the
// callback already decided on another outcome.
func runProcess(ctx context.Context, db *gorm.DB, fn func(tx *gorm.DB) (domain.DeliveryOutcome, error)) (domain.DeliveryOutcome, error) {
	outcome := domain.DeliverySkipped
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		outcome, err = fn(tx)
		return err
	})
	if err != nil {
		if outcome == domain.DeliveryCompleted || outcome == domain.DeliveryRejected {
			// The commit failed, so the row is still there.
			outcome = domain.DeliveryDeferred
		}
		return outcome, err
	}
	return outcome, nil
}

type ActivationSignalRepository struct {
	db *gorm.DB
}

func NewActivationSignalRepository(db *gorm.DB) *ActivationSignalRepository {
	return &ActivationSignalRepository{db: db}
}

func (r *ActivationSignalRepository) Enqueue(ctx context.Context, signal domain.ActivationSignal) error {
	row := fromActivationSignal(signal)
	if row.InsertedAt.IsZero() {
		row.InsertedAt = time.Now().UTC()
	}
	return r.db.WithContext(ctx).Create(&row).Error
}

func (r *ActivationSignalRepository) PendingKeys(ctx context.Context, limit int) ([]domain.ActivationKey, error) {
	if limit <= 0 {
		return nil, nil
	}
	var rows []activateUserSignalModel
	if err := r.db.WithContext(ctx).
		Select("user_id", "reservation_id").
		Order(candidateOrder).
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	keys := make([]domain.ActivationKey, 0, len(rows))
	for _, row := range rows {
		keys = append(keys, domain.ActivationKey{UserID: row.UserID, ReservationID: row.ReservationID})
	}
	return keys, nil
}

func (r *ActivationSignalRepository) Process(ctx context.Context, key domain.ActivationKey, deliver ports.ActivationDelivery) (domain.DeliveryOutcome, error) {
	return runProcess(ctx, r.db, func(tx *gorm.DB) (domain.DeliveryOutcome, error) {
		var row activateUserSignalModel
		found, err := lockRow(tx, &row, "user_id = ? AND reservation_id = ?", key.UserID, key.ReservationID)
		if err != nil || !found {
			return domain.DeliverySkipped, err
		}

		signal := toActivationSignal(row)
		if err := deliver(ctx, signal); err != nil {
			if errors.Is(err, domain.ErrReservationExpired) {
				slog.Default().WarnContext(ctx, "activation permanently rejected",
					"module", "postgres",
					"layer", "adapter",
					"operation", "process_activation",
					"outcome", "rejected",
					"user_id", key.UserID,
					"reservation_id", key.ReservationID,
					"error", err,
				)
				return domain.DeliveryRejected, deleteActivation(tx, key)
			}
			return domain.DeliveryDeferred, err
		}

		inserted, err := insertActivatedCredential(tx, signal.Credential(time.Now().UTC()))
		if err != nil {
			return domain.DeliveryDeferred, err
		}
		if !inserted {
			slog.Default().InfoContext(ctx, "email already registered; activation insert skipped",
				"module", "postgres",
				"layer", "adapter",
				"operation", "process_activation",
				"outcome", "duplicate_email",
				"user_id", key.UserID,
			)
		}
		return domain.DeliveryCompleted, deleteActivation(tx, key)
	})
}

func deleteActivation(tx *gorm.DB, key domain.ActivationKey) error {
	return tx.Where("user_id = ? AND reservation_id = ?", key.UserID, key.ReservationID).
		Delete(&activateUserSignalModel{}).Error
}

type DeactivationSignalRepository struct {
	db *gorm.DB
}

func NewDeactivationSignalRepository(db *gorm.DB) *DeactivationSignalRepository {
	return &DeactivationSignalRepository{db: db}
}

func (r *DeactivationSignalRepository) PendingUserIDs(ctx context.Context, limit int) ([]string, error) {
	if limit <= 0 {
		return nil, nil
	}
	var ids []string
	err := r.db.WithContext(ctx).
		Model(&deactivateUserSignalModel{}).
		Order(candidateOrder).
		Limit(limit).
		Pluck("user_id", &ids).Error
	return ids, err
}

func (r *DeactivationSignalRepository) Process(ctx context.Context, userID string, deliver ports.DeactivationDelivery) (domain.DeliveryOutcome, error) {
	return runProcess(ctx, r.db, func(tx *gorm.DB) (domain.DeliveryOutcome, error) {
		var row deactivateUserSignalModel
		found, err := lockRow(tx, &row, "user_id = ?", userID)
		if err != nil || !found {
			return domain.DeliverySkipped, err
		}
		if err := deliver(ctx, domain.DeactivationSignal{UserID: row.UserID, InsertedAt: row.InsertedAt}); err != nil {
			return domain.DeliveryDeferred, err
		}
		return domain.DeliveryCompleted, tx.Where("user_id = ?", userID).Delete(&deactivateUserSignalModel{}).Error
	})
}

type UserUpdateSignalRepository struct {
	db *gorm.DB
}

func NewUserUpdateSignalRepository(db *gorm.DB) *UserUpdateSignalRepository {
	return &UserUpdateSignalRepository{db: db}
}

func (r *UserUpdateSignalRepository) PendingIDs(ctx context.Context, limit int) ([]int64, error) {
	if limit <= 0 {
		return nil, nil
	}
	var ids []int64
	err := r.db.WithContext(ctx).
		Model(&userUpdateSignalModel{}).
		Order("user_update_signal_id ASC").
		Limit(limit).
		Pluck("user_update_signal_id", &ids).Error
	return ids, err
}

func (r *UserUpdateSignalRepository) Process(ctx context.Context, id int64, deliver ports.UserUpdateDelivery) (domain.DeliveryOutcome, error) {
	return runProcess(ctx, r.db, func(tx *gorm.DB) (domain.DeliveryOutcome, error) {
		var row userUpdateSignalModel
		found, err := lockRow(tx, &row, "user_update_signal_id = ?", id)
		if err != nil || !found {
			return domain.DeliverySkipped, err
		}
		signal := domain.UserUpdateSignal{
			ID:         row.ID,
			UserID:     row.UserID,
			Email:      derefString(row.Email),
			InsertedAt: row.InsertedAt,
		}
		if err := deliver(ctx, signal); err != nil {
			return domain.DeliveryDeferred, err
		}
		return domain.DeliveryCompleted, tx.Where("user_update_signal_id = ?", id).Delete(&userUpdateSignalModel{}).Error
	})
}
