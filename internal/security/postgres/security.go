package postgres

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	userDatamodel "github.com/yatrisafe/tourist-safety/internal/core/datamodel/user"
	"github.com/yatrisafe/tourist-safety/internal/security"
)

// SecurityStateRepository implements security.Repository using GORM.
type SecurityStateRepository struct {
	db *gorm.DB
}

func NewSecurityStateRepository(db *gorm.DB) security.Repository {
	return &SecurityStateRepository{db: db}
}

func (r *SecurityStateRepository) GetByUserID(ctx context.Context, userID int64) (*security.State, error) {
	var record userDatamodel.SecurityState
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&record).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return fromDataModel(&record), nil
}

func (r *SecurityStateRepository) Save(ctx context.Context, state *security.State) error {
	record := toDataModel(state)
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			UpdateAll: true,
		}).
		Create(record).Error
}

func toDataModel(s *security.State) *userDatamodel.SecurityState {
	return &userDatamodel.SecurityState{
		UserID:              s.UserID,
		FailedAttempts:      s.FailedAttempts,
		LastFailedAt:        s.LastFailedAt,
		LockedUntil:         s.LockedUntil,
		ResetTokenHash:      s.ResetTokenHash,
		ResetTokenExpiresAt: s.ResetTokenExpiresAt,
		ResetTokenUsed:      s.ResetTokenUsed,
		TwoFactorEnabled:    s.TwoFactorEnabled,
	}
}

func fromDataModel(record *userDatamodel.SecurityState) *security.State {
	return &security.State{
		UserID:              record.UserID,
		FailedAttempts:      record.FailedAttempts,
		LastFailedAt:        record.LastFailedAt,
		LockedUntil:         record.LockedUntil,
		ResetTokenHash:      record.ResetTokenHash,
		ResetTokenExpiresAt: record.ResetTokenExpiresAt,
		ResetTokenUsed:      record.ResetTokenUsed,
		TwoFactorEnabled:    record.TwoFactorEnabled,
	}
}
