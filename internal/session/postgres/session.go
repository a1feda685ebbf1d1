package postgres

import (
	"context"
	"time"

	"gorm.io/gorm"

	sessionDatamodel "github.com/yatrisafe/tourist-safety/internal/core/datamodel/session"
	"github.com/yatrisafe/tourist-safety/internal/session"
)

// SessionRepository implements session.Repository using GORM.
type SessionRepository struct {
	db *gorm.DB
}

func NewSessionRepository(db *gorm.DB) session.Repository {
	return &SessionRepository{db: db}
}

func (r *SessionRepository) Create(ctx context.Context, sess *session.Session) error {
	return r.db.WithContext(ctx).Create(session.ToDataModel(sess)).Error
}

func (r *SessionRepository) GetByID(ctx context.Context, id string) (*session.Session, error) {
	var record sessionDatamodel.Session
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&record).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return session.FromDataModel(&record), nil
}

func (r *SessionRepository) GetByRefreshToken(ctx context.Context, token string) (*session.Session, error) {
	var record sessionDatamodel.Session
	err := r.db.WithContext(ctx).Where("refresh_token = ?", token).First(&record).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return session.FromDataModel(&record), nil
}

func (r *SessionRepository) UpdateTokenHash(ctx context.Context, id, tokenHash string) error {
	return r.db.WithContext(ctx).
		Model(&sessionDatamodel.Session{}).
		Where("id = ?", id).
		Update("token_hash", tokenHash).Error
}

func (r *SessionRepository) UpdateRefreshToken(ctx context.Context, id, token string) error {
	return r.db.WithContext(ctx).
		Model(&sessionDatamodel.Session{}).
		Where("id = ? AND is_active = ?", id, true).
		Update("refresh_token", token).Error
}

func (r *SessionRepository) UpdateLastActivity(ctx context.Context, id string, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&sessionDatamodel.Session{}).
		Where("id = ? AND is_active = ?", id, true).
		Update("last_activity", at).Error
}

// Deactivate flips is_active off and reports whether a row actually changed,
// which makes End and SweepExpired idempotent.
func (r *SessionRepository) Deactivate(ctx context.Context, id string) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&sessionDatamodel.Session{}).
		Where("id = ? AND is_active = ?", id, true).
		Update("is_active", false)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *SessionRepository) DeactivateAllForUser(ctx context.Context, userID int64) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&sessionDatamodel.Session{}).
		Where("user_id = ? AND is_active = ?", userID, true).
		Update("is_active", false)
	return result.RowsAffected, result.Error
}

func (r *SessionRepository) ListActive(ctx context.Context, userID int64, now time.Time) ([]*session.Session, error) {
	var records []*sessionDatamodel.Session
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND is_active = ? AND expires_at > ?", userID, true, now).
		Order("last_activity DESC").
		Find(&records).Error
	if err != nil {
		return nil, err
	}
	return fromDataModels(records), nil
}

func (r *SessionRepository) ListExpiredActive(ctx context.Context, now time.Time, limit int) ([]*session.Session, error) {
	var records []*sessionDatamodel.Session
	err := r.db.WithContext(ctx).
		Where("is_active = ? AND expires_at <= ?", true, now).
		Order("expires_at ASC").
		Limit(limit).
		Find(&records).Error
	if err != nil {
		return nil, err
	}
	return fromDataModels(records), nil
}

func fromDataModels(records []*sessionDatamodel.Session) []*session.Session {
	sessions := make([]*session.Session, 0, len(records))
	for _, record := range records {
		sessions = append(sessions, session.FromDataModel(record))
	}
	return sessions
}
