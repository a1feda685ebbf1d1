package postgres

import (
	"context"

	"gorm.io/gorm"

	"github.com/yatrisafe/tourist-safety/internal/audit"
	auditDatamodel "github.com/yatrisafe/tourist-safety/internal/core/datamodel/audit"
)

// AuditRepository implements audit.Repository using GORM. It exposes only
// Append and read operations; rows are immutable once written.
type AuditRepository struct {
	db *gorm.DB
}

func NewAuditRepository(db *gorm.DB) audit.Repository {
	return &AuditRepository{db: db}
}

func (r *AuditRepository) Append(ctx context.Context, entry *audit.Entry) error {
	record := audit.ToDataModel(entry)
	if err := r.db.WithContext(ctx).Create(record).Error; err != nil {
		return err
	}
	entry.ID = record.ID
	return nil
}

func (r *AuditRepository) List(ctx context.Context, filter audit.Filter) ([]*audit.Entry, error) {
	query := r.db.WithContext(ctx).Model(&auditDatamodel.Entry{})
	if filter.UserID != nil {
		query = query.Where("user_id = ?", *filter.UserID)
	}
	if filter.Action != "" {
		query = query.Where("action = ?", filter.Action)
	}

	var records []*auditDatamodel.Entry
	err := query.
		Order("created_at DESC").
		Limit(filter.Limit).
		Offset(filter.Offset).
		Find(&records).Error
	if err != nil {
		return nil, err
	}

	entries := make([]*audit.Entry, 0, len(records))
	for _, record := range records {
		entries = append(entries, audit.FromDataModel(record))
	}
	return entries, nil
}

func (r *AuditRepository) CountByAction(ctx context.Context, userID int64, action string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&auditDatamodel.Entry{}).
		Where("user_id = ? AND action = ?", userID, action).
		Count(&count).Error
	return count, err
}
