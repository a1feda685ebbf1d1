package audit

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

type Repository interface {
	Append(ctx context.Context, entry *Entry) error
	List(ctx context.Context, filter Filter) ([]*Entry, error)
	CountByAction(ctx context.Context, userID int64, action string) (int64, error)
}

// Service records security-relevant actions. Appends are write-only and safe
// to call concurrently across users.
type Service struct {
	repo   Repository
	logger *slog.Logger
}

func NewService(repo Repository, logger *slog.Logger) *Service {
	return &Service{repo: repo, logger: logger}
}

// Record appends one entry. A failed append is logged and returned, but
// callers on security paths treat it as non-fatal: the triggering error must
// still reach the caller.
func (s *Service) Record(ctx context.Context, entry Entry) error {
	if entry.Action == "" {
		return fmt.Errorf("audit: action is required")
	}
	if entry.Status == "" {
		entry.Status = StatusSuccess
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	if err := s.repo.Append(ctx, &entry); err != nil {
		s.logger.Error("audit append failed",
			"action", entry.Action,
			"status", entry.Status,
			"error", err)
		return fmt.Errorf("audit append: %w", err)
	}
	return nil
}

func (s *Service) List(ctx context.Context, filter Filter) ([]*Entry, error) {
	if filter.Limit <= 0 {
		filter.Limit = 50
	}
	if filter.Limit > 200 {
		filter.Limit = 200
	}
	return s.repo.List(ctx, filter)
}

// CountByAction reports how many entries exist for a user/action pair.
func (s *Service) CountByAction(ctx context.Context, userID int64, action string) (int64, error) {
	return s.repo.CountByAction(ctx, userID, action)
}
