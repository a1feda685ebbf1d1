package session

import (
	"context"
	"crypto/subtle"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/yatrisafe/tourist-safety/internal/audit"
)

type Repository interface {
	Create(ctx context.Context, sess *Session) error
	GetByID(ctx context.Context, id string) (*Session, error)
	GetByRefreshToken(ctx context.Context, token string) (*Session, error)
	UpdateTokenHash(ctx context.Context, id, tokenHash string) error
	UpdateRefreshToken(ctx context.Context, id, token string) error
	UpdateLastActivity(ctx context.Context, id string, at time.Time) error
	Deactivate(ctx context.Context, id string) (bool, error)
	DeactivateAllForUser(ctx context.Context, userID int64) (int64, error)
	ListActive(ctx context.Context, userID int64, now time.Time) ([]*Session, error)
	ListExpiredActive(ctx context.Context, now time.Time, limit int) ([]*Session, error)
}

type Auditor interface {
	Record(ctx context.Context, entry audit.Entry) error
}

// Service manages session lifecycle. Sessions are the source of truth for
// "is this login still valid"; token signatures alone are not.
type Service struct {
	repo    Repository
	auditor Auditor
	ttl     time.Duration
	logger  *slog.Logger
}

func NewService(repo Repository, auditor Auditor, ttl time.Duration, logger *slog.Logger) *Service {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Service{
		repo:    repo,
		auditor: auditor,
		ttl:     ttl,
		logger:  logger,
	}
}

func (s *Service) TTL() time.Duration {
	return s.ttl
}

// Create commits a fully populated session atomically: every field is set
// before the repository write, so an abandoned login never leaves a
// half-created record behind.
func (s *Service) Create(ctx context.Context, userID int64, meta DeviceMeta) (*Session, error) {
	refreshToken, err := NewRefreshToken()
	if err != nil {
		return nil, fmt.Errorf("generate refresh token: %w", err)
	}

	now := time.Now()
	sess := &Session{
		ID:           uuid.NewString(),
		UserID:       userID,
		Device:       meta.Device,
		Platform:     meta.Platform,
		IPAddress:    meta.IPAddress,
		RefreshToken: refreshToken,
		IsActive:     true,
		LastActivity: now,
		ExpiresAt:    now.Add(s.ttl),
		CreatedAt:    now,
	}

	if err := s.repo.Create(ctx, sess); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	return sess, nil
}

// BindAccessToken stores the sha256 digest of the freshly issued access token.
func (s *Service) BindAccessToken(ctx context.Context, sessionID, accessToken string) error {
	return s.repo.UpdateTokenHash(ctx, sessionID, HashToken(accessToken))
}

func (s *Service) Get(ctx context.Context, id string) (*Session, error) {
	return s.repo.GetByID(ctx, id)
}

// Touch bumps last_activity. It never extends expires_at.
func (s *Service) Touch(ctx context.Context, id string) error {
	return s.repo.UpdateLastActivity(ctx, id, time.Now())
}

// End deactivates a session. Ending an already-ended session is a no-op.
func (s *Service) End(ctx context.Context, id string) error {
	changed, err := s.repo.Deactivate(ctx, id)
	if err != nil {
		return fmt.Errorf("end session: %w", err)
	}
	if !changed {
		return nil
	}
	if err := s.auditor.Record(ctx, audit.Entry{
		SessionID:  id,
		Action:     audit.ActionSessionEnded,
		EntityType: "session",
		EntityID:   id,
		Status:     audit.StatusSuccess,
	}); err != nil {
		s.logger.Warn("session end audit failed", "session_id", id, "error", err)
	}
	return nil
}

// EndAllForUser revokes every active session a user has, used by deactivate
// and delete cascades.
func (s *Service) EndAllForUser(ctx context.Context, userID int64) (int64, error) {
	count, err := s.repo.DeactivateAllForUser(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("end sessions for user: %w", err)
	}
	return count, nil
}

// ListActive returns sessions that are active and not past their expiry.
func (s *Service) ListActive(ctx context.Context, userID int64) ([]*Session, error) {
	return s.repo.ListActive(ctx, userID, time.Now())
}

// ValidateRefresh matches a presented refresh token to its session and applies
// the same liveness rules as Validate. An unknown token is not an error; the
// caller rejects the refresh.
func (s *Service) ValidateRefresh(ctx context.Context, token string) (*Session, bool, error) {
	if token == "" {
		return nil, false, nil
	}
	sess, err := s.repo.GetByRefreshToken(ctx, token)
	if err != nil {
		return nil, false, err
	}
	if sess == nil || !sess.IsActive || sess.Expired(time.Now()) {
		return nil, false, nil
	}
	if subtle.ConstantTimeCompare([]byte(sess.RefreshToken), []byte(token)) != 1 {
		return nil, false, nil
	}
	return sess, true, nil
}

// RotateRefreshToken mints a replacement refresh token for the session. The
// previously issued token stops matching, so a refresh cannot be replayed.
func (s *Service) RotateRefreshToken(ctx context.Context, id string) (string, error) {
	token, err := NewRefreshToken()
	if err != nil {
		return "", fmt.Errorf("generate refresh token: %w", err)
	}
	if err := s.repo.UpdateRefreshToken(ctx, id, token); err != nil {
		return "", fmt.Errorf("rotate refresh token: %w", err)
	}
	return token, nil
}

// Validate reports whether a session may still authenticate requests: it must
// exist, be active and be unexpired.
func (s *Service) Validate(ctx context.Context, id string) (*Session, bool, error) {
	sess, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, false, err
	}
	if sess == nil || !sess.IsActive || sess.Expired(time.Now()) {
		return sess, false, nil
	}
	return sess, true, nil
}

// SweepExpired deactivates sessions past their expiry, one audit entry per
// swept session. Running it again with no new expirations sweeps nothing.
// Concurrent logins are safe: the sweep only ever moves active -> ended.
func (s *Service) SweepExpired(ctx context.Context) (int, error) {
	const batchSize = 500

	now := time.Now()
	expired, err := s.repo.ListExpiredActive(ctx, now, batchSize)
	if err != nil {
		return 0, fmt.Errorf("list expired sessions: %w", err)
	}

	swept := 0
	for _, sess := range expired {
		changed, err := s.repo.Deactivate(ctx, sess.ID)
		if err != nil {
			return swept, fmt.Errorf("deactivate session %s: %w", sess.ID, err)
		}
		if !changed {
			continue
		}
		swept++
		if err := s.auditor.Record(ctx, audit.Entry{
			UserID:     &sess.UserID,
			SessionID:  sess.ID,
			Action:     audit.ActionSessionExpired,
			EntityType: "session",
			EntityID:   sess.ID,
			Status:     audit.StatusSuccess,
		}); err != nil {
			s.logger.Warn("session sweep audit failed", "session_id", sess.ID, "error", err)
		}
	}

	if swept > 0 {
		s.logger.Info("expired sessions swept", "count", swept)
	}
	return swept, nil
}
