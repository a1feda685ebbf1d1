package security

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	internal "github.com/yatrisafe/tourist-safety/internal"
	"github.com/yatrisafe/tourist-safety/internal/audit"
	"github.com/yatrisafe/tourist-safety/internal/core/events"
)

// State is the domain view of a user's security bookkeeping.
type State struct {
	UserID              int64
	FailedAttempts      int
	LastFailedAt        *time.Time
	LockedUntil         *time.Time
	ResetTokenHash      string
	ResetTokenExpiresAt *time.Time
	ResetTokenUsed      bool
	TwoFactorEnabled    bool
}

type Repository interface {
	GetByUserID(ctx context.Context, userID int64) (*State, error)
	Save(ctx context.Context, state *State) error
}

type Auditor interface {
	Record(ctx context.Context, entry audit.Entry) error
}

type Publisher interface {
	Publish(ctx context.Context, event events.Event) error
}

type Config struct {
	LockoutThreshold   int
	LockoutDuration    time.Duration
	ResetTokenDuration time.Duration
}

func (c Config) withDefaults() Config {
	if c.LockoutThreshold <= 0 {
		c.LockoutThreshold = 5
	}
	if c.LockoutDuration <= 0 {
		c.LockoutDuration = 15 * time.Minute
	}
	if c.ResetTokenDuration <= 0 {
		c.ResetTokenDuration = time.Hour
	}
	return c
}

// Guard enforces failed-login lockout and manages password-reset tokens.
// All mutations to one user's state are serialized through a per-user mutex,
// so two concurrent failed logins never under-count the attempt tally.
type Guard struct {
	repo    Repository
	auditor Auditor
	bus     Publisher
	config  Config
	logger  *slog.Logger

	userLocks sync.Map // userID -> *sync.Mutex
}

func NewGuard(repo Repository, auditor Auditor, bus Publisher, cfg Config, logger *slog.Logger) *Guard {
	return &Guard{
		repo:    repo,
		auditor: auditor,
		bus:     bus,
		config:  cfg.withDefaults(),
		logger:  logger,
	}
}

func (g *Guard) lockFor(userID int64) *sync.Mutex {
	mu, _ := g.userLocks.LoadOrStore(userID, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

// IsLocked reports whether the account is inside a lockout window. A store
// failure is returned as an error so the caller can fail closed: "cannot
// confirm safe to proceed" must reject the login, never allow it.
func (g *Guard) IsLocked(ctx context.Context, userID int64) (bool, error) {
	state, err := g.repo.GetByUserID(ctx, userID)
	if err != nil {
		return false, internal.NewDependencyError("security state lookup failed", err)
	}
	if state == nil || state.LockedUntil == nil {
		return false, nil
	}
	return state.LockedUntil.After(time.Now()), nil
}

// RecordFailedAttempt bumps the attempt counter and, on reaching the
// threshold, locks the account and audits ACCOUNT_LOCKED. It returns whether
// this attempt triggered the lock.
func (g *Guard) RecordFailedAttempt(ctx context.Context, userID int64) (bool, error) {
	mu := g.lockFor(userID)
	mu.Lock()
	defer mu.Unlock()

	state, err := g.repo.GetByUserID(ctx, userID)
	if err != nil {
		return false, internal.NewDependencyError("security state lookup failed", err)
	}
	if state == nil {
		state = &State{UserID: userID}
	}

	now := time.Now()
	state.FailedAttempts++
	state.LastFailedAt = &now

	// Only the attempt that crosses the threshold triggers the lock. A burst
	// of concurrent failures past the threshold extends the window but audits
	// and publishes exactly once.
	locked := false
	if state.FailedAttempts >= g.config.LockoutThreshold {
		alreadyLocked := state.LockedUntil != nil && state.LockedUntil.After(now)
		until := now.Add(g.config.LockoutDuration)
		state.LockedUntil = &until
		locked = !alreadyLocked
	}

	if err := g.repo.Save(ctx, state); err != nil {
		return false, internal.NewDependencyError("security state update failed", err)
	}

	if locked {
		if err := g.auditor.Record(ctx, audit.Entry{
			UserID:     &userID,
			Action:     audit.ActionAccountLocked,
			EntityType: "user",
			EntityID:   fmt.Sprintf("%d", userID),
			NewValue:   audit.Snapshot(map[string]interface{}{"locked_until": state.LockedUntil}),
			Status:     audit.StatusSuccess,
		}); err != nil {
			g.logger.Warn("account lock audit failed", "user_id", userID, "error", err)
		}
		if g.bus != nil {
			_ = g.bus.Publish(ctx, events.NewSecurityEvent(events.EventAccountLocked, map[string]interface{}{
				"user_id":      userID,
				"locked_until": state.LockedUntil,
			}))
		}
		g.logger.Warn("account locked after repeated failures",
			"user_id", userID,
			"failed_attempts", state.FailedAttempts)
	}

	return locked, nil
}

// RecordSuccessfulLogin resets the failure counter and clears any lockout.
func (g *Guard) RecordSuccessfulLogin(ctx context.Context, userID int64) error {
	mu := g.lockFor(userID)
	mu.Lock()
	defer mu.Unlock()

	state, err := g.repo.GetByUserID(ctx, userID)
	if err != nil {
		return internal.NewDependencyError("security state lookup failed", err)
	}
	if state == nil {
		state = &State{UserID: userID}
	}

	state.FailedAttempts = 0
	state.LastFailedAt = nil
	state.LockedUntil = nil

	if err := g.repo.Save(ctx, state); err != nil {
		return internal.NewDependencyError("security state update failed", err)
	}
	return nil
}

// ResetAttempts clears the failure counter without touching reset tokens,
// used after a password change.
func (g *Guard) ResetAttempts(ctx context.Context, userID int64) error {
	return g.RecordSuccessfulLogin(ctx, userID)
}

// IssueResetToken creates a single-use, time-boxed reset token. Only its
// sha256 digest is stored.
func (g *Guard) IssueResetToken(ctx context.Context, userID int64) (string, error) {
	mu := g.lockFor(userID)
	mu.Lock()
	defer mu.Unlock()

	state, err := g.repo.GetByUserID(ctx, userID)
	if err != nil {
		return "", internal.NewDependencyError("security state lookup failed", err)
	}
	if state == nil {
		state = &State{UserID: userID}
	}

	token := uuid.NewString()
	expiresAt := time.Now().Add(g.config.ResetTokenDuration)
	state.ResetTokenHash = hashResetToken(token)
	state.ResetTokenExpiresAt = &expiresAt
	state.ResetTokenUsed = false

	if err := g.repo.Save(ctx, state); err != nil {
		return "", internal.NewDependencyError("security state update failed", err)
	}

	if err := g.auditor.Record(ctx, audit.Entry{
		UserID:     &userID,
		Action:     audit.ActionPasswordResetRequested,
		EntityType: "user",
		EntityID:   fmt.Sprintf("%d", userID),
		Status:     audit.StatusPending,
	}); err != nil {
		g.logger.Warn("reset token audit failed", "user_id", userID, "error", err)
	}

	return token, nil
}

// ConsumeResetToken validates and burns a reset token. Expired or already-used
// tokens fail distinctly and the failure is audited.
func (g *Guard) ConsumeResetToken(ctx context.Context, userID int64, token string) error {
	mu := g.lockFor(userID)
	mu.Lock()
	defer mu.Unlock()

	state, err := g.repo.GetByUserID(ctx, userID)
	if err != nil {
		return internal.NewDependencyError("security state lookup failed", err)
	}

	failure := func(cause *internal.AppError) error {
		if auditErr := g.auditor.Record(ctx, audit.Entry{
			UserID:     &userID,
			Action:     audit.ActionPasswordResetFailed,
			EntityType: "user",
			EntityID:   fmt.Sprintf("%d", userID),
			NewValue:   audit.Snapshot(map[string]interface{}{"reason": cause.Code}),
			Status:     audit.StatusFailure,
		}); auditErr != nil {
			g.logger.Warn("reset failure audit failed", "user_id", userID, "error", auditErr)
		}
		return cause
	}

	if state == nil || state.ResetTokenHash == "" || state.ResetTokenUsed {
		return failure(internal.ErrResetTokenInvalid)
	}
	if state.ResetTokenExpiresAt == nil || !state.ResetTokenExpiresAt.After(time.Now()) {
		return failure(internal.ErrResetTokenExpired)
	}
	if subtle.ConstantTimeCompare([]byte(state.ResetTokenHash), []byte(hashResetToken(token))) != 1 {
		return failure(internal.ErrResetTokenInvalid)
	}

	state.ResetTokenUsed = true
	if err := g.repo.Save(ctx, state); err != nil {
		return internal.NewDependencyError("security state update failed", err)
	}
	return nil
}

func hashResetToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
