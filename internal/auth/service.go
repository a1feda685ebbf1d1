package auth

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	internal "github.com/yatrisafe/tourist-safety/internal"
	"github.com/yatrisafe/tourist-safety/internal/audit"
	"github.com/yatrisafe/tourist-safety/internal/core/common/validation"
	"github.com/yatrisafe/tourist-safety/internal/core/events"
	"github.com/yatrisafe/tourist-safety/internal/session"
	"github.com/yatrisafe/tourist-safety/internal/user"
)

// SessionManager is the session lifecycle surface the auth service needs.
type SessionManager interface {
	Create(ctx context.Context, userID int64, meta session.DeviceMeta) (*session.Session, error)
	BindAccessToken(ctx context.Context, sessionID, accessToken string) error
	End(ctx context.Context, id string) error
	EndAllForUser(ctx context.Context, userID int64) (int64, error)
	Validate(ctx context.Context, id string) (*session.Session, bool, error)
	ValidateRefresh(ctx context.Context, token string) (*session.Session, bool, error)
	RotateRefreshToken(ctx context.Context, id string) (string, error)
	Touch(ctx context.Context, id string) error
}

// SecurityGuard covers lockout bookkeeping and reset tokens.
type SecurityGuard interface {
	IsLocked(ctx context.Context, userID int64) (bool, error)
	RecordFailedAttempt(ctx context.Context, userID int64) (bool, error)
	RecordSuccessfulLogin(ctx context.Context, userID int64) error
	ResetAttempts(ctx context.Context, userID int64) error
	IssueResetToken(ctx context.Context, userID int64) (string, error)
	ConsumeResetToken(ctx context.Context, userID int64, token string) error
}

type Auditor interface {
	Record(ctx context.Context, entry audit.Entry) error
}

type Publisher interface {
	Publish(ctx context.Context, event events.Event) error
}

const defaultRoleName = "viewer"

// Service orchestrates registration, login, token verification and password
// management across the credential store, session manager and security guard.
type Service struct {
	users       UserRepository
	hasher      *PasswordHasher
	tokens      TokenGenerator
	sessions    SessionManager
	guard       SecurityGuard
	permissions PermissionSource
	auditor     Auditor
	bus         Publisher
	policy      internal.SecurityConfig
	logger      *slog.Logger
}

func NewService(
	users UserRepository,
	hasher *PasswordHasher,
	tokens TokenGenerator,
	sessions SessionManager,
	guard SecurityGuard,
	permissions PermissionSource,
	auditor Auditor,
	bus Publisher,
	policy internal.SecurityConfig,
	logger *slog.Logger,
) *Service {
	return &Service{
		users:       users,
		hasher:      hasher,
		tokens:      tokens,
		sessions:    sessions,
		guard:       guard,
		permissions: permissions,
		auditor:     auditor,
		bus:         bus,
		policy:      policy,
		logger:      logger,
	}
}

// Register creates a user with its credential and security state in one
// transaction; a failure at any point leaves nothing behind.
func (s *Service) Register(ctx context.Context, dto RegisterDTO) (*user.PublicUser, error) {
	dto.Normalize()
	if err := dto.Validate(); err != nil {
		return nil, err
	}
	if err := validation.ValidatePassword(dto.Password, s.policy.MinPasswordLength); err != nil {
		return nil, err
	}

	existing, err := s.users.GetByEmail(ctx, dto.Email)
	if err != nil {
		return nil, internal.NewDependencyError("user lookup failed", err)
	}
	if existing != nil {
		return nil, internal.ErrDuplicateEmail
	}

	hash, err := s.hasher.Hash(dto.Password)
	if err != nil {
		return nil, internal.NewInternalError("password hashing failed", err)
	}

	roleName := dto.RoleName
	if roleName == "" {
		roleName = defaultRoleName
	} else {
		if _, err := s.permissions.GetRole(ctx, roleName); err != nil {
			return nil, err
		}
	}

	u := &user.User{
		Email:      dto.Email,
		Name:       dto.Name,
		Phone:      dto.Phone,
		Department: dto.Department,
		RoleName:   roleName,
		IsActive:   true,
	}
	if err := s.users.CreateWithCredential(ctx, u, hash); err != nil {
		// A racing registration can slip past the lookup above; the store
		// reports it as the same conflict the lookup would have.
		if _, ok := internal.IsAppError(err); ok {
			return nil, err
		}
		return nil, internal.NewDependencyError("user create failed", err)
	}

	if err := s.auditor.Record(ctx, audit.Entry{
		UserID:     &u.ID,
		Action:     audit.ActionUserCreated,
		EntityType: "user",
		EntityID:   strconv.FormatInt(u.ID, 10),
		NewValue:   audit.Snapshot(map[string]interface{}{"email": u.Email, "role": u.RoleName}),
		Status:     audit.StatusSuccess,
	}); err != nil {
		s.logger.Warn("registration audit failed", "user_id", u.ID, "error", err)
	}
	if s.bus != nil {
		_ = s.bus.Publish(ctx, events.NewSecurityEvent(events.EventUserRegistered, map[string]interface{}{
			"user_id": u.ID,
			"email":   u.Email,
		}))
	}

	public := u.Public()
	return &public, nil
}

// Login authenticates credentials and opens a session. Every failure mode that
// depends on account state surfaces as the same generic error so the endpoint
// cannot be used to enumerate accounts; the real reason goes to the audit
// trail and the log.
func (s *Service) Login(ctx context.Context, dto LoginDTO, meta session.DeviceMeta) (*LoginResult, error) {
	dto.Normalize()
	if err := dto.Validate(); err != nil {
		return nil, err
	}

	u, err := s.users.GetByEmail(ctx, dto.Email)
	if err != nil {
		return nil, internal.NewDependencyError("user lookup failed", err)
	}
	if u == nil {
		// Unknown account still pays for one bcrypt comparison.
		s.hasher.DummyCompare(dto.Password)
		return nil, internal.ErrInvalidCredentials
	}
	if !u.IsActive {
		s.hasher.DummyCompare(dto.Password)
		s.recordLoginFailure(ctx, u.ID, meta, "account_inactive")
		return nil, internal.ErrInvalidCredentials
	}

	// Lockout is checked before the password so a locked account leaks
	// nothing about whether the supplied password was right.
	locked, err := s.guard.IsLocked(ctx, u.ID)
	if err != nil {
		return nil, err
	}
	if locked {
		s.hasher.DummyCompare(dto.Password)
		s.recordLoginFailure(ctx, u.ID, meta, "account_locked")
		return nil, internal.ErrInvalidCredentials
	}

	cred, err := s.users.GetCredential(ctx, u.ID)
	if err != nil {
		return nil, internal.NewDependencyError("credential lookup failed", err)
	}
	if cred == nil {
		s.hasher.DummyCompare(dto.Password)
		s.logger.Error("user has no credential record", "user_id", u.ID)
		return nil, internal.ErrInvalidCredentials
	}

	if !s.hasher.Verify(cred.PasswordHash, dto.Password) {
		if _, err := s.guard.RecordFailedAttempt(ctx, u.ID); err != nil {
			s.logger.Error("failed attempt bookkeeping failed", "user_id", u.ID, "error", err)
		}
		s.recordLoginFailure(ctx, u.ID, meta, "wrong_password")
		if s.bus != nil {
			_ = s.bus.Publish(ctx, events.NewSecurityEvent(events.EventLoginFailed, map[string]interface{}{
				"user_id": u.ID,
				"ip":      meta.IPAddress,
			}))
		}
		return nil, internal.ErrInvalidCredentials
	}

	if err := s.guard.RecordSuccessfulLogin(ctx, u.ID); err != nil {
		return nil, err
	}

	now := time.Now()
	if err := s.users.RecordLogin(ctx, u.ID, now, meta.IPAddress); err != nil {
		s.logger.Warn("login stamp update failed", "user_id", u.ID, "error", err)
	}

	sess, err := s.sessions.Create(ctx, u.ID, meta)
	if err != nil {
		return nil, internal.NewDependencyError("session create failed", err)
	}

	token, expiresAt, err := s.tokens.IssueAccessToken(u.ID, u.Email, u.RoleName, sess.ID)
	if err != nil {
		// The login must not half-succeed: without a token the session is
		// unusable, so close it again.
		if endErr := s.sessions.End(ctx, sess.ID); endErr != nil {
			s.logger.Error("orphan session cleanup failed", "session_id", sess.ID, "error", endErr)
		}
		return nil, internal.NewInternalError("token issuance failed", err)
	}
	if err := s.sessions.BindAccessToken(ctx, sess.ID, token); err != nil {
		s.logger.Warn("access token binding failed", "session_id", sess.ID, "error", err)
	}

	if perms, err := s.permissions.PermissionsFor(ctx, u.ID); err == nil {
		u.Permissions = perms
	} else {
		s.logger.Warn("permission resolution failed at login", "user_id", u.ID, "error", err)
	}

	if err := s.auditor.Record(ctx, audit.Entry{
		UserID:     &u.ID,
		SessionID:  sess.ID,
		Action:     audit.ActionUserLogin,
		EntityType: "user",
		EntityID:   strconv.FormatInt(u.ID, 10),
		Status:     audit.StatusSuccess,
		IPAddress:  meta.IPAddress,
	}); err != nil {
		s.logger.Warn("login audit failed", "user_id", u.ID, "error", err)
	}
	if s.bus != nil {
		_ = s.bus.Publish(ctx, events.NewSecurityEvent(events.EventUserLogin, map[string]interface{}{
			"user_id":    u.ID,
			"session_id": sess.ID,
			"ip":         meta.IPAddress,
		}))
	}

	return &LoginResult{
		User:         u.Public(),
		Session:      sess,
		AccessToken:  token,
		RefreshToken: sess.RefreshToken,
		ExpiresAt:    expiresAt,
	}, nil
}

func (s *Service) recordLoginFailure(ctx context.Context, userID int64, meta session.DeviceMeta, reason string) {
	if err := s.auditor.Record(ctx, audit.Entry{
		UserID:     &userID,
		Action:     audit.ActionLoginFailed,
		EntityType: "user",
		EntityID:   strconv.FormatInt(userID, 10),
		NewValue:   audit.Snapshot(map[string]interface{}{"reason": reason}),
		Status:     audit.StatusFailure,
		IPAddress:  meta.IPAddress,
	}); err != nil {
		s.logger.Warn("login failure audit failed", "user_id", userID, "error", err)
	}
}

// Refresh exchanges a still-valid refresh token for a new access token and a
// replacement refresh token. The session behind the token must be active and
// inside its absolute expiry; an expired session means a full re-login. Every
// rejection is the same generic error so the endpoint reveals nothing about
// why a token stopped working.
func (s *Service) Refresh(ctx context.Context, dto RefreshDTO, meta session.DeviceMeta) (*LoginResult, error) {
	dto.Normalize()
	if err := dto.Validate(); err != nil {
		return nil, err
	}

	sess, ok, err := s.sessions.ValidateRefresh(ctx, dto.RefreshToken)
	if err != nil {
		return nil, internal.NewDependencyError("session lookup failed", err)
	}
	if !ok {
		return nil, internal.ErrInvalidToken
	}

	u, err := s.users.GetByID(ctx, sess.UserID)
	if err != nil {
		return nil, internal.NewDependencyError("user lookup failed", err)
	}
	if u == nil || !u.IsActive {
		return nil, internal.ErrInvalidToken
	}

	token, expiresAt, err := s.tokens.IssueAccessToken(u.ID, u.Email, u.RoleName, sess.ID)
	if err != nil {
		return nil, internal.NewInternalError("token issuance failed", err)
	}

	// Rotation burns the presented token before anything is returned, so a
	// replayed refresh fails.
	newRefresh, err := s.sessions.RotateRefreshToken(ctx, sess.ID)
	if err != nil {
		return nil, internal.NewDependencyError("refresh token rotation failed", err)
	}
	sess.RefreshToken = newRefresh

	if err := s.sessions.BindAccessToken(ctx, sess.ID, token); err != nil {
		s.logger.Warn("access token binding failed", "session_id", sess.ID, "error", err)
	}
	if err := s.sessions.Touch(ctx, sess.ID); err != nil {
		s.logger.Warn("session activity update failed", "session_id", sess.ID, "error", err)
	}

	if perms, err := s.permissions.PermissionsFor(ctx, u.ID); err == nil {
		u.Permissions = perms
	} else {
		s.logger.Warn("permission resolution failed at refresh", "user_id", u.ID, "error", err)
	}

	if err := s.auditor.Record(ctx, audit.Entry{
		UserID:     &u.ID,
		SessionID:  sess.ID,
		Action:     audit.ActionTokenRefreshed,
		EntityType: "session",
		EntityID:   sess.ID,
		Status:     audit.StatusSuccess,
		IPAddress:  meta.IPAddress,
	}); err != nil {
		s.logger.Warn("token refresh audit failed", "session_id", sess.ID, "error", err)
	}

	return &LoginResult{
		User:         u.Public(),
		Session:      sess,
		AccessToken:  token,
		RefreshToken: newRefresh,
		ExpiresAt:    expiresAt,
	}, nil
}

// Logout ends the session named by the token. Logging out twice is a no-op.
func (s *Service) Logout(ctx context.Context, sessionID string) error {
	return s.sessions.End(ctx, sessionID)
}

// ValidateAccessToken checks only the token itself, not the session behind it.
func (s *Service) ValidateAccessToken(tokenString string) (*Claims, error) {
	return s.tokens.ValidateToken(tokenString)
}

// VerifyToken resolves a token to its authenticated user. An invalid,
// expired or session-revoked token returns (nil, nil): callers branch on
// presence. An error means a dependency failed and the caller must reject the
// request rather than guess.
func (s *Service) VerifyToken(ctx context.Context, tokenString string) (*user.User, error) {
	claims, err := s.tokens.ValidateToken(tokenString)
	if err != nil {
		if appErr, ok := internal.IsAppError(err); ok && appErr.Type == internal.ErrorTypeUnauthorized {
			return nil, nil
		}
		return nil, err
	}

	_, valid, err := s.sessions.Validate(ctx, claims.SessionID)
	if err != nil {
		return nil, internal.NewDependencyError("session lookup failed", err)
	}
	if !valid {
		return nil, nil
	}

	userID, err := strconv.ParseInt(claims.UserID, 10, 64)
	if err != nil {
		return nil, nil
	}
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, internal.NewDependencyError("user lookup failed", err)
	}
	if u == nil || !u.IsActive {
		return nil, nil
	}

	if err := s.sessions.Touch(ctx, claims.SessionID); err != nil {
		s.logger.Warn("session activity update failed", "session_id", claims.SessionID, "error", err)
	}

	perms, err := s.permissions.PermissionsFor(ctx, u.ID)
	if err != nil {
		return nil, err
	}
	u.Permissions = perms
	return u, nil
}

// ChangePassword rotates the caller's own password. The current password must
// verify, and the new one may not match any hash in the rotation history.
// Existing sessions stay valid; only a reset revokes them.
func (s *Service) ChangePassword(ctx context.Context, userID int64, dto ChangePasswordDTO) error {
	if err := dto.Validate(); err != nil {
		return err
	}
	if err := validation.ValidatePassword(dto.NewPassword, s.policy.MinPasswordLength); err != nil {
		return err
	}

	cred, err := s.users.GetCredential(ctx, userID)
	if err != nil {
		return internal.NewDependencyError("credential lookup failed", err)
	}
	if cred == nil {
		return internal.ErrUserNotFound
	}
	if !s.hasher.Verify(cred.PasswordHash, dto.CurrentPassword) {
		return internal.ErrInvalidCredentials
	}
	if s.isReusedPassword(cred, dto.NewPassword) {
		return internal.ErrPasswordReused
	}

	if err := s.rotateCredential(ctx, cred, dto.NewPassword); err != nil {
		return err
	}
	if err := s.guard.ResetAttempts(ctx, userID); err != nil {
		s.logger.Warn("attempt counter reset failed", "user_id", userID, "error", err)
	}

	if err := s.auditor.Record(ctx, audit.Entry{
		UserID:     &userID,
		Action:     audit.ActionPasswordChanged,
		EntityType: "user",
		EntityID:   strconv.FormatInt(userID, 10),
		Status:     audit.StatusSuccess,
	}); err != nil {
		s.logger.Warn("password change audit failed", "user_id", userID, "error", err)
	}
	if s.bus != nil {
		_ = s.bus.Publish(ctx, events.NewSecurityEvent(events.EventPasswordChanged, map[string]interface{}{
			"user_id": userID,
		}))
	}
	return nil
}

// RequestPasswordReset issues a reset token for a known, active account. For
// anything else it silently succeeds so the endpoint cannot confirm whether an
// email is registered. The token itself only travels on the event bus, toward
// whatever delivery channel is subscribed.
func (s *Service) RequestPasswordReset(ctx context.Context, dto PasswordResetRequestDTO) error {
	dto.Normalize()
	if err := dto.Validate(); err != nil {
		return err
	}

	u, err := s.users.GetByEmail(ctx, dto.Email)
	if err != nil {
		return internal.NewDependencyError("user lookup failed", err)
	}
	if u == nil || !u.IsActive {
		s.logger.Info("reset requested for unknown or inactive account")
		return nil
	}

	token, err := s.guard.IssueResetToken(ctx, u.ID)
	if err != nil {
		return err
	}
	if s.bus != nil {
		_ = s.bus.Publish(ctx, events.NewSecurityEvent(events.EventPasswordReset, map[string]interface{}{
			"user_id": u.ID,
			"email":   u.Email,
			"token":   token,
		}))
	}
	return nil
}

// ResetPassword consumes a single-use reset token, rotates the credential,
// clears any lockout and revokes every session the account has.
func (s *Service) ResetPassword(ctx context.Context, dto PasswordResetConfirmDTO) error {
	dto.Normalize()
	if err := dto.Validate(); err != nil {
		return err
	}
	if err := validation.ValidatePassword(dto.NewPassword, s.policy.MinPasswordLength); err != nil {
		return err
	}

	u, err := s.users.GetByEmail(ctx, dto.Email)
	if err != nil {
		return internal.NewDependencyError("user lookup failed", err)
	}
	if u == nil {
		return internal.ErrResetTokenInvalid
	}

	if err := s.guard.ConsumeResetToken(ctx, u.ID, dto.Token); err != nil {
		return err
	}

	cred, err := s.users.GetCredential(ctx, u.ID)
	if err != nil {
		return internal.NewDependencyError("credential lookup failed", err)
	}
	if cred == nil {
		return internal.ErrUserNotFound
	}
	if s.isReusedPassword(cred, dto.NewPassword) {
		return internal.ErrPasswordReused
	}
	if err := s.rotateCredential(ctx, cred, dto.NewPassword); err != nil {
		return err
	}

	if err := s.guard.RecordSuccessfulLogin(ctx, u.ID); err != nil {
		s.logger.Warn("lockout clear failed after reset", "user_id", u.ID, "error", err)
	}
	if _, err := s.sessions.EndAllForUser(ctx, u.ID); err != nil {
		s.logger.Error("session revocation failed after reset", "user_id", u.ID, "error", err)
	}

	if err := s.auditor.Record(ctx, audit.Entry{
		UserID:     &u.ID,
		Action:     audit.ActionPasswordResetCompleted,
		EntityType: "user",
		EntityID:   strconv.FormatInt(u.ID, 10),
		Status:     audit.StatusSuccess,
	}); err != nil {
		s.logger.Warn("password reset audit failed", "user_id", u.ID, "error", err)
	}
	if s.bus != nil {
		_ = s.bus.Publish(ctx, events.NewSecurityEvent(events.EventPasswordChanged, map[string]interface{}{
			"user_id": u.ID,
			"via":     "reset",
		}))
	}
	return nil
}

// isReusedPassword checks the candidate against the current hash and the
// rotation history.
func (s *Service) isReusedPassword(cred *Credential, candidate string) bool {
	if s.hasher.Verify(cred.PasswordHash, candidate) {
		return true
	}
	for _, old := range cred.PasswordHistory {
		if s.hasher.Verify(old, candidate) {
			return true
		}
	}
	return false
}

func (s *Service) rotateCredential(ctx context.Context, cred *Credential, newPassword string) error {
	newHash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return internal.NewInternalError("password hashing failed", err)
	}

	history := append([]string{cred.PasswordHash}, cred.PasswordHistory...)
	if max := s.policy.PasswordHistorySize; max > 0 && len(history) > max {
		history = history[:max]
	}

	cred.PasswordHash = newHash
	cred.PasswordHistory = history
	cred.LastPasswordChange = time.Now()

	if err := s.users.UpdateCredential(ctx, cred); err != nil {
		return internal.NewDependencyError(fmt.Sprintf("credential update failed for user %d", cred.UserID), err)
	}
	return nil
}
