package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"chatline/api/internal/config"
	"chatline/api/internal/ids"
	"chatline/api/internal/models"
	"chatline/api/internal/repository"
	"chatline/api/internal/security"
)

// AuthService is the credential issuer: it signs access tokens, stores
// access/refresh pairs, rotates refresh tokens, and answers the per-request
// validity question for the authentication gate.
type AuthService struct {
	users    repository.UserStore
	tokens   repository.TokenStore
	sessions *SessionService
	revoker  *Revoker
	cfg      *config.AppConfig
	log      zerolog.Logger
}

func NewAuthService(
	users repository.UserStore,
	tokens repository.TokenStore,
	sessions *SessionService,
	revoker *Revoker,
	cfg *config.AppConfig,
	log zerolog.Logger,
) *AuthService {
	return &AuthService{
		users:    users,
		tokens:   tokens,
		sessions: sessions,
		revoker:  revoker,
		cfg:      cfg,
		log:      log,
	}
}

type LoginInput struct {
	Phone    string
	Password string
	Device   models.DeviceInfo
}

type AuthResult struct {
	AccessToken   string
	AccessExpiry  time.Time
	RefreshToken  string
	RefreshExpiry time.Time
	SessionID     string
	User          models.User
}

// Identity is the resolved caller attached to authenticated requests.
type Identity struct {
	UserID    string
	SessionID string
}

func (s *AuthService) Login(ctx context.Context, input LoginInput) (AuthResult, error) {
	input.Phone = strings.TrimSpace(input.Phone)
	user, err := s.users.FindByPhone(ctx, input.Phone)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return AuthResult{}, ErrInvalidCredential
		}
		return AuthResult{}, err
	}

	if user.Status != models.UserStatusActive {
		return AuthResult{}, ErrUserSuspended
	}

	ok, err := security.VerifyPassword(input.Password, user.PasswordHash)
	if err != nil || !ok {
		return AuthResult{}, ErrInvalidCredential
	}

	session, err := s.sessions.CreateSession(ctx, user.ID, input.Device)
	if err != nil {
		return AuthResult{}, err
	}

	result, err := s.Issue(ctx, session)
	if err != nil {
		return AuthResult{}, err
	}
	result.User = user

	if err := s.users.UpdateLastLogin(ctx, user.ID, session.LoginTime); err != nil {
		s.log.Warn().Err(err).Str("user_id", user.ID).Msg("update last login failed")
	}

	return result, nil
}

// Issue creates a fresh access/refresh pair bound to the session.
func (s *AuthService) Issue(ctx context.Context, session models.DeviceSession) (AuthResult, error) {
	accessToken, accessExpiry, err := security.GenerateAccessToken(
		s.cfg.Auth.JWTAccessSecret,
		session.UserID,
		session.ID,
		s.cfg.Auth.JWTAccessTTL,
	)
	if err != nil {
		return AuthResult{}, err
	}

	refreshToken, refreshHash, err := security.GenerateOpaqueToken(64)
	if err != nil {
		return AuthResult{}, err
	}
	refreshExpiry := time.Now().Add(s.cfg.Auth.RefreshTTL)

	pair := models.TokenPair{
		ID:            ids.New(),
		SessionID:     session.ID,
		AccessToken:   accessToken,
		AccessExpiry:  accessExpiry,
		RefreshHash:   refreshHash,
		RefreshExpiry: refreshExpiry,
	}
	if err := s.tokens.Create(ctx, pair); err != nil {
		return AuthResult{}, err
	}

	return AuthResult{
		AccessToken:   accessToken,
		AccessExpiry:  accessExpiry,
		RefreshToken:  refreshToken,
		RefreshExpiry: refreshExpiry,
		SessionID:     session.ID,
	}, nil
}

// Refresh redeems a refresh token for a brand-new pair. The outgoing pair is
// blacklisted before the stored row is claimed, so any presentation that
// misses the row is guaranteed to find the deny-list entry: a second
// redemption is always classified as reuse and revokes the whole session,
// since reuse signals likely theft.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (AuthResult, error) {
	hash := security.HashOpaqueToken(refreshToken)

	pair, err := s.tokens.GetByRefreshHash(ctx, hash)
	if err != nil {
		if errors.Is(err, repository.ErrTokenPairNotFound) {
			return AuthResult{}, s.handleUnknownRefresh(ctx, refreshToken)
		}
		return AuthResult{}, err
	}

	now := time.Now()
	if now.After(pair.RefreshExpiry) {
		// An expired token is dead, not stolen. Drop the stale row.
		if _, err := s.tokens.ClaimByRefreshHash(ctx, hash); err != nil && !errors.Is(err, repository.ErrTokenPairNotFound) {
			return AuthResult{}, err
		}
		return AuthResult{}, ErrExpiredRefreshToken
	}

	session, err := s.sessions.GetSession(ctx, pair.SessionID)
	if err != nil {
		return AuthResult{}, err
	}
	if !session.Active() {
		return AuthResult{}, ErrRevokedCredential
	}

	// Retire the outgoing pair before claiming it. The claim is the
	// single-use gate; writing the blacklist entries first means a
	// concurrent redemption that loses the claim observes them.
	if err := s.revoker.Blacklist(ctx, pair.AccessToken, session.ID, session.UserID, models.RevokeReasonTokenRefresh, now); err != nil {
		return AuthResult{}, err
	}
	if err := s.revoker.BlacklistRefreshHash(ctx, hash, session.ID, session.UserID, models.RevokeReasonTokenRefresh, now); err != nil {
		return AuthResult{}, err
	}

	if _, err := s.tokens.ClaimByRefreshHash(ctx, hash); err != nil {
		if errors.Is(err, repository.ErrTokenPairNotFound) {
			// Lost the claim race: another redemption spent the token first.
			return AuthResult{}, s.handleUnknownRefresh(ctx, refreshToken)
		}
		return AuthResult{}, err
	}

	result, err := s.Issue(ctx, session)
	if err != nil {
		return AuthResult{}, err
	}

	user, err := s.users.GetByID(ctx, session.UserID)
	if err == nil {
		result.User = user
	}
	return result, nil
}

func (s *AuthService) handleUnknownRefresh(ctx context.Context, refreshToken string) error {
	entry, err := s.revoker.RevokedRefresh(ctx, security.HashOpaqueToken(refreshToken))
	if err != nil {
		if errors.Is(err, repository.ErrBlacklistEntryNotFound) {
			return ErrInvalidCredential
		}
		return err
	}

	// A retired token came back, whether rotated out or killed with its
	// session: revoke everything tied to it before reporting the reuse.
	s.log.Warn().
		Str("session_id", entry.SessionID).
		Str("user_id", entry.UserID).
		Msg("refresh token reuse detected, revoking session")

	if err := s.sessions.Logout(ctx, entry.SessionID, models.RevokeReasonSessionKick); err != nil && !errors.Is(err, ErrSessionNotFound) {
		return err
	}
	return ErrReusedRefreshToken
}

// Validate answers the gate's question: signature valid, not expired, not
// blacklisted, and the backing session still active. All four checks are
// mandatory; any failure is a rejection.
func (s *AuthService) Validate(ctx context.Context, accessToken string) (Identity, error) {
	claims, err := security.ParseAccessToken(accessToken, s.cfg.Auth.JWTAccessSecret)
	if err != nil {
		if errors.Is(err, security.ErrTokenExpired) {
			return Identity{}, ErrExpiredCredential
		}
		return Identity{}, ErrInvalidCredential
	}

	blacklisted, err := s.revoker.IsBlacklisted(ctx, accessToken)
	if err != nil {
		return Identity{}, err
	}
	if blacklisted {
		return Identity{}, ErrRevokedCredential
	}

	session, err := s.sessions.GetSession(ctx, claims.SessionID)
	if err != nil {
		return Identity{}, err
	}
	if !session.Active() {
		return Identity{}, ErrRevokedCredential
	}
	if session.UserID != claims.UserID {
		return Identity{}, ErrInvalidCredential
	}

	return Identity{UserID: claims.UserID, SessionID: claims.SessionID}, nil
}
