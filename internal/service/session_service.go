package service

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog"

	"chatline/api/internal/ids"
	"chatline/api/internal/models"
	"chatline/api/internal/repository"
)

// SessionService is the device session registry. It owns the one-active-
// session-per-platform invariant: creating a session first closes whatever
// was active for the same (user, platform) and revokes its credentials.
type SessionService struct {
	sessions repository.SessionStore
	revoker  CredentialRevoker
	log      zerolog.Logger
}

func NewSessionService(sessions repository.SessionStore, revoker CredentialRevoker, log zerolog.Logger) *SessionService {
	return &SessionService{
		sessions: sessions,
		revoker:  revoker,
		log:      log,
	}
}

// CreateSession evicts any active session on the same platform before the
// new one is written. The eviction is a conditional update on the live rows
// and the schema carries a partial unique index on active (user, platform),
// so two near-simultaneous logins serialize: the loser either observes and
// closes the winner's predecessor, or its insert collides with the winner's
// fresh row and it retries the evict-then-create once.
func (s *SessionService) CreateSession(ctx context.Context, userID string, device models.DeviceInfo) (models.DeviceSession, error) {
	session, err := s.evictAndCreate(ctx, userID, device)
	if err != nil && isUniqueViolation(err) {
		session, err = s.evictAndCreate(ctx, userID, device)
	}
	return session, err
}

func (s *SessionService) evictAndCreate(ctx context.Context, userID string, device models.DeviceInfo) (models.DeviceSession, error) {
	now := time.Now()

	evicted, err := s.sessions.CloseActive(ctx, userID, device.Platform, now)
	if err != nil {
		return models.DeviceSession{}, err
	}
	for _, oldID := range evicted {
		if err := s.revoker.RevokeSession(ctx, oldID, userID, models.RevokeReasonForcedEviction); err != nil {
			return models.DeviceSession{}, err
		}
		s.log.Info().
			Str("user_id", userID).
			Str("session_id", oldID).
			Str("platform", string(device.Platform)).
			Msg("evicted prior session")
	}

	session := models.DeviceSession{
		ID:             ids.New(),
		UserID:         userID,
		Platform:       device.Platform,
		DeviceID:       device.DeviceID,
		DeviceName:     device.DeviceName,
		IPAddress:      device.IPAddress,
		Location:       device.Location,
		LoginTime:      now,
		LastActiveTime: now,
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		return models.DeviceSession{}, err
	}
	return session, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func (s *SessionService) GetSession(ctx context.Context, sessionID string) (models.DeviceSession, error) {
	session, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, repository.ErrSessionNotFound) {
			return models.DeviceSession{}, ErrSessionNotFound
		}
		return models.DeviceSession{}, err
	}
	return session, nil
}

// Logout closes one session and revokes its credentials. A session that is
// already logged out (or unknown) reports ErrSessionNotFound.
func (s *SessionService) Logout(ctx context.Context, sessionID string, reason models.RevokeReason) error {
	session, err := s.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}

	closed, err := s.sessions.Close(ctx, sessionID, time.Now())
	if err != nil {
		return err
	}
	if !closed {
		return ErrSessionNotFound
	}

	return s.revoker.RevokeSession(ctx, sessionID, session.UserID, reason)
}

// LogoutAll closes every active session of the user. keepSessionID spares
// the caller's own session; pass "" to close everything.
func (s *SessionService) LogoutAll(ctx context.Context, userID string, keepSessionID string, reason models.RevokeReason) (int, error) {
	closed, err := s.sessions.CloseAllForUser(ctx, userID, keepSessionID, time.Now())
	if err != nil {
		return 0, err
	}
	for _, id := range closed {
		if err := s.revoker.RevokeSession(ctx, id, userID, reason); err != nil {
			return 0, err
		}
	}
	return len(closed), nil
}

// Touch refreshes last_active_time. Best-effort: failures are logged, never
// surfaced to the request that triggered the touch.
func (s *SessionService) Touch(ctx context.Context, sessionID string, ip string) {
	if err := s.sessions.Touch(ctx, sessionID, ip); err != nil {
		s.log.Debug().Err(err).Str("session_id", sessionID).Msg("session touch failed")
	}
}

func (s *SessionService) ListSessions(ctx context.Context, userID string, filter repository.SessionFilter) ([]models.DeviceSession, error) {
	return s.sessions.ListByUser(ctx, userID, filter)
}
