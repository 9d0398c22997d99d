package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"chatline/api/internal/config"
	"chatline/api/internal/ids"
	"chatline/api/internal/models"
	"chatline/api/internal/repository"
	"chatline/api/internal/security"
)

// QrAction is the confirming user's decision.
type QrAction string

const (
	QrActionConfirm QrAction = "confirm"
	QrActionReject  QrAction = "reject"
)

// QrService drives the cross-device login handshake:
//
//	PENDING -> SCANNED -> CONFIRMED -> USED
//	                   -> REJECTED
//	PENDING|SCANNED -> EXPIRED (wall clock)
//
// Every transition is a conditional update keyed on the current status, and
// credentials are only materialized by the poll that wins the
// CONFIRMED -> USED swap.
type QrService struct {
	qr       repository.QrStore
	users    repository.UserStore
	sessions *SessionService
	issuer   *AuthService
	cfg      *config.AppConfig
	log      zerolog.Logger
}

func NewQrService(
	qr repository.QrStore,
	users repository.UserStore,
	sessions *SessionService,
	issuer *AuthService,
	cfg *config.AppConfig,
	log zerolog.Logger,
) *QrService {
	return &QrService{
		qr:       qr,
		users:    users,
		sessions: sessions,
		issuer:   issuer,
		cfg:      cfg,
		log:      log,
	}
}

type QrGenerateResult struct {
	SessionToken string
	QrPayload    string
	Status       models.QrLoginStatus
	ExpiresAt    time.Time
}

func (s *QrService) Generate(ctx context.Context, device models.DeviceInfo) (QrGenerateResult, error) {
	token, _, err := security.GenerateOpaqueToken(32)
	if err != nil {
		return QrGenerateResult{}, err
	}

	now := time.Now()
	session := models.QrLoginSession{
		ID:           ids.New(),
		SessionToken: token,
		DeviceID:     device.DeviceID,
		DeviceName:   device.DeviceName,
		Platform:     device.Platform,
		Status:       models.QrStatusPending,
		CreatedAt:    now,
		ExpiresAt:    now.Add(s.cfg.Auth.QRSessionTTL),
	}
	if err := s.qr.Create(ctx, session); err != nil {
		return QrGenerateResult{}, err
	}

	return QrGenerateResult{
		SessionToken: token,
		QrPayload:    fmt.Sprintf("chatline://qr-login?token=%s", token),
		Status:       models.QrStatusPending,
		ExpiresAt:    session.ExpiresAt,
	}, nil
}

// Scan moves the handshake to SCANNED. Only a PENDING, unexpired session
// can be scanned.
func (s *QrService) Scan(ctx context.Context, sessionToken string) (models.QrLoginSession, error) {
	session, err := s.get(ctx, sessionToken)
	if err != nil {
		return models.QrLoginSession{}, err
	}

	if err := s.lazyExpire(ctx, session); err != nil {
		return models.QrLoginSession{}, err
	}
	if session.Status != models.QrStatusPending {
		return models.QrLoginSession{}, ErrInvalidQrState
	}

	moved, err := s.qr.Transition(ctx, sessionToken, models.QrStatusPending, models.QrStatusScanned)
	if err != nil {
		return models.QrLoginSession{}, err
	}
	if !moved {
		return models.QrLoginSession{}, ErrInvalidQrState
	}

	session.Status = models.QrStatusScanned
	return session, nil
}

// Confirm records the authenticated user's decision. Only a SCANNED,
// unexpired session can be decided.
func (s *QrService) Confirm(ctx context.Context, sessionToken string, userID string, action QrAction) (models.QrLoginStatus, error) {
	session, err := s.get(ctx, sessionToken)
	if err != nil {
		return "", err
	}

	if err := s.lazyExpire(ctx, session); err != nil {
		return "", err
	}
	if session.Status != models.QrStatusScanned {
		return "", ErrInvalidQrState
	}

	switch action {
	case QrActionConfirm:
		moved, err := s.qr.Confirm(ctx, sessionToken, userID, time.Now())
		if err != nil {
			return "", err
		}
		if !moved {
			return "", ErrInvalidQrState
		}
		return models.QrStatusConfirmed, nil
	case QrActionReject:
		moved, err := s.qr.Transition(ctx, sessionToken, models.QrStatusScanned, models.QrStatusRejected)
		if err != nil {
			return "", err
		}
		if !moved {
			return "", ErrInvalidQrState
		}
		return models.QrStatusRejected, nil
	default:
		return "", ErrInvalidQrState
	}
}

type QrPollResult struct {
	Status models.QrLoginStatus
	Auth   *AuthResult
}

// Poll reports the handshake status. The first poll that finds CONFIRMED
// wins the CONFIRMED -> USED swap and is the single place where a device
// session and token pair are materialized for the requesting device; the
// losing poller just sees USED.
func (s *QrService) Poll(ctx context.Context, sessionToken string, clientIP string) (QrPollResult, error) {
	session, err := s.get(ctx, sessionToken)
	if err != nil {
		return QrPollResult{}, err
	}

	switch session.Status {
	case models.QrStatusPending, models.QrStatusScanned:
		if session.ExpiredAt(time.Now()) {
			if _, err := s.qr.Transition(ctx, sessionToken, session.Status, models.QrStatusExpired); err != nil {
				return QrPollResult{}, err
			}
			return QrPollResult{Status: models.QrStatusExpired}, nil
		}
		return QrPollResult{Status: session.Status}, nil

	case models.QrStatusConfirmed:
		claimed, err := s.qr.Transition(ctx, sessionToken, models.QrStatusConfirmed, models.QrStatusUsed)
		if err != nil {
			return QrPollResult{}, err
		}
		if !claimed {
			// A concurrent poll won the swap and issued the credentials.
			return QrPollResult{Status: models.QrStatusUsed}, nil
		}
		result, err := s.materialize(ctx, session, clientIP)
		if err != nil {
			// Hand the claim back so a later poll can retry; a USED row with
			// no credentials ever delivered would strand the device.
			if _, rbErr := s.qr.Transition(ctx, sessionToken, models.QrStatusUsed, models.QrStatusConfirmed); rbErr != nil {
				s.log.Error().Err(rbErr).Str("session_token", sessionToken).Msg("qr claim rollback failed")
			}
			return QrPollResult{}, err
		}
		return result, nil

	default:
		return QrPollResult{Status: session.Status}, nil
	}
}

func (s *QrService) materialize(ctx context.Context, qrSession models.QrLoginSession, clientIP string) (QrPollResult, error) {
	user, err := s.users.GetByID(ctx, qrSession.UserID)
	if err != nil {
		return QrPollResult{}, err
	}

	device := models.DeviceInfo{
		Platform:   qrSession.Platform,
		DeviceID:   qrSession.DeviceID,
		DeviceName: qrSession.DeviceName,
		IPAddress:  clientIP,
	}
	session, err := s.sessions.CreateSession(ctx, user.ID, device)
	if err != nil {
		return QrPollResult{}, err
	}

	result, err := s.issuer.Issue(ctx, session)
	if err != nil {
		return QrPollResult{}, err
	}
	result.User = user

	if err := s.users.UpdateLastLogin(ctx, user.ID, session.LoginTime); err != nil {
		s.log.Warn().Err(err).Str("user_id", user.ID).Msg("update last login failed")
	}

	s.log.Info().
		Str("user_id", user.ID).
		Str("session_id", session.ID).
		Msg("qr login materialized")

	return QrPollResult{Status: models.QrStatusUsed, Auth: &result}, nil
}

func (s *QrService) get(ctx context.Context, sessionToken string) (models.QrLoginSession, error) {
	session, err := s.qr.GetByToken(ctx, sessionToken)
	if err != nil {
		if errors.Is(err, repository.ErrQrSessionNotFound) {
			return models.QrLoginSession{}, ErrSessionNotFound
		}
		return models.QrLoginSession{}, err
	}
	return session, nil
}

// lazyExpire rejects an overdue session and opportunistically marks the row
// EXPIRED so readers and the sweep agree.
func (s *QrService) lazyExpire(ctx context.Context, session models.QrLoginSession) error {
	if !session.ExpiredAt(time.Now()) {
		return nil
	}
	if session.Status == models.QrStatusPending || session.Status == models.QrStatusScanned {
		if _, err := s.qr.Transition(ctx, session.SessionToken, session.Status, models.QrStatusExpired); err != nil {
			s.log.Warn().Err(err).Str("session_token", session.SessionToken).Msg("lazy qr expire failed")
		}
	}
	return ErrQrExpired
}
