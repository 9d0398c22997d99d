package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"chatline/api/internal/models"
)

var ErrQrSessionNotFound = errors.New("qr session not found")

// QrStore persists QR login handshakes. Every transition is a conditional
// update keyed on the current status, so two racing callers cannot both move
// the same row.
type QrStore interface {
	Create(ctx context.Context, session models.QrLoginSession) error
	GetByToken(ctx context.Context, sessionToken string) (models.QrLoginSession, error)
	// Transition moves sessionToken from one status to another. Returns
	// false when the row was not in the expected status.
	Transition(ctx context.Context, sessionToken string, from, to models.QrLoginStatus) (bool, error)
	// Confirm binds the confirming user while moving SCANNED -> CONFIRMED.
	Confirm(ctx context.Context, sessionToken string, userID string, at time.Time) (bool, error)
	ExpireStale(ctx context.Context, now time.Time) (int64, error)
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type QrRepository struct {
	pool *pgxpool.Pool
}

var _ QrStore = (*QrRepository)(nil)

func NewQrRepository(pool *pgxpool.Pool) *QrRepository {
	return &QrRepository{pool: pool}
}

const qrColumns = `id, session_token, device_id, device_name, platform, COALESCE(user_id, ''), status, created_at, expires_at, confirmed_at`

func (r *QrRepository) Create(ctx context.Context, session models.QrLoginSession) error {
	const query = `
		INSERT INTO qr_login_sessions (
			id, session_token, device_id, device_name, platform, status, created_at, expires_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8
		)
	`

	_, err := r.pool.Exec(ctx, query,
		session.ID,
		session.SessionToken,
		session.DeviceID,
		session.DeviceName,
		session.Platform,
		session.Status,
		session.CreatedAt,
		session.ExpiresAt,
	)
	return err
}

func (r *QrRepository) GetByToken(ctx context.Context, sessionToken string) (models.QrLoginSession, error) {
	const query = `
		SELECT ` + qrColumns + `
		FROM qr_login_sessions
		WHERE session_token = $1
	`

	row := r.pool.QueryRow(ctx, query, sessionToken)
	session, err := scanQrSession(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.QrLoginSession{}, ErrQrSessionNotFound
		}
		return models.QrLoginSession{}, err
	}
	return session, nil
}

func (r *QrRepository) Transition(ctx context.Context, sessionToken string, from, to models.QrLoginStatus) (bool, error) {
	const query = `
		UPDATE qr_login_sessions
		SET status = $3
		WHERE session_token = $1 AND status = $2
	`

	cmd, err := r.pool.Exec(ctx, query, sessionToken, from, to)
	if err != nil {
		return false, err
	}
	return cmd.RowsAffected() > 0, nil
}

func (r *QrRepository) Confirm(ctx context.Context, sessionToken string, userID string, at time.Time) (bool, error) {
	const query = `
		UPDATE qr_login_sessions
		SET status = $3, user_id = $2, confirmed_at = $4
		WHERE session_token = $1 AND status = $5
	`

	cmd, err := r.pool.Exec(ctx, query, sessionToken, userID, models.QrStatusConfirmed, at, models.QrStatusScanned)
	if err != nil {
		return false, err
	}
	return cmd.RowsAffected() > 0, nil
}

func (r *QrRepository) ExpireStale(ctx context.Context, now time.Time) (int64, error) {
	const query = `
		UPDATE qr_login_sessions
		SET status = $1
		WHERE status IN ($2, $3) AND expires_at < $4
	`

	cmd, err := r.pool.Exec(ctx, query, models.QrStatusExpired, models.QrStatusPending, models.QrStatusScanned, now)
	if err != nil {
		return 0, err
	}
	return cmd.RowsAffected(), nil
}

func (r *QrRepository) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	const query = `DELETE FROM qr_login_sessions WHERE created_at < $1`
	cmd, err := r.pool.Exec(ctx, query, cutoff)
	if err != nil {
		return 0, err
	}
	return cmd.RowsAffected(), nil
}

func scanQrSession(row pgx.Row) (models.QrLoginSession, error) {
	var session models.QrLoginSession
	err := row.Scan(
		&session.ID,
		&session.SessionToken,
		&session.DeviceID,
		&session.DeviceName,
		&session.Platform,
		&session.UserID,
		&session.Status,
		&session.CreatedAt,
		&session.ExpiresAt,
		&session.ConfirmedAt,
	)
	return session, err
}
