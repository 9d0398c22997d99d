package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"chatline/api/internal/models"
)

var ErrSessionNotFound = errors.New("session not found")

// SessionFilter selects which device sessions a listing returns.
type SessionFilter string

const (
	SessionFilterActive    SessionFilter = "active"
	SessionFilterLoggedOut SessionFilter = "logged_out"
	SessionFilterAll       SessionFilter = "all"
)

// SessionStore persists device sessions. CloseActive and Close are
// conditional updates on logout_time so that concurrent logins for the same
// (user, platform) serialize: only one writer observes the row as active.
type SessionStore interface {
	Create(ctx context.Context, session models.DeviceSession) error
	GetByID(ctx context.Context, id string) (models.DeviceSession, error)
	// CloseActive marks every active session for (userID, platform) as
	// logged out and returns the ids it closed.
	CloseActive(ctx context.Context, userID string, platform models.Platform, at time.Time) ([]string, error)
	// Close marks one session as logged out. Returns false when the session
	// was already logged out or does not exist.
	Close(ctx context.Context, sessionID string, at time.Time) (bool, error)
	// CloseAllForUser logs out every active session of the user except
	// keepSessionID (pass "" to close all) and returns the closed ids.
	CloseAllForUser(ctx context.Context, userID string, keepSessionID string, at time.Time) ([]string, error)
	Touch(ctx context.Context, sessionID string, ip string) error
	ListByUser(ctx context.Context, userID string, filter SessionFilter) ([]models.DeviceSession, error)
	DeleteLoggedOutBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type SessionRepository struct {
	pool *pgxpool.Pool
}

var _ SessionStore = (*SessionRepository)(nil)

func NewSessionRepository(pool *pgxpool.Pool) *SessionRepository {
	return &SessionRepository{pool: pool}
}

const sessionColumns = `id, user_id, platform, device_id, device_name, ip_address, location, login_time, last_active_time, logout_time`

func (r *SessionRepository) Create(ctx context.Context, session models.DeviceSession) error {
	const query = `
		INSERT INTO device_sessions (
			id, user_id, platform, device_id, device_name, ip_address, location, login_time, last_active_time
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $8
		)
	`

	_, err := r.pool.Exec(ctx, query,
		session.ID,
		session.UserID,
		session.Platform,
		session.DeviceID,
		session.DeviceName,
		session.IPAddress,
		session.Location,
		session.LoginTime,
	)
	return err
}

func (r *SessionRepository) GetByID(ctx context.Context, id string) (models.DeviceSession, error) {
	const query = `
		SELECT ` + sessionColumns + `
		FROM device_sessions
		WHERE id = $1
	`

	row := r.pool.QueryRow(ctx, query, id)
	session, err := scanSession(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.DeviceSession{}, ErrSessionNotFound
		}
		return models.DeviceSession{}, err
	}
	return session, nil
}

func (r *SessionRepository) CloseActive(ctx context.Context, userID string, platform models.Platform, at time.Time) ([]string, error) {
	const query = `
		UPDATE device_sessions
		SET logout_time = $3
		WHERE user_id = $1 AND platform = $2 AND logout_time IS NULL
		RETURNING id
	`

	rows, err := r.pool.Query(ctx, query, userID, platform, at)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanIDs(rows)
}

func (r *SessionRepository) Close(ctx context.Context, sessionID string, at time.Time) (bool, error) {
	const query = `
		UPDATE device_sessions
		SET logout_time = $2
		WHERE id = $1 AND logout_time IS NULL
	`

	cmd, err := r.pool.Exec(ctx, query, sessionID, at)
	if err != nil {
		return false, err
	}
	return cmd.RowsAffected() > 0, nil
}

func (r *SessionRepository) CloseAllForUser(ctx context.Context, userID string, keepSessionID string, at time.Time) ([]string, error) {
	const query = `
		UPDATE device_sessions
		SET logout_time = $3
		WHERE user_id = $1 AND logout_time IS NULL AND id <> $2
		RETURNING id
	`

	rows, err := r.pool.Query(ctx, query, userID, keepSessionID, at)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanIDs(rows)
}

func (r *SessionRepository) Touch(ctx context.Context, sessionID string, ip string) error {
	const query = `
		UPDATE device_sessions
		SET last_active_time = NOW(),
		    ip_address = COALESCE(NULLIF($2, ''), ip_address)
		WHERE id = $1 AND logout_time IS NULL
	`
	_, err := r.pool.Exec(ctx, query, sessionID, ip)
	return err
}

func (r *SessionRepository) ListByUser(ctx context.Context, userID string, filter SessionFilter) ([]models.DeviceSession, error) {
	query := `
		SELECT ` + sessionColumns + `
		FROM device_sessions
		WHERE user_id = $1
	`
	switch filter {
	case SessionFilterActive:
		query += ` AND logout_time IS NULL`
	case SessionFilterLoggedOut:
		query += ` AND logout_time IS NOT NULL`
	}
	query += ` ORDER BY login_time DESC`

	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []models.DeviceSession
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, session)
	}
	return sessions, rows.Err()
}

func (r *SessionRepository) DeleteLoggedOutBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	const query = `DELETE FROM device_sessions WHERE logout_time IS NOT NULL AND logout_time < $1`
	cmd, err := r.pool.Exec(ctx, query, cutoff)
	if err != nil {
		return 0, err
	}
	return cmd.RowsAffected(), nil
}

func scanSession(row pgx.Row) (models.DeviceSession, error) {
	var session models.DeviceSession
	err := row.Scan(
		&session.ID,
		&session.UserID,
		&session.Platform,
		&session.DeviceID,
		&session.DeviceName,
		&session.IPAddress,
		&session.Location,
		&session.LoginTime,
		&session.LastActiveTime,
		&session.LogoutTime,
	)
	return session, err
}

func scanIDs(rows pgx.Rows) ([]string, error) {
	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}
