package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"chatline/api/internal/models"
)

var ErrBlacklistEntryNotFound = errors.New("blacklist entry not found")

// BlacklistStore is the append-only deny-list of revoked token strings.
type BlacklistStore interface {
	Add(ctx context.Context, entry models.BlacklistEntry) error
	Contains(ctx context.Context, token string) (bool, error)
	GetByToken(ctx context.Context, token string) (models.BlacklistEntry, error)
	PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type BlacklistRepository struct {
	pool *pgxpool.Pool
}

var _ BlacklistStore = (*BlacklistRepository)(nil)

func NewBlacklistRepository(pool *pgxpool.Pool) *BlacklistRepository {
	return &BlacklistRepository{pool: pool}
}

func (r *BlacklistRepository) Add(ctx context.Context, entry models.BlacklistEntry) error {
	const query = `
		INSERT INTO blacklist_tokens (
			id, token, session_id, user_id, reason, blacklisted_at
		) VALUES (
			$1, $2, $3, $4, $5, $6
		)
		ON CONFLICT (token) DO NOTHING
	`

	_, err := r.pool.Exec(ctx, query,
		entry.ID,
		entry.Token,
		entry.SessionID,
		entry.UserID,
		entry.Reason,
		entry.BlacklistedAt,
	)
	return err
}

func (r *BlacklistRepository) Contains(ctx context.Context, token string) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM blacklist_tokens WHERE token = $1)`
	var exists bool
	if err := r.pool.QueryRow(ctx, query, token).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

func (r *BlacklistRepository) GetByToken(ctx context.Context, token string) (models.BlacklistEntry, error) {
	const query = `
		SELECT id, token, session_id, user_id, reason, blacklisted_at
		FROM blacklist_tokens
		WHERE token = $1
	`

	row := r.pool.QueryRow(ctx, query, token)
	var entry models.BlacklistEntry
	if err := row.Scan(
		&entry.ID,
		&entry.Token,
		&entry.SessionID,
		&entry.UserID,
		&entry.Reason,
		&entry.BlacklistedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.BlacklistEntry{}, ErrBlacklistEntryNotFound
		}
		return models.BlacklistEntry{}, err
	}
	return entry, nil
}

func (r *BlacklistRepository) PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	const query = `DELETE FROM blacklist_tokens WHERE blacklisted_at < $1`
	cmd, err := r.pool.Exec(ctx, query, cutoff)
	if err != nil {
		return 0, err
	}
	return cmd.RowsAffected(), nil
}
