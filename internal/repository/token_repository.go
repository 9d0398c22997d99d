package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"chatline/api/internal/models"
)

var ErrTokenPairNotFound = errors.New("token pair not found")

// TokenStore persists issued access/refresh pairs. ClaimByRefreshHash removes
// the row it returns, so a refresh token can only ever be redeemed once.
type TokenStore interface {
	Create(ctx context.Context, pair models.TokenPair) error
	GetBySession(ctx context.Context, sessionID string) (models.TokenPair, error)
	GetByRefreshHash(ctx context.Context, refreshHash []byte) (models.TokenPair, error)
	ClaimByRefreshHash(ctx context.Context, refreshHash []byte) (models.TokenPair, error)
	DeleteBySession(ctx context.Context, sessionID string) ([]models.TokenPair, error)
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

type TokenRepository struct {
	pool *pgxpool.Pool
}

var _ TokenStore = (*TokenRepository)(nil)

func NewTokenRepository(pool *pgxpool.Pool) *TokenRepository {
	return &TokenRepository{pool: pool}
}

const tokenColumns = `id, session_id, access_token, access_expiry, refresh_hash, refresh_expiry, revoked, created_at`

func (r *TokenRepository) Create(ctx context.Context, pair models.TokenPair) error {
	const query = `
		INSERT INTO token_pairs (
			id, session_id, access_token, access_expiry, refresh_hash, refresh_expiry, revoked, created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, FALSE, NOW()
		)
	`

	_, err := r.pool.Exec(ctx, query,
		pair.ID,
		pair.SessionID,
		pair.AccessToken,
		pair.AccessExpiry,
		pair.RefreshHash,
		pair.RefreshExpiry,
	)
	return err
}

func (r *TokenRepository) GetBySession(ctx context.Context, sessionID string) (models.TokenPair, error) {
	const query = `
		SELECT ` + tokenColumns + `
		FROM token_pairs
		WHERE session_id = $1
		ORDER BY created_at DESC
		LIMIT 1
	`

	row := r.pool.QueryRow(ctx, query, sessionID)
	pair, err := scanTokenPair(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.TokenPair{}, ErrTokenPairNotFound
		}
		return models.TokenPair{}, err
	}
	return pair, nil
}

func (r *TokenRepository) GetByRefreshHash(ctx context.Context, refreshHash []byte) (models.TokenPair, error) {
	const query = `
		SELECT ` + tokenColumns + `
		FROM token_pairs
		WHERE refresh_hash = $1
	`

	row := r.pool.QueryRow(ctx, query, refreshHash)
	pair, err := scanTokenPair(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.TokenPair{}, ErrTokenPairNotFound
		}
		return models.TokenPair{}, err
	}
	return pair, nil
}

// ClaimByRefreshHash atomically deletes and returns the pair holding the
// given refresh hash. Losing a concurrent claim surfaces as
// ErrTokenPairNotFound, which the issuer treats as possible token reuse.
func (r *TokenRepository) ClaimByRefreshHash(ctx context.Context, refreshHash []byte) (models.TokenPair, error) {
	const query = `
		DELETE FROM token_pairs
		WHERE refresh_hash = $1
		RETURNING ` + tokenColumns + `
	`

	row := r.pool.QueryRow(ctx, query, refreshHash)
	pair, err := scanTokenPair(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.TokenPair{}, ErrTokenPairNotFound
		}
		return models.TokenPair{}, err
	}
	return pair, nil
}

func (r *TokenRepository) DeleteBySession(ctx context.Context, sessionID string) ([]models.TokenPair, error) {
	const query = `
		DELETE FROM token_pairs
		WHERE session_id = $1
		RETURNING ` + tokenColumns + `
	`

	rows, err := r.pool.Query(ctx, query, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var pairs []models.TokenPair
	for rows.Next() {
		pair, err := scanTokenPair(rows)
		if err != nil {
			return nil, err
		}
		pairs = append(pairs, pair)
	}
	return pairs, rows.Err()
}

func (r *TokenRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	const query = `DELETE FROM token_pairs WHERE refresh_expiry < $1`
	cmd, err := r.pool.Exec(ctx, query, now)
	if err != nil {
		return 0, err
	}
	return cmd.RowsAffected(), nil
}

func scanTokenPair(row pgx.Row) (models.TokenPair, error) {
	var pair models.TokenPair
	err := row.Scan(
		&pair.ID,
		&pair.SessionID,
		&pair.AccessToken,
		&pair.AccessExpiry,
		&pair.RefreshHash,
		&pair.RefreshExpiry,
		&pair.Revoked,
		&pair.CreatedAt,
	)
	return pair, err
}
