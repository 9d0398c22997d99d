package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"chatline/api/internal/config"
	"chatline/api/internal/ids"
	"chatline/api/internal/models"
	"chatline/api/internal/repository"
)

// CredentialRevoker invalidates every credential bound to a session.
type CredentialRevoker interface {
	RevokeSession(ctx context.Context, sessionID string, userID string, reason models.RevokeReason) error
}

// Revoker moves a session's token pair onto the blacklist and deletes the
// stored pair. Postgres is written first so the deny-list survives a redis
// loss; the redis key only accelerates the per-request membership check.
type Revoker struct {
	tokens    repository.TokenStore
	blacklist repository.BlacklistStore
	cache     *redis.Client
	cfg       *config.AppConfig
	log       zerolog.Logger
}

var _ CredentialRevoker = (*Revoker)(nil)

func NewRevoker(
	tokens repository.TokenStore,
	blacklist repository.BlacklistStore,
	cache *redis.Client,
	cfg *config.AppConfig,
	log zerolog.Logger,
) *Revoker {
	return &Revoker{
		tokens:    tokens,
		blacklist: blacklist,
		cache:     cache,
		cfg:       cfg,
		log:       log,
	}
}

func (r *Revoker) RevokeSession(ctx context.Context, sessionID string, userID string, reason models.RevokeReason) error {
	pairs, err := r.tokens.DeleteBySession(ctx, sessionID)
	if err != nil {
		return err
	}

	now := time.Now()
	for _, pair := range pairs {
		if err := r.Blacklist(ctx, pair.AccessToken, sessionID, userID, reason, now); err != nil {
			return err
		}
		if len(pair.RefreshHash) > 0 {
			if err := r.BlacklistRefreshHash(ctx, pair.RefreshHash, sessionID, userID, reason, now); err != nil {
				return err
			}
		}
	}
	return nil
}

// BlacklistRefreshHash records a spent or revoked refresh token under its
// stored hash; the raw refresh token never reaches the deny-list. The entry
// is what lets a later presentation of the token be classified as reuse
// instead of garbage.
func (r *Revoker) BlacklistRefreshHash(ctx context.Context, hash []byte, sessionID string, userID string, reason models.RevokeReason, at time.Time) error {
	return r.Blacklist(ctx, refreshHashKey(hash), sessionID, userID, reason, at)
}

// RevokedRefresh looks up the deny-list entry for a refresh token hash.
func (r *Revoker) RevokedRefresh(ctx context.Context, hash []byte) (models.BlacklistEntry, error) {
	return r.blacklist.GetByToken(ctx, refreshHashKey(hash))
}

// Blacklist appends one token string to the deny-list and mirrors it into
// redis for the hot lookup path.
func (r *Revoker) Blacklist(ctx context.Context, token string, sessionID string, userID string, reason models.RevokeReason, at time.Time) error {
	entry := models.BlacklistEntry{
		ID:            ids.New(),
		Token:         token,
		SessionID:     sessionID,
		UserID:        userID,
		Reason:        reason,
		BlacklistedAt: at,
	}
	if err := r.blacklist.Add(ctx, entry); err != nil {
		return err
	}

	if r.cache != nil {
		key := blacklistKey(token)
		if err := r.cache.Set(ctx, key, string(reason), r.cfg.Auth.BlacklistRetention).Err(); err != nil {
			r.log.Warn().Err(err).Str("session_id", sessionID).Msg("blacklist cache write failed")
		}
	}
	return nil
}

// IsBlacklisted consults redis first and falls back to postgres on a miss,
// so a revoke is visible to the very next check even if the cache write was
// lost.
func (r *Revoker) IsBlacklisted(ctx context.Context, token string) (bool, error) {
	if r.cache != nil {
		n, err := r.cache.Exists(ctx, blacklistKey(token)).Result()
		if err == nil && n > 0 {
			return true, nil
		}
		if err != nil {
			r.log.Warn().Err(err).Msg("blacklist cache read failed")
		}
	}
	return r.blacklist.Contains(ctx, token)
}

func blacklistKey(token string) string {
	sum := sha256.Sum256([]byte(token))
	return "bl:" + hex.EncodeToString(sum[:])
}

func refreshHashKey(hash []byte) string {
	return hex.EncodeToString(hash)
}
