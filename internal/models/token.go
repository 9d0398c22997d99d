package models

import "time"

// RevokeReason records why a credential was blacklisted.
type RevokeReason string

const (
	RevokeReasonManualLogout   RevokeReason = "manual_logout"
	RevokeReasonSessionKick    RevokeReason = "session_kick"
	RevokeReasonTokenRefresh   RevokeReason = "token_refresh"
	RevokeReasonForcedEviction RevokeReason = "forced_eviction"
)

// TokenPair is the persisted access/refresh credential pair for one session.
// The refresh token itself is never stored, only its sha256 hash.
type TokenPair struct {
	ID            string
	SessionID     string
	AccessToken   string
	AccessExpiry  time.Time
	RefreshHash   []byte
	RefreshExpiry time.Time
	Revoked       bool
	CreatedAt     time.Time
}

// BlacklistEntry is an append-only record of a revoked token string.
type BlacklistEntry struct {
	ID            string
	Token         string
	SessionID     string
	UserID        string
	Reason        RevokeReason
	BlacklistedAt time.Time
}
