package service

import (
	"bytes"
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"chatline/api/internal/config"
	"chatline/api/internal/models"
	"chatline/api/internal/repository"
)

type memSessionStore struct {
	mu sync.Mutex
	m  map[string]models.DeviceSession
}

func newMemSessionStore() *memSessionStore {
	return &memSessionStore{m: make(map[string]models.DeviceSession)}
}

func (r *memSessionStore) Create(ctx context.Context, session models.DeviceSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.m[session.ID] = session
	return nil
}

func (r *memSessionStore) GetByID(ctx context.Context, id string) (models.DeviceSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	session, ok := r.m[id]
	if !ok {
		return models.DeviceSession{}, repository.ErrSessionNotFound
	}
	return session, nil
}

func (r *memSessionStore) CloseActive(ctx context.Context, userID string, platform models.Platform, at time.Time) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var closed []string
	for id, session := range r.m {
		if session.UserID == userID && session.Platform == platform && session.LogoutTime == nil {
			t := at
			session.LogoutTime = &t
			r.m[id] = session
			closed = append(closed, id)
		}
	}
	return closed, nil
}

func (r *memSessionStore) Close(ctx context.Context, sessionID string, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	session, ok := r.m[sessionID]
	if !ok || session.LogoutTime != nil {
		return false, nil
	}
	t := at
	session.LogoutTime = &t
	r.m[sessionID] = session
	return true, nil
}

func (r *memSessionStore) CloseAllForUser(ctx context.Context, userID string, keepSessionID string, at time.Time) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var closed []string
	for id, session := range r.m {
		if session.UserID == userID && session.LogoutTime == nil && id != keepSessionID {
			t := at
			session.LogoutTime = &t
			r.m[id] = session
			closed = append(closed, id)
		}
	}
	return closed, nil
}

func (r *memSessionStore) Touch(ctx context.Context, sessionID string, ip string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	session, ok := r.m[sessionID]
	if !ok || session.LogoutTime != nil {
		return nil
	}
	session.LastActiveTime = time.Now()
	if ip != "" {
		session.IPAddress = ip
	}
	r.m[sessionID] = session
	return nil
}

func (r *memSessionStore) ListByUser(ctx context.Context, userID string, filter repository.SessionFilter) ([]models.DeviceSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.DeviceSession
	for _, session := range r.m {
		if session.UserID != userID {
			continue
		}
		switch filter {
		case repository.SessionFilterActive:
			if session.LogoutTime != nil {
				continue
			}
		case repository.SessionFilterLoggedOut:
			if session.LogoutTime == nil {
				continue
			}
		}
		out = append(out, session)
	}
	return out, nil
}

func (r *memSessionStore) DeleteLoggedOutBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for id, session := range r.m {
		if session.LogoutTime != nil && session.LogoutTime.Before(cutoff) {
			delete(r.m, id)
			n++
		}
	}
	return n, nil
}

func (r *memSessionStore) activeCount(userID string, platform models.Platform) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for _, session := range r.m {
		if session.UserID == userID && session.Platform == platform && session.LogoutTime == nil {
			count++
		}
	}
	return count
}

type memTokenStore struct {
	mu sync.Mutex
	m  map[string]models.TokenPair
}

func newMemTokenStore() *memTokenStore {
	return &memTokenStore{m: make(map[string]models.TokenPair)}
}

func (r *memTokenStore) Create(ctx context.Context, pair models.TokenPair) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.m[pair.ID] = pair
	return nil
}

func (r *memTokenStore) GetBySession(ctx context.Context, sessionID string) (models.TokenPair, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var latest *models.TokenPair
	for _, pair := range r.m {
		if pair.SessionID != sessionID {
			continue
		}
		p := pair
		if latest == nil || p.CreatedAt.After(latest.CreatedAt) {
			latest = &p
		}
	}
	if latest == nil {
		return models.TokenPair{}, repository.ErrTokenPairNotFound
	}
	return *latest, nil
}

func (r *memTokenStore) GetByRefreshHash(ctx context.Context, refreshHash []byte) (models.TokenPair, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, pair := range r.m {
		if bytes.Equal(pair.RefreshHash, refreshHash) {
			return pair, nil
		}
	}
	return models.TokenPair{}, repository.ErrTokenPairNotFound
}

func (r *memTokenStore) ClaimByRefreshHash(ctx context.Context, refreshHash []byte) (models.TokenPair, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, pair := range r.m {
		if bytes.Equal(pair.RefreshHash, refreshHash) {
			delete(r.m, id)
			return pair, nil
		}
	}
	return models.TokenPair{}, repository.ErrTokenPairNotFound
}

func (r *memTokenStore) DeleteBySession(ctx context.Context, sessionID string) ([]models.TokenPair, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.TokenPair
	for id, pair := range r.m {
		if pair.SessionID == sessionID {
			out = append(out, pair)
			delete(r.m, id)
		}
	}
	return out, nil
}

func (r *memTokenStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for id, pair := range r.m {
		if pair.RefreshExpiry.Before(now) {
			delete(r.m, id)
			n++
		}
	}
	return n, nil
}

type memBlacklistStore struct {
	mu sync.Mutex
	m  map[string]models.BlacklistEntry
}

func newMemBlacklistStore() *memBlacklistStore {
	return &memBlacklistStore{m: make(map[string]models.BlacklistEntry)}
}

func (r *memBlacklistStore) Add(ctx context.Context, entry models.BlacklistEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.m[entry.Token]; !ok {
		r.m[entry.Token] = entry
	}
	return nil
}

func (r *memBlacklistStore) Contains(ctx context.Context, token string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.m[token]
	return ok, nil
}

func (r *memBlacklistStore) GetByToken(ctx context.Context, token string) (models.BlacklistEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.m[token]
	if !ok {
		return models.BlacklistEntry{}, repository.ErrBlacklistEntryNotFound
	}
	return entry, nil
}

func (r *memBlacklistStore) PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for token, entry := range r.m {
		if entry.BlacklistedAt.Before(cutoff) {
			delete(r.m, token)
			n++
		}
	}
	return n, nil
}

type memQrStore struct {
	mu sync.Mutex
	m  map[string]models.QrLoginSession
}

func newMemQrStore() *memQrStore {
	return &memQrStore{m: make(map[string]models.QrLoginSession)}
}

func (r *memQrStore) Create(ctx context.Context, session models.QrLoginSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.m[session.SessionToken] = session
	return nil
}

func (r *memQrStore) GetByToken(ctx context.Context, sessionToken string) (models.QrLoginSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	session, ok := r.m[sessionToken]
	if !ok {
		return models.QrLoginSession{}, repository.ErrQrSessionNotFound
	}
	return session, nil
}

func (r *memQrStore) Transition(ctx context.Context, sessionToken string, from, to models.QrLoginStatus) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	session, ok := r.m[sessionToken]
	if !ok || session.Status != from {
		return false, nil
	}
	session.Status = to
	r.m[sessionToken] = session
	return true, nil
}

func (r *memQrStore) Confirm(ctx context.Context, sessionToken string, userID string, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	session, ok := r.m[sessionToken]
	if !ok || session.Status != models.QrStatusScanned {
		return false, nil
	}
	session.Status = models.QrStatusConfirmed
	session.UserID = userID
	t := at
	session.ConfirmedAt = &t
	r.m[sessionToken] = session
	return true, nil
}

func (r *memQrStore) ExpireStale(ctx context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for token, session := range r.m {
		if (session.Status == models.QrStatusPending || session.Status == models.QrStatusScanned) && session.ExpiresAt.Before(now) {
			session.Status = models.QrStatusExpired
			r.m[token] = session
			n++
		}
	}
	return n, nil
}

func (r *memQrStore) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for token, session := range r.m {
		if session.CreatedAt.Before(cutoff) {
			delete(r.m, token)
			n++
		}
	}
	return n, nil
}

type memUserStore struct {
	mu sync.Mutex
	m  map[string]models.User
}

func newMemUserStore(users ...models.User) *memUserStore {
	store := &memUserStore{m: make(map[string]models.User)}
	for _, user := range users {
		store.m[user.ID] = user
	}
	return store
}

func (r *memUserStore) add(user models.User) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.m[user.ID] = user
}

func (r *memUserStore) GetByID(ctx context.Context, id string) (models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.m[id]
	if !ok {
		return models.User{}, repository.ErrUserNotFound
	}
	return user, nil
}

func (r *memUserStore) FindByPhone(ctx context.Context, phone string) (models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, user := range r.m {
		if user.Phone == phone {
			return user, nil
		}
	}
	return models.User{}, repository.ErrUserNotFound
}

func (r *memUserStore) UpdateLastLogin(ctx context.Context, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if user, ok := r.m[id]; ok {
		t := at
		user.LastLogin = &t
		r.m[id] = user
	}
	return nil
}

// testEnv wires the full service graph over in-memory stores.
type testEnv struct {
	sessions  *memSessionStore
	tokens    *memTokenStore
	blacklist *memBlacklistStore
	qr        *memQrStore
	users     *memUserStore

	cfg *config.AppConfig

	sessionSvc *SessionService
	authSvc    *AuthService
	qrSvc      *QrService
}

func newTestEnv(users ...models.User) *testEnv {
	env := &testEnv{
		sessions:  newMemSessionStore(),
		tokens:    newMemTokenStore(),
		blacklist: newMemBlacklistStore(),
		qr:        newMemQrStore(),
		users:     newMemUserStore(users...),
	}
	env.cfg = &config.AppConfig{}
	env.cfg.Auth.JWTAccessSecret = "test-secret"
	env.cfg.Auth.JWTAccessTTL = time.Hour
	env.cfg.Auth.RefreshTTL = 24 * time.Hour
	env.cfg.Auth.QRSessionTTL = 5 * time.Minute
	env.cfg.Auth.QRRetention = 24 * time.Hour
	env.cfg.Auth.BlacklistRetention = 90 * 24 * time.Hour

	log := zerolog.Nop()
	revoker := NewRevoker(env.tokens, env.blacklist, nil, env.cfg, log)
	env.sessionSvc = NewSessionService(env.sessions, revoker, log)
	env.authSvc = NewAuthService(env.users, env.tokens, env.sessionSvc, revoker, env.cfg, log)
	env.qrSvc = NewQrService(env.qr, env.users, env.sessionSvc, env.authSvc, env.cfg, log)
	return env
}
