package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatline/api/internal/models"
	"chatline/api/internal/repository"
)

func testDevice(platform models.Platform) models.DeviceInfo {
	return models.DeviceInfo{
		Platform:   platform,
		DeviceID:   "device-1",
		DeviceName: "Pixel 9",
		IPAddress:  "10.0.0.1",
		Location:   "Hanoi",
	}
}

func TestCreateSessionEvictsSamePlatform(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	first, err := env.sessionSvc.CreateSession(ctx, "user-1", testDevice(models.PlatformMobile))
	require.NoError(t, err)

	second, err := env.sessionSvc.CreateSession(ctx, "user-1", testDevice(models.PlatformMobile))
	require.NoError(t, err)
	require.NotEqual(t, first.ID, second.ID)

	assert.Equal(t, 1, env.sessions.activeCount("user-1", models.PlatformMobile))

	old, err := env.sessionSvc.GetSession(ctx, first.ID)
	require.NoError(t, err)
	assert.False(t, old.Active())
}

func TestCreateSessionDifferentPlatformsCoexist(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	_, err := env.sessionSvc.CreateSession(ctx, "user-1", testDevice(models.PlatformMobile))
	require.NoError(t, err)
	_, err = env.sessionSvc.CreateSession(ctx, "user-1", testDevice(models.PlatformWeb))
	require.NoError(t, err)

	assert.Equal(t, 1, env.sessions.activeCount("user-1", models.PlatformMobile))
	assert.Equal(t, 1, env.sessions.activeCount("user-1", models.PlatformWeb))
}

func TestEvictionRevokesOldCredentials(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	first, err := env.sessionSvc.CreateSession(ctx, "user-1", testDevice(models.PlatformMobile))
	require.NoError(t, err)
	oldCreds, err := env.authSvc.Issue(ctx, first)
	require.NoError(t, err)

	_, err = env.authSvc.Validate(ctx, oldCreds.AccessToken)
	require.NoError(t, err)

	_, err = env.sessionSvc.CreateSession(ctx, "user-1", testDevice(models.PlatformMobile))
	require.NoError(t, err)

	_, err = env.authSvc.Validate(ctx, oldCreds.AccessToken)
	assert.ErrorIs(t, err, ErrRevokedCredential)

	entry, err := env.blacklist.GetByToken(ctx, oldCreds.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, models.RevokeReasonForcedEviction, entry.Reason)
}

func TestLogoutClosesAndRevokes(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	session, err := env.sessionSvc.CreateSession(ctx, "user-1", testDevice(models.PlatformWeb))
	require.NoError(t, err)
	creds, err := env.authSvc.Issue(ctx, session)
	require.NoError(t, err)

	require.NoError(t, env.sessionSvc.Logout(ctx, session.ID, models.RevokeReasonManualLogout))

	_, err = env.authSvc.Validate(ctx, creds.AccessToken)
	assert.ErrorIs(t, err, ErrRevokedCredential)

	// A second logout of the same session reports not found.
	assert.ErrorIs(t, env.sessionSvc.Logout(ctx, session.ID, models.RevokeReasonManualLogout), ErrSessionNotFound)
}

func TestLogoutUnknownSession(t *testing.T) {
	env := newTestEnv()
	err := env.sessionSvc.Logout(context.Background(), "missing", models.RevokeReasonManualLogout)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestLogoutAllKeepsCurrentSession(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	mobile, err := env.sessionSvc.CreateSession(ctx, "user-1", testDevice(models.PlatformMobile))
	require.NoError(t, err)
	web, err := env.sessionSvc.CreateSession(ctx, "user-1", testDevice(models.PlatformWeb))
	require.NoError(t, err)
	desktop, err := env.sessionSvc.CreateSession(ctx, "user-1", testDevice(models.PlatformDesktop))
	require.NoError(t, err)

	count, err := env.sessionSvc.LogoutAll(ctx, "user-1", web.ID, models.RevokeReasonSessionKick)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	kept, err := env.sessionSvc.GetSession(ctx, web.ID)
	require.NoError(t, err)
	assert.True(t, kept.Active())

	for _, id := range []string{mobile.ID, desktop.ID} {
		closed, err := env.sessionSvc.GetSession(ctx, id)
		require.NoError(t, err)
		assert.False(t, closed.Active())
	}
}

func TestListSessionsFilters(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	mobile, err := env.sessionSvc.CreateSession(ctx, "user-1", testDevice(models.PlatformMobile))
	require.NoError(t, err)
	_, err = env.sessionSvc.CreateSession(ctx, "user-1", testDevice(models.PlatformWeb))
	require.NoError(t, err)
	require.NoError(t, env.sessionSvc.Logout(ctx, mobile.ID, models.RevokeReasonManualLogout))

	active, err := env.sessionSvc.ListSessions(ctx, "user-1", repository.SessionFilterActive)
	require.NoError(t, err)
	assert.Len(t, active, 1)

	loggedOut, err := env.sessionSvc.ListSessions(ctx, "user-1", repository.SessionFilterLoggedOut)
	require.NoError(t, err)
	assert.Len(t, loggedOut, 1)

	all, err := env.sessionSvc.ListSessions(ctx, "user-1", repository.SessionFilterAll)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}
