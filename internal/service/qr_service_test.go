package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatline/api/internal/models"
)

func TestQrHappyPath(t *testing.T) {
	env := newTestEnv(testUser(t))
	ctx := context.Background()

	generated, err := env.qrSvc.Generate(ctx, testDevice(models.PlatformWeb))
	require.NoError(t, err)
	assert.Equal(t, models.QrStatusPending, generated.Status)
	assert.Contains(t, generated.QrPayload, generated.SessionToken)

	scanned, err := env.qrSvc.Scan(ctx, generated.SessionToken)
	require.NoError(t, err)
	assert.Equal(t, models.QrStatusScanned, scanned.Status)

	status, err := env.qrSvc.Confirm(ctx, generated.SessionToken, "user-1", QrActionConfirm)
	require.NoError(t, err)
	assert.Equal(t, models.QrStatusConfirmed, status)

	result, err := env.qrSvc.Poll(ctx, generated.SessionToken, "10.0.0.2")
	require.NoError(t, err)
	assert.Equal(t, models.QrStatusUsed, result.Status)
	require.NotNil(t, result.Auth)
	assert.Equal(t, "user-1", result.Auth.User.ID)

	identity, err := env.authSvc.Validate(ctx, result.Auth.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "user-1", identity.UserID)

	// Second poll sees USED and gets no fresh credentials.
	again, err := env.qrSvc.Poll(ctx, generated.SessionToken, "10.0.0.2")
	require.NoError(t, err)
	assert.Equal(t, models.QrStatusUsed, again.Status)
	assert.Nil(t, again.Auth)
}

func TestQrRejectPath(t *testing.T) {
	env := newTestEnv(testUser(t))
	ctx := context.Background()

	generated, err := env.qrSvc.Generate(ctx, testDevice(models.PlatformWeb))
	require.NoError(t, err)
	_, err = env.qrSvc.Scan(ctx, generated.SessionToken)
	require.NoError(t, err)

	status, err := env.qrSvc.Confirm(ctx, generated.SessionToken, "user-1", QrActionReject)
	require.NoError(t, err)
	assert.Equal(t, models.QrStatusRejected, status)

	result, err := env.qrSvc.Poll(ctx, generated.SessionToken, "10.0.0.2")
	require.NoError(t, err)
	assert.Equal(t, models.QrStatusRejected, result.Status)
	assert.Nil(t, result.Auth)
}

func TestQrScanRequiresPending(t *testing.T) {
	env := newTestEnv(testUser(t))
	ctx := context.Background()

	generated, err := env.qrSvc.Generate(ctx, testDevice(models.PlatformWeb))
	require.NoError(t, err)
	_, err = env.qrSvc.Scan(ctx, generated.SessionToken)
	require.NoError(t, err)

	_, err = env.qrSvc.Scan(ctx, generated.SessionToken)
	assert.ErrorIs(t, err, ErrInvalidQrState)
}

func TestQrConfirmRequiresScanned(t *testing.T) {
	env := newTestEnv(testUser(t))
	ctx := context.Background()

	generated, err := env.qrSvc.Generate(ctx, testDevice(models.PlatformWeb))
	require.NoError(t, err)

	_, err = env.qrSvc.Confirm(ctx, generated.SessionToken, "user-1", QrActionConfirm)
	assert.ErrorIs(t, err, ErrInvalidQrState)
}

func TestQrUnknownToken(t *testing.T) {
	env := newTestEnv()
	_, err := env.qrSvc.Scan(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestQrLazyExpiry(t *testing.T) {
	env := newTestEnv(testUser(t))
	env.cfg.Auth.QRSessionTTL = -time.Minute
	ctx := context.Background()

	generated, err := env.qrSvc.Generate(ctx, testDevice(models.PlatformWeb))
	require.NoError(t, err)

	// The sweep has not run, but the wall clock already rules.
	_, err = env.qrSvc.Scan(ctx, generated.SessionToken)
	assert.ErrorIs(t, err, ErrQrExpired)

	row, err := env.qr.GetByToken(ctx, generated.SessionToken)
	require.NoError(t, err)
	assert.Equal(t, models.QrStatusExpired, row.Status)
}

func TestQrExpiredPollReportsExpired(t *testing.T) {
	env := newTestEnv(testUser(t))
	env.cfg.Auth.QRSessionTTL = -time.Minute
	ctx := context.Background()

	generated, err := env.qrSvc.Generate(ctx, testDevice(models.PlatformWeb))
	require.NoError(t, err)

	result, err := env.qrSvc.Poll(ctx, generated.SessionToken, "10.0.0.2")
	require.NoError(t, err)
	assert.Equal(t, models.QrStatusExpired, result.Status)
}

func TestQrConcurrentPollIssuesOnce(t *testing.T) {
	env := newTestEnv(testUser(t))
	ctx := context.Background()

	generated, err := env.qrSvc.Generate(ctx, testDevice(models.PlatformWeb))
	require.NoError(t, err)
	_, err = env.qrSvc.Scan(ctx, generated.SessionToken)
	require.NoError(t, err)
	_, err = env.qrSvc.Confirm(ctx, generated.SessionToken, "user-1", QrActionConfirm)
	require.NoError(t, err)

	const pollers = 16
	var wg sync.WaitGroup
	results := make([]QrPollResult, pollers)
	errs := make([]error, pollers)
	for i := 0; i < pollers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = env.qrSvc.Poll(ctx, generated.SessionToken, "10.0.0.2")
		}(i)
	}
	wg.Wait()

	issued := 0
	for i, result := range results {
		require.NoError(t, errs[i])
		assert.Equal(t, models.QrStatusUsed, result.Status)
		if result.Auth != nil {
			issued++
		}
	}
	assert.Equal(t, 1, issued)
	assert.Equal(t, 1, env.sessions.activeCount("user-1", models.PlatformWeb))
}

func TestQrPollRetriesAfterFailedMaterialize(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	generated, err := env.qrSvc.Generate(ctx, testDevice(models.PlatformWeb))
	require.NoError(t, err)
	_, err = env.qrSvc.Scan(ctx, generated.SessionToken)
	require.NoError(t, err)
	_, err = env.qrSvc.Confirm(ctx, generated.SessionToken, "user-1", QrActionConfirm)
	require.NoError(t, err)

	// The confirming user cannot be loaded, so issuance fails. The claim
	// must be handed back instead of leaving a USED row with no credentials.
	_, err = env.qrSvc.Poll(ctx, generated.SessionToken, "10.0.0.2")
	require.Error(t, err)

	row, err := env.qr.GetByToken(ctx, generated.SessionToken)
	require.NoError(t, err)
	assert.Equal(t, models.QrStatusConfirmed, row.Status)

	env.users.add(testUser(t))

	result, err := env.qrSvc.Poll(ctx, generated.SessionToken, "10.0.0.2")
	require.NoError(t, err)
	assert.Equal(t, models.QrStatusUsed, result.Status)
	require.NotNil(t, result.Auth)
	assert.Equal(t, "user-1", result.Auth.User.ID)
}

func TestQrStatusNeverRegresses(t *testing.T) {
	env := newTestEnv(testUser(t))
	ctx := context.Background()

	generated, err := env.qrSvc.Generate(ctx, testDevice(models.PlatformWeb))
	require.NoError(t, err)
	_, err = env.qrSvc.Scan(ctx, generated.SessionToken)
	require.NoError(t, err)
	_, err = env.qrSvc.Confirm(ctx, generated.SessionToken, "user-1", QrActionConfirm)
	require.NoError(t, err)
	_, err = env.qrSvc.Poll(ctx, generated.SessionToken, "10.0.0.2")
	require.NoError(t, err)

	// USED is terminal: no handshake operation may move the row again.
	_, err = env.qrSvc.Scan(ctx, generated.SessionToken)
	assert.ErrorIs(t, err, ErrInvalidQrState)
	_, err = env.qrSvc.Confirm(ctx, generated.SessionToken, "user-1", QrActionConfirm)
	assert.ErrorIs(t, err, ErrInvalidQrState)

	row, err := env.qr.GetByToken(ctx, generated.SessionToken)
	require.NoError(t, err)
	assert.Equal(t, models.QrStatusUsed, row.Status)
}
