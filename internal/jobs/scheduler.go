package jobs

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"chatline/api/internal/config"
	"chatline/api/internal/repository"
)

// Scheduler runs the retention sweeps. Each sweep is idempotent and safe to
// run concurrently with live traffic: expiry marks are conditional updates
// and the purges only touch rows past their retention window.
type Scheduler struct {
	cron      *cron.Cron
	sessions  repository.SessionStore
	tokens    repository.TokenStore
	blacklist repository.BlacklistStore
	qr        repository.QrStore
	cfg       *config.AppConfig
	log       zerolog.Logger
}

func NewScheduler(
	sessions repository.SessionStore,
	tokens repository.TokenStore,
	blacklist repository.BlacklistStore,
	qr repository.QrStore,
	cfg *config.AppConfig,
	log zerolog.Logger,
) *Scheduler {
	return &Scheduler{
		cron:      cron.New(cron.WithSeconds()),
		sessions:  sessions,
		tokens:    tokens,
		blacklist: blacklist,
		qr:        qr,
		cfg:       cfg,
		log:       log,
	}
}

func (s *Scheduler) Start() error {
	// Hourly: flip overdue QR handshakes to EXPIRED and drop rows past the
	// audit window.
	if _, err := s.cron.AddFunc("0 0 * * * *", s.sweepQr); err != nil {
		return err
	}
	// Daily at 02:00: drop logged-out sessions past retention.
	if _, err := s.cron.AddFunc("0 0 2 * * *", s.sweepSessions); err != nil {
		return err
	}
	// Daily at 03:00: purge old blacklist entries and dead token pairs.
	if _, err := s.cron.AddFunc("0 0 3 * * *", s.sweepTokens); err != nil {
		return err
	}

	s.cron.Start()
	return nil
}

// Stop waits for in-flight sweeps to finish, up to a short grace period.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	select {
	case <-ctx.Done():
	case <-time.After(5 * time.Second):
		s.log.Warn().Msg("scheduler stop timed out")
	}
}

func (s *Scheduler) sweepQr() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	now := time.Now()
	expired, err := s.qr.ExpireStale(ctx, now)
	if err != nil {
		s.log.Error().Err(err).Msg("qr expire sweep failed")
	}

	purged, err := s.qr.DeleteBefore(ctx, now.Add(-s.cfg.Auth.QRRetention))
	if err != nil {
		s.log.Error().Err(err).Msg("qr purge sweep failed")
	}

	if expired > 0 || purged > 0 {
		s.log.Info().Int64("expired", expired).Int64("purged", purged).Msg("qr sweep")
	}
}

func (s *Scheduler) sweepSessions() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	deleted, err := s.sessions.DeleteLoggedOutBefore(ctx, time.Now().Add(-s.cfg.Auth.SessionRetention))
	if err != nil {
		s.log.Error().Err(err).Msg("session purge sweep failed")
		return
	}
	if deleted > 0 {
		s.log.Info().Int64("deleted", deleted).Msg("session sweep")
	}
}

func (s *Scheduler) sweepTokens() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	now := time.Now()
	purged, err := s.blacklist.PurgeBefore(ctx, now.Add(-s.cfg.Auth.BlacklistRetention))
	if err != nil {
		s.log.Error().Err(err).Msg("blacklist purge sweep failed")
	}

	deleted, err := s.tokens.DeleteExpired(ctx, now)
	if err != nil {
		s.log.Error().Err(err).Msg("token purge sweep failed")
	}

	if purged > 0 || deleted > 0 {
		s.log.Info().Int64("blacklist", purged).Int64("tokens", deleted).Msg("token sweep")
	}
}
