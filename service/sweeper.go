package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/avelychko/bookmarket-backend/metrics"
	"github.com/avelychko/bookmarket-backend/store"
)

// Sweeper periodically force-completes SELLER_CONFIRMED transactions whose
// buyer confirmation deadline has elapsed. Each row is processed in its own
// transition, so one failure never aborts the rest of the sweep.
type Sweeper struct {
	svc    *Service
	store  store.Store
	logger zerolog.Logger
	cron   *cron.Cron
}

func NewSweeper(svc *Service, st store.Store, logger zerolog.Logger) *Sweeper {
	return &Sweeper{svc: svc, store: st, logger: logger}
}

// Start schedules the sweep at the configured interval and runs until Stop.
func (s *Sweeper) Start() error {
	interval := s.svc.cfg.SweepInterval
	s.cron = cron.New()
	_, err := s.cron.AddFunc(fmt.Sprintf("@every %s", interval), func() {
		s.Sweep(context.Background())
	})
	if err != nil {
		return fmt.Errorf("schedule sweep: %w", err)
	}
	s.cron.Start()
	s.logger.Info().Dur("interval", interval).Msg("reconciliation sweep scheduled")
	return nil
}

// Stop halts the schedule. A sweep already running finishes.
func (s *Sweeper) Stop() {
	if s.cron != nil {
		s.cron.Stop()
	}
}

// Sweep runs one reconciliation pass and returns how many transactions were
// completed and how many failed. Failures are logged and skipped; rows that
// advanced between the listing query and the transition are not failures.
func (s *Sweeper) Sweep(ctx context.Context) (completed, failed int) {
	ids, err := s.store.ListExpiredSellerConfirmed(ctx, s.svc.now())
	if err != nil {
		s.logger.Error().Err(err).Msg("sweep: listing expired transactions failed")
		return 0, 0
	}

	for _, id := range ids {
		err := s.svc.ForceComplete(ctx, id)
		switch {
		case err == nil:
			completed++
			metrics.SweepCompleted.Inc()
			s.logger.Info().Uint("transaction_id", id).Msg("sweep: transaction force-completed")
		case errors.Is(err, ErrInvalidState):
			// Lost the race to a buyer confirm/dispute; nothing to do.
			s.logger.Debug().Uint("transaction_id", id).Msg("sweep: transaction already advanced")
		default:
			failed++
			metrics.SweepFailures.Inc()
			s.logger.Error().Err(err).Uint("transaction_id", id).Msg("sweep: force-complete failed")
		}
	}

	if completed > 0 || failed > 0 {
		s.logger.Info().Int("completed", completed).Int("failed", failed).Msg("sweep finished")
	}
	return completed, failed
}
