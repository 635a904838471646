package app

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/discod/internal/config"
	"github.com/dokzlo13/discod/internal/ledger"
)

// LedgerCleanupService trims old ledger entries on an interval.
type LedgerCleanupService struct {
	ledger    *ledger.Ledger
	retention time.Duration
	interval  time.Duration
	done      chan struct{}
}

// NewLedgerCleanupService creates a new LedgerCleanupService.
func NewLedgerCleanupService(cfg *config.Config, led *ledger.Ledger) *LedgerCleanupService {
	return &LedgerCleanupService{
		ledger:    led,
		retention: cfg.Ledger.Retention(),
		interval:  cfg.Ledger.CleanupInterval.Duration(),
	}
}

// Start runs one cleanup now and then one per interval.
func (s *LedgerCleanupService) Start(ctx context.Context) {
	s.cleanup()
	s.done = make(chan struct{})
	go s.run(ctx)
}

// Wait blocks until the cleanup loop has exited or ctx ends.
func (s *LedgerCleanupService) Wait(ctx context.Context) error {
	return waitDone(ctx, s.done)
}

func (s *LedgerCleanupService) run(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.cleanup()
		}
	}
}

func (s *LedgerCleanupService) cleanup() {
	deleted, err := s.ledger.DeleteOlderThan(s.retention)
	if err != nil {
		log.Error().Err(err).Msg("Failed to cleanup old ledger entries")
	} else if deleted > 0 {
		log.Info().Int64("deleted", deleted).Dur("retention", s.retention).Msg("Cleaned up old ledger entries")
	}
}
