package app

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/discod/internal/config"
	"github.com/dokzlo13/discod/internal/disco"
	"github.com/dokzlo13/discod/internal/eventbus"
	"github.com/dokzlo13/discod/internal/ledger"
	"github.com/dokzlo13/discod/internal/session"
	"github.com/dokzlo13/discod/internal/storage"
)

// DiscoService wraps the modulation supervisor and the session that drives it.
type DiscoService struct {
	cfg *config.Config

	Supervisor *disco.Supervisor
	Session    *session.Session

	refreshInterval time.Duration
	started         bool
	done            chan struct{}
}

// NewDiscoService creates the supervisor and session. The initial config
// comes from the persisted state when enabled, else from the config file.
func NewDiscoService(
	cfg *config.Config,
	provider session.Provider,
	credentials *storage.Credentials,
	state *storage.DiscoState,
	led *ledger.Ledger,
) (*DiscoService, error) {
	initial, mode, err := initialDisco(cfg, state)
	if err != nil {
		return nil, err
	}

	supervisor := disco.NewSupervisor(disco.SupervisorConfig{
		Config:   initial,
		SyncMode: mode,
		Tick:     cfg.Disco.Tick.Duration(),
		Seed:     cfg.Disco.Seed,
	})

	opts := session.Options{
		Supervisor:  supervisor,
		Provider:    provider,
		Credentials: credentials,
		Inbox:       eventbus.New(),
		Recorder:    led,
		Address:     cfg.Hue.Bridge,
		Token:       cfg.Hue.Token,
		Active:      cfg.Disco.Active,
	}
	if cfg.Disco.GetPersist() {
		opts.ConfigStore = state
	}

	return &DiscoService{
		cfg:             cfg,
		Supervisor:      supervisor,
		Session:         session.New(opts),
		refreshInterval: cfg.Disco.RefreshInterval.Duration(),
		done:            make(chan struct{}),
	}, nil
}

func initialDisco(cfg *config.Config, state *storage.DiscoState) (disco.Config, disco.SyncMode, error) {
	initial, err := cfg.Disco.Build()
	if err != nil {
		return initial, disco.SyncNone, err
	}
	mode, err := cfg.Disco.GetSyncMode()
	if err != nil {
		return initial, mode, err
	}

	if !cfg.Disco.GetPersist() {
		return initial, mode, nil
	}

	if stored, ok, err := state.LoadConfig(); err != nil {
		log.Warn().Err(err).Msg("Ignoring stored disco config")
	} else if ok {
		initial = stored
		log.Info().Msg("Restored last published disco config")
	}
	if stored, ok, err := state.LoadSyncMode(); err != nil {
		log.Warn().Err(err).Msg("Ignoring stored sync mode")
	} else if ok {
		mode = stored
	}

	return initial, mode, nil
}

// Reload resets the draft and sync mode to the config file values.
func (s *DiscoService) Reload(cfg *config.Config) error {
	initial, err := cfg.Disco.Build()
	if err != nil {
		return err
	}
	mode, err := cfg.Disco.GetSyncMode()
	if err != nil {
		return err
	}

	if err := s.Session.EditDraft(func(c *disco.Config) error {
		*c = initial
		return nil
	}); err != nil {
		return err
	}
	s.Supervisor.SetSyncMode(mode)
	return nil
}

// Start begins bridge setup and the refresh loop.
func (s *DiscoService) Start(ctx context.Context) {
	s.started = true
	s.Session.Start()
	go s.run(ctx)
}

// run applies background results, publishes the draft and rebuilds tasks
// once per refresh interval.
func (s *DiscoService) run(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(s.refreshInterval)
	defer ticker.Stop()

	log.Debug().Dur("interval", s.refreshInterval).Msg("Disco refresh loop started")

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Session.Tick(ctx)
		}
	}
}

// Stop waits for the refresh loop, then stops every task.
func (s *DiscoService) Stop(ctx context.Context) error {
	if s.started {
		select {
		case <-s.done:
		case <-ctx.Done():
		}
	}
	return s.Session.Shutdown(ctx)
}
