package app

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/discod/internal/api"
	"github.com/dokzlo13/discod/internal/config"
)

// APIService wraps the control API HTTP server.
type APIService struct {
	cfg    *config.Config
	server *api.Server
	done   chan struct{}
}

// NewAPIService creates a new APIService.
func NewAPIService(cfg *config.Config, engine api.Engine, events api.EventLog) *APIService {
	return &APIService{
		cfg:    cfg,
		server: api.NewServer(cfg.API.Addr(), engine, events),
	}
}

// Start begins the API server if enabled.
func (s *APIService) Start(ctx context.Context) {
	if !s.cfg.API.Enabled {
		log.Debug().Msg("Control API disabled")
		return
	}

	s.done = make(chan struct{})
	go func() {
		defer close(s.done)
		if err := s.server.Run(ctx, s.cfg.ShutdownTimeout.Duration()); err != nil {
			log.Error().Err(err).Msg("Control API server error")
		}
	}()
}

// Wait blocks until the server has shut down or ctx ends.
// It returns immediately when the server was never started.
func (s *APIService) Wait(ctx context.Context) error {
	return waitDone(ctx, s.done)
}

func waitDone(ctx context.Context, done <-chan struct{}) error {
	if done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
