package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/discod/internal/config"
	"github.com/dokzlo13/discod/internal/db"
	"github.com/dokzlo13/discod/internal/hue"
	"github.com/dokzlo13/discod/internal/ledger"
	"github.com/dokzlo13/discod/internal/storage"
)

// Services is a container for all application services.
// It manages service initialization order and dependencies.
type Services struct {
	cfg *config.Config

	// Core infrastructure
	DB     *db.DB
	Ledger *ledger.Ledger

	// Persistence
	Store       *storage.Store
	DiscoState  *storage.DiscoState
	Credentials *storage.Credentials

	// Bridge access
	Provider *hue.Provider

	// High-level services
	Disco         *DiscoService
	API           *APIService
	LedgerCleanup *LedgerCleanupService
}

// NewServices creates all services with proper dependency injection.
func NewServices(cfg *config.Config) (*Services, error) {
	s := &Services{cfg: cfg}

	// Initialize database
	database, err := db.Open(cfg.Database.Path)
	if err != nil {
		return nil, err
	}
	s.DB = database

	// Initialize ledger
	s.Ledger = ledger.New(database.DB)

	// Initialize stores
	s.Store = storage.NewStore(database.DB)
	s.DiscoState = storage.NewDiscoState(s.Store)
	s.Credentials = storage.NewCredentials(database.DB)

	// Initialize bridge provider
	s.Provider = hue.NewProvider(cfg.Hue.DeviceType, cfg.Hue.Timeout.Duration(), cfg.Hue.RateLimitRPS)

	// Initialize disco service (supervisor + session)
	s.Disco, err = NewDiscoService(cfg, s.Provider, s.Credentials, s.DiscoState, s.Ledger)
	if err != nil {
		s.Close()
		return nil, err
	}

	// Initialize API service
	s.API = NewAPIService(cfg, s.Disco.Session, s.Ledger)

	// Initialize ledger cleanup
	s.LedgerCleanup = NewLedgerCleanupService(cfg, s.Ledger)

	return s, nil
}

// Start starts all services in the correct order.
func (s *Services) Start(ctx context.Context) error {
	s.Disco.Start(ctx)
	s.API.Start(ctx)
	s.LedgerCleanup.Start(ctx)
	return nil
}

// ResetConfig clears the persisted disco config.
func (s *Services) ResetConfig() error {
	if err := s.DiscoState.Reset(); err != nil {
		return err
	}
	// Rebuild from the file values, the service was created before the reset
	return s.Disco.Reload(s.cfg)
}

// RegisterBridge pairs with the configured (or discovered) bridge and stores the username.
func (s *Services) RegisterBridge(ctx context.Context) error {
	address := s.cfg.Hue.Bridge
	if address == "" {
		found, err := s.Provider.Discover(ctx)
		if err != nil {
			return err
		}
		address = found
	}

	username, err := s.Provider.Register(ctx, address)
	if err != nil {
		return err
	}

	if err := s.Credentials.Store(storage.Credential{Address: address, Username: username}); err != nil {
		return fmt.Errorf("registered but failed to store credential: %w", err)
	}

	log.Info().Str("address", address).Msg("Bridge credential stored")
	return nil
}

// Stop gracefully stops all services. The run context must already be
// cancelled; the database is closed only once every service has exited.
func (s *Services) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout.Duration())
	defer cancel()

	var errs []error
	if s.Disco != nil {
		errs = append(errs, s.Disco.Stop(ctx))
	}
	if s.API != nil {
		if err := s.API.Wait(ctx); err != nil {
			errs = append(errs, fmt.Errorf("control API did not stop: %w", err))
		}
	}
	if s.LedgerCleanup != nil {
		if err := s.LedgerCleanup.Wait(ctx); err != nil {
			errs = append(errs, fmt.Errorf("ledger cleanup did not stop: %w", err))
		}
	}
	s.Close()
	return errors.Join(errs...)
}

// Close releases all resources.
func (s *Services) Close() {
	if s.DB != nil {
		s.DB.Close()
	}
}
