package storage

import (
	"encoding/json"
	"fmt"

	"github.com/dokzlo13/discod/internal/disco"
)

const (
	kindDisco     = "disco"
	idLastConfig  = "config"
	idSessionMode = "sync_mode"
)

// DiscoState persists the last published disco config and sync mode.
type DiscoState struct {
	store *Store
}

// NewDiscoState creates a DiscoState on top of the generic store.
func NewDiscoState(store *Store) *DiscoState {
	return &DiscoState{store: store}
}

// SaveConfig stores cfg as the config to restore on next start.
func (d *DiscoState) SaveConfig(cfg disco.Config) error {
	payload, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal disco config: %w", err)
	}
	return d.store.Set(kindDisco, idLastConfig, payload)
}

// LoadConfig returns the stored config. ok is false when none was saved.
func (d *DiscoState) LoadConfig() (cfg disco.Config, ok bool, err error) {
	payload, _, err := d.store.Get(kindDisco, idLastConfig)
	if err != nil || payload == nil {
		return cfg, false, err
	}
	if err := json.Unmarshal(payload, &cfg); err != nil {
		return cfg, false, fmt.Errorf("failed to unmarshal disco config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, false, fmt.Errorf("stored disco config invalid: %w", err)
	}
	return cfg, true, nil
}

// SaveSyncMode stores the sync mode.
func (d *DiscoState) SaveSyncMode(mode disco.SyncMode) error {
	return d.store.Set(kindDisco, idSessionMode, []byte(`"`+mode.String()+`"`))
}

// LoadSyncMode returns the stored sync mode. ok is false when none was saved.
func (d *DiscoState) LoadSyncMode() (mode disco.SyncMode, ok bool, err error) {
	payload, _, err := d.store.Get(kindDisco, idSessionMode)
	if err != nil || payload == nil {
		return mode, false, err
	}
	if err := json.Unmarshal(payload, &mode); err != nil {
		return mode, false, fmt.Errorf("failed to unmarshal sync mode: %w", err)
	}
	return mode, true, nil
}

// Reset forgets the stored config and sync mode.
func (d *DiscoState) Reset() error {
	return d.store.Clear(kindDisco)
}
