package disco

import "sync"

// SharedConfig is the published configuration slot read by running tasks.
// Readers get a copy; Publish replaces the value wholesale.
type SharedConfig struct {
	mu      sync.RWMutex
	cfg     Config
	version uint64
}

// NewSharedConfig creates a slot holding cfg.
func NewSharedConfig(cfg Config) *SharedConfig {
	return &SharedConfig{cfg: cfg, version: 1}
}

// Snapshot returns the current configuration and its version.
func (s *SharedConfig) Snapshot() (Config, uint64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg, s.version
}

// Publish replaces the configuration. It reports whether the value changed.
func (s *SharedConfig) Publish(cfg Config) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cfg == cfg {
		return false
	}
	s.cfg = cfg
	s.version++
	return true
}
