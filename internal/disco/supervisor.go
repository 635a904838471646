package disco

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/discod/internal/metrics"
)

var ErrUnknownLight = errors.New("unknown light")

// TaskInfo describes one running task.
type TaskInfo struct {
	ID       string   `json:"id"`
	Lights   []string `json:"lights"`
	Strategy string   `json:"strategy"`
}

// SupervisorConfig configures a Supervisor.
type SupervisorConfig struct {
	Bridge   Dispatcher
	Config   Config
	SyncMode SyncMode
	Tick     time.Duration
	Seed     uint64
}

// Supervisor owns the set of running tasks.
//
// Light intents and the sync mode only mark the set dirty; the set changes
// on Rebuild (or ApplyPending). A rebuild stops every running task before
// starting the replacements, so a light is never driven by two tasks of
// the current set.
type Supervisor struct {
	bridge Dispatcher
	shared *SharedConfig
	tick   time.Duration
	seed   uint64

	mu     sync.Mutex
	mode   SyncMode
	lights map[string]*LightHandle
	tasks  []*Task
	dirty  bool
	closed bool

	// stopped tasks that may still be finishing a dispatch
	retired []*Task
}

// NewSupervisor creates a supervisor with no lights and no running tasks.
// An invalid initial config is replaced by DefaultConfig.
func NewSupervisor(cfg SupervisorConfig) *Supervisor {
	initial := cfg.Config
	if err := initial.Validate(); err != nil {
		log.Warn().Err(err).Msg("Invalid initial disco config, using defaults")
		initial = DefaultConfig()
	}
	if cfg.Tick <= 0 {
		cfg.Tick = DefaultTick
	}

	return &Supervisor{
		bridge: cfg.Bridge,
		shared: NewSharedConfig(initial),
		tick:   cfg.Tick,
		seed:   cfg.Seed,
		mode:   cfg.SyncMode,
		lights: make(map[string]*LightHandle),
	}
}

// SetBridge replaces the dispatcher used by tasks started from now on.
func (s *Supervisor) SetBridge(bridge Dispatcher) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bridge = bridge
	s.dirty = true
}

// SetLights merges discovered lights. Lights already known keep their intent.
func (s *Supervisor) SetLights(lights []LightHandle) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, l := range lights {
		if existing, ok := s.lights[l.ID]; ok {
			existing.Name = l.Name
			existing.UniqueID = l.UniqueID
			continue
		}
		handle := l
		handle.On = false
		s.lights[l.ID] = &handle
	}
}

// Lights returns all known lights sorted by name, then id.
func (s *Supervisor) Lights() []LightHandle {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]LightHandle, 0, len(s.lights))
	for _, l := range s.lights {
		out = append(out, *l)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// SetActive records the on/off intent for a light and marks the set dirty.
func (s *Supervisor) SetActive(id string, on bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.lights[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownLight, id)
	}
	if l.On != on {
		l.On = on
		s.dirty = true
	}
	return nil
}

// SyncMode returns the current grouping mode.
func (s *Supervisor) SyncMode() SyncMode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

// SetSyncMode changes the grouping mode and marks the set dirty.
func (s *Supervisor) SetSyncMode(mode SyncMode) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mode != mode {
		s.mode = mode
		s.dirty = true
	}
}

// Pending reports whether a rebuild is needed.
func (s *Supervisor) Pending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dirty
}

// PublishConfig replaces the snapshot tasks read at the start of each cycle.
func (s *Supervisor) PublishConfig(cfg Config) (bool, error) {
	if err := cfg.Validate(); err != nil {
		return false, err
	}
	return s.shared.Publish(cfg), nil
}

// Config returns the published config.
func (s *Supervisor) Config() Config {
	cfg, _ := s.shared.Snapshot()
	return cfg
}

// ApplyPending rebuilds the task set if something changed since the last rebuild.
func (s *Supervisor) ApplyPending(ctx context.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.dirty || s.closed {
		return false
	}
	s.rebuildLocked(ctx)
	return true
}

// Rebuild stops every running task and starts a new set for the active lights.
// Tasks run until ctx is cancelled or the next rebuild. After Shutdown it does nothing.
func (s *Supervisor) Rebuild(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rebuildLocked(ctx)
}

func (s *Supervisor) rebuildLocked(ctx context.Context) {
	if s.closed {
		log.Debug().Msg("Supervisor shut down, rebuild ignored")
		return
	}
	s.stopLocked()
	s.dirty = false
	metrics.Rebuilds.Inc()

	if s.bridge == nil {
		log.Debug().Msg("No bridge yet, task set left empty")
		return
	}

	for _, group := range s.partitionLocked() {
		task := NewTask(group, TaskConfig{
			Strategy: s.mode.Strategy(),
			Shared:   s.shared,
			Bridge:   s.bridge,
			Tick:     s.tick,
			Seed:     s.seed,
		})
		task.Start(ctx)
		s.tasks = append(s.tasks, task)
	}

	log.Info().
		Str("sync", s.mode.String()).
		Int("tasks", len(s.tasks)).
		Msg("Modulation tasks rebuilt")
}

// partitionLocked groups active lights into task bindings.
func (s *Supervisor) partitionLocked() [][]LightHandle {
	var active []LightHandle
	for _, l := range s.lights {
		if l.On {
			active = append(active, *l)
		}
	}
	if len(active) == 0 {
		return nil
	}
	sort.Slice(active, func(i, j int) bool { return active[i].ID < active[j].ID })

	if s.mode == SyncNone {
		groups := make([][]LightHandle, len(active))
		for i, l := range active {
			groups[i] = []LightHandle{l}
		}
		return groups
	}
	return [][]LightHandle{active}
}

// stopLocked cancels the running set without waiting and returns every
// task that has not exited yet.
func (s *Supervisor) stopLocked() []*Task {
	for _, t := range s.tasks {
		t.Stop()
	}

	pending := s.retired[:0]
	for _, t := range s.retired {
		if t.State() != StateStopped {
			pending = append(pending, t)
		}
	}
	s.retired = append(pending, s.tasks...)
	s.tasks = nil
	return s.retired
}

// Running describes the current task set.
func (s *Supervisor) Running() []TaskInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]TaskInfo, len(s.tasks))
	for i, t := range s.tasks {
		strategy := "per_light"
		if t.Strategy() == StrategyShared {
			strategy = "shared"
		}
		out[i] = TaskInfo{ID: t.ID(), Lights: t.Targets(), Strategy: strategy}
	}
	return out
}

// Shutdown stops every task and waits for them to exit or ctx to expire.
// No task starts afterwards.
func (s *Supervisor) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	stopped := append([]*Task(nil), s.stopLocked()...)
	s.mu.Unlock()

	for _, t := range stopped {
		select {
		case <-t.Done():
		case <-ctx.Done():
			log.Warn().Msg("Modulation shutdown timed out, some tasks may still be running")
			return ctx.Err()
		}
	}
	log.Debug().Int("tasks", len(stopped)).Msg("Modulation tasks stopped")
	return nil
}
