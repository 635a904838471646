package disco

import (
	"context"
	"math/rand/v2"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/discod/internal/metrics"
)

// DefaultTick is the unit of cycle delays and transitions.
const DefaultTick = 100 * time.Millisecond

// State is a task lifecycle state. Tasks only move forward.
type State int32

const (
	StateRunning State = iota
	StateCancelling
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateCancelling:
		return "cancelling"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Strategy decides how many colour draws a cycle makes.
type Strategy int

const (
	// StrategyPerTarget draws one colour per bound light.
	StrategyPerTarget Strategy = iota
	// StrategyShared draws once and applies the result to every bound light.
	StrategyShared
)

// Task is one modulation loop bound to a fixed set of lights.
//
// Each cycle takes a snapshot of the shared config, draws commands,
// dispatches them and sleeps for the drawn delay. Stop cancels the loop at
// its next suspension point: between two dispatches or during the sleep.
type Task struct {
	id       string
	targets  []string
	strategy Strategy
	shared   *SharedConfig
	bridge   Dispatcher
	rng      *rand.Rand
	tick     time.Duration
	logger   zerolog.Logger

	state  atomic.Int32
	cancel context.CancelFunc
	done   chan struct{}
}

// TaskConfig holds what a task needs besides its lights.
type TaskConfig struct {
	Strategy Strategy
	Shared   *SharedConfig
	Bridge   Dispatcher
	Tick     time.Duration
	Seed     uint64
}

// NewTask creates a task for lights, which must not be empty.
// The task does nothing until Start.
func NewTask(lights []LightHandle, cfg TaskConfig) *Task {
	if cfg.Tick <= 0 {
		cfg.Tick = DefaultTick
	}

	targets := make([]string, len(lights))
	keys := make([]string, len(lights))
	for i, l := range lights {
		targets[i] = l.ID
		keys[i] = l.seedKey()
	}

	seed := SeedFor(cfg.Seed, keys...)
	id := uuid.NewString()

	return &Task{
		id:       id,
		targets:  targets,
		strategy: cfg.Strategy,
		shared:   cfg.Shared,
		bridge:   cfg.Bridge,
		rng:      rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		tick:     cfg.Tick,
		logger:   log.With().Str("task", id).Strs("lights", targets).Logger(),
		done:     make(chan struct{}),
	}
}

// ID returns the task identifier.
func (t *Task) ID() string { return t.id }

// Targets returns the ids of the lights this task drives.
func (t *Task) Targets() []string {
	out := make([]string, len(t.targets))
	copy(out, t.targets)
	return out
}

// Strategy returns the sampling strategy.
func (t *Task) Strategy() Strategy { return t.strategy }

// State returns the current lifecycle state.
func (t *Task) State() State { return State(t.state.Load()) }

// Done is closed once the loop has exited.
func (t *Task) Done() <-chan struct{} { return t.done }

// Start launches the loop. The task stops when ctx is cancelled or Stop is called.
func (t *Task) Start(ctx context.Context) {
	ctx, t.cancel = context.WithCancel(ctx)
	// parent cancellation stops the task the same way Stop does
	context.AfterFunc(ctx, t.markCancelling)
	metrics.TasksRunning.Inc()
	t.logger.Debug().Int("strategy", int(t.strategy)).Msg("Task started")
	go t.run(ctx)
}

// Stop signals the loop to exit and returns without waiting.
// A light command already being sent is allowed to finish.
func (t *Task) Stop() {
	t.markCancelling()
	if t.cancel != nil {
		t.cancel()
	}
}

func (t *Task) markCancelling() {
	t.state.CompareAndSwap(int32(StateRunning), int32(StateCancelling))
}

func (t *Task) run(ctx context.Context) {
	defer func() {
		t.state.Store(int32(StateStopped))
		metrics.TasksRunning.Dec()
		t.logger.Debug().Msg("Task stopped")
		close(t.done)
	}()

	for {
		if ctx.Err() != nil {
			return
		}

		cfg, _ := t.shared.Snapshot()
		cmds := t.cycle(cfg)

		if !t.dispatch(ctx, cmds) {
			return
		}
		metrics.Cycles.Inc()

		if !t.sleep(ctx, cmds[0].DelayDuration(t.tick)) {
			return
		}
	}
}

// cycle draws one command per target. The cycle delay is drawn first and
// shared by every target of the task.
func (t *Task) cycle(cfg Config) []Command {
	ticks := Sample(t.rng, cfg.Time)
	cmds := make([]Command, len(t.targets))

	if t.strategy == StrategyShared {
		cmd := cfg.CommandFor(ticks, cfg.SampleColor(t.rng))
		for i := range cmds {
			cmds[i] = cmd
		}
		return cmds
	}

	for i := range cmds {
		cmds[i] = cfg.CommandFor(ticks, cfg.SampleColor(t.rng))
	}
	return cmds
}

// dispatch sends cmds in target order. It returns false if the task was
// cancelled before every command went out. Cancellation is observed before
// each command and while pacing; a command on the wire runs to completion.
func (t *Task) dispatch(ctx context.Context, cmds []Command) bool {
	pacer, _ := t.bridge.(Pacer)
	for i, target := range t.targets {
		if ctx.Err() != nil {
			return false
		}
		if pacer != nil {
			if err := pacer.Wait(ctx); err != nil {
				if ctx.Err() != nil {
					return false
				}
				t.logger.Debug().Err(err).Str("light", target).Msg("Pacing failed")
			}
		}
		if err := t.bridge.SetLightState(context.WithoutCancel(ctx), target, cmds[i]); err != nil {
			metrics.Commands.WithLabelValues("error").Inc()
			t.logger.Debug().Err(err).Str("light", target).Msg("Light command failed")
			continue
		}
		metrics.Commands.WithLabelValues("ok").Inc()
	}
	return true
}

func (t *Task) sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
