package disco

import (
	"context"
	"math"
	"sync"
	"testing"
	"time"
)

func startTask(t *testing.T, lights []LightHandle, strategy Strategy, shared *SharedConfig, bridge Dispatcher) *Task {
	t.Helper()
	task := NewTask(lights, TaskConfig{
		Strategy: strategy,
		Shared:   shared,
		Bridge:   bridge,
		Tick:     time.Millisecond,
	})
	task.Start(context.Background())
	t.Cleanup(func() {
		task.Stop()
		<-task.Done()
	})
	return task
}

func TestTask_StopHaltsDispatch(t *testing.T) {
	bridge := &recordingBridge{}
	task := startTask(t, testLights("1"), StrategyPerTarget, NewSharedConfig(fastConfig()), bridge)

	waitFor(t, time.Second, "five dispatches", func() bool { return bridge.count() >= 5 })
	if task.State() != StateRunning {
		t.Fatalf("state = %v, want running", task.State())
	}

	task.Stop()
	select {
	case <-task.Done():
	case <-time.After(time.Second):
		t.Fatal("task did not stop")
	}
	if task.State() != StateStopped {
		t.Errorf("state = %v, want stopped", task.State())
	}

	stoppedAt := bridge.count()
	time.Sleep(20 * time.Millisecond)
	if got := bridge.count(); got != stoppedAt {
		t.Errorf("%d dispatches after stop", got-stoppedAt)
	}
}

func TestTask_StopInterruptsSleep(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Time = Range[uint16]{Start: 100, End: 101}

	bridge := &recordingBridge{}
	task := NewTask(testLights("1"), TaskConfig{
		Shared: NewSharedConfig(cfg),
		Bridge: bridge,
		Tick:   10 * time.Millisecond,
	})
	task.Start(context.Background())

	waitFor(t, time.Second, "first dispatch", func() bool { return bridge.count() == 1 })

	start := time.Now()
	task.Stop()
	<-task.Done()
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Errorf("stop took %v while sleeping a 1s cycle", elapsed)
	}
}

func TestTask_ParentContextCancels(t *testing.T) {
	bridge := &recordingBridge{}
	ctx, cancel := context.WithCancel(context.Background())

	task := NewTask(testLights("1"), TaskConfig{
		Shared: NewSharedConfig(fastConfig()),
		Bridge: bridge,
		Tick:   time.Millisecond,
	})
	task.Start(ctx)
	waitFor(t, time.Second, "a dispatch", func() bool { return bridge.count() > 0 })

	cancel()
	select {
	case <-task.Done():
	case <-time.After(time.Second):
		t.Fatal("task ignored parent cancellation")
	}
}

func TestTask_DispatchFailuresAreSwallowed(t *testing.T) {
	bridge := &recordingBridge{fail: true}
	task := startTask(t, testLights("1", "2"), StrategyPerTarget, NewSharedConfig(fastConfig()), bridge)

	waitFor(t, time.Second, "repeated failing cycles", func() bool { return bridge.count() >= 20 })
	if task.State() != StateRunning {
		t.Errorf("state = %v after failures, want running", task.State())
	}
}

func TestTask_ConfigChangesOnCycleBoundary(t *testing.T) {
	cfgA := fastConfig()
	cfgA.Red = Range[uint8]{Start: 0, End: 1}
	cfgB := fastConfig()
	cfgB.Red = Range[uint8]{Start: 200, End: 201}

	shared := NewSharedConfig(cfgA)
	bridge := &recordingBridge{}
	task := startTask(t, testLights("1", "2"), StrategyPerTarget, shared, bridge)

	waitFor(t, time.Second, "cycles under config A", func() bool { return bridge.count() >= 4 })

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 200; i++ {
			if i%2 == 0 {
				shared.Publish(cfgB)
			} else {
				shared.Publish(cfgA)
			}
			time.Sleep(100 * time.Microsecond)
		}
		shared.Publish(cfgB)
	}()
	<-done

	waitFor(t, time.Second, "config B observed", func() bool {
		records := bridge.snapshot()
		return len(records) > 0 && records[len(records)-1].cmd.Color.R == 200
	})

	task.Stop()
	<-task.Done()

	records := bridge.snapshot()
	for i := 0; i+1 < len(records); i += 2 {
		a, b := records[i], records[i+1]
		if a.light != "1" || b.light != "2" {
			t.Fatalf("records %d,%d: lights %s,%s, want 1,2", i, i+1, a.light, b.light)
		}
		if a.cmd.Color.R != b.cmd.Color.R {
			t.Fatalf("cycle %d mixed configs: red %d and %d", i/2, a.cmd.Color.R, b.cmd.Color.R)
		}
		if a.cmd.Delay != b.cmd.Delay {
			t.Fatalf("cycle %d: delays %d and %d differ", i/2, a.cmd.Delay, b.cmd.Delay)
		}
	}
}

func TestTask_SharedStrategyIdenticalCommands(t *testing.T) {
	task := NewTask(testLights("1", "2", "3"), TaskConfig{Strategy: StrategyShared})
	cfg := DefaultConfig()
	cfg.Fade = true

	for i := 0; i < 1000; i++ {
		cmds := task.cycle(cfg)
		if len(cmds) != 3 {
			t.Fatalf("got %d commands, want 3", len(cmds))
		}
		for _, c := range cmds[1:] {
			if c != cmds[0] {
				t.Fatalf("cycle %d: %+v differs from %+v", i, c, cmds[0])
			}
		}
		if cmds[0].Transition != cmds[0].Delay {
			t.Fatalf("cycle %d: transition %d, delay %d", i, cmds[0].Transition, cmds[0].Delay)
		}
	}
}

func TestTask_PerTargetSharesCycleDelay(t *testing.T) {
	task := NewTask(testLights("1", "2", "3"), TaskConfig{Strategy: StrategyPerTarget})
	cfg := DefaultConfig()

	distinct := 0
	for i := 0; i < 200; i++ {
		cmds := task.cycle(cfg)
		for _, c := range cmds[1:] {
			if c.Delay != cmds[0].Delay {
				t.Fatalf("cycle %d: delays %d and %d in one cycle", i, cmds[0].Delay, c.Delay)
			}
			if c.Color != cmds[0].Color {
				distinct++
			}
		}
	}
	if distinct < 300 {
		t.Errorf("only %d of 400 colours differed from the first light's", distinct)
	}
}

func TestTask_IndependentStreamsUncorrelated(t *testing.T) {
	lights := testLights("1", "2")
	taskA := NewTask(lights[:1], TaskConfig{})
	taskB := NewTask(lights[1:], TaskConfig{})
	cfg := DefaultConfig()

	const cycles = 1000
	reds := [2][]float64{make([]float64, cycles), make([]float64, cycles)}
	identical := 0
	for i := 0; i < cycles; i++ {
		a := taskA.cycle(cfg)
		b := taskB.cycle(cfg)
		reds[0][i] = float64(a[0].Color.R)
		reds[1][i] = float64(b[0].Color.R)
		if a[0].Color == b[0].Color {
			identical++
		}
	}

	if identical > 5 {
		t.Errorf("%d of %d cycles produced identical colours", identical, cycles)
	}
	if r := correlation(reds[0], reds[1]); math.Abs(r) > 0.1 {
		t.Errorf("red correlation = %.3f, want |r| <= 0.1", r)
	}
}

func TestTask_SameLightReproducible(t *testing.T) {
	lights := testLights("4")
	a := NewTask(lights, TaskConfig{Seed: 99})
	b := NewTask(lights, TaskConfig{Seed: 99})
	other := NewTask(lights, TaskConfig{Seed: 100})
	cfg := DefaultConfig()

	same, diff := 0, 0
	for i := 0; i < 100; i++ {
		ca := a.cycle(cfg)
		cb := b.cycle(cfg)
		co := other.cycle(cfg)
		if ca[0] == cb[0] {
			same++
		}
		if ca[0] != co[0] {
			diff++
		}
	}
	if same != 100 {
		t.Errorf("equal seeds matched %d of 100 cycles", same)
	}
	if diff < 90 {
		t.Errorf("different session seeds matched %d of 100 cycles", 100-diff)
	}
}

// blockingBridge holds every call until released and records whether the
// call's context was still live when it returned.
type blockingBridge struct {
	entered chan struct{}
	release chan struct{}

	mu       sync.Mutex
	calls    int
	liveErrs []error
}

func newBlockingBridge() *blockingBridge {
	return &blockingBridge{entered: make(chan struct{}, 16), release: make(chan struct{})}
}

func (b *blockingBridge) SetLightState(ctx context.Context, _ string, _ Command) error {
	b.entered <- struct{}{}
	<-b.release
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls++
	b.liveErrs = append(b.liveErrs, ctx.Err())
	return nil
}

func (b *blockingBridge) results() (int, []error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls, append([]error(nil), b.liveErrs...)
}

func TestTask_StopLetsInFlightCommandFinish(t *testing.T) {
	bridge := newBlockingBridge()
	task := NewTask(testLights("1", "2"), TaskConfig{
		Shared: NewSharedConfig(fastConfig()),
		Bridge: bridge,
		Tick:   time.Millisecond,
	})
	task.Start(context.Background())

	<-bridge.entered
	task.Stop()
	if task.State() != StateCancelling {
		t.Errorf("state during in-flight command = %v, want cancelling", task.State())
	}
	close(bridge.release)
	<-task.Done()

	calls, errs := bridge.results()
	if calls != 1 {
		t.Errorf("%d commands sent, want only the in-flight one", calls)
	}
	for _, err := range errs {
		if err != nil {
			t.Errorf("in-flight command saw its context end: %v", err)
		}
	}
}

func TestTask_ParentCancelMarksCancelling(t *testing.T) {
	bridge := newBlockingBridge()
	ctx, cancel := context.WithCancel(context.Background())
	task := NewTask(testLights("1"), TaskConfig{
		Shared: NewSharedConfig(fastConfig()),
		Bridge: bridge,
		Tick:   time.Millisecond,
	})
	task.Start(ctx)

	<-bridge.entered
	cancel()
	waitFor(t, time.Second, "cancelling state", func() bool { return task.State() == StateCancelling })

	close(bridge.release)
	<-task.Done()
	if task.State() != StateStopped {
		t.Errorf("state = %v, want stopped", task.State())
	}
}

// pacedBridge blocks in Wait until its context ends.
type pacedBridge struct {
	recordingBridge
	waiting chan struct{}
}

func (b *pacedBridge) Wait(ctx context.Context) error {
	b.waiting <- struct{}{}
	<-ctx.Done()
	return ctx.Err()
}

func TestTask_StopInterruptsPacing(t *testing.T) {
	bridge := &pacedBridge{waiting: make(chan struct{}, 1)}
	task := NewTask(testLights("1"), TaskConfig{
		Shared: NewSharedConfig(fastConfig()),
		Bridge: bridge,
		Tick:   time.Millisecond,
	})
	task.Start(context.Background())

	<-bridge.waiting
	task.Stop()
	select {
	case <-task.Done():
	case <-time.After(time.Second):
		t.Fatal("task stuck in pacing after stop")
	}
	if n := bridge.count(); n != 0 {
		t.Errorf("%d commands sent after pacing was cancelled", n)
	}
}

func correlation(x, y []float64) float64 {
	n := float64(len(x))
	var sx, sy float64
	for i := range x {
		sx += x[i]
		sy += y[i]
	}
	mx, my := sx/n, sy/n

	var cov, vx, vy float64
	for i := range x {
		dx, dy := x[i]-mx, y[i]-my
		cov += dx * dy
		vx += dx * dx
		vy += dy * dy
	}
	return cov / math.Sqrt(vx*vy)
}
