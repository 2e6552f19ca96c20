package guard

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/kozaktomas/presence-guard/internal/action"
	"github.com/kozaktomas/presence-guard/internal/camera"
	"github.com/kozaktomas/presence-guard/internal/config"
	"github.com/kozaktomas/presence-guard/internal/database"
	"github.com/kozaktomas/presence-guard/internal/presence"
	"github.com/kozaktomas/presence-guard/internal/recognizer"
)

type fakeSource struct {
	errs []error // per-call error, nil means a frame is produced
	call int
}

func (f *fakeSource) Acquire(ctx context.Context) (*camera.Frame, error) {
	var err error
	if f.call < len(f.errs) {
		err = f.errs[f.call]
	}
	f.call++
	if err != nil {
		return nil, err
	}
	return &camera.Frame{Data: []byte{0xff, 0xd8}, Width: 640, Height: 480, Timestamp: time.Now()}, nil
}

func (f *fakeSource) Close() error { return nil }

type fakeAnalyzer struct {
	script []presence.Observation // observation to produce per call, last repeats
	call   int
}

func (f *fakeAnalyzer) Analyze(ctx context.Context, frame *camera.Frame) ([]recognizer.Detection, error) {
	obs := presence.NoFace
	if len(f.script) > 0 {
		i := f.call
		if i >= len(f.script) {
			i = len(f.script) - 1
		}
		obs = f.script[i]
	}
	f.call++

	switch obs {
	case presence.SingleAuthorized:
		return []recognizer.Detection{{Identity: "tomas", Distance: 0.3}}, nil
	case presence.SingleUnauthorized:
		return []recognizer.Detection{{Distance: 2.0}}, nil
	case presence.MultipleFaces:
		return []recognizer.Detection{{Identity: "tomas", Distance: 0.3}, {Distance: 2.0}}, nil
	default:
		return nil, nil
	}
}

type fakeDispatcher struct {
	transitions []presence.SecurityState
	err         error
}

func (f *fakeDispatcher) OnTransition(ctx context.Context, from, to presence.SecurityState) (action.Result, error) {
	f.transitions = append(f.transitions, to)
	if f.err != nil {
		return action.Result{}, f.err
	}
	return action.Result{Fired: to != presence.Idle}, nil
}

type fakeHint struct{ present bool }

func (f fakeHint) Present(ctx context.Context) bool { return f.present }

func testConfig() config.MonitorConfig {
	return config.MonitorConfig{
		TickInterval:     100 * time.Millisecond,
		DebounceTicks:    3,
		FailureThreshold: 3,
		MaxBackoff:       time.Second,
		StartupGrace:     time.Second,
	}
}

func newTestLoop(t *testing.T, cfg config.MonitorConfig, src camera.FrameSource, an Analyzer, d Dispatcher, phone PresenceHint) *Loop {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	l := New(cfg, src, an, d, database.NopStore{}, phone, logger)
	l.stabilizer = presence.NewStabilizer(presence.Idle, cfg.DebounceTicks)
	l.tracker = NewTracker(presence.Idle, cfg.TickInterval)
	return l
}

func TestLoopDebouncedTransition(t *testing.T) {
	an := &fakeAnalyzer{script: []presence.Observation{presence.NoFace}}
	disp := &fakeDispatcher{}
	l := newTestLoop(t, testConfig(), &fakeSource{}, an, disp, nil)

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		l.runTick(ctx)
	}
	if len(disp.transitions) != 0 {
		t.Fatalf("transition fired after %d ticks, want none below debounce threshold", an.call)
	}

	l.runTick(ctx)
	if len(disp.transitions) != 1 || disp.transitions[0] != presence.Away {
		t.Fatalf("expected single transition to away, got %v", disp.transitions)
	}

	st := l.tracker.Snapshot()
	if st.State != "away" {
		t.Errorf("tracker state = %q, want away", st.State)
	}
	if st.Transitions != 1 {
		t.Errorf("tracker transitions = %d, want 1", st.Transitions)
	}
}

func TestLoopAuthorizedStaysIdle(t *testing.T) {
	an := &fakeAnalyzer{script: []presence.Observation{presence.SingleAuthorized}}
	disp := &fakeDispatcher{}
	l := newTestLoop(t, testConfig(), &fakeSource{}, an, disp, nil)

	for i := 0; i < 20; i++ {
		l.runTick(context.Background())
	}

	if len(disp.transitions) != 0 {
		t.Fatalf("authorized user caused transitions: %v", disp.transitions)
	}
	if got := l.tracker.Snapshot().Ticks; got != 20 {
		t.Errorf("ticks = %d, want 20", got)
	}
}

func TestLoopIntruderAfterDebounce(t *testing.T) {
	an := &fakeAnalyzer{script: []presence.Observation{presence.SingleUnauthorized}}
	disp := &fakeDispatcher{}
	l := newTestLoop(t, testConfig(), &fakeSource{}, an, disp, nil)

	for i := 0; i < 5; i++ {
		l.runTick(context.Background())
	}

	if len(disp.transitions) != 1 || disp.transitions[0] != presence.Intruder {
		t.Fatalf("expected single transition to intruder, got %v", disp.transitions)
	}
}

func TestLoopBackoffAfterConsecutiveFailures(t *testing.T) {
	cfg := testConfig()
	src := &fakeSource{errs: []error{
		camera.ErrDeviceUnavailable,
		camera.ErrDeviceUnavailable,
		camera.ErrDeviceUnavailable,
		camera.ErrDeviceUnavailable,
		nil,
	}}
	an := &fakeAnalyzer{script: []presence.Observation{presence.SingleAuthorized}}
	l := newTestLoop(t, cfg, src, an, &fakeDispatcher{}, nil)

	ctx := context.Background()

	l.runTick(ctx)
	l.runTick(ctx)
	if l.interval != cfg.TickInterval {
		t.Fatalf("interval degraded after 2 failures, threshold is 3")
	}

	l.runTick(ctx)
	if l.interval != 2*cfg.TickInterval {
		t.Fatalf("interval = %v after 3 failures, want %v", l.interval, 2*cfg.TickInterval)
	}

	l.runTick(ctx)
	if l.interval != 4*cfg.TickInterval {
		t.Fatalf("interval = %v after 4 failures, want %v", l.interval, 4*cfg.TickInterval)
	}

	// successful tick restores the nominal interval and resets the counter
	l.runTick(ctx)
	if l.interval != cfg.TickInterval {
		t.Fatalf("interval = %v after recovery, want %v", l.interval, cfg.TickInterval)
	}
	if l.failures != 0 {
		t.Errorf("failure counter = %d after recovery, want 0", l.failures)
	}
}

func TestLoopBackoffCapped(t *testing.T) {
	cfg := testConfig()
	cfg.MaxBackoff = 300 * time.Millisecond
	src := &fakeSource{errs: []error{
		errors.New("boom"), errors.New("boom"), errors.New("boom"),
		errors.New("boom"), errors.New("boom"), errors.New("boom"),
	}}
	l := newTestLoop(t, cfg, src, &fakeAnalyzer{}, &fakeDispatcher{}, nil)

	for i := 0; i < 6; i++ {
		l.runTick(context.Background())
	}

	if l.interval != cfg.MaxBackoff {
		t.Fatalf("interval = %v, want cap %v", l.interval, cfg.MaxBackoff)
	}
}

func TestLoopFailedTickDoesNotAdvanceState(t *testing.T) {
	cfg := testConfig()
	cfg.DebounceTicks = 2
	src := &fakeSource{errs: []error{nil, camera.ErrDeviceUnavailable, nil}}
	an := &fakeAnalyzer{script: []presence.Observation{presence.NoFace}}
	disp := &fakeDispatcher{}
	l := newTestLoop(t, cfg, src, an, disp, nil)

	ctx := context.Background()
	l.runTick(ctx) // no_face, run 1
	l.runTick(ctx) // acquisition fails, stabilizer untouched
	if len(disp.transitions) != 0 {
		t.Fatalf("transition fired across a failed tick: %v", disp.transitions)
	}

	l.runTick(ctx) // no_face, run 2, commits
	if len(disp.transitions) != 1 || disp.transitions[0] != presence.Away {
		t.Fatalf("expected transition to away after recovery, got %v", disp.transitions)
	}
}

func TestLoopPhoneAbsentDowngradesAuthorized(t *testing.T) {
	cfg := testConfig()
	an := &fakeAnalyzer{script: []presence.Observation{presence.SingleAuthorized}}
	disp := &fakeDispatcher{}
	l := newTestLoop(t, cfg, &fakeSource{}, an, disp, fakeHint{present: false})

	for i := 0; i < cfg.DebounceTicks; i++ {
		l.runTick(context.Background())
	}

	if len(disp.transitions) != 1 || disp.transitions[0] != presence.Intruder {
		t.Fatalf("expected intruder transition with phone absent, got %v", disp.transitions)
	}
	if got := l.tracker.Snapshot().LastObservation; got != "single_unauthorized" {
		t.Errorf("last observation = %q, want single_unauthorized", got)
	}
}

func TestLoopPhonePresentKeepsIdle(t *testing.T) {
	an := &fakeAnalyzer{script: []presence.Observation{presence.SingleAuthorized}}
	disp := &fakeDispatcher{}
	l := newTestLoop(t, testConfig(), &fakeSource{}, an, disp, fakeHint{present: true})

	for i := 0; i < 10; i++ {
		l.runTick(context.Background())
	}

	if len(disp.transitions) != 0 {
		t.Fatalf("unexpected transitions: %v", disp.transitions)
	}
}

func TestLoopRecordsAuditEvent(t *testing.T) {
	store, err := database.NewFileStore(t.TempDir() + "/audit.jsonl")
	if err != nil {
		t.Fatalf("file store: %v", err)
	}
	defer store.Close()

	cfg := testConfig()
	cfg.DebounceTicks = 1
	an := &fakeAnalyzer{script: []presence.Observation{presence.SingleUnauthorized}}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	l := New(cfg, &fakeSource{}, an, &fakeDispatcher{}, store, nil, logger)
	l.stabilizer = presence.NewStabilizer(presence.Idle, cfg.DebounceTicks)
	l.tracker = NewTracker(presence.Idle, cfg.TickInterval)

	l.runTick(context.Background())

	events, err := store.RecentTransitions(context.Background(), 10)
	if err != nil {
		t.Fatalf("recent transitions: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("got %d audit events, want 1", len(events))
	}
	ev := events[0]
	if ev.From != "idle" || ev.To != "intruder" {
		t.Errorf("event %s -> %s, want idle -> intruder", ev.From, ev.To)
	}
	if ev.ID == "" {
		t.Error("event ID empty")
	}
	if !ev.ActionFired {
		t.Error("event should record the fired action")
	}
}

func TestLoopDispatchErrorRecordedNotFatal(t *testing.T) {
	cfg := testConfig()
	cfg.DebounceTicks = 1
	an := &fakeAnalyzer{script: []presence.Observation{presence.NoFace, presence.SingleAuthorized}}
	disp := &fakeDispatcher{err: errors.New("loginctl not found")}
	l := newTestLoop(t, cfg, &fakeSource{}, an, disp, nil)

	l.runTick(context.Background())
	l.runTick(context.Background())

	if len(disp.transitions) != 2 {
		t.Fatalf("loop stopped dispatching after an action error: %v", disp.transitions)
	}
	last := l.tracker.Snapshot().LastTransition
	if last == nil || last.ActionError == "" {
		t.Fatalf("action error not recorded in transition event: %+v", last)
	}
}

func TestLoopRunStartsAndStops(t *testing.T) {
	cfg := testConfig()
	cfg.TickInterval = 5 * time.Millisecond
	cfg.StartupGrace = 100 * time.Millisecond
	an := &fakeAnalyzer{script: []presence.Observation{presence.SingleAuthorized}}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	l := New(cfg, &fakeSource{}, an, &fakeDispatcher{}, database.NopStore{}, nil, logger)

	ctx, cancel := context.WithCancel(context.Background())
	started := make(chan struct{})
	done := make(chan error, 1)
	go func() { done <- l.Run(ctx, started) }()

	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("loop did not start")
	}

	if got := l.Tracker().Snapshot().State; got != "idle" {
		t.Errorf("initial state = %q, want idle (frame available in grace window)", got)
	}

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run returned error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("loop did not stop on context cancellation")
	}
}

func TestLoopStartsAwayWhenCameraDead(t *testing.T) {
	cfg := testConfig()
	cfg.TickInterval = 5 * time.Millisecond
	cfg.StartupGrace = 30 * time.Millisecond
	src := &fakeSource{errs: []error{
		camera.ErrDeviceUnavailable, camera.ErrDeviceUnavailable,
		camera.ErrDeviceUnavailable, camera.ErrDeviceUnavailable,
		camera.ErrDeviceUnavailable, camera.ErrDeviceUnavailable,
		camera.ErrDeviceUnavailable, camera.ErrDeviceUnavailable,
	}}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	l := New(cfg, src, &fakeAnalyzer{}, &fakeDispatcher{}, database.NopStore{}, nil, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	started := make(chan struct{})
	done := make(chan error, 1)
	go func() { done <- l.Run(ctx, started) }()

	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("loop did not start")
	}

	if got := l.Tracker().Snapshot().State; got != "away" {
		t.Errorf("initial state = %q, want away when no frame in grace window", got)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("loop did not stop")
	}
}

func TestTrackerSubscribe(t *testing.T) {
	tr := NewTracker(presence.Idle, time.Second)
	ch := tr.Subscribe()

	ev := database.TransitionEvent{ID: "abc", From: "idle", To: "away"}
	tr.recordTransition(ev)

	select {
	case got := <-ch:
		if got.ID != "abc" {
			t.Errorf("got event %q, want abc", got.ID)
		}
	default:
		t.Fatal("no event delivered to subscriber")
	}

	tr.Unsubscribe(ch)
	if _, ok := <-ch; ok {
		t.Error("channel not closed after unsubscribe")
	}
}

func TestTrackerSlowSubscriberDoesNotBlock(t *testing.T) {
	tr := NewTracker(presence.Idle, time.Second)
	ch := tr.Subscribe()
	defer tr.Unsubscribe(ch)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			tr.recordTransition(database.TransitionEvent{ID: "x"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("recordTransition blocked on a full subscriber channel")
	}
}
