// Package guard runs the monitor loop: it pulls frames from the camera,
// classifies who is in front of the machine and drives the lock and
// alert actions through a debounced state machine.
package guard

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/kozaktomas/presence-guard/internal/action"
	"github.com/kozaktomas/presence-guard/internal/camera"
	"github.com/kozaktomas/presence-guard/internal/config"
	"github.com/kozaktomas/presence-guard/internal/database"
	"github.com/kozaktomas/presence-guard/internal/presence"
	"github.com/kozaktomas/presence-guard/internal/recognizer"
)

// Analyzer turns a frame into identified face detections.
type Analyzer interface {
	Analyze(ctx context.Context, frame *camera.Frame) ([]recognizer.Detection, error)
}

// Dispatcher reacts to committed state transitions.
type Dispatcher interface {
	OnTransition(ctx context.Context, from, to presence.SecurityState) (action.Result, error)
}

// Loop is the single owner of the security state. Everything else reads
// it through the Tracker.
type Loop struct {
	source     camera.FrameSource
	analyzer   Analyzer
	stabilizer *presence.Stabilizer
	dispatcher Dispatcher
	store      database.EventStore
	tracker    *Tracker
	phone      PresenceHint
	logger     *slog.Logger

	cfg      config.MonitorConfig
	interval time.Duration
	failures int
}

// New wires a monitor loop. The stabilizer and tracker are created in
// Run once the startup grace window decides the initial state.
func New(
	cfg config.MonitorConfig,
	source camera.FrameSource,
	analyzer Analyzer,
	dispatcher Dispatcher,
	store database.EventStore,
	phone PresenceHint,
	logger *slog.Logger,
) *Loop {
	if store == nil {
		store = database.NopStore{}
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Loop{
		source:     source,
		analyzer:   analyzer,
		dispatcher: dispatcher,
		store:      store,
		phone:      phone,
		logger:     logger,
		cfg:        cfg,
		interval:   cfg.TickInterval,
	}
}

// Tracker returns the status tracker. Valid after Run has started; the
// run command calls Run in a goroutine and waits for Started.
func (l *Loop) Tracker() *Tracker {
	return l.tracker
}

// Run drives the monitor until the context is cancelled. The camera is
// released before Run returns. Cancellation is observed at tick
// boundaries only, so an in-flight acquisition finishes first.
func (l *Loop) Run(ctx context.Context, started chan<- struct{}) error {
	defer func() {
		if err := l.source.Close(); err != nil {
			l.logger.Warn("closing frame source", "error", err)
		}
	}()

	initial := l.probeInitialState(ctx)
	l.stabilizer = presence.NewStabilizer(initial, l.cfg.DebounceTicks)
	l.tracker = NewTracker(initial, l.interval)
	if started != nil {
		close(started)
	}

	l.logger.Info("monitor started",
		"initial_state", initial.String(),
		"tick_interval", l.cfg.TickInterval.String(),
		"debounce_ticks", l.cfg.DebounceTicks,
	)

	timer := time.NewTimer(l.interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			l.logger.Info("monitor stopping", "reason", ctx.Err())
			return nil
		case <-timer.C:
		}

		l.runTick(ctx)
		timer.Reset(l.interval)
	}
}

// probeInitialState tries to get one frame within the startup grace
// window. No frame means we cannot vouch for anybody being present, so
// the monitor starts in Away.
func (l *Loop) probeInitialState(ctx context.Context) presence.SecurityState {
	deadline := time.Now().Add(l.cfg.StartupGrace)

	for time.Now().Before(deadline) {
		if ctx.Err() != nil {
			return presence.Away
		}
		if _, err := l.source.Acquire(ctx); err == nil {
			return presence.Idle
		}
		select {
		case <-ctx.Done():
			return presence.Away
		case <-time.After(l.cfg.TickInterval):
		}
	}

	l.logger.Warn("no frame within startup grace, starting in away state",
		"grace", l.cfg.StartupGrace.String())
	return presence.Away
}

// runTick executes one observation cycle and adjusts the tick interval
// based on consecutive failures.
func (l *Loop) runTick(ctx context.Context) {
	if err := l.tick(ctx); err != nil {
		l.failures++
		l.tracker.recordFailure()
		l.logger.Warn("tick failed", "error", err, "consecutive", l.failures)

		if l.failures >= l.cfg.FailureThreshold {
			next := l.interval * 2
			if next > l.cfg.MaxBackoff {
				next = l.cfg.MaxBackoff
			}
			if next != l.interval {
				l.logger.Warn("degrading tick interval",
					"from", l.interval.String(), "to", next.String())
			}
			l.interval = next
			l.tracker.recordInterval(l.interval, true)
		}
		return
	}

	if l.failures > 0 {
		l.failures = 0
		if l.interval != l.cfg.TickInterval {
			l.logger.Info("recovered, restoring tick interval",
				"interval", l.cfg.TickInterval.String())
		}
		l.interval = l.cfg.TickInterval
		l.tracker.recordInterval(l.interval, false)
	}
}

func (l *Loop) tick(ctx context.Context) error {
	frame, err := l.source.Acquire(ctx)
	if err != nil {
		return err
	}

	detections, err := l.analyzer.Analyze(ctx, frame)
	if err != nil {
		return err
	}

	obs := presence.Classify(detections)

	// A recognized face without the paired phone nearby is treated as
	// unauthorized. The hint can only tighten the decision, never relax it.
	if l.phone != nil && obs == presence.SingleAuthorized && !l.phone.Present(ctx) {
		l.logger.Debug("authorized face but phone absent, downgrading observation")
		obs = presence.SingleUnauthorized
	}

	prev := l.stabilizer.State()
	state, changed := l.stabilizer.Observe(obs)
	l.tracker.recordTick(obs, state)

	if changed {
		l.commitTransition(ctx, prev, state, obs)
	}

	return nil
}

func (l *Loop) commitTransition(ctx context.Context, from, to presence.SecurityState, obs presence.Observation) {
	l.logger.Info("state transition",
		"from", from.String(), "to", to.String(), "observation", obs.String())

	res, err := l.dispatcher.OnTransition(ctx, from, to)
	if err != nil {
		l.logger.Error("dispatch failed", "to", to.String(), "error", err)
	}

	ev := database.TransitionEvent{
		ID:               uuid.NewString(),
		From:             from.String(),
		To:               to.String(),
		Observation:      obs.String(),
		At:               time.Now().UTC(),
		ActionFired:      res.Fired,
		ActionSuppressed: res.Suppressed,
	}
	if err != nil {
		ev.ActionError = err.Error()
	}

	if err := l.store.RecordTransition(ctx, ev); err != nil {
		// the audit trail is best effort, losing a record must not stop the monitor
		l.logger.Error("recording transition", "error", err)
	}

	l.tracker.recordTransition(ev)
}
