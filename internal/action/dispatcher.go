// Package action turns security state transitions into one-shot side
// effects: locking the session, sending alerts. Cooldowns keep a
// persisting state from hammering the sinks.
package action

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/kozaktomas/presence-guard/internal/presence"
)

// ErrActionFailed wraps sink failures. Never fatal; the failed action is
// retried on the next qualifying transition.
var ErrActionFailed = errors.New("action failed")

// Locker locks the desktop session. Implementations must be bounded in
// time; the dispatcher does not add its own timeout.
type Locker interface {
	Lock(ctx context.Context) error
}

// Notifier delivers an alert for a state transition.
type Notifier interface {
	Alert(ctx context.Context, state presence.SecurityState, message string) error
}

// Record tracks the last action fired for one state, enforcing the
// non-repetition cooldown.
type Record struct {
	State         presence.SecurityState
	FiredAt       time.Time
	CooldownUntil time.Time
}

// Result says what a transition produced, for audit logging.
type Result struct {
	Fired      bool // an action ran (successfully or not)
	Suppressed bool // a qualifying transition fell inside the cooldown window
}

// Dispatcher maps transitions into Away or Intruder onto the sinks.
// Re-entering a state after a dip fires again, subject to the per-state
// cooldown. Not safe for concurrent use; the monitor loop is the sole
// caller.
type Dispatcher struct {
	locker    Locker
	notifier  Notifier // may be nil
	cooldowns map[presence.SecurityState]time.Duration
	records   map[presence.SecurityState]*Record
	now       func() time.Time
}

// NewDispatcher builds a dispatcher. cooldowns maps each alarming state
// to its minimum re-fire interval; states without an entry get no
// cooldown protection.
func NewDispatcher(locker Locker, notifier Notifier, cooldowns map[presence.SecurityState]time.Duration) *Dispatcher {
	return &Dispatcher{
		locker:    locker,
		notifier:  notifier,
		cooldowns: cooldowns,
		records:   make(map[presence.SecurityState]*Record),
		now:       time.Now,
	}
}

// LastRecord returns the action record for a state, or nil if that state
// has never fired.
func (d *Dispatcher) LastRecord(state presence.SecurityState) *Record {
	return d.records[state]
}

// OnTransition fires the actions for a committed state transition.
// Transitions into Idle carry no action. A sink failure is returned
// wrapped in ErrActionFailed and does not start the cooldown, so the
// next qualifying transition retries.
func (d *Dispatcher) OnTransition(ctx context.Context, from, to presence.SecurityState) (Result, error) {
	if to == presence.Idle {
		return Result{}, nil
	}

	now := d.now()
	if rec, ok := d.records[to]; ok && now.Before(rec.CooldownUntil) {
		slog.Info("action suppressed by cooldown",
			"state", to.String(),
			"cooldown_until", rec.CooldownUntil,
		)
		return Result{Suppressed: true}, nil
	}

	if err := d.fire(ctx, from, to); err != nil {
		slog.Error("action failed", "state", to.String(), "error", err)
		return Result{Fired: true}, fmt.Errorf("%w: %v", ErrActionFailed, err)
	}

	d.records[to] = &Record{
		State:         to,
		FiredAt:       now,
		CooldownUntil: now.Add(d.cooldowns[to]),
	}
	slog.Info("action fired", "from", from.String(), "to", to.String())
	return Result{Fired: true}, nil
}

func (d *Dispatcher) fire(ctx context.Context, from, to presence.SecurityState) error {
	if err := d.locker.Lock(ctx); err != nil {
		return fmt.Errorf("locking session: %w", err)
	}

	if to == presence.Intruder && d.notifier != nil {
		msg := fmt.Sprintf("presence-guard: %s -> %s, session locked", from, to)
		if err := d.notifier.Alert(ctx, to, msg); err != nil {
			return fmt.Errorf("sending alert: %w", err)
		}
	}

	return nil
}
