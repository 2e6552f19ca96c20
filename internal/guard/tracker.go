package guard

import (
	"sync"
	"time"

	"github.com/kozaktomas/presence-guard/internal/database"
	"github.com/kozaktomas/presence-guard/internal/presence"
)

// Status is a point-in-time snapshot of the monitor for the status API.
type Status struct {
	State           string                    `json:"state"`
	LastObservation string                    `json:"last_observation"`
	StartedAt       time.Time                 `json:"started_at"`
	Ticks           uint64                    `json:"ticks"`
	TickFailures    uint64                    `json:"tick_failures"`
	Transitions     uint64                    `json:"transitions"`
	Degraded        bool                      `json:"degraded"`
	TickInterval    string                    `json:"tick_interval"`
	LastTransition  *database.TransitionEvent `json:"last_transition,omitempty"`
}

// Tracker exposes the loop's state to the status API and SSE stream.
// The loop is the only writer; readers take the lock for a consistent
// snapshot.
type Tracker struct {
	mu              sync.RWMutex
	startedAt       time.Time
	state           presence.SecurityState
	lastObservation presence.Observation
	ticks           uint64
	tickFailures    uint64
	transitions     uint64
	degraded        bool
	tickInterval    time.Duration
	lastTransition  *database.TransitionEvent

	listenerMu sync.Mutex
	listeners  map[chan database.TransitionEvent]struct{}
}

// NewTracker creates a tracker starting in the given state.
func NewTracker(initial presence.SecurityState, tickInterval time.Duration) *Tracker {
	return &Tracker{
		startedAt:    time.Now(),
		state:        initial,
		tickInterval: tickInterval,
		listeners:    make(map[chan database.TransitionEvent]struct{}),
	}
}

// Snapshot returns the current status.
func (t *Tracker) Snapshot() Status {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return Status{
		State:           t.state.String(),
		LastObservation: t.lastObservation.String(),
		StartedAt:       t.startedAt,
		Ticks:           t.ticks,
		TickFailures:    t.tickFailures,
		Transitions:     t.transitions,
		Degraded:        t.degraded,
		TickInterval:    t.tickInterval.String(),
		LastTransition:  t.lastTransition,
	}
}

func (t *Tracker) recordTick(obs presence.Observation, state presence.SecurityState) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.ticks++
	t.lastObservation = obs
	t.state = state
}

func (t *Tracker) recordFailure() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.ticks++
	t.tickFailures++
}

func (t *Tracker) recordInterval(interval time.Duration, degraded bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.tickInterval = interval
	t.degraded = degraded
}

func (t *Tracker) recordTransition(ev database.TransitionEvent) {
	t.mu.Lock()
	t.transitions++
	t.lastTransition = &ev
	t.mu.Unlock()

	t.listenerMu.Lock()
	defer t.listenerMu.Unlock()
	for ch := range t.listeners {
		select {
		case ch <- ev:
		default: // a stalled SSE client must not block the loop
		}
	}
}

// Subscribe registers a listener for transition events. The returned
// channel is buffered; slow consumers miss events instead of blocking
// the monitor.
func (t *Tracker) Subscribe() chan database.TransitionEvent {
	ch := make(chan database.TransitionEvent, 16)
	t.listenerMu.Lock()
	defer t.listenerMu.Unlock()
	t.listeners[ch] = struct{}{}
	return ch
}

// Unsubscribe removes a listener and closes its channel.
func (t *Tracker) Unsubscribe(ch chan database.TransitionEvent) {
	t.listenerMu.Lock()
	defer t.listenerMu.Unlock()
	if _, ok := t.listeners[ch]; ok {
		delete(t.listeners, ch)
		close(ch)
	}
}
