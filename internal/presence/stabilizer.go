package presence

// Stabilizer debounces a stream of observations into a SecurityState.
//
// A state change requires debounceTicks consecutive observations that all
// argue for the same target state. A single inconsistent observation
// restarts the count for the new candidate but never forces a transition
// by itself, so one motion-blurred or badly lit frame cannot flip the
// state.
//
// Not safe for concurrent use; the monitor loop is the only caller.
type Stabilizer struct {
	current   SecurityState
	candidate SecurityState
	run       int
	threshold int
}

// NewStabilizer creates a stabilizer starting in the given state.
// debounceTicks values below 1 are clamped to 1.
func NewStabilizer(initial SecurityState, debounceTicks int) *Stabilizer {
	if debounceTicks < 1 {
		debounceTicks = 1
	}
	return &Stabilizer{
		current:   initial,
		candidate: initial,
		threshold: debounceTicks,
	}
}

// State returns the current stable state.
func (s *Stabilizer) State() SecurityState {
	return s.current
}

// Observe feeds one observation and reports the resulting stable state
// plus whether this observation committed a transition.
func (s *Stabilizer) Observe(obs Observation) (SecurityState, bool) {
	target := obs.CandidateState()

	if target == s.current {
		// Consistent with where we already are; drop any pending candidate.
		s.candidate = s.current
		s.run = 0
		return s.current, false
	}

	if target == s.candidate {
		s.run++
	} else {
		s.candidate = target
		s.run = 1
	}

	if s.run >= s.threshold {
		s.current = target
		s.candidate = target
		s.run = 0
		return s.current, true
	}

	return s.current, false
}
