package match

import (
	"errors"
)

// hnswCutover is the enrolled-encoding count above which the matcher
// builds an ANN index instead of brute-forcing every comparison.
const hnswCutover = 64

// Entry is one enrolled reference encoding with the identity it belongs to.
type Entry struct {
	Identity string
	Encoding []float32
}

// Result describes the nearest enrolled encoding for a query.
type Result struct {
	Identity string
	Distance float64
}

// Matcher finds the closest enrolled encoding for a query and applies the
// authorization threshold. Read-only after construction, safe to share.
type Matcher struct {
	threshold float64
	entries   []Entry
	index     *Index // nil for small enrollment sets
}

// NewMatcher builds a matcher over the enrolled entries. The threshold is
// the maximum cosine distance still considered an authorized match; a
// distance equal to the threshold is rejected.
func NewMatcher(entries []Entry, threshold float64) (*Matcher, error) {
	if len(entries) == 0 {
		return nil, errors.New("no enrolled encodings")
	}
	if threshold <= 0 {
		return nil, errors.New("threshold must be positive")
	}

	m := &Matcher{
		threshold: threshold,
		entries:   entries,
	}

	if len(entries) > hnswCutover {
		idx, err := BuildIndex(entries)
		if err != nil {
			return nil, err
		}
		m.index = idx
	}

	return m, nil
}

// Threshold returns the configured distance threshold.
func (m *Matcher) Threshold() float64 {
	return m.threshold
}

// Size returns the number of enrolled encodings.
func (m *Matcher) Size() int {
	return len(m.entries)
}

// Nearest returns the closest enrolled encoding regardless of threshold.
func (m *Matcher) Nearest(query []float32) Result {
	if m.index != nil {
		return m.index.Nearest(query)
	}

	best := Result{Distance: 2.0}
	for _, e := range m.entries {
		d := CosineDistance(query, e.Encoding)
		if d < best.Distance {
			best = Result{Identity: e.Identity, Distance: d}
		}
	}
	return best
}

// Match applies the threshold to the nearest enrolled encoding.
// Returns the identity and true only for a strict sub-threshold match;
// near-threshold and tie cases resolve to unauthorized.
func (m *Matcher) Match(query []float32) (Result, bool) {
	best := m.Nearest(query)
	if best.Distance < m.threshold {
		return best, true
	}
	return best, false
}
