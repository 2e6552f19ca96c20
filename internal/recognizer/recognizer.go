package recognizer

import (
	"context"
	"fmt"

	"github.com/kozaktomas/presence-guard/internal/camera"
	"github.com/kozaktomas/presence-guard/internal/match"
)

// Detection is one face found in a frame, tagged with the matched
// identity or left unknown.
type Detection struct {
	Box      [4]float64 // [x1, y1, x2, y2] in pixels
	Score    float64    // detector confidence
	Identity string     // matched identity; empty means unknown
	Distance float64    // cosine distance to the nearest enrolled encoding
}

// Authorized reports whether the detection matched an enrolled identity.
func (d Detection) Authorized() bool {
	return d.Identity != ""
}

// Recognizer combines a detection provider with the enrolled-identity
// matcher. Read-only after construction; the monitor loop is the only
// caller of Analyze.
type Recognizer struct {
	provider Provider
	matcher  *match.Matcher
	enrolled int
}

// New builds a recognizer over the enrolled identities. An empty
// identity set is refused with ErrEnrollmentEmpty rather than silently
// running in a mode where every face is unauthorized.
func New(provider Provider, identities []EnrolledIdentity, threshold float64) (*Recognizer, error) {
	var entries []match.Entry
	for _, id := range identities {
		for _, enc := range id.Encodings {
			entries = append(entries, match.Entry{Identity: id.Name, Encoding: enc})
		}
	}
	if len(entries) == 0 {
		return nil, ErrEnrollmentEmpty
	}

	matcher, err := match.NewMatcher(entries, threshold)
	if err != nil {
		return nil, fmt.Errorf("building matcher: %w", err)
	}

	return &Recognizer{
		provider: provider,
		matcher:  matcher,
		enrolled: len(identities),
	}, nil
}

// EnrolledCount returns the number of distinct enrolled identities.
func (r *Recognizer) EnrolledCount() int {
	return r.enrolled
}

// Analyze detects faces in the frame and matches each against the
// enrolled encodings. A face whose encoding is missing or whose best
// distance is at or above the threshold stays unknown.
func (r *Recognizer) Analyze(ctx context.Context, frame *camera.Frame) ([]Detection, error) {
	faces, err := r.provider.Detect(ctx, frame.Data)
	if err != nil {
		return nil, err
	}

	detections := make([]Detection, 0, len(faces))
	for _, face := range faces {
		det := Detection{
			Box:      face.Box,
			Score:    face.Score,
			Distance: 2.0,
		}
		if len(face.Encoding) > 0 {
			best, ok := r.matcher.Match(face.Encoding)
			det.Distance = best.Distance
			if ok {
				det.Identity = best.Identity
			}
		}
		detections = append(detections, det)
	}

	return detections, nil
}
