// Package recognizer wraps the external face-analysis capability:
// detecting faces in a frame, encoding them, and matching the encodings
// against the enrolled identities loaded at startup.
package recognizer

import (
	"context"
	"errors"
)

// ErrRecognition marks transient recognition failures (service down,
// malformed response). Counted toward the monitor loop's failure
// threshold, never fatal on its own.
var ErrRecognition = errors.New("recognition failed")

// ErrEnrollmentEmpty is returned when the enrollment store yields zero
// usable encodings. Running without any authorized identity would make
// every frame unauthorized, so this is fatal at startup.
var ErrEnrollmentEmpty = errors.New("no enrolled face encodings")

// Face is one detected face as reported by the analysis backend.
type Face struct {
	// Box holds the bounding region as [x1, y1, x2, y2] in pixels.
	Box [4]float64 `json:"bbox"`
	// Score is the detector's confidence for this face (0-1).
	Score float64 `json:"det_score"`
	// Encoding is the face embedding used for identity matching.
	Encoding []float32 `json:"encoding"`
}

// Provider is the face-analysis backend. Implementations must be safe
// for sequential use from the monitor loop; no internal state is assumed.
type Provider interface {
	Name() string
	// Detect finds faces in a JPEG image and returns their encodings.
	Detect(ctx context.Context, imageData []byte) ([]Face, error)
}
