// Package presence reduces per-frame face detections into coarse
// observations and debounces them into a stable security state.
package presence

import "github.com/kozaktomas/presence-guard/internal/recognizer"

// Observation is the coarse per-frame summary of what the camera saw.
type Observation int

const (
	NoFace Observation = iota
	SingleAuthorized
	SingleUnauthorized
	MultipleFaces
)

func (o Observation) String() string {
	switch o {
	case NoFace:
		return "no_face"
	case SingleAuthorized:
		return "single_authorized"
	case SingleUnauthorized:
		return "single_unauthorized"
	case MultipleFaces:
		return "multiple_faces"
	default:
		return "unknown"
	}
}

// SecurityState is the debounced, action-visible state of the session.
type SecurityState int

const (
	Idle SecurityState = iota // authorized user present or nothing alarming yet
	Away                      // nobody in frame for a sustained period
	Intruder                  // unauthorized or multiple faces sustained
)

func (s SecurityState) String() string {
	switch s {
	case Idle:
		return "idle"
	case Away:
		return "away"
	case Intruder:
		return "intruder"
	default:
		return "unknown"
	}
}

// Classify maps one frame's detections to an Observation.
//
// Any second face in frame is a security concern regardless of who it
// belongs to, so two or more detections always classify as MultipleFaces.
func Classify(detections []recognizer.Detection) Observation {
	switch len(detections) {
	case 0:
		return NoFace
	case 1:
		if detections[0].Authorized() {
			return SingleAuthorized
		}
		return SingleUnauthorized
	default:
		return MultipleFaces
	}
}

// CandidateState maps an Observation to the SecurityState it argues for.
func (o Observation) CandidateState() SecurityState {
	switch o {
	case NoFace:
		return Away
	case SingleAuthorized:
		return Idle
	default:
		return Intruder
	}
}
