// Package camera abstracts frame acquisition from a local video device
// or a remote snapshot endpoint.
package camera

import (
	"context"
	"errors"
	"time"
)

// ErrDeviceUnavailable marks transient acquisition failures: device
// disconnected, busy, or a snapshot endpoint not responding. The monitor
// loop retries these with backoff instead of terminating.
var ErrDeviceUnavailable = errors.New("camera device unavailable")

// Frame is one captured image. Data is JPEG-encoded and must be treated
// as read-only by every pipeline stage. Frames are dropped after
// classification; nothing retains them.
type Frame struct {
	Data      []byte
	Width     int
	Height    int
	Timestamp time.Time
	Seq       uint64
}

// FrameSource produces timestamped frames on demand and owns the device
// lifecycle. Exactly one FrameSource holds a given device at a time.
type FrameSource interface {
	// Acquire captures the freshest available frame. It returns within
	// the source's acquisition timeout or when ctx is cancelled,
	// whichever comes first.
	Acquire(ctx context.Context) (*Frame, error)

	// Close releases the underlying device. Safe to call more than once.
	Close() error
}
