package camera

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"gocv.io/x/gocv"

	"github.com/kozaktomas/presence-guard/internal/config"
)

// autoDetectRange is the device index range probed when no device is
// configured (/dev/video0../dev/video3).
const autoDetectRange = 4

// DeviceSource captures frames from a local V4L2 device via OpenCV.
type DeviceSource struct {
	mu       sync.Mutex
	capture  *gocv.VideoCapture
	index    int
	width    int
	height   int
	timeout  time.Duration
	seq      atomic.Uint64
	inFlight atomic.Bool
	closed   bool
}

// OpenDevice opens the configured device, or probes indexes 0..3 when
// cfg.Device is negative. The device is warmed up by discarding the
// first cfg.WarmupFrames reads; early frames from a cold sensor tend to
// be dark or overexposed.
func OpenDevice(cfg config.CameraConfig) (*DeviceSource, error) {
	indexes := []int{cfg.Device}
	if cfg.Device < 0 {
		indexes = make([]int, autoDetectRange)
		for i := range indexes {
			indexes[i] = i
		}
	}

	for _, idx := range indexes {
		capture, err := gocv.OpenVideoCapture(idx)
		if err != nil || !capture.IsOpened() {
			if capture != nil {
				capture.Close()
			}
			continue
		}

		capture.Set(gocv.VideoCaptureFrameWidth, float64(cfg.Width))
		capture.Set(gocv.VideoCaptureFrameHeight, float64(cfg.Height))
		capture.Set(gocv.VideoCaptureBufferSize, 1)

		warmup := gocv.NewMat()
		for i := 0; i < cfg.WarmupFrames; i++ {
			capture.Read(&warmup)
		}
		warmup.Close()

		slog.Info("camera opened",
			"device", fmt.Sprintf("/dev/video%d", idx),
			"width", cfg.Width,
			"height", cfg.Height,
		)

		return &DeviceSource{
			capture: capture,
			index:   idx,
			width:   cfg.Width,
			height:  cfg.Height,
			timeout: cfg.AcquireTimeout,
		}, nil
	}

	return nil, fmt.Errorf("%w: no usable video device in /dev/video0..%d", ErrDeviceUnavailable, autoDetectRange-1)
}

// Index returns the device index this source holds.
func (s *DeviceSource) Index() int {
	return s.index
}

// Acquire flushes stale frames and returns the freshest one as JPEG.
// The read runs in a goroutine so a wedged driver cannot block the
// monitor loop past the acquisition timeout. At most one reader
// goroutine exists at a time: while a previous read is still stuck in
// the driver, Acquire fails fast instead of stacking another blocked
// goroutine per tick.
func (s *DeviceSource) Acquire(ctx context.Context) (*Frame, error) {
	if !s.inFlight.CompareAndSwap(false, true) {
		return nil, fmt.Errorf("%w: previous read on /dev/video%d still in flight", ErrDeviceUnavailable, s.index)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	type result struct {
		frame *Frame
		err   error
	}
	done := make(chan result, 1)

	go func() {
		defer s.inFlight.Store(false)
		frame, err := s.readFresh()
		done <- result{frame, err}
	}()

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: acquisition timed out: %v", ErrDeviceUnavailable, ctx.Err())
	case res := <-done:
		return res.frame, res.err
	}
}

// readFresh grabs a few frames without decoding to drain the driver
// buffer, then decodes and encodes the last one.
func (s *DeviceSource) readFresh() (*Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, fmt.Errorf("%w: source closed", ErrDeviceUnavailable)
	}

	s.capture.Grab(2)

	img := gocv.NewMat()
	defer img.Close()

	if ok := s.capture.Read(&img); !ok || img.Empty() {
		return nil, fmt.Errorf("%w: read from /dev/video%d failed", ErrDeviceUnavailable, s.index)
	}

	buf, err := gocv.IMEncode(gocv.JPEGFileExt, img)
	if err != nil {
		return nil, fmt.Errorf("%w: jpeg encode failed: %v", ErrDeviceUnavailable, err)
	}
	defer buf.Close()

	data := make([]byte, buf.Len())
	copy(data, buf.GetBytes())

	return &Frame{
		Data:      data,
		Width:     img.Cols(),
		Height:    img.Rows(),
		Timestamp: time.Now(),
		Seq:       s.seq.Add(1),
	}, nil
}

// Close releases the device handle. Idempotent.
func (s *DeviceSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	if err := s.capture.Close(); err != nil {
		return fmt.Errorf("closing /dev/video%d: %w", s.index, err)
	}
	slog.Info("camera released", "device", fmt.Sprintf("/dev/video%d", s.index))
	return nil
}
