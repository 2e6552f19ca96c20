package camera

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	"io"
	"net/http"
	"sync/atomic"
	"time"
)

// SnapshotSource pulls JPEG snapshots from an HTTP camera endpoint
// (IP cameras, frame proxies). It holds no device handle, so Close is a
// no-op beyond marking the source unusable.
type SnapshotSource struct {
	url    string
	client *http.Client
	seq    atomic.Uint64
	closed atomic.Bool
}

// NewSnapshotSource creates a source for the given snapshot URL with a
// bounded per-request timeout.
func NewSnapshotSource(url string, timeout time.Duration) *SnapshotSource {
	return &SnapshotSource{
		url: url,
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

// Acquire fetches one snapshot. Network and HTTP-level failures map to
// ErrDeviceUnavailable so the monitor loop treats them as transient.
func (s *SnapshotSource) Acquire(ctx context.Context) (*Frame, error) {
	if s.closed.Load() {
		return nil, fmt.Errorf("%w: source closed", ErrDeviceUnavailable)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, fmt.Errorf("could not create snapshot request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: snapshot request failed: %v", ErrDeviceUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: snapshot endpoint returned status %d", ErrDeviceUnavailable, resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading snapshot body: %v", ErrDeviceUnavailable, err)
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: snapshot is not a decodable image: %v", ErrDeviceUnavailable, err)
	}

	return &Frame{
		Data:      data,
		Width:     cfg.Width,
		Height:    cfg.Height,
		Timestamp: time.Now(),
		Seq:       s.seq.Add(1),
	}, nil
}

// Close marks the source as unusable.
func (s *SnapshotSource) Close() error {
	s.closed.Store(true)
	return nil
}
