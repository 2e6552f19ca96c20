package camera

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestDeviceAcquireSingleFlight(t *testing.T) {
	s := &DeviceSource{timeout: 500 * time.Millisecond}
	// a previous read is still stuck inside the driver
	s.inFlight.Store(true)

	start := time.Now()
	_, err := s.Acquire(context.Background())
	if !errors.Is(err, ErrDeviceUnavailable) {
		t.Fatalf("err = %v, want ErrDeviceUnavailable", err)
	}
	if elapsed := time.Since(start); elapsed >= s.timeout {
		t.Errorf("Acquire waited %v with a read in flight, want immediate failure", elapsed)
	}
}

func TestDeviceAcquireClearsInFlightAfterClose(t *testing.T) {
	s := &DeviceSource{timeout: 500 * time.Millisecond, closed: true}

	if _, err := s.Acquire(context.Background()); !errors.Is(err, ErrDeviceUnavailable) {
		t.Fatalf("err = %v, want ErrDeviceUnavailable", err)
	}

	// the failed read must release the single-flight slot
	deadline := time.Now().Add(time.Second)
	for s.inFlight.Load() {
		if time.Now().After(deadline) {
			t.Fatal("in-flight flag never cleared after a failed read")
		}
		time.Sleep(time.Millisecond)
	}
}
