package guard

import (
	"context"
	"os/exec"
	"strings"
	"time"
)

const bluetoothProbeTimeout = 2 * time.Second

// PresenceHint is an optional secondary signal consulted on each tick.
// When the hint reports absent, an authorized face alone is not enough
// to keep the session unlocked.
type PresenceHint interface {
	Present(ctx context.Context) bool
}

// BluetoothHint checks whether a paired phone is connected to the local
// bluetooth adapter. It shells out to bluetoothctl, so a missing binary
// or a powered-off adapter simply reads as absent.
type BluetoothHint struct {
	mac string
}

// NewBluetoothHint creates a hint for the given device MAC address.
func NewBluetoothHint(mac string) *BluetoothHint {
	return &BluetoothHint{mac: mac}
}

func (b *BluetoothHint) Present(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, bluetoothProbeTimeout)
	defer cancel()

	out, err := exec.CommandContext(ctx, "bluetoothctl", "info", b.mac).Output()
	if err != nil {
		return false
	}

	for _, line := range strings.Split(string(out), "\n") {
		if strings.TrimSpace(line) == "Connected: yes" {
			return true
		}
	}

	return false
}
