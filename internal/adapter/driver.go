// Package adapter is a thin, well-typed façade over the platform Bluetooth
// command surface (bluetoothctl, l2ping), the single scarce resource the
// rest of the daemon has to share carefully.
package adapter

import "context"

// AdapterState is the subset of org.bluez.Adapter1 properties the watchdog
// cares about.
type AdapterState struct {
	Powered             bool
	Discoverable        bool
	Pairable            bool
	DiscoverableTimeout int
	PairableTimeout     int
}

// Healthy reports whether the adapter is in the always-discoverable,
// always-pairable state the daemon requires.
func (s AdapterState) Healthy() bool {
	return s.Powered && s.Discoverable && s.Pairable &&
		s.DiscoverableTimeout == 0 && s.PairableTimeout == 0
}

// Driver is the capability the rest of the daemon depends on instead of
// talking to bluetoothctl/l2ping directly. A *CLIDriver satisfies it for
// real; a *FakeDriver satisfies it in tests.
type Driver interface {
	ListPaired(ctx context.Context) ([]MAC, error)
	ListConnected(ctx context.Context) ([]MAC, error)
	GetDeviceName(ctx context.Context, mac MAC) (string, bool)
	GetInfo(ctx context.Context, mac MAC) (string, bool)
	Connect(ctx context.Context, mac MAC) bool
	Disconnect(ctx context.Context, mac MAC) bool
	Remove(ctx context.Context, mac MAC) bool
	Trust(ctx context.Context, mac MAC) bool
	L2Ping(ctx context.Context, mac MAC, count, timeoutSeconds int) bool
	ConnectProbe(ctx context.Context, mac MAC, timeoutSeconds int) bool

	// AdapterState reads the adapter's current power/discoverable/pairable
	// properties via `bluetoothctl show`.
	AdapterState(ctx context.Context) (AdapterState, bool)
	// Reconfigure reasserts powered/discoverable/pairable=on and resets
	// both timeouts to zero (never expire).
	Reconfigure(ctx context.Context) bool
	// AdvertiseNudge runs the configured advertise-nudge command.
	AdvertiseNudge(ctx context.Context, command string) bool
	// ScanPulse triggers a bounded discovery scan to jog LE advertising.
	ScanPulse(ctx context.Context, durationSeconds int) bool
}
