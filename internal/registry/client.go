// Package registry talks to the remote device-registry/attendance-log
// store behind a timeout, a single-writer execution lane, and a
// consecutive-failure circuit breaker — the store is treated as a
// best-effort sink, never a source the core logic blocks on.
package registry

import "context"

// Client is the opaque remote-store surface the engine depends on. A
// *HTTPClient satisfies it against a real Convex-shaped HTTP API; a
// *FakeClient satisfies it in tests.
type Client interface {
	GetDevices(ctx context.Context) ([]DeviceRecord, error)
	RegisterPendingDevice(ctx context.Context, mac, name string) (DeviceRecord, error)
	UpdateDeviceStatus(ctx context.Context, mac string, status Status) error
	LogAttendance(ctx context.Context, userID, userName string, status Status, deviceID string) error
	CleanupExpiredGracePeriods(ctx context.Context) (CleanupResult, error)
	DeleteDevice(ctx context.Context, mac string) error
}
