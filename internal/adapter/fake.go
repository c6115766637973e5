package adapter

import (
	"context"
	"sync"
)

// FakeDriver is a scripted Driver for tests: responses are pre-seeded and
// every call is recorded so assertions can inspect call order/count.
type FakeDriver struct {
	mu sync.Mutex

	Paired    []MAC
	Connected []MAC
	Names     map[MAC]string
	Info      map[MAC]string

	ConnectResult      map[MAC]bool
	RemoveResult       map[MAC]bool
	TrustResult        map[MAC]bool
	DisconnectResult   map[MAC]bool
	L2PingResult       map[MAC]bool
	ConnectProbeResult map[MAC]bool

	State   AdapterState
	StateOk bool

	ReconfigureResult    bool
	AdvertiseNudgeResult bool
	ScanPulseResult      bool

	Calls []string
}

// NewFakeDriver returns a FakeDriver with all maps initialized.
func NewFakeDriver() *FakeDriver {
	return &FakeDriver{
		Names:                map[MAC]string{},
		Info:                 map[MAC]string{},
		ConnectResult:        map[MAC]bool{},
		RemoveResult:         map[MAC]bool{},
		TrustResult:          map[MAC]bool{},
		DisconnectResult:     map[MAC]bool{},
		L2PingResult:         map[MAC]bool{},
		ConnectProbeResult:   map[MAC]bool{},
		StateOk:              true,
		ReconfigureResult:    true,
		AdvertiseNudgeResult: true,
		ScanPulseResult:      true,
	}
}

func (f *FakeDriver) record(call string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls = append(f.Calls, call)
}

func (f *FakeDriver) ListPaired(ctx context.Context) ([]MAC, error) {
	f.record("ListPaired")
	return f.Paired, nil
}

func (f *FakeDriver) ListConnected(ctx context.Context) ([]MAC, error) {
	f.record("ListConnected")
	return f.Connected, nil
}

func (f *FakeDriver) GetDeviceName(ctx context.Context, mac MAC) (string, bool) {
	f.record("GetDeviceName:" + string(mac))
	name, ok := f.Names[mac]
	return name, ok
}

func (f *FakeDriver) GetInfo(ctx context.Context, mac MAC) (string, bool) {
	f.record("GetInfo:" + string(mac))
	info, ok := f.Info[mac]
	return info, ok
}

func (f *FakeDriver) Connect(ctx context.Context, mac MAC) bool {
	f.record("Connect:" + string(mac))
	return f.ConnectResult[mac]
}

func (f *FakeDriver) Disconnect(ctx context.Context, mac MAC) bool {
	f.record("Disconnect:" + string(mac))
	if result, ok := f.DisconnectResult[mac]; ok {
		return result
	}
	return true
}

func (f *FakeDriver) Remove(ctx context.Context, mac MAC) bool {
	f.record("Remove:" + string(mac))
	return f.RemoveResult[mac]
}

func (f *FakeDriver) Trust(ctx context.Context, mac MAC) bool {
	f.record("Trust:" + string(mac))
	return f.TrustResult[mac]
}

func (f *FakeDriver) L2Ping(ctx context.Context, mac MAC, count, timeoutSeconds int) bool {
	f.record("L2Ping:" + string(mac))
	return f.L2PingResult[mac]
}

func (f *FakeDriver) ConnectProbe(ctx context.Context, mac MAC, timeoutSeconds int) bool {
	f.record("ConnectProbe:" + string(mac))
	return f.ConnectProbeResult[mac]
}

func (f *FakeDriver) AdapterState(ctx context.Context) (AdapterState, bool) {
	f.record("AdapterState")
	return f.State, f.StateOk
}

func (f *FakeDriver) Reconfigure(ctx context.Context) bool {
	f.record("Reconfigure")
	return f.ReconfigureResult
}

func (f *FakeDriver) AdvertiseNudge(ctx context.Context, command string) bool {
	f.record("AdvertiseNudge:" + command)
	return f.AdvertiseNudgeResult
}

func (f *FakeDriver) ScanPulse(ctx context.Context, durationSeconds int) bool {
	f.record("ScanPulse")
	return f.ScanPulseResult
}

var _ Driver = (*FakeDriver)(nil)
