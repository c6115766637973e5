package registry

import (
	"context"
	"sync"
)

// FakeClient is a scripted in-memory Client for tests: no network, calls
// recorded in order, responses/errors pre-seeded per method.
type FakeClient struct {
	mu sync.Mutex

	Devices []DeviceRecord

	RegisterResult   map[string]DeviceRecord
	RegisterErr      map[string]error
	UpdateErr        map[string]error
	LogAttendanceErr error
	CleanupResult    CleanupResult
	CleanupErr       error
	DeleteErr        map[string]error
	GetDevicesErr    error

	Calls []string
}

// NewFakeClient returns a FakeClient with all maps initialized.
func NewFakeClient() *FakeClient {
	return &FakeClient{
		RegisterResult: map[string]DeviceRecord{},
		RegisterErr:    map[string]error{},
		UpdateErr:      map[string]error{},
		DeleteErr:      map[string]error{},
	}
}

func (f *FakeClient) record(call string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls = append(f.Calls, call)
}

func (f *FakeClient) GetDevices(ctx context.Context) ([]DeviceRecord, error) {
	f.record("GetDevices")
	if f.GetDevicesErr != nil {
		return nil, f.GetDevicesErr
	}
	return f.Devices, nil
}

func (f *FakeClient) RegisterPendingDevice(ctx context.Context, mac, name string) (DeviceRecord, error) {
	f.record("RegisterPendingDevice:" + mac)
	if err, ok := f.RegisterErr[mac]; ok {
		return DeviceRecord{}, err
	}
	if rec, ok := f.RegisterResult[mac]; ok {
		return rec, nil
	}
	return DeviceRecord{MAC: mac, Name: &name, Status: StatusUnknown, PendingRegistration: true}, nil
}

func (f *FakeClient) UpdateDeviceStatus(ctx context.Context, mac string, status Status) error {
	f.record("UpdateDeviceStatus:" + mac + ":" + string(status))
	return f.UpdateErr[mac]
}

func (f *FakeClient) LogAttendance(ctx context.Context, userID, userName string, status Status, deviceID string) error {
	f.record("LogAttendance:" + deviceID + ":" + string(status))
	return f.LogAttendanceErr
}

func (f *FakeClient) CleanupExpiredGracePeriods(ctx context.Context) (CleanupResult, error) {
	f.record("CleanupExpiredGracePeriods")
	return f.CleanupResult, f.CleanupErr
}

func (f *FakeClient) DeleteDevice(ctx context.Context, mac string) error {
	f.record("DeleteDevice:" + mac)
	return f.DeleteErr[mac]
}

var _ Client = (*FakeClient)(nil)
