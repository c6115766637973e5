package engine

import (
	"context"
	"testing"
	"time"

	"github.com/nearbyhq/presenced/config"
	"github.com/nearbyhq/presenced/internal/adapter"
	"github.com/nearbyhq/presenced/internal/fastpath"
	"github.com/nearbyhq/presenced/internal/presence"
	"github.com/nearbyhq/presenced/internal/probe"
	"github.com/nearbyhq/presenced/internal/registry"
	"github.com/nearbyhq/presenced/internal/scheduler"
)

func testEngine(t *testing.T, driver *adapter.FakeDriver, regClient *registry.FakeClient) *Engine {
	t.Helper()
	probeCfg := &config.ProbeConfig{L2pingTimeoutSeconds: 1, L2pingCount: 1, L2pingResistThreshold: 3, ConnectProbeTimeoutSeconds: 1}
	schedCfg := &config.SchedulerConfig{ActiveTierMax: 10, WarmTierBatch: 10, ColdTierBatch: 10, WarmTierThresholdSeconds: 60}
	presenceCfg := &config.PresenceConfig{
		PresentTTLSeconds:               30,
		AbsenceHoldSeconds:              60,
		AbsenceConsecutiveMissThreshold: 2,
		EnableAdaptiveHysteresis:        true,
		FlapMonitorWindowSeconds:        3600,
		FlapAlertThreshold:              4,
		AllSilentAbsenceCycles:          1,
	}
	engineCfg := &config.EngineConfig{
		PollingIntervalSeconds:      1,
		RegistrationRetrySeconds:    30,
		UnpublishedDeviceTTLSeconds: 300,
	}
	fpCfg := &config.FastPathConfig{Enabled: true, QueueCapacity: 16, EventSuppressionSeconds: 5}

	return New(Collaborators{
		Driver:    driver,
		Probe:     probe.New(driver, probeCfg),
		Pairing:   nil,
		FastPath:  fastpath.New(fpCfg),
		Registry:  regClient,
		Scheduler: scheduler.New(schedCfg),
		Presence:  presence.New(presenceCfg),
		Overrides: nil,
	}, engineCfg, presenceCfg)
}

func TestRunCycle_RegistersNewlyConnectedDevice(t *testing.T) {
	driver := adapter.NewFakeDriver()
	driver.Connected = []adapter.MAC{"AA:BB:CC:DD:EE:01"}
	driver.Names["AA:BB:CC:DD:EE:01"] = "Phone"
	reg := registry.NewFakeClient()

	e := testEngine(t, driver, reg)
	if err := e.RunCycle(context.Background()); err != nil {
		t.Fatalf("RunCycle() error = %v", err)
	}

	found := false
	for _, call := range reg.Calls {
		if call == "RegisterPendingDevice:AA:BB:CC:DD:EE:01" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected RegisterPendingDevice call for newly connected device, calls = %v", reg.Calls)
	}
}

func TestRunCycle_PublishesPresentForConnectedRegisteredDevice(t *testing.T) {
	driver := adapter.NewFakeDriver()
	driver.Connected = []adapter.MAC{"AA:BB:CC:DD:EE:02"}
	reg := registry.NewFakeClient()
	reg.Devices = []registry.DeviceRecord{{MAC: "AA:BB:CC:DD:EE:02", Status: registry.StatusAbsent}}

	e := testEngine(t, driver, reg)
	if err := e.RunCycle(context.Background()); err != nil {
		t.Fatalf("RunCycle() error = %v", err)
	}

	found := false
	for _, call := range reg.Calls {
		if call == "UpdateDeviceStatus:AA:BB:CC:DD:EE:02:present" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected UpdateDeviceStatus to present, calls = %v", reg.Calls)
	}
}

func TestRunCycle_FreesACLsAfterSnapshot(t *testing.T) {
	driver := adapter.NewFakeDriver()
	driver.Connected = []adapter.MAC{"AA:BB:CC:DD:EE:03"}
	reg := registry.NewFakeClient()

	e := testEngine(t, driver, reg)
	if err := e.RunCycle(context.Background()); err != nil {
		t.Fatalf("RunCycle() error = %v", err)
	}

	found := false
	for _, call := range driver.Calls {
		if call == "Disconnect:AA:BB:CC:DD:EE:03" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected Disconnect call to free the ACL, calls = %v", driver.Calls)
	}
}

func TestRunCycle_RegistryFailureFallsBackToCache(t *testing.T) {
	driver := adapter.NewFakeDriver()
	reg := registry.NewFakeClient()
	reg.Devices = []registry.DeviceRecord{{MAC: "AA:BB:CC:DD:EE:04", Status: registry.StatusAbsent}}

	e := testEngine(t, driver, reg)
	if err := e.RunCycle(context.Background()); err != nil {
		t.Fatalf("RunCycle() error = %v", err)
	}

	reg.GetDevicesErr = context.DeadlineExceeded
	if err := e.RunCycle(context.Background()); err != nil {
		t.Fatalf("RunCycle() error = %v", err)
	}
	if len(e.cachedDevices) != 1 {
		t.Errorf("expected cached devices to be retained across a failed fetch, got %v", e.cachedDevices)
	}
}

func TestRunCycle_PruneRemovesUnregisteredMACState(t *testing.T) {
	driver := adapter.NewFakeDriver()
	reg := registry.NewFakeClient()

	e := testEngine(t, driver, reg)
	e.lastSignal["AA:BB:CC:DD:EE:05"] = time.Now()

	if err := e.RunCycle(context.Background()); err != nil {
		t.Fatalf("RunCycle() error = %v", err)
	}

	if _, ok := e.lastSignal["AA:BB:CC:DD:EE:05"]; ok {
		t.Error("expected prune to drop state for a MAC no longer in the registry")
	}
}

func TestRunCycle_HousekeepingCallsCleanup(t *testing.T) {
	driver := adapter.NewFakeDriver()
	reg := registry.NewFakeClient()

	e := testEngine(t, driver, reg)
	if err := e.RunCycle(context.Background()); err != nil {
		t.Fatalf("RunCycle() error = %v", err)
	}

	found := false
	for _, call := range reg.Calls {
		if call == "CleanupExpiredGracePeriods" {
			found = true
		}
	}
	if !found {
		t.Error("expected CleanupExpiredGracePeriods to be called every cycle")
	}
}

func TestRunCycle_HousekeepingDisconnectsAndRemovesGracePeriodExpiredDevices(t *testing.T) {
	driver := adapter.NewFakeDriver()
	reg := registry.NewFakeClient()
	reg.CleanupResult = registry.CleanupResult{
		DeletedCount: 1,
		DeletedMacs:  []string{"AA:BB:CC:DD:EE:09"},
	}

	e := testEngine(t, driver, reg)
	if err := e.RunCycle(context.Background()); err != nil {
		t.Fatalf("RunCycle() error = %v", err)
	}

	var disconnected, removed bool
	for _, call := range driver.Calls {
		if call == "Disconnect:AA:BB:CC:DD:EE:09" {
			disconnected = true
		}
		if call == "Remove:AA:BB:CC:DD:EE:09" {
			removed = true
		}
	}
	if !disconnected {
		t.Error("expected housekeeping to disconnect a grace-period-expired device")
	}
	if !removed {
		t.Error("expected housekeeping to remove a grace-period-expired device's pairing")
	}
}
