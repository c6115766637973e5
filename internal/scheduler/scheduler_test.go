package scheduler

import (
	"testing"
	"time"

	"github.com/nearbyhq/presenced/config"
	"github.com/nearbyhq/presenced/internal/adapter"
)

func testConfig() *config.SchedulerConfig {
	return &config.SchedulerConfig{
		ActiveTierMax:            2,
		WarmTierBatch:            2,
		ColdTierBatch:            2,
		WarmTierThresholdSeconds: 60,
	}
}

func TestSelect_ConnectedDevicesExcluded(t *testing.T) {
	s := New(testConfig())
	signals := []DeviceSignal{
		{MAC: "AA:00", EverSeen: true, SignalAge: 5 * time.Second},
		{MAC: "AA:01", EverSeen: true, SignalAge: 5 * time.Second},
	}
	connected := map[adapter.MAC]bool{"AA:00": true}

	sel := s.Select(signals, connected, 10*time.Second)

	for _, mac := range sel.Probe {
		if mac == "AA:00" {
			t.Errorf("connected device AA:00 should be excluded from probe set")
		}
	}
	if len(sel.Probe) != 1 || sel.Probe[0] != "AA:01" {
		t.Errorf("Select() probe = %v, want [AA:01]", sel.Probe)
	}
}

func TestSelect_NewlyRegisteredNeverSeenIsActive(t *testing.T) {
	s := New(testConfig())
	signals := []DeviceSignal{
		{MAC: "AA:00", EverSeen: false, NewlyRegistered: true},
	}

	sel := s.Select(signals, nil, 10*time.Second)

	if len(sel.Probe) != 1 || sel.Probe[0] != "AA:00" {
		t.Errorf("Select() probe = %v, want newly registered device treated as active", sel.Probe)
	}
}

func TestSelect_NeverSeenNotNewIsCold(t *testing.T) {
	s := New(testConfig())
	signals := []DeviceSignal{
		{MAC: "AA:00", EverSeen: false, NewlyRegistered: false},
	}

	sel := s.Select(signals, nil, 10*time.Second)

	if len(sel.Probe) != 1 || sel.Probe[0] != "AA:00" {
		t.Errorf("Select() probe = %v, want cold device in rotated batch", sel.Probe)
	}
}

func TestSelect_WithinPresentTTLIsActive(t *testing.T) {
	s := New(testConfig())
	signals := []DeviceSignal{
		{MAC: "AA:00", EverSeen: true, SignalAge: 2 * time.Second},
	}

	sel := s.Select(signals, nil, 10*time.Second)

	if len(sel.Probe) != 1 || sel.Probe[0] != "AA:00" {
		t.Errorf("Select() probe = %v, want device within present TTL treated as active", sel.Probe)
	}
}

func TestSelect_BetweenTTLAndWarmThresholdIsWarm(t *testing.T) {
	s := New(testConfig())
	signals := []DeviceSignal{
		{MAC: "AA:00", EverSeen: true, SignalAge: 30 * time.Second},
	}

	sel := s.Select(signals, nil, 10*time.Second)

	if len(sel.Probe) != 1 || sel.Probe[0] != "AA:00" {
		t.Errorf("Select() probe = %v, want warm device included in rotated batch", sel.Probe)
	}
}

func TestSelect_BeyondWarmThresholdIsCold(t *testing.T) {
	s := New(testConfig())
	signals := []DeviceSignal{
		{MAC: "AA:00", EverSeen: true, SignalAge: 120 * time.Second},
	}

	sel := s.Select(signals, nil, 10*time.Second)

	if len(sel.Probe) != 1 || sel.Probe[0] != "AA:00" {
		t.Errorf("Select() probe = %v, want cold device included in rotated batch", sel.Probe)
	}
}

func TestSelect_ActiveTierCappedAtMax(t *testing.T) {
	s := New(testConfig())
	signals := []DeviceSignal{
		{MAC: "AA:00", EverSeen: true, SignalAge: time.Second},
		{MAC: "AA:01", EverSeen: true, SignalAge: time.Second},
		{MAC: "AA:02", EverSeen: true, SignalAge: time.Second},
	}

	sel := s.Select(signals, nil, 10*time.Second)

	if len(sel.Probe) != 2 {
		t.Errorf("Select() probe len = %d, want capped at ActiveTierMax=2, got %v", len(sel.Probe), sel.Probe)
	}
	if sel.Probe[0] != "AA:00" || sel.Probe[1] != "AA:01" {
		t.Errorf("Select() probe = %v, want lexicographically sorted [AA:00 AA:01]", sel.Probe)
	}
}

func TestSelect_WarmRotationAdvancesAcrossCycles(t *testing.T) {
	s := New(&config.SchedulerConfig{
		ActiveTierMax:            0,
		WarmTierBatch:            1,
		ColdTierBatch:            0,
		WarmTierThresholdSeconds: 60,
	})
	signals := []DeviceSignal{
		{MAC: "AA:00", EverSeen: true, SignalAge: 30 * time.Second},
		{MAC: "AA:01", EverSeen: true, SignalAge: 30 * time.Second},
		{MAC: "AA:02", EverSeen: true, SignalAge: 30 * time.Second},
	}

	first := s.Select(signals, nil, 10*time.Second)
	second := s.Select(signals, nil, 10*time.Second)
	third := s.Select(signals, nil, 10*time.Second)
	fourth := s.Select(signals, nil, 10*time.Second)

	if first.Probe[0] != "AA:00" {
		t.Errorf("first cycle probe = %v, want [AA:00]", first.Probe)
	}
	if second.Probe[0] != "AA:01" {
		t.Errorf("second cycle probe = %v, want [AA:01]", second.Probe)
	}
	if third.Probe[0] != "AA:02" {
		t.Errorf("third cycle probe = %v, want [AA:02]", third.Probe)
	}
	if fourth.Probe[0] != "AA:00" {
		t.Errorf("fourth cycle probe = %v, want rotation to wrap back to [AA:00]", fourth.Probe)
	}
}

func TestSelect_ColdRotationIndependentOfWarm(t *testing.T) {
	s := New(&config.SchedulerConfig{
		ActiveTierMax:            0,
		WarmTierBatch:            1,
		ColdTierBatch:            1,
		WarmTierThresholdSeconds: 60,
	})
	signals := []DeviceSignal{
		{MAC: "WARM:00", EverSeen: true, SignalAge: 30 * time.Second},
		{MAC: "WARM:01", EverSeen: true, SignalAge: 30 * time.Second},
		{MAC: "COLD:00", EverSeen: true, SignalAge: 120 * time.Second},
		{MAC: "COLD:01", EverSeen: true, SignalAge: 120 * time.Second},
	}

	first := s.Select(signals, nil, 10*time.Second)
	second := s.Select(signals, nil, 10*time.Second)

	if len(first.Probe) != 2 || len(second.Probe) != 2 {
		t.Fatalf("expected one warm + one cold MAC per cycle, got %v then %v", first.Probe, second.Probe)
	}
	if first.Probe[0] != "WARM:00" || first.Probe[1] != "COLD:00" {
		t.Errorf("first cycle probe = %v, want [WARM:00 COLD:00]", first.Probe)
	}
	if second.Probe[0] != "WARM:01" || second.Probe[1] != "COLD:01" {
		t.Errorf("second cycle probe = %v, want [WARM:01 COLD:01]", second.Probe)
	}
}

func TestSelect_EmptySignalsReturnsEmptyProbe(t *testing.T) {
	s := New(testConfig())
	sel := s.Select(nil, nil, 10*time.Second)
	if len(sel.Probe) != 0 {
		t.Errorf("Select(nil) probe = %v, want empty", sel.Probe)
	}
}

func TestRotate_BatchLargerThanTierReturnsWholeTier(t *testing.T) {
	s := New(testConfig())
	offset := 0
	tier := []adapter.MAC{"AA:00", "AA:01"}

	batch := s.rotate(tier, 5, &offset)

	if len(batch) != 2 {
		t.Errorf("rotate() batch = %v, want both entries when batchSize exceeds tier length", batch)
	}
}

func TestRotate_ZeroBatchSizeReturnsNil(t *testing.T) {
	s := New(testConfig())
	offset := 0
	tier := []adapter.MAC{"AA:00"}

	batch := s.rotate(tier, 0, &offset)

	if batch != nil {
		t.Errorf("rotate() batch = %v, want nil for zero batch size", batch)
	}
}
