package fastpath

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/nearbyhq/presenced/config"
	"github.com/nearbyhq/presenced/internal/adapter"
)

func testCfg() *config.FastPathConfig {
	return &config.FastPathConfig{
		Enabled:                 true,
		EventSuppressionSeconds: 0,
		QueueCapacity:           4,
	}
}

func TestQueue_PublishAndDrain(t *testing.T) {
	q := New(testCfg())
	mac := adapter.MAC("AA:BB:CC:DD:EE:01")

	if !q.Publish(mac, "phone", "pairing") {
		t.Fatal("Publish should succeed on an empty queue")
	}

	events := q.Drain()
	if len(events) != 1 || events[0].MAC != mac {
		t.Fatalf("Drain() = %v, want one event for %v", events, mac)
	}
}

func TestQueue_Disabled(t *testing.T) {
	cfg := testCfg()
	cfg.Enabled = false
	q := New(cfg)

	if q.Publish("AA:BB:CC:DD:EE:02", "", "pairing") {
		t.Error("Publish should always fail on a disabled queue")
	}
	if events := q.Drain(); events != nil {
		t.Errorf("Drain() on disabled queue = %v, want nil", events)
	}
}

func TestQueue_FullDropsEvent(t *testing.T) {
	cfg := testCfg()
	cfg.QueueCapacity = 1
	q := New(cfg)

	if !q.Publish("AA:BB:CC:DD:EE:03", "", "pairing") {
		t.Fatal("first publish should succeed")
	}
	if q.Publish("AA:BB:CC:DD:EE:04", "", "pairing") {
		t.Error("publish into a full queue should be dropped, not block")
	}
}

func TestQueue_SuppressesDuplicateWithinWindow(t *testing.T) {
	cfg := testCfg()
	cfg.EventSuppressionSeconds = 60
	q := New(cfg)
	mac := adapter.MAC("AA:BB:CC:DD:EE:05")

	if !q.Publish(mac, "", "pairing") {
		t.Fatal("first publish should succeed")
	}
	if q.Publish(mac, "", "pairing") {
		t.Error("second publish within the suppression window should be suppressed")
	}

	events := q.Drain()
	if len(events) != 1 {
		t.Errorf("Drain() = %d events, want 1", len(events))
	}
}

func TestQueue_PublishAssignsUniqueCorrelationID(t *testing.T) {
	q := New(testCfg())
	q.Publish("AA:BB:CC:DD:EE:07", "", "pairing")
	q.Publish("AA:BB:CC:DD:EE:08", "", "pairing")

	events := q.Drain()
	if len(events) != 2 {
		t.Fatalf("Drain() = %d events, want 2", len(events))
	}
	if events[0].CorrelationID == "" || events[1].CorrelationID == "" {
		t.Error("expected every event to carry a non-empty CorrelationID")
	}
	if events[0].CorrelationID == events[1].CorrelationID {
		t.Error("expected distinct events to carry distinct CorrelationIDs")
	}
}

func TestQueue_ConcurrentPublishesDontRace(t *testing.T) {
	cfg := testCfg()
	cfg.QueueCapacity = 64
	q := New(cfg)
	mac := adapter.MAC("AA:BB:CC:DD:EE:09")

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			q.Publish(mac, "phone", "interfaces_added")
		}()
		go func() {
			defer wg.Done()
			q.Publish(mac, "phone", "properties_changed")
		}()
	}
	wg.Wait()
}

func TestQueue_Wait_ReturnsOnPublish(t *testing.T) {
	q := New(testCfg())
	mac := adapter.MAC("AA:BB:CC:DD:EE:06")

	go func() {
		time.Sleep(10 * time.Millisecond)
		q.Publish(mac, "", "pairing")
	}()

	events := q.Wait(context.Background(), time.Second)
	if len(events) != 1 || events[0].MAC != mac {
		t.Fatalf("Wait() = %v, want one event for %v", events, mac)
	}
}

func TestQueue_Wait_TimesOut(t *testing.T) {
	q := New(testCfg())

	events := q.Wait(context.Background(), 10*time.Millisecond)
	if events != nil {
		t.Errorf("Wait() = %v, want nil on timeout", events)
	}
}

func TestQueue_Wait_CancelledContext(t *testing.T) {
	q := New(testCfg())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	events := q.Wait(ctx, time.Second)
	if events != nil {
		t.Errorf("Wait() = %v, want nil when context already cancelled", events)
	}
}
