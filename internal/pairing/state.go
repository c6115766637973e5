package pairing

import (
	"sync"
	"time"

	"github.com/nearbyhq/presenced/internal/adapter"
)

// State is a pending device's position in the pairing state machine:
// pairing_request -> paired | failed | timeout.
type State string

const (
	StatePairingRequest State = "pairing_request"
	StatePairing        State = "pairing"
	StatePaired         State = "paired"
	StateFailed         State = "failed"
	StateTimeout        State = "timeout"
)

type pendingDevice struct {
	state     State
	updatedAt time.Time
}

// Tracker holds per-MAC pairing state across the lifetime of the agent,
// mirroring the original agent's pending_devices map.
type Tracker struct {
	timeout time.Duration

	mu      sync.Mutex
	pending map[adapter.MAC]*pendingDevice
}

// NewTracker builds a Tracker whose pairing_request/pairing entries expire
// to StateTimeout after timeout elapses without resolving.
func NewTracker(timeout time.Duration) *Tracker {
	return &Tracker{
		timeout: timeout,
		pending: map[adapter.MAC]*pendingDevice{},
	}
}

// MarkPairingRequest records mac as awaiting confirmation/authorization.
func (t *Tracker) MarkPairingRequest(mac adapter.MAC) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pending[mac] = &pendingDevice{state: StatePairingRequest, updatedAt: time.Now()}
}

// MarkPaired transitions mac to StatePaired if it was awaiting resolution.
func (t *Tracker) MarkPaired(mac adapter.MAC) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	dev, ok := t.pending[mac]
	if !ok || (dev.state != StatePairingRequest && dev.state != StatePairing) {
		return false
	}
	dev.state = StatePaired
	dev.updatedAt = time.Now()
	return true
}

// MarkFailed transitions mac to StateFailed if it is currently pending.
func (t *Tracker) MarkFailed(mac adapter.MAC) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	dev, ok := t.pending[mac]
	if !ok {
		return false
	}
	dev.state = StateFailed
	dev.updatedAt = time.Now()
	return true
}

// CancelAll marks every in-flight pairing_request/pairing device as failed,
// mirroring the agent's Cancel() callback. Returns the affected MACs.
func (t *Tracker) CancelAll() []adapter.MAC {
	t.mu.Lock()
	defer t.mu.Unlock()
	var failed []adapter.MAC
	for mac, dev := range t.pending {
		if dev.state == StatePairingRequest || dev.state == StatePairing {
			dev.state = StateFailed
			dev.updatedAt = time.Now()
			failed = append(failed, mac)
		}
	}
	return failed
}

// IsPaired reports whether mac is currently tracked as paired.
func (t *Tracker) IsPaired(mac adapter.MAC) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	dev, ok := t.pending[mac]
	return ok && dev.state == StatePaired
}

// State returns mac's current state and whether it is tracked at all.
func (t *Tracker) State(mac adapter.MAC) (State, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	dev, ok := t.pending[mac]
	if !ok {
		return "", false
	}
	return dev.state, true
}

// Reset clears mac from the pending table, returning whether it was present.
func (t *Tracker) Reset(mac adapter.MAC) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.pending[mac]; !ok {
		return false
	}
	delete(t.pending, mac)
	return true
}

// CleanupFailed ages out stale pairing_request/pairing entries to
// StateTimeout, then removes every failed/timeout entry, returning their
// MACs so the caller can also purge them from bluetoothctl.
func (t *Tracker) CleanupFailed() []adapter.MAC {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := time.Now()
	for _, dev := range t.pending {
		if (dev.state == StatePairingRequest || dev.state == StatePairing) &&
			now.Sub(dev.updatedAt) > t.timeout {
			dev.state = StateTimeout
		}
	}

	var removed []adapter.MAC
	for mac, dev := range t.pending {
		if dev.state == StateFailed || dev.state == StateTimeout {
			removed = append(removed, mac)
			delete(t.pending, mac)
		}
	}
	return removed
}
