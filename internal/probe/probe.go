// Package probe implements the tiered presence-detection primitive:
// sequential l2ping with a connect-probe fallback for l2ping-resistant
// devices. Concurrency here was the historical source of HCI contention
// bugs, so everything runs on one goroutine.
package probe

import (
	"context"
	"sync"

	"github.com/nearbyhq/presenced/config"
	"github.com/nearbyhq/presenced/internal/adapter"
	"github.com/nearbyhq/presenced/logger"
)

// Engine runs probe batches against an adapter.Driver, tracking per-MAC
// l2ping resistance across cycles.
type Engine struct {
	driver adapter.Driver
	cfg    *config.ProbeConfig

	mu         sync.Mutex
	resistance map[adapter.MAC]int
}

// New builds a probe Engine bound to driver and tuned by cfg.
func New(driver adapter.Driver, cfg *config.ProbeConfig) *Engine {
	return &Engine{
		driver:     driver,
		cfg:        cfg,
		resistance: map[adapter.MAC]int{},
	}
}

func (e *Engine) isResistant(mac adapter.MAC) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.resistance[mac] >= e.cfg.L2pingResistThreshold
}

func (e *Engine) recordL2pingSuccess(mac adapter.MAC) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.resistance[mac] = 0
}

func (e *Engine) recordL2pingFailure(mac adapter.MAC) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.resistance[mac]++
}

func (e *Engine) recordConnectProbeSuccess(mac adapter.MAC) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.resistance[mac] = 0
}

// ProbeBatch probes macs (capped at maxCount if positive) strictly
// sequentially: l2ping-resistant MACs and l2ping failures go straight to
// connect-probe; every successful l2ping and every connect-probe is followed
// by a disconnect before the next probe begins. Returns a verdict per probed
// MAC.
func (e *Engine) ProbeBatch(ctx context.Context, macs []adapter.MAC, maxCount int) map[adapter.MAC]bool {
	if maxCount > 0 && len(macs) > maxCount {
		macs = macs[:maxCount]
	}
	if len(macs) == 0 {
		return map[adapter.MAC]bool{}
	}

	logger.Info("[probe] probing %d device(s)", len(macs))

	results := make(map[adapter.MAC]bool, len(macs))
	var connectProbeQueue []adapter.MAC

	for _, mac := range macs {
		if e.isResistant(mac) {
			connectProbeQueue = append(connectProbeQueue, mac)
			continue
		}

		success := e.driver.L2Ping(ctx, mac, e.cfg.L2pingCount, e.cfg.L2pingTimeoutSeconds)
		results[mac] = success
		if success {
			e.recordL2pingSuccess(mac)
			e.driver.Disconnect(ctx, mac)
		} else {
			e.recordL2pingFailure(mac)
			connectProbeQueue = append(connectProbeQueue, mac)
		}
	}

	hits := 0
	for _, mac := range macs {
		if results[mac] {
			hits++
		}
	}

	probeHits := 0
	for _, mac := range connectProbeQueue {
		success := e.driver.ConnectProbe(ctx, mac, e.cfg.ConnectProbeTimeoutSeconds)
		if success {
			results[mac] = true
			e.recordConnectProbeSuccess(mac)
			probeHits++
			hits++
		} else if _, seen := results[mac]; !seen {
			results[mac] = false
		}
		e.driver.Disconnect(ctx, mac)
	}

	logger.Info("[probe] complete: %d/%d responded (connect-probe: %d/%d)",
		hits, len(macs), probeHits, len(connectProbeQueue))

	return results
}
