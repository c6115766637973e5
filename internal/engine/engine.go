// Package engine runs the polling loop: one cycle snapshots the adapter,
// reconciles against the remote registry, probes the devices the scheduler
// selects, runs every registered MAC through the presence decision engine,
// and publishes whatever changed. Every external call in a cycle is
// best-effort — a failure logs and leaves state untouched so the next
// cycle retries.
package engine

import (
	"context"
	"time"

	"github.com/nearbyhq/presenced/config"
	"github.com/nearbyhq/presenced/internal/adapter"
	"github.com/nearbyhq/presenced/internal/fastpath"
	"github.com/nearbyhq/presenced/internal/pairing"
	"github.com/nearbyhq/presenced/internal/presence"
	"github.com/nearbyhq/presenced/internal/probe"
	"github.com/nearbyhq/presenced/internal/registry"
	"github.com/nearbyhq/presenced/internal/scheduler"
	"github.com/nearbyhq/presenced/logger"
)

// unpublishedEntry tracks a MAC whose registerPendingDevice call failed, so
// reconcileUnpublished can retry it until the registry knows the MAC or the
// entry outlives UnpublishedDeviceTTLSeconds.
type unpublishedEntry struct {
	firstSeen   time.Time
	lastAttempt time.Time
}

// Engine wires the adapter, probe, pairing, scheduler, presence, and
// registry collaborators into one polling cycle.
type Engine struct {
	driver    adapter.Driver
	probe     *probe.Engine
	pairing   *pairing.Manager
	fastpath  *fastpath.Queue
	registry  registry.Client
	scheduler *scheduler.Scheduler
	presence  *presence.Engine
	overrides presence.Overrides

	engineCfg   *config.EngineConfig
	presenceCfg *config.PresenceConfig

	lastSignal    map[adapter.MAC]time.Time
	signalStats   map[adapter.MAC]string
	unpublished   map[adapter.MAC]*unpublishedEntry
	cachedDevices []registry.DeviceRecord

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// Collaborators bundles every dependency RunCycle needs, so New stays a
// single call even as the wiring grows.
type Collaborators struct {
	Driver    adapter.Driver
	Probe     *probe.Engine
	Pairing   *pairing.Manager
	FastPath  *fastpath.Queue
	Registry  registry.Client
	Scheduler *scheduler.Scheduler
	Presence  *presence.Engine
	Overrides presence.Overrides
}

// New builds an Engine from its collaborators and the engine/presence tuning.
func New(c Collaborators, engineCfg *config.EngineConfig, presenceCfg *config.PresenceConfig) *Engine {
	return &Engine{
		driver:      c.Driver,
		probe:       c.Probe,
		pairing:     c.Pairing,
		fastpath:    c.FastPath,
		registry:    c.Registry,
		scheduler:   c.Scheduler,
		presence:    c.Presence,
		overrides:   c.Overrides,
		engineCfg:   engineCfg,
		presenceCfg: presenceCfg,
		lastSignal:  make(map[adapter.MAC]time.Time),
		signalStats: make(map[adapter.MAC]string),
		unpublished: make(map[adapter.MAC]*unpublishedEntry),
		done:        make(chan struct{}),
	}
}

// Run starts the ticker loop at engineCfg.PollingIntervalSeconds, running
// cycles until ctx is cancelled. A panic inside a cycle is recovered and
// logged so the loop survives to the next tick.
func (e *Engine) Run(ctx context.Context) {
	e.ctx, e.cancel = context.WithCancel(ctx)
	go e.run()
}

// Stop cancels the loop and waits for the in-flight cycle to finish.
func (e *Engine) Stop() {
	if e.cancel == nil {
		return
	}
	e.cancel()
	<-e.done
}

func (e *Engine) run() {
	defer close(e.done)

	interval := time.Duration(e.engineCfg.PollingIntervalSeconds) * time.Second
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-e.ctx.Done():
			return
		case <-ticker.C:
			e.runCycleRecovered()
		}
	}
}

func (e *Engine) runCycleRecovered() {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("[engine] cycle panicked, recovering: %v", r)
		}
	}()
	if err := e.RunCycle(e.ctx); err != nil {
		logger.Warn("[engine] cycle error: %v", err)
	}
}

// RunCycle executes one full polling cycle. It never returns an error for
// ordinary best-effort remote-call failures — those are logged inline —
// only for a context cancellation that should stop the cycle early.
func (e *Engine) RunCycle(ctx context.Context) error {
	now := time.Now()

	// 1. Drain fast-path events.
	e.drainFastPath(now)

	// 2. Snapshot adapter.
	connected, err := e.driver.ListConnected(ctx)
	if err != nil {
		logger.Warn("[engine] ListConnected failed: %v", err)
		connected = nil
	}
	connectedSet := make(map[adapter.MAC]bool, len(connected))
	for _, mac := range connected {
		connectedSet[mac] = true
		e.lastSignal[mac] = now
		e.signalStats[mac] = "connected"
	}

	// 3. Free ACLs.
	for _, mac := range connected {
		e.driver.Disconnect(ctx, mac)
	}

	// 4. Fetch registry, cached for the rest of the cycle.
	devices, err := e.registry.GetDevices(ctx)
	if err != nil {
		logger.Warn("[engine] GetDevices failed: %v", err)
		devices = e.cachedDevices
	}
	e.cachedDevices = devices
	byMAC := make(map[adapter.MAC]registry.DeviceRecord, len(devices))
	for _, d := range devices {
		byMAC[adapter.MAC(d.MAC)] = d
	}

	// 5. Reconcile unpublished.
	e.reconcileUnpublished(ctx, now, byMAC)

	// 6. Schedule.
	selection := e.buildSelection(now, connectedSet, byMAC)

	// 7. Probe, union with connected_set.
	verdicts := e.probe.ProbeBatch(ctx, selection, 0)
	detected := make(map[adapter.MAC]bool, len(verdicts)+len(connected))
	anySignal := len(connected) > 0
	for mac, ok := range verdicts {
		detected[mac] = ok
		if ok {
			e.lastSignal[mac] = now
			e.signalStats[mac] = "probe"
			anySignal = true
		}
	}
	for mac := range connectedSet {
		detected[mac] = true
	}
	e.presence.NoteCycleSignals(anySignal)

	// 8. Decide.
	decisions := make(map[adapter.MAC]presence.Decision, len(byMAC))
	for mac := range byMAC {
		signalDetected := detected[mac]
		decisions[mac] = e.presence.Evaluate(mac, signalDetected, now, e.overrides, anySignal)
	}

	// 9. Register newly seen.
	e.registerNewlySeen(ctx, now, connectedSet, byMAC)

	// 10. Publish updates.
	e.publishUpdates(ctx, decisions, byMAC)

	// 11. Housekeeping.
	e.housekeeping(ctx)

	// 12. Prune.
	e.prune(byMAC)

	return ctx.Err()
}

func (e *Engine) drainFastPath(now time.Time) {
	if e.fastpath == nil {
		return
	}
	for _, evt := range e.fastpath.Drain() {
		e.lastSignal[evt.MAC] = now
		e.signalStats[evt.MAC] = evt.Source
		logger.Debug("[engine] consumed fast-path event %s for %s", evt.CorrelationID, evt.MAC)
	}
}

func (e *Engine) buildSelection(now time.Time, connectedSet map[adapter.MAC]bool, byMAC map[adapter.MAC]registry.DeviceRecord) []adapter.MAC {
	signals := make([]scheduler.DeviceSignal, 0, len(byMAC))
	for mac, rec := range byMAC {
		last, everSeen := e.lastSignal[mac]
		age := time.Duration(0)
		if everSeen {
			age = now.Sub(last)
		}
		signals = append(signals, scheduler.DeviceSignal{
			MAC:             mac,
			EverSeen:        everSeen,
			NewlyRegistered: rec.PendingRegistration,
			SignalAge:       age,
		})
	}

	presentTTL := time.Duration(e.presenceCfg.PresentTTLSeconds) * time.Second
	return e.scheduler.Select(signals, connectedSet, presentTTL).Probe
}

func (e *Engine) reconcileUnpublished(ctx context.Context, now time.Time, byMAC map[adapter.MAC]registry.DeviceRecord) {
	retryAfter := time.Duration(e.engineCfg.RegistrationRetrySeconds) * time.Second
	ttl := time.Duration(e.engineCfg.UnpublishedDeviceTTLSeconds) * time.Second

	for mac, entry := range e.unpublished {
		if _, known := byMAC[mac]; known {
			delete(e.unpublished, mac)
			continue
		}
		if now.Sub(entry.firstSeen) >= ttl {
			logger.Warn("[engine] dropping unpublished device %s after exceeding TTL", mac)
			delete(e.unpublished, mac)
			continue
		}
		if now.Sub(entry.lastAttempt) < retryAfter {
			continue
		}

		name, _ := e.driver.GetDeviceName(ctx, mac)
		if _, err := e.registry.RegisterPendingDevice(ctx, string(mac), name); err != nil {
			logger.Warn("[engine] retry registerPendingDevice(%s) failed: %v", mac, err)
			entry.lastAttempt = now
			continue
		}
		delete(e.unpublished, mac)
	}
}

func (e *Engine) registerNewlySeen(ctx context.Context, now time.Time, connectedSet map[adapter.MAC]bool, byMAC map[adapter.MAC]registry.DeviceRecord) {
	for mac := range connectedSet {
		if _, known := byMAC[mac]; known {
			continue
		}
		if e.pairing != nil && !e.pairing.IsPaired(mac) {
			continue
		}

		name, _ := e.driver.GetDeviceName(ctx, mac)
		rec, err := e.registry.RegisterPendingDevice(ctx, string(mac), name)
		if err != nil {
			logger.Warn("[engine] registerPendingDevice(%s) failed: %v", mac, err)
			e.unpublished[mac] = &unpublishedEntry{firstSeen: now, lastAttempt: now}
			continue
		}
		byMAC[mac] = rec
	}
}

func (e *Engine) publishUpdates(ctx context.Context, decisions map[adapter.MAC]presence.Decision, byMAC map[adapter.MAC]registry.DeviceRecord) {
	for mac, decision := range decisions {
		rec, known := byMAC[mac]
		if !known {
			continue
		}

		desired := registry.StatusAbsent
		if decision.Present {
			desired = registry.StatusPresent
		}
		if rec.Status == desired {
			continue
		}

		if err := e.registry.UpdateDeviceStatus(ctx, string(mac), desired); err != nil {
			logger.Warn("[engine] updateDeviceStatus(%s, %s) failed: %v", mac, desired, err)
			continue
		}
		logger.Info("[engine] %s -> %s (%s, last signal via %s)", mac, desired, decision.Reason, e.signalStats[mac])

		if rec.PendingRegistration {
			continue
		}

		if err := e.registry.LogAttendance(ctx, string(mac), attendeeName(rec), desired, string(mac)); err != nil {
			logger.Warn("[engine] logAttendance(%s) failed: %v", mac, err)
		}
	}
}

// attendeeName prefers the registered owner's first/last name over the
// device's own name, since logAttendance records who was present, not what.
func attendeeName(rec registry.DeviceRecord) string {
	switch {
	case rec.FirstName != nil && rec.LastName != nil:
		return *rec.FirstName + " " + *rec.LastName
	case rec.FirstName != nil:
		return *rec.FirstName
	case rec.Name != nil:
		return *rec.Name
	default:
		return ""
	}
}

func (e *Engine) housekeeping(ctx context.Context) {
	result, err := e.registry.CleanupExpiredGracePeriods(ctx)
	if err != nil {
		logger.Warn("[engine] cleanupExpiredGracePeriods failed: %v", err)
	}
	for _, macStr := range result.DeletedMacs {
		mac := adapter.MAC(macStr)
		e.driver.Disconnect(ctx, mac)
		e.driver.Remove(ctx, mac)
	}

	if e.pairing == nil {
		return
	}
	for _, mac := range e.pairing.CleanupFailedPairings() {
		e.driver.Remove(ctx, mac)
	}
}

func (e *Engine) prune(byMAC map[adapter.MAC]registry.DeviceRecord) {
	for mac := range e.lastSignal {
		if _, known := byMAC[mac]; !known {
			delete(e.lastSignal, mac)
			delete(e.signalStats, mac)
			e.presence.Forget(mac)
		}
	}
}
