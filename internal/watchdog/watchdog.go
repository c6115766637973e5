// Package watchdog periodically reasserts that the Bluetooth adapter is
// powered, discoverable, and pairable with both timeouts disabled, nudging
// LE advertising and pulsing a discovery scan when BlueZ has silently
// drifted out of that state.
package watchdog

import (
	"context"
	"time"

	"github.com/nearbyhq/presenced/config"
	"github.com/nearbyhq/presenced/internal/adapter"
	"github.com/nearbyhq/presenced/logger"
)

const scanPulseDurationSeconds = 3

// Watchdog runs the periodic adapter health check on a ticker, grounded on
// the teacher's heartbeat run-loop idiom.
type Watchdog struct {
	driver adapter.Driver
	cfg    *config.WatchdogConfig

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// New builds a Watchdog bound to driver and tuned by cfg.
func New(ctx context.Context, driver adapter.Driver, cfg *config.WatchdogConfig) *Watchdog {
	wctx, cancel := context.WithCancel(ctx)
	return &Watchdog{
		driver: driver,
		cfg:    cfg,
		ctx:    wctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
}

// Start launches the ticker loop in a goroutine. A non-positive
// IntervalSeconds disables the watchdog entirely.
func (w *Watchdog) Start() {
	if w.cfg.IntervalSeconds <= 0 {
		logger.Info("[watchdog] disabled (intervalSeconds=%d)", w.cfg.IntervalSeconds)
		close(w.done)
		return
	}
	go w.run()
}

// Stop cancels the ticker loop and waits for it to exit.
func (w *Watchdog) Stop() {
	w.cancel()
	<-w.done
}

func (w *Watchdog) run() {
	defer close(w.done)

	ticker := time.NewTicker(time.Duration(w.cfg.IntervalSeconds) * time.Second)
	defer ticker.Stop()

	logger.Info("[watchdog] armed (interval=%ds)", w.cfg.IntervalSeconds)

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-ticker.C:
			w.Check()
		}
	}
}

// Check runs a single health-check/recovery pass, mirroring
// _adapter_watchdog_callback: read state, and only if unhealthy, reconfigure
// then recheck, and if still unhealthy, nudge advertising and pulse a scan.
func (w *Watchdog) Check() {
	state, ok := w.driver.AdapterState(w.ctx)
	if !ok {
		logger.Error("[watchdog] failed to read adapter state")
		return
	}
	if state.Healthy() {
		logger.Debug("[watchdog] adapter healthy")
		return
	}

	logger.Warn("[watchdog] adapter drift detected: %+v", state)
	w.driver.Reconfigure(w.ctx)

	state, ok = w.driver.AdapterState(w.ctx)
	if ok && state.Healthy() {
		logger.Info("[watchdog] restored discoverable/pairable mode")
		return
	}

	logger.Warn("[watchdog] still degraded after reconfigure: %+v", state)
	w.driver.AdvertiseNudge(w.ctx, w.cfg.AdvertiseNudgeCommand)
	w.driver.ScanPulse(w.ctx, scanPulseDurationSeconds)
}
