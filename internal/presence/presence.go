// Package presence decides, once per polling cycle and per registered MAC,
// whether a device is present or absent. The decision order is fixed: manual
// overrides win outright, then an active freeze holds the previous status,
// then a TTL window and absence-hold hysteresis smooth over brief signal
// gaps, and only then does silence become an absence verdict.
package presence

import (
	"time"

	"github.com/nearbyhq/presenced/config"
	"github.com/nearbyhq/presenced/internal/adapter"
)

// Decision is the verdict for one MAC in one cycle.
type Decision struct {
	Present bool
	Reason  string
}

// deviceState is the engine's per-MAC memory across cycles.
type deviceState struct {
	previousStatus   bool
	statusKnown      bool
	lastSignal       time.Time
	consecutiveMiss  int
	freezeUntil      time.Time
	transitions      []time.Time
}

// Overrides resolves manual quarantine/force overrides for a MAC. Callers
// pass internal/overrides.Store (or any compatible type) in.
type Overrides interface {
	Quarantined(mac adapter.MAC) bool
	ForceStatus(mac adapter.MAC) (present bool, ok bool)
}

// Engine holds decision state across cycles for every tracked MAC.
type Engine struct {
	cfg    *config.PresenceConfig
	states map[adapter.MAC]*deviceState

	silentCycleStreak int
}

// New builds an Engine from cfg. cfg must not be nil.
func New(cfg *config.PresenceConfig) *Engine {
	return &Engine{
		cfg:    cfg,
		states: make(map[adapter.MAC]*deviceState),
	}
}

func (e *Engine) stateFor(mac adapter.MAC) *deviceState {
	st, ok := e.states[mac]
	if !ok {
		st = &deviceState{}
		e.states[mac] = st
	}
	return st
}

// Evaluate runs the decision order for mac given whether it signalled this
// cycle. now is passed in rather than read from time.Now so cycles are
// reproducible in tests. anySignalThisCycle covers every registered MAC, used
// for the silent-cycle grace rule.
func (e *Engine) Evaluate(mac adapter.MAC, signalDetected bool, now time.Time, overrides Overrides, anySignalThisCycle bool) Decision {
	st := e.stateFor(mac)
	if signalDetected {
		st.lastSignal = now
		st.consecutiveMiss = 0
	} else {
		st.consecutiveMiss++
	}

	decision := e.decide(st, now, overrides, mac)
	decision = e.applySilentGrace(st, decision, anySignalThisCycle)
	e.recordTransition(st, decision, now)
	return decision
}

// applySilentGrace overrides an absent verdict with the previous status when
// nothing signalled this cycle and the silent-cycle streak hasn't exceeded
// the configured grace window. Override and freeze verdicts pass through
// unchanged; only TTL-expiry and adaptive-absent verdicts are eligible.
func (e *Engine) applySilentGrace(st *deviceState, decision Decision, anySignalThisCycle bool) Decision {
	if decision.Present || anySignalThisCycle || !st.statusKnown {
		return decision
	}
	if decision.Reason != "ttl_expired" && decision.Reason != "adaptive_absent" {
		return decision
	}
	if e.silentCycleStreak > e.cfg.AllSilentAbsenceCycles {
		return decision
	}
	return Decision{Present: st.previousStatus, Reason: "silent_grace"}
}

func (e *Engine) decide(st *deviceState, now time.Time, overrides Overrides, mac adapter.MAC) Decision {
	if overrides != nil && overrides.Quarantined(mac) {
		return Decision{Present: false, Reason: "quarantine"}
	}
	if overrides != nil {
		if forced, ok := overrides.ForceStatus(mac); ok {
			reason := "force:absent"
			if forced {
				reason = "force:present"
			}
			return Decision{Present: forced, Reason: reason}
		}
	}
	if !st.freezeUntil.IsZero() && st.freezeUntil.After(now) && st.statusKnown {
		return Decision{Present: st.previousStatus, Reason: "frozen"}
	}

	ttl := time.Duration(e.cfg.PresentTTLSeconds) * time.Second
	if !st.lastSignal.IsZero() && now.Sub(st.lastSignal) <= ttl {
		return Decision{Present: true, Reason: "ttl"}
	}

	if !e.cfg.EnableAdaptiveHysteresis {
		return Decision{Present: false, Reason: "ttl_expired"}
	}

	if st.statusKnown && st.previousStatus {
		signalAge := time.Duration(0)
		if !st.lastSignal.IsZero() {
			signalAge = now.Sub(st.lastSignal)
		}
		holdExpired := signalAge >= time.Duration(e.cfg.AbsenceHoldSeconds)*time.Second &&
			st.consecutiveMiss >= e.cfg.AbsenceConsecutiveMissThreshold
		if !holdExpired {
			return Decision{Present: true, Reason: "absence_hold"}
		}
	}

	return Decision{Present: false, Reason: "adaptive_absent"}
}

func (e *Engine) recordTransition(st *deviceState, decision Decision, now time.Time) {
	transitioned := st.statusKnown && st.previousStatus != decision.Present
	st.statusKnown = true
	st.previousStatus = decision.Present

	if !transitioned {
		return
	}

	st.transitions = append(st.transitions, now)
	window := time.Duration(e.cfg.FlapMonitorWindowSeconds) * time.Second
	cutoff := now.Add(-window)
	kept := st.transitions[:0]
	for _, t := range st.transitions {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	st.transitions = kept

	if len(st.transitions) >= e.cfg.FlapAlertThreshold && e.cfg.EnableAutoFreezeOnFlap {
		st.freezeUntil = now.Add(time.Duration(e.cfg.AutoFreezeDurationSeconds) * time.Second)
	}
}

// NoteCycleSignals updates the silent-cycle streak: reset to zero on any
// positive signal this cycle, incremented otherwise. Call once per polling
// cycle before Evaluate for every MAC.
func (e *Engine) NoteCycleSignals(anySignalThisCycle bool) {
	if anySignalThisCycle {
		e.silentCycleStreak = 0
		return
	}
	e.silentCycleStreak++
}

// Forget drops all per-cycle memory for mac, used when a device is deleted
// from the registry.
func (e *Engine) Forget(mac adapter.MAC) {
	delete(e.states, mac)
}
