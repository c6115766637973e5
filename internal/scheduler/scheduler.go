// Package scheduler classifies registered devices into active/warm/cold
// tiers by last-signal age and selects a per-cycle probe set: every active
// device plus a rotating batch each from warm and cold, so coverage
// advances across cycles instead of probing everything every time.
package scheduler

import (
	"sort"
	"time"

	"github.com/nearbyhq/presenced/config"
	"github.com/nearbyhq/presenced/internal/adapter"
)

// Tier is a device's presence-signal freshness band.
type Tier int

const (
	TierActive Tier = iota
	TierWarm
	TierCold
)

// Scheduler holds the rotation offsets that advance across cycles so every
// warm/cold device is eventually probed.
type Scheduler struct {
	cfg *config.SchedulerConfig

	warmOffset int
	coldOffset int
}

// New builds a Scheduler tuned by cfg.
func New(cfg *config.SchedulerConfig) *Scheduler {
	return &Scheduler{cfg: cfg}
}

// Selection is the probe set chosen for one cycle.
type Selection struct {
	Probe []adapter.MAC
}

// DeviceSignal is the scheduling input for one registered/pending MAC.
type DeviceSignal struct {
	MAC             adapter.MAC
	EverSeen        bool
	NewlyRegistered bool
	SignalAge       time.Duration
}

// Select classifies every device in signals and returns the probe set for
// this cycle: all active devices up to ActiveTierMax, plus a rotating
// WarmTierBatch from warm and ColdTierBatch from cold. Any MAC present in
// connectedSet is excluded — it's already known present this cycle.
func (s *Scheduler) Select(signals []DeviceSignal, connectedSet map[adapter.MAC]bool, presentTTL time.Duration) Selection {
	var active, warm, cold []adapter.MAC

	for _, sig := range signals {
		if connectedSet[sig.MAC] {
			continue
		}

		var tier Tier
		switch {
		case !sig.EverSeen && sig.NewlyRegistered:
			tier = TierActive
		case !sig.EverSeen:
			tier = TierCold
		case sig.SignalAge <= presentTTL:
			tier = TierActive
		case sig.SignalAge <= time.Duration(s.cfg.WarmTierThresholdSeconds)*time.Second:
			tier = TierWarm
		default:
			tier = TierCold
		}

		switch tier {
		case TierActive:
			active = append(active, sig.MAC)
		case TierWarm:
			warm = append(warm, sig.MAC)
		case TierCold:
			cold = append(cold, sig.MAC)
		}
	}

	sort.Slice(active, func(i, j int) bool { return active[i] < active[j] })
	sort.Slice(warm, func(i, j int) bool { return warm[i] < warm[j] })
	sort.Slice(cold, func(i, j int) bool { return cold[i] < cold[j] })

	if len(active) > s.cfg.ActiveTierMax {
		active = active[:s.cfg.ActiveTierMax]
	}

	warmBatch := s.rotate(warm, s.cfg.WarmTierBatch, &s.warmOffset)
	coldBatch := s.rotate(cold, s.cfg.ColdTierBatch, &s.coldOffset)

	probe := make([]adapter.MAC, 0, len(active)+len(warmBatch)+len(coldBatch))
	probe = append(probe, active...)
	probe = append(probe, warmBatch...)
	probe = append(probe, coldBatch...)

	return Selection{Probe: probe}
}

// rotate picks up to batchSize MACs starting at *offset (mod len(tier)),
// then advances *offset so the next call continues where this one left off.
func (s *Scheduler) rotate(tier []adapter.MAC, batchSize int, offset *int) []adapter.MAC {
	n := len(tier)
	if n == 0 || batchSize <= 0 {
		return nil
	}
	if batchSize > n {
		batchSize = n
	}

	start := *offset % n
	batch := make([]adapter.MAC, 0, batchSize)
	for i := 0; i < batchSize; i++ {
		batch = append(batch, tier[(start+i)%n])
	}
	*offset = (start + batchSize) % n
	return batch
}
