// Package fastpath is a bounded MPSC presence-event queue: the pairing
// agent's D-Bus callback goroutine is the producer and never blocks on a
// full queue, the polling loop goroutine is the sole consumer and drains
// it once per cycle.
package fastpath

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nearbyhq/presenced/config"
	"github.com/nearbyhq/presenced/internal/adapter"
	"github.com/nearbyhq/presenced/logger"
)

// Event is a presence signal raised outside the normal poll cycle.
// CorrelationID lets a single event be traced through logs from the
// pairing agent's D-Bus callback all the way to the cycle that consumes it.
type Event struct {
	MAC           adapter.MAC
	Name          string
	Source        string
	Timestamp     time.Time
	CorrelationID string
}

// Queue is a bounded channel of Events with event-suppression per MAC so a
// flapping connection can't flood the consumer with duplicate wakeups.
type Queue struct {
	ch                chan Event
	suppressionWindow time.Duration
	enabled           bool

	mu            sync.Mutex
	lastPublished map[adapter.MAC]time.Time
}

// New builds a Queue sized and tuned from cfg. A disabled queue's Publish
// always reports false and Drain never yields events.
func New(cfg *config.FastPathConfig) *Queue {
	capacity := cfg.QueueCapacity
	if capacity <= 0 {
		capacity = 1
	}
	return &Queue{
		ch:                make(chan Event, capacity),
		suppressionWindow: time.Duration(cfg.EventSuppressionSeconds) * time.Second,
		enabled:           cfg.Enabled,
		lastPublished:     map[adapter.MAC]time.Time{},
	}
}

// Publish enqueues an event for mac without blocking. Returns false if the
// queue is disabled, the event is suppressed (duplicate within the
// suppression window), or the queue is full.
func (q *Queue) Publish(mac adapter.MAC, name, source string) bool {
	if !q.enabled {
		return false
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	now := time.Now()
	if last, ok := q.lastPublished[mac]; ok && now.Sub(last) < q.suppressionWindow {
		return false
	}

	id := uuid.NewString()
	select {
	case q.ch <- Event{MAC: mac, Name: name, Source: source, Timestamp: now, CorrelationID: id}:
		q.lastPublished[mac] = now
		logger.Debug("[fastpath] enqueued event %s for %s (source=%s)", id, mac, source)
		return true
	default:
		logger.Warn("[fastpath] queue full, dropping event for %s", mac)
		return false
	}
}

// Drain returns every event currently queued without blocking.
func (q *Queue) Drain() []Event {
	var events []Event
	for {
		select {
		case evt := <-q.ch:
			events = append(events, evt)
		default:
			return events
		}
	}
}

// Wait blocks until at least one event is available, ctx is cancelled, or
// timeout elapses, then returns whatever Drain collects.
func (q *Queue) Wait(ctx context.Context, timeout time.Duration) []Event {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case evt := <-q.ch:
		events := []Event{evt}
		return append(events, q.Drain()...)
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return nil
	}
}
