package pairing

import "github.com/nearbyhq/presenced/internal/adapter"

// EventSink receives fast-path presence signals the moment a paired device
// connects, bypassing the normal poll cycle. Implemented by
// internal/fastpath.Queue.
type EventSink interface {
	Publish(mac adapter.MAC, name, source string) bool
}
