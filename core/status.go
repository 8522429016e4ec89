// This file is part of meshbus, a peer-to-peer publish/subscribe broker.
//
// Adapted from gnunet-go's core/event.go (Listener/EventFilter/Event):
// same registered-listener-plus-filter shape, but the event alphabet is
// replaced with the peer lifecycle kinds the status/error bus (C6)
// specifies, and delivery is synchronous per listener (non-blocking,
// drop-on-full) instead of a fire-and-forget goroutine per send, so
// that the "added precedes lost/removed for the same peer" ordering
// guarantee holds for every individual observer.

package core

import (
	"meshbus/enums"
	"meshbus/util"
)

// StatusEvent is a typed peering lifecycle notification.
type StatusEvent struct {
	Kind     enums.EventKind
	RemoteID *util.OriginID
	Addr     *util.NetAddr
	Message  string
}

// StatusFilter restricts a listener to a subset of event kinds; an
// empty filter matches everything.
type StatusFilter struct {
	kinds map[enums.EventKind]bool
}

// NewStatusFilter creates a filter matching only the given kinds (or
// every kind, if none are given).
func NewStatusFilter(kinds ...enums.EventKind) *StatusFilter {
	f := &StatusFilter{kinds: make(map[enums.EventKind]bool)}
	for _, k := range kinds {
		f.kinds[k] = true
	}
	return f
}

func (f *StatusFilter) check(k enums.EventKind) bool {
	if len(f.kinds) == 0 {
		return true
	}
	return f.kinds[k]
}

// StatusListener receives status events matching its filter.
type StatusListener struct {
	ch     chan *StatusEvent
	filter *StatusFilter
}

// NewStatusListener creates a listener delivering to ch, restricted by
// filter (nil means "everything").
func NewStatusListener(ch chan *StatusEvent, filter *StatusFilter) *StatusListener {
	if filter == nil {
		filter = NewStatusFilter()
	}
	return &StatusListener{ch: ch, filter: filter}
}

// StatusBus is the broadcast point for peering lifecycle events: one
// emitter (the endpoint core), many observers.
type StatusBus struct {
	listeners map[string]*StatusListener
}

// NewStatusBus creates an empty status bus.
func NewStatusBus() *StatusBus {
	return &StatusBus{listeners: make(map[string]*StatusListener)}
}

// Register adds a named listener. Registering under an existing name
// replaces it.
func (b *StatusBus) Register(name string, l *StatusListener) {
	b.listeners[name] = l
}

// Unregister removes and returns the named listener, if present.
func (b *StatusBus) Unregister(name string) *StatusListener {
	l, ok := b.listeners[name]
	if !ok {
		return nil
	}
	delete(b.listeners, name)
	return l
}

// Emit delivers ev to every listener whose filter matches it. Delivery
// is non-blocking: a listener with a full channel misses the event
// rather than stalling the emitter.
func (b *StatusBus) Emit(ev *StatusEvent) {
	for _, l := range b.listeners {
		if !l.filter.check(ev.Kind) {
			continue
		}
		select {
		case l.ch <- ev:
		default:
		}
	}
}
