// This file is part of meshbus, a peer-to-peer publish/subscribe broker.
//
// Core is C4, the endpoint's single-threaded cooperative event loop.
// Grounded on gnunet-go's core/core.go (Core.pump: one goroutine
// draining a channel of transport messages, dispatching events to
// registered listeners) generalized from "relay raw messages to
// listeners" to "own and mutate the subscription index (C1), peer table
// (C2) and routing table (C3) directly", since this spec's core is the
// sole mutator of that state rather than a thin transport multiplexer.
//
// All local API calls and all incoming peer messages are funneled
// through a single job queue so that every mutation of C1/C2/C3 happens
// on the loop goroutine, one to completion before the next — the
// command-channel idiom gnunet-go's DHT routing table uses
// (RTCommand/Run), generalized here from a two-case command enum to an
// arbitrary closure since the core exposes far more than two operations.

package core

import (
	"context"

	"meshbus/enums"
	"meshbus/message"
	"meshbus/routing"
	"meshbus/util"

	"github.com/bfix/gospel/logger"
)

// localPeerHandle is the sentinel "peer" used for the endpoint's own
// entries in the routing table (ttl 0, never a real forwarder target).
const localPeerHandle routing.PeerHandle = 0

// Delivery is one message handed to a local subscriber.
type Delivery struct {
	Topic   string
	Payload []byte
}

// Subscriber is a local consumer of one or more topics.
type Subscriber struct {
	handle uint64
	ch     chan Delivery
}

// Ch returns the channel the subscriber receives deliveries on.
func (s *Subscriber) Ch() <-chan Delivery {
	return s.ch
}

// PeerSender is implemented by the transport layer (C5) to hand a
// wire message to an established peer.
type PeerSender interface {
	SendTo(peer routing.PeerHandle, msg message.Message) error
}

// job is a closure dispatched onto the core's loop goroutine and run to
// completion before the next job or incoming message is processed.
type job struct {
	fn   func()
	done chan struct{}
}

// incoming is a decoded message arriving from an established peer.
type incoming struct {
	peer routing.PeerHandle
	msg  message.Message
}

// Core owns the subscription index, peer table and routing table and
// is the sole mutator of all three.
type Core struct {
	identity *Identity
	index    *routing.Index[uint64]
	table    *routing.Table
	peers    *PeerTable
	bus      *StatusBus
	sender   PeerSender

	autoPublish   bool
	autoAdvertise bool
	pubACL        map[string]bool
	advertACL     map[string]bool

	subs      map[uint64]*Subscriber
	nextSubID uint64

	jobs chan *job
	in   chan *incoming
}

// NewCore creates a core for the given identity. autoPublish and
// autoAdvertise set the initial ACL policy switches (§4.4.4); pubACL
// and advertACL are the topic allow-lists consulted when the
// corresponding auto-mode is off.
func NewCore(identity *Identity, autoPublish, autoAdvertise bool, pubACL, advertACL []string) *Core {
	c := &Core{
		identity:      identity,
		index:         routing.NewIndex[uint64](),
		table:         routing.NewTable(),
		peers:         NewPeerTable(),
		bus:           NewStatusBus(),
		autoPublish:   autoPublish,
		autoAdvertise: autoAdvertise,
		pubACL:        toSet(pubACL),
		advertACL:     toSet(advertACL),
		subs:          make(map[uint64]*Subscriber),
		jobs:          make(chan *job),
		in:            make(chan *incoming, 256),
	}
	return c
}

func toSet(list []string) map[string]bool {
	s := make(map[string]bool, len(list))
	for _, v := range list {
		s[v] = true
	}
	return s
}

// SetSender attaches the transport layer's send function. Must be
// called before Run.
func (c *Core) SetSender(s PeerSender) {
	c.sender = s
}

// StatusBus returns the status/error bus (C6).
func (c *Core) StatusBus() *StatusBus {
	return c.bus
}

// Peers returns the peer table (C2), read-only access for admin/introspection.
func (c *Core) Peers() *PeerTable {
	return c.peers
}

// Table returns the routing table (C3), read-only access for admin/introspection.
func (c *Core) Table() *routing.Table {
	return c.table
}

// Identity returns the endpoint's own identity.
func (c *Core) Identity() *Identity {
	return c.identity
}

// Run drives the event loop until ctx is done.
func (c *Core) Run(ctx context.Context) {
	for {
		select {
		case j := <-c.jobs:
			j.fn()
			close(j.done)
		case m := <-c.in:
			c.handleIncoming(m.peer, m.msg)
		case <-ctx.Done():
			return
		}
	}
}

// do runs fn on the loop goroutine and blocks until it completes.
func (c *Core) do(fn func()) {
	done := make(chan struct{})
	c.jobs <- &job{fn: fn, done: done}
	<-done
}

// Deliver hands a decoded message from peer to the core loop. Called by
// the transport layer; never blocks the caller beyond the inbox buffer.
func (c *Core) Deliver(peer routing.PeerHandle, msg message.Message) {
	c.in <- &incoming{peer: peer, msg: msg}
}

//----------------------------------------------------------------------
// Public API (C8 calls through these; each is synchronous for the caller
// and serialized through the loop).
//----------------------------------------------------------------------

// Subscribe registers a local subscriber for the given topics (§4.4.3).
func (c *Core) Subscribe(topics []string) *Subscriber {
	var sub *Subscriber
	c.do(func() {
		c.nextSubID++
		sub = &Subscriber{handle: c.nextSubID, ch: make(chan Delivery, 256)}
		c.subs[sub.handle] = sub
		for _, t := range topics {
			c.index.Register(t, sub.handle)
			_, isNew, _ := c.table.Register(t, c.identity.Origin(), localPeerHandle, 0)
			if isNew && (c.autoAdvertise || c.advertACL[t]) {
				c.broadcastSubscribe(t, c.identity.Origin(), 0, localPeerHandle)
			}
		}
	})
	return sub
}

// Unsubscribe withdraws sub from every topic it holds.
func (c *Core) Unsubscribe(sub *Subscriber) {
	c.do(func() {
		for _, t := range c.index.TopicsOf(sub.handle) {
			c.index.Unregister(t, sub.handle)
		}
		delete(c.subs, sub.handle)
		close(sub.ch)
	})
}

// Publish delivers a local publish per §4.4.2, with flags
// FlagSelf|FlagPeers (and optionally FlagUnsolicited).
func (c *Core) Publish(topic string, payload []byte, flags uint8) {
	c.do(func() {
		c.dispatchPublish(topic, payload, flags, localPeerHandle, flags&message.FlagUnsolicited != 0)
	})
}

// SetAutoAdvertise toggles the auto-advertise policy switch (§4.4.4).
func (c *Core) SetAutoAdvertise(on bool) {
	c.do(func() {
		if on == c.autoAdvertise {
			return
		}
		c.autoAdvertise = on
		if on {
			for _, t := range c.localTopics() {
				c.broadcastSubscribe(t, c.identity.Origin(), 0, localPeerHandle)
			}
		} else {
			for _, t := range c.localTopics() {
				if !c.advertACL[t] {
					c.broadcastUnsubscribe(t, c.identity.Origin(), localPeerHandle)
				}
			}
		}
	})
}

// SetAutoPublish toggles the auto-publish policy switch (§4.4.4).
func (c *Core) SetAutoPublish(on bool) {
	c.do(func() { c.autoPublish = on })
}

func (c *Core) localTopics() []string {
	seen := make(map[string]bool)
	var out []string
	for _, sub := range c.subs {
		for _, t := range c.index.TopicsOf(sub.handle) {
			if !seen[t] {
				seen[t] = true
				out = append(out, t)
			}
		}
	}
	return out
}

//----------------------------------------------------------------------
// Peering (C5 calls into these on connect/disconnect).
//----------------------------------------------------------------------

// AllocatePeerHandle hands the transport layer a fresh peer handle to
// use for a connection it is about to bring up.
func (c *Core) AllocatePeerHandle() routing.PeerHandle {
	var h routing.PeerHandle
	c.do(func() { h = c.peers.NextHandle() })
	return h
}

// BuildHello assembles this endpoint's PEER_HELLO payload: its own
// advertised topics and a snapshot of its routing table.
func (c *Core) BuildHello(name string) *message.PeerHelloMsg {
	var hello *message.PeerHelloMsg
	c.do(func() {
		var routes []*message.RouteEntry
		for _, sub := range c.table.Known() {
			ttl, _ := c.table.TTL(sub)
			origin := c.table.Origin(sub)
			routes = append(routes, message.NewRouteEntry(sub.Topic, origin, ttl))
		}
		hello = message.NewPeerHelloMsg(name, c.localTopics(), routes)
	})
	return hello
}

// HandshakeAccepted completes a handshake with a newly connected peer:
// records the peer, registers its advertised topics and routing
// snapshot, and emits peer_added.
func (c *Core) HandshakeAccepted(handle routing.PeerHandle, name string, incoming bool, addr *util.NetAddr, hello *message.PeerHelloMsg) {
	c.do(func() {
		rec := NewPeerRecord(handle, name, incoming, nil, addr)
		c.peers.Add(rec)

		for _, t := range hello.Topics() {
			rec.Advertised[t] = true
		}
		for _, r := range hello.Routes {
			org := util.NewOriginID(r.Origin.Bits)
			if org.Equals(c.identity.Origin()) {
				continue // invariant 5: never route back to origin
			}
			topic := string(r.Topic)
			_, isNew, _ := c.table.Register(topic, org, handle, r.TTL+1)
			if isNew {
				c.broadcastSubscribe(topic, org, r.TTL+1, handle)
			}
		}
		c.bus.Emit(&StatusEvent{Kind: enums.EV_PEER_ADDED, Addr: addr, Message: name})
	})
}

// PeerDisconnected removes a peer from the table after its transport
// session ends. explicit distinguishes a local unpeer (peer_removed)
// from an observed drop (peer_lost).
func (c *Core) PeerDisconnected(handle routing.PeerHandle, explicit bool) {
	c.do(func() {
		rec, ok := c.peers.Find(handle)
		if !ok {
			return
		}
		drained := c.table.PeerDrop(handle)
		for _, sub := range drained {
			c.broadcastUnsubscribeSub(sub, handle)
		}
		_ = c.peers.Remove(handle)
		kind := enums.EV_PEER_LOST
		if explicit {
			kind = enums.EV_PEER_REMOVED
		}
		c.bus.Emit(&StatusEvent{Kind: kind, Addr: rec.Addr, Message: rec.DisplayName})
	})
}

// UnpeerUnknown emits peer_invalid for an unpeer request naming an
// address the peer table has no record of.
func (c *Core) UnpeerUnknown(addr *util.NetAddr) {
	c.do(func() {
		c.bus.Emit(&StatusEvent{Kind: enums.EV_PEER_INVALID, Addr: addr})
	})
}

//----------------------------------------------------------------------
// Incoming wire message dispatch.
//----------------------------------------------------------------------

func (c *Core) handleIncoming(peer routing.PeerHandle, msg message.Message) {
	switch m := msg.(type) {
	case *message.PublishMsg:
		unsolicited := m.Flags&message.FlagUnsolicited != 0
		c.dispatchPublish(string(m.Topic), m.Payload, m.Flags, peer, unsolicited)

	case *message.SubscribeMsg:
		origin := util.NewOriginID(m.Origin.Bits)
		if origin.Equals(c.identity.Origin()) {
			c.dropPeer(peer, "subscribe echoed own origin")
			return
		}
		topic := string(m.Topic)
		_, isNew, _ := c.table.Register(topic, origin, peer, m.TTL+1)
		if isNew {
			c.broadcastSubscribe(topic, origin, m.TTL+1, peer)
		}

	case *message.UnsubscribeMsg:
		origin := util.NewOriginID(m.Origin.Bits)
		topic := string(m.Topic)
		sub := routing.SubID{Topic: topic, Origin: origin.Key()}
		if drained, _ := c.table.Unregister(sub, peer, true); drained {
			c.broadcastUnsubscribeSub(sub, peer)
		}

	default:
		logger.Printf(logger.WARN, "[core] unhandled message type %T from peer %d", msg, peer)
	}
}

// dispatchPublish implements §4.4.2 local and peer fan-out.
func (c *Core) dispatchPublish(topic string, payload []byte, flags uint8, from routing.PeerHandle, unsolicited bool) {
	remote := from != localPeerHandle
	if remote || flags&message.FlagSelf != 0 {
		for _, h := range c.index.PrefixMatches(topic) {
			sub, ok := c.subs[h]
			if !ok {
				continue
			}
			select {
			case sub.ch <- Delivery{Topic: topic, Payload: payload}:
			default:
				logger.Printf(logger.WARN, "[core] subscriber buffer full, dropping delivery on %s", topic)
			}
		}
	}
	if flags&message.FlagPeers == 0 {
		return
	}
	if !(c.autoPublish || c.pubACL[topic]) {
		return
	}
	out := message.NewPublishMsg(topic, payload, flags)
	if unsolicited {
		c.peers.Iterate(func(rec *PeerRecord) {
			if rec.Handle == from {
				return
			}
			c.sendTo(rec.Handle, out)
		})
		return
	}
	for _, fwd := range c.table.ForwardersForTopic(topic) {
		if fwd == from {
			continue
		}
		c.sendTo(fwd, out)
	}
}

func (c *Core) sendTo(peer routing.PeerHandle, msg message.Message) {
	if c.sender == nil {
		return
	}
	if err := c.sender.SendTo(peer, msg); err != nil {
		logger.Printf(logger.WARN, "[core] send to peer %d failed: %s", peer, err.Error())
	}
}

func (c *Core) broadcastSubscribe(topic string, origin *util.OriginID, ttl uint16, except routing.PeerHandle) {
	msg := message.NewSubscribeMsg(topic, origin, ttl)
	c.peers.Iterate(func(rec *PeerRecord) {
		if rec.Handle != except {
			c.sendTo(rec.Handle, msg)
		}
	})
}

func (c *Core) broadcastUnsubscribe(topic string, origin *util.OriginID, except routing.PeerHandle) {
	msg := message.NewUnsubscribeMsg(topic, origin)
	c.peers.Iterate(func(rec *PeerRecord) {
		if rec.Handle != except {
			c.sendTo(rec.Handle, msg)
		}
	})
}

func (c *Core) broadcastUnsubscribeSub(sub routing.SubID, except routing.PeerHandle) {
	origin := util.NewOriginID(sub.Origin[:])
	c.broadcastUnsubscribe(sub.Topic, origin, except)
}

// dropPeer is invoked on a malformed or invariant-violating remote
// message: the offending peer is dropped with peer_invalid and the
// overlay continues (§7).
func (c *Core) dropPeer(peer routing.PeerHandle, reason string) {
	logger.Printf(logger.ERROR, "[core] dropping peer %d: %s", peer, reason)
	rec, ok := c.peers.Find(peer)
	addr := (*util.NetAddr)(nil)
	if ok {
		addr = rec.Addr
	}
	drained := c.table.PeerDrop(peer)
	for _, sub := range drained {
		c.broadcastUnsubscribeSub(sub, peer)
	}
	_ = c.peers.Remove(peer)
	c.bus.Emit(&StatusEvent{Kind: enums.EV_PEER_INVALID, Addr: addr, Message: reason})
}
