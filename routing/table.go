// This file is part of meshbus, a peer-to-peer publish/subscribe broker.
//
// Table tracks, for every remote subscription id, which neighbors
// advertised it and at what hop distance, and picks a single forwarder
// per id. Grounded on service/dht/routingtable.go's RoutingTable/Bucket
// shape ("nearest" selection by a distance metric)
// generalized from Kademlia's XOR distance to a plain minimum-TTL rule,
// and on its peer-facing topic index for the "which forwarders does a
// given publish topic reach" query core/core.go's fan-out needs.

package routing

import "meshbus/util"

// PeerHandle is an opaque, comparable, totally-ordered identifier for a
// connected peer. It is assigned once per connection by the peer table
// and never reused, matching the "integer ids into an arena" approach
// design notes call for to avoid back-reference cycles between the peer
// table and the routing table.
type PeerHandle uint64

// SubID is the (topic, origin) pair identifying one subscription
// across the overlay.
type SubID struct {
	Topic  string
	Origin [util.OriginIDSize]byte
}

func subID(topic string, origin *util.OriginID) SubID {
	return SubID{Topic: topic, Origin: origin.Key()}
}

// Table is the routing table for one endpoint: for every subscription
// id known from remote peers, it tracks every neighbor that advertised
// it (with TTL) and the chosen forwarder.
type Table struct {
	topics    *Index[SubID]                   // topic -> subIDs registered on it (for peer fan-out)
	peersFor  map[SubID]map[PeerHandle]uint16 // sub_id -> (peer -> ttl)
	forwarder map[SubID]PeerHandle            // sub_id -> chosen forwarder
	allSubs   map[SubID]uint16                // sub_id -> forwarder's ttl
	origin    map[SubID]*util.OriginID        // sub_id -> origin (to rebuild wire messages)
}

// NewTable creates an empty routing table.
func NewTable() *Table {
	return &Table{
		topics:    NewIndex[SubID](),
		peersFor:  make(map[SubID]map[PeerHandle]uint16),
		forwarder: make(map[SubID]PeerHandle),
		allSubs:   make(map[SubID]uint16),
		origin:    make(map[SubID]*util.OriginID),
	}
}

// Register records that viaPeer advertised (topic, origin) at the given
// ttl. Returns the subscription id, whether it was previously unknown
// to the table, and whether the forwarder changed as a result.
func (t *Table) Register(topic string, origin *util.OriginID, via PeerHandle, ttl uint16) (sub SubID, isNew bool, forwarderChanged bool) {
	sub = subID(topic, origin)
	if t.peersFor[sub] == nil {
		t.peersFor[sub] = make(map[PeerHandle]uint16)
	}
	t.peersFor[sub][via] = ttl

	if _, known := t.allSubs[sub]; !known {
		isNew = true
		t.topics.Register(topic, sub)
		t.origin[sub] = origin
		t.forwarder[sub] = via
		t.allSubs[sub] = ttl
		forwarderChanged = true
		return
	}
	newFwd, changed := t.recompute(sub)
	if changed {
		t.forwarder[sub] = newFwd
		t.allSubs[sub] = t.peersFor[sub][newFwd]
		forwarderChanged = true
	}
	return
}

// Unregister removes (or just re-evaluates, when remove is false) the
// via-peer entry for sub. Returns whether the subscription id was fully
// drained (erased from every table) and whether the forwarder changed.
func (t *Table) Unregister(sub SubID, via PeerHandle, remove bool) (drained bool, forwarderChanged bool) {
	peers, ok := t.peersFor[sub]
	if !ok {
		return false, false
	}
	if remove {
		delete(peers, via)
		if len(peers) == 0 {
			delete(t.peersFor, sub)
			delete(t.forwarder, sub)
			delete(t.allSubs, sub)
			t.topics.Unregister(sub.Topic, sub)
			delete(t.origin, sub)
			return true, false
		}
	}
	newFwd, changed := t.recompute(sub)
	if changed {
		t.forwarder[sub] = newFwd
		t.allSubs[sub] = peers[newFwd]
		forwarderChanged = true
	}
	return false, forwarderChanged
}

// recompute scans peersFor[sub] for the minimum-TTL peer, keeping the
// current forwarder on a tie and otherwise preferring the smallest
// handle.
func (t *Table) recompute(sub SubID) (PeerHandle, bool) {
	peers := t.peersFor[sub]
	current, hasCurrent := t.forwarder[sub]

	// pass 1: find the minimum ttl among all candidate peers.
	bestTTL := ^uint16(0)
	for _, ttl := range peers {
		if ttl < bestTTL {
			bestTTL = ttl
		}
	}
	// pass 2: among peers at bestTTL, keep the current forwarder if it
	// qualifies, else take the smallest handle.
	winner, haveWinner := PeerHandle(0), false
	currentQualifies := hasCurrent && peers[current] == bestTTL
	for p, ttl := range peers {
		if ttl != bestTTL {
			continue
		}
		if currentQualifies {
			winner, haveWinner = current, true
			break
		}
		if !haveWinner || p < winner {
			winner, haveWinner = p, true
		}
	}
	return winner, !hasCurrent || winner != current
}

// PeerDrop removes every entry peer holds across the table, as if
// Unregister(sub, peer, true) had been called for each. Returns the
// subscription ids that were fully drained as a result (the caller must
// broadcast "unsubscribe" for each to the remaining peers).
func (t *Table) PeerDrop(peer PeerHandle) []SubID {
	var drained []SubID
	var affected []SubID
	for sub, peers := range t.peersFor {
		if _, ok := peers[peer]; ok {
			affected = append(affected, sub)
		}
	}
	for _, sub := range affected {
		if d, _ := t.Unregister(sub, peer, true); d {
			drained = append(drained, sub)
		}
	}
	return drained
}

// BestForwarder returns the current forwarder for sub, if any.
func (t *Table) BestForwarder(sub SubID) (PeerHandle, bool) {
	p, ok := t.forwarder[sub]
	return p, ok
}

// TTL returns the forwarder's ttl for sub.
func (t *Table) TTL(sub SubID) (uint16, bool) {
	ttl, ok := t.allSubs[sub]
	return ttl, ok
}

// Origin returns the recorded origin id for sub.
func (t *Table) Origin(sub SubID) *util.OriginID {
	return t.origin[sub]
}

// ForwardersForTopic returns the unique set of current forwarders for
// every subscription id whose topic prefix-matches topic — the routing
// view C4 uses to fan a publish out to remote peers without sending it
// twice to the same neighbor.
func (t *Table) ForwardersForTopic(topic string) []PeerHandle {
	seen := make(map[PeerHandle]bool)
	var out []PeerHandle
	for _, sub := range t.topics.PrefixMatches(topic) {
		fwd, ok := t.forwarder[sub]
		if !ok || seen[fwd] {
			continue
		}
		seen[fwd] = true
		out = append(out, fwd)
	}
	return out
}

// Known returns every subscription id the table currently tracks.
func (t *Table) Known() []SubID {
	out := make([]SubID, 0, len(t.allSubs))
	for sub := range t.allSubs {
		out = append(out, sub)
	}
	return out
}

// PeersOf returns the peer->ttl map for sub (for re-advertisement on
// first sight of a new subscription id).
func (t *Table) PeersOf(sub SubID) map[PeerHandle]uint16 {
	return t.peersFor[sub]
}
