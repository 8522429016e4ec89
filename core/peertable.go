// This file is part of meshbus, a peer-to-peer publish/subscribe broker.
//
// PeerTable is C2: the record of every peer currently in the
// "established" transport state. Grounded on core/core.go's
// `connected *util.Map[string, bool]`, generalized from a bare liveness
// flag to a full peer record (handle, name, address, direction), keyed
// by the arena-style handle routing.Table also references.

package core

import (
	"errors"

	"meshbus/routing"
	"meshbus/util"
)

// ErrPeerInvalid is returned when an operation names a peer handle the
// table does not know about.
var ErrPeerInvalid = errors.New("peer_invalid")

// PeerRecord describes one connected peer.
type PeerRecord struct {
	Handle      routing.PeerHandle
	DisplayName string
	Incoming    bool
	Generation  uint64
	Origin      *util.OriginID
	Addr        *util.NetAddr
	Advertised  map[string]bool
}

// NewPeerRecord creates a peer record for a freshly handshaked peer.
func NewPeerRecord(handle routing.PeerHandle, name string, incoming bool, origin *util.OriginID, addr *util.NetAddr) *PeerRecord {
	return &PeerRecord{
		Handle:      handle,
		DisplayName: name,
		Incoming:    incoming,
		Origin:      origin,
		Addr:        addr,
		Advertised:  make(map[string]bool),
	}
}

// PeerTable is the live set of established peers, indexed by handle.
type PeerTable struct {
	peers  *util.Map[routing.PeerHandle, *PeerRecord]
	nextID uint64
}

// NewPeerTable creates an empty peer table.
func NewPeerTable() *PeerTable {
	return &PeerTable{peers: util.NewMap[routing.PeerHandle, *PeerRecord]()}
}

// NextHandle allocates a fresh, never-reused peer handle.
func (pt *PeerTable) NextHandle() routing.PeerHandle {
	pt.nextID++
	return routing.PeerHandle(pt.nextID)
}

// Add inserts rec, or replaces the existing record for the same handle
// if rec's generation counter supersedes it. Returns false if an
// existing, newer-or-equal record was left in place.
func (pt *PeerTable) Add(rec *PeerRecord) bool {
	if old, ok := pt.peers.Get(rec.Handle, 0); ok {
		if rec.Generation <= old.Generation {
			return false
		}
	}
	pt.peers.Put(rec.Handle, rec, 0)
	return true
}

// Remove deletes the record for handle. Returns ErrPeerInvalid if no
// such peer is known.
func (pt *PeerTable) Remove(handle routing.PeerHandle) error {
	if _, ok := pt.peers.Get(handle, 0); !ok {
		return ErrPeerInvalid
	}
	pt.peers.Delete(handle, 0)
	return nil
}

// Find returns the record for handle, if present.
func (pt *PeerTable) Find(handle routing.PeerHandle) (*PeerRecord, bool) {
	return pt.peers.Get(handle, 0)
}

// FindByAddr returns the record whose remote address matches addr.
func (pt *PeerTable) FindByAddr(addr *util.NetAddr) (*PeerRecord, bool) {
	var found *PeerRecord
	_ = pt.peers.ProcessRange(func(_ routing.PeerHandle, rec *PeerRecord, _ int) error {
		if rec.Addr != nil && rec.Addr.Equals(addr) {
			found = rec
		}
		return nil
	}, true)
	return found, found != nil
}

// Iterate calls f for every connected peer. f may not mutate the table.
func (pt *PeerTable) Iterate(f func(*PeerRecord)) {
	_ = pt.peers.ProcessRange(func(_ routing.PeerHandle, rec *PeerRecord, _ int) error {
		f(rec)
		return nil
	}, true)
}

// Size returns the number of connected peers.
func (pt *PeerTable) Size() int {
	return pt.peers.Size()
}
