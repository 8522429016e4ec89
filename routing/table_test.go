// This file is part of meshbus, a peer-to-peer publish/subscribe broker.

package routing

import (
	"testing"

	"meshbus/util"
)

func origin(b byte) *util.OriginID {
	return util.NewOriginID([]byte{b})
}

func TestForwarderIsMinimumTTL(t *testing.T) {
	tbl := NewTable()
	org := origin(1)

	tbl.Register("t", org, PeerHandle(1), 5)
	tbl.Register("t", org, PeerHandle(2), 2)
	tbl.Register("t", org, PeerHandle(3), 8)

	sub := tbl.Known()[0]
	fwd, ok := tbl.BestForwarder(sub)
	if !ok || fwd != PeerHandle(2) {
		t.Fatalf("expected forwarder 2 (min ttl), got %v", fwd)
	}
	ttl, _ := tbl.TTL(sub)
	if ttl != 2 {
		t.Fatalf("expected ttl 2, got %d", ttl)
	}
}

func TestForwarderTieKeepsCurrent(t *testing.T) {
	tbl := NewTable()
	org := origin(1)

	sub, _, _ := tbl.Register("t", org, PeerHandle(1), 3)
	tbl.Register("t", org, PeerHandle(2), 3)

	fwd, _ := tbl.BestForwarder(sub)
	if fwd != PeerHandle(1) {
		t.Fatalf("expected current forwarder 1 to survive a tie, got %v", fwd)
	}
}

func TestSubscribeUnsubscribeRoundTrip(t *testing.T) {
	tbl := NewTable()
	org := origin(1)

	sub, isNew, _ := tbl.Register("t", org, PeerHandle(1), 3)
	if !isNew {
		t.Fatal("expected first registration to be new")
	}
	drained, _ := tbl.Unregister(sub, PeerHandle(1), true)
	if !drained {
		t.Fatal("expected last peer removal to drain the subscription")
	}
	if len(tbl.Known()) != 0 {
		t.Fatalf("expected empty table after round trip, got %v", tbl.Known())
	}
}

func TestPeerDropDrainsOnlyAffectedSubs(t *testing.T) {
	tbl := NewTable()
	org := origin(1)

	tbl.Register("a", org, PeerHandle(1), 1)
	tbl.Register("b", org, PeerHandle(2), 1)

	drained := tbl.PeerDrop(PeerHandle(1))
	if len(drained) != 1 || drained[0].Topic != "a" {
		t.Fatalf("expected only topic a drained, got %v", drained)
	}
	if len(tbl.Known()) != 1 {
		t.Fatalf("expected topic b to remain, got %v", tbl.Known())
	}
}

func TestForwardersForTopicDedupsByPeer(t *testing.T) {
	tbl := NewTable()
	tbl.Register("a", origin(1), PeerHandle(1), 1)
	tbl.Register("a/b", origin(2), PeerHandle(2), 1)
	tbl.Register("a/b/c", origin(3), PeerHandle(1), 1)

	fwds := tbl.ForwardersForTopic("a/b/c")
	if len(fwds) != 2 {
		t.Fatalf("expected 2 distinct forwarders, got %v", fwds)
	}
}
