// This file is part of meshbus, a peer-to-peer publish/subscribe broker.

package core

import (
	"context"
	"testing"
	"time"

	"meshbus/enums"
	"meshbus/message"
	"meshbus/util"
)

func newTestCore(t *testing.T) (*Core, context.CancelFunc) {
	id, err := NewIdentity("")
	if err != nil {
		t.Fatalf("NewIdentity: %s", err)
	}
	c := NewCore(id, true, true, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	go c.Run(ctx)
	return c, cancel
}

func TestPublishSelfDelivery(t *testing.T) {
	c, cancel := newTestCore(t)
	defer cancel()

	sub := c.Subscribe([]string{"a/b"})
	c.Publish("a/b/c", []byte("hi"), message.FlagSelf)

	select {
	case d := <-sub.Ch():
		if d.Topic != "a/b/c" || string(d.Payload) != "hi" {
			t.Fatalf("unexpected delivery: %+v", d)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for self delivery")
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	c, cancel := newTestCore(t)
	defer cancel()

	sub := c.Subscribe([]string{"a"})
	c.Unsubscribe(sub)
	c.Publish("a", []byte("x"), message.FlagSelf)

	select {
	case d, ok := <-sub.Ch():
		if ok {
			t.Fatalf("expected no delivery after unsubscribe, got %+v", d)
		}
	case <-time.After(100 * time.Millisecond):
	}
}

func TestUnpeerUnknownEmitsPeerInvalid(t *testing.T) {
	c, cancel := newTestCore(t)
	defer cancel()

	ch := make(chan *StatusEvent, 4)
	c.StatusBus().Register("test", NewStatusListener(ch, nil))

	c.UnpeerUnknown(util.NewNetAddr("10.0.0.1", 1234))

	select {
	case ev := <-ch:
		if ev.Kind != enums.EV_PEER_INVALID {
			t.Fatalf("expected peer_invalid, got %v", ev.Kind)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for peer_invalid")
	}
}

func TestHandshakeThenDisconnectEmitsAddedThenRemoved(t *testing.T) {
	c, cancel := newTestCore(t)
	defer cancel()

	ch := make(chan *StatusEvent, 4)
	c.StatusBus().Register("test", NewStatusListener(ch, nil))

	handle := c.AllocatePeerHandle()
	hello := message.NewPeerHelloMsg("peerA", nil, nil)
	addr := util.NewNetAddr("10.0.0.2", 4040)
	c.HandshakeAccepted(handle, "peerA", false, addr, hello)

	select {
	case ev := <-ch:
		if ev.Kind != enums.EV_PEER_ADDED {
			t.Fatalf("expected peer_added, got %v", ev.Kind)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for peer_added")
	}

	if c.Peers().Size() != 1 {
		t.Fatalf("expected 1 established peer, got %d", c.Peers().Size())
	}

	c.PeerDisconnected(handle, true)

	select {
	case ev := <-ch:
		if ev.Kind != enums.EV_PEER_REMOVED {
			t.Fatalf("expected peer_removed, got %v", ev.Kind)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for peer_removed")
	}
	if c.Peers().Size() != 0 {
		t.Fatalf("expected 0 peers after disconnect, got %d", c.Peers().Size())
	}
}
