// This file is part of meshbus, a peer-to-peer publish/subscribe broker.

package transport

import (
	"context"
	"testing"
	"time"

	"meshbus/core"
	"meshbus/util"
)

func newTestCore(t *testing.T, seed string) (*core.Core, context.CancelFunc) {
	id, err := core.NewIdentity(seed)
	if err != nil {
		t.Fatalf("NewIdentity: %s", err)
	}
	c := core.NewCore(id, true, true, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	go c.Run(ctx)
	return c, cancel
}

func TestManagerPeerHandshake(t *testing.T) {
	serverCore, cancelServer := newTestCore(t, "")
	defer cancelServer()
	clientCore, cancelClient := newTestCore(t, "")
	defer cancelClient()

	serverMgr := NewManager(serverCore, "server")
	clientMgr := NewManager(clientCore, "client")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	listenAddr := util.NewNetAddr("127.0.0.1", 18911)
	if err := serverMgr.Listen(ctx, listenAddr); err != nil {
		t.Fatalf("listen: %s", err)
	}
	time.Sleep(20 * time.Millisecond)

	clientMgr.Peer(ctx, listenAddr, 50*time.Millisecond)

	deadline := time.Now().Add(2 * time.Second)
	for serverCore.Peers().Size() == 0 || clientCore.Peers().Size() == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("peers never reached established state: server=%d client=%d",
				serverCore.Peers().Size(), clientCore.Peers().Size())
		}
		time.Sleep(10 * time.Millisecond)
	}
}
