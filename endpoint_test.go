// This file is part of meshbus, a peer-to-peer publish/subscribe broker.

package meshbus

import (
	"context"
	"testing"
	"time"

	"meshbus/config"
)

func TestEndpointPublishSubscribeLoopback(t *testing.T) {
	cfg := &config.NodeConfig{
		Name:          "test",
		AutoPublish:   true,
		AutoAdvertise: true,
	}
	ep, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %s", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := ep.Start(ctx); err != nil {
		t.Fatalf("Start: %s", err)
	}

	sub := ep.Subscribe([]string{"rooms/a"})
	ep.Publish("rooms/a", []byte("hi"), false)

	select {
	case d := <-sub.Ch():
		if string(d.Payload) != "hi" {
			t.Fatalf("unexpected payload %q", d.Payload)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for loopback delivery")
	}
}
