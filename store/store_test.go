// This file is part of meshbus, a peer-to-peer publish/subscribe broker.

package store

import (
	"context"
	"testing"
	"time"

	"meshbus/core"
)

func newTestCore(t *testing.T) (*core.Core, func()) {
	id, err := core.NewIdentity("")
	if err != nil {
		t.Fatalf("NewIdentity: %s", err)
	}
	c := core.NewCore(id, true, true, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	go c.Run(ctx)
	return c, cancel
}

func TestAttachMasterDuplicate(t *testing.T) {
	c, cancel := newTestCore(t)
	defer cancel()
	co := NewCoordinator(c)

	if _, err := co.AttachMaster("kv", nil); err != nil {
		t.Fatalf("first attach_master: %s", err)
	}
	if _, err := co.AttachMaster("kv", nil); err != ErrStoreIDInUse {
		t.Fatalf("expected store_id_in_use, got %v", err)
	}
}

func TestMasterPutAndGet(t *testing.T) {
	c, cancel := newTestCore(t)
	defer cancel()
	co := NewCoordinator(c)

	if _, err := co.AttachMaster("kv", nil); err != nil {
		t.Fatalf("attach_master: %s", err)
	}
	if err := co.Put("kv", "k", []byte("v1"), 0); err != nil {
		t.Fatalf("put: %s", err)
	}
	// a master applies Put directly; poll so the check does not depend on that
	deadline := time.Now().Add(time.Second)
	for {
		v, err := co.Get("kv", "k")
		if err != nil {
			t.Fatalf("get: %s", err)
		}
		if string(v) == "v1" {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("value never applied")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestEraseRemovesKey(t *testing.T) {
	c, cancel := newTestCore(t)
	defer cancel()
	co := NewCoordinator(c)
	co.AttachMaster("kv", nil)
	co.Put("kv", "k", []byte("v"), 0)

	deadline := time.Now().Add(time.Second)
	for {
		if v, _ := co.Get("kv", "k"); string(v) == "v" {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("put never applied")
		}
		time.Sleep(time.Millisecond)
	}

	if err := co.Erase("kv", "k"); err != nil {
		t.Fatalf("erase: %s", err)
	}
	deadline = time.Now().Add(time.Second)
	for {
		v, _ := co.Get("kv", "k")
		if v == nil {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("erase never applied")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestGetUnknownStore(t *testing.T) {
	c, cancel := newTestCore(t)
	defer cancel()
	co := NewCoordinator(c)
	if _, err := co.Get("nope", "k"); err != ErrNoSuchMaster {
		t.Fatalf("expected no_such_master, got %v", err)
	}
}

func TestReplicaApplyAddThenPut(t *testing.T) {
	r := newReplica("kv", RoleMaster)
	ev, err := r.apply(command{Op: opPut, Key: "k", Value: []byte("1")})
	if err != nil {
		t.Fatalf("apply: %s", err)
	}
	if ev.Op != opAdd {
		t.Fatalf("expected add on first write, got %s", ev.Op)
	}
	ev, err = r.apply(command{Op: opPut, Key: "k", Value: []byte("2")})
	if err != nil {
		t.Fatalf("apply: %s", err)
	}
	if ev.Op != opPut {
		t.Fatalf("expected put on second write, got %s", ev.Op)
	}
}

func TestReplicaExpiry(t *testing.T) {
	r := newReplica("kv", RoleMaster)
	if _, err := r.apply(command{Op: opPut, Key: "k", Value: []byte("v"), Expiry: time.Millisecond}); err != nil {
		t.Fatalf("apply: %s", err)
	}
	time.Sleep(5 * time.Millisecond)
	if _, ok := r.Get("k"); ok {
		t.Fatalf("expected expired key to be absent")
	}
}
