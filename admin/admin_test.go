// This file is part of meshbus, a peer-to-peer publish/subscribe broker.

package admin

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"

	"meshbus/core"
	"meshbus/store"
)

func newTestCore(t *testing.T) *core.Core {
	id, err := core.NewIdentity("")
	if err != nil {
		t.Fatalf("NewIdentity: %s", err)
	}
	c := core.NewCore(id, true, true, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go c.Run(ctx)
	return c
}

func TestPeersRoute(t *testing.T) {
	c := newTestCore(t)
	srv := NewServer(c, nil)

	req := httptest.NewRequest("GET", "/peers", nil)
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)

	if w.Code != 200 {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var peers []PeerInfo
	if err := json.Unmarshal(w.Body.Bytes(), &peers); err != nil {
		t.Fatalf("decode: %s", err)
	}
	if len(peers) != 0 {
		t.Fatalf("expected no peers, got %d", len(peers))
	}
}

func TestIdentityRoute(t *testing.T) {
	c := newTestCore(t)
	srv := NewServer(c, nil)

	req := httptest.NewRequest("GET", "/identity", nil)
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)

	var info IdentityInfo
	if err := json.Unmarshal(w.Body.Bytes(), &info); err != nil {
		t.Fatalf("decode: %s", err)
	}
	if info.Origin == "" {
		t.Fatal("expected non-empty origin")
	}
}

func TestStoresRouteWithCoordinator(t *testing.T) {
	c := newTestCore(t)
	co := store.NewCoordinator(c)
	if _, err := co.AttachMaster("kv", nil); err != nil {
		t.Fatalf("AttachMaster: %s", err)
	}
	srv := NewServer(c, co)

	req := httptest.NewRequest("GET", "/stores", nil)
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)

	var stores []StoreInfo
	if err := json.Unmarshal(w.Body.Bytes(), &stores); err != nil {
		t.Fatalf("decode: %s", err)
	}
	if len(stores) != 1 || stores[0].ID != "kv" || stores[0].Role != "master" {
		t.Fatalf("unexpected stores response: %+v", stores)
	}
}

func TestRPCIdentity(t *testing.T) {
	c := newTestCore(t)
	srv := NewServer(c, nil)

	body := `{"method":"Admin.Identity","params":[{}],"id":1}`
	req := httptest.NewRequest("POST", "/rpc", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)

	if w.Code != 200 {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
}
