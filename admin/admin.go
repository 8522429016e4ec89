// This file is part of meshbus, a peer-to-peer publish/subscribe broker.
//
// Server is C13, the read-only introspection API: peers (C2), routes
// (C3), stores (C7) and endpoint identity (C14). Grounded on
// gnunet-go's service/rpc.go (mux.Router plus a context-driven
// http.Server with graceful shutdown) and service/module.go's RPC
// contract, carried over from a writable per-service JSON-RPC registry
// to a fixed set of read-only REST routes plus one JSON-RPC 1.0
// service exposing the same four queries for programmatic clients.

package admin

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"meshbus/core"
	"meshbus/store"
	"meshbus/util"

	"github.com/bfix/gospel/logger"
	"github.com/gorilla/mux"
	"github.com/gorilla/rpc"
	rpcjson "github.com/gorilla/rpc/json"
)

// Server exposes the REST and JSON-RPC introspection surface for one
// endpoint.
type Server struct {
	router *mux.Router
	srv    *http.Server
}

// PeerInfo describes one established peer as rendered by the API.
type PeerInfo struct {
	Handle   uint64 `json:"handle"`
	Name     string `json:"name"`
	Incoming bool   `json:"incoming"`
	Addr     string `json:"addr"`
	Origin   string `json:"origin"`
}

// RouteInfo describes one subscription id known to the routing table.
type RouteInfo struct {
	Topic     string `json:"topic"`
	Origin    string `json:"origin"`
	Forwarder uint64 `json:"forwarder,omitempty"`
	TTL       uint16 `json:"ttl"`
}

// StoreInfo describes one locally attached store replica.
type StoreInfo struct {
	ID   string `json:"id"`
	Role string `json:"role"`
}

// IdentityInfo describes the local endpoint's identity.
type IdentityInfo struct {
	Origin string `json:"origin"`
}

// query bundles the live collaborators the API reads from; it never
// mutates them.
type query struct {
	core  *core.Core
	store *store.Coordinator
}

func (q *query) peers() []PeerInfo {
	var out []PeerInfo
	q.core.Peers().Iterate(func(rec *core.PeerRecord) {
		info := PeerInfo{
			Handle:   uint64(rec.Handle),
			Name:     rec.DisplayName,
			Incoming: rec.Incoming,
			Origin:   rec.Origin.String(),
		}
		if rec.Addr != nil {
			info.Addr = rec.Addr.String()
		}
		out = append(out, info)
	})
	return out
}

func (q *query) routes() []RouteInfo {
	tbl := q.core.Table()
	var out []RouteInfo
	for _, sub := range tbl.Known() {
		ttl, _ := tbl.TTL(sub)
		info := RouteInfo{
			Topic:  sub.Topic,
			Origin: tbl.Origin(sub).String(),
			TTL:    ttl,
		}
		if fwd, ok := tbl.BestForwarder(sub); ok {
			info.Forwarder = uint64(fwd)
		}
		out = append(out, info)
	}
	return out
}

func (q *query) stores() []StoreInfo {
	var out []StoreInfo
	if q.store == nil {
		return out
	}
	for id, role := range q.store.List() {
		out = append(out, StoreInfo{ID: id, Role: role.String()})
	}
	return out
}

func (q *query) identity() IdentityInfo {
	return IdentityInfo{Origin: q.core.Identity().Origin().String()}
}

// NewServer builds the admin router for c and co. co may be nil if no
// stores are configured.
func NewServer(c *core.Core, co *store.Coordinator) *Server {
	q := &query{core: c, store: co}
	r := mux.NewRouter()

	r.HandleFunc("/peers", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, q.peers())
	}).Methods(http.MethodGet)

	r.HandleFunc("/routes", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, q.routes())
	}).Methods(http.MethodGet)

	r.HandleFunc("/stores", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, q.stores())
	}).Methods(http.MethodGet)

	r.HandleFunc("/identity", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, q.identity())
	}).Methods(http.MethodGet)

	rpcSrv := rpc.NewServer()
	rpcSrv.RegisterCodec(rpcjson.NewCodec(), "application/json")
	if err := rpcSrv.RegisterService(&rpcService{q: q}, "Admin"); err != nil {
		logger.Printf(logger.ERROR, "[admin] failed to register rpc service: %s", err.Error())
	}
	r.Handle("/rpc", rpcSrv).Methods(http.MethodPost)

	return &Server{router: r}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Printf(logger.WARN, "[admin] response encode failed: %s", err.Error())
	}
}

// Start runs the admin HTTP server on addr until ctx is done.
func (s *Server) Start(ctx context.Context, addr *util.NetAddr) error {
	s.srv = &http.Server{
		Handler:      s.router,
		Addr:         addr.String(),
		WriteTimeout: 15 * time.Second,
		ReadTimeout:  15 * time.Second,
	}
	go func() {
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Printf(logger.WARN, "[admin] server listen failed: %s", err.Error())
		}
	}()
	go func() {
		<-ctx.Done()
		if err := s.srv.Shutdown(context.Background()); err != nil {
			logger.Printf(logger.WARN, "[admin] server shutdown failed: %s", err.Error())
		}
	}()
	return nil
}

// Router exposes the underlying mux.Router, mainly for tests.
func (s *Server) Router() *mux.Router {
	return s.router
}

// rpcEmpty is the argument type for every read-only RPC method.
type rpcEmpty struct{}

// rpcService is the gorilla/rpc JSON-RPC 1.0 service backing the same
// four queries the REST routes expose, for clients that prefer a
// single RPC endpoint over discovering paths.
type rpcService struct {
	q *query
}

func (s *rpcService) Peers(r *http.Request, args *rpcEmpty, reply *[]PeerInfo) error {
	*reply = s.q.peers()
	return nil
}

func (s *rpcService) Routes(r *http.Request, args *rpcEmpty, reply *[]RouteInfo) error {
	*reply = s.q.routes()
	return nil
}

func (s *rpcService) Stores(r *http.Request, args *rpcEmpty, reply *[]StoreInfo) error {
	*reply = s.q.stores()
	return nil
}

func (s *rpcService) Identity(r *http.Request, args *rpcEmpty, reply *IdentityInfo) error {
	*reply = s.q.identity()
	return nil
}
