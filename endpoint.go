// This file is part of meshbus, a peer-to-peer publish/subscribe broker.
//
// Endpoint is C8, the public facade wiring the core event loop (C4),
// transport manager (C5), store coordinator (C7) and admin API (C13)
// into one object constructed from a config.NodeConfig. Grounded on
// gnunet-go's cmd/gnunet-service-*/main.go pattern of "load config,
// build one service object, start its dependents, run until signalled"
// generalized from a single GNUnet service process into the one
// long-lived object a daemon or embedding program drives directly.

package meshbus

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"meshbus/admin"
	"meshbus/config"
	"meshbus/core"
	"meshbus/message"
	"meshbus/store"
	"meshbus/transport"
	"meshbus/util"

	"github.com/bfix/gospel/logger"
)

// Endpoint is one meshbus node: its identity, its connections to
// peers, its local subscribers and the stores it masters or clones.
type Endpoint struct {
	cfg *config.NodeConfig

	core  *core.Core
	trans *transport.Manager
	store *store.Coordinator
	admin *admin.Server

	mu      sync.Mutex
	started bool
}

// New builds an endpoint from cfg without starting any network
// activity; call Start to bring up listeners, peers, stores and the
// admin API.
func New(cfg *config.NodeConfig) (*Endpoint, error) {
	id, err := core.NewIdentity(cfg.IdentitySeed)
	if err != nil {
		return nil, fmt.Errorf("identity: %w", err)
	}
	c := core.NewCore(id, cfg.AutoPublish, cfg.AutoAdvertise, cfg.PublishACL, cfg.AdvertACL)
	trans := transport.NewManager(c, cfg.Name)
	co := store.NewCoordinator(c)

	ep := &Endpoint{
		cfg:   cfg,
		core:  c,
		trans: trans,
		store: co,
	}
	if cfg.Admin != nil {
		ep.admin = admin.NewServer(c, co)
	}
	return ep, nil
}

// Start runs the core event loop, brings up configured listeners and
// peers, attaches configured stores, and starts the admin API. It
// returns once every configured listener is up; peering and stores
// continue to (re)connect in the background until ctx ends.
func (e *Endpoint) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.started {
		e.mu.Unlock()
		return errors.New("endpoint already started")
	}
	e.started = true
	e.mu.Unlock()

	go e.core.Run(ctx)

	for _, l := range e.cfg.Listen {
		addr := util.NewNetAddr(l.Addr, l.Port)
		if err := e.trans.Listen(ctx, addr); err != nil {
			return fmt.Errorf("listen %s: %w", addr, err)
		}
		if l.UPnP {
			if _, _, _, err := transport.UPnP("tcp", "upnp:"+l.Addr, int(l.Port)); err != nil {
				logger.Printf(logger.WARN, "[endpoint] upnp mapping failed for %s: %s", addr, err.Error())
			}
		}
	}

	retry := e.cfg.Reconnect()
	for _, p := range e.cfg.Peers {
		addr := util.NewNetAddr(p.Addr, p.Port)
		e.trans.Peer(ctx, addr, retry)
	}

	for _, sc := range e.cfg.Stores {
		if err := e.attachStore(sc); err != nil {
			return fmt.Errorf("store %s: %w", sc.ID, err)
		}
	}

	if e.admin != nil {
		addr := util.NewNetAddr(e.cfg.Admin.Addr, e.cfg.Admin.Port)
		if err := e.admin.Start(ctx, addr); err != nil {
			return fmt.Errorf("admin: %w", err)
		}
	}
	return nil
}

func (e *Endpoint) attachStore(sc config.StoreConfig) error {
	switch sc.Role {
	case "master":
		sink, err := store.NewSink(sc.Backend, sc.Params)
		if err != nil {
			return err
		}
		_, err = e.store.AttachMaster(sc.ID, sink)
		return err
	case "clone":
		_, err := e.store.AttachClone(sc.ID)
		return err
	default:
		return fmt.Errorf("unknown store role %q", sc.Role)
	}
}

// Peer dials addr and adds it as a peering link, retrying at interval
// until connected or unpeered.
func (e *Endpoint) Peer(ctx context.Context, addr *util.NetAddr, interval time.Duration) {
	e.trans.Peer(ctx, addr, interval)
}

// Unpeer tears down the peering link to addr, if any.
func (e *Endpoint) Unpeer(addr *util.NetAddr) {
	e.trans.Unpeer(addr)
}

// Publish sends payload on topic to local subscribers and, unless
// selfOnly is set, to the overlay.
func (e *Endpoint) Publish(topic string, payload []byte, selfOnly bool) {
	flags := message.FlagSelf
	if !selfOnly {
		flags |= message.FlagPeers
	}
	e.core.Publish(topic, payload, flags)
}

// Subscribe registers a local subscriber for the given topics.
func (e *Endpoint) Subscribe(topics []string) *core.Subscriber {
	return e.core.Subscribe(topics)
}

// Unsubscribe withdraws a subscriber previously returned by Subscribe.
func (e *Endpoint) Unsubscribe(sub *core.Subscriber) {
	e.core.Unsubscribe(sub)
}

// AttachMaster attaches a new authoritative store at runtime.
func (e *Endpoint) AttachMaster(id string, sink store.Sink) (*store.Replica, error) {
	return e.store.AttachMaster(id, sink)
}

// AttachClone attaches a new mirrored store at runtime.
func (e *Endpoint) AttachClone(id string) (*store.Replica, error) {
	return e.store.AttachClone(id)
}

// Store returns the store coordinator for direct Put/Get/Erase calls.
func (e *Endpoint) Store() *store.Coordinator {
	return e.store
}

// Core exposes the underlying event loop for callers that need the
// lower-level API (admin wiring, tests).
func (e *Endpoint) Core() *core.Core {
	return e.core
}
