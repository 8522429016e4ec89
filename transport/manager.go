// This file is part of meshbus, a peer-to-peer publish/subscribe broker.
//
// Manager fans SendTo calls from the core out to the right per-peer
// Proxy, and accepts inbound connections on a listener. Grounded on the
// single-listener accept loop of gnunet-go's transport/endpoint.go,
// generalized from its multi-protocol underlay registry to a flat
// handle -> Proxy table since meshbus has exactly one transport kind.

package transport

import (
	"context"
	"net"
	"sync"
	"time"

	"meshbus/core"
	"meshbus/message"
	"meshbus/routing"
	"meshbus/util"

	"github.com/bfix/gospel/logger"
)

// Manager owns every active Proxy for one endpoint and implements
// core.PeerSender.
type Manager struct {
	core *core.Core
	name string

	mu       sync.Mutex
	byHandle map[routing.PeerHandle]*Proxy
	byAddr   map[string]*Proxy

	listeners []net.Listener
}

// NewManager creates a manager for c, registering itself as the core's
// sender.
func NewManager(c *core.Core, name string) *Manager {
	m := &Manager{
		core:     c,
		name:     name,
		byHandle: make(map[routing.PeerHandle]*Proxy),
		byAddr:   make(map[string]*Proxy),
	}
	c.SetSender(m)
	return m
}

// SendTo implements core.PeerSender.
func (m *Manager) SendTo(peer routing.PeerHandle, msg message.Message) error {
	m.mu.Lock()
	p, ok := m.byHandle[peer]
	m.mu.Unlock()
	if !ok {
		return errNotConnected
	}
	return p.send(msg)
}

// Peer dials addr and registers the resulting proxy, retrying at the
// given interval until it connects or ctx ends.
func (m *Manager) Peer(ctx context.Context, addr *util.NetAddr, retry time.Duration) *Proxy {
	key := addr.String()
	var p *Proxy
	p = DialPeer(m.core, m.name, addr, retry, func(h routing.PeerHandle) {
		m.mu.Lock()
		m.byHandle[h] = p
		m.mu.Unlock()
	})
	m.mu.Lock()
	m.byAddr[key] = p
	m.mu.Unlock()
	m.reapOnExit(key, p)
	p.Start(ctx)
	return p
}

// Unpeer gracefully tears down the proxy registered for addr, if any.
// An unknown address is reported via the core's peer_invalid path.
func (m *Manager) Unpeer(addr *util.NetAddr) {
	key := addr.String()
	m.mu.Lock()
	p, ok := m.byAddr[key]
	if ok {
		delete(m.byAddr, key)
		delete(m.byHandle, p.Handle())
	}
	m.mu.Unlock()
	if !ok {
		m.core.UnpeerUnknown(addr)
		return
	}
	p.Unpeer()
}

// Listen accepts inbound connections on addr until ctx ends.
func (m *Manager) Listen(ctx context.Context, addr *util.NetAddr) error {
	ln, err := net.Listen("tcp", addr.String())
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.listeners = append(m.listeners, ln)
	m.mu.Unlock()
	go func() {
		<-ctx.Done()
		ln.Close()
	}()
	go m.acceptLoop(ctx, ln)
	return nil
}

func (m *Manager) acceptLoop(ctx context.Context, ln net.Listener) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
				logger.Printf(logger.WARN, "[transport] accept failed: %s", err.Error())
				continue
			}
		}
		remote, err := util.ParseNetAddr(conn.RemoteAddr().String())
		if err != nil {
			logger.Printf(logger.WARN, "[transport] could not parse remote address %s: %s", conn.RemoteAddr(), err.Error())
			conn.Close()
			continue
		}
		key := remote.String()
		var p *Proxy
		p = AcceptPeer(m.core, m.name, remote, conn, func(h routing.PeerHandle) {
			m.mu.Lock()
			m.byHandle[h] = p
			m.mu.Unlock()
		})
		m.mu.Lock()
		m.byAddr[key] = p
		m.mu.Unlock()
		m.reapOnExit(key, p)
		p.Start(ctx)
	}
}

// reapOnExit removes the proxy's registry entries once its goroutine
// ends (connection closed and not redialing, or explicitly unpeered).
func (m *Manager) reapOnExit(key string, p *Proxy) {
	go func() {
		<-p.done
		m.mu.Lock()
		if cur, ok := m.byAddr[key]; ok && cur == p {
			delete(m.byAddr, key)
		}
		if h := p.Handle(); h != 0 {
			if cur, ok := m.byHandle[h]; ok && cur == p {
				delete(m.byHandle, h)
			}
		}
		m.mu.Unlock()
	}()
}
