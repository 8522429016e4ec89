// This file is part of meshbus, a peer-to-peer publish/subscribe broker.
//
// Adapted from gnunet-go's util/address.go: that file parsed GNUnet's
// multi-transport address strings ("r5n+ip+udp://1.2.3.4:6789"); a
// meshbus peer only ever has one transport (TCP) so this keeps just the
// host/port pair and the parse/format helpers.

package util

import (
	"fmt"
	"net"
	"strconv"
	"strings"
)

// NetAddr identifies a remote endpoint by host and TCP port.
type NetAddr struct {
	Host string
	Port uint16
}

// NewNetAddr builds an address from an already-split host/port pair.
func NewNetAddr(host string, port uint16) *NetAddr {
	return &NetAddr{Host: host, Port: port}
}

// ParseNetAddr parses a "host:port" string into a NetAddr.
func ParseNetAddr(s string) (*NetAddr, error) {
	host, portStr, err := net.SplitHostPort(s)
	if err != nil {
		return nil, fmt.Errorf("invalid address '%s': %w", s, err)
	}
	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		return nil, fmt.Errorf("invalid port in '%s': %w", s, err)
	}
	return &NetAddr{Host: host, Port: uint16(port)}, nil
}

// String returns the "host:port" representation of the address.
func (a *NetAddr) String() string {
	return net.JoinHostPort(a.Host, strconv.Itoa(int(a.Port)))
}

// Equals returns true if two addresses refer to the same host and port.
func (a *NetAddr) Equals(b *NetAddr) bool {
	if a == nil || b == nil {
		return a == b
	}
	return strings.EqualFold(a.Host, b.Host) && a.Port == b.Port
}
