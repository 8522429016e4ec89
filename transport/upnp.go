// This file is part of meshbus, a peer-to-peer publish/subscribe broker.
//
// Kept near-verbatim from gnunet-go's transport/upnp.go: a thin wrapper
// around gospel/network's PortMapper, useful for a listen endpoint
// behind NAT that wants a forwarded port advertised to peers.

package transport

import (
	"errors"
	"strings"

	"github.com/bfix/gospel/network"
)

var upnpManager *network.PortMapper

func init() {
	upnpManager, _ = network.NewPortMapper("meshbus")
}

// UPnP requests a port forward for a "upnp:"-prefixed listen address,
// returning the mapping id plus the local and externally reachable
// addresses.
func UPnP(protocol, addr string, port int) (id, local, remote string, err error) {
	if !strings.HasPrefix(addr, "upnp:") {
		err = errors.New("invalid address for UPnP")
		return
	}
	return upnpManager.Assign(protocol, port)
}

// UnmapUPnP releases a previously assigned port forward.
func UnmapUPnP(id string) {
	upnpManager.Unassign(id)
}
