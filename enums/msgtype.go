// This file is part of meshbus, a peer-to-peer publish/subscribe broker.
//
// Adapted from gnunet-go's enums/messages.go (a flat `MsgType uint16`
// space with a //go:generate stringer directive): meshbus only needs
// the handful of operation codes the wire protocol defines, so the
// huge GNUnet service catalogue is replaced by just those.

package enums

// MsgType identifies the payload layout of a wire message (see
// message.Message).
type MsgType uint16

// Wire protocol operation codes.
const (
	MSG_PEER_HELLO  MsgType = 1 // name, advertised topics, routing snapshot
	MSG_PUBLISH     MsgType = 2 // topic, payload, flags
	MSG_SUBSCRIBE   MsgType = 3 // topic, origin_id, ttl
	MSG_UNSUBSCRIBE MsgType = 4 // topic, origin_id
	MSG_STORE_CMD   MsgType = 5 // store_id, command
)

func (t MsgType) String() string {
	switch t {
	case MSG_PEER_HELLO:
		return "PEER_HELLO"
	case MSG_PUBLISH:
		return "PUBLISH"
	case MSG_SUBSCRIBE:
		return "SUBSCRIBE"
	case MSG_UNSUBSCRIBE:
		return "UNSUBSCRIBE"
	case MSG_STORE_CMD:
		return "STORE_CMD"
	default:
		return "UNKNOWN"
	}
}
