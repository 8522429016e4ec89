// This file is part of meshbus, a peer-to-peer publish/subscribe broker.
//
// Adapted from gnunet-go's message/message.go: keeps the same
// length-prefixed header shape and the gospel/data-based decoding of it
// (GetMsgHeader), generalized from a GNUnet-specific "Message" to the
// handful of wire operations meshbus defines (see enums.MsgType).

package message

import (
	"errors"
	"fmt"

	"meshbus/enums"

	"github.com/bfix/gospel/data"
)

// Error codes
var (
	ErrMsgHeaderTooSmall = errors.New("message header too small")
)

// Message is implemented by every wire message type exchanged between
// peers (see enums.MsgType for the set of kinds).
type Message interface {
	Header() *MessageHeader
}

// MessageHeader encapsulates the common part of every wire message: the
// total size (header + body) and the type tag selecting the body layout.
type MessageHeader struct {
	MsgSize uint16 `order:"big"`
	MsgType uint16 `order:"big"`
}

// Size returns the total size of the message (header + body).
func (mh *MessageHeader) Size() uint16 {
	return mh.MsgSize
}

// Type returns the message type (selects the layout of the body).
func (mh *MessageHeader) Type() uint16 {
	return mh.MsgType
}

// GetMsgHeader extracts the header from a message's serialized form
// without decoding the body.
func GetMsgHeader(b []byte) (mh *MessageHeader, err error) {
	if b == nil || len(b) < 4 {
		return nil, ErrMsgHeaderTooSmall
	}
	mh = new(MessageHeader)
	err = data.Unmarshal(mh, b)
	return
}

// NewEmptyMessage allocates a zero-valued message of the given type, to
// be filled in by data.Unmarshal. Mirrors gnunet-go's message type
// registry (message.NewEmptyMessage), cut down to meshbus's five
// operation kinds.
func NewEmptyMessage(t uint16) (Message, error) {
	switch enums.MsgType(t) {
	case enums.MSG_PEER_HELLO:
		return new(PeerHelloMsg), nil
	case enums.MSG_PUBLISH:
		return new(PublishMsg), nil
	case enums.MSG_SUBSCRIBE:
		return new(SubscribeMsg), nil
	case enums.MSG_UNSUBSCRIBE:
		return new(UnsubscribeMsg), nil
	case enums.MSG_STORE_CMD:
		return new(StoreCmdMsg), nil
	}
	return nil, fmt.Errorf("unknown message type %d", t)
}
