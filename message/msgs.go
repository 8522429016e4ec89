// This file is part of meshbus, a peer-to-peer publish/subscribe broker.
//
// Defines the wire operations peers exchange once connected, grounded on
// the length-prefixed field style of gnunet-go's message/msg_gns.go and
// message/msg_namestore.go (a uintN length field immediately followed by
// a `size:"<FieldName>"` byte slice, nested structs carrying their own
// length fields for repeated entries).

package message

import (
	"fmt"

	"meshbus/enums"
	"meshbus/util"
)

// TopicEntry is one entry of a PEER_HELLO's advertised-topic list.
type TopicEntry struct {
	Len  uint16 `order:"big"`
	Name []byte `size:"Len"`
}

// NewTopicEntry wraps a topic string for wire transmission.
func NewTopicEntry(topic string) *TopicEntry {
	return &TopicEntry{Len: uint16(len(topic)), Name: []byte(topic)}
}

// String returns the topic as a plain string.
func (e *TopicEntry) String() string {
	return string(e.Name)
}

// RouteEntry is one row of a PEER_HELLO's routing-table snapshot: "I can
// reach origin on topic within TTL hops".
type RouteEntry struct {
	TopicLen uint16         `order:"big"`
	Topic    []byte         `size:"TopicLen"`
	Origin   *util.OriginID ``
	TTL      uint16         `order:"big"`
}

// NewRouteEntry builds a routing-table row for wire transmission.
func NewRouteEntry(topic string, origin *util.OriginID, ttl uint16) *RouteEntry {
	return &RouteEntry{TopicLen: uint16(len(topic)), Topic: []byte(topic), Origin: origin, TTL: ttl}
}

//----------------------------------------------------------------------
// PEER_HELLO
//
// Sent immediately after a transport connection is established: it
// carries the sender's name, the topics it advertises as an endpoint of
// its own, and a snapshot of its routing table so the peer can seed
// forwarder entries without waiting for individual SUBSCRIBEs to arrive.
//----------------------------------------------------------------------

// PeerHelloMsg announces a peer's identity and routing state.
type PeerHelloMsg struct {
	MessageHeader
	NameLen    uint16        `order:"big"`
	Name       []byte        `size:"NameLen"`
	TopicCount uint16        `order:"big"`
	Advertised []*TopicEntry `size:"TopicCount"`
	RouteCount uint16        `order:"big"`
	Routes     []*RouteEntry `size:"RouteCount"`
}

// NewPeerHelloMsg creates a HELLO for the given name, advertised topics
// and routing snapshot.
func NewPeerHelloMsg(name string, advertised []string, routes []*RouteEntry) *PeerHelloMsg {
	topics := make([]*TopicEntry, len(advertised))
	for i, t := range advertised {
		topics[i] = NewTopicEntry(t)
	}
	m := &PeerHelloMsg{
		MessageHeader: MessageHeader{MsgType: uint16(enums.MSG_PEER_HELLO)},
		NameLen:       uint16(len(name)),
		Name:          []byte(name),
		TopicCount:    uint16(len(topics)),
		Advertised:    topics,
		RouteCount:    uint16(len(routes)),
		Routes:        routes,
	}
	m.MsgSize = m.size()
	return m
}

func (m *PeerHelloMsg) size() uint16 {
	n := 4 + 2 + len(m.Name) + 2
	for _, t := range m.Advertised {
		n += 2 + len(t.Name)
	}
	n += 2
	for _, r := range m.Routes {
		n += 2 + len(r.Topic) + util.OriginIDSize + 2
	}
	return uint16(n)
}

// Header returns the message header.
func (m *PeerHelloMsg) Header() *MessageHeader {
	return &m.MessageHeader
}

// Topics returns the advertised topics as plain strings.
func (m *PeerHelloMsg) Topics() []string {
	out := make([]string, len(m.Advertised))
	for i, t := range m.Advertised {
		out[i] = t.String()
	}
	return out
}

// String returns a human-readable representation of the message.
func (m *PeerHelloMsg) String() string {
	return fmt.Sprintf("PeerHello{name=%s,topics=%d,routes=%d}",
		string(m.Name), len(m.Advertised), len(m.Routes))
}

//----------------------------------------------------------------------
// PUBLISH
//----------------------------------------------------------------------

// Publish flags, per the wire protocol's PUBLISH payload.
const (
	FlagSelf        uint8 = 1 << 0 // local publisher also wants its own message delivered back
	FlagPeers       uint8 = 1 << 1 // fan out to remote peers
	FlagUnsolicited uint8 = 1 << 2 // send to every peer, bypassing forwarder selection
)

// PublishMsg carries a published value toward subscribers of Topic.
type PublishMsg struct {
	MessageHeader
	TopicLen uint16 `order:"big"`
	Topic    []byte `size:"TopicLen"`
	Flags    uint8  ``
	Payload  []byte `size:"*"`
}

// NewPublishMsg creates a PUBLISH message for the given topic and
// already-encoded payload.
func NewPublishMsg(topic string, payload []byte, flags uint8) *PublishMsg {
	m := &PublishMsg{
		MessageHeader: MessageHeader{MsgType: uint16(enums.MSG_PUBLISH)},
		TopicLen:      uint16(len(topic)),
		Topic:         []byte(topic),
		Flags:         flags,
		Payload:       payload,
	}
	m.MsgSize = uint16(4 + 2 + len(topic) + 1 + len(payload))
	return m
}

// Header returns the message header.
func (m *PublishMsg) Header() *MessageHeader {
	return &m.MessageHeader
}

// String returns a human-readable representation of the message.
func (m *PublishMsg) String() string {
	return fmt.Sprintf("Publish{topic=%s,size=%d}", string(m.Topic), len(m.Payload))
}

//----------------------------------------------------------------------
// SUBSCRIBE / UNSUBSCRIBE
//----------------------------------------------------------------------

// SubscribeMsg registers interest in Topic on behalf of Origin. TTL is
// the sender's hop distance to Origin (0 when the sender is Origin);
// each receiver records it as TTL+1 and re-advertises it with that value.
type SubscribeMsg struct {
	MessageHeader
	TopicLen uint16         `order:"big"`
	Topic    []byte         `size:"TopicLen"`
	Origin   *util.OriginID ``
	TTL      uint16         `order:"big"`
}

// NewSubscribeMsg creates a SUBSCRIBE message.
func NewSubscribeMsg(topic string, origin *util.OriginID, ttl uint16) *SubscribeMsg {
	m := &SubscribeMsg{
		MessageHeader: MessageHeader{MsgType: uint16(enums.MSG_SUBSCRIBE)},
		TopicLen:      uint16(len(topic)),
		Topic:         []byte(topic),
		Origin:        origin,
		TTL:           ttl,
	}
	m.MsgSize = uint16(4 + 2 + len(topic) + util.OriginIDSize + 2)
	return m
}

// Header returns the message header.
func (m *SubscribeMsg) Header() *MessageHeader {
	return &m.MessageHeader
}

// String returns a human-readable representation of the message.
func (m *SubscribeMsg) String() string {
	return fmt.Sprintf("Subscribe{topic=%s,origin=%s,ttl=%d}", string(m.Topic), m.Origin, m.TTL)
}

// UnsubscribeMsg withdraws a prior SUBSCRIBE for Origin on Topic.
type UnsubscribeMsg struct {
	MessageHeader
	TopicLen uint16         `order:"big"`
	Topic    []byte         `size:"TopicLen"`
	Origin   *util.OriginID ``
}

// NewUnsubscribeMsg creates an UNSUBSCRIBE message.
func NewUnsubscribeMsg(topic string, origin *util.OriginID) *UnsubscribeMsg {
	m := &UnsubscribeMsg{
		MessageHeader: MessageHeader{MsgType: uint16(enums.MSG_UNSUBSCRIBE)},
		TopicLen:      uint16(len(topic)),
		Topic:         []byte(topic),
		Origin:        origin,
	}
	m.MsgSize = uint16(4 + 2 + len(topic) + util.OriginIDSize)
	return m
}

// Header returns the message header.
func (m *UnsubscribeMsg) Header() *MessageHeader {
	return &m.MessageHeader
}

// String returns a human-readable representation of the message.
func (m *UnsubscribeMsg) String() string {
	return fmt.Sprintf("Unsubscribe{topic=%s,origin=%s}", string(m.Topic), m.Origin)
}

//----------------------------------------------------------------------
// STORE_CMD
//
// Carries an opaque, caller-encoded store command for a store id. The
// store coordinator sends its commands and events as PUBLISH messages
// on the store's topics, and the core's incoming dispatch does not
// handle STORE_CMD (it is logged as unhandled).
//----------------------------------------------------------------------

// StoreCmdMsg carries an opaque store command for StoreID.
type StoreCmdMsg struct {
	MessageHeader
	StoreIDLen uint16 `order:"big"`
	StoreID    []byte `size:"StoreIDLen"`
	Command    []byte `size:"*"`
}

// NewStoreCmdMsg creates a STORE_CMD message for the given store id and
// already-encoded command payload.
func NewStoreCmdMsg(storeID string, command []byte) *StoreCmdMsg {
	m := &StoreCmdMsg{
		MessageHeader: MessageHeader{MsgType: uint16(enums.MSG_STORE_CMD)},
		StoreIDLen:    uint16(len(storeID)),
		StoreID:       []byte(storeID),
		Command:       command,
	}
	m.MsgSize = uint16(4 + 2 + len(storeID) + len(command))
	return m
}

// Header returns the message header.
func (m *StoreCmdMsg) Header() *MessageHeader {
	return &m.MessageHeader
}

// String returns a human-readable representation of the message.
func (m *StoreCmdMsg) String() string {
	return fmt.Sprintf("StoreCmd{store=%s,size=%d}", string(m.StoreID), len(m.Command))
}
