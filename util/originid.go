// This file is part of meshbus, a peer-to-peer publish/subscribe broker.
//
// Adapted from gnunet-go's util/peer.go (PeerID: a 32-byte binary
// identifier with a base32 string form). A meshbus origin id only needs
// to be unique within the overlay, not a verifiable public key, so it
// is shrunk to 16 bytes ("128-bit node id" per the wire protocol) and
// stripped of its signature-related siblings (PeerSignature,
// PeerEphPublicKey), which belonged to GNUnet's authenticated transport
// and have no place here (no authentication/encryption at this layer).

package util

import "bytes"

// OriginIDSize is the length, in bytes, of an OriginID.
const OriginIDSize = 16

// OriginID is the endpoint-unique identifier of the endpoint that owns
// a subscription. It is carried as the `origin` half of a subscription
// id and as the `origin_id` field of SUBSCRIBE/UNSUBSCRIBE messages.
type OriginID struct {
	Bits []byte `size:"16"`
}

// NewOriginID builds an origin id from raw bytes, padding or truncating
// to OriginIDSize.
func NewOriginID(data []byte) *OriginID {
	o := &OriginID{Bits: make([]byte, OriginIDSize)}
	if data != nil {
		CopyBlock(o.Bits, data)
	}
	return o
}

// Key returns a fixed-size, comparable representation of the id
// suitable for use as a map key.
func (o *OriginID) Key() [OriginIDSize]byte {
	var k [OriginIDSize]byte
	copy(k[:], o.Bits)
	return k
}

// Equals returns true if two origin ids match.
func (o *OriginID) Equals(other *OriginID) bool {
	if o == nil || other == nil {
		return o == other
	}
	return bytes.Equal(o.Bits, other.Bits)
}

// String returns a human-readable (base32) representation of the id.
func (o *OriginID) String() string {
	if o == nil {
		return "<nil>"
	}
	return EncodeBinaryToString(o.Bits)
}

// String8 returns an abbreviated representation suitable for log lines.
func (o *OriginID) String8() string {
	s := o.String()
	if len(s) > 8 {
		return s[:8]
	}
	return s
}
