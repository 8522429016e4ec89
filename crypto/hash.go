// This file is part of meshbus, a peer-to-peer publish/subscribe broker.
//
// Adapted from gnunet-go's crypto/hash.go: same SHA-512 HashCode type,
// used here as the basis for deriving an endpoint's origin id from its
// public key (see core/identity.go) rather than for GNS block hashing.

package crypto

import (
	"bytes"
	"crypto/sha512"

	"meshbus/util"
)

// HashCode is the result of a 512-bit hash function (SHA-512).
type HashCode struct {
	Bits []byte `size:"64"`
}

// Equals tests if two hash results are equal.
func (hc *HashCode) Equals(n *HashCode) bool {
	return bytes.Equal(hc.Bits, n.Bits)
}

// NewHashCode creates a new (initialized) hash value.
func NewHashCode(buf []byte) *HashCode {
	hc := &HashCode{
		Bits: make([]byte, 64),
	}
	if buf != nil {
		util.CopyBlock(hc.Bits, buf)
	}
	return hc
}

// Hash returns the SHA-512 hash value of a given blob.
func Hash(data []byte) *HashCode {
	val := sha512.Sum512(data)
	return &HashCode{
		Bits: util.Clone(val[:]),
	}
}
