// This file is part of meshbus, a peer-to-peer publish/subscribe broker.
//
// Adapted from gnunet-go's core/peer.go (NewLocalPeer: derive an Ed25519
// keypair from a base64 seed in config). meshbus only needs the keypair
// to mint a stable origin id, not to sign or verify anything (no
// authentication/encryption at this layer), so the ephemeral-key
// negotiation and HELLO-signing methods that file carried are dropped.

package core

import (
	"crypto/rand"
	"encoding/base64"

	"meshbus/crypto"
	"meshbus/util"

	"github.com/bfix/gospel/crypto/ed25519"
	"github.com/bfix/gospel/logger"
)

// Identity is the local endpoint's long-term key material and derived
// origin id.
type Identity struct {
	prv    *ed25519.PrivateKey
	pub    *ed25519.PublicKey
	origin *util.OriginID
}

// NewIdentity derives an identity from a base64-encoded seed, or
// generates a random keypair if seed is empty.
func NewIdentity(seed string) (id *Identity, err error) {
	id = new(Identity)
	if len(seed) == 0 {
		var pub *ed25519.PublicKey
		pub, id.prv, err = ed25519.GenerateKey(rand.Reader)
		if err != nil {
			return nil, err
		}
		id.pub = pub
	} else {
		var data []byte
		if data, err = base64.StdEncoding.DecodeString(seed); err != nil {
			return nil, err
		}
		id.prv = ed25519.NewPrivateKeyFromSeed(data)
		id.pub = id.prv.Public()
	}
	h := crypto.Hash(id.pub.Bytes())
	id.origin = util.NewOriginID(h.Bits)
	logger.Printf(logger.INFO, "[identity] origin id %s", id.origin)
	return id, nil
}

// Origin returns the endpoint's origin id, used as the `origin` half of
// subscription ids and the `origin_id` field on SUBSCRIBE/UNSUBSCRIBE.
func (id *Identity) Origin() *util.OriginID {
	return id.origin
}

// PublicKey returns the endpoint's public key.
func (id *Identity) PublicKey() *ed25519.PublicKey {
	return id.pub
}
