// Package peer implements the peer registry & identity engine (C7): node
// keypair identity, the signed-request envelope, reputation scoring with
// ban state, and per-endpoint rate limiting. Grounded in daglabs-btcd's
// addrmgr (LRU-by-last-seen address book) and server/p2p ban-score
// handling (AddBanScoreAndPushRejectMsg), adapted from a ban-score-per-
// misbehaviour-type model to a single integer reputation score.
package peer

import (
	"crypto/rand"
	"encoding/hex"

	"github.com/The-Sycorax/denaro/internal/primitives"
)

// Identity is this node's stable cryptographic identity.
type Identity struct {
	Private *primitives.PrivateKey
	Public  *primitives.PublicKey
	NodeID  string
}

// NewIdentity generates a fresh P-256 keypair and derives NodeID =
// SHA256(pubkey)[:32] hex (64 hex chars truncated to the first 32 bytes'
// worth, i.e. the full digest since SHA-256 output is already 32 bytes).
func NewIdentity() (*Identity, error) {
	priv, err := primitives.GenerateKey(rand.Reader)
	if err != nil {
		return nil, err
	}
	return identityFromKey(priv), nil
}

// LoadIdentity reconstructs an Identity from a previously persisted
// private key (raw bytes, as would be read from an encrypted-at-rest
// store; encryption itself is out of core scope).
func LoadIdentity(privBytes []byte) (*Identity, error) {
	priv, err := primitives.PrivateKeyFromBytes(privBytes)
	if err != nil {
		return nil, err
	}
	return identityFromKey(priv), nil
}

func identityFromKey(priv *primitives.PrivateKey) *Identity {
	pub := priv.Public()
	digest := primitives.Sum256(pub.CompressedBytes())
	return &Identity{
		Private: priv,
		Public:  pub,
		NodeID:  hex.EncodeToString(digest[:]),
	}
}

// PublicKeyHex renders the compressed public key as lowercase hex, the
// wire form carried in x-node-pubkey.
func (id *Identity) PublicKeyHex() string {
	return hex.EncodeToString(id.Public.CompressedBytes())
}
