package peer

import (
	"encoding/hex"
	"strconv"
	"time"

	"github.com/The-Sycorax/denaro/internal/errs"
	"github.com/The-Sycorax/denaro/internal/primitives"
)

// EnvelopeHeaders names the five headers an authenticated peer-to-peer
// request carries.
type EnvelopeHeaders struct {
	NodeID      string
	NodePubkey  string
	NodeVersion string
	Timestamp   string
	Signature   string
}

// MaxTimestampSkewSeconds is the ±30s window a signed request's timestamp
// must fall within.
const MaxTimestampSkewSeconds = 30

// signingMessage builds method ‖ path ‖ timestamp ‖ body_sha256, the
// preimage the envelope signature covers.
func signingMessage(method, path string, timestamp int64, body []byte) primitives.Hash {
	bodyDigest := primitives.Sum256(body)
	preimage := method + path + strconv.FormatInt(timestamp, 10) + hex.EncodeToString(bodyDigest[:])
	return primitives.Sum256([]byte(preimage))
}

// Sign produces the envelope headers for an outbound authenticated
// request from id.
func Sign(id *Identity, nodeVersion, method, path string, body []byte, now time.Time) (EnvelopeHeaders, error) {
	ts := now.Unix()
	digest := signingMessage(method, path, ts, body)
	sig, err := primitives.Sign(id.Private, digest)
	if err != nil {
		return EnvelopeHeaders{}, err
	}
	return EnvelopeHeaders{
		NodeID:      id.NodeID,
		NodePubkey:  id.PublicKeyHex(),
		NodeVersion: nodeVersion,
		Timestamp:   strconv.FormatInt(ts, 10),
		Signature:   hex.EncodeToString(sig.Bytes()),
	}, nil
}

// Verify checks an inbound envelope against the request it was attached
// to: signature must verify and |now-ts| <= 30s, against a pubkey whose
// SHA-256 matches x-node-id.
func Verify(h EnvelopeHeaders, method, path string, body []byte, now time.Time) error {
	pubBytes, err := hex.DecodeString(h.NodePubkey)
	if err != nil {
		return errs.New(errs.ErrPeerUnauthenticated, "x-node-pubkey is not valid hex")
	}
	pub, err := primitives.PublicKeyFromCompressed(pubBytes)
	if err != nil {
		return errs.New(errs.ErrPeerUnauthenticated, "x-node-pubkey is malformed: %s", err)
	}
	digest := primitives.Sum256(pubBytes)
	if hex.EncodeToString(digest[:]) != h.NodeID {
		return errs.New(errs.ErrPeerUnauthenticated, "x-node-id does not match SHA-256(pubkey)")
	}

	ts, err := strconv.ParseInt(h.Timestamp, 10, 64)
	if err != nil {
		return errs.New(errs.ErrPeerUnauthenticated, "x-timestamp is not a valid integer")
	}
	skew := now.Unix() - ts
	if skew < 0 {
		skew = -skew
	}
	if skew > MaxTimestampSkewSeconds {
		return errs.New(errs.ErrPeerUnauthenticated, "timestamp skew %ds exceeds the %ds window", skew, MaxTimestampSkewSeconds)
	}

	sigBytes, err := hex.DecodeString(h.Signature)
	if err != nil {
		return errs.New(errs.ErrPeerUnauthenticated, "x-signature is not valid hex")
	}
	sig, err := primitives.SignatureFromBytes(sigBytes)
	if err != nil {
		return errs.New(errs.ErrPeerUnauthenticated, "x-signature is malformed: %s", err)
	}

	expected := signingMessage(method, path, ts, body)
	if !primitives.Verify(pub, expected, sig) {
		return errs.New(errs.ErrPeerUnauthenticated, "envelope signature does not verify")
	}
	return nil
}
