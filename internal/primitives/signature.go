package primitives

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/hmac"
	"crypto/sha256"
	"io"
	"math/big"

	"github.com/The-Sycorax/denaro/internal/errs"
)

// curve is the elliptic curve addresses and signatures are defined over:
// NIST P-256.
func curve() elliptic.Curve { return elliptic.P256() }

// PrivateKey wraps a P-256 scalar.
type PrivateKey struct {
	key *ecdsa.PrivateKey
}

// PublicKey wraps a P-256 point.
type PublicKey struct {
	key *ecdsa.PublicKey
}

// GenerateKey creates a new P-256 keypair, used once at node identity
// bootstrap (C7) or by tests constructing fixture wallets.
func GenerateKey(rand io.Reader) (*PrivateKey, error) {
	key, err := ecdsa.GenerateKey(curve(), rand)
	if err != nil {
		return nil, errs.New(errs.ErrInternal, "key generation failed: %s", err)
	}
	return &PrivateKey{key: key}, nil
}

// Public returns the public half of the keypair.
func (p *PrivateKey) Public() *PublicKey {
	return &PublicKey{key: &p.key.PublicKey}
}

// Bytes returns the 32-byte big-endian scalar, the form persisted at rest
// for node identity.
func (p *PrivateKey) Bytes() []byte {
	out := make([]byte, 32)
	d := p.key.D.Bytes()
	copy(out[32-len(d):], d)
	return out
}

// PrivateKeyFromBytes reconstructs a PrivateKey from its 32-byte scalar.
func PrivateKeyFromBytes(b []byte) (*PrivateKey, error) {
	if len(b) != 32 {
		return nil, errs.New(errs.ErrMalformedInput, "private key must be 32 bytes, got %d", len(b))
	}
	c := curve()
	d := new(big.Int).SetBytes(b)
	x, y := c.ScalarBaseMult(b)
	return &PrivateKey{key: &ecdsa.PrivateKey{
		PublicKey: ecdsa.PublicKey{Curve: c, X: x, Y: y},
		D:         d,
	}}, nil
}

// CompressedBytes returns the SEC1 compressed encoding of the public key:
// a single parity-prefix byte followed by the 32-byte X coordinate.
func (pk *PublicKey) CompressedBytes() []byte {
	out := make([]byte, 33)
	if pk.key.Y.Bit(0) == 0 {
		out[0] = 0x02
	} else {
		out[0] = 0x03
	}
	xBytes := pk.key.X.Bytes()
	copy(out[33-len(xBytes):], xBytes)
	return out
}

// PublicKeyFromCompressed decompresses a 33-byte SEC1 point back into a
// PublicKey, rejecting malformed or off-curve input.
func PublicKeyFromCompressed(b []byte) (*PublicKey, error) {
	if len(b) != 33 || (b[0] != 0x02 && b[0] != 0x03) {
		return nil, errs.New(errs.ErrMalformedInput, "invalid compressed public key encoding")
	}
	c := curve().Params()
	x := new(big.Int).SetBytes(b[1:])
	if x.Cmp(c.P) >= 0 {
		return nil, errs.New(errs.ErrMalformedInput, "public key x out of field range")
	}
	// y^2 = x^3 - 3x + b (mod p)
	y2 := new(big.Int).Exp(x, big.NewInt(3), c.P)
	threeX := new(big.Int).Mul(x, big.NewInt(3))
	y2.Sub(y2, threeX)
	y2.Add(y2, c.B)
	y2.Mod(y2, c.P)
	y := new(big.Int).ModSqrt(y2, c.P)
	if y == nil {
		return nil, errs.New(errs.ErrMalformedInput, "public key is not on curve")
	}
	if y.Bit(0) != uint(b[0]&1) {
		y.Sub(c.P, y)
	}
	if !c.IsOnCurve(x, y) {
		return nil, errs.New(errs.ErrMalformedInput, "public key is not on curve")
	}
	return &PublicKey{key: &ecdsa.PublicKey{Curve: curve(), X: x, Y: y}}, nil
}

// Signature is a deterministic, low-s-normalised ECDSA signature.
type Signature struct {
	R, S *big.Int
}

// Bytes returns the fixed-width (32+32 byte) big-endian encoding of the
// signature, used in the transaction and envelope wire formats.
func (s Signature) Bytes() []byte {
	out := make([]byte, 64)
	rBytes := s.R.Bytes()
	sBytes := s.S.Bytes()
	copy(out[32-len(rBytes):32], rBytes)
	copy(out[64-len(sBytes):64], sBytes)
	return out
}

// SignatureFromBytes parses a 64-byte fixed-width signature.
func SignatureFromBytes(b []byte) (Signature, error) {
	if len(b) != 64 {
		return Signature{}, errs.New(errs.ErrMalformedInput, "signature must be 64 bytes, got %d", len(b))
	}
	return Signature{
		R: new(big.Int).SetBytes(b[:32]),
		S: new(big.Int).SetBytes(b[32:]),
	}, nil
}

// Sign produces a deterministic (RFC 6979) low-s signature over digest
// using the given private key.
func Sign(priv *PrivateKey, digest Hash) (Signature, error) {
	c := curve().Params()
	k := rfc6979Nonce(c.N, priv.key.D, digest[:])
	r, s, err := signWithNonce(priv.key, digest[:], k)
	if err != nil {
		return Signature{}, errs.New(errs.ErrInternal, "sign failed: %s", err)
	}
	return Signature{R: r, S: canonicalLowS(s, c.N)}, nil
}

// Verify checks sig against digest under pub.
func Verify(pub *PublicKey, digest Hash, sig Signature) bool {
	if sig.R == nil || sig.S == nil || sig.R.Sign() <= 0 || sig.S.Sign() <= 0 {
		return false
	}
	c := curve().Params()
	if sig.S.Cmp(new(big.Int).Rsh(c.N, 1)) > 0 {
		// Reject non-canonical (high-s) signatures: "deterministic
		// low-s signatures" makes low-s the only valid encoding.
		return false
	}
	return ecdsa.Verify(pub.key, digest[:], sig.R, sig.S)
}

func canonicalLowS(s, n *big.Int) *big.Int {
	half := new(big.Int).Rsh(n, 1)
	if s.Cmp(half) > 0 {
		return new(big.Int).Sub(n, s)
	}
	return s
}

// signWithNonce reimplements the core of ecdsa.Sign with an explicit nonce
// so that Sign above can supply an RFC 6979 deterministic k instead of a
// fresh random one each call.
func signWithNonce(priv *ecdsa.PrivateKey, hash []byte, k *big.Int) (r, s *big.Int, err error) {
	c := priv.Curve.Params()
	kInv := new(big.Int).ModInverse(k, c.N)
	r, _ = priv.Curve.ScalarBaseMult(k.Bytes())
	r.Mod(r, c.N)
	if r.Sign() == 0 {
		return nil, nil, errs.New(errs.ErrInternal, "zero r from nonce")
	}
	e := hashToInt(hash, c)
	s = new(big.Int).Mul(priv.D, r)
	s.Add(s, e)
	s.Mul(s, kInv)
	s.Mod(s, c.N)
	if s.Sign() == 0 {
		return nil, nil, errs.New(errs.ErrInternal, "zero s from nonce")
	}
	return r, s, nil
}

func hashToInt(hash []byte, c *elliptic.CurveParams) *big.Int {
	orderBits := c.N.BitLen()
	orderBytes := (orderBits + 7) / 8
	if len(hash) > orderBytes {
		hash = hash[:orderBytes]
	}
	ret := new(big.Int).SetBytes(hash)
	excess := len(hash)*8 - orderBits
	if excess > 0 {
		ret.Rsh(ret, uint(excess))
	}
	return ret
}

// rfc6979Nonce deterministically derives the per-signature nonce k from the
// private key and message digest (RFC 6979, HMAC-DRBG variant, specialised
// to SHA-256) so that Sign is reproducible for a given (key, digest) pair.
func rfc6979Nonce(order, priv *big.Int, hash []byte) *big.Int {
	qlen := order.BitLen()
	holen := sha256.Size
	rolen := (qlen + 7) / 8

	bx := append(int2octets(priv, rolen), bits2octets(hash, order, rolen)...)

	v := bytesRepeat(0x01, holen)
	k := make([]byte, holen)

	mac := hmac.New(sha256.New, k)
	mac.Write(v)
	mac.Write([]byte{0x00})
	mac.Write(bx)
	k = mac.Sum(nil)

	mac = hmac.New(sha256.New, k)
	mac.Write(v)
	v = mac.Sum(nil)

	mac = hmac.New(sha256.New, k)
	mac.Write(v)
	mac.Write([]byte{0x01})
	mac.Write(bx)
	k = mac.Sum(nil)

	mac = hmac.New(sha256.New, k)
	mac.Write(v)
	v = mac.Sum(nil)

	for {
		var t []byte
		for len(t) < rolen {
			mac = hmac.New(sha256.New, k)
			mac.Write(v)
			v = mac.Sum(nil)
			t = append(t, v...)
		}
		candidate := bits2int(t, qlen)
		if candidate.Sign() > 0 && candidate.Cmp(order) < 0 {
			return candidate
		}
		mac = hmac.New(sha256.New, k)
		mac.Write(v)
		mac.Write([]byte{0x00})
		k = mac.Sum(nil)

		mac = hmac.New(sha256.New, k)
		mac.Write(v)
		v = mac.Sum(nil)
	}
}

func bytesRepeat(b byte, n int) []byte {
	out := make([]byte, n)
	for i := range out {
		out[i] = b
	}
	return out
}

func int2octets(v *big.Int, rolen int) []byte {
	out := v.Bytes()
	if len(out) < rolen {
		padded := make([]byte, rolen)
		copy(padded[rolen-len(out):], out)
		return padded
	}
	if len(out) > rolen {
		return out[len(out)-rolen:]
	}
	return out
}

func bits2int(b []byte, qlen int) *big.Int {
	v := new(big.Int).SetBytes(b)
	blen := len(b) * 8
	if blen > qlen {
		v.Rsh(v, uint(blen-qlen))
	}
	return v
}

func bits2octets(b []byte, order *big.Int, rolen int) []byte {
	z1 := bits2int(b, order.BitLen())
	z2 := new(big.Int).Sub(z1, order)
	if z2.Sign() < 0 {
		return int2octets(z1, rolen)
	}
	return int2octets(z2, rolen)
}
