package primitives

import (
	"crypto/sha256"

	"github.com/mr-tron/base58"
	"golang.org/x/crypto/ripemd160"

	"github.com/The-Sycorax/denaro/internal/errs"
)

// AddressLength is the nominal length of an encoded address: a
// 51-character string (the prefix character plus 50 base58 characters
// for the 37-byte pubkey‖checksum body). Base58 encoding of a fixed-width
// payload varies by a character or two depending on leading zero bytes, so
// parsing accepts AddressLength±addressLengthSlack and this constant
// documents the target width rather than gating parsing on exact equality.
const AddressLength = 51

const addressLengthSlack = 2

// addressChecksumLen is the number of trailing checksum bytes appended to
// the compressed public key before base58 encoding, sized so that encoding
// 1 (prefix, kept separate) + 33 (pubkey) + 4 (checksum) bytes of base58
// lands on AddressLength characters for the P-256 compressed point size
// used throughout this package.
const addressChecksumLen = 4

// mainnetPrefixes are the two recognised address-prefix characters.
const (
	AddressPrefixD = 'D'
	AddressPrefixE = 'E'
)

// addressChecksum computes the checksum appended to an address before
// base58 encoding: SHA-256 of the prefix and payload, then ripemd160 of
// that digest, truncated to addressChecksumLen bytes. This address scheme
// keeps the full compressed public key in the payload (rather than
// hashing it away, as daglabs-btcd's util/address.go Hash160-based
// AddressPubKeyHash does) since validation here needs to recover the
// spender's public key straight from the address with no separate pubkey
// field on the transaction; ripemd160 still does the same condensing job
// daglabs-btcd's address package uses it for, just over the checksum
// rather than the payload.
func addressChecksum(prefix byte, payload []byte) []byte {
	buf := make([]byte, 0, 1+len(payload))
	buf = append(buf, prefix)
	buf = append(buf, payload...)
	sha := sha256.Sum256(buf)
	r := ripemd160.New()
	r.Write(sha[:])
	digest := r.Sum(nil)
	return digest[:addressChecksumLen]
}

// EncodeAddress renders a public key as an address string: the prefix
// character followed by base58(compressed pubkey ‖ checksum).
func EncodeAddress(pub *PublicKey, prefix byte) (string, error) {
	if prefix != AddressPrefixD && prefix != AddressPrefixE {
		return "", errs.New(errs.ErrMalformedInput, "invalid address prefix %q", prefix)
	}
	payload := pub.CompressedBytes()
	checksum := addressChecksum(prefix, payload)
	body := append(append([]byte{}, payload...), checksum...)
	encoded := string(prefix) + base58.Encode(body)
	return encoded, nil
}

// Address is a decoded, validated address: a prefix byte plus the
// compressed public key it names.
type Address struct {
	Prefix    byte
	PublicKey *PublicKey
	Raw       string
}

// ParseAddress validates and decodes an address string.
func ParseAddress(s string) (*Address, error) {
	if d := len(s) - AddressLength; d > addressLengthSlack || d < -addressLengthSlack {
		return nil, errs.New(errs.ErrMalformedInput, "address %q has wrong length %d, want ~%d", s, len(s), AddressLength)
	}
	prefix := s[0]
	if prefix != AddressPrefixD && prefix != AddressPrefixE {
		return nil, errs.New(errs.ErrMalformedInput, "address %q has unknown prefix %q", s, prefix)
	}
	body, err := base58.Decode(s[1:])
	if err != nil {
		return nil, errs.New(errs.ErrMalformedInput, "address %q is not valid base58: %s", s, err)
	}
	if len(body) != 33+addressChecksumLen {
		return nil, errs.New(errs.ErrMalformedInput, "address %q decodes to wrong length %d", s, len(body))
	}
	payload, checksum := body[:33], body[33:]
	want := addressChecksum(prefix, payload)
	if string(checksum) != string(want) {
		return nil, errs.New(errs.ErrMalformedInput, "address %q has invalid checksum", s)
	}
	pub, err := PublicKeyFromCompressed(payload)
	if err != nil {
		return nil, err
	}
	return &Address{Prefix: prefix, PublicKey: pub, Raw: s}, nil
}

// String returns the canonical address string.
func (a *Address) String() string { return a.Raw }
