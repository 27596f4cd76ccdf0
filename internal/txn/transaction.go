// Package txn implements the transaction codec and validator (C2): the
// wire type, its canonical encode/decode, and the five-stage validation
// pipeline against a UTXO snapshot. Structured the way daglabs-btcd splits
// wire.MsgTx (encode/decode) from blockdag/validate.go (rules) into
// separate concerns within one package, since here both are small enough
// to share a package without daglabs-btcd's module-per-concern split.
package txn

import (
	"bytes"

	"github.com/The-Sycorax/denaro/internal/amount"
	"github.com/The-Sycorax/denaro/internal/errs"
	"github.com/The-Sycorax/denaro/internal/primitives"
	"github.com/The-Sycorax/denaro/internal/wirecodec"
)

// MaxInputs and MaxOutputs bound a transaction's shape.
const (
	MaxInputs  = 255
	MaxOutputs = 255
)

// Outpoint references a previously produced output.
type Outpoint struct {
	TxHash primitives.Hash
	Index  uint8
}

// TxInput is a reference to a previously produced output plus the
// signature authorising its spend.
type TxInput struct {
	Outpoint  Outpoint
	Signature primitives.Signature
}

// TxOutput pays an amount to an address.
type TxOutput struct {
	Address string
	Amount  amount.Amount
}

// Transaction is the wire + validation unit of the ledger.
type Transaction struct {
	Version  uint8
	Inputs   []TxInput
	Outputs  []TxOutput
	Message  []byte
	Fees     amount.Amount
}

// IsCoinbase reports whether t is a coinbase transaction: zero inputs.
func (t *Transaction) IsCoinbase() bool {
	return len(t.Inputs) == 0
}

// signingPreimage returns the canonical encoding used as the signature
// digest: every field except the per-input signatures.
func (t *Transaction) signingPreimage() []byte {
	var buf bytes.Buffer
	w := wirecodec.NewWriter(&buf)
	w.Uint8(t.Version)
	w.Uint8(uint8(len(t.Inputs)))
	for _, in := range t.Inputs {
		w.RawBytes(in.Outpoint.TxHash[:])
		w.Uint8(in.Outpoint.Index)
	}
	w.Uint8(uint8(len(t.Outputs)))
	for _, out := range t.Outputs {
		w.Bytes([]byte(out.Address))
		w.Int64(out.Amount.Units())
	}
	w.Bytes(t.Message)
	w.Int64(t.Fees.Units())
	return buf.Bytes()
}

// SigningDigest returns the SHA-256 digest inputs are signed over, per
// rule 3 ("excludes all signatures").
func (t *Transaction) SigningDigest() primitives.Hash {
	return primitives.Sum256(t.signingPreimage())
}

// Encode renders the canonical, total, round-trippable wire encoding of t:
// tx_hash is SHA-256 of this deterministic encoding.
func (t *Transaction) Encode() []byte {
	var buf bytes.Buffer
	w := wirecodec.NewWriter(&buf)
	w.Uint8(t.Version)
	w.Uint8(uint8(len(t.Inputs)))
	for _, in := range t.Inputs {
		w.RawBytes(in.Outpoint.TxHash[:])
		w.Uint8(in.Outpoint.Index)
		w.Bytes(in.Signature.Bytes())
	}
	w.Uint8(uint8(len(t.Outputs)))
	for _, out := range t.Outputs {
		w.Bytes([]byte(out.Address))
		w.Int64(out.Amount.Units())
	}
	w.Bytes(t.Message)
	w.Int64(t.Fees.Units())
	return buf.Bytes()
}

// Hash returns the canonical transaction hash: SHA-256 of the full encoded
// transaction, used as the reference value for inputs elsewhere.
func (t *Transaction) Hash() primitives.Hash {
	return primitives.Sum256(t.Encode())
}

// Decode parses a canonical transaction encoding produced by Encode.
func Decode(data []byte) (*Transaction, error) {
	r := wirecodec.NewReader(bytes.NewReader(data))
	t := &Transaction{}
	t.Version = r.Uint8()
	numIn := r.Uint8()
	if numIn > MaxInputs {
		return nil, errs.New(errs.ErrInvalidStructure, "transaction has %d inputs, max %d", numIn, MaxInputs)
	}
	t.Inputs = make([]TxInput, numIn)
	for i := range t.Inputs {
		var h primitives.Hash
		copy(h[:], r.ReadRaw(primitives.HashSize))
		idx := r.Uint8()
		sigBytes := r.Bytes()
		if r.Err() != nil {
			return nil, r.Err()
		}
		sig, err := primitives.SignatureFromBytes(sigBytes)
		if err != nil {
			return nil, err
		}
		t.Inputs[i] = TxInput{Outpoint: Outpoint{TxHash: h, Index: idx}, Signature: sig}
	}
	numOut := r.Uint8()
	if numOut > MaxOutputs {
		return nil, errs.New(errs.ErrInvalidStructure, "transaction has %d outputs, max %d", numOut, MaxOutputs)
	}
	t.Outputs = make([]TxOutput, numOut)
	for i := range t.Outputs {
		addrBytes := r.Bytes()
		units := r.Int64()
		if r.Err() != nil {
			return nil, r.Err()
		}
		a, err := amount.FromSmallestUnits(units)
		if err != nil {
			return nil, err
		}
		t.Outputs[i] = TxOutput{Address: string(addrBytes), Amount: a}
	}
	t.Message = r.Bytes()
	feeUnits := r.Int64()
	if r.Err() != nil {
		return nil, r.Err()
	}
	fee, err := amount.FromSmallestUnits(feeUnits)
	if err != nil {
		return nil, err
	}
	t.Fees = fee
	if len(t.Outputs) == 0 {
		return nil, errs.New(errs.ErrInvalidStructure, "transaction has no outputs")
	}
	return t, nil
}
