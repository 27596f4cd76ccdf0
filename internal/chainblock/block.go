// Package chainblock implements the block codec and hasher (C3): the wire
// type, canonical content encoding, block hashing, and the
// fractional-difficulty predicate. Mirrors daglabs-btcd's split of a block
// into header-ish fields (wire.BlockHeader) and the body (transactions),
// scaled down to the single-block-at-a-time shape this ledger uses instead
// of a DAG.
package chainblock

import (
	"bytes"

	"github.com/The-Sycorax/denaro/internal/amount"
	"github.com/The-Sycorax/denaro/internal/errs"
	"github.com/The-Sycorax/denaro/internal/primitives"
	"github.com/The-Sycorax/denaro/internal/txn"
	"github.com/The-Sycorax/denaro/internal/wirecodec"
)

// Size bounds.
const (
	MaxRawBlockSize  = 2 << 20        // 2 MiB
	MaxHexContentLen = 4 << 20        // 4 MiB of hex content
	MaxTxDataHexSize = 1_900_000      // ~1.9 MB hex, the portion the mempool block template fills
)

// GenesisPreviousHash is the fixed predecessor hash sentinel for height 1
// under consensus version 0.
var GenesisPreviousHash = primitives.Hash{}

// Block is the wire + validation unit of the chain.
type Block struct {
	ID           int64
	PreviousHash primitives.Hash
	MinerAddress string
	Nonce        uint64
	Difficulty   Difficulty
	Reward       amount.Amount
	Timestamp    int64
	Transactions []*txn.Transaction

	hash      primitives.Hash
	hashValid bool
}

// Content returns the canonical byte string that is hashed to produce the
// block hash: previous_hash ‖ merkle_like(tx_hashes) ‖ miner_address ‖
// timestamp ‖ difficulty ‖ nonce.
func (b *Block) Content() []byte {
	txHashes := make([]primitives.Hash, len(b.Transactions))
	for i, tx := range b.Transactions {
		txHashes[i] = tx.Hash()
	}
	root := merkleRoot(txHashes)

	var buf bytes.Buffer
	w := wirecodec.NewWriter(&buf)
	w.RawBytes(b.PreviousHash[:])
	w.RawBytes(root[:])
	w.Bytes([]byte(b.MinerAddress))
	w.Int64(b.Timestamp)
	w.Uint32(uint32(b.Difficulty))
	w.Uint64(b.Nonce)
	return buf.Bytes()
}

// Hash returns SHA-256(Content()), caching the result since Content is
// only a function of immutable fields once a block is fully assembled.
func (b *Block) Hash() primitives.Hash {
	if b.hashValid {
		return b.hash
	}
	b.hash = primitives.Sum256(b.Content())
	b.hashValid = true
	return b.hash
}

// invalidateHash must be called whenever a mining loop mutates Nonce or
// Timestamp between proof-of-work attempts.
func (b *Block) invalidateHash() { b.hashValid = false }

// SetNonce updates the nonce for another proof-of-work attempt.
func (b *Block) SetNonce(nonce uint64) {
	b.Nonce = nonce
	b.invalidateHash()
}

// SetTimestamp updates the timestamp for another proof-of-work attempt.
func (b *Block) SetTimestamp(ts int64) {
	b.Timestamp = ts
	b.invalidateHash()
}

// SatisfiesPoW evaluates the fractional-difficulty predicate against
// this block's previous block's hash.
func (b *Block) SatisfiesPoW(previousHash primitives.Hash) bool {
	return SatisfiesPredicate(b.Hash().String(), previousHash.String(), b.Difficulty)
}

// Encode renders the full block (header fields + transactions) as a
// canonical, round-trippable byte string.
func (b *Block) Encode() ([]byte, error) {
	var buf bytes.Buffer
	w := wirecodec.NewWriter(&buf)
	w.Int64(b.ID)
	w.RawBytes(b.PreviousHash[:])
	w.Bytes([]byte(b.MinerAddress))
	w.Uint64(b.Nonce)
	w.Uint32(uint32(b.Difficulty))
	w.Int64(b.Reward.Units())
	w.Int64(b.Timestamp)
	w.Uint32(uint32(len(b.Transactions)))
	for _, tx := range b.Transactions {
		w.Bytes(tx.Encode())
	}
	out := buf.Bytes()
	if len(out) > MaxRawBlockSize {
		return nil, errs.New(errs.ErrBlockTooLarge, "encoded block is %d bytes, max %d", len(out), MaxRawBlockSize)
	}
	return out, nil
}

// Decode parses a canonical block encoding produced by Encode.
func Decode(data []byte) (*Block, error) {
	if len(data) > MaxRawBlockSize {
		return nil, errs.New(errs.ErrBlockTooLarge, "block payload is %d bytes, max %d", len(data), MaxRawBlockSize)
	}
	r := wirecodec.NewReader(bytes.NewReader(data))
	b := &Block{}
	b.ID = r.Int64()
	copy(b.PreviousHash[:], r.ReadRaw(primitives.HashSize))
	b.MinerAddress = string(r.Bytes())
	b.Nonce = r.Uint64()
	b.Difficulty = Difficulty(r.Uint32())
	rewardUnits := r.Int64()
	b.Timestamp = r.Int64()
	numTx := r.Uint32()
	if r.Err() != nil {
		return nil, r.Err()
	}
	reward, err := amount.FromSmallestUnits(rewardUnits)
	if err != nil {
		return nil, err
	}
	b.Reward = reward

	b.Transactions = make([]*txn.Transaction, numTx)
	hexLen := 0
	for i := range b.Transactions {
		txBytes := r.Bytes()
		if r.Err() != nil {
			return nil, r.Err()
		}
		hexLen += len(txBytes) * 2
		tx, err := txn.Decode(txBytes)
		if err != nil {
			return nil, err
		}
		b.Transactions[i] = tx
	}
	if hexLen > MaxTxDataHexSize {
		return nil, errs.New(errs.ErrBlockTooLarge, "on-block transaction data is %d hex bytes, max %d", hexLen, MaxTxDataHexSize)
	}
	return b, nil
}
