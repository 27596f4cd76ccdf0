package chainblock

import "github.com/The-Sycorax/denaro/internal/primitives"

// merkleRoot computes the "merkle_like" commitment to a block's transaction
// hashes: a binary hash tree with the last element duplicated
// on odd levels, the same shape daglabs-btcd's BuildHashMerkleTreeStore
// (blockdag/mining.go callers) builds over transaction hashes.
func merkleRoot(txHashes []primitives.Hash) primitives.Hash {
	if len(txHashes) == 0 {
		return primitives.Hash{}
	}
	level := make([]primitives.Hash, len(txHashes))
	copy(level, txHashes)
	for len(level) > 1 {
		if len(level)%2 == 1 {
			level = append(level, level[len(level)-1])
		}
		next := make([]primitives.Hash, len(level)/2)
		for i := range next {
			h := primitives.NewHasher()
			h.Write(level[2*i][:])
			h.Write(level[2*i+1][:])
			next[i] = h.Sum()
		}
		level = next
	}
	return level[0]
}
