// Package consensus implements the chain & consensus engine (C6): tip
// tracking, fork-choice, submit-block, and reorganisation. Grounded in
// daglabs-btcd's blockdag/process.go (ProcessBlock's accept/orphan/reorg
// dispatch) and blockdag/dag.go (connectBlock / reorganizeChain), scaled
// from daglabs-btcd's DAG/GHOSTDAG model down to a single canonical chain
// with simple height + cumulative-work fork-choice.
package consensus

import (
	"math"
	"sync"

	"github.com/The-Sycorax/denaro/internal/chainblock"
	"github.com/The-Sycorax/denaro/internal/errs"
	"github.com/The-Sycorax/denaro/internal/primitives"
	"github.com/The-Sycorax/denaro/internal/storage"
	"github.com/The-Sycorax/denaro/internal/utxoset"
	"github.com/The-Sycorax/denaro/internal/workerpool"
)

func hashFromString(s string) (primitives.Hash, error) {
	return primitives.HashFromHex(s)
}

// MaxReorgDepth is MAX_REORG_DEPTH.
const MaxReorgDepth = 128

// MaxBlocksPerSubmission is MAX_BLOCKS_PER_SUBMISSION.
const MaxBlocksPerSubmission = 512

// Outcome is the result of submitting a block: BlockOutcome ∈ {Applied,
// Reorg(depth), SideChain, Stale, Rejected(kind)}.
type Outcome struct {
	Kind  OutcomeKind
	Depth int
	Err   error
}

// OutcomeKind enumerates submit-block's possible results.
type OutcomeKind int

const (
	Applied OutcomeKind = iota
	Reorganised
	SideChain
	Stale
	Rejected
)

// Version describes one row of the consensus-version activation table.
type Version struct {
	ActivationHeight int64
	TimestampSkew    int64 // seconds
}

// DefaultVersionTable is consensus version 0 (genesis) with the resolved
// 30s skew bound; later versions would be appended here with their own
// activation height and skew.
var DefaultVersionTable = []Version{
	{ActivationHeight: 1, TimestampSkew: 30},
}

// versionFor returns the active Version for height (the last table entry
// whose ActivationHeight <= height).
func versionFor(height int64) Version {
	v := DefaultVersionTable[0]
	for _, candidate := range DefaultVersionTable {
		if candidate.ActivationHeight <= height {
			v = candidate
		}
	}
	return v
}

// CumulativeWork returns Σ 16^difficulty over a chain prefix, the
// fork-choice metric. difficulty is in tenths (chainblock.Difficulty).
func CumulativeWork(difficulties []chainblock.Difficulty) float64 {
	var total float64
	for _, d := range difficulties {
		total += math.Pow(16, d.Float())
	}
	return total
}

// pendingBlock is one not-yet-committed block of a candidate non-tip
// branch, buffered across separate SubmitBlock calls (one per gossiped or
// batch-fetched block) so a branch longer than one block can accumulate
// enough cumulative work to outrun the tip before a reorg is attempted.
// parentHash names either another pendingBlock (by its own block's hash)
// or an already-committed block.
type pendingBlock struct {
	block      *chainblock.Block
	height     int64
	parentHash string
}

// Engine wires the consensus engine to its storage backend. A single
// Engine instance is expected to live inside the node-wide context,
// serialised behind the chain lock by the caller.
type Engine struct {
	store *storage.Store
	pool  *workerpool.Pool

	mu      sync.Mutex
	pending map[string]*pendingBlock
}

// New returns a consensus Engine bound to store, dispatching per-transaction
// validation during apply-block through pool so a large block's signature
// checks run across more than one CPU. A nil pool runs them on the calling
// goroutine instead.
func New(store *storage.Store, pool *workerpool.Pool) *Engine {
	return &Engine{store: store, pool: pool, pending: make(map[string]*pendingBlock)}
}

// SubmitBlock runs the submit-block pipeline. Caller must hold the
// node's chain lock for the duration of this call.
func (e *Engine) SubmitBlock(b *chainblock.Block) Outcome {
	tip, err := e.store.GetTip()
	if err != nil {
		return Outcome{Kind: Rejected, Err: errs.New(errs.ErrStorageUnavailable, "read tip: %s", err)}
	}

	if tip == nil {
		return e.submitGenesis(b)
	}

	e.prunePending(tip.ID)

	parentHash := b.PreviousHash.String()
	parent, err := e.store.GetBlockByHash(parentHash)
	if err != nil {
		return Outcome{Kind: Rejected, Err: errs.New(errs.ErrStorageUnavailable, "lookup parent: %s", err)}
	}

	var parentHeight int64
	var parentTimestamp int64
	var parentDifficulty chainblock.Difficulty
	var parentHashObj primitives.Hash

	if parent != nil {
		parentHeight = parent.ID
		parentTimestamp = parent.Timestamp
		parentDifficulty = parent.Difficulty
		parentHashObj, err = hashFromString(parent.Hash)
		if err != nil {
			return Outcome{Kind: Rejected, Err: errs.New(errs.ErrInternal, "parent hash malformed: %s", err)}
		}
	} else {
		e.mu.Lock()
		pp, ok := e.pending[parentHash]
		e.mu.Unlock()
		if !ok {
			return Outcome{Kind: Rejected, Err: errs.New(errs.ErrOrphanBlock, "previous_hash %s is unknown", b.PreviousHash)}
		}
		parentHeight = pp.height
		parentTimestamp = pp.block.Timestamp
		parentDifficulty = pp.block.Difficulty
		parentHashObj = pp.block.Hash()
	}

	height := parentHeight + 1
	version := versionFor(height)
	if b.Timestamp < parentTimestamp-version.TimestampSkew {
		return Outcome{Kind: Rejected, Err: errs.New(errs.ErrInvalidStructure, "timestamp %d is not monotonic with parent %d", b.Timestamp, parentTimestamp)}
	}

	if err := e.checkDifficultyAndReward(height, parentDifficulty, parentTimestamp, b); err != nil {
		return Outcome{Kind: Rejected, Err: err}
	}

	if !b.SatisfiesPoW(parentHashObj) {
		return Outcome{Kind: Rejected, Err: errs.New(errs.ErrPoWInvalid, "block does not satisfy the difficulty predicate against its parent")}
	}

	encoded, err := b.Encode()
	if err != nil {
		return Outcome{Kind: Rejected, Err: err}
	}
	if len(encoded) > chainblock.MaxRawBlockSize {
		return Outcome{Kind: Rejected, Err: errs.New(errs.ErrBlockTooLarge, "block exceeds the raw size limit")}
	}

	if parent != nil && parent.ID == tip.ID {
		if err := utxoset.ApplyBlock(e.store, height, b, e.pool); err != nil {
			return Outcome{Kind: Rejected, Err: err}
		}
		e.clearPending()
		return Outcome{Kind: Applied}
	}

	// B extends a non-tip block, either an older committed ancestor or a
	// branch block buffered from an earlier SubmitBlock call: buffer it
	// too and compare the whole candidate branch's cumulative work
	// against the current tip before deciding whether to reorg. This is
	// what lets a branch longer than one block (the new-branch side of
	// §4.6 step 7) accumulate across sequential single-block submissions
	// instead of only ever comparing one incoming block's own work.
	e.mu.Lock()
	e.pending[b.Hash().String()] = &pendingBlock{block: b, height: height, parentHash: parentHash}
	e.mu.Unlock()

	branch, forkAncestor, err := e.branchFromLeaf(b.Hash().String())
	if err != nil {
		return Outcome{Kind: Rejected, Err: err}
	}
	forkWork, err := e.tipWork(forkAncestor)
	if err != nil {
		return Outcome{Kind: Rejected, Err: err}
	}
	candidateWork := forkWork + branchWork(branch)
	// Measure the current tip over the same window: the fork ancestor's
	// work plus the committed blocks above the fork point.
	tipSide, err := e.store.GetBlockRange(forkAncestor.ID+1, tip.ID)
	if err != nil {
		return Outcome{Kind: Rejected, Err: errs.New(errs.ErrStorageUnavailable, "read block range: %s", err)}
	}
	tipWork := forkWork
	for _, blk := range tipSide {
		tipWork += math.Pow(16, blk.Difficulty.Float())
	}
	if candidateWork <= tipWork {
		return Outcome{Kind: SideChain}
	}

	depth, err := e.reorganize(tip, forkAncestor, branch)
	if err != nil {
		return Outcome{Kind: Rejected, Err: err}
	}
	e.clearPending()
	return Outcome{Kind: Reorganised, Depth: depth}
}

func (e *Engine) submitGenesis(b *chainblock.Block) Outcome {
	if b.ID != 1 {
		return Outcome{Kind: Rejected, Err: errs.New(errs.ErrInvalidStructure, "genesis block must have id 1")}
	}
	if b.PreviousHash != chainblock.GenesisPreviousHash {
		return Outcome{Kind: Rejected, Err: errs.New(errs.ErrOrphanBlock, "genesis previous_hash must be the sentinel")}
	}
	if b.Difficulty != chainblock.StartDifficulty {
		return Outcome{Kind: Rejected, Err: errs.New(errs.ErrBadDifficulty, "genesis difficulty must be %s", chainblock.StartDifficulty)}
	}
	if !b.SatisfiesPoW(chainblock.GenesisPreviousHash) {
		return Outcome{Kind: Rejected, Err: errs.New(errs.ErrPoWInvalid, "genesis block does not satisfy the difficulty predicate")}
	}
	if err := utxoset.ApplyBlock(e.store, 1, b, e.pool); err != nil {
		return Outcome{Kind: Rejected, Err: err}
	}
	e.clearPending()
	return Outcome{Kind: Applied}
}

func (e *Engine) checkDifficultyAndReward(height int64, parentDifficulty chainblock.Difficulty, parentTimestamp int64, b *chainblock.Block) error {
	expectedDifficulty, err := e.expectedDifficulty(height, parentDifficulty, parentTimestamp)
	if err != nil {
		return err
	}
	if b.Difficulty != expectedDifficulty {
		return errs.New(errs.ErrBadDifficulty, "block %d difficulty %s does not match expected %s", height, b.Difficulty, expectedDifficulty)
	}
	supply, err := e.store.GetSupply()
	if err != nil {
		return errs.New(errs.ErrStorageUnavailable, "read supply: %s", err)
	}
	expectedReward := chainblock.RewardForHeight(height, supply)
	if b.Reward != expectedReward {
		return errs.New(errs.ErrBadReward, "block %d reward %s does not match expected %s", height, b.Reward, expectedReward)
	}
	return nil
}

func (e *Engine) expectedDifficulty(height int64, parentDifficulty chainblock.Difficulty, parentTimestamp int64) (chainblock.Difficulty, error) {
	if (height-1)%chainblock.AdjustmentInterval != 0 || height == 1 {
		return parentDifficulty, nil
	}
	windowStart := height - chainblock.AdjustmentInterval
	startBlock, err := e.store.GetBlockByHeight(windowStart)
	if err != nil || startBlock == nil {
		return parentDifficulty, nil
	}
	elapsed := parentTimestamp - startBlock.Timestamp
	return chainblock.NextDifficulty(parentDifficulty, elapsed), nil
}

// branchWork returns Σ 16^difficulty over a buffered candidate branch, the
// same fork-choice metric CumulativeWork/tipWork apply to a committed
// chain prefix.
func branchWork(blocks []*chainblock.Block) float64 {
	var total float64
	for _, blk := range blocks {
		total += math.Pow(16, blk.Difficulty.Float())
	}
	return total
}

func (e *Engine) tipWork(tip *storage.BlockModel) (float64, error) {
	lo := tip.ID - MaxReorgDepth
	if lo < 1 {
		lo = 1
	}
	blocks, err := e.store.GetBlockRange(lo, tip.ID)
	if err != nil {
		return 0, errs.New(errs.ErrStorageUnavailable, "read block range: %s", err)
	}
	var total float64
	for _, blk := range blocks {
		total += math.Pow(16, blk.Difficulty.Float())
	}
	return total, nil
}

// branchFromLeaf walks the pending index backwards from leafHash (the
// block just buffered by SubmitBlock) until it reaches a block that is
// already committed, collecting every pending block along the way and
// returning them in root-to-leaf (FIFO apply) order together with the
// committed fork-point ancestor they are built on. Bounded by
// MaxReorgDepth, matching the reorg depth limit §4.6 names.
func (e *Engine) branchFromLeaf(leafHash string) ([]*chainblock.Block, *storage.BlockModel, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	var chain []*chainblock.Block
	cursor := leafHash
	for {
		pb, ok := e.pending[cursor]
		if !ok {
			return nil, nil, errs.New(errs.ErrInternal, "pending branch is missing block %s", cursor)
		}
		chain = append(chain, pb.block)
		if len(chain) > MaxReorgDepth {
			return nil, nil, errs.New(errs.ErrInvalidStructure, "candidate branch exceeds MAX_REORG_DEPTH")
		}
		ancestor, err := e.store.GetBlockByHash(pb.parentHash)
		if err != nil {
			return nil, nil, errs.New(errs.ErrStorageUnavailable, "lookup branch ancestor: %s", err)
		}
		if ancestor != nil {
			for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
				chain[i], chain[j] = chain[j], chain[i]
			}
			return chain, ancestor, nil
		}
		cursor = pb.parentHash
	}
}

// prunePending drops buffered branch blocks that have fallen more than
// MaxReorgDepth behind the current tip: they can no longer win fork-choice
// or be reorg'd onto, so there is no reason to keep holding them in memory.
func (e *Engine) prunePending(tipHeight int64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for hash, pb := range e.pending {
		if pb.height <= tipHeight-MaxReorgDepth {
			delete(e.pending, hash)
		}
	}
}

// clearPending discards every buffered branch block once the committed
// chain has moved (by a plain apply or a reorg): anything still buffered
// was rooted against the chain as it stood before this commit and would
// need to be resubmitted to be considered again.
func (e *Engine) clearPending() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pending = make(map[string]*pendingBlock)
}

// reorganize walks back from tip to forkAncestor, undoing blocks LIFO,
// then applies every block of branch (root-to-leaf, as returned by
// branchFromLeaf) FIFO. Every undo and every apply run inside a single
// Store.WithTx unit of work, so a failure at any step rolls back every
// earlier step in the same reorg and the original tip is left untouched —
// there is no separate compensating-rollback path to maintain.
func (e *Engine) reorganize(tip, forkAncestor *storage.BlockModel, branch []*chainblock.Block) (int, error) {
	undone := make([]*storage.BlockModel, 0, MaxReorgDepth)
	cursor := tip
	for cursor.ID > forkAncestor.ID {
		if len(undone) >= MaxReorgDepth {
			return 0, errs.New(errs.ErrInvalidStructure, "reorg exceeds MAX_REORG_DEPTH")
		}
		undone = append(undone, cursor)
		parent, err := e.store.GetBlockByHeight(cursor.ID - 1)
		if err != nil || parent == nil {
			return 0, errs.New(errs.ErrInternal, "chain broken while walking back for reorg")
		}
		cursor = parent
	}

	err := e.store.WithTx(func(uow *storage.UnitOfWork) error {
		for _, blk := range undone {
			if err := utxoset.UndoBlockTx(uow, blk.Hash); err != nil {
				return err
			}
		}
		height := forkAncestor.ID
		for _, blk := range branch {
			height++
			if err := utxoset.ApplyBlockTx(uow, height, blk, e.pool); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return len(undone), nil
}
