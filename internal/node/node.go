// Package node bundles the global mutable state into a single context
// created once at start and passed explicitly into every component: the
// chain lock, per-peer locks (inside peer.Registry), the storage handle
// (which also holds the mempool), peer table, rate buckets, and the
// bounded worker pool for CPU-bound
// hashing/signature verification. Grounded in daglabs-btcd's
// server/p2p.Server, which plays the same "one struct holds everything"
// role for btcd/kaspad.
package node

import (
	"sync"
	"time"

	"github.com/The-Sycorax/denaro/internal/config"
	"github.com/The-Sycorax/denaro/internal/consensus"
	"github.com/The-Sycorax/denaro/internal/peer"
	"github.com/The-Sycorax/denaro/internal/storage"
	"github.com/The-Sycorax/denaro/internal/workerpool"
)

// MaxConcurrentSyncs is MAX_CONCURRENT_SYNCS.
const MaxConcurrentSyncs = 1

// Node is the process-wide context. Every field is safe for concurrent
// use through the mechanisms described below: chainMu serialises block
// application, syncFlight is the single-flight sync guard, and Peers /
// RateLimiter manage their own internal locking.
type Node struct {
	Config     *config.Config
	Identity   *peer.Identity
	Store      *storage.Store
	Consensus  *consensus.Engine
	Peers      *peer.Registry
	RateLimiter *peer.RateLimiter
	Pool       *workerpool.Pool

	StartedAt time.Time

	chainMu    sync.Mutex
	syncFlight int32
	syncMu     sync.Mutex
}

// New assembles a Node from its already-constructed parts.
func New(cfg *config.Config, id *peer.Identity, store *storage.Store, workers int) *Node {
	pool := workerpool.New(workers)
	return &Node{
		Config:      cfg,
		Identity:    id,
		Store:       store,
		Consensus:   consensus.New(store, pool),
		Peers:       peer.NewRegistry(),
		RateLimiter: peer.NewRateLimiter(60),
		Pool:        pool,
		StartedAt:   time.Now(),
	}
}

// WithChainLock runs fn while holding the chain lock, serialising block
// application and reorg so only one block-apply or reorg may be in
// progress at a time.
func (n *Node) WithChainLock(fn func() error) error {
	n.chainMu.Lock()
	defer n.chainMu.Unlock()
	return fn()
}

// TryBeginSync attempts to acquire the single-flight sync guard
// (MAX_CONCURRENT_SYNCS = 1). It returns false if a sync is already in
// progress.
func (n *Node) TryBeginSync() bool {
	n.syncMu.Lock()
	defer n.syncMu.Unlock()
	if n.syncFlight >= MaxConcurrentSyncs {
		return false
	}
	n.syncFlight++
	return true
}

// EndSync releases the single-flight sync guard.
func (n *Node) EndSync() {
	n.syncMu.Lock()
	defer n.syncMu.Unlock()
	if n.syncFlight > 0 {
		n.syncFlight--
	}
}

// Uptime returns seconds elapsed since the node started, for get_status.
func (n *Node) Uptime() int64 {
	return int64(time.Since(n.StartedAt).Seconds())
}
