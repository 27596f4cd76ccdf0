package httpapi

import (
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/The-Sycorax/denaro/internal/chainblock"
	"github.com/The-Sycorax/denaro/internal/consensus"
	"github.com/The-Sycorax/denaro/internal/errs"
	"github.com/The-Sycorax/denaro/internal/mempool"
	"github.com/The-Sycorax/denaro/internal/node"
	"github.com/The-Sycorax/denaro/internal/primitives"
	syncpkg "github.com/The-Sycorax/denaro/internal/sync"
	"github.com/The-Sycorax/denaro/internal/txn"
)

const nodeVersion = "1"
const githubRepository = "https://github.com/The-Sycorax/denaro"

func rootHandler(n *node.Node, r *http.Request) (interface{}, error) {
	return map[string]interface{}{
		"node_version":      nodeVersion,
		"github_repository": githubRepository,
		"api_docs":          n.Config.SelfURL + "/docs",
	}, nil
}

func statusHandler(n *node.Node, r *http.Request) (interface{}, error) {
	tip, err := n.Store.GetTip()
	if err != nil {
		return nil, errs.New(errs.ErrStorageUnavailable, "read tip: %s", err)
	}
	height := int64(0)
	lastHash := ""
	if tip != nil {
		height = tip.ID
		lastHash = tip.Hash
	}
	return map[string]interface{}{
		"node_id":          n.Identity.NodeID,
		"pubkey":           n.Identity.PublicKeyHex(),
		"url":              n.Config.SelfURL,
		"is_public":        true,
		"node_version":     nodeVersion,
		"height":           height,
		"last_block_hash":  lastHash,
		"uptime_seconds":   n.Uptime(),
	}, nil
}

func peersHandler(n *node.Node, r *http.Request) (interface{}, error) {
	showStats := presenceOrBool(r, "show_stats")
	showBanned := presenceOrBool(r, "show_banned")
	now := time.Now()
	active := n.Peers.Active(now)

	type peerView struct {
		NodeID   string `json:"node_id"`
		URL      string `json:"url"`
		IsPublic bool   `json:"is_public"`
		Score    int    `json:"reputation_score,omitempty"`
		Banned   bool   `json:"banned,omitempty"`
	}
	out := make([]peerView, 0, len(active))
	for _, p := range active {
		banned := p.IsBanned(now)
		if banned && !showBanned {
			continue
		}
		v := peerView{NodeID: p.NodeID, URL: p.URL, IsPublic: p.IsPublic, Banned: banned}
		if showStats {
			v.Score = p.ReputationScore
		}
		out = append(out, v)
	}
	return map[string]interface{}{"peers": out}, nil
}

func getBlockHandler(n *node.Node, r *http.Request) (interface{}, error) {
	q := r.URL.Query()
	var blk *blockView
	var err error
	if idStr := q.Get("id"); idStr != "" {
		id, parseErr := strconv.ParseInt(idStr, 10, 64)
		if parseErr != nil {
			return nil, errs.New(errs.ErrMalformedInput, "id must be an integer")
		}
		blk, err = loadBlockByHeight(n, id)
	} else if hash := q.Get("hash"); hash != "" {
		blk, err = loadBlockByHash(n, hash)
	} else {
		return nil, errs.New(errs.ErrMalformedInput, "id or hash query parameter is required")
	}
	if err != nil {
		return nil, err
	}
	if blk == nil {
		return nil, errs.New(errs.ErrUnknownInput, "block not found")
	}
	return blk, nil
}

func getBlocksHandler(n *node.Node, r *http.Request) (interface{}, error) {
	q := r.URL.Query()
	offset, _ := strconv.ParseInt(q.Get("offset"), 10, 64)
	limit, err := strconv.ParseInt(q.Get("limit"), 10, 64)
	if err != nil || limit <= 0 {
		limit = 100
	}
	if offset < 1 {
		offset = 1
	}
	rows, err := n.Store.GetBlockRange(offset, offset+limit-1)
	if err != nil {
		return nil, errs.New(errs.ErrStorageUnavailable, "read block range: %s", err)
	}
	hexBlocks := make([]string, 0, len(rows))
	for _, row := range rows {
		b, err := reconstructBlock(n, row.ID)
		if err != nil {
			continue
		}
		encoded, err := b.Encode()
		if err != nil {
			continue
		}
		hexBlocks = append(hexBlocks, hex.EncodeToString(encoded))
	}
	return map[string]interface{}{"blocks": hexBlocks}, nil
}

func getTransactionHandler(n *node.Node, r *http.Request) (interface{}, error) {
	hash := r.URL.Query().Get("hash")
	if hash == "" {
		return nil, errs.New(errs.ErrMalformedInput, "hash query parameter is required")
	}
	row, err := n.Store.GetTransactionByHash(hash)
	if err != nil {
		return nil, errs.New(errs.ErrStorageUnavailable, "read transaction: %s", err)
	}
	if row == nil {
		return nil, errs.New(errs.ErrUnknownInput, "transaction not found")
	}
	return map[string]interface{}{
		"tx_hash":           row.TxHash,
		"block_hash":        row.BlockHash,
		"tx_hex":            row.TxHex,
		"inputs_addresses":  row.InputsAddresses,
		"outputs_addresses": row.OutputsAddresses,
		"outputs_amounts":   row.OutputsAmounts,
		"fees":              row.Fees,
		"time_received":     row.TimeReceived,
	}, nil
}

func getMiningInfoHandler(n *node.Node, r *http.Request) (interface{}, error) {
	tip, err := n.Store.GetTip()
	if err != nil {
		return nil, errs.New(errs.ErrStorageUnavailable, "read tip: %s", err)
	}
	height := int64(1)
	difficulty := chainblock.StartDifficulty
	prevHash := chainblock.GenesisPreviousHash.String()
	if tip != nil {
		height = tip.ID + 1
		difficulty = tip.Difficulty
		prevHash = tip.Hash
	}
	supply, err := n.Store.GetSupply()
	if err != nil {
		return nil, errs.New(errs.ErrStorageUnavailable, "read supply: %s", err)
	}
	reward := chainblock.RewardForHeight(height, supply)
	pending, err := mempool.AssembleTemplate(n.Store)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"height":          height,
		"difficulty":      difficulty.Float(),
		"previous_hash":   prevHash,
		"reward":          reward.String(),
		"pending_transactions": len(pending),
	}, nil
}

func getPendingTransactionsHandler(n *node.Node, r *http.Request) (interface{}, error) {
	txs, err := mempool.AssembleTemplate(n.Store)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(txs))
	for _, t := range txs {
		out = append(out, hex.EncodeToString(t.Encode()))
	}
	return map[string]interface{}{"pending_transactions": out}, nil
}

func syncBlockchainHandler(n *node.Node, r *http.Request) (interface{}, error) {
	nodeID := r.URL.Query().Get("node_id")
	var targetURL string
	if nodeID != "" {
		if rec, ok := n.Peers.Get(nodeID); ok {
			targetURL = rec.URL
		}
	}
	if targetURL == "" {
		peers := n.Peers.Active(time.Now())
		if len(peers) == 0 {
			return nil, errs.New(errs.ErrUnknownInput, "no known peer to sync against")
		}
		targetURL = peers[0].URL
	}
	if err := syncpkg.PullSync(n, targetURL); err != nil {
		return nil, err
	}
	return map[string]interface{}{"synced_with": targetURL}, nil
}

func submitBlockHandler(n *node.Node, r *http.Request) (interface{}, error) {
	var payload struct {
		Block string `json:"block"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		return nil, errs.New(errs.ErrMalformedInput, "decode request body: %s", err)
	}
	raw, err := hex.DecodeString(payload.Block)
	if err != nil {
		return nil, errs.New(errs.ErrMalformedInput, "block is not valid hex")
	}
	b, err := chainblock.Decode(raw)
	if err != nil {
		return nil, err
	}

	var outcome consensus.Outcome
	lockErr := n.WithChainLock(func() error {
		outcome = n.Consensus.SubmitBlock(b)
		return nil
	})
	if lockErr != nil {
		return nil, lockErr
	}
	if outcome.Kind == consensus.Rejected {
		return nil, outcome.Err
	}
	if outcome.Kind == consensus.Applied || outcome.Kind == consensus.Reorganised {
		go syncpkg.PushBlock(n, b, 8)
	}
	return map[string]interface{}{"outcome": outcomeString(outcome.Kind)}, nil
}

func pushBlockHandler(n *node.Node, r *http.Request) (interface{}, error) {
	return submitBlockHandler(n, r)
}

// pushTxHandler admits a gossiped or client-submitted transaction into the
// mempool (C5 admission) and relays it on to a subset of known peers on
// success. Mirrors submitBlockHandler's shape: decode, validate under the
// chain lock (admission is serialised with apply-block per §5), relay.
func pushTxHandler(n *node.Node, r *http.Request) (interface{}, error) {
	var payload struct {
		Tx string `json:"tx"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		return nil, errs.New(errs.ErrMalformedInput, "decode request body: %s", err)
	}
	raw, err := hex.DecodeString(payload.Tx)
	if err != nil {
		return nil, errs.New(errs.ErrMalformedInput, "tx is not valid hex")
	}
	t, err := txn.Decode(raw)
	if err != nil {
		return nil, err
	}

	var admitErr error
	lockErr := n.WithChainLock(func() error {
		admitErr = mempool.Admit(n.Store, t, time.Now().Unix())
		return nil
	})
	if lockErr != nil {
		return nil, lockErr
	}
	if admitErr != nil {
		return nil, admitErr
	}
	go syncpkg.PushTransaction(n, t, 8)
	return map[string]interface{}{"tx_hash": t.Hash().String()}, nil
}

func pushBlocksHandler(n *node.Node, r *http.Request) (interface{}, error) {
	var payload struct {
		Blocks []string `json:"blocks"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		return nil, errs.New(errs.ErrMalformedInput, "decode request body: %s", err)
	}
	if len(payload.Blocks) > consensus.MaxBlocksPerSubmission {
		return nil, errs.New(errs.ErrInvalidStructure, "submission exceeds MAX_BLOCKS_PER_SUBMISSION")
	}
	applied := 0
	for _, hexBlk := range payload.Blocks {
		raw, err := hex.DecodeString(hexBlk)
		if err != nil {
			break
		}
		b, err := chainblock.Decode(raw)
		if err != nil {
			break
		}
		var outcome consensus.Outcome
		_ = n.WithChainLock(func() error {
			outcome = n.Consensus.SubmitBlock(b)
			return nil
		})
		if outcome.Kind == consensus.Rejected {
			break
		}
		applied++
	}
	return map[string]interface{}{"applied": applied}, nil
}

func handshakeChallengeHandler(n *node.Node, r *http.Request) (interface{}, error) {
	tip, err := n.Store.GetTip()
	if err != nil {
		return nil, errs.New(errs.ErrStorageUnavailable, "read tip: %s", err)
	}
	info := syncpkg.HandshakeInfo{
		NodeID:      n.Identity.NodeID,
		Pubkey:      n.Identity.PublicKeyHex(),
		URL:         n.Config.SelfURL,
		IsPublic:    true,
		NodeVersion: nodeVersion,
	}
	if tip != nil {
		info.TipHeight = tip.ID
		info.TipHash = tip.Hash
	}
	return info, nil
}

func outcomeString(k consensus.OutcomeKind) string {
	switch k {
	case consensus.Applied:
		return "applied"
	case consensus.Reorganised:
		return "reorganised"
	case consensus.SideChain:
		return "side_chain"
	case consensus.Stale:
		return "stale"
	default:
		return "rejected"
	}
}

type blockView struct {
	ID           int64    `json:"id"`
	Hash         string   `json:"hash"`
	PreviousHash string   `json:"previous_hash"`
	MinerAddress string   `json:"miner_address"`
	Nonce        uint64   `json:"nonce"`
	Difficulty   float64  `json:"difficulty"`
	Reward       string   `json:"reward"`
	Timestamp    int64    `json:"timestamp"`
	Transactions []string `json:"transactions"`
}

func loadBlockByHeight(n *node.Node, height int64) (*blockView, error) {
	b, err := reconstructBlock(n, height)
	if err != nil {
		return nil, err
	}
	if b == nil {
		return nil, nil
	}
	return toBlockView(b), nil
}

func loadBlockByHash(n *node.Node, hash string) (*blockView, error) {
	row, err := n.Store.GetBlockByHash(hash)
	if err != nil {
		return nil, errs.New(errs.ErrStorageUnavailable, "read block: %s", err)
	}
	if row == nil {
		return nil, nil
	}
	return loadBlockByHeight(n, row.ID)
}

func reconstructBlock(n *node.Node, height int64) (*chainblock.Block, error) {
	row, err := n.Store.GetBlockByHeight(height)
	if err != nil {
		return nil, errs.New(errs.ErrStorageUnavailable, "read block: %s", err)
	}
	if row == nil {
		return nil, nil
	}
	txRows, err := n.Store.GetTransactionsForBlock(row.Hash)
	if err != nil {
		return nil, errs.New(errs.ErrStorageUnavailable, "read block transactions: %s", err)
	}
	txs := make([]*txn.Transaction, 0, len(txRows))
	for _, tr := range txRows {
		raw, err := hex.DecodeString(tr.TxHex)
		if err != nil {
			continue
		}
		t, err := txn.Decode(raw)
		if err != nil {
			continue
		}
		txs = append(txs, t)
	}
	var prevHash primitives.Hash
	if row.ID > 1 {
		parent, err := n.Store.GetBlockByHeight(row.ID - 1)
		if err == nil && parent != nil {
			prevHash, err = primitives.HashFromHex(parent.Hash)
			if err != nil {
				return nil, err
			}
		}
	}
	return &chainblock.Block{
		ID:           row.ID,
		PreviousHash: prevHash,
		MinerAddress: row.Address,
		Nonce:        uint64(row.Random),
		Difficulty:   row.Difficulty,
		Reward:       row.Reward,
		Timestamp:    row.Timestamp,
		Transactions: txs,
	}, nil
}

func toBlockView(b *chainblock.Block) *blockView {
	txs := make([]string, 0, len(b.Transactions))
	for _, t := range b.Transactions {
		txs = append(txs, hex.EncodeToString(t.Encode()))
	}
	return &blockView{
		ID:           b.ID,
		Hash:         b.Hash().String(),
		PreviousHash: b.PreviousHash.String(),
		MinerAddress: b.MinerAddress,
		Nonce:        b.Nonce,
		Difficulty:   b.Difficulty.Float(),
		Reward:       b.Reward.String(),
		Timestamp:    b.Timestamp,
		Transactions: txs,
	}
}
