// Package sync implements the synchroniser (C8): handshake, single-flight
// pull sync against a remote peer, push propagation of newly accepted
// blocks, and periodic discovery. Grounded in daglabs-btcd's
// protocol/flowcontext + protocol/ibd (initial block download) flow,
// collapsed from daglabs-btcd's message-oriented wire protocol onto this
// node's signed-HTTP peer surface.
package sync

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"time"

	"github.com/The-Sycorax/denaro/internal/chainblock"
	"github.com/The-Sycorax/denaro/internal/consensus"
	"github.com/The-Sycorax/denaro/internal/errs"
	"github.com/The-Sycorax/denaro/internal/node"
	"github.com/The-Sycorax/denaro/internal/peer"
	"github.com/The-Sycorax/denaro/internal/txn"
)

// ConnectionTimeout is CONNECTION_TIMEOUT.
const ConnectionTimeout = 10 * time.Second

// MaxBatchBytes bounds a single pull-sync fetch.
const MaxBatchBytes = 20 << 20

// DiscoveryInterval is the periodic-discovery cadence.
const DiscoveryInterval = 60 * time.Second

// HandshakeInfo is the payload exchanged on contact.
type HandshakeInfo struct {
	NodeID      string `json:"node_id"`
	Pubkey      string `json:"pubkey"`
	URL         string `json:"url"`
	IsPublic    bool   `json:"is_public"`
	NodeVersion string `json:"node_version"`
	TipHeight   int64  `json:"tip_height"`
	TipHash     string `json:"tip_hash"`
}

var httpClient = &http.Client{Timeout: ConnectionTimeout}

// Handshake exchanges HandshakeInfo with a remote peer and registers it,
// returning the remote's info so the caller can decide whether to sync.
func Handshake(n *node.Node, remoteURL string) (*HandshakeInfo, error) {
	tip, err := n.Store.GetTip()
	if err != nil {
		return nil, errs.New(errs.ErrStorageUnavailable, "read local tip: %s", err)
	}
	local := HandshakeInfo{
		NodeID:      n.Identity.NodeID,
		Pubkey:      n.Identity.PublicKeyHex(),
		URL:         n.Config.SelfURL,
		IsPublic:    true,
		NodeVersion: "1",
	}
	if tip != nil {
		local.TipHeight = tip.ID
		local.TipHash = tip.Hash
	}

	body, err := json.Marshal(local)
	if err != nil {
		return nil, errs.New(errs.ErrInternal, "marshal handshake: %s", err)
	}
	remote, err := postSigned(n, remoteURL, "/handshake/challenge", body)
	if err != nil {
		return nil, err
	}
	var payload struct {
		Result HandshakeInfo `json:"result"`
	}
	if err := json.Unmarshal(remote, &payload); err != nil {
		return nil, errs.New(errs.ErrMalformedInput, "decode handshake response: %s", err)
	}
	info := payload.Result
	n.Peers.Upsert(info.NodeID, info.Pubkey, info.URL, info.IsPublic, info.NodeVersion, time.Now())
	return &info, nil
}

// ShouldSync reports whether info's tip is far enough ahead to justify a
// sync cycle.
func ShouldSync(localHeight int64, info *HandshakeInfo) bool {
	return info.TipHeight >= localHeight+1
}

// Locator builds the binary-search height list (h, h-1, h-2, h-4, ...)
// PullSync uses to locate the common ancestor.
func Locator(height int64) []int64 {
	var out []int64
	if height < 1 {
		return out
	}
	out = append(out, height)
	for offset := int64(1); height-offset > 1; offset *= 2 {
		out = append(out, height-offset)
	}
	if height > 1 {
		out = append(out, 1)
	}
	return out
}

// PullSync runs a single-flight pull sync cycle against remoteURL: locate
// the common ancestor via Locator, fetch the forward range in batches
// bounded by MaxBatchBytes, and submit each block through engine. Peer
// reputation is decremented and the cycle aborted on the first invalid
// block.
func PullSync(n *node.Node, remoteURL string) error {
	if !n.TryBeginSync() {
		return errs.New(errs.ErrSyncInProgress, "a sync cycle is already in progress")
	}
	defer n.EndSync()

	tip, err := n.Store.GetTip()
	if err != nil {
		return errs.New(errs.ErrStorageUnavailable, "read local tip: %s", err)
	}
	localHeight := int64(0)
	if tip != nil {
		localHeight = tip.ID
	}

	ancestor, err := locateCommonAncestor(n, remoteURL, localHeight)
	if err != nil {
		return err
	}

	lo := ancestor + 1
	for {
		blocks, err := fetchBlockRange(n, remoteURL, lo, lo+127)
		if err != nil {
			return err
		}
		if len(blocks) == 0 {
			return nil
		}
		for _, b := range blocks {
			var outcome consensus.Outcome
			lockErr := n.WithChainLock(func() error {
				outcome = n.Consensus.SubmitBlock(b)
				return nil
			})
			if lockErr != nil {
				return lockErr
			}
			if outcome.Kind == consensus.Rejected {
				penalizeForURL(n, remoteURL, -5)
				return outcome.Err
			}
		}
		lo += int64(len(blocks))
	}
}

// locateCommonAncestor asks the remote peer, for each height in the
// locator, whether it recognises the local hash at that height; the first
// recognised height is the common ancestor. Falls back to genesis (0) if
// none match.
func locateCommonAncestor(n *node.Node, remoteURL string, localHeight int64) (int64, error) {
	for _, h := range Locator(localHeight) {
		blk, err := n.Store.GetBlockByHeight(h)
		if err != nil || blk == nil {
			continue
		}
		ok, err := remoteHasBlock(n, remoteURL, blk.Hash)
		if err != nil {
			return 0, err
		}
		if ok {
			return h, nil
		}
	}
	return 0, nil
}

func remoteHasBlock(n *node.Node, remoteURL, hash string) (bool, error) {
	resp, err := httpClient.Get(remoteURL + "/get_block?hash=" + hash)
	if err != nil {
		return false, nil
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK, nil
}

func fetchBlockRange(n *node.Node, remoteURL string, lo, hi int64) ([]*chainblock.Block, error) {
	url := fmt.Sprintf("%s/get_blocks?offset=%d&limit=%d", remoteURL, lo, hi-lo+1)
	resp, err := httpClient.Get(url)
	if err != nil {
		return nil, errs.New(errs.ErrTimeout, "fetch block range: %s", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, errs.New(errs.ErrStorageUnavailable, "peer returned status %d for block range", resp.StatusCode)
	}
	var payload struct {
		Result struct {
			Blocks []string `json:"blocks"` // hex-encoded chainblock.Block.Encode() output
		} `json:"result"`
	}
	limited := io.LimitReader(resp.Body, MaxBatchBytes+1)
	if err := json.NewDecoder(limited).Decode(&payload); err != nil {
		return nil, errs.New(errs.ErrMalformedInput, "decode block range response: %s", err)
	}
	blocks := make([]*chainblock.Block, 0, len(payload.Result.Blocks))
	for _, hexBlk := range payload.Result.Blocks {
		raw, err := hex.DecodeString(hexBlk)
		if err != nil {
			return nil, errs.New(errs.ErrMalformedInput, "block hex is invalid: %s", err)
		}
		b, err := chainblock.Decode(raw)
		if err != nil {
			return nil, err
		}
		blocks = append(blocks, b)
	}
	return blocks, nil
}

// PushBlock propagates a locally accepted block to a subset of known
// peers in parallel; a per-peer failure does not abort the others.
func PushBlock(n *node.Node, b *chainblock.Block, fanout int) {
	peers := n.Peers.Active(time.Now())
	if len(peers) > fanout {
		rand.Shuffle(len(peers), func(i, j int) { peers[i], peers[j] = peers[j], peers[i] })
		peers = peers[:fanout]
	}
	encoded, err := b.Encode()
	if err != nil {
		return
	}
	body, _ := json.Marshal(map[string]string{"block": hex.EncodeToString(encoded)})

	done := make(chan struct{}, len(peers))
	for _, p := range peers {
		go func(url string) {
			defer func() { done <- struct{}{} }()
			_, _ = postSigned(n, url, "/push_block", body)
		}(p.URL)
	}
	for range peers {
		<-done
	}
}

// PushTransaction propagates a newly admitted mempool transaction to a
// subset of known peers in parallel, the same fanout/best-effort shape as
// PushBlock: an individual peer failure does not abort the others.
func PushTransaction(n *node.Node, t *txn.Transaction, fanout int) {
	peers := n.Peers.Active(time.Now())
	if len(peers) > fanout {
		rand.Shuffle(len(peers), func(i, j int) { peers[i], peers[j] = peers[j], peers[i] })
		peers = peers[:fanout]
	}
	body, _ := json.Marshal(map[string]string{"tx": hex.EncodeToString(t.Encode())})

	done := make(chan struct{}, len(peers))
	for _, p := range peers {
		go func(url string) {
			defer func() { done <- struct{}{} }()
			_, _ = postSigned(n, url, "/push_tx", body)
		}(p.URL)
	}
	for range peers {
		<-done
	}
}

// RunDiscovery picks up to two random known peers, handshakes with them,
// and triggers a pull sync if either shows a longer chain. Intended to be invoked on a DiscoveryInterval ticker.
func RunDiscovery(n *node.Node) {
	candidates := n.Peers.Active(time.Now())
	if len(candidates) == 0 {
		return
	}
	rand.Shuffle(len(candidates), func(i, j int) { candidates[i], candidates[j] = candidates[j], candidates[i] })
	if len(candidates) > 2 {
		candidates = candidates[:2]
	}
	tip, _ := n.Store.GetTip()
	localHeight := int64(0)
	if tip != nil {
		localHeight = tip.ID
	}
	for _, p := range candidates {
		info, err := Handshake(n, p.URL)
		if err != nil {
			continue
		}
		if ShouldSync(localHeight, info) {
			_ = PullSync(n, p.URL)
		}
	}
}

func penalizeForURL(n *node.Node, url string, delta int) {
	for _, p := range n.Peers.Active(time.Now()) {
		if p.URL == url {
			p.Adjust(delta, time.Now())
			return
		}
	}
}

// postSigned issues a signed POST request against path on remoteURL,
// returning the response body on a 2xx status.
func postSigned(n *node.Node, remoteURL, path string, body []byte) ([]byte, error) {
	headers, err := peer.Sign(n.Identity, "1", http.MethodPost, path, body, time.Now())
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequest(http.MethodPost, remoteURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, errs.New(errs.ErrInternal, "build request: %s", err)
	}
	req.Header.Set("x-node-id", headers.NodeID)
	req.Header.Set("x-node-pubkey", headers.NodePubkey)
	req.Header.Set("x-node-version", headers.NodeVersion)
	req.Header.Set("x-timestamp", headers.Timestamp)
	req.Header.Set("x-signature", headers.Signature)
	req.Header.Set("content-type", "application/json")

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, errs.New(errs.ErrTimeout, "request to %s failed: %s", remoteURL, err)
	}
	defer resp.Body.Close()
	buf := new(bytes.Buffer)
	if _, err := buf.ReadFrom(resp.Body); err != nil {
		return nil, errs.New(errs.ErrInternal, "read response: %s", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, errs.New(errs.ErrStorageUnavailable, "peer %s returned status %d", remoteURL, resp.StatusCode)
	}
	return buf.Bytes(), nil
}
