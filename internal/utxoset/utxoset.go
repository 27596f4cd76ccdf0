// Package utxoset implements the UTXO & mempool engine (C5): apply-block,
// undo-block, and the supporting UTXO-lookup view C2's validator needs.
// Grounded in daglabs-btcd's blockdag UTXO diff application
// (domain/blockdag/utxodiff.go, blockdag/dag.go's applyDAGChanges) scaled
// down from a DAG-diff model to this ledger's single-tip chain.
package utxoset

import (
	"encoding/hex"
	"strconv"

	"github.com/The-Sycorax/denaro/internal/amount"
	"github.com/The-Sycorax/denaro/internal/chainblock"
	"github.com/The-Sycorax/denaro/internal/errs"
	"github.com/The-Sycorax/denaro/internal/mempool"
	"github.com/The-Sycorax/denaro/internal/storage"
	"github.com/The-Sycorax/denaro/internal/txn"
	"github.com/The-Sycorax/denaro/internal/workerpool"
)

// storeUTXO adapts a storage.UnitOfWork's committed unspent outputs into
// the txn.UTXOLookup interface C2's validator consumes.
type storeUTXO struct {
	uow *storage.UnitOfWork
}

func (s storeUTXO) Lookup(o txn.Outpoint) (string, amount.Amount, bool) {
	txHash := o.TxHash.String()
	row, err := s.uow.GetTransactionByHash(txHash)
	if err != nil || row == nil {
		return "", 0, false
	}
	if int(o.Index) >= len(row.OutputsAddresses) || int(o.Index) >= len(row.OutputsAmounts) {
		return "", 0, false
	}
	unspent, err := s.uow.GetUnspentForAddress(row.OutputsAddresses[o.Index])
	if err != nil {
		return "", 0, false
	}
	for _, u := range unspent {
		if u.TxHash == txHash && u.Index == o.Index {
			amt, err := amount.FromSmallestUnits(row.OutputsAmounts[o.Index])
			if err != nil {
				return "", 0, false
			}
			return row.OutputsAddresses[o.Index], amt, true
		}
	}
	return "", 0, false
}

// validateNonCoinbase runs txn.Validate over every non-coinbase transaction
// in txs and returns the sum of their fees. With a non-nil pool the
// transactions are validated concurrently, each against its own view of the
// same unit-of-work snapshot; storage.UnitOfWork's reads are safe for
// concurrent use by multiple goroutines (the same guarantee database/sql
// gives a single *sql.Tx), so this only buys back CPU time spent in
// signature verification without touching isolation.
func validateNonCoinbase(txs []*txn.Transaction, view storeUTXO, pool *workerpool.Pool) (amount.Amount, error) {
	type item struct {
		t   *txn.Transaction
		fee amount.Amount
	}
	items := make([]item, 0, len(txs))
	for _, t := range txs {
		if t.IsCoinbase() {
			continue
		}
		items = append(items, item{t: t})
	}
	if len(items) == 0 {
		return 0, nil
	}
	validate := func(i int) error {
		f, err := txn.Validate(items[i].t, view, nil)
		if err != nil {
			return err
		}
		items[i].fee = f
		return nil
	}
	if pool == nil {
		for i := range items {
			if err := validate(i); err != nil {
				return 0, err
			}
		}
	} else if err := pool.Map(len(items), validate); err != nil {
		return 0, err
	}
	var fees amount.Amount
	for _, it := range items {
		f, err := amount.Add(fees, it.fee)
		if err != nil {
			return 0, err
		}
		fees = f
	}
	return fees, nil
}

// ApplyBlock performs the apply-block sequence as a single unit of
// work: re-validate every transaction, persist the block and its
// transactions, retire consumed outputs (recording the reverse journal),
// materialise produced outputs, and prune the mempool of anything the
// block made stale. When pool is non-nil, the per-transaction signature
// and conservation checks for the block's non-coinbase transactions are
// dispatched across it instead of running one at a time on the caller's
// goroutine; a nil pool runs the same checks sequentially.
func ApplyBlock(store *storage.Store, height int64, b *chainblock.Block, pool *workerpool.Pool) error {
	return store.WithTx(func(uow *storage.UnitOfWork) error {
		return ApplyBlockTx(uow, height, b, pool)
	})
}

// ApplyBlockTx runs the apply-block sequence against an already-open unit
// of work, so callers that need several apply/undo steps to commit or
// revert as one (the consensus engine's reorganisation path) can fold them
// into a single Store.WithTx instead of opening one transaction per step.
func ApplyBlockTx(uow *storage.UnitOfWork, height int64, b *chainblock.Block, pool *workerpool.Pool) error {
	{
		view := storeUTXO{uow: uow}
		fees, err := validateNonCoinbase(b.Transactions, view, pool)
		if err != nil {
			return err
		}
		if len(b.Transactions) == 0 || !b.Transactions[0].IsCoinbase() {
			return errs.New(errs.ErrInvalidStructure, "block %d has no coinbase transaction", height)
		}
		expectedCoinbase, err := amount.Add(b.Reward, fees)
		if err != nil {
			return err
		}
		if _, err := txn.Validate(b.Transactions[0], view, &expectedCoinbase); err != nil {
			return err
		}

		blockHash := b.Hash().String()
		blockModel := &storage.BlockModel{
			ID:         height,
			Hash:       blockHash,
			Content:    hex.EncodeToString(b.Content()),
			Address:    b.MinerAddress,
			Random:     b.Nonce,
			Difficulty: b.Difficulty,
			Reward:     b.Reward,
			Timestamp:  b.Timestamp,
		}
		if err := uow.InsertBlock(blockModel); err != nil {
			return err
		}

		var toInsert []*storage.TransactionModel
		settledHashes := make([]string, 0, len(b.Transactions))
		for _, t := range b.Transactions {
			h := t.Hash().String()
			settledHashes = append(settledHashes, h)

			outAddrs := make([]string, len(t.Outputs))
			outAmounts := make([]int64, len(t.Outputs))
			for i, o := range t.Outputs {
				outAddrs[i] = o.Address
				outAmounts[i] = o.Amount.Units()
			}
			inAddrs := make([]string, 0, len(t.Inputs))
			for _, in := range t.Inputs {
				if addr, _, ok := view.Lookup(in.Outpoint); ok {
					inAddrs = append(inAddrs, addr)
				}
				if err := uow.SpendOutput(blockHash, in.Outpoint.TxHash.String(), in.Outpoint.Index); err != nil {
					return err
				}
			}
			for i, o := range t.Outputs {
				if err := uow.CreateOutput(h, uint8(i), o.Address); err != nil {
					return err
				}
			}
			toInsert = append(toInsert, &storage.TransactionModel{
				BlockHash:        blockHash,
				TxHash:           h,
				TxHex:            hex.EncodeToString(t.Encode()),
				InputsAddresses:  inAddrs,
				OutputsAddresses: outAddrs,
				OutputsAmounts:   outAmounts,
				Fees:             t.Fees,
				TimeReceived:     b.Timestamp,
			})
		}
		if err := uow.InsertTransactions(toInsert); err != nil {
			return err
		}

		return pruneMempool(uow, b, settledHashes)
	}
}

// pruneMempool removes pending transactions that are now confirmed or that
// reference an output the block just spent (step 3).
func pruneMempool(uow *storage.UnitOfWork, b *chainblock.Block, settledHashes []string) error {
	settled := make(map[string]bool, len(settledHashes))
	for _, h := range settledHashes {
		settled[h] = true
	}
	spent := make(map[string]bool)
	for _, t := range b.Transactions {
		for _, in := range t.Inputs {
			spent[in.Outpoint.TxHash.String()+":"+strconv.Itoa(int(in.Outpoint.Index))] = true
		}
	}
	pending, err := uow.ListPending("time_received")
	if err != nil {
		return err
	}
	for _, p := range pending {
		if settled[p.TxHash] {
			if err := uow.DeletePending(p.TxHash); err != nil {
				return err
			}
			if err := uow.DeletePendingSpentOutputsForTx(p.TxHash); err != nil {
				return err
			}
			continue
		}
		dec, err := txn.Decode(mustHexDecode(p.TxHex))
		if err != nil {
			continue
		}
		for _, in := range dec.Inputs {
			key := in.Outpoint.TxHash.String() + ":" + strconv.Itoa(int(in.Outpoint.Index))
			if spent[key] {
				if err := uow.DeletePending(p.TxHash); err != nil {
					return err
				}
				if err := uow.DeletePendingSpentOutputsForTx(p.TxHash); err != nil {
					return err
				}
				break
			}
		}
	}
	return nil
}

// UndoBlock performs the undo-block sequence: delete the block row
// (cascading to its transactions and the outputs it produced), then
// replay the reverse journal to re-materialise every output the block
// consumed.
func UndoBlock(store *storage.Store, blockHash string) error {
	return store.WithTx(func(uow *storage.UnitOfWork) error {
		return UndoBlockTx(uow, blockHash)
	})
}

// UndoBlockTx runs the undo-block sequence against an already-open unit of
// work; see ApplyBlockTx for why this split exists. Once the block is gone,
// its own non-coinbase transactions are opportunistically handed back to
// the mempool (re-admission is best-effort: a transaction whose inputs a
// sibling branch already spent, or that no longer validates, is simply
// dropped rather than failing the undo).
func UndoBlockTx(uow *storage.UnitOfWork, blockHash string) error {
	consumed, err := uow.ListConsumedOutputs(blockHash)
	if err != nil {
		return err
	}
	settled, err := uow.GetTransactionsForBlock(blockHash)
	if err != nil {
		return err
	}
	if err := uow.DeleteBlock(blockHash); err != nil {
		return err
	}
	for _, c := range consumed {
		if err := uow.CreateOutput(c.TxHash, c.Index, c.Address); err != nil {
			return err
		}
	}
	if err := uow.ClearConsumedOutputs(blockHash); err != nil {
		return err
	}
	for _, row := range settled {
		t, err := txn.Decode(mustHexDecode(row.TxHex))
		if err != nil || t.IsCoinbase() {
			continue
		}
		_ = mempool.AdmitTx(uow, t, row.TimeReceived)
	}
	return nil
}

func mustHexDecode(s string) []byte {
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil
	}
	return b
}
