// Package mempool implements pending-transaction admission, conflict
// detection, and block-template assembly, grounded in
// daglabs-btcd's domain/mempool (txpool.go's fee-rate ordered acceptance
// and eviction policy) scaled to this ledger's mempool tables.
package mempool

import (
	"encoding/hex"
	"sort"

	"github.com/The-Sycorax/denaro/internal/amount"
	"github.com/The-Sycorax/denaro/internal/chainblock"
	"github.com/The-Sycorax/denaro/internal/errs"
	"github.com/The-Sycorax/denaro/internal/storage"
	"github.com/The-Sycorax/denaro/internal/txn"
)

// MaxMempoolSize is MAX_MEMPOOL_SIZE.
const MaxMempoolSize = 8192

// MaxTxDataSize bounds the aggregate hex size of transactions selected
// into a single block template, matching chainblock.MaxTxDataHexSize.
const MaxTxDataSize = chainblock.MaxTxDataHexSize

// pendingUTXOView layers the confirmed UTXO set (via confirmed) under the
// outputs produced by other currently-pending transactions, so validation
// runs against UTXO ∪ outputs-of-currently-pending.
type pendingUTXOView struct {
	confirmed txn.UTXOLookup
	pending   map[txn.Outpoint]pendingOutput
}

type pendingOutput struct {
	address string
	amount  amount.Amount
}

func (v pendingUTXOView) Lookup(o txn.Outpoint) (string, amount.Amount, bool) {
	if p, ok := v.pending[o]; ok {
		return p.address, p.amount, true
	}
	return v.confirmed.Lookup(o)
}

func buildPendingOutputs(uow *storage.UnitOfWork) (map[txn.Outpoint]pendingOutput, error) {
	rows, err := uow.ListPending("time_received")
	if err != nil {
		return nil, err
	}
	out := make(map[txn.Outpoint]pendingOutput)
	for _, row := range rows {
		dec, err := txn.Decode(mustHexDecode(row.TxHex))
		if err != nil {
			continue
		}
		h := dec.Hash()
		for i, o := range dec.Outputs {
			out[txn.Outpoint{TxHash: h, Index: uint8(i)}] = pendingOutput{address: o.Address, amount: o.Amount}
		}
	}
	return out, nil
}

// confirmedView adapts storage to txn.UTXOLookup against the committed
// chain state only (no pending layer).
type confirmedView struct{ uow *storage.UnitOfWork }

func (c confirmedView) Lookup(o txn.Outpoint) (string, amount.Amount, bool) {
	row, err := c.uow.GetTransactionByHash(o.TxHash.String())
	if err != nil || row == nil || int(o.Index) >= len(row.OutputsAddresses) {
		return "", 0, false
	}
	unspent, err := c.uow.GetUnspentForAddress(row.OutputsAddresses[o.Index])
	if err != nil {
		return "", 0, false
	}
	for _, u := range unspent {
		if u.TxHash == o.TxHash.String() && u.Index == o.Index {
			amt, err := amount.FromSmallestUnits(row.OutputsAmounts[o.Index])
			if err != nil {
				return "", 0, false
			}
			return row.OutputsAddresses[o.Index], amt, true
		}
	}
	return "", 0, false
}

// Admit validates t against the layered UTXO view, enforces the mempool
// size cap with lowest-fee-rate eviction, and records its input
// reservations.
func Admit(store *storage.Store, t *txn.Transaction, timeReceived int64) error {
	return store.WithTx(func(uow *storage.UnitOfWork) error {
		return AdmitTx(uow, t, timeReceived)
	})
}

// AdmitTx runs the same admission pipeline as Admit against an
// already-open unit of work, so a caller that already holds one open (the
// consensus engine's reorg path, re-admitting an undone block's
// transactions) doesn't nest a second Store.WithTx inside the first.
func AdmitTx(uow *storage.UnitOfWork, t *txn.Transaction, timeReceived int64) error {
	pendingOutputs, err := buildPendingOutputs(uow)
	if err != nil {
		return err
	}
	view := pendingUTXOView{confirmed: confirmedView{uow: uow}, pending: pendingOutputs}

	for _, in := range t.Inputs {
		spent, err := uow.IsPendingSpent(in.Outpoint.TxHash.String(), in.Outpoint.Index)
		if err != nil {
			return err
		}
		if spent {
			return errs.New(errs.ErrDoubleSpend, "input %s:%d already reserved by a pending transaction",
				in.Outpoint.TxHash, in.Outpoint.Index)
		}
	}

	fee, err := txn.Validate(t, view, nil)
	if err != nil {
		return err
	}

	count, err := uow.CountPending()
	if err != nil {
		return err
	}
	if count >= MaxMempoolSize {
		if err := evictLowestFeeRate(uow, t, fee); err != nil {
			return err
		}
	}

	h := t.Hash().String()
	inAddrs := make([]string, 0, len(t.Inputs))
	for _, in := range t.Inputs {
		if addr, _, ok := view.Lookup(in.Outpoint); ok {
			inAddrs = append(inAddrs, addr)
		}
	}
	if err := uow.UpsertPending(&storage.PendingTransactionModel{
		TxHash:          h,
		TxHex:           hex.EncodeToString(t.Encode()),
		InputsAddresses: inAddrs,
		Fees:            fee,
		PropagationTime: timeReceived,
		TimeReceived:    timeReceived,
	}); err != nil {
		return err
	}
	for _, in := range t.Inputs {
		if err := uow.CreatePendingSpentOutput(in.Outpoint.TxHash.String(), in.Outpoint.Index); err != nil {
			return err
		}
	}
	return nil
}

// evictLowestFeeRate drops the lowest fee-per-byte pending entry (the
// oldest one among equal rates) when its rate is below t's; otherwise the
// new transaction is rejected outright with MempoolFull.
func evictLowestFeeRate(uow *storage.UnitOfWork, t *txn.Transaction, fee amount.Amount) error {
	rows, err := uow.ListPending("time_received")
	if err != nil {
		return err
	}
	newSize := len(t.Encode())
	newRate := feePerByte(fee.Units(), newSize)

	var victim *storage.PendingTransactionModel
	var victimRate float64
	for _, row := range rows {
		rate := feePerByte(row.Fees.Units(), len(row.TxHex)/2)
		if victim == nil || rate < victimRate {
			victim = row
			victimRate = rate
		}
	}
	if victim == nil || victimRate >= newRate {
		return errs.New(errs.ErrMempoolFull, "mempool is full and no lower fee-rate entry can be evicted")
	}
	if err := uow.DeletePending(victim.TxHash); err != nil {
		return err
	}
	return uow.DeletePendingSpentOutputsForTx(victim.TxHash)
}

func feePerByte(feeUnits int64, size int) float64 {
	if size <= 0 {
		return 0
	}
	return float64(feeUnits) / float64(size)
}

// AssembleTemplate selects a fee-per-byte-ordered prefix of the mempool
// bounded by MaxTxDataSize hex bytes, for mining. Dependent transactions (spending an earlier selected
// transaction's output) are kept in an order where inputs always resolve.
func AssembleTemplate(store *storage.Store) ([]*txn.Transaction, error) {
	var selected []*txn.Transaction
	err := store.WithTx(func(uow *storage.UnitOfWork) error {
		rows, err := uow.ListPending("fee_per_byte")
		if err != nil {
			return err
		}
		decoded := make([]*txn.Transaction, 0, len(rows))
		for _, row := range rows {
			t, err := txn.Decode(mustHexDecode(row.TxHex))
			if err != nil {
				continue
			}
			decoded = append(decoded, t)
		}
		sort.SliceStable(decoded, func(i, j int) bool {
			return feePerByte(decoded[i].Fees.Units(), len(decoded[i].Encode())) >
				feePerByte(decoded[j].Fees.Units(), len(decoded[j].Encode()))
		})

		producedBy := make(map[[32]byte]bool)
		total := 0
		for _, t := range decoded {
			size := len(t.Encode()) * 2
			if total+size > MaxTxDataSize {
				continue
			}
			ready := true
			for _, in := range t.Inputs {
				if !producedBy[in.Outpoint.TxHash] {
					view := confirmedView{uow: uow}
					if _, _, ok := view.Lookup(in.Outpoint); !ok {
						ready = false
						break
					}
				}
			}
			if !ready {
				continue
			}
			selected = append(selected, t)
			producedBy[t.Hash()] = true
			total += size
		}
		return nil
	})
	return selected, err
}

// GC sweeps the pending pool for entries that no longer validate against
// the committed UTXO set plus the outputs of the other pending
// transactions (a confirming/conflicting block landed without
// pruneMempool's settlement path catching this exact entry, or an input it
// depended on was itself evicted) and removes them along with their
// reservations. Intended to run on a periodic background tick alongside
// peer.Registry.Prune, the way daglabs-btcd's mempool expires orphan
// transactions outside the main accept path.
func GC(store *storage.Store) error {
	return store.WithTx(func(uow *storage.UnitOfWork) error {
		pendingOutputs, err := buildPendingOutputs(uow)
		if err != nil {
			return err
		}
		view := pendingUTXOView{confirmed: confirmedView{uow: uow}, pending: pendingOutputs}

		rows, err := uow.ListPending("time_received")
		if err != nil {
			return err
		}
		for _, row := range rows {
			t, err := txn.Decode(mustHexDecode(row.TxHex))
			if err != nil {
				if err := uow.DeletePending(row.TxHash); err != nil {
					return err
				}
				if err := uow.DeletePendingSpentOutputsForTx(row.TxHash); err != nil {
					return err
				}
				continue
			}
			if _, err := txn.Validate(t, view, nil); err != nil {
				if err := uow.DeletePending(row.TxHash); err != nil {
					return err
				}
				if err := uow.DeletePendingSpentOutputsForTx(row.TxHash); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

func mustHexDecode(s string) []byte {
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil
	}
	return b
}
