package storage

import (
	"github.com/jinzhu/gorm"

	"github.com/The-Sycorax/denaro/internal/amount"
	"github.com/The-Sycorax/denaro/internal/errs"
)

// UnitOfWork exposes the node's storage primitives. A value bound
// to the top-level *gorm.DB runs each call as its own statement; a value
// bound to a transaction (via Store.WithTx) makes every call part of one
// atomic unit.
type UnitOfWork struct {
	db *gorm.DB
}

func wrapDBErr(err error) error {
	if err == nil || err == gorm.ErrRecordNotFound {
		return nil
	}
	return errs.New(errs.ErrStorageUnavailable, "storage operation failed: %s", err)
}

// InsertBlock persists a new block row.
func (u *UnitOfWork) InsertBlock(b *BlockModel) error {
	return wrapDBErr(u.db.Create(b).Error)
}

// InsertTransactions persists a batch of transaction rows belonging to one
// block.
func (u *UnitOfWork) InsertTransactions(txs []*TransactionModel) error {
	for _, tx := range txs {
		if err := wrapDBErr(u.db.Create(tx).Error); err != nil {
			return err
		}
	}
	return nil
}

// SpendOutput removes an output from unspent_outputs (the apply-block
// step "mark the referenced output spent") and records it in the per-block
// reverse journal so undo-block can re-materialise it later.
func (u *UnitOfWork) SpendOutput(blockHash, txHash string, index uint8) error {
	var entry UnspentOutputModel
	err := u.db.Where(&UnspentOutputModel{TxHash: txHash, Index: index}).First(&entry).Error
	if err == gorm.ErrRecordNotFound {
		return errs.New(errs.ErrUnknownInput, "output %s:%d is not unspent", txHash, index)
	}
	if err != nil {
		return wrapDBErr(err)
	}
	if err := wrapDBErr(u.db.Delete(&entry).Error); err != nil {
		return err
	}
	journalEntry := &spentOutputJournalModel{
		BlockHash: blockHash,
		TxHash:    txHash,
		Index:     index,
		Address:   entry.Address,
	}
	return wrapDBErr(u.db.Create(journalEntry).Error)
}

// CreateOutput adds a newly produced output to unspent_outputs.
func (u *UnitOfWork) CreateOutput(txHash string, index uint8, address string) error {
	return wrapDBErr(u.db.Create(&UnspentOutputModel{TxHash: txHash, Index: index, Address: address}).Error)
}

// UpsertPending inserts or replaces a mempool entry.
func (u *UnitOfWork) UpsertPending(p *PendingTransactionModel) error {
	var existing PendingTransactionModel
	err := u.db.Where(&PendingTransactionModel{TxHash: p.TxHash}).First(&existing).Error
	if err == nil {
		p.ID = existing.ID
		return wrapDBErr(u.db.Save(p).Error)
	}
	if err != gorm.ErrRecordNotFound {
		return wrapDBErr(err)
	}
	return wrapDBErr(u.db.Create(p).Error)
}

// DeletePending removes a transaction from the mempool (on inclusion in a
// block, or eviction).
func (u *UnitOfWork) DeletePending(txHash string) error {
	return wrapDBErr(u.db.Where(&PendingTransactionModel{TxHash: txHash}).Delete(&PendingTransactionModel{}).Error)
}

// ListPending returns the mempool ordered as requested; order is either
// "fee_per_byte" (for block template assembly; sorts by total fee,
// highest first, not by fee per byte) or "time_received" (for eviction /
// display order).
func (u *UnitOfWork) ListPending(order string) ([]*PendingTransactionModel, error) {
	var rows []*PendingTransactionModel
	query := u.db
	switch order {
	case "fee_per_byte":
		query = query.Order("fees DESC")
	default:
		query = query.Order("time_received ASC")
	}
	if err := wrapDBErr(query.Find(&rows).Error); err != nil {
		return nil, err
	}
	return rows, nil
}

// GetTip returns the highest block by id, or nil if the chain is empty.
func (u *UnitOfWork) GetTip() (*BlockModel, error) {
	var b BlockModel
	err := u.db.Order("id DESC").First(&b).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, wrapDBErr(err)
	}
	return &b, nil
}

// GetBlockByHeight looks up a block by its 1-based height.
func (u *UnitOfWork) GetBlockByHeight(height int64) (*BlockModel, error) {
	var b BlockModel
	err := u.db.Where(&BlockModel{ID: height}).First(&b).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, wrapDBErr(err)
	}
	return &b, nil
}

// GetBlockByHash looks up a block by its hash.
func (u *UnitOfWork) GetBlockByHash(hash string) (*BlockModel, error) {
	var b BlockModel
	err := u.db.Where(&BlockModel{Hash: hash}).First(&b).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, wrapDBErr(err)
	}
	return &b, nil
}

// GetBlockRange returns blocks with id in [lo, hi], inclusive, ordered
// ascending, for bulk sync transfer (C8).
func (u *UnitOfWork) GetBlockRange(lo, hi int64) ([]*BlockModel, error) {
	var rows []*BlockModel
	err := u.db.Where("id >= ? AND id <= ?", lo, hi).Order("id ASC").Find(&rows).Error
	if err != nil {
		return nil, wrapDBErr(err)
	}
	return rows, nil
}

// GetTransactionsForBlock returns every transaction row belonging to the
// given block hash, used to reassemble a Block's transaction list.
func (u *UnitOfWork) GetTransactionsForBlock(blockHash string) ([]*TransactionModel, error) {
	var rows []*TransactionModel
	err := u.db.Where(&TransactionModel{BlockHash: blockHash}).Order("id ASC").Find(&rows).Error
	if err != nil {
		return nil, wrapDBErr(err)
	}
	return rows, nil
}

// GetTransactionByHash looks up a single confirmed transaction.
func (u *UnitOfWork) GetTransactionByHash(txHash string) (*TransactionModel, error) {
	var t TransactionModel
	err := u.db.Where(&TransactionModel{TxHash: txHash}).First(&t).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, wrapDBErr(err)
	}
	return &t, nil
}

// GetUnspentForAddress returns every unspent output owned by address.
func (u *UnitOfWork) GetUnspentForAddress(address string) ([]*UnspentOutputModel, error) {
	var rows []*UnspentOutputModel
	err := u.db.Where(&UnspentOutputModel{Address: address}).Find(&rows).Error
	if err != nil {
		return nil, wrapDBErr(err)
	}
	return rows, nil
}

// GetSupply returns the total number of smallest units ever minted: the
// sum of every committed block's reward.
func (u *UnitOfWork) GetSupply() (amount.Amount, error) {
	var total amount.Amount
	row := u.db.Model(&BlockModel{}).Select("COALESCE(SUM(reward), 0)").Row()
	if row == nil {
		return 0, errs.New(errs.ErrStorageUnavailable, "supply query returned no row")
	}
	if err := row.Scan(&total); err != nil {
		return 0, wrapDBErr(err)
	}
	return total, nil
}

// DeleteBlock removes a block and, per the cascade contract, every
// transaction and unspent-output row that references it. Used by reorg
// before UndoBlock re-materialises the outputs it consumed.
func (u *UnitOfWork) DeleteBlock(blockHash string) error {
	txs, err := u.GetTransactionsForBlock(blockHash)
	if err != nil {
		return err
	}
	for _, tx := range txs {
		if err := wrapDBErr(u.db.Where(&UnspentOutputModel{TxHash: tx.TxHash}).Delete(&UnspentOutputModel{}).Error); err != nil {
			return err
		}
	}
	if err := wrapDBErr(u.db.Where(&TransactionModel{BlockHash: blockHash}).Delete(&TransactionModel{}).Error); err != nil {
		return err
	}
	return wrapDBErr(u.db.Where(&BlockModel{Hash: blockHash}).Delete(&BlockModel{}).Error)
}

// spentOutputJournalModel records, per block, the outputs it consumed so
// undo-block can re-materialise them — internal bookkeeping beyond the
// five primary relations, analogous to daglabs-btcd's utxodiffs bucket
// (blockdag/dagio.go) recording reorg-undo data alongside the
// authoritative chain state.
type spentOutputJournalModel struct {
	ID        int64  `gorm:"primary_key"`
	BlockHash string `gorm:"column:block_hash;index"`
	TxHash    string `gorm:"column:tx_hash"`
	Index     uint8  `gorm:"column:index"`
	Address   string `gorm:"column:address"`
}

func (spentOutputJournalModel) TableName() string { return "spent_output_journal" }

// ConsumedOutput is one entry of a block's reverse journal.
type ConsumedOutput struct {
	TxHash  string
	Index   uint8
	Address string
}

// ListConsumedOutputs returns the reverse journal recorded when blockHash
// was applied, for UndoBlock to replay.
func (u *UnitOfWork) ListConsumedOutputs(blockHash string) ([]ConsumedOutput, error) {
	var rows []spentOutputJournalModel
	if err := wrapDBErr(u.db.Where(&spentOutputJournalModel{BlockHash: blockHash}).Find(&rows).Error); err != nil {
		return nil, err
	}
	out := make([]ConsumedOutput, len(rows))
	for i, r := range rows {
		out[i] = ConsumedOutput{TxHash: r.TxHash, Index: r.Index, Address: r.Address}
	}
	return out, nil
}

// ClearConsumedOutputs discards blockHash's reverse journal once it can no
// longer be undone (finality), or after a successful undo has consumed it.
func (u *UnitOfWork) ClearConsumedOutputs(blockHash string) error {
	return wrapDBErr(u.db.Where(&spentOutputJournalModel{BlockHash: blockHash}).Delete(&spentOutputJournalModel{}).Error)
}

// CreatePendingSpentOutput records a mempool reservation.
func (u *UnitOfWork) CreatePendingSpentOutput(txHash string, index uint8) error {
	return wrapDBErr(u.db.Create(&PendingSpentOutputModel{TxHash: txHash, Index: index}).Error)
}

// DeletePendingSpentOutputsForTx releases every reservation held by
// txHash, on confirmation or eviction.
func (u *UnitOfWork) DeletePendingSpentOutputsForTx(txHash string) error {
	return wrapDBErr(u.db.Where(&PendingSpentOutputModel{TxHash: txHash}).Delete(&PendingSpentOutputModel{}).Error)
}

// IsPendingSpent reports whether (txHash, index) is already reserved by
// some pending transaction.
func (u *UnitOfWork) IsPendingSpent(txHash string, index uint8) (bool, error) {
	var count int
	err := u.db.Model(&PendingSpentOutputModel{}).Where(&PendingSpentOutputModel{TxHash: txHash, Index: index}).Count(&count).Error
	if err != nil {
		return false, wrapDBErr(err)
	}
	return count > 0, nil
}

// ListAllPendingSpentOutputs returns every current mempool reservation,
// used to build the "UTXO ∪ outputs-of-currently-pending" view.
func (u *UnitOfWork) ListAllPendingSpentOutputs() ([]*PendingSpentOutputModel, error) {
	var rows []*PendingSpentOutputModel
	if err := wrapDBErr(u.db.Find(&rows).Error); err != nil {
		return nil, err
	}
	return rows, nil
}

// CountPending returns the current mempool size, for the MaxMempoolSize
// admission check.
func (u *UnitOfWork) CountPending() (int, error) {
	var count int
	if err := wrapDBErr(u.db.Model(&PendingTransactionModel{}).Count(&count).Error); err != nil {
		return 0, err
	}
	return count, nil
}
