// Package storage is the durable adapter (C4): five gorm models mapped
// onto the authoritative Postgres schema, plus a unit-of-work
// abstraction so C5/C6 can commit or fully revert a batch of mutations.
// Modelled on daglabs-btcd's apiserver/database + apiserver/models split
// (gorm, migrate/postgres) rather than daglabs-btcd's own LevelDB-backed
// blockdag store, since this ledger is defined against a relational schema.
package storage

import (
	"github.com/The-Sycorax/denaro/internal/amount"
	"github.com/The-Sycorax/denaro/internal/chainblock"
)

// BlockModel maps the `blocks` table. Difficulty and Reward implement
// sql.Scanner/driver.Valuer so they round-trip through the schema's
// NUMERIC(3,1)/NUMERIC(14,6) columns as decimal strings rather than raw
// integers.
type BlockModel struct {
	ID         int64                 `gorm:"primary_key;column:id"`
	Hash       string                `gorm:"column:hash;unique_index;size:64"`
	Content    string                `gorm:"column:content"`
	Address    string                `gorm:"column:address;size:128"`
	Random     uint64                `gorm:"column:random"`
	Difficulty chainblock.Difficulty `gorm:"column:difficulty;type:numeric(3,1)"`
	Reward     amount.Amount         `gorm:"column:reward;type:numeric(14,6)"`
	Timestamp  int64                 `gorm:"column:timestamp"`
}

// TableName pins the table name gorm would otherwise pluralize
// unpredictably given the package's naming.
func (BlockModel) TableName() string { return "blocks" }

// TransactionModel maps the `transactions` table. Address/amount
// arrays denormalise data already present in TxHex so the read paths in
// (get_transaction, get_unspent_for_address) don't need to decode the
// transaction on every query.
type TransactionModel struct {
	ID               int64         `gorm:"primary_key"`
	BlockHash        string        `gorm:"column:block_hash;index"`
	TxHash           string        `gorm:"column:tx_hash;unique_index;size:64"`
	TxHex            string        `gorm:"column:tx_hex"`
	InputsAddresses  []string      `gorm:"column:inputs_addresses;type:text[]"`
	OutputsAddresses []string      `gorm:"column:outputs_addresses;type:text[]"`
	OutputsAmounts   []int64       `gorm:"column:outputs_amounts;type:bigint[]"`
	Fees             amount.Amount `gorm:"column:fees;type:numeric(14,6)"`
	TimeReceived     int64         `gorm:"column:time_received"`
}

func (TransactionModel) TableName() string { return "transactions" }

// UnspentOutputModel maps the `unspent_outputs` table.
type UnspentOutputModel struct {
	ID      int64  `gorm:"primary_key"`
	TxHash  string `gorm:"column:tx_hash;index"`
	Index   uint8  `gorm:"column:index"`
	Address string `gorm:"column:address"`
}

func (UnspentOutputModel) TableName() string { return "unspent_outputs" }

// PendingTransactionModel maps the `pending_transactions` table.
type PendingTransactionModel struct {
	ID              int64         `gorm:"primary_key"`
	TxHash          string        `gorm:"column:tx_hash;unique_index;size:64"`
	TxHex           string        `gorm:"column:tx_hex"`
	InputsAddresses []string      `gorm:"column:inputs_addresses;type:text[]"`
	Fees            amount.Amount `gorm:"column:fees;type:numeric(14,6)"`
	PropagationTime int64         `gorm:"column:propagation_time"`
	TimeReceived    int64         `gorm:"column:time_received"`
}

func (PendingTransactionModel) TableName() string { return "pending_transactions" }

// PendingSpentOutputModel maps the `pending_spent_outputs` table.
type PendingSpentOutputModel struct {
	ID     int64  `gorm:"primary_key"`
	TxHash string `gorm:"column:tx_hash;index"`
	Index  uint8  `gorm:"column:index"`
}

func (PendingSpentOutputModel) TableName() string { return "pending_spent_outputs" }
