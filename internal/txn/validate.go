package txn

import (
	"github.com/The-Sycorax/denaro/internal/amount"
	"github.com/The-Sycorax/denaro/internal/errs"
	"github.com/The-Sycorax/denaro/internal/primitives"
)

// UTXOLookup resolves an outpoint to the address and amount of the output
// it references, if that output is still unspent in the snapshot being
// validated against. Implemented by internal/utxoset (and, for mempool
// admission, a view layering pending outputs over it).
type UTXOLookup interface {
	Lookup(o Outpoint) (address string, amt amount.Amount, ok bool)
}

// Validate runs the five-stage validation pipeline against utxo and returns
// the computed fee on success. coinbaseReward, when non-nil, signals that
// tx is expected to be this block's coinbase and the amount it must mint
// (block reward + sum of included fees); in that case inputs/fee checks
// are replaced by the coinbase-specific rule.
func Validate(tx *Transaction, utxo UTXOLookup, coinbaseReward *amount.Amount) (amount.Amount, error) {
	if err := checkStructure(tx); err != nil {
		return 0, err
	}

	if coinbaseReward != nil {
		return validateCoinbase(tx, *coinbaseReward)
	}
	if tx.IsCoinbase() {
		return 0, errs.New(errs.ErrInvalidStructure, "non-coinbase transaction has zero inputs")
	}

	var totalIn, totalOut amount.Amount
	for _, in := range tx.Inputs {
		addr, amt, ok := utxo.Lookup(in.Outpoint)
		if !ok {
			return 0, errs.New(errs.ErrUnknownInput, "input %s:%d does not reference an unspent output",
				in.Outpoint.TxHash, in.Outpoint.Index)
		}
		addrParsed, err := primitives.ParseAddress(addr)
		if err != nil {
			return 0, errs.New(errs.ErrInternal, "stored output has unparsable address: %s", err)
		}
		if !primitives.Verify(addrParsed.PublicKey, tx.SigningDigest(), in.Signature) {
			return 0, errs.New(errs.ErrSignatureInvalid, "signature for input %s:%d does not verify",
				in.Outpoint.TxHash, in.Outpoint.Index)
		}
		var aerr error
		totalIn, aerr = amount.Add(totalIn, amt)
		if aerr != nil {
			return 0, aerr
		}
	}

	for _, out := range tx.Outputs {
		if !out.Amount.Positive() {
			return 0, errs.New(errs.ErrAmountOutOfRange, "output amount must be positive")
		}
		var aerr error
		totalOut, aerr = amount.Add(totalOut, out.Amount)
		if aerr != nil {
			return 0, aerr
		}
	}

	fee := amount.Sub(totalIn, totalOut)
	if !(fee >= 0) {
		return 0, errs.New(errs.ErrInsufficientFunds, "inputs %s do not cover outputs %s", totalIn, totalOut)
	}
	if fee != tx.Fees {
		return 0, errs.New(errs.ErrInsufficientFunds, "declared fee %s does not match computed fee %s", tx.Fees, fee)
	}
	return fee, nil
}

func validateCoinbase(tx *Transaction, reward amount.Amount) (amount.Amount, error) {
	if !tx.IsCoinbase() {
		return 0, errs.New(errs.ErrInvalidStructure, "coinbase transaction must have zero inputs")
	}
	if len(tx.Outputs) != 1 {
		return 0, errs.New(errs.ErrInvalidStructure, "coinbase transaction must have exactly one output")
	}
	if tx.Outputs[0].Amount != reward {
		return 0, errs.New(errs.ErrBadReward, "coinbase output %s does not equal expected reward %s",
			tx.Outputs[0].Amount, reward)
	}
	return 0, nil
}

func checkStructure(tx *Transaction) error {
	if len(tx.Inputs) > MaxInputs {
		return errs.New(errs.ErrInvalidStructure, "transaction has %d inputs, max %d", len(tx.Inputs), MaxInputs)
	}
	if len(tx.Outputs) == 0 {
		return errs.New(errs.ErrInvalidStructure, "transaction has no outputs")
	}
	if len(tx.Outputs) > MaxOutputs {
		return errs.New(errs.ErrInvalidStructure, "transaction has %d outputs, max %d", len(tx.Outputs), MaxOutputs)
	}
	seen := make(map[Outpoint]struct{}, len(tx.Inputs))
	for _, in := range tx.Inputs {
		if _, dup := seen[in.Outpoint]; dup {
			return errs.New(errs.ErrDoubleSpend, "duplicate input %s:%d within transaction",
				in.Outpoint.TxHash, in.Outpoint.Index)
		}
		seen[in.Outpoint] = struct{}{}
	}
	for _, out := range tx.Outputs {
		if _, err := primitives.ParseAddress(out.Address); err != nil {
			return errs.New(errs.ErrMalformedInput, "output has invalid address: %s", err)
		}
	}
	return nil
}
