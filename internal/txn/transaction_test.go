package txn

import (
	"crypto/rand"
	"testing"

	"github.com/davecgh/go-spew/spew"
	"github.com/stretchr/testify/require"

	"github.com/The-Sycorax/denaro/internal/amount"
	"github.com/The-Sycorax/denaro/internal/primitives"
)

type fixtureWallet struct {
	priv    *primitives.PrivateKey
	address string
}

func newFixtureWallet(t *testing.T) fixtureWallet {
	t.Helper()
	priv, err := primitives.GenerateKey(rand.Reader)
	require.NoError(t, err)
	addr, err := primitives.EncodeAddress(priv.Public(), primitives.AddressPrefixD)
	require.NoError(t, err)
	return fixtureWallet{priv: priv, address: addr}
}

type memUTXO map[Outpoint]struct {
	address string
	amount  amount.Amount
}

func (m memUTXO) Lookup(o Outpoint) (string, amount.Amount, bool) {
	e, ok := m[o]
	return e.address, e.amount, ok
}

func mustAmount(t *testing.T, s string) amount.Amount {
	t.Helper()
	a, err := amount.Parse(s)
	require.NoError(t, err)
	return a
}

func signedSpend(t *testing.T, wallet fixtureWallet, spend Outpoint, outAddr string, outAmt, fee amount.Amount) *Transaction {
	t.Helper()
	tx := &Transaction{
		Version: 1,
		Inputs:  []TxInput{{Outpoint: spend}},
		Outputs: []TxOutput{{Address: outAddr, Amount: outAmt}},
		Fees:    fee,
	}
	digest := tx.SigningDigest()
	sig, err := primitives.Sign(wallet.priv, digest)
	require.NoError(t, err)
	tx.Inputs[0].Signature = sig
	return tx
}

func TestRoundTripCodec(t *testing.T) {
	wallet := newFixtureWallet(t)
	spend := Outpoint{TxHash: primitives.Sum256([]byte("seed")), Index: 0}
	tx := signedSpend(t, wallet, spend, wallet.address, mustAmount(t, "1.000000"), mustAmount(t, "0.000100"))

	encoded := tx.Encode()
	decoded, err := Decode(encoded)
	require.NoError(t, err)

	require.Equal(t, tx.Version, decoded.Version)
	require.Equal(t, tx.Outputs, decoded.Outputs)
	require.Equal(t, tx.Fees, decoded.Fees)
	require.Equal(t, tx.Inputs[0].Outpoint, decoded.Inputs[0].Outpoint)
	require.Equal(t, tx.Hash(), decoded.Hash(), "decode(encode(t)) must hash identically: %s", spew.Sdump(decoded))
}

func TestValidateAcceptsWellFormedSpend(t *testing.T) {
	wallet := newFixtureWallet(t)
	spend := Outpoint{TxHash: primitives.Sum256([]byte("seed")), Index: 0}
	utxo := memUTXO{
		spend: {address: wallet.address, amount: mustAmount(t, "2.000000")},
	}
	tx := signedSpend(t, wallet, spend, wallet.address, mustAmount(t, "1.999900"), mustAmount(t, "0.000100"))

	fee, err := Validate(tx, utxo, nil)
	require.NoError(t, err)
	require.Equal(t, mustAmount(t, "0.000100"), fee)
}

func TestValidateRejectsBadSignature(t *testing.T) {
	walletA := newFixtureWallet(t)
	walletB := newFixtureWallet(t)
	spend := Outpoint{TxHash: primitives.Sum256([]byte("seed")), Index: 0}
	utxo := memUTXO{
		spend: {address: walletA.address, amount: mustAmount(t, "2.000000")},
	}
	// Sign with the wrong key: the referenced output belongs to walletA.
	tx := signedSpend(t, walletB, spend, walletA.address, mustAmount(t, "1.000000"), mustAmount(t, "0"))
	_, err := Validate(tx, utxo, nil)
	require.Error(t, err)
}

func TestValidateRejectsUnknownInput(t *testing.T) {
	wallet := newFixtureWallet(t)
	spend := Outpoint{TxHash: primitives.Sum256([]byte("missing")), Index: 0}
	tx := signedSpend(t, wallet, spend, wallet.address, mustAmount(t, "1.000000"), mustAmount(t, "0"))
	_, err := Validate(tx, memUTXO{}, nil)
	require.Error(t, err)
}

func TestValidateRejectsDuplicateInputsWithinTx(t *testing.T) {
	wallet := newFixtureWallet(t)
	spend := Outpoint{TxHash: primitives.Sum256([]byte("seed")), Index: 0}
	tx := &Transaction{
		Version: 1,
		Inputs:  []TxInput{{Outpoint: spend}, {Outpoint: spend}},
		Outputs: []TxOutput{{Address: wallet.address, Amount: mustAmount(t, "1.000000")}},
	}
	err := checkStructure(tx)
	require.Error(t, err)
}

func TestCoinbaseValidation(t *testing.T) {
	wallet := newFixtureWallet(t)
	reward := mustAmount(t, "64.000000")
	tx := &Transaction{
		Version: 1,
		Outputs: []TxOutput{{Address: wallet.address, Amount: reward}},
	}
	_, err := Validate(tx, memUTXO{}, &reward)
	require.NoError(t, err)

	tx.Outputs[0].Amount = mustAmount(t, "63.000000")
	_, err = Validate(tx, memUTXO{}, &reward)
	require.Error(t, err)
}
