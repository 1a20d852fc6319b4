package bch

import (
	"testing"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/require"

	"github.com/cashkit/coincore/coinselect"
	"github.com/cashkit/coincore/keychain"
	"github.com/cashkit/coincore/money"
)

// testMnemonic is the standard all-abandon BIP39 test vector.
const testMnemonic = "abandon abandon abandon abandon abandon abandon " +
	"abandon abandon abandon abandon abandon about"

// testDestination is the genesis block coinbase address, a valid mainnet
// pay-to-pubkey-hash destination.
const testDestination = "1A1zP1eP5QGefi2DMPTfTL5SLmv7DivfNa"

var testParams = &chaincfg.MainNetParams

func newTestRing(t *testing.T) *keychain.Ring {
	t.Helper()

	ring, err := keychain.NewRing(testMnemonic, "", 0, testParams)
	require.NoError(t, err)

	return ring
}

// sats builds a BCH amount from satoshis.
func sats(v int64) money.Money {
	return money.FromInt(money.BCH, v)
}

// ringCoin builds an unspent output locked to one of the ring's own receive
// addresses, so the test signer can spend it.
func ringCoin(t *testing.T, ring *keychain.Ring, index uint32,
	value int64) coinselect.UnspentOutput {

	t.Helper()

	addr, err := ring.AddressAt(keychain.BranchReceive, index)
	require.NoError(t, err)

	pkScript, err := txscript.PayToAddrScript(addr)
	require.NoError(t, err)

	return coinselect.UnspentOutput{
		OutPoint: wire.OutPoint{
			Hash:  chainhash.Hash{byte(index + 1)},
			Index: 0,
		},
		Value:         sats(value),
		Confirmations: 6,
		PkScript:      pkScript,
		Script:        coinselect.ScriptP2PKH,
	}
}
