package engine

import (
	"testing"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"

	"github.com/cashkit/coincore/coinselect"
	"github.com/cashkit/coincore/money"
	"github.com/cashkit/coincore/pkg/feerate"
)

const (
	// testCeiling is the single-payment ceiling used by the test asset.
	testCeiling = 2_100_000_000_000_000

	// testDestination is a destination accepted by the mock validator in
	// the happy paths.
	testDestination = "qq3a4l8zsmef7nfhs4ftge4zqkfy7q9hvslpvzqy8y"
)

// testAccount is the funding account used throughout the engine tests.
var testAccount = Account{
	Name:  "My Bitcoin Cash Wallet",
	Index: 0,
	XPub:  "xpub-test",
}

// engineMocks holds the mocked collaborators behind a test engine.
type engineMocks struct {
	utxos     *mockUTXOSource
	fees      *mockFeeSource
	rates     *mockRateSource
	validator *mockValidator
	assembler *mockAssembler
	signer    *mockSigner
	caster    *mockBroadcaster
	addresses *mockAddressBook
	notes     *mockNotesStore
	cache     *fakeCache
}

// newTestEngine creates an engine over a full set of mocked collaborators.
// Expectations are asserted automatically at cleanup.
func newTestEngine(t *testing.T) (*Engine, *engineMocks) {
	t.Helper()

	deps := &engineMocks{
		utxos:     &mockUTXOSource{},
		fees:      &mockFeeSource{},
		rates:     &mockRateSource{},
		validator: &mockValidator{},
		assembler: &mockAssembler{},
		signer:    &mockSigner{},
		caster:    &mockBroadcaster{},
		addresses: &mockAddressBook{},
		notes:     &mockNotesStore{},
		cache:     &fakeCache{},
	}

	eng, err := New(AssetCapabilities{
		Asset:              money.BCH,
		DisplayCurrency:    money.USD,
		MaxAmount:          money.FromInt(money.BCH, testCeiling),
		AvailableFeeLevels: []FeeLevel{FeeLevelRegular},
		DefaultFeeLevel:    FeeLevelRegular,
		TargetScript:       coinselect.ScriptP2PKH,
		ChangeScript:       coinselect.ScriptP2PKH,
		Validator:          deps.validator,
		UTXOs:              deps.utxos,
		Fees:               deps.fees,
		Rates:              deps.rates,
		Selector:           coinselect.New(money.BCH),
		Assembler:          deps.assembler,
		Signer:             deps.signer,
		Broadcaster:        deps.caster,
		Addresses:          deps.addresses,
		Notes:              deps.notes,
		FlushOnComplete:    []Flushable{deps.cache},
	})
	if err != nil {
		t.Fatalf("creating engine: %v", err)
	}

	t.Cleanup(func() {
		deps.utxos.AssertExpectations(t)
		deps.fees.AssertExpectations(t)
		deps.rates.AssertExpectations(t)
		deps.validator.AssertExpectations(t)
		deps.assembler.AssertExpectations(t)
		deps.signer.AssertExpectations(t)
		deps.caster.AssertExpectations(t)
		deps.addresses.AssertExpectations(t)
		deps.notes.AssertExpectations(t)
	})

	return eng, deps
}

// sats builds a BCH amount from satoshis.
func sats(v int64) money.Money {
	return money.FromInt(money.BCH, v)
}

// satsPerKB builds a fee rate from satoshis per kilobyte.
func satsPerKB(v int64) feerate.Rate {
	return feerate.PerKB(sats(v))
}

// coin builds a confirmed P2PKH unspent output with a distinct outpoint.
func coin(seed byte, value int64) coinselect.UnspentOutput {
	return coinselect.UnspentOutput{
		OutPoint: wire.OutPoint{
			Hash:  chainhash.Hash{seed},
			Index: 0,
		},
		Value:         sats(value),
		Confirmations: 6,
		Script:        coinselect.ScriptP2PKH,
	}
}

// testCoins is the canonical funding set: two three-million-satoshi coins.
func testCoins() []coinselect.UnspentOutput {
	return []coinselect.UnspentOutput{
		coin(0x01, 3_000_000),
		coin(0x02, 3_000_000),
	}
}
