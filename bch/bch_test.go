package bch

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/btcsuite/btcwallet/walletdb"
	_ "github.com/btcsuite/btcwallet/walletdb/bdb"
	"github.com/stretchr/testify/require"

	"github.com/cashkit/coincore/engine"
	"github.com/cashkit/coincore/money"
	"github.com/cashkit/coincore/pkg/feerate"
	"github.com/cashkit/coincore/walletstate"
)

type stubFees struct{}

func (stubFees) FeeRate(context.Context,
	engine.FeeLevel) (feerate.Rate, error) {

	return feerate.PerKB(sats(1000)), nil
}

type stubRates struct{}

func (stubRates) Rate(context.Context,
	money.Currency) (money.ExchangeRate, error) {

	return money.NewExchangeRate(money.BCH, money.USD, 24217), nil
}

type stubBroadcaster struct{}

func (stubBroadcaster) Submit(context.Context,
	engine.RawTx) (string, error) {

	return "txid", nil
}

func setupTestState(t *testing.T) *walletstate.Store {
	t.Helper()

	f, err := os.CreateTemp(t.TempDir(), "bch-test-*.db")
	require.NoError(t, err)

	dbPath := f.Name()
	require.NoError(t, f.Close())
	require.NoError(t, os.Remove(dbPath))

	db, err := walletdb.Create("bdb", dbPath, true, time.Second*10, false)
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = db.Close()
	})

	store, err := walletstate.Open(db)
	require.NoError(t, err)

	return store
}

// TestCapabilities verifies the assembled capability record and its
// collaborator wiring.
func TestCapabilities(t *testing.T) {
	t.Parallel()

	source := &countingSource{balance: sats(6_000_000)}

	caps, err := Capabilities(Config{
		Params:      testParams,
		Ring:        newTestRing(t),
		State:       setupTestState(t),
		UTXOs:       source,
		Fees:        stubFees{},
		Rates:       stubRates{},
		Broadcaster: stubBroadcaster{},
	})
	require.NoError(t, err)

	require.Equal(t, money.BCH, caps.Asset)
	require.Equal(t, money.USD, caps.DisplayCurrency)
	require.Equal(t, money.FromInt(money.BCH, MaxMoney), caps.MaxAmount)
	require.Equal(t,
		[]engine.FeeLevel{engine.FeeLevelRegular},
		caps.AvailableFeeLevels,
	)
	require.False(t, caps.RequireSecondFactor)

	// Balances flow through the cache, and the cache is flushed after
	// a spend.
	cache, ok := caps.UTXOs.(*BalanceCache)
	require.True(t, ok)
	require.Len(t, caps.FlushOnComplete, 1)
	require.Same(t, cache,
		caps.FlushOnComplete[0].(*BalanceCache))

	// The record stands up a working engine.
	eng, err := engine.New(caps)
	require.NoError(t, err)

	ptx, err := eng.InitializeTx(t.Context(), engine.Account{
		Name: "default",
	})
	require.NoError(t, err)
	require.True(t, ptx.Amount.IsZero())
}

// TestCapabilitiesIncomplete verifies collaborator validation.
func TestCapabilitiesIncomplete(t *testing.T) {
	t.Parallel()

	_, err := Capabilities(Config{Params: testParams})
	require.ErrorIs(t, err, ErrIncompleteConfig)
}

// TestAddressBook verifies cursor-driven change addresses and the
// post-broadcast advance.
func TestAddressBook(t *testing.T) {
	t.Parallel()

	ring := newTestRing(t)
	book := NewAddressBook(ring, setupTestState(t))

	account := engine.Account{Index: 0}
	ctx := t.Context()

	first, err := book.NextChangeAddress(ctx, account)
	require.NoError(t, err)

	// Peeking does not advance.
	again, err := book.NextChangeAddress(ctx, account)
	require.NoError(t, err)
	require.Equal(t, first, again)

	require.NoError(t, book.AdvanceAddresses(ctx, account))

	second, err := book.NextChangeAddress(ctx, account)
	require.NoError(t, err)
	require.NotEqual(t, first, second)
}
