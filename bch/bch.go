// Copyright (c) 2025 The cashkit developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package bch supplies the Bitcoin Cash capability record for the shared
// transaction pipeline: address validation, transaction assembly, signing
// over the HD key ring, and the wiring of chain access and persistent
// wallet state.
package bch

import (
	"errors"

	"github.com/btcsuite/btcd/chaincfg"

	"github.com/cashkit/coincore/coinselect"
	"github.com/cashkit/coincore/engine"
	"github.com/cashkit/coincore/keychain"
	"github.com/cashkit/coincore/money"
	"github.com/cashkit/coincore/walletstate"
)

// MaxMoney is the protocol ceiling for a single payment, in satoshis.
const MaxMoney = 2_100_000_000_000_000

// ErrIncompleteConfig is returned when Capabilities is missing a
// collaborator.
var ErrIncompleteConfig = errors.New("incomplete bch configuration")

// Config wires the Bitcoin Cash collaborators into a capability record.
type Config struct {
	// Params identifies the network.
	Params *chaincfg.Params

	// Ring is the signing key ring for the funding account.
	Ring *keychain.Ring

	// State persists address cursors and transaction notes.
	State *walletstate.Store

	// UTXOs reports spendable outputs and balances.
	UTXOs engine.UTXOSource

	// Fees quotes fee rates.
	Fees engine.FeeSource

	// Rates quotes fiat exchange rates.
	Rates engine.RateSource

	// Broadcaster submits signed transactions.
	Broadcaster engine.Broadcaster

	// RequireSecondFactor marks the key ring as sealed behind a second
	// factor.
	RequireSecondFactor bool
}

// Capabilities builds the Bitcoin Cash capability record. The asset quotes
// a single regular fee level, weighs transactions with the pay-to-pubkey-hash
// table, and caches balances until a spend invalidates them.
func Capabilities(cfg Config) (engine.AssetCapabilities, error) {
	var zero engine.AssetCapabilities

	switch {
	case cfg.Params == nil,
		cfg.Ring == nil,
		cfg.State == nil,
		cfg.UTXOs == nil,
		cfg.Fees == nil,
		cfg.Rates == nil,
		cfg.Broadcaster == nil:

		return zero, ErrIncompleteConfig
	}

	balances := NewBalanceCache(cfg.UTXOs, DefaultBalanceTTL)

	return engine.AssetCapabilities{
		Asset:               money.BCH,
		DisplayCurrency:     money.USD,
		MaxAmount:           money.FromInt(money.BCH, MaxMoney),
		AvailableFeeLevels:  []engine.FeeLevel{engine.FeeLevelRegular},
		DefaultFeeLevel:     engine.FeeLevelRegular,
		TargetScript:        coinselect.ScriptP2PKH,
		ChangeScript:        coinselect.ScriptP2PKH,
		RequireSecondFactor: cfg.RequireSecondFactor,
		Validator:           NewValidator(cfg.Params),
		UTXOs:               balances,
		Fees:                cfg.Fees,
		Rates:               cfg.Rates,
		Selector:            coinselect.New(money.BCH),
		Assembler:           NewAssembler(cfg.Params),
		Signer:              NewSigner(cfg.Params, cfg.Ring),
		Broadcaster:         cfg.Broadcaster,
		Addresses:           NewAddressBook(cfg.Ring, cfg.State),
		Notes:               cfg.State,
		FlushOnComplete:     []engine.Flushable{balances},
	}, nil
}
