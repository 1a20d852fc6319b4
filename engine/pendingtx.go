// Copyright (c) 2025 The cashkit developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package engine

import (
	"fmt"

	"github.com/cashkit/coincore/coinselect"
	"github.com/cashkit/coincore/money"
	"github.com/cashkit/coincore/pkg/feerate"
)

// FeeLevel is a named fee priority tier. Engines declare which levels they
// support; the rate behind a level comes from the asset's fee quote source.
type FeeLevel uint8

const (
	// FeeLevelRegular is the default priority tier.
	FeeLevelRegular FeeLevel = iota

	// FeeLevelPriority is the expedited tier. Not every asset engine
	// offers it.
	FeeLevelPriority
)

// String returns the string representation of a fee level.
func (f FeeLevel) String() string {
	switch f {
	case FeeLevelRegular:
		return "regular"

	case FeeLevelPriority:
		return "priority"

	default:
		return "unknown fee level"
	}
}

// FeeSelection carries the selected fee level, the levels the engine offers,
// and the most recently quoted rate per level.
type FeeSelection struct {
	// SelectedLevel is the level currently applied to selection.
	SelectedLevel FeeLevel

	// AvailableLevels are the levels the engine supports.
	AvailableLevels []FeeLevel

	// RatesByLevel holds the last successfully fetched rate for each
	// level that has been quoted so far.
	RatesByLevel map[FeeLevel]feerate.Rate
}

// Supports reports whether the level is in the available set.
func (f FeeSelection) Supports(level FeeLevel) bool {
	for _, l := range f.AvailableLevels {
		if l == level {
			return true
		}
	}

	return false
}

// clone returns a deep copy so fee selections are never shared between
// pending transaction snapshots.
func (f FeeSelection) clone() FeeSelection {
	cp := f
	cp.AvailableLevels = append([]FeeLevel(nil), f.AvailableLevels...)

	cp.RatesByLevel = make(map[FeeLevel]feerate.Rate, len(f.RatesByLevel))
	for k, v := range f.RatesByLevel {
		cp.RatesByLevel[k] = v
	}

	return cp
}

// Limits bounds the requestable amount: the minimum enforces the dust floor
// and the maximum enforces the spendable ceiling at the selected fee rate.
type Limits struct {
	Min money.Money
	Max money.Money
}

// ConfirmationKind identifies the role of a confirmation line item.
type ConfirmationKind uint8

const (
	// ConfirmationFrom names the funding account.
	ConfirmationFrom ConfirmationKind = iota

	// ConfirmationTo names the destination address.
	ConfirmationTo

	// ConfirmationNetworkFee reports the fee in native and fiat terms.
	ConfirmationNetworkFee

	// ConfirmationTotal reports amount plus fee in native and fiat terms.
	ConfirmationTotal

	// ConfirmationNote carries the optional human-readable note.
	ConfirmationNote

	// ConfirmationErrorNotice flags a validation failure discovered after
	// the confirmation list was built.
	ConfirmationErrorNotice
)

// ConfirmationItem is one user-facing line item rendered before execution.
// Amount-bearing kinds carry the native value plus its fiat conversion;
// text kinds carry only Text.
type ConfirmationItem struct {
	Kind   ConfirmationKind
	Text   string
	Amount money.Money
	Fiat   money.Money
}

// Scratch is the engine-private intermediate state carried through the
// pipeline. It is a sealed interface so the set of scratch shapes is closed
// at compile time: UTXO-style engines carry a selected-coin bundle, while
// account-model engines would carry a different variant.
type Scratch interface {
	// isScratch is the sealed-interface marker method.
	isScratch()
}

// UTXOScratch is the scratch variant for UTXO-style engines: the bundle
// selected for the current amount. It is discarded whole and recomputed on
// every amount update, never appended to.
type UTXOScratch struct {
	// Bundle is the output of the latest coin selection pass.
	Bundle *coinselect.SelectedCoinBundle
}

// isScratch marks UTXOScratch as a Scratch implementation.
func (*UTXOScratch) isScratch() {}

// A compile-time assertion that UTXOScratch implements Scratch.
var _ Scratch = (*UTXOScratch)(nil)

// PendingTx is the in-flight accumulator threading through every pipeline
// phase: the requested amount, the balances and fee breakdown computed for
// it, the confirmation line items, and the engine's private scratch state.
//
// Snapshots are rebuilt copy-on-write by each phase; a *PendingTx handed to
// a caller is never mutated afterwards. Pending transactions live only for
// the duration of one send flow and are never persisted.
type PendingTx struct {
	// Amount is the payment amount requested by the user.
	Amount money.Money

	// TotalBalance is the account's total balance at the last fetch.
	TotalBalance money.Money

	// AvailableBalance is the maximum spendable at the selected fee rate,
	// i.e. total minus the fee for sweeping everything.
	AvailableBalance money.Money

	// FeeForFullAvailable is the fee that sweeping the whole balance
	// would cost.
	FeeForFullAvailable money.Money

	// FeeAmount is the absolute fee for the current selection.
	FeeAmount money.Money

	// FeeSelection carries level choices and quoted rates.
	FeeSelection FeeSelection

	// Limits bounds the requestable amount.
	Limits Limits

	// Confirmations is the ordered list of user-facing line items, built
	// by the confirmation phase.
	Confirmations []ConfirmationItem

	// ValidationState is the outcome of the latest validation pass.
	ValidationState ValidationState

	// Note is the optional human-readable note to attach to the
	// transaction after execution.
	Note string

	// Scratch holds engine-private intermediate state.
	Scratch Scratch
}

// clone returns a deep-enough copy for copy-on-write phase updates: slices
// and maps are duplicated, monetary values are immutable already.
func (p *PendingTx) clone() *PendingTx {
	cp := *p
	cp.FeeSelection = p.FeeSelection.clone()
	cp.Confirmations = append([]ConfirmationItem(nil), p.Confirmations...)

	return &cp
}

// utxoBundle returns the selected-coin bundle from the scratch state, or nil
// when no selection has been performed for the current amount.
func (p *PendingTx) utxoBundle() *coinselect.SelectedCoinBundle {
	scratch, ok := p.Scratch.(*UTXOScratch)
	if !ok {
		return nil
	}

	return scratch.Bundle
}

// TotalSent is the full debit the transaction causes: amount plus fee.
func (p *PendingTx) TotalSent() money.Money {
	return p.Amount.Add(p.FeeAmount)
}

// CanExecute reports whether the latest validation pass cleared the
// transaction for execution.
func (p *PendingTx) CanExecute() bool {
	return p.ValidationState == ValidationCanExecute
}

// String returns a terse summary, safe to log.
func (p *PendingTx) String() string {
	return fmt.Sprintf("amount=%s fee=%s available=%s state=%s",
		p.Amount, p.FeeAmount, p.AvailableBalance, p.ValidationState)
}

// TxResult is the outcome of a successful execution: the network-assigned
// transaction identifier and the amount sent.
type TxResult struct {
	// TxID is the final transaction identifier.
	TxID string

	// Amount is the payment amount that was sent.
	Amount money.Money
}
