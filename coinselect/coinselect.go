// Copyright (c) 2025 The cashkit developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package coinselect implements size-based coin selection over a set of
// unspent transaction outputs. Selection is first-fit over the outputs
// sorted largest first: this minimizes the input count at a given fee rate,
// which keeps future selections cheap, rather than chasing the absolute
// minimal fee.
package coinselect

import (
	"errors"
	"fmt"
	"sort"

	"github.com/btcsuite/btcd/wire"
	"github.com/lightningnetwork/lnd/fn/v2"

	"github.com/cashkit/coincore/money"
	"github.com/cashkit/coincore/pkg/feerate"
)

var (
	// ErrNoSpendableOutputs is returned when selection is attempted
	// against an empty output set.
	ErrNoSpendableOutputs = errors.New("no spendable outputs")

	// ErrInsufficientFunds is returned when the available outputs cannot
	// cover the payment amount plus the fee for spending them.
	ErrInsufficientFunds = errors.New("insufficient funds for amount " +
		"plus fee")

	// ErrDustAmount is returned when the payment amount is below the dust
	// floor.
	ErrDustAmount = errors.New("amount below dust threshold")

	// ErrDuplicateOutput is returned when the candidate set contains the
	// same outpoint more than once.
	ErrDuplicateOutput = errors.New("duplicated unspent output")
)

// DustThreshold is the floor below which an output is uneconomical to spend.
// Payment amounts under it are rejected and change remainders under it are
// folded into the fee instead of creating a dust change output.
const DustThreshold = 546

// UnspentOutput is a spendable output as reported by a UTXO source. Values
// are immutable once fetched; a fresh fetch is required before each
// selection pass since spendability can change underneath us.
type UnspentOutput struct {
	// OutPoint identifies the transaction output being spent.
	OutPoint wire.OutPoint

	// Value is the amount carried by the output.
	Value money.Money

	// Confirmations is the number of blocks confirming the creating
	// transaction, zero for unconfirmed.
	Confirmations int32

	// PkScript is the output's locking script.
	PkScript []byte

	// Script is the script type hint used to weight the input when
	// estimating the spending transaction's size.
	Script ScriptType
}

// SelectedCoinBundle is the result of one selection pass: the outputs to
// spend, the change to return, and the absolute fee. A bundle is never
// mutated after creation; amount edits recompute a fresh bundle.
//
// Invariant: sum(SpendableOutputs) == payment + AbsoluteFee + ChangeAmount,
// where ChangeAmount may be zero if the remainder was folded into the fee.
type SelectedCoinBundle struct {
	// SpendableOutputs are the selected inputs, largest first.
	SpendableOutputs []UnspentOutput

	// ChangeAmount is the value returned to the spender. Zero means no
	// change output is created.
	ChangeAmount money.Money

	// AbsoluteFee is the total fee paid by the transaction.
	AbsoluteFee money.Money
}

// Selector performs coin selection for a single asset using that asset's
// script weight table.
type Selector struct {
	dust money.Money
}

// New creates a Selector with the standard dust floor in the given currency.
func New(currency money.Currency) *Selector {
	return &Selector{dust: money.FromInt(currency, DustThreshold)}
}

// Dust returns the selector's dust floor.
func (s *Selector) Dust() money.Money {
	return s.dust
}

// Select picks a subset of the available outputs covering the payment amount
// plus the fee for spending them at the given rate. The fee is recomputed as
// outputs are added since it depends on the transaction size. If the change
// remainder would fall below the dust floor it is folded into the fee and no
// change output is produced.
func (s *Selector) Select(available []UnspentOutput, payment money.Money,
	rate feerate.Rate, targetScript, changeScript ScriptType) (
	*SelectedCoinBundle, error) {

	if len(available) == 0 {
		return nil, ErrNoSpendableOutputs
	}

	if err := checkDuplicates(available); err != nil {
		return nil, err
	}

	if payment.LessThan(s.dust) {
		return nil, fmt.Errorf("%w: %s", ErrDustAmount, payment)
	}

	candidates := sortLargestFirst(available)

	var (
		gathered     = money.Zero(payment.Currency())
		selected     = make([]UnspentOutput, 0, len(candidates))
		covered      bool
		singleOutput = []ScriptType{targetScript}
	)

	// First-fit accumulation: stop as soon as the gathered value covers the
	// payment plus the fee for a change-less transaction. Whether a change
	// output is affordable is decided afterwards.
	for _, coin := range candidates {
		// Skip outputs that cost more to spend than they contribute.
		if !yieldsPositively(coin, rate) {
			continue
		}

		selected = append(selected, coin)
		gathered = gathered.Add(coin.Value)

		feeNoChange := rate.FeeForSize(
			EstimateSizeForInputs(selected, singleOutput),
		)

		if gathered.GreaterThanOrEqual(payment.Add(feeNoChange)) {
			covered = true
			break
		}
	}

	if !covered {
		return nil, fmt.Errorf("%w: gathered %s for payment of %s",
			ErrInsufficientFunds, gathered, payment)
	}

	// Now decide whether the remainder funds an economical change output.
	feeWithChange := rate.FeeForSize(EstimateSizeForInputs(
		selected, []ScriptType{targetScript, changeScript},
	))

	change := gathered.Sub(payment).Sub(feeWithChange)
	if change.GreaterThanOrEqual(s.dust) {
		return &SelectedCoinBundle{
			SpendableOutputs: selected,
			ChangeAmount:     change,
			AbsoluteFee:      feeWithChange,
		}, nil
	}

	// The remainder is dust (or negative once the change output's own cost
	// is accounted for): fold it into the fee and emit no change output.
	return &SelectedCoinBundle{
		SpendableOutputs: selected,
		ChangeAmount:     money.Zero(payment.Currency()),
		AbsoluteFee:      gathered.Sub(payment),
	}, nil
}

// MaxSpendable reports the ceiling spendable from the entire output set at
// the given rate, along with the fee required to spend it. Outputs that cost
// more to spend than they contribute are excluded from the sweep.
func (s *Selector) MaxSpendable(available []UnspentOutput, rate feerate.Rate,
	targetScript ScriptType) (money.Money, money.Money) {

	zero := money.Zero(s.dust.Currency())

	var (
		total    = zero
		economic = make([]UnspentOutput, 0, len(available))
	)

	for _, coin := range available {
		if !yieldsPositively(coin, rate) {
			continue
		}

		total = total.Add(coin.Value)
		economic = append(economic, coin)
	}

	if len(economic) == 0 {
		return zero, zero
	}

	fee := rate.FeeForSize(EstimateSizeForInputs(
		economic, []ScriptType{targetScript},
	))

	max := total.Sub(fee)
	if !max.IsPositive() {
		return zero, zero
	}

	return max, fee
}

// yieldsPositively reports whether spending the output adds more value than
// the fee its input contributes to the transaction.
func yieldsPositively(coin UnspentOutput, rate feerate.Rate) bool {
	inputFee := rate.FeeForSize(coin.Script.InputSize())

	return coin.Value.GreaterThan(inputFee)
}

// sortLargestFirst returns a copy of the outputs ordered by descending
// value, with outpoint order as the tie break so selection is deterministic
// across passes over equal inputs.
func sortLargestFirst(outputs []UnspentOutput) []UnspentOutput {
	sorted := make([]UnspentOutput, len(outputs))
	copy(sorted, outputs)

	sort.SliceStable(sorted, func(i, j int) bool {
		cmp := sorted[i].Value.Cmp(sorted[j].Value)
		if cmp != 0 {
			return cmp > 0
		}

		return sorted[i].OutPoint.String() < sorted[j].OutPoint.String()
	})

	return sorted
}

// checkDuplicates rejects candidate sets carrying the same outpoint twice.
func checkDuplicates(outputs []UnspentOutput) error {
	outpoints := make([]wire.OutPoint, len(outputs))
	for i, coin := range outputs {
		outpoints[i] = coin.OutPoint
	}

	dedup := fn.NewSet(outpoints...)
	if len(dedup) != len(outpoints) {
		return ErrDuplicateOutput
	}

	return nil
}
