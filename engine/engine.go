// Copyright (c) 2025 The cashkit developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package engine implements the asset-agnostic transaction pipeline: a
// pending transaction moves through initialize, amount update, validation,
// confirmation building and execution, with every asset-specific behavior
// supplied through a capability record rather than a subtype.
package engine

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/cashkit/coincore/coinselect"
	"github.com/cashkit/coincore/money"
	"github.com/cashkit/coincore/pkg/feerate"
)

// Engine runs the shared pipeline phases for one asset. It is stateless:
// every phase takes the previous PendingTx snapshot and returns a new one,
// so an Engine is safe for concurrent use. Sequencing and cancellation are
// the Processor's concern.
type Engine struct {
	caps AssetCapabilities
}

// New creates an Engine from a capability record, rejecting records missing
// a required collaborator.
func New(caps AssetCapabilities) (*Engine, error) {
	switch {
	case caps.Validator == nil:
		return nil, fmt.Errorf("capability record for %s missing "+
			"address validator", caps.Asset)

	case caps.UTXOs == nil:
		return nil, fmt.Errorf("capability record for %s missing "+
			"utxo source", caps.Asset)

	case caps.Fees == nil:
		return nil, fmt.Errorf("capability record for %s missing "+
			"fee source", caps.Asset)

	case caps.Rates == nil:
		return nil, fmt.Errorf("capability record for %s missing "+
			"rate source", caps.Asset)

	case caps.Selector == nil:
		return nil, fmt.Errorf("capability record for %s missing "+
			"coin selector", caps.Asset)

	case caps.Assembler == nil:
		return nil, fmt.Errorf("capability record for %s missing "+
			"assembler", caps.Asset)

	case caps.Signer == nil:
		return nil, fmt.Errorf("capability record for %s missing "+
			"signer", caps.Asset)

	case caps.Broadcaster == nil:
		return nil, fmt.Errorf("capability record for %s missing "+
			"broadcaster", caps.Asset)

	case caps.Addresses == nil:
		return nil, fmt.Errorf("capability record for %s missing "+
			"address book", caps.Asset)

	case len(caps.AvailableFeeLevels) == 0:
		return nil, fmt.Errorf("capability record for %s declares "+
			"no fee levels", caps.Asset)
	}

	return &Engine{caps: caps}, nil
}

// Asset returns the currency the engine serves.
func (e *Engine) Asset() money.Currency {
	return e.caps.Asset
}

// InitializeTx produces the zeroed pending transaction that starts a send
// flow: zero amounts, the default fee level selected, and no validation
// performed yet.
func (e *Engine) InitializeTx(ctx context.Context,
	account Account) (*PendingTx, error) {

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	zero := money.Zero(e.caps.Asset)

	log.Debugf("Initializing pending tx for account %v(%s)",
		account.Index, account.Name)

	return &PendingTx{
		Amount:              zero,
		TotalBalance:        zero,
		AvailableBalance:    zero,
		FeeForFullAvailable: zero,
		FeeAmount:           zero,
		FeeSelection: FeeSelection{
			SelectedLevel: e.caps.DefaultFeeLevel,
			AvailableLevels: append(
				[]FeeLevel(nil),
				e.caps.AvailableFeeLevels...,
			),
			RatesByLevel: make(map[FeeLevel]feerate.Rate),
		},
		Limits: Limits{
			Min: e.caps.Selector.Dust(),
			Max: zero,
		},
		ValidationState: ValidationNone,
	}, nil
}

// accountFunds is the joined result of the concurrent balance, output and
// fee rate fetches backing one amount update.
type accountFunds struct {
	balance money.Money
	outputs []coinselect.UnspentOutput
	rate    feerate.Rate
}

// fetchFunds runs the three fetches an amount update depends on behind a
// single barrier. All three must succeed; the first failure cancels the
// others.
func (e *Engine) fetchFunds(ctx context.Context, account Account,
	level FeeLevel) (*accountFunds, error) {

	var funds accountFunds

	eg, ectx := errgroup.WithContext(ctx)

	eg.Go(func() error {
		balance, err := e.caps.UTXOs.Balance(ectx, account)
		if err != nil {
			return fmt.Errorf("fetching balance: %w", err)
		}

		funds.balance = balance

		return nil
	})

	eg.Go(func() error {
		outputs, err := e.caps.UTXOs.UnspentOutputs(ectx, account)
		if err != nil {
			return fmt.Errorf("fetching unspent outputs: %w", err)
		}

		funds.outputs = outputs

		return nil
	})

	eg.Go(func() error {
		rate, err := e.caps.Fees.FeeRate(ectx, level)
		if err != nil {
			return fmt.Errorf("fetching fee rate: %w", err)
		}

		// A zero rate would silently under-price the transaction, so
		// it is treated the same as an unavailable quote.
		if rate.IsZero() {
			return fmt.Errorf("fee source quoted a zero rate "+
				"for level %s", level)
		}

		funds.rate = rate

		return nil
	})

	if err := eg.Wait(); err != nil {
		return nil, err
	}

	return &funds, nil
}

// UpdateAmount recomputes the pending transaction for a new payment amount:
// it refetches the account's balance, outputs and the current fee rate,
// re-runs coin selection, and fills in the fee breakdown, limits and
// scratch state. The previous selection is discarded whole.
//
// Context cancellation is returned as an error so a superseded update never
// commits. Any other fetch or selection failure degrades into a pending
// transaction that validates as insufficient funds: the caller always holds
// a renderable snapshot.
func (e *Engine) UpdateAmount(ctx context.Context, account Account,
	ptx *PendingTx, amount money.Money) (*PendingTx, error) {

	if ptx == nil {
		return nil, ErrNotInitialized
	}

	next := ptx.clone()
	next.Amount = amount
	next.ValidationState = ValidationNone
	next.Scratch = &UTXOScratch{}
	next.Confirmations = nil

	level := next.FeeSelection.SelectedLevel

	funds, err := e.fetchFunds(ctx, account, level)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		// Degrade: with no fresh funds data the amount cannot be
		// covered, which the validation phase reports as insufficient
		// funds. The cause is logged since the state hides it.
		log.Warnf("Amount update degraded for account %v: %v",
			account.Index, err)

		zero := money.Zero(e.caps.Asset)
		next.TotalBalance = zero
		next.AvailableBalance = zero
		next.FeeForFullAvailable = zero
		next.FeeAmount = zero
		next.Limits.Max = zero

		return next, nil
	}

	next.FeeSelection.RatesByLevel[level] = funds.rate
	next.TotalBalance = funds.balance

	maxSpend, feeForMax := e.caps.Selector.MaxSpendable(
		funds.outputs, funds.rate, e.caps.TargetScript,
	)

	next.AvailableBalance = maxSpend
	next.FeeForFullAvailable = feeForMax
	next.Limits.Max = maxSpend
	if e.caps.MaxAmount.LessThan(maxSpend) {
		next.Limits.Max = e.caps.MaxAmount
	}

	// Amounts outside the valid range never reach selection; validation
	// reports them as invalid rather than unfunded.
	if !amount.IsPositive() || amount.LessThan(e.caps.Selector.Dust()) ||
		amount.GreaterThan(e.caps.MaxAmount) {

		next.FeeAmount = money.Zero(e.caps.Asset)

		return next, nil
	}

	bundle, err := e.caps.Selector.Select(
		funds.outputs, amount, funds.rate,
		e.caps.TargetScript, e.caps.ChangeScript,
	)
	if err != nil {
		log.Debugf("Selection failed for amount %s: %v", amount, err)

		next.FeeAmount = money.Zero(e.caps.Asset)

		return next, nil
	}

	next.FeeAmount = bundle.AbsoluteFee
	next.Scratch = &UTXOScratch{Bundle: bundle}

	log.Tracef("Amount updated: %s across %d inputs, fee %s, change %s",
		amount, len(bundle.SpendableOutputs), bundle.AbsoluteFee,
		bundle.ChangeAmount)

	return next, nil
}

// UpdateFeeLevel switches the selected fee level and recomputes the pending
// transaction at the new level's rate. Levels outside the engine's declared
// set are rejected.
func (e *Engine) UpdateFeeLevel(ctx context.Context, account Account,
	ptx *PendingTx, level FeeLevel) (*PendingTx, error) {

	if ptx == nil {
		return nil, ErrNotInitialized
	}

	if !ptx.FeeSelection.Supports(level) {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFeeLevel, level)
	}

	next := ptx.clone()
	next.FeeSelection.SelectedLevel = level

	return e.UpdateAmount(ctx, account, next, next.Amount)
}

// ValidateAmount runs the pure amount checks against the latest snapshot:
// the amount must be positive, at or above the dust floor, at or below the
// asset ceiling, and covered by a successful coin selection. Amount
// validity is reported before fund coverage, so a nonsense amount is never
// mislabelled as unfunded.
func (e *Engine) ValidateAmount(ptx *PendingTx) *PendingTx {
	next := ptx.clone()

	switch {
	case !ptx.Amount.IsPositive(),
		ptx.Amount.LessThan(e.caps.Selector.Dust()),
		ptx.Amount.GreaterThan(e.caps.MaxAmount):

		next.ValidationState = ValidationInvalidAmount

	case ptx.utxoBundle() == nil:
		next.ValidationState = ValidationInsufficientFunds

	default:
		next.ValidationState = ValidationCanExecute
	}

	return next
}

// BuildConfirmations assembles the user-facing confirmation line items for
// the current snapshot: source account, destination, network fee and total,
// with fiat conversions at the freshly fetched exchange rate, plus the note
// when one is set. A rate fetch failure degrades the fiat figures to zero
// rather than blocking the confirmation screen.
func (e *Engine) BuildConfirmations(ctx context.Context, account Account,
	ptx *PendingTx, destination string) (*PendingTx, error) {

	if ptx == nil {
		return nil, ErrNotInitialized
	}

	fiatZero := money.Zero(e.caps.DisplayCurrency)

	feeFiat, totalFiat := fiatZero, fiatZero

	rate, err := e.caps.Rates.Rate(ctx, e.caps.Asset)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		log.Warnf("Exchange rate unavailable for %s: %v",
			e.caps.Asset, err)
	} else {
		feeFiat = rate.Convert(ptx.FeeAmount)
		totalFiat = rate.Convert(ptx.TotalSent())
	}

	next := ptx.clone()
	next.Confirmations = []ConfirmationItem{
		{
			Kind: ConfirmationFrom,
			Text: account.Name,
		},
		{
			Kind: ConfirmationTo,
			Text: destination,
		},
		{
			Kind:   ConfirmationNetworkFee,
			Amount: ptx.FeeAmount,
			Fiat:   feeFiat,
		},
		{
			Kind:   ConfirmationTotal,
			Amount: ptx.TotalSent(),
			Fiat:   totalFiat,
		},
	}

	if ptx.Note != "" {
		next.Confirmations = append(next.Confirmations,
			ConfirmationItem{
				Kind: ConfirmationNote,
				Text: ptx.Note,
			})
	}

	return next, nil
}

// ValidateAll runs the full pre-execution validation: destination format
// first, then the amount checks. When the snapshot already carries
// confirmation items, a failing validation is also surfaced as an error
// notice line item, replacing any previous notice.
func (e *Engine) ValidateAll(ptx *PendingTx, destination string) *PendingTx {
	var next *PendingTx

	if !e.caps.Validator.IsValidAddress(destination) {
		next = ptx.clone()
		next.ValidationState = ValidationInvalidAddress
	} else {
		next = e.ValidateAmount(ptx)
	}

	if len(next.Confirmations) > 0 {
		next.Confirmations = withErrorNotice(
			next.Confirmations, next.ValidationState,
		)
	}

	return next
}

// withErrorNotice strips any previous error notice item and appends a fresh
// one when the state is failing.
func withErrorNotice(items []ConfirmationItem,
	state ValidationState) []ConfirmationItem {

	kept := items[:0:len(items)]
	for _, item := range items {
		if item.Kind != ConfirmationErrorNotice {
			kept = append(kept, item)
		}
	}

	if state != ValidationCanExecute && state != ValidationNone {
		kept = append(kept, ConfirmationItem{
			Kind: ConfirmationErrorNotice,
			Text: state.String(),
		})
	}

	return kept
}

// Execute assembles, signs and broadcasts the transaction described by the
// snapshot. The snapshot must have passed validation; callers re-validate
// immediately before executing. Signing key material is wiped as soon as
// the signature pass completes. Once the transaction has been handed to the
// broadcaster the attempt runs to completion regardless of the caller's
// context, since cancelling a broadcast is meaningless.
//
// Any failure is wrapped in ErrExecutionFailed and abandons the attempt
// whole; nothing was broadcast unless the submission itself succeeded.
func (e *Engine) Execute(ctx context.Context, account Account,
	ptx *PendingTx, destination, secondFactor string) (*TxResult, error) {

	if ptx == nil {
		return nil, ErrNotInitialized
	}

	if e.caps.RequireSecondFactor && secondFactor == "" {
		return nil, ErrSecondFactorRequired
	}

	if !ptx.CanExecute() {
		return nil, ptx.ValidationState.Err()
	}

	bundle := ptx.utxoBundle()
	if bundle == nil {
		return nil, ErrInsufficientFunds
	}

	var changeAddr string
	if bundle.ChangeAmount.IsPositive() {
		addr, err := e.caps.Addresses.NextChangeAddress(ctx, account)
		if err != nil {
			return nil, fmt.Errorf("%w: deriving change "+
				"address: %v", ErrExecutionFailed, err)
		}

		changeAddr = addr
	}

	unsigned, err := e.caps.Assembler.Prepare(ctx, PrepareRequest{
		Bundle:        bundle,
		Destination:   destination,
		ChangeAddress: changeAddr,
		Amount:        ptx.Amount,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: assembling: %v",
			ErrExecutionFailed, err)
	}

	keys, err := e.caps.Signer.KeysFor(
		ctx, account, bundle.SpendableOutputs, []byte(secondFactor),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: deriving keys: %v",
			ErrExecutionFailed, err)
	}

	signed, err := e.caps.Signer.Sign(ctx, unsigned, keys)
	keys.Zeroize()
	if err != nil {
		return nil, fmt.Errorf("%w: signing: %v",
			ErrExecutionFailed, err)
	}

	// Last cancellation point. Beyond here the broadcast runs detached
	// from the caller's context.
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	txID, err := e.caps.Broadcaster.Submit(
		context.WithoutCancel(ctx), signed,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: broadcasting: %v",
			ErrExecutionFailed, err)
	}

	log.Infof("Broadcast tx %s: %s to %s, fee %s", txID, ptx.Amount,
		destination, ptx.FeeAmount)

	return &TxResult{
		TxID:   txID,
		Amount: ptx.Amount,
	}, nil
}

// PostExecute runs the best-effort follow-ups after a successful broadcast:
// the address cursors advance past the consumed addresses, the note is
// persisted, and dependent caches are invalidated. The transaction is
// already on the network, so failures here are logged and swallowed rather
// than surfaced as execution failures. Callers invoke it exactly once per
// successful execution.
func (e *Engine) PostExecute(ctx context.Context, account Account,
	result *TxResult, note string) {

	// The transaction is already on the network, so a caller
	// cancellation landing after the broadcast must not skip the
	// bookkeeping.
	ctx = context.WithoutCancel(ctx)

	if err := e.caps.Addresses.AdvanceAddresses(ctx, account); err != nil {
		log.Errorf("Advancing addresses after tx %s: %v",
			result.TxID, err)
	}

	if note != "" && e.caps.Notes != nil {
		err := e.caps.Notes.SaveNote(ctx, result.TxID, note)
		if err != nil {
			log.Errorf("Saving note for tx %s: %v",
				result.TxID, err)
		}
	}

	for _, cache := range e.caps.FlushOnComplete {
		cache.Invalidate()
	}
}

// MaxAvailable reports the ceiling spendable at the snapshot's fee rate,
// already net of the sweep fee. It reflects the fetches performed by the
// latest amount update.
func (e *Engine) MaxAvailable(ptx *PendingTx) money.Money {
	if ptx == nil {
		return money.Zero(e.caps.Asset)
	}

	return ptx.AvailableBalance
}
