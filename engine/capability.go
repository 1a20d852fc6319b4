// Copyright (c) 2025 The cashkit developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package engine

import (
	"context"

	"github.com/cashkit/coincore/coinselect"
	"github.com/cashkit/coincore/money"
	"github.com/cashkit/coincore/pkg/feerate"
)

// Account identifies the funding account within the wallet.
type Account struct {
	// Name is the human-readable account label.
	Name string

	// Index is the account's derivation index.
	Index uint32

	// XPub is the extended public key identifying the account to the
	// UTXO source.
	XPub string
}

// UTXOSource reports the spendable outputs and balance of an account. A
// fresh fetch is required before every selection pass; implementations must
// not serve outputs cached across pending-transaction lifetimes.
type UTXOSource interface {
	// UnspentOutputs returns the account's spendable outputs.
	UnspentOutputs(ctx context.Context, account Account) (
		[]coinselect.UnspentOutput, error)

	// Balance returns the account's total balance.
	Balance(ctx context.Context, account Account) (money.Money, error)
}

// FeeSource quotes the current fee rate for a priority level. A fetch
// failure must surface as an error, never as a zero rate: a zero rate would
// silently under-price the transaction.
type FeeSource interface {
	// FeeRate returns the current rate for the given level.
	FeeRate(ctx context.Context, level FeeLevel) (feerate.Rate, error)
}

// RateSource quotes the exchange rate from an asset into the user's display
// currency.
type RateSource interface {
	// Rate returns the current exchange rate for the asset.
	Rate(ctx context.Context, asset money.Currency) (money.ExchangeRate,
		error)
}

// AddressValidator performs asset-specific destination format validation.
type AddressValidator interface {
	// IsValidAddress reports whether the string parses as a valid
	// destination for the asset.
	IsValidAddress(addr string) bool
}

// RawTx is an asset-specific transaction in its wire encoding. The pipeline
// treats it as opaque; only the asset's assembler, signer and broadcaster
// need agree on its shape.
type RawTx interface {
	// TxID returns the transaction's identifier.
	TxID() string

	// SerializedSize returns the encoded size in bytes.
	SerializedSize() int
}

// PrepareRequest bundles the parameters for assembling the raw unsigned
// transaction from the selected coins.
type PrepareRequest struct {
	// Bundle is the coin selection output being spent.
	Bundle *coinselect.SelectedCoinBundle

	// Destination is the validated target address.
	Destination string

	// ChangeAddress receives the change output, if the bundle carries a
	// non-zero change amount.
	ChangeAddress string

	// Amount is the payment amount.
	Amount money.Money
}

// Assembler builds the raw unsigned transaction deterministically from a
// prepare request. Given the same request it must produce the same
// transaction.
type Assembler interface {
	// Prepare assembles the unsigned transaction.
	Prepare(ctx context.Context, req PrepareRequest) (RawTx, error)
}

// KeySet is ephemeral signing key material. It must never outlive the
// signing step: callers wipe it with Zeroize as soon as signing completes.
// Implementations must not log or persist the material.
type KeySet interface {
	// Zeroize overwrites the private key material in place.
	Zeroize()
}

// Signer derives key material for the outputs being spent and signs the
// prepared transaction with it.
type Signer interface {
	// KeysFor derives the signing keys for the given outputs,
	// decrypting stored key material with the second factor when the
	// wallet requires one.
	KeysFor(ctx context.Context, account Account,
		outputs []coinselect.UnspentOutput,
		secondFactor []byte) (KeySet, error)

	// Sign signs every input of the prepared transaction.
	Sign(ctx context.Context, tx RawTx, keys KeySet) (RawTx, error)
}

// Broadcaster submits a signed transaction to the network.
type Broadcaster interface {
	// Submit pushes the signed transaction and returns the
	// network-reported transaction identifier. Rejections are returned
	// as errors distinguishable from local validation failures.
	Submit(ctx context.Context, tx RawTx) (string, error)
}

// AddressBook tracks the wallet's own receive and change address cursors.
type AddressBook interface {
	// NextChangeAddress returns the account's next unused change
	// address without advancing the cursor.
	NextChangeAddress(ctx context.Context, account Account) (string,
		error)

	// AdvanceAddresses moves the receive and change cursors past the
	// addresses consumed by a broadcast transaction. Called exactly once
	// per successful execution.
	AdvanceAddresses(ctx context.Context, account Account) error
}

// NotesStore persists the optional per-transaction note keyed by the
// transaction id. Purely cosmetic and out of the critical path.
type NotesStore interface {
	// SaveNote stores the note for a transaction.
	SaveNote(ctx context.Context, txID, note string) error

	// Note returns the stored note, or an empty string.
	Note(ctx context.Context, txID string) (string, error)
}

// Flushable is a cache that can be invalidated after a spend so the next
// read reflects the transaction.
type Flushable interface {
	// Invalidate drops the cached value.
	Invalidate()
}

// AssetCapabilities is the capability record an asset supplies to host
// itself on the shared pipeline. Each asset provides a value of this type
// rather than subclassing the engine: the pipeline stays generic and the
// asset-specific behavior lives entirely in the record's collaborators.
type AssetCapabilities struct {
	// Asset is the currency this record serves.
	Asset money.Currency

	// DisplayCurrency is the fiat currency confirmation amounts are
	// converted into.
	DisplayCurrency money.Currency

	// MaxAmount is the asset's protocol ceiling for a single payment.
	MaxAmount money.Money

	// AvailableFeeLevels are the levels the asset's fee source quotes.
	AvailableFeeLevels []FeeLevel

	// DefaultFeeLevel is the starting level for new transactions.
	DefaultFeeLevel FeeLevel

	// TargetScript classifies a destination address for fee weighting.
	TargetScript coinselect.ScriptType

	// ChangeScript classifies the wallet's own change outputs.
	ChangeScript coinselect.ScriptType

	// RequireSecondFactor indicates the wallet's key material is behind
	// a second encryption factor.
	RequireSecondFactor bool

	// Validator validates destination addresses.
	Validator AddressValidator

	// UTXOs reports spendable outputs and balances.
	UTXOs UTXOSource

	// Fees quotes fee rates.
	Fees FeeSource

	// Rates quotes fiat exchange rates.
	Rates RateSource

	// Selector performs coin selection with the asset's weight table.
	Selector *coinselect.Selector

	// Assembler builds raw unsigned transactions.
	Assembler Assembler

	// Signer derives keys and signs.
	Signer Signer

	// Broadcaster submits signed transactions.
	Broadcaster Broadcaster

	// Addresses tracks the wallet's own address cursors.
	Addresses AddressBook

	// Notes is the optional per-transaction note store. May be nil.
	Notes NotesStore

	// FlushOnComplete are the caches invalidated after a successful
	// execution.
	FlushOnComplete []Flushable
}
