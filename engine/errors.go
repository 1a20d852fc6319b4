// Copyright (c) 2025 The cashkit developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package engine

import "errors"

var (
	// ErrNotInitialized is returned when an operation is attempted before
	// InitializeTx has produced a pending transaction.
	ErrNotInitialized = errors.New("transaction not initialized")

	// ErrStateForbidden is returned when an operation cannot be performed
	// in the processor's current phase.
	ErrStateForbidden = errors.New("operation forbidden in current phase")

	// ErrSuperseded is returned to a caller whose amount update was
	// replaced by a newer one before it could commit.
	ErrSuperseded = errors.New("update superseded by a newer amount")

	// ErrUnsupportedFeeLevel is returned when a fee level outside the
	// engine's declared set is requested.
	ErrUnsupportedFeeLevel = errors.New("fee level not supported by engine")

	// ErrSecondFactorRequired is returned when execution is attempted
	// without the second factor on a wallet that requires one.
	ErrSecondFactorRequired = errors.New("second factor required")

	// ErrInvalidAddress is returned when execution is refused because the
	// destination fails address validation.
	ErrInvalidAddress = errors.New("invalid destination address")

	// ErrInvalidAmount is returned when execution is refused because the
	// amount is non-positive, below the dust floor, or above the asset
	// ceiling.
	ErrInvalidAmount = errors.New("invalid amount")

	// ErrInsufficientFunds is returned when execution is refused because
	// the selected outputs cannot cover the amount plus fee.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrExecutionFailed wraps failures of the prepare/sign/submit step.
	// The attempt is abandoned whole; nothing was broadcast unless the
	// submission itself reported success. Execution failures are never
	// retried automatically.
	ErrExecutionFailed = errors.New("transaction execution failed")
)

// ValidationState is the renderable outcome of the validation phases,
// carried inside the PendingTx rather than returned as an error: these are
// expected, user-correctable conditions.
type ValidationState uint8

const (
	// ValidationNone indicates no validation has run against the current
	// amount yet.
	ValidationNone ValidationState = iota

	// ValidationCanExecute indicates the transaction is fully valid and
	// may be executed.
	ValidationCanExecute

	// ValidationInvalidAddress indicates the destination failed the
	// asset's address format validation.
	ValidationInvalidAddress

	// ValidationInvalidAmount indicates the amount is non-positive, below
	// the dust floor, or above the asset ceiling.
	ValidationInvalidAmount

	// ValidationInsufficientFunds indicates selection cannot cover the
	// amount plus fee, or that a data fetch required for selection
	// failed. Fetch failures degrade to this state deliberately so the
	// caller always holds a renderable PendingTx, at the cost of hiding
	// the underlying cause.
	ValidationInsufficientFunds
)

// String returns the string representation of a validation state.
func (v ValidationState) String() string {
	switch v {
	case ValidationNone:
		return "none"

	case ValidationCanExecute:
		return "can_execute"

	case ValidationInvalidAddress:
		return "invalid_address"

	case ValidationInvalidAmount:
		return "invalid_amount"

	case ValidationInsufficientFunds:
		return "insufficient_funds"

	default:
		return "unknown validation state"
	}
}

// Err maps a failing validation state to its sentinel error. It returns nil
// for ValidationCanExecute and ErrNotInitialized for ValidationNone.
func (v ValidationState) Err() error {
	switch v {
	case ValidationCanExecute:
		return nil

	case ValidationInvalidAddress:
		return ErrInvalidAddress

	case ValidationInvalidAmount:
		return ErrInvalidAmount

	case ValidationInsufficientFunds:
		return ErrInsufficientFunds

	default:
		return ErrNotInitialized
	}
}
