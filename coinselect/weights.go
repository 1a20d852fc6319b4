// Copyright (c) 2025 The cashkit developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package coinselect

import (
	"github.com/btcsuite/btcwallet/wallet/txsizes"
)

// txOverhead is the fixed serialization cost of a transaction before any
// inputs or outputs: version, locktime and the two count varints.
const txOverhead = 10

// redeemP2PKHInputSize is the serialized size of an input spending a
// pay-to-pubkey-hash output: a 36 byte outpoint, 1 byte script length, a
// 107 byte signature script (push of a 72 byte low-S DER signature plus
// push of a 33 byte compressed pubkey) and a 4 byte sequence.
const redeemP2PKHInputSize = 36 + 1 + 107 + 4

// nestedP2WPKHOutputSize is the serialized size of an output paying to a
// script hash: an 8 byte value, 1 byte script length and the pkScript.
const nestedP2WPKHOutputSize = 8 + 1 + txsizes.NestedP2WPKHPkScriptSize

// ScriptType classifies the locking script of an output for size
// estimation. Each type contributes a fixed weight for the input that spends
// it and for an output paying to it.
type ScriptType int

const (
	// ScriptP2PKH is a legacy pay-to-pubkey-hash script.
	ScriptP2PKH ScriptType = iota

	// ScriptP2SH is a pay-to-script-hash script wrapping a witness
	// program.
	ScriptP2SH

	// ScriptP2WPKH is a native pay-to-witness-pubkey-hash script.
	ScriptP2WPKH
)

// String returns the conventional name of the script type.
func (s ScriptType) String() string {
	switch s {
	case ScriptP2PKH:
		return "p2pkh"
	case ScriptP2SH:
		return "p2sh"
	case ScriptP2WPKH:
		return "p2wpkh"
	default:
		return "unknown"
	}
}

// InputSize returns the serialized size in bytes an input spending an output
// of this script type adds to a transaction.
func (s ScriptType) InputSize() int {
	switch s {
	case ScriptP2PKH:
		return redeemP2PKHInputSize
	case ScriptP2SH:
		return txsizes.RedeemNestedP2WPKHInputSize
	case ScriptP2WPKH:
		return txsizes.RedeemP2WPKHInputSize
	default:
		// Assume the heaviest known input for unknown scripts so fees
		// are never underestimated.
		return redeemP2PKHInputSize
	}
}

// OutputSize returns the serialized size in bytes of an output paying to
// this script type.
func (s ScriptType) OutputSize() int {
	switch s {
	case ScriptP2PKH:
		return txsizes.P2PKHOutputSize
	case ScriptP2SH:
		return nestedP2WPKHOutputSize
	case ScriptP2WPKH:
		return txsizes.P2WPKHOutputSize
	default:
		return txsizes.P2PKHOutputSize
	}
}

// EstimateSize estimates the serialized size in bytes of a transaction with
// the given number of inputs of the input script type and the given outputs.
func EstimateSize(inputCount int, inputScript ScriptType,
	outputs []ScriptType) int {

	size := txOverhead + inputCount*inputScript.InputSize()
	for _, out := range outputs {
		size += out.OutputSize()
	}

	return size
}

// EstimateSizeForInputs estimates the serialized size in bytes of a
// transaction spending the given outputs, using each output's own script
// hint for its input weight.
func EstimateSizeForInputs(inputs []UnspentOutput,
	outputs []ScriptType) int {

	size := txOverhead
	for _, in := range inputs {
		size += in.Script.InputSize()
	}

	for _, out := range outputs {
		size += out.OutputSize()
	}

	return size
}
