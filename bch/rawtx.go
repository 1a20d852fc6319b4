// Copyright (c) 2025 The cashkit developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package bch

import (
	"github.com/btcsuite/btcd/wire"

	"github.com/cashkit/coincore/engine"
)

// Tx is the Bitcoin Cash raw transaction flowing between the assembler, the
// signer and the broadcaster. It carries the previous output scripts
// alongside the wire transaction since signing needs them per input.
type Tx struct {
	msgTx *wire.MsgTx

	// prevScripts holds the locking script of the output each input
	// spends, index aligned with the transaction's inputs.
	prevScripts [][]byte
}

// A compile-time assertion that Tx satisfies the pipeline's raw transaction
// contract.
var _ engine.RawTx = (*Tx)(nil)

// TxID returns the transaction's identifier.
func (t *Tx) TxID() string {
	return t.msgTx.TxHash().String()
}

// SerializedSize returns the encoded size in bytes.
func (t *Tx) SerializedSize() int {
	return t.msgTx.SerializeSize()
}

// MsgTx returns the underlying wire transaction.
func (t *Tx) MsgTx() *wire.MsgTx {
	return t.msgTx
}
