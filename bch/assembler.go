// Copyright (c) 2025 The cashkit developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package bch

import (
	"context"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/btcwallet/wallet/txrules"

	"github.com/cashkit/coincore/engine"
)

// ErrNoSelection is returned when Prepare is called without a selected coin
// bundle.
var ErrNoSelection = errors.New("no coin selection to assemble")

// Assembler builds the raw unsigned transaction from a selection bundle.
// Inputs appear in bundle order and the payment output precedes the change
// output, so the same request always yields the same transaction.
type Assembler struct {
	params *chaincfg.Params
}

var _ engine.Assembler = (*Assembler)(nil)

// NewAssembler creates an assembler for the given network.
func NewAssembler(params *chaincfg.Params) *Assembler {
	return &Assembler{params: params}
}

// Prepare assembles the unsigned transaction: one input per selected
// output, the payment output, and a change output when the bundle carries
// change. Every output must clear the relay rules.
func (a *Assembler) Prepare(ctx context.Context,
	req engine.PrepareRequest) (engine.RawTx, error) {

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if req.Bundle == nil || len(req.Bundle.SpendableOutputs) == 0 {
		return nil, ErrNoSelection
	}

	msgTx := wire.NewMsgTx(wire.TxVersion)
	prevScripts := make([][]byte, 0, len(req.Bundle.SpendableOutputs))

	for _, coin := range req.Bundle.SpendableOutputs {
		outpoint := coin.OutPoint
		msgTx.AddTxIn(wire.NewTxIn(&outpoint, nil, nil))
		prevScripts = append(prevScripts, coin.PkScript)
	}

	if err := a.addOutput(
		msgTx, req.Destination, req.Amount.Int64(),
	); err != nil {
		return nil, fmt.Errorf("payment output: %w", err)
	}

	if req.Bundle.ChangeAmount.IsPositive() {
		if err := a.addOutput(
			msgTx, req.ChangeAddress,
			req.Bundle.ChangeAmount.Int64(),
		); err != nil {
			return nil, fmt.Errorf("change output: %w", err)
		}
	}

	log.Debugf("Assembled unsigned tx: %d inputs, %d outputs, %d bytes",
		len(msgTx.TxIn), len(msgTx.TxOut), msgTx.SerializeSize())

	return &Tx{msgTx: msgTx, prevScripts: prevScripts}, nil
}

// addOutput appends a checked output paying value to addr.
func (a *Assembler) addOutput(msgTx *wire.MsgTx, addr string,
	value int64) error {

	decoded, err := btcutil.DecodeAddress(addr, a.params)
	if err != nil {
		return fmt.Errorf("decoding address %q: %w", addr, err)
	}

	pkScript, err := txscript.PayToAddrScript(decoded)
	if err != nil {
		return fmt.Errorf("building script for %q: %w", addr, err)
	}

	output := wire.NewTxOut(value, pkScript)

	err = txrules.CheckOutput(output, txrules.DefaultRelayFeePerKb)
	if err != nil {
		return err
	}

	msgTx.AddTxOut(output)

	return nil
}
