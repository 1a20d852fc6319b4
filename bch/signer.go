// Copyright (c) 2025 The cashkit developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package bch

import (
	"context"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"

	"github.com/cashkit/coincore/coinselect"
	"github.com/cashkit/coincore/engine"
	"github.com/cashkit/coincore/keychain"
)

var (
	// ErrForeignTx is returned when the signer receives a raw
	// transaction that was not produced by this package's assembler.
	ErrForeignTx = errors.New("raw transaction not assembled here")

	// ErrForeignKeys is returned when the key set did not come from the
	// signer's key ring.
	ErrForeignKeys = errors.New("key set not derived here")

	// ErrUnknownKey is returned when no derived key can spend one of the
	// transaction's inputs.
	ErrUnknownKey = errors.New("no key for input script")
)

// Signer signs assembled transactions with keys derived from the HD ring.
type Signer struct {
	params *chaincfg.Params
	ring   *keychain.Ring
}

var _ engine.Signer = (*Signer)(nil)

// NewSigner creates a signer over the given key ring.
func NewSigner(params *chaincfg.Params, ring *keychain.Ring) *Signer {
	return &Signer{params: params, ring: ring}
}

// KeysFor derives the signing key material covering the outputs being
// spent. The second factor opens a sealed ring; an unsealed ring ignores
// it.
func (s *Signer) KeysFor(ctx context.Context, account engine.Account,
	outputs []coinselect.UnspentOutput,
	secondFactor []byte) (engine.KeySet, error) {

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	keys, err := s.ring.DeriveKeys(0, secondFactor)
	if err != nil {
		return nil, fmt.Errorf("deriving keys for account %d: %w",
			account.Index, err)
	}

	// Every spent output must be resolvable up front, so signing cannot
	// fail halfway through.
	for _, coin := range outputs {
		if _, ok := keys.KeyForScript(coin.PkScript, s.params); !ok {
			keys.Zeroize()

			return nil, fmt.Errorf("%w: outpoint %s",
				ErrUnknownKey, coin.OutPoint)
		}
	}

	return keys, nil
}

// Sign attaches a signature script to every input of the assembled
// transaction.
//
// Signatures use plain SigHashAll without the replay-protecting FORKID
// bit, matching the legacy base58 surface of this package's validator: the
// node the broadcaster talks to must accept that encoding. Swapping in a
// FORKID sighash and cashaddr parsing only touches this package.
func (s *Signer) Sign(ctx context.Context, tx engine.RawTx,
	keys engine.KeySet) (engine.RawTx, error) {

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	bchTx, ok := tx.(*Tx)
	if !ok {
		return nil, ErrForeignTx
	}

	keySet, ok := keys.(*keychain.KeySet)
	if !ok {
		return nil, ErrForeignKeys
	}

	msgTx := bchTx.MsgTx()

	for i := range msgTx.TxIn {
		prevScript := bchTx.prevScripts[i]

		priv, ok := keySet.KeyForScript(prevScript, s.params)
		if !ok {
			return nil, fmt.Errorf("%w: input %d", ErrUnknownKey,
				i)
		}

		sigScript, err := txscript.SignatureScript(
			msgTx, i, prevScript, txscript.SigHashAll, priv, true,
		)
		if err != nil {
			return nil, fmt.Errorf("signing input %d: %w", i, err)
		}

		msgTx.TxIn[i].SignatureScript = sigScript
	}

	return bchTx, nil
}
