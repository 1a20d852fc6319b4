// Copyright (c) 2025 The cashkit developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package bch

import (
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"

	"github.com/cashkit/coincore/engine"
)

// Validator accepts legacy base58 destinations for the configured network.
type Validator struct {
	params *chaincfg.Params
}

// A compile-time assertion that Validator implements the pipeline's address
// validation capability.
var _ engine.AddressValidator = (*Validator)(nil)

// NewValidator creates a validator for the given network.
func NewValidator(params *chaincfg.Params) *Validator {
	return &Validator{params: params}
}

// IsValidAddress reports whether the string decodes as a pay-to-pubkey-hash
// or pay-to-script-hash address on the validator's network.
func (v *Validator) IsValidAddress(addr string) bool {
	decoded, err := btcutil.DecodeAddress(addr, v.params)
	if err != nil {
		return false
	}

	if !decoded.IsForNet(v.params) {
		return false
	}

	switch decoded.(type) {
	case *btcutil.AddressPubKeyHash, *btcutil.AddressScriptHash:
		return true

	default:
		return false
	}
}
