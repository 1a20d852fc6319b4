// Copyright (c) 2025 The cashkit developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package feerate provides a value type for transaction fee rates. A rate is
// an exact-precision price per kilobyte of transaction size, denominated in
// the minor units of a specific currency. All fee computations go through
// big.Rat so no precision is lost before the final rounding step.
package feerate

import (
	"fmt"
	"math/big"

	"github.com/cashkit/coincore/money"
)

const (
	// kilo is the number of bytes per kilobyte of transaction size.
	kilo = 1000
)

// Rate is a fee rate expressed as minor units per kilobyte of transaction
// size. The zero value is a zero rate of an unspecified currency; build
// rates with PerKB.
type Rate struct {
	// perKB is the price of one kilobyte of transaction size.
	perKB money.Money
}

// PerKB creates a rate from the price of one kilobyte of transaction size.
func PerKB(price money.Money) Rate {
	return Rate{perKB: price}
}

// PerByte creates a rate from the price of a single byte of transaction
// size.
func PerByte(price money.Money) Rate {
	return Rate{perKB: price.MulInt(kilo)}
}

// Currency returns the currency the rate prices fees in.
func (r Rate) Currency() money.Currency {
	return r.perKB.Currency()
}

// PerKBAmount returns the price of one kilobyte of transaction size.
func (r Rate) PerKBAmount() money.Money {
	return r.perKB
}

// IsZero returns true if the rate is zero. A zero rate would let a caller
// under-price a transaction, so consumers are expected to reject it.
func (r Rate) IsZero() bool {
	return r.perKB.IsZero()
}

// FeeForSize computes the fee for a transaction of the given size in bytes,
// rounding any fractional minor unit up. Rounding up guarantees the fee can
// never fall below the quoted rate.
func (r Rate) FeeForSize(sizeBytes int) money.Money {
	if sizeBytes <= 0 {
		return money.Zero(r.perKB.Currency())
	}

	// fee = perKB * size / 1000, as an exact rational.
	fee := new(big.Rat).SetFrac(
		new(big.Int).Mul(
			r.perKB.Minor(), big.NewInt(int64(sizeBytes)),
		),
		big.NewInt(kilo),
	)

	// Ceiling division: (num + denom - 1) / denom.
	result := new(big.Int).Add(fee.Num(), fee.Denom())
	result.Sub(result, big.NewInt(1))
	result.Div(result, fee.Denom())

	return money.FromMinor(r.perKB.Currency(), result)
}

// GreaterThan returns true if r prices a kilobyte higher than other.
func (r Rate) GreaterThan(other Rate) bool {
	return r.perKB.GreaterThan(other.perKB)
}

// String returns a human-readable representation of the rate.
func (r Rate) String() string {
	return fmt.Sprintf("%s/kB", r.perKB)
}
