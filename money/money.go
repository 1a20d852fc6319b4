// Copyright (c) 2025 The cashkit developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package money provides exact-precision monetary values tagged with the
// currency they denominate. All amounts are carried in minor units (e.g.
// satoshis) as arbitrary-precision integers; floating point is never used.
package money

import (
	"fmt"
	"math/big"
)

// Currency identifies the unit a Money value is denominated in. Two Money
// values may only be combined when their currencies match.
type Currency struct {
	// Code is the ticker symbol, e.g. "BCH" or "USD".
	Code string

	// Precision is the number of decimal places between the major and the
	// minor unit, e.g. 8 for BCH (satoshis) and 2 for USD (cents).
	Precision int
}

// Common currencies used throughout the engine and its tests.
var (
	// BCH is Bitcoin Cash, denominated in satoshis.
	BCH = Currency{Code: "BCH", Precision: 8}

	// BTC is Bitcoin, denominated in satoshis.
	BTC = Currency{Code: "BTC", Precision: 8}

	// USD is the United States dollar, denominated in cents.
	USD = Currency{Code: "USD", Precision: 2}
)

// String returns the currency's ticker code.
func (c Currency) String() string {
	return c.Code
}

// Money is an immutable monetary value: a currency tag plus an amount in
// minor units. The zero value is not usable; construct values with Zero,
// FromMinor or FromInt.
//
// Arithmetic between two Money values of different currencies is a
// programming error and panics. This mirrors how mixing the units would be a
// type error if every currency were its own type; failing fast here is
// preferred over silently coercing amounts across assets.
type Money struct {
	currency Currency
	amount   *big.Int
}

// Zero returns a zero value of the given currency.
func Zero(c Currency) Money {
	return Money{currency: c, amount: big.NewInt(0)}
}

// FromMinor creates a Money from an amount expressed in minor units. The
// provided big.Int is copied, so later mutation of it does not affect the
// returned value.
func FromMinor(c Currency, minor *big.Int) Money {
	return Money{currency: c, amount: new(big.Int).Set(minor)}
}

// FromInt creates a Money from an int64 amount of minor units.
func FromInt(c Currency, minor int64) Money {
	return Money{currency: c, amount: big.NewInt(minor)}
}

// Currency returns the currency the value is denominated in.
func (m Money) Currency() Currency {
	return m.currency
}

// Minor returns a copy of the amount in minor units.
func (m Money) Minor() *big.Int {
	if m.amount == nil {
		return big.NewInt(0)
	}

	return new(big.Int).Set(m.amount)
}

// Int64 returns the amount in minor units as an int64. The value must fit;
// amounts handled by the engine are bounded by each asset's supply ceiling,
// which fits comfortably.
func (m Money) Int64() int64 {
	if m.amount == nil {
		return 0
	}

	return m.amount.Int64()
}

// assertSameCurrency panics if other is denominated in a different currency.
// Mixing currencies is a programming error, not a runtime condition.
func (m Money) assertSameCurrency(op string, other Money) {
	if m.currency != other.currency {
		panic(fmt.Sprintf("money: %s of mismatched currencies %s and %s",
			op, m.currency, other.currency))
	}
}

// Add returns m + other.
func (m Money) Add(other Money) Money {
	m.assertSameCurrency("add", other)

	return Money{
		currency: m.currency,
		amount:   new(big.Int).Add(m.amount, other.amount),
	}
}

// Sub returns m - other. The result may be negative; callers that require a
// non-negative result must check with IsNegative.
func (m Money) Sub(other Money) Money {
	m.assertSameCurrency("subtract", other)

	return Money{
		currency: m.currency,
		amount:   new(big.Int).Sub(m.amount, other.amount),
	}
}

// MulInt returns m scaled by the given integer factor.
func (m Money) MulInt(factor int64) Money {
	return Money{
		currency: m.currency,
		amount: new(big.Int).Mul(
			m.amount, big.NewInt(factor),
		),
	}
}

// Cmp compares m against other, returning -1, 0 or 1.
func (m Money) Cmp(other Money) int {
	m.assertSameCurrency("compare", other)

	return m.amount.Cmp(other.amount)
}

// LessThan returns true if m < other.
func (m Money) LessThan(other Money) bool {
	return m.Cmp(other) < 0
}

// GreaterThan returns true if m > other.
func (m Money) GreaterThan(other Money) bool {
	return m.Cmp(other) > 0
}

// GreaterThanOrEqual returns true if m >= other.
func (m Money) GreaterThanOrEqual(other Money) bool {
	return m.Cmp(other) >= 0
}

// Equal returns true if the two values have the same currency and amount.
func (m Money) Equal(other Money) bool {
	return m.currency == other.currency && m.amount.Cmp(other.amount) == 0
}

// IsZero returns true if the amount is exactly zero.
func (m Money) IsZero() bool {
	return m.amount == nil || m.amount.Sign() == 0
}

// IsPositive returns true if the amount is strictly greater than zero.
func (m Money) IsPositive() bool {
	return m.amount != nil && m.amount.Sign() > 0
}

// IsNegative returns true if the amount is strictly less than zero.
func (m Money) IsNegative() bool {
	return m.amount != nil && m.amount.Sign() < 0
}

// String renders the value in major units with full minor-unit precision,
// e.g. "0.01000000 BCH".
func (m Money) String() string {
	scale := new(big.Int).Exp(
		big.NewInt(10), big.NewInt(int64(m.currency.Precision)), nil,
	)

	rat := new(big.Rat).SetFrac(m.Minor(), scale)

	return rat.FloatString(m.currency.Precision) + " " + m.currency.Code
}
