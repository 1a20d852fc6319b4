// Copyright (c) 2025 The cashkit developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package money

import (
	"fmt"
	"math/big"
)

// ExchangeRate converts amounts from one currency into another. The rate is
// held as an exact rational: price minor units of To per major unit of From,
// scaled so no precision is lost during conversion.
type ExchangeRate struct {
	// From is the currency amounts must be denominated in before
	// conversion.
	From Currency

	// To is the currency converted amounts are denominated in.
	To Currency

	// price is the exact price of one minor unit of From, expressed in
	// minor units of To.
	price *big.Rat
}

// NewExchangeRate builds a rate from the price of one major unit of the from
// currency expressed in minor units of the to currency. For example, a BCH
// price of $242.17 is expressed as NewExchangeRate(BCH, USD, 24217).
func NewExchangeRate(from, to Currency, priceMinor int64) ExchangeRate {
	scale := new(big.Int).Exp(
		big.NewInt(10), big.NewInt(int64(from.Precision)), nil,
	)

	return ExchangeRate{
		From:  from,
		To:    to,
		price: new(big.Rat).SetFrac(big.NewInt(priceMinor), scale),
	}
}

// Convert converts an amount denominated in the rate's From currency into
// the To currency, truncating any sub-minor-unit remainder. Converting an
// amount of any other currency is a programming error.
func (r ExchangeRate) Convert(m Money) Money {
	if m.Currency() != r.From {
		panic(fmt.Sprintf("money: converting %s with %s/%s rate",
			m.Currency(), r.From, r.To))
	}

	product := new(big.Rat).Mul(
		r.price, new(big.Rat).SetInt(m.Minor()),
	)

	// Truncate toward zero to the minor unit.
	quo := new(big.Int).Quo(product.Num(), product.Denom())

	return FromMinor(r.To, quo)
}
