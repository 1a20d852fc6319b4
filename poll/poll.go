// Copyright (c) 2025 The cashkit developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package poll repeatedly fetches a value until a predicate accepts it, the
// attempt budget runs out, or the caller's context ends. It backs the
// chain-facing waits, e.g. watching a broadcast transaction gather
// confirmations.
package poll

import (
	"context"

	"github.com/lightningnetwork/lnd/ticker"
)

// Outcome describes how a polling run ended.
type Outcome uint8

const (
	// OutcomeFinal means the predicate accepted a fetched value.
	OutcomeFinal Outcome = iota

	// OutcomeTimedOut means the attempt budget was exhausted. The last
	// fetched value is returned alongside.
	OutcomeTimedOut

	// OutcomeCancelled means the caller's context ended first. The
	// zero value is returned; a cancelled run never reports a result.
	OutcomeCancelled
)

// String returns the string representation of an outcome.
func (o Outcome) String() string {
	switch o {
	case OutcomeFinal:
		return "final"

	case OutcomeTimedOut:
		return "timed_out"

	case OutcomeCancelled:
		return "cancelled"

	default:
		return "unknown outcome"
	}
}

// DefaultMaxAttempts bounds a run when no budget is configured.
const DefaultMaxAttempts = 30

// Poller drives repeated fetches of one value type off a shared ticker.
// The ticker controls pacing, so tests can force ticks instead of sleeping.
type Poller[T any] struct {
	ticker      ticker.Ticker
	maxAttempts int
}

// New creates a poller over the given ticker with the given attempt budget.
func New[T any](t ticker.Ticker, maxAttempts int) *Poller[T] {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}

	return &Poller[T]{
		ticker:      t,
		maxAttempts: maxAttempts,
	}
}

// Await fetches immediately and then once per tick until done accepts a
// value, the budget runs out, or ctx ends. Fetch errors are treated as
// transient: polling continues, and the last error is returned only if the
// run times out without ever fetching a value.
func (p *Poller[T]) Await(ctx context.Context,
	fetch func(context.Context) (T, error),
	done func(T) bool) (T, Outcome, error) {

	var (
		last     T
		lastErr  error
		fetched  bool
		attempts int
	)

	attempt := func() (T, bool) {
		attempts++

		value, err := fetch(ctx)
		if err != nil {
			lastErr = err

			var zero T

			return zero, false
		}

		last, fetched = value, true

		return value, done(value)
	}

	cancelled := func() (T, Outcome, error) {
		var zero T

		return zero, OutcomeCancelled, ctx.Err()
	}

	// First attempt happens without waiting for the initial tick. A
	// cancellation landing during the fetch wins over its result.
	value, ok := attempt()
	if ctx.Err() != nil {
		return cancelled()
	}
	if ok {
		return value, OutcomeFinal, nil
	}

	p.ticker.Resume()
	defer p.ticker.Stop()

	for attempts < p.maxAttempts {
		select {
		case <-ctx.Done():
			return cancelled()

		case <-p.ticker.Ticks():
			// A tick and the cancellation can be ready at the
			// same time; never fetch once ctx has ended.
			if ctx.Err() != nil {
				return cancelled()
			}

			value, ok := attempt()
			if ctx.Err() != nil {
				return cancelled()
			}
			if ok {
				return value, OutcomeFinal, nil
			}
		}
	}

	if !fetched {
		var zero T

		return zero, OutcomeTimedOut, lastErr
	}

	return last, OutcomeTimedOut, nil
}
