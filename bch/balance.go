// Copyright (c) 2025 The cashkit developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package bch

import (
	"context"
	"sync"
	"time"

	"github.com/cashkit/coincore/coinselect"
	"github.com/cashkit/coincore/engine"
	"github.com/cashkit/coincore/money"
)

// DefaultBalanceTTL is how long a fetched balance stays fresh.
const DefaultBalanceTTL = 30 * time.Second

// cachedBalance is one immutable fetch result.
type cachedBalance struct {
	value     money.Money
	fetchedAt time.Time
}

// BalanceCache wraps a UTXO source and serves balance reads from a
// time-bounded cache. Unspent output reads always pass through: selection
// must never run on stale coins. A successful spend invalidates the cache
// so the next read reflects the transaction.
type BalanceCache struct {
	source engine.UTXOSource
	ttl    time.Duration
	now    func() time.Time

	mu      sync.Mutex
	entries map[uint32]cachedBalance
}

var (
	_ engine.UTXOSource = (*BalanceCache)(nil)
	_ engine.Flushable  = (*BalanceCache)(nil)
)

// NewBalanceCache wraps the source with a balance cache of the given TTL.
func NewBalanceCache(source engine.UTXOSource,
	ttl time.Duration) *BalanceCache {

	return &BalanceCache{
		source:  source,
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[uint32]cachedBalance),
	}
}

// UnspentOutputs passes through to the underlying source.
func (c *BalanceCache) UnspentOutputs(ctx context.Context,
	account engine.Account) ([]coinselect.UnspentOutput, error) {

	return c.source.UnspentOutputs(ctx, account)
}

// Balance serves from the cache while the entry is fresh, refetching
// otherwise.
func (c *BalanceCache) Balance(ctx context.Context,
	account engine.Account) (money.Money, error) {

	c.mu.Lock()
	entry, ok := c.entries[account.Index]
	c.mu.Unlock()

	if ok && c.now().Sub(entry.fetchedAt) < c.ttl {
		return entry.value, nil
	}

	value, err := c.source.Balance(ctx, account)
	if err != nil {
		return money.Money{}, err
	}

	c.mu.Lock()
	c.entries[account.Index] = cachedBalance{
		value:     value,
		fetchedAt: c.now(),
	}
	c.mu.Unlock()

	return value, nil
}

// Invalidate drops every cached balance.
func (c *BalanceCache) Invalidate() {
	c.mu.Lock()
	c.entries = make(map[uint32]cachedBalance)
	c.mu.Unlock()

	log.Debugf("Balance cache invalidated")
}
