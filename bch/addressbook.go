// Copyright (c) 2025 The cashkit developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package bch

import (
	"context"
	"fmt"

	"github.com/cashkit/coincore/engine"
	"github.com/cashkit/coincore/keychain"
	"github.com/cashkit/coincore/walletstate"
)

// AddressBook renders addresses from the key ring at the cursor positions
// persisted in the wallet state store.
type AddressBook struct {
	ring  *keychain.Ring
	state *walletstate.Store
}

var _ engine.AddressBook = (*AddressBook)(nil)

// NewAddressBook creates an address book over the given ring and store.
func NewAddressBook(ring *keychain.Ring,
	state *walletstate.Store) *AddressBook {

	return &AddressBook{ring: ring, state: state}
}

// NextChangeAddress returns the account's next unused change address
// without advancing the cursor.
func (b *AddressBook) NextChangeAddress(ctx context.Context,
	account engine.Account) (string, error) {

	index, err := b.state.CursorPosition(
		ctx, account.Index, keychain.BranchChange,
	)
	if err != nil {
		return "", err
	}

	addr, err := b.ring.AddressAt(keychain.BranchChange, index)
	if err != nil {
		return "", fmt.Errorf("deriving change address %d: %w",
			index, err)
	}

	return addr.EncodeAddress(), nil
}

// AdvanceAddresses moves the receive and change cursors past the addresses
// consumed by a broadcast transaction.
func (b *AddressBook) AdvanceAddresses(ctx context.Context,
	account engine.Account) error {

	return b.state.AdvanceCursors(
		ctx, account.Index,
		keychain.BranchReceive, keychain.BranchChange,
	)
}
