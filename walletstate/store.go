// Copyright (c) 2025 The cashkit developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package walletstate persists the small pieces of wallet state the send
// flow depends on: the receive and change address cursors per account, and
// the optional per-transaction notes. Everything lives in one walletdb
// namespace so a single atomic transaction can touch all of it.
package walletstate

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/btcsuite/btcwallet/walletdb"
)

var (
	// namespaceKey is the top level bucket holding all wallet state.
	namespaceKey = []byte("walletstate")

	// bucketCursors holds the per-account address cursors.
	bucketCursors = []byte("addrcursors")

	// bucketNotes holds the per-transaction notes.
	bucketNotes = []byte("txnotes")
)

var (
	// ErrNoteTooLong is returned when a note exceeds NoteLimit.
	ErrNoteTooLong = errors.New("note exceeds length limit")

	// ErrEmptyNote is returned when an empty note is stored or a stored
	// note deserializes to zero length.
	ErrEmptyNote = errors.New("empty note")

	// ErrCorruptNote is returned when a stored note's length prefix
	// disagrees with its payload.
	ErrCorruptNote = errors.New("corrupt note entry")
)

// NoteLimit is the maximum note length in bytes.
const NoteLimit = 500

// byteOrder is the ordering used for all serialized integers.
var byteOrder = binary.BigEndian

// Store persists address cursors and transaction notes.
type Store struct {
	db walletdb.DB
}

// Open prepares the store's namespace and buckets in the given database.
func Open(db walletdb.DB) (*Store, error) {
	err := walletdb.Update(db, func(tx walletdb.ReadWriteTx) error {
		ns, err := tx.CreateTopLevelBucket(namespaceKey)
		if err != nil {
			return err
		}

		if _, err := ns.CreateBucketIfNotExists(
			bucketCursors,
		); err != nil {
			return err
		}

		_, err = ns.CreateBucketIfNotExists(bucketNotes)

		return err
	})
	if err != nil {
		return nil, fmt.Errorf("preparing wallet state buckets: %w",
			err)
	}

	return &Store{db: db}, nil
}

// cursorKey builds the cursor bucket key for one account branch:
// [0:4] Account index
// [4:8] Branch
func cursorKey(account, branch uint32) []byte {
	var key [8]byte
	byteOrder.PutUint32(key[0:4], account)
	byteOrder.PutUint32(key[4:8], branch)

	return key[:]
}

// CursorPosition returns the next unused address index for the account
// branch. Unknown cursors start at zero.
func (s *Store) CursorPosition(ctx context.Context, account,
	branch uint32) (uint32, error) {

	if err := ctx.Err(); err != nil {
		return 0, err
	}

	var position uint32

	err := walletdb.View(s.db, func(tx walletdb.ReadTx) error {
		cursors := tx.ReadBucket(namespaceKey).
			NestedReadBucket(bucketCursors)

		if v := cursors.Get(cursorKey(account, branch)); v != nil {
			position = byteOrder.Uint32(v)
		}

		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("reading cursor %d/%d: %w", account,
			branch, err)
	}

	return position, nil
}

// AdvanceCursors moves the cursors of the given account branches forward by
// one, atomically. Called once per broadcast transaction.
func (s *Store) AdvanceCursors(ctx context.Context, account uint32,
	branches ...uint32) error {

	if err := ctx.Err(); err != nil {
		return err
	}

	err := walletdb.Update(s.db, func(tx walletdb.ReadWriteTx) error {
		cursors := tx.ReadWriteBucket(namespaceKey).
			NestedReadWriteBucket(bucketCursors)

		for _, branch := range branches {
			key := cursorKey(account, branch)

			var position uint32
			if v := cursors.Get(key); v != nil {
				position = byteOrder.Uint32(v)
			}

			var next [4]byte
			byteOrder.PutUint32(next[:], position+1)

			if err := cursors.Put(key, next[:]); err != nil {
				return err
			}
		}

		return nil
	})
	if err != nil {
		return fmt.Errorf("advancing cursors for account %d: %w",
			account, err)
	}

	return nil
}

// SaveNote validates and persists the note for a transaction. The entry is
// keyed by the transaction id and written in length value format:
// [0:2] Note length
// [2: +len] Note
func (s *Store) SaveNote(ctx context.Context, txID, note string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if len(note) == 0 {
		return ErrEmptyNote
	}

	if len(note) > NoteLimit {
		return ErrNoteTooLong
	}

	err := walletdb.Update(s.db, func(tx walletdb.ReadWriteTx) error {
		notes := tx.ReadWriteBucket(namespaceKey).
			NestedReadWriteBucket(bucketNotes)

		var buf bytes.Buffer

		var b [2]byte
		byteOrder.PutUint16(b[:], uint16(len(note)))
		buf.Write(b[:])
		buf.WriteString(note)

		return notes.Put([]byte(txID), buf.Bytes())
	})
	if err != nil {
		return fmt.Errorf("saving note for tx %s: %w", txID, err)
	}

	return nil
}

// Note returns the stored note for a transaction, or an empty string when
// none exists.
func (s *Store) Note(ctx context.Context, txID string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	var note string

	err := walletdb.View(s.db, func(tx walletdb.ReadTx) error {
		notes := tx.ReadBucket(namespaceKey).
			NestedReadBucket(bucketNotes)

		v := notes.Get([]byte(txID))
		if v == nil {
			return nil
		}

		decoded, err := deserializeNote(v)
		if err != nil {
			return err
		}

		note = decoded

		return nil
	})
	if err != nil {
		return "", fmt.Errorf("reading note for tx %s: %w", txID, err)
	}

	return note, nil
}

// deserializeNote reads a length value encoded note.
func deserializeNote(v []byte) (string, error) {
	if len(v) < 2 || byteOrder.Uint16(v[0:2]) == 0 {
		return "", ErrEmptyNote
	}

	if int(byteOrder.Uint16(v[0:2])) != len(v)-2 {
		return "", ErrCorruptNote
	}

	return string(v[2:]), nil
}
