// Copyright (c) 2025 The cashkit developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package keychain implements the HD key ring for spending: BIP39 mnemonic
// to seed, BIP44 derivation of per-output signing keys, and optional sealing
// of the seed behind a second factor.
//
// Key hierarchy: m/44'/{coin}'/{account}'/{branch}/{index}, branch 0 for
// receive addresses and branch 1 for change.
package keychain

import (
	"crypto/rand"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
	"github.com/tyler-smith/go-bip39"
	"golang.org/x/crypto/nacl/secretbox"
	"golang.org/x/crypto/scrypt"
)

var (
	// ErrInvalidMnemonic is returned when the mnemonic fails BIP39
	// validation.
	ErrInvalidMnemonic = errors.New("invalid mnemonic")

	// ErrSealed is returned when key derivation is attempted on a sealed
	// ring without the second factor.
	ErrSealed = errors.New("key ring sealed, second factor required")

	// ErrWrongSecondFactor is returned when the supplied second factor
	// fails to open the sealed seed.
	ErrWrongSecondFactor = errors.New("wrong second factor")

	// ErrAlreadySealed is returned when Seal is called twice.
	ErrAlreadySealed = errors.New("key ring already sealed")
)

const (
	// CoinTypeBCH is the BIP44 coin type for Bitcoin Cash.
	CoinTypeBCH = 145

	// BranchReceive is the external address branch.
	BranchReceive = 0

	// BranchChange is the internal address branch.
	BranchChange = 1

	// DefaultLookahead is the number of indexes scanned per branch when
	// matching outputs to keys.
	DefaultLookahead = 100

	// Scrypt parameters for the second factor KDF.
	scryptN      = 32768
	scryptR      = 8
	scryptP      = 1
	scryptKeyLen = 32

	saltLen  = 32
	nonceLen = 24
)

// sealedSeed is the seed encrypted under the second factor:
// scrypt(secondFactor, salt) keys an XSalsa20-Poly1305 box.
type sealedSeed struct {
	salt  [saltLen]byte
	nonce [nonceLen]byte
	box   []byte
}

// Ring derives signing keys and addresses for a single BIP44 account.
//
// The account extended public key is cached at construction, so address
// derivation never needs the seed: a sealed ring can still hand out
// addresses, only signing requires the second factor.
type Ring struct {
	params  *chaincfg.Params
	account uint32

	// acctXPub is the neutered account key m/44'/{coin}'/{account}'.
	acctXPub *hdkeychain.ExtendedKey

	// seed is the BIP39 seed while the ring is unsealed, nil afterwards.
	seed []byte

	// sealed is the encrypted seed once Seal has run.
	sealed *sealedSeed
}

// NewRing derives the key ring for one account from a BIP39 mnemonic and
// optional passphrase.
func NewRing(mnemonic, passphrase string, account uint32,
	params *chaincfg.Params) (*Ring, error) {

	if !bip39.IsMnemonicValid(mnemonic) {
		return nil, ErrInvalidMnemonic
	}

	seed, err := bip39.NewSeedWithErrorChecking(mnemonic, passphrase)
	if err != nil {
		return nil, fmt.Errorf("deriving seed: %w", err)
	}

	acctKey, err := accountKey(seed, account, params)
	if err != nil {
		return nil, err
	}

	xpub, err := acctKey.Neuter()
	if err != nil {
		return nil, fmt.Errorf("neutering account key: %w", err)
	}

	// The neutered key aliases the account key's cached pubkey and chain
	// code, which Zero below wipes in place. Round-trip through the
	// serialized form so the ring holds its own copy.
	xpub, err = hdkeychain.NewKeyFromString(xpub.String())
	if err != nil {
		return nil, fmt.Errorf("copying account xpub: %w", err)
	}

	acctKey.Zero()

	return &Ring{
		params:   params,
		account:  account,
		acctXPub: xpub,
		seed:     seed,
	}, nil
}

// accountKey derives the hardened account key m/44'/{coin}'/{account}'.
func accountKey(seed []byte, account uint32,
	params *chaincfg.Params) (*hdkeychain.ExtendedKey, error) {

	master, err := hdkeychain.NewMaster(seed, params)
	if err != nil {
		return nil, fmt.Errorf("deriving master key: %w", err)
	}
	defer master.Zero()

	path := []uint32{
		hdkeychain.HardenedKeyStart + 44,
		hdkeychain.HardenedKeyStart + CoinTypeBCH,
		hdkeychain.HardenedKeyStart + account,
	}

	key := master
	for _, child := range path {
		next, err := key.Derive(child)
		if err != nil {
			return nil, fmt.Errorf("deriving path element %d: %w",
				child, err)
		}

		if key != master {
			key.Zero()
		}

		key = next
	}

	return key, nil
}

// Seal encrypts the seed under the second factor and wipes the plaintext.
// After sealing, key derivation requires the factor; address derivation does
// not.
func (r *Ring) Seal(secondFactor []byte) error {
	if r.sealed != nil {
		return ErrAlreadySealed
	}

	var sealed sealedSeed
	if _, err := rand.Read(sealed.salt[:]); err != nil {
		return fmt.Errorf("generating salt: %w", err)
	}
	if _, err := rand.Read(sealed.nonce[:]); err != nil {
		return fmt.Errorf("generating nonce: %w", err)
	}

	key, err := boxKey(secondFactor, sealed.salt[:])
	if err != nil {
		return err
	}

	sealed.box = secretbox.Seal(nil, r.seed, &sealed.nonce, key)

	zero(r.seed)
	r.seed = nil
	r.sealed = &sealed

	return nil
}

// IsSealed reports whether signing requires the second factor.
func (r *Ring) IsSealed() bool {
	return r.sealed != nil
}

// openSeed returns the plaintext seed, decrypting the sealed copy when
// needed. The returned slice is the caller's to wipe when the ring is
// sealed.
func (r *Ring) openSeed(secondFactor []byte) ([]byte, bool, error) {
	if r.sealed == nil {
		return r.seed, false, nil
	}

	if len(secondFactor) == 0 {
		return nil, false, ErrSealed
	}

	key, err := boxKey(secondFactor, r.sealed.salt[:])
	if err != nil {
		return nil, false, err
	}

	seed, ok := secretbox.Open(nil, r.sealed.box, &r.sealed.nonce, key)
	if !ok {
		return nil, false, ErrWrongSecondFactor
	}

	return seed, true, nil
}

// boxKey runs the scrypt KDF over the second factor.
func boxKey(secondFactor, salt []byte) (*[scryptKeyLen]byte, error) {
	raw, err := scrypt.Key(
		secondFactor, salt, scryptN, scryptR, scryptP, scryptKeyLen,
	)
	if err != nil {
		return nil, fmt.Errorf("deriving box key: %w", err)
	}

	var key [scryptKeyLen]byte
	copy(key[:], raw)
	zero(raw)

	return &key, nil
}

// DeriveKeys derives the signing keys for the first lookahead indexes of
// both branches and returns them keyed by public key hash. The caller wipes
// the set with Zeroize once signing completes.
func (r *Ring) DeriveKeys(lookahead uint32,
	secondFactor []byte) (*KeySet, error) {

	if lookahead == 0 {
		lookahead = DefaultLookahead
	}

	seed, owned, err := r.openSeed(secondFactor)
	if err != nil {
		return nil, err
	}
	if owned {
		defer zero(seed)
	}

	acctKey, err := accountKey(seed, r.account, r.params)
	if err != nil {
		return nil, err
	}
	defer acctKey.Zero()

	set := &KeySet{keys: make(map[[20]byte]*btcec.PrivateKey)}

	for _, branch := range []uint32{BranchReceive, BranchChange} {
		branchKey, err := acctKey.Derive(branch)
		if err != nil {
			return nil, fmt.Errorf("deriving branch %d: %w",
				branch, err)
		}

		for index := uint32(0); index < lookahead; index++ {
			child, err := branchKey.Derive(index)
			if err != nil {
				// Invalid children are skipped per BIP32.
				if errors.Is(
					err, hdkeychain.ErrInvalidChild,
				) {
					continue
				}

				branchKey.Zero()

				return nil, fmt.Errorf("deriving index "+
					"%d/%d: %w", branch, index, err)
			}

			priv, err := child.ECPrivKey()
			if err != nil {
				child.Zero()
				branchKey.Zero()

				return nil, fmt.Errorf("extracting key "+
					"%d/%d: %w", branch, index, err)
			}

			var hash [20]byte
			copy(hash[:], btcutil.Hash160(
				priv.PubKey().SerializeCompressed(),
			))

			set.keys[hash] = priv
			child.Zero()
		}

		branchKey.Zero()
	}

	return set, nil
}

// AddressAt derives the pay-to-pubkey-hash address at branch/index from the
// cached account xpub. Works on sealed rings.
func (r *Ring) AddressAt(branch, index uint32) (btcutil.Address, error) {
	branchKey, err := r.acctXPub.Derive(branch)
	if err != nil {
		return nil, fmt.Errorf("deriving branch %d: %w", branch, err)
	}

	child, err := branchKey.Derive(index)
	if err != nil {
		return nil, fmt.Errorf("deriving index %d/%d: %w", branch,
			index, err)
	}

	pub, err := child.ECPubKey()
	if err != nil {
		return nil, fmt.Errorf("extracting pubkey %d/%d: %w", branch,
			index, err)
	}

	return btcutil.NewAddressPubKeyHash(
		btcutil.Hash160(pub.SerializeCompressed()), r.params,
	)
}

// KeySet is the ephemeral signing key material for one signing pass, keyed
// by the 20 byte public key hash the output script commits to.
type KeySet struct {
	keys map[[20]byte]*btcec.PrivateKey
}

// KeyForScript looks up the private key able to spend the given
// pay-to-pubkey-hash output script.
func (k *KeySet) KeyForScript(pkScript []byte,
	params *chaincfg.Params) (*btcec.PrivateKey, bool) {

	_, addrs, required, err := txscript.ExtractPkScriptAddrs(
		pkScript, params,
	)
	if err != nil || required != 1 || len(addrs) != 1 {
		return nil, false
	}

	hashAddr, ok := addrs[0].(*btcutil.AddressPubKeyHash)
	if !ok {
		return nil, false
	}

	var hash [20]byte
	copy(hash[:], hashAddr.Hash160()[:])

	priv, ok := k.keys[hash]

	return priv, ok
}

// Zeroize wipes every private key in the set.
func (k *KeySet) Zeroize() {
	for hash, priv := range k.keys {
		priv.Zero()
		delete(k.keys, hash)
	}
}

// zero overwrites a byte slice in place.
func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
