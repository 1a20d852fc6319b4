// Copyright (c) 2025 The cashkit developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package chainio provides wallet-facing chain access over a full node's
// JSON-RPC interface: fee rate quotes, transaction broadcast, and
// confirmation tracking.
package chainio

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcjson"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/rpcclient"
	"github.com/btcsuite/btcd/wire"
	"github.com/davecgh/go-spew/spew"

	"github.com/cashkit/coincore/engine"
	"github.com/cashkit/coincore/money"
	"github.com/cashkit/coincore/pkg/feerate"
	"github.com/cashkit/coincore/poll"
)

var (
	// ErrTxRejected is returned when the node refuses a broadcast for a
	// reason other than already knowing the transaction. It is
	// distinguishable from transport failures, which are returned
	// unwrapped.
	ErrTxRejected = errors.New("transaction rejected by network")

	// ErrNoFeeEstimate is returned when the node cannot quote a usable
	// fee rate.
	ErrNoFeeEstimate = errors.New("no fee estimate available")

	// ErrForeignTx is returned when the broadcaster receives a raw
	// transaction it cannot serialize.
	ErrForeignTx = errors.New("raw transaction carries no wire form")
)

// Confirmation targets per fee level, in blocks.
const (
	regularConfTarget  = 6
	priorityConfTarget = 2
)

// maxTxSizeForLog bounds the transactions dumped at debug level.
const maxTxSizeForLog = 1_000_000

// wireTx is the contract a raw transaction must satisfy to be broadcast:
// it exposes its wire form.
type wireTx interface {
	MsgTx() *wire.MsgTx
}

// rpcConn is the slice of the RPC client the chain client depends on,
// extracted so tests can stub the node.
type rpcConn interface {
	SendRawTransaction(tx *wire.MsgTx,
		allowHighFees bool) (*chainhash.Hash, error)
	EstimateSmartFee(confTarget int64,
		mode *btcjson.EstimateSmartFeeMode) (
		*btcjson.EstimateSmartFeeResult, error)
	GetRawTransactionVerbose(
		txHash *chainhash.Hash) (*btcjson.TxRawResult, error)
}

// Client talks to a full node over JSON-RPC. It serves as both the fee
// quote source and the broadcaster of the send pipeline.
type Client struct {
	conn rpcConn

	// asset tags the fee rates quoted by the node.
	asset money.Currency
}

var (
	_ engine.FeeSource   = (*Client)(nil)
	_ engine.Broadcaster = (*Client)(nil)
)

// New dials the node described by the connection config. Fee quotes are
// tagged with the given currency.
func New(connCfg *rpcclient.ConnConfig,
	asset money.Currency) (*Client, error) {

	rpc, err := rpcclient.New(connCfg, nil)
	if err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", connCfg.Host,
			err)
	}

	return &Client{conn: rpc, asset: asset}, nil
}

// FeeRate quotes the node's smart fee estimate for the level's confirmation
// target, as a rate per kilobyte.
func (c *Client) FeeRate(ctx context.Context,
	level engine.FeeLevel) (feerate.Rate, error) {

	var zero feerate.Rate

	if err := ctx.Err(); err != nil {
		return zero, err
	}

	target := int64(regularConfTarget)
	if level == engine.FeeLevelPriority {
		target = priorityConfTarget
	}

	result, err := c.conn.EstimateSmartFee(
		target, &btcjson.EstimateModeConservative,
	)
	if err != nil {
		return zero, fmt.Errorf("estimating fee for target %d: %w",
			target, err)
	}

	if len(result.Errors) > 0 || result.FeeRate == nil ||
		*result.FeeRate <= 0 {

		return zero, fmt.Errorf("%w: target %d", ErrNoFeeEstimate,
			target)
	}

	// The node quotes whole coins per kilobyte.
	perKB, err := btcutil.NewAmount(*result.FeeRate)
	if err != nil {
		return zero, fmt.Errorf("converting fee rate %f: %w",
			*result.FeeRate, err)
	}

	rate := feerate.PerKB(money.FromInt(c.asset, int64(perKB)))

	log.Debugf("Fee estimate for target %d: %s", target, rate)

	return rate, nil
}

// Submit broadcasts the signed transaction and returns its id. A node that
// already knows the transaction counts as success. Rejections are wrapped
// in ErrTxRejected; transport failures are returned as-is so callers can
// tell the two apart.
func (c *Client) Submit(ctx context.Context,
	tx engine.RawTx) (string, error) {

	wtx, ok := tx.(wireTx)
	if !ok {
		return "", ErrForeignTx
	}

	if err := ctx.Err(); err != nil {
		return "", err
	}

	msgTx := wtx.MsgTx()
	txid := msgTx.TxHash()

	if msgTx.SerializeSize() < maxTxSizeForLog {
		log.Debugf("Broadcasting tx %v: %v", txid,
			newLogClosure(func() string {
				return spew.Sdump(msgTx)
			}))
	}

	_, err := c.conn.SendRawTransaction(msgTx, false)
	if err == nil {
		return txid.String(), nil
	}

	if alreadyKnown(err) {
		log.Infof("%v: tx already known to the network", txid)

		return txid.String(), nil
	}

	var rpcErr *btcjson.RPCError
	if errors.As(err, &rpcErr) {
		return "", fmt.Errorf("%w: %v", ErrTxRejected, rpcErr)
	}

	return "", err
}

// Confirmations reports how many blocks confirm the transaction, zero while
// it sits in the mempool.
func (c *Client) Confirmations(ctx context.Context,
	txID string) (uint64, error) {

	if err := ctx.Err(); err != nil {
		return 0, err
	}

	hash, err := chainhash.NewHashFromStr(txID)
	if err != nil {
		return 0, fmt.Errorf("parsing txid %q: %w", txID, err)
	}

	result, err := c.conn.GetRawTransactionVerbose(hash)
	if err != nil {
		return 0, fmt.Errorf("looking up tx %s: %w", txID, err)
	}

	return result.Confirmations, nil
}

// WaitForConfirmations polls the node until the transaction reaches the
// required confirmation depth, the poller's budget runs out, or ctx ends.
// It reports the depth last observed.
func (c *Client) WaitForConfirmations(ctx context.Context,
	p *poll.Poller[uint64], txID string, required uint64) (uint64,
	poll.Outcome, error) {

	return p.Await(ctx,
		func(ctx context.Context) (uint64, error) {
			return c.Confirmations(ctx, txID)
		},
		func(depth uint64) bool {
			return depth >= required
		},
	)
}

// alreadyKnown reports whether the broadcast failure means the network has
// the transaction already.
func alreadyKnown(err error) bool {
	var rpcErr *btcjson.RPCError
	if errors.As(err, &rpcErr) {
		switch rpcErr.Code {
		case btcjson.ErrRPCVerifyAlreadyInChain:
			return true
		}
	}

	msg := strings.ToLower(err.Error())

	return strings.Contains(msg, "txn-already-in-mempool") ||
		strings.Contains(msg, "already have transaction") ||
		strings.Contains(msg, "already in block chain")
}
