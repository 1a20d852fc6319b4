// Copyright (c) 2025 The cashkit developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package engine

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/cashkit/coincore/money"
)

// phase is the lifecycle phase of one send flow.
type phase = uint32

const (
	// phaseCreated is the phase before Initialize has run.
	phaseCreated phase = iota

	// phaseEditing is the interactive phase: amount, fee level and note
	// edits plus confirmation building all happen here.
	phaseEditing

	// phaseExecuting is held for the duration of one execution attempt.
	// It guarantees at most one attempt is in flight and that the
	// post-execution follow-ups run exactly once.
	phaseExecuting

	// phaseSucceeded is terminal: the transaction was broadcast.
	phaseSucceeded

	// phaseFailed is reached when an execution attempt failed. Reset
	// returns the processor to the editing phase.
	phaseFailed
)

// phaseName maps a phase to its log representation.
func phaseName(p phase) string {
	switch p {
	case phaseCreated:
		return "created"

	case phaseEditing:
		return "editing"

	case phaseExecuting:
		return "executing"

	case phaseSucceeded:
		return "succeeded"

	case phaseFailed:
		return "failed"

	default:
		return "unknown"
	}
}

// Processor drives one send flow through the engine's phases. It owns the
// authoritative PendingTx snapshot, serializes commits to it, and enforces
// the lifecycle: edits only while editing, at most one execution, follow-ups
// exactly once.
//
// Amount updates are supersession-safe: starting a new update cancels the
// in-flight one, and a superseded update can never commit a stale snapshot,
// no matter how late its fetches resolve.
type Processor struct {
	engine      *Engine
	account     Account
	destination string

	// phase is mutated only through compare-and-swap so illegal
	// transitions are impossible even under concurrent callers.
	phase atomic.Uint32

	// mu guards the snapshot and the supersession bookkeeping.
	mu sync.Mutex

	// pending is the authoritative snapshot. Callers receive clones.
	pending *PendingTx

	// generation counts committed-or-started amount updates. An update
	// captures the generation when it starts and may only commit while
	// it still matches.
	generation uint64

	// cancelUpdate aborts the in-flight amount update, if any.
	cancelUpdate context.CancelFunc

	// result is the outcome of a successful execution.
	result *TxResult
}

// NewProcessor creates a processor for one send flow from the given account
// to the given destination.
func NewProcessor(engine *Engine, account Account,
	destination string) *Processor {

	return &Processor{
		engine:      engine,
		account:     account,
		destination: destination,
	}
}

// Initialize produces the zeroed pending transaction and moves the
// processor into the editing phase. It may be called once per flow.
func (p *Processor) Initialize(ctx context.Context) (*PendingTx, error) {
	if !p.phase.CompareAndSwap(phaseCreated, phaseEditing) {
		return nil, fmt.Errorf("%w: initialize in phase %s",
			ErrStateForbidden, phaseName(p.phase.Load()))
	}

	ptx, err := p.engine.InitializeTx(ctx, p.account)
	if err != nil {
		p.phase.Store(phaseCreated)

		return nil, err
	}

	p.mu.Lock()
	p.pending = ptx
	p.mu.Unlock()

	return ptx.clone(), nil
}

// PendingTx returns a copy of the current snapshot.
func (p *Processor) PendingTx() (*PendingTx, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.pending == nil {
		return nil, ErrNotInitialized
	}

	return p.pending.clone(), nil
}

// SetAmount recomputes the pending transaction for a new amount and commits
// the result. A racing SetAmount cancels this one's fetches and makes it
// return ErrSuperseded; the snapshot then reflects only the newest amount.
func (p *Processor) SetAmount(ctx context.Context,
	amount money.Money) (*PendingTx, error) {

	return p.recompute(ctx, func(ctx context.Context,
		ptx *PendingTx) (*PendingTx, error) {

		return p.engine.UpdateAmount(ctx, p.account, ptx, amount)
	})
}

// SetFeeLevel switches the fee priority level and recomputes the pending
// transaction at the new rate. Like SetAmount it is supersession-safe.
func (p *Processor) SetFeeLevel(ctx context.Context,
	level FeeLevel) (*PendingTx, error) {

	return p.recompute(ctx, func(ctx context.Context,
		ptx *PendingTx) (*PendingTx, error) {

		return p.engine.UpdateFeeLevel(ctx, p.account, ptx, level)
	})
}

// recompute runs one cancellable update cycle: it cancels any in-flight
// cycle, runs the update and the amount validation outside the lock, and
// commits only if no newer cycle started meanwhile.
func (p *Processor) recompute(ctx context.Context,
	update func(context.Context, *PendingTx) (*PendingTx, error)) (
	*PendingTx, error) {

	if err := p.requireEditing("amount update"); err != nil {
		return nil, err
	}

	p.mu.Lock()

	if p.pending == nil {
		p.mu.Unlock()

		return nil, ErrNotInitialized
	}

	// Supersede the in-flight cycle, if any.
	if p.cancelUpdate != nil {
		p.cancelUpdate()
	}

	uctx, cancel := context.WithCancel(ctx)
	p.cancelUpdate = cancel
	p.generation++
	gen := p.generation
	base := p.pending.clone()

	p.mu.Unlock()
	defer cancel()

	next, err := update(uctx, base)
	if err == nil {
		next = p.engine.ValidateAmount(next)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.generation != gen {
		// A newer cycle started; this result is stale regardless of
		// whether the update itself succeeded.
		return nil, ErrSuperseded
	}

	if err != nil {
		// Cancellation of uctx without a newer generation means the
		// caller's own context ended; report that directly.
		return nil, err
	}

	p.pending = next

	return next.clone(), nil
}

// SetNote attaches a note to the pending transaction. Notes do not affect
// selection, so no recomputation happens.
func (p *Processor) SetNote(note string) (*PendingTx, error) {
	if err := p.requireEditing("note update"); err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.pending == nil {
		return nil, ErrNotInitialized
	}

	next := p.pending.clone()
	next.Note = note
	p.pending = next

	return next.clone(), nil
}

// BuildConfirmations assembles the confirmation line items for the current
// snapshot and commits them.
func (p *Processor) BuildConfirmations(ctx context.Context) (*PendingTx,
	error) {

	if err := p.requireEditing("confirmation build"); err != nil {
		return nil, err
	}

	base, err := p.PendingTx()
	if err != nil {
		return nil, err
	}

	next, err := p.engine.BuildConfirmations(
		ctx, p.account, base, p.destination,
	)
	if err != nil {
		return nil, err
	}

	p.commit(next)

	return next.clone(), nil
}

// ValidateAll runs the full pre-execution validation and commits the
// resulting state.
func (p *Processor) ValidateAll() (*PendingTx, error) {
	if err := p.requireEditing("validation"); err != nil {
		return nil, err
	}

	base, err := p.PendingTx()
	if err != nil {
		return nil, err
	}

	next := p.engine.ValidateAll(base, p.destination)
	p.commit(next)

	return next.clone(), nil
}

// Execute re-validates the snapshot and, if it clears, runs the single
// execution attempt: assemble, sign, broadcast, then the exactly-once
// follow-ups. A validation failure leaves the processor editing; an
// execution failure moves it to the failed phase, from which Reset starts
// over.
func (p *Processor) Execute(ctx context.Context,
	secondFactor string) (*TxResult, error) {

	if !p.phase.CompareAndSwap(phaseEditing, phaseExecuting) {
		return nil, fmt.Errorf("%w: execute in phase %s",
			ErrStateForbidden, phaseName(p.phase.Load()))
	}

	// Any in-flight amount update is now stale by definition.
	p.mu.Lock()
	if p.cancelUpdate != nil {
		p.cancelUpdate()
		p.cancelUpdate = nil
	}
	p.generation++
	ptx := p.pending
	p.mu.Unlock()

	if ptx == nil {
		p.phase.Store(phaseCreated)

		return nil, ErrNotInitialized
	}

	validated := p.engine.ValidateAll(ptx, p.destination)
	p.commit(validated)

	if !validated.CanExecute() {
		// Expected, user-correctable refusal: back to editing.
		p.phase.Store(phaseEditing)

		return nil, validated.ValidationState.Err()
	}

	result, err := p.engine.Execute(
		ctx, p.account, validated, p.destination, secondFactor,
	)
	if err != nil {
		p.phase.Store(phaseFailed)

		return nil, err
	}

	// The phaseExecuting guard makes this transition unique, so the
	// follow-ups run exactly once per broadcast transaction.
	p.engine.PostExecute(ctx, p.account, result, validated.Note)

	p.mu.Lock()
	p.result = result
	p.mu.Unlock()

	p.phase.Store(phaseSucceeded)

	return result, nil
}

// Result returns the outcome of the successful execution, or
// ErrStateForbidden while none exists.
func (p *Processor) Result() (*TxResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.result == nil {
		return nil, fmt.Errorf("%w: no execution result yet",
			ErrStateForbidden)
	}

	return p.result, nil
}

// Reset abandons the current flow and re-initializes: the in-flight update
// is cancelled, the snapshot is replaced with a fresh zeroed one, and the
// processor returns to editing. Allowed while editing or after a failed
// execution; a broadcast transaction cannot be reset away.
func (p *Processor) Reset(ctx context.Context) (*PendingTx, error) {
	if p.phase.Load() != phaseEditing &&
		!p.phase.CompareAndSwap(phaseFailed, phaseEditing) {

		return nil, fmt.Errorf("%w: reset in phase %s",
			ErrStateForbidden, phaseName(p.phase.Load()))
	}

	ptx, err := p.engine.InitializeTx(ctx, p.account)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cancelUpdate != nil {
		p.cancelUpdate()
		p.cancelUpdate = nil
	}
	p.generation++
	p.pending = ptx

	return ptx.clone(), nil
}

// Cancel aborts any in-flight amount update without changing the snapshot
// or the phase.
func (p *Processor) Cancel() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cancelUpdate != nil {
		p.cancelUpdate()
		p.cancelUpdate = nil
	}
	p.generation++
}

// commit replaces the snapshot under the lock.
func (p *Processor) commit(ptx *PendingTx) {
	p.mu.Lock()
	p.pending = ptx
	p.mu.Unlock()
}

// requireEditing rejects operations outside the editing phase.
func (p *Processor) requireEditing(op string) error {
	if current := p.phase.Load(); current != phaseEditing {
		return fmt.Errorf("%w: %s in phase %s", ErrStateForbidden,
			op, phaseName(current))
	}

	return nil
}
