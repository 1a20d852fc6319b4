package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/cashkit/coincore/money"
)

// newTestProcessor creates an initialized processor over a mocked engine.
func newTestProcessor(t *testing.T) (*Processor, *engineMocks) {
	t.Helper()

	eng, deps := newTestEngine(t)
	p := NewProcessor(eng, testAccount, testDestination)

	_, err := p.Initialize(t.Context())
	require.NoError(t, err)

	return p, deps
}

// TestProcessorRequiresInitialize verifies that every operation before
// Initialize is refused and that Initialize runs once per flow.
func TestProcessorRequiresInitialize(t *testing.T) {
	t.Parallel()

	eng, _ := newTestEngine(t)
	p := NewProcessor(eng, testAccount, testDestination)

	_, err := p.SetAmount(t.Context(), sats(1_000_000))
	require.ErrorIs(t, err, ErrStateForbidden)

	_, err = p.ValidateAll()
	require.ErrorIs(t, err, ErrStateForbidden)

	_, err = p.Execute(t.Context(), "")
	require.ErrorIs(t, err, ErrStateForbidden)

	_, err = p.PendingTx()
	require.ErrorIs(t, err, ErrNotInitialized)

	_, err = p.Initialize(t.Context())
	require.NoError(t, err)

	_, err = p.Initialize(t.Context())
	require.ErrorIs(t, err, ErrStateForbidden)
}

// TestProcessorSetAmount verifies that a committed amount update is
// reflected in the snapshot.
func TestProcessorSetAmount(t *testing.T) {
	t.Parallel()

	p, deps := newTestProcessor(t)
	expectFunds(deps)

	ptx, err := p.SetAmount(t.Context(), sats(1_000_000))
	require.NoError(t, err)
	require.Equal(t, sats(1_000_000), ptx.Amount)
	require.Equal(t, ValidationCanExecute, ptx.ValidationState)

	snapshot, err := p.PendingTx()
	require.NoError(t, err)
	require.Equal(t, sats(1_000_000), snapshot.Amount)
}

// TestProcessorSupersession verifies the core concurrency guarantee: of two
// racing amount updates, only the newer one commits. The older update is
// held up inside its balance fetch until the newer one has fully committed,
// then must report ErrSuperseded without touching the snapshot.
func TestProcessorSupersession(t *testing.T) {
	t.Parallel()

	p, deps := newTestProcessor(t)

	var (
		slowStarted = make(chan struct{})
		slowRelease = make(chan struct{})
	)

	// First registered expectation serves the slow update, the second
	// serves the fast one.
	deps.utxos.On("Balance", mock.Anything, testAccount).
		Run(func(mock.Arguments) {
			close(slowStarted)
			<-slowRelease
		}).
		Return(sats(6_000_000), nil).Once()

	deps.utxos.On("Balance", mock.Anything, testAccount).
		Return(sats(6_000_000), nil).Once()

	deps.utxos.On("UnspentOutputs", mock.Anything, testAccount).
		Return(testCoins(), nil)

	deps.fees.On("FeeRate", mock.Anything, FeeLevelRegular).
		Return(satsPerKB(1000), nil)

	slowErr := make(chan error, 1)
	go func() {
		_, err := p.SetAmount(t.Context(), sats(2_000_000))
		slowErr <- err
	}()

	// Wait until the slow update is inside its fetch, then land the newer
	// amount.
	<-slowStarted

	ptx, err := p.SetAmount(t.Context(), sats(1_000_000))
	require.NoError(t, err)
	require.Equal(t, sats(1_000_000), ptx.Amount)

	// Release the slow update: it must fail as superseded even though its
	// fetches completed successfully.
	close(slowRelease)

	select {
	case err := <-slowErr:
		require.ErrorIs(t, err, ErrSuperseded)

	case <-time.After(5 * time.Second):
		t.Fatal("slow update never returned")
	}

	// The newer amount survives.
	snapshot, err := p.PendingTx()
	require.NoError(t, err)
	require.Equal(t, sats(1_000_000), snapshot.Amount)
}

// TestProcessorSetNote verifies note attachment without recomputation.
func TestProcessorSetNote(t *testing.T) {
	t.Parallel()

	p, _ := newTestProcessor(t)

	ptx, err := p.SetNote("lunch")
	require.NoError(t, err)
	require.Equal(t, "lunch", ptx.Note)
}

// TestProcessorExecuteHappyPath verifies the full flow end to end: amount,
// confirmations, execution, exactly-once follow-ups, and that the processor
// refuses a second execution.
func TestProcessorExecuteHappyPath(t *testing.T) {
	t.Parallel()

	p, deps := newTestProcessor(t)
	expectFunds(deps)

	deps.validator.On("IsValidAddress", testDestination).Return(true)

	deps.rates.On("Rate", mock.Anything, money.BCH).
		Return(money.NewExchangeRate(money.BCH, money.USD, 24217), nil)

	_, err := p.SetAmount(t.Context(), sats(1_000_000))
	require.NoError(t, err)

	_, err = p.SetNote("rent")
	require.NoError(t, err)

	_, err = p.BuildConfirmations(t.Context())
	require.NoError(t, err)

	unsigned := &fakeRawTx{id: "unsigned", size: 226}
	signed := &fakeRawTx{id: "txid-1", size: 226}
	keys := &fakeKeySet{}

	deps.addresses.On("NextChangeAddress", mock.Anything, testAccount).
		Return("change-addr", nil).Once()

	deps.assembler.On("Prepare", mock.Anything, mock.Anything).
		Return(unsigned, nil).Once()

	deps.signer.On(
		"KeysFor", mock.Anything, testAccount, mock.Anything,
		[]byte(""),
	).Return(keys, nil).Once()

	deps.signer.On("Sign", mock.Anything, unsigned, keys).
		Return(signed, nil).Once()

	deps.caster.On("Submit", mock.Anything, signed).
		Return("txid-1", nil).Once()

	// Follow-ups run exactly once.
	deps.addresses.On("AdvanceAddresses", mock.Anything, testAccount).
		Return(nil).Once()

	deps.notes.On("SaveNote", mock.Anything, "txid-1", "rent").
		Return(nil).Once()

	result, err := p.Execute(t.Context(), "")
	require.NoError(t, err)
	require.Equal(t, "txid-1", result.TxID)

	stored, err := p.Result()
	require.NoError(t, err)
	require.Equal(t, result, stored)

	require.Equal(t, 1, deps.cache.invalidations)

	// The flow is terminal: no second execution, no further edits, no
	// reset past a broadcast transaction.
	_, err = p.Execute(t.Context(), "")
	require.ErrorIs(t, err, ErrStateForbidden)

	_, err = p.SetAmount(t.Context(), sats(2_000_000))
	require.ErrorIs(t, err, ErrStateForbidden)

	_, err = p.Reset(t.Context())
	require.ErrorIs(t, err, ErrStateForbidden)
}

// TestProcessorExecuteValidationRefusal verifies that a failing validation
// returns the processor to the editing phase so the user can correct the
// transaction.
func TestProcessorExecuteValidationRefusal(t *testing.T) {
	t.Parallel()

	p, deps := newTestProcessor(t)
	expectFunds(deps)

	deps.validator.On("IsValidAddress", testDestination).Return(true)

	// More than the balance can fund.
	_, err := p.SetAmount(t.Context(), sats(7_000_000))
	require.NoError(t, err)

	_, err = p.Execute(t.Context(), "")
	require.ErrorIs(t, err, ErrInsufficientFunds)

	// Still editable: a corrected amount clears the refusal.
	ptx, err := p.SetAmount(t.Context(), sats(1_000_000))
	require.NoError(t, err)
	require.True(t, ptx.CanExecute())
}

// TestProcessorExecuteFailureThenReset verifies that a failed broadcast
// lands the processor in the failed phase, refuses edits, and that Reset
// starts a fresh flow.
func TestProcessorExecuteFailureThenReset(t *testing.T) {
	t.Parallel()

	p, deps := newTestProcessor(t)
	expectFunds(deps)

	deps.validator.On("IsValidAddress", testDestination).Return(true)

	_, err := p.SetAmount(t.Context(), sats(1_000_000))
	require.NoError(t, err)

	unsigned := &fakeRawTx{id: "unsigned", size: 226}
	signed := &fakeRawTx{id: "txid-1", size: 226}

	deps.addresses.On("NextChangeAddress", mock.Anything, testAccount).
		Return("change-addr", nil).Once()

	deps.assembler.On("Prepare", mock.Anything, mock.Anything).
		Return(unsigned, nil).Once()

	deps.signer.On(
		"KeysFor", mock.Anything, testAccount, mock.Anything,
		[]byte(""),
	).Return(&fakeKeySet{}, nil).Once()

	deps.signer.On("Sign", mock.Anything, unsigned, mock.Anything).
		Return(signed, nil).Once()

	deps.caster.On("Submit", mock.Anything, signed).
		Return("", errBroadcastMock).Once()

	_, err = p.Execute(t.Context(), "")
	require.ErrorIs(t, err, ErrExecutionFailed)

	// The failed flow refuses edits until reset.
	_, err = p.SetAmount(t.Context(), sats(1_000_000))
	require.ErrorIs(t, err, ErrStateForbidden)

	_, err = p.Result()
	require.ErrorIs(t, err, ErrStateForbidden)

	ptx, err := p.Reset(t.Context())
	require.NoError(t, err)
	require.True(t, ptx.Amount.IsZero())
	require.Equal(t, ValidationNone, ptx.ValidationState)

	// Editing again.
	ptx, err = p.SetAmount(t.Context(), sats(1_000_000))
	require.NoError(t, err)
	require.True(t, ptx.CanExecute())
}

// TestProcessorSnapshotIsolation verifies that snapshots handed to callers
// are isolated from later commits.
func TestProcessorSnapshotIsolation(t *testing.T) {
	t.Parallel()

	p, deps := newTestProcessor(t)
	expectFunds(deps)

	before, err := p.PendingTx()
	require.NoError(t, err)

	_, err = p.SetAmount(t.Context(), sats(1_000_000))
	require.NoError(t, err)

	// The earlier snapshot still shows the zero amount.
	require.True(t, before.Amount.IsZero())
}
