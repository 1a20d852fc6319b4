package engine

import (
	"context"
	"errors"

	"github.com/stretchr/testify/mock"

	"github.com/cashkit/coincore/coinselect"
	"github.com/cashkit/coincore/money"
	"github.com/cashkit/coincore/pkg/feerate"
)

var (
	errFetchMock     = errors.New("fetch fail")
	errRateMock      = errors.New("rate fail")
	errAssembleMock  = errors.New("assemble fail")
	errSignMock      = errors.New("sign fail")
	errBroadcastMock = errors.New("broadcast fail")
	errAdvanceMock   = errors.New("advance fail")
)

var (
	_ UTXOSource       = (*mockUTXOSource)(nil)
	_ FeeSource        = (*mockFeeSource)(nil)
	_ RateSource       = (*mockRateSource)(nil)
	_ AddressValidator = (*mockValidator)(nil)
	_ Assembler        = (*mockAssembler)(nil)
	_ Signer           = (*mockSigner)(nil)
	_ Broadcaster      = (*mockBroadcaster)(nil)
	_ AddressBook      = (*mockAddressBook)(nil)
	_ NotesStore       = (*mockNotesStore)(nil)
	_ RawTx            = (*fakeRawTx)(nil)
	_ KeySet           = (*fakeKeySet)(nil)
	_ Flushable        = (*fakeCache)(nil)
)

type mockUTXOSource struct {
	mock.Mock
}

func (m *mockUTXOSource) UnspentOutputs(ctx context.Context,
	account Account) ([]coinselect.UnspentOutput, error) {

	args := m.Called(ctx, account)

	return args.Get(0).([]coinselect.UnspentOutput), args.Error(1)
}

func (m *mockUTXOSource) Balance(ctx context.Context,
	account Account) (money.Money, error) {

	args := m.Called(ctx, account)

	return args.Get(0).(money.Money), args.Error(1)
}

type mockFeeSource struct {
	mock.Mock
}

func (m *mockFeeSource) FeeRate(ctx context.Context,
	level FeeLevel) (feerate.Rate, error) {

	args := m.Called(ctx, level)

	return args.Get(0).(feerate.Rate), args.Error(1)
}

type mockRateSource struct {
	mock.Mock
}

func (m *mockRateSource) Rate(ctx context.Context,
	asset money.Currency) (money.ExchangeRate, error) {

	args := m.Called(ctx, asset)

	return args.Get(0).(money.ExchangeRate), args.Error(1)
}

type mockValidator struct {
	mock.Mock
}

func (m *mockValidator) IsValidAddress(addr string) bool {
	args := m.Called(addr)

	return args.Bool(0)
}

type mockAssembler struct {
	mock.Mock
}

func (m *mockAssembler) Prepare(ctx context.Context,
	req PrepareRequest) (RawTx, error) {

	args := m.Called(ctx, req)

	tx, _ := args.Get(0).(RawTx)

	return tx, args.Error(1)
}

type mockSigner struct {
	mock.Mock
}

func (m *mockSigner) KeysFor(ctx context.Context, account Account,
	outputs []coinselect.UnspentOutput, secondFactor []byte) (KeySet,
	error) {

	args := m.Called(ctx, account, outputs, secondFactor)

	keys, _ := args.Get(0).(KeySet)

	return keys, args.Error(1)
}

func (m *mockSigner) Sign(ctx context.Context, tx RawTx,
	keys KeySet) (RawTx, error) {

	args := m.Called(ctx, tx, keys)

	signed, _ := args.Get(0).(RawTx)

	return signed, args.Error(1)
}

type mockBroadcaster struct {
	mock.Mock
}

func (m *mockBroadcaster) Submit(ctx context.Context,
	tx RawTx) (string, error) {

	args := m.Called(ctx, tx)

	return args.String(0), args.Error(1)
}

type mockAddressBook struct {
	mock.Mock
}

func (m *mockAddressBook) NextChangeAddress(ctx context.Context,
	account Account) (string, error) {

	args := m.Called(ctx, account)

	return args.String(0), args.Error(1)
}

func (m *mockAddressBook) AdvanceAddresses(ctx context.Context,
	account Account) error {

	args := m.Called(ctx, account)

	return args.Error(0)
}

type mockNotesStore struct {
	mock.Mock
}

func (m *mockNotesStore) SaveNote(ctx context.Context, txID,
	note string) error {

	args := m.Called(ctx, txID, note)

	return args.Error(0)
}

func (m *mockNotesStore) Note(ctx context.Context,
	txID string) (string, error) {

	args := m.Called(ctx, txID)

	return args.String(0), args.Error(1)
}

// fakeRawTx is a minimal RawTx for wiring through assemble, sign and
// broadcast expectations.
type fakeRawTx struct {
	id   string
	size int
}

func (f *fakeRawTx) TxID() string {
	return f.id
}

func (f *fakeRawTx) SerializedSize() int {
	return f.size
}

// fakeKeySet records whether the key material was wiped.
type fakeKeySet struct {
	zeroized bool
}

func (f *fakeKeySet) Zeroize() {
	f.zeroized = true
}

// fakeCache counts invalidations.
type fakeCache struct {
	invalidations int
}

func (f *fakeCache) Invalidate() {
	f.invalidations++
}
