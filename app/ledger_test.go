package app

import (
	"context"
	"testing"
	"time"

	weave "github.com/iov-one/escrowfactory"
	"github.com/iov-one/escrowfactory/errors"
	"github.com/iov-one/escrowfactory/store/iavl"
	"github.com/iov-one/escrowfactory/weavetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// pathDecoder decodes raw bytes as a transaction with a message of that
// path. An empty input is not a transaction.
func pathDecoder(raw []byte) (weave.Tx, error) {
	if len(raw) == 0 {
		return nil, errors.Wrap(errors.ErrInput, "empty tx")
	}
	return &weavetest.Tx{Msg: &weavetest.Msg{RoutePath: string(raw)}}, nil
}

type pingEvent struct {
	Seq int64 `protobuf:"varint,1,opt,name=seq,proto3" json:"seq"`
}

func (*pingEvent) EventPath() string { return "test/ping" }
func (m *pingEvent) Reset()          { *m = pingEvent{} }
func (m *pingEvent) String() string  { return "ping" }
func (*pingEvent) ProtoMessage()     {}

type recorder struct {
	blocks []Block
	err    error
}

func (r *recorder) OnCommit(ctx weave.Context, b Block) error {
	r.blocks = append(r.blocks, b)
	return r.err
}

// genesisLoader writes a single key during genesis.
type genesisLoader struct{}

func (genesisLoader) FromGenesis(ctx weave.Context, opts weave.Options, db weave.KVStore) error {
	if _, err := weave.BlockTime(ctx); err != nil {
		return err
	}
	return db.Set([]byte("genesis"), []byte("loaded"))
}

var testGenesis = &Genesis{
	ChainID:  "ledger-test",
	AppState: weave.Options{"test": []byte(`{}`)},
}

func TestLedgerInitChain(t *testing.T) {
	l, err := NewLedger(iavl.NewMemCommitStore(), pathDecoder, &weavetest.Handler{})
	require.NoError(t, err)
	assert.Equal(t, "", l.ChainID())
	assert.Equal(t, int64(0), l.Height())

	_, err = l.Submit(context.Background(), []byte("test/any"))
	assert.True(t, errors.ErrState.Is(err), "got %v", err)
	_, err = l.Check(context.Background(), []byte("test/any"))
	assert.True(t, errors.ErrState.Is(err), "got %v", err)

	err = l.InitChain(&Genesis{ChainID: "x"}, genesisLoader{})
	assert.True(t, errors.ErrInput.Is(err), "got %v", err)

	require.NoError(t, l.InitChain(testGenesis, genesisLoader{}))
	assert.Equal(t, "ledger-test", l.ChainID())
	assert.Equal(t, int64(1), l.Height())

	err = l.View(func(db weave.ReadOnlyKVStore) error {
		val, err := db.Get([]byte("genesis"))
		assert.Equal(t, []byte("loaded"), val)
		return err
	})
	require.NoError(t, err)

	err = l.InitChain(testGenesis, genesisLoader{})
	assert.True(t, errors.ErrState.Is(err), "got %v", err)
}

func TestLedgerSubmit(t *testing.T) {
	h := &weavetest.Handler{
		Write: &weavetest.KV{Key: []byte("a"), Value: []byte("1")},
		DeliverResult: weave.DeliverResult{
			Log:    "done",
			Events: []weave.Event{&pingEvent{Seq: 1}},
		},
	}
	rec := &recorder{err: errors.ErrHuman}
	l, err := NewLedger(iavl.NewMemCommitStore(), pathDecoder, h, WithCommitListeners(rec))
	require.NoError(t, err)
	require.NoError(t, l.InitChain(testGenesis, genesisLoader{}))

	res, err := l.Submit(context.Background(), []byte("test/write"))
	require.NoError(t, err)
	assert.True(t, res.IsOK())
	assert.Equal(t, "done", res.Log)
	assert.Equal(t, int64(2), res.Height)
	assert.Len(t, res.Hash, 32)
	assert.Equal(t, int64(2), l.Height())

	// a failing listener does not revert the block
	require.Len(t, rec.blocks, 1)
	assert.Equal(t, int64(2), rec.blocks[0].Height)
	assert.Equal(t, res.Hash, rec.blocks[0].TxHash)
	assert.Len(t, rec.blocks[0].Events, 1)

	assertValue(t, l, "a", "1")

	res, err = l.Submit(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, errors.ErrInput.ABCICode(), res.Code)
	assert.Equal(t, int64(2), l.Height())
}

func TestLedgerRejectedTxIsDiscarded(t *testing.T) {
	h := &weavetest.Handler{
		Write:      &weavetest.KV{Key: []byte("a"), Value: []byte("1")},
		DeliverErr: errors.Wrap(errors.ErrAmount, "too much"),
		CheckErr:   errors.ErrAmount,
	}
	rec := &recorder{}
	l, err := NewLedger(iavl.NewMemCommitStore(), pathDecoder, h, WithCommitListeners(rec))
	require.NoError(t, err)
	require.NoError(t, l.InitChain(testGenesis, genesisLoader{}))

	res, err := l.Submit(context.Background(), []byte("test/write"))
	require.NoError(t, err)
	assert.False(t, res.IsOK())
	assert.Equal(t, errors.ErrAmount.ABCICode(), res.Code)
	assert.Contains(t, res.Log, "too much")
	assert.Equal(t, int64(1), l.Height())
	assert.Empty(t, rec.blocks)
	assertValue(t, l, "a", "")

	res, err = l.Check(context.Background(), []byte("test/write"))
	require.NoError(t, err)
	assert.Equal(t, errors.ErrAmount.ABCICode(), res.Code)
	assert.Equal(t, 1, h.CheckCallCount())
}

func TestLedgerBlockTimeIsMonotonic(t *testing.T) {
	start := time.Date(2020, 1, 1, 10, 0, 0, 0, time.UTC)
	clock := start
	rec := &recorder{}
	l, err := NewLedger(iavl.NewMemCommitStore(), pathDecoder, &weavetest.Handler{},
		WithClock(func() time.Time { return clock }),
		WithCommitListeners(rec))
	require.NoError(t, err)
	require.NoError(t, l.InitChain(testGenesis, genesisLoader{}))

	clock = start.Add(time.Hour)
	_, err = l.Submit(context.Background(), []byte("test/a"))
	require.NoError(t, err)

	clock = start.Add(-time.Hour)
	_, err = l.Submit(context.Background(), []byte("test/b"))
	require.NoError(t, err)

	require.Len(t, rec.blocks, 2)
	assert.Equal(t, start.Add(time.Hour), rec.blocks[0].Time)
	assert.Equal(t, start.Add(time.Hour), rec.blocks[1].Time)
}

func TestLedgerRestart(t *testing.T) {
	dir := t.TempDir()
	kv, err := iavl.NewCommitStore(dir, "ledger")
	require.NoError(t, err)
	h := &weavetest.Handler{Write: &weavetest.KV{Key: []byte("a"), Value: []byte("1")}}
	l, err := NewLedger(kv, pathDecoder, h)
	require.NoError(t, err)
	require.NoError(t, l.InitChain(testGenesis, genesisLoader{}))
	_, err = l.Submit(context.Background(), []byte("test/write"))
	require.NoError(t, err)
	kv.Close()

	kv, err = iavl.NewCommitStore(dir, "ledger")
	require.NoError(t, err)
	defer kv.Close()
	l, err = NewLedger(kv, pathDecoder, h)
	require.NoError(t, err)
	assert.Equal(t, "ledger-test", l.ChainID())
	assert.Equal(t, int64(2), l.Height())
	assertValue(t, l, "a", "1")

	err = l.InitChain(testGenesis, genesisLoader{})
	assert.True(t, errors.ErrState.Is(err), "got %v", err)
}

func TestLedgerBlockTimeSurvivesRestart(t *testing.T) {
	dir := t.TempDir()
	start := time.Date(2020, 1, 1, 10, 0, 0, 0, time.UTC)
	clock := start.Add(time.Hour)
	withClock := WithClock(func() time.Time { return clock })

	kv, err := iavl.NewCommitStore(dir, "ledger")
	require.NoError(t, err)
	l, err := NewLedger(kv, pathDecoder, &weavetest.Handler{}, withClock)
	require.NoError(t, err)
	require.NoError(t, l.InitChain(testGenesis, genesisLoader{}))
	_, err = l.Submit(context.Background(), []byte("test/a"))
	require.NoError(t, err)
	kv.Close()

	// the clock of the restarted node is behind the last block
	clock = start
	kv, err = iavl.NewCommitStore(dir, "ledger")
	require.NoError(t, err)
	defer kv.Close()
	rec := &recorder{}
	l, err = NewLedger(kv, pathDecoder, &weavetest.Handler{}, withClock, WithCommitListeners(rec))
	require.NoError(t, err)
	_, err = l.Submit(context.Background(), []byte("test/b"))
	require.NoError(t, err)

	require.Len(t, rec.blocks, 1)
	assert.Equal(t, start.Add(time.Hour), rec.blocks[0].Time)
}

func assertValue(t testing.TB, l *Ledger, key, want string) {
	t.Helper()
	err := l.View(func(db weave.ReadOnlyKVStore) error {
		val, err := db.Get([]byte(key))
		if err != nil {
			return err
		}
		assert.Equal(t, want, string(val))
		return nil
	})
	require.NoError(t, err)
}
