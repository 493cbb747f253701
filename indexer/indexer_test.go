package indexer

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	weave "github.com/iov-one/escrowfactory"
	"github.com/iov-one/escrowfactory/app"
	"github.com/iov-one/escrowfactory/coin"
	"github.com/iov-one/escrowfactory/store"
	"github.com/iov-one/escrowfactory/weavetest"
	"github.com/iov-one/escrowfactory/x/cash"
	"github.com/iov-one/escrowfactory/x/escrow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "index", "escrow.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestIndexTransitions(t *testing.T) {
	s := openStore(t)

	buyer := weavetest.NewCondition().Address()
	seller := weavetest.NewCondition().Address()
	now := weave.AsUnixTime(time.Now())

	created := &escrow.TransitionEvent{
		EscrowID: weavetest.SequenceID(1),
		To:       escrow.StateCreated,
		Action:   escrow.ActionCreate,
		Actor:    buyer,
		Time:     now,
	}
	funded := &escrow.TransitionEvent{
		EscrowID: weavetest.SequenceID(1),
		From:     escrow.StateCreated,
		To:       escrow.StateFunded,
		Action:   escrow.ActionFund,
		Actor:    buyer,
		Amount:   coin.NewCoinp(5, 0, "IOV"),
		Time:     now,
	}
	released := &escrow.TransitionEvent{
		EscrowID:  weavetest.SequenceID(1),
		From:      escrow.StateFunded,
		To:        escrow.StateReleased,
		Action:    escrow.ActionRelease,
		Actor:     buyer,
		Amount:    coin.NewCoinp(5, 0, "IOV"),
		Recipient: seller,
		Time:      now,
	}
	other := &escrow.TransitionEvent{
		EscrowID: weavetest.SequenceID(2),
		To:       escrow.StateCreated,
		Action:   escrow.ActionCreate,
		Actor:    seller,
		Time:     now,
	}

	ctx := context.Background()
	blocks := []app.Block{
		{Height: 2, TxHash: []byte{1}, Events: []weave.Event{created}},
		{Height: 3, TxHash: []byte{2}, Events: []weave.Event{funded, other}},
		{Height: 4, TxHash: []byte{3}, Events: []weave.Event{released}},
		{Height: 5, TxHash: []byte{4}},
	}
	for _, b := range blocks {
		require.NoError(t, s.OnCommit(ctx, b))
	}

	got, err := s.Transitions(weavetest.SequenceID(1))
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "Created", got[0].ToState)
	assert.Equal(t, "Invalid", got[0].FromState)
	assert.Equal(t, "", got[0].Amount)
	assert.Equal(t, "Funded", got[1].ToState)
	assert.Equal(t, "5 IOV", got[1].Amount)
	assert.Equal(t, int64(3), got[1].Height)
	assert.Equal(t, "02", got[1].TxHash)
	assert.Equal(t, "Released", got[2].ToState)
	assert.Equal(t, seller.String(), got[2].Recipient)

	mine, err := s.ByActor(seller, 10)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, "0000000000000002", mine[0].EscrowID)

	latest, err := s.ByActor(buyer, 2)
	require.NoError(t, err)
	require.Len(t, latest, 2)
	assert.Equal(t, "Released", latest[0].ToState)

	h, err := s.Height()
	require.NoError(t, err)
	assert.Equal(t, int64(4), h)
}

func TestEmptyIndex(t *testing.T) {
	s := openStore(t)

	h, err := s.Height()
	require.NoError(t, err)
	assert.Equal(t, int64(0), h)

	got, err := s.Transitions(weavetest.SequenceID(9))
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestRebuildFromHistory(t *testing.T) {
	s := openStore(t)

	buyer := weavetest.NewCondition().Address()
	seller := weavetest.NewCondition().Address()
	arbiter := weavetest.NewCondition().Address()
	genesis := fmt.Sprintf(`{
		"escrow": [
			{"buyer": %q, "seller": %q, "price": "5 IOV"},
			{"buyer": %q, "seller": %q, "arbiter": %q, "amount": "2 IOV", "state": "Disputed"}
		]
	}`, buyer, seller, buyer, seller, arbiter)
	var opts weave.Options
	require.NoError(t, json.Unmarshal([]byte(genesis), &opts))

	db := store.MemStore()
	ctx := weave.WithBlockTime(context.Background(), time.Unix(1000, 0))
	ctx = weave.WithHeight(ctx, 1)
	ini := &escrow.Initializer{Minter: cash.NewController(cash.NewBucket())}
	require.NoError(t, ini.FromGenesis(ctx, opts, db))

	// a stale row is replaced
	stale := app.Block{Height: 9, TxHash: []byte{9}, Events: []weave.Event{&escrow.TransitionEvent{
		EscrowID: weavetest.SequenceID(7),
		To:       escrow.StateCreated,
		Action:   escrow.ActionCreate,
		Actor:    seller,
	}}}
	require.NoError(t, s.OnCommit(context.Background(), stale))

	n, err := s.Rebuild(db, escrow.NewRegistry())
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	count, err := s.Count()
	require.NoError(t, err)
	assert.Equal(t, int64(4), count)

	got, err := s.Transitions(weavetest.SequenceID(2))
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "Created", got[0].ToState)
	assert.Equal(t, "Funded", got[1].ToState)
	assert.Equal(t, "2 IOV", got[1].Amount)
	assert.Equal(t, "Disputed", got[2].ToState)
	assert.Equal(t, int64(1), got[2].Height)
	assert.Equal(t, "", got[2].TxHash)

	gone, err := s.Transitions(weavetest.SequenceID(7))
	require.NoError(t, err)
	assert.Empty(t, gone)

	h, err := s.Height()
	require.NoError(t, err)
	assert.Equal(t, int64(1), h)
}
