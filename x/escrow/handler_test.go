package escrow

import (
	"testing"
	"time"

	weave "github.com/iov-one/escrowfactory"
	"github.com/iov-one/escrowfactory/coin"
	"github.com/iov-one/escrowfactory/errors"
	"github.com/iov-one/escrowfactory/store"
	"github.com/iov-one/escrowfactory/weavetest"
	"github.com/iov-one/escrowfactory/x/cash"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testRouter map[string]weave.Handler

func (r testRouter) Handle(path string, h weave.Handler) { r[path] = h }

func TestHandlers(t *testing.T) {
	buyer := weavetest.NewCondition()
	seller := weavetest.NewCondition()
	arbiter := weavetest.NewCondition()

	db := store.MemStore()
	bank := cash.NewController(cash.NewBucket())
	require.NoError(t, bank.CoinMint(db, buyer.Address(), coin.NewCoin(50, 0, "IOV")))

	auth := &weavetest.CtxAuth{Key: "auth"}
	r := make(testRouter)
	RegisterRoutes(r, auth, NewFactory(NewRegistry(), bank))
	for _, path := range []string{"escrow/create", "escrow/fund", "escrow/release", "escrow/refund", "escrow/dispute"} {
		require.Contains(t, r, path)
	}

	ctx := blockCtx(time.Now(), 3)
	as := func(c weave.Condition) weave.Context { return auth.SetConditions(ctx, c) }
	deliver := func(signer weave.Condition, msg weave.Msg) (*weave.DeliverResult, error) {
		tx := &weavetest.Tx{Msg: msg}
		if _, err := r[msg.Path()].Check(as(signer), db, tx); err != nil {
			return nil, err
		}
		return r[msg.Path()].Deliver(as(signer), db, tx)
	}

	// An unsigned transaction cannot create an escrow.
	_, err := r["escrow/create"].Deliver(ctx, db, &weavetest.Tx{Msg: &CreateMsg{Buyer: buyer.Address(), Seller: seller.Address()}})
	assert.True(t, errors.ErrUnauthorized.Is(err), "%+v", err)

	res, err := deliver(buyer, &CreateMsg{
		Buyer:   buyer.Address(),
		Seller:  seller.Address(),
		Arbiter: arbiter.Address(),
		Amount:  coin.NewCoinp(20, 0, "IOV"),
	})
	require.NoError(t, err)
	id := res.Data
	assert.Equal(t, weavetest.SequenceID(1), id)
	require.Len(t, res.Events, 1)
	assert.Equal(t, "escrow/transition", res.Events[0].EventPath())

	// Check does not modify the state.
	fund := &FundMsg{EscrowID: id, Amount: coin.NewCoinp(20, 0, "IOV")}
	_, err = r["escrow/fund"].Check(as(buyer), db, &weavetest.Tx{Msg: fund})
	require.NoError(t, err)
	coins, err := bank.Balance(db, buyer.Address())
	require.NoError(t, err)
	assert.Equal(t, coin.NewCoin(50, 0, "IOV"), coins.Balance("IOV"))

	_, err = deliver(seller, fund)
	assert.True(t, errors.ErrUnauthorized.Is(err), "%+v", err)
	_, err = deliver(buyer, &FundMsg{EscrowID: id, Amount: coin.NewCoinp(19, 0, "IOV")})
	assert.True(t, errors.ErrAmount.Is(err), "%+v", err)

	res, err = deliver(buyer, fund)
	require.NoError(t, err)
	ev, ok := res.Events[0].(*TransitionEvent)
	require.True(t, ok)
	assert.Equal(t, StateFunded, ev.To)

	_, err = deliver(seller, &DisputeMsg{EscrowID: id})
	require.NoError(t, err)

	_, err = deliver(seller, &ReleaseMsg{EscrowID: id})
	assert.True(t, errors.ErrUnauthorized.Is(err), "%+v", err)

	res, err = deliver(arbiter, &RefundMsg{EscrowID: id})
	require.NoError(t, err)
	ev = res.Events[0].(*TransitionEvent)
	assert.Equal(t, StateResolved, ev.To)
	assert.Equal(t, buyer.Address(), ev.Recipient)

	coins, err = bank.Balance(db, buyer.Address())
	require.NoError(t, err)
	assert.Equal(t, coin.NewCoin(50, 0, "IOV"), coins.Balance("IOV"))

	_, err = deliver(arbiter, &ReleaseMsg{EscrowID: id})
	assert.True(t, errors.ErrState.Is(err), "%+v", err)

	// Messages routed to the wrong handler are rejected.
	_, err = r["escrow/release"].Check(as(buyer), db, &weavetest.Tx{Msg: &RefundMsg{EscrowID: id}})
	assert.True(t, errors.ErrType.Is(err), "%+v", err)
}

func TestMsgValidate(t *testing.T) {
	buyer := weavetest.NewCondition().Address()
	seller := weavetest.NewCondition().Address()
	id := weavetest.SequenceID(1)

	cases := map[string]struct {
		msg     weave.Msg
		wantErr *errors.Error
	}{
		"create": {
			msg: &CreateMsg{Buyer: buyer, Seller: seller, Amount: coin.NewCoinp(1, 0, "IOV")},
		},
		"create without price": {
			msg: &CreateMsg{Buyer: buyer, Seller: seller},
		},
		"create with a single party": {
			msg:     &CreateMsg{Buyer: buyer, Seller: buyer},
			wantErr: ErrInvalidParties,
		},
		"create with a bad ticker": {
			msg:     &CreateMsg{Buyer: buyer, Seller: seller, Amount: coin.NewCoinp(1, 0, "io")},
			wantErr: errors.ErrCurrency,
		},
		"fund": {
			msg: &FundMsg{EscrowID: id, Amount: coin.NewCoinp(1, 0, "IOV")},
		},
		"fund nothing": {
			msg:     &FundMsg{EscrowID: id},
			wantErr: errors.ErrAmount,
		},
		"fund without id": {
			msg:     &FundMsg{Amount: coin.NewCoinp(1, 0, "IOV")},
			wantErr: errors.ErrEmpty,
		},
		"release": {
			msg: &ReleaseMsg{EscrowID: id},
		},
		"refund with a bad id": {
			msg:     &RefundMsg{EscrowID: []byte{1, 2}},
			wantErr: errors.ErrInput,
		},
		"dispute without id": {
			msg:     &DisputeMsg{},
			wantErr: errors.ErrEmpty,
		},
	}
	for testName, tc := range cases {
		t.Run(testName, func(t *testing.T) {
			err := tc.msg.Validate()
			if tc.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.True(t, tc.wantErr.Is(err), "%+v", err)
		})
	}
}
