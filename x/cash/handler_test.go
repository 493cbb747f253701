package cash

import (
	"context"
	"testing"

	weave "github.com/iov-one/escrowfactory"
	"github.com/iov-one/escrowfactory/coin"
	"github.com/iov-one/escrowfactory/errors"
	"github.com/iov-one/escrowfactory/store"
	"github.com/iov-one/escrowfactory/weavetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testRouter map[string]weave.Handler

func (r testRouter) Handle(path string, h weave.Handler) { r[path] = h }

func TestSendHandler(t *testing.T) {
	owner := weavetest.NewCondition()
	other := weavetest.NewCondition()
	dest := weavetest.NewCondition().Address()
	amount := coin.NewCoinp(5, 0, "IOV")

	cases := map[string]struct {
		signer  weave.Condition
		msg     weave.Msg
		wantErr *errors.Error
		wantSrc coin.Coin
	}{
		"success": {
			signer:  owner,
			msg:     &SendMsg{Src: owner.Address(), Dest: dest, Amount: amount},
			wantSrc: coin.NewCoin(5, 0, "IOV"),
		},
		"not signed by the owner": {
			signer:  other,
			msg:     &SendMsg{Src: owner.Address(), Dest: dest, Amount: amount},
			wantErr: errors.ErrUnauthorized,
			wantSrc: coin.NewCoin(10, 0, "IOV"),
		},
		"invalid message": {
			signer:  owner,
			msg:     &SendMsg{Src: owner.Address(), Dest: dest},
			wantErr: errors.ErrAmount,
			wantSrc: coin.NewCoin(10, 0, "IOV"),
		},
		"wrong message type": {
			signer:  owner,
			msg:     &weavetest.Msg{RoutePath: "cash/send"},
			wantErr: errors.ErrType,
			wantSrc: coin.NewCoin(10, 0, "IOV"),
		},
	}

	for testName, tc := range cases {
		t.Run(testName, func(t *testing.T) {
			db := store.MemStore()
			controller := NewController(NewBucket())
			require.NoError(t, controller.CoinMint(db, owner.Address(), coin.NewCoin(10, 0, "IOV")))

			r := make(testRouter)
			RegisterRoutes(r, &weavetest.Auth{Signer: tc.signer}, controller)
			h := r["cash/send"]
			require.NotNil(t, h)

			tx := &weavetest.Tx{Msg: tc.msg}
			_, err := h.Check(context.Background(), db, tx)
			if tc.wantErr != nil {
				require.True(t, tc.wantErr.Is(err), "check: want %s, got %+v", tc.wantErr, err)
			} else {
				require.NoError(t, err)
			}

			_, err = h.Deliver(context.Background(), db, tx)
			if tc.wantErr != nil {
				require.True(t, tc.wantErr.Is(err), "deliver: want %s, got %+v", tc.wantErr, err)
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tc.wantSrc, balance(t, controller, db, owner.Address(), "IOV"))
		})
	}
}

func TestSendMsgValidate(t *testing.T) {
	addr := weavetest.NewCondition().Address()

	cases := map[string]struct {
		msg     *SendMsg
		wantErr *errors.Error
	}{
		"valid": {
			msg: &SendMsg{Src: addr, Dest: addr, Amount: coin.NewCoinp(1, 0, "IOV"), Memo: "rent"},
		},
		"negative amount": {
			msg:     &SendMsg{Src: addr, Dest: addr, Amount: coin.NewCoinp(-1, 0, "IOV")},
			wantErr: errors.ErrAmount,
		},
		"bad ticker": {
			msg:     &SendMsg{Src: addr, Dest: addr, Amount: coin.NewCoinp(1, 0, "iov")},
			wantErr: errors.ErrCurrency,
		},
		"missing destination": {
			msg:     &SendMsg{Src: addr, Amount: coin.NewCoinp(1, 0, "IOV")},
			wantErr: errors.ErrInput,
		},
		"memo too long": {
			msg:     &SendMsg{Src: addr, Dest: addr, Amount: coin.NewCoinp(1, 0, "IOV"), Memo: string(make([]byte, 129))},
			wantErr: errors.ErrInput,
		},
	}

	for testName, tc := range cases {
		t.Run(testName, func(t *testing.T) {
			err := tc.msg.Validate()
			if tc.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.True(t, tc.wantErr.Is(err), "want %s, got %+v", tc.wantErr, err)
		})
	}
}
