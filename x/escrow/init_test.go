package escrow

import (
	"encoding/json"
	"fmt"
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

func TestGenesis(t *testing.T) {
	buyer := weavetest.NewCondition().Address()
	seller := weavetest.NewCondition().Address()
	arbiter := weavetest.NewCondition().Address()

	genesis := fmt.Sprintf(`{
		"escrow": [
			{"buyer": %q, "seller": %q, "price": "5 IOV"},
			{"buyer": %q, "seller": %q, "arbiter": %q, "amount": "2.5 IOV", "state": "Disputed", "memo": "bike"}
		]
	}`, buyer, seller, buyer, seller, arbiter)

	var opts weave.Options
	require.NoError(t, json.Unmarshal([]byte(genesis), &opts))

	db := store.MemStore()
	bank := cash.NewController(cash.NewBucket())
	ini := &Initializer{Minter: bank}
	ctx := blockCtx(time.Unix(1000, 0), 1)
	require.NoError(t, ini.FromGenesis(ctx, opts, db))

	f := NewFactory(NewRegistry(), bank)

	first, err := f.Get(db, weavetest.SequenceID(1))
	require.NoError(t, err)
	assert.Equal(t, StateCreated, first.State)
	assert.Equal(t, coin.NewCoinp(5, 0, "IOV"), first.Price)
	assert.True(t, first.Amount.IsZero())

	second, err := f.Get(db, weavetest.SequenceID(2))
	require.NoError(t, err)
	assert.Equal(t, StateDisputed, second.State)
	assert.Equal(t, "bike", second.Memo)
	assert.Equal(t, weave.UnixTime(1000), second.CreatedAt)

	custody, err := bank.Balance(db, second.Address)
	require.NoError(t, err)
	assert.Equal(t, coin.NewCoin(2, 500000000, "IOV"), custody.Balance("IOV"))

	history, err := f.History(db, second.ID)
	require.NoError(t, err)
	state, err := Replay(history)
	require.NoError(t, err)
	assert.Equal(t, StateDisputed, state)
	for _, ev := range history {
		assert.Equal(t, int64(1), ev.Height)
	}

	// Genesis escrows continue their lifecycle as any other.
	done, _, err := f.Release(ctx, db, arbiter, second.ID)
	require.NoError(t, err)
	assert.Equal(t, StateResolved, done.State)

	byBuyer, err := f.ByParty(db, RoleBuyer, buyer)
	require.NoError(t, err)
	assert.Len(t, byBuyer, 2)
}

func TestGenesisErrors(t *testing.T) {
	buyer := weavetest.NewCondition().Address()
	seller := weavetest.NewCondition().Address()

	cases := map[string]struct {
		genesis string
		wantErr *errors.Error
	}{
		"same parties": {
			genesis: fmt.Sprintf(`{"escrow": [{"buyer": %q, "seller": %q}]}`, buyer, buyer),
			wantErr: ErrInvalidParties,
		},
		"funded without amount": {
			genesis: fmt.Sprintf(`{"escrow": [{"buyer": %q, "seller": %q, "state": "Funded"}]}`, buyer, seller),
			wantErr: errors.ErrAmount,
		},
		"disputed without arbiter": {
			genesis: fmt.Sprintf(`{"escrow": [{"buyer": %q, "seller": %q, "state": "Disputed", "amount": "1 IOV"}]}`, buyer, seller),
			wantErr: ErrNoArbiter,
		},
		"terminal state": {
			genesis: fmt.Sprintf(`{"escrow": [{"buyer": %q, "seller": %q, "state": "Released"}]}`, buyer, seller),
			wantErr: errors.ErrState,
		},
		"created with value": {
			genesis: fmt.Sprintf(`{"escrow": [{"buyer": %q, "seller": %q, "amount": "1 IOV"}]}`, buyer, seller),
			wantErr: errors.ErrAmount,
		},
		"malformed": {
			genesis: `{"escrow": {"buyer": 1}}`,
			wantErr: errors.ErrInput,
		},
	}
	for testName, tc := range cases {
		t.Run(testName, func(t *testing.T) {
			var opts weave.Options
			require.NoError(t, json.Unmarshal([]byte(tc.genesis), &opts))
			ini := &Initializer{Minter: cash.NewController(cash.NewBucket())}
			err := ini.FromGenesis(blockCtx(time.Now(), 1), opts, store.MemStore())
			assert.True(t, tc.wantErr.Is(err), "%+v", err)
		})
	}
}
