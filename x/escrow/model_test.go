package escrow

import (
	"strings"
	"testing"

	weave "github.com/iov-one/escrowfactory"
	"github.com/iov-one/escrowfactory/coin"
	"github.com/iov-one/escrowfactory/errors"
	"github.com/iov-one/escrowfactory/weavetest"
	"github.com/iov-one/escrowfactory/weavetest/assert"
)

func TestEscrowValidate(t *testing.T) {
	buyer := weavetest.NewCondition().Address()
	seller := weavetest.NewCondition().Address()
	arbiter := weavetest.NewCondition().Address()
	id := weavetest.SequenceID(7)

	valid := func(mod func(*Escrow)) *Escrow {
		e := &Escrow{
			ID:        id,
			Buyer:     buyer,
			Seller:    seller,
			Arbiter:   arbiter,
			Price:     coin.NewCoinp(5, 0, "IOV"),
			Amount:    coin.NewCoinp(5, 0, "IOV"),
			State:     StateFunded,
			Address:   Condition(id).Address(),
			CreatedAt: 100,
			UpdatedAt: 200,
		}
		if mod != nil {
			mod(e)
		}
		return e
	}

	cases := map[string]struct {
		model   *Escrow
		wantErr *errors.Error
	}{
		"funded": {
			model: valid(nil),
		},
		"created without arbiter and price": {
			model: valid(func(e *Escrow) {
				e.Arbiter = nil
				e.State = StateCreated
				e.Price = &coin.Coin{}
				e.Amount = &coin.Coin{}
			}),
		},
		"released": {
			model: valid(func(e *Escrow) {
				e.State = StateReleased
				e.Amount = &coin.Coin{Ticker: "IOV"}
				e.PaidTo = seller
			}),
		},
		"invalid id": {
			model:   valid(func(e *Escrow) { e.ID = []byte{1} }),
			wantErr: errors.ErrInput,
		},
		"same buyer and seller": {
			model:   valid(func(e *Escrow) { e.Seller = buyer }),
			wantErr: ErrInvalidParties,
		},
		"arbiter is the buyer": {
			model:   valid(func(e *Escrow) { e.Arbiter = buyer }),
			wantErr: ErrInvalidParties,
		},
		"missing seller": {
			model:   valid(func(e *Escrow) { e.Seller = nil }),
			wantErr: errors.ErrInput,
		},
		"negative price": {
			model:   valid(func(e *Escrow) { e.Price = coin.NewCoinp(-1, 0, "IOV") }),
			wantErr: errors.ErrAmount,
		},
		"funded without value": {
			model:   valid(func(e *Escrow) { e.Amount = &coin.Coin{Ticker: "IOV"} }),
			wantErr: errors.ErrAmount,
		},
		"created with value": {
			model:   valid(func(e *Escrow) { e.State = StateCreated }),
			wantErr: errors.ErrAmount,
		},
		"unknown state": {
			model:   valid(func(e *Escrow) { e.State = 99 }),
			wantErr: errors.ErrState,
		},
		"paid before terminal": {
			model:   valid(func(e *Escrow) { e.PaidTo = seller }),
			wantErr: errors.ErrState,
		},
		"terminal paid to stranger": {
			model: valid(func(e *Escrow) {
				e.State = StateResolved
				e.Amount = &coin.Coin{}
				e.PaidTo = arbiter
			}),
			wantErr: errors.ErrState,
		},
		"long memo": {
			model:   valid(func(e *Escrow) { e.Memo = strings.Repeat("x", 129) }),
			wantErr: errors.ErrInput,
		},
		"foreign custody address": {
			model:   valid(func(e *Escrow) { e.Address = weavetest.NewCondition().Address() }),
			wantErr: errors.ErrInput,
		},
		"updated before created": {
			model:   valid(func(e *Escrow) { e.UpdatedAt = 50 }),
			wantErr: errors.ErrState,
		},
	}

	for testName, tc := range cases {
		t.Run(testName, func(t *testing.T) {
			err := tc.model.Validate()
			if tc.wantErr == nil {
				assert.Nil(t, err)
				return
			}
			assert.IsErr(t, tc.wantErr, err)
		})
	}
}

func TestEscrowSerialization(t *testing.T) {
	id := weavetest.SequenceID(3)
	e := &Escrow{
		ID:        id,
		Buyer:     weavetest.NewCondition().Address(),
		Seller:    weavetest.NewCondition().Address(),
		Price:     coin.NewCoinp(1, 500000000, "ETH"),
		Amount:    coin.NewCoinp(1, 500000000, "ETH"),
		State:     StateDisputed,
		Memo:      "pizza",
		Address:   Condition(id).Address(),
		CreatedAt: 1,
		UpdatedAt: 2,
	}
	raw, err := weave.Marshal(e)
	assert.Nil(t, err)

	var got Escrow
	assert.Nil(t, weave.Unmarshal(raw, &got))
	assert.Equal(t, e.State, got.State)
	assert.Equal(t, e.Price, got.Price)
	assert.Equal(t, e.Buyer, got.Buyer)
	assert.Equal(t, e.UpdatedAt, got.UpdatedAt)
	assert.Nil(t, got.Validate())
}
