package escrow

import (
	weave "github.com/iov-one/escrowfactory"
	"github.com/iov-one/escrowfactory/coin"
	"github.com/iov-one/escrowfactory/errors"
	"github.com/iov-one/escrowfactory/x/cash"
)

const optKey = "escrow"

// GenesisEscrow describes an escrow that exists when the chain starts.
// State defaults to Created. Funded and Disputed escrows get their amount
// minted into the custody account.
type GenesisEscrow struct {
	Buyer   weave.Address `json:"buyer"`
	Seller  weave.Address `json:"seller"`
	Arbiter weave.Address `json:"arbiter,omitempty"`
	Price   *coin.Coin    `json:"price,omitempty"`
	Amount  *coin.Coin    `json:"amount,omitempty"`
	State   State         `json:"state,omitempty"`
	Memo    string        `json:"memo,omitempty"`
}

// Initializer fulfils the weave.Initializer interface to load data from
// the genesis file
type Initializer struct {
	Minter cash.CoinMinter
}

var _ weave.Initializer = (*Initializer)(nil)

// FromGenesis will parse initial escrows from genesis and save them to the
// database. History of every escrow is recorded as if it was created and
// driven to its state by the factory itself.
func (i *Initializer) FromGenesis(ctx weave.Context, opts weave.Options, db weave.KVStore) error {
	var escrows []GenesisEscrow
	if err := opts.ReadOptions(optKey, &escrows); err != nil {
		return err
	}
	var now weave.UnixTime
	if t, err := weave.BlockTime(ctx); err == nil {
		now = weave.AsUnixTime(t)
	}
	height, _ := weave.GetHeight(ctx)
	registry := NewRegistry()
	for n, g := range escrows {
		if err := i.load(db, registry, g, now, height); err != nil {
			return errors.Wrapf(err, "escrow %d", n)
		}
	}
	return nil
}

func (i *Initializer) load(db weave.KVStore, registry *Registry, g GenesisEscrow, now weave.UnixTime, height int64) error {
	state := g.State
	if state == StateInvalid {
		state = StateCreated
	}
	var path []Action
	switch state {
	case StateCreated:
	case StateFunded:
		path = []Action{ActionFund}
	case StateDisputed:
		if len(g.Arbiter) == 0 {
			return errors.Wrap(ErrNoArbiter, "disputed escrow")
		}
		path = []Action{ActionFund, ActionDispute}
	default:
		return errors.Wrapf(errors.ErrState, "genesis escrow cannot be %s", state)
	}

	price := coin.Coin{}
	if g.Price != nil {
		price = *g.Price
	}
	amount := coin.Coin{Ticker: price.Ticker}
	if state.HoldsValue() {
		if g.Amount == nil {
			return errors.Wrapf(errors.ErrAmount, "%s escrow needs an amount", state)
		}
		if err := checkDeposit(&price, g.Amount); err != nil {
			return err
		}
		amount = *g.Amount
	} else if g.Amount != nil && !g.Amount.IsZero() {
		return errors.Wrapf(errors.ErrAmount, "%s escrow cannot hold value", state)
	}

	id, err := registry.NextID(db)
	if err != nil {
		return err
	}
	esc := &Escrow{
		ID:        id,
		Buyer:     g.Buyer,
		Seller:    g.Seller,
		Arbiter:   g.Arbiter,
		Price:     &price,
		Amount:    &amount,
		State:     state,
		Memo:      g.Memo,
		Address:   Condition(id).Address(),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := registry.Insert(db, esc); err != nil {
		return err
	}
	if state.HoldsValue() {
		if i.Minter == nil {
			return errors.Wrap(errors.ErrHuman, "minter required for funded escrows")
		}
		if err := i.Minter.CoinMint(db, esc.Address, amount); err != nil {
			return errors.Wrap(err, "mint")
		}
	}

	actor := FactoryAddress()
	history := []*TransitionEvent{{
		EscrowID: id,
		To:       StateCreated,
		Action:   ActionCreate,
		Actor:    actor,
		Time:     now,
		Height:   height,
	}}
	from := StateCreated
	for _, a := range path {
		t, err := findTransition(from, a)
		if err != nil {
			return err
		}
		ev := &TransitionEvent{
			EscrowID: id,
			From:     t.From,
			To:       t.To,
			Action:   a,
			Actor:    actor,
			Time:     now,
			Height:   height,
		}
		if t.Deposit {
			ev.Amount = amount.Clone()
		}
		history = append(history, ev)
		from = t.To
	}
	for _, ev := range history {
		if err := registry.AppendEvent(db, ev); err != nil {
			return err
		}
	}
	return nil
}
