package escrow

import (
	weave "github.com/iov-one/escrowfactory"
	"github.com/iov-one/escrowfactory/coin"
	"github.com/iov-one/escrowfactory/errors"
	"github.com/iov-one/escrowfactory/orm"
	"github.com/iov-one/escrowfactory/x/cash"
)

// Factory creates escrows and drives them through their lifecycle. Every
// mutating call either fully succeeds or leaves the store untouched.
type Factory struct {
	registry *Registry
	bank     cash.CoinMover
}

// NewFactory returns a factory keeping escrows in given registry and moving
// value with given coin mover.
func NewFactory(registry *Registry, bank cash.CoinMover) *Factory {
	return &Factory{registry: registry, bank: bank}
}

// Registry returns the registry used by this factory.
func (f *Factory) Registry() *Registry {
	return f.registry
}

// CreateParams describes a new escrow. Amount is the agreed price, a nil or
// zero value accepts any positive deposit.
type CreateParams struct {
	Buyer   weave.Address
	Seller  weave.Address
	Arbiter weave.Address
	Amount  *coin.Coin
	Memo    string
}

// Create registers a new escrow in the Created state. Any authenticated
// actor can create an escrow, not only its parties.
func (f *Factory) Create(ctx weave.Context, db weave.KVStore, actor weave.Address, p CreateParams) (*Escrow, *TransitionEvent, error) {
	if len(actor) == 0 {
		return nil, nil, errors.Wrap(errors.ErrUnauthorized, "actor required")
	}
	if err := validateParties(p.Buyer, p.Seller, p.Arbiter); err != nil {
		return nil, nil, err
	}
	price := coin.Coin{}
	if p.Amount != nil {
		price = *p.Amount
	}
	if err := validatePrice(&price); err != nil {
		return nil, nil, err
	}
	if len(p.Memo) > maxMemoSize {
		return nil, nil, errors.Wrap(errors.ErrInput, "memo too long")
	}
	now, height, err := clock(ctx)
	if err != nil {
		return nil, nil, err
	}

	var (
		esc *Escrow
		ev  *TransitionEvent
	)
	err = atomically(db, func(db weave.KVStore) error {
		id, err := f.registry.NextID(db)
		if err != nil {
			return errors.Wrap(err, "next id")
		}
		esc = &Escrow{
			ID:        id,
			Buyer:     p.Buyer,
			Seller:    p.Seller,
			Arbiter:   p.Arbiter,
			Price:     &price,
			Amount:    &coin.Coin{Ticker: price.Ticker},
			State:     StateCreated,
			Memo:      p.Memo,
			Address:   Condition(id).Address(),
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := f.registry.Insert(db, esc); err != nil {
			return err
		}
		ev = &TransitionEvent{
			EscrowID: id,
			From:     StateInvalid,
			To:       StateCreated,
			Action:   ActionCreate,
			Actor:    actor,
			Time:     now,
			Height:   height,
		}
		return f.registry.AppendEvent(db, ev)
	})
	if err != nil {
		return nil, nil, err
	}
	logTransition(ctx, ev)
	return esc, ev, nil
}

// Fund deposits the amount from the buyer into the custody account of the
// escrow. When the escrow has a non-zero price, the amount must be equal to
// it.
func (f *Factory) Fund(ctx weave.Context, db weave.KVStore, actor weave.Address, id []byte, amount coin.Coin) (*Escrow, *TransitionEvent, error) {
	return f.apply(ctx, db, actor, id, ActionFund, &amount)
}

// Release pays the custody amount to the seller. Called by the buyer of a
// funded escrow or by the arbiter of a disputed one.
func (f *Factory) Release(ctx weave.Context, db weave.KVStore, actor weave.Address, id []byte) (*Escrow, *TransitionEvent, error) {
	return f.apply(ctx, db, actor, id, ActionRelease, nil)
}

// Refund pays the custody amount back to the buyer. Called by the seller of
// a funded escrow or by the arbiter of a disputed one.
func (f *Factory) Refund(ctx weave.Context, db weave.KVStore, actor weave.Address, id []byte) (*Escrow, *TransitionEvent, error) {
	return f.apply(ctx, db, actor, id, ActionRefund, nil)
}

// Dispute hands the decision over a funded escrow to its arbiter.
// ErrNoArbiter is returned for an escrow without one.
func (f *Factory) Dispute(ctx weave.Context, db weave.KVStore, actor weave.Address, id []byte) (*Escrow, *TransitionEvent, error) {
	return f.apply(ctx, db, actor, id, ActionDispute, nil)
}

func (f *Factory) apply(ctx weave.Context, db weave.KVStore, actor weave.Address, id []byte, action Action, deposit *coin.Coin) (*Escrow, *TransitionEvent, error) {
	now, height, err := clock(ctx)
	if err != nil {
		return nil, nil, err
	}

	var (
		esc *Escrow
		ev  *TransitionEvent
	)
	err = atomically(db, func(db weave.KVStore) error {
		var err error
		esc, err = f.registry.Lookup(db, id)
		if err != nil {
			return err
		}
		t, err := Apply(esc.State, action, RoleOf(esc, actor))
		if err != nil {
			return errors.Wrapf(err, "escrow %X", id)
		}
		if t.NeedsArbiter && len(esc.Arbiter) == 0 {
			return errors.Wrapf(ErrNoArbiter, "escrow %X", id)
		}

		ev = &TransitionEvent{
			EscrowID: esc.ID,
			From:     t.From,
			To:       t.To,
			Action:   action,
			Actor:    actor,
			Time:     now,
			Height:   height,
		}
		esc.State = t.To
		esc.UpdatedAt = now

		switch {
		case t.Deposit:
			if err := checkDeposit(esc.Price, deposit); err != nil {
				return err
			}
			// Value is collected before the state is saved, so that the
			// escrow never claims to hold what it does not.
			if err := f.bank.MoveCoins(db, actor, esc.Address, *deposit); err != nil {
				return errors.Wrap(err, "deposit")
			}
			esc.Amount = deposit.Clone()
			ev.Amount = deposit.Clone()
			return f.save(db, esc, ev)
		case t.Payout != RoleNone:
			recipient := esc.Seller
			if t.Payout == RoleBuyer {
				recipient = esc.Buyer
			}
			paid := *esc.Amount
			esc.Amount = &coin.Coin{Ticker: paid.Ticker}
			esc.PaidTo = recipient
			ev.Amount = paid.Clone()
			ev.Recipient = recipient
			// The terminal state is stored before any value leaves custody.
			// A call made from within the transfer sees a closed escrow.
			if err := f.save(db, esc, ev); err != nil {
				return err
			}
			if err := f.bank.MoveCoins(db, esc.Address, recipient, paid); err != nil {
				return errors.Wrap(err, "payout")
			}
			return nil
		default:
			return f.save(db, esc, ev)
		}
	})
	if err != nil {
		return nil, nil, err
	}
	logTransition(ctx, ev)
	return esc, ev, nil
}

func (f *Factory) save(db weave.KVStore, esc *Escrow, ev *TransitionEvent) error {
	if err := f.registry.Update(db, esc); err != nil {
		return err
	}
	return f.registry.AppendEvent(db, ev)
}

func checkDeposit(price, deposit *coin.Coin) error {
	if deposit == nil || !deposit.IsPositive() {
		return errors.Wrap(errors.ErrAmount, "deposit must be positive")
	}
	if err := deposit.Validate(); err != nil {
		return errors.Wrap(err, "deposit")
	}
	if price != nil && !price.IsZero() && !price.Equals(*deposit) {
		return errors.Wrapf(errors.ErrAmount, "deposit %s does not match the price %s", deposit, price)
	}
	return nil
}

// Get returns the escrow with given id. ErrNotFound is returned if it does
// not exist.
func (f *Factory) Get(db weave.ReadOnlyKVStore, id []byte) (*Escrow, error) {
	return f.registry.Lookup(db, id)
}

// ByParty returns all escrows in which given address has given role.
func (f *Factory) ByParty(db weave.ReadOnlyKVStore, role Role, addr weave.Address) ([]*Escrow, error) {
	if err := addr.Validate(); err != nil {
		return nil, err
	}
	var index string
	switch role {
	case RoleBuyer:
		index = IndexBuyer
	case RoleSeller:
		index = IndexSeller
	case RoleArbiter:
		index = IndexArbiter
	default:
		return nil, errors.Wrapf(errors.ErrInput, "cannot list by %s role", role)
	}
	return f.registry.ByIndex(db, index, addr)
}

// History returns all transitions of an escrow, oldest first.
func (f *Factory) History(db weave.ReadOnlyKVStore, id []byte) ([]*TransitionEvent, error) {
	if ok, err := f.registry.Exists(db, id); err != nil {
		return nil, err
	} else if !ok {
		return nil, errors.Wrapf(errors.ErrNotFound, "escrow %X", id)
	}
	return f.registry.Events(db, id)
}

// Replay returns the state reached by applying the history from the start.
// It fails when the history contains a transition not allowed by the state
// machine.
func Replay(history []*TransitionEvent) (State, error) {
	state := StateInvalid
	for i, ev := range history {
		if ev.Action == ActionCreate {
			if i != 0 {
				return StateInvalid, errors.Wrap(errors.ErrState, "create is not the first transition")
			}
			state = StateCreated
			continue
		}
		if ev.From != state {
			return StateInvalid, errors.Wrapf(errors.ErrState, "transition %d starts from %s, not %s", i, ev.From, state)
		}
		t, err := findTransition(state, ev.Action)
		if err != nil {
			return StateInvalid, errors.Wrapf(err, "transition %d", i)
		}
		if t.To != ev.To {
			return StateInvalid, errors.Wrapf(errors.ErrState, "transition %d ends in %s, not %s", i, ev.To, t.To)
		}
		state = t.To
	}
	return state, nil
}

func findTransition(from State, action Action) (Transition, error) {
	r, ok := findRule(from, action)
	if !ok {
		return Transition{}, errors.Wrapf(errors.ErrState, "cannot %s an escrow in %s state", action, from)
	}
	return r.result, nil
}

// atomically runs fn on a cache wrap of db and writes it back only if fn
// succeeds.
func atomically(db weave.KVStore, fn func(weave.KVStore) error) error {
	cacheable, ok := db.(weave.CacheableKVStore)
	if !ok {
		return fn(db)
	}
	cw := cacheable.CacheWrap()
	if err := fn(cw); err != nil {
		cw.Discard()
		return err
	}
	if err := cw.Write(); err != nil {
		return errors.Wrap(errors.ErrDatabase, err.Error())
	}
	return nil
}

func clock(ctx weave.Context) (weave.UnixTime, int64, error) {
	now, err := weave.BlockTime(ctx)
	if err != nil {
		return 0, 0, err
	}
	height, _ := weave.GetHeight(ctx)
	return weave.AsUnixTime(now), height, nil
}

func logTransition(ctx weave.Context, ev *TransitionEvent) {
	weave.GetLogger(ctx).Debug("escrow transition",
		"id", orm.DecodeSequence(ev.EscrowID),
		"action", ev.Action.String(),
		"from", ev.From.String(),
		"to", ev.To.String(),
		"actor", ev.Actor.String())
}
