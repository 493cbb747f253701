package escrow

import (
	weave "github.com/iov-one/escrowfactory"
	"github.com/iov-one/escrowfactory/coin"
	"github.com/iov-one/escrowfactory/errors"
	"github.com/iov-one/escrowfactory/x"
)

// RegisterRoutes will instantiate and register
// all handlers in this package
func RegisterRoutes(r weave.Registry, auth x.Authenticator, factory *Factory) {
	r.Handle(pathCreateMsg, CreateHandler{auth: auth, factory: factory})
	r.Handle(pathFundMsg, actionHandler{auth: auth, factory: factory, action: ActionFund})
	r.Handle(pathReleaseMsg, actionHandler{auth: auth, factory: factory, action: ActionRelease})
	r.Handle(pathRefundMsg, actionHandler{auth: auth, factory: factory, action: ActionRefund})
	r.Handle(pathDisputeMsg, actionHandler{auth: auth, factory: factory, action: ActionDispute})
}

// CreateHandler will handle creating escrows
type CreateHandler struct {
	auth    x.Authenticator
	factory *Factory
}

var _ weave.Handler = CreateHandler{}

// Check just verifies it is properly formed and signed.
func (h CreateHandler) Check(ctx weave.Context, db weave.KVStore, tx weave.Tx) (*weave.CheckResult, error) {
	if _, _, err := h.validate(ctx, tx); err != nil {
		return nil, err
	}
	return &weave.CheckResult{}, nil
}

// Deliver creates the escrow and returns its id as the result data.
func (h CreateHandler) Deliver(ctx weave.Context, db weave.KVStore, tx weave.Tx) (*weave.DeliverResult, error) {
	actor, msg, err := h.validate(ctx, tx)
	if err != nil {
		return nil, err
	}
	esc, ev, err := h.factory.Create(ctx, db, actor, CreateParams{
		Buyer:   msg.Buyer,
		Seller:  msg.Seller,
		Arbiter: msg.Arbiter,
		Amount:  msg.Amount,
		Memo:    msg.Memo,
	})
	if err != nil {
		return nil, err
	}
	return &weave.DeliverResult{Data: esc.ID, Events: []weave.Event{ev}}, nil
}

func (h CreateHandler) validate(ctx weave.Context, tx weave.Tx) (weave.Address, *CreateMsg, error) {
	var msg CreateMsg
	if err := weave.LoadMsg(tx, &msg); err != nil {
		return nil, nil, errors.Wrap(err, "load msg")
	}
	actor, err := x.MainSignerAddress(ctx, h.auth)
	if err != nil {
		return nil, nil, err
	}
	return actor, &msg, nil
}

// actionHandler handles a message requesting a transition of an existing
// escrow.
type actionHandler struct {
	auth    x.Authenticator
	factory *Factory
	action  Action
}

var _ weave.Handler = actionHandler{}

// Check ensures the transition is allowed without modifying the state.
func (h actionHandler) Check(ctx weave.Context, db weave.KVStore, tx weave.Tx) (*weave.CheckResult, error) {
	actor, id, amount, err := h.validate(ctx, tx)
	if err != nil {
		return nil, err
	}
	esc, err := h.factory.Get(db, id)
	if err != nil {
		return nil, err
	}
	t, err := Apply(esc.State, h.action, RoleOf(esc, actor))
	if err != nil {
		return nil, errors.Wrapf(err, "escrow %X", id)
	}
	if t.NeedsArbiter && len(esc.Arbiter) == 0 {
		return nil, errors.Wrapf(ErrNoArbiter, "escrow %X", id)
	}
	if t.Deposit {
		if err := checkDeposit(esc.Price, amount); err != nil {
			return nil, err
		}
	}
	return &weave.CheckResult{Data: id}, nil
}

// Deliver applies the transition.
func (h actionHandler) Deliver(ctx weave.Context, db weave.KVStore, tx weave.Tx) (*weave.DeliverResult, error) {
	actor, id, amount, err := h.validate(ctx, tx)
	if err != nil {
		return nil, err
	}
	var ev *TransitionEvent
	switch h.action {
	case ActionFund:
		_, ev, err = h.factory.Fund(ctx, db, actor, id, *amount)
	case ActionRelease:
		_, ev, err = h.factory.Release(ctx, db, actor, id)
	case ActionRefund:
		_, ev, err = h.factory.Refund(ctx, db, actor, id)
	case ActionDispute:
		_, ev, err = h.factory.Dispute(ctx, db, actor, id)
	default:
		err = errors.Wrapf(errors.ErrHuman, "unsupported action %s", h.action)
	}
	if err != nil {
		return nil, err
	}
	return &weave.DeliverResult{Data: id, Events: []weave.Event{ev}}, nil
}

func (h actionHandler) validate(ctx weave.Context, tx weave.Tx) (weave.Address, []byte, *coin.Coin, error) {
	var (
		id     []byte
		amount *coin.Coin
	)
	switch h.action {
	case ActionFund:
		var msg FundMsg
		if err := weave.LoadMsg(tx, &msg); err != nil {
			return nil, nil, nil, errors.Wrap(err, "load msg")
		}
		id, amount = msg.EscrowID, msg.Amount
	case ActionRelease:
		var msg ReleaseMsg
		if err := weave.LoadMsg(tx, &msg); err != nil {
			return nil, nil, nil, errors.Wrap(err, "load msg")
		}
		id = msg.EscrowID
	case ActionRefund:
		var msg RefundMsg
		if err := weave.LoadMsg(tx, &msg); err != nil {
			return nil, nil, nil, errors.Wrap(err, "load msg")
		}
		id = msg.EscrowID
	case ActionDispute:
		var msg DisputeMsg
		if err := weave.LoadMsg(tx, &msg); err != nil {
			return nil, nil, nil, errors.Wrap(err, "load msg")
		}
		id = msg.EscrowID
	default:
		return nil, nil, nil, errors.Wrapf(errors.ErrHuman, "unsupported action %s", h.action)
	}
	actor, err := x.MainSignerAddress(ctx, h.auth)
	if err != nil {
		return nil, nil, nil, err
	}
	return actor, id, amount, nil
}
