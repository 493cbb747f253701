package escrow

import (
	"github.com/gogo/protobuf/proto"
	weave "github.com/iov-one/escrowfactory"
	"github.com/iov-one/escrowfactory/coin"
	"github.com/iov-one/escrowfactory/errors"
	"github.com/iov-one/escrowfactory/orm"
)

const maxMemoSize = 128

// Escrow is a single buyer and seller agreement together with the value it
// holds in custody.
type Escrow struct {
	ID      []byte        `protobuf:"bytes,1,opt,name=id,proto3" json:"id"`
	Buyer   weave.Address `protobuf:"bytes,2,opt,name=buyer,proto3,casttype=github.com/iov-one/escrowfactory.Address" json:"buyer"`
	Seller  weave.Address `protobuf:"bytes,3,opt,name=seller,proto3,casttype=github.com/iov-one/escrowfactory.Address" json:"seller"`
	Arbiter weave.Address `protobuf:"bytes,4,opt,name=arbiter,proto3,casttype=github.com/iov-one/escrowfactory.Address" json:"arbiter,omitempty"`
	// Price is the amount agreed at creation. A zero price accepts any
	// positive deposit.
	Price *coin.Coin `protobuf:"bytes,5,opt,name=price" json:"price"`
	// Amount is the value held in custody.
	Amount *coin.Coin `protobuf:"bytes,6,opt,name=amount" json:"amount"`
	State  State      `protobuf:"varint,7,opt,name=state,proto3" json:"state"`
	// PaidTo is the party that received the custody amount.
	PaidTo weave.Address `protobuf:"bytes,8,opt,name=paid_to,json=paidTo,proto3,casttype=github.com/iov-one/escrowfactory.Address" json:"paid_to,omitempty"`
	Memo   string        `protobuf:"bytes,9,opt,name=memo,proto3" json:"memo,omitempty"`
	// Address is the custody account of this escrow.
	Address   weave.Address  `protobuf:"bytes,10,opt,name=address,proto3,casttype=github.com/iov-one/escrowfactory.Address" json:"address"`
	CreatedAt weave.UnixTime `protobuf:"varint,11,opt,name=created_at,json=createdAt,proto3,casttype=github.com/iov-one/escrowfactory.UnixTime" json:"created_at"`
	UpdatedAt weave.UnixTime `protobuf:"varint,12,opt,name=updated_at,json=updatedAt,proto3,casttype=github.com/iov-one/escrowfactory.UnixTime" json:"updated_at"`
}

func (m *Escrow) Reset()         { *m = Escrow{} }
func (m *Escrow) String() string { return proto.CompactTextString(m) }
func (*Escrow) ProtoMessage()    {}

var _ orm.Model = (*Escrow)(nil)

// Validate ensures the escrow is valid
func (e *Escrow) Validate() error {
	if err := orm.ValidateSequence(e.ID); err != nil {
		return errors.Wrap(err, "id")
	}
	if err := validateParties(e.Buyer, e.Seller, e.Arbiter); err != nil {
		return err
	}
	if err := validatePrice(e.Price); err != nil {
		return err
	}
	if err := e.State.Validate(); err != nil {
		return err
	}
	if e.Amount == nil {
		return errors.Wrap(errors.ErrAmount, "amount is required")
	}
	if e.State.HoldsValue() {
		if !e.Amount.IsPositive() {
			return errors.Wrapf(errors.ErrAmount, "%s escrow must hold value", e.State)
		}
		if err := e.Amount.Validate(); err != nil {
			return errors.Wrap(err, "amount")
		}
	} else if !e.Amount.IsZero() {
		return errors.Wrapf(errors.ErrAmount, "%s escrow cannot hold value", e.State)
	}
	if e.State.IsTerminal() {
		if !e.PaidTo.Equals(e.Buyer) && !e.PaidTo.Equals(e.Seller) {
			return errors.Wrap(errors.ErrState, "terminal escrow must be paid to a party")
		}
	} else if len(e.PaidTo) != 0 {
		return errors.Wrap(errors.ErrState, "paid before reaching a terminal state")
	}
	if len(e.Memo) > maxMemoSize {
		return errors.Wrap(errors.ErrInput, "memo too long")
	}
	if !e.Address.Equals(Condition(e.ID).Address()) {
		return errors.Wrap(errors.ErrInput, "address does not match the escrow id")
	}
	if err := e.CreatedAt.Validate(); err != nil {
		return errors.Wrap(err, "created at")
	}
	if e.UpdatedAt.Before(e.CreatedAt) {
		return errors.Wrap(errors.ErrState, "updated before created")
	}
	return nil
}

// validateParties requires buyer and seller, and an optional arbiter, to be
// valid distinct addresses.
func validateParties(buyer, seller, arbiter weave.Address) error {
	if err := buyer.Validate(); err != nil {
		return errors.Wrap(err, "buyer")
	}
	if err := seller.Validate(); err != nil {
		return errors.Wrap(err, "seller")
	}
	if buyer.Equals(seller) {
		return errors.Wrap(ErrInvalidParties, "buyer and seller must differ")
	}
	if len(arbiter) == 0 {
		return nil
	}
	if err := arbiter.Validate(); err != nil {
		return errors.Wrap(err, "arbiter")
	}
	if arbiter.Equals(buyer) || arbiter.Equals(seller) {
		return errors.Wrap(ErrInvalidParties, "arbiter must not be a buyer or a seller")
	}
	return nil
}

func validatePrice(price *coin.Coin) error {
	if price == nil {
		return errors.Wrap(errors.ErrAmount, "price is required")
	}
	if !price.IsNonNegative() {
		return errors.Wrap(errors.ErrAmount, "negative price")
	}
	if price.IsZero() && price.Ticker == "" {
		return nil
	}
	return errors.Wrap(price.Validate(), "price")
}

// Condition returns the condition owning the custody account of the escrow
// with given id.
func Condition(id []byte) weave.Condition {
	return weave.NewCondition("escrow", "seq", id)
}

// FactoryAddress is the address of the escrow factory itself, derived the
// same way as custody account addresses.
func FactoryAddress() weave.Address {
	return weave.NewCondition("escrow", "factory", []byte("v1")).Address()
}

// TransitionEvent records a single change of an escrow state. Creation is
// recorded with the invalid state as From.
type TransitionEvent struct {
	EscrowID []byte        `protobuf:"bytes,1,opt,name=escrow_id,json=escrowId,proto3" json:"escrow_id"`
	From     State         `protobuf:"varint,2,opt,name=from,proto3" json:"from"`
	To       State         `protobuf:"varint,3,opt,name=to,proto3" json:"to"`
	Action   Action        `protobuf:"varint,4,opt,name=action,proto3" json:"action"`
	Actor    weave.Address `protobuf:"bytes,5,opt,name=actor,proto3,casttype=github.com/iov-one/escrowfactory.Address" json:"actor"`
	// Amount is the value that entered or left the custody account.
	Amount *coin.Coin `protobuf:"bytes,6,opt,name=amount" json:"amount,omitempty"`
	// Recipient of the payout, if any.
	Recipient weave.Address  `protobuf:"bytes,7,opt,name=recipient,proto3,casttype=github.com/iov-one/escrowfactory.Address" json:"recipient,omitempty"`
	Time      weave.UnixTime `protobuf:"varint,8,opt,name=time,proto3,casttype=github.com/iov-one/escrowfactory.UnixTime" json:"time"`
	Height    int64          `protobuf:"varint,9,opt,name=height,proto3" json:"height"`
}

func (m *TransitionEvent) Reset()         { *m = TransitionEvent{} }
func (m *TransitionEvent) String() string { return proto.CompactTextString(m) }
func (*TransitionEvent) ProtoMessage()    {}

var (
	_ weave.Event = (*TransitionEvent)(nil)
	_ orm.Model   = (*TransitionEvent)(nil)
)

// EventPath implements weave.Event.
func (*TransitionEvent) EventPath() string {
	return "escrow/transition"
}

func (ev *TransitionEvent) Validate() error {
	if err := orm.ValidateSequence(ev.EscrowID); err != nil {
		return errors.Wrap(err, "escrow id")
	}
	if err := ev.To.Validate(); err != nil {
		return errors.Wrap(err, "to")
	}
	if ev.Action != ActionCreate {
		if err := ev.From.Validate(); err != nil {
			return errors.Wrap(err, "from")
		}
	}
	if err := ev.Actor.Validate(); err != nil {
		return errors.Wrap(err, "actor")
	}
	return nil
}
