package escrow

import (
	"github.com/gogo/protobuf/proto"
	weave "github.com/iov-one/escrowfactory"
	"github.com/iov-one/escrowfactory/coin"
	"github.com/iov-one/escrowfactory/errors"
	"github.com/iov-one/escrowfactory/orm"
)

const (
	pathCreateMsg  = "escrow/create"
	pathFundMsg    = "escrow/fund"
	pathReleaseMsg = "escrow/release"
	pathRefundMsg  = "escrow/refund"
	pathDisputeMsg = "escrow/dispute"
)

// CreateMsg registers a new escrow between a buyer and a seller.
type CreateMsg struct {
	Buyer   weave.Address `protobuf:"bytes,1,opt,name=buyer,proto3,casttype=github.com/iov-one/escrowfactory.Address" json:"buyer,omitempty"`
	Seller  weave.Address `protobuf:"bytes,2,opt,name=seller,proto3,casttype=github.com/iov-one/escrowfactory.Address" json:"seller,omitempty"`
	Arbiter weave.Address `protobuf:"bytes,3,opt,name=arbiter,proto3,casttype=github.com/iov-one/escrowfactory.Address" json:"arbiter,omitempty"`
	Amount  *coin.Coin    `protobuf:"bytes,4,opt,name=amount" json:"amount,omitempty"`
	Memo    string        `protobuf:"bytes,5,opt,name=memo,proto3" json:"memo,omitempty"`
}

func (m *CreateMsg) Reset()         { *m = CreateMsg{} }
func (m *CreateMsg) String() string { return proto.CompactTextString(m) }
func (*CreateMsg) ProtoMessage()    {}

// FundMsg deposits the amount into the escrow custody account.
type FundMsg struct {
	EscrowID []byte     `protobuf:"bytes,1,opt,name=escrow_id,json=escrowId,proto3" json:"escrow_id,omitempty"`
	Amount   *coin.Coin `protobuf:"bytes,2,opt,name=amount" json:"amount,omitempty"`
}

func (m *FundMsg) Reset()         { *m = FundMsg{} }
func (m *FundMsg) String() string { return proto.CompactTextString(m) }
func (*FundMsg) ProtoMessage()    {}

// ReleaseMsg pays the escrow to the seller.
type ReleaseMsg struct {
	EscrowID []byte `protobuf:"bytes,1,opt,name=escrow_id,json=escrowId,proto3" json:"escrow_id,omitempty"`
}

func (m *ReleaseMsg) Reset()         { *m = ReleaseMsg{} }
func (m *ReleaseMsg) String() string { return proto.CompactTextString(m) }
func (*ReleaseMsg) ProtoMessage()    {}

// RefundMsg pays the escrow back to the buyer.
type RefundMsg struct {
	EscrowID []byte `protobuf:"bytes,1,opt,name=escrow_id,json=escrowId,proto3" json:"escrow_id,omitempty"`
}

func (m *RefundMsg) Reset()         { *m = RefundMsg{} }
func (m *RefundMsg) String() string { return proto.CompactTextString(m) }
func (*RefundMsg) ProtoMessage()    {}

// DisputeMsg hands the escrow over to its arbiter.
type DisputeMsg struct {
	EscrowID []byte `protobuf:"bytes,1,opt,name=escrow_id,json=escrowId,proto3" json:"escrow_id,omitempty"`
}

func (m *DisputeMsg) Reset()         { *m = DisputeMsg{} }
func (m *DisputeMsg) String() string { return proto.CompactTextString(m) }
func (*DisputeMsg) ProtoMessage()    {}

var (
	_ weave.Msg = (*CreateMsg)(nil)
	_ weave.Msg = (*FundMsg)(nil)
	_ weave.Msg = (*ReleaseMsg)(nil)
	_ weave.Msg = (*RefundMsg)(nil)
	_ weave.Msg = (*DisputeMsg)(nil)
)

func (CreateMsg) Path() string  { return pathCreateMsg }
func (FundMsg) Path() string    { return pathFundMsg }
func (ReleaseMsg) Path() string { return pathReleaseMsg }
func (RefundMsg) Path() string  { return pathRefundMsg }
func (DisputeMsg) Path() string { return pathDisputeMsg }

// Validate makes sure that this is sensible
func (m *CreateMsg) Validate() error {
	if err := validateParties(m.Buyer, m.Seller, m.Arbiter); err != nil {
		return err
	}
	if m.Amount != nil {
		if err := validatePrice(m.Amount); err != nil {
			return err
		}
	}
	if len(m.Memo) > maxMemoSize {
		return errors.Wrap(errors.ErrInput, "memo too long")
	}
	return nil
}

// Validate makes sure that this is sensible
func (m *FundMsg) Validate() error {
	if err := orm.ValidateSequence(m.EscrowID); err != nil {
		return errors.Wrap(err, "escrow id")
	}
	if coin.IsEmpty(m.Amount) || !m.Amount.IsPositive() {
		return errors.Wrapf(errors.ErrAmount, "non-positive amount: %v", m.Amount)
	}
	return m.Amount.Validate()
}

func (m *ReleaseMsg) Validate() error {
	return errors.Wrap(orm.ValidateSequence(m.EscrowID), "escrow id")
}

func (m *RefundMsg) Validate() error {
	return errors.Wrap(orm.ValidateSequence(m.EscrowID), "escrow id")
}

func (m *DisputeMsg) Validate() error {
	return errors.Wrap(orm.ValidateSequence(m.EscrowID), "escrow id")
}
