package cash

import (
	"github.com/gogo/protobuf/proto"
	weave "github.com/iov-one/escrowfactory"
	"github.com/iov-one/escrowfactory/coin"
	"github.com/iov-one/escrowfactory/errors"
)

const maxMemoSize = 128

// SendMsg moves an amount from the source wallet to the destination one.
type SendMsg struct {
	Src    weave.Address `protobuf:"bytes,1,opt,name=src,proto3,casttype=github.com/iov-one/escrowfactory.Address" json:"src,omitempty"`
	Dest   weave.Address `protobuf:"bytes,2,opt,name=dest,proto3,casttype=github.com/iov-one/escrowfactory.Address" json:"dest,omitempty"`
	Amount *coin.Coin    `protobuf:"bytes,3,opt,name=amount" json:"amount,omitempty"`
	Memo   string        `protobuf:"bytes,4,opt,name=memo,proto3" json:"memo,omitempty"`
}

func (m *SendMsg) Reset()         { *m = SendMsg{} }
func (m *SendMsg) String() string { return proto.CompactTextString(m) }
func (*SendMsg) ProtoMessage()    {}

var _ weave.Msg = (*SendMsg)(nil)

// Path returns the routing path for this message
func (SendMsg) Path() string {
	return "cash/send"
}

// Validate makes sure that this is sensible
func (m *SendMsg) Validate() error {
	if coin.IsEmpty(m.Amount) || !m.Amount.IsPositive() {
		return errors.Wrapf(errors.ErrAmount, "non-positive amount: %v", m.Amount)
	}
	if err := m.Amount.Validate(); err != nil {
		return errors.Wrap(err, "amount")
	}
	if err := m.Src.Validate(); err != nil {
		return errors.Wrap(err, "src")
	}
	if err := m.Dest.Validate(); err != nil {
		return errors.Wrap(err, "dest")
	}
	if len(m.Memo) > maxMemoSize {
		return errors.Wrap(errors.ErrInput, "memo too long")
	}
	return nil
}
