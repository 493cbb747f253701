package app

import (
	"fmt"
	"reflect"

	"github.com/gogo/protobuf/proto"
	weave "github.com/iov-one/escrowfactory"
	"github.com/iov-one/escrowfactory/errors"
	"github.com/iov-one/escrowfactory/x/sigs"
)

// Tx is the transaction format of the escrow ledger. It carries a single
// serialized message, identified by its path, and the signatures of that
// message.
type Tx struct {
	Signatures []*sigs.StdSignature `protobuf:"bytes,1,rep,name=signatures" json:"signatures,omitempty"`
	MsgPath    string               `protobuf:"bytes,2,opt,name=msg_path,json=msgPath,proto3" json:"msg_path,omitempty"`
	MsgBytes   []byte               `protobuf:"bytes,3,opt,name=msg_bytes,json=msgBytes,proto3" json:"msg_bytes,omitempty"`
	Memo       string               `protobuf:"bytes,4,opt,name=memo,proto3" json:"memo,omitempty"`
}

func (m *Tx) Reset()         { *m = Tx{} }
func (m *Tx) String() string { return proto.CompactTextString(m) }
func (*Tx) ProtoMessage()    {}

var _ sigs.SignedTx = (*Tx)(nil)

// GetSignatures returns all signatures of the transaction.
func (tx *Tx) GetSignatures() []*sigs.StdSignature {
	return tx.Signatures
}

// GetSignBytes returns the canonical serialization of the transaction
// without signatures.
func (tx *Tx) GetSignBytes() ([]byte, error) {
	cpy := Tx{
		MsgPath:  tx.MsgPath,
		MsgBytes: tx.MsgBytes,
		Memo:     tx.Memo,
	}
	return weave.Marshal(&cpy)
}

// NewTx returns an unsigned transaction carrying given message.
func NewTx(msg weave.Msg, memo string) (*Tx, error) {
	if err := msg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid message")
	}
	raw, err := weave.Marshal(msg)
	if err != nil {
		return nil, err
	}
	return &Tx{
		MsgPath:  msg.Path(),
		MsgBytes: raw,
		Memo:     memo,
	}, nil
}

// Codec knows all message types the ledger accepts.
type Codec struct {
	types map[string]reflect.Type
}

// NewCodec returns a codec that decodes given messages. One instance of
// each message type is enough.
func NewCodec(msgs ...weave.Msg) *Codec {
	c := &Codec{types: make(map[string]reflect.Type)}
	for _, m := range msgs {
		c.Register(m)
	}
	return c
}

// Register adds a message type. It panics if a message with the same path
// was already registered.
func (c *Codec) Register(msg weave.Msg) {
	t := reflect.TypeOf(msg)
	if t.Kind() != reflect.Ptr {
		panic(fmt.Sprintf("message %T must be a pointer", msg))
	}
	if _, ok := c.types[msg.Path()]; ok {
		panic(fmt.Sprintf("message path %q registered twice", msg.Path()))
	}
	c.types[msg.Path()] = t.Elem()
}

// DecodeMsg returns a new message of the type registered under given path.
func (c *Codec) DecodeMsg(path string, raw []byte) (weave.Msg, error) {
	t, ok := c.types[path]
	if !ok {
		return nil, errors.Wrapf(errors.ErrMsg, "unknown message path %q", path)
	}
	msg := reflect.New(t).Interface().(weave.Msg)
	if err := weave.Unmarshal(raw, msg); err != nil {
		return nil, errors.Wrapf(err, "%s message", path)
	}
	return msg, nil
}

// TxDecoder returns a decoder of Tx with messages known to this codec.
func (c *Codec) TxDecoder() weave.TxDecoder {
	return func(raw []byte) (weave.Tx, error) {
		var tx Tx
		if err := weave.Unmarshal(raw, &tx); err != nil {
			return nil, err
		}
		msg, err := c.DecodeMsg(tx.MsgPath, tx.MsgBytes)
		if err != nil {
			return nil, err
		}
		return decodedTx{Tx: &tx, msg: msg}, nil
	}
}

// decodedTx is a transaction together with its decoded message.
type decodedTx struct {
	*Tx
	msg weave.Msg
}

var (
	_ weave.Tx      = decodedTx{}
	_ sigs.SignedTx = decodedTx{}
)

func (tx decodedTx) GetMsg() (weave.Msg, error) {
	return tx.msg, nil
}
