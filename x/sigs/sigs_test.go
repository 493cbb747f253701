package sigs

import (
	"context"
	"testing"

	"github.com/gogo/protobuf/proto"
	weave "github.com/iov-one/escrowfactory"
	"github.com/iov-one/escrowfactory/crypto"
	"github.com/iov-one/escrowfactory/errors"
	"github.com/iov-one/escrowfactory/store"
	"github.com/iov-one/escrowfactory/weavetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stdTx struct {
	Payload    []byte          `protobuf:"bytes,1,opt,name=payload,proto3" json:"payload,omitempty"`
	Signatures []*StdSignature `protobuf:"bytes,2,rep,name=signatures" json:"signatures,omitempty"`
}

func (m *stdTx) Reset()         { *m = stdTx{} }
func (m *stdTx) String() string { return proto.CompactTextString(m) }
func (*stdTx) ProtoMessage()    {}

func (m *stdTx) GetMsg() (weave.Msg, error)     { return &weavetest.Msg{RoutePath: "test/msg"}, nil }
func (m *stdTx) GetSignBytes() ([]byte, error)  { return m.Payload, nil }
func (m *stdTx) GetSignatures() []*StdSignature { return m.Signatures }

var _ SignedTx = (*stdTx)(nil)

// sigCheckHandler stores the signers it was called with.
type sigCheckHandler struct {
	signers []weave.Condition
}

func (s *sigCheckHandler) Check(ctx weave.Context, db weave.KVStore, tx weave.Tx) (*weave.CheckResult, error) {
	s.signers = Authenticate{}.GetConditions(ctx)
	return &weave.CheckResult{}, nil
}

func (s *sigCheckHandler) Deliver(ctx weave.Context, db weave.KVStore, tx weave.Tx) (*weave.DeliverResult, error) {
	s.signers = Authenticate{}.GetConditions(ctx)
	return &weave.DeliverResult{}, nil
}

func TestDecorator(t *testing.T) {
	const chainID = "deco-rate"
	db := store.MemStore()
	ctx := weave.WithChainID(context.Background(), chainID)
	h := &sigCheckHandler{}
	d := NewDecorator()

	priv := crypto.GenPrivKeyEd25519()
	cond := priv.PublicKey().Condition()

	tx := &stdTx{Payload: []byte("art")}
	sig0, err := SignTx(priv, tx, chainID, 0)
	require.NoError(t, err)
	sig1, err := SignTx(priv, tx, chainID, 1)
	require.NoError(t, err)

	// Unsigned transactions are rejected.
	_, err = d.Deliver(ctx, db, tx, h)
	assert.True(t, errors.ErrUnauthorized.Is(err), "%+v", err)

	// Unsigned transactions can pass when allowed.
	_, err = d.AllowMissingSigs().Deliver(ctx, db, &weavetest.Tx{}, h)
	require.NoError(t, err)
	assert.Empty(t, h.signers)

	// A sequence from the future is rejected.
	tx.Signatures = []*StdSignature{sig1}
	_, err = d.Deliver(ctx, db, tx, h)
	assert.True(t, ErrInvalidSequence.Is(err), "%+v", err)

	tx.Signatures = []*StdSignature{sig0}
	_, err = d.Deliver(ctx, db, tx, h)
	require.NoError(t, err)
	assert.Equal(t, []weave.Condition{cond}, h.signers)

	// Replay of the same signature fails.
	_, err = d.Deliver(ctx, db, tx, h)
	assert.True(t, ErrInvalidSequence.Is(err), "%+v", err)

	tx.Signatures = []*StdSignature{sig1}
	_, err = d.Check(ctx, db, tx, h)
	require.NoError(t, err)
	assert.Equal(t, []weave.Condition{cond}, h.signers)

	seq, err := NextSequence(db, priv.PublicKey())
	require.NoError(t, err)
	assert.EqualValues(t, 2, seq)
}

func TestSignatureOfOtherChain(t *testing.T) {
	db := store.MemStore()
	priv := crypto.GenPrivKeyEd25519()
	tx := &stdTx{Payload: []byte("foo")}

	sig, err := SignTx(priv, tx, "other-chain", 0)
	require.NoError(t, err)
	tx.Signatures = []*StdSignature{sig}

	_, err = VerifyTxSignatures(db, tx, "my-chain")
	assert.True(t, errors.ErrUnauthorized.Is(err), "%+v", err)

	// The failed verification did not bump the sequence.
	seq, err := NextSequence(db, priv.PublicKey())
	require.NoError(t, err)
	assert.EqualValues(t, 0, seq)
}

func TestModifiedPayloadIsRejected(t *testing.T) {
	db := store.MemStore()
	priv := crypto.GenPrivKeyEd25519()
	tx := &stdTx{Payload: []byte("pay 1")}

	sig, err := SignTx(priv, tx, "my-chain", 0)
	require.NoError(t, err)
	tx.Signatures = []*StdSignature{sig}
	tx.Payload = []byte("pay 1000")

	_, err = VerifyTxSignatures(db, tx, "my-chain")
	assert.True(t, errors.ErrUnauthorized.Is(err), "%+v", err)
}

func TestBuildSignBytes(t *testing.T) {
	a, err := BuildSignBytes([]byte("foo"), "test-chain", 1)
	require.NoError(t, err)
	b, err := BuildSignBytes([]byte("foo"), "test-chain", 2)
	require.NoError(t, err)
	assert.Len(t, a, 64)
	assert.NotEqual(t, a, b)

	_, err = BuildSignBytes([]byte("foo"), "test-chain", -1)
	assert.True(t, ErrInvalidSequence.Is(err))
	_, err = BuildSignBytes([]byte("foo"), "x", 1)
	assert.True(t, errors.ErrInput.Is(err))
}

func TestStdSignatureValidate(t *testing.T) {
	pub := crypto.GenPrivKeyEd25519().PublicKey()
	cases := map[string]struct {
		sig     StdSignature
		wantErr *errors.Error
	}{
		"valid": {
			sig: StdSignature{Pubkey: pub, Signature: &crypto.Signature{}},
		},
		"negative sequence": {
			sig:     StdSignature{Sequence: -1, Pubkey: pub, Signature: &crypto.Signature{}},
			wantErr: ErrInvalidSequence,
		},
		"missing pubkey": {
			sig:     StdSignature{Signature: &crypto.Signature{}},
			wantErr: errors.ErrUnauthorized,
		},
		"missing signature": {
			sig:     StdSignature{Pubkey: pub},
			wantErr: errors.ErrUnauthorized,
		},
	}
	for testName, tc := range cases {
		t.Run(testName, func(t *testing.T) {
			err := tc.sig.Validate()
			if tc.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.True(t, tc.wantErr.Is(err), "%+v", err)
		})
	}
}

func TestCheckAndIncrementSequence(t *testing.T) {
	u := UserData{Sequence: maxSequenceValue}
	err := u.CheckAndIncrementSequence(maxSequenceValue)
	assert.True(t, errors.ErrOverflow.Is(err))

	u = UserData{Sequence: 3}
	require.NoError(t, u.CheckAndIncrementSequence(3))
	assert.EqualValues(t, 4, u.Sequence)
}
