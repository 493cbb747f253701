package app

import (
	"testing"

	weave "github.com/iov-one/escrowfactory"
	"github.com/iov-one/escrowfactory/coin"
	"github.com/iov-one/escrowfactory/errors"
	"github.com/iov-one/escrowfactory/weavetest"
	"github.com/iov-one/escrowfactory/x/escrow"
	"github.com/iov-one/escrowfactory/x/sigs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTxDecoder(t *testing.T) {
	codec := NewCodec(&escrow.CreateMsg{}, &escrow.FundMsg{})
	msg := &escrow.CreateMsg{
		Buyer:  weavetest.NewCondition().Address(),
		Seller: weavetest.NewCondition().Address(),
		Amount: coin.NewCoinp(3, 0, "IOV"),
	}
	tx, err := NewTx(msg, "hello")
	require.NoError(t, err)
	assert.Equal(t, "escrow/create", tx.MsgPath)

	key := weavetest.NewKey()
	sig, err := sigs.SignTx(key, tx, "test-chain", 0)
	require.NoError(t, err)
	tx.Signatures = append(tx.Signatures, sig)

	raw, err := weave.Marshal(tx)
	require.NoError(t, err)
	decoded, err := codec.TxDecoder()(raw)
	require.NoError(t, err)

	got, err := decoded.GetMsg()
	require.NoError(t, err)
	assert.Equal(t, msg, got)
	assert.Equal(t, "escrow/create", weave.GetPath(decoded))

	signed, ok := decoded.(sigs.SignedTx)
	require.True(t, ok)
	require.Len(t, signed.GetSignatures(), 1)

	// signatures are not part of the signed bytes
	bz, err := signed.GetSignBytes()
	require.NoError(t, err)
	unsigned := *tx
	unsigned.Signatures = nil
	want, err := unsigned.GetSignBytes()
	require.NoError(t, err)
	assert.Equal(t, want, bz)

	tx.MsgPath = "escrow/unknown"
	raw, err = weave.Marshal(tx)
	require.NoError(t, err)
	_, err = codec.TxDecoder()(raw)
	assert.True(t, errors.ErrMsg.Is(err), "got %v", err)

	_, err = codec.TxDecoder()([]byte("not a transaction"))
	assert.Error(t, err)
}

func TestNewTxValidates(t *testing.T) {
	_, err := NewTx(&escrow.CreateMsg{}, "")
	assert.Error(t, err)
}

func TestCodecRegister(t *testing.T) {
	codec := NewCodec(&escrow.CreateMsg{})
	assert.Panics(t, func() { codec.Register(&escrow.CreateMsg{}) })
	assert.NotPanics(t, func() { codec.Register(&escrow.FundMsg{}) })
	assert.Panics(t, func() { codec.Register(&escrow.FundMsg{}) })
}
