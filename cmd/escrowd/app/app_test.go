package app

import (
	"context"
	"testing"

	weave "github.com/iov-one/escrowfactory"
	"github.com/iov-one/escrowfactory/store"
	"github.com/iov-one/escrowfactory/weavetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenInitOptions(t *testing.T) {
	a, b := weavetest.NewCondition().Address(), weavetest.NewCondition().Address()
	opts, err := GenInitOptions([]string{"-amount=25.5 IOV", a.String(), b.String()})
	require.NoError(t, err)

	db := store.MemStore()
	ctx := weave.WithHeight(context.Background(), 1)
	require.NoError(t, Initializers().FromGenesis(ctx, opts, db))

	for _, addr := range []weave.Address{a, b} {
		coins, err := Bank().Balance(db, addr)
		require.NoError(t, err)
		assert.Equal(t, "25.5 IOV", coins.String())
	}

	_, err = GenInitOptions([]string{"not-an-address"})
	assert.Error(t, err)
	_, err = GenInitOptions([]string{"-amount=lots"})
	assert.Error(t, err)
}

func TestCodecKnowsAllRoutes(t *testing.T) {
	r := Router(Authenticator(), Factory())
	codec := Codec()
	for _, path := range r.Paths() {
		_, err := codec.DecodeMsg(path, nil)
		assert.NoError(t, err, path)
	}
}
