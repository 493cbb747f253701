package client

import (
	"context"
	"fmt"
	"net/http/httptest"
	"testing"

	weave "github.com/iov-one/escrowfactory"
	"github.com/iov-one/escrowfactory/app"
	escrowd "github.com/iov-one/escrowfactory/cmd/escrowd/app"
	"github.com/iov-one/escrowfactory/coin"
	"github.com/iov-one/escrowfactory/errors"
	"github.com/iov-one/escrowfactory/httpapi"
	"github.com/iov-one/escrowfactory/orm"
	"github.com/iov-one/escrowfactory/store/iavl"
	"github.com/iov-one/escrowfactory/weavetest"
	"github.com/iov-one/escrowfactory/x/escrow"
	"github.com/iov-one/escrowfactory/x/sigs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const chainID = "client-chain"

// startGateway runs a gateway over an in memory ledger. Given address owns
// 50 IOV.
func startGateway(t *testing.T, rich weave.Address) *Client {
	t.Helper()
	ledger, err := escrowd.NewLedger(iavl.NewMemCommitStore(), nil)
	require.NoError(t, err)
	gen := &app.Genesis{
		ChainID: chainID,
		AppState: weave.Options{
			"cash": []byte(fmt.Sprintf(`[{"address": %q, "coins": ["50 IOV"]}]`, rich.String())),
		},
	}
	require.NoError(t, ledger.InitChain(gen, escrowd.Initializers()))

	srv := httptest.NewServer(httpapi.NewRouter(httpapi.Config{
		Ledger:  ledger,
		Factory: escrowd.Factory(),
		Bank:    escrowd.Bank(),
	}))
	t.Cleanup(srv.Close)
	return NewClient(srv.URL+"/", nil)
}

func TestClientEscrowFlow(t *testing.T) {
	ctx := context.Background()
	buyerKey := weavetest.NewKey()
	sellerKey := weavetest.NewKey()
	arbiterKey := weavetest.NewKey()

	cli := startGateway(t, buyerKey.PublicKey().Address())
	buyer := NewSigner(cli, buyerKey, chainID)
	seller := NewSigner(cli, sellerKey, chainID)
	arbiter := NewSigner(cli, arbiterKey, chainID)

	status, err := cli.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, chainID, status.ChainID)
	assert.Equal(t, int64(1), status.Height)

	factory, err := cli.FactoryAddress(ctx)
	require.NoError(t, err)
	assert.Equal(t, escrow.FactoryAddress(), factory)

	res, err := buyer.Submit(ctx, &escrow.CreateMsg{
		Buyer:   buyer.Address(),
		Seller:  seller.Address(),
		Arbiter: arbiter.Address(),
		Amount:  coin.NewCoinp(20, 0, "IOV"),
	}, "")
	require.NoError(t, err)
	id := res.EscrowID
	require.Equal(t, int64(1), id)

	_, err = buyer.Submit(ctx, &escrow.FundMsg{EscrowID: orm.EncodeSequence(id), Amount: coin.NewCoinp(20, 0, "IOV")}, "")
	require.NoError(t, err)

	// only a funded escrow with an arbiter can be disputed
	_, err = seller.Submit(ctx, &escrow.DisputeMsg{EscrowID: orm.EncodeSequence(id)}, "")
	require.NoError(t, err)

	// a party cannot resolve the dispute
	_, err = buyer.Submit(ctx, &escrow.RefundMsg{EscrowID: orm.EncodeSequence(id)}, "")
	assert.True(t, errors.ErrUnauthorized.Is(err), "got %v", err)

	_, err = arbiter.Submit(ctx, &escrow.RefundMsg{EscrowID: orm.EncodeSequence(id)}, "")
	require.NoError(t, err)

	e, err := cli.Escrow(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, escrow.StateResolved, e.State)
	assert.Equal(t, buyer.Address(), e.PaidTo)

	coins, err := cli.Balance(ctx, buyer.Address())
	require.NoError(t, err)
	assert.Equal(t, "50 IOV", coins.String())

	history, err := cli.History(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, escrow.StateResolved, history.State)
	assert.Len(t, history.Transitions, 4)

	mine, err := cli.EscrowsOf(ctx, escrow.RoleArbiter, arbiter.Address())
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, id, mine[0].ID)

	seq, err := cli.Sequence(ctx, buyer.Address())
	require.NoError(t, err)
	assert.Equal(t, int64(2), seq, "rejected refund must not consume the sequence")
}

func TestClientErrors(t *testing.T) {
	ctx := context.Background()
	key := weavetest.NewKey()
	cli := startGateway(t, key.PublicKey().Address())

	_, err := cli.Escrow(ctx, 42)
	assert.True(t, errors.ErrNotFound.Is(err), "got %v", err)

	// a signer with an outdated sequence recovers after one rejection
	signer := NewSigner(cli, key, chainID)
	signer.seq, signer.synced = 5, true
	msg := &escrow.CreateMsg{
		Buyer:  key.PublicKey().Address(),
		Seller: weavetest.NewCondition().Address(),
		Amount: coin.NewCoinp(1, 0, "IOV"),
	}
	_, err = signer.Submit(ctx, msg, "")
	assert.True(t, sigs.ErrInvalidSequence.Is(err), "got %v", err)
	_, err = signer.Submit(ctx, msg, "")
	assert.NoError(t, err)

	tx, err := signer.Sign(ctx, msg, "")
	require.NoError(t, err)
	res, err := cli.CheckTx(ctx, tx)
	require.NoError(t, err)
	assert.Zero(t, res.Code)

	offline := NewClient("http://127.0.0.1:1", nil)
	_, err = offline.Status(ctx)
	assert.True(t, errors.ErrNetwork.Is(err), "got %v", err)
}
