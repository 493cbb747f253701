/*
Package app links together all the various components
to construct the escrowd ledger.
*/
package app

import (
	"path/filepath"
	"strings"

	weave "github.com/iov-one/escrowfactory"
	"github.com/iov-one/escrowfactory/app"
	"github.com/iov-one/escrowfactory/errors"
	"github.com/iov-one/escrowfactory/store/iavl"
	"github.com/iov-one/escrowfactory/x"
	"github.com/iov-one/escrowfactory/x/cash"
	"github.com/iov-one/escrowfactory/x/escrow"
	"github.com/iov-one/escrowfactory/x/sigs"
)

// Authenticator returns the typical authentication,
// just using public key signatures
func Authenticator() x.Authenticator {
	return x.ChainAuth(sigs.Authenticate{})
}

// Chain returns a chain of decorators, to handle authentication,
// logging, metrics and recovery. Metrics can be nil.
func Chain(metrics *app.Metrics) app.Decorators {
	return app.ChainDecorators(
		app.NewLogging(),
		app.NewRecovery(),
		metrics,
		sigs.NewDecorator(),
	)
}

// Router returns a router dispatching escrow and cash messages.
func Router(authFn x.Authenticator, factory *escrow.Factory) *app.Router {
	r := app.NewRouter()
	escrow.RegisterRoutes(r, authFn, factory)
	cash.RegisterRoutes(r, authFn, Bank())
	return r
}

// Bank returns the controller of all wallets.
func Bank() cash.BaseController {
	return cash.NewController(cash.NewBucket())
}

// Factory returns the escrow factory moving value through the wallets.
func Factory() *escrow.Factory {
	return escrow.NewFactory(escrow.NewRegistry(), Bank())
}

// Codec returns a codec of all messages the ledger accepts.
func Codec() *app.Codec {
	return app.NewCodec(
		&escrow.CreateMsg{},
		&escrow.FundMsg{},
		&escrow.ReleaseMsg{},
		&escrow.RefundMsg{},
		&escrow.DisputeMsg{},
		&cash.SendMsg{},
	)
}

// Initializers returns the genesis loaders of all extensions. Wallets are
// loaded first so that genesis escrows can rely on them.
func Initializers() weave.Initializer {
	return weave.ChainInitializers{
		&cash.Initializer{},
		&escrow.Initializer{Minter: Bank()},
	}
}

// Stack wires up a standard router with a standard decorator
// chain. This can be passed into NewLedger.
func Stack(metrics *app.Metrics) weave.Handler {
	authFn := Authenticator()
	return Chain(metrics).WithHandler(Router(authFn, Factory()))
}

// NewLedger constructs a ledger over given store, with the escrow stack
// and the tx format of this application.
func NewLedger(kv weave.CommitKVStore, metrics *app.Metrics, opts ...app.LedgerOption) (*app.Ledger, error) {
	if metrics != nil {
		opts = append(opts, app.WithCommitListeners(metrics))
	}
	return app.NewLedger(kv, Codec().TxDecoder(), Stack(metrics), opts...)
}

// CommitKVStore returns an initialized KVStore that persists
// the data to the named path.
func CommitKVStore(dbPath string) (*iavl.CommitStore, error) {
	// memory backed case, just for testing
	if dbPath == "" {
		return iavl.NewMemCommitStore(), nil
	}

	// Expand the path fully
	path, err := filepath.Abs(dbPath)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrInput, "invalid database name: %s", dbPath)
	}

	// Some external calls accidently add a ".db", which is now removed
	path = strings.TrimSuffix(path, filepath.Ext(path))

	// Split the database name into it's components (dir, name)
	dir := filepath.Dir(path)
	name := filepath.Base(path)
	return iavl.NewCommitStore(dir, name)
}
