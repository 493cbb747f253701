package app

import (
	"encoding/json"
	"flag"

	weave "github.com/iov-one/escrowfactory"
	"github.com/iov-one/escrowfactory/coin"
	"github.com/iov-one/escrowfactory/commands/server"
	"github.com/iov-one/escrowfactory/errors"
	"github.com/iov-one/escrowfactory/x/cash"
)

// GenInitOptions creates the genesis state of a new chain. Every address
// given as an argument starts with the -amount balance. There are no
// escrows at genesis.
//
//   escrowd init -chain-id=test-chain -- -amount="1000 IOV" <address>...
func GenInitOptions(args []string) (weave.Options, error) {
	fs := flag.NewFlagSet("genesis", flag.ContinueOnError)
	amount := fs.String("amount", "1000 IOV", "initial balance of each account")
	if err := fs.Parse(args); err != nil {
		return nil, errors.Wrap(errors.ErrInput, err.Error())
	}
	balance, err := coin.ParseHumanFormat(*amount)
	if err != nil {
		return nil, errors.Wrap(err, "amount")
	}

	accounts := make([]cash.GenesisAccount, 0, fs.NArg())
	for _, a := range fs.Args() {
		addr, err := weave.ParseAddress(a)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, cash.GenesisAccount{
			Address: addr,
			Coins:   []coin.Coin{balance},
		})
	}
	cashState, err := json.Marshal(accounts)
	if err != nil {
		return nil, errors.Wrap(errors.ErrInput, err.Error())
	}
	return weave.Options{
		"cash":   cashState,
		"escrow": json.RawMessage(`[]`),
	}, nil
}

// Application returns what the daemon commands need to run this ledger.
func Application() server.Application {
	return server.Application{
		Store:       CommitKVStore,
		Ledger:      NewLedger,
		Initializer: Initializers(),
		Factory:     Factory(),
		Bank:        Bank(),
	}
}
