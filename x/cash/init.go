package cash

import (
	weave "github.com/iov-one/escrowfactory"
	"github.com/iov-one/escrowfactory/coin"
	"github.com/iov-one/escrowfactory/errors"
)

const optKey = "cash"

// GenesisAccount is used to parse the json from genesis file.
// Address is hex or bech32 encoded, coins may be given in the human
// readable format.
type GenesisAccount struct {
	Address weave.Address `json:"address"`
	Coins   []coin.Coin   `json:"coins"`
}

// Initializer fulfils the weave.Initializer interface to load data from
// the genesis file
type Initializer struct{}

var _ weave.Initializer = Initializer{}

// FromGenesis will parse initial account info from genesis
// and save it to the database
func (Initializer) FromGenesis(ctx weave.Context, opts weave.Options, db weave.KVStore) error {
	var accts []GenesisAccount
	if err := opts.ReadOptions(optKey, &accts); err != nil {
		return err
	}
	bucket := NewBucket()
	for i, acct := range accts {
		if err := acct.Address.Validate(); err != nil {
			return errors.Wrapf(err, "account %d", i)
		}
		if ok, err := bucket.Has(db, acct.Address); err != nil {
			return err
		} else if ok {
			return errors.Wrapf(errors.ErrDuplicate, "account %s", acct.Address)
		}
		coins, err := coin.CombineCoins(acct.Coins...)
		if err != nil {
			return errors.Wrapf(err, "account %s coins", acct.Address)
		}
		if err := bucket.Save(db, acct.Address, coins); err != nil {
			return err
		}
	}
	return nil
}
