package server

import (
	"flag"
	"fmt"
	"io"

	weave "github.com/iov-one/escrowfactory"
	"github.com/iov-one/escrowfactory/app"
	"github.com/iov-one/escrowfactory/coin"
	"github.com/iov-one/escrowfactory/errors"
	"github.com/iov-one/escrowfactory/orm"
	"github.com/iov-one/escrowfactory/x/cash"
	"github.com/iov-one/escrowfactory/x/escrow"
	"github.com/iov-one/escrowfactory/x/sigs"
	amino "github.com/tendermint/go-amino"
)

var cdc = amino.NewCodec()

// StateDump is the committed state of a ledger.
type StateDump struct {
	ChainID string           `json:"chain_id"`
	Height  int64            `json:"height"`
	Escrows []EscrowDump     `json:"escrows"`
	Wallets []WalletDump     `json:"wallets"`
	Signers []*sigs.UserData `json:"signers"`
}

type EscrowDump struct {
	ID     int64          `json:"id"`
	Escrow *escrow.Escrow `json:"escrow"`
}

type WalletDump struct {
	Address weave.Address `json:"address"`
	Coins   coin.Coins    `json:"coins"`
}

// DumpCmd prints the committed state of a stopped node as JSON. The ledger
// must not be running, it holds a lock on the store.
func DumpCmd(a Application, out io.Writer, home string, args []string) error {
	conf, err := LoadConfig(home)
	if err != nil {
		return err
	}
	fs := flag.NewFlagSet("dump", flag.ContinueOnError)
	dbPath := fs.String("db", conf.storePath(), "commit store location")
	if err := fs.Parse(args); err != nil {
		return errors.Wrap(errors.ErrInput, err.Error())
	}
	if *dbPath == "" {
		return errors.Wrap(errors.ErrInput, "memory store cannot be dumped")
	}

	kv, err := a.Store(*dbPath)
	if err != nil {
		return err
	}
	defer kv.Close()
	ledger, err := a.Ledger(kv, nil)
	if err != nil {
		return err
	}
	dump, err := Dump(ledger)
	if err != nil {
		return err
	}
	js, err := cdc.MarshalJSONIndent(dump, "", "  ")
	if err != nil {
		return errors.Wrapf(errors.ErrInput, "encode dump: %s", err)
	}
	_, err = fmt.Fprintln(out, string(js))
	return err
}

// Dump collects all escrows, wallets and signers of the committed state.
func Dump(ledger *app.Ledger) (*StateDump, error) {
	dump := StateDump{
		ChainID: ledger.ChainID(),
		Height:  ledger.Height(),
	}
	err := ledger.View(func(db weave.ReadOnlyKVStore) error {
		all, err := escrow.NewRegistry().All(db)
		if err != nil {
			return errors.Wrap(err, "escrows")
		}
		for _, e := range all {
			dump.Escrows = append(dump.Escrows, EscrowDump{
				ID:     orm.DecodeSequence(e.ID),
				Escrow: e,
			})
		}

		wallets := cash.NewBucket()
		keys, err := wallets.Keys(db)
		if err != nil {
			return errors.Wrap(err, "wallets")
		}
		for _, k := range keys {
			coins, err := wallets.Balance(db, k)
			if err != nil {
				return err
			}
			dump.Wallets = append(dump.Wallets, WalletDump{Address: k, Coins: coins})
		}

		signers := sigs.NewBucket()
		keys, err = signers.Keys(db)
		if err != nil {
			return errors.Wrap(err, "signers")
		}
		for _, k := range keys {
			var u sigs.UserData
			if err := signers.One(db, k, &u); err != nil {
				return err
			}
			dump.Signers = append(dump.Signers, &u)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &dump, nil
}
