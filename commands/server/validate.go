package server

import (
	"context"
	"time"

	weave "github.com/iov-one/escrowfactory"
	"github.com/iov-one/escrowfactory/app"
	"github.com/iov-one/escrowfactory/errors"
	"github.com/iov-one/escrowfactory/store"
)

// ValidateGenesis loads each genesis file into a throwaway store and
// returns the first failure.
func ValidateGenesis(ini weave.Initializer, genesisPaths []string) error {
	if len(genesisPaths) == 0 {
		return errors.Wrap(errors.ErrInput, "Usage: validate <genesis.json>...")
	}
	for _, path := range genesisPaths {
		if err := validateGenesis(ini, path); err != nil {
			return errors.Wrap(err, path)
		}
	}
	return nil
}

func validateGenesis(ini weave.Initializer, genesisPath string) error {
	gen, err := app.LoadGenesis(genesisPath)
	if err != nil {
		return err
	}
	blockTime := gen.GenesisTime
	if blockTime.IsZero() {
		blockTime = time.Now()
	}
	ctx := weave.WithChainID(context.Background(), gen.ChainID)
	ctx = weave.WithHeight(ctx, 1)
	ctx = weave.WithBlockTime(ctx, blockTime)

	// Use in memory store because we want to discard the result.
	db := store.MemStore()
	if err := ini.FromGenesis(ctx, gen.AppState, db); err != nil {
		return errors.Wrap(err, "cannot initialize from genesis")
	}
	return nil
}
