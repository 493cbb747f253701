package app

import (
	"encoding/json"
	"os"
	"time"

	weave "github.com/iov-one/escrowfactory"
	"github.com/iov-one/escrowfactory/errors"
)

// Genesis file format
type Genesis struct {
	ChainID     string        `json:"chain_id"`
	GenesisTime time.Time     `json:"genesis_time"`
	AppState    weave.Options `json:"app_state"`
}

// LoadGenesis tries to load a given file into a Genesis struct
func LoadGenesis(filePath string) (*Genesis, error) {
	raw, err := os.ReadFile(filePath)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrInput, "loading genesis file: %s", err)
	}
	var gen Genesis
	if err := json.Unmarshal(raw, &gen); err != nil {
		return nil, errors.Wrapf(errors.ErrInput, "unmarshaling genesis file: %s", err)
	}
	if err := gen.Validate(); err != nil {
		return nil, err
	}
	return &gen, nil
}

// Validate returns an error if the genesis cannot be used to start a chain.
func (g *Genesis) Validate() error {
	if !weave.IsValidChainID(g.ChainID) {
		return errors.Wrapf(errors.ErrInput, "chain id: %q", g.ChainID)
	}
	if len(g.AppState) == 0 {
		return errors.Wrap(errors.ErrEmpty, "app_state not set in genesis, please initialize application before launching the chain")
	}
	return nil
}

// Save writes the genesis as an indented JSON document.
func (g *Genesis) Save(filePath string) error {
	raw, err := json.MarshalIndent(g, "", "  ")
	if err != nil {
		return errors.Wrap(errors.ErrInput, err.Error())
	}
	if err := os.WriteFile(filePath, raw, 0o600); err != nil {
		return errors.Wrapf(errors.ErrInput, "writing genesis file: %s", err)
	}
	return nil
}
