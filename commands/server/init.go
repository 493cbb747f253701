package server

import (
	"flag"
	"os"
	"path/filepath"
	"time"

	weave "github.com/iov-one/escrowfactory"
	"github.com/iov-one/escrowfactory/app"
	"github.com/iov-one/escrowfactory/errors"
	"github.com/tendermint/tendermint/libs/log"
)

const (
	flagChainID = "chain-id"
	flagForce   = "force"
)

// GenOptions creates the app_state of a new genesis file from the
// remaining command line arguments. This is application-specific.
type GenOptions func(args []string) (weave.Options, error)

// InitCmd creates the home directory with a default configuration and a
// genesis file. Existing files are kept unless -force is given.
func InitCmd(gen GenOptions, logger log.Logger, home string, args []string) error {
	fs := flag.NewFlagSet("init", flag.ContinueOnError)
	chainID := fs.String(flagChainID, "escrow-local", "identifier of the new chain")
	force := fs.Bool(flagForce, false, "overwrite existing files")
	if err := fs.Parse(args); err != nil {
		return errors.Wrap(errors.ErrInput, err.Error())
	}

	if err := os.MkdirAll(home, 0o700); err != nil {
		return errors.Wrapf(errors.ErrInput, "create home: %s", err)
	}

	confPath := filepath.Join(home, ConfigFile)
	if fileExists(confPath) && !*force {
		logger.Info("Found config file", "path", confPath)
	} else {
		if err := DefaultConfig().Save(confPath); err != nil {
			return err
		}
		logger.Info("Generated config file", "path", confPath)
	}

	conf, err := LoadConfig(home)
	if err != nil {
		return err
	}
	if fileExists(conf.Genesis) && !*force {
		logger.Info("Found genesis file", "path", conf.Genesis)
		return nil
	}

	state, err := gen(fs.Args())
	if err != nil {
		return errors.Wrap(err, "app state")
	}
	genesis := &app.Genesis{
		ChainID:     *chainID,
		GenesisTime: time.Now().UTC().Truncate(time.Second),
		AppState:    state,
	}
	if err := genesis.Validate(); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(conf.Genesis), 0o700); err != nil {
		return errors.Wrapf(errors.ErrInput, "create genesis dir: %s", err)
	}
	if err := genesis.Save(conf.Genesis); err != nil {
		return err
	}
	logger.Info("Generated genesis file", "path", conf.Genesis, "chainID", genesis.ChainID)
	return nil
}

func fileExists(filePath string) bool {
	_, err := os.Stat(filePath)
	return !os.IsNotExist(err)
}
