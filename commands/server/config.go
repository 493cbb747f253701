package server

import (
	"bytes"
	"os"
	"path/filepath"

	"github.com/iov-one/escrowfactory/errors"
	"github.com/tendermint/tendermint/libs/log"
	"gopkg.in/yaml.v3"
)

// ConfigFile is the name of the daemon configuration, relative to the home
// directory.
const ConfigFile = "config.yaml"

// GenesisFile is the genesis location used when none is configured.
const GenesisFile = "genesis.json"

const (
	BackendLevelDB = "goleveldb"
	BackendMemDB   = "memdb"
)

// Config is the daemon configuration. Relative paths are resolved against
// the home directory.
type Config struct {
	// Bind is the address the HTTP gateway listens on.
	Bind        string    `yaml:"bind"`
	DBBackend   string    `yaml:"db_backend"`
	DBPath      string    `yaml:"db_path"`
	Genesis     string    `yaml:"genesis"`
	IndexPath   string    `yaml:"index_path"`
	EventBuffer int       `yaml:"event_buffer"`
	Debug       bool      `yaml:"debug"`
	Log         LogConfig `yaml:"log"`
}

// LogConfig defines the log output. An empty file means stdout only.
type LogConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file,omitempty"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// DefaultConfig returns the configuration written by the init command.
func DefaultConfig() *Config {
	return &Config{
		Bind:        "localhost:8480",
		DBBackend:   BackendLevelDB,
		DBPath:      "data/escrow.db",
		Genesis:     GenesisFile,
		IndexPath:   "data/index.sqlite",
		EventBuffer: 256,
		Log: LogConfig{
			Level:      "info",
			MaxSizeMB:  100,
			MaxBackups: 5,
			MaxAgeDays: 30,
		},
	}
}

// LoadConfig reads the configuration kept in the home directory. Values
// missing from the file keep their defaults. A missing file gives the
// default configuration.
func LoadConfig(home string) (*Config, error) {
	conf := DefaultConfig()
	raw, err := os.ReadFile(filepath.Join(home, ConfigFile))
	switch {
	case os.IsNotExist(err):
	case err != nil:
		return nil, errors.Wrapf(errors.ErrInput, "read config: %s", err)
	default:
		dec := yaml.NewDecoder(bytes.NewReader(raw))
		dec.KnownFields(true)
		if err := dec.Decode(conf); err != nil {
			return nil, errors.Wrapf(errors.ErrInput, "decode config: %s", err)
		}
	}
	if err := conf.Validate(); err != nil {
		return nil, err
	}
	conf.resolve(home)
	return conf, nil
}

// Save writes the configuration as a YAML document.
func (c *Config) Save(path string) error {
	raw, err := yaml.Marshal(c)
	if err != nil {
		return errors.Wrapf(errors.ErrInput, "encode config: %s", err)
	}
	if err := os.WriteFile(path, raw, 0o600); err != nil {
		return errors.Wrapf(errors.ErrInput, "write config: %s", err)
	}
	return nil
}

// Validate returns an error if the daemon cannot run with this
// configuration.
func (c *Config) Validate() error {
	if c.Bind == "" {
		return errors.Wrap(errors.ErrEmpty, "bind")
	}
	switch c.DBBackend {
	case BackendLevelDB:
		if c.DBPath == "" {
			return errors.Wrap(errors.ErrEmpty, "db_path")
		}
	case BackendMemDB:
	default:
		return errors.Wrapf(errors.ErrInput, "unknown db backend %q", c.DBBackend)
	}
	if c.EventBuffer < 0 {
		return errors.Wrap(errors.ErrInput, "negative event buffer")
	}
	if _, err := log.AllowLevel(c.Log.Level); err != nil {
		return errors.Wrap(errors.ErrInput, err.Error())
	}
	return nil
}

func (c *Config) resolve(home string) {
	abs := func(p string) string {
		if p == "" || filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(home, p)
	}
	c.DBPath = abs(c.DBPath)
	c.Genesis = abs(c.Genesis)
	c.IndexPath = abs(c.IndexPath)
	c.Log.File = abs(c.Log.File)
}

// storePath returns the location of the commit store. Memory backed
// stores have no location.
func (c *Config) storePath() string {
	if c.DBBackend == BackendMemDB {
		return ""
	}
	return c.DBPath
}
