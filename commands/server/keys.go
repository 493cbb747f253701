package server

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"

	weave "github.com/iov-one/escrowfactory"
	"github.com/iov-one/escrowfactory/crypto"
	"github.com/iov-one/escrowfactory/errors"
)

// keysDir is where keys are stored, relative to the home directory.
const keysDir = "keys"

// Bech32Prefix is the human readable part of printed addresses.
const Bech32Prefix = "esc"

var isKeyName = regexp.MustCompile(`^[a-zA-Z0-9_\-]{1,32}$`).MatchString

// KeysCmd manages the ed25519 keys kept in the home directory.
//
//   keys new <name>   generate and store a key
//   keys show <name>  print the address of a stored key
//   keys list         print all stored keys
func KeysCmd(out io.Writer, home string, args []string) error {
	if len(args) == 0 {
		return errors.Wrap(errors.ErrInput, "Usage: keys new|show|list [name]")
	}
	dir := filepath.Join(home, keysDir)
	switch cmd, rest := args[0], args[1:]; cmd {
	case "new":
		if len(rest) != 1 {
			return errors.Wrap(errors.ErrInput, "Usage: keys new <name>")
		}
		key, err := NewKey(dir, rest[0])
		if err != nil {
			return err
		}
		return printKey(out, rest[0], key.PublicKey().Address())
	case "show":
		if len(rest) != 1 {
			return errors.Wrap(errors.ErrInput, "Usage: keys show <name>")
		}
		key, err := LoadKey(dir, rest[0])
		if err != nil {
			return err
		}
		return printKey(out, rest[0], key.PublicKey().Address())
	case "list":
		names, err := filepath.Glob(filepath.Join(dir, "*.key"))
		if err != nil {
			return errors.Wrap(errors.ErrInput, err.Error())
		}
		for _, path := range names {
			name := filepath.Base(path)
			name = name[:len(name)-len(".key")]
			key, err := LoadKey(dir, name)
			if err != nil {
				return err
			}
			if err := printKey(out, name, key.PublicKey().Address()); err != nil {
				return err
			}
		}
		return nil
	default:
		return errors.Wrapf(errors.ErrInput, "unknown keys command: %s", cmd)
	}
}

// NewKey generates a key and stores it in given directory. An existing
// key is never overwritten.
func NewKey(dir, name string) (*crypto.PrivateKey, error) {
	path, err := keyPath(dir, name)
	if err != nil {
		return nil, err
	}
	if fileExists(path) {
		return nil, errors.Wrapf(errors.ErrDuplicate, "key %q", name)
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, errors.Wrapf(errors.ErrInput, "create keys dir: %s", err)
	}
	key := crypto.GenPrivKeyEd25519()
	raw, err := weave.Marshal(key)
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(path, raw, 0o600); err != nil {
		return nil, errors.Wrapf(errors.ErrInput, "write key: %s", err)
	}
	return key, nil
}

// LoadKey reads a key stored by NewKey.
func LoadKey(dir, name string) (*crypto.PrivateKey, error) {
	path, err := keyPath(dir, name)
	if err != nil {
		return nil, err
	}
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, errors.Wrapf(errors.ErrNotFound, "key %q", name)
	}
	if err != nil {
		return nil, errors.Wrapf(errors.ErrInput, "read key: %s", err)
	}
	var key crypto.PrivateKey
	if err := weave.Unmarshal(raw, &key); err != nil {
		return nil, errors.Wrapf(err, "key %q", name)
	}
	return &key, nil
}

func keyPath(dir, name string) (string, error) {
	if !isKeyName(name) {
		return "", errors.Wrapf(errors.ErrInput, "invalid key name %q", name)
	}
	return filepath.Join(dir, name+".key"), nil
}

func printKey(out io.Writer, name string, addr weave.Address) error {
	b32, err := addr.Bech32(Bech32Prefix)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(out, "%s\t%s\t%s\n", name, addr, b32)
	return err
}
