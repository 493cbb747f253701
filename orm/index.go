package orm

import (
	"bytes"
	"encoding/binary"

	weave "github.com/iov-one/escrowfactory"
	"github.com/iov-one/escrowfactory/errors"
)

const indexPrefix = "_i."

// Indexer calculates the secondary index value for a given model. A nil
// value means the model is not indexed.
type Indexer func(Model) ([]byte, error)

// Index stores every reference under its own key
//
//   _i.<name>:<len(value)><value><primary key>
//
// so that adding a reference never rewrites other references and listing
// is a prefix scan. Unique indexes keep a single reference per value.
type Index struct {
	name   string
	prefix []byte
	index  Indexer
	unique bool
}

// NewIndex constructs an index.
// Indexer calculates the index for an object
// unique enforces a unique constraint on the index
func NewIndex(name string, indexer Indexer, unique bool) *Index {
	return &Index{
		name:   name,
		prefix: []byte(indexPrefix + name + ":"),
		index:  indexer,
		unique: unique,
	}
}

// Name returns the name of this index.
func (i *Index) Name() string {
	return i.name
}

// valuePrefix returns the key prefix shared by all references of given value.
func (i *Index) valuePrefix(value []byte) []byte {
	out := make([]byte, len(i.prefix)+2+len(value))
	n := copy(out, i.prefix)
	binary.BigEndian.PutUint16(out[n:], uint16(len(value)))
	copy(out[n+2:], value)
	return out
}

func (i *Index) refKey(value, pk []byte) []byte {
	if i.unique {
		return i.valuePrefix(value)
	}
	return append(i.valuePrefix(value), pk...)
}

// Update handles updating the reference to the model in the index.
//
// prev == nil means insert
// save == nil means delete
// both == nil is error
func (i *Index) Update(db weave.KVStore, pk []byte, prev, save Model) error {
	if prev == nil && save == nil {
		return errors.Wrap(errors.ErrHuman, "update requires at least one non-nil model")
	}
	var before, after []byte
	if prev != nil {
		v, err := i.index(prev)
		if err != nil {
			return err
		}
		before = v
	}
	if save != nil {
		v, err := i.index(save)
		if err != nil {
			return err
		}
		after = v
	}

	if prev != nil && save != nil && bytes.Equal(before, after) {
		return nil
	}
	if before != nil {
		if err := db.Delete(i.refKey(before, pk)); err != nil {
			return errors.Wrap(errors.ErrDatabase, err.Error())
		}
	}
	if after != nil {
		return i.insert(db, after, pk)
	}
	return nil
}

func (i *Index) insert(db weave.KVStore, value, pk []byte) error {
	if len(value) > 0xffff {
		return errors.Wrap(errors.ErrInput, "index value too long")
	}
	key := i.refKey(value, pk)
	if i.unique {
		raw, err := db.Get(key)
		if err != nil {
			return errors.Wrap(errors.ErrDatabase, err.Error())
		}
		if raw != nil && !bytes.Equal(raw, pk) {
			return errors.Wrapf(errors.ErrDuplicate, "%s index value %X", i.name, value)
		}
	}
	if err := db.Set(key, pk); err != nil {
		return errors.Wrap(errors.ErrDatabase, err.Error())
	}
	return nil
}

// Keys returns primary keys of all models indexed under given value.
func (i *Index) Keys(db weave.ReadOnlyKVStore, value []byte) ([][]byte, error) {
	if i.unique {
		raw, err := db.Get(i.valuePrefix(value))
		if err != nil {
			return nil, errors.Wrap(errors.ErrDatabase, err.Error())
		}
		if raw == nil {
			return nil, nil
		}
		return [][]byte{raw}, nil
	}

	start, end := PrefixRange(i.valuePrefix(value))
	it, err := db.Iterator(start, end)
	if err != nil {
		return nil, errors.Wrap(errors.ErrDatabase, err.Error())
	}
	defer it.Close()

	var keys [][]byte
	for it.Valid() {
		keys = append(keys, copyBytes(it.Value()))
		if err := it.Next(); err != nil {
			return nil, err
		}
	}
	return keys, nil
}
