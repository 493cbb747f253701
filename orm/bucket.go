package orm

import (
	"fmt"
	"reflect"
	"regexp"

	weave "github.com/iov-one/escrowfactory"
	"github.com/iov-one/escrowfactory/errors"
)

var (
	isBucketName = regexp.MustCompile(`^[a-z_]{3,10}$`).MatchString
)

// Model is implemented by any entity that can be stored in a Bucket.
type Model interface {
	weave.Persistent
	Validate() error
}

// Bucket is a prefixed subspace of the DB that holds models of a single
// type, together with its secondary indexes.
//
// This is a generic building block that should generally
// be embedded in a type-safe wrapper to ensure all data
// is the same type.
type Bucket struct {
	name    string
	prefix  []byte
	model   reflect.Type
	indexes map[string]*Index
}

// NewBucket creates a bucket to store models of the same type as given
// prototype.
func NewBucket(name string, proto Model) Bucket {
	if !isBucketName(name) {
		panic(fmt.Sprintf("Illegal bucket: %s", name))
	}
	return Bucket{
		name:   name,
		prefix: append([]byte(name), ':'),
		model:  reflect.TypeOf(proto),
	}
}

// Name returns the name of this bucket.
func (b Bucket) Name() string {
	return b.name
}

// DBKey is the full key we store in the db, including prefix
// We copy into a new array rather than use append, as we don't
// want consecutive calls to overwrite the same byte array.
func (b Bucket) DBKey(key []byte) []byte {
	l := len(b.prefix)
	out := make([]byte, l+len(key))
	copy(out, b.prefix)
	copy(out[l:], key)
	return out
}

// Has returns true if an entity with given primary key exists.
func (b Bucket) Has(db weave.ReadOnlyKVStore, key []byte) (bool, error) {
	if len(key) == 0 {
		return false, errors.Wrap(errors.ErrEmpty, "key")
	}
	ok, err := db.Has(b.DBKey(key))
	if err != nil {
		return false, errors.Wrap(errors.ErrDatabase, err.Error())
	}
	return ok, nil
}

// One query the database for a single model instance. Lookup is done by the
// primary key. Result is loaded into given destination model.
//
// This method returns ErrNotFound if the entity does not exist in the
// database. If given model type cannot be used to contain stored entity,
// ErrType is returned.
func (b Bucket) One(db weave.ReadOnlyKVStore, key []byte, dest Model) error {
	if err := b.checkType(dest); err != nil {
		return err
	}
	raw, err := db.Get(b.DBKey(key))
	if err != nil {
		return errors.Wrap(errors.ErrDatabase, err.Error())
	}
	if raw == nil {
		return errors.Wrapf(errors.ErrNotFound, "%s %X", b.name, key)
	}
	if err := weave.Unmarshal(raw, dest); err != nil {
		return errors.Wrapf(err, "%s %X", b.name, key)
	}
	return nil
}

// Put saves given model in the database under given primary key. All
// indexes are updated.
func (b Bucket) Put(db weave.KVStore, key []byte, m Model) error {
	if len(key) == 0 {
		return errors.Wrap(errors.ErrEmpty, "key")
	}
	if err := b.checkType(m); err != nil {
		return err
	}
	if err := m.Validate(); err != nil {
		return errors.Wrap(err, "invalid model")
	}
	raw, err := weave.Marshal(m)
	if err != nil {
		return err
	}

	if len(b.indexes) > 0 {
		prev, err := b.load(db, key)
		if err != nil {
			return err
		}
		for _, idx := range b.indexes {
			if err := idx.Update(db, key, prev, m); err != nil {
				return errors.Wrapf(err, "index %s", idx.name)
			}
		}
	}

	if err := db.Set(b.DBKey(key), raw); err != nil {
		return errors.Wrap(errors.ErrDatabase, err.Error())
	}
	return nil
}

// Delete removes an entity with given primary key from the database. It
// returns ErrNotFound if an entity with given key does not exist.
func (b Bucket) Delete(db weave.KVStore, key []byte) error {
	prev, err := b.load(db, key)
	if err != nil {
		return err
	}
	if prev == nil {
		return errors.Wrapf(errors.ErrNotFound, "%s %X", b.name, key)
	}
	for _, idx := range b.indexes {
		if err := idx.Update(db, key, prev, nil); err != nil {
			return errors.Wrapf(err, "index %s", idx.name)
		}
	}
	if err := db.Delete(b.DBKey(key)); err != nil {
		return errors.Wrap(errors.ErrDatabase, err.Error())
	}
	return nil
}

// load returns the stored model or nil if it does not exist.
func (b Bucket) load(db weave.ReadOnlyKVStore, key []byte) (Model, error) {
	raw, err := db.Get(b.DBKey(key))
	if err != nil {
		return nil, errors.Wrap(errors.ErrDatabase, err.Error())
	}
	if raw == nil {
		return nil, nil
	}
	m := reflect.New(b.model.Elem()).Interface().(Model)
	if err := weave.Unmarshal(raw, m); err != nil {
		return nil, err
	}
	return m, nil
}

func (b Bucket) checkType(m Model) error {
	if reflect.TypeOf(m) != b.model {
		return errors.Wrapf(errors.ErrType, "%s bucket stores %s, got %T", b.name, b.model, m)
	}
	return nil
}

// Sequence returns a Sequence by name
func (b Bucket) Sequence(name string) Sequence {
	return NewSequence(b.name, name)
}

// WithIndex returns a copy of this bucket with given index,
// panics if it an index with that name is already registered.
//
// Designed to be chained.
func (b Bucket) WithIndex(name string, indexer Indexer, unique bool) Bucket {
	// no duplicate indexes! (panic on init)
	if _, ok := b.indexes[name]; ok {
		panic(fmt.Sprintf("Index %s registered twice", name))
	}
	indexes := make(map[string]*Index, len(b.indexes)+1)
	for n, i := range b.indexes {
		indexes[n] = i
	}
	indexes[name] = NewIndex(b.name+"_"+name, indexer, unique)
	b.indexes = indexes
	return b
}

// IndexKeys returns primary keys of all entities indexed under given value
// by the named index. Keys are ordered by their byte representation.
func (b Bucket) IndexKeys(db weave.ReadOnlyKVStore, name string, value []byte) ([][]byte, error) {
	idx, ok := b.indexes[name]
	if !ok {
		return nil, errors.Wrapf(ErrInvalidIndex, "%s bucket has no %q index", b.name, name)
	}
	return idx.Keys(db, value)
}

// Keys returns primary keys of all entities stored in this bucket, from
// the lowest to the highest one.
func (b Bucket) Keys(db weave.ReadOnlyKVStore) ([][]byte, error) {
	return b.KeysWithPrefix(db, nil)
}

// KeysWithPrefix returns, in ascending order, primary keys of all entities
// whose key starts with given prefix.
func (b Bucket) KeysWithPrefix(db weave.ReadOnlyKVStore, prefix []byte) ([][]byte, error) {
	start, end := PrefixRange(b.DBKey(prefix))
	it, err := db.Iterator(start, end)
	if err != nil {
		return nil, errors.Wrap(errors.ErrDatabase, err.Error())
	}
	defer it.Close()

	var keys [][]byte
	for it.Valid() {
		keys = append(keys, copyBytes(it.Key()[len(b.prefix):]))
		if err := it.Next(); err != nil {
			return nil, err
		}
	}
	return keys, nil
}
