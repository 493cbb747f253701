package escrow

import (
	weave "github.com/iov-one/escrowfactory"
	"github.com/iov-one/escrowfactory/errors"
	"github.com/iov-one/escrowfactory/orm"
)

const (
	BucketName        = "esc"
	HistoryBucketName = "escevt"
	SequenceName      = "id"

	IndexBuyer   = "buyer"
	IndexSeller  = "seller"
	IndexArbiter = "arbiter"
)

// Registry keeps every escrow ever created together with the history of
// its transitions. It offers no delete.
type Registry struct {
	escrows orm.Bucket
	history orm.Bucket
	ids     orm.Sequence
	events  orm.Sequence
}

// NewRegistry returns a registry with buyer, seller and arbiter indexes.
func NewRegistry() *Registry {
	escrows := orm.NewBucket(BucketName, &Escrow{}).
		WithIndex(IndexBuyer, partyIndexer(RoleBuyer), false).
		WithIndex(IndexSeller, partyIndexer(RoleSeller), false).
		WithIndex(IndexArbiter, partyIndexer(RoleArbiter), false)
	history := orm.NewBucket(HistoryBucketName, &TransitionEvent{})
	return &Registry{
		escrows: escrows,
		history: history,
		ids:     escrows.Sequence(SequenceName),
		events:  history.Sequence(SequenceName),
	}
}

func partyIndexer(role Role) orm.Indexer {
	return func(obj orm.Model) ([]byte, error) {
		e, ok := obj.(*Escrow)
		if !ok {
			return nil, errors.Wrapf(errors.ErrType, "%T", obj)
		}
		var addr weave.Address
		switch role {
		case RoleBuyer:
			addr = e.Buyer
		case RoleSeller:
			addr = e.Seller
		case RoleArbiter:
			addr = e.Arbiter
		}
		if len(addr) == 0 {
			return nil, nil
		}
		return addr, nil
	}
}

// NextID allocates a fresh escrow id. Ids are never reused.
func (r *Registry) NextID(db weave.KVStore) ([]byte, error) {
	return r.ids.NextVal(db)
}

// Insert saves a new escrow. ErrDuplicate is returned if an escrow
// with the same id exists.
func (r *Registry) Insert(db weave.KVStore, e *Escrow) error {
	ok, err := r.Exists(db, e.ID)
	if err != nil {
		return err
	}
	if ok {
		return errors.Wrapf(errors.ErrDuplicate, "escrow %X", e.ID)
	}
	return r.escrows.Put(db, e.ID, e)
}

// Update overwrites an existing escrow.
func (r *Registry) Update(db weave.KVStore, e *Escrow) error {
	ok, err := r.Exists(db, e.ID)
	if err != nil {
		return err
	}
	if !ok {
		return errors.Wrapf(errors.ErrNotFound, "escrow %X", e.ID)
	}
	return r.escrows.Put(db, e.ID, e)
}

// Lookup returns the escrow with given id or ErrNotFound.
func (r *Registry) Lookup(db weave.ReadOnlyKVStore, id []byte) (*Escrow, error) {
	var e Escrow
	if err := r.escrows.One(db, id, &e); err != nil {
		return nil, err
	}
	return &e, nil
}

func (r *Registry) Exists(db weave.ReadOnlyKVStore, id []byte) (bool, error) {
	return r.escrows.Has(db, id)
}

// ByIndex returns all escrows indexed under given value, ordered by id.
func (r *Registry) ByIndex(db weave.ReadOnlyKVStore, index string, value []byte) ([]*Escrow, error) {
	keys, err := r.escrows.IndexKeys(db, index, value)
	if err != nil {
		return nil, err
	}
	return r.loadAll(db, keys)
}

// All returns every escrow, ordered by id.
func (r *Registry) All(db weave.ReadOnlyKVStore) ([]*Escrow, error) {
	keys, err := r.escrows.Keys(db)
	if err != nil {
		return nil, err
	}
	return r.loadAll(db, keys)
}

func (r *Registry) loadAll(db weave.ReadOnlyKVStore, keys [][]byte) ([]*Escrow, error) {
	res := make([]*Escrow, 0, len(keys))
	for _, k := range keys {
		e, err := r.Lookup(db, k)
		if err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, nil
}

// AppendEvent adds a transition to the history of its escrow.
func (r *Registry) AppendEvent(db weave.KVStore, ev *TransitionEvent) error {
	seq, err := r.events.NextVal(db)
	if err != nil {
		return err
	}
	key := make([]byte, 0, len(ev.EscrowID)+len(seq))
	key = append(key, ev.EscrowID...)
	key = append(key, seq...)
	return r.history.Put(db, key, ev)
}

// Events returns the transitions of an escrow in the order they happened.
func (r *Registry) Events(db weave.ReadOnlyKVStore, id []byte) ([]*TransitionEvent, error) {
	if err := orm.ValidateSequence(id); err != nil {
		return nil, errors.Wrap(err, "escrow id")
	}
	keys, err := r.history.KeysWithPrefix(db, id)
	if err != nil {
		return nil, err
	}
	res := make([]*TransitionEvent, 0, len(keys))
	for _, k := range keys {
		var ev TransitionEvent
		if err := r.history.One(db, k, &ev); err != nil {
			return nil, err
		}
		res = append(res, &ev)
	}
	return res, nil
}
