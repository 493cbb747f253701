package cash

import (
	"github.com/gogo/protobuf/proto"
	weave "github.com/iov-one/escrowfactory"
	"github.com/iov-one/escrowfactory/coin"
	"github.com/iov-one/escrowfactory/errors"
	"github.com/iov-one/escrowfactory/orm"
)

// BucketName is where we store the balances
const BucketName = "cash"

// Set is the content of a wallet. Coins are kept in normalized form.
type Set struct {
	Coins []*coin.Coin `protobuf:"bytes,1,rep,name=coins" json:"coins,omitempty"`
}

func (m *Set) Reset()         { *m = Set{} }
func (m *Set) String() string { return proto.CompactTextString(m) }
func (*Set) ProtoMessage()    {}

var _ orm.Model = (*Set)(nil)

// Validate requires that all coins are in alphabetical order and none is
// negative.
func (s *Set) Validate() error {
	cs := coin.Coins(s.Coins)
	if err := cs.Validate(); err != nil {
		return err
	}
	if !cs.IsNonNegative() {
		return errors.Wrap(errors.ErrAmount, "negative balance")
	}
	return nil
}

// Bucket is a type-safe wrapper around orm.Bucket. Wallets are stored under
// the owner address.
type Bucket struct {
	orm.Bucket
}

// NewBucket initializes a cash.Bucket with default name
func NewBucket() Bucket {
	return Bucket{
		Bucket: orm.NewBucket(BucketName, &Set{}),
	}
}

// Balance returns all coins held by the address. An address that was never
// funded holds nothing and is not an error.
func (b Bucket) Balance(db weave.ReadOnlyKVStore, addr weave.Address) (coin.Coins, error) {
	var set Set
	switch err := b.One(db, addr, &set); {
	case err == nil:
		return coin.Coins(set.Coins), nil
	case errors.ErrNotFound.Is(err):
		return nil, nil
	default:
		return nil, err
	}
}

// Save stores the coins of given address. An empty wallet is removed.
func (b Bucket) Save(db weave.KVStore, addr weave.Address, coins coin.Coins) error {
	if err := addr.Validate(); err != nil {
		return errors.Wrap(err, "wallet address")
	}
	if coins.IsEmpty() {
		ok, err := b.Has(db, addr)
		if err != nil || !ok {
			return err
		}
		return b.Delete(db, addr)
	}
	return b.Put(db, addr, &Set{Coins: coins})
}
