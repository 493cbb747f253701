package weavetest

import (
	"crypto/rand"
	"encoding/binary"
	"testing"

	"github.com/gogo/protobuf/proto"
	weave "github.com/iov-one/escrowfactory"
	"github.com/iov-one/escrowfactory/store/iavl"
)

// Handler is a mock implementation of the weave.Handler interface.
//
// Each method call is counted. When Write is set, the key/value pair is
// stored before the result is returned, regardless of the error.
type Handler struct {
	checkCall   int
	CheckResult weave.CheckResult
	CheckErr    error

	deliverCall   int
	DeliverResult weave.DeliverResult
	DeliverErr    error

	// Write if set is written to the store by Deliver.
	Write *KV
}

// KV is a key/value pair.
type KV struct {
	Key, Value []byte
}

var _ weave.Handler = (*Handler)(nil)

func (h *Handler) Check(ctx weave.Context, db weave.KVStore, tx weave.Tx) (*weave.CheckResult, error) {
	h.checkCall++
	res := h.CheckResult
	return &res, h.CheckErr
}

func (h *Handler) Deliver(ctx weave.Context, db weave.KVStore, tx weave.Tx) (*weave.DeliverResult, error) {
	h.deliverCall++
	if h.Write != nil {
		if err := db.Set(h.Write.Key, h.Write.Value); err != nil {
			return nil, err
		}
	}
	res := h.DeliverResult
	return &res, h.DeliverErr
}

func (h *Handler) CheckCallCount() int   { return h.checkCall }
func (h *Handler) DeliverCallCount() int { return h.deliverCall }
func (h *Handler) CallCount() int        { return h.checkCall + h.deliverCall }

// Decorator is a mock implementation of the weave.Decorator interface.
//
// Set CheckErr or DeliverErr to force error response for corresponding method.
// If error attributes are not set then wrapped handler method is called and
// its result returned.
type Decorator struct {
	checkCall int
	CheckErr  error

	deliverCall int
	DeliverErr  error
}

var _ weave.Decorator = (*Decorator)(nil)

func (d *Decorator) Check(ctx weave.Context, db weave.KVStore, tx weave.Tx, next weave.Checker) (*weave.CheckResult, error) {
	d.checkCall++
	if d.CheckErr != nil {
		return nil, d.CheckErr
	}
	return next.Check(ctx, db, tx)
}

func (d *Decorator) Deliver(ctx weave.Context, db weave.KVStore, tx weave.Tx, next weave.Deliverer) (*weave.DeliverResult, error) {
	d.deliverCall++
	if d.DeliverErr != nil {
		return nil, d.DeliverErr
	}
	return next.Deliver(ctx, db, tx)
}

func (d *Decorator) CheckCallCount() int   { return d.checkCall }
func (d *Decorator) DeliverCallCount() int { return d.deliverCall }

// Decorate wraps the handler with a single decorator.
func Decorate(h weave.Handler, d weave.Decorator) weave.Handler {
	return &decoratedHandler{hn: h, dc: d}
}

type decoratedHandler struct {
	hn weave.Handler
	dc weave.Decorator
}

func (d *decoratedHandler) Check(ctx weave.Context, db weave.KVStore, tx weave.Tx) (*weave.CheckResult, error) {
	return d.dc.Check(ctx, db, tx, d.hn)
}

func (d *decoratedHandler) Deliver(ctx weave.Context, db weave.KVStore, tx weave.Tx) (*weave.DeliverResult, error) {
	return d.dc.Deliver(ctx, db, tx, d.hn)
}

// Tx is a transaction carrying a single message.
type Tx struct {
	Msg weave.Msg
	// Err if set is returned by GetMsg.
	Err error
}

var _ weave.Tx = (*Tx)(nil)

func (tx *Tx) GetMsg() (weave.Msg, error) { return tx.Msg, tx.Err }
func (tx *Tx) Reset()                     { *tx = Tx{} }
func (tx *Tx) String() string             { return "weavetest.Tx" }
func (*Tx) ProtoMessage()                 {}

// Msg is a message routed by its RoutePath.
type Msg struct {
	RoutePath string `protobuf:"bytes,1,opt,name=route_path,proto3" json:"route_path,omitempty"`
	// Err if set is returned by Validate.
	Err error
}

var _ weave.Msg = (*Msg)(nil)

func (m *Msg) Path() string    { return m.RoutePath }
func (m *Msg) Validate() error { return m.Err }
func (m *Msg) Reset()          { *m = Msg{} }
func (m *Msg) String() string  { return proto.CompactTextString(m) }
func (*Msg) ProtoMessage()     {}

// CommitKVStore returns an iavl store that is using a filesystem backend, the
// same engine production instances are using. The data is removed when the
// test ends.
func CommitKVStore(t testing.TB) *iavl.CommitStore {
	t.Helper()
	db, err := iavl.NewCommitStore(t.TempDir(), "db")
	if err != nil {
		t.Fatalf("cannot create commit store: %s", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// RandomAddr returns a valid random weave address generated on the fly.
func RandomAddr(t testing.TB) weave.Address {
	t.Helper()
	raw := make([]byte, weave.AddressLength)
	if _, err := rand.Read(raw); err != nil {
		t.Fatalf("cannot generate a random address: %s", err)
	}
	return weave.Address(raw)
}

// SequenceID returns the big endian encoding of n, the format sequence
// values are stored in.
func SequenceID(n uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, n)
	return b
}
