/*
Package events publishes events of committed blocks to subscribers.

The bus is a commit listener of the ledger. Delivery is asynchronous and
never blocks the ledger: a subscriber that does not keep up loses events
and each lost event is counted.
*/
package events

import (
	"bytes"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	weave "github.com/iov-one/escrowfactory"
	"github.com/iov-one/escrowfactory/app"
	"github.com/iov-one/escrowfactory/x/escrow"
	"github.com/prometheus/client_golang/prometheus"
)

// Message is a single event together with the block that emitted it.
type Message struct {
	Height int64       `json:"height"`
	Time   time.Time   `json:"time"`
	TxHash []byte      `json:"tx_hash"`
	Path   string      `json:"path"`
	Event  weave.Event `json:"event"`
}

// Filter decides if a message is delivered to a subscriber.
type Filter func(Message) bool

// All accepts every message.
func All(Message) bool { return true }

// ByPath accepts messages whose event path starts with given prefix.
func ByPath(prefix string) Filter {
	return func(m Message) bool {
		return strings.HasPrefix(m.Path, prefix)
	}
}

// ByEscrow accepts transitions of a single escrow.
func ByEscrow(id []byte) Filter {
	return func(m Message) bool {
		ev, ok := m.Event.(*escrow.TransitionEvent)
		return ok && bytes.Equal(ev.EscrowID, id)
	}
}

// Bus fans out committed events.
type Bus struct {
	mu      sync.Mutex
	subs    map[*Subscription]struct{}
	buffer  int
	lost    uint64
	dropped prometheus.Counter
}

var _ app.CommitListener = (*Bus)(nil)

// NewBus returns a bus that buffers up to given number of messages per
// subscriber. If reg is not nil, the lost messages counter is registered
// with it.
func NewBus(buffer int, reg prometheus.Registerer) *Bus {
	if buffer < 1 {
		buffer = 1
	}
	b := &Bus{
		subs:   make(map[*Subscription]struct{}),
		buffer: buffer,
		dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "escrowd",
			Subsystem: "events",
			Name:      "dropped_total",
			Help:      "Events not delivered because a subscriber buffer was full.",
		}),
	}
	if reg != nil {
		reg.MustRegister(b.dropped)
	}
	return b
}

// Subscription receives messages accepted by its filter on C. C is closed
// when the subscription is cancelled.
type Subscription struct {
	C      <-chan Message
	ch     chan Message
	filter Filter
	bus    *Bus
}

// Subscribe registers a new subscriber. A nil filter accepts all
// messages.
func (b *Bus) Subscribe(filter Filter) *Subscription {
	if filter == nil {
		filter = All
	}
	ch := make(chan Message, b.buffer)
	s := &Subscription{C: ch, ch: ch, filter: filter, bus: b}

	b.mu.Lock()
	b.subs[s] = struct{}{}
	b.mu.Unlock()
	return s
}

// Cancel removes the subscription from the bus and closes its channel.
// It is safe to call more than once.
func (s *Subscription) Cancel() {
	b := s.bus
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subs[s]; !ok {
		return
	}
	delete(b.subs, s)
	close(s.ch)
}

// Subscribers returns the number of active subscriptions.
func (b *Bus) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Dropped returns how many messages were lost so far.
func (b *Bus) Dropped() uint64 {
	return atomic.LoadUint64(&b.lost)
}

// Publish delivers a message to every subscriber whose filter accepts it.
func (b *Bus) Publish(m Message) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for s := range b.subs {
		if !s.filter(m) {
			continue
		}
		select {
		case s.ch <- m:
		default:
			atomic.AddUint64(&b.lost, 1)
			b.dropped.Inc()
		}
	}
}

// OnCommit publishes all events of a block, in emission order.
func (b *Bus) OnCommit(ctx weave.Context, block app.Block) error {
	for _, ev := range block.Events {
		b.Publish(Message{
			Height: block.Height,
			Time:   block.Time,
			TxHash: block.TxHash,
			Path:   ev.EventPath(),
			Event:  ev,
		})
	}
	if n := b.Dropped(); n > 0 {
		weave.GetLogger(ctx).Debug("events dropped", "total", n)
	}
	return nil
}
