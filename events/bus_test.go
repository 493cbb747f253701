package events

import (
	"context"
	"testing"
	"time"

	weave "github.com/iov-one/escrowfactory"
	"github.com/iov-one/escrowfactory/app"
	"github.com/iov-one/escrowfactory/weavetest"
	"github.com/iov-one/escrowfactory/x/escrow"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func transition(id uint64, to escrow.State) *escrow.TransitionEvent {
	return &escrow.TransitionEvent{
		EscrowID: weavetest.SequenceID(id),
		From:     escrow.StateCreated,
		To:       to,
		Action:   escrow.ActionFund,
	}
}

func TestBusDelivery(t *testing.T) {
	bus := NewBus(4, prometheus.NewRegistry())
	all := bus.Subscribe(nil)
	one := bus.Subscribe(ByEscrow(weavetest.SequenceID(2)))
	none := bus.Subscribe(ByPath("cash/"))
	require.Equal(t, 3, bus.Subscribers())

	now := time.Now().UTC()
	block := app.Block{
		Height: 7,
		Time:   now,
		TxHash: []byte{0xAB},
		Events: []weave.Event{transition(1, escrow.StateFunded), transition(2, escrow.StateFunded)},
	}
	require.NoError(t, bus.OnCommit(context.Background(), block))

	first := <-all.C
	assert.Equal(t, int64(7), first.Height)
	assert.Equal(t, "escrow/transition", first.Path)
	assert.Equal(t, weavetest.SequenceID(1), first.Event.(*escrow.TransitionEvent).EscrowID)
	second := <-all.C
	assert.Equal(t, weavetest.SequenceID(2), second.Event.(*escrow.TransitionEvent).EscrowID)

	got := <-one.C
	assert.Equal(t, weavetest.SequenceID(2), got.Event.(*escrow.TransitionEvent).EscrowID)
	assert.Len(t, one.C, 0)
	assert.Len(t, none.C, 0)
	assert.Zero(t, bus.Dropped())
}

func TestBusDropsForSlowSubscriber(t *testing.T) {
	bus := NewBus(1, nil)
	slow := bus.Subscribe(All)

	for i := uint64(1); i <= 3; i++ {
		bus.Publish(Message{Path: "escrow/transition", Event: transition(i, escrow.StateFunded)})
	}
	assert.Equal(t, uint64(2), bus.Dropped())

	m := <-slow.C
	assert.Equal(t, weavetest.SequenceID(1), m.Event.(*escrow.TransitionEvent).EscrowID)
}

func TestSubscriptionCancel(t *testing.T) {
	bus := NewBus(2, nil)
	s := bus.Subscribe(All)
	s.Cancel()
	s.Cancel()

	_, ok := <-s.C
	assert.False(t, ok, "channel must be closed")
	assert.Equal(t, 0, bus.Subscribers())

	// publishing with no subscribers is a no-op
	bus.Publish(Message{Path: "escrow/transition"})
	assert.Zero(t, bus.Dropped())
}
