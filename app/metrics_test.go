package app

import (
	"context"
	"io"
	"net/http/httptest"
	"testing"

	weave "github.com/iov-one/escrowfactory"
	"github.com/iov-one/escrowfactory/errors"
	"github.com/iov-one/escrowfactory/store"
	"github.com/iov-one/escrowfactory/weavetest"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	ok := weavetest.Decorate(&weavetest.Handler{}, m)
	failing := weavetest.Decorate(&weavetest.Handler{DeliverErr: errors.ErrUnauthorized}, m)

	ctx := context.Background()
	db := store.MemStore()
	tx := &weavetest.Tx{Msg: &weavetest.Msg{RoutePath: "test/metric"}}

	_, err := ok.Check(ctx, db, tx)
	require.NoError(t, err)
	_, err = ok.Deliver(ctx, db, tx)
	require.NoError(t, err)
	_, err = failing.Deliver(ctx, db, tx)
	require.Error(t, err)

	require.NoError(t, m.OnCommit(ctx, Block{
		Height: 7,
		Events: []weave.Event{&pingEvent{}, &pingEvent{}},
	}))

	out := scrape(t, reg)
	assert.Contains(t, out, `escrowd_txs_total{code="0",path="test/metric",phase="check"} 1`)
	assert.Contains(t, out, `escrowd_txs_total{code="0",path="test/metric",phase="deliver"} 1`)
	assert.Contains(t, out, `escrowd_txs_total{code="2",path="test/metric",phase="deliver"} 1`)
	assert.Contains(t, out, `escrowd_tx_duration_seconds_count{path="test/metric",phase="deliver"} 2`)
	assert.Contains(t, out, `escrowd_events_total{path="test/ping"} 2`)
	assert.Contains(t, out, "escrowd_height 7")
}

func scrape(t testing.TB, g prometheus.Gatherer) string {
	t.Helper()
	rec := httptest.NewRecorder()
	promhttp.HandlerFor(g, promhttp.HandlerOpts{}).ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	return string(body)
}
