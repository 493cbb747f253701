/*
Package httpapi exposes the escrow ledger over HTTP.

Transactions are submitted as protobuf encoded bytes. All queries read the
last committed state and return JSON documents. Committed transitions can
be followed over a websocket connection.
*/
package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	weave "github.com/iov-one/escrowfactory"
	"github.com/iov-one/escrowfactory/app"
	"github.com/iov-one/escrowfactory/events"
	"github.com/iov-one/escrowfactory/indexer"
	"github.com/iov-one/escrowfactory/x/cash"
	"github.com/iov-one/escrowfactory/x/escrow"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/tendermint/tendermint/libs/log"
)

// maxTxSize limits the body of a submitted transaction.
const maxTxSize = 64 << 10

// Config holds the components the gateway serves. Index, Bus and
// Gatherer are optional, the routes depending on them respond with
// 503 when not set.
type Config struct {
	Ledger   *app.Ledger
	Factory  *escrow.Factory
	Bank     cash.Controller
	Index    *indexer.Store
	Bus      *events.Bus
	Gatherer prometheus.Gatherer
	Logger   log.Logger
}

type server struct {
	Config
}

// NewRouter returns the HTTP handler of the gateway.
func NewRouter(conf Config) http.Handler {
	if conf.Logger == nil {
		conf.Logger = weave.DefaultLogger
	}
	s := &server{Config: conf}

	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	r.Get("/healthz", s.healthz)
	r.Get("/factory", s.factory)
	r.Post("/tx", s.submitTx)
	r.Route("/escrows", func(r chi.Router) {
		r.Get("/", s.listEscrows)
		r.Get("/{id}", s.getEscrow)
		r.Get("/{id}/history", s.escrowHistory)
		r.Get("/{id}/events", s.escrowEvents)
	})
	r.Get("/wallets/{address}", s.wallet)
	r.Get("/signers/{address}", s.signer)
	r.Get("/events/ws", s.streamEvents)
	if conf.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(conf.Gatherer, promhttp.HandlerOpts{}))
	} else {
		r.Get("/metrics", unavailable)
	}
	return r
}

func (s *server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.Logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start))
	})
}

func unavailable(w http.ResponseWriter, r *http.Request) {
	JSONErr(w, http.StatusServiceUnavailable, "Not enabled.")
}
