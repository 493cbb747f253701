package server

import (
	"context"
	"flag"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	weave "github.com/iov-one/escrowfactory"
	"github.com/iov-one/escrowfactory/app"
	"github.com/iov-one/escrowfactory/errors"
	"github.com/iov-one/escrowfactory/events"
	"github.com/iov-one/escrowfactory/httpapi"
	"github.com/iov-one/escrowfactory/indexer"
	"github.com/iov-one/escrowfactory/store/iavl"
	"github.com/iov-one/escrowfactory/x/cash"
	"github.com/iov-one/escrowfactory/x/escrow"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/tendermint/tendermint/libs/log"
)

const (
	flagBind  = "bind"
	flagDebug = "debug"
)

// Application is what the daemon needs to run a ledger.
type Application struct {
	// Store opens the commit store at given path. An empty path is a
	// memory store.
	Store       func(path string) (*iavl.CommitStore, error)
	Ledger      func(kv weave.CommitKVStore, m *app.Metrics, opts ...app.LedgerOption) (*app.Ledger, error)
	Initializer weave.Initializer
	Factory     *escrow.Factory
	Bank        cash.Controller
}

// StartCmd runs the ledger and its HTTP gateway until the process is
// interrupted. Log output goes to out and to the configured log file.
func StartCmd(a Application, out io.Writer, home string, args []string) error {
	conf, err := LoadConfig(home)
	if err != nil {
		return err
	}
	fs := flag.NewFlagSet("start", flag.ContinueOnError)
	fs.StringVar(&conf.Bind, flagBind, conf.Bind, "address the gateway listens on")
	fs.BoolVar(&conf.Debug, flagDebug, conf.Debug, "call stack returned on error")
	if err := fs.Parse(args); err != nil {
		return errors.Wrap(errors.ErrInput, err.Error())
	}

	logger, closer, err := NewLogger(conf.Log, out)
	if err != nil {
		return err
	}
	defer closer.Close()
	logger = logger.With("module", "escrowd")

	node, err := NewNode(a, conf, logger)
	if err != nil {
		return err
	}
	defer node.Close()

	l, err := net.Listen("tcp", conf.Bind)
	if err != nil {
		return errors.Wrapf(errors.ErrNetwork, "listen %s: %s", conf.Bind, err)
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return node.Serve(ctx, l)
}

// Node is a running ledger with its listeners and gateway.
type Node struct {
	Ledger *app.Ledger
	Bus    *events.Bus

	store   *iavl.CommitStore
	index   *indexer.Store
	handler http.Handler
	logger  log.Logger
}

// NewNode opens the store and the index, initializes the chain from the
// genesis file if it was never started and wires the gateway.
func NewNode(a Application, conf *Config, logger log.Logger) (*Node, error) {
	kv, err := a.Store(conf.storePath())
	if err != nil {
		return nil, errors.Wrap(err, "open store")
	}
	n := &Node{store: kv, logger: logger}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)
	metrics := app.NewMetrics(reg)
	n.Bus = events.NewBus(conf.EventBuffer, reg)

	listeners := []app.CommitListener{n.Bus}
	if conf.IndexPath != "" {
		n.index, err = indexer.Open(conf.IndexPath)
		if err != nil {
			n.Close()
			return nil, err
		}
		listeners = append(listeners, n.index)
	}

	n.Ledger, err = a.Ledger(kv, metrics,
		app.WithLedgerLogger(logger.With("module", "ledger")),
		app.WithDebug(conf.Debug),
		app.WithCommitListeners(listeners...))
	if err != nil {
		n.Close()
		return nil, err
	}
	if n.Ledger.ChainID() == "" {
		gen, err := app.LoadGenesis(conf.Genesis)
		if err != nil {
			n.Close()
			return nil, err
		}
		if err := n.Ledger.InitChain(gen, a.Initializer); err != nil {
			n.Close()
			return nil, err
		}
	}

	if n.index != nil {
		if err := n.catchUpIndex(a.Factory.Registry()); err != nil {
			n.Close()
			return nil, err
		}
	}

	n.handler = httpapi.NewRouter(httpapi.Config{
		Ledger:   n.Ledger,
		Factory:  a.Factory,
		Bank:     a.Bank,
		Index:    n.index,
		Bus:      n.Bus,
		Gatherer: reg,
		Logger:   logger.With("module", "http"),
	})
	return n, nil
}

// catchUpIndex fills an empty index from the escrow history, so that
// escrows loaded from genesis or committed while indexing was disabled can
// be queried.
func (n *Node) catchUpIndex(registry *escrow.Registry) error {
	count, err := n.index.Count()
	if err != nil {
		return err
	}
	if count != 0 {
		return nil
	}
	return n.Ledger.View(func(db weave.ReadOnlyKVStore) error {
		rows, err := n.index.Rebuild(db, registry)
		if err != nil {
			return err
		}
		if rows != 0 {
			n.logger.Info("index rebuilt", "transitions", rows)
		}
		return nil
	})
}

// Handler returns the HTTP gateway of the node.
func (n *Node) Handler() http.Handler {
	return n.handler
}

// Serve accepts gateway connections on l until the context is cancelled,
// then waits for running requests to finish.
func (n *Node) Serve(ctx context.Context, l net.Listener) error {
	srv := &http.Server{
		Handler:           n.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() { errc <- srv.Serve(l) }()
	n.logger.Info("gateway started", "addr", l.Addr().String(), "chainID", n.Ledger.ChainID(), "height", n.Ledger.Height())

	select {
	case err := <-errc:
		return errors.Wrap(errors.ErrNetwork, err.Error())
	case <-ctx.Done():
	}
	n.logger.Info("shutting down")
	shutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdown); err != nil {
		return errors.Wrap(errors.ErrNetwork, err.Error())
	}
	return nil
}

// Close releases the store and the index.
func (n *Node) Close() {
	if n.index != nil {
		if err := n.index.Close(); err != nil {
			n.logger.Error("close index", "err", err)
		}
	}
	n.store.Close()
}
