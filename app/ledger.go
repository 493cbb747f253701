package app

import (
	"context"
	"sync"
	"time"

	weave "github.com/iov-one/escrowfactory"
	"github.com/iov-one/escrowfactory/errors"
	"github.com/tendermint/tendermint/crypto/tmhash"
	"github.com/tendermint/tendermint/libs/log"
)

// TxResult is the outcome of a submitted transaction. A non zero code means
// the transaction was rejected and no state was changed.
type TxResult struct {
	Code   uint32        `json:"code"`
	Log    string        `json:"log,omitempty"`
	Data   []byte        `json:"data,omitempty"`
	Height int64         `json:"height,omitempty"`
	Hash   []byte        `json:"hash"`
	Events []weave.Event `json:"-"`
}

// IsOK returns true if the transaction was accepted.
func (r *TxResult) IsOK() bool {
	return r.Code == 0
}

// Block describes a committed state transition. The ledger executes a
// single transaction per block.
type Block struct {
	Height int64
	Time   time.Time
	TxHash []byte
	Events []weave.Event
}

// CommitListener is notified after each block is committed. An error is
// logged and cannot revert the block.
type CommitListener interface {
	OnCommit(ctx weave.Context, block Block) error
}

// CommitListenerFunc adapts a function to the CommitListener interface.
type CommitListenerFunc func(weave.Context, Block) error

func (fn CommitListenerFunc) OnCommit(ctx weave.Context, b Block) error { return fn(ctx, b) }

// Ledger executes transactions against a commit store. Every call is
// serialized, so the ledger is safe for concurrent use.
type Ledger struct {
	mu        sync.Mutex
	store     *CommitStore
	decoder   weave.TxDecoder
	handler   weave.Handler
	chainID   string
	lastTime  time.Time
	now       func() time.Time
	logger    log.Logger
	listeners []CommitListener
	debug     bool
}

// LedgerOption configures a ledger.
type LedgerOption func(*Ledger)

// WithClock sets the source of block time. Defaults to time.Now.
func WithClock(now func() time.Time) LedgerOption {
	return func(l *Ledger) { l.now = now }
}

// WithLedgerLogger sets the logger passed to the handlers.
func WithLedgerLogger(logger log.Logger) LedgerOption {
	return func(l *Ledger) { l.logger = logger }
}

// WithCommitListeners registers listeners called after each commit, in
// given order.
func WithCommitListeners(ls ...CommitListener) LedgerOption {
	return func(l *Ledger) { l.listeners = append(l.listeners, ls...) }
}

// WithDebug includes stack traces in the log of failed transactions.
func WithDebug(debug bool) LedgerOption {
	return func(l *Ledger) { l.debug = debug }
}

// NewLedger loads the latest state of given store. A store that was
// initialized before keeps its chain id.
func NewLedger(kv weave.CommitKVStore, decoder weave.TxDecoder, h weave.Handler, opts ...LedgerOption) (*Ledger, error) {
	cs, err := NewCommitStore(kv)
	if err != nil {
		return nil, errors.Wrap(err, "load store")
	}
	chainID, err := loadChainID(cs.Committed())
	if err != nil {
		return nil, err
	}
	lastTime, err := loadBlockTime(cs.Committed())
	if err != nil {
		return nil, err
	}
	l := &Ledger{
		store:    cs,
		decoder:  decoder,
		handler:  h,
		chainID:  chainID,
		lastTime: lastTime,
		now:      time.Now,
		logger:   weave.DefaultLogger,
	}
	for _, o := range opts {
		o(l)
	}
	return l, nil
}

// InitChain stores the chain id and loads the genesis state of all
// extensions. It can be called only once per store.
func (l *Ledger) InitChain(gen *Genesis, init weave.Initializer) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.chainID != "" {
		return errors.Wrapf(errors.ErrState, "chain %q already initialized", l.chainID)
	}
	if err := gen.Validate(); err != nil {
		return errors.Wrap(err, "genesis")
	}
	blockTime := gen.GenesisTime
	if blockTime.IsZero() {
		blockTime = l.blockTime()
	}
	height := l.nextHeight()
	ctx := weave.WithChainID(context.Background(), gen.ChainID)
	ctx = l.blockContext(ctx, height, blockTime)

	db := l.store.DeliverStore().CacheWrap()
	if err := saveChainID(db, gen.ChainID); err != nil {
		db.Discard()
		return err
	}
	if err := init.FromGenesis(ctx, gen.AppState, db); err != nil {
		db.Discard()
		return errors.Wrap(err, "init genesis")
	}
	if err := saveBlockTime(db, blockTime); err != nil {
		db.Discard()
		return err
	}
	if err := db.Write(); err != nil {
		return errors.Wrap(errors.ErrDatabase, err.Error())
	}
	if _, err := l.store.Commit(); err != nil {
		return err
	}
	l.chainID = gen.ChainID
	l.lastTime = blockTime.UTC()
	l.logger.Info("chain initialized", "chainID", gen.ChainID, "height", height)
	return nil
}

// Submit decodes and delivers a single transaction. A rejected transaction
// gives a result with a non zero code and leaves the state unchanged. An
// error is returned only if the ledger itself could not operate.
func (l *Ledger) Submit(ctx context.Context, raw []byte) (*TxResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.chainID == "" {
		return nil, errors.Wrap(errors.ErrState, "chain not initialized")
	}
	hash := tmhash.Sum(raw)
	tx, err := l.decoder(raw)
	if err != nil {
		return l.rejected(hash, err), nil
	}

	height := l.nextHeight()
	blockTime := l.blockTime()
	ctx = weave.WithChainID(ctx, l.chainID)
	ctx = l.blockContext(ctx, height, blockTime)

	db := l.store.DeliverStore().CacheWrap()
	res, err := l.handler.Deliver(ctx, db, tx)
	if err != nil {
		db.Discard()
		return l.rejected(hash, err), nil
	}
	if err := saveBlockTime(db, blockTime); err != nil {
		db.Discard()
		return nil, err
	}
	if err := db.Write(); err != nil {
		return nil, errors.Wrap(errors.ErrDatabase, err.Error())
	}
	id, err := l.store.Commit()
	if err != nil {
		return nil, err
	}
	l.lastTime = blockTime

	block := Block{
		Height: id.Version,
		Time:   blockTime,
		TxHash: hash,
		Events: res.Events,
	}
	for _, li := range l.listeners {
		if err := li.OnCommit(ctx, block); err != nil {
			l.logger.Error("commit listener failed", "height", id.Version, "err", err)
		}
	}
	return &TxResult{
		Log:    res.Log,
		Data:   res.Data,
		Height: id.Version,
		Hash:   hash,
		Events: res.Events,
	}, nil
}

// Check runs a transaction against the current state without persisting
// any change.
func (l *Ledger) Check(ctx context.Context, raw []byte) (*TxResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.chainID == "" {
		return nil, errors.Wrap(errors.ErrState, "chain not initialized")
	}
	hash := tmhash.Sum(raw)
	tx, err := l.decoder(raw)
	if err != nil {
		return l.rejected(hash, err), nil
	}

	ctx = weave.WithChainID(ctx, l.chainID)
	ctx = l.blockContext(ctx, l.nextHeight(), l.blockTime())

	db := l.store.CheckStore().CacheWrap()
	defer db.Discard()
	res, err := l.handler.Check(ctx, db, tx)
	if err != nil {
		return l.rejected(hash, err), nil
	}
	return &TxResult{Log: res.Log, Data: res.Data, Hash: hash}, nil
}

// View calls fn with the last committed state. No transaction is executed
// until fn returns.
func (l *Ledger) View(fn func(db weave.ReadOnlyKVStore) error) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return fn(l.store.Committed())
}

// Height returns the height of the last committed block.
func (l *Ledger) Height() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.nextHeight() - 1
}

// ChainID returns the chain id or an empty string if the chain was not
// initialized yet.
func (l *Ledger) ChainID() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.chainID
}

func (l *Ledger) nextHeight() int64 {
	info, err := l.store.CommitInfo()
	if err != nil {
		// iavl never fails here once the store is loaded
		panic(err)
	}
	return info.Version + 1
}

// blockTime returns the current clock time, but never earlier than the
// time of the last committed block.
func (l *Ledger) blockTime() time.Time {
	now := l.now().UTC()
	if now.Before(l.lastTime) {
		return l.lastTime
	}
	return now
}

func (l *Ledger) blockContext(ctx weave.Context, height int64, t time.Time) weave.Context {
	ctx = weave.WithHeight(ctx, height)
	ctx = weave.WithBlockTime(ctx, t)
	ctx = weave.WithLogger(ctx, l.logger)
	return weave.WithLogInfo(ctx, "height", height)
}

func (l *Ledger) rejected(hash []byte, err error) *TxResult {
	code, msg := errors.ABCIInfo(err, l.debug)
	l.logger.Info("tx rejected", "hash", hash, "code", code, "log", msg)
	return &TxResult{Code: code, Log: msg, Hash: hash}
}
