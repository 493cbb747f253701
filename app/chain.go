package app

import (
	"reflect"

	weave "github.com/iov-one/escrowfactory"
)

// Decorators is an ordered list of decorators waiting for the handler they
// wrap. The first decorator is the outermost one.
//
//	app.ChainDecorators(
//		app.NewLogging(),
//		app.NewRecovery(),
//		metrics,
//		sigs.NewDecorator(),
//	).WithHandler(router)
type Decorators struct {
	chain []weave.Decorator
}

// ChainDecorators returns a chain of given decorators. Nil values, including
// typed nil pointers such as a disabled *Metrics, are skipped.
func ChainDecorators(chain ...weave.Decorator) Decorators {
	return Decorators{}.Chain(chain...)
}

// Chain returns a copy of d extended with given decorators. The receiver is
// never modified, so a common prefix can be shared by several stacks.
func (d Decorators) Chain(chain ...weave.Decorator) Decorators {
	out := make([]weave.Decorator, 0, len(d.chain)+len(chain))
	out = append(out, d.chain...)
	for _, dec := range chain {
		if !isNilDecorator(dec) {
			out = append(out, dec)
		}
	}
	return Decorators{chain: out}
}

func isNilDecorator(d weave.Decorator) bool {
	if d == nil {
		return true
	}
	v := reflect.ValueOf(d)
	return v.Kind() == reflect.Ptr && v.IsNil()
}

// WithHandler returns a handler that runs every decorator of the chain, in
// order, before h.
func (d Decorators) WithHandler(h weave.Handler) weave.Handler {
	for i := len(d.chain) - 1; i >= 0; i-- {
		h = wrapped{dec: d.chain[i], next: h}
	}
	return h
}

// wrapped binds a decorator to the handler it calls next.
type wrapped struct {
	dec  weave.Decorator
	next weave.Handler
}

var _ weave.Handler = wrapped{}

func (w wrapped) Check(ctx weave.Context, db weave.KVStore, tx weave.Tx) (*weave.CheckResult, error) {
	return w.dec.Check(ctx, db, tx, w.next)
}

func (w wrapped) Deliver(ctx weave.Context, db weave.KVStore, tx weave.Tx) (*weave.DeliverResult, error) {
	return w.dec.Deliver(ctx, db, tx, w.next)
}
