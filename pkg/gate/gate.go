// Package gate implements per-goroutine interception of function calls.
//
// A Gate is a process-wide object holding one executor slot per
// goroutine. Call sites are bound once with Bind; when the calling
// goroutine has no effective executor the bound call passes straight
// through to its target, otherwise the executor receives the target and
// the arguments and decides what actually runs. Record/replay tooling
// layers on top: a recorder forwards and logs, a replayer short-circuits
// with captured results.
package gate

import (
	"errors"
	"reflect"

	"github.com/timandy/routine"
)

// Target is an opaque callable supplied by the embedder. The gate never
// inspects it beyond calling it.
type Target func(args ...any) (any, error)

// Executor intercepts a call to a bound target. It may forward to the
// target, rewrite the arguments first, or skip the target entirely and
// return its own result. Errors it returns propagate to the bound
// caller unchanged.
type Executor func(target Target, args ...any) (any, error)

// Predicate reports whether a gate condition currently holds for the
// calling goroutine. Evaluation is live, not a snapshot.
type Predicate func() bool

// ErrNilTarget is returned when a nil callable is bound or applied.
var ErrNilTarget = errors.New("gate: target must not be nil")

// Gate holds one optional executor per goroutine plus an optional
// process-wide default. The default is fixed at construction and read
// concurrently by every goroutine; there is deliberately no setter for
// it after New returns.
type Gate struct {
	def  Executor
	slot routine.ThreadLocal[Executor]
}

// Option configures a Gate at construction.
type Option func(*Gate)

// WithDefault installs a process-wide fallback executor, used by any
// goroutine that has not set its own.
func WithDefault(def Executor) Option {
	return func(g *Gate) { g.def = def }
}

// New constructs a Gate. Without options the gate starts disabled on
// every goroutine.
func New(opts ...Option) *Gate {
	g := &Gate{slot: routine.NewThreadLocal[Executor]()}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Executor returns the calling goroutine's effective executor: the
// explicitly set one if any, else the construction default, else nil.
func (g *Gate) Executor() Executor {
	if e := g.slot.Get(); e != nil {
		return e
	}
	return g.def
}

// IsSet reports whether the calling goroutine has an effective executor.
func (g *Gate) IsSet() bool {
	return g.Executor() != nil
}

// Set installs an executor for the calling goroutine only. A nil
// executor clears the goroutine's override, falling back to the default
// if one was configured.
func (g *Gate) Set(e Executor) {
	if e == nil {
		g.slot.Remove()
		return
	}
	g.slot.Set(e)
}

// Disable is Set(nil).
func (g *Gate) Disable() {
	g.Set(nil)
}

// Install sets the calling goroutine's executor and returns a function
// restoring the previous setting. Used with defer it restores on every
// exit path, including panic, and nests LIFO per goroutine:
//
//	defer g.Install(executor)()
func (g *Gate) Install(e Executor) (restore func()) {
	prev := g.slot.Get()
	g.Set(e)
	return func() { g.Set(prev) }
}

// Bind pairs this gate with a fixed target, returning the callable the
// embedder places at the instrumented call site.
func (g *Gate) Bind(target Target) (*BoundGate, error) {
	if target == nil {
		return nil, ErrNilTarget
	}
	return &BoundGate{gate: g, target: target}, nil
}

// Test returns a live predicate reporting whether the gate's effective
// executor for the calling goroutine is the given candidate. Identity
// is function code-pointer identity, so two distinct closures over the
// same function literal compare equal. A nil candidate matches a
// disabled gate.
func (g *Gate) Test(candidate Executor) Predicate {
	want := funcPointer(candidate)
	return func() bool {
		return funcPointer(g.Executor()) == want
	}
}

func funcPointer(e Executor) uintptr {
	if e == nil {
		return 0
	}
	return reflect.ValueOf(e).Pointer()
}

// BoundGate is a gate paired with one fixed target. Many BoundGates may
// share a gate and all observe its per-goroutine state.
type BoundGate struct {
	gate   *Gate
	target Target
}

// Call invokes the target, routed through the calling goroutine's
// effective executor when one is set. With the gate disabled this is a
// direct passthrough.
func (b *BoundGate) Call(args ...any) (any, error) {
	if e := b.gate.Executor(); e != nil {
		return e(b.target, args...)
	}
	return b.target(args...)
}

// Target returns the bound callable.
func (b *BoundGate) Target() Target {
	return b.target
}

// Gate returns the gate this binding routes through.
func (b *BoundGate) Gate() *Gate {
	return b.gate
}
