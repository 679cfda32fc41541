package gate

import "sync"

// ApplyWith runs callables with a chosen executor installed on the
// gate for the duration of the call. The callable itself is invoked
// directly, not through the executor; only bound calls it makes
// underneath are routed. The executor slot is mutable, so a long-lived
// ApplyWith can switch modes between calls.
type ApplyWith struct {
	gate *Gate

	mu   sync.RWMutex
	exec Executor
}

// ApplyWith constructs an applier that installs e around each call.
func (g *Gate) ApplyWith(e Executor) *ApplyWith {
	return &ApplyWith{gate: g, exec: e}
}

// Executor returns the executor currently installed around calls.
func (a *ApplyWith) Executor() Executor {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.exec
}

// SetExecutor replaces the executor installed around future calls.
// In-flight calls keep the executor they started with.
func (a *ApplyWith) SetExecutor(e Executor) {
	a.mu.Lock()
	a.exec = e
	a.mu.Unlock()
}

// Call invokes f with the applier's executor installed on the calling
// goroutine, restoring the previous executor on every exit path.
func (a *ApplyWith) Call(f Target, args ...any) (any, error) {
	if f == nil {
		return nil, ErrNilTarget
	}
	defer a.gate.Install(a.Executor())()
	return f(args...)
}
