// Package callable provides small composable callables used when
// wiring instrumentation: counters for generating sequence numbers,
// fan-out over handler lists, and observers that hook a callable's
// calls, results, and errors.
package callable

import (
	"errors"
	"sync/atomic"
)

// Handler is the common callable shape composed by this package.
type Handler func(args ...any) (any, error)

// ErrNilHandler is returned when a nil callable is composed.
var ErrNilHandler = errors.New("callable: handler must not be nil")

// Counter yields consecutive integers starting from an initial value.
// Safe for concurrent use.
type Counter struct {
	next atomic.Int64
}

// NewCounter constructs a Counter whose first Next returns initial.
func NewCounter(initial int64) *Counter {
	c := &Counter{}
	c.next.Store(initial)
	return c
}

// Next returns the current value and advances the counter.
func (c *Counter) Next() int64 {
	return c.next.Add(1) - 1
}

// Value returns the value the next call to Next will yield, without
// advancing.
func (c *Counter) Value() int64 {
	return c.next.Load()
}

// RunAll returns a handler that calls each fn in order with the same
// arguments, discarding results. The first error stops the run and is
// returned; otherwise the handler returns (nil, nil).
func RunAll(fns ...Handler) (Handler, error) {
	for _, fn := range fns {
		if fn == nil {
			return nil, ErrNilHandler
		}
	}
	return func(args ...any) (any, error) {
		for _, fn := range fns {
			if _, err := fn(args...); err != nil {
				return nil, err
			}
		}
		return nil, nil
	}, nil
}
