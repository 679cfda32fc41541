// Package threadstate provides named per-goroutine state registers and
// dispatchers that route calls on the calling goroutine's current
// state.
//
// A State is declared once with a fixed list of names; the first name
// is the default every goroutine starts in. Reads and writes touch only
// the calling goroutine, so no synchronization is needed around
// Select/SetValue. Dispatchers built from a State look the state up at
// call time, never at construction, which keeps routing live when
// handlers or state change underneath them.
package threadstate

import (
	"errors"
	"fmt"

	"github.com/timandy/routine"
)

// Handler is the callable shape dispatched on state.
type Handler func(args ...any) (any, error)

var (
	// ErrTooFewStates is returned when a State is declared with fewer
	// than two names.
	ErrTooFewStates = errors.New("threadstate: at least two state names are required")

	// ErrEmptyName is returned for a blank state name.
	ErrEmptyName = errors.New("threadstate: state name must not be empty")

	// ErrDuplicateState is returned when a name repeats in a declaration.
	ErrDuplicateState = errors.New("threadstate: state names must be distinct")

	// ErrUnknownState is returned when a name was not declared on the State.
	ErrUnknownState = errors.New("threadstate: unknown state name")

	// ErrNilHandler is returned when a nil handler is registered or wrapped.
	ErrNilHandler = errors.New("threadstate: handler must not be nil")
)

// State is a named per-goroutine register. The zero slot value is the
// default state, so goroutines that never selected anything read the
// first declared name.
type State struct {
	names []string
	index map[string]int
	slot  routine.ThreadLocal[int]
}

// New declares a State over the given names. The first name is the
// default. At least two distinct, non-empty names are required.
func New(names ...string) (*State, error) {
	if len(names) < 2 {
		return nil, fmt.Errorf("%w: got %d", ErrTooFewStates, len(names))
	}
	index := make(map[string]int, len(names))
	for i, name := range names {
		if name == "" {
			return nil, fmt.Errorf("%w: position %d", ErrEmptyName, i)
		}
		if _, dup := index[name]; dup {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateState, name)
		}
		index[name] = i
	}
	return &State{
		names: append([]string(nil), names...),
		index: index,
		slot:  routine.NewThreadLocal[int](),
	}, nil
}

// Names returns the declared state names in declaration order. The
// slice is a copy.
func (s *State) Names() []string {
	return append([]string(nil), s.names...)
}

// Default returns the default state name.
func (s *State) Default() string {
	return s.names[0]
}

// Value returns the calling goroutine's current state name.
func (s *State) Value() string {
	return s.names[s.slot.Get()]
}

// SetValue switches the calling goroutine to the named state.
func (s *State) SetValue(name string) error {
	i, ok := s.index[name]
	if !ok {
		return fmt.Errorf("%w: %q not in %v", ErrUnknownState, name, s.names)
	}
	s.slot.Set(i)
	return nil
}

// Select switches the calling goroutine to the named state and returns
// a function restoring the previous state. Used with defer it restores
// on every exit path, including panic:
//
//	restore, err := s.Select("replay")
//	if err != nil { ... }
//	defer restore()
func (s *State) Select(name string) (restore func(), err error) {
	i, ok := s.index[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q not in %v", ErrUnknownState, name, s.names)
	}
	prev := s.slot.Get()
	s.slot.Set(i)
	return func() { s.slot.Set(prev) }, nil
}

// Predicate returns a live predicate reporting whether the calling
// goroutine is currently in the named state.
func (s *State) Predicate(name string) (func() bool, error) {
	i, ok := s.index[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q not in %v", ErrUnknownState, name, s.names)
	}
	return func() bool { return s.slot.Get() == i }, nil
}

// Wrap returns a handler that runs f with the calling goroutine
// switched to the named state, restoring the previous state afterward.
func (s *State) Wrap(name string, f Handler) (Handler, error) {
	if f == nil {
		return nil, ErrNilHandler
	}
	i, ok := s.index[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q not in %v", ErrUnknownState, name, s.names)
	}
	return func(args ...any) (any, error) {
		prev := s.slot.Get()
		s.slot.Set(i)
		defer s.slot.Set(prev)
		return f(args...)
	}, nil
}
