package threadstate

import (
	"errors"
	"fmt"
	"sync"
)

// ErrIncompleteDispatch is returned when a state would have no handler
// and no default was given.
var ErrIncompleteDispatch = errors.New("threadstate: state has no handler and no default was given")

// ErrNilDispatch is returned when SetDispatch is given a nil dispatch.
var ErrNilDispatch = errors.New("threadstate: dispatch must not be nil")

// ErrForeignDispatch is returned when SetDispatch is given a dispatch
// built from a different State.
var ErrForeignDispatch = errors.New("threadstate: dispatch belongs to a different state")

// Dispatch routes calls to a handler chosen by the calling goroutine's
// current state. The table is complete: every declared state has a
// handler, either its own or the default captured at construction.
type Dispatch struct {
	state *State

	mu    sync.RWMutex
	table map[string]Handler
}

// Dispatch builds a dispatcher over this State. byState maps state
// names to handlers; states not named there fall back to def. A nil
// def with a missing state is an error, as is a name not declared on
// the State.
func (s *State) Dispatch(def Handler, byState map[string]Handler) (*Dispatch, error) {
	for name, h := range byState {
		if _, ok := s.index[name]; !ok {
			return nil, fmt.Errorf("%w: %q not in %v", ErrUnknownState, name, s.names)
		}
		if h == nil {
			return nil, fmt.Errorf("%w: state %q", ErrNilHandler, name)
		}
	}
	table := make(map[string]Handler, len(s.names))
	for _, name := range s.names {
		h, ok := byState[name]
		if !ok {
			if def == nil {
				return nil, fmt.Errorf("%w: %q", ErrIncompleteDispatch, name)
			}
			h = def
		}
		table[name] = h
	}
	return &Dispatch{state: s, table: table}, nil
}

// Call routes to the handler registered for the calling goroutine's
// current state. The lookup happens at call time, so a state switch
// or a SetDispatch between calls is observed.
func (d *Dispatch) Call(args ...any) (any, error) {
	d.mu.RLock()
	h := d.table[d.state.Value()]
	d.mu.RUnlock()
	return h(args...)
}

// Table returns the dispatcher's backing table. The map is shared with
// the dispatcher, so entries replaced by a later SetDispatch are
// visible through it. Callers must not mutate it directly.
func (d *Dispatch) Table() map[string]Handler {
	return d.table
}

// State returns the State this dispatcher routes on.
func (d *Dispatch) State() *State {
	return d.state
}

// SetDispatch replaces handlers for the named states in d's table.
// States not named keep their current handler; the table stays
// complete throughout.
func (s *State) SetDispatch(d *Dispatch, byState map[string]Handler) error {
	if d == nil {
		return ErrNilDispatch
	}
	if d.state != s {
		return ErrForeignDispatch
	}
	for name, h := range byState {
		if _, ok := s.index[name]; !ok {
			return fmt.Errorf("%w: %q not in %v", ErrUnknownState, name, s.names)
		}
		if h == nil {
			return fmt.Errorf("%w: state %q", ErrNilHandler, name)
		}
	}
	d.mu.Lock()
	for name, h := range byState {
		d.table[name] = h
	}
	d.mu.Unlock()
	return nil
}

// MethodDispatch is a Dispatch whose handlers are unbound methods: the
// receiver is supplied at call time and prepended to the arguments.
type MethodDispatch struct {
	Dispatch
}

// MethodDispatch builds a method dispatcher over this State with the
// same table rules as Dispatch.
func (s *State) MethodDispatch(def Handler, byState map[string]Handler) (*MethodDispatch, error) {
	d, err := s.Dispatch(def, byState)
	if err != nil {
		return nil, err
	}
	return &MethodDispatch{Dispatch: Dispatch{state: d.state, table: d.table}}, nil
}

// Call routes to the current state's handler, passing recv as the
// handler's first argument.
func (m *MethodDispatch) Call(recv any, args ...any) (any, error) {
	m.mu.RLock()
	h := m.table[m.state.Value()]
	m.mu.RUnlock()
	return h(append([]any{recv}, args...)...)
}
