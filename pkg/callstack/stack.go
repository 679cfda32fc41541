// Package callstack captures goroutine call stacks as immutable linked
// snapshots that share structure with earlier captures.
//
// A snapshot is a chain of Stack nodes, one per frame, linked from the
// most recent call down to the bottom of the goroutine. Frames that
// were already present in the previous capture on the same goroutine
// are reused as the same nodes, so two snapshots taken close together
// share their common suffix and comparing positions is pointer
// equality. Indexes count from the bottom: the oldest frame is index 0
// and the head of a chain has the highest index.
package callstack

import (
	"errors"
	"fmt"
)

// ErrIndexOutOfRange is returned by Frame for an index outside the
// chain.
var ErrIndexOutOfRange = errors.New("callstack: frame index out of range")

// Stack is one captured call frame. Nodes are immutable after capture
// and compared by pointer identity.
type Stack struct {
	pc    uintptr
	entry uintptr
	fn    string
	file  string
	line  int
	index int
	next  *Stack
}

// FuncName returns the fully qualified function name of the frame.
func (s *Stack) FuncName() string { return s.fn }

// PC returns the program counter captured for the frame.
func (s *Stack) PC() uintptr { return s.pc }

// Entry returns the entry address of the frame's function.
func (s *Stack) Entry() uintptr { return s.entry }

// File returns the source file of the frame's call site.
func (s *Stack) File() string { return s.file }

// Line returns the source line of the frame's call site.
func (s *Stack) Line() int { return s.line }

// Instruction returns the frame's program counter relative to its
// function entry. Two frames in the same function at the same call
// site have equal Instruction values across captures.
func (s *Stack) Instruction() uintptr { return s.pc - s.entry }

// Index returns the frame's position counted from the bottom of the
// capture. The bottom frame is 0.
func (s *Stack) Index() int { return s.index }

// Next returns the frame's caller, or nil at the bottom of the chain.
func (s *Stack) Next() *Stack { return s.next }

// Len returns the number of frames in the chain headed by s.
func (s *Stack) Len() int { return s.index + 1 }

// Frame returns the frame at index i. Negative indexes count from the
// head, so -1 is s itself and -Len() is the bottom frame.
func (s *Stack) Frame(i int) (*Stack, error) {
	idx := i
	if idx < 0 {
		idx += s.Len()
	}
	if idx < 0 || idx > s.index {
		return nil, fmt.Errorf("%w: %d of %d", ErrIndexOutOfRange, i, s.Len())
	}
	cur := s
	for cur.index != idx {
		cur = cur.next
	}
	return cur, nil
}

// Location is a source position.
type Location struct {
	File string
	Line int
}

// Locations returns the chain's source positions ordered from the
// bottom frame to the most recent one.
func (s *Stack) Locations() []Location {
	locs := make([]Location, s.Len())
	for cur := s; cur != nil; cur = cur.next {
		locs[cur.index] = Location{File: cur.file, Line: cur.line}
	}
	return locs
}

// String renders the head frame compactly.
func (s *Stack) String() string {
	return fmt.Sprintf("%s (%s:%d) [%d/%d]", s.fn, s.file, s.line, s.index, s.Len())
}

// ChangesFrom describes how to get from other to s: pop frames off
// other, then push add. add is ordered oldest first, the order the
// frames were entered. A nil other yields (0, every frame of s); equal
// chains yield (0, nil). Shared nodes are found by pointer identity,
// so both chains should come from the same factory and goroutine for
// the deltas to be minimal.
func (s *Stack) ChangesFrom(other *Stack) (pop int, add []*Stack) {
	if s == other {
		return 0, nil
	}
	a, b := s, other
	for a != nil && (b == nil || a.index > b.index) {
		add = append(add, a)
		a = a.next
	}
	for b != nil && (a == nil || b.index > a.index) {
		pop++
		b = b.next
	}
	for a != b {
		add = append(add, a)
		a = a.next
		pop++
		b = b.next
	}
	for i, j := 0, len(add)-1; i < j; i, j = i+1, j-1 {
		add[i], add[j] = add[j], add[i]
	}
	return pop, add
}
