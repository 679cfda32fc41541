package callstack

import (
	"errors"
	"reflect"
	"runtime"
	"strings"
	"sync"

	"github.com/timandy/routine"
)

// ErrNotAFunc is returned when an exclusion argument is not a function
// value.
var ErrNotAFunc = errors.New("callstack: exclusion must be a function value")

// Frames belonging to this package never appear in captures.
const selfPrefix = "tracekit/pkg/callstack."

// Factory captures snapshots and remembers the last capture per
// goroutine so consecutive snapshots share nodes. Exclusions apply at
// capture time only; existing snapshots are never rewritten.
type Factory struct {
	mu       sync.RWMutex
	exclude  map[uintptr]struct{}
	prefixes []string

	last routine.ThreadLocal[*Stack]
}

// NewFactory constructs an empty Factory.
func NewFactory() *Factory {
	return &Factory{
		exclude: make(map[uintptr]struct{}),
		last:    routine.NewThreadLocal[*Stack](),
	}
}

// Exclude hides the given functions from future captures. Functions
// are identified by entry address, so a method value and its method
// expression exclude the same code.
func (f *Factory) Exclude(fns ...any) error {
	entries, err := funcEntries(fns)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, e := range entries {
		f.exclude[e] = struct{}{}
	}
	return nil
}

// Unexclude removes functions from the exclusion set. Unknown
// functions are ignored.
func (f *Factory) Unexclude(fns ...any) error {
	entries, err := funcEntries(fns)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, e := range entries {
		delete(f.exclude, e)
	}
	return nil
}

// ExcludePrefix hides every function whose qualified name starts with
// one of the given prefixes, e.g. "runtime." or "testing.".
func (f *Factory) ExcludePrefix(prefixes ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prefixes = append(f.prefixes, prefixes...)
}

func funcEntries(fns []any) ([]uintptr, error) {
	entries := make([]uintptr, 0, len(fns))
	for _, fn := range fns {
		v := reflect.ValueOf(fn)
		if v.Kind() != reflect.Func || v.IsNil() {
			return nil, ErrNotAFunc
		}
		entries = append(entries, v.Pointer())
	}
	return entries, nil
}

// Capture snapshots the calling goroutine's stack and caches it as the
// goroutine's last capture. Frames unchanged since the previous
// capture come back as the same nodes; a capture from an identical
// stack returns the previous head itself.
func (f *Factory) Capture() *Stack {
	s := f.capture()
	f.last.Set(s)
	return s
}

// Last returns the calling goroutine's most recent capture, or nil.
func (f *Factory) Last() *Stack {
	return f.last.Get()
}

// Forget drops the calling goroutine's cached capture, so the next
// Capture builds every node fresh.
func (f *Factory) Forget() {
	f.last.Remove()
}

// Delta captures the calling goroutine's stack and returns the changes
// since the previous capture on this goroutine, in ChangesFrom terms.
// The new capture replaces the cached one.
func (f *Factory) Delta() (pop int, add []*Stack) {
	prev := f.last.Get()
	cur := f.capture()
	f.last.Set(cur)
	if cur == nil {
		if prev != nil {
			pop = prev.Len()
		}
		return pop, nil
	}
	return cur.ChangesFrom(prev)
}

func (f *Factory) capture() *Stack {
	pcs := make([]uintptr, 64)
	n := runtime.Callers(1, pcs)
	for n == len(pcs) {
		pcs = make([]uintptr, 2*len(pcs))
		n = runtime.Callers(1, pcs)
	}

	iter := runtime.CallersFrames(pcs[:n])
	var frames []runtime.Frame
	f.mu.RLock()
	for {
		fr, more := iter.Next()
		if fr.PC != 0 && f.included(fr) {
			frames = append(frames, fr)
		}
		if !more {
			break
		}
	}
	f.mu.RUnlock()

	if len(frames) == 0 {
		return nil
	}
	reuse := f.last.Get()
	top := len(frames) - 1
	for reuse != nil && reuse.index > top {
		reuse = reuse.next
	}
	return build(frames, 0, top, reuse)
}

// included reports whether a frame survives the exclusion rules.
// Caller holds f.mu.
func (f *Factory) included(fr runtime.Frame) bool {
	if strings.HasPrefix(fr.Function, selfPrefix) {
		return false
	}
	if _, skip := f.exclude[fr.Entry]; skip {
		return false
	}
	for _, p := range f.prefixes {
		if strings.HasPrefix(fr.Function, p) {
			return false
		}
	}
	return true
}

// build constructs the node for frames[i], which sits at bottom-up
// position idx, reusing reuse's nodes wherever the frame and the whole
// chain beneath it are unchanged. frames is ordered most recent first.
func build(frames []runtime.Frame, i, idx int, reuse *Stack) *Stack {
	if i == len(frames) {
		return nil
	}
	fr := frames[i]
	if reuse != nil && reuse.index == idx {
		rest := build(frames, i+1, idx-1, reuse.next)
		if rest == reuse.next && fr.PC == reuse.pc {
			return reuse
		}
		return newNode(fr, idx, rest)
	}
	return newNode(fr, idx, build(frames, i+1, idx-1, reuse))
}

func newNode(fr runtime.Frame, idx int, next *Stack) *Stack {
	return &Stack{
		pc:    fr.PC,
		entry: fr.Entry,
		fn:    fr.Function,
		file:  fr.File,
		line:  fr.Line,
		index: idx,
		next:  next,
	}
}
