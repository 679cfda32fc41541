// Package demux turns a single pulled stream of keyed items into
// per-key blocking gets.
//
// Consumers call Get with the key they want. Whichever consumer needs
// an item next pulls from the shared source; an item matching its own
// key is returned directly, an item another consumer is waiting for is
// handed to that consumer, and anything else parks in a single
// lookahead slot. At most one goroutine pulls at a time and at most one
// unmatched item is buffered, so the demultiplexer never runs ahead of
// its consumers.
package demux

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Source pulls the next item from the shared stream. It returns io.EOF
// when the stream is exhausted. Calls are serialized by the
// demultiplexer but may block for as long as they like.
type Source func() (any, error)

// KeyFunc extracts the routing key from an item. Keys must be
// comparable, as they index the pending-consumer table.
type KeyFunc func(item any) any

// TimeoutFunc supplies a fallback result when a Get times out. Its
// return values are handed to the Get caller unchanged.
type TimeoutFunc func(d *Demultiplexer, key any) (any, error)

// DefaultTimeout bounds a Get that has to wait on other goroutines.
const DefaultTimeout = 5 * time.Second

var (
	// ErrNilSource is returned by New when no source is given.
	ErrNilSource = errors.New("demux: source must not be nil")

	// ErrNilKeyFunc is returned by New when no key function is given.
	ErrNilKeyFunc = errors.New("demux: key function must not be nil")

	// ErrDuplicateKey is returned when a Get finds another Get already
	// waiting on the same key.
	ErrDuplicateKey = errors.New("demux: key already has a pending get")

	// ErrTimeout is returned when a Get waits out its timeout with no
	// fallback configured.
	ErrTimeout = errors.New("demux: timed out waiting for key")
)

type waiter struct {
	item      any
	delivered bool
}

// Demultiplexer routes items from one source to per-key consumers.
type Demultiplexer struct {
	id        string
	source    Source
	key       KeyFunc
	timeout   time.Duration
	onTimeout TimeoutFunc
	logger    *zap.Logger

	mu           sync.Mutex
	wake         chan struct{}
	pending      map[any]*waiter
	pulling      bool
	hasLookahead bool
	lookahead    any
	lookaheadKey any
}

// Option configures a Demultiplexer at construction.
type Option func(*Demultiplexer)

// WithTimeout bounds how long a Get waits on other goroutines before
// giving up. Zero disables the timeout entirely. Time spent inside a
// source pull performed by the Get itself is not bounded.
func WithTimeout(d time.Duration) Option {
	return func(m *Demultiplexer) { m.timeout = d }
}

// WithOnTimeout installs a fallback invoked instead of returning
// ErrTimeout.
func WithOnTimeout(fn TimeoutFunc) Option {
	return func(m *Demultiplexer) { m.onTimeout = fn }
}

// WithLogger attaches a logger for debug-level routing events.
func WithLogger(l *zap.Logger) Option {
	return func(m *Demultiplexer) { m.logger = l }
}

// New constructs a Demultiplexer over source, routing by key. Gets are
// bounded by DefaultTimeout unless WithTimeout overrides it; pass
// WithTimeout(0) to wait indefinitely.
func New(source Source, key KeyFunc, opts ...Option) (*Demultiplexer, error) {
	if source == nil {
		return nil, ErrNilSource
	}
	if key == nil {
		return nil, ErrNilKeyFunc
	}
	d := &Demultiplexer{
		id:      uuid.NewString(),
		source:  source,
		key:     key,
		timeout: DefaultTimeout,
		logger:  zap.NewNop(),
		wake:    make(chan struct{}),
		pending: make(map[any]*waiter),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.logger = d.logger.With(zap.String("demux_id", d.id))
	return d, nil
}

// ID returns the demultiplexer's unique identifier, as used in its log
// events.
func (d *Demultiplexer) ID() string {
	return d.id
}

// PendingKeys returns the keys with a Get currently waiting. Intended
// for timeout fallbacks and diagnostics; the snapshot is stale by the
// time the caller looks at it.
func (d *Demultiplexer) PendingKeys() []any {
	d.mu.Lock()
	defer d.mu.Unlock()
	keys := make([]any, 0, len(d.pending))
	for k := range d.pending {
		keys = append(keys, k)
	}
	return keys
}

// Get returns the next item whose key equals key, pulling from the
// source as needed. Only one Get per key may be in flight; a second
// returns ErrDuplicateKey. A Get that waits out the timeout returns
// ErrTimeout, or the fallback's result when one is configured.
func (d *Demultiplexer) Get(key any) (any, error) {
	d.mu.Lock()

	// Fast path: the previous pull buffered exactly this key.
	if d.hasLookahead && d.lookaheadKey == key {
		item := d.lookahead
		d.clearLookahead()
		err := d.refill()
		d.broadcast()
		d.mu.Unlock()
		if err != nil {
			return nil, fmt.Errorf("demux: lookahead refill for key %v: %w", key, err)
		}
		return item, nil
	}

	if _, dup := d.pending[key]; dup {
		d.mu.Unlock()
		return nil, fmt.Errorf("%w: %v", ErrDuplicateKey, key)
	}
	w := &waiter{}
	d.pending[key] = w

	var deadline <-chan time.Time
	if d.timeout > 0 {
		timer := time.NewTimer(d.timeout)
		defer timer.Stop()
		deadline = timer.C
	}

	for {
		if w.delivered {
			delete(d.pending, key)
			d.broadcast()
			d.mu.Unlock()
			return w.item, nil
		}

		if d.hasLookahead && d.lookaheadKey == key {
			item := d.lookahead
			d.clearLookahead()
			delete(d.pending, key)
			d.broadcast()
			d.mu.Unlock()
			return item, nil
		}

		if !d.pulling && !d.hasLookahead {
			item, k, err := d.pull()
			if err != nil {
				delete(d.pending, key)
				d.broadcast()
				d.mu.Unlock()
				return nil, fmt.Errorf("demux: pull for key %v: %w", key, err)
			}
			if k == key {
				delete(d.pending, key)
				d.broadcast()
				d.mu.Unlock()
				return item, nil
			}
			d.route(item, k)
			d.broadcast()
			continue
		}

		// Someone else is pulling, or the lookahead holds a foreign
		// key. Wait for the next state change.
		ch := d.wake
		d.mu.Unlock()
		select {
		case <-ch:
			d.mu.Lock()
		case <-deadline:
			d.mu.Lock()
			// One last predicate check: a delivery or a matching
			// lookahead may have raced the timer.
			if w.delivered || (d.hasLookahead && d.lookaheadKey == key) {
				continue
			}
			delete(d.pending, key)
			d.broadcast()
			d.mu.Unlock()
			d.logger.Debug("get timed out", zap.Any("key", key))
			if d.onTimeout != nil {
				return d.onTimeout(d, key)
			}
			return nil, fmt.Errorf("%w: %v", ErrTimeout, key)
		}
	}
}

// pull performs one serialized source pull. The caller must hold d.mu
// with d.pulling false and the lookahead empty; the lock is released
// for the duration of the source call.
func (d *Demultiplexer) pull() (item, key any, err error) {
	d.pulling = true
	d.mu.Unlock()
	item, err = d.source()
	if err == nil {
		key = d.key(item)
	}
	d.mu.Lock()
	d.pulling = false
	return item, key, err
}

// route places a pulled foreign-key item: a consumer already waiting on
// the key gets it directly, otherwise it parks in the lookahead slot.
// Caller holds d.mu.
func (d *Demultiplexer) route(item, key any) {
	if w, ok := d.pending[key]; ok && !w.delivered {
		w.item = item
		w.delivered = true
		d.logger.Debug("handed off item", zap.Any("key", key))
		return
	}
	d.hasLookahead = true
	d.lookahead = item
	d.lookaheadKey = key
	d.logger.Debug("buffered lookahead", zap.Any("key", key))
}

// refill opportunistically repopulates the lookahead slot with one pull
// after a fast-path hit. End-of-stream is swallowed, a later Get
// observes it on its own pull; any other pull error is returned so the
// fast-path caller can surface it. Caller holds d.mu.
func (d *Demultiplexer) refill() error {
	if d.pulling || d.hasLookahead {
		return nil
	}
	item, key, err := d.pull()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		d.logger.Debug("lookahead refill failed", zap.Error(err))
		return err
	}
	d.route(item, key)
	return nil
}

func (d *Demultiplexer) clearLookahead() {
	d.hasLookahead = false
	d.lookahead = nil
	d.lookaheadKey = nil
}

// broadcast wakes every parked Get so it can recheck state. Caller
// holds d.mu.
func (d *Demultiplexer) broadcast() {
	close(d.wake)
	d.wake = make(chan struct{})
}
