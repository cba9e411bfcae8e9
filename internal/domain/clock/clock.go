// Package clock supplies the registry's notion of time: a monotonically
// increasing height, analogous to a block height.
package clock

import (
	"context"
	"sync/atomic"
	"time"
)

// Clock returns the current height.
type Clock interface {
	Now(ctx context.Context) uint64
}

// Settable is implemented by clocks whose height can be moved by an operator.
type Settable interface {
	Clock
	// Set moves the clock to h. Heights never go backwards; a lower h is ignored
	// and the current height is returned.
	Set(h uint64) uint64
}

// State is the part of a clock that survives a restart.
type State struct {
	// Height is the last height observed.
	Height uint64 `json:"height"`
	// Genesis is the wall clock origin in Unix nanoseconds. Zero for manual clocks.
	Genesis int64 `json:"genesis,omitempty"`
}

// Persistent is implemented by clocks whose state can be saved and restored.
// Restore never moves the height backwards.
type Persistent interface {
	Clock
	State(ctx context.Context) State
	Restore(st State)
}

// Manual is a clock advanced explicitly. It is safe for concurrent use.
type Manual struct {
	height atomic.Uint64
}

// NewManual returns a manual clock starting at start.
func NewManual(start uint64) *Manual {
	m := &Manual{}
	m.height.Store(start)
	return m
}

// Now returns the current height.
func (m *Manual) Now(_ context.Context) uint64 { return m.height.Load() }

// Set moves the clock forward to h.
func (m *Manual) Set(h uint64) uint64 {
	for {
		cur := m.height.Load()
		if h <= cur {
			return cur
		}
		if m.height.CompareAndSwap(cur, h) {
			return h
		}
	}
}

// Advance moves the clock forward by n and returns the new height.
func (m *Manual) Advance(n uint64) uint64 { return m.height.Add(n) }

// State returns the current height.
func (m *Manual) State(ctx context.Context) State { return State{Height: m.Now(ctx)} }

// Restore moves the clock forward to the saved height.
func (m *Manual) Restore(st State) { m.Set(st.Height) }

// Wall derives the height from elapsed wall time: one height per interval
// since genesis, starting at 1. A restored floor keeps it from reporting a
// height below one already observed.
type Wall struct {
	genesis  atomic.Int64
	floor    atomic.Uint64
	interval time.Duration
	nowFn    func() time.Time
}

// NewWall returns a wall clock. A non-positive interval defaults to one second.
func NewWall(genesis time.Time, interval time.Duration) *Wall {
	if interval <= 0 {
		interval = time.Second
	}
	w := &Wall{interval: interval, nowFn: time.Now}
	w.genesis.Store(genesis.UnixNano())
	return w
}

// Now returns the number of whole intervals elapsed since genesis, plus one,
// or the floor when that is higher.
func (w *Wall) Now(_ context.Context) uint64 {
	h := uint64(1)
	if elapsed := w.nowFn().Sub(time.Unix(0, w.genesis.Load())); elapsed > 0 {
		h = uint64(elapsed/w.interval) + 1
	}
	return max(h, w.floor.Load())
}

// State returns the current height and the genesis.
func (w *Wall) State(ctx context.Context) State {
	return State{Height: w.Now(ctx), Genesis: w.genesis.Load()}
}

// Restore adopts the saved genesis, if any, and raises the floor to the saved
// height.
func (w *Wall) Restore(st State) {
	if st.Genesis != 0 {
		w.genesis.Store(st.Genesis)
	}
	for {
		cur := w.floor.Load()
		if st.Height <= cur || w.floor.CompareAndSwap(cur, st.Height) {
			return
		}
	}
}
