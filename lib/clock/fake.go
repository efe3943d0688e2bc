// Copyright 2026 The Scrybe Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import (
	"container/heap"
	"sync"
	"time"
)

// Fake returns a FakeClock parked at initial. Nothing fires until
// Advance moves it forward.
func Fake(initial time.Time) *FakeClock {
	fc := &FakeClock{now: initial}
	fc.changed = sync.NewCond(&fc.mu)
	return fc
}

// FakeClock is a Clock whose time only moves when Advance is called.
// Safe for concurrent use.
type FakeClock struct {
	mu      sync.Mutex
	now     time.Time
	pending eventQueue
	changed *sync.Cond
}

// event is a single scheduled After/Sleep/AfterFunc/NewTicker call,
// ordered by deadline in a min-heap. queued tracks whether the event
// currently occupies a slot in the heap; Stop removes it outright
// rather than marking it for later collection.
type event struct {
	deadline time.Time
	ch       chan time.Time
	fn       func()
	interval time.Duration
	queued   bool
	idx      int
}

type eventQueue []*event

func (q eventQueue) Len() int { return len(q) }

func (q eventQueue) Less(i, j int) bool { return q[i].deadline.Before(q[j].deadline) }

func (q eventQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].idx = i
	q[j].idx = j
}

func (q *eventQueue) Push(x any) {
	e := x.(*event)
	e.idx = len(*q)
	*q = append(*q, e)
}

func (q *eventQueue) Pop() any {
	old := *q
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	*q = old[:n-1]
	return e
}

func (fc *FakeClock) Now() time.Time {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	return fc.now
}

// After returns a channel that fires once Advance carries the clock
// past now+d. d<=0 fires immediately without touching the heap.
func (fc *FakeClock) After(d time.Duration) <-chan time.Time {
	ch := make(chan time.Time, 1)
	if d <= 0 {
		ch <- fc.Now()
		return ch
	}

	fc.mu.Lock()
	defer fc.mu.Unlock()
	heap.Push(&fc.pending, &event{deadline: fc.now.Add(d), ch: ch, queued: true})
	fc.changed.Broadcast()
	return ch
}

// AfterFunc schedules f to run during a future Advance call that
// reaches the deadline. d<=0 runs f synchronously before returning.
func (fc *FakeClock) AfterFunc(d time.Duration, f func()) *Timer {
	if d <= 0 {
		f()
		return &Timer{
			stop:  func() bool { return false },
			reset: func(time.Duration) bool { return false },
		}
	}

	fc.mu.Lock()
	e := &event{deadline: fc.now.Add(d), fn: f, queued: true}
	heap.Push(&fc.pending, e)
	fc.changed.Broadcast()
	fc.mu.Unlock()

	return &Timer{
		stop: func() bool {
			fc.mu.Lock()
			defer fc.mu.Unlock()
			if !e.queued {
				return false
			}
			heap.Remove(&fc.pending, e.idx)
			e.queued = false
			return true
		},
		reset: func(d time.Duration) bool {
			fc.mu.Lock()
			defer fc.mu.Unlock()
			wasActive := e.queued
			e.deadline = fc.now.Add(d)
			if wasActive {
				heap.Fix(&fc.pending, e.idx)
			} else {
				heap.Push(&fc.pending, e)
				e.queued = true
			}
			fc.changed.Broadcast()
			return wasActive
		},
	}
}

// NewTicker returns a Ticker whose C channel receives once per
// interval d as Advance crosses each boundary. Panics on d<=0.
func (fc *FakeClock) NewTicker(d time.Duration) *Ticker {
	if d <= 0 {
		panic("clock: NewTicker requires a positive interval")
	}

	fc.mu.Lock()
	defer fc.mu.Unlock()

	ch := make(chan time.Time, 1)
	e := &event{deadline: fc.now.Add(d), ch: ch, interval: d, queued: true}
	heap.Push(&fc.pending, e)
	fc.changed.Broadcast()

	return &Ticker{
		C: ch,
		stop: func() {
			fc.mu.Lock()
			defer fc.mu.Unlock()
			if e.queued {
				heap.Remove(&fc.pending, e.idx)
				e.queued = false
			}
		},
		reset: func(d time.Duration) {
			fc.mu.Lock()
			defer fc.mu.Unlock()
			e.interval = d
			e.deadline = fc.now.Add(d)
			if e.queued {
				heap.Fix(&fc.pending, e.idx)
			} else {
				heap.Push(&fc.pending, e)
				e.queued = true
			}
			fc.changed.Broadcast()
		},
	}
}

func (fc *FakeClock) Sleep(d time.Duration) {
	if d <= 0 {
		return
	}
	<-fc.After(d)
}

// Advance moves the clock forward by d, firing every event whose
// deadline now falls at or before the new time. AfterFunc callbacks
// run synchronously on the calling goroutine in deadline order;
// channel sends never block, matching time.Ticker's drop-if-full
// behavior. Tickers are rescheduled and re-queued rather than removed.
func (fc *FakeClock) Advance(d time.Duration) {
	fc.mu.Lock()
	fc.now = fc.now.Add(d)
	target := fc.now
	fc.mu.Unlock()

	for {
		fc.mu.Lock()
		if fc.pending.Len() == 0 || fc.pending[0].deadline.After(target) {
			fc.mu.Unlock()
			return
		}
		e := heap.Pop(&fc.pending).(*event)
		e.queued = false
		if e.interval > 0 {
			e.deadline = e.deadline.Add(e.interval)
			heap.Push(&fc.pending, e)
			e.queued = true
		}
		fc.mu.Unlock()

		switch {
		case e.fn != nil:
			e.fn()
		case e.ch != nil:
			select {
			case e.ch <- target:
			default:
			}
		}
	}
}

// WaitForTimers blocks until at least n events (timers, tickers, or
// sleeps) are pending. Call it after starting a goroutine that's
// expected to register a wait, and before Advance, to avoid racing the
// registration.
func (fc *FakeClock) WaitForTimers(n int) {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	for fc.pending.Len() < n {
		fc.changed.Wait()
	}
}

// PendingCount returns the number of events currently scheduled.
func (fc *FakeClock) PendingCount() int {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	return fc.pending.Len()
}
