// Copyright 2026 The Scrybe Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock gives production code an injectable substitute for the
// time package so tests can drive timers and tickers by hand instead
// of sleeping in wall-clock time.
//
// Anything that would otherwise call time.Now, time.After,
// time.AfterFunc, time.NewTicker, or time.Sleep should hold a Clock and
// call through it instead. Real() wires up the standard library;
// Fake() hands back a clock that only moves when told to.
//
//	type idleSweeper struct {
//	    clock clock.Clock
//	}
//
//	sweeper := &idleSweeper{clock: clock.Real()}
//
//	fc := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
//	sweeper := &idleSweeper{clock: fc}
//	fc.WaitForTimers(1)
//	fc.Advance(5 * time.Minute)
//
// FakeClock tracks every outstanding After/Sleep/NewTicker/AfterFunc
// call as a pending event. WaitForTimers blocks until a goroutine has
// actually registered the event it's waiting on, which avoids the race
// of advancing the clock before the timer under test exists.
package clock

import "time"

// Clock is the subset of time's free functions production code should
// never call directly.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
	AfterFunc(d time.Duration, f func()) *Timer
	NewTicker(d time.Duration) *Ticker
	Sleep(d time.Duration)
}

// Ticker mirrors time.Ticker so Real() callers get the same channel
// semantics: capacity one, ticks dropped if the reader falls behind.
type Ticker struct {
	C <-chan time.Time

	stop  func()
	reset func(time.Duration)
}

func (t *Ticker) Stop() { t.stop() }

func (t *Ticker) Reset(d time.Duration) { t.reset(d) }

// Timer mirrors time.Timer for AfterFunc callers. C is always nil,
// matching time.AfterFunc.
type Timer struct {
	C <-chan time.Time

	stop  func() bool
	reset func(time.Duration) bool
}

func (t *Timer) Stop() bool { return t.stop() }

func (t *Timer) Reset(d time.Duration) bool { return t.reset(d) }
