// Copyright 2026 The Scrybe Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import "time"

// Real returns a Clock backed by the standard library.
func Real() Clock { return stdClock{} }

// stdClock forwards every call straight through to the time package.
type stdClock struct{}

func (stdClock) Now() time.Time { return time.Now() }

func (stdClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

func (stdClock) Sleep(d time.Duration) { time.Sleep(d) }

func (stdClock) AfterFunc(d time.Duration, f func()) *Timer {
	t := time.AfterFunc(d, f)
	return &Timer{stop: t.Stop, reset: t.Reset}
}

func (stdClock) NewTicker(d time.Duration) *Ticker {
	t := time.NewTicker(d)
	return &Ticker{C: t.C, stop: t.Stop, reset: t.Reset}
}
