// Copyright 2026 The Scrybe Authors
// SPDX-License-Identifier: Apache-2.0

package producer

import (
	"time"

	"github.com/scrybe/scrybe/lib/clock"
)

// reconnectBaseDelay and reconnectMaxDelay bound the transport
// reconnect backoff (§5: "exponential-ish with base 1s, cap 5s,
// unbounded attempts").
const (
	reconnectBaseDelay = time.Second
	reconnectMaxDelay  = 5 * time.Second
)

// backoff produces the exponential-ish reconnect delay sequence
// 1s, 2s, 4s, 5s, 5s, ... and never gives up.
type backoff struct {
	clk   clock.Clock
	delay time.Duration
}

func newBackoff(clk clock.Clock) *backoff {
	return &backoff{clk: clk, delay: reconnectBaseDelay}
}

// next returns the delay to wait before the next attempt and doubles
// it (capped) for the attempt after that.
func (b *backoff) next() time.Duration {
	delay := b.delay
	b.delay *= 2
	if b.delay > reconnectMaxDelay {
		b.delay = reconnectMaxDelay
	}
	return delay
}

// reset restores the sequence to its initial delay. Neither Client.Run
// nor DaemonClient.Run calls it, so once the delay reaches the 5s cap
// it stays there for every later disconnect of the same Run.
func (b *backoff) reset() {
	b.delay = reconnectBaseDelay
}
