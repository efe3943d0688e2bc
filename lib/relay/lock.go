// Copyright 2026 The Scrybe Authors
// SPDX-License-Identifier: Apache-2.0

package relay

import "time"

// controlLockIdleTimeout is the duration since lastInputAt after which
// a held control lock is considered abandoned and may be reclaimed
// (§4.1, §5).
const controlLockIdleTimeout = 30 * time.Second

// ControlLock is the single-writer token granting one viewer the right
// to send input to the producer. It is a relay-owned value — viewers
// and producers only ever observe it through control-status broadcasts.
type ControlLock struct {
	HolderID       string
	HolderNickname string
	AcquiredAt     time.Time
	LastInputAt    time.Time
}

// expired reports whether the lock has been idle for at least
// controlLockIdleTimeout as of now.
func (l *ControlLock) expired(now time.Time) bool {
	return now.Sub(l.LastInputAt) >= controlLockIdleTimeout
}
