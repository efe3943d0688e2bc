// Copyright 2026 The Scrybe Authors
// SPDX-License-Identifier: Apache-2.0

package testutil

import (
	"fmt"
	"sync/atomic"
)

var idSeq atomic.Uint64

// UniqueID returns "prefix-N" for a process-wide monotonically
// increasing N. Prefer it over time.Now()-derived IDs in tests, since
// two calls in the same nanosecond would otherwise collide.
//
//	sessionID := testutil.UniqueID("session")  // "session-1", "session-2", ...
func UniqueID(prefix string) string {
	return fmt.Sprintf("%s-%d", prefix, idSeq.Add(1))
}
