// Copyright 2026 The Scrybe Authors
// SPDX-License-Identifier: Apache-2.0

package relay

// Viewer is a relay-side record of one connected viewer. Its lifetime
// equals the underlying connection (§3).
type Viewer struct {
	ID        string
	PublicKey string
	Nickname  string

	conn *conn
}
