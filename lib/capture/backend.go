// Copyright 2026 The Scrybe Authors
// SPDX-License-Identifier: Apache-2.0

// Package capture defines the pane capture backend the producer polls
// and injects keystrokes through, plus a tmux-backed production
// implementation and an in-memory fake for tests.
package capture

import "github.com/scrybe/scrybe/lib/wire"

// Backend abstracts the terminal multiplexer a producer captures from
// and injects keystrokes into. The producer controller never shells
// out to tmux directly — it only ever talks to a Backend, so its
// capture loop and daemon RPC handling are testable against the fake
// implementation without a real tmux server.
type Backend interface {
	// Snapshot returns the named session's pane content exactly as a
	// terminal would render it (escape sequences already interpreted).
	Snapshot(sessionName string) (string, error)

	// Inject delivers keystrokes to the named session's active pane.
	// kind distinguishes literal text from symbolic key names (Enter,
	// Tab, C-c, ...), matching the spec's text/special input kinds.
	Inject(sessionName string, kind wire.InputKind, data string) error

	// Create starts a new session with the given name, running the
	// default shell.
	Create(sessionName string) error

	// Exists reports whether the named session is currently running.
	Exists(sessionName string) bool

	// Destroy terminates the named session. Returns nil if the session
	// was already gone.
	Destroy(sessionName string) error

	// List returns the names of every session currently running on
	// this backend, used to answer the daemon's list-sessions RPC.
	List() ([]string, error)
}
