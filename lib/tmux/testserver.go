// Copyright 2026 The Scrybe Authors
// SPDX-License-Identifier: Apache-2.0

package tmux

import (
	"path/filepath"
	"testing"

	"github.com/scrybe/scrybe/lib/testutil"
)

// guardSessionName keeps the test server's tmux process alive: tmux
// exits once its last session ends, so every test needs one session
// that never exits on its own.
const guardSessionName = "_guard"

// NewTestServer starts a private tmux server scoped to the test's
// socket directory and arranges for it to be killed on cleanup.
//
// Never run bare "tmux" commands against a test server's sessions: a
// command without -S falls back to the ambient default server, and
// killing that one can take down whatever session is running the test
// process itself.
func NewTestServer(t *testing.T) *Server {
	t.Helper()

	socketPath := filepath.Join(testutil.SocketDir(t), "tmux.sock")
	server := NewServer(socketPath, "/dev/null")

	// tmux doesn't start a server process until the first session is
	// created, so spin up a guard session that just parks on sleep
	// infinity to hold the server open for the test's duration.
	if err := server.NewSession(guardSessionName, "sleep", "infinity"); err != nil {
		t.Fatalf("start tmux test server: %v", err)
	}
	t.Cleanup(func() { _ = server.KillServer() })

	return server
}
