// Copyright 2026 The Scrybe Authors
// SPDX-License-Identifier: Apache-2.0

package relay

import (
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/scrybe/scrybe/lib/wire"
)

// sendTimeout bounds how long a single frame write may block. A slow
// or wedged peer must not be able to stall every other connection
// sharing the sending session's lock.
const sendTimeout = 5 * time.Second

// conn wraps one accepted network connection with the role it declared
// in its hello message and a write mutex, so concurrent senders (the
// connection's own read loop plus broadcasts triggered by other
// sessions' handlers) never interleave frame writes.
type conn struct {
	netConn net.Conn
	role    wire.Role

	writeMu sync.Mutex
}

func newConn(netConn net.Conn, role wire.Role) *conn {
	return &conn{netConn: netConn, role: role}
}

// send marshals v, tags it messageType, and writes it as one frame.
// Safe for concurrent use.
func (c *conn) send(messageType string, v any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.netConn.SetWriteDeadline(time.Now().Add(sendTimeout))
	if err := wire.WriteFrame(c.netConn, messageType, v); err != nil {
		return fmt.Errorf("send %s: %w", messageType, err)
	}
	return nil
}

// close closes the underlying network connection.
func (c *conn) close() error {
	return c.netConn.Close()
}

// sessionIDFor returns sessionID when this connection is a daemon
// (which multiplexes many sessions and needs it to disambiguate
// outgoing messages) and empty string otherwise — a single-session
// producer or viewer connection is already bound to one session.
func (c *conn) sessionIDFor(sessionID string) string {
	if c.role == wire.RoleDaemon {
		return sessionID
	}
	return ""
}
