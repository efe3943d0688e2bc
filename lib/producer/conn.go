// Copyright 2026 The Scrybe Authors
// SPDX-License-Identifier: Apache-2.0

package producer

import (
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/scrybe/scrybe/lib/wire"
)

// sendTimeout bounds how long a single frame write may block, the same
// defense the relay's conn applies to its own writes.
const sendTimeout = 5 * time.Second

// clientConn wraps the single net.Conn a producer or daemon client
// dials, serializing writes from the capture loop and the RPC
// dispatcher so they never interleave on the wire.
type clientConn struct {
	netConn net.Conn
	writeMu sync.Mutex
}

func newClientConn(netConn net.Conn) *clientConn {
	return &clientConn{netConn: netConn}
}

func (c *clientConn) send(messageType string, v any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.netConn.SetWriteDeadline(time.Now().Add(sendTimeout))
	if err := wire.WriteFrame(c.netConn, messageType, v); err != nil {
		return fmt.Errorf("send %s: %w", messageType, err)
	}
	return nil
}

func (c *clientConn) close() error {
	return c.netConn.Close()
}
