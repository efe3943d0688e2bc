// Copyright 2026 The Scrybe Authors
// SPDX-License-Identifier: Apache-2.0

package relay

import (
	"net"
	"testing"
	"time"

	"github.com/scrybe/scrybe/lib/wire"
)

// testPeer is the test-side handle to one end of a loopback TCP connection
// whose other end is wrapped in a *conn and handed to the relay code
// under test.
type testPeer struct {
	t    *testing.T
	conn net.Conn
}

// newTestPeer returns a *conn wrapping the server side of a loopback
// TCP connection, plus a testPeer handle for the other side. A real
// socket pair (rather than net.Pipe) gives the OS send buffer so a
// send() call inside relay code doesn't rendezvous synchronously with
// the test's read, matching how these connections behave in
// production.
func newTestPeer(t *testing.T, role wire.Role) (*conn, *testPeer) {
	t.Helper()
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer listener.Close()

	accepted := make(chan net.Conn, 1)
	go func() {
		c, _ := listener.Accept()
		accepted <- c
	}()

	clientSide, err := net.Dial("tcp", listener.Addr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	serverSide := <-accepted
	if serverSide == nil {
		t.Fatal("accept failed")
	}

	t.Cleanup(func() { _ = serverSide.Close(); _ = clientSide.Close() })
	return newConn(serverSide, role), &testPeer{t: t, conn: clientSide}
}

// expectMessage reads the next frame and decodes it, failing the test
// if the type doesn't match or the read times out.
func (p *testPeer) expectMessage(wantType string, dst any) {
	p.t.Helper()
	envelope := p.readFrame()
	if envelope.Type != wantType {
		p.t.Fatalf("got message type %q, want %q", envelope.Type, wantType)
	}
	if dst != nil {
		if err := envelope.Decode(dst); err != nil {
			p.t.Fatalf("decode %s: %v", wantType, err)
		}
	}
}

func (p *testPeer) readFrame() wire.Envelope {
	p.t.Helper()
	type result struct {
		envelope wire.Envelope
		err      error
	}
	done := make(chan result, 1)
	go func() {
		envelope, err := wire.ReadFrame(p.conn)
		done <- result{envelope, err}
	}()
	select {
	case r := <-done:
		if r.err != nil {
			p.t.Fatalf("ReadFrame: %v", r.err)
		}
		return r.envelope
	case <-time.After(2 * time.Second):
		p.t.Fatal("timed out waiting for a frame")
		panic("unreachable")
	}
}
