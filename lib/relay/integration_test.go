// Copyright 2026 The Scrybe Authors
// SPDX-License-Identifier: Apache-2.0

package relay

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/scrybe/scrybe/lib/clock"
	"github.com/scrybe/scrybe/lib/wire"
)

func jsonBody(s string) io.Reader {
	return strings.NewReader(s)
}

// dialClient connects to the relay's wire listener and sends the given
// hello message.
func dialClient(t *testing.T, addr string, hello wire.Hello) net.Conn {
	t.Helper()
	netConn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = netConn.Close() })
	if err := wire.WriteFrame(netConn, wire.TypeHello, hello); err != nil {
		t.Fatalf("send hello: %v", err)
	}
	return netConn
}

func readFrame(t *testing.T, netConn net.Conn, timeout time.Duration) wire.Envelope {
	t.Helper()
	_ = netConn.SetReadDeadline(time.Now().Add(timeout))
	envelope, err := wire.ReadFrame(netConn)
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	return envelope
}

// waitForProducer blocks until the relay has bound a producer to
// sessionID. The server handles each connection in its own goroutine,
// so a viewer dialed right after the producer could otherwise be
// registered first and be told cli-status{connected:false}.
func waitForProducer(t *testing.T, registry *Registry, sessionID string) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for {
		if session, ok := registry.GetSession(sessionID); ok && session.Summarize().Connected {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("producer for %q was never bound", sessionID)
		}
		time.Sleep(time.Millisecond)
	}
}

func startServer(t *testing.T, registry *Registry) string {
	t.Helper()
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	server := NewServer(registry, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(func() {
		cancel()
		_ = listener.Close()
	})
	go func() { _ = server.Serve(ctx, listener) }()
	return listener.Addr().String()
}

// TestEncryptedHappyPathEndToEnd exercises spec scenario 1: a producer
// attaches with a public key, a viewer joins and is told the session is
// encrypted, and an encrypted-output frame the producer addresses to
// that viewer is routed to it unchanged.
func TestEncryptedHappyPathEndToEnd(t *testing.T) {
	t.Parallel()

	fake := clock.Fake(time.Now())
	registry := NewRegistry(fake, testLogger())
	addr := startServer(t, registry)

	producer := dialClient(t, addr, wire.Hello{Role: wire.RoleProducer, SessionID: "demo", PublicKey: "producer-key"})
	waitForProducer(t, registry, "demo")
	viewer := dialClient(t, addr, wire.Hello{Role: wire.RoleViewer, SessionID: "demo", PublicKey: "viewer-key"})

	var status wire.CLIStatus
	readFrame(t, viewer, time.Second).Decode(&status)
	if !status.Connected || !status.Encrypted {
		t.Fatalf("cli-status = %+v, want connected+encrypted", status)
	}

	var joined wire.ViewerJoined
	envelope := readFrame(t, producer, time.Second)
	if envelope.Type != wire.TypeViewerJoined {
		t.Fatalf("producer got %q, want viewer-joined", envelope.Type)
	}
	_ = envelope.Decode(&joined)

	if err := wire.WriteFrame(producer, wire.TypeEncryptedOut, wire.EncryptedOutput{
		ViewerID:  joined.ViewerID,
		Encrypted: wire.CipherBox{Nonce: "n1", Ciphertext: "c1"},
		Seq:       1,
	}); err != nil {
		t.Fatalf("write encrypted-output: %v", err)
	}

	var out wire.EncryptedOutput
	outEnvelope := readFrame(t, viewer, time.Second)
	if outEnvelope.Type != wire.TypeEncryptedOut {
		t.Fatalf("viewer got %q, want encrypted-output", outEnvelope.Type)
	}
	_ = outEnvelope.Decode(&out)
	if out.Seq != 1 || out.Encrypted.Ciphertext != "c1" {
		t.Errorf("encrypted-output = %+v, want seq=1 ciphertext=c1", out)
	}
}

// TestProducerCrashAndReconnect exercises spec scenario 4: a viewer is
// told the producer disconnected, input is rejected with "CLI not
// connected", and reconnecting under the same sessionId restores the
// connected status with the new public key.
func TestProducerCrashAndReconnect(t *testing.T) {
	t.Parallel()

	fake := clock.Fake(time.Now())
	registry := NewRegistry(fake, testLogger())
	addr := startServer(t, registry)

	producer := dialClient(t, addr, wire.Hello{Role: wire.RoleProducer, SessionID: "demo", PublicKey: "key-1"})
	waitForProducer(t, registry, "demo")
	viewer := dialClient(t, addr, wire.Hello{Role: wire.RoleViewer, SessionID: "demo", PublicKey: "viewer-key"})
	readFrame(t, viewer, time.Second) // initial cli-status
	readFrame(t, producer, time.Second) // viewer-joined

	_ = producer.Close()

	var status wire.CLIStatus
	readFrame(t, viewer, time.Second).Decode(&status)
	if status.Connected {
		t.Fatal("viewer should observe cli-status{connected:false} after producer disconnect")
	}

	if err := wire.WriteFrame(viewer, wire.TypeEncryptedInput, wire.EncryptedInput{
		Encrypted: wire.CipherBox{Nonce: "n", Ciphertext: "c"},
	}); err != nil {
		t.Fatalf("write encrypted-input: %v", err)
	}
	var errMsg wire.ErrorMsg
	readFrame(t, viewer, time.Second).Decode(&errMsg)
	if errMsg.Message != "CLI not connected" {
		t.Errorf("error message = %q, want %q", errMsg.Message, "CLI not connected")
	}

	newProducer := dialClient(t, addr, wire.Hello{Role: wire.RoleProducer, SessionID: "demo", PublicKey: "key-2"})
	_ = newProducer

	readFrame(t, viewer, time.Second).Decode(&status)
	if !status.Connected || status.PublicKey == nil || *status.PublicKey != "key-2" {
		t.Errorf("cli-status after reconnect = %+v, want connected with publicKey=key-2", status)
	}
}

// TestDaemonCommandDispatchViaHTTP exercises spec scenario 5: an HTTP
// daemon-command request is forwarded to the connected daemon and its
// reply is relayed back to the caller.
func TestDaemonCommandDispatchViaHTTP(t *testing.T) {
	t.Parallel()

	fake := clock.Fake(time.Now())
	registry := NewRegistry(fake, testLogger())
	addr := startServer(t, registry)

	daemon := dialClient(t, addr, wire.Hello{Role: wire.RoleDaemon})
	// The daemon's registration happens on the accepting goroutine inside
	// the server; give handleConnection a moment to run RegisterDaemon
	// before the HTTP request below tries to dispatch to it.
	time.Sleep(50 * time.Millisecond)

	handler := NewHTTPHandler(registry, fake)
	recorder := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		defer close(done)
		req := httptest.NewRequest(http.MethodPost, "/api/daemon/command",
			jsonBody(`{"command":"create-session","params":{"name":"x"}}`))
		handler.ServeHTTP(recorder, req)
	}()

	var cmd wire.CLICommand
	readFrame(t, daemon, 2*time.Second).Decode(&cmd)
	if err := wire.WriteFrame(daemon, wire.TypeCLIResponse, wire.CLIResponse{
		CommandID: cmd.CommandID,
		Success:   true,
		Data:      wire.CreateSessionParams{Name: "x"},
	}); err != nil {
		t.Fatalf("write cli-response: %v", err)
	}
	<-done

	if recorder.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body=%s", recorder.Code, recorder.Body.String())
	}
}

func TestDaemonCommandNoDaemonViaHTTP(t *testing.T) {
	t.Parallel()

	fake := clock.Fake(time.Now())
	registry := NewRegistry(fake, testLogger())

	handler := NewHTTPHandler(registry, fake)
	recorder := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/daemon/command",
		jsonBody(`{"command":"list-sessions"}`))
	handler.ServeHTTP(recorder, req)

	if recorder.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503; body=%s", recorder.Code, recorder.Body.String())
	}
}
