// Copyright 2026 The Scrybe Authors
// SPDX-License-Identifier: Apache-2.0

package producer

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/scrybe/scrybe/lib/capture"
	"github.com/scrybe/scrybe/lib/clock"
	"github.com/scrybe/scrybe/lib/crypto"
	"github.com/scrybe/scrybe/lib/testutil"
	"github.com/scrybe/scrybe/lib/wire"
)

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// recordingSender captures every frame sent through SetSend, keyed by
// message type, for assertions without a real connection.
type recordingSender struct {
	mu   sync.Mutex
	sent []sentFrame
}

type sentFrame struct {
	Type string
	Body any
}

func (s *recordingSender) send(messageType string, v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, sentFrame{Type: messageType, Body: v})
	return nil
}

func (s *recordingSender) ofType(messageType string) []any {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []any
	for _, f := range s.sent {
		if f.Type == messageType {
			out = append(out, f.Body)
		}
	}
	return out
}

func newTestController(t *testing.T, backend capture.Backend, clk clock.Clock) (*Controller, *recordingSender) {
	t.Helper()
	controller, err := New(Config{
		SessionID:    "demo",
		Backend:      backend,
		Clock:        clk,
		Logger:       testLogger(),
		PollInterval: 10 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	sender := &recordingSender{}
	controller.SetSend(sender.send)
	return controller, sender
}

// TestInitialSnapshotAlwaysEmitted exercises §4.2: the first non-empty
// snapshot is always published as seq=1, even without a prior diff.
func TestInitialSnapshotAlwaysEmitted(t *testing.T) {
	t.Parallel()

	backend := capture.NewFakeBackend()
	backend.SetContent("demo", "hello\n")
	fake := clock.Fake(time.Now())
	controller, _ := newTestController(t, backend, fake)

	peer, secret := joinFakeViewer(t, controller)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go controller.Run(ctx)

	frame := testutil.RequireReceive(t, peer.encryptedOutputs, time.Second, "waiting for seq=1")
	evt := decryptOutputEvent(t, secret, frame.Encrypted)
	if evt.Seq != 1 || evt.Content != "hello\n" {
		t.Fatalf("got %+v, want seq=1 content=hello", evt)
	}
}

// TestIdempotentCaptureNeverDoublesAFrame exercises §8: two identical
// consecutive captures must not produce two frames.
func TestIdempotentCaptureNeverDoublesAFrame(t *testing.T) {
	t.Parallel()

	backend := capture.NewFakeBackend()
	backend.SetContent("demo", "same\n")
	fake := clock.Fake(time.Now())
	controller, _ := newTestController(t, backend, fake)

	peer, secret := joinFakeViewer(t, controller)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go controller.Run(ctx)

	first := testutil.RequireReceive(t, peer.encryptedOutputs, time.Second, "waiting for seq=1")
	if decryptOutputEvent(t, secret, first.Encrypted).Seq != 1 {
		t.Fatal("expected first frame to be seq=1")
	}

	// Advance several poll ticks with unchanged content; no second
	// frame should arrive.
	for i := 0; i < 5; i++ {
		fake.WaitForTimers(1)
		fake.Advance(10 * time.Millisecond)
	}
	select {
	case frame := <-peer.encryptedOutputs:
		t.Fatalf("got unexpected second frame: %+v", frame)
	case <-time.After(50 * time.Millisecond):
	}

	backend.SetContent("demo", "changed\n")
	fake.WaitForTimers(1)
	fake.Advance(10 * time.Millisecond)

	second := testutil.RequireReceive(t, peer.encryptedOutputs, time.Second, "waiting for seq=2")
	evt := decryptOutputEvent(t, secret, second.Encrypted)
	if evt.Seq != 2 || evt.Content != "changed\n" {
		t.Fatalf("got %+v, want seq=2 content=changed", evt)
	}
}

// TestLateJoinReceivesLastFrameImmediately exercises §4.2 "Publish":
// a viewer joining after a frame was already captured gets it
// immediately, without waiting for the next diff.
func TestLateJoinReceivesLastFrameImmediately(t *testing.T) {
	t.Parallel()

	backend := capture.NewFakeBackend()
	backend.SetContent("demo", "first\n")
	fake := clock.Fake(time.Now())
	controller, sender := newTestController(t, backend, fake)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go controller.Run(ctx)

	// Wait for the initial capture to land before the viewer joins, so
	// there is a cached lastFrame to replay.
	deadline := time.After(time.Second)
	for {
		controller.mu.Lock()
		cached := controller.lastFrame != nil
		controller.mu.Unlock()
		if cached {
			break
		}
		select {
		case <-deadline:
			t.Fatal("initial frame never emitted")
		default:
		}
	}

	_, secret := joinFakeViewer(t, controller)

	outputs := sender.ofType(wire.TypeEncryptedOut)
	var found bool
	for _, body := range outputs {
		out, ok := body.(wire.EncryptedOutput)
		if !ok {
			continue
		}
		evt := decryptOutputEvent(t, secret, out.Encrypted)
		if evt.Seq == 1 && evt.Content == "first\n" {
			found = true
		}
	}
	if !found {
		t.Fatal("late-joining viewer never received the cached last frame")
	}
}

// TestEncryptedInputRoundTrip exercises §8's crypto round-trip
// property through the controller's decrypt-and-inject path.
func TestEncryptedInputRoundTrip(t *testing.T) {
	t.Parallel()

	backend := capture.NewFakeBackend()
	backend.SetContent("demo", "")
	fake := clock.Fake(time.Now())
	controller, _ := newTestController(t, backend, fake)

	viewerKeys, err := crypto.GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair: %v", err)
	}
	controller.OnViewerJoined(wire.ViewerJoined{ViewerID: "viewer-a", PublicKey: viewerKeys.Public.String()})
	secret := viewerKeys.Precompute(mustParsePublicKey(t, controller.PublicKey()))

	payload, err := json.Marshal(wire.Input{Keys: "ls\n", Type: wire.InputText})
	if err != nil {
		t.Fatalf("marshal input: %v", err)
	}
	box, err := crypto.Seal(secret, payload)
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}

	controller.OnEncryptedInput(wire.EncryptedInput{ViewerID: "viewer-a", Encrypted: box})

	inputs := backend.Inputs("demo")
	if len(inputs) != 1 || inputs[0].Kind != wire.InputText || inputs[0].Data != "ls\n" {
		t.Fatalf("backend.Inputs = %+v, want one text input %q", inputs, "ls\n")
	}
}

// TestEncryptedInputWithWrongSecretIsDropped exercises §8: decryption
// under any secret other than the correct one fails and must be
// dropped, never injected.
func TestEncryptedInputWithWrongSecretIsDropped(t *testing.T) {
	t.Parallel()

	backend := capture.NewFakeBackend()
	backend.SetContent("demo", "")
	fake := clock.Fake(time.Now())
	controller, _ := newTestController(t, backend, fake)

	viewerKeys, err := crypto.GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair: %v", err)
	}
	controller.OnViewerJoined(wire.ViewerJoined{ViewerID: "viewer-a", PublicKey: viewerKeys.Public.String()})

	otherKeys, err := crypto.GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair: %v", err)
	}
	wrongSecret := otherKeys.Precompute(viewerKeys.Public)

	box, err := crypto.Seal(wrongSecret, []byte(`{"keys":"ls\n","type":"text"}`))
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	controller.OnEncryptedInput(wire.EncryptedInput{ViewerID: "viewer-a", Encrypted: box})

	if inputs := backend.Inputs("demo"); len(inputs) != 0 {
		t.Fatalf("backend.Inputs = %+v, want none — undecryptable input must be dropped", inputs)
	}
}

// TestViewerLeftDiscardsSecret confirms a departed viewer's shared
// secret is removed, so a subsequent forged message under a stale
// secret binding never reaches the backend.
func TestViewerLeftDiscardsSecret(t *testing.T) {
	t.Parallel()

	backend := capture.NewFakeBackend()
	backend.SetContent("demo", "")
	fake := clock.Fake(time.Now())
	controller, _ := newTestController(t, backend, fake)

	viewerKeys, err := crypto.GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair: %v", err)
	}
	controller.OnViewerJoined(wire.ViewerJoined{ViewerID: "viewer-a", PublicKey: viewerKeys.Public.String()})
	if controller.ViewerCount() != 1 {
		t.Fatalf("ViewerCount = %d, want 1", controller.ViewerCount())
	}

	controller.OnViewerLeft(wire.ViewerLeft{ViewerID: "viewer-a"})
	if controller.ViewerCount() != 0 {
		t.Fatalf("ViewerCount = %d, want 0 after viewer-left", controller.ViewerCount())
	}
}

// --- test helpers ---

// fakeViewerPeer is a viewer identity plus the encrypted-output frames
// routed to it, captured via a SendFunc installed on the controller
// under test (not a real connection).
type fakeViewerPeer struct {
	id               string
	encryptedOutputs chan wire.EncryptedOutput
}

// joinFakeViewer simulates a viewer-joined event for a fresh ephemeral
// key pair and returns a peer handle that receives every
// encrypted-output addressed to it, plus the derived shared secret so
// the test can decrypt them.
func joinFakeViewer(t *testing.T, controller *Controller) (*fakeViewerPeer, crypto.SharedSecret) {
	t.Helper()
	viewerKeys, err := crypto.GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair: %v", err)
	}

	peer := &fakeViewerPeer{id: "viewer-" + viewerKeys.Public.String()[:8], encryptedOutputs: make(chan wire.EncryptedOutput, 16)}

	// Wrap the controller's existing send so this viewer's frames are
	// also delivered to the peer channel, without disturbing any
	// sender already installed (tests that need both use their own
	// recordingSender directly).
	controller.sendMu.Lock()
	inner := controller.send
	controller.send = func(messageType string, v any) error {
		if messageType == wire.TypeEncryptedOut {
			if out, ok := v.(wire.EncryptedOutput); ok && out.ViewerID == peer.id {
				select {
				case peer.encryptedOutputs <- out:
				default:
				}
			}
		}
		if inner != nil {
			return inner(messageType, v)
		}
		return nil
	}
	controller.sendMu.Unlock()

	controller.OnViewerJoined(wire.ViewerJoined{ViewerID: peer.id, PublicKey: viewerKeys.Public.String()})
	secret := viewerKeys.Precompute(mustParsePublicKey(t, controller.PublicKey()))
	return peer, secret
}

func mustParsePublicKey(t *testing.T, encoded string) crypto.PublicKey {
	t.Helper()
	key, err := crypto.ParsePublicKey(encoded)
	if err != nil {
		t.Fatalf("ParsePublicKey(%q): %v", encoded, err)
	}
	return key
}

func decryptOutputEvent(t *testing.T, secret crypto.SharedSecret, box wire.CipherBox) wire.Output {
	t.Helper()
	plaintext, err := crypto.Open(secret, box)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	var evt wire.Output
	if err := json.Unmarshal(plaintext, &evt); err != nil {
		t.Fatalf("unmarshal OutputEvent: %v", err)
	}
	return evt
}
