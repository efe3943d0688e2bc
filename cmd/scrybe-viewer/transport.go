// Copyright 2026 The Scrybe Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/scrybe/scrybe/lib/crypto"
	"github.com/scrybe/scrybe/lib/viewerui"
	"github.com/scrybe/scrybe/lib/wire"
)

// sendTimeout bounds how long a single frame write may block, the
// same defense lib/producer's client connection applies.
const sendTimeout = 5 * time.Second

// viewerConn owns the transport for one viewer session: dialing the
// relay, running the hello handshake, deriving the shared secret with
// whichever producer is bound, and translating wire frames into
// viewerui.Event values for the TUI's event channel.
type viewerConn struct {
	serverAddr string
	sessionID  string
	nickname   string
	keyPair    crypto.KeyPair
	logger     *slog.Logger

	events chan viewerui.Event

	writeMu sync.Mutex
	netConn net.Conn

	secretMu    sync.Mutex
	producerKey crypto.PublicKey
	secret      crypto.SharedSecret
	haveSecret  bool
}

func newViewerConn(serverAddr, sessionID, nickname string, keyPair crypto.KeyPair, logger *slog.Logger) *viewerConn {
	return &viewerConn{
		serverAddr: serverAddr,
		sessionID:  sessionID,
		nickname:   nickname,
		keyPair:    keyPair,
		logger:     logger,
		events:     make(chan viewerui.Event, 64),
	}
}

// dial connects to the relay and sends the hello handshake. It must
// complete before any of requestControl/releaseControl/getHistory/
// sendInput are called, and before run is started.
func (vc *viewerConn) dial(ctx context.Context) error {
	netConn, err := net.Dial("tcp", vc.serverAddr)
	if err != nil {
		return fmt.Errorf("dial %s: %w", vc.serverAddr, err)
	}
	vc.netConn = netConn

	go func() {
		<-ctx.Done()
		_ = netConn.Close()
	}()

	return vc.send(wire.TypeHello, wire.Hello{
		Role:      wire.RoleViewer,
		SessionID: vc.sessionID,
		PublicKey: vc.keyPair.Public.String(),
		Nickname:  vc.nickname,
	})
}

// run services incoming frames until ctx is cancelled or the
// connection fails. It does not reconnect — the viewer is an
// interactive session, not a long-running daemon, so a dropped
// connection ends the program (§4.2 covers producer/daemon reconnect
// only). dial must have already succeeded.
func (vc *viewerConn) run(ctx context.Context) error {
	defer vc.netConn.Close()
	for {
		envelope, err := wire.ReadFrame(vc.netConn)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
		vc.dispatch(envelope)
	}
}

func (vc *viewerConn) send(messageType string, v any) error {
	vc.writeMu.Lock()
	defer vc.writeMu.Unlock()
	_ = vc.netConn.SetWriteDeadline(time.Now().Add(sendTimeout))
	if err := wire.WriteFrame(vc.netConn, messageType, v); err != nil {
		return fmt.Errorf("send %s: %w", messageType, err)
	}
	return nil
}

// dispatch decodes one relay→viewer frame, decrypting it first if
// necessary, and emits the resulting viewerui.Event.
func (vc *viewerConn) dispatch(envelope wire.Envelope) {
	switch envelope.Type {
	case wire.TypeCLIStatus:
		var status wire.CLIStatus
		if err := envelope.Decode(&status); err != nil {
			vc.logger.Warn("malformed cli-status, dropping", "error", err)
			return
		}
		if status.PublicKey != nil {
			vc.deriveSecret(*status.PublicKey)
		}
		vc.events <- viewerui.Event{Kind: wire.TypeCLIStatus, CLIStatus: status}

	case wire.TypeOutput:
		var out wire.Output
		if err := envelope.Decode(&out); err != nil {
			vc.logger.Warn("malformed output, dropping", "error", err)
			return
		}
		vc.events <- viewerui.Event{Kind: wire.TypeOutput, Output: out}

	case wire.TypeEncryptedOut:
		var msg wire.EncryptedOutput
		if err := envelope.Decode(&msg); err != nil {
			vc.logger.Warn("malformed encrypted-output, dropping", "error", err)
			return
		}
		out, ok := vc.decryptOutput(msg.Encrypted)
		if !ok {
			return
		}
		vc.events <- viewerui.Event{Kind: wire.TypeOutput, Output: out}

	case wire.TypeHistory:
		var msg wire.History
		if err := envelope.Decode(&msg); err != nil {
			vc.logger.Warn("malformed history, dropping", "error", err)
			return
		}
		vc.events <- viewerui.Event{Kind: wire.TypeHistory, History: msg.Events}

	case wire.TypeEncryptedHist:
		var msg wire.EncryptedHistory
		if err := envelope.Decode(&msg); err != nil {
			vc.logger.Warn("malformed encrypted-history, dropping", "error", err)
			return
		}
		events := make([]wire.Output, 0, len(msg.Events))
		for _, entry := range msg.Events {
			out, ok := vc.decryptOutput(entry.Encrypted)
			if !ok {
				continue
			}
			events = append(events, out)
		}
		vc.events <- viewerui.Event{Kind: wire.TypeHistory, History: events}

	case wire.TypeControlStatus:
		var status wire.ControlStatus
		if err := envelope.Decode(&status); err != nil {
			vc.logger.Warn("malformed control-status, dropping", "error", err)
			return
		}
		vc.events <- viewerui.Event{Kind: wire.TypeControlStatus, ControlStatus: status}

	case wire.TypeControlDenied:
		var msg wire.ControlDenied
		if err := envelope.Decode(&msg); err != nil {
			return
		}
		vc.events <- viewerui.Event{Kind: wire.TypeControlDenied, ControlDenied: msg}

	case wire.TypeInputRejected:
		var msg wire.InputRejected
		if err := envelope.Decode(&msg); err != nil {
			return
		}
		vc.events <- viewerui.Event{Kind: wire.TypeInputRejected, InputRejected: msg}

	case wire.TypeError:
		var msg wire.ErrorMsg
		if err := envelope.Decode(&msg); err != nil {
			return
		}
		vc.events <- viewerui.Event{Kind: wire.TypeError, Error: msg}
	}
}

// deriveSecret precomputes the shared secret against the producer's
// currently announced public key, replacing any prior one — a fresh
// producer binding (reconnect, or a daemon handing the session to a
// different key pair) always means a fresh secret.
func (vc *viewerConn) deriveSecret(encoded string) {
	peerKey, err := crypto.ParsePublicKey(encoded)
	if err != nil {
		vc.logger.Warn("cli-status with malformed public key, dropping", "error", err)
		return
	}
	vc.secretMu.Lock()
	vc.producerKey = peerKey
	vc.secret = vc.keyPair.Precompute(peerKey)
	vc.haveSecret = true
	vc.secretMu.Unlock()
}

func (vc *viewerConn) decryptOutput(box wire.CipherBox) (wire.Output, bool) {
	vc.secretMu.Lock()
	secret, ok := vc.secret, vc.haveSecret
	vc.secretMu.Unlock()
	if !ok {
		return wire.Output{}, false
	}
	plaintext, err := crypto.Open(secret, box)
	if err != nil {
		vc.logger.Warn("decrypt output failed, dropping", "error", err)
		return wire.Output{}, false
	}
	var out wire.Output
	if err := json.Unmarshal(plaintext, &out); err != nil {
		vc.logger.Warn("parse decrypted output failed, dropping", "error", err)
		return wire.Output{}, false
	}
	return out, true
}

// requestControl asks the relay to grant this viewer the control lock.
func (vc *viewerConn) requestControl() {
	if err := vc.send(wire.TypeRequestControl, struct{}{}); err != nil {
		vc.logger.Warn("send request-control failed", "error", err)
	}
}

// releaseControl gives up the control lock, if held.
func (vc *viewerConn) releaseControl() {
	if err := vc.send(wire.TypeReleaseControl, struct{}{}); err != nil {
		vc.logger.Warn("send release-control failed", "error", err)
	}
}

// getHistory asks the relay for the bounded output history ring.
func (vc *viewerConn) getHistory() {
	if err := vc.send(wire.TypeGetHistory, struct{}{}); err != nil {
		vc.logger.Warn("send get-history failed", "error", err)
	}
}

// sendInput forwards one keystroke to the bound producer, encrypting
// it first if a shared secret has been derived.
func (vc *viewerConn) sendInput(kind wire.InputKind, data string) {
	input := wire.Input{Keys: data, Type: kind}

	vc.secretMu.Lock()
	secret, encrypted := vc.secret, vc.haveSecret
	vc.secretMu.Unlock()

	if !encrypted {
		if err := vc.send(wire.TypeInput, input); err != nil {
			vc.logger.Warn("send input failed", "error", err)
		}
		return
	}

	plaintext, err := json.Marshal(input)
	if err != nil {
		vc.logger.Error("marshal input failed", "error", err)
		return
	}
	box, err := crypto.Seal(secret, plaintext)
	if err != nil {
		vc.logger.Error("seal input failed", "error", err)
		return
	}
	if err := vc.send(wire.TypeEncryptedInput, wire.EncryptedInput{Encrypted: box}); err != nil {
		vc.logger.Warn("send encrypted-input failed", "error", err)
	}
}
