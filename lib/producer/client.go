// Copyright 2026 The Scrybe Authors
// SPDX-License-Identifier: Apache-2.0

package producer

import (
	"context"
	"errors"
	"log/slog"
	"net"

	"github.com/scrybe/scrybe/lib/clock"
	"github.com/scrybe/scrybe/lib/wire"
)

// ClientConfig configures a single-session producer's transport.
type ClientConfig struct {
	// ServerAddr is the relay's TCP address (host:port).
	ServerAddr string

	// UserSecret, when non-empty, is hashed by the relay into the
	// session's owning userId (§3, §4.1).
	UserSecret string

	Controller *Controller
	Clock      clock.Clock
	Logger     *slog.Logger

	// Dial overrides the network dialer, for tests. Defaults to
	// net.Dial("tcp", ServerAddr).
	Dial func(ctx context.Context) (net.Conn, error)
}

// Client owns the transport for a single-session producer: dialing the
// relay, sending the hello handshake, running the controller's capture
// loop for the connection's lifetime, and dispatching incoming
// relay→producer frames. Reconnects with backoff on any disconnect
// (§4.2 "Reconnect").
type Client struct {
	cfg    ClientConfig
	logger *slog.Logger
}

// NewClient creates a Client. cfg.Controller must be non-nil.
func NewClient(cfg ClientConfig) *Client {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Client{cfg: cfg, logger: logger}
}

// Run blocks, maintaining a connection to the relay (reconnecting with
// backoff across transport faults) until ctx is cancelled.
func (cl *Client) Run(ctx context.Context) error {
	backoff := newBackoff(cl.cfg.Clock)
	for {
		err := cl.runOnce(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			cl.logger.Warn("disconnected from relay, reconnecting", "sessionId", cl.cfg.Controller.SessionID, "error", err)
		}
		delay := backoff.next()
		select {
		case <-cl.cfg.Clock.After(delay):
		case <-ctx.Done():
			return nil
		}
	}
}

func (cl *Client) dial(ctx context.Context) (net.Conn, error) {
	if cl.cfg.Dial != nil {
		return cl.cfg.Dial(ctx)
	}
	return net.Dial("tcp", cl.cfg.ServerAddr)
}

// runOnce dials, hellos, and services one connection to completion. It
// returns when the connection closes (any error, including a clean
// close, since there is no clean-shutdown frame in this protocol) or
// ctx is cancelled.
func (cl *Client) runOnce(ctx context.Context) error {
	netConn, err := cl.dial(ctx)
	if err != nil {
		return err
	}
	defer netConn.Close()

	controller := cl.cfg.Controller
	conn := newClientConn(netConn)

	if err := conn.send(wire.TypeHello, wire.Hello{
		Role:       wire.RoleProducer,
		SessionID:  controller.SessionID,
		PublicKey:  controller.PublicKey(),
		UserSecret: cl.cfg.UserSecret,
	}); err != nil {
		return err
	}

	// Old shared secrets are discarded on every (re)connect — viewers
	// re-pair afresh against the relay's re-announced viewer-joined
	// frames (§4.2 "Reconnect").
	controller.DiscardSecrets()
	controller.SetSend(conn.send)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	captureDone := make(chan error, 1)
	go func() { captureDone <- controller.Run(runCtx) }()

	readErr := cl.readLoop(netConn, controller)
	cancel()
	<-captureDone
	return readErr
}

// readLoop dispatches every incoming relay→producer frame until the
// connection fails.
func (cl *Client) readLoop(netConn net.Conn, controller *Controller) error {
	for {
		envelope, err := wire.ReadFrame(netConn)
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
		dispatchControllerFrame(controller, envelope, cl.logger)
	}
}

// dispatchControllerFrame decodes one relay→producer frame and routes
// it to the owning controller. Shared by the single-session client and
// the daemon client (once it has resolved which controller a daemon-
// tagged frame belongs to).
func dispatchControllerFrame(controller *Controller, envelope wire.Envelope, logger *slog.Logger) {
	switch envelope.Type {
	case wire.TypeViewerJoined:
		var msg wire.ViewerJoined
		if err := envelope.Decode(&msg); err != nil {
			logger.Warn("malformed viewer-joined, dropping", "error", err)
			return
		}
		controller.OnViewerJoined(msg)

	case wire.TypeViewerLeft:
		var msg wire.ViewerLeft
		if err := envelope.Decode(&msg); err != nil {
			logger.Warn("malformed viewer-left, dropping", "error", err)
			return
		}
		controller.OnViewerLeft(msg)

	case wire.TypeEncryptedInput:
		var msg wire.EncryptedInput
		if err := envelope.Decode(&msg); err != nil {
			logger.Warn("malformed encrypted-input, dropping", "error", err)
			return
		}
		controller.OnEncryptedInput(msg)

	case wire.TypeInput:
		var msg wire.Input
		if err := envelope.Decode(&msg); err != nil {
			logger.Warn("malformed input, dropping", "error", err)
			return
		}
		controller.OnPlainInput(msg)
	}
}
