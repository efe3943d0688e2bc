// Copyright 2026 The Scrybe Authors
// SPDX-License-Identifier: Apache-2.0

// Package producer implements the producer-side session controller
// (§4.2): the capture loop, per-viewer key agreement and encryption,
// input injection, and the daemon RPC dispatcher that lets one process
// own many sessions.
package producer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/scrybe/scrybe/lib/capture"
	"github.com/scrybe/scrybe/lib/clock"
	"github.com/scrybe/scrybe/lib/crypto"
	"github.com/scrybe/scrybe/lib/wire"
)

// DefaultPollInterval is the capture loop's default period (§5).
const DefaultPollInterval = 100 * time.Millisecond

// SendFunc delivers one outgoing frame to the relay. It is supplied by
// whatever currently owns the underlying connection (the single-
// session client or the daemon client) and swapped out across
// reconnects, so Controller never touches a net.Conn directly.
type SendFunc func(messageType string, v any) error

// Config configures a Controller for one session incarnation.
type Config struct {
	// SessionID identifies the session to the relay.
	SessionID string

	// BackendName is the capture backend's session name. Defaults to
	// SessionID when empty — the common case for a single-session
	// producer, where the two are the same thing by convention.
	BackendName string

	// SessionIDTag is stamped onto the SessionID field of every
	// outgoing Output/EncryptedOutput/OutputHistoryMsg frame. Empty for
	// a single-session producer (whose connection is already bound to
	// one session); set to SessionID for a daemon-owned controller,
	// which multiplexes many sessions over one connection.
	SessionIDTag string

	Backend      capture.Backend
	Clock        clock.Clock
	Logger       *slog.Logger
	PollInterval time.Duration

	// Encrypted selects the encryption path (§3: "encrypted is set
	// when the producer supplied a public key at registration").
	// Defaults to true — this module always generates a key pair and
	// the unencrypted path exists mainly to exercise the plaintext
	// routing the relay also implements.
	Encrypted *bool
}

// Controller is the producer-side state for one attached session: its
// key pair, the per-viewer shared secrets derived from viewer-joined
// events, the capture loop's sequence counter and last-seen frame, and
// the dispatch methods the transport layer calls with incoming
// relay→producer frames.
type Controller struct {
	SessionID    string
	backendName  string
	sessionIDTag string
	backend      capture.Backend
	clock        clock.Clock
	logger       *slog.Logger
	pollInterval time.Duration
	encrypted    bool
	keyPair      crypto.KeyPair

	sendMu sync.RWMutex
	send   SendFunc

	mu          sync.Mutex
	secrets     map[string]crypto.SharedSecret
	seq         uint64
	lastContent string
	lastFrame   *wire.Output
}

// New creates a Controller for one session incarnation, generating a
// fresh long-term key pair (§3 "SharedSecret", §4.2 "Pairing and key
// agreement") unless Encrypted is explicitly set to false.
func New(cfg Config) (*Controller, error) {
	if cfg.SessionID == "" {
		return nil, fmt.Errorf("producer: SessionID is required")
	}
	if cfg.Backend == nil {
		return nil, fmt.Errorf("producer: Backend is required")
	}
	if cfg.Clock == nil {
		return nil, fmt.Errorf("producer: Clock is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	pollInterval := cfg.PollInterval
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}
	backendName := cfg.BackendName
	if backendName == "" {
		backendName = cfg.SessionID
	}
	encrypted := true
	if cfg.Encrypted != nil {
		encrypted = *cfg.Encrypted
	}

	var keyPair crypto.KeyPair
	if encrypted {
		var err error
		keyPair, err = crypto.GenerateKeyPair()
		if err != nil {
			return nil, fmt.Errorf("producer: generate key pair: %w", err)
		}
	}

	return &Controller{
		SessionID:    cfg.SessionID,
		backendName:  backendName,
		sessionIDTag: cfg.SessionIDTag,
		backend:      cfg.Backend,
		clock:        cfg.Clock,
		logger:       logger.With("sessionId", cfg.SessionID),
		pollInterval: pollInterval,
		encrypted:    encrypted,
		keyPair:      keyPair,
		secrets:      make(map[string]crypto.SharedSecret),
	}, nil
}

// PublicKey returns the session's long-term public key, base64
// encoded, or "" in unencrypted mode.
func (c *Controller) PublicKey() string {
	if !c.encrypted {
		return ""
	}
	return c.keyPair.Public.String()
}

// Encrypted reports whether this controller's session uses per-viewer
// encryption.
func (c *Controller) Encrypted() bool {
	return c.encrypted
}

// SetSend installs the function used to deliver outgoing frames.
// Called by the transport layer on every (re)connect — the daemon's
// capture loops keep running across a disconnect (the single-session
// Client instead restarts Run for each connection), so the loop must
// not itself own connection lifetime.
func (c *Controller) SetSend(send SendFunc) {
	c.sendMu.Lock()
	c.send = send
	c.sendMu.Unlock()
}

func (c *Controller) sendFrame(messageType string, v any) error {
	c.sendMu.RLock()
	send := c.send
	c.sendMu.RUnlock()
	if send == nil {
		return fmt.Errorf("producer: no connection to send %s on", messageType)
	}
	return send(messageType, v)
}

// ViewerCount reports how many viewers currently have a cached shared
// secret (encrypted mode) — used to answer the daemon's list-sessions
// RPC.
func (c *Controller) ViewerCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.secrets)
}

// DiscardSecrets wipes every cached shared secret. Called on
// detach-session and on reconnect (§4.2 "Reconnect": "old shared
// secrets are discarded").
func (c *Controller) DiscardSecrets() {
	c.mu.Lock()
	c.secrets = make(map[string]crypto.SharedSecret)
	c.mu.Unlock()
}

// Run blocks, polling the capture backend every pollInterval and
// publishing a new frame whenever the snapshot changes, until ctx is
// cancelled. The initial snapshot is always emitted unconditionally if
// non-empty (§4.2 "Capture loop"): as seq=1 on a fresh controller,
// while a later Run continues the sequence from the last emitted seq.
func (c *Controller) Run(ctx context.Context) error {
	initial, err := c.backend.Snapshot(c.backendName)
	if err != nil {
		c.logger.Warn("initial snapshot failed", "error", err)
	} else if initial != "" {
		c.emit(initial)
	}

	ticker := c.clock.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			content, err := c.backend.Snapshot(c.backendName)
			if err != nil {
				c.logger.Warn("capture snapshot failed", "error", err)
				continue
			}
			// Coalesce by always using the most recent snapshot (§5):
			// a slow tick never queues a backlog of stale frames.
			c.maybeEmit(content)
		}
	}
}

// maybeEmit advances seq and publishes a new frame only if content
// differs from the last captured snapshot (§3, §8 idempotence: two
// identical captures never produce two frames).
func (c *Controller) maybeEmit(content string) {
	c.mu.Lock()
	if content == c.lastContent {
		c.mu.Unlock()
		return
	}
	c.lastContent = content
	c.mu.Unlock()
	c.emit(content)
}

func (c *Controller) emit(content string) {
	c.mu.Lock()
	c.seq++
	evt := wire.Output{
		SessionID: c.sessionIDTag,
		Seq:       c.seq,
		Content:   content,
		Timestamp: c.clock.Now().UnixMilli(),
	}
	c.lastContent = content
	stored := evt
	c.lastFrame = &stored
	secrets := make(map[string]crypto.SharedSecret, len(c.secrets))
	for viewerID, secret := range c.secrets {
		secrets[viewerID] = secret
	}
	c.mu.Unlock()

	c.publish(evt, secrets)
}

// publish delivers evt to every paired viewer. In encrypted mode each
// viewer gets its own encrypted-output envelope; one arbitrary
// viewer's envelope is additionally offered to the relay as
// output-history for best-effort late-join context (§4.1, §4.2
// "Publish"). In unencrypted mode the frame is sent once as plaintext
// output and the relay fans it out itself.
func (c *Controller) publish(evt wire.Output, secrets map[string]crypto.SharedSecret) {
	if !c.encrypted {
		if err := c.sendFrame(wire.TypeOutput, evt); err != nil {
			c.logger.Warn("send output failed", "error", err)
		}
		return
	}

	plaintext, err := json.Marshal(evt)
	if err != nil {
		c.logger.Error("marshal output event failed", "error", err)
		return
	}

	var historySent bool
	for viewerID, secret := range secrets {
		box, err := crypto.Seal(secret, plaintext)
		if err != nil {
			c.logger.Error("seal envelope failed", "viewerId", viewerID, "error", err)
			continue
		}
		if err := c.sendFrame(wire.TypeEncryptedOut, wire.EncryptedOutput{
			SessionID: c.sessionIDTag,
			ViewerID:  viewerID,
			Encrypted: box,
			Seq:       evt.Seq,
			Timestamp: evt.Timestamp,
		}); err != nil {
			c.logger.Warn("send encrypted-output failed", "viewerId", viewerID, "error", err)
			continue
		}
		if !historySent {
			if err := c.sendFrame(wire.TypeOutputHistory, wire.OutputHistoryMsg{
				SessionID: c.sessionIDTag,
				Encrypted: box,
				Seq:       evt.Seq,
				Timestamp: evt.Timestamp,
			}); err != nil {
				c.logger.Warn("send output-history failed", "error", err)
			}
			historySent = true
		}
	}
}

// OnViewerJoined derives the shared secret for a newly joined viewer
// and immediately pushes the last known frame to it alone, so a late
// joiner sees content without waiting for the next diff (§4.2
// "Publish": "the controller immediately encrypts the cached last
// frame... for that viewer alone").
func (c *Controller) OnViewerJoined(msg wire.ViewerJoined) {
	if !c.encrypted {
		return
	}
	peerKey, err := crypto.ParsePublicKey(msg.PublicKey)
	if err != nil {
		c.logger.Warn("viewer-joined with malformed public key, dropping", "viewerId", msg.ViewerID, "error", err)
		return
	}

	secret := c.keyPair.Precompute(peerKey)

	c.mu.Lock()
	c.secrets[msg.ViewerID] = secret
	last := c.lastFrame
	c.mu.Unlock()

	if last == nil {
		return
	}
	plaintext, err := json.Marshal(*last)
	if err != nil {
		c.logger.Error("marshal last frame for late join failed", "error", err)
		return
	}
	box, err := crypto.Seal(secret, plaintext)
	if err != nil {
		c.logger.Error("seal last frame for late join failed", "viewerId", msg.ViewerID, "error", err)
		return
	}
	if err := c.sendFrame(wire.TypeEncryptedOut, wire.EncryptedOutput{
		SessionID: c.sessionIDTag,
		ViewerID:  msg.ViewerID,
		Encrypted: box,
		Seq:       last.Seq,
		Timestamp: last.Timestamp,
	}); err != nil {
		c.logger.Warn("send late-join frame failed", "viewerId", msg.ViewerID, "error", err)
	}
}

// OnViewerLeft discards the departed viewer's shared secret.
func (c *Controller) OnViewerLeft(msg wire.ViewerLeft) {
	c.mu.Lock()
	delete(c.secrets, msg.ViewerID)
	c.mu.Unlock()
}

// OnEncryptedInput decrypts an incoming keystroke envelope and injects
// it into the capture backend. A decrypt or parse failure is logged
// once and the message is dropped — never reflected back to the
// viewer, since the relay has no visibility into why (§4.2, §7 "Crypto
// faults").
func (c *Controller) OnEncryptedInput(msg wire.EncryptedInput) {
	c.mu.Lock()
	secret, ok := c.secrets[msg.ViewerID]
	c.mu.Unlock()
	if !ok {
		c.logger.Warn("encrypted-input for unknown viewer, dropping", "viewerId", msg.ViewerID)
		return
	}

	plaintext, err := crypto.Open(secret, msg.Encrypted)
	if err != nil {
		c.logger.Warn("decrypt input failed, dropping", "viewerId", msg.ViewerID, "error", err)
		return
	}

	var input wire.Input
	if err := json.Unmarshal(plaintext, &input); err != nil {
		c.logger.Warn("parse decrypted input failed, dropping", "viewerId", msg.ViewerID, "error", err)
		return
	}
	c.inject(input)
}

// OnPlainInput injects unencrypted keystrokes directly.
func (c *Controller) OnPlainInput(input wire.Input) {
	c.inject(input)
}

// inject maps the text/special input kind distinction onto the
// capture backend, per §4.2 "Input handling".
func (c *Controller) inject(input wire.Input) {
	if err := c.backend.Inject(c.backendName, input.Type, input.Keys); err != nil {
		c.logger.Warn("inject input failed", "error", err)
	}
}
