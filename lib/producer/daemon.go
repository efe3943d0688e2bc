// Copyright 2026 The Scrybe Authors
// SPDX-License-Identifier: Apache-2.0

package producer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/scrybe/scrybe/lib/capture"
	"github.com/scrybe/scrybe/lib/clock"
	"github.com/scrybe/scrybe/lib/crypto"
	"github.com/scrybe/scrybe/lib/wire"
)

// DaemonConfig configures a Daemon.
type DaemonConfig struct {
	Backend      capture.Backend
	Clock        clock.Clock
	Logger       *slog.Logger
	PollInterval time.Duration
}

// Daemon owns many sessions under one relay connection and answers
// the relay's daemon RPC (§4.1 "Daemon RPC", §4.2 "Daemon RPC"). It is
// transport-agnostic: DaemonClient drives it from a live connection,
// and SetSend/Run can equally be exercised directly in tests.
type Daemon struct {
	backend      capture.Backend
	clock        clock.Clock
	logger       *slog.Logger
	pollInterval time.Duration

	ctx context.Context

	sendMu sync.RWMutex
	send   SendFunc

	mu          sync.Mutex
	attached    map[string]*attachedSession
}

type attachedSession struct {
	controller *Controller
	cancel     context.CancelFunc
}

// NewDaemon creates a Daemon whose attached sessions' capture loops
// run for the lifetime of ctx (independent of any one relay
// connection — a capture loop keeps running across a reconnect).
func NewDaemon(ctx context.Context, cfg DaemonConfig) *Daemon {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Daemon{
		backend:      cfg.Backend,
		clock:        cfg.Clock,
		logger:       logger,
		pollInterval: cfg.PollInterval,
		ctx:          ctx,
		attached:     make(map[string]*attachedSession),
	}
}

// SetSend installs the function used to deliver outgoing frames,
// shared by every attached controller. Called by DaemonClient on every
// (re)connect.
func (d *Daemon) SetSend(send SendFunc) {
	d.sendMu.Lock()
	d.send = send
	d.sendMu.Unlock()

	d.mu.Lock()
	defer d.mu.Unlock()
	for _, a := range d.attached {
		a.controller.DiscardSecrets()
		a.controller.SetSend(send)
	}
}

func (d *Daemon) sendFrame(messageType string, v any) error {
	d.sendMu.RLock()
	send := d.send
	d.sendMu.RUnlock()
	if send == nil {
		return fmt.Errorf("producer: daemon has no connection to send %s on", messageType)
	}
	return send(messageType, v)
}

// ActiveSessions summarizes every attached session for the reconnect
// re-announce (§4.2 "Reconnect": "active-sessions summary in daemon
// mode").
func (d *Daemon) ActiveSessions() wire.ActiveSessions {
	d.mu.Lock()
	defer d.mu.Unlock()

	names := make([]string, 0, len(d.attached))
	for name := range d.attached {
		names = append(names, name)
	}
	sort.Strings(names)

	summaries := make([]wire.ActiveSessionSummary, 0, len(names))
	for _, name := range names {
		a := d.attached[name]
		summaries = append(summaries, wire.ActiveSessionSummary{
			SessionID:   name,
			PublicKey:   a.controller.PublicKey(),
			Encrypted:   a.controller.Encrypted(),
			ViewerCount: a.controller.ViewerCount(),
		})
	}
	return wire.ActiveSessions{Sessions: summaries}
}

// HandleCommand dispatches a relay-issued cli-command and returns the
// reply to send back as a cli-response (§4.2 "Daemon RPC": "all
// command failures are returned, never thrown out-of-band").
func (d *Daemon) HandleCommand(cmd wire.CLICommand) wire.CLIResponse {
	data, err := d.dispatch(cmd)
	if err != nil {
		return wire.CLIResponse{CommandID: cmd.CommandID, Success: false, Error: err.Error()}
	}
	return wire.CLIResponse{CommandID: cmd.CommandID, Success: true, Data: data}
}

func (d *Daemon) dispatch(cmd wire.CLICommand) (any, error) {
	switch cmd.Command {
	case wire.CommandListSessions:
		return d.ListSessions()

	case wire.CommandCreateSession:
		var params wire.CreateSessionParams
		if err := decodeParams(cmd.Params, &params); err != nil {
			return nil, err
		}
		return d.CreateSession(params.Name)

	case wire.CommandAttachSession:
		var params wire.AttachSessionParams
		if err := decodeParams(cmd.Params, &params); err != nil {
			return nil, err
		}
		return d.AttachSession(params.Name)

	case wire.CommandDetachSession:
		var params wire.AttachSessionParams
		if err := decodeParams(cmd.Params, &params); err != nil {
			return nil, err
		}
		return d.DetachSession(params.Name)

	default:
		return nil, fmt.Errorf("unknown command %q", cmd.Command)
	}
}

// decodeParams re-marshals a generic params value (as produced by
// decoding a wire.CLICommand's `any` field) into a typed struct.
func decodeParams(params any, dst any) error {
	raw, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("marshal command params: %w", err)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("decode command params: %w", err)
	}
	return nil
}

// ListSessions answers list-sessions: every backend session, which of
// them are currently attached, and each attached one's viewer count
// (§4.2).
func (d *Daemon) ListSessions() (wire.ListSessionsData, error) {
	all, err := d.backend.List()
	if err != nil {
		return wire.ListSessionsData{}, fmt.Errorf("list backend sessions: %w", err)
	}

	d.mu.Lock()
	active := make([]string, 0, len(d.attached))
	for name := range d.attached {
		active = append(active, name)
	}
	d.mu.Unlock()
	sort.Strings(active)

	sessions := make([]wire.SessionRPCInfo, 0, len(all))
	for _, name := range all {
		d.mu.Lock()
		a, attached := d.attached[name]
		d.mu.Unlock()
		info := wire.SessionRPCInfo{Name: name, Attached: attached}
		if attached {
			info.ViewerCount = a.controller.ViewerCount()
		}
		sessions = append(sessions, info)
	}

	return wire.ListSessionsData{All: all, Active: active, Sessions: sessions}, nil
}

// CreateSession answers create-session: errors if the backend already
// has a session by this name, otherwise creates it (§4.2).
func (d *Daemon) CreateSession(name string) (any, error) {
	if name == "" {
		return nil, fmt.Errorf("session name is required")
	}
	if d.backend.Exists(name) {
		return nil, fmt.Errorf("session %q already exists", name)
	}
	if err := d.backend.Create(name); err != nil {
		return nil, fmt.Errorf("create session %q: %w", name, err)
	}
	return map[string]string{"name": name}, nil
}

// AttachSession answers attach-session: errors if the backend session
// is unknown or already attached, otherwise generates a key pair,
// starts the capture loop, registers the session with the relay, and
// returns its public key and pairing code (§4.2).
func (d *Daemon) AttachSession(name string) (wire.AttachSessionData, error) {
	if name == "" {
		return wire.AttachSessionData{}, fmt.Errorf("session name is required")
	}
	if !d.backend.Exists(name) {
		return wire.AttachSessionData{}, fmt.Errorf("session %q does not exist", name)
	}

	d.mu.Lock()
	if _, ok := d.attached[name]; ok {
		d.mu.Unlock()
		return wire.AttachSessionData{}, fmt.Errorf("session %q is already attached", name)
	}
	d.mu.Unlock()

	controller, err := New(Config{
		SessionID:    name,
		BackendName:  name,
		SessionIDTag: name,
		Backend:      d.backend,
		Clock:        d.clock,
		Logger:       d.logger,
		PollInterval: d.pollInterval,
	})
	if err != nil {
		return wire.AttachSessionData{}, err
	}
	controller.SetSend(d.sendFrame)

	runCtx, cancel := context.WithCancel(d.ctx)

	d.mu.Lock()
	if _, ok := d.attached[name]; ok {
		d.mu.Unlock()
		cancel()
		return wire.AttachSessionData{}, fmt.Errorf("session %q is already attached", name)
	}
	d.attached[name] = &attachedSession{controller: controller, cancel: cancel}
	d.mu.Unlock()

	go func() {
		if err := controller.Run(runCtx); err != nil {
			d.logger.Warn("capture loop exited with error", "sessionId", name, "error", err)
		}
	}()

	if err := d.sendFrame(wire.TypeSessionAttach, wire.SessionAttached{
		SessionID: name,
		PublicKey: controller.PublicKey(),
		Encrypted: controller.Encrypted(),
	}); err != nil {
		d.logger.Warn("announce session-attached failed", "sessionId", name, "error", err)
	}

	code, err := crypto.PairingCode{
		SessionID: name,
		PublicKey: controller.PublicKey(),
		Timestamp: d.clock.Now().UnixMilli(),
	}.Encode()
	if err != nil {
		return wire.AttachSessionData{}, fmt.Errorf("encode pairing code: %w", err)
	}

	return wire.AttachSessionData{
		Name:        name,
		PublicKey:   controller.PublicKey(),
		PairingCode: code,
	}, nil
}

// DetachSession answers detach-session: stops the capture loop, drops
// cached shared secrets, and notifies the relay (§4.2).
func (d *Daemon) DetachSession(name string) (any, error) {
	d.mu.Lock()
	a, ok := d.attached[name]
	if ok {
		delete(d.attached, name)
	}
	d.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("session %q is not attached", name)
	}

	a.cancel()
	a.controller.DiscardSecrets()

	if err := d.sendFrame(wire.TypeSessionDetach, wire.SessionDetached{SessionID: name}); err != nil {
		d.logger.Warn("announce session-detached failed", "sessionId", name, "error", err)
	}
	return map[string]string{"name": name}, nil
}

// controllerFor resolves an attached session by name, for routing
// viewer-joined/viewer-left/encrypted-input frames that the relay
// tagged with a sessionId (DESIGN.md, lib/relay: "Design decision —
// daemon multiplexing via SessionID fields").
func (d *Daemon) controllerFor(sessionID string) (*Controller, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	a, ok := d.attached[sessionID]
	if !ok {
		return nil, false
	}
	return a.controller, true
}

// DetachAll stops every attached capture loop without notifying the
// relay — used on process shutdown, where there is no connection left
// to notify.
func (d *Daemon) DetachAll() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for name, a := range d.attached {
		a.cancel()
		delete(d.attached, name)
	}
}
