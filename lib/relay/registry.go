// Copyright 2026 The Scrybe Authors
// SPDX-License-Identifier: Apache-2.0

// Package relay implements the session directory, routing, and
// control-arbitration logic that a scrybe relay server exposes to
// producers, daemons, and viewers. It replaces the ambient global
// session-table pattern with an explicit Registry object that the
// server's connection handlers receive as a collaborator (§9).
package relay

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/scrybe/scrybe/lib/clock"
	"github.com/scrybe/scrybe/lib/wire"
)

// emptySessionGrace is how long a session may sit with no producer and
// no viewers before the reaper deletes it (§3, §4.1, §5).
const emptySessionGrace = 60 * time.Second

// daemonCommandTimeout bounds how long the registry waits for a
// dispatched daemon RPC command to complete (§4.1 "Daemon RPC").
const daemonCommandTimeout = 10 * time.Second

// controlLockSweepInterval is how often the optional periodic sweep
// checks every session's control lock for idle expiry (§5, §9).
const controlLockSweepInterval = 5 * time.Second

// ErrNoDaemon is returned by DispatchCommand when no daemon is
// connected.
var ErrNoDaemon = errors.New("relay: no daemon connected")

// ErrCommandTimeout is returned by DispatchCommand when the dispatched
// daemon does not reply within daemonCommandTimeout.
var ErrCommandTimeout = errors.New("relay: command timeout")

// Registry is the relay's session directory: it owns every Session and
// DaemonRecord and is the coarser lock taken for cross-session
// operations (user enumeration, daemon dispatch) per §5.
type Registry struct {
	clock  clock.Clock
	logger *slog.Logger

	mu       sync.Mutex
	sessions map[string]*Session
	daemons  map[string]*daemonBinding
	pending  map[string]chan wire.CLIResponse
}

type daemonBinding struct {
	record *DaemonRecord
	conn   *conn
}

// DaemonRecord is the relay-side record of one connected daemon
// producer: created on connect, destroyed on disconnect, at which
// point every session it owns is detached (§3).
type DaemonRecord struct {
	DaemonID         string
	UserID           string
	ActiveSessionIDs []string
}

// NewRegistry creates an empty session directory.
func NewRegistry(clk clock.Clock, logger *slog.Logger) *Registry {
	return &Registry{
		clock:    clk,
		logger:   logger,
		sessions: make(map[string]*Session),
		daemons:  make(map[string]*daemonBinding),
		pending:  make(map[string]chan wire.CLIResponse),
	}
}

// GetOrCreateSession returns the named session, creating it if absent.
// isNew reports whether this call created it — callers use this to
// decide whether to record ownership.
func (r *Registry) GetOrCreateSession(sessionID string) (session *Session, isNew bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.sessions[sessionID]; ok {
		return s, false
	}
	s := newSession(sessionID, r.clock, r.logger.With("sessionId", sessionID))
	r.sessions[sessionID] = s
	return s, true
}

// GetSession looks up a session without creating it.
func (r *Registry) GetSession(sessionID string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[sessionID]
	return s, ok
}

// Sessions returns every currently known session, in no particular
// order.
func (r *Registry) Sessions() []*Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	return out
}

// SessionsForUser returns every session owned by userID, newest-first
// (§4.1 "Session enumeration", scenario 6).
func (r *Registry) SessionsForUser(userID string) []*Session {
	r.mu.Lock()
	var matches []*Session
	for _, s := range r.sessions {
		if s.UserID == userID {
			matches = append(matches, s)
		}
	}
	r.mu.Unlock()

	sort.Slice(matches, func(i, j int) bool {
		return matches[i].CreatedAt.After(matches[j].CreatedAt)
	})
	return matches
}

// RecordOwnership assigns userID as the owner of a freshly created
// session (§4.1 "Session creation": only when the creator supplied a
// userSecret).
func (r *Registry) RecordOwnership(session *Session, userID string) {
	if userID == "" {
		return
	}
	session.setUserID(userID)
}

// RemoveSession deletes a session from the directory. Called by the
// reaper once a session has been empty for emptySessionGrace.
func (r *Registry) RemoveSession(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, sessionID)
}

// RegisterDaemon creates a DaemonRecord bound to c.
func (r *Registry) RegisterDaemon(userID string, c *conn) *DaemonRecord {
	record := &DaemonRecord{DaemonID: uuid.NewString(), UserID: userID}
	r.mu.Lock()
	r.daemons[record.DaemonID] = &daemonBinding{record: record, conn: c}
	r.mu.Unlock()
	return record
}

// UnregisterDaemon removes the daemon and detaches every session it
// was bound to, unbinding their producer connection (§3 "disconnect
// detaches every session bound to it").
func (r *Registry) UnregisterDaemon(daemonID string) {
	r.mu.Lock()
	binding, ok := r.daemons[daemonID]
	if ok {
		delete(r.daemons, daemonID)
	}
	var sessions []*Session
	if ok {
		for _, sid := range binding.record.ActiveSessionIDs {
			if s, exists := r.sessions[sid]; exists {
				sessions = append(sessions, s)
			}
		}
	}
	r.mu.Unlock()

	if !ok {
		return
	}
	for _, s := range sessions {
		s.UnbindProducer(binding.conn)
	}
}

// BindDaemonSession records that a daemon now owns an additional
// session (called on session-attached).
func (r *Registry) BindDaemonSession(daemonID, sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	binding, ok := r.daemons[daemonID]
	if !ok {
		return
	}
	for _, sid := range binding.record.ActiveSessionIDs {
		if sid == sessionID {
			return
		}
	}
	binding.record.ActiveSessionIDs = append(binding.record.ActiveSessionIDs, sessionID)
}

// UnbindDaemonSession removes sessionID from daemonID's active set
// (called on session-detached).
func (r *Registry) UnbindDaemonSession(daemonID, sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	binding, ok := r.daemons[daemonID]
	if !ok {
		return
	}
	filtered := binding.record.ActiveSessionIDs[:0]
	for _, sid := range binding.record.ActiveSessionIDs {
		if sid != sessionID {
			filtered = append(filtered, sid)
		}
	}
	binding.record.ActiveSessionIDs = filtered
}

// daemonByID looks up a daemon binding by ID.
func (r *Registry) daemonByID(daemonID string) (*daemonBinding, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	binding, ok := r.daemons[daemonID]
	return binding, ok
}

// anyDaemon returns an arbitrary connected daemon binding ("the first
// available daemon", §4.1 "Daemon RPC"). Map iteration order in Go is
// randomized per run, which is an acceptable reading of "first" given
// the spec does not define a priority among daemons.
func (r *Registry) anyDaemon() (*daemonBinding, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, binding := range r.daemons {
		return binding, true
	}
	return nil, false
}

// DispatchCommand forwards a daemon RPC command to the first available
// daemon and waits up to daemonCommandTimeout for its reply.
func (r *Registry) DispatchCommand(ctx context.Context, command string, params any) (wire.CLIResponse, error) {
	binding, ok := r.anyDaemon()
	if !ok {
		return wire.CLIResponse{}, ErrNoDaemon
	}

	commandID := uuid.NewString()
	replyCh := make(chan wire.CLIResponse, 1)

	r.mu.Lock()
	r.pending[commandID] = replyCh
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		delete(r.pending, commandID)
		r.mu.Unlock()
	}()

	if err := binding.conn.send(wire.TypeCLICommand, wire.CLICommand{
		CommandID: commandID,
		Command:   command,
		Params:    params,
	}); err != nil {
		return wire.CLIResponse{}, err
	}

	timeout := r.clock.After(daemonCommandTimeout)
	select {
	case resp := <-replyCh:
		return resp, nil
	case <-timeout:
		return wire.CLIResponse{}, ErrCommandTimeout
	case <-ctx.Done():
		return wire.CLIResponse{}, ctx.Err()
	}
}

// ResolveCommand delivers a daemon's cli-response to whichever
// DispatchCommand call is waiting on it, if any. Abandoned replies
// (the issuing HTTP request already timed out or its connection
// closed) are silently dropped — the timeout still fired on that side
// (§5 "Cancellation").
func (r *Registry) ResolveCommand(resp wire.CLIResponse) {
	r.mu.Lock()
	ch, ok := r.pending[resp.CommandID]
	r.mu.Unlock()
	if !ok {
		return
	}
	select {
	case ch <- resp:
	default:
	}
}

// RunReaper blocks, periodically sweeping empty sessions and idle
// control locks, until ctx is cancelled. Run it once per Registry in a
// background goroutine.
func (r *Registry) RunReaper(ctx context.Context) {
	reapTicker := r.clock.NewTicker(emptySessionGrace / 4)
	defer reapTicker.Stop()
	lockTicker := r.clock.NewTicker(controlLockSweepInterval)
	defer lockTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-reapTicker.C:
			r.reapEmptySessions()
		case <-lockTicker.C:
			r.sweepControlLocks()
		}
	}
}

func (r *Registry) reapEmptySessions() {
	now := r.clock.Now()
	for _, s := range r.Sessions() {
		if s.IsEmptySince(emptySessionGrace, now) {
			r.RemoveSession(s.ID)
			r.logger.Info("session reaped", "sessionId", s.ID)
		}
	}
}

func (r *Registry) sweepControlLocks() {
	for _, s := range r.Sessions() {
		s.sweepExpiredLock()
	}
}
