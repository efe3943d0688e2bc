// Copyright 2026 The Scrybe Authors
// SPDX-License-Identifier: Apache-2.0

package relay

import (
	"context"

	"github.com/scrybe/scrybe/lib/wire"
)

// handleDaemon registers a daemon connection, services its frames
// until disconnect, then detaches every session it owned (§3
// "DaemonRecord", §4.1 "Daemon RPC").
func (s *Server) handleDaemon(ctx context.Context, c *conn, userID string) {
	record := s.registry.RegisterDaemon(userID, c)

	readLoop(ctx, c.netConn, func(envelope wire.Envelope) bool {
		s.dispatchDaemonFrame(record.DaemonID, c, envelope)
		return true
	})

	s.registry.UnregisterDaemon(record.DaemonID)
	_ = c.close()
}

func (s *Server) dispatchDaemonFrame(daemonID string, c *conn, envelope wire.Envelope) {
	switch envelope.Type {
	case wire.TypeSessionAttach:
		var msg wire.SessionAttached
		if err := envelope.Decode(&msg); err != nil {
			return
		}
		s.attachDaemonSession(daemonID, c, msg.SessionID, msg.PublicKey)

	case wire.TypeSessionDetach:
		var msg wire.SessionDetached
		if err := envelope.Decode(&msg); err != nil {
			return
		}
		if session, ok := s.registry.GetSession(msg.SessionID); ok {
			session.UnbindProducer(c)
		}
		s.registry.UnbindDaemonSession(daemonID, msg.SessionID)

	case wire.TypeActiveSessions:
		var msg wire.ActiveSessions
		if err := envelope.Decode(&msg); err != nil {
			return
		}
		for _, summary := range msg.Sessions {
			s.attachDaemonSession(daemonID, c, summary.SessionID, summary.PublicKey)
		}

	case wire.TypeCLIResponse:
		var msg wire.CLIResponse
		if err := envelope.Decode(&msg); err != nil {
			return
		}
		s.registry.ResolveCommand(msg)

	case wire.TypeOutput:
		var msg wire.Output
		if err := envelope.Decode(&msg); err != nil {
			return
		}
		if session, ok := s.ownedSession(c, msg.SessionID); ok {
			session.HandleOutput(msg)
		}

	case wire.TypeEncryptedOut:
		var msg wire.EncryptedOutput
		if err := envelope.Decode(&msg); err != nil {
			return
		}
		if session, ok := s.ownedSession(c, msg.SessionID); ok {
			session.HandleEncryptedOutput(msg)
		}

	case wire.TypeOutputHistory:
		var msg wire.OutputHistoryMsg
		if err := envelope.Decode(&msg); err != nil {
			return
		}
		if session, ok := s.ownedSession(c, msg.SessionID); ok {
			session.HandleOutputHistory(msg)
		}
	}
}

// attachDaemonSession binds c as the producer for sessionID, as if it
// were a single-session producer connecting, and records the
// session↔daemon ownership used for routing later output frames.
func (s *Server) attachDaemonSession(daemonID string, c *conn, sessionID, publicKey string) {
	session, isNew := s.registry.GetOrCreateSession(sessionID)
	if isNew {
		s.registry.RecordOwnership(session, s.daemonUserID(daemonID))
	}
	previous := session.BindProducer(c, publicKey)
	if previous != nil && previous != c {
		_ = previous.close()
	}
	s.registry.BindDaemonSession(daemonID, sessionID)
}

// ownedSession resolves sessionID and confirms c is still its bound
// producer, so one daemon cannot inject frames for a session it no
// longer (or never) owns.
func (s *Server) ownedSession(c *conn, sessionID string) (*Session, bool) {
	session, ok := s.registry.GetSession(sessionID)
	if !ok {
		return nil, false
	}
	if !session.producerIs(c) {
		return nil, false
	}
	return session, true
}

// daemonUserID looks up the user a daemon connected as, for ownership
// recording on sessions it newly attaches.
func (s *Server) daemonUserID(daemonID string) string {
	binding, ok := s.registry.daemonByID(daemonID)
	if !ok {
		return ""
	}
	return binding.record.UserID
}
