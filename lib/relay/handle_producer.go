// Copyright 2026 The Scrybe Authors
// SPDX-License-Identifier: Apache-2.0

package relay

import (
	"context"

	"github.com/scrybe/scrybe/lib/wire"
)

// handleProducer binds a single-session producer connection and
// services its frames until disconnect (§4.1 "Producer binding",
// "Producer termination").
func (s *Server) handleProducer(ctx context.Context, c *conn, hello wire.Hello, userID string) {
	session, isNew := s.registry.GetOrCreateSession(hello.SessionID)
	if isNew {
		s.registry.RecordOwnership(session, userID)
	}

	previous := session.BindProducer(c, hello.PublicKey)
	if previous != nil {
		_ = previous.close()
	}

	readLoop(ctx, c.netConn, func(envelope wire.Envelope) bool {
		s.dispatchProducerFrame(session, envelope)
		return true
	})

	session.UnbindProducer(c)
	_ = c.close()
}

// dispatchProducerFrame handles one frame received from a single-session
// producer connection bound to session. Daemon connections, which
// multiplex many sessions and carry the target in each message's
// SessionID field, are handled by dispatchDaemonFrame instead.
func (s *Server) dispatchProducerFrame(session *Session, envelope wire.Envelope) {
	switch envelope.Type {
	case wire.TypeOutput:
		var msg wire.Output
		if err := envelope.Decode(&msg); err != nil {
			return
		}
		session.HandleOutput(msg)
	case wire.TypeEncryptedOut:
		var msg wire.EncryptedOutput
		if err := envelope.Decode(&msg); err != nil {
			return
		}
		session.HandleEncryptedOutput(msg)
	case wire.TypeOutputHistory:
		var msg wire.OutputHistoryMsg
		if err := envelope.Decode(&msg); err != nil {
			return
		}
		session.HandleOutputHistory(msg)
	}
}
