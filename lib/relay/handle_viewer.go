// Copyright 2026 The Scrybe Authors
// SPDX-License-Identifier: Apache-2.0

package relay

import (
	"context"

	"github.com/google/uuid"

	"github.com/scrybe/scrybe/lib/wire"
)

// handleViewer registers a viewer connection and services its frames
// until disconnect (§4.1 "Viewer binding", "Viewer termination").
func (s *Server) handleViewer(ctx context.Context, c *conn, hello wire.Hello) {
	session, isNew := s.registry.GetOrCreateSession(hello.SessionID)
	_ = isNew // a viewer may be the first connection for a session

	viewer := &Viewer{
		ID:        uuid.NewString(),
		PublicKey: hello.PublicKey,
		Nickname:  hello.Nickname,
		conn:      c,
	}
	session.AddViewer(viewer)

	readLoop(ctx, c.netConn, func(envelope wire.Envelope) bool {
		s.dispatchViewerFrame(session, viewer, envelope)
		return true
	})

	session.RemoveViewer(viewer.ID)
	_ = c.close()
}

func (s *Server) dispatchViewerFrame(session *Session, viewer *Viewer, envelope wire.Envelope) {
	switch envelope.Type {
	case wire.TypeInput:
		var msg wire.Input
		if err := envelope.Decode(&msg); err != nil {
			return
		}
		s.authorizeAndForward(session, viewer, func() error {
			return session.ForwardPlainInput(msg)
		})

	case wire.TypeEncryptedInput:
		var msg wire.EncryptedInput
		if err := envelope.Decode(&msg); err != nil {
			return
		}
		s.authorizeAndForward(session, viewer, func() error {
			return session.ForwardEncryptedInput(viewer.ID, msg.Encrypted)
		})

	case wire.TypeRequestControl:
		granted, holderID, holderNickname := session.RequestControl(viewer.ID, viewer.Nickname)
		if !granted {
			_ = viewer.conn.send(wire.TypeControlDenied, wire.ControlDenied{
				Reason:         "locked",
				HolderID:       holderID,
				HolderNickname: holderNickname,
			})
		}

	case wire.TypeReleaseControl:
		session.ReleaseControl(viewer.ID)

	case wire.TypeGetHistory:
		session.SendHistory(viewer.ID)
	}
}

// authorizeAndForward gates a keystroke message through the control
// lock (§4.1 step 1-4) before forwarding it to the producer.
func (s *Server) authorizeAndForward(session *Session, viewer *Viewer, forward func() error) {
	if !session.AuthorizeInput(viewer.ID) {
		_ = viewer.conn.send(wire.TypeInputRejected, wire.InputRejected{Reason: "not-controller"})
		return
	}
	if err := forward(); err != nil {
		_ = viewer.conn.send(wire.TypeError, wire.ErrorMsg{Message: "CLI not connected"})
	}
}
