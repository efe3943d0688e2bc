// Copyright 2026 The Scrybe Authors
// SPDX-License-Identifier: Apache-2.0

package relay

import (
	"context"
	"testing"
	"time"

	"github.com/scrybe/scrybe/lib/clock"
	"github.com/scrybe/scrybe/lib/wire"
)

func TestSessionsForUserNewestFirst(t *testing.T) {
	t.Parallel()

	fake := clock.Fake(time.Now())
	registry := NewRegistry(fake, testLogger())

	a, isNew := registry.GetOrCreateSession("a")
	if !isNew {
		t.Fatal("expected a to be new")
	}
	registry.RecordOwnership(a, DeriveUserID("s"))

	fake.Advance(time.Second)
	b, _ := registry.GetOrCreateSession("b")
	registry.RecordOwnership(b, DeriveUserID("s"))

	// A session created under a different secret must not appear.
	other, _ := registry.GetOrCreateSession("other")
	registry.RecordOwnership(other, DeriveUserID("different-secret"))

	sessions := registry.SessionsForUser(DeriveUserID("s"))
	if len(sessions) != 2 {
		t.Fatalf("len(sessions) = %d, want 2", len(sessions))
	}
	if sessions[0].ID != "b" || sessions[1].ID != "a" {
		t.Errorf("order = [%s, %s], want [b, a] (newest first)", sessions[0].ID, sessions[1].ID)
	}
}

func TestEmptySessionReaping(t *testing.T) {
	t.Parallel()

	fake := clock.Fake(time.Now())
	registry := NewRegistry(fake, testLogger())

	session, _ := registry.GetOrCreateSession("demo")
	producerConn, _ := newTestPeer(t, wire.RoleProducer)
	session.BindProducer(producerConn, "")
	session.UnbindProducer(producerConn)

	if session.IsEmptySince(emptySessionGrace, fake.Now()) {
		t.Fatal("should not be reapable immediately after emptying")
	}

	fake.Advance(emptySessionGrace)
	if !session.IsEmptySince(emptySessionGrace, fake.Now()) {
		t.Fatal("should be reapable once the grace period elapses")
	}

	registry.reapEmptySessions()
	if _, ok := registry.GetSession("demo"); ok {
		t.Fatal("reaped session should no longer be retrievable")
	}
}

func TestDispatchCommandNoDaemon(t *testing.T) {
	t.Parallel()

	fake := clock.Fake(time.Now())
	registry := NewRegistry(fake, testLogger())

	_, err := registry.DispatchCommand(context.Background(), wire.CommandListSessions, nil)
	if err != ErrNoDaemon {
		t.Fatalf("err = %v, want ErrNoDaemon", err)
	}
}

func TestDispatchCommandTimeout(t *testing.T) {
	t.Parallel()

	fake := clock.Fake(time.Now())
	registry := NewRegistry(fake, testLogger())

	daemonConn, daemonPeer := newTestPeer(t, wire.RoleDaemon)
	registry.RegisterDaemon("", daemonConn)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, err := registry.DispatchCommand(context.Background(), wire.CommandListSessions, nil)
		if err != ErrCommandTimeout {
			t.Errorf("err = %v, want ErrCommandTimeout", err)
		}
	}()

	daemonPeer.expectMessage(wire.TypeCLICommand, nil)
	fake.Advance(daemonCommandTimeout)
	<-done
}

func TestDispatchCommandSuccess(t *testing.T) {
	t.Parallel()

	fake := clock.Fake(time.Now())
	registry := NewRegistry(fake, testLogger())

	daemonConn, daemonPeer := newTestPeer(t, wire.RoleDaemon)
	registry.RegisterDaemon("", daemonConn)

	done := make(chan wire.CLIResponse, 1)
	go func() {
		resp, err := registry.DispatchCommand(context.Background(), wire.CommandCreateSession, wire.CreateSessionParams{Name: "x"})
		if err != nil {
			t.Errorf("DispatchCommand: %v", err)
		}
		done <- resp
	}()

	var cmd wire.CLICommand
	daemonPeer.expectMessage(wire.TypeCLICommand, &cmd)
	registry.ResolveCommand(wire.CLIResponse{CommandID: cmd.CommandID, Success: true})

	resp := <-done
	if !resp.Success {
		t.Error("resp.Success = false, want true")
	}
}
