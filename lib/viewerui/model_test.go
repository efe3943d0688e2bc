// Copyright 2026 The Scrybe Authors
// SPDX-License-Identifier: Apache-2.0

package viewerui

import (
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/scrybe/scrybe/lib/wire"
)

func testModel() (Model, *int, *int, *[]struct {
	kind wire.InputKind
	data string
}) {
	requestCalls := 0
	releaseCalls := 0
	var sent []struct {
		kind wire.InputKind
		data string
	}
	model := NewModel("demo", "viewer-1", nil,
		func() { requestCalls++ },
		func() { releaseCalls++ },
		func(kind wire.InputKind, data string) {
			sent = append(sent, struct {
				kind wire.InputKind
				data string
			}{kind, data})
		},
	)
	model.width, model.height, model.ready = 80, 24, true
	model.viewport.Width, model.viewport.Height = 80, 22
	return model, &requestCalls, &releaseCalls, &sent
}

func TestUpdateRequestsControlOnF1(t *testing.T) {
	model, requestCalls, _, _ := testModel()

	next, cmd := model.Update(tea.KeyMsg{Type: tea.KeyF1})
	if cmd != nil {
		cmd()
	}
	if *requestCalls != 1 {
		t.Fatalf("requestControl calls = %d, want 1", *requestCalls)
	}
	_ = next
}

func TestUpdateReleasesControlOnF1WhenHeld(t *testing.T) {
	model, _, releaseCalls, _ := testModel()
	model.controlLocked = true
	model.controlHolderID = model.viewerID

	_, cmd := model.Update(tea.KeyMsg{Type: tea.KeyF1})
	if cmd != nil {
		cmd()
	}
	if *releaseCalls != 1 {
		t.Fatalf("releaseControl calls = %d, want 1", *releaseCalls)
	}
}

// Holding the control lock must not let navigation keys swallow
// keystrokes meant for the remote pane: every key other than the
// three function-key bindings is forwarded instead.
func TestUpdateForwardsKeystrokesWhileHoldingControl(t *testing.T) {
	model, _, _, sent := testModel()
	model.controlLocked = true
	model.controlHolderID = model.viewerID

	model.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("j")})
	model.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	model.Update(tea.KeyMsg{Type: tea.KeyEnter})

	if len(*sent) != 3 {
		t.Fatalf("forwarded %d keystrokes, want 3", len(*sent))
	}
	if (*sent)[0].kind != wire.InputText || (*sent)[0].data != "j" {
		t.Errorf("first forwarded key = %+v, want text \"j\"", (*sent)[0])
	}
	if (*sent)[1].kind != wire.InputSpecial || (*sent)[1].data != "C-c" {
		t.Errorf("second forwarded key = %+v, want special \"C-c\"", (*sent)[1])
	}
	if (*sent)[2].kind != wire.InputSpecial || (*sent)[2].data != "Enter" {
		t.Errorf("third forwarded key = %+v, want special \"Enter\"", (*sent)[2])
	}
}

// Without the control lock, the same keys are interpreted locally and
// never forwarded.
func TestUpdateDoesNotForwardWithoutControl(t *testing.T) {
	model, _, _, sent := testModel()

	updated, _ := model.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("k")})
	model = updated.(Model)

	if len(*sent) != 0 {
		t.Fatalf("forwarded %d keystrokes without control, want 0", len(*sent))
	}
	if model.follow {
		t.Errorf("follow = true after scrolling, want false")
	}
}

func TestHeldByMe(t *testing.T) {
	model, _, _, _ := testModel()

	if model.heldByMe() {
		t.Fatalf("heldByMe() = true with no lock, want false")
	}

	model.controlLocked = true
	model.controlHolderID = "someone-else"
	if model.heldByMe() {
		t.Fatalf("heldByMe() = true for another holder, want false")
	}

	model.controlHolderID = model.viewerID
	if !model.heldByMe() {
		t.Fatalf("heldByMe() = false for own holder ID, want true")
	}
}

func TestHandleEventLearnsViewerIDFromCLIStatus(t *testing.T) {
	model := NewModel("demo", "", nil, func() {}, func() {}, func(wire.InputKind, string) {})
	model.width, model.height, model.ready = 80, 24, true
	model.viewport.Width, model.viewport.Height = 80, 22

	model, _ = model.handleEvent(Event{
		Kind:      wire.TypeCLIStatus,
		CLIStatus: wire.CLIStatus{Connected: true, ViewerID: "viewer-42"},
	})
	if model.viewerID != "viewer-42" {
		t.Fatalf("viewerID = %q, want %q", model.viewerID, "viewer-42")
	}
}

func TestHandleEventHistoryFillsViewport(t *testing.T) {
	model, _, _, _ := testModel()

	model, _ = model.handleEvent(Event{
		Kind: wire.TypeHistory,
		History: []wire.Output{
			{Seq: 1, Content: "first\n"},
			{Seq: 2, Content: "second\n"},
		},
	})
	if model.lastSeq != 2 {
		t.Fatalf("lastSeq = %d, want 2", model.lastSeq)
	}
	if view := model.viewport.View(); !strings.Contains(view, "first") || !strings.Contains(view, "second") {
		t.Errorf("viewport = %q, want both history frames", view)
	}
}
