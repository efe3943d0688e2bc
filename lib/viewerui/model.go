// Copyright 2026 The Scrybe Authors
// SPDX-License-Identifier: Apache-2.0

package viewerui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"

	"github.com/scrybe/scrybe/lib/wire"
)

// statusBarHeight is the fixed number of rows the header and help
// lines occupy, leaving the remainder of the terminal for the
// viewport.
const statusBarHeight = 2

// noticeFadeDelay is how long a transient control-denied/
// input-rejected/error notice stays visible in the status line.
const noticeFadeDelay = 4 * time.Second

// noticeFadeMsg clears the transient notice after noticeFadeDelay.
type noticeFadeMsg struct{ generation int }

// eventMsg wraps an Event for delivery through the bubbletea message loop.
type eventMsg struct{ event Event }

// Model is the viewer's terminal UI: a scrollable viewport over the
// producer's most recently received frame, plus a status line showing
// connection, encryption, and control-lock state.
type Model struct {
	sessionID string
	viewerID  string
	theme     Theme
	keys      KeyMap
	renderer  *lipgloss.Renderer

	events         <-chan Event
	requestControl func()
	releaseControl func()
	sendInput      func(kind wire.InputKind, data string)

	viewport viewport.Model
	width    int
	height   int
	ready    bool
	follow   bool

	connected bool
	encrypted bool
	lastSeq   uint64

	controlLocked    bool
	controlHolderID  string
	controlHolder    string

	notice           string
	noticeIsError    bool
	noticeGeneration int
}

// NewModel creates a viewer Model. sessionID identifies the session
// being viewed; viewerID is this viewer's own identity, used to tell
// whether an incoming control-status update means this viewer holds
// the lock. requestControl and releaseControl send the corresponding
// wire request — they are fire-and-forget; the resulting state change
// arrives later as a control-status Event, same as any other viewer's
// request would. sendInput delivers one pass-through keystroke to the
// remote pane; called only while this viewer holds the control lock.
func NewModel(sessionID, viewerID string, events <-chan Event, requestControl, releaseControl func(), sendInput func(kind wire.InputKind, data string)) Model {
	return Model{
		sessionID:      sessionID,
		viewerID:       viewerID,
		theme:          DefaultTheme,
		keys:           DefaultKeyMap,
		renderer:       newRenderer(),
		events:         events,
		requestControl: requestControl,
		releaseControl: releaseControl,
		sendInput:      sendInput,
		follow:         true,
	}
}

// Init implements tea.Model.
func (model Model) Init() tea.Cmd {
	if model.events == nil {
		return nil
	}
	return listenForEvent(model.events)
}

// listenForEvent returns a tea.Cmd that blocks until an Event arrives,
// then delivers it as an eventMsg.
func listenForEvent(events <-chan Event) tea.Cmd {
	return func() tea.Msg {
		event, ok := <-events
		if !ok {
			return nil
		}
		return eventMsg{event: event}
	}
}

// Update implements tea.Model.
func (model Model) Update(message tea.Msg) (tea.Model, tea.Cmd) {
	switch message := message.(type) {
	case tea.KeyMsg:
		switch {
		case key.Matches(message, model.keys.Quit):
			return model, tea.Quit

		case key.Matches(message, model.keys.ToggleControl):
			if model.heldByMe() {
				return model, func() tea.Msg { model.releaseControl(); return nil }
			}
			return model, func() tea.Msg { model.requestControl(); return nil }

		case key.Matches(message, model.keys.ToggleFollow):
			model.follow = !model.follow
			if model.follow {
				model.gotoBottom()
			}

		case model.heldByMe():
			// Every other key is a keystroke meant for the remote pane,
			// not a local viewer command.
			model.forwardKey(message)

		case key.Matches(message, model.keys.Up):
			model.follow = false
			model.viewport.SetYOffset(model.viewport.YOffset - 1)

		case key.Matches(message, model.keys.Down):
			model.scrollDown(1)

		case key.Matches(message, model.keys.PageUp):
			model.follow = false
			model.viewport.HalfViewUp()

		case key.Matches(message, model.keys.PageDown):
			model.viewport.HalfViewDown()
			model.syncFollowFromPosition()

		case key.Matches(message, model.keys.Home):
			model.follow = false
			model.viewport.GotoTop()

		case key.Matches(message, model.keys.End):
			model.follow = true
			model.gotoBottom()
		}

	case tea.WindowSizeMsg:
		model.width = message.Width
		model.height = message.Height
		model.ready = true
		model.viewport.Width = model.width
		model.viewport.Height = model.height - statusBarHeight
		if model.follow {
			model.gotoBottom()
		}

	case eventMsg:
		next, cmd := model.handleEvent(message.event)
		return next, tea.Batch(cmd, listenForEvent(model.events))

	case noticeFadeMsg:
		if message.generation == model.noticeGeneration {
			model.notice = ""
			model.noticeIsError = false
		}
	}
	return model, nil
}

// handleEvent applies one Event to the model's state.
func (model Model) handleEvent(event Event) (Model, tea.Cmd) {
	switch event.Kind {
	case wire.TypeOutput, wire.TypeEncryptedOut:
		model.lastSeq = event.Output.Seq
		model.viewport.SetContent(wrapForViewport(event.Output.Content, model.viewport.Width))
		if model.follow {
			model.gotoBottom()
		}
		return model, nil

	case wire.TypeHistory, wire.TypeEncryptedHist:
		if len(event.History) == 0 {
			return model, nil
		}
		var lines []string
		for _, frame := range event.History {
			lines = append(lines, frame.Content)
			model.lastSeq = frame.Seq
		}
		model.viewport.SetContent(wrapForViewport(strings.Join(lines, ""), model.viewport.Width))
		if model.follow {
			model.gotoBottom()
		}
		return model, nil

	case wire.TypeCLIStatus:
		model.connected = event.CLIStatus.Connected
		model.encrypted = event.CLIStatus.Encrypted
		if event.CLIStatus.ViewerID != "" {
			model.viewerID = event.CLIStatus.ViewerID
		}
		return model, nil

	case wire.TypeControlStatus:
		model.controlLocked = event.ControlStatus.Locked
		model.controlHolderID = event.ControlStatus.HolderID
		model.controlHolder = event.ControlStatus.HolderNickname
		return model, nil

	case wire.TypeControlDenied:
		return model.withNotice(fmt.Sprintf("control denied: %s", event.ControlDenied.Reason), true)

	case wire.TypeInputRejected:
		return model.withNotice(fmt.Sprintf("input rejected: %s", event.InputRejected.Reason), true)

	case wire.TypeError:
		return model.withNotice(event.Error.Message, true)
	}
	return model, nil
}

// withNotice sets a transient status-line notice and schedules it to
// clear after noticeFadeDelay. The generation counter prevents a
// stale fade timer from clearing a newer notice that replaced it
// before the old timer fired.
func (model Model) withNotice(text string, isError bool) (Model, tea.Cmd) {
	model.notice = text
	model.noticeIsError = isError
	model.noticeGeneration++
	generation := model.noticeGeneration
	return model, tea.Tick(noticeFadeDelay, func(time.Time) tea.Msg {
		return noticeFadeMsg{generation: generation}
	})
}

// heldByMe reports whether this viewer currently holds the control lock.
func (model Model) heldByMe() bool {
	return model.controlLocked && model.controlHolderID == model.viewerID
}

// forwardKey translates a bubbletea key event into a wire input message
// and hands it to sendInput. Runes are sent as InputText so the
// producer can inject them as literal bytes; everything else (arrows,
// control combinations, function keys bubbletea reports but this
// model doesn't bind, ...) is sent as InputSpecial using tmux's own
// send-keys key names.
func (model Model) forwardKey(message tea.KeyMsg) {
	if model.sendInput == nil {
		return
	}
	if message.Type == tea.KeyRunes {
		model.sendInput(wire.InputText, string(message.Runes))
		return
	}
	model.sendInput(wire.InputSpecial, tmuxKeyName(message))
}

// scrollDown advances the viewport by n lines and drops follow mode
// only if the move didn't land at the bottom (scrolling down while
// already following should keep following).
func (model *Model) scrollDown(n int) {
	model.viewport.SetYOffset(model.viewport.YOffset + n)
	model.syncFollowFromPosition()
}

// syncFollowFromPosition re-enables follow mode once the viewport has
// been scrolled back down to the last line, so "jump to the bottom
// and stay there" composes naturally out of repeated downward scrolls.
func (model *Model) syncFollowFromPosition() {
	maxOffset := model.viewport.TotalLineCount() - model.viewport.Height
	model.follow = model.viewport.YOffset >= maxOffset
}

func (model *Model) gotoBottom() {
	maxOffset := model.viewport.TotalLineCount() - model.viewport.Height
	if maxOffset < 0 {
		maxOffset = 0
	}
	model.viewport.SetYOffset(maxOffset)
}

// View implements tea.Model.
func (model Model) View() string {
	if !model.ready {
		return "initializing..."
	}

	header := model.renderHeader()
	help := model.renderHelp()
	return header + "\n" + model.viewport.View() + "\n" + help
}

func (model Model) renderHeader() string {
	style := model.renderer.NewStyle().
		Background(model.theme.HeaderBackground).
		Foreground(model.theme.HeaderForeground).
		Width(model.width).
		Padding(0, 1)

	connLabel := "disconnected"
	connColor := model.theme.DisconnectedColor
	if model.connected {
		connLabel = "connected"
		connColor = model.theme.ConnectedColor
	}
	connBadge := model.renderer.NewStyle().Foreground(connColor).Render(connLabel)

	encLabel := "plaintext"
	if model.encrypted {
		encLabel = "encrypted"
	}

	var controlBadge string
	switch {
	case !model.controlLocked:
		controlBadge = model.renderer.NewStyle().Foreground(model.theme.UnlockedColor).Render("no control holder")
	case model.heldByMe():
		controlBadge = model.renderer.NewStyle().Foreground(model.theme.HeldByMeColor).Render("you hold control")
	default:
		holder := model.controlHolder
		if holder == "" {
			holder = model.controlHolderID
		}
		controlBadge = model.renderer.NewStyle().Foreground(model.theme.LockedColor).Render(fmt.Sprintf("%s holds control", holder))
	}

	line := fmt.Sprintf("%s  %s  %s  %s  seq=%d", model.sessionID, connBadge, encLabel, controlBadge, model.lastSeq)
	if model.notice != "" {
		noticeColor := model.theme.FaintText
		if model.noticeIsError {
			noticeColor = model.theme.ErrorColor
		}
		line += "  " + model.renderer.NewStyle().Foreground(noticeColor).Render(model.notice)
	}
	return style.Render(line)
}

func (model Model) renderHelp() string {
	followLabel := "off"
	if model.follow {
		followLabel = "on"
	}
	help := fmt.Sprintf("j/k scroll  pgup/pgdn page  g/G top/bottom  f2 follow:%s  f1 control  f10 quit", followLabel)
	return model.renderer.NewStyle().Foreground(model.theme.HelpText).Width(model.width).Render(help)
}

// wrapForViewport clips each line of content to width, preserving
// ANSI escape sequences safely rather than truncating mid-sequence.
// tmux capture output is already wrapped to the pane's own width, so
// this only matters when the viewer's terminal is narrower than the
// captured pane — the common case when a producer's pane was created
// wider than the viewer's current window.
func wrapForViewport(content string, width int) string {
	if width <= 0 {
		return content
	}
	lines := strings.Split(content, "\n")
	for i, line := range lines {
		if ansi.StringWidth(line) > width {
			lines[i] = ansi.Truncate(line, width, "")
		}
	}
	return strings.Join(lines, "\n")
}
