// Copyright 2026 The Scrybe Authors
// SPDX-License-Identifier: Apache-2.0

package viewerui

import "github.com/charmbracelet/bubbles/key"

// KeyMap defines the viewer's key bindings. Scroll/navigation bindings
// only apply while the viewer does not hold the control lock — once
// held, every key except the three command bindings (ToggleFollow,
// ToggleControl, Quit) is forwarded to the remote pane instead of
// interpreted locally, so a controlling viewer can type freely
// (including "j", "q", "ctrl+c", ...) without the viewer swallowing
// them as UI commands. Those three bindings are therefore deliberately
// placed on function keys, outside the range any shell or editor
// treats as meaningful input.
type KeyMap struct {
	Up       key.Binding
	Down     key.Binding
	PageUp   key.Binding
	PageDown key.Binding
	Home     key.Binding
	End      key.Binding

	ToggleFollow  key.Binding
	ToggleControl key.Binding

	Quit key.Binding
}

// DefaultKeyMap is the built-in key binding set.
var DefaultKeyMap = KeyMap{
	Up: key.NewBinding(
		key.WithKeys("k", "up"),
		key.WithHelp("k/↑", "scroll up"),
	),
	Down: key.NewBinding(
		key.WithKeys("j", "down"),
		key.WithHelp("j/↓", "scroll down"),
	),
	PageUp: key.NewBinding(
		key.WithKeys("pgup"),
		key.WithHelp("pgup", "page up"),
	),
	PageDown: key.NewBinding(
		key.WithKeys("pgdown"),
		key.WithHelp("pgdown", "page down"),
	),
	Home: key.NewBinding(
		key.WithKeys("g"),
		key.WithHelp("g", "top"),
	),
	End: key.NewBinding(
		key.WithKeys("G"),
		key.WithHelp("G", "bottom"),
	),
	ToggleFollow: key.NewBinding(
		key.WithKeys("f2"),
		key.WithHelp("f2", "toggle follow"),
	),
	ToggleControl: key.NewBinding(
		key.WithKeys("f1"),
		key.WithHelp("f1", "request/release control"),
	),
	Quit: key.NewBinding(
		key.WithKeys("f10"),
		key.WithHelp("f10", "quit"),
	),
}
