// Copyright 2026 The Scrybe Authors
// SPDX-License-Identifier: Apache-2.0

package viewerui

import (
	"strings"

	tea "github.com/charmbracelet/bubbletea"
)

// namedKeys maps bubbletea's key strings to tmux's send-keys key
// names. tmux speaks its own vocabulary (ncurses-derived terminfo
// names for the most part) rather than bubbletea's, so a forwarded
// keystroke has to cross this table before it reaches
// lib/tmux.Server.SendKeys.
var namedKeys = map[string]string{
	"enter":      "Enter",
	"tab":        "Tab",
	"shift+tab":  "BTab",
	"backspace":  "BSpace",
	"delete":     "Delete",
	"esc":        "Escape",
	"space":      "Space",
	"up":         "Up",
	"down":       "Down",
	"left":       "Left",
	"right":      "Right",
	"home":       "Home",
	"end":        "End",
	"pgup":       "PPage",
	"pgdown":     "NPage",
	"insert":     "IC",
	"f1":         "F1",
	"f2":         "F2",
	"f3":         "F3",
	"f4":         "F4",
	"f5":         "F5",
	"f6":         "F6",
	"f7":         "F7",
	"f8":         "F8",
	"f9":         "F9",
	"f10":        "F10",
	"f11":        "F11",
	"f12":        "F12",
}

// tmuxKeyName translates a non-rune bubbletea key event into the
// key name tmux's send-keys expects. Ctrl and Alt modifiers are
// expressed as tmux's "C-" and "M-" prefixes; an unrecognized key
// falls back to its raw bubbletea string, which is occasionally
// itself a valid tmux name (single letters, for instance).
func tmuxKeyName(message tea.KeyMsg) string {
	raw := message.String()

	if name, ok := namedKeys[raw]; ok {
		return name
	}

	if rest, ok := cutPrefix(raw, "ctrl+"); ok {
		if name, ok := namedKeys[rest]; ok {
			return "C-" + name
		}
		return "C-" + rest
	}
	if rest, ok := cutPrefix(raw, "alt+"); ok {
		if name, ok := namedKeys[rest]; ok {
			return "M-" + name
		}
		return "M-" + rest
	}

	return raw
}

func cutPrefix(s, prefix string) (string, bool) {
	if !strings.HasPrefix(s, prefix) {
		return s, false
	}
	return s[len(prefix):], true
}
