// Copyright 2026 The Scrybe Authors
// SPDX-License-Identifier: Apache-2.0

package viewerui

import "github.com/charmbracelet/lipgloss"

// Theme defines the color palette for the viewer's status line and
// transient notices. Colors use lipgloss ANSI 256-color codes for
// broad terminal compatibility.
type Theme struct {
	NormalText lipgloss.Color
	FaintText  lipgloss.Color

	HeaderBackground lipgloss.Color
	HeaderForeground lipgloss.Color

	ConnectedColor    lipgloss.Color
	DisconnectedColor lipgloss.Color

	LockedColor   lipgloss.Color
	UnlockedColor lipgloss.Color
	HeldByMeColor lipgloss.Color

	ErrorColor lipgloss.Color
	HelpText   lipgloss.Color
}

// DefaultTheme is the built-in dark-terminal color scheme.
var DefaultTheme = Theme{
	NormalText: lipgloss.Color("252"),
	FaintText:  lipgloss.Color("245"),

	HeaderBackground: lipgloss.Color("236"),
	HeaderForeground: lipgloss.Color("255"),

	ConnectedColor:    lipgloss.Color("114"), // green
	DisconnectedColor: lipgloss.Color("196"), // red

	LockedColor:   lipgloss.Color("220"), // amber
	UnlockedColor: lipgloss.Color("245"), // gray
	HeldByMeColor: lipgloss.Color("75"),  // blue

	ErrorColor: lipgloss.Color("196"),
	HelpText:   lipgloss.Color("241"),
}
