// Copyright 2026 The Scrybe Authors
// SPDX-License-Identifier: Apache-2.0

package viewerui

import (
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

// newRenderer builds a lipgloss renderer pinned to the color profile
// termenv detects from the environment (COLORTERM, TERM, CI, ...)
// rather than lipgloss's own auto-detection, which assumes stdout and
// disagrees with termenv when the program writes through bubbletea's
// managed output.
func newRenderer() *lipgloss.Renderer {
	profile := termenv.EnvColorProfile()
	renderer := lipgloss.NewRenderer(os.Stdout, termenv.WithProfile(profile))
	renderer.SetColorProfile(profile)
	return renderer
}
