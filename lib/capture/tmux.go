// Copyright 2026 The Scrybe Authors
// SPDX-License-Identifier: Apache-2.0

package capture

import (
	"strings"

	"github.com/scrybe/scrybe/lib/tmux"
	"github.com/scrybe/scrybe/lib/wire"
)

// TmuxBackend implements Backend against a dedicated tmux server, per
// SPEC_FULL.md §4.4: tmux itself performs the escape-sequence
// interpretation on capture, so no custom terminal emulator is needed.
type TmuxBackend struct {
	server *tmux.Server
}

// NewTmuxBackend wraps server as a Backend.
func NewTmuxBackend(server *tmux.Server) *TmuxBackend {
	return &TmuxBackend{server: server}
}

func (b *TmuxBackend) Snapshot(sessionName string) (string, error) {
	return b.server.CapturePane(sessionName)
}

// Inject maps the spec's text/special keystroke kinds onto tmux's
// literal (-l) vs symbolic send-keys distinction.
func (b *TmuxBackend) Inject(sessionName string, kind wire.InputKind, data string) error {
	return b.server.SendKeys(sessionName, kind == wire.InputText, data)
}

func (b *TmuxBackend) Create(sessionName string) error {
	return b.server.NewSession(sessionName)
}

func (b *TmuxBackend) Exists(sessionName string) bool {
	return b.server.HasSession(sessionName)
}

func (b *TmuxBackend) Destroy(sessionName string) error {
	return b.server.KillSession(sessionName)
}

// List enumerates every session on the backend's tmux server via
// list-sessions, the same "escape hatch" Run call the teacher uses for
// subcommands without a dedicated method.
func (b *TmuxBackend) List() ([]string, error) {
	output, err := b.server.Run("list-sessions", "-F", "#{session_name}")
	if err != nil {
		if strings.Contains(err.Error(), "no server running") || strings.Contains(err.Error(), "no sessions") {
			return nil, nil
		}
		return nil, err
	}
	output = strings.TrimSpace(output)
	if output == "" {
		return nil, nil
	}
	return strings.Split(output, "\n"), nil
}
