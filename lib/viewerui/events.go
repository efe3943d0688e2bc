// Copyright 2026 The Scrybe Authors
// SPDX-License-Identifier: Apache-2.0

package viewerui

import "github.com/scrybe/scrybe/lib/wire"

// Event carries one decoded relay→viewer frame into the TUI's message
// loop. Kind names which field is populated, mirroring the wire
// protocol's own type tags so a caller need not invent a second
// vocabulary translating frames into UI events.
type Event struct {
	Kind string

	Output        wire.Output
	History       []wire.Output
	CLIStatus     wire.CLIStatus
	ControlStatus wire.ControlStatus
	ControlDenied wire.ControlDenied
	InputRejected wire.InputRejected
	Error         wire.ErrorMsg
}
