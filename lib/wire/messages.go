// Copyright 2026 The Scrybe Authors
// SPDX-License-Identifier: Apache-2.0

package wire

// Message type tags. These are the field-name contract between the
// relay, producer, and viewer roles — renaming one is a wire protocol
// break, not a refactor.
const (
	// TypeHello is the first message sent by any connection, declaring
	// its role and context. It replaces a connect-time query string
	// since the transport is a plain duplex stream rather than HTTP.
	TypeHello = "hello"

	// Producer → Relay
	TypeOutput         = "output"
	TypeEncryptedOut   = "encrypted-output"
	TypeOutputHistory  = "output-history"
	TypeSessionAttach  = "session-attached"
	TypeSessionDetach  = "session-detached"
	TypeActiveSessions = "active-sessions"
	TypeCLIResponse    = "cli-response"

	// Relay → Producer
	TypeViewerJoined   = "viewer-joined"
	TypeViewerLeft     = "viewer-left"
	TypeEncryptedInput = "encrypted-input"
	TypeInput          = "input"
	TypeCLICommand     = "cli-command"

	// Viewer → Relay
	TypeRequestControl = "request-control"
	TypeReleaseControl = "release-control"
	TypeGetHistory     = "get-history"

	// Relay → Viewer
	TypeHistory        = "history"
	TypeEncryptedHist  = "encrypted-history"
	TypeCLIStatus      = "cli-status"
	TypeControlStatus  = "control-status"
	TypeControlDenied  = "control-denied"
	TypeInputRejected  = "input-rejected"
	TypeError          = "error"
)

// Role identifies which of the three roles a connection declared in
// its hello message.
type Role string

const (
	RoleProducer Role = "producer"
	RoleDaemon   Role = "daemon"
	RoleViewer   Role = "viewer"
)

// InputKind distinguishes literal text keystrokes from symbolic key
// names understood by the terminal backend (Enter, Tab, C-c, ...).
type InputKind string

const (
	InputText    InputKind = "text"
	InputSpecial InputKind = "special"
)

// Hello is the connect-time handshake message. Role is required.
// SessionID is required for producer and viewer connections (not for
// daemon, which may own many sessions). PublicKey presence toggles
// encryption for the session. UserSecret, when present, is hashed to
// derive a userId for session ownership.
type Hello struct {
	Role        Role   `json:"role"`
	SessionID   string `json:"sessionId,omitempty"`
	PublicKey   string `json:"publicKey,omitempty"`
	Nickname    string `json:"nickname,omitempty"`
	UserSecret  string `json:"userSecret,omitempty"`
}

// CipherBox is the {nonce, ciphertext} pair produced by lib/crypto.Seal.
// Both fields are base64 (standard, no padding stripped) so they are
// printable in JSON.
type CipherBox struct {
	Nonce      string `json:"nonce"`
	Ciphertext string `json:"ciphertext"`
}

// Output is the unencrypted producer→relay→viewer frame. SessionID is
// only populated over a daemon connection, which multiplexes many
// sessions and otherwise has no way to tell them apart; a single-
// session producer's connection is already bound to one session and
// omits it.
type Output struct {
	SessionID string `json:"sessionId,omitempty"`
	Seq       uint64 `json:"seq"`
	Content   string `json:"content"`
	Timestamp int64  `json:"timestamp"`
}

// EncryptedOutput carries a single frame encrypted under one viewer's
// shared secret. SessionID follows the same daemon-mode convention as
// Output.
type EncryptedOutput struct {
	SessionID string    `json:"sessionId,omitempty"`
	ViewerID  string    `json:"viewerId"`
	Encrypted CipherBox `json:"encrypted"`
	Seq       uint64    `json:"seq"`
	Timestamp int64     `json:"timestamp"`
}

// OutputHistoryMsg is an encrypted frame offered for the best-effort
// encrypted history ring (encrypted under whichever viewer's secret
// the producer had on hand at capture time). SessionID follows the
// same daemon-mode convention as Output.
type OutputHistoryMsg struct {
	SessionID string    `json:"sessionId,omitempty"`
	Encrypted CipherBox `json:"encrypted"`
	Seq       uint64    `json:"seq"`
	Timestamp int64     `json:"timestamp"`
}

// SessionAttached announces a newly attached session in daemon mode.
type SessionAttached struct {
	SessionID string `json:"sessionId"`
	PublicKey string `json:"publicKey"`
	Encrypted bool   `json:"encrypted"`
}

// SessionDetached announces a detached session in daemon mode.
type SessionDetached struct {
	SessionID string `json:"sessionId"`
}

// ActiveSessionSummary is one entry of an ActiveSessions re-announce.
type ActiveSessionSummary struct {
	SessionID   string `json:"sessionId"`
	PublicKey   string `json:"publicKey"`
	Encrypted   bool   `json:"encrypted"`
	ViewerCount int    `json:"viewerCount"`
}

// ActiveSessions is sent by a daemon producer on reconnect to
// re-announce every session it still owns.
type ActiveSessions struct {
	Sessions []ActiveSessionSummary `json:"sessions"`
}

// CLIResponse is the daemon's reply to a dispatched cli-command.
type CLIResponse struct {
	CommandID string `json:"commandId"`
	Success   bool   `json:"success"`
	Data      any    `json:"data,omitempty"`
	Error     string `json:"error,omitempty"`
}

// ViewerJoined notifies the producer that a viewer attached. SessionID
// is only populated in daemon mode, where one connection owns many
// sessions and the producer needs to know which session the viewer
// joined.
type ViewerJoined struct {
	SessionID string `json:"sessionId,omitempty"`
	ViewerID  string `json:"viewerId"`
	PublicKey string `json:"publicKey"`
}

// ViewerLeft notifies the producer that a viewer disconnected.
type ViewerLeft struct {
	SessionID string `json:"sessionId,omitempty"`
	ViewerID  string `json:"viewerId"`
}

// EncryptedInput forwards a viewer's encrypted keystroke envelope to
// the producer.
type EncryptedInput struct {
	SessionID string    `json:"sessionId,omitempty"`
	ViewerID  string    `json:"viewerId"`
	Encrypted CipherBox `json:"encrypted"`
}

// Input carries plaintext keystrokes on the unencrypted path.
type Input struct {
	Keys string    `json:"keys"`
	Type InputKind `json:"type"`
}

// CLICommand is dispatched by the relay to a daemon producer.
type CLICommand struct {
	CommandID string `json:"commandId"`
	Command   string `json:"command"`
	Params    any    `json:"params,omitempty"`
}

// CLIStatus reports the producer binding state to a viewer. ViewerID
// is only populated on the unicast sent by Session.AddViewer, telling
// a newly joined viewer its own relay-assigned identity — the only
// point at which the relay tells a viewer what that identity is.
type CLIStatus struct {
	Connected bool    `json:"connected"`
	PublicKey *string `json:"publicKey"`
	Encrypted bool    `json:"encrypted"`
	ViewerID  string  `json:"viewerId,omitempty"`
}

// ControlStatus reports the current control lock state, broadcast to
// every viewer whenever it changes.
type ControlStatus struct {
	Locked         bool   `json:"locked"`
	HolderID       string `json:"holderId,omitempty"`
	HolderNickname string `json:"holderNickname,omitempty"`
	AcquiredAt     int64  `json:"acquiredAt,omitempty"`
}

// ControlDenied is sent only to a viewer whose request-control lost.
type ControlDenied struct {
	Reason         string `json:"reason"`
	HolderID       string `json:"holderId,omitempty"`
	HolderNickname string `json:"holderNickname,omitempty"`
}

// InputRejected is sent only to a viewer whose input was dropped for
// lacking the control lock.
type InputRejected struct {
	Reason string `json:"reason"`
}

// ErrorMsg is a generic protocol-fault or authorization-fault reply.
type ErrorMsg struct {
	Message string `json:"message"`
}

// History is the batched reply to a viewer's get-history request on an
// unencrypted session.
type History struct {
	Events []Output `json:"events"`
}

// EncryptedHistory is the batched reply to a viewer's get-history
// request on an encrypted session. Entries are the best-effort
// encrypted ring described in §3/§4.1 — they may be undecryptable by
// the requesting viewer if captured under a different viewer's secret.
type EncryptedHistory struct {
	Events []OutputHistoryMsg `json:"events"`
}

// Daemon RPC command names, used as the Command field of CLICommand
// and the dispatch key on the producer side.
const (
	CommandListSessions   = "list-sessions"
	CommandCreateSession  = "create-session"
	CommandAttachSession  = "attach-session"
	CommandDetachSession  = "detach-session"
)

// ListSessionsData is the daemon's response payload for list-sessions.
type ListSessionsData struct {
	All      []string         `json:"all"`
	Active   []string         `json:"active"`
	Sessions []SessionRPCInfo `json:"sessions"`
}

// SessionRPCInfo describes one backend session in a list-sessions reply.
type SessionRPCInfo struct {
	Name        string `json:"name"`
	Attached    bool   `json:"attached"`
	ViewerCount int    `json:"viewerCount"`
}

// CreateSessionParams is the params payload for create-session.
type CreateSessionParams struct {
	Name string `json:"name"`
}

// AttachSessionParams is the params payload for attach-session and
// detach-session.
type AttachSessionParams struct {
	Name string `json:"name"`
}

// AttachSessionData is the daemon's response payload for attach-session.
type AttachSessionData struct {
	Name        string `json:"name"`
	PublicKey   string `json:"publicKey"`
	PairingCode string `json:"pairingCode"`
}
