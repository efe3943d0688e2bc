// Copyright 2026 The Scrybe Authors
// SPDX-License-Identifier: Apache-2.0

package relay

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/scrybe/scrybe/lib/clock"
	"github.com/scrybe/scrybe/lib/wire"
)

// historyCapacity bounds outputHistory and encryptedHistory at 100
// entries each (§3).
const historyCapacity = 100

// ErrNoProducer is returned by Session.ForwardPlainInput and
// ForwardEncryptedInput when no producer is currently bound. Callers
// translate this into a wire.ErrorMsg{Message:"CLI not connected"}
// reply to the sending viewer (§4.1 step 4, §7 RPC faults).
var ErrNoProducer = errors.New("relay: no producer connected")

// Session is the relay's record of one named terminal stream: its
// current producer binding, connected viewers, bounded history, and
// control lock. All mutation goes through Session's methods, which
// hold sess.mu for the duration — this is the per-session lock domain
// called for in §5.
type Session struct {
	ID        string
	UserID    string
	CreatedAt time.Time

	clock  clock.Clock
	logger *slog.Logger

	mu sync.Mutex

	producer          *conn
	producerPublicKey string
	encrypted         bool

	viewers map[string]*Viewer

	seq        uint64
	lastOutput *wire.Output

	// outputHistory retains zstd-compressed, JSON-encoded wire.Output
	// entries (compressOutput/decompressOutput) rather than the struct
	// directly. Terminal output compresses well, and the ring sticks
	// around for the lifetime of an idle session. encryptedHistory is
	// stored as-is: it already holds opaque ciphertext, which zstd
	// cannot shrink.
	outputHistory    *ring[[]byte]
	encryptedHistory *ring[wire.OutputHistoryMsg]

	controlLock *ControlLock

	// emptySince is the time the session first had neither a producer
	// nor any viewers. Zero means the session is not currently empty.
	// The registry's reaper deletes the session once this has held for
	// emptySessionGrace.
	emptySince time.Time
}

func newSession(id string, clk clock.Clock, logger *slog.Logger) *Session {
	return &Session{
		ID:               id,
		CreatedAt:        clk.Now(),
		clock:            clk,
		logger:           logger,
		viewers:          make(map[string]*Viewer),
		outputHistory:    newRing[[]byte](historyCapacity),
		encryptedHistory: newRing[wire.OutputHistoryMsg](historyCapacity),
	}
}

// BindProducer attaches c as this session's producer, replacing any
// prior binding (§3 invariant: at most one producer connection at any
// instant). Returns the previous binding, if any, so the caller can
// close it after releasing the session lock. Broadcasts cli-status to
// every viewer, and — when the session is encrypted — re-announces
// every already-joined viewer to the newly bound producer via
// viewer-joined, so a reconnecting producer (with a fresh key pair)
// can re-derive shared secrets without waiting for those viewers to
// reconnect themselves (§4.2 "Reconnect", scenario 4: "viewers...MUST
// re-derive via the next viewer-joined round-trip").
func (s *Session) BindProducer(c *conn, publicKey string) (previous *conn) {
	s.mu.Lock()
	previous = s.producer
	s.producer = c
	s.producerPublicKey = publicKey
	s.encrypted = publicKey != ""
	s.emptySince = time.Time{}
	status := s.cliStatusLocked()
	viewers := s.viewerConnsLocked()
	var rejoins []wire.ViewerJoined
	if s.encrypted {
		for _, v := range s.viewers {
			rejoins = append(rejoins, wire.ViewerJoined{
				SessionID: c.sessionIDFor(s.ID),
				ViewerID:  v.ID,
				PublicKey: v.PublicKey,
			})
		}
	}
	s.mu.Unlock()

	broadcast(viewers, wire.TypeCLIStatus, status)
	for _, j := range rejoins {
		_ = c.send(wire.TypeViewerJoined, j)
	}
	return previous
}

// UnbindProducer clears the producer binding if c is still the current
// one. Does not clear the control lock (§4.1 "Producer termination").
func (s *Session) UnbindProducer(c *conn) {
	s.mu.Lock()
	if s.producer != c {
		s.mu.Unlock()
		return
	}
	s.producer = nil
	s.producerPublicKey = ""
	s.markEmptyIfIdleLocked()
	status := s.cliStatusLocked()
	viewers := s.viewerConnsLocked()
	s.mu.Unlock()

	broadcast(viewers, wire.TypeCLIStatus, status)
}

// AddViewer registers v, immediately sends it the current cli-status,
// and either notifies the producer of the join (encrypted sessions) or
// replays the last plaintext frame directly (unencrypted sessions).
func (s *Session) AddViewer(v *Viewer) {
	s.mu.Lock()
	s.viewers[v.ID] = v
	s.emptySince = time.Time{}
	status := s.cliStatusLocked()
	producer := s.producer
	encrypted := s.encrypted
	last := s.lastOutput
	s.mu.Unlock()

	status.ViewerID = v.ID
	_ = v.conn.send(wire.TypeCLIStatus, status)

	switch {
	case encrypted && producer != nil:
		_ = producer.send(wire.TypeViewerJoined, wire.ViewerJoined{
			SessionID: producer.sessionIDFor(s.ID),
			ViewerID:  v.ID,
			PublicKey: v.PublicKey,
		})
	case !encrypted && last != nil:
		_ = v.conn.send(wire.TypeOutput, *last)
	}
}

// RemoveViewer removes a viewer from the session, releasing the
// control lock if it held one and notifying the producer it left.
func (s *Session) RemoveViewer(viewerID string) {
	s.mu.Lock()
	if _, ok := s.viewers[viewerID]; !ok {
		s.mu.Unlock()
		return
	}
	delete(s.viewers, viewerID)
	s.markEmptyIfIdleLocked()

	var lockCleared bool
	var status wire.ControlStatus
	if s.controlLock != nil && s.controlLock.HolderID == viewerID {
		s.controlLock = nil
		lockCleared = true
		status = s.controlStatusLocked()
	}
	producer := s.producer
	viewers := s.viewerConnsLocked()
	s.mu.Unlock()

	if lockCleared {
		broadcast(viewers, wire.TypeControlStatus, status)
	}
	if producer != nil {
		_ = producer.send(wire.TypeViewerLeft, wire.ViewerLeft{
			SessionID: producer.sessionIDFor(s.ID),
			ViewerID:  viewerID,
		})
	}
}

// HandleOutput stores and fans out a plaintext output frame
// (unencrypted path).
func (s *Session) HandleOutput(evt wire.Output) {
	s.mu.Lock()
	stored := evt
	s.lastOutput = &stored
	s.outputHistory.push(compressOutput(evt))
	viewers := s.viewerConnsLocked()
	s.mu.Unlock()

	broadcast(viewers, wire.TypeOutput, evt)
}

// HandleEncryptedOutput routes an encrypted frame to exactly the named
// viewer. The relay neither decrypts nor retains it.
func (s *Session) HandleEncryptedOutput(msg wire.EncryptedOutput) {
	s.mu.Lock()
	v, ok := s.viewers[msg.ViewerID]
	s.mu.Unlock()
	if !ok {
		return
	}
	_ = v.conn.send(wire.TypeEncryptedOut, msg)
}

// HandleOutputHistory appends a producer-supplied encrypted frame to
// the best-effort encrypted history ring.
func (s *Session) HandleOutputHistory(msg wire.OutputHistoryMsg) {
	s.mu.Lock()
	s.encryptedHistory.push(msg)
	s.mu.Unlock()
}

// AuthorizeInput implements the control-lock gate of §4.1 step 1-3.
// Returns true if the sender may have its input forwarded. As a side
// effect it may clear an idle-expired lock (broadcasting the change)
// or bump the holder's lastInputAt.
func (s *Session) AuthorizeInput(viewerID string) bool {
	now := s.clock.Now()

	s.mu.Lock()
	lock := s.controlLock
	switch {
	case lock == nil:
		s.mu.Unlock()
		return true
	case lock.HolderID == viewerID:
		lock.LastInputAt = now
		s.mu.Unlock()
		return true
	case now.Sub(lock.LastInputAt) < controlLockIdleTimeout:
		s.mu.Unlock()
		return false
	default:
		// Idle expiry: clear and fall through as if no lock were held.
		s.controlLock = nil
		status := s.controlStatusLocked()
		viewers := s.viewerConnsLocked()
		s.mu.Unlock()
		broadcast(viewers, wire.TypeControlStatus, status)
		return true
	}
}

// ForwardPlainInput forwards unencrypted keystrokes to the bound
// producer. Returns ErrNoProducer if none is bound.
func (s *Session) ForwardPlainInput(input wire.Input) error {
	s.mu.Lock()
	producer := s.producer
	s.mu.Unlock()
	if producer == nil {
		return ErrNoProducer
	}
	return producer.send(wire.TypeInput, input)
}

// ForwardEncryptedInput forwards an encrypted keystroke envelope to
// the bound producer, tagged with the sending viewer's identity.
// Returns ErrNoProducer if none is bound.
func (s *Session) ForwardEncryptedInput(viewerID string, box wire.CipherBox) error {
	s.mu.Lock()
	producer := s.producer
	s.mu.Unlock()
	if producer == nil {
		return ErrNoProducer
	}
	return producer.send(wire.TypeEncryptedInput, wire.EncryptedInput{
		SessionID: producer.sessionIDFor(s.ID),
		ViewerID:  viewerID,
		Encrypted: box,
	})
}

// RequestControl grants the lock to viewerID if it is free, idle-
// expired, or already held by viewerID; otherwise it denies the
// request. Broadcasts control-status on grant; replies only to the
// requester on denial (handled by the caller using the returned
// values).
func (s *Session) RequestControl(viewerID, nickname string) (granted bool, denialHolderID, denialHolderNickname string) {
	now := s.clock.Now()

	s.mu.Lock()
	lock := s.controlLock
	if lock != nil && lock.HolderID != viewerID && !lock.expired(now) {
		holderID, holderNickname := lock.HolderID, lock.HolderNickname
		s.mu.Unlock()
		return false, holderID, holderNickname
	}

	s.controlLock = &ControlLock{
		HolderID:       viewerID,
		HolderNickname: nickname,
		AcquiredAt:     now,
		LastInputAt:    now,
	}
	status := s.controlStatusLocked()
	viewers := s.viewerConnsLocked()
	s.mu.Unlock()

	broadcast(viewers, wire.TypeControlStatus, status)
	return true, "", ""
}

// ReleaseControl releases the lock if viewerID is the current holder.
// Returns false (no-op) otherwise.
func (s *Session) ReleaseControl(viewerID string) bool {
	s.mu.Lock()
	if s.controlLock == nil || s.controlLock.HolderID != viewerID {
		s.mu.Unlock()
		return false
	}
	s.controlLock = nil
	status := s.controlStatusLocked()
	viewers := s.viewerConnsLocked()
	s.mu.Unlock()

	broadcast(viewers, wire.TypeControlStatus, status)
	return true
}

// sweepExpiredLock clears the control lock if it has been idle for at
// least controlLockIdleTimeout, broadcasting the change. This is the
// optional periodic sweep §5/§9 allows in addition to the lazy check
// in AuthorizeInput and RequestControl, so enumerations don't show a
// stale lock indefinitely between viewer events.
func (s *Session) sweepExpiredLock() {
	now := s.clock.Now()

	s.mu.Lock()
	if s.controlLock == nil || !s.controlLock.expired(now) {
		s.mu.Unlock()
		return
	}
	s.controlLock = nil
	status := s.controlStatusLocked()
	viewers := s.viewerConnsLocked()
	s.mu.Unlock()

	broadcast(viewers, wire.TypeControlStatus, status)
}

// SendHistory replies to viewerID with the plaintext or encrypted
// history batch, matching the session's current encryption mode.
func (s *Session) SendHistory(viewerID string) {
	s.mu.Lock()
	v, ok := s.viewers[viewerID]
	encrypted := s.encrypted
	compressed := s.outputHistory.items()
	enc := s.encryptedHistory.items()
	s.mu.Unlock()
	if !ok {
		return
	}

	if encrypted {
		_ = v.conn.send(wire.TypeEncryptedHist, wire.EncryptedHistory{Events: enc})
		return
	}

	plain := make([]wire.Output, 0, len(compressed))
	for _, entry := range compressed {
		evt, ok := decompressOutput(entry)
		if !ok {
			s.logger.Warn("dropping corrupt outputHistory entry", "sessionId", s.ID)
			continue
		}
		plain = append(plain, evt)
	}
	_ = v.conn.send(wire.TypeHistory, wire.History{Events: plain})
}

// Summary describes a session for HTTP enumeration (§4.1 "Session
// enumeration", §6 HTTP surface).
type Summary struct {
	SessionID   string    `json:"sessionId"`
	Connected   bool      `json:"connected"`
	ViewerCount int       `json:"viewerCount"`
	LastSeq     uint64    `json:"lastSeq"`
	Encrypted   bool      `json:"encrypted"`
	Locked      bool      `json:"locked"`
	HolderID    string    `json:"holderId,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Summarize returns the current enumeration view of the session.
func (s *Session) Summarize() Summary {
	s.mu.Lock()
	defer s.mu.Unlock()

	summary := Summary{
		SessionID:   s.ID,
		Connected:   s.producer != nil,
		ViewerCount: len(s.viewers),
		Encrypted:   s.encrypted,
		CreatedAt:   s.CreatedAt,
	}
	if s.lastOutput != nil {
		summary.LastSeq = s.lastOutput.Seq
	}
	if s.controlLock != nil {
		summary.Locked = true
		summary.HolderID = s.controlLock.HolderID
	}
	return summary
}

// IsEmptySince reports whether the session has had neither a producer
// nor any viewers since at least the given duration ago. Used by the
// registry's reaper.
func (s *Session) IsEmptySince(grace time.Duration, now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.emptySince.IsZero() && now.Sub(s.emptySince) >= grace
}

// producerIs reports whether c is the currently bound producer. Used
// to confirm a daemon connection still owns a session before routing a
// frame that names it by sessionID.
func (s *Session) producerIs(c *conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.producer == c
}

// setUserID assigns the owning user, once, at session creation time
// (§4.1 "Session creation").
func (s *Session) setUserID(userID string) {
	s.mu.Lock()
	s.UserID = userID
	s.mu.Unlock()
}

func (s *Session) markEmptyIfIdleLocked() {
	if s.producer == nil && len(s.viewers) == 0 && s.emptySince.IsZero() {
		s.emptySince = s.clock.Now()
	}
}

func (s *Session) cliStatusLocked() wire.CLIStatus {
	status := wire.CLIStatus{Connected: s.producer != nil, Encrypted: s.encrypted}
	if s.producer != nil && s.producerPublicKey != "" {
		key := s.producerPublicKey
		status.PublicKey = &key
	}
	return status
}

func (s *Session) controlStatusLocked() wire.ControlStatus {
	if s.controlLock == nil {
		return wire.ControlStatus{Locked: false}
	}
	return wire.ControlStatus{
		Locked:         true,
		HolderID:       s.controlLock.HolderID,
		HolderNickname: s.controlLock.HolderNickname,
		AcquiredAt:     s.controlLock.AcquiredAt.UnixMilli(),
	}
}

func (s *Session) viewerConnsLocked() []*conn {
	conns := make([]*conn, 0, len(s.viewers))
	for _, v := range s.viewers {
		conns = append(conns, v.conn)
	}
	return conns
}

// broadcast sends the same message to every connection in conns,
// logging nothing here — send errors mean a viewer disconnected
// mid-broadcast and its own read loop will observe the close.
func broadcast(conns []*conn, messageType string, v any) {
	for _, c := range conns {
		_ = c.send(messageType, v)
	}
}
