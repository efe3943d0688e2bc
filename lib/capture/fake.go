// Copyright 2026 The Scrybe Authors
// SPDX-License-Identifier: Apache-2.0

package capture

import (
	"fmt"
	"sort"
	"sync"

	"github.com/scrybe/scrybe/lib/wire"
)

// FakeBackend is an in-memory Backend for tests that drive the
// producer controller's capture loop and daemon RPC handling without a
// real tmux server.
type FakeBackend struct {
	mu       sync.Mutex
	sessions map[string]*fakeSession
}

type fakeSession struct {
	content string
	inputs  []fakeInput
}

type fakeInput struct {
	Kind wire.InputKind
	Data string
}

// NewFakeBackend returns an empty FakeBackend.
func NewFakeBackend() *FakeBackend {
	return &FakeBackend{sessions: make(map[string]*fakeSession)}
}

// SetContent overwrites sessionName's snapshot content, simulating
// pane output the capture loop will pick up on its next poll. Creates
// the session if it doesn't already exist.
func (b *FakeBackend) SetContent(sessionName, content string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	s := b.sessionLocked(sessionName)
	s.content = content
}

// Inputs returns every Inject call recorded for sessionName, in order.
func (b *FakeBackend) Inputs(sessionName string) []fakeInput {
	b.mu.Lock()
	defer b.mu.Unlock()
	s, ok := b.sessions[sessionName]
	if !ok {
		return nil
	}
	return append([]fakeInput(nil), s.inputs...)
}

func (b *FakeBackend) sessionLocked(sessionName string) *fakeSession {
	s, ok := b.sessions[sessionName]
	if !ok {
		s = &fakeSession{}
		b.sessions[sessionName] = s
	}
	return s
}

func (b *FakeBackend) Snapshot(sessionName string) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	s, ok := b.sessions[sessionName]
	if !ok {
		return "", fmt.Errorf("capture: no such session %q", sessionName)
	}
	return s.content, nil
}

func (b *FakeBackend) Inject(sessionName string, kind wire.InputKind, data string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	s, ok := b.sessions[sessionName]
	if !ok {
		return fmt.Errorf("capture: no such session %q", sessionName)
	}
	s.inputs = append(s.inputs, fakeInput{Kind: kind, Data: data})
	return nil
}

func (b *FakeBackend) Create(sessionName string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.sessions[sessionName]; ok {
		return fmt.Errorf("capture: session %q already exists", sessionName)
	}
	b.sessions[sessionName] = &fakeSession{}
	return nil
}

func (b *FakeBackend) Exists(sessionName string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.sessions[sessionName]
	return ok
}

func (b *FakeBackend) Destroy(sessionName string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.sessions, sessionName)
	return nil
}

func (b *FakeBackend) List() ([]string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	names := make([]string, 0, len(b.sessions))
	for name := range b.sessions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}
