// Copyright 2026 The Scrybe Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"golang.org/x/term"
)

// errPickerCancelled is returned by runPicker when the user backs out
// without choosing a session (Esc or Ctrl-C).
var errPickerCancelled = errors.New("no session selected")

// fetchSessions lists sessions visible from httpAddr. With a non-empty
// userSecret it asks for that user's own sessions (POST
// /api/user/sessions); otherwise it asks for every session on the
// relay (GET /api/sessions), which is the useful default for an
// operator browsing a relay they administer rather than a single
// user's own terminals.
func fetchSessions(ctx context.Context, httpAddr, userSecret string) ([]sessionSummary, error) {
	if userSecret != "" {
		body, _ := json.Marshal(map[string]string{"userSecret": userSecret})
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, "http://"+httpAddr+"/api/user/sessions", bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		var resp struct {
			Sessions []sessionSummary `json:"sessions"`
		}
		if err := doJSON(req, &resp); err != nil {
			return nil, err
		}
		return resp.Sessions, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://"+httpAddr+"/api/sessions", nil)
	if err != nil {
		return nil, err
	}
	var sessions []sessionSummary
	if err := doJSON(req, &sessions); err != nil {
		return nil, err
	}
	return sessions, nil
}

func doJSON(req *http.Request, out any) error {
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%s: %s", resp.Status, string(data))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// runPicker drives a raw-mode fuzzy-filter prompt over sessions on
// stderr (stdout is left free for piping), returning the chosen
// session ID. Typing narrows the list via fuzzyFilter; Up/Down move
// the selection; Enter accepts; Esc or Ctrl-C cancels.
func runPicker(sessions []sessionSummary) (string, error) {
	fd := int(os.Stdin.Fd())
	previous, err := term.MakeRaw(fd)
	if err != nil {
		return "", fmt.Errorf("enter raw mode: %w", err)
	}
	defer term.Restore(fd, previous)

	var query string
	selected := 0
	reader := bufio.NewReader(os.Stdin)

	redraw := func() {
		ranked := fuzzyFilter(sessions, query)
		if selected >= len(ranked) {
			selected = len(ranked) - 1
		}
		if selected < 0 {
			selected = 0
		}
		fmt.Fprint(os.Stderr, "\033[2J\033[H")
		fmt.Fprintf(os.Stderr, "select a session (type to filter, enter to confirm, esc to cancel)\r\n")
		fmt.Fprintf(os.Stderr, "> %s█\r\n\r\n", query)
		for i, r := range ranked {
			marker := "  "
			if i == selected {
				marker = "> "
			}
			age := humanize.Time(parseCreatedAt(r.Session.CreatedAt))
			status := "idle"
			if r.Session.Connected {
				status = "connected"
			}
			lock := ""
			if r.Session.Locked {
				lock = " locked"
			}
			fmt.Fprintf(os.Stderr, "%s%-30s %-10s viewers=%-3d%s %s\r\n",
				marker, r.Session.SessionID, status, r.Session.ViewerCount, lock, age)
		}
	}
	redraw()

	for {
		b, err := reader.ReadByte()
		if err != nil {
			return "", err
		}
		switch b {
		case 0x03: // Ctrl-C
			return "", errPickerCancelled
		case 0x1b: // Esc, or the start of an arrow-key escape sequence
			next, err := reader.Peek(2)
			if err == nil && len(next) == 2 && next[0] == '[' {
				_, _ = reader.Discard(2)
				switch next[1] {
				case 'A':
					selected--
				case 'B':
					selected++
				}
				redraw()
				continue
			}
			return "", errPickerCancelled
		case '\r', '\n':
			ranked := fuzzyFilter(sessions, query)
			if selected < 0 || selected >= len(ranked) {
				continue
			}
			return ranked[selected].Session.SessionID, nil
		case 0x7f, 0x08: // Backspace
			if len(query) > 0 {
				r := []rune(query)
				query = string(r[:len(r)-1])
			}
		default:
			if b >= 0x20 && b < 0x7f {
				query += string(b)
			}
		}
		redraw()
	}
}

func parseCreatedAt(value string) time.Time {
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t
	}
	return time.Time{}
}
