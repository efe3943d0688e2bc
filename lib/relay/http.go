// Copyright 2026 The Scrybe Authors
// SPDX-License-Identifier: Apache-2.0

package relay

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/scrybe/scrybe/lib/clock"
)

// NewHTTPHandler builds the relay's REST surface (§6 "HTTP surface").
func NewHTTPHandler(registry *Registry, clk clock.Clock) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"status":    "ok",
			"timestamp": clk.Now().UnixMilli(),
		})
	})

	mux.HandleFunc("GET /api/sessions", func(w http.ResponseWriter, r *http.Request) {
		sessions := registry.Sessions()
		summaries := make([]Summary, 0, len(sessions))
		for _, s := range sessions {
			summaries = append(summaries, s.Summarize())
		}
		writeJSON(w, http.StatusOK, summaries)
	})

	mux.HandleFunc("GET /api/sessions/{sessionId}", func(w http.ResponseWriter, r *http.Request) {
		session, ok := registry.GetSession(r.PathValue("sessionId"))
		if !ok {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "Session not found"})
			return
		}
		writeJSON(w, http.StatusOK, session.Summarize())
	})

	mux.HandleFunc("POST /api/user/sessions", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			UserSecret string `json:"userSecret"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
			return
		}
		userID := DeriveUserID(body.UserSecret)
		sessions := registry.SessionsForUser(userID)
		summaries := make([]Summary, 0, len(sessions))
		for _, s := range sessions {
			summaries = append(summaries, s.Summarize())
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"userId":   userID,
			"sessions": summaries,
		})
	})

	mux.HandleFunc("POST /api/daemon/command", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Command string `json:"command"`
			Params  any    `json:"params,omitempty"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
			return
		}

		resp, err := registry.DispatchCommand(r.Context(), body.Command, body.Params)
		switch {
		case errors.Is(err, ErrNoDaemon):
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "No CLI daemon connected"})
		case errors.Is(err, ErrCommandTimeout):
			writeJSON(w, http.StatusGatewayTimeout, map[string]string{"error": "Command timeout"})
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			writeJSON(w, http.StatusGatewayTimeout, map[string]string{"error": "Command timeout"})
		case err != nil:
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		case !resp.Success:
			writeJSON(w, http.StatusOK, map[string]any{"success": false, "error": resp.Error})
		default:
			writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": resp.Data})
		}
	})

	return mux
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
