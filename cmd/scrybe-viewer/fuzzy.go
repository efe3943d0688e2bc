// Copyright 2026 The Scrybe Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"sort"

	"github.com/junegunn/fzf/src/algo"
	"github.com/junegunn/fzf/src/util"
)

// sessionSummary mirrors the subset of lib/relay.Summary the viewer
// needs for the picker. Declared independently rather than imported
// so this binary never needs the relay package's session-management
// internals, only its wire JSON shape.
type sessionSummary struct {
	SessionID   string `json:"sessionId"`
	Connected   bool   `json:"connected"`
	ViewerCount int    `json:"viewerCount"`
	Encrypted   bool   `json:"encrypted"`
	Locked      bool   `json:"locked"`
	CreatedAt   string `json:"createdAt"`
}

// fuzzyRanked pairs a session with its match score against a query.
type fuzzyRanked struct {
	Session sessionSummary
	Score   int
}

// fuzzyFilter ranks sessions against query using the same
// FuzzyMatchV2 algorithm fzf itself uses, matching on session ID.
// An empty query returns every session, unranked, in its original
// order — so clearing the filter shows the full list rather than
// nothing.
func fuzzyFilter(sessions []sessionSummary, query string) []fuzzyRanked {
	if query == "" {
		ranked := make([]fuzzyRanked, len(sessions))
		for i, s := range sessions {
			ranked[i] = fuzzyRanked{Session: s}
		}
		return ranked
	}

	pattern := []rune(query)
	slab := util.MakeSlab(100*1024, 2048)

	var ranked []fuzzyRanked
	for _, s := range sessions {
		chars := util.RunesToChars([]rune(s.SessionID))
		result, _ := algo.FuzzyMatchV2(false, true, true, &chars, pattern, false, slab)
		if result.Score <= 0 {
			continue
		}
		ranked = append(ranked, fuzzyRanked{Session: s, Score: result.Score})
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].Score > ranked[j].Score })
	return ranked
}
