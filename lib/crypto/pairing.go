// Copyright 2026 The Scrybe Authors
// SPDX-License-Identifier: Apache-2.0

package crypto

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// PairingCode is the out-of-band payload a producer hands to an
// operator so they can connect a viewer to a session without the relay
// ever brokering trust. Valid iff all three fields are present
// (§4.3).
type PairingCode struct {
	SessionID string `json:"sessionId"`
	PublicKey string `json:"publicKey"`
	Timestamp int64  `json:"timestamp"`
}

// Encode serializes the pairing code as a URL-safe base64 string
// suitable for transmission as a single token (e.g. printed for the
// operator to copy, or embedded in a scrybe-viewer command line).
func (code PairingCode) Encode() (string, error) {
	if code.SessionID == "" || code.PublicKey == "" || code.Timestamp == 0 {
		return "", fmt.Errorf("pairing code missing required field")
	}
	payload, err := json.Marshal(code)
	if err != nil {
		return "", fmt.Errorf("marshal pairing code: %w", err)
	}
	return base64.URLEncoding.EncodeToString(payload), nil
}

// DecodePairingCode parses a token produced by PairingCode.Encode.
func DecodePairingCode(token string) (PairingCode, error) {
	payload, err := base64.URLEncoding.DecodeString(token)
	if err != nil {
		return PairingCode{}, fmt.Errorf("decode pairing code: %w", err)
	}
	var code PairingCode
	if err := json.Unmarshal(payload, &code); err != nil {
		return PairingCode{}, fmt.Errorf("unmarshal pairing code: %w", err)
	}
	if code.SessionID == "" || code.PublicKey == "" || code.Timestamp == 0 {
		return PairingCode{}, fmt.Errorf("pairing code missing required field")
	}
	return code, nil
}
