// Copyright 2026 The Scrybe Authors
// SPDX-License-Identifier: Apache-2.0

// Package wire implements the framed message protocol shared by the
// relay, producer, and viewer roles. Every message is a JSON object
// carried as the payload of a length-prefixed frame over a reliable,
// ordered, bidirectional connection — field names are the contract
// between the three roles, so messages are decoded into an envelope
// that preserves the "type" field and defers field-specific decoding
// to the caller.
package wire

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
)

// headerLength is the size of a frame header: 4 bytes, big-endian
// payload length.
const headerLength = 4

// maxPayloadLength bounds a single frame. 16 MB comfortably holds a
// full terminal history batch (100 frames) plus JSON overhead, while
// still catching a malformed or hostile peer quickly.
const maxPayloadLength = 16 * 1024 * 1024

// Envelope is the outer shape of every message on the wire: a type tag
// plus the frame's raw JSON, decoded into a type-specific struct on
// demand by Decode. Message type constants and their field structs are
// both defined in this package (see messages.go).
type Envelope struct {
	Type string          `json:"type"`
	Raw  json.RawMessage `json:"-"`
}

// WriteFrame marshals v to JSON, tags it with messageType, and writes
// it as one length-prefixed frame to w.
func WriteFrame(w io.Writer, messageType string, v any) error {
	fields, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", messageType, err)
	}

	tagged := make(map[string]json.RawMessage)
	if len(fields) > 2 { // not "{}" or "null"
		if err := json.Unmarshal(fields, &tagged); err != nil {
			return fmt.Errorf("marshal %s payload: expected JSON object: %w", messageType, err)
		}
	}
	typeJSON, _ := json.Marshal(messageType)
	tagged["type"] = typeJSON

	payload, err := json.Marshal(tagged)
	if err != nil {
		return fmt.Errorf("marshal %s envelope: %w", messageType, err)
	}

	var header [headerLength]byte
	binary.BigEndian.PutUint32(header[:], uint32(len(payload)))
	if _, err := w.Write(header[:]); err != nil {
		return fmt.Errorf("write frame header: %w", err)
	}
	if _, err := w.Write(payload); err != nil {
		return fmt.Errorf("write frame payload: %w", err)
	}
	return nil
}

// ReadFrame reads one length-prefixed frame from r and returns its
// envelope. Call json.Unmarshal(envelope.Raw, &dst) to decode the
// type-specific fields once the caller has switched on Type.
func ReadFrame(r io.Reader) (Envelope, error) {
	var header [headerLength]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return Envelope{}, fmt.Errorf("read frame header: %w", err)
	}
	length := binary.BigEndian.Uint32(header[:])
	if length > maxPayloadLength {
		return Envelope{}, fmt.Errorf("frame length %d exceeds maximum %d", length, maxPayloadLength)
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return Envelope{}, fmt.Errorf("read frame payload: %w", err)
	}

	var header2 struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(payload, &header2); err != nil {
		return Envelope{}, fmt.Errorf("decode frame envelope: %w", err)
	}
	if header2.Type == "" {
		return Envelope{}, fmt.Errorf("decode frame envelope: missing \"type\" field")
	}

	return Envelope{Type: header2.Type, Raw: payload}, nil
}

// Decode unmarshals the envelope's raw JSON into dst.
func (e Envelope) Decode(dst any) error {
	if err := json.Unmarshal(e.Raw, dst); err != nil {
		return fmt.Errorf("decode %s message: %w", e.Type, err)
	}
	return nil
}
