// Copyright 2026 The Scrybe Authors
// SPDX-License-Identifier: Apache-2.0

package wire_test

import (
	"bytes"
	"testing"

	"github.com/scrybe/scrybe/lib/wire"
)

func TestWriteReadFrameRoundTrip(t *testing.T) {
	t.Parallel()

	var buffer bytes.Buffer
	output := wire.Output{Seq: 7, Content: "hello\n", Timestamp: 1000}
	if err := wire.WriteFrame(&buffer, wire.TypeOutput, output); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}

	envelope, err := wire.ReadFrame(&buffer)
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	if envelope.Type != wire.TypeOutput {
		t.Fatalf("Type = %q, want %q", envelope.Type, wire.TypeOutput)
	}

	var decoded wire.Output
	if err := envelope.Decode(&decoded); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if decoded != output {
		t.Errorf("decoded = %+v, want %+v", decoded, output)
	}
}

func TestWriteReadMultipleFrames(t *testing.T) {
	t.Parallel()

	var buffer bytes.Buffer
	if err := wire.WriteFrame(&buffer, wire.TypeHello, wire.Hello{Role: wire.RoleViewer, SessionID: "demo"}); err != nil {
		t.Fatalf("WriteFrame hello: %v", err)
	}
	if err := wire.WriteFrame(&buffer, wire.TypeRequestControl, struct{}{}); err != nil {
		t.Fatalf("WriteFrame request-control: %v", err)
	}
	if err := wire.WriteFrame(&buffer, wire.TypeReleaseControl, struct{}{}); err != nil {
		t.Fatalf("WriteFrame release-control: %v", err)
	}

	wantTypes := []string{wire.TypeHello, wire.TypeRequestControl, wire.TypeReleaseControl}
	for _, want := range wantTypes {
		envelope, err := wire.ReadFrame(&buffer)
		if err != nil {
			t.Fatalf("ReadFrame: %v", err)
		}
		if envelope.Type != want {
			t.Errorf("Type = %q, want %q", envelope.Type, want)
		}
	}
}

func TestReadFrameRejectsOversizedPayload(t *testing.T) {
	t.Parallel()

	var buffer bytes.Buffer
	var header [4]byte
	header[0] = 0xFF
	header[1] = 0xFF
	header[2] = 0xFF
	header[3] = 0xFF
	buffer.Write(header[:])

	if _, err := wire.ReadFrame(&buffer); err == nil {
		t.Fatal("ReadFrame accepted an oversized frame length")
	}
}

func TestReadFrameRejectsMissingType(t *testing.T) {
	t.Parallel()

	var buffer bytes.Buffer
	payload := []byte(`{"foo":"bar"}`)
	var header [4]byte
	header[3] = byte(len(payload))
	buffer.Write(header[:])
	buffer.Write(payload)

	if _, err := wire.ReadFrame(&buffer); err == nil {
		t.Fatal("ReadFrame accepted a frame with no type field")
	}
}

func TestHelloFieldsSurviveRoundTrip(t *testing.T) {
	t.Parallel()

	var buffer bytes.Buffer
	hello := wire.Hello{
		Role:       wire.RoleProducer,
		SessionID:  "demo",
		PublicKey:  "YmFzZTY0a2V5",
		Nickname:   "",
		UserSecret: "s3cr3t",
	}
	if err := wire.WriteFrame(&buffer, wire.TypeHello, hello); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}

	envelope, err := wire.ReadFrame(&buffer)
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}

	var decoded wire.Hello
	if err := envelope.Decode(&decoded); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if decoded != hello {
		t.Errorf("decoded = %+v, want %+v", decoded, hello)
	}
}
