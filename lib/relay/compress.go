// Copyright 2026 The Scrybe Authors
// SPDX-License-Identifier: Apache-2.0

package relay

import (
	"encoding/json"
	"fmt"

	"github.com/klauspost/compress/zstd"

	"github.com/scrybe/scrybe/lib/wire"
)

// historyEncoder and historyDecoder are package-level because both are
// documented safe for concurrent EncodeAll/DecodeAll calls, and
// constructing either allocates a dictionary-sized window that isn't
// worth paying for per session.
var (
	historyEncoder *zstd.Encoder
	historyDecoder *zstd.Decoder
)

func init() {
	var err error
	historyEncoder, err = zstd.NewWriter(nil)
	if err != nil {
		panic(fmt.Sprintf("relay: zstd writer: %v", err))
	}
	historyDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic(fmt.Sprintf("relay: zstd reader: %v", err))
	}
}

// compressOutput JSON-encodes evt and compresses it for retention in
// the plaintext outputHistory ring. Encrypted ring entries skip this
// step entirely: ciphertext doesn't compress.
func compressOutput(evt wire.Output) []byte {
	data, err := json.Marshal(evt)
	if err != nil {
		// wire.Output has no types json.Marshal can fail on.
		panic(fmt.Sprintf("relay: marshal output: %v", err))
	}
	return historyEncoder.EncodeAll(data, nil)
}

// decompressOutput reverses compressOutput. A corrupt entry is
// dropped rather than failing the whole history reply.
func decompressOutput(compressed []byte) (wire.Output, bool) {
	data, err := historyDecoder.DecodeAll(compressed, nil)
	if err != nil {
		return wire.Output{}, false
	}
	var evt wire.Output
	if err := json.Unmarshal(data, &evt); err != nil {
		return wire.Output{}, false
	}
	return evt, true
}
