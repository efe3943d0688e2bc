// Copyright 2026 The Scrybe Authors
// SPDX-License-Identifier: Apache-2.0

package relay

import (
	"encoding/hex"

	"github.com/zeebo/blake3"
)

// userIDDomainKey keys the BLAKE3 hash used for userId derivation, so
// a userId is never the plain (unkeyed) BLAKE3 hash of the secret.
var userIDDomainKey = [32]byte{'s', 'c', 'r', 'y', 'b', 'e', '-', 'u', 's', 'e', 'r', '-', 'i', 'd'}

// DeriveUserID hashes a user secret into an opaque userId. Derivation
// is deterministic and non-failing (§4.1: "Invalid userSecret is
// accepted... ownership is asserted only at registration, not verified
// cryptographically"); the relay is a trust-on-first-use directory,
// not an authentication service.
func DeriveUserID(userSecret string) string {
	hasher, err := blake3.NewKeyed(userIDDomainKey[:])
	if err != nil {
		panic("relay: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	hasher.Write([]byte(userSecret))
	return hex.EncodeToString(hasher.Sum(nil))
}
