// Copyright 2026 The Scrybe Authors
// SPDX-License-Identifier: Apache-2.0

package crypto

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"

	"golang.org/x/crypto/nacl/secretbox"

	"github.com/scrybe/scrybe/lib/wire"
)

// nonceLength is secretbox's required nonce width.
const nonceLength = 24

// Seal encrypts plaintext under the shared secret with a fresh random
// nonce and returns the wire representation. A fresh nonce is
// generated for every call — nonces are never reused under a shared
// key, per §4.3.
func Seal(secret SharedSecret, plaintext []byte) (wire.CipherBox, error) {
	var nonce [nonceLength]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return wire.CipherBox{}, fmt.Errorf("generate nonce: %w", err)
	}

	key := [32]byte(secret)
	sealed := secretbox.Seal(nil, plaintext, &nonce, &key)

	return wire.CipherBox{
		Nonce:      base64.StdEncoding.EncodeToString(nonce[:]),
		Ciphertext: base64.StdEncoding.EncodeToString(sealed),
	}, nil
}

// Open decrypts a wire.CipherBox under the shared secret. Returns an
// error if the nonce or ciphertext are malformed, or if authentication
// fails. Per §4.3 and §7, a caller that gets an error here MUST drop
// the message rather than act on partial or unauthenticated data.
func Open(secret SharedSecret, box wire.CipherBox) ([]byte, error) {
	nonceBytes, err := base64.StdEncoding.DecodeString(box.Nonce)
	if err != nil {
		return nil, fmt.Errorf("decode nonce: %w", err)
	}
	if len(nonceBytes) != nonceLength {
		return nil, fmt.Errorf("nonce must be %d bytes, got %d", nonceLength, len(nonceBytes))
	}
	ciphertext, err := base64.StdEncoding.DecodeString(box.Ciphertext)
	if err != nil {
		return nil, fmt.Errorf("decode ciphertext: %w", err)
	}

	var nonce [nonceLength]byte
	copy(nonce[:], nonceBytes)
	key := [32]byte(secret)

	plaintext, ok := secretbox.Open(nil, ciphertext, &nonce, &key)
	if !ok {
		return nil, fmt.Errorf("decrypt: authentication failed")
	}
	return plaintext, nil
}
