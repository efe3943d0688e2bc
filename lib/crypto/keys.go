// Copyright 2026 The Scrybe Authors
// SPDX-License-Identifier: Apache-2.0

// Package crypto implements the end-to-end envelope used between a
// producer and its viewers: Curve25519 key agreement (via
// golang.org/x/crypto/nacl/box) and XSalsa20-Poly1305 secretbox AEAD
// (via golang.org/x/crypto/nacl/secretbox). The relay never holds a
// private key and never calls into this package — it only forwards
// opaque envelopes by viewer identity.
package crypto

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"

	"golang.org/x/crypto/nacl/box"
)

// PublicKey is a Curve25519 public key.
type PublicKey [32]byte

// PrivateKey is a Curve25519 private key.
type PrivateKey [32]byte

// SharedSecret is a precomputed Diffie-Hellman shared secret, usable
// directly as a secretbox key.
type SharedSecret [32]byte

// KeyPair is a producer's or viewer's long-term or ephemeral Curve25519
// key pair.
type KeyPair struct {
	Public  PublicKey
	Private PrivateKey
}

// GenerateKeyPair creates a fresh Curve25519 key pair using the system
// random source.
func GenerateKeyPair() (KeyPair, error) {
	public, private, err := box.GenerateKey(rand.Reader)
	if err != nil {
		return KeyPair{}, fmt.Errorf("generate key pair: %w", err)
	}
	return KeyPair{Public: PublicKey(*public), Private: PrivateKey(*private)}, nil
}

// Precompute derives the shared secret for this key pair's private key
// and a peer's public key. The producer calls this once per viewer, on
// viewer-joined, and caches the result under the viewer's identity.
func (pair KeyPair) Precompute(peer PublicKey) SharedSecret {
	var secret [32]byte
	peerArray := [32]byte(peer)
	privateArray := [32]byte(pair.Private)
	box.Precompute(&secret, &peerArray, &privateArray)
	return SharedSecret(secret)
}

// String renders the public key as standard (padded) base64, the
// wire format required by §4.3 ("base64 without line breaks").
func (key PublicKey) String() string {
	return base64.StdEncoding.EncodeToString(key[:])
}

// ParsePublicKey decodes a base64-encoded public key as produced by
// PublicKey.String.
func ParsePublicKey(encoded string) (PublicKey, error) {
	decoded, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return PublicKey{}, fmt.Errorf("decode public key: %w", err)
	}
	if len(decoded) != 32 {
		return PublicKey{}, fmt.Errorf("public key must decode to 32 bytes, got %d", len(decoded))
	}
	var key PublicKey
	copy(key[:], decoded)
	return key, nil
}
