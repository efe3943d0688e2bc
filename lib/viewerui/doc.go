// Copyright 2026 The Scrybe Authors
// SPDX-License-Identifier: Apache-2.0

// Package viewerui is the terminal-native analogue of the browser
// renderer the relay protocol was originally designed for. It renders
// a producer's streamed terminal frames inside a scrollable viewport
// with a status line for connection, encryption, and control-lock
// state, and lets the operator request or release the control lock.
package viewerui
