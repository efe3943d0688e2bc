// Copyright 2026 The Scrybe Authors
// SPDX-License-Identifier: Apache-2.0

// scrybe-viewer is the interactive terminal UI for watching and,
// while holding the control lock, typing into a remote session. Given
// --session it connects directly; otherwise it lists sessions visible
// on the relay's HTTP surface and offers a fuzzy picker.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strconv"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/pflag"

	"github.com/scrybe/scrybe/lib/crypto"
	"github.com/scrybe/scrybe/lib/viewerui"
	"github.com/scrybe/scrybe/lib/wire"

	"os/signal"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var sessionID string
	var serverAddr string
	var userSecret string
	var nickname string
	var logLevel string

	flagSet := pflag.NewFlagSet("scrybe-viewer", pflag.ContinueOnError)
	flagSet.StringVar(&sessionID, "session", "", "session to watch (skip the picker)")
	flagSet.StringVar(&serverAddr, "server", envOr("SCRYBE_SERVER_URL", "127.0.0.1:3010"), "relay's wire protocol address (host:port)")
	flagSet.StringVar(&userSecret, "user-secret", os.Getenv("SCRYBE_USER_SECRET"), "owner secret; narrows the picker to this user's sessions")
	flagSet.StringVar(&nickname, "nickname", os.Getenv("USER"), "display name shown to other viewers and the control-lock holder badge")
	flagSet.StringVar(&logLevel, "log-level", "warn", "log level: debug, info, warn, error")
	flagSet.BoolP("help", "h", false, "show help")

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return err
	}
	if help, _ := flagSet.GetBool("help"); help {
		printHelp(flagSet)
		return nil
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: parseLogLevel(logLevel)}))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if sessionID == "" {
		httpAddr, err := httpAddrFor(serverAddr)
		if err != nil {
			return err
		}
		sessions, err := fetchSessions(ctx, httpAddr, userSecret)
		if err != nil {
			return fmt.Errorf("list sessions: %w", err)
		}
		if len(sessions) == 0 {
			return fmt.Errorf("no sessions available on %s", serverAddr)
		}
		chosen, err := runPicker(sessions)
		if err != nil {
			if errors.Is(err, errPickerCancelled) {
				return nil
			}
			return err
		}
		sessionID = chosen
	}

	keyPair, err := crypto.GenerateKeyPair()
	if err != nil {
		return fmt.Errorf("generate key pair: %w", err)
	}

	conn := newViewerConn(serverAddr, sessionID, nickname, keyPair, logger)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := conn.dial(runCtx); err != nil {
		return fmt.Errorf("connect to %s: %w", serverAddr, err)
	}

	transportDone := make(chan error, 1)
	go func() { transportDone <- conn.run(runCtx) }()

	model := viewerui.NewModel(sessionID, "", conn.events, conn.requestControl, conn.releaseControl, func(kind wire.InputKind, data string) {
		conn.sendInput(kind, data)
	})
	conn.getHistory()

	program := tea.NewProgram(model, tea.WithAltScreen(), tea.WithMouseAllMotion())
	_, runErr := program.Run()

	cancel()
	if transportErr := <-transportDone; transportErr != nil && runErr == nil {
		return transportErr
	}
	return runErr
}

// httpAddrFor derives the relay's HTTP address from its wire protocol
// address by incrementing the port, per cmd/scrybe-relay's dual-
// listener convention (wire frames on PORT, REST on PORT+1).
func httpAddrFor(wireAddr string) (string, error) {
	host, portStr, err := net.SplitHostPort(wireAddr)
	if err != nil {
		return "", fmt.Errorf("parse server address %q: %w", wireAddr, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return "", fmt.Errorf("parse server port %q: %w", portStr, err)
	}
	return net.JoinHostPort(host, strconv.Itoa(port+1)), nil
}

func envOr(name, fallback string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return fallback
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "error":
		return slog.LevelError
	default:
		return slog.LevelWarn
	}
}

func printHelp(flagSet *pflag.FlagSet) {
	fmt.Fprintf(os.Stderr, `scrybe-viewer — watch and, while holding control, type into a remote session.

Without --session, lists sessions visible on the relay and opens a
fuzzy picker (type to filter, arrows to move, enter to confirm).

Usage:
  scrybe-viewer [--session NAME] [flags]

Flags:
`)
	flagSet.SetOutput(os.Stderr)
	flagSet.PrintDefaults()
}
