// Copyright 2026 The Scrybe Authors
// SPDX-License-Identifier: Apache-2.0

// scrybe-producer captures one local terminal session and streams it
// to a relay, decrypting and injecting the keystrokes of whichever
// viewer currently holds the control lock. It owns exactly one
// session for its lifetime; scrybe-daemon is the multi-session
// equivalent.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/scrybe/scrybe/lib/capture"
	"github.com/scrybe/scrybe/lib/clock"
	"github.com/scrybe/scrybe/lib/producer"
	"github.com/scrybe/scrybe/lib/tmux"

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
	var serverURL string
	var userSecret string
	var tmuxSocket string
	var unencrypted bool
	var logLevel string

	flagSet := pflag.NewFlagSet("scrybe-producer", pflag.ContinueOnError)
	flagSet.StringVar(&sessionID, "session", "", "session name, also used as the tmux session name (required)")
	flagSet.StringVar(&serverURL, "server", envOr("SCRYBE_SERVER_URL", "127.0.0.1:3010"), "relay's wire protocol address (host:port)")
	flagSet.StringVar(&userSecret, "user-secret", os.Getenv("SCRYBE_USER_SECRET"), "owner secret hashed by the relay into this session's userId")
	flagSet.StringVar(&tmuxSocket, "tmux-socket", envOr("SCRYBE_TMUX_SOCKET", "/tmp/scrybe-producer.tmux"), "dedicated tmux server socket path")
	flagSet.BoolVar(&unencrypted, "unencrypted", false, "disable per-viewer encryption (plaintext routing)")
	flagSet.StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn, error")
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
	if sessionID == "" {
		return fmt.Errorf("--session is required")
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: parseLogLevel(logLevel)}))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tmuxServer := tmux.NewServer(tmuxSocket, "/dev/null")
	backend := capture.NewTmuxBackend(tmuxServer)
	if !backend.Exists(sessionID) {
		if err := backend.Create(sessionID); err != nil {
			return fmt.Errorf("create tmux session %q: %w", sessionID, err)
		}
	}

	encrypted := !unencrypted
	clk := clock.Real()
	controller, err := producer.New(producer.Config{
		SessionID: sessionID,
		Backend:   backend,
		Clock:     clk,
		Logger:    logger,
		Encrypted: &encrypted,
	})
	if err != nil {
		return fmt.Errorf("create controller: %w", err)
	}

	client := producer.NewClient(producer.ClientConfig{
		ServerAddr: serverURL,
		UserSecret: userSecret,
		Controller: controller,
		Clock:      clk,
		Logger:     logger,
	})

	logger.Info("producer starting", "sessionId", sessionID, "server", serverURL, "encrypted", encrypted)
	return client.Run(ctx)
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
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func printHelp(flagSet *pflag.FlagSet) {
	fmt.Fprintf(os.Stderr, `scrybe-producer — capture and stream one terminal session.

Captures the named tmux session's pane and streams it to a relay,
encrypting each frame per viewer unless --unencrypted is given.
Reconnects with backoff across any relay disconnect.

Usage:
  scrybe-producer --session NAME [flags]

Flags:
`)
	flagSet.SetOutput(os.Stderr)
	flagSet.PrintDefaults()
}
