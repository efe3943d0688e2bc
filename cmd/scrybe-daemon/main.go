// Copyright 2026 The Scrybe Authors
// SPDX-License-Identifier: Apache-2.0

// scrybe-daemon owns many capture sessions under a single relay
// connection, answering the relay's list-sessions/create-session/
// attach-session/detach-session RPC instead of binding one connection
// per terminal the way scrybe-producer does.
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
	var configPath string
	var logLevel string

	flagSet := pflag.NewFlagSet("scrybe-daemon", pflag.ContinueOnError)
	flagSet.StringVar(&configPath, "config", os.Getenv("SCRYBE_DAEMON_CONFIG"), "path to a YAML or JSONC startup config file")
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

	cfg := defaultConfig()
	if configPath != "" {
		if err := loadConfigFile(&cfg, configPath); err != nil {
			return err
		}
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: parseLogLevel(logLevel)}))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tmuxServer := tmux.NewServer(cfg.TmuxSocket, "/dev/null")
	backend := capture.NewTmuxBackend(tmuxServer)
	clk := clock.Real()

	daemon := producer.NewDaemon(ctx, producer.DaemonConfig{
		Backend:      backend,
		Clock:        clk,
		Logger:       logger,
		PollInterval: cfg.PollInterval,
	})
	defer daemon.DetachAll()

	for _, name := range cfg.Sessions {
		if !backend.Exists(name) {
			if err := backend.Create(name); err != nil {
				logger.Error("create startup session failed", "session", name, "error", err)
				continue
			}
		}
		if _, err := daemon.AttachSession(name); err != nil {
			logger.Error("attach startup session failed", "session", name, "error", err)
		}
	}

	client := producer.NewDaemonClient(producer.DaemonClientConfig{
		ServerAddr: cfg.ServerAddr,
		UserSecret: cfg.UserSecret,
		Daemon:     daemon,
		Clock:      clk,
		Logger:     logger,
	})

	logger.Info("daemon starting", "server", cfg.ServerAddr, "startupSessions", len(cfg.Sessions))
	return client.Run(ctx)
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
	fmt.Fprintf(os.Stderr, `scrybe-daemon — own many capture sessions under one relay connection.

Reads a YAML or JSONC config naming the relay to connect to and which
sessions to attach at startup. Additional sessions can be created and
attached later via the relay's daemon RPC (list-sessions, create-
session, attach-session, detach-session).

Usage:
  scrybe-daemon [--config PATH] [flags]

Flags:
`)
	flagSet.SetOutput(os.Stderr)
	flagSet.PrintDefaults()
}
