// Copyright 2026 The Scrybe Authors
// SPDX-License-Identifier: Apache-2.0

// scrybe-relay is the session directory and message router: producers
// publish terminal output to it, viewers subscribe, and it arbitrates
// which viewer currently holds the input control lock. It never
// decrypts anything it routes.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strconv"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/scrybe/scrybe/lib/clock"
	"github.com/scrybe/scrybe/lib/relay"
	"github.com/scrybe/scrybe/lib/service"

	"os/signal"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var host string
	var port int
	var logLevel string

	flagSet := pflag.NewFlagSet("scrybe-relay", pflag.ContinueOnError)
	flagSet.StringVar(&host, "host", envOr("HOST", "0.0.0.0"), "bind address for both the wire protocol and HTTP listeners")
	flagSet.IntVar(&port, "port", envIntOr("PORT", 3010), "wire protocol listen port; the HTTP REST surface binds to port+1")
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

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: parseLogLevel(logLevel)}))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	clk := clock.Real()
	registry := relay.NewRegistry(clk, logger)
	go registry.RunReaper(ctx)

	wireAddr := net.JoinHostPort(host, strconv.Itoa(port))
	listener, err := net.Listen("tcp", wireAddr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", wireAddr, err)
	}
	logger.Info("wire protocol listening", "address", wireAddr)

	server := relay.NewServer(registry, logger)
	wireDone := make(chan error, 1)
	go func() { wireDone <- server.Serve(ctx, listener) }()

	httpServer := service.NewHTTPServer(service.HTTPServerConfig{
		Address: net.JoinHostPort(host, strconv.Itoa(port+1)),
		Handler: relay.NewHTTPHandler(registry, clk),
		Logger:  logger,
	})
	httpDone := make(chan error, 1)
	go func() { httpDone <- httpServer.Serve(ctx) }()

	select {
	case err := <-wireDone:
		stop()
		<-httpDone
		return err
	case err := <-httpDone:
		stop()
		<-wireDone
		return err
	case <-ctx.Done():
		<-wireDone
		<-httpDone
		return nil
	}
}

func envOr(name, fallback string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return fallback
}

func envIntOr(name string, fallback int) int {
	v := os.Getenv(name)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
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
	fmt.Fprintf(os.Stderr, `scrybe-relay — session directory, router, and control arbiter.

Accepts producer, daemon, and viewer connections on the wire protocol
port and serves the session directory's REST surface (health, session
enumeration, daemon command dispatch) on the next port up.

Usage:
  scrybe-relay [flags]

Flags:
`)
	flagSet.SetOutput(os.Stderr)
	flagSet.PrintDefaults()
}
