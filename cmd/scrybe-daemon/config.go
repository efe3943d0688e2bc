// Copyright 2026 The Scrybe Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

// Config describes a daemon's startup configuration: the relay to
// connect to and the set of sessions to attach immediately rather than
// waiting for an attach-session RPC.
type Config struct {
	ServerAddr   string        `yaml:"server" json:"server"`
	UserSecret   string        `yaml:"userSecret" json:"userSecret"`
	TmuxSocket   string        `yaml:"tmuxSocket" json:"tmuxSocket"`
	PollInterval time.Duration `yaml:"pollInterval" json:"pollInterval"`
	Sessions     []string      `yaml:"sessions" json:"sessions"`
}

// defaultConfig returns the configuration used when no file is given.
func defaultConfig() Config {
	return Config{
		ServerAddr: "127.0.0.1:3010",
		TmuxSocket: "/tmp/scrybe-daemon.tmux",
	}
}

// loadConfigFile reads path and unmarshals it into cfg, dispatching on
// extension: .yaml/.yml is parsed directly as YAML, .json/.jsonc is
// first stripped of comments and trailing commas then parsed as JSON
// (the same two-step pipeline the teacher's pipeline definitions use).
// Any other extension is tried as YAML, which also accepts plain JSON
// since YAML is a JSON superset.
func loadConfigFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}

	if strings.HasSuffix(path, ".json") || strings.HasSuffix(path, ".jsonc") {
		stripped := jsonc.ToJSON(data)
		if err := json.Unmarshal(stripped, cfg); err != nil {
			return fmt.Errorf("parsing %s: %w", path, err)
		}
		return nil
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	return nil
}
