// Package config loads service configuration from the environment, with
// an optional YAML file for the protocol tuning knobs.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Limits are the synchronization policy knobs. They are operational
// tuning values, not invariants.
type Limits struct {
	// MoveRateMax accepted moves per MoveRateWindow per (user, room).
	MoveRateMax    int           `yaml:"move_rate_max"`
	MoveRateWindow time.Duration `yaml:"move_rate_window"`
	// ReplayCap bounds incremental catch-up; larger gaps fall back to
	// the snapshot alone.
	ReplayCap int `yaml:"replay_cap"`
	// HeartbeatWindow is the minimum interval between effective
	// heartbeats per (user, room).
	HeartbeatWindow time.Duration `yaml:"heartbeat_window"`
}

func DefaultLimits() Limits {
	return Limits{
		MoveRateMax:     3,
		MoveRateWindow:  time.Second,
		ReplayCap:       30,
		HeartbeatWindow: 10 * time.Second,
	}
}

type AppConfig struct {
	ListenAddr string

	// Identity verification: exactly one backend must be configured.
	AuthBaseURL string // HTTP verifier
	RedisURL    string // Redis token-store verifier

	// Optional finished-game archive; memory-only when empty.
	DatabaseURL string

	Limits Limits
}

// Load reads configuration from the environment. ARENA_LIMITS_FILE, when
// set, points at a YAML file overriding the default Limits; individual
// env vars override the file in turn.
func Load() (*AppConfig, error) {
	cfg := &AppConfig{
		ListenAddr: ":8080",
		Limits:     DefaultLimits(),
	}

	if v := strings.TrimSpace(os.Getenv("LISTEN_ADDR")); v != "" {
		cfg.ListenAddr = v
	}
	cfg.AuthBaseURL = strings.TrimSpace(os.Getenv("AUTH_BASE_URL"))
	cfg.RedisURL = strings.TrimSpace(os.Getenv("REDIS_URL"))
	cfg.DatabaseURL = strings.TrimSpace(os.Getenv("DATABASE_URL"))

	if path := strings.TrimSpace(os.Getenv("ARENA_LIMITS_FILE")); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("limits file: %w", err)
		}
		if err := yaml.Unmarshal(raw, &cfg.Limits); err != nil {
			return nil, fmt.Errorf("limits file: %w", err)
		}
	}

	if v := strings.TrimSpace(os.Getenv("MOVE_RATE_MAX")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Limits.MoveRateMax = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("MOVE_RATE_WINDOW")); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.Limits.MoveRateWindow = d
		}
	}
	if v := strings.TrimSpace(os.Getenv("REPLAY_CAP")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Limits.ReplayCap = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("HEARTBEAT_WINDOW")); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.Limits.HeartbeatWindow = d
		}
	}

	if cfg.AuthBaseURL == "" && cfg.RedisURL == "" {
		return nil, errors.New("one of AUTH_BASE_URL or REDIS_URL is required")
	}
	return cfg, nil
}
