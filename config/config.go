// Package config assembles the daemon configuration from the environment.
// CLI flags in cmd/dujyod override individual fields.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is the full daemon configuration.
type Config struct {
	ListenAddr   string
	LogLevel     string
	Difficulty   int
	MineInterval time.Duration
	MinimumStake uint64
	StorePath    string

	EventsEnabled bool
	EventsTopic   string
	EventsBrokers []string
	EventsAcks    int
}

// Default returns the configuration used when neither environment nor flags
// say otherwise.
func Default() Config {
	return Config{
		ListenAddr:   ":8080",
		LogLevel:     "info",
		Difficulty:   2,
		MineInterval: 10 * time.Second,
		EventsTopic:  "dujyo.chain.blocks",
		EventsAcks:   -1,
	}
}

// FromEnv overlays DUJYO_* environment variables on the defaults.
func FromEnv() (Config, error) {
	cfg := Default()
	var err error

	cfg.ListenAddr = getenv("DUJYO_LISTEN_ADDR", cfg.ListenAddr)
	cfg.LogLevel = getenv("DUJYO_LOG_LEVEL", cfg.LogLevel)
	cfg.StorePath = getenv("DUJYO_STORE_PATH", cfg.StorePath)
	cfg.EventsTopic = getenv("DUJYO_EVENTS_TOPIC", cfg.EventsTopic)

	if cfg.Difficulty, err = getenvInt("DUJYO_DIFFICULTY", cfg.Difficulty); err != nil {
		return cfg, err
	}
	if cfg.EventsAcks, err = getenvInt("DUJYO_EVENTS_ACKS", cfg.EventsAcks); err != nil {
		return cfg, err
	}
	if cfg.MineInterval, err = getenvDuration("DUJYO_MINE_INTERVAL", cfg.MineInterval); err != nil {
		return cfg, err
	}
	if cfg.MinimumStake, err = getenvUint("DUJYO_MINIMUM_STAKE", cfg.MinimumStake); err != nil {
		return cfg, err
	}
	if cfg.EventsEnabled, err = getenvBool("DUJYO_EVENTS_ENABLED", cfg.EventsEnabled); err != nil {
		return cfg, err
	}
	if v := os.Getenv("DUJYO_EVENTS_BROKERS"); v != "" {
		for _, b := range strings.Split(v, ",") {
			if b = strings.TrimSpace(b); b != "" {
				cfg.EventsBrokers = append(cfg.EventsBrokers, b)
			}
		}
	}
	return cfg, nil
}

// Validate checks the configuration before the daemon starts.
func (c Config) Validate() error {
	if c.ListenAddr == "" {
		return errors.New("listen address is required")
	}
	if c.Difficulty < 1 {
		return fmt.Errorf("difficulty must be at least 1: %d", c.Difficulty)
	}
	if c.Difficulty > 16 {
		return fmt.Errorf("difficulty %d would make mining effectively unbounded", c.Difficulty)
	}
	if c.EventsEnabled {
		if c.EventsTopic == "" {
			return errors.New("events topic is required when events are enabled")
		}
		if len(c.EventsBrokers) == 0 {
			return errors.New("at least one events broker is required when events are enabled")
		}
	}
	return nil
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getenvInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func getenvUint(key string, fallback uint64) (uint64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return fallback, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func getenvBool(key string, fallback bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback, fmt.Errorf("%s: %w", key, err)
	}
	return b, nil
}

func getenvDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}
