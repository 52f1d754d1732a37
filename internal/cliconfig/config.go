package cliconfig

import (
	"fmt"
	"net"
	"strconv"
	"time"
)

// Config holds CLI configuration for walfollow.
type Config struct {
	Master   string
	DataDir  string
	StateDir string

	ReconnectDelay   time.Duration
	ConnectTimeout   time.Duration
	HandshakeTimeout time.Duration
	StatusInterval   time.Duration

	ReadAhead  int
	Verify     bool
	SyncWrites bool

	// MaxRecords bounds the store; zero keeps everything.
	MaxRecords      int
	KeepRecords     int
	CleanupInterval time.Duration

	Listen   string
	LogLevel string
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	return Config{
		ReconnectDelay:   time.Second,
		ConnectTimeout:   10 * time.Second,
		HandshakeTimeout: 10 * time.Second,
		StatusInterval:   5 * time.Second,
		ReadAhead:        16 << 10, // 16KB
		Verify:           true,
		SyncWrites:       true,
		CleanupInterval:  time.Hour,
		Listen:           "127.0.0.1:9464",
		LogLevel:         "info",
		StateDir:         "", // Derived from DataDir during Validate
	}
}

// Validate checks the configuration for errors and sets derived defaults.
func (c *Config) Validate() error {
	if c.Master == "" {
		return fmt.Errorf("master is required")
	}
	if _, _, err := net.SplitHostPort(c.Master); err != nil {
		return fmt.Errorf("master must be host:port: %w", err)
	}
	if c.DataDir == "" {
		return fmt.Errorf("data-dir is required")
	}
	if c.StateDir == "" {
		c.StateDir = c.DataDir
	}

	if c.ReconnectDelay <= 0 {
		return fmt.Errorf("reconnect delay must be positive")
	}
	if c.ConnectTimeout <= 0 {
		return fmt.Errorf("connect timeout must be positive")
	}
	if c.HandshakeTimeout <= 0 {
		return fmt.Errorf("handshake timeout must be positive")
	}
	if c.StatusInterval <= 0 {
		return fmt.Errorf("status interval must be positive")
	}
	if c.ReadAhead <= 0 {
		return fmt.Errorf("readahead must be positive")
	}
	if c.MaxRecords < 0 || c.KeepRecords < 0 {
		return fmt.Errorf("record limits must not be negative")
	}
	if c.KeepRecords > c.MaxRecords {
		return fmt.Errorf("keep-records must not exceed max-records")
	}

	return nil
}

// configSetter helps apply configuration values while respecting flag precedence.
// It only applies values if the corresponding flag hasn't been explicitly set.
type configSetter struct {
	changed map[string]bool
}

func newConfigSetter(changed map[string]bool) *configSetter {
	return &configSetter{changed: changed}
}

// setString sets a string value if not empty and flag not changed.
func (s *configSetter) setString(flag, value string, dst *string) {
	if value == "" || s.changed[flag] {
		return
	}
	*dst = value
}

// setInt sets an int value if positive and flag not changed.
func (s *configSetter) setInt(flag string, value int, dst *int) {
	if value <= 0 || s.changed[flag] {
		return
	}
	*dst = value
}

// setDuration parses and sets a duration from string if valid and flag not changed.
func (s *configSetter) setDuration(flag, value string, dst *time.Duration) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	*dst = d
	return nil
}

// setBool sets a bool value from a pointer if not nil and flag not changed.
func (s *configSetter) setBool(flag string, value *bool, dst *bool) {
	if value == nil || s.changed[flag] {
		return
	}
	*dst = *value
}

// setIntFromString parses a string to int and sets the destination if valid.
// Used for environment variables that come as strings.
func (s *configSetter) setIntFromString(flag, value string, dst *int) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	i, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	if i <= 0 {
		return nil
	}
	*dst = i
	return nil
}

// setBoolFromString parses a string to bool and sets the destination.
// Accepts "true", "1" as true, anything else as false.
func (s *configSetter) setBoolFromString(flag, value string, dst *bool) {
	if value == "" || s.changed[flag] {
		return
	}
	*dst = value == "true" || value == "1"
}
