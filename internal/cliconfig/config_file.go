package cliconfig

import (
	"os"
	"path/filepath"

	toml "github.com/pelletier/go-toml/v2"
)

// FileConfig mirrors Config but uses strings for durations to make TOML friendly.
type FileConfig struct {
	Master           string `toml:"master"`
	DataDir          string `toml:"data_dir"`
	StateDir         string `toml:"state_dir"`
	ReconnectDelay   string `toml:"reconnect_delay"`
	ConnectTimeout   string `toml:"connect_timeout"`
	HandshakeTimeout string `toml:"handshake_timeout"`
	StatusInterval   string `toml:"status_interval"`
	ReadAhead        int    `toml:"readahead"`
	Verify           *bool  `toml:"verify"`
	SyncWrites       *bool  `toml:"sync_writes"`
	MaxRecords       int    `toml:"max_records"`
	KeepRecords      int    `toml:"keep_records"`
	CleanupInterval  string `toml:"cleanup_interval"`
	Listen           string `toml:"listen"`
	LogLevel         string `toml:"log_level"`
}

// LoadFileConfig reads and parses a TOML config file from the given path.
func LoadFileConfig(path string) (FileConfig, error) {
	var fc FileConfig
	b, err := os.ReadFile(path)
	if err != nil {
		return fc, err
	}
	if err := toml.Unmarshal(b, &fc); err != nil {
		return fc, err
	}
	return fc, nil
}

// DefaultConfigPath returns ~/.walfollow/config.toml, or "" when the home
// directory cannot be determined.
func DefaultConfigPath() string {
	if h, err := os.UserHomeDir(); err == nil {
		return filepath.Join(h, ".walfollow", "config.toml")
	}
	return ""
}

// ApplyFileConfig applies configuration from a file to the Config struct.
// It respects flags that have been explicitly set (changed map).
func ApplyFileConfig(cfg *Config, fc FileConfig, changed map[string]bool) error {
	s := newConfigSetter(changed)

	s.setString("master", fc.Master, &cfg.Master)
	s.setString("data-dir", fc.DataDir, &cfg.DataDir)
	s.setString("state-dir", fc.StateDir, &cfg.StateDir)
	s.setString("listen", fc.Listen, &cfg.Listen)
	s.setString("log-level", fc.LogLevel, &cfg.LogLevel)

	if err := s.setDuration("reconnect-delay", fc.ReconnectDelay, &cfg.ReconnectDelay); err != nil {
		return err
	}
	if err := s.setDuration("connect-timeout", fc.ConnectTimeout, &cfg.ConnectTimeout); err != nil {
		return err
	}
	if err := s.setDuration("handshake-timeout", fc.HandshakeTimeout, &cfg.HandshakeTimeout); err != nil {
		return err
	}
	if err := s.setDuration("status-interval", fc.StatusInterval, &cfg.StatusInterval); err != nil {
		return err
	}

	if err := s.setDuration("cleanup-interval", fc.CleanupInterval, &cfg.CleanupInterval); err != nil {
		return err
	}

	s.setInt("readahead", fc.ReadAhead, &cfg.ReadAhead)
	s.setInt("max-records", fc.MaxRecords, &cfg.MaxRecords)
	s.setInt("keep-records", fc.KeepRecords, &cfg.KeepRecords)

	s.setBool("verify", fc.Verify, &cfg.Verify)
	s.setBool("sync-writes", fc.SyncWrites, &cfg.SyncWrites)

	return nil
}

// FileExists checks if a file exists at the given path.
func FileExists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}
