package cliconfig

import "os"

// ApplyEnvConfig applies configuration from environment variables (WALFOLLOW_*).
// It respects flags that have been explicitly set (changed map).
// Returns error if any environment variable has an invalid format.
func ApplyEnvConfig(cfg *Config, changed map[string]bool) error {
	s := newConfigSetter(changed)

	s.setString("master", os.Getenv("WALFOLLOW_MASTER"), &cfg.Master)
	s.setString("data-dir", os.Getenv("WALFOLLOW_DATA_DIR"), &cfg.DataDir)
	s.setString("state-dir", os.Getenv("WALFOLLOW_STATE_DIR"), &cfg.StateDir)
	s.setString("listen", os.Getenv("WALFOLLOW_LISTEN"), &cfg.Listen)
	s.setString("log-level", os.Getenv("WALFOLLOW_LOG_LEVEL"), &cfg.LogLevel)

	if err := s.setDuration("reconnect-delay", os.Getenv("WALFOLLOW_RECONNECT_DELAY"), &cfg.ReconnectDelay); err != nil {
		return err
	}
	if err := s.setDuration("connect-timeout", os.Getenv("WALFOLLOW_CONNECT_TIMEOUT"), &cfg.ConnectTimeout); err != nil {
		return err
	}
	if err := s.setDuration("handshake-timeout", os.Getenv("WALFOLLOW_HANDSHAKE_TIMEOUT"), &cfg.HandshakeTimeout); err != nil {
		return err
	}
	if err := s.setDuration("status-interval", os.Getenv("WALFOLLOW_STATUS_INTERVAL"), &cfg.StatusInterval); err != nil {
		return err
	}

	if err := s.setDuration("cleanup-interval", os.Getenv("WALFOLLOW_CLEANUP_INTERVAL"), &cfg.CleanupInterval); err != nil {
		return err
	}

	if err := s.setIntFromString("readahead", os.Getenv("WALFOLLOW_READAHEAD"), &cfg.ReadAhead); err != nil {
		return err
	}
	if err := s.setIntFromString("max-records", os.Getenv("WALFOLLOW_MAX_RECORDS"), &cfg.MaxRecords); err != nil {
		return err
	}
	if err := s.setIntFromString("keep-records", os.Getenv("WALFOLLOW_KEEP_RECORDS"), &cfg.KeepRecords); err != nil {
		return err
	}

	s.setBoolFromString("verify", os.Getenv("WALFOLLOW_VERIFY"), &cfg.Verify)
	s.setBoolFromString("sync-writes", os.Getenv("WALFOLLOW_SYNC_WRITES"), &cfg.SyncWrites)

	return nil
}
