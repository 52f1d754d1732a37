package main

import (
	"fmt"
	"os"
	"runtime"
	"runtime/debug"
	"strings"

	"github.com/spf13/cobra"
	pflag "github.com/spf13/pflag"

	"github.com/bft-labs/walfollow/internal/cliconfig"
	"github.com/bft-labs/walfollow/pkg/log"
)

const helpDescription = `
Follow a WAL master over TCP and keep a local replica in step with it.

Highlights:
  - Subscribes from the last confirmed LSN and resumes after every reconnect.
  - Applies records strictly in order into a local Pebble store.
  - Reports lag and state via status.json, /status, /healthz and /metrics.
  - Configure via file, env (WALFOLLOW_*), or flags; flags win.
`

var longHelp = strings.TrimSpace(helpDescription)

var exampleUsage = strings.TrimSpace(`
  walfollow --master 10.0.0.5:3301 --data-dir /var/lib/walfollow
  walfollow --config $HOME/.walfollow/config.toml --listen :9464
  walfollow dump --data-dir /var/lib/walfollow --from 100 --limit 10
`)

func getVersion() string {
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
		return info.Main.Version
	}
	return "dev"
}

func main() {
	cfg := cliconfig.DefaultConfig()
	var cfgPath string

	logger := cliconfig.Logger(cfg.LogLevel, os.Stderr)

	root := &cobra.Command{
		Use:     "walfollow",
		Short:   "Follow a WAL master and keep a local replica in step",
		Long:    longHelp,
		Example: exampleUsage,
		Version: fmt.Sprintf("%s %s/%s", getVersion(), runtime.GOOS, runtime.GOARCH),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgFile := resolveConfigPath(cfgPath)

			changed := map[string]bool{}
			cmd.Flags().Visit(func(f *pflag.Flag) { changed[f.Name] = true })

			if err := loadConfig(&cfg, cfgFile, changed); err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			logger = cliconfig.Logger(cfg.LogLevel, os.Stderr)
			logger.Info("configuration",
				log.String("master", cfg.Master),
				log.String("data_dir", cfg.DataDir),
				log.String("state_dir", cfg.StateDir),
				log.Duration("reconnect_delay", cfg.ReconnectDelay),
				log.Bool("verify", cfg.Verify),
				log.String("listen", cfg.Listen),
			)

			r := newRunner(cfg, cfgFile, changed, logger)
			return r.run(cmd.Context())
		},
	}

	root.Flags().StringVar(&cfgPath, "config", "", "path to config file (default: $HOME/.walfollow/config.toml)")
	root.Flags().StringVar(&cfg.Master, "master", cfg.Master, "WAL master address (host:port)")
	root.Flags().StringVar(&cfg.DataDir, "data-dir", cfg.DataDir, "directory for the local replica store")
	root.Flags().StringVar(&cfg.StateDir, "state-dir", cfg.StateDir, "state directory for status.json (defaults to data-dir)")

	root.Flags().DurationVar(&cfg.ReconnectDelay, "reconnect-delay", cfg.ReconnectDelay, "fixed delay between connection attempts")
	root.Flags().DurationVar(&cfg.ConnectTimeout, "connect-timeout", cfg.ConnectTimeout, "TCP connect timeout")
	root.Flags().DurationVar(&cfg.HandshakeTimeout, "handshake-timeout", cfg.HandshakeTimeout, "greeting and subscribe timeout")
	root.Flags().DurationVar(&cfg.StatusInterval, "status-interval", cfg.StatusInterval, "how often status.json is refreshed")
	root.Flags().IntVar(&cfg.ReadAhead, "readahead", cfg.ReadAhead, "read buffer size in bytes")
	root.Flags().BoolVar(&cfg.Verify, "verify", cfg.Verify, "verify record checksums")
	root.Flags().BoolVar(&cfg.SyncWrites, "sync-writes", cfg.SyncWrites, "fsync every applied record")
	root.Flags().IntVar(&cfg.MaxRecords, "max-records", cfg.MaxRecords, "prune the store above this many records (0 keeps all)")
	root.Flags().IntVar(&cfg.KeepRecords, "keep-records", cfg.KeepRecords, "records kept after pruning (default 3/4 of max-records)")
	root.Flags().DurationVar(&cfg.CleanupInterval, "cleanup-interval", cfg.CleanupInterval, "how often the store size is checked")

	root.Flags().StringVar(&cfg.Listen, "listen", cfg.Listen, "status server address (empty disables)")
	root.Flags().StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level (debug, info, warn, error)")

	root.AddCommand(newDumpCommand(), newStatusCommand())

	if err := root.Execute(); err != nil {
		logger.Error("walfollow", log.Err(err))
		os.Exit(1)
	}
}

func resolveConfigPath(flagPath string) string {
	if flagPath != "" {
		return flagPath
	}
	return cliconfig.DefaultConfigPath()
}

// loadConfig layers the config file and WALFOLLOW_* env over cfg. Flags in
// changed keep their values.
func loadConfig(cfg *cliconfig.Config, cfgFile string, changed map[string]bool) error {
	if cfgFile != "" && cliconfig.FileExists(cfgFile) {
		fc, err := cliconfig.LoadFileConfig(cfgFile)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if err := cliconfig.ApplyFileConfig(cfg, fc, changed); err != nil {
			return err
		}
	}
	if err := cliconfig.ApplyEnvConfig(cfg, changed); err != nil {
		return fmt.Errorf("env config: %w", err)
	}
	return nil
}
