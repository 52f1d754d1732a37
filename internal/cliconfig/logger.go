package cliconfig

import (
	"io"

	"github.com/bft-labs/walfollow/pkg/log"
)

// Logger builds the console logger used by the CLI.
func Logger(level string, out io.Writer) *log.ZerologAdapter {
	return log.NewZerologAdapterWithLogger(log.NewConsoleLogger(out, log.ParseLevel(level)))
}
