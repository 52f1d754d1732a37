// Package log provides the logging abstraction used by walfollow components.
//
// The replication core only depends on the Logger interface defined here, so
// embedders can route messages into their own logging stack. A zerolog
// adapter is provided for the CLI and a no-op logger is the library default.
//
// # Usage
//
//	logger := log.NewZerologAdapterWithLogger(zerolog.New(os.Stderr))
//	logger.Info("successfully connected to master", log.String("source", "10.0.0.1:3301"))
//
// # Version
//
// Current version: 1.1.0
// Minimum compatible version: 1.0.0
package log
