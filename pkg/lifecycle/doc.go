// Package lifecycle provides the connection state machine of a replication puller.
//
// A puller moves through Disconnected, Connecting, Handshaking and Streaming
// and back to Disconnected on every transport failure. Status strings title
// Disconnected as "failed". Stopped is terminal.
//
// # Usage
//
//	manager := lifecycle.NewManager(logger, emitter)
//
//	if err := manager.TransitionTo(lifecycle.StateConnecting, "dial"); err != nil {
//	    return err
//	}
//
//	// Graceful shutdown
//	if err := manager.WaitWithTimeout(30 * time.Second); err != nil {
//	    return lifecycle.ErrShutdownTimeout
//	}
//
// # State Machine
//
// Valid state transitions:
//   - Disconnected -> Connecting, Stopped
//   - Connecting -> Handshaking, Disconnected, Stopped
//   - Handshaking -> Streaming, Disconnected, Stopped
//   - Streaming -> Disconnected, Stopped
//
// # Version
//
// Current version: 2.0.0
// Minimum compatible version: 2.0.0
//
// See version.go for version constants that can be used programmatically.
package lifecycle
