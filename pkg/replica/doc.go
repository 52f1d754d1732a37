// Package replica attaches a remote WAL session to a local recovery context.
//
// A [Recovery] holds the confirmed LSN and the [Applier] that replicated
// records are handed to. [Start] attaches a session that follows a master,
// [Stop] detaches it. At most one session is attached to a Recovery.
//
// # Basic Usage
//
//	rc := replica.NewRecovery(confirmedLSN, replica.ApplierFunc(func(rec wire.Record) error {
//	    return store.Put(rec.LSN, rec.Payload)
//	}))
//
//	s, err := replica.Start(rc, "10.0.0.5:3301",
//	    replica.WithLogger(logger),
//	    replica.WithReconnectDelay(time.Second),
//	)
//	if err != nil {
//	    return err
//	}
//
//	fmt.Println(s.Status()) // replica/10.0.0.5:3301/connecting
//
//	// ... until shutdown ...
//
//	if err := replica.Stop(rc); err != nil {
//	    return err
//	}
//
// # Failure Handling
//
// Network and protocol failures are retried forever with a fixed delay. The
// first failure after a successful connection is logged at error level with
// one "will retry every N second" notice; the rest of the streak is logged at
// debug level only.
//
// An unexpected record tag, an LSN that does not follow the confirmed LSN, or
// an applier error cannot be recovered from. The session stops with a
// [FatalError] and the fatal handler runs; by default it logs and exits the
// process. Use [WithFatalHandler] to change that.
//
// # Event Handling
//
// Implement [EventHandler] (embedding [BaseEventHandler] for defaults) and
// pass it via [WithEventHandler]. Events are called synchronously from the
// puller goroutine.
//
// # Version
//
// Current version: 1.0.0
// Minimum compatible version: 1.0.0
package replica
