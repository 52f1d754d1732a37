// Package puller implements the replica side of WAL replication: one
// goroutine that keeps a connection to the master, subscribes from the next
// unconfirmed LSN, and applies every streamed record in order.
//
// Transport failures (dial, handshake, read, checksum) close the connection
// and retry after a fixed delay. Semantic failures (unexpected record tag,
// LSN gap, applier error) are fatal and end the loop with a *FatalError.
//
// Cancellation is observed while dialing, reading and sleeping. Applying a
// record and advancing the confirmed LSN happen under an apply gate that
// Cancel also takes, so once Cancel returns no further record is applied.
package puller
