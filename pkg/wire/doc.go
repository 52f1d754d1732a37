// Package wire implements the replication wire format spoken between a
// replica and its master.
//
// A connection starts with a fixed 12 byte Greeting in each direction,
// followed by a 12 byte SubscribeRequest from the replica. From then on the
// master streams records, each a fixed 28 byte header followed by
// payload_len bytes of opaque payload. All integers are big-endian.
//
//	Greeting          format u32 | version_id u32 | reserved u32
//	SubscribeRequest  kind u32   | initial_lsn i64
//	Record header     lsn i64 | tag u32 | timestamp f64 | payload_len u32 | payload_crc32c u32
//
// # Reading records
//
//	r := wire.NewReader(conn, wire.DefaultReadAhead)
//	for {
//	    rec, err := r.ReadRecord()
//	    if err != nil {
//	        return err
//	    }
//	    // rec.Payload is valid until the next ReadRecord call.
//	}
//
// # Version
//
// Current version: 1.0.0
// Minimum compatible version: 1.0.0
package wire
