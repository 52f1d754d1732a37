package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
)

const (
	// FormatVersion is the log format both peers must agree on.
	FormatVersion uint32 = 11

	// RequestGetWAL asks the master to stream its WAL from an LSN.
	RequestGetWAL uint32 = 0xff

	// GreetingSize is the encoded size of a Greeting.
	GreetingSize = 12

	// SubscribeRequestSize is the encoded size of a SubscribeRequest.
	SubscribeRequestSize = 12
)

// ErrShortMessage is returned when a fixed-size message is truncated.
var ErrShortMessage = errors.New("wire: short message")

// Greeting is exchanged once in each direction when a connection opens.
// Reserved is sent as zero and ignored on receipt.
type Greeting struct {
	Format    uint32
	VersionID uint32
	Reserved  uint32
}

// NewGreeting returns the greeting this side sends.
func NewGreeting(versionID uint32) Greeting {
	return Greeting{Format: FormatVersion, VersionID: versionID}
}

// MarshalBinary encodes the greeting.
func (g Greeting) MarshalBinary() ([]byte, error) {
	return g.AppendBinary(make([]byte, 0, GreetingSize))
}

// AppendBinary appends the encoded greeting to b.
func (g Greeting) AppendBinary(b []byte) ([]byte, error) {
	b = binary.BigEndian.AppendUint32(b, g.Format)
	b = binary.BigEndian.AppendUint32(b, g.VersionID)
	b = binary.BigEndian.AppendUint32(b, g.Reserved)
	return b, nil
}

// UnmarshalGreeting decodes a greeting from exactly GreetingSize bytes.
func UnmarshalGreeting(b []byte) (Greeting, error) {
	if len(b) != GreetingSize {
		return Greeting{}, fmt.Errorf("%w: greeting is %d bytes, want %d", ErrShortMessage, len(b), GreetingSize)
	}
	return Greeting{
		Format:    binary.BigEndian.Uint32(b[0:4]),
		VersionID: binary.BigEndian.Uint32(b[4:8]),
		Reserved:  binary.BigEndian.Uint32(b[8:12]),
	}, nil
}

// SubscribeRequest asks the master for everything from InitialLSN on.
type SubscribeRequest struct {
	Kind       uint32
	InitialLSN int64
}

// NewSubscribeRequest returns a GET_WAL request starting at lsn.
func NewSubscribeRequest(lsn int64) SubscribeRequest {
	return SubscribeRequest{Kind: RequestGetWAL, InitialLSN: lsn}
}

// MarshalBinary encodes the request without padding.
func (s SubscribeRequest) MarshalBinary() ([]byte, error) {
	b := make([]byte, 0, SubscribeRequestSize)
	b = binary.BigEndian.AppendUint32(b, s.Kind)
	b = binary.BigEndian.AppendUint64(b, uint64(s.InitialLSN))
	return b, nil
}

// UnmarshalSubscribeRequest decodes a request from exactly SubscribeRequestSize bytes.
func UnmarshalSubscribeRequest(b []byte) (SubscribeRequest, error) {
	if len(b) != SubscribeRequestSize {
		return SubscribeRequest{}, fmt.Errorf("%w: subscribe request is %d bytes, want %d", ErrShortMessage, len(b), SubscribeRequestSize)
	}
	return SubscribeRequest{
		Kind:       binary.BigEndian.Uint32(b[0:4]),
		InitialLSN: int64(binary.BigEndian.Uint64(b[4:12])),
	}, nil
}
