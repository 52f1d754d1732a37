package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"math"
	"time"
)

// HeaderSize is the encoded size of a record header.
const HeaderSize = 28

// Tag discriminates record kinds.
type Tag uint32

const (
	TagSnapInitial Tag = 1
	TagSnap        Tag = 2
	TagWAL         Tag = 3
	TagSnapFinal   Tag = 4
	TagWALFinal    Tag = 5
)

// String returns the tag name.
func (t Tag) String() string {
	switch t {
	case TagSnapInitial:
		return "snap_initial"
	case TagSnap:
		return "snap"
	case TagWAL:
		return "wal"
	case TagSnapFinal:
		return "snap_final"
	case TagWALFinal:
		return "wal_final"
	default:
		return fmt.Sprintf("tag(%d)", uint32(t))
	}
}

// ErrChecksumMismatch is returned by Record.Verify when the payload was corrupted.
var ErrChecksumMismatch = errors.New("wire: payload checksum mismatch")

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

// Header is the fixed part of a record frame.
type Header struct {
	LSN        int64
	Tag        Tag
	Timestamp  float64
	PayloadLen uint32
	Checksum   uint32
}

// FrameSize is the size of the whole frame this header describes.
func (h Header) FrameSize() int {
	return HeaderSize + int(h.PayloadLen)
}

// EncodeHeader appends the encoded header to b.
func EncodeHeader(b []byte, h Header) []byte {
	b = binary.BigEndian.AppendUint64(b, uint64(h.LSN))
	b = binary.BigEndian.AppendUint32(b, uint32(h.Tag))
	b = binary.BigEndian.AppendUint64(b, math.Float64bits(h.Timestamp))
	b = binary.BigEndian.AppendUint32(b, h.PayloadLen)
	b = binary.BigEndian.AppendUint32(b, h.Checksum)
	return b
}

// DecodeHeader decodes the first HeaderSize bytes of b.
func DecodeHeader(b []byte) (Header, error) {
	if len(b) < HeaderSize {
		return Header{}, fmt.Errorf("%w: header is %d bytes, want %d", ErrShortMessage, len(b), HeaderSize)
	}
	return Header{
		LSN:        int64(binary.BigEndian.Uint64(b[0:8])),
		Tag:        Tag(binary.BigEndian.Uint32(b[8:12])),
		Timestamp:  math.Float64frombits(binary.BigEndian.Uint64(b[12:20])),
		PayloadLen: binary.BigEndian.Uint32(b[20:24]),
		Checksum:   binary.BigEndian.Uint32(b[24:28]),
	}, nil
}

// Record is one replicated log row.
//
// Payload aliases the Reader's buffer: it is only valid until the next
// ReadRecord call. Consumers that keep it must copy it.
type Record struct {
	LSN       int64
	Tag       Tag
	Timestamp float64
	Checksum  uint32
	Payload   []byte
}

// Time converts the master-side timestamp to a time.Time.
func (r Record) Time() time.Time {
	sec, frac := math.Modf(r.Timestamp)
	return time.Unix(int64(sec), int64(frac*1e9))
}

// Verify checks the payload against its checksum. A zero checksum means the
// sender did not compute one and always verifies.
func (r Record) Verify() error {
	if r.Checksum == 0 {
		return nil
	}
	if got := Checksum(r.Payload); got != r.Checksum {
		return fmt.Errorf("%w: lsn %d: got %08x, want %08x", ErrChecksumMismatch, r.LSN, got, r.Checksum)
	}
	return nil
}

// Header returns the header describing r.
func (r Record) Header() Header {
	return Header{
		LSN:        r.LSN,
		Tag:        r.Tag,
		Timestamp:  r.Timestamp,
		PayloadLen: uint32(len(r.Payload)),
		Checksum:   r.Checksum,
	}
}

// Checksum computes the CRC-32C used for payload verification.
func Checksum(payload []byte) uint32 {
	return crc32.Checksum(payload, castagnoli)
}

// Timestamp converts t to the wire timestamp representation.
func Timestamp(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}

// AppendRecord appends the encoded frame for r to b.
func AppendRecord(b []byte, r Record) []byte {
	b = EncodeHeader(b, r.Header())
	return append(b, r.Payload...)
}

// NewRecord builds a WAL record stamped at t with a computed checksum.
func NewRecord(lsn int64, t time.Time, payload []byte) Record {
	return Record{
		LSN:       lsn,
		Tag:       TagWAL,
		Timestamp: Timestamp(t),
		Checksum:  Checksum(payload),
		Payload:   payload,
	}
}
