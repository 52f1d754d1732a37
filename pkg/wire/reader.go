package wire

import (
	"errors"
	"io"
)

// DefaultReadAhead is the read-ahead reserved before each header read.
const DefaultReadAhead = 16 << 10

// Reader decodes records from a byte stream.
//
// Bytes are buffered between calls so one socket read may yield several
// records. A record is only returned once its whole frame is buffered.
type Reader struct {
	r         io.Reader
	readAhead int

	buf   []byte
	start int // read cursor
	end   int // write cursor

	bytesRead int64
}

// NewReader creates a Reader over r. A non-positive readAhead selects DefaultReadAhead.
func NewReader(r io.Reader, readAhead int) *Reader {
	if readAhead <= 0 {
		readAhead = DefaultReadAhead
	}
	return &Reader{r: r, readAhead: readAhead}
}

// ReadRecord returns the next complete record.
//
// io.EOF is returned when the stream ends on a frame boundary;
// io.ErrUnexpectedEOF when it ends inside a frame.
func (r *Reader) ReadRecord() (Record, error) {
	if r.Buffered() < HeaderSize {
		r.reserve(r.readAhead)
		if err := r.fill(HeaderSize); err != nil {
			return Record{}, err
		}
	}

	h, err := DecodeHeader(r.buf[r.start:r.end])
	if err != nil {
		return Record{}, err
	}

	// payload_len is trusted as sent; there is no upper bound.
	size := h.FrameSize()
	if r.Buffered() < size {
		if err := r.fill(size); err != nil {
			return Record{}, err
		}
	}

	frame := r.buf[r.start : r.start+size]
	r.start += size

	return Record{
		LSN:       h.LSN,
		Tag:       h.Tag,
		Timestamp: h.Timestamp,
		Checksum:  h.Checksum,
		Payload:   frame[HeaderSize:size:size],
	}, nil
}

// Buffered returns the number of received bytes not yet consumed.
func (r *Reader) Buffered() int {
	return r.end - r.start
}

// BytesRead returns the total number of bytes read from the stream.
func (r *Reader) BytesRead() int64 {
	return r.bytesRead
}

// Release drops memory grown beyond the read-ahead once the buffer is
// drained. Payloads returned earlier must not be used afterwards.
func (r *Reader) Release() {
	if r.Buffered() > 0 {
		return
	}
	r.start, r.end = 0, 0
	if cap(r.buf) > 2*r.readAhead {
		r.buf = nil
	}
}

// reserve makes room for at least n more bytes past the write cursor,
// compacting unread bytes to the front first.
func (r *Reader) reserve(n int) {
	if len(r.buf)-r.end >= n {
		return
	}
	unread := r.Buffered()
	if r.start > 0 && len(r.buf)-unread >= n {
		copy(r.buf, r.buf[r.start:r.end])
		r.start, r.end = 0, unread
		return
	}
	size := 2 * len(r.buf)
	if size < unread+n {
		size = unread + n
	}
	nb := make([]byte, size)
	copy(nb, r.buf[r.start:r.end])
	r.buf = nb
	r.start, r.end = 0, unread
}

// fill reads until at least n bytes are buffered.
func (r *Reader) fill(n int) error {
	if need := n - r.Buffered(); need > 0 {
		r.reserve(need)
	}
	for r.Buffered() < n {
		m, err := r.r.Read(r.buf[r.end:])
		r.end += m
		r.bytesRead += int64(m)
		if err != nil {
			if r.Buffered() >= n {
				return nil
			}
			if errors.Is(err, io.EOF) {
				if r.Buffered() == 0 {
					return io.EOF
				}
				return io.ErrUnexpectedEOF
			}
			return err
		}
	}
	return nil
}
