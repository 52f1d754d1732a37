package wire

import (
	"bytes"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chunkReader returns at most n bytes per Read.
type chunkReader struct {
	r io.Reader
	n int
}

func (c *chunkReader) Read(p []byte) (int, error) {
	if len(p) > c.n {
		p = p[:c.n]
	}
	return c.r.Read(p)
}

func encode(recs ...Record) []byte {
	var b []byte
	for _, r := range recs {
		b = AppendRecord(b, r)
	}
	return b
}

func TestReader_ReadRecord(t *testing.T) {
	ts := time.Unix(1700000000, 0)
	stream := encode(
		NewRecord(1, ts, []byte("one")),
		NewRecord(2, ts, nil),
		NewRecord(3, ts, bytes.Repeat([]byte{0xab}, 4096)),
	)

	r := NewReader(bytes.NewReader(stream), 64)

	rec, err := r.ReadRecord()
	require.NoError(t, err)
	assert.Equal(t, int64(1), rec.LSN)
	assert.Equal(t, TagWAL, rec.Tag)
	assert.Equal(t, []byte("one"), rec.Payload)
	require.NoError(t, rec.Verify())

	rec, err = r.ReadRecord()
	require.NoError(t, err)
	assert.Equal(t, int64(2), rec.LSN)
	assert.Empty(t, rec.Payload)

	rec, err = r.ReadRecord()
	require.NoError(t, err)
	assert.Equal(t, int64(3), rec.LSN)
	assert.Len(t, rec.Payload, 4096)
	require.NoError(t, rec.Verify())

	_, err = r.ReadRecord()
	assert.ErrorIs(t, err, io.EOF)
	assert.Equal(t, int64(len(stream)), r.BytesRead())
}

func TestReader_ReadAheadBatchesSmallRecords(t *testing.T) {
	ts := time.Unix(1, 0)
	stream := encode(
		NewRecord(1, ts, []byte("a")),
		NewRecord(2, ts, []byte("b")),
	)
	r := NewReader(bytes.NewReader(stream), DefaultReadAhead)

	_, err := r.ReadRecord()
	require.NoError(t, err)
	assert.Equal(t, HeaderSize+1, r.Buffered(), "second record should already be buffered")
}

func TestReader_TruncatedStream(t *testing.T) {
	full := encode(NewRecord(1, time.Unix(1, 0), []byte("hello world")))

	tests := []struct {
		name string
		cut  int
		want error
	}{
		{"empty", 0, io.EOF},
		{"mid header", HeaderSize / 2, io.ErrUnexpectedEOF},
		{"header only", HeaderSize, io.ErrUnexpectedEOF},
		{"mid payload", HeaderSize + 4, io.ErrUnexpectedEOF},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewReader(bytes.NewReader(full[:tt.cut]), 0)
			_, err := r.ReadRecord()
			if !errors.Is(err, tt.want) {
				t.Errorf("ReadRecord() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestReader_TransportError(t *testing.T) {
	boom := errors.New("connection reset")
	r := NewReader(io.MultiReader(bytes.NewReader([]byte{0, 0}), errReader{boom}), 0)
	_, err := r.ReadRecord()
	assert.ErrorIs(t, err, boom)
}

type errReader struct{ err error }

func (e errReader) Read([]byte) (int, error) { return 0, e.err }

func TestReader_Release(t *testing.T) {
	big := encode(NewRecord(1, time.Unix(1, 0), make([]byte, 1024)))
	r := NewReader(bytes.NewReader(big), 32)

	_, err := r.ReadRecord()
	require.NoError(t, err)
	require.Equal(t, 0, r.Buffered())
	require.Greater(t, cap(r.buf), 2*32)

	r.Release()
	assert.Nil(t, r.buf)

	_, err = r.ReadRecord()
	assert.ErrorIs(t, err, io.EOF)
}

func TestReader_ReleaseKeepsUnread(t *testing.T) {
	ts := time.Unix(1, 0)
	stream := encode(NewRecord(1, ts, []byte("a")), NewRecord(2, ts, make([]byte, 200)))
	r := NewReader(bytes.NewReader(stream), 16)

	_, err := r.ReadRecord()
	require.NoError(t, err)
	buffered := r.Buffered()
	require.Positive(t, buffered)
	r.Release()
	assert.Equal(t, buffered, r.Buffered())

	rec, err := r.ReadRecord()
	require.NoError(t, err)
	assert.Equal(t, int64(2), rec.LSN)
}

func TestReader_FramingProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200

	properties := gopter.NewProperties(parameters)

	properties.Property("records survive arbitrary chunking", prop.ForAll(
		func(payloads [][]byte, chunk int, readAhead int) bool {
			ts := time.Unix(1700000000, 0)
			recs := make([]Record, len(payloads))
			for i, p := range payloads {
				recs[i] = NewRecord(int64(i+1), ts, p)
			}
			stream := encode(recs...)
			r := NewReader(&chunkReader{r: bytes.NewReader(stream), n: chunk}, readAhead)

			for i := range recs {
				got, err := r.ReadRecord()
				if err != nil {
					return false
				}
				if got.LSN != recs[i].LSN || !bytes.Equal(got.Payload, recs[i].Payload) {
					return false
				}
				if got.Verify() != nil {
					return false
				}
				r.Release()
			}
			_, err := r.ReadRecord()
			return errors.Is(err, io.EOF)
		},
		gen.SliceOf(gen.SliceOf(gen.UInt8())),
		gen.IntRange(1, 97),
		gen.IntRange(1, 512),
	))

	properties.TestingRun(t)
}
