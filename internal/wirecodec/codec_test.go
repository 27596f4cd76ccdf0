package wirecodec

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWriterReaderRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	w.Uint8(7)
	w.Uint16(1234)
	w.Uint32(987654)
	w.Uint64(1 << 40)
	w.Int64(-42)
	w.Bytes([]byte("hello"))
	w.RawBytes([]byte{0xde, 0xad, 0xbe, 0xef})
	require.NoError(t, w.Err())

	r := NewReader(&buf)
	require.Equal(t, uint8(7), r.Uint8())
	require.Equal(t, uint16(1234), r.Uint16())
	require.Equal(t, uint32(987654), r.Uint32())
	require.Equal(t, uint64(1<<40), r.Uint64())
	require.Equal(t, int64(-42), r.Int64())
	require.Equal(t, []byte("hello"), r.Bytes())
	require.Equal(t, []byte{0xde, 0xad, 0xbe, 0xef}, r.ReadRaw(4))
	require.NoError(t, r.Err())
}

func TestReaderRejectsTruncatedInput(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	w.Uint32(100)
	w.write([]byte("short"))

	r := NewReader(&buf)
	got := r.Bytes()
	require.Nil(t, got)
	require.Error(t, r.Err())
}

func TestReaderRejectsOversizedLengthPrefix(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	w.Uint32(MaxBytesFieldLen + 1)

	r := NewReader(&buf)
	got := r.Bytes()
	require.Nil(t, got)
	require.Error(t, r.Err())
}

func TestWriterErrShortCircuitsFurtherWrites(t *testing.T) {
	w := NewWriter(&failingWriter{})
	w.Uint8(1)
	require.Error(t, w.Err())
	w.Uint64(123)
	require.Error(t, w.Err())
}

type failingWriter struct{}

func (failingWriter) Write(p []byte) (int, error) {
	return 0, errWriteFailed
}

var errWriteFailed = &writeError{}

type writeError struct{}

func (*writeError) Error() string { return "write failed" }
