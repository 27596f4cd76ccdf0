// Package wirecodec holds the small stream-oriented encode/decode helpers
// shared by the transaction and block codecs, in the style of daglabs-btcd's
// wire.ReadElement/WriteElement helpers (wire/common.go): little-endian
// fixed-width integers and length-prefixed byte strings over an io.Reader
// / io.Writer, rather than building up a byte slice by hand.
package wirecodec

import (
	"bufio"
	"encoding/binary"
	"io"

	"github.com/The-Sycorax/denaro/internal/errs"
)

// MaxBytesFieldLen bounds any single length-prefixed field to guard against
// a malicious or corrupt length prefix causing an enormous allocation.
const MaxBytesFieldLen = 4 << 20 // 4 MiB, matching the block hex content cap.

// Writer accumulates a canonical encoding.
type Writer struct {
	w   io.Writer
	err error
}

// NewWriter wraps w.
func NewWriter(w io.Writer) *Writer { return &Writer{w: w} }

// Err returns the first error encountered by any Write* call.
func (w *Writer) Err() error { return w.err }

func (w *Writer) write(p []byte) {
	if w.err != nil {
		return
	}
	_, w.err = w.w.Write(p)
}

// Uint8 writes a single byte.
func (w *Writer) Uint8(v uint8) { w.write([]byte{v}) }

// Uint16 writes a little-endian uint16.
func (w *Writer) Uint16(v uint16) {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], v)
	w.write(b[:])
}

// Uint32 writes a little-endian uint32.
func (w *Writer) Uint32(v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	w.write(b[:])
}

// Uint64 writes a little-endian uint64.
func (w *Writer) Uint64(v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	w.write(b[:])
}

// Int64 writes a little-endian int64.
func (w *Writer) Int64(v int64) { w.Uint64(uint64(v)) }

// Bytes writes a uint32 length prefix followed by p.
func (w *Writer) Bytes(p []byte) {
	w.Uint32(uint32(len(p)))
	w.write(p)
}

// RawBytes writes p verbatim with no length prefix, for fixed-size fields
// (such as a hash) whose length is implied by the schema rather than
// encoded alongside the data.
func (w *Writer) RawBytes(p []byte) { w.write(p) }

// Reader parses a canonical encoding produced by Writer.
type Reader struct {
	r   *bufio.Reader
	err error
}

// NewReader wraps r.
func NewReader(r io.Reader) *Reader { return &Reader{r: bufio.NewReader(r)} }

// Err returns the first error encountered by any Read* call.
func (r *Reader) Err() error { return r.err }

// ReadRaw reads exactly n bytes with no length prefix, the counterpart to
// Writer.RawBytes.
func (r *Reader) ReadRaw(n int) []byte { return r.read(n) }

func (r *Reader) read(n int) []byte {
	if r.err != nil {
		return nil
	}
	b := make([]byte, n)
	_, err := io.ReadFull(r.r, b)
	if err != nil {
		r.err = errs.New(errs.ErrMalformedInput, "truncated encoding: %s", err)
		return nil
	}
	return b
}

// Uint8 reads a single byte.
func (r *Reader) Uint8() uint8 {
	b := r.read(1)
	if b == nil {
		return 0
	}
	return b[0]
}

// Uint16 reads a little-endian uint16.
func (r *Reader) Uint16() uint16 {
	b := r.read(2)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint16(b)
}

// Uint32 reads a little-endian uint32.
func (r *Reader) Uint32() uint32 {
	b := r.read(4)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint32(b)
}

// Uint64 reads a little-endian uint64.
func (r *Reader) Uint64() uint64 {
	b := r.read(8)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint64(b)
}

// Int64 reads a little-endian int64.
func (r *Reader) Int64() int64 { return int64(r.Uint64()) }

// Bytes reads a uint32 length prefix followed by that many bytes.
func (r *Reader) Bytes() []byte {
	n := r.Uint32()
	if r.err != nil {
		return nil
	}
	if n > MaxBytesFieldLen {
		r.err = errs.New(errs.ErrMalformedInput, "field length %d exceeds maximum %d", n, MaxBytesFieldLen)
		return nil
	}
	return r.read(int(n))
}
