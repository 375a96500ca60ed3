// Package zfile implements the binary encoding for .zeta block files and the
// Graph-KV quantized capture stream.
package zfile

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Reader is a bounds-checked little-endian cursor over a byte slice.
type Reader struct {
	b   []byte
	pos int
}

func NewReader(b []byte) *Reader {
	return &Reader{b: b}
}

func (r *Reader) remaining() int {
	if r.pos >= len(r.b) {
		return 0
	}
	return len(r.b) - r.pos
}

func (r *Reader) readExact(n int) ([]byte, error) {
	if n < 0 || r.remaining() < n {
		return nil, fmt.Errorf("zfile: truncated read, want %d bytes, have %d", n, r.remaining())
	}
	start := r.pos
	r.pos += n
	return r.b[start:r.pos], nil
}

func (r *Reader) ReadU8() (byte, error) {
	b, err := r.readExact(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (r *Reader) ReadU32LE() (uint32, error) {
	b, err := r.readExact(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (r *Reader) ReadI32LE() (int32, error) {
	v, err := r.ReadU32LE()
	return int32(v), err
}

func (r *Reader) ReadU64LE() (uint64, error) {
	b, err := r.readExact(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

func (r *Reader) ReadI64LE() (int64, error) {
	v, err := r.ReadU64LE()
	return int64(v), err
}

// ReadF32Slice reads n consecutive little-endian float32 values.
func (r *Reader) ReadF32Slice(n int) ([]float32, error) {
	if n < 0 {
		return nil, fmt.Errorf("zfile: negative float32 count %d", n)
	}
	b, err := r.readExact(n * 4)
	if err != nil {
		return nil, err
	}
	out := make([]float32, n)
	for i := range out {
		bits := binary.LittleEndian.Uint32(b[i*4 : i*4+4])
		out[i] = math.Float32frombits(bits)
	}
	return out, nil
}

func (r *Reader) ReadBytes(n int) ([]byte, error) {
	return r.readExact(n)
}

// Pos returns the current read offset.
func (r *Reader) Pos() int { return r.pos }

// Writer accumulates a little-endian byte buffer.
type Writer struct {
	buf []byte
}

func NewWriter() *Writer {
	return &Writer{}
}

func (w *Writer) Bytes() []byte { return w.buf }

func (w *Writer) PutU8(v byte) {
	w.buf = append(w.buf, v)
}

func (w *Writer) PutU32LE(v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	w.buf = append(w.buf, b[:]...)
}

func (w *Writer) PutI32LE(v int32) {
	w.PutU32LE(uint32(v))
}

func (w *Writer) PutU64LE(v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	w.buf = append(w.buf, b[:]...)
}

func (w *Writer) PutI64LE(v int64) {
	w.PutU64LE(uint64(v))
}

// PutF32Slice appends each value as a little-endian float32.
func (w *Writer) PutF32Slice(vals []float32) {
	for _, v := range vals {
		w.PutU32LE(math.Float32bits(v))
	}
}

func (w *Writer) PutBytes(b []byte) {
	w.buf = append(w.buf, b...)
}
