package zfile

import (
	"fmt"
	"math"
)

const (
	GraphKVMagic   uint32 = 0x5A47
	GraphKVVersion uint32 = 1

	q8BlockElems = 32
)

// GraphKVStream is one layer's Q8_0-quantized capture: magic + version
// header, TokenCount/Dim describing the original float32 shape, an
// InjectionPos rebase point, a varlen-framed block count, then the
// {fp16 scale; i8 q[32]} blocks themselves.
//
// TokenCount rows are indexed 0..TokenCount-1 relative to the captured
// block; InjectionPos is added to that index to recover the row's position
// in whatever KV sequence the stream is being reinjected into. A freshly
// captured stream carries InjectionPos 0 (pure block-relative); call
// RebaseForReinjection before handing a stream to a host that wants
// absolute positions.
type GraphKVStream struct {
	Magic        uint32
	Version      uint32
	TokenCount   int64
	Dim          int32
	InjectionPos int64
	Blocks       []Q8Block
}

// RebaseForReinjection returns a copy of s with InjectionPos set to pos.
func (s GraphKVStream) RebaseForReinjection(pos int64) GraphKVStream {
	s.InjectionPos = pos
	return s
}

// Positions returns the absolute position of each of the stream's
// TokenCount rows, honoring InjectionPos.
func (s GraphKVStream) Positions() []int64 {
	out := make([]int64, s.TokenCount)
	for i := range out {
		out[i] = s.InjectionPos + int64(i)
	}
	return out
}

// Q8Block is one 32-element Q8_0 block.
type Q8Block struct {
	Scale float32 // decoded from fp16 on read, encoded back to fp16 on write
	Q     [q8BlockElems]int8
}

// QuantizeQ8_0 splits x into 32-element blocks, each independently scaled:
// d = max|x| / 127, q = round(clip(x/d, -128, 127)).
func QuantizeQ8_0(x []float32) []Q8Block {
	n := (len(x) + q8BlockElems - 1) / q8BlockElems
	blocks := make([]Q8Block, n)
	for bi := 0; bi < n; bi++ {
		start := bi * q8BlockElems
		end := start + q8BlockElems
		if end > len(x) {
			end = len(x)
		}
		var maxAbs float32
		for _, v := range x[start:end] {
			if a := float32(math.Abs(float64(v))); a > maxAbs {
				maxAbs = a
			}
		}
		var d float32
		if maxAbs > 0 {
			d = maxAbs / 127
		}
		var blk Q8Block
		blk.Scale = d
		for i := start; i < end; i++ {
			if d == 0 {
				continue
			}
			v := x[i] / d
			if v > 127 {
				v = 127
			}
			if v < -128 {
				v = -128
			}
			blk.Q[i-start] = int8(math.Round(float64(v)))
		}
		blocks[bi] = blk
	}
	return blocks
}

// Dequantize expands n elements back out of Q8_0 blocks.
func Dequantize(blocks []Q8Block, n int) []float32 {
	out := make([]float32, n)
	for bi, blk := range blocks {
		start := bi * q8BlockElems
		for i := 0; i < q8BlockElems && start+i < n; i++ {
			out[start+i] = float32(blk.Q[i]) * blk.Scale
		}
	}
	return out
}

// EncodeGraphKVStream serializes a stream: u32 magic, u32 version, i64
// token_count, i32 dim, i64 injection_pos, a varlen-framed block count, then
// each block as 2-byte fp16 scale followed by 32 signed bytes.
func EncodeGraphKVStream(s GraphKVStream) []byte {
	w := NewWriter()
	w.PutU32LE(GraphKVMagic)
	w.PutU32LE(GraphKVVersion)
	w.PutI64LE(s.TokenCount)
	w.PutI32LE(s.Dim)
	w.PutI64LE(s.InjectionPos)
	w.PutBytes(PutVarLen(nil, uint64(len(s.Blocks))))
	for _, blk := range s.Blocks {
		var scaleBuf [2]byte
		putFloat16(scaleBuf[:], blk.Scale)
		w.PutBytes(scaleBuf[:])
		for _, q := range blk.Q {
			w.PutU8(byte(q))
		}
	}
	return w.Bytes()
}

// DecodeGraphKVStream parses a stream produced by EncodeGraphKVStream.
func DecodeGraphKVStream(b []byte) (GraphKVStream, error) {
	r := NewReader(b)
	magic, err := r.ReadU32LE()
	if err != nil {
		return GraphKVStream{}, err
	}
	version, err := r.ReadU32LE()
	if err != nil {
		return GraphKVStream{}, err
	}
	tokenCount, err := r.ReadI64LE()
	if err != nil {
		return GraphKVStream{}, err
	}
	dim, err := r.ReadI32LE()
	if err != nil {
		return GraphKVStream{}, err
	}
	injectionPos, err := r.ReadI64LE()
	if err != nil {
		return GraphKVStream{}, err
	}

	rest, err := r.ReadBytes(r.remaining())
	if err != nil {
		return GraphKVStream{}, err
	}
	count, n, err := GetVarLen(rest)
	if err != nil {
		return GraphKVStream{}, fmt.Errorf("zfile: graph-kv block count: %w", err)
	}
	br := NewReader(rest[n:])

	blocks := make([]Q8Block, 0, count)
	for i := uint64(0); i < count; i++ {
		scaleBytes, err := br.ReadBytes(2)
		if err != nil {
			return GraphKVStream{}, err
		}
		qBytes, err := br.ReadBytes(q8BlockElems)
		if err != nil {
			return GraphKVStream{}, err
		}
		var blk Q8Block
		blk.Scale = getFloat16(scaleBytes)
		for i, qb := range qBytes {
			blk.Q[i] = int8(qb)
		}
		blocks = append(blocks, blk)
	}
	if br.remaining() != 0 {
		return GraphKVStream{}, fmt.Errorf("zfile: graph-kv stream has %d trailing bytes, not a whole block", br.remaining())
	}
	return GraphKVStream{
		Magic:        magic,
		Version:      version,
		TokenCount:   tokenCount,
		Dim:          dim,
		InjectionPos: injectionPos,
		Blocks:       blocks,
	}, nil
}

// putFloat16 writes v as an IEEE-754 binary16 value, little-endian. There is
// no ecosystem half-precision type in play here, so this is a direct
// bit-manipulation of the 32-bit representation.
func putFloat16(dst []byte, v float32) {
	bits := math.Float32bits(v)
	sign := uint16((bits >> 16) & 0x8000)
	exp := int32((bits>>23)&0xff) - 127 + 15
	mant := bits & 0x7fffff

	var h uint16
	switch {
	case exp <= 0:
		h = sign // flushes subnormals/zero to signed zero
	case exp >= 0x1f:
		h = sign | 0x7c00 // overflow to infinity
	default:
		h = sign | uint16(exp)<<10 | uint16(mant>>13)
	}
	dst[0] = byte(h)
	dst[1] = byte(h >> 8)
}

func getFloat16(b []byte) float32 {
	h := uint16(b[0]) | uint16(b[1])<<8
	sign := uint32(h&0x8000) << 16
	exp := uint32(h>>10) & 0x1f
	mant := uint32(h & 0x3ff)

	var bits uint32
	switch {
	case exp == 0:
		bits = sign // zero (subnormals treated as zero, matching putFloat16's flush)
	case exp == 0x1f:
		bits = sign | 0x7f800000 | mant<<13
	default:
		bits = sign | (exp-15+127)<<23 | mant<<13
	}
	return math.Float32frombits(bits)
}
