package zfile

import "fmt"

const (
	Magic       uint32 = 0x4154455A // "ZETA"
	Version     uint32 = 1
	HeaderBytes        = 40
)

// Header is the fixed 40-byte .zeta block header.
type Header struct {
	Magic       uint32
	Version     uint32
	BlockID     int64
	TokenStart  int64
	TokenCount  int64
	SummaryDim  int32
	Reserved    int32
}

// Encode writes the header in its exact on-disk layout.
func (h Header) Encode() []byte {
	w := NewWriter()
	w.PutU32LE(h.Magic)
	w.PutU32LE(h.Version)
	w.PutI64LE(h.BlockID)
	w.PutI64LE(h.TokenStart)
	w.PutI64LE(h.TokenCount)
	w.PutI32LE(h.SummaryDim)
	w.PutI32LE(h.Reserved)
	return w.Bytes()
}

// DecodeHeader parses a 40-byte header. It does not validate magic/version;
// callers decide whether to skip the file (store.LoadExisting does).
func DecodeHeader(b []byte) (Header, error) {
	if len(b) < HeaderBytes {
		return Header{}, fmt.Errorf("zfile: header too short: %d bytes", len(b))
	}
	r := NewReader(b[:HeaderBytes])
	var h Header
	var err error
	if h.Magic, err = r.ReadU32LE(); err != nil {
		return Header{}, err
	}
	if h.Version, err = r.ReadU32LE(); err != nil {
		return Header{}, err
	}
	if h.BlockID, err = r.ReadI64LE(); err != nil {
		return Header{}, err
	}
	if h.TokenStart, err = r.ReadI64LE(); err != nil {
		return Header{}, err
	}
	if h.TokenCount, err = r.ReadI64LE(); err != nil {
		return Header{}, err
	}
	if h.SummaryDim, err = r.ReadI32LE(); err != nil {
		return Header{}, err
	}
	if h.Reserved, err = r.ReadI32LE(); err != nil {
		return Header{}, err
	}
	return h, nil
}

// Block is a fully decoded .zeta file: header plus payload.
type Block struct {
	Header  Header
	Summary []float32
	Keys    []float32
	Values  []float32
}

// EncodeBlock serializes a block to its exact bit-for-bit .zeta layout:
// header, then summary, then keys, then values, all row-major float32.
func EncodeBlock(blk Block) []byte {
	w := NewWriter()
	w.PutBytes(blk.Header.Encode())
	w.PutF32Slice(blk.Summary)
	w.PutF32Slice(blk.Keys)
	w.PutF32Slice(blk.Values)
	return w.Bytes()
}

// DecodeBlock parses a full .zeta file. Callers must check Header.Magic and
// Header.Version and SummaryDim before trusting the payload.
func DecodeBlock(b []byte) (Block, error) {
	h, err := DecodeHeader(b)
	if err != nil {
		return Block{}, err
	}
	r := NewReader(b)
	if _, err := r.ReadBytes(HeaderBytes); err != nil {
		return Block{}, err
	}
	dim := int(h.SummaryDim)
	count := int(h.TokenCount)
	if dim < 0 || count < 0 {
		return Block{}, fmt.Errorf("zfile: negative summary_dim(%d) or token_count(%d)", dim, count)
	}
	summary, err := r.ReadF32Slice(dim)
	if err != nil {
		return Block{}, fmt.Errorf("zfile: reading summary: %w", err)
	}
	keys, err := r.ReadF32Slice(count * dim)
	if err != nil {
		return Block{}, fmt.Errorf("zfile: reading keys: %w", err)
	}
	values, err := r.ReadF32Slice(count * dim)
	if err != nil {
		return Block{}, fmt.Errorf("zfile: reading values: %w", err)
	}
	return Block{Header: h, Summary: summary, Keys: keys, Values: values}, nil
}

// FileName returns the canonical on-disk name for a block id.
func FileName(blockID int64) string {
	return fmt.Sprintf("block_%d.zeta", blockID)
}
