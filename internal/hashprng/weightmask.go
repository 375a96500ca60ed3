package hashprng

import (
	"encoding/binary"

	"github.com/cespare/xxhash/v2"
)

// WeightMaskByte is the per-element finalizer used to XOR-mask model
// weights: an avalanche mix of index, layer_offset, and seed. It is NOT
// sequential: decrypting an arbitrary subrange of a weight buffer never
// requires replaying a PRNG stream from the start, which is the whole point
// of using a finalizer instead of Xoshiro256State here.
func WeightMaskByte(seed [32]byte, layerOffset, index uint64) byte {
	var buf [48]byte
	copy(buf[0:32], seed[:])
	binary.LittleEndian.PutUint64(buf[32:40], layerOffset)
	binary.LittleEndian.PutUint64(buf[40:48], index)
	h := xxhash.Sum64(buf[:])
	// Fold the 64-bit digest into one byte; XORing all 8 bytes instead of
	// just truncating keeps every input bit influencing the output bit.
	var b byte
	for i := 0; i < 8; i++ {
		b ^= byte(h >> (8 * i))
	}
	return b
}

// WeightMaskStream XORs a per-element keystream derived from WeightMaskByte
// into buf in place, starting at startIndex. Used by binding.DecryptWeights
// for the f32/f16 element paths and for the scale and payload bytes of
// quantized blocks.
func WeightMaskStream(seed [32]byte, layerOffset uint64, startIndex uint64, buf []byte) {
	for i := range buf {
		buf[i] ^= WeightMaskByte(seed, layerOffset, startIndex+uint64(i))
	}
}
