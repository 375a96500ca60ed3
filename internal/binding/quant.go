package binding

import (
	"zeta.dev/memory/errs"
	"zeta.dev/memory/internal/hashprng"
)

// DType identifies the element encoding decrypt_weights operates on.
type DType int

const (
	DTypeF32 DType = iota
	DTypeF16
	DTypeQ4_0
	DTypeQ8_0
)

const (
	q4_0ScaleBytes   = 2
	q4_0PayloadBytes = 16
	q4_0BlockBytes   = q4_0ScaleBytes + q4_0PayloadBytes
	q4_0BlockElems   = 32

	q8_0ScaleBytes   = 2
	q8_0PayloadBytes = 32
	q8_0BlockBytes   = q8_0ScaleBytes + q8_0PayloadBytes
	q8_0BlockElems   = 32
)

// scaleDomainFlag distinguishes the scale keystream from the payload
// keystream for quantized formats, so the two are masked independently even
// though both derive from the same per-block layer_offset.
const scaleDomainFlag = uint64(1) << 63

// DecryptWeights XORs a counter-based keystream into buf, keyed by the
// binding's policy hash and the given layer_offset. Symmetric: calling it
// twice with the same arguments restores the original buffer.
//
// onGPU has no effect on the keystream (accelerator placement does not
// change which bytes get masked); it is accepted to match the spec's
// signature and to let callers record where decryption happened.
func (b *Binding) DecryptWeights(buf []byte, n int, layerOffset uint64, dtype DType, onGPU bool) error {
	_ = onGPU
	switch dtype {
	case DTypeF32:
		return decryptDense(b.Hash, buf, n, 4, layerOffset)
	case DTypeF16:
		return decryptDense(b.Hash, buf, n, 2, layerOffset)
	case DTypeQ4_0:
		return decryptQuantized(b.Hash, buf, n, layerOffset, q4_0BlockElems, q4_0ScaleBytes, q4_0PayloadBytes)
	case DTypeQ8_0:
		return decryptQuantized(b.Hash, buf, n, layerOffset, q8_0BlockElems, q8_0ScaleBytes, q8_0PayloadBytes)
	default:
		return errs.New(errs.Dim, "decrypt_weights: unknown dtype %d", dtype)
	}
}

func decryptDense(seed [32]byte, buf []byte, n, elemSize int, layerOffset uint64) error {
	if len(buf) != n*elemSize {
		return errs.New(errs.Dim, "decrypt_weights: buffer len %d != n(%d)*elem_size(%d)", len(buf), n, elemSize)
	}
	hashprng.WeightMaskStream(seed, layerOffset, 0, buf)
	return nil
}

func decryptQuantized(seed [32]byte, buf []byte, n int, layerOffset uint64, blockElems, scaleBytes, payloadBytes int) error {
	if n%blockElems != 0 {
		return errs.New(errs.Dim, "decrypt_weights: n=%d not a multiple of block size %d", n, blockElems)
	}
	blocks := n / blockElems
	blockBytes := scaleBytes + payloadBytes
	if len(buf) != blocks*blockBytes {
		return errs.New(errs.Dim, "decrypt_weights: buffer len %d != blocks(%d)*block_bytes(%d)", len(buf), blocks, blockBytes)
	}
	for blk := 0; blk < blocks; blk++ {
		off := blk * blockBytes
		scale := buf[off : off+scaleBytes]
		payload := buf[off+scaleBytes : off+blockBytes]

		hashprng.WeightMaskStream(seed, layerOffset|scaleDomainFlag, uint64(blk*scaleBytes), scale)
		hashprng.WeightMaskStream(seed, layerOffset, uint64(blk*payloadBytes), payload)
	}
	return nil
}
