package hashprng

import "encoding/binary"

// Xoshiro256State is a 256-bit-state xoshiro256** generator. Seeded from a
// 32-byte hash, it produces a finite, bit-identical-per-seed sequence across
// platforms. Used exclusively to draw Fisher-Yates permutations; never used
// for the per-element weight mask (that uses WeightMaskByte, a non-sequential
// finalizer, so an arbitrary subrange of weights can be decrypted without
// replaying the whole stream).
type Xoshiro256State struct {
	s [4]uint64
}

const xoshiroWarmupSteps = 20

// NewXoshiro256 seeds a xoshiro256** generator from a 32-byte hash and warms
// it 20 steps before returning.
func NewXoshiro256(seed [32]byte) *Xoshiro256State {
	x := &Xoshiro256State{
		s: [4]uint64{
			binary.LittleEndian.Uint64(seed[0:8]),
			binary.LittleEndian.Uint64(seed[8:16]),
			binary.LittleEndian.Uint64(seed[16:24]),
			binary.LittleEndian.Uint64(seed[24:32]),
		},
	}
	// xoshiro256** requires a non-zero state; a zero seed word is vanishingly
	// unlikely from a real SHA-256 output, but guard it anyway so a
	// degenerate seed never silently produces an all-zero stream.
	allZero := true
	for _, w := range x.s {
		if w != 0 {
			allZero = false
			break
		}
	}
	if allZero {
		x.s[0] = 1
	}
	for i := 0; i < xoshiroWarmupSteps; i++ {
		x.next()
	}
	return x
}

func rotl(x uint64, k int) uint64 {
	return (x << k) | (x >> (64 - k))
}

// next returns the next raw 64-bit output and advances the generator state.
func (x *Xoshiro256State) next() uint64 {
	result := rotl(x.s[1]*5, 7) * 9

	t := x.s[1] << 17

	x.s[2] ^= x.s[0]
	x.s[3] ^= x.s[1]
	x.s[1] ^= x.s[2]
	x.s[0] ^= x.s[3]

	x.s[2] ^= t

	x.s[3] = rotl(x.s[3], 45)

	return result
}

// Uint64 returns the next raw output. Exported so tests can assert the
// sequence is bit-identical given identical seeds.
func (x *Xoshiro256State) Uint64() uint64 {
	return x.next()
}

// Intn returns a uniform value in [0, n) using Lemire's multiply-shift
// reduction, redrawing on the rare low-half rejection so there is no modulo
// bias for any n > 0.
func (x *Xoshiro256State) Intn(n int) int {
	if n <= 0 {
		return 0
	}
	bound := uint64(n)
	for {
		v := x.next()
		hi, lo := bitsMul64(v, bound)
		if lo < (-bound)%bound {
			continue
		}
		_ = hi
		return int(hi)
	}
}

// bitsMul64 returns the high and low 64 bits of v*bound, matching
// math/bits.Mul64 without importing it twice across the package.
func bitsMul64(v, bound uint64) (hi, lo uint64) {
	const mask32 = 1<<32 - 1
	vLo, vHi := v&mask32, v>>32
	bLo, bHi := bound&mask32, bound>>32

	t := vLo * bLo
	w0 := t & mask32
	k := t >> 32

	t = vHi*bLo + k
	w1 := t & mask32
	w2 := t >> 32

	t = vLo*bHi + w1
	k = t >> 32

	hi = vHi*bHi + w2 + k
	lo = (t << 32) | w0
	return hi, lo
}

// FisherYatesPermutation draws a permutation of {0, ..., n-1} using the
// generator.
func FisherYatesPermutation(gen *Xoshiro256State, n int) []uint32 {
	perm := make([]uint32, n)
	for i := range perm {
		perm[i] = uint32(i)
	}
	for i := n - 1; i > 0; i-- {
		j := gen.Intn(i + 1)
		perm[i], perm[j] = perm[j], perm[i]
	}
	return perm
}

// InversePermutation returns inv such that inv[perm[i]] == i for all i.
func InversePermutation(perm []uint32) []uint32 {
	inv := make([]uint32, len(perm))
	for i, p := range perm {
		inv[p] = uint32(i)
	}
	return inv
}
