// Package binding implements constitutional binding: a SHA-256 identity of a
// policy document derives deterministic vocabulary/embedding permutations
// and an XOR keystream over model weights, such that operation without the
// exact policy bytes produces garbage rather than a clean failure.
package binding

import (
	"os"

	"zeta.dev/memory/errs"
	"zeta.dev/memory/internal/hashprng"
)

// embdPermConstant is XORed into the policy hash before deriving the
// embedding-space permutation seed, so vocab_perm and embd_perm are
// independent draws even though they share a root hash.
var embdPermConstant = [32]byte{
	0x5a, 0x45, 0x54, 0x41, 0x2d, 0x45, 0x4d, 0x42,
	0x44, 0x2d, 0x53, 0x41, 0x4c, 0x54, 0x2d, 0x30,
	0x31, 0xc3, 0x7d, 0x9e, 0x11, 0x4f, 0x88, 0xa2,
	0x06, 0x5b, 0xd4, 0x9c, 0x73, 0x21, 0xe8, 0x4f,
}

// ExpectedPolicyHash is the compile-time expected hash of the production
// policy document. A zero value means "no compiled-in expectation" and
// effectively requires dev mode to be enabled for Init to ever succeed; a
// real deployment sets this at build time.
var ExpectedPolicyHash [32]byte

// Binding is the single immutable record created at startup. The
// orchestrator exclusively owns it; the retrieval engine and prefetcher never
// see it (they only borrow the store).
type Binding struct {
	Hash      [32]byte
	Seed      uint64
	VocabPerm []uint32
	VocabInv  []uint32
	EmbdPerm  []uint32
	EmbdInv   []uint32
	Verified  bool
}

// Options configures Init beyond the raw policy bytes.
type Options struct {
	NVocab int
	NEmbd  int
	// DevModeEnv names an environment variable; if it is set to a non-empty
	// value other than "0", the hash check is bypassed.
	DevModeEnv string
	Provider   hashprng.Provider
}

// Init computes the policy hash, derives both permutations, and verifies
// against ExpectedPolicyHash unless dev mode is enabled. On a hash mismatch
// with dev mode disabled it returns an *errs.Error with errs.BadHash; the
// rest of the system must refuse to start.
func Init(policyBytes []byte, opts Options) (*Binding, error) {
	if opts.NVocab <= 0 || opts.NEmbd <= 0 {
		return nil, errs.New(errs.Dim, "n_vocab and n_embd must be > 0 (got %d, %d)", opts.NVocab, opts.NEmbd)
	}
	provider := opts.Provider
	if provider == nil {
		provider = hashprng.StdProvider{}
	}

	hash := provider.HashSeed(policyBytes)
	verified := hash == ExpectedPolicyHash || devModeEnabled(opts.DevModeEnv)
	if !verified {
		return nil, errs.New(errs.BadHash, "policy hash %x does not match compiled-in expectation", hash)
	}

	seed := seedFromHash(hash)

	vocabGen := hashprng.NewXoshiro256(hash)
	vocabPerm := hashprng.FisherYatesPermutation(vocabGen, opts.NVocab)
	vocabInv := hashprng.InversePermutation(vocabPerm)

	embdSeed := hashprng.SHA256(xorBytesVariadic(hash, embdPermConstant))
	embdGen := hashprng.NewXoshiro256(embdSeed)
	embdPerm := hashprng.FisherYatesPermutation(embdGen, opts.NEmbd)
	embdInv := hashprng.InversePermutation(embdPerm)

	return &Binding{
		Hash:      hash,
		Seed:      seed,
		VocabPerm: vocabPerm,
		VocabInv:  vocabInv,
		EmbdPerm:  embdPerm,
		EmbdInv:   embdInv,
		Verified:  verified,
	}, nil
}

func devModeEnabled(envName string) bool {
	if envName == "" {
		return false
	}
	v := os.Getenv(envName)
	return v != "" && v != "0"
}

func seedFromHash(hash [32]byte) uint64 {
	var seed uint64
	for i := 0; i < 8; i++ {
		seed |= uint64(hash[i]) << (8 * i)
	}
	return seed
}

func xorBytesVariadic(a, b [32]byte) []byte {
	xored := hashprng.XorBytes32(a, b)
	return xored[:]
}

// BindLogits permutes logits in place: out[i] = logits[vocab_perm[i]].
func (b *Binding) BindLogits(logits []float32) error {
	if len(logits) != len(b.VocabPerm) {
		return errs.New(errs.Dim, "bind_logits: logits len %d != n_vocab %d", len(logits), len(b.VocabPerm))
	}
	out := make([]float32, len(logits))
	for i, p := range b.VocabPerm {
		out[i] = logits[p]
	}
	copy(logits, out)
	return nil
}

// BindToken maps a canonical token to its bound-space representation.
func (b *Binding) BindToken(t uint32) (uint32, error) {
	if int(t) >= len(b.VocabPerm) {
		return 0, errs.New(errs.Dim, "bind_token: token %d out of range", t)
	}
	return b.VocabPerm[t], nil
}

// UnbindToken maps a sampled bound-space token back to the canonical token
// the host is to emit.
func (b *Binding) UnbindToken(t uint32) (uint32, error) {
	if int(t) >= len(b.VocabInv) {
		return 0, errs.New(errs.Dim, "unbind_token: token %d out of range", t)
	}
	return b.VocabInv[t], nil
}

// PermuteOutputWeights row-permutes weights (n_vocab x n_embd, row-major) by
// vocab_perm in place.
func (b *Binding) PermuteOutputWeights(weights []float32, nVocab, nEmbd int) error {
	return permuteRows(weights, nVocab, nEmbd, b.VocabPerm)
}

// RestoreOutputWeights exactly inverts PermuteOutputWeights.
func (b *Binding) RestoreOutputWeights(weights []float32, nVocab, nEmbd int) error {
	return permuteRows(weights, nVocab, nEmbd, b.VocabInv)
}

func permuteRows(weights []float32, nVocab, nEmbd int, perm []uint32) error {
	if len(weights) != nVocab*nEmbd {
		return errs.New(errs.Dim, "permute_output_weights: buffer len %d != %d*%d", len(weights), nVocab, nEmbd)
	}
	if len(perm) != nVocab {
		return errs.New(errs.Dim, "permute_output_weights: perm len %d != n_vocab %d", len(perm), nVocab)
	}
	out := make([]float32, len(weights))
	for i, p := range perm {
		copy(out[i*nEmbd:(i+1)*nEmbd], weights[int(p)*nEmbd:int(p)*nEmbd+nEmbd])
	}
	copy(weights, out)
	return nil
}
