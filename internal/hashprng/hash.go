// Package hashprng implements the SHA-256 identity and the two counter-based
// PRNGs used by the policy binding layer.
package hashprng

import "crypto/sha256"

// SHA256 is the standard FIPS 180-4 function. Implementations elsewhere in
// this module MUST treat its output as the canonical identity of the bytes
// hashed; no other hash is substituted for it anywhere in the binding layer.
func SHA256(b []byte) [32]byte {
	return sha256.Sum256(b)
}

// XorBytes32 XORs two 32-byte hashes, used to derive the embedding-space
// permutation seed from SHA-256(hash XOR constant).
func XorBytes32(a, b [32]byte) [32]byte {
	var out [32]byte
	for i := range out {
		out[i] = a[i] ^ b[i]
	}
	return out
}

// Provider narrows the hash/PRNG surface the binding layer depends on, so a
// future hardware RNG or HSM-backed implementation can be substituted without
// touching callers.
type Provider interface {
	// HashSeed returns the 32-byte identity used to seed every derived
	// permutation and keystream for the given policy bytes.
	HashSeed(policyBytes []byte) [32]byte
}

// StdProvider is the default Provider, backed directly by crypto/sha256. It
// is the production implementation; there is no dev/strict split here because
// SHA-256 itself has no swappable backend in this design. That split lives
// one layer up, in binding.devModeEnabled.
type StdProvider struct{}

func (StdProvider) HashSeed(policyBytes []byte) [32]byte {
	return SHA256(policyBytes)
}
