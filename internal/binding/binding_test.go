package binding

import (
	"bytes"
	"testing"

	"zeta.dev/memory/errs"
	"zeta.dev/memory/internal/hashprng"
)

func testOptions(nVocab, nEmbd int, devEnv string) Options {
	return Options{NVocab: nVocab, NEmbd: nEmbd, DevModeEnv: devEnv}
}

func TestInit_DevModeBypassesHashCheck(t *testing.T) {
	t.Setenv("ZETA_DEV_MODE", "1")
	b, err := Init([]byte("any policy document"), testOptions(16, 8, "ZETA_DEV_MODE"))
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	if !b.Verified {
		t.Fatalf("Verified = false in dev mode")
	}
}

func TestInit_RejectsMismatchWithoutDevMode(t *testing.T) {
	_, err := Init([]byte("any policy document"), testOptions(16, 8, ""))
	if err == nil {
		t.Fatalf("expected BadHash error, got nil")
	}
	if !errs.Is(err, errs.BadHash) {
		t.Fatalf("expected errs.BadHash, got %v", err)
	}
}

func TestInit_RejectsBadDims(t *testing.T) {
	_, err := Init([]byte("x"), testOptions(0, 8, ""))
	if !errs.Is(err, errs.Dim) {
		t.Fatalf("expected errs.Dim, got %v", err)
	}
}

func TestInit_VocabAndEmbdPermsAreIndependent(t *testing.T) {
	t.Setenv("ZETA_DEV_MODE", "1")
	b, err := Init([]byte("policy"), testOptions(64, 64, "ZETA_DEV_MODE"))
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	same := true
	for i := range b.VocabPerm {
		if b.VocabPerm[i] != b.EmbdPerm[i] {
			same = false
			break
		}
	}
	if same {
		t.Fatalf("vocab_perm and embd_perm are identical, expected independent draws")
	}
}

func TestBindToken_UnbindToken_RoundTrips(t *testing.T) {
	t.Setenv("ZETA_DEV_MODE", "1")
	b, err := Init([]byte("policy"), testOptions(32, 8, "ZETA_DEV_MODE"))
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	for tok := uint32(0); tok < 32; tok++ {
		bound, err := b.BindToken(tok)
		if err != nil {
			t.Fatalf("BindToken(%d): %v", tok, err)
		}
		back, err := b.UnbindToken(bound)
		if err != nil {
			t.Fatalf("UnbindToken(%d): %v", bound, err)
		}
		if back != tok {
			t.Fatalf("round trip failed: token %d -> %d -> %d", tok, bound, back)
		}
	}
}

func TestBindToken_OutOfRange(t *testing.T) {
	t.Setenv("ZETA_DEV_MODE", "1")
	b, err := Init([]byte("policy"), testOptions(4, 4, "ZETA_DEV_MODE"))
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	if _, err := b.BindToken(100); !errs.Is(err, errs.Dim) {
		t.Fatalf("expected errs.Dim for out-of-range token, got %v", err)
	}
}

func TestPermuteOutputWeights_RestoreRoundTrips(t *testing.T) {
	t.Setenv("ZETA_DEV_MODE", "1")
	b, err := Init([]byte("policy"), testOptions(6, 3, "ZETA_DEV_MODE"))
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	orig := make([]float32, 6*3)
	for i := range orig {
		orig[i] = float32(i)
	}
	w := append([]float32(nil), orig...)

	if err := b.PermuteOutputWeights(w, 6, 3); err != nil {
		t.Fatalf("PermuteOutputWeights: %v", err)
	}
	if err := b.RestoreOutputWeights(w, 6, 3); err != nil {
		t.Fatalf("RestoreOutputWeights: %v", err)
	}
	for i := range orig {
		if w[i] != orig[i] {
			t.Fatalf("round trip mismatch at %d: got %v want %v", i, w[i], orig[i])
		}
	}
}

func TestInversePermutation_IsInverseOfItsOwnDefinition(t *testing.T) {
	gen := hashprng.NewXoshiro256(hashprng.SHA256([]byte("probe")))
	perm := hashprng.FisherYatesPermutation(gen, 16)
	inv := hashprng.InversePermutation(perm)
	for i, p := range perm {
		if inv[p] != uint32(i) {
			t.Fatalf("inv[perm[%d]] = %d, want %d", i, inv[p], i)
		}
	}
}

func TestBindLogits_DimMismatch(t *testing.T) {
	t.Setenv("ZETA_DEV_MODE", "1")
	b, err := Init([]byte("policy"), testOptions(4, 4, "ZETA_DEV_MODE"))
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	if err := b.BindLogits(make([]float32, 3)); !errs.Is(err, errs.Dim) {
		t.Fatalf("expected errs.Dim, got %v", err)
	}
}

func TestAESKeyWrap_UnwrapRoundTrips(t *testing.T) {
	kek := bytes.Repeat([]byte{0x42}, 32)
	plaintext := []byte("a policy document that is 24 bytes")[:24]

	wrapped, err := AESKeyWrapRFC3394(kek, plaintext)
	if err != nil {
		t.Fatalf("wrap: %v", err)
	}
	if len(wrapped) != len(plaintext)+8 {
		t.Fatalf("wrapped len = %d, want %d", len(wrapped), len(plaintext)+8)
	}

	unwrapped, err := AESKeyUnwrapRFC3394(kek, wrapped)
	if err != nil {
		t.Fatalf("unwrap: %v", err)
	}
	if !bytes.Equal(unwrapped, plaintext) {
		t.Fatalf("unwrap mismatch: got %x want %x", unwrapped, plaintext)
	}
}

func TestAESKeyUnwrap_RejectsTamperedBlob(t *testing.T) {
	kek := bytes.Repeat([]byte{0x11}, 32)
	plaintext := bytes.Repeat([]byte{0xAB}, 16)

	wrapped, err := AESKeyWrapRFC3394(kek, plaintext)
	if err != nil {
		t.Fatalf("wrap: %v", err)
	}
	wrapped[len(wrapped)-1] ^= 0xFF

	if _, err := AESKeyUnwrapRFC3394(kek, wrapped); err == nil {
		t.Fatalf("expected integrity check failure on tampered blob")
	}
}
