package binding

import (
	"bytes"
	"testing"

	"zeta.dev/memory/errs"
)

func testBinding(t *testing.T) *Binding {
	t.Helper()
	t.Setenv("ZETA_DEV_MODE", "1")
	b, err := Init([]byte("quant policy"), testOptions(8, 8, "ZETA_DEV_MODE"))
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	return b
}

func TestDecryptWeights_F32_Involution(t *testing.T) {
	b := testBinding(t)
	buf := make([]byte, 4*16)
	for i := range buf {
		buf[i] = byte(i)
	}
	orig := append([]byte(nil), buf...)

	if err := b.DecryptWeights(buf, 16, 3, DTypeF32, false); err != nil {
		t.Fatalf("decrypt: %v", err)
	}
	if bytes.Equal(buf, orig) {
		t.Fatalf("buffer unchanged after decrypt")
	}
	if err := b.DecryptWeights(buf, 16, 3, DTypeF32, false); err != nil {
		t.Fatalf("decrypt again: %v", err)
	}
	if !bytes.Equal(buf, orig) {
		t.Fatalf("decrypt(decrypt(w,k),k) != w")
	}
}

func TestDecryptWeights_F16_Involution(t *testing.T) {
	b := testBinding(t)
	buf := make([]byte, 2*32)
	for i := range buf {
		buf[i] = byte(i * 3)
	}
	orig := append([]byte(nil), buf...)

	if err := b.DecryptWeights(buf, 32, 0, DTypeF16, false); err != nil {
		t.Fatalf("decrypt: %v", err)
	}
	if err := b.DecryptWeights(buf, 32, 0, DTypeF16, false); err != nil {
		t.Fatalf("decrypt again: %v", err)
	}
	if !bytes.Equal(buf, orig) {
		t.Fatalf("f16 decrypt not involutive")
	}
}

func TestDecryptWeights_Q4_0_Involution(t *testing.T) {
	b := testBinding(t)
	const blocks = 3
	buf := make([]byte, blocks*q4_0BlockBytes)
	for i := range buf {
		buf[i] = byte(i + 7)
	}
	orig := append([]byte(nil), buf...)

	if err := b.DecryptWeights(buf, blocks*q4_0BlockElems, 5, DTypeQ4_0, true); err != nil {
		t.Fatalf("decrypt: %v", err)
	}
	if bytes.Equal(buf, orig) {
		t.Fatalf("buffer unchanged after Q4_0 decrypt")
	}
	if err := b.DecryptWeights(buf, blocks*q4_0BlockElems, 5, DTypeQ4_0, true); err != nil {
		t.Fatalf("decrypt again: %v", err)
	}
	if !bytes.Equal(buf, orig) {
		t.Fatalf("Q4_0 decrypt not involutive")
	}
}

func TestDecryptWeights_Q8_0_Involution(t *testing.T) {
	b := testBinding(t)
	const blocks = 2
	buf := make([]byte, blocks*q8_0BlockBytes)
	for i := range buf {
		buf[i] = byte(255 - i)
	}
	orig := append([]byte(nil), buf...)

	if err := b.DecryptWeights(buf, blocks*q8_0BlockElems, 9, DTypeQ8_0, false); err != nil {
		t.Fatalf("decrypt: %v", err)
	}
	if err := b.DecryptWeights(buf, blocks*q8_0BlockElems, 9, DTypeQ8_0, false); err != nil {
		t.Fatalf("decrypt again: %v", err)
	}
	if !bytes.Equal(buf, orig) {
		t.Fatalf("Q8_0 decrypt not involutive")
	}
}

func TestDecryptWeights_Q8_0_ScaleAndPayloadMaskedDifferently(t *testing.T) {
	b := testBinding(t)
	buf := make([]byte, q8_0BlockBytes)
	// Same byte value across the block boundary: if scale and payload used
	// the same mask derivation, identical inputs would decrypt identically.
	for i := range buf {
		buf[i] = 0x42
	}
	if err := b.DecryptWeights(buf, q8_0BlockElems, 0, DTypeQ8_0, false); err != nil {
		t.Fatalf("decrypt: %v", err)
	}
	if buf[0] == buf[q8_0ScaleBytes] {
		t.Fatalf("scale and payload bytes decrypted identically, masks not independent")
	}
}

func TestDecryptWeights_RejectsBadBufferLen(t *testing.T) {
	b := testBinding(t)
	buf := make([]byte, 10)
	err := b.DecryptWeights(buf, 4, 0, DTypeF32, false)
	if !errs.Is(err, errs.Dim) {
		t.Fatalf("expected errs.Dim, got %v", err)
	}
}

func TestDecryptWeights_RejectsNonMultipleBlockCount(t *testing.T) {
	b := testBinding(t)
	buf := make([]byte, q4_0BlockBytes)
	if err := b.DecryptWeights(buf, 17, 0, DTypeQ4_0, false); !errs.Is(err, errs.Dim) {
		t.Fatalf("expected errs.Dim for non-block-multiple n, got %v", err)
	}
}

func TestDecryptWeights_UnknownDType(t *testing.T) {
	b := testBinding(t)
	if err := b.DecryptWeights(nil, 0, 0, DType(99), false); !errs.Is(err, errs.Dim) {
		t.Fatalf("expected errs.Dim for unknown dtype, got %v", err)
	}
}
