package zfile

import "testing"

func TestQuantizeDequantizeQ8_0_ApproximatesInput(t *testing.T) {
	x := make([]float32, 64)
	for i := range x {
		x[i] = float32(i) - 32
	}
	blocks := QuantizeQ8_0(x)
	if len(blocks) != 2 {
		t.Fatalf("got %d blocks, want 2", len(blocks))
	}
	got := Dequantize(blocks, len(x))
	for i := range x {
		diff := got[i] - x[i]
		if diff < 0 {
			diff = -diff
		}
		// quantization error must stay within one scale step
		if diff > blocks[i/q8BlockElems].Scale {
			t.Fatalf("element %d: dequantized %v too far from original %v", i, got[i], x[i])
		}
	}
}

func TestQuantizeQ8_0_AllZeroBlock(t *testing.T) {
	x := make([]float32, 32)
	blocks := QuantizeQ8_0(x)
	if blocks[0].Scale != 0 {
		t.Fatalf("expected zero scale for all-zero block, got %v", blocks[0].Scale)
	}
	got := Dequantize(blocks, len(x))
	for i, v := range got {
		if v != 0 {
			t.Fatalf("element %d: expected 0, got %v", i, v)
		}
	}
}

func TestGraphKVStream_EncodeDecodeRoundTrips(t *testing.T) {
	x := make([]float32, 96)
	for i := range x {
		x[i] = float32(i%17) - 8
	}
	stream := GraphKVStream{
		Magic:   GraphKVMagic,
		Version: GraphKVVersion,
		Blocks:  QuantizeQ8_0(x),
	}
	enc := EncodeGraphKVStream(stream)
	got, err := DecodeGraphKVStream(enc)
	if err != nil {
		t.Fatalf("DecodeGraphKVStream: %v", err)
	}
	if got.Magic != GraphKVMagic || got.Version != GraphKVVersion {
		t.Fatalf("header mismatch: magic=%x version=%d", got.Magic, got.Version)
	}
	if len(got.Blocks) != len(stream.Blocks) {
		t.Fatalf("got %d blocks, want %d", len(got.Blocks), len(stream.Blocks))
	}
	for i := range stream.Blocks {
		if got.Blocks[i].Q != stream.Blocks[i].Q {
			t.Fatalf("block %d: quantized values mismatch", i)
		}
	}
}

func TestGraphKVStream_RebaseForReinjectionShiftsPositions(t *testing.T) {
	stream := GraphKVStream{
		Magic:      GraphKVMagic,
		Version:    GraphKVVersion,
		TokenCount: 3,
		Dim:        4,
		Blocks:     QuantizeQ8_0(make([]float32, 32)),
	}
	if got := stream.Positions(); got[0] != 0 || got[1] != 1 || got[2] != 2 {
		t.Fatalf("expected block-relative positions [0 1 2], got %v", got)
	}

	rebased := stream.RebaseForReinjection(100)
	if stream.InjectionPos != 0 {
		t.Fatalf("RebaseForReinjection must not mutate the receiver, got InjectionPos=%d", stream.InjectionPos)
	}
	if got := rebased.Positions(); got[0] != 100 || got[1] != 101 || got[2] != 102 {
		t.Fatalf("expected rebased positions [100 101 102], got %v", got)
	}

	enc := EncodeGraphKVStream(rebased)
	decoded, err := DecodeGraphKVStream(enc)
	if err != nil {
		t.Fatalf("DecodeGraphKVStream: %v", err)
	}
	if decoded.InjectionPos != 100 || decoded.TokenCount != 3 || decoded.Dim != 4 {
		t.Fatalf("injection_pos/token_count/dim did not round trip: %+v", decoded)
	}
}

func TestFloat16_RoundTripsCommonValues(t *testing.T) {
	vals := []float32{0, 1, -1, 0.5, 3.14, -127.5, 65504}
	for _, v := range vals {
		var buf [2]byte
		putFloat16(buf[:], v)
		got := getFloat16(buf[:])
		diff := got - v
		if diff < 0 {
			diff = -diff
		}
		// half precision has ~3 significant decimal digits
		if diff > absF32(v)*0.01+0.01 {
			t.Fatalf("float16 round trip for %v: got %v", v, got)
		}
	}
}

func absF32(v float32) float32 {
	if v < 0 {
		return -v
	}
	return v
}

func TestPutVarLen_GetVarLen_RoundTrips(t *testing.T) {
	vals := []uint64{0, 1, 0xfc, 0xfd, 0xffff, 0x10000, 0xffffffff, 0x100000000, 1 << 40}
	for _, v := range vals {
		enc := PutVarLen(nil, v)
		got, n, err := GetVarLen(enc)
		if err != nil {
			t.Fatalf("GetVarLen(%d): %v", v, err)
		}
		if got != v {
			t.Fatalf("GetVarLen round trip: got %d, want %d", got, v)
		}
		if n != len(enc) {
			t.Fatalf("consumed %d bytes, encoded %d", n, len(enc))
		}
	}
}

func TestGetVarLen_RejectsNonMinimalEncoding(t *testing.T) {
	// 0xfd tag followed by a value that fits in one byte is non-minimal.
	b := []byte{0xfd, 0x05, 0x00}
	if _, _, err := GetVarLen(b); err == nil {
		t.Fatalf("expected non-minimal encoding to be rejected")
	}
}
