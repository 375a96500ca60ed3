package hashprng

import (
	"encoding/hex"
	"testing"
)

func TestSHA256_NISTVector(t *testing.T) {
	// NIST FIPS 180-4 short message test vector: SHA256("abc").
	got := SHA256([]byte("abc"))
	want := "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad"
	if hex.EncodeToString(got[:]) != want {
		t.Fatalf("SHA256(abc) = %x, want %s", got, want)
	}
}

func TestSHA256_EmptyVector(t *testing.T) {
	got := SHA256(nil)
	want := "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"
	if hex.EncodeToString(got[:]) != want {
		t.Fatalf("SHA256(\"\") = %x, want %s", got, want)
	}
}

func TestXorBytes32_Involution(t *testing.T) {
	a := SHA256([]byte("policy-a"))
	b := SHA256([]byte("constant"))
	x := XorBytes32(a, b)
	back := XorBytes32(x, b)
	if back != a {
		t.Fatalf("XorBytes32 not involutive: got %x want %x", back, a)
	}
}

func TestStdProvider_Deterministic(t *testing.T) {
	p := StdProvider{}
	h1 := p.HashSeed([]byte("hello"))
	h2 := p.HashSeed([]byte("hello"))
	if h1 != h2 {
		t.Fatalf("HashSeed not deterministic: %x != %x", h1, h2)
	}
}
