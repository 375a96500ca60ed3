package binding

import (
	"crypto/aes"
	"crypto/sha256"
	"errors"
	"io"

	"golang.org/x/crypto/hkdf"
)

// AES-256 Key Wrap (RFC 3394 / NIST SP 800-38F), adapted from
// crypto/aeskw.go. Used here to wrap the policy document's bytes at rest
// (cmd/zeta-keystore) rather than ML-DSA secret keys. The document that
// derives the binding is exactly as sensitive as a key, and this is the
// teacher's own wrap/unwrap pair unchanged in substance.

var kwDefaultIV = [8]byte{0xA6, 0xA6, 0xA6, 0xA6, 0xA6, 0xA6, 0xA6, 0xA6}

// AESKeyWrapRFC3394 wraps plaintext bytes using AES-KW. kek must be 32 bytes.
// plaintext must be 16..4096 bytes and a multiple of 8 bytes.
func AESKeyWrapRFC3394(kek, plaintext []byte) ([]byte, error) {
	if len(kek) != 32 {
		return nil, errors.New("aeskw: kek must be 32 bytes (AES-256)")
	}
	if len(plaintext) < 16 || len(plaintext) > 4096 || len(plaintext)%8 != 0 {
		return nil, errors.New("aeskw: plaintext must be 16..4096 bytes and multiple of 8")
	}

	block, err := aes.NewCipher(kek)
	if err != nil {
		return nil, err
	}

	n := len(plaintext) / 8
	r := make([][8]byte, n)
	for i := 0; i < n; i++ {
		copy(r[i][:], plaintext[i*8:(i+1)*8])
	}
	a := kwDefaultIV

	var b [16]byte
	for j := 0; j < 6; j++ {
		for i := 0; i < n; i++ {
			copy(b[0:8], a[:])
			copy(b[8:16], r[i][:])
			block.Encrypt(b[:], b[:])
			t := uint64(n*j + (i + 1))
			for k := 0; k < 8; k++ {
				a[k] = b[k] ^ byte(t>>(56-8*k))
			}
			copy(r[i][:], b[8:16])
		}
	}

	out := make([]byte, 0, 8+len(plaintext))
	out = append(out, a[:]...)
	for i := 0; i < n; i++ {
		out = append(out, r[i][:]...)
	}
	return out, nil
}

// AESKeyUnwrapRFC3394 unwraps an AES-KW blob. kek must be 32 bytes; wrapped
// must be 24..4104 bytes and a multiple of 8 bytes.
func AESKeyUnwrapRFC3394(kek, wrapped []byte) ([]byte, error) {
	if len(kek) != 32 {
		return nil, errors.New("aeskw: kek must be 32 bytes (AES-256)")
	}
	if len(wrapped) < 24 || len(wrapped) > 4104 || len(wrapped)%8 != 0 {
		return nil, errors.New("aeskw: wrapped must be 24..4104 bytes and multiple of 8")
	}

	block, err := aes.NewCipher(kek)
	if err != nil {
		return nil, err
	}

	n := (len(wrapped) / 8) - 1
	var a [8]byte
	copy(a[:], wrapped[0:8])
	r := make([][8]byte, n)
	for i := 0; i < n; i++ {
		copy(r[i][:], wrapped[(i+1)*8:(i+2)*8])
	}

	var b [16]byte
	for j := 5; j >= 0; j-- {
		for i := n - 1; i >= 0; i-- {
			t := uint64(n*j + (i + 1))
			var aXor [8]byte
			copy(aXor[:], a[:])
			for k := 0; k < 8; k++ {
				aXor[k] ^= byte(t >> (56 - 8*k))
			}
			copy(b[0:8], aXor[:])
			copy(b[8:16], r[i][:])
			block.Decrypt(b[:], b[:])
			copy(a[:], b[0:8])
			copy(r[i][:], b[8:16])
		}
	}

	if a != kwDefaultIV {
		return nil, errors.New("aeskw: integrity check failed")
	}

	out := make([]byte, 0, n*8)
	for i := 0; i < n; i++ {
		out = append(out, r[i][:]...)
	}
	return out, nil
}

// DeriveKEK stretches an operator-supplied passphrase and salt into a
// 32-byte AES-256 key-encryption key via HKDF-SHA256, so an operator can
// wrap a policy document without handling raw key bytes directly.
func DeriveKEK(passphrase, salt []byte) ([32]byte, error) {
	var kek [32]byte
	r := hkdf.New(sha256.New, passphrase, salt, []byte("zeta-keystore-kek"))
	if _, err := io.ReadFull(r, kek[:]); err != nil {
		return kek, err
	}
	return kek, nil
}
