// Command zeta-keystore wraps and unwraps a policy document's bytes with
// AES-256-KW, so the document can be shipped at rest without being
// recoverable from a stolen disk image alone.
package main

import (
	"encoding/hex"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"zeta.dev/memory/internal/binding"
	"zeta.dev/memory/internal/hashprng"
)

// KeyStoreV1 is the on-disk wrapped-policy record.
type KeyStoreV1 struct {
	Version       string `json:"version"` // "ZKSv1"
	PolicyHashHex string `json:"policy_hash_hex"`
	WrapAlg       string `json:"wrap_alg"` // "AES-256-KW"
	WrappedDocHex string `json:"wrapped_doc_hex"`
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 1 {
		fmt.Fprintln(stderr, "usage: zeta-keystore <wrap|unwrap|verify> [flags]")
		return 2
	}
	sub, subargv := args[0], args[1:]
	switch sub {
	case "wrap":
		if err := cmdWrap(subargv, stdout); err != nil {
			fmt.Fprintln(stderr, "wrap error:", err)
			return 1
		}
		return 0
	case "unwrap":
		if err := cmdUnwrap(subargv, stdout); err != nil {
			fmt.Fprintln(stderr, "unwrap error:", err)
			return 1
		}
		return 0
	case "verify":
		hashHex, err := cmdVerify(subargv)
		if err != nil {
			fmt.Fprintln(stderr, "verify error:", err)
			return 1
		}
		fmt.Fprintln(stdout, hashHex)
		return 0
	default:
		fmt.Fprintln(stderr, "unknown subcommand:", sub)
		return 2
	}
}

func cmdWrap(argv []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("zeta-keystore wrap", flag.ExitOnError)
	in := fs.String("in", "", "input policy document path")
	out := fs.String("out", "", "output keystore json path")
	kekHex := fs.String("kek-hex", "", "AES-256 KEK (32 bytes hex)")
	passphrase := fs.String("kek-passphrase", "", "derive the KEK from a passphrase instead of --kek-hex")
	saltHex := fs.String("kek-salt-hex", "", "salt for --kek-passphrase (hex, required if passphrase is used)")
	if err := fs.Parse(argv); err != nil {
		return err
	}
	if *in == "" || *out == "" {
		return fmt.Errorf("missing required flags: --in --out")
	}

	doc, err := os.ReadFile(*in) // #nosec G304 -- operator-provided path
	if err != nil {
		return err
	}
	// AES-KW requires a multiple of 8 bytes, at least 16: pad with zeroes.
	paddedLen := ((len(doc) + 7) / 8) * 8
	if paddedLen < 16 {
		paddedLen = 16
	}
	if paddedLen != len(doc) {
		padded := make([]byte, paddedLen)
		copy(padded, doc)
		doc = padded
	}
	kek, err := resolveKEK(*kekHex, *passphrase, *saltHex)
	if err != nil {
		return err
	}

	wrapped, err := binding.AESKeyWrapRFC3394(kek, doc)
	if err != nil {
		return err
	}
	hash := hashprng.SHA256(doc)

	ks := KeyStoreV1{
		Version:       "ZKSv1",
		PolicyHashHex: hex.EncodeToString(hash[:]),
		WrapAlg:       "AES-256-KW",
		WrappedDocHex: hex.EncodeToString(wrapped),
	}
	b, err := json.MarshalIndent(ks, "", "  ")
	if err != nil {
		return err
	}
	b = append(b, '\n')
	if err := os.WriteFile(*out, b, 0o600); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "wrote %s (policy_hash=%s)\n", *out, ks.PolicyHashHex)
	return nil
}

func cmdUnwrap(argv []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("zeta-keystore unwrap", flag.ExitOnError)
	in := fs.String("in", "", "input keystore json path")
	out := fs.String("out", "", "output policy document path")
	kekHex := fs.String("kek-hex", "", "AES-256 KEK (32 bytes hex)")
	passphrase := fs.String("kek-passphrase", "", "derive the KEK from a passphrase instead of --kek-hex")
	saltHex := fs.String("kek-salt-hex", "", "salt for --kek-passphrase (hex, required if passphrase is used)")
	if err := fs.Parse(argv); err != nil {
		return err
	}
	if *in == "" || *out == "" {
		return fmt.Errorf("missing required flags: --in --out")
	}

	ks, err := readKeystore(*in)
	if err != nil {
		return err
	}
	kek, err := resolveKEK(*kekHex, *passphrase, *saltHex)
	if err != nil {
		return err
	}
	wrapped, err := hexDecodeStrict(ks.WrappedDocHex)
	if err != nil {
		return fmt.Errorf("wrapped_doc_hex: %w", err)
	}
	doc, err := binding.AESKeyUnwrapRFC3394(kek, wrapped)
	if err != nil {
		return err
	}
	gotHash := hashprng.SHA256(doc)
	if hex.EncodeToString(gotHash[:]) != ks.PolicyHashHex {
		return fmt.Errorf("unwrapped document hash mismatch: keystore=%s computed=%s", ks.PolicyHashHex, hex.EncodeToString(gotHash[:]))
	}
	if err := os.WriteFile(*out, doc, 0o600); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "wrote %s\n", *out)
	return nil
}

func cmdVerify(argv []string) (string, error) {
	fs := flag.NewFlagSet("zeta-keystore verify", flag.ExitOnError)
	in := fs.String("in", "", "input keystore json path")
	expectedHashHex := fs.String("expected-hash-hex", "", "optional expected policy_hash hex")
	if err := fs.Parse(argv); err != nil {
		return "", err
	}
	if *in == "" {
		return "", fmt.Errorf("missing required flag: --in")
	}
	ks, err := readKeystore(*in)
	if err != nil {
		return "", err
	}
	if *expectedHashHex != "" {
		exp := strings.ToLower(strings.TrimPrefix(strings.TrimSpace(*expectedHashHex), "0x"))
		if exp != ks.PolicyHashHex {
			return "", fmt.Errorf("expected hash mismatch: expected=%s keystore=%s", exp, ks.PolicyHashHex)
		}
	}
	return ks.PolicyHashHex, nil
}

func readKeystore(path string) (*KeyStoreV1, error) {
	raw, err := os.ReadFile(path) // #nosec G304 -- operator-provided path
	if err != nil {
		return nil, err
	}
	var ks KeyStoreV1
	if err := json.Unmarshal(raw, &ks); err != nil {
		return nil, err
	}
	if ks.Version != "ZKSv1" {
		return nil, fmt.Errorf("unsupported keystore version: %q", ks.Version)
	}
	if strings.ToUpper(ks.WrapAlg) != "AES-256-KW" {
		return nil, fmt.Errorf("unsupported wrap_alg: %q", ks.WrapAlg)
	}
	return &ks, nil
}

// resolveKEK returns the 32-byte KEK from either a raw hex value or a
// passphrase+salt pair, mutually exclusive.
func resolveKEK(kekHex, passphrase, saltHex string) ([]byte, error) {
	if kekHex != "" && passphrase != "" {
		return nil, fmt.Errorf("--kek-hex and --kek-passphrase are mutually exclusive")
	}
	if passphrase != "" {
		if saltHex == "" {
			return nil, fmt.Errorf("--kek-salt-hex is required with --kek-passphrase")
		}
		salt, err := hexDecodeStrict(saltHex)
		if err != nil {
			return nil, fmt.Errorf("kek-salt-hex: %w", err)
		}
		kek, err := binding.DeriveKEK([]byte(passphrase), salt)
		if err != nil {
			return nil, fmt.Errorf("kek derivation: %w", err)
		}
		return kek[:], nil
	}
	if kekHex == "" {
		return nil, fmt.Errorf("one of --kek-hex or --kek-passphrase is required")
	}
	kek, err := hexDecodeStrict(kekHex)
	if err != nil {
		return nil, fmt.Errorf("kek-hex: %w", err)
	}
	if len(kek) != 32 {
		return nil, fmt.Errorf("kek must be 32 bytes (got %d)", len(kek))
	}
	return kek, nil
}

func hexDecodeStrict(s string) ([]byte, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "0x")
	return hex.DecodeString(s)
}
