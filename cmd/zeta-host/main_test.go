package main

import (
	"bytes"
	"path/filepath"
	"testing"
)

func TestRunDryRunOK(t *testing.T) {
	dir := t.TempDir()
	var out, errOut bytes.Buffer

	code := run([]string{"--dry-run", "--zeta-storage", filepath.Join(dir, "store")}, &out, &errOut)
	if code != 0 {
		t.Fatalf("expected exit code 0, got %d (stderr=%q)", code, errOut.String())
	}
	if out.Len() == 0 {
		t.Fatalf("expected stdout output")
	}
}

func TestRunRejectsInvalidConfig(t *testing.T) {
	var out, errOut bytes.Buffer
	code := run([]string{"--dry-run", "--zeta-storage", ""}, &out, &errOut)
	if code != 2 {
		t.Fatalf("expected exit code 2 for empty storage dir, got %d", code)
	}
}

func TestRunRejectsBadSublimatePolicy(t *testing.T) {
	dir := t.TempDir()
	var out, errOut bytes.Buffer
	code := run([]string{"--dry-run", "--zeta-storage", dir, "--zeta-sublimate-policy", "bogus"}, &out, &errOut)
	if code != 2 {
		t.Fatalf("expected exit code 2 for unknown sublimate policy, got %d", code)
	}
}

func TestRunExecutesDecodeLoopAgainstDemoHost(t *testing.T) {
	dir := t.TempDir()
	var out, errOut bytes.Buffer

	code := run([]string{
		"--zeta-storage", dir,
		"--zeta-summary-dim", "8",
		"--zeta-max-active-blocks", "4",
		"--zeta-kv-max", "64",
		"--decode-steps", "3",
	}, &out, &errOut)
	if code != 0 {
		t.Fatalf("expected exit code 0, got %d (stderr=%q)", code, errOut.String())
	}
	if out.Len() == 0 {
		t.Fatalf("expected stdout output")
	}
}

func TestRunDefaultsApartFromStorageDir(t *testing.T) {
	dir := t.TempDir()
	var out, errOut bytes.Buffer
	code := run([]string{"--zeta-storage", dir, "--decode-steps", "1"}, &out, &errOut)
	if code != 0 {
		t.Fatalf("expected exit code 0 with defaults, got %d (stderr=%q)", code, errOut.String())
	}
}
