package zetalog

import (
	"bytes"
	"strings"
	"testing"
)

func TestPlain_InfofFormatsLevelAndFields(t *testing.T) {
	var buf bytes.Buffer
	p := Plain{Out: &buf}
	p.Infof("block ingested", "block_id", 7, "token_count", 2)
	got := buf.String()
	if !strings.HasPrefix(got, "INFO: block ingested") {
		t.Fatalf("unexpected prefix: %q", got)
	}
	if !strings.Contains(got, "block_id=7") || !strings.Contains(got, "token_count=2") {
		t.Fatalf("missing fields in output: %q", got)
	}
}

func TestPlain_WarnfAndErrorfUseDistinctLevels(t *testing.T) {
	var buf bytes.Buffer
	p := Plain{Out: &buf}
	p.Warnf("summary_dim mismatch, skipping")
	p.Errorf("ingest failed")
	got := buf.String()
	if !strings.Contains(got, "WARN: summary_dim mismatch, skipping") {
		t.Fatalf("missing WARN line: %q", got)
	}
	if !strings.Contains(got, "ERROR: ingest failed") {
		t.Fatalf("missing ERROR line: %q", got)
	}
}

func TestPlain_NoFieldsOmitsTrailingSpace(t *testing.T) {
	var buf bytes.Buffer
	p := Plain{Out: &buf}
	p.Infof("ready")
	if buf.String() != "INFO: ready\n" {
		t.Fatalf("got %q", buf.String())
	}
}

func TestPlain_SyncIsNoOp(t *testing.T) {
	p := Plain{Out: &bytes.Buffer{}}
	if err := p.Sync(); err != nil {
		t.Fatalf("Sync returned error: %v", err)
	}
}
