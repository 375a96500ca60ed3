package store

import (
	"fmt"
	"os"
	"unsafe"

	"github.com/edsrzf/mmap-go"
)

// mapping owns one block's file handle and mmap region. keys/values alias
// directly into the mapping's bytes: mapping.keys starts exactly
// header_size + summary_bytes into the file, matching the on-disk layout.
type mapping struct {
	path string

	file *os.File
	mm   mmap.MMap

	keys   []float32
	values []float32
}

const (
	headerBytes = 40
)

// ensureOpen mmaps the block's file if not already mapped.
func (m *mapping) ensureOpen(tokenCount int64, dim int) error {
	if m.mm != nil {
		return nil
	}
	f, err := os.Open(m.path)
	if err != nil {
		return fmt.Errorf("open %s: %w", m.path, err)
	}

	mm, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		_ = f.Close()
		return fmt.Errorf("mmap %s: %w", m.path, err)
	}

	summaryBytes := dim * 4
	kvBytes := int(tokenCount) * dim * 4
	keysOff := headerBytes + summaryBytes
	valuesOff := keysOff + kvBytes
	if valuesOff+kvBytes > len(mm) {
		_ = mm.Unmap()
		_ = f.Close()
		return fmt.Errorf("%s: mapped file too short for token_count=%d summary_dim=%d", m.path, tokenCount, dim)
	}

	m.file = f
	m.mm = mm
	m.keys = floatsFromBytes(mm[keysOff : keysOff+kvBytes])
	m.values = floatsFromBytes(mm[valuesOff : valuesOff+kvBytes])
	return nil
}

func (m *mapping) adviseWillNeed() {
	if m.mm != nil {
		adviseWillNeed(m.mm)
	}
}

func (m *mapping) adviseDontNeed() {
	if m.mm != nil {
		adviseDontNeed(m.mm)
	}
}

func (m *mapping) close() error {
	if m.mm == nil {
		return nil
	}
	err := m.mm.Unmap()
	closeErr := m.file.Close()
	m.mm = nil
	m.file = nil
	m.keys = nil
	m.values = nil
	if err != nil {
		return err
	}
	return closeErr
}

// floatsFromBytes reinterprets a little-endian float32 byte region as a
// []float32 without copying. The store only runs on little-endian
// architectures the .zeta format targets.
func floatsFromBytes(b []byte) []float32 {
	if len(b) == 0 {
		return nil
	}
	n := len(b) / 4
	return unsafe.Slice((*float32)(unsafe.Pointer(&b[0])), n)
}
