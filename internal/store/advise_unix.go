//go:build linux || darwin

package store

import (
	"github.com/edsrzf/mmap-go"
	"golang.org/x/sys/unix"
)

func adviseWillNeed(mm mmap.MMap) {
	_ = unix.Madvise(mm, unix.MADV_WILLNEED)
}

func adviseDontNeed(mm mmap.MMap) {
	_ = unix.Madvise(mm, unix.MADV_DONTNEED)
}
