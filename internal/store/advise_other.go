//go:build !linux && !darwin

package store

import "github.com/edsrzf/mmap-go"

// adviseWillNeed/adviseDontNeed are no-ops on platforms without MADV_*
// support; residency hints are always best-effort per the spec.
func adviseWillNeed(mm mmap.MMap) {}

func adviseDontNeed(mm mmap.MMap) {}
