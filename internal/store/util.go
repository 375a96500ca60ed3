package store

import (
	"fmt"
	"math"
	"os"
)

func sqrtF32(v float32) float32 {
	return float32(math.Sqrt(float64(v)))
}

func expDecay(lambda float64, steps int64) float32 {
	if steps < 0 {
		steps = 0
	}
	return float32(math.Exp(-lambda * float64(steps)))
}

// writeFileAtomic writes data to a temp file in the same directory and
// renames it into place, so a reader never observes a partially-written
// block.
func writeFileAtomic(path string, data []byte, mode os.FileMode) error {
	tmpPath := fmt.Sprintf("%s.tmp.%d", path, os.Getpid())
	if err := os.WriteFile(tmpPath, data, mode); err != nil {
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	return nil
}
