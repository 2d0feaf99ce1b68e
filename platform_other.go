//go:build !linux && !darwin

package ramsort

import "os"

// fallocateFile sets the output file size. Disk blocks may not be reserved
// on every filesystem.
func fallocateFile(file *os.File, size int64) error {
	return file.Truncate(size)
}

func prefaultRegion(data []byte) {}

func fadviseSequential(fd int, offset, length int64) {}
