//go:build darwin

package ramsort

import (
	"os"

	"golang.org/x/sys/unix"
)

// fallocateFile reserves size bytes for an output file with F_PREALLOCATE,
// then sets the file size.
func fallocateFile(file *os.File, size int64) error {
	fst := unix.Fstore_t{
		Flags:   unix.F_ALLOCATEALL,
		Posmode: unix.F_PEOFPOSMODE,
		Length:  size,
	}
	// F_PREALLOCATE is best-effort; without it the file is still sized.
	_ = unix.FcntlFstore(file.Fd(), unix.F_PREALLOCATE, &fst)
	return unix.Ftruncate(int(file.Fd()), size)
}

func prefaultRegion(data []byte) {}

func fadviseSequential(fd int, offset, length int64) {}
