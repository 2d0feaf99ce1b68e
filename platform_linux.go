//go:build linux

package ramsort

import (
	"os"

	"golang.org/x/sys/unix"
)

// MADV_POPULATE_WRITE was added in Linux 5.14.
const madvPopulateWrite = 23

// fallocateFile reserves size bytes for an output file so that writes
// through the mapping cannot SIGBUS on a full disk.
func fallocateFile(file *os.File, size int64) error {
	// NFS and some other filesystems reject fallocate; the truncate below
	// still sizes the file.
	_ = unix.Fallocate(int(file.Fd()), 0, 0, size)
	// Fallocate reserves blocks but leaves the file size alone.
	return unix.Ftruncate(int(file.Fd()), size)
}

// prefaultRegion populates the pages of an output mapping up front.
// Best-effort: older kernels answer EINVAL, which is ignored.
func prefaultRegion(data []byte) {
	if len(data) == 0 {
		return
	}
	_ = unix.Madvise(data, madvPopulateWrite)
}

// fadviseSequential enables readahead before an output file is read back.
func fadviseSequential(fd int, offset, length int64) {
	_ = unix.Fadvise(fd, offset, length, unix.FADV_SEQUENTIAL)
}
