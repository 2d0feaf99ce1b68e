package ramsort

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"sync"
	"sync/atomic"

	"github.com/cespare/xxhash/v2"
	"github.com/edsrzf/mmap-go"

	sorterrors "github.com/tamirms/ramsort/errors"
)

// FileSink writes runs straight into a memory-mapped output file at
// Offset*Size(). The finished file holds the records back-to-back in global
// key order, with no header.
type FileSink[T any] struct {
	codec Codec[T]
	file  *os.File
	mmap  mmap.MMap
	data  []byte
	n     uint64

	// mu orders Put against Close; Puts share it.
	mu     sync.RWMutex
	closed bool

	written atomic.Uint64
	digest  atomic.Uint64
}

// CreateFileSink creates (or truncates) path and sizes it for n records.
// The file is pre-allocated and memory-mapped so runs can be written in any
// order.
func CreateFileSink[T any](path string, codec Codec[T], n uint64) (*FileSink[T], error) {
	size := uint64(codec.Size())
	if size == 0 || n > uint64(math.MaxInt64)/size {
		return nil, fmt.Errorf("output size overflow: %d records of %d bytes", n, size)
	}
	total := int64(n * size)

	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create output file: %w", err)
	}

	fs := &FileSink[T]{codec: codec, file: file, n: n}
	if total == 0 {
		return fs, nil
	}

	// Pre-allocate disk blocks to prevent SIGBUS on disk full
	if err := fallocateFile(file, total); err != nil {
		primaryErr := fmt.Errorf("pre-allocate output file: %w", err)
		return nil, errors.Join(primaryErr, file.Close(), os.Remove(path))
	}

	mm, err := mmap.MapRegion(file, int(total), mmap.RDWR, 0, 0)
	if err != nil {
		primaryErr := fmt.Errorf("mmap output file: %w", err)
		return nil, errors.Join(primaryErr, file.Close(), os.Remove(path))
	}
	fs.mmap = mm
	fs.data = []byte(mm)

	// Runs land at scattered offsets; prefault to keep page faults off the
	// sort workers.
	prefaultRegion(fs.data)
	return fs, nil
}

// Put encodes r at its offset in the file.
func (fs *FileSink[T]) Put(r Run[T]) error {
	fs.mu.RLock()
	defer fs.mu.RUnlock()
	if fs.closed {
		return sorterrors.ErrSinkClosed
	}

	count := uint64(len(r.Records))
	if r.Offset > fs.n || count > fs.n-r.Offset {
		return fmt.Errorf("%w: [%d, %d) in %d records",
			sorterrors.ErrOffsetOutOfRange, r.Offset, r.Offset+count, fs.n)
	}
	size := uint64(fs.codec.Size())
	pos := r.Offset * size
	var sum uint64
	for _, v := range r.Records {
		dst := fs.data[pos : pos+size]
		fs.codec.Encode(dst, v)
		sum += xxhash.Sum64(dst)
		pos += size
	}
	fs.digest.Add(sum)
	fs.written.Add(count)
	return nil
}

// Written returns the number of records written so far.
func (fs *FileSink[T]) Written() uint64 {
	return fs.written.Load()
}

// Digest returns the content digest of everything written so far.
func (fs *FileSink[T]) Digest() uint64 {
	return fs.digest.Load()
}

// Close flushes the mapping, unmaps it and closes the file. Idempotent.
func (fs *FileSink[T]) Close() error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if fs.closed {
		return nil
	}
	fs.closed = true

	var errs []error
	if fs.mmap != nil {
		if err := fs.mmap.Flush(); err != nil {
			errs = append(errs, fmt.Errorf("mmap flush: %w", err))
		}
		// Nil mmap regardless of outcome so nothing retries the unmap.
		if err := fs.mmap.Unmap(); err != nil {
			errs = append(errs, fmt.Errorf("mmap unmap: %w", err))
		}
		fs.mmap = nil
		fs.data = nil
	}
	if err := fs.file.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close output file: %w", err))
	}
	return errors.Join(errs...)
}

// ReadFile decodes every record of a file written by FileSink.
func ReadFile[T any](path string, codec Codec[T]) ([]T, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open output file: %w", err)
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat output file: %w", err)
	}
	size := int64(codec.Size())
	if stat.Size()%size != 0 {
		return nil, fmt.Errorf("%w: file size %d is not a multiple of %d",
			sorterrors.ErrRecordSize, stat.Size(), size)
	}
	fadviseSequential(int(f.Fd()), 0, stat.Size())

	n := stat.Size() / size
	out := make([]T, 0, n)
	r := bufio.NewReaderSize(f, 1<<20)
	buf := make([]byte, size)
	for range n {
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, fmt.Errorf("read record %d: %w", len(out), err)
		}
		out = append(out, codec.Decode(buf))
	}
	return out, nil
}
