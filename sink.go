package ramsort

import (
	"fmt"
	"sync/atomic"

	sorterrors "github.com/tamirms/ramsort/errors"
)

// Sink receives sorted runs from Read. Put is called concurrently from every
// sort worker, in no particular order; implementations place runs by
// Run.Offset. Put may keep r.Records.
type Sink[T any] interface {
	Put(r Run[T]) error
}

// SinkFunc adapts a function to a Sink.
type SinkFunc[T any] func(r Run[T]) error

// Put calls f(r).
func (f SinkFunc[T]) Put(r Run[T]) error {
	return f(r)
}

// SliceSink assembles runs into one preallocated slice in global order.
// Concurrent Puts write disjoint ranges, so no locking is needed.
type SliceSink[T any] struct {
	records []T
	placed  atomic.Uint64
	digest  atomic.Uint64
	codec   Codec[T] // optional, enables Digest
}

// NewSliceSink returns a sink with room for n records.
func NewSliceSink[T any](n uint64) *SliceSink[T] {
	return &SliceSink[T]{records: make([]T, n)}
}

// NewSliceSinkWithDigest returns a sink with room for n records that also
// folds the content digest of every record it receives.
func NewSliceSinkWithDigest[T any](n uint64, codec Codec[T]) *SliceSink[T] {
	return &SliceSink[T]{records: make([]T, n), codec: codec}
}

// Put copies r into [r.Offset, r.Offset+len(r.Records)).
func (s *SliceSink[T]) Put(r Run[T]) error {
	n := uint64(len(r.Records))
	if r.Offset > uint64(len(s.records)) || n > uint64(len(s.records))-r.Offset {
		return fmt.Errorf("%w: [%d, %d) in %d records",
			sorterrors.ErrOffsetOutOfRange, r.Offset, r.Offset+n, len(s.records))
	}
	copy(s.records[r.Offset:], r.Records)
	if s.codec != nil {
		s.digest.Add(Digest(s.codec, r.Records))
	}
	s.placed.Add(n)
	return nil
}

// Records returns the assembled slice. Only meaningful after Read returns.
func (s *SliceSink[T]) Records() []T {
	return s.records
}

// Placed returns the number of records received so far.
func (s *SliceSink[T]) Placed() uint64 {
	return s.placed.Load()
}

// Digest returns the content digest of every record received. Zero unless
// the sink was created with NewSliceSinkWithDigest.
func (s *SliceSink[T]) Digest() uint64 {
	return s.digest.Load()
}
