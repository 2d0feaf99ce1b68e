package ramsort

import (
	"fmt"
	"math"
	"strconv"
	"sync"
	"sync/atomic"

	sorterrors "github.com/tamirms/ramsort/errors"
)

// bucket holds the serialized records of one top-level key partition.
// Records are appended in arrival order; len(data) == numEntries*recordSize
// at all times.
type bucket struct {
	mu         sync.Mutex
	data       []byte
	numEntries int
	digest     uint64 // wrapping sum of per-record xxHash64
	released   bool
	name       string // diagnostic only
}

// bucketStore is the array of independently locked buckets that writes are
// partitioned into. Writes to different buckets never contend.
type bucketStore struct {
	buckets    []bucket
	recordSize int
	frozen     atomic.Bool

	limit     int64 // 0 means unlimited
	allocated atomic.Int64
}

func newBucketStore(numBuckets, recordSize int, prefix string, limit int64) *bucketStore {
	s := &bucketStore{
		buckets:    make([]bucket, numBuckets),
		recordSize: recordSize,
		limit:      limit,
	}
	for i := range s.buckets {
		s.buckets[i].name = prefix + ".sort_bucket_" + strconv.Itoa(i) + ".tmp"
	}
	return s
}

// write appends count records packed in data to bucket index. The buffer
// grows by exactly len(data) bytes, so len and cap match what is accounted
// against the limit. The append is all-or-nothing: on error the bucket is
// unchanged.
func (s *bucketStore) write(index int, data []byte, count int) error {
	if s.frozen.Load() {
		return sorterrors.ErrFinished
	}
	if index < 0 || index >= len(s.buckets) {
		return fmt.Errorf("%w: %d not in [0, %d)", sorterrors.ErrBucketOutOfRange, index, len(s.buckets))
	}
	if count < 0 || count > math.MaxInt/s.recordSize || len(data) != count*s.recordSize {
		return fmt.Errorf("%w: %d bytes for %d records of %d bytes",
			sorterrors.ErrRecordSize, len(data), count, s.recordSize)
	}
	if count == 0 {
		return nil
	}

	b := &s.buckets[index]
	if err := s.reserve(int64(len(data))); err != nil {
		return fmt.Errorf("%w: %s needs %d more bytes", err, b.name, len(data))
	}

	// Hash outside the lock; only the fold needs it.
	sum := digestBytes(data, s.recordSize)

	b.mu.Lock()
	defer b.mu.Unlock()
	if s.frozen.Load() {
		s.allocated.Add(-int64(len(data)))
		return sorterrors.ErrFinished
	}
	grown := make([]byte, len(b.data)+len(data))
	copy(grown, b.data)
	copy(grown[len(b.data):], data)
	b.data = grown
	b.numEntries += count
	b.digest += sum
	return nil
}

// reserve accounts n bytes against the memory limit.
func (s *bucketStore) reserve(n int64) error {
	total := s.allocated.Add(n)
	if s.limit > 0 && total > s.limit {
		s.allocated.Add(-n)
		return fmt.Errorf("%w: %d of %d bytes in use", sorterrors.ErrMemoryLimit, total-n, s.limit)
	}
	return nil
}

// drain hands bucket index's raw records to fn under the bucket lock, then
// releases the buffer unless keep is set.
func (s *bucketStore) drain(index int, keep bool, fn func(b *bucket) error) error {
	b := &s.buckets[index]
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := fn(b); err != nil {
		return err
	}
	if !keep {
		s.releaseLocked(b)
	}
	return nil
}

// release drops the buffer of bucket index, returning its bytes to the
// memory budget. The entry count is kept for offset bookkeeping.
func (s *bucketStore) release(index int) {
	b := &s.buckets[index]
	b.mu.Lock()
	s.releaseLocked(b)
	b.mu.Unlock()
}

func (s *bucketStore) releaseLocked(b *bucket) {
	s.allocated.Add(-int64(len(b.data)))
	b.data = nil
	b.released = true
}

// releaseAll drops every buffer. Used on Close.
func (s *bucketStore) releaseAll() {
	for i := range s.buckets {
		s.release(i)
	}
}

func (s *bucketStore) freeze() {
	s.frozen.Store(true)
}

// entries returns the number of records written to bucket index.
func (s *bucketStore) entries(index int) int {
	b := &s.buckets[index]
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.numEntries
}

// bytes returns the size of bucket index's live buffer.
func (s *bucketStore) bytes(index int) int {
	b := &s.buckets[index]
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.data)
}

// total returns the number of records across all buckets.
func (s *bucketStore) total() uint64 {
	var n uint64
	for i := range s.buckets {
		n += uint64(s.entries(i))
	}
	return n
}

// digest folds the per-bucket digests.
func (s *bucketStore) digest() uint64 {
	var sum uint64
	for i := range s.buckets {
		b := &s.buckets[i]
		b.mu.Lock()
		sum += b.digest
		b.mu.Unlock()
	}
	return sum
}

// anyReleased reports whether a read has dropped at least one buffer.
func (s *bucketStore) anyReleased() bool {
	for i := range s.buckets {
		b := &s.buckets[i]
		b.mu.Lock()
		released := b.released
		b.mu.Unlock()
		if released {
			return true
		}
	}
	return false
}

// inUse returns the bytes currently held by bucket buffers.
func (s *bucketStore) inUse() int64 {
	return s.allocated.Load()
}
