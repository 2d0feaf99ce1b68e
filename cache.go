package ramsort

import (
	"errors"
	"fmt"

	sorterrors "github.com/tamirms/ramsort/errors"
)

// stagingBuffer holds up to capacity encoded records bound for one bucket.
type stagingBuffer struct {
	data  []byte
	count int
}

// WriteCache batches records per bucket so that the locked append on the
// bucket store runs once per capacity records instead of once per record.
//
// A WriteCache is not safe for concurrent use. Give each producer goroutine
// its own (Sorter.NewWriteCache) and Close it when the producer is done:
//
//	wc := s.NewWriteCache()
//	defer wc.Close()
//	for _, r := range records {
//	    if err := wc.Add(r); err != nil { return err }
//	}
type WriteCache[T any] struct {
	store    *bucketStore
	codec    Codec[T]
	key      KeyFunc[T]
	shift    int
	capacity int
	buffers  []stagingBuffer
	closed   bool
}

func newWriteCache[T any](store *bucketStore, codec Codec[T], key KeyFunc[T], shift, capacity int) *WriteCache[T] {
	return &WriteCache[T]{
		store:    store,
		codec:    codec,
		key:      key,
		shift:    shift,
		capacity: capacity,
		buffers:  make([]stagingBuffer, len(store.buckets)),
	}
}

// Add stages v in its bucket's buffer, flushing the buffer first when it is
// full. Fails with ErrFinished once the sorter is finished, and with
// ErrBucketOutOfRange when the key has bits above the configured key size.
func (c *WriteCache[T]) Add(v T) error {
	if c.closed {
		return fmt.Errorf("%w: write cache", sorterrors.ErrClosed)
	}
	if c.store.frozen.Load() {
		return sorterrors.ErrFinished
	}
	if c.shift >= 64 {
		return fmt.Errorf("%w: shift %d", sorterrors.ErrBucketOutOfRange, c.shift)
	}
	k := c.key(v)
	index := k >> c.shift
	if index >= uint64(len(c.buffers)) {
		return fmt.Errorf("%w: key 0x%X maps to bucket %d of %d",
			sorterrors.ErrBucketOutOfRange, k, index, len(c.buffers))
	}

	buf := &c.buffers[index]
	if buf.count >= c.capacity {
		if err := c.flushBucket(int(index)); err != nil {
			return err
		}
	}
	if buf.data == nil {
		buf.data = make([]byte, c.capacity*c.codec.Size())
	}
	size := c.codec.Size()
	c.codec.Encode(buf.data[buf.count*size:(buf.count+1)*size], v)
	buf.count++
	return nil
}

// Flush writes every non-empty staging buffer to the bucket store with one
// batched write each. Flushing with nothing staged is a no-op.
func (c *WriteCache[T]) Flush() error {
	var errs []error
	for i := range c.buffers {
		if err := c.flushBucket(i); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (c *WriteCache[T]) flushBucket(index int) error {
	buf := &c.buffers[index]
	if buf.count == 0 {
		return nil
	}
	size := c.codec.Size()
	if err := c.store.write(index, buf.data[:buf.count*size], buf.count); err != nil {
		return err
	}
	buf.count = 0
	return nil
}

// Pending returns the number of staged records not yet written to the store.
func (c *WriteCache[T]) Pending() int {
	var n int
	for i := range c.buffers {
		n += c.buffers[i].count
	}
	return n
}

// Close flushes the cache and releases its staging buffers. Safe to call
// multiple times; later Adds fail with ErrClosed.
func (c *WriteCache[T]) Close() error {
	if c.closed {
		return nil
	}
	if err := c.Flush(); err != nil {
		return err
	}
	c.closed = true
	c.buffers = nil
	return nil
}
