package ramsort

import (
	"errors"
	"testing"

	sorterrors "github.com/tamirms/ramsort/errors"
	"github.com/tamirms/ramsort/internal/entry"
)

func TestWriteCacheFlushesWhenFull(t *testing.T) {
	s := newTestSorter(t, 8, 2, WithCacheRecords(4))
	wc := s.NewWriteCache()

	// All keys in bucket 0.
	for i := range 4 {
		if err := wc.Add(entry.Entry{Y: uint64(i)}); err != nil {
			t.Fatal(err)
		}
	}
	if wc.Pending() != 4 || s.Len() != 0 {
		t.Fatalf("after 4 adds: pending=%d len=%d, want 4 and 0", wc.Pending(), s.Len())
	}

	if err := wc.Add(entry.Entry{Y: 5}); err != nil {
		t.Fatal(err)
	}
	if wc.Pending() != 1 || s.Len() != 4 {
		t.Fatalf("after 5th add: pending=%d len=%d, want 1 and 4", wc.Pending(), s.Len())
	}

	// A different bucket stages independently.
	if err := wc.Add(entry.Entry{Y: 0xF0}); err != nil {
		t.Fatal(err)
	}
	if wc.Pending() != 2 {
		t.Fatalf("pending=%d, want 2", wc.Pending())
	}

	if err := wc.Close(); err != nil {
		t.Fatal(err)
	}
	if wc.Pending() != 0 || s.Len() != 6 {
		t.Fatalf("after Close: pending=%d len=%d, want 0 and 6", wc.Pending(), s.Len())
	}
	if n, _ := s.BucketLen(3); n != 1 {
		t.Errorf("BucketLen(3) = %d, want 1", n)
	}

	if err := wc.Add(entry.Entry{Y: 1}); !errors.Is(err, sorterrors.ErrClosed) {
		t.Errorf("Add after Close: got %v, want ErrClosed", err)
	}
	if err := wc.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
}

func TestWriteCacheIdempotentFlush(t *testing.T) {
	rng := newTestRNG(t)
	s := newTestSorter(t, 12, 3)
	wc := s.NewWriteCache()

	// Flushing an empty cache writes nothing.
	if err := wc.Flush(); err != nil {
		t.Fatal(err)
	}
	if s.Len() != 0 {
		t.Fatalf("empty flush wrote %d records", s.Len())
	}

	for _, e := range randomEntries(rng, 300, 12) {
		if err := wc.Add(e); err != nil {
			t.Fatal(err)
		}
	}
	if err := wc.Flush(); err != nil {
		t.Fatal(err)
	}
	n, digest, inUse := s.Len(), s.Digest(), s.BytesInUse()
	if n != 300 {
		t.Fatalf("Len() = %d after flush, want 300", n)
	}

	for range 3 {
		if err := wc.Flush(); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.Finish(); err != nil {
		t.Fatal(err)
	}
	// Flush after Finish with nothing staged is still a no-op.
	if err := wc.Flush(); err != nil {
		t.Fatalf("empty flush after Finish: %v", err)
	}
	if s.Len() != n || s.Digest() != digest || s.BytesInUse() != inUse {
		t.Errorf("repeated flushes changed the store: len %d->%d digest %x->%x bytes %d->%d",
			n, s.Len(), digest, s.Digest(), inUse, s.BytesInUse())
	}
}

func TestWriteCacheAddAfterFinish(t *testing.T) {
	s := newTestSorter(t, 8, 2)
	wc := s.NewWriteCache()
	if err := wc.Add(entry.Entry{Y: 0x42}); err != nil {
		t.Fatal(err)
	}
	// Finish flushes registered caches.
	if err := s.Finish(); err != nil {
		t.Fatal(err)
	}
	if s.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", s.Len())
	}

	if err := wc.Add(entry.Entry{Y: 0x43}); !errors.Is(err, sorterrors.ErrFinished) {
		t.Fatalf("Add after Finish: got %v, want ErrFinished", err)
	}
	if wc.Pending() != 0 {
		t.Errorf("Pending() = %d after rejected Add, want 0", wc.Pending())
	}
	if err := wc.Close(); err != nil {
		t.Errorf("Close with nothing staged: %v", err)
	}
	if s.Len() != 1 {
		t.Errorf("Len() = %d, want 1", s.Len())
	}
}

func TestWriteCacheKeyOutOfRange(t *testing.T) {
	s := newTestSorter(t, 10, 2)
	wc := s.NewWriteCache()
	defer wc.Close()

	if err := wc.Add(entry.Entry{Y: 1 << 10}); !errors.Is(err, sorterrors.ErrBucketOutOfRange) {
		t.Fatalf("got %v, want ErrBucketOutOfRange", err)
	}
	if wc.Pending() != 0 {
		t.Errorf("rejected record was staged")
	}
}
