package ramsort

import (
	"cmp"
	"context"
	"encoding/binary"
	"hash/fnv"
	"math/rand/v2"
	"os"
	"slices"
	"sync"
	"testing"

	"github.com/tamirms/ramsort/internal/entry"
)

// Named seeds for deterministic reproduction.
const (
	testSeed1 = 0x1234567890ABCDEF
	testSeed2 = 0xFEDCBA9876543210
)

func newTestRNG(t testing.TB) *rand.Rand {
	t.Helper()
	h := fnv.New128a()
	h.Write([]byte(t.Name()))
	sum := h.Sum(nil)
	s1 := binary.LittleEndian.Uint64(sum[:8])
	s2 := binary.LittleEndian.Uint64(sum[8:])
	return rand.New(rand.NewPCG(testSeed1^s1, testSeed2^s2))
}

var testCodec entry.Codec

// newTestSorter creates an entry sorter that is closed when the test ends.
func newTestSorter(t testing.TB, keyBits, bucketBits int, opts ...Option) *Sorter[entry.Entry] {
	t.Helper()
	s, err := New(keyBits, bucketBits, Codec[entry.Entry](testCodec), entry.Key, opts...)
	if err != nil {
		t.Fatalf("New(%d, %d): %v", keyBits, bucketBits, err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// randomEntries returns n entries with uniformly random keyBits-wide keys.
// Pos is the generation index, so entries are distinct even when keys repeat.
func randomEntries(rng *rand.Rand, n, keyBits int) []entry.Entry {
	out := make([]entry.Entry, n)
	for i := range out {
		y := rng.Uint64()
		if keyBits < 64 {
			y &= uint64(1)<<keyBits - 1
		}
		out[i] = entry.Entry{Y: y, Pos: uint32(i), Off: uint16(rng.Uint32())}
	}
	return out
}

// distinctEntries returns n entries whose keys are distinct keyBits-wide
// values in random order. n must not exceed 2^keyBits.
func distinctEntries(rng *rand.Rand, n, keyBits int) []entry.Entry {
	perm := rng.Perm(1 << keyBits)[:n]
	out := make([]entry.Entry, n)
	for i, y := range perm {
		out[i] = entry.Entry{Y: uint64(y), Pos: uint32(i)}
	}
	return out
}

func addAll(t testing.TB, s *Sorter[entry.Entry], entries []entry.Entry) {
	t.Helper()
	for _, e := range entries {
		if err := s.Add(e); err != nil {
			t.Fatalf("Add(%+v): %v", e, err)
		}
	}
}

// collectRuns reads s into a thread-safe run list.
func collectRuns(t testing.TB, s *Sorter[entry.Entry], opts ...ReadOption) []Run[entry.Entry] {
	t.Helper()
	var (
		mu   sync.Mutex
		runs []Run[entry.Entry]
	)
	sink := SinkFunc[entry.Entry](func(r Run[entry.Entry]) error {
		mu.Lock()
		runs = append(runs, r)
		mu.Unlock()
		return nil
	})
	if err := s.Read(context.Background(), sink, opts...); err != nil {
		t.Fatalf("Read: %v", err)
	}
	return runs
}

// byKeyThenPos orders entries totally, for multiset comparison.
func byKeyThenPos(a, b entry.Entry) int {
	if c := cmp.Compare(a.Y, b.Y); c != 0 {
		return c
	}
	if c := cmp.Compare(a.Pos, b.Pos); c != 0 {
		return c
	}
	return cmp.Compare(a.Off, b.Off)
}

// assembleRuns orders runs by offset and checks that each run is sorted and
// the offsets tile [0, total) with no gaps or overlaps.
func assembleRuns(t testing.TB, runs []Run[entry.Entry]) []entry.Entry {
	t.Helper()
	ordered := slices.Clone(runs)
	slices.SortFunc(ordered, func(a, b Run[entry.Entry]) int {
		return cmp.Compare(a.Offset, b.Offset)
	})

	var out []entry.Entry
	var next uint64
	for _, r := range ordered {
		if len(r.Records) == 0 {
			t.Fatalf("empty run at offset %d", r.Offset)
		}
		if r.Offset != next {
			t.Fatalf("run at offset %d, want %d (gap or overlap)", r.Offset, next)
		}
		for i := 1; i < len(r.Records); i++ {
			if r.Records[i-1].Y > r.Records[i].Y {
				t.Fatalf("run at offset %d unsorted at %d: 0x%X > 0x%X",
					r.Offset, i, r.Records[i-1].Y, r.Records[i].Y)
			}
		}
		out = append(out, r.Records...)
		next += uint64(len(r.Records))
	}
	return out
}

// checkSorted verifies got is the key-sorted permutation of input.
func checkSorted(t testing.TB, input, got []entry.Entry) {
	t.Helper()
	if len(got) != len(input) {
		t.Fatalf("got %d records, want %d", len(got), len(input))
	}
	for i := 1; i < len(got); i++ {
		if got[i-1].Y > got[i].Y {
			t.Fatalf("output unsorted at %d: 0x%X > 0x%X", i, got[i-1].Y, got[i].Y)
		}
	}
	want := slices.Clone(input)
	slices.SortFunc(want, byKeyThenPos)
	have := slices.Clone(got)
	slices.SortFunc(have, byKeyThenPos)
	for i := range want {
		if want[i] != have[i] {
			t.Fatalf("multiset differs at %d: want %+v, got %+v", i, want[i], have[i])
		}
	}
}

func truncateFile(path string, size int64) error {
	return os.Truncate(path, size)
}
