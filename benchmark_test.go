package ramsort

import (
	"context"
	"runtime"
	"sync"
	"testing"

	"github.com/tamirms/ramsort/internal/entry"
)

func benchmarkSortN(b *testing.B, n, producers int) {
	const keyBits, bucketBits = 32, 8
	entries := entry.Generate(n, keyBits, 1, entry.HashXXH3)
	ctx := context.Background()

	b.ResetTimer()
	b.ReportAllocs()
	for range b.N {
		s, err := New(keyBits, bucketBits, Codec[entry.Entry](testCodec), entry.Key)
		if err != nil {
			b.Fatal(err)
		}

		var wg sync.WaitGroup
		for p := range producers {
			wc := s.NewWriteCache()
			wg.Add(1)
			go func() {
				defer wg.Done()
				defer wc.Close()
				for i := p; i < n; i += producers {
					if err := wc.Add(entries[i]); err != nil {
						b.Error(err)
						return
					}
				}
			}()
		}
		wg.Wait()
		if err := s.Finish(); err != nil {
			b.Fatal(err)
		}

		sink := NewSliceSink[entry.Entry](s.Len())
		if err := s.Read(ctx, sink, WithSortWorkers(runtime.GOMAXPROCS(0))); err != nil {
			b.Fatal(err)
		}
		s.Close()
	}
	b.ReportMetric(float64(n)*float64(b.N)/b.Elapsed().Seconds(), "records/s")
}

func BenchmarkSort100K(b *testing.B)            { benchmarkSortN(b, 100_000, 1) }
func BenchmarkSort1M(b *testing.B)              { benchmarkSortN(b, 1_000_000, 1) }
func BenchmarkSort1MFourProducers(b *testing.B) { benchmarkSortN(b, 1_000_000, 4) }

func BenchmarkWriteCacheAdd(b *testing.B) {
	s, err := New(32, 8, Codec[entry.Entry](testCodec), entry.Key)
	if err != nil {
		b.Fatal(err)
	}
	defer s.Close()
	wc := s.NewWriteCache()
	entries := entry.Generate(1<<16, 32, 2, entry.HashXXH3)

	b.ResetTimer()
	b.ReportAllocs()
	for i := range b.N {
		if err := wc.Add(entries[i&(1<<16-1)]); err != nil {
			b.Fatal(err)
		}
	}
}
