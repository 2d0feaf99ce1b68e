// Bench measures ramsort throughput and peak memory for plot-style table
// entries, and verifies the sorted output.
//
// Usage:
//
//	go run ./cmd/bench --records 10000000 --key-bits 32 --bucket-bits 8
//
// Flags:
//
//	--records       Number of entries to sort (default: 10,000,000)
//	--key-bits      Key width in bits (default: 32)
//	--bucket-bits   log2 of the bucket count (default: 8)
//	--sub-bits      Re-bucketing fan-out in bits, 0 = bucket-bits (default: 0)
//	--producers     Goroutines adding entries, each with its own WriteCache (default: 4)
//	--sort-workers  Sort goroutines (default: GOMAXPROCS)
//	--read-workers  Re-bucketing goroutines, 0 = max(sort/2, 2) (default: 0)
//	--hash          Key generator: xxh3 or murmur3 (default: xxh3)
//	--output        Write sorted entries to this file instead of memory
//	--verbose       Debug logging
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"runtime/metrics"
	"sync"
	"sync/atomic"
	"time"

	"github.com/spf13/pflag"
	"golang.org/x/sys/unix"

	"github.com/tamirms/ramsort"
	"github.com/tamirms/ramsort/internal/entry"
)

// getMaxRSS returns the maximum resident set size in bytes.
func getMaxRSS() uint64 {
	var rusage unix.Rusage
	if err := unix.Getrusage(unix.RUSAGE_SELF, &rusage); err != nil {
		return 0
	}
	// On macOS, Maxrss is in bytes. On Linux, it's in kilobytes.
	maxRSS := uint64(rusage.Maxrss)
	if runtime.GOOS == "linux" {
		maxRSS *= 1024
	}
	return maxRSS
}

type options struct {
	records     int
	keyBits     int
	bucketBits  int
	subBits     int
	producers   int
	sortWorkers int
	readWorkers int
	hash        string
	output      string
	verbose     bool
}

func main() {
	var opts options
	fs := pflag.NewFlagSet("bench", pflag.ExitOnError)
	fs.IntVar(&opts.records, "records", 10_000_000, "number of entries to sort")
	fs.IntVar(&opts.keyBits, "key-bits", 32, "key width in bits")
	fs.IntVar(&opts.bucketBits, "bucket-bits", 8, "log2 of the bucket count")
	fs.IntVar(&opts.subBits, "sub-bits", 0, "re-bucketing fan-out in bits (0 = bucket-bits)")
	fs.IntVar(&opts.producers, "producers", 4, "goroutines adding entries")
	fs.IntVar(&opts.sortWorkers, "sort-workers", runtime.GOMAXPROCS(0), "sort goroutines")
	fs.IntVar(&opts.readWorkers, "read-workers", 0, "re-bucketing goroutines (0 = max(sort/2, 2))")
	fs.StringVar(&opts.hash, "hash", "xxh3", "key generator: xxh3 or murmur3")
	fs.StringVarP(&opts.output, "output", "o", "", "write sorted entries to this file")
	fs.BoolVarP(&opts.verbose, "verbose", "v", false, "debug logging")
	_ = fs.Parse(os.Args[1:])

	if err := run(opts); err != nil {
		fmt.Fprintf(os.Stderr, "bench: %v\n", err)
		os.Exit(1)
	}
}

func run(opts options) error {
	hash, err := entry.ParseHash(opts.hash)
	if err != nil {
		return err
	}
	if opts.producers < 1 {
		return fmt.Errorf("--producers must be at least 1, got %d", opts.producers)
	}

	level := slog.LevelInfo
	if opts.verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	s, err := ramsort.New(opts.keyBits, opts.bucketBits, ramsort.Codec[entry.Entry](entry.Codec{}), entry.Key,
		ramsort.WithSubBucketBits(opts.subBits),
		ramsort.WithPrefix("bench"),
		ramsort.WithLogger(logger))
	if err != nil {
		return err
	}
	defer s.Close()

	runtime.GC()
	baselineRSS := getMaxRSS()
	sampler := startPeakSampler()

	// Build phase: every producer generates and adds an interleaved share.
	fmt.Printf("Adding %d entries with %d producers (%s keys)...\n", opts.records, opts.producers, hash)
	addStart := time.Now()
	var wg sync.WaitGroup
	errs := make([]error, opts.producers)
	for p := range opts.producers {
		wc := s.NewWriteCache()
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := p; i < opts.records; i += opts.producers {
				if err := wc.Add(entry.At(uint64(i), opts.keyBits, 1, hash)); err != nil {
					errs[p] = err
					return
				}
			}
			errs[p] = wc.Close()
		}()
	}
	wg.Wait()
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("add: %w", err)
	}
	if err := s.Finish(); err != nil {
		return fmt.Errorf("finish: %w", err)
	}
	addDuration := time.Since(addStart)
	wantDigest := s.Digest()

	// Read phase.
	fmt.Println("Sorting...")
	readOpts := []ramsort.ReadOption{
		ramsort.WithSortWorkers(opts.sortWorkers),
		ramsort.WithReadWorkers(opts.readWorkers),
	}
	readStart := time.Now()
	var sorted []entry.Entry
	var gotDigest uint64
	if opts.output != "" {
		fsink, err := ramsort.CreateFileSink(opts.output, ramsort.Codec[entry.Entry](entry.Codec{}), s.Len())
		if err != nil {
			return err
		}
		if err := s.Read(context.Background(), fsink, readOpts...); err != nil {
			return errors.Join(err, fsink.Close())
		}
		gotDigest = fsink.Digest()
		if err := fsink.Close(); err != nil {
			return err
		}
	} else {
		sink := ramsort.NewSliceSinkWithDigest(s.Len(), ramsort.Codec[entry.Entry](entry.Codec{}))
		if err := s.Read(context.Background(), sink, readOpts...); err != nil {
			return err
		}
		sorted = sink.Records()
		gotDigest = sink.Digest()
	}
	readDuration := time.Since(readStart)
	peakHeap, peakRSS := sampler.stop()

	// Verify.
	if sorted == nil && opts.output != "" {
		if sorted, err = ramsort.ReadFile(opts.output, ramsort.Codec[entry.Entry](entry.Codec{})); err != nil {
			return err
		}
	}
	if len(sorted) != opts.records {
		return fmt.Errorf("sorted %d entries, want %d", len(sorted), opts.records)
	}
	for i := 1; i < len(sorted); i++ {
		if sorted[i-1].Y > sorted[i].Y {
			return fmt.Errorf("output unsorted at %d: %d > %d", i, sorted[i-1].Y, sorted[i].Y)
		}
	}
	if gotDigest != wantDigest {
		return fmt.Errorf("digest mismatch: input %016x, output %016x", wantDigest, gotDigest)
	}

	total := addDuration + readDuration
	fmt.Printf("\nResults:\n")
	fmt.Printf("  Entries:       %d (%d bytes each)\n", opts.records, entry.Size)
	fmt.Printf("  Buckets:       %d\n", s.NumBuckets())
	fmt.Printf("  Add+Finish:    %v (%.2f M/s)\n", addDuration, mps(opts.records, addDuration))
	fmt.Printf("  Read:          %v (%.2f M/s)\n", readDuration, mps(opts.records, readDuration))
	fmt.Printf("  Total:         %v (%.2f M/s)\n", total, mps(opts.records, total))
	fmt.Printf("  Peak heap:     %.1f MB\n", float64(peakHeap)/(1<<20))
	fmt.Printf("  Peak RSS:      %.1f MB (baseline %.1f MB)\n", float64(peakRSS)/(1<<20), float64(baselineRSS)/(1<<20))
	fmt.Printf("  Verified:      sorted, digest %016x\n", gotDigest)
	return nil
}

func mps(n int, d time.Duration) float64 {
	if d <= 0 {
		return 0
	}
	return float64(n) / d.Seconds() / 1e6
}

// peakSampler samples heap and RSS every 10ms. runtime/metrics avoids the
// stop-the-world pause of ReadMemStats.
type peakSampler struct {
	heap atomic.Uint64
	rss  atomic.Uint64
	done chan struct{}
	wg   sync.WaitGroup
}

func startPeakSampler() *peakSampler {
	ps := &peakSampler{done: make(chan struct{})}
	ps.wg.Add(1)
	go func() {
		defer ps.wg.Done()
		samples := []metrics.Sample{{Name: "/memory/classes/heap/objects:bytes"}}
		ticker := time.NewTicker(10 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-ps.done:
				return
			case <-ticker.C:
				metrics.Read(samples)
				storeMax(&ps.heap, samples[0].Value.Uint64())
				storeMax(&ps.rss, getMaxRSS())
			}
		}
	}()
	return ps
}

func (ps *peakSampler) stop() (heap, rss uint64) {
	close(ps.done)
	ps.wg.Wait()
	return ps.heap.Load(), ps.rss.Load()
}

func storeMax(v *atomic.Uint64, x uint64) {
	for {
		old := v.Load()
		if x <= old || v.CompareAndSwap(old, x) {
			return
		}
	}
}
