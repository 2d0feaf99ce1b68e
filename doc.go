// Package ramsort implements a bucket-partitioned in-memory sort for
// fixed-width records keyed by an unsigned integer of up to 64 bits.
//
// Records are partitioned into 2^bucketBits buckets by the high bits of
// their key while they are written, so that concurrent producers only
// contend on the bucket they append to. Read then drains the buckets
// through a parallel re-bucketing stage (partitioning each bucket by the
// next slice of key bits) and a parallel sorting stage, handing every
// sorted run to a Sink together with its offset in the global order.
//
// # Basic Usage
//
//	s, err := ramsort.New(32, 8, codec, func(e Entry) uint64 { return e.Y })
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer s.Close()
//
//	for _, e := range entries {
//	    if err := s.Add(e); err != nil {
//	        log.Fatal(err)
//	    }
//	}
//	if err := s.Finish(); err != nil {
//	    log.Fatal(err)
//	}
//
//	sink := ramsort.NewSliceSink[Entry](s.Len())
//	if err := s.Read(ctx, sink); err != nil {
//	    log.Fatal(err)
//	}
//	sorted := sink.Records()
//
// Writing the sorted output straight to disk:
//
//	fs, err := ramsort.CreateFileSink("table.bin", codec, s.Len())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := s.Read(ctx, fs); err != nil {
//	    log.Fatal(err)
//	}
//	if err := fs.Close(); err != nil {
//	    log.Fatal(err)
//	}
//
// # Package Structure
//
// The implementation is organized as follows:
//
//   - Public API: sorter.go (New, Add, Write, Finish, Read, Close)
//   - Configuration: options.go (Option, ReadOption, With* functions)
//   - Records: record.go (Codec, KeyFunc, Run, Digest)
//   - Write path: store.go (bucket store), cache.go (WriteCache)
//   - Read path: read.go (re-bucketing and sort pipeline)
//   - Output: sink.go (Sink, SliceSink), file_sink.go (FileSink, ReadFile)
//   - Errors: errors/ (sentinel errors grouped by category)
//   - Platform: platform_*.go (OS-specific file hints)
package ramsort
