package ramsort

import (
	"cmp"
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/sync/errgroup"

	sorterrors "github.com/tamirms/ramsort/errors"
	"github.com/tamirms/ramsort/internal/bits"
)

// workChanBufferMultiplier sizes every pipeline channel relative to the
// number of goroutines consuming it.
const workChanBufferMultiplier = 2

// bucketTask is one top-level bucket handed to a read worker, together with
// the number of records in all buckets before it.
type bucketTask struct {
	index  int
	offset uint64
}

// runPipeline wires the read pipeline:
//
//	dispatcher -> tasks -> read workers -> relay -> relay goroutine -> runs -> sort workers -> sink
//
// Each stage closes its output channel once its input is exhausted; the
// errgroup context cancels every stage on the first error.
func (s *Sorter[T]) runPipeline(ctx context.Context, sink Sink[T], rc readConfig, keep bool) error {
	g, gctx := errgroup.WithContext(ctx)

	tasks := make(chan bucketTask, rc.readWorkers*workChanBufferMultiplier)
	relay := make(chan []Run[T], rc.readWorkers*workChanBufferMultiplier)
	runs := make(chan Run[T], rc.sortWorkers*workChanBufferMultiplier)

	// Dispatcher: buckets in index order, offsets accumulated from counts.
	g.Go(func() error {
		defer close(tasks)
		var offset uint64
		for i := range s.store.buckets {
			select {
			case tasks <- bucketTask{index: i, offset: offset}:
			case <-gctx.Done():
				return gctx.Err()
			}
			offset += uint64(s.store.entries(i))
		}
		return nil
	})

	var readers sync.WaitGroup
	for range rc.readWorkers {
		readers.Add(1)
		g.Go(func() error {
			defer readers.Done()
			return s.runReadWorker(gctx, tasks, relay, keep)
		})
	}
	g.Go(func() error {
		readers.Wait()
		close(relay)
		return nil
	})

	// Relay: flattens each bucket's run list into the sort queue.
	g.Go(func() error {
		defer close(runs)
		for batch := range relay {
			for _, r := range batch {
				select {
				case runs <- r:
				case <-gctx.Done():
					return gctx.Err()
				}
			}
		}
		return nil
	})

	for range rc.sortWorkers {
		g.Go(func() error {
			return runSortWorker(gctx, runs, sink, s.key)
		})
	}

	return g.Wait()
}

// runReadWorker re-buckets one bucket per task and forwards its runs.
func (s *Sorter[T]) runReadWorker(ctx context.Context, tasks <-chan bucketTask, relay chan<- []Run[T], keep bool) error {
	for task := range tasks {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		batch, err := s.readBucket(task, keep)
		if err != nil {
			return err
		}
		if len(batch) == 0 {
			continue
		}

		select {
		case relay <- batch:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// readBucket decodes bucket task.index, partitions its records by the
// sub-bucket slice of the key and returns the partitions in ascending
// sub-bucket order as runs. Runs are not yet sorted internally, but their
// offsets are final: every key in sub-bucket j is below every key in
// sub-bucket j+1.
//
// The bucket buffer is released as soon as it is decoded unless keep is set.
func (s *Sorter[T]) readBucket(task bucketTask, keep bool) ([]Run[T], error) {
	size := s.codec.Size()
	var table map[uint64][]T

	err := s.store.drain(task.index, keep, func(b *bucket) error {
		n := b.numEntries
		if n == 0 {
			return nil
		}
		if b.released {
			return fmt.Errorf("%w: %s", sorterrors.ErrDrained, b.name)
		}

		table = make(map[uint64][]T, min(n, 1<<s.subBits))
		reserve := max(int(float64(n>>s.subBits)*subBucketReserveFactor), 1)

		var sum uint64
		for pos := 0; pos < n*size; pos += size {
			rec := b.data[pos : pos+size]
			if s.cfg.verify {
				sum += xxhash.Sum64(rec)
			}
			v := s.codec.Decode(rec)
			sub := bits.Slice(s.key(v), s.subShift, s.subBits)
			block, ok := table[sub]
			if !ok {
				block = make([]T, 0, reserve)
			}
			table[sub] = append(block, v)
		}
		if s.cfg.verify && sum != b.digest {
			return fmt.Errorf("%w: %s: expected %016x, got %016x",
				sorterrors.ErrChecksumMismatch, b.name, b.digest, sum)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if !keep {
		s.logger.Debug("bucket released", "bucket", s.store.buckets[task.index].name)
	}
	if len(table) == 0 {
		return nil, nil
	}

	out := make([]Run[T], 0, len(table))
	offset := task.offset
	for _, sub := range slices.Sorted(maps.Keys(table)) {
		block := table[sub]
		out = append(out, Run[T]{Records: block, Offset: offset})
		offset += uint64(len(block))
	}
	return out, nil
}

// runSortWorker sorts runs by key in place and hands them to sink.
func runSortWorker[T any](ctx context.Context, runs <-chan Run[T], sink Sink[T], key KeyFunc[T]) error {
	compare := func(a, b T) int {
		return cmp.Compare(key(a), key(b))
	}
	for r := range runs {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		slices.SortFunc(r.Records, compare)
		if err := sink.Put(r); err != nil {
			return fmt.Errorf("sink run at offset %d: %w", r.Offset, err)
		}
	}
	return nil
}
