package ramsort

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	sorterrors "github.com/tamirms/ramsort/errors"
	"github.com/tamirms/ramsort/internal/bits"
)

const (
	// maxKeyBits is the widest key a KeyFunc can return.
	maxKeyBits = 64

	// maxBucketBits bounds the bucket array (and the per-bucket sub-bucket
	// table) to 16M entries.
	maxBucketBits = 24
)

type state int32

const (
	stateBuilding state = iota
	stateFinished
	stateReading
	stateDrained // a non-retaining Read released every bucket
	stateClosed
)

func (s state) String() string {
	switch s {
	case stateBuilding:
		return "building"
	case stateFinished:
		return "finished"
	case stateReading:
		return "reading"
	case stateDrained:
		return "drained"
	case stateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Sorter partitions fixed-width records into buckets by the high bits of
// their key and later drains the buckets as key-sorted runs tagged with
// their global offset.
//
// Usage:
//
//	s, err := ramsort.New(32, 8, codec, keyFunc)
//	if err != nil { return err }
//	defer s.Close()
//
//	for _, r := range records {
//	    if err := s.Add(r); err != nil { return err }
//	}
//	if err := s.Finish(); err != nil { return err }
//
//	sink := ramsort.NewSliceSink[Entry](s.Len())
//	if err := s.Read(ctx, sink); err != nil { return err }
//	sorted := sink.Records()
//
// Producers running in their own goroutines should each use a WriteCache
// from NewWriteCache. Every producer must return before Finish is called;
// Finish flushes the caches, and Read and Close must be called from a single
// controlling goroutine.
type Sorter[T any] struct {
	cfg    *config
	codec  Codec[T]
	key    KeyFunc[T]
	logger *slog.Logger

	keyBits     int
	bucketBits  int
	subBits     int
	bucketShift int
	subShift    int

	store *bucketStore

	// cacheMu serializes Add through the default cache.
	cacheMu sync.Mutex
	cache   *WriteCache[T]

	// mu guards the lifecycle: state transitions, caches, keepBuckets.
	mu          sync.Mutex
	state       atomic.Int32
	caches      []*WriteCache[T]
	keepBuckets bool
}

// New creates a Sorter for records whose keys are keyBits wide, split into
// 2^bucketBits buckets.
//
// Configuration errors (all matching ErrInvalidConfig):
//   - ErrKeyBits when keyBits is outside [1, 64]
//   - ErrBucketBits when bucketBits is outside [1, min(keyBits, 24)]
//   - ErrNegativeSubShift when the bucket and sub-bucket slices do not fit
//     in keyBits (by default the sub-bucket slice is bucketBits wide)
//   - ErrRecordWidth when codec.Size() is not positive
//   - ErrReadOnly when WithReadOnly(true) is given
func New[T any](keyBits, bucketBits int, codec Codec[T], key KeyFunc[T], opts ...Option) (*Sorter[T], error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	if cfg.readOnly {
		return nil, sorterrors.ErrReadOnly
	}
	if keyBits < 1 || keyBits > maxKeyBits {
		return nil, fmt.Errorf("%w: got %d", sorterrors.ErrKeyBits, keyBits)
	}
	if bucketBits < 1 || bucketBits > keyBits || bucketBits > maxBucketBits {
		return nil, fmt.Errorf("%w: got %d for %d-bit keys (max %d)",
			sorterrors.ErrBucketBits, bucketBits, keyBits, maxBucketBits)
	}
	if codec == nil || codec.Size() <= 0 {
		return nil, sorterrors.ErrRecordWidth
	}
	if key == nil {
		return nil, fmt.Errorf("%w: nil key function", sorterrors.ErrInvalidConfig)
	}

	subBits := cfg.subBits
	if subBits == 0 {
		subBits = bucketBits
	}
	if subBits < 0 || subBits > maxBucketBits {
		return nil, fmt.Errorf("%w: sub-bucket bits %d not in [1, %d]",
			sorterrors.ErrInvalidConfig, subBits, maxBucketBits)
	}
	bucketShift, subShift := bits.Shifts(keyBits, bucketBits, subBits)
	if subShift < 0 {
		return nil, fmt.Errorf("%w: %d-bit keys, %d bucket bits, %d sub-bucket bits",
			sorterrors.ErrNegativeSubShift, keyBits, bucketBits, subBits)
	}

	numBuckets := 1 << bucketBits
	store := newBucketStore(numBuckets, codec.Size(), cfg.prefix, cfg.memoryLimit)

	s := &Sorter[T]{
		cfg:         cfg,
		codec:       codec,
		key:         key,
		logger:      cfg.logger.With("prefix", cfg.prefix),
		keyBits:     keyBits,
		bucketBits:  bucketBits,
		subBits:     subBits,
		bucketShift: bucketShift,
		subShift:    subShift,
		store:       store,
		keepBuckets: cfg.keepBuckets,
	}
	s.cache = newWriteCache(store, codec, key, bucketShift, cfg.cacheRecords)
	s.state.Store(int32(stateBuilding))
	return s, nil
}

func (s *Sorter[T]) currentState() state {
	return state(s.state.Load())
}

// Add stages v in the default WriteCache. Safe for concurrent use, but
// concurrent producers scale better with their own NewWriteCache.
func (s *Sorter[T]) Add(v T) error {
	if err := s.checkWritable(); err != nil {
		return err
	}
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	return s.cache.Add(v)
}

// Write appends count records, already encoded back-to-back in data, to
// bucket index. Safe for concurrent use.
func (s *Sorter[T]) Write(index int, data []byte, count int) error {
	if err := s.checkWritable(); err != nil {
		return err
	}
	return s.store.write(index, data, count)
}

func (s *Sorter[T]) checkWritable() error {
	switch s.currentState() {
	case stateBuilding:
		return nil
	case stateClosed:
		return sorterrors.ErrClosed
	default:
		return sorterrors.ErrFinished
	}
}

// NewWriteCache returns a WriteCache for one producer goroutine. The sorter
// keeps track of it so that Finish flushes whatever it still stages.
func (s *Sorter[T]) NewWriteCache() *WriteCache[T] {
	wc := newWriteCache(s.store, s.codec, s.key, s.bucketShift, s.cfg.cacheRecords)
	s.mu.Lock()
	s.caches = append(s.caches, wc)
	s.mu.Unlock()
	return wc
}

// Finish flushes the default cache and every cache from NewWriteCache, then
// freezes the bucket store. Later writes fail with ErrFinished.
// Calling Finish again is a no-op.
func (s *Sorter[T]) Finish() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.currentState() {
	case stateClosed:
		return sorterrors.ErrClosed
	case stateBuilding:
	default:
		return nil
	}

	var errs []error
	s.cacheMu.Lock()
	if err := s.cache.Flush(); err != nil {
		errs = append(errs, err)
	}
	s.cacheMu.Unlock()
	for _, wc := range s.caches {
		if err := wc.Flush(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("flush write caches: %w", err)
	}

	s.store.freeze()
	s.caches = nil
	s.state.Store(int32(stateFinished))

	if s.logger.Enabled(context.Background(), slog.LevelDebug) {
		for i := range s.store.buckets {
			s.logger.Debug("bucket finished",
				"bucket", s.store.buckets[i].name,
				"entries", s.store.entries(i),
				"bytes", s.store.bytes(i))
		}
	}
	s.logger.Debug("sorter finished", "records", s.store.total(), "bytes", s.store.inUse())
	return nil
}

// Read drains every bucket through the re-bucketing and sorting stages and
// pushes each sorted run to sink. Runs arrive in completion order; their
// offsets place them in the global order. Read blocks until every bucket is
// drained or an error stops the pipeline.
//
// Unless buckets are kept (WithKeepBuckets, SetKeepBuckets) each bucket's
// buffer is released as soon as it has been decoded, and a second Read fails
// with ErrDrained.
//
// Read must be called after Finish and not concurrently with other Sorter
// methods.
func (s *Sorter[T]) Read(ctx context.Context, sink Sink[T], opts ...ReadOption) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch st := s.currentState(); st {
	case stateFinished:
	case stateBuilding:
		return sorterrors.ErrNotFinished
	case stateDrained:
		return sorterrors.ErrDrained
	case stateClosed:
		return sorterrors.ErrClosed
	default:
		return fmt.Errorf("%w: read while %s", sorterrors.ErrInvalidState, st)
	}

	rc := readConfig{}
	for _, opt := range opts {
		opt(&rc)
	}
	if rc.sortWorkers <= 0 {
		rc.sortWorkers = runtime.GOMAXPROCS(0)
	}
	if rc.readWorkers <= 0 {
		rc.readWorkers = max(rc.sortWorkers/2, 2)
	}

	keep := s.keepBuckets
	s.state.Store(int32(stateReading))
	start := time.Now()
	s.logger.Debug("read started",
		"buckets", len(s.store.buckets),
		"records", s.store.total(),
		"read_workers", rc.readWorkers,
		"sort_workers", rc.sortWorkers,
		"keep_buckets", keep)

	err := s.runPipeline(ctx, sink, rc, keep)

	// A read that stopped before releasing anything can be retried.
	if keep || !s.store.anyReleased() {
		s.state.Store(int32(stateFinished))
	} else {
		s.state.Store(int32(stateDrained))
	}
	if err != nil {
		s.logger.Debug("read failed", "error", err, "elapsed", time.Since(start))
		return err
	}
	s.logger.Debug("read finished", "elapsed", time.Since(start), "bytes_in_use", s.store.inUse())
	return nil
}

// Close releases every bucket buffer. Valid in any state; idempotent.
func (s *Sorter[T]) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.currentState() == stateClosed {
		return nil
	}
	s.store.freeze()
	s.store.releaseAll()
	s.caches = nil
	s.state.Store(int32(stateClosed))
	s.logger.Debug("sorter closed")
	return nil
}

// NumBuckets returns the number of top-level buckets.
func (s *Sorter[T]) NumBuckets() int {
	return len(s.store.buckets)
}

// SetKeepBuckets controls whether Read keeps bucket buffers after scanning
// them.
func (s *Sorter[T]) SetKeepBuckets(enable bool) {
	s.mu.Lock()
	s.keepBuckets = enable
	s.mu.Unlock()
}

// Len returns the number of records written to the bucket store. Records
// still staged in a WriteCache are not counted until flushed.
func (s *Sorter[T]) Len() uint64 {
	return s.store.total()
}

// BucketLen returns the number of records written to bucket index.
func (s *Sorter[T]) BucketLen(index int) (int, error) {
	if index < 0 || index >= len(s.store.buckets) {
		return 0, fmt.Errorf("%w: %d not in [0, %d)", sorterrors.ErrBucketOutOfRange, index, len(s.store.buckets))
	}
	return s.store.entries(index), nil
}

// Digest returns the content digest of every record written so far. It
// equals Digest(codec, records) over the same records in any order.
func (s *Sorter[T]) Digest() uint64 {
	return s.store.digest()
}

// BytesInUse returns the bytes currently held by bucket buffers.
func (s *Sorter[T]) BytesInUse() int64 {
	return s.store.inUse()
}
