package ramsort

import (
	"io"
	"log/slog"
)

const (
	// defaultCacheRecords is the per-bucket staging capacity of a WriteCache.
	defaultCacheRecords = 256

	// subBucketReserveFactor over-reserves each sub-bucket slice relative to
	// the observed bucket density to avoid regrowth on skewed sub-buckets.
	subBucketReserveFactor = 1.1
)

// Option is a functional option for configuring a Sorter.
type Option func(*config)

// ReadOption is a functional option for configuring a single Read.
type ReadOption func(*readConfig)

type config struct {
	prefix       string
	readOnly     bool
	cacheRecords int
	subBits      int // 0 means "same as bucketBits"
	keepBuckets  bool
	memoryLimit  int64 // 0 means unlimited
	verify       bool
	logger       *slog.Logger
}

func defaultConfig() *config {
	return &config{
		prefix:       "ramsort",
		cacheRecords: defaultCacheRecords,
		verify:       true,
		logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

type readConfig struct {
	sortWorkers int
	readWorkers int // <= 0 means max(sortWorkers/2, 2)
}

// WithPrefix sets the prefix of the diagnostic bucket names that appear in
// log records and error messages. No files are created.
func WithPrefix(prefix string) Option {
	return func(c *config) {
		c.prefix = prefix
	}
}

// WithReadOnly exists for callers that share configuration with disk-backed
// sorters. A RAM sorter cannot be opened read-only: New fails with
// ErrReadOnly when enabled.
func WithReadOnly(enable bool) Option {
	return func(c *config) {
		c.readOnly = enable
	}
}

// WithCacheRecords sets how many records each WriteCache stages per bucket
// before issuing a batched write. Values below 1 are treated as 1.
func WithCacheRecords(n int) Option {
	return func(c *config) {
		c.cacheRecords = max(n, 1)
	}
}

// WithSubBucketBits sets the fan-out of the re-bucketing pass in Read.
// By default the sub-bucket slice is as wide as the bucket slice, so
// keyBits must be at least 2*bucketBits.
func WithSubBucketBits(n int) Option {
	return func(c *config) {
		c.subBits = n
	}
}

// WithKeepBuckets retains bucket buffers after Read scans them, so the
// sorter can be read again. Buffers are still released by Close.
func WithKeepBuckets(enable bool) Option {
	return func(c *config) {
		c.keepBuckets = enable
	}
}

// WithMemoryLimit caps the total bytes held by bucket buffers. A write that
// would cross the limit fails with ErrMemoryLimit. Zero disables the limit.
func WithMemoryLimit(bytes int64) Option {
	return func(c *config) {
		c.memoryLimit = bytes
	}
}

// WithVerify enables or disables digest verification of each bucket while
// Read decodes it. Enabled by default.
func WithVerify(enable bool) Option {
	return func(c *config) {
		c.verify = enable
	}
}

// WithLogger sets the structured logger. Defaults to a logger that discards
// everything.
func WithLogger(logger *slog.Logger) Option {
	return func(c *config) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithSortWorkers sets the number of goroutines sorting runs.
// Defaults to runtime.GOMAXPROCS(0).
func WithSortWorkers(n int) ReadOption {
	return func(c *readConfig) {
		c.sortWorkers = n
	}
}

// WithReadWorkers sets the number of goroutines decoding and re-bucketing
// buckets. Defaults to max(sortWorkers/2, 2).
func WithReadWorkers(n int) ReadOption {
	return func(c *readConfig) {
		c.readWorkers = n
	}
}
