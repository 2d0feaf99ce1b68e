// Package errors defines all exported error sentinels for the ramsort library.
//
// This is the single source of truth for error values. Both the top-level
// ramsort package and its internal packages import from here, ensuring
// errors.Is checks work across package boundaries. Detailed errors wrap one
// of the category sentinels, so errors.Is(err, ErrInvalidConfig) matches
// every configuration error.
package errors

import (
	"errors"
	"fmt"
)

// Categories
var (
	ErrInvalidConfig = errors.New("ramsort: invalid configuration")
	ErrOutOfRange    = errors.New("ramsort: index out of range")
	ErrInvalidState  = errors.New("ramsort: invalid state")
	ErrAllocation    = errors.New("ramsort: allocation failed")
)

// Construction errors
var (
	ErrReadOnly         = fmt.Errorf("%w: read-only mode is not supported", ErrInvalidConfig)
	ErrKeyBits          = fmt.Errorf("%w: key size must be between 1 and 64 bits", ErrInvalidConfig)
	ErrBucketBits       = fmt.Errorf("%w: bucket bits must be between 1 and the key size", ErrInvalidConfig)
	ErrNegativeSubShift = fmt.Errorf("%w: bucket and sub-bucket bits exceed the key size", ErrInvalidConfig)
	ErrRecordWidth      = fmt.Errorf("%w: record size must be positive", ErrInvalidConfig)
)

// Build errors
var (
	ErrBucketOutOfRange = fmt.Errorf("%w: bucket index", ErrOutOfRange)
	ErrRecordSize       = errors.New("ramsort: data length does not match record count")
	ErrFinished         = fmt.Errorf("%w: sorter is finished, writes are rejected", ErrInvalidState)
	ErrMemoryLimit      = fmt.Errorf("%w: bucket store memory limit exceeded", ErrAllocation)
)

// Read errors
var (
	ErrNotFinished      = fmt.Errorf("%w: sorter must be finished before reading", ErrInvalidState)
	ErrDrained          = fmt.Errorf("%w: buckets were released by a previous read", ErrInvalidState)
	ErrClosed           = fmt.Errorf("%w: sorter is closed", ErrInvalidState)
	ErrChecksumMismatch = errors.New("ramsort: bucket checksum mismatch")
)

// Sink errors
var (
	ErrOffsetOutOfRange = fmt.Errorf("%w: run does not fit in sink", ErrOutOfRange)
	ErrSinkClosed       = fmt.Errorf("%w: sink is closed", ErrInvalidState)
)
