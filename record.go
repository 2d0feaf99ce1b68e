package ramsort

import "github.com/cespare/xxhash/v2"

// Codec is the fixed-width serialization capability of a record type.
//
// Size must return the same positive value for every call. Encode writes
// exactly Size() bytes to dst; Decode reads exactly Size() bytes from src.
type Codec[T any] interface {
	Size() int
	Encode(dst []byte, v T)
	Decode(src []byte) T
}

// KeyFunc extracts the sort key of a record. Keys must fit in the key size
// the Sorter was created with.
type KeyFunc[T any] func(T) uint64

// Run is a key-sorted sequence of records together with the position its
// first record occupies in the fully sorted output.
type Run[T any] struct {
	Records []T
	Offset  uint64
}

// Digest returns the content digest of records: the wrapping sum of the
// xxHash64 of each encoded record. It does not depend on order, so the
// digest of a Sorter's input equals the digest of its sorted output.
func Digest[T any](codec Codec[T], records []T) uint64 {
	buf := make([]byte, codec.Size())
	var sum uint64
	for _, r := range records {
		codec.Encode(buf, r)
		sum += xxhash.Sum64(buf)
	}
	return sum
}

// digestBytes sums the per-record xxHash64 over count records packed in data.
func digestBytes(data []byte, size int) uint64 {
	var sum uint64
	for pos := 0; pos+size <= len(data); pos += size {
		sum += xxhash.Sum64(data[pos : pos+size])
	}
	return sum
}
