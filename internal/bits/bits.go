// Package bits provides the key partition arithmetic shared by the bucket
// store, the write caches and the re-bucketing stage.
package bits

// Mask returns a uint64 with the low n bits set. n >= 64 yields all ones.
func Mask(n int) uint64 {
	if n <= 0 {
		return 0
	}
	if n >= 64 {
		return ^uint64(0)
	}
	return uint64(1)<<n - 1
}

// Slice extracts width bits of key starting at bit shift.
//
// The top-level bucket index is Slice(key, keyBits-bucketBits, bucketBits),
// which for keys that fit in keyBits is the same as key >> shift.
func Slice(key uint64, shift, width int) uint64 {
	if shift >= 64 {
		return 0
	}
	return (key >> shift) & Mask(width)
}

// Shifts returns the bit positions of the bucket slice and of the sub-bucket
// slice directly below it. subShift is negative when the two slices do not
// fit in keyBits; callers treat that as a configuration error.
func Shifts(keyBits, bucketBits, subBits int) (bucketShift, subShift int) {
	bucketShift = keyBits - bucketBits
	subShift = bucketShift - subBits
	return bucketShift, subShift
}
