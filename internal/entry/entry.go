// Package entry defines the fixed-width table entry sorted during plot
// construction, its codec, and deterministic generators for it.
package entry

import (
	"encoding/binary"
	"fmt"

	"github.com/spaolacci/murmur3"
	"github.com/zeebo/xxh3"
)

// Size is the serialized width of an Entry: Y (8) | Pos (4) | Off (2).
const Size = 14

// Entry is a table entry keyed by Y. Pos and Off locate the pair of entries
// in the previous table that produced it.
type Entry struct {
	Y   uint64
	Pos uint32
	Off uint16
}

// Codec is the little-endian fixed-width codec for Entry.
type Codec struct{}

// Size returns Size.
func (Codec) Size() int { return Size }

// Encode writes e to dst[:Size].
func (Codec) Encode(dst []byte, e Entry) {
	_ = dst[Size-1]
	binary.LittleEndian.PutUint64(dst[0:8], e.Y)
	binary.LittleEndian.PutUint32(dst[8:12], e.Pos)
	binary.LittleEndian.PutUint16(dst[12:14], e.Off)
}

// Decode reads an Entry from src[:Size].
func (Codec) Decode(src []byte) Entry {
	_ = src[Size-1]
	return Entry{
		Y:   binary.LittleEndian.Uint64(src[0:8]),
		Pos: binary.LittleEndian.Uint32(src[8:12]),
		Off: binary.LittleEndian.Uint16(src[12:14]),
	}
}

// Key returns the sort key of e.
func Key(e Entry) uint64 {
	return e.Y
}

// Hash selects the function Generate derives keys with.
type Hash int

const (
	HashXXH3 Hash = iota
	HashMurmur3
)

func (h Hash) String() string {
	switch h {
	case HashXXH3:
		return "xxh3"
	case HashMurmur3:
		return "murmur3"
	default:
		return fmt.Sprintf("hash(%d)", int(h))
	}
}

// ParseHash maps "xxh3" or "murmur3" to a Hash.
func ParseHash(name string) (Hash, error) {
	switch name {
	case "xxh3":
		return HashXXH3, nil
	case "murmur3":
		return HashMurmur3, nil
	default:
		return 0, fmt.Errorf("unknown hash %q (want xxh3 or murmur3)", name)
	}
}

// At returns the i-th generated entry: a keyBits-wide Y taken from the high
// bits of hash(seed, i), Pos the low 32 bits of i and Off the next 16.
// Every i yields a distinct entry.
func At(i uint64, keyBits int, seed uint64, h Hash) Entry {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], i)

	var v uint64
	switch h {
	case HashMurmur3:
		v = murmur3.Sum64WithSeed(buf[:], uint32(seed))
	default:
		v = xxh3.HashSeed(buf[:], seed)
	}

	var y uint64
	if keyBits > 0 && keyBits < 64 {
		y = v >> (64 - keyBits)
	} else if keyBits >= 64 {
		y = v
	}
	return Entry{Y: y, Pos: uint32(i), Off: uint16(i >> 32)}
}

// Generate returns n entries At(0..n-1).
func Generate(n int, keyBits int, seed uint64, h Hash) []Entry {
	out := make([]Entry, n)
	for i := range out {
		out[i] = At(uint64(i), keyBits, seed, h)
	}
	return out
}
