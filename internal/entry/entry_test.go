package entry

import (
	"testing"
)

func TestCodecRoundTrip(t *testing.T) {
	var c Codec
	if c.Size() != Size {
		t.Fatalf("Size() = %d, want %d", c.Size(), Size)
	}
	in := Entry{Y: 0xDEADBEEFCAFEF00D, Pos: 0x01020304, Off: 0xABCD}
	buf := make([]byte, Size)
	c.Encode(buf, in)
	if buf[0] != 0x0D || buf[8] != 0x04 || buf[12] != 0xCD {
		t.Errorf("unexpected little-endian layout: % x", buf)
	}
	if got := c.Decode(buf); got != in {
		t.Errorf("Decode(Encode(%+v)) = %+v", in, got)
	}
}

func TestAtKeyWidth(t *testing.T) {
	for _, h := range []Hash{HashXXH3, HashMurmur3} {
		for _, keyBits := range []int{1, 8, 17, 32, 63, 64} {
			for i := range uint64(1000) {
				e := At(i, keyBits, 42, h)
				if keyBits < 64 && e.Y>>keyBits != 0 {
					t.Fatalf("%s: At(%d, %d).Y = 0x%X exceeds key width", h, i, keyBits, e.Y)
				}
				if e.Pos != uint32(i) {
					t.Fatalf("%s: At(%d).Pos = %d", h, i, e.Pos)
				}
			}
		}
	}
}

func TestAtDeterministic(t *testing.T) {
	for _, h := range []Hash{HashXXH3, HashMurmur3} {
		a := Generate(100, 32, 7, h)
		b := Generate(100, 32, 7, h)
		for i := range a {
			if a[i] != b[i] {
				t.Fatalf("%s: entry %d differs between runs: %+v vs %+v", h, i, a[i], b[i])
			}
		}
		c := Generate(100, 32, 8, h)
		same := 0
		for i := range a {
			if a[i].Y == c[i].Y {
				same++
			}
		}
		if same > 5 {
			t.Errorf("%s: %d of 100 keys unchanged by a different seed", h, same)
		}
	}
}

// TestAtUniform checks that 8-bit keys cover all four 2-bit buckets roughly
// evenly, which the sort tests rely on to populate every bucket.
func TestAtUniform(t *testing.T) {
	for _, h := range []Hash{HashXXH3, HashMurmur3} {
		var counts [4]int
		const n = 4000
		for i := range uint64(n) {
			counts[At(i, 8, 1, h).Y>>6]++
		}
		for b, c := range counts {
			if c < n/4-200 || c > n/4+200 {
				t.Errorf("%s: bucket %d has %d of %d keys", h, b, c, n)
			}
		}
	}
}

func TestParseHash(t *testing.T) {
	tests := []struct {
		in      string
		want    Hash
		wantErr bool
	}{
		{"xxh3", HashXXH3, false},
		{"murmur3", HashMurmur3, false},
		{"sha256", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseHash(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseHash(%q) err = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if err == nil && got != tt.want {
			t.Errorf("ParseHash(%q) = %v, want %v", tt.in, got, tt.want)
		}
		if err == nil && got.String() != tt.in {
			t.Errorf("%v.String() = %q, want %q", got, got.String(), tt.in)
		}
	}
}
