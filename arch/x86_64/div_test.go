package x86_64

import (
	"testing"
)

func TestDivWide(t *testing.T) {
	cases := []struct {
		name          string
		hi, lo, value uint64
		width         int
		q, r          uint64
	}{
		{"64-bit plain", 0, 100, 7, 64, 14, 2},
		{"64-bit overflow wraps", 1, 0, 1, 64, 0, 0},
		{"64-bit overflow large", 5, 7, 3, 64, 12297829382473034413, 0},
		{"32-bit overflow truncates", 0x12345678, 0x9abcdef0, 0x10, 32, 0x89abcdef, 0},
		{"16-bit overflow truncates", 0x12, 0x3456, 2, 16, 0x1a2b, 0},
		{"8-bit overflow truncates", 0x12, 0x34, 0x10, 8, 0x23, 4},
	}
	for _, c := range cases {
		q, r := divWide(c.hi, c.lo, c.value, c.width)
		if q != c.q || r != c.r {
			t.Errorf("%s: divWide() = %#x, %#x, expecting %#x, %#x", c.name, q, r, c.q, c.r)
		}
	}
}

// the remainder is always exact even when the quotient truncates
func TestDivWideRemainder(t *testing.T) {
	for hi := uint64(0); hi < 8; hi++ {
		for _, value := range []uint64{1, 2, 3, 0x10, 0xff, 0x10000, 1 << 40} {
			_, r := divWide(hi, 0x123456789abcdef0, value, 64)
			if r >= value {
				t.Fatalf("divWide(%d, _, %d) remainder %d out of range", hi, value, r)
			}
		}
	}
}
