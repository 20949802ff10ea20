package oxenhash

import "testing"

func TestSumDeterministic(t *testing.T) {
	a := Sum([]byte("hello\n"))
	b := Sum([]byte("hello\n"))
	if a != b {
		t.Fatalf("Sum not deterministic: %v != %v", a, b)
	}
	c := Sum([]byte("hello\n!"))
	if a == c {
		t.Fatalf("Sum collided on distinct input")
	}
}

func TestStringRoundTrip(t *testing.T) {
	h := Sum([]byte("round trip"))
	s := h.String()
	if len(s) != Size*2 {
		t.Fatalf("String() length = %d, want %d", len(s), Size*2)
	}
	got, err := ParseHash(s)
	if err != nil {
		t.Fatalf("ParseHash: %v", err)
	}
	if got != h {
		t.Fatalf("round trip mismatch: got %v, want %v", got, h)
	}
}

func TestParseHashInvalidLength(t *testing.T) {
	if _, err := ParseHash("deadbeef"); err == nil {
		t.Fatal("expected error for short hex string")
	}
}

func TestShort(t *testing.T) {
	h := Sum([]byte("x"))
	if got := h.Short(8); got != h.String()[:8] {
		t.Fatalf("Short(8) = %q, want %q", got, h.String()[:8])
	}
	if got := h.Short(1000); got != h.String() {
		t.Fatalf("Short(overlong) = %q, want full string", got)
	}
}

func TestModDistributesAcrossBuckets(t *testing.T) {
	buckets := make(map[uint64]int)
	for i := 0; i < 2000; i++ {
		h := Sum([]byte{byte(i), byte(i >> 8)})
		buckets[h.Mod(7)]++
	}
	if len(buckets) < 5 {
		t.Fatalf("Mod(7) only hit %d of 7 buckets across 2000 samples", len(buckets))
	}
	for _, h := range []Hash{Sum([]byte("a")), Sum([]byte("b")), Sum([]byte("c"))} {
		if h.Mod(3) >= 3 {
			t.Fatalf("Mod(3) produced out-of-range bucket %d", h.Mod(3))
		}
	}
}

func TestIsZero(t *testing.T) {
	var zero Hash
	if !zero.IsZero() {
		t.Fatal("zero Hash should report IsZero")
	}
	if Sum([]byte("x")).IsZero() {
		t.Fatal("non-zero Hash reported IsZero")
	}
}
