package media

import (
	"errors"
	"math"
	"testing"
)

func TestHumanSize(t *testing.T) {
	cases := []struct {
		bytes int64
		want  string
	}{
		{0, "0B"},
		{512, "512B"},
		{1023, "1023B"},
		{1024, "1.00KB"},
		{1536, "1.50KB"},
		{5 * 1024 * 1024, "5.00MB"},
		{3 * 1024 * 1024 * 1024, "3.00GB"},
	}
	for _, tc := range cases {
		if got := HumanSize(tc.bytes); got != tc.want {
			t.Fatalf("HumanSize(%d) = %q, want %q", tc.bytes, got, tc.want)
		}
	}
}

func TestParseHumanSize(t *testing.T) {
	cases := []struct {
		in   string
		want int64
	}{
		{"512B", 512},
		{"1KB", 1024},
		{"1 KB", 1024},
		{"1.50KB", 1536},
		{"5mb", 5 * 1024 * 1024},
		{"2 GB", 2 * 1024 * 1024 * 1024},
	}
	for _, tc := range cases {
		got, err := ParseHumanSize(tc.in)
		if err != nil {
			t.Fatalf("ParseHumanSize(%q) returned error: %v", tc.in, err)
		}
		if got != tc.want {
			t.Fatalf("ParseHumanSize(%q) = %d, want %d", tc.in, got, tc.want)
		}
	}
}

func TestParseHumanSizeRejectsGarbage(t *testing.T) {
	for _, in := range []string{"", "fast", "12", "12XB", "MB12", "1.2.3KB"} {
		if _, err := ParseHumanSize(in); !errors.Is(err, ErrBadSizeFormat) {
			t.Fatalf("ParseHumanSize(%q): expected ErrBadSizeFormat, got %v", in, err)
		}
	}
}

func TestParseHumanSizeClampsHugeValues(t *testing.T) {
	for _, in := range []string{"1ZB", "100ZB", "1YB", "8EB"} {
		got, err := ParseHumanSize(in)
		if err != nil {
			t.Fatalf("ParseHumanSize(%q) returned error: %v", in, err)
		}
		if got != math.MaxInt64 {
			t.Fatalf("ParseHumanSize(%q) = %d, want clamp to %d", in, got, int64(math.MaxInt64))
		}
	}

	// just below the clamp still converts exactly
	got, err := ParseHumanSize("7EB")
	if err != nil {
		t.Fatalf("ParseHumanSize(7EB) returned error: %v", err)
	}
	if want := int64(7) << 60; got != want {
		t.Fatalf("ParseHumanSize(7EB) = %d, want %d", got, want)
	}
}

// The human form rounds to two decimals, so the round trip may be off by up
// to one unit step — never more.
func TestSizeRoundTripWithinOneUnitStep(t *testing.T) {
	cases := []int64{1, 1023, 1024, 1025, 999999, 5 * 1024 * 1024, 7_340_032_123, 1 << 40}
	for _, b := range cases {
		back, err := ParseHumanSize(HumanSize(b))
		if err != nil {
			t.Fatalf("round trip of %d failed to parse: %v", b, err)
		}
		step := int64(1)
		for v := b; v >= 1024; v /= 1024 {
			step *= 1024
		}
		diff := back - b
		if diff < 0 {
			diff = -diff
		}
		if diff > step {
			t.Fatalf("round trip of %d drifted by %d (unit step %d)", b, diff, step)
		}
	}
}
