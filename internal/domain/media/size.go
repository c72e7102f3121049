package media

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

var sizeUnits = []string{"B", "KB", "MB", "GB", "TB", "PB", "EB", "ZB", "YB"}

var humanSizeRe = regexp.MustCompile(`^(\d+(?:\.\d+)?) ?([a-zA-Z]+)$`)

// HumanSize renders a byte count with the smallest base-1024 unit that keeps
// the value below 1024, rounded to two decimals, no space before the unit.
func HumanSize(bytes int64) string {
	value := float64(bytes)
	unit := 0
	for value >= 1024 && unit < len(sizeUnits)-1 {
		value /= 1024
		unit++
	}
	if unit == 0 {
		return fmt.Sprintf("%dB", bytes)
	}
	return fmt.Sprintf("%.2f%s", value, sizeUnits[unit])
}

// ParseHumanSize inverts HumanSize: "<number><optional space><unit>",
// case-insensitive. Returns ErrBadSizeFormat when the pattern does not match.
// The round trip through HumanSize is lossy by one rounding step.
func ParseHumanSize(text string) (int64, error) {
	m := humanSizeRe.FindStringSubmatch(strings.TrimSpace(text))
	if m == nil {
		return 0, ErrBadSizeFormat
	}

	value, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, ErrBadSizeFormat
	}

	unit := strings.ToUpper(m[2])
	for i, u := range sizeUnits {
		if unit == u {
			for ; i > 0; i-- {
				value *= 1024
			}
			// Values past int64 range clamp: converting an out-of-range
			// float is unspecified.
			if value >= float64(math.MaxInt64) {
				return math.MaxInt64, nil
			}
			return int64(value), nil
		}
	}
	return 0, ErrBadSizeFormat
}
