package util

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// FormatTimecode renders seconds as HH:MM:SS, rounding down.
func FormatTimecode(seconds float64) string {
	if seconds < 0 || math.IsNaN(seconds) {
		seconds = 0
	}
	total := int(seconds)
	return fmt.Sprintf("%02d:%02d:%02d", total/3600, (total%3600)/60, total%60)
}

// ParseTimecode accepts plain seconds, MM:SS or HH:MM:SS with optional
// fractional seconds.
func ParseTimecode(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty timecode")
	}
	parts := strings.Split(s, ":")
	if len(parts) > 3 {
		return 0, fmt.Errorf("invalid timecode %q", s)
	}

	var total float64
	for i, p := range parts {
		v, err := strconv.ParseFloat(p, 64)
		if err != nil || v < 0 {
			return 0, fmt.Errorf("invalid timecode %q", s)
		}
		if i < len(parts)-1 && v != math.Trunc(v) {
			return 0, fmt.Errorf("invalid timecode %q", s)
		}
		if i > 0 && v >= 60 {
			return 0, fmt.Errorf("invalid timecode %q", s)
		}
		total = total*60 + v
	}
	return total, nil
}
