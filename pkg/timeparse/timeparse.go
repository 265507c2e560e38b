// Package timeparse converts operator-supplied punishment durations
// ("30m", "2h", "7d", "1w2d", "forever") into expiry times.
package timeparse

import (
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode"
)

// Permanent spellings accepted from operators. An empty duration also means
// permanent, matching the original command behavior.
var permanentWords = map[string]bool{
	"":          true,
	"forever":   true,
	"permanent": true,
	"perm":      true,
}

// ParseDuration parses a human duration. The second return is true when the
// input means "no expiry". Units: s, m, h, d, w.
func ParseDuration(s string) (time.Duration, bool, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if permanentWords[s] {
		return 0, true, nil
	}

	var total time.Duration
	rest := s
	for rest != "" {
		i := 0
		for i < len(rest) && unicode.IsDigit(rune(rest[i])) {
			i++
		}
		if i == 0 || i == len(rest) {
			return 0, false, fmt.Errorf("invalid duration %q", s)
		}
		n, err := strconv.Atoi(rest[:i])
		if err != nil {
			return 0, false, fmt.Errorf("invalid duration %q: %w", s, err)
		}
		var unit time.Duration
		switch rest[i] {
		case 's':
			unit = time.Second
		case 'm':
			unit = time.Minute
		case 'h':
			unit = time.Hour
		case 'd':
			unit = 24 * time.Hour
		case 'w':
			unit = 7 * 24 * time.Hour
		default:
			return 0, false, fmt.Errorf("invalid duration unit %q in %q", rest[i], s)
		}
		total += time.Duration(n) * unit
		rest = rest[i+1:]
	}
	if total <= 0 {
		return 0, false, fmt.Errorf("duration %q must be positive", s)
	}
	return total, false, nil
}

// ExpiryFrom resolves a duration string against an issue time. A nil result
// means permanent.
func ExpiryFrom(issuedAt time.Time, duration string) (*time.Time, error) {
	d, permanent, err := ParseDuration(duration)
	if err != nil {
		return nil, err
	}
	if permanent {
		return nil, nil
	}
	t := issuedAt.Add(d)
	return &t, nil
}
