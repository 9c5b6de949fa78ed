// Package duration converts human-readable duration tokens such as "30d" or
// "1year" to and from whole seconds.
package duration

import (
	"errors"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Unit sizes in seconds. A year is a fixed 365 days.
const (
	Second int64 = 1
	Minute       = 60 * Second
	Hour         = 60 * Minute
	Day          = 24 * Hour
	Week         = 7 * Day
	Year         = 365 * Day
)

var (
	// ErrNotRecognized is returned for any token outside the N<unit> grammar.
	ErrNotRecognized = errors.New("duration not recognized")

	// ErrOverflow is returned when a duration cannot be represented.
	ErrOverflow = errors.New("duration out of range")
)

var tokenPattern = regexp.MustCompile(`^(\d+)(s|m|h|d|w|year)$`)

var multipliers = map[string]int64{
	"s":    Second,
	"m":    Minute,
	"h":    Hour,
	"d":    Day,
	"w":    Week,
	"year": Year,
}

// units is ordered largest first for Format.
var units = []struct {
	suffix string
	size   int64
}{
	{"year", Year},
	{"w", Week},
	{"d", Day},
	{"h", Hour},
	{"m", Minute},
}

// Parse converts a token like "30d" to seconds. Surrounding whitespace is
// ignored and the unit is case-insensitive. Composite tokens ("1d12h"),
// signs and unknown units are rejected.
func Parse(token string) (int64, error) {
	m := tokenPattern.FindStringSubmatch(strings.ToLower(strings.TrimSpace(token)))
	if m == nil {
		return 0, ErrNotRecognized
	}
	n, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return 0, ErrOverflow
	}
	mult := multipliers[m[2]]
	if n > math.MaxInt64/mult {
		return 0, ErrOverflow
	}
	return n * mult, nil
}

// Format renders seconds using the largest unit that fits, flooring the
// remainder away. The output is for display; Parse(Format(x)) <= x.
func Format(seconds int64) string {
	for _, u := range units {
		if seconds >= u.size {
			return strconv.FormatInt(seconds/u.size, 10) + u.suffix
		}
	}
	return strconv.FormatInt(seconds, 10) + "s"
}

// ToDuration converts whole seconds to a time.Duration.
func ToDuration(seconds int64) (time.Duration, error) {
	if seconds < 0 || seconds > int64(math.MaxInt64/time.Second) {
		return 0, ErrOverflow
	}
	return time.Duration(seconds) * time.Second, nil
}
