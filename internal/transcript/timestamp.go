package transcript

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrMalformedTimestamp is returned by ParseTimestamp when the input is not
// in "m:ss" or "h:mm:ss" form.
var ErrMalformedTimestamp = errors.New("transcript: malformed timestamp")

// ParseTimestamp converts "m:ss", "mm:ss", or "h:mm:ss" into whole seconds.
// Minutes and seconds after the leading field must be in [0, 59].
func ParseTimestamp(s string) (int, error) {
	s = strings.TrimSpace(s)
	parts := strings.Split(s, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, fmt.Errorf("%w: %q", ErrMalformedTimestamp, s)
	}

	total := 0
	for i, p := range parts {
		if p == "" {
			return 0, fmt.Errorf("%w: %q", ErrMalformedTimestamp, s)
		}
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 {
			return 0, fmt.Errorf("%w: %q", ErrMalformedTimestamp, s)
		}
		if i > 0 && n > 59 {
			return 0, fmt.Errorf("%w: %q", ErrMalformedTimestamp, s)
		}
		total = total*60 + n
	}
	return total, nil
}

// SecondsOrZero is ParseTimestamp with malformed input mapped to 0.
func SecondsOrZero(s string) int {
	n, err := ParseTimestamp(s)
	if err != nil {
		return 0
	}
	return n
}

// FormatTimestamp renders d as "MM:SS", or "HH:MM:SS" when d is an hour or
// longer. Fractional seconds are truncated.
func FormatTimestamp(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int(d / time.Second)
	h := total / 3600
	m := (total % 3600) / 60
	sec := total % 60
	if h > 0 {
		return fmt.Sprintf("%02d:%02d:%02d", h, m, sec)
	}
	return fmt.Sprintf("%02d:%02d", m, sec)
}
