package scorm

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrBadDuration indicates a duration string outside the version's syntax.
var ErrBadDuration = errors.New("malformed duration")

// FormatTimespan12 renders a duration as a SCORM 1.2 CMITimespan
// ("HH:MM:SS"). Hours grow past two digits unbounded; fractional seconds
// truncate. Negative durations clamp to zero.
func FormatTimespan12(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int64(d / time.Second)
	hours := total / 3600
	minutes := (total % 3600) / 60
	seconds := total % 60
	return fmt.Sprintf("%02d:%02d:%02d", hours, minutes, seconds)
}

// FormatTimeinterval2004 renders a duration as a SCORM 2004 timeinterval
// ("PT1H5M30S"). Zero components are omitted; a zero duration renders
// "PT0S", never an empty string. Non-integral seconds keep up to two
// decimals. Negative durations clamp to zero.
func FormatTimeinterval2004(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int64(d / time.Second)
	hours := total / 3600
	minutes := (total % 3600) / 60
	seconds := total % 60
	centis := int64(d%time.Second) / int64(10*time.Millisecond)

	var b strings.Builder
	b.WriteString("PT")
	if hours > 0 {
		fmt.Fprintf(&b, "%dH", hours)
	}
	if minutes > 0 {
		fmt.Fprintf(&b, "%dM", minutes)
	}
	switch {
	case centis > 0:
		s := strconv.FormatFloat(float64(seconds)+float64(centis)/100, 'f', 2, 64)
		s = strings.TrimRight(s, "0")
		s = strings.TrimRight(s, ".")
		b.WriteString(s)
		b.WriteString("S")
	case seconds > 0 || (hours == 0 && minutes == 0):
		fmt.Fprintf(&b, "%dS", seconds)
	}
	return b.String()
}

// ParseTimespan12 reads a CMITimespan back into a duration. The seconds
// field may carry a decimal fraction ("HH:MM:SS.SS").
func ParseTimespan12(s string) (time.Duration, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return 0, fmt.Errorf("%w: %q", ErrBadDuration, s)
	}
	hours, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil || hours < 0 {
		return 0, fmt.Errorf("%w: %q", ErrBadDuration, s)
	}
	minutes, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil || minutes < 0 || minutes > 59 {
		return 0, fmt.Errorf("%w: %q", ErrBadDuration, s)
	}
	seconds, err := strconv.ParseFloat(parts[2], 64)
	if err != nil || seconds < 0 || seconds >= 60 {
		return 0, fmt.Errorf("%w: %q", ErrBadDuration, s)
	}
	d := time.Duration(hours)*time.Hour +
		time.Duration(minutes)*time.Minute +
		time.Duration(seconds*float64(time.Second))
	return d, nil
}

// ParseTimeinterval2004 reads a 2004 timeinterval back into a duration.
// The full ISO-8601 grammar with a date part ("P1DT2H") is accepted since
// content packages emit it.
func ParseTimeinterval2004(s string) (time.Duration, error) {
	if len(s) < 2 || s[0] != 'P' {
		return 0, fmt.Errorf("%w: %q", ErrBadDuration, s)
	}
	rest := s[1:]
	datePart := rest
	timePart := ""
	if i := strings.IndexByte(rest, 'T'); i >= 0 {
		datePart = rest[:i]
		timePart = rest[i+1:]
		if timePart == "" {
			return 0, fmt.Errorf("%w: %q", ErrBadDuration, s)
		}
	}

	var d time.Duration
	var err error
	if datePart != "" {
		d, err = parseIntervalFields(datePart, map[byte]time.Duration{
			'Y': 365 * 24 * time.Hour,
			'M': 30 * 24 * time.Hour,
			'D': 24 * time.Hour,
		})
		if err != nil {
			return 0, fmt.Errorf("%w: %q", ErrBadDuration, s)
		}
	}
	if timePart != "" {
		t, err := parseIntervalFields(timePart, map[byte]time.Duration{
			'H': time.Hour,
			'M': time.Minute,
			'S': time.Second,
		})
		if err != nil {
			return 0, fmt.Errorf("%w: %q", ErrBadDuration, s)
		}
		d += t
	}
	if datePart == "" && timePart == "" {
		return 0, fmt.Errorf("%w: %q", ErrBadDuration, s)
	}
	return d, nil
}

// parseIntervalFields consumes "<number><designator>" pairs in order,
// e.g. "1H5M30S" with units {H, M, S}.
func parseIntervalFields(s string, units map[byte]time.Duration) (time.Duration, error) {
	var d time.Duration
	start := 0
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c >= '0' && c <= '9') || c == '.' {
			continue
		}
		unit, ok := units[c]
		if !ok || i == start {
			return 0, ErrBadDuration
		}
		n, err := strconv.ParseFloat(s[start:i], 64)
		if err != nil || n < 0 {
			return 0, ErrBadDuration
		}
		d += time.Duration(n * float64(unit))
		start = i + 1
	}
	if start != len(s) {
		return 0, ErrBadDuration
	}
	return d, nil
}
