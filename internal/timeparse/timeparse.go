package timeparse

import (
	"fmt"
	"strings"
	"time"
)

// layouts tried in order for inbound timestamp fields. Sources emit a mix
// of RFC3339 variants, bare ISO forms, and space-separated datetimes.
var layouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// Parse converts a source-provided timestamp string into a time.Time.
// Unqualified timestamps are taken as UTC. Returns the zero time and
// false when no layout matches.
func Parse(value string) (time.Time, bool) {
	s := strings.TrimSpace(value)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range layouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts.UTC(), true
		}
		if ts, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return ts, true
		}
	}
	return time.Time{}, false
}

// ParseSince resolves a "since" query parameter into an absolute UTC time.
// It accepts relative forms "Nh" (hours) and "Nd" (days) and absolute
// ISO-8601 timestamps. Malformed values are a client error.
func ParseSince(value string, now time.Time) (time.Time, error) {
	s := strings.TrimSpace(value)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty since value")
	}

	if n, unit, ok := splitRelative(s); ok {
		switch unit {
		case 'h':
			return now.Add(-time.Duration(n) * time.Hour).UTC(), nil
		case 'd':
			return now.Add(-time.Duration(n) * 24 * time.Hour).UTC(), nil
		}
	}

	if ts, ok := Parse(s); ok {
		return ts, nil
	}
	return time.Time{}, fmt.Errorf("invalid since format %q: use ISO8601 or a relative value like 2h / 1d", value)
}

func splitRelative(s string) (n int, unit byte, ok bool) {
	if len(s) < 2 {
		return 0, 0, false
	}
	unit = s[len(s)-1]
	if unit != 'h' && unit != 'd' {
		return 0, 0, false
	}
	for _, c := range s[:len(s)-1] {
		if c < '0' || c > '9' {
			return 0, 0, false
		}
		n = n*10 + int(c-'0')
	}
	return n, unit, true
}

// HourBucket truncates a time to the start of its hour and returns the
// UTC ISO-8601 key used by timeline maps.
func HourBucket(ts time.Time) string {
	return ts.UTC().Truncate(time.Hour).Format(time.RFC3339)
}
