package types

import (
	"strings"
	"time"
)

// now is swapped in tests.
var now = time.Now

// dateLayouts are tried in order for string dates.
var dateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"01/02/2006",
	time.RFC1123Z,
	time.RFC1123,
}

// ParseDate normalizes the date shapes that arrive from forms, JSON documents
// and store timestamps into a time.Time. Anything it cannot read, including
// nil and the zero time, becomes the current time.
func ParseDate(v any) time.Time {
	if t, ok := parseDate(v); ok {
		return t
	}
	return now()
}

// ParseOptionalDate is ParseDate for optional fields: empty input yields nil
// instead of the current time.
func ParseOptionalDate(v any) *time.Time {
	switch d := v.(type) {
	case nil:
		return nil
	case string:
		if strings.TrimSpace(d) == "" {
			return nil
		}
	case *time.Time:
		if d == nil || d.IsZero() {
			return nil
		}
	case time.Time:
		if d.IsZero() {
			return nil
		}
	}
	t := ParseDate(v)
	return &t
}

func parseDate(v any) (time.Time, bool) {
	switch d := v.(type) {
	case nil:
		return time.Time{}, false
	case time.Time:
		return d, !d.IsZero()
	case *time.Time:
		if d == nil {
			return time.Time{}, false
		}
		return *d, !d.IsZero()
	case string:
		return parseDateString(d)
	case float64:
		return fromUnixMillis(int64(d))
	case int64:
		return fromUnixMillis(d)
	case int:
		return fromUnixMillis(int64(d))
	case map[string]any:
		return parseTimestampMap(d)
	case interface{ AsTime() time.Time }:
		return d.AsTime(), true
	case interface{ ToDate() time.Time }:
		return d.ToDate(), true
	}
	return time.Time{}, false
}

func parseDateString(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// parseTimestampMap reads {"seconds", "nanoseconds"} style timestamps, as
// document stores serialize them, including the underscore-prefixed variant.
func parseTimestampMap(m map[string]any) (time.Time, bool) {
	secs, ok := number(m["seconds"])
	if !ok {
		secs, ok = number(m["_seconds"])
	}
	if !ok {
		return time.Time{}, false
	}
	nanos, ok := number(m["nanoseconds"])
	if !ok {
		nanos, _ = number(m["_nanoseconds"])
	}
	return time.Unix(int64(secs), int64(nanos)), true
}

func fromUnixMillis(ms int64) (time.Time, bool) {
	if ms <= 0 {
		return time.Time{}, false
	}
	return time.UnixMilli(ms), true
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int64:
		return float64(n), true
	case int:
		return float64(n), true
	}
	return 0, false
}
