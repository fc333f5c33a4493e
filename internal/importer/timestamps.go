package importer

import (
	"strconv"
	"strings"
	"time"
)

var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	"01/02/2006 15:04",
	"01/02/2006",
}

const maxFutureSkew = 24 * time.Hour

// parseTimestamp accepts the layouts above plus unix seconds or milliseconds.
// Values more than a day ahead of now are clamped to now and reported as clamped.
func parseTimestamp(raw string, now time.Time) (t time.Time, ok bool, clamped bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false, false
	}
	if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
		if n <= 0 {
			return time.Time{}, false, false
		}
		if len(raw) >= 12 {
			t = time.UnixMilli(n)
		} else {
			t = time.Unix(n, 0)
		}
	} else {
		for _, layout := range timestampLayouts {
			if parsed, err := time.ParseInLocation(layout, raw, time.UTC); err == nil {
				t = parsed
				break
			}
		}
		if t.IsZero() {
			return time.Time{}, false, false
		}
	}
	if t.After(now.Add(maxFutureSkew)) {
		return now, true, true
	}
	return t, true, false
}
