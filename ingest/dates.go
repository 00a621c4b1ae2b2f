package ingest

import (
	"time"

	"go.uber.org/zap"
)

// dateLayouts is the fixed ordered list of accepted date formats. The
// first layout that parses wins.
var dateLayouts = []string{
	"2006-01-02T15:04:05.999999999Z07:00", // ISO-8601 with fraction
	"2006-01-02T15:04:05Z07:00",           // ISO-8601 without fraction
	"2006-01-02 15:04:05",
	time.RFC1123Z, // RSS: Mon, 02 Jan 2006 15:04:05 -0700
	time.RFC1123,
	"02 Jan 2006",
	"2006-01-02",
}

// ParseDate normalizes an origin-supplied date string on a best-effort
// basis. The second return value reports whether any layout matched;
// unparseable input falls back to the current time.
func ParseDate(value string, logger *zap.SugaredLogger) (time.Time, bool) {
	for _, layout := range dateLayouts {
		if ts, err := time.Parse(layout, value); err == nil {
			return ts, true
		}
	}
	logger.Warnw("Unrecognized date format, falling back to now", "value", value)
	return time.Now().UTC(), false
}

// normalizePublished converts an origin date string into the canonical
// RFC 3339 form carried on RawRecord. Empty input also becomes "now":
// a record without a date is treated as just published.
func normalizePublished(value string, logger *zap.SugaredLogger) string {
	if value == "" {
		return time.Now().UTC().Format(time.RFC3339)
	}
	ts, _ := ParseDate(value, logger)
	return ts.Format(time.RFC3339)
}
