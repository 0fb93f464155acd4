package risk

import (
	"math"
	"time"

	"github.com/araddon/dateparse"
)

// ParseTime reads the timestamps found in procurement releases. Values without a zone
// are taken as UTC.
func ParseTime(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	t, err := dateparse.ParseIn(s, time.UTC)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// WholeDays is the number of complete days from a to b, truncated toward zero.
func WholeDays(a, b time.Time) int {
	return int(math.Trunc(b.Sub(a).Hours() / 24))
}

// CalendarDate is the date part of t in its own zone.
func CalendarDate(t time.Time) string {
	return t.Format("2006-01-02")
}
