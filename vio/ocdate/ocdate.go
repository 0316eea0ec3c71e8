// Package ocdate parses RFC 1123 HTTP-date strings into UTC instants
// independent of the host timezone, the Go equivalent of
// csync_owncloud.c's oc_httpdate_parse (itself borrowed from neon's
// ne_httpdate_parse, but forced through a UTC-only timegm instead of
// mktime).
package ocdate

import (
	"fmt"
	"time"
)

var shortMonths = [12]string{
	"Jan", "Feb", "Mar", "Apr", "May", "Jun",
	"Jul", "Aug", "Sep", "Oct", "Nov", "Dec",
}

// ErrCorruptMonth is returned when the three-letter month abbreviation
// doesn't match any of the twelve English short names, the Go analogue
// of the source falling through its month-table loop with n==12 and
// letting the OS's mktime reject it.
var ErrCorruptMonth = fmt.Errorf("ocdate: corrupt or unrecognized month")

// Layout is the RFC 1123 format this package parses:
// "%3s, %02d %3s %4d %02d:%02d:%02d GMT", e.g. "Sun, 06 Nov 1994 08:49:37 GMT".
const Layout = "Mon, 02 Jan 2006 15:04:05 GMT"

// ParseHTTPDate parses an RFC 1123 HTTP-date string, always returning a
// time.Time in UTC regardless of the host's local timezone.
func ParseHTTPDate(s string) (time.Time, error) {
	var wkday, mon string
	var day, year, hour, min, sec int
	n, err := fmt.Sscanf(s, "%3s, %02d %3s %4d %02d:%02d:%02d GMT",
		&wkday, &day, &mon, &year, &hour, &min, &sec)
	if err != nil || n != 7 {
		return time.Time{}, fmt.Errorf("ocdate: malformed HTTP date %q: %w", s, err)
	}
	monthIndex := -1
	for i, m := range shortMonths {
		if m == mon {
			monthIndex = i
			break
		}
	}
	if monthIndex < 0 {
		return time.Time{}, fmt.Errorf("%w: %q", ErrCorruptMonth, mon)
	}
	return time.Date(year, time.Month(monthIndex+1), day, hour, min, sec, 0, time.UTC), nil
}

// FormatHTTPDate renders t (converted to UTC first) in the same RFC 1123
// shape ParseHTTPDate accepts, so round-tripping through both functions
// is the identity on the second.
func FormatHTTPDate(t time.Time) string {
	return t.UTC().Format(Layout)
}
