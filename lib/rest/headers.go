package rest

import (
	"net/http"
	"strconv"
	"strings"
)

// ParseSizeFromHeaders returns the size of a response body from its
// Content-Length or Content-Range header, or -1 if neither gives an
// unambiguous answer.
func ParseSizeFromHeaders(headers http.Header) int64 {
	if contentRange := headers.Get("Content-Range"); contentRange != "" {
		if size, ok := parseContentRange(contentRange); ok {
			return size
		}
		return -1
	}
	if contentLength := headers.Get("Content-Length"); contentLength != "" {
		size, err := strconv.ParseInt(contentLength, 10, 64)
		if err != nil {
			return -1
		}
		return size
	}
	return -1
}

// parseContentRange parses a "bytes start-end/total" or "bytes */total"
// Content-Range header value, returning the total size.
func parseContentRange(s string) (int64, bool) {
	unit, rest, ok := cut(s, " ")
	if !ok || unit != "bytes" {
		return 0, false
	}
	_, totalStr, ok := cut(rest, "/")
	if !ok || totalStr == "*" {
		return 0, false
	}
	total, err := strconv.ParseInt(totalStr, 10, 64)
	if err != nil {
		return 0, false
	}
	return total, true
}

func cut(s, sep string) (before, after string, found bool) {
	if i := strings.Index(s, sep); i >= 0 {
		return s[:i], s[i+len(sep):], true
	}
	return s, "", false
}
