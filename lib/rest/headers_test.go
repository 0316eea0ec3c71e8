package rest

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseSizeFromHeaders(t *testing.T) {
	for _, tc := range []struct {
		name string
		h    http.Header
		want int64
	}{
		{"empty", http.Header{}, -1},
		{"content-length", http.Header{"Content-Length": {"1234"}}, 1234},
		{"content-range total", http.Header{"Content-Range": {"bytes 0-99/200"}}, 200},
		{"content-range unknown total", http.Header{"Content-Range": {"bytes 0-99/*"}}, -1},
		{"content-range wins over content-length", http.Header{
			"Content-Range":  {"bytes 0-99/200"},
			"Content-Length": {"100"},
		}, 200},
		{"bad content-length", http.Header{"Content-Length": {"not-a-number"}}, -1},
	} {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ParseSizeFromHeaders(tc.h))
		})
	}
}
