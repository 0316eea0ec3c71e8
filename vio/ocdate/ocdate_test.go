package ocdate

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseHTTPDate(t *testing.T) {
	got, err := ParseHTTPDate("Sun, 06 Nov 1994 08:49:37 GMT")
	require.NoError(t, err)
	want := time.Date(1994, time.November, 6, 8, 49, 37, 0, time.UTC)
	assert.True(t, got.Equal(want))
	assert.Equal(t, time.UTC, got.Location())
}

func TestParseHTTPDateBadMonth(t *testing.T) {
	_, err := ParseHTTPDate("Sun, 06 Xyz 1994 08:49:37 GMT")
	assert.ErrorIs(t, err, ErrCorruptMonth)
}

func TestParseHTTPDateMalformed(t *testing.T) {
	_, err := ParseHTTPDate("not a date")
	assert.Error(t, err)
}

func TestFormatHTTPDateRoundTrip(t *testing.T) {
	in := time.Date(2020, time.March, 15, 1, 2, 3, 0, time.FixedZone("PST", -8*3600))
	s := FormatHTTPDate(in)
	back, err := ParseHTTPDate(s)
	require.NoError(t, err)
	assert.True(t, in.Equal(back))
	assert.Equal(t, time.UTC, back.Location())
}
