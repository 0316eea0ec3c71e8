// Package api holds the WebDAV wire types the directory-listing and
// namespace operations decode PROPFIND/MOVE/PROPPATCH responses into,
// adapted from the teacher backend's own api/types.go to the four
// properties this VIO actually touches: getlastmodified,
// getcontentlength, resourcetype, getetag.
package api

import (
	"encoding/xml"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/yagamy4680/ocsync/internal/log"
	"github.com/yagamy4680/ocsync/vio/ocdate"
)

// Multistatus is the root element of a PROPFIND response body.
type Multistatus struct {
	Responses []Response `xml:"response"`
}

// Response is one <d:response> entry: the resource's href and its
// properties.
type Response struct {
	Href  string `xml:"href"`
	Props Prop   `xml:"propstat"`
}

// Prop collects the handful of DAV: properties this backend cares about
// out of the (possibly several) <d:propstat> blocks a server returns.
type Prop struct {
	Status   []string  `xml:"DAV: status"`
	Name     string    `xml:"DAV: prop>displayname,omitempty"`
	Type     *xml.Name `xml:"DAV: prop>resourcetype>collection,omitempty"`
	// Size is nil when the server's propstat omitted getcontentlength
	// entirely (the collection case) and non-nil-but-zero for a real
	// zero-byte file; collapsing that into a bare int64 would make the
	// two indistinguishable.
	Size     *int64    `xml:"DAV: prop>getcontentlength,omitempty"`
	Modified Time      `xml:"DAV: prop>getlastmodified,omitempty"`
	ETag     string    `xml:"DAV: prop>getetag,omitempty"`
}

var parseStatus = regexp.MustCompile(`^HTTP/[0-9.]+\s+(\d+)`)

// StatusOK reports whether the first status line in Props.Status is 2xx;
// a response with no status lines at all is assumed OK.
func (p *Prop) StatusOK() bool {
	if len(p.Status) == 0 {
		return true
	}
	match := parseStatus.FindStringSubmatch(p.Status[0])
	if len(match) < 2 {
		return false
	}
	code, err := strconv.Atoi(match[1])
	if err != nil {
		return false
	}
	return code >= 200 && code < 300
}

// StatusCode returns the numeric HTTP status of the first status line,
// or 0 if there were none.
func (p *Prop) StatusCode() int {
	if len(p.Status) == 0 {
		return 0
	}
	match := parseStatus.FindStringSubmatch(p.Status[0])
	if len(match) < 2 {
		return 0
	}
	code, _ := strconv.Atoi(match[1])
	return code
}

// UnquotedETag returns Props.ETag with a single pair of surrounding
// double quotes stripped, matching the cache invariant that stored ETags
// never carry wire-format quoting.
func (p *Prop) UnquotedETag() string {
	return Unquote(p.ETag)
}

// Unquote strips one pair of surrounding double quotes from an ETag, if
// present.
func Unquote(etag string) string {
	if len(etag) >= 2 && strings.HasPrefix(etag, `"`) && strings.HasSuffix(etag, `"`) {
		return etag[1 : len(etag)-1]
	}
	return etag
}

// Error describes a WebDAV error response body:
//
//	<d:error xmlns:d="DAV:" xmlns:s="http://sabredav.org/ns">
//	  <s:exception>Sabre\DAV\Exception\NotFound</s:exception>
//	  <s:message>File with name Photo could not be located</s:message>
//	</d:error>
type Error struct {
	Exception  string `xml:"exception,omitempty"`
	Message    string `xml:"message,omitempty"`
	Status     string `xml:"-"`
	StatusCode int    `xml:"-"`
}

func (e *Error) Error() string {
	var out []string
	if e.Message != "" {
		out = append(out, e.Message)
	}
	if e.Exception != "" {
		out = append(out, e.Exception)
	}
	if e.Status != "" {
		out = append(out, e.Status)
	}
	if len(out) == 0 {
		return "webdav error"
	}
	return strings.Join(out, ": ")
}

// Time marshals/unmarshals a DAV: getlastmodified value via the RFC 1123
// date codec, always in UTC.
type Time time.Time

// MarshalXML renders t using ocdate's RFC 1123 layout.
func (t *Time) MarshalXML(e *xml.Encoder, start xml.StartElement) error {
	return e.EncodeElement(ocdate.FormatHTTPDate(time.Time(*t)), start)
}

// UnmarshalXML parses t using ocdate.ParseHTTPDate; a date this VIO
// cannot parse logs and falls back to the Unix epoch rather than failing
// the whole PROPFIND, since one bad Modified value shouldn't hide every
// other resource in the listing.
func (t *Time) UnmarshalXML(d *xml.Decoder, start xml.StartElement) error {
	var v string
	if err := d.DecodeElement(&v, &start); err != nil {
		return err
	}
	if v == "" {
		*t = Time(time.Unix(0, 0).UTC())
		return nil
	}
	parsed, err := ocdate.ParseHTTPDate(v)
	if err != nil {
		log.Errorf(nil, "failed to parse modified date %q, using the epoch: %v", v, err)
		*t = Time(time.Unix(0, 0).UTC())
		return nil
	}
	*t = Time(parsed)
	return nil
}
