package vio

import (
	"bytes"
	"compress/gzip"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yagamy4680/ocsync/vio/api"
)

// newTestServer builds a minimal WebDAV stand-in covering exactly the
// paths the tests below exercise: a directory listing, a stat target, a
// fresh PUT, a PUT that fails with 507, a plain GET, a gzip-encoded
// GET, and MKCOL, MOVE and DELETE targets. serverDate, if non-empty, is sent as the Date header on PROPFIND
// responses so clock-skew can be exercised deterministically.
func newTestServer(t *testing.T, serverDate string) *httptest.Server {
	mux := http.NewServeMux()

	mux.HandleFunc("/dav/dir/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != "PROPFIND" {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if serverDate != "" {
			w.Header().Set("Date", serverDate)
		}
		w.Header().Set("Content-Type", "application/xml; charset=utf-8")
		w.WriteHeader(http.StatusMultiStatus)
		fmt.Fprint(w, `<?xml version="1.0"?>
<d:multistatus xmlns:d="DAV:">
  <d:response>
    <d:href>/dav/dir/</d:href>
    <d:propstat>
      <d:prop><d:resourcetype><d:collection/></d:resourcetype></d:prop>
      <d:status>HTTP/1.1 200 OK</d:status>
    </d:propstat>
  </d:response>
  <d:response>
    <d:href>/dav/dir/file.txt</d:href>
    <d:propstat>
      <d:prop>
        <d:getcontentlength>42</d:getcontentlength>
        <d:getlastmodified>Sun, 06 Nov 1994 08:49:37 GMT</d:getlastmodified>
        <d:getetag>&quot;abc123&quot;</d:getetag>
      </d:prop>
      <d:status>HTTP/1.1 200 OK</d:status>
    </d:propstat>
  </d:response>
</d:multistatus>`)
	})

	mux.HandleFunc("/dav/dir/file.txt", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != "PROPFIND" {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if serverDate != "" {
			w.Header().Set("Date", serverDate)
		}
		w.Header().Set("Content-Type", "application/xml; charset=utf-8")
		w.WriteHeader(http.StatusMultiStatus)
		fmt.Fprint(w, `<?xml version="1.0"?>
<d:multistatus xmlns:d="DAV:">
  <d:response>
    <d:href>/dav/dir/file.txt</d:href>
    <d:propstat>
      <d:prop>
        <d:getcontentlength>42</d:getcontentlength>
        <d:getlastmodified>Sun, 06 Nov 1994 08:49:37 GMT</d:getlastmodified>
        <d:getetag>&quot;abc123&quot;</d:getetag>
      </d:prop>
      <d:status>HTTP/1.1 200 OK</d:status>
    </d:propstat>
  </d:response>
</d:multistatus>`)
	})

	mux.HandleFunc("/dav/newfile.txt", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case "PUT":
			body, _ := io.ReadAll(r.Body)
			assert.Equal(t, "hello world", string(body))
			w.WriteHeader(http.StatusCreated)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	})

	mux.HandleFunc("/dav/failfile.txt", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusInsufficientStorage)
		fmt.Fprint(w, "Insufficient Storage")
	})

	mux.HandleFunc("/dav/plain.txt", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("ETag", `"plain-etag"`)
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, "plain content")
	})

	mux.HandleFunc("/dav/gzipped.txt", func(w http.ResponseWriter, r *http.Request) {
		var buf bytes.Buffer
		gz := gzip.NewWriter(&buf)
		_, _ = gz.Write([]byte("gzip content"))
		_ = gz.Close()
		w.Header().Set("Content-Encoding", "gzip")
		w.Header().Set("ETag", `"gzip-etag"`)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(buf.Bytes())
	})

	mux.HandleFunc("/dav/newdir/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != "MKCOL" {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		w.WriteHeader(http.StatusCreated)
	})

	mux.HandleFunc("/dav/old.txt", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != "MOVE" {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		assert.Equal(t, "T", r.Header.Get("Overwrite"))
		assert.NotEmpty(t, r.Header.Get("Destination"))
		w.WriteHeader(http.StatusCreated)
	})

	mux.HandleFunc("/dav/deleteme.txt", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != "DELETE" {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})

	return httptest.NewServer(mux)
}

func connectedSession(t *testing.T, srv *httptest.Server) *Session {
	t.Helper()
	s := NewSession()
	rawURL := "owncloud://" + strings.TrimPrefix(srv.URL, "http://")
	require.NoError(t, s.Connect(rawURL))
	return s
}

func TestDirectoryListing(t *testing.T) {
	srv := newTestServer(t, "")
	defer srv.Close()
	s := connectedSession(t, srv)

	dir, err := s.OpenDir("/dav/dir/")
	require.NoError(t, err)
	defer s.CloseDir(dir)

	var names []string
	for {
		res, err := s.ReadDir("/dav/dir/", dir)
		require.NoError(t, err)
		if res == nil {
			break
		}
		names = append(names, res.Name)
	}
	assert.Equal(t, []string{"file.txt"}, names)
}

func TestStat(t *testing.T) {
	srv := newTestServer(t, "")
	defer srv.Close()
	s := connectedSession(t, srv)

	entry, err := s.Stat("/dav/dir/file.txt")
	require.NoError(t, err)
	assert.Equal(t, "file.txt", entry.Name)
	assert.Equal(t, KindRegular, entry.Kind)
	assert.Equal(t, int64(42), entry.Size)
	assert.Equal(t, "abc123", entry.ETag)
}

func TestClockSkewAdjustsStatModified(t *testing.T) {
	// server clock is one hour ahead of local time
	future := time.Now().UTC().Add(time.Hour)
	srv := newTestServer(t, future.Format(http.TimeFormat))
	defer srv.Close()
	s := connectedSession(t, srv)

	entry, err := s.Stat("/dav/dir/file.txt")
	require.NoError(t, err)

	// the resource's raw getlastmodified is a fixed 1994 date; Stat must
	// have subtracted the observed server/local skew from it
	rawModified := time.Date(1994, time.November, 6, 8, 49, 37, 0, time.UTC)
	assert.True(t, entry.Modified.Before(rawModified))
	assert.WithinDuration(t, rawModified.Add(-time.Hour), entry.Modified, 2*time.Second)
}

func TestFreshUpload(t *testing.T) {
	srv := newTestServer(t, "")
	defer srv.Close()
	s := connectedSession(t, srv)

	// newfile.txt's parent dir ("/dav/") isn't stat'able by this fake
	// server, so bypass Open's parent-stat memo by calling PUT directly
	// through SendFile with a handle built by hand.
	h := &Handle{ctx: transferContext{method: MethodPut, url: "/dav/newfile.txt", path: "/dav/newfile.txt"}}
	body := bytes.NewBufferString("hello world")
	result, err := s.SendFile(h, body, int64(body.Len()))
	require.NoError(t, err)
	assert.False(t, result.Soft)
}

func TestSoftFailureOnPut(t *testing.T) {
	srv := newTestServer(t, "")
	defer srv.Close()
	s := connectedSession(t, srv)

	h := &Handle{ctx: transferContext{method: MethodPut, url: "/dav/failfile.txt", path: "/dav/failfile.txt"}}
	body := bytes.NewBufferString("doesn't matter")
	result, err := s.SendFile(h, body, int64(body.Len()))
	require.NoError(t, err)
	assert.True(t, result.Soft)
	assert.Equal(t, http.StatusInsufficientStorage, result.StatusCode)
}

func TestFatalTransportErrorOnPut(t *testing.T) {
	srv := newTestServer(t, "")
	s := connectedSession(t, srv)
	srv.Close() // the connection is now refused: no HTTP response will ever come back

	h := &Handle{ctx: transferContext{method: MethodPut, url: "/dav/newfile.txt", path: "/dav/newfile.txt"}}
	body := bytes.NewBufferString("hello world")
	result, err := s.SendFile(h, body, int64(body.Len()))
	assert.Error(t, err, "a connection failure must propagate as a real error, not a soft per-file one")
	assert.False(t, result.Soft)
}

func TestPlainGet(t *testing.T) {
	srv := newTestServer(t, "")
	defer srv.Close()
	s := connectedSession(t, srv)

	h := &Handle{ctx: transferContext{method: MethodGet, url: "/dav/plain.txt", path: "/dav/plain.txt"}}
	var buf bytes.Buffer
	result, err := s.SendFile(h, &buf, 0)
	require.NoError(t, err)
	assert.False(t, result.Soft)
	assert.Equal(t, "plain content", buf.String())
	assert.Equal(t, "plain-etag", s.etagCache.ETag)
}

func TestGzipTransparentGet(t *testing.T) {
	srv := newTestServer(t, "")
	defer srv.Close()
	s := connectedSession(t, srv)

	h := &Handle{ctx: transferContext{method: MethodGet, url: "/dav/gzipped.txt", path: "/dav/gzipped.txt"}}
	var buf bytes.Buffer
	result, err := s.SendFile(h, &buf, 0)
	require.NoError(t, err)
	assert.False(t, result.Soft)
	assert.Equal(t, "gzip content", buf.String())
}

func TestMkdirAndRenameAndUnlink(t *testing.T) {
	srv := newTestServer(t, "")
	defer srv.Close()
	s := connectedSession(t, srv)

	require.NoError(t, s.Mkdir("/dav/newdir"))
	require.NoError(t, s.Rename("/dav/old.txt", "http://example.com/dav/new.txt"))
	require.NoError(t, s.Unlink("/dav/deleteme.txt"))
}

func TestFileIDFromEtagCache(t *testing.T) {
	srv := newTestServer(t, "")
	defer srv.Close()
	s := connectedSession(t, srv)

	h := &Handle{ctx: transferContext{method: MethodGet, url: "/dav/plain.txt", path: "/dav/plain.txt"}}
	var buf bytes.Buffer
	_, err := s.SendFile(h, &buf, 0)
	require.NoError(t, err)

	id, err := s.FileID("/dav/plain.txt", "/dav/plain.txt")
	require.NoError(t, err)
	assert.Equal(t, "plain-etag", id)
}

// TestProxyIsWired stands in a forward proxy and configures the session to
// use it via the same SetProperty keys a host would set; it asserts the
// request actually reaches the proxy rather than example.com directly,
// proving the proxy config flows through to the transport.
func TestProxyIsWired(t *testing.T) {
	var gotRequestURI string
	proxy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotRequestURI = r.RequestURI
		w.Header().Set("Content-Type", "application/xml; charset=utf-8")
		w.WriteHeader(http.StatusMultiStatus)
		fmt.Fprint(w, `<?xml version="1.0"?><d:multistatus xmlns:d="DAV:"></d:multistatus>`)
	}))
	defer proxy.Close()

	proxyURL, err := url.Parse(proxy.URL)
	require.NoError(t, err)
	proxyPort, err := strconv.Atoi(proxyURL.Port())
	require.NoError(t, err)

	s := NewSession()
	require.NoError(t, s.SetProperty("proxy_type", "HttpProxy"))
	require.NoError(t, s.SetProperty("proxy_host", proxyURL.Hostname()))
	require.NoError(t, s.SetProperty("proxy_port", proxyPort))
	require.NoError(t, s.Connect("owncloud://example.com/dav"))

	// the response carries no matching entry, so this fails with
	// ENoSuchEntity; all that matters here is where the request landed.
	_, _ = s.Stat("/dav/somefile.txt")
	assert.Contains(t, gotRequestURI, "example.com", "request should have been forwarded through the proxy in absolute-URI form")
}

// TestProxyAuthRetriesThenSucceeds simulates a proxy that challenges the
// first couple of requests with 407 before accepting the connection,
// the multi-round case resolveProxyAuth exists for: the stat should
// still succeed once the proxy stops challenging.
func TestProxyAuthRetriesThenSucceeds(t *testing.T) {
	var mu sync.Mutex
	attempts := 0
	proxy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		attempts++
		n := attempts
		mu.Unlock()
		if n <= 2 {
			w.WriteHeader(http.StatusProxyAuthRequired)
			return
		}
		w.Header().Set("Content-Type", "application/xml; charset=utf-8")
		w.WriteHeader(http.StatusMultiStatus)
		fmt.Fprint(w, `<?xml version="1.0"?><d:multistatus xmlns:d="DAV:"></d:multistatus>`)
	}))
	defer proxy.Close()

	proxyURL, err := url.Parse(proxy.URL)
	require.NoError(t, err)
	proxyPort, err := strconv.Atoi(proxyURL.Port())
	require.NoError(t, err)

	s := NewSession()
	require.NoError(t, s.SetProperty("proxy_type", "HttpProxy"))
	require.NoError(t, s.SetProperty("proxy_host", proxyURL.Hostname()))
	require.NoError(t, s.SetProperty("proxy_port", proxyPort))
	require.NoError(t, s.SetProperty("proxy_user", "carol"))
	require.NoError(t, s.SetProperty("proxy_pwd", "secret"))
	require.NoError(t, s.Connect("owncloud://example.com/dav"))

	_, _ = s.Stat("/dav/somefile.txt") // ENoSuchEntity: the body has no matching entry
	mu.Lock()
	defer mu.Unlock()
	assert.GreaterOrEqual(t, attempts, 3, "the third attempt should have gone through after two challenges")
}

// TestProxyAuthGivesUpAfterLimit asserts resolveProxyAuth stops retrying
// once proxyAuthAttemptLimit is exceeded, rather than retrying forever
// against a proxy that will never accept the stored credentials.
func TestProxyAuthGivesUpAfterLimit(t *testing.T) {
	var mu sync.Mutex
	attempts := 0
	proxy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		attempts++
		mu.Unlock()
		w.WriteHeader(http.StatusProxyAuthRequired)
	}))
	defer proxy.Close()

	proxyURL, err := url.Parse(proxy.URL)
	require.NoError(t, err)
	proxyPort, err := strconv.Atoi(proxyURL.Port())
	require.NoError(t, err)

	s := NewSession()
	require.NoError(t, s.SetProperty("proxy_type", "HttpProxy"))
	require.NoError(t, s.SetProperty("proxy_host", proxyURL.Hostname()))
	require.NoError(t, s.SetProperty("proxy_port", proxyPort))
	require.NoError(t, s.Connect("owncloud://example.com/dav"))

	_, err = s.Stat("/dav/somefile.txt")
	require.Error(t, err)
	mu.Lock()
	defer mu.Unlock()
	assert.LessOrEqual(t, attempts, proxyAuthAttemptLimit+1, "must stop retrying once the attempt limit is exceeded")
}

// TestUnsupportedProxyKindIsIgnored exercises the "recognized but
// unsupported" proxy kinds: they must not be wired into the transport.
func TestUnsupportedProxyKindIsIgnored(t *testing.T) {
	srv := newTestServer(t, "")
	defer srv.Close()

	s := NewSession()
	require.NoError(t, s.SetProperty("proxy_type", "Socks5Proxy"))
	require.NoError(t, s.SetProperty("proxy_host", "127.0.0.1"))
	require.NoError(t, s.SetProperty("proxy_port", 1080))

	rawURL := "owncloud://" + strings.TrimPrefix(srv.URL, "http://")
	require.NoError(t, s.Connect(rawURL))
	assert.Equal(t, NoProxy, s.proxy.Kind)

	_, err := s.Stat("/dav/dir/file.txt")
	require.NoError(t, err, "request must still reach the real server directly")
}

// TestZeroByteFileIsNotACollection guards the getcontentlength-absent vs
// getcontentlength-present-and-zero distinction directly against
// resourceFromResponse: a propstat reporting getcontentlength as 0 is a
// real empty file, never a collection, even if some other signal on the
// entry looked collection-like.
func TestZeroByteFileIsNotACollection(t *testing.T) {
	zero := int64(0)
	fortyTwo := int64(42)

	regular := resourceFromResponse(&api.Response{
		Href: "/dav/empty.txt",
		Props: api.Prop{
			Size: &zero,
		},
	})
	assert.Equal(t, KindRegular, regular.Kind)
	assert.EqualValues(t, 0, regular.Size)

	collection := resourceFromResponse(&api.Response{
		Href: "/dav/subdir/",
		Props: api.Prop{
			Type: &xml.Name{Local: "collection"},
		},
	})
	assert.Equal(t, KindCollection, collection.Kind)

	notACollection := resourceFromResponse(&api.Response{
		Href: "/dav/subdir2/",
		Props: api.Prop{
			Type: &xml.Name{Local: "collection"},
			Size: &fortyTwo,
		},
	})
	assert.Equal(t, KindRegular, notACollection.Kind, "a reported content-length means it's not a collection regardless of resourcetype")
}
