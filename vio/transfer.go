package vio

import (
	"compress/gzip"
	"io"
	"net/http"
	"strings"

	"github.com/pkg/errors"

	"github.com/yagamy4680/ocsync/internal/log"
	"github.com/yagamy4680/ocsync/lib/rest"
	"github.com/yagamy4680/ocsync/vio/api"
)

// OpenFlag mirrors the POSIX open(2) flags the host passes through Open.
type OpenFlag int

const (
	OCreat OpenFlag = 1 << iota
	OWronly
	ORdwr
)

// Handle is the per-open transfer handle returned by Open/Creat and
// consumed by SendFile/Close.
type Handle struct {
	ctx transferContext
}

// Open decides GET vs PUT from flags (§4.6): any of O_WRONLY, O_RDWR,
// O_CREAT makes it a PUT; for a PUT it stats the parent directory first,
// failing with ENoSuchEntity if the parent doesn't exist, using a
// one-entry "last known good parent" memo to short-circuit repeats.
func (s *Session) Open(decodedURL, escapedPath string, flags OpenFlag) (*Handle, error) {
	method := MethodGet
	if flags&(OCreat|OWronly|ORdwr) != 0 {
		method = MethodPut
	}

	if method == MethodPut {
		parent := parentPath(escapedPath)
		if parent != "" && parent != s.lastKnownDir {
			if _, err := s.Stat(parent); err != nil {
				return nil, err
			}
			s.lastKnownDir = parent
		}
	}

	return &Handle{ctx: transferContext{method: method, url: decodedURL, path: escapedPath}}, nil
}

// Creat is open(url, O_CREAT|O_WRONLY|O_TRUNC) per §4.6.
func (s *Session) Creat(decodedURL, escapedPath string) (*Handle, error) {
	return s.Open(decodedURL, escapedPath, OCreat|OWronly)
}

func parentPath(escapedPath string) string {
	trimmed := strings.TrimSuffix(escapedPath, "/")
	idx := strings.LastIndexByte(trimmed, '/')
	if idx < 0 {
		return ""
	}
	return trimmed[:idx+1]
}

// SendResult distinguishes a per-file soft failure (the session and
// caches survive, the host engine can skip the file) from success.
type SendResult struct {
	Soft       bool
	StatusCode int
}

// SendFile performs the PUT or GET transfer for h, reading from/writing
// to body depending on h.ctx.method. size is required for PUT (fstat'd
// by the host). A non-2xx HTTP response is a soft per-file failure per
// spec.md §7's policy: the call returns without tearing down the
// session. An error that never produced a response — a dropped or
// refused connection, a DNS failure, a handshake timeout — is fatal and
// is returned as a real error instead, since the session can't be
// trusted to serve the next file either.
func (s *Session) SendFile(h *Handle, body io.ReadWriter, size int64) (SendResult, error) {
	s.transferTokens.Get()
	defer s.transferTokens.Put()

	if h.ctx.method == MethodPut {
		return s.sendFilePut(h, body, size)
	}
	return s.sendFileGet(h, body)
}

func (s *Session) sendFilePut(h *Handle, src io.Reader, size int64) (SendResult, error) {
	s.notify(ProgressEvent{Kind: EventStartUpload, URL: h.ctx.url, Total: size})

	opts := rest.Opts{
		Method:        "PUT",
		Path:          h.ctx.path,
		Body:          src,
		NoResponse:    true,
		ContentLength: &size,
	}
	var resp *http.Response
	var err error
	err = s.pacer.CallNoRetry(func() (bool, error) {
		resp, err = s.client.Call(&opts)
		return s.shouldRetry(resp, err)
	})
	if err != nil {
		if resp != nil {
			// a response came back, so this is a per-file HTTP failure the
			// host can soft-skip, not a dead session.
			s.notify(ProgressEvent{Kind: EventError, URL: h.ctx.url, Total: int64(resp.StatusCode)})
			return SendResult{Soft: true, StatusCode: resp.StatusCode}, nil
		}
		s.notify(ProgressEvent{Kind: EventError, URL: h.ctx.url})
		return SendResult{}, errors.Wrap(classifyCallError(err), "put failed")
	}
	s.notify(ProgressEvent{Kind: EventFinishedUpload, URL: h.ctx.url, Total: size})
	return SendResult{}, nil
}

func (s *Session) sendFileGet(h *Handle, dst io.Writer) (SendResult, error) {
	s.notify(ProgressEvent{Kind: EventStartDownload, URL: h.ctx.url})

	opts := rest.Opts{Method: "GET", Path: h.ctx.path}
	var resp *http.Response
	var err error
	err = s.pacer.Call(func() (bool, error) {
		resp, err = s.client.Call(&opts)
		return s.shouldRetry(resp, err)
	})
	if err != nil {
		if resp != nil {
			s.notify(ProgressEvent{Kind: EventError, URL: h.ctx.url, Total: int64(resp.StatusCode)})
			return SendResult{Soft: true, StatusCode: resp.StatusCode}, nil
		}
		s.notify(ProgressEvent{Kind: EventError, URL: h.ctx.url})
		return SendResult{}, errors.Wrap(classifyCallError(err), "get failed")
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if etag := api.Unquote(resp.Header.Get("ETag")); etag != "" {
		s.etagCache = &etagCacheEntry{URL: h.ctx.url, ETag: etag}
	}

	reader := resp.Body
	var gz *gzip.Reader
	if strings.EqualFold(resp.Header.Get("Content-Encoding"), "gzip") {
		gz, err = gzip.NewReader(resp.Body)
		if err != nil {
			return SendResult{}, errors.Wrap(err, "sendfile: bad gzip stream")
		}
		defer func() {
			_ = gz.Close()
		}()
	}

	var n int64
	if gz != nil {
		n, err = io.Copy(dst, gz)
	} else {
		n, err = io.Copy(dst, reader)
	}
	if err != nil {
		log.Errorf(h.ctx.url, "short write copying response body (%d bytes): %v", n, err)
	}

	s.notify(ProgressEvent{Kind: EventFinishedDownload, URL: h.ctx.url, Total: n})
	return SendResult{}, nil
}

// Close destroys h; if it was a PUT, every cache is invalidated since a
// mutation just completed.
func (s *Session) Close(h *Handle) {
	if h.ctx.method == MethodPut {
		s.invalidateCaches()
	}
}

// notify forwards ev to the installed progress callback, if any.
func (s *Session) notify(ev ProgressEvent) {
	if s.progressCallback != nil {
		s.progressCallback(ev)
	}
}
