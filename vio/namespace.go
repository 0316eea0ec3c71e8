package vio

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/yagamy4680/ocsync/lib/rest"
	"github.com/yagamy4680/ocsync/vio/ocerr"
)

func addTrailingSlash(p string) string {
	if p != "" && !strings.HasSuffix(p, "/") {
		return p + "/"
	}
	return p
}

// Mkdir issues MKCOL; HTTP 405 ("already exists") is remapped to a
// distinct already-exists errno rather than the generic permission
// mapping §4.2's table would otherwise give it.
func (s *Session) Mkdir(escapedPath string) error {
	dirPath := addTrailingSlash(escapedPath)
	opts := rest.Opts{Method: "MKCOL", Path: dirPath, NoResponse: true}
	var resp *http.Response
	var err error
	err = s.pacer.Call(func() (bool, error) {
		resp, err = s.client.Call(&opts)
		return s.shouldRetry(resp, err)
	})
	if ocErr, ok := err.(*ocerr.Error); ok {
		if ocErr.StatusCode == http.StatusMethodNotAllowed || ocErr.StatusCode == http.StatusNotAcceptable {
			return &ocerr.Error{Errno: ocerr.EAlreadyExists, Message: "collection already exists"}
		}
	}
	if err != nil {
		return errors.Wrap(classifyCallError(err), "mkdir failed")
	}
	s.invalidateCaches()
	return nil
}

// Rmdir deletes the collection at escapedPath.
func (s *Session) Rmdir(escapedPath string) error {
	return s.deletePath(addTrailingSlash(escapedPath))
}

// Unlink deletes the resource at escapedPath. Per spec.md §4.7/§9 open
// question 1, this always reports success to the host regardless of the
// transport result — kept deliberately (SPEC_FULL.md §9 decision 1) — but
// the underlying failure, if any, is still captured into the session's
// last-error slot so a caller that wants to know can call LastError.
func (s *Session) Unlink(escapedPath string) error {
	_ = s.deletePath(escapedPath)
	return nil
}

func (s *Session) deletePath(escapedPath string) error {
	opts := rest.Opts{Method: "DELETE", Path: escapedPath, NoResponse: true}
	var resp *http.Response
	var err error
	err = s.pacer.Call(func() (bool, error) {
		resp, err = s.client.Call(&opts)
		return s.shouldRetry(resp, err)
	})
	if err != nil {
		return s.setLastError(errors.Wrap(classifyCallError(err), "delete failed"))
	}
	s.invalidateCaches()
	return nil
}

// Rename issues MOVE oldPath -> newPath with Overwrite: T, matching
// §4.7's "MOVE old→new with overwrite=true" — neon's ne_move(..., 1, ...)
// maps a true overwrite flag onto the WebDAV "Overwrite: T" header.
func (s *Session) Rename(oldEscapedPath, destinationURL string) error {
	opts := rest.Opts{
		Method:     "MOVE",
		Path:       oldEscapedPath,
		NoResponse: true,
		ExtraHeaders: map[string]string{
			"Destination": destinationURL,
			"Overwrite":   "T",
		},
	}
	var resp *http.Response
	var err error
	err = s.pacer.Call(func() (bool, error) {
		resp, err = s.client.Call(&opts)
		return s.shouldRetry(resp, err)
	})
	if err != nil {
		return errors.Wrap(classifyCallError(err), "rename failed")
	}
	s.invalidateCaches()
	return nil
}

// Utimes sets DAV:lastmodified via PROPPATCH to mtime adjusted by the
// current time delta (the inverse of Stat's subtraction), so the value
// the server stores matches what a subsequent Stat will translate back
// to mtime. Caches are only cleared on success, per spec.md §7.
func (s *Session) Utimes(escapedPath string, mtime time.Time) error {
	adjusted := mtime.Add(s.delta.Current())

	body := fmt.Sprintf(`<?xml version="1.0" encoding="utf-8" ?>
<D:propertyupdate xmlns:D="DAV:">
  <D:set>
    <D:prop>
      <D:lastmodified>%d</D:lastmodified>
    </D:prop>
  </D:set>
</D:propertyupdate>`, adjusted.Unix())

	opts := rest.Opts{
		Method:     "PROPPATCH",
		Path:       escapedPath,
		Body:       strings.NewReader(body),
		NoResponse: true,
	}
	var resp *http.Response
	var err error
	err = s.pacer.Call(func() (bool, error) {
		resp, err = s.client.Call(&opts)
		return s.shouldRetry(resp, err)
	})
	if err != nil {
		return errors.Wrap(classifyCallError(err), "utimes failed")
	}
	s.invalidateCaches()
	return nil
}

// Chmod is a no-op: the wire protocol carries no mode bits.
func (s *Session) Chmod(string, int) error { return nil }

// Chown is a no-op: the wire protocol carries no owner/group.
func (s *Session) Chown(string, int, int) error { return nil }
