package vio

import (
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/yagamy4680/ocsync/internal/log"
	"github.com/yagamy4680/ocsync/lib/rest"
	"github.com/yagamy4680/ocsync/vio/api"
	"github.com/yagamy4680/ocsync/vio/ocdate"
	"github.com/yagamy4680/ocsync/vio/ocerr"
)

// wantedContentType is the only content-type fetchResourceList accepts
// for a PROPFIND response; anything else reports ocerr.EWrongContent.
const wantedContentType = "application/xml; charset=utf-8"

// clockJumpLogThreshold is the §4.5 "a change exceeding 5 seconds ...
// is logged but not treated as failure" bound.
const clockJumpLogThreshold = 5 * time.Second

// fetchResourceList implements §4.5's algorithm: reuse the listing cache
// on a target match, else issue PROPFIND at the given depth, parse the
// multistatus body into Resources, and update the time-delta sample from
// the response's Date header.
func (s *Session) fetchResourceList(target string, depth int) (*listingContext, error) {
	if s.listingCache != nil && s.listingCache.target == target {
		return s.listingCache.ref(), nil
	}

	opts := rest.Opts{
		Method: "PROPFIND",
		Path:   target,
		ExtraHeaders: map[string]string{
			"Depth": depthHeader(depth),
		},
	}
	var result api.Multistatus
	var resp *http.Response
	var err error
	err = s.pacer.Call(func() (bool, error) {
		resp, err = s.client.CallXML(&opts, nil, &result)
		return s.shouldRetry(resp, err)
	})
	if apiErr, ok := err.(*ocerr.Error); ok && apiErr.Errno == ocerr.ENoSuchEntity {
		return nil, err
	}
	if err != nil {
		return nil, s.setLastError(errors.Wrap(classifyCallError(err), "fetch resource list failed"))
	}

	if resp != nil {
		if ct := resp.Header.Get("Content-Type"); ct != wantedContentType {
			return nil, s.setLastError(ocerr.WrongContentType(ct))
		}
	}

	lc := newListingContext(target)
	for i := range result.Responses {
		item := &result.Responses[i]
		if !item.Props.StatusOK() {
			log.Debugf(target, "ignoring item with bad status %v", item.Props.Status)
			continue
		}
		res := resourceFromResponse(item)
		// prepend, matching the source's singly-linked-list push
		lc.resources = append([]Resource{res}, lc.resources...)
	}

	if resp != nil {
		s.observeServerDate(resp.Header.Get("Date"))
	}

	if s.listingCache != nil {
		s.listingCache.release()
	}
	s.listingCache = lc
	return lc.ref(), nil
}

func depthHeader(depth int) string {
	if depth <= 0 {
		return "0"
	}
	return "1"
}

// resourceFromResponse translates one PROPFIND <d:response> into a
// Resource, the Go equivalent of the results() callback.
func resourceFromResponse(item *api.Response) Resource {
	decodedPath := item.Href
	if unescaped, err := url.PathUnescape(decodedPath); err == nil {
		decodedPath = unescaped
	}
	kind := KindRegular
	if item.Props.Type != nil && item.Props.Size == nil {
		kind = KindCollection
	}
	var size int64
	if item.Props.Size != nil {
		size = *item.Props.Size
	}
	return Resource{
		Path:     decodedPath,
		Name:     path.Base(strings.TrimSuffix(decodedPath, "/")),
		Kind:     kind,
		Size:     size,
		Modified: time.Time(item.Props.Modified),
		ETag:     item.Props.UnquotedETag(),
	}
}

// observeServerDate parses the PROPFIND response's Date header and
// records the server-minus-local clock skew sample, the Go equivalent
// of fetch_resource_list's time-delta bookkeeping.
func (s *Session) observeServerDate(dateHeader string) {
	if dateHeader == "" {
		log.Errorf(nil, "unable to parse server time: missing Date header")
		return
	}
	serverTime, err := ocdate.ParseHTTPDate(dateHeader)
	if err != nil {
		log.Errorf(nil, "unable to parse server time %q: %v", dateHeader, err)
		return
	}
	sample := serverTime.Sub(time.Now().UTC())
	s.delta.observe(sample)
	if s.delta.changedByMoreThan(clockJumpLogThreshold) {
		log.Logf(nil, "WRN: the time delta changed more than %v", clockJumpLogThreshold)
	}
}

// Stat returns the file-stat shape for target, consulting the stat cache
// first and falling back to a depth-1 listing otherwise.
func (s *Session) Stat(target string) (*statCacheEntry, error) {
	if s.statCache != nil && s.statCache.Name == path.Base(strings.TrimSuffix(target, "/")) {
		return s.statCache, nil
	}

	lc, err := s.fetchResourceList(target, 1)
	if err != nil {
		return nil, err
	}
	defer s.releaseListing(lc)

	decodedTarget := strings.TrimSuffix(target, "/")
	for i := range lc.resources {
		r := &lc.resources[i]
		if strings.TrimSuffix(r.Path, "/") == decodedTarget {
			entry := statEntryFromResource(r, s.delta.Current())
			s.statCache = entry
			return entry, nil
		}
	}
	return nil, &ocerr.Error{Errno: ocerr.ENoSuchEntity, Message: "resource not found in listing"}
}

func statEntryFromResource(r *Resource, delta time.Duration) *statCacheEntry {
	return &statCacheEntry{
		Name:     r.Name,
		Kind:     r.Kind,
		Size:     r.Size,
		Modified: r.Modified.Add(-delta),
		ETag:     r.ETag,
	}
}

// Dir is an open directory handle returned by OpenDir.
type Dir struct {
	lc *listingContext
}

// OpenDir performs a depth-1 listing and positions the cursor at its
// head.
func (s *Session) OpenDir(target string) (*Dir, error) {
	lc, err := s.fetchResourceList(target, 1)
	if err != nil {
		return nil, err
	}
	lc.cursor = 0
	return &Dir{lc: lc}, nil
}

// ReadDir advances the cursor, skipping the "." self-entry (the listing
// target itself), populating the stat cache as it goes. Returns
// (nil, nil) at end of directory.
func (s *Session) ReadDir(target string, d *Dir) (*Resource, error) {
	decodedTarget := strings.TrimSuffix(target, "/")
	for d.lc.cursor < len(d.lc.resources) {
		r := &d.lc.resources[d.lc.cursor]
		d.lc.cursor++
		if strings.TrimSuffix(r.Path, "/") == decodedTarget {
			continue // "." entry
		}
		s.statCache = statEntryFromResource(r, s.delta.Current())
		return r, nil
	}
	return nil, nil
}

// CloseDir drops the directory's reference on the listing cache.
func (s *Session) CloseDir(d *Dir) {
	s.releaseListing(d.lc)
}

// releaseListing drops one reference to lc; if it was the cache's
// current entry and refcount reaches zero, the cache slot is cleared.
func (s *Session) releaseListing(lc *listingContext) {
	if lc == nil {
		return
	}
	drained := lc.release()
	if drained && s.listingCache == lc {
		s.listingCache = nil
	}
}

// invalidateCaches clears all three single-entry caches and the
// parent-directory memo, the Go equivalent of clean_caches(), called
// whenever a mutation completes.
func (s *Session) invalidateCaches() {
	if s.listingCache != nil {
		s.listingCache.release()
		s.listingCache = nil
	}
	s.statCache = nil
	s.etagCache = nil
	s.lastKnownDir = ""
}
