// Package vio implements the remote virtual I/O backend: a filesystem-
// shaped capability set (stat, opendir/readdir/closedir, open/sendfile/
// close, mkdir/rmdir/rename/unlink, utimes, file-id lookup, capability
// query, property injection) speaking WebDAV against an ownCloud-style
// server, grounded on the teacher backend's Fs/Object split and on
// csync_owncloud.c's session/cache/transfer structures.
package vio

import (
	"sync"
	"time"
)

// Kind distinguishes a Resource's WebDAV resourcetype: a sum type in
// place of the source's integer enum + later string comparison against
// "<DAV:collection>".
type Kind int

const (
	KindRegular Kind = iota
	KindCollection
	KindReference
	KindError
)

// Resource is a server entity discovered by PROPFIND. Owned by exactly
// one listingContext; destroyed with it.
type Resource struct {
	Path     string // absolute, URL-decoded path
	Name     string // basename
	Kind     Kind
	Size     int64     // bytes, meaningless for collections
	Modified time.Time // UTC, as reported by the server
	ETag     string    // quote-stripped content identifier
}

// listingContext is the result of a PROPFIND for a single target path.
// Its dual role as "live call result" and "cache entry" is reconciled
// with a reference count: readers take a strong reference, cache
// replacement drops the previous one, and the context is freed when the
// count reaches zero.
type listingContext struct {
	target    string // normalized escaped target path
	resources []Resource
	cursor    int // next index readdir yields
	refcount  int
}

func newListingContext(target string) *listingContext {
	return &listingContext{target: target, refcount: 1}
}

func (lc *listingContext) ref() *listingContext {
	lc.refcount++
	return lc
}

// release drops one reference; true is returned once it's the caller's
// responsibility to stop using lc (refcount reached zero).
func (lc *listingContext) release() bool {
	lc.refcount--
	return lc.refcount <= 0
}

// statCacheEntry is the single-entry stat cache populated by readdir and
// consulted by stat.
type statCacheEntry struct {
	Name     string
	Kind     Kind
	Size     int64
	Modified time.Time
	ETag     string
}

// etagCacheEntry is the single-entry ETag cache populated when a GET
// response yields an ETag header.
type etagCacheEntry struct {
	URL  string // decoded
	ETag string // quote-stripped
}

// timeDelta tracks server-clock skew the way dav_session_s does: a
// running sum/count for diagnostics, plus the most recently observed
// sample, which is what mtime translation actually uses (SPEC_FULL.md
// §9 decision 3: most-recent sample, not the running mean).
type timeDelta struct {
	mu       sync.Mutex
	sum      time.Duration
	count    int
	previous time.Duration
	current  time.Duration
}

func (d *timeDelta) observe(sample time.Duration) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.previous = d.current
	d.current = sample
	d.sum += sample
	d.count++
}

// Current returns the most recent server-minus-local clock skew sample;
// this is what stat/utimes translation uses.
func (d *timeDelta) Current() time.Duration {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.current
}

// Mean returns the running-average skew, exposed as a diagnostic-only
// value; translation never uses it (see SPEC_FULL.md §9 decision 3).
func (d *timeDelta) Mean() time.Duration {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.count == 0 {
		return 0
	}
	return d.sum / time.Duration(d.count)
}

// changedByMoreThan reports whether the jump from the previous sample to
// the current one exceeds the given bound; used only to decide whether
// to log, per spec.md's "logged, not treated as failure" policy.
func (d *timeDelta) changedByMoreThan(bound time.Duration) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.count < 2 {
		return false
	}
	diff := d.current - d.previous
	if diff < 0 {
		diff = -diff
	}
	return diff > bound
}

// Method is the kind of transfer a transferContext performs.
type Method int

const (
	MethodGet Method = iota
	MethodPut
)

// transferContext is the per-open handle created by Open/Creat and
// consumed by SendFile/Close. The host-owned file descriptor referenced
// by callers is never closed here.
type transferContext struct {
	method Method
	url    string // decoded URL, used for progress reporting
	path   string // escaped server-relative path
}

// Capabilities is the fixed capability record reported to the host; the
// protocol carries no mode/owner bits, so unix_extensions is always 0.
type Capabilities struct {
	AtomicCopy        bool
	DoPostCopyStat    bool
	TimeSyncRequired  bool
	UnixExtensions    int
	PropagateOnFD     bool
}

// DefaultCapabilities is the fixed record spec.md §4.9 describes.
func DefaultCapabilities() Capabilities {
	return Capabilities{
		AtomicCopy:     true,
		DoPostCopyStat: false,
		PropagateOnFD:  true,
	}
}

// ProxyKind enumerates the proxy configurations §4.4 supports.
type ProxyKind int

const (
	NoProxy ProxyKind = iota
	DefaultProxy
	HTTPProxy
	HTTPCachingProxy
	FTPCachingProxy
	Socks5Proxy
)

// ProxyConfig is the session's proxy configuration, set via SetProperty.
type ProxyConfig struct {
	Kind     ProxyKind
	Host     string
	Port     int
	User     string
	Password string
}

// defaultProxyPort is used whenever a caching/default proxy's port isn't
// specified, matching the source's hardcoded 8080 fallback.
const defaultProxyPort = 8080
