package vio

import (
	"io"
	"time"

	"github.com/yagamy4680/ocsync/vio/ocerr"
	"github.com/yagamy4680/ocsync/vio/ocurl"
)

// MethodTable is the fixed capability vector a host sync engine binds
// against, the Go shape of vio_module_init's returned dav_plugin_t.
// Every field is a bound method value closing over the one Session the
// table was built for, so the host never threads a userdata pointer
// through the calls itself.
type MethodTable struct {
	GetCapabilities func() Capabilities
	GetFileID       func(decodedURL, escapedPath string) (string, error)

	Open  func(decodedURL, escapedPath string, flags OpenFlag) (*Handle, error)
	Creat func(decodedURL, escapedPath string) (*Handle, error)
	Close func(h *Handle)

	// Read/Write exist only to complete the table; the protocol has no
	// streaming read/write primitive separate from sendfile, so both are
	// no-ops that report zero bytes moved (SPEC_FULL.md §9 decision 4).
	Read  func(h *Handle, buf []byte) (int, error)
	Write func(h *Handle, buf []byte) (int, error)

	SendFile func(h *Handle, body io.ReadWriter, size int64) (SendResult, error)
	Lseek    func(h *Handle, offset int64, whence int) (int64, error)

	OpenDir  func(target string) (*Dir, error)
	CloseDir func(d *Dir)
	ReadDir  func(target string, d *Dir) (*Resource, error)

	Mkdir  func(escapedPath string) error
	Rmdir  func(escapedPath string) error
	Stat   func(target string) (*statCacheEntry, error)
	Rename func(oldEscapedPath, destinationURL string) error
	Unlink func(escapedPath string) error
	Chmod  func(escapedPath string, mode int) error
	Chown  func(escapedPath string, uid, gid int) error
	Utimes func(escapedPath string, mtime time.Time) error

	SetProperty    func(key string, value any) error
	GetErrorString func() string
}

// Init is the Go shape of vio_module_init: it parses methodName as an
// endpoint URI, builds a Session bound to the given auth callback and
// userdata, and returns its bound capability vector. args carries the
// host's module arguments; this backend reads none of them. The returned
// MethodTable's functions establish the connection lazily, on first
// use, matching dav_connect's own lazy-connect contract.
func Init(methodName string, args string, cb AuthCallback, userdata any) (*MethodTable, error) {
	if _, err := ocurl.Parse(methodName); err != nil {
		return nil, ocerr.New(ocerr.EInvalidArgument, "vio: invalid endpoint %q: %v", methodName, err)
	}

	s := NewSession()
	s.SetAuthCallback(cb)
	s.SetUserdata(userdata)

	connect := func() error { return s.Connect(methodName) }

	return &MethodTable{
		GetCapabilities: s.Capabilities,
		GetFileID: func(decodedURL, escapedPath string) (string, error) {
			if err := connect(); err != nil {
				return "", err
			}
			return s.FileID(decodedURL, escapedPath)
		},
		Open: func(decodedURL, escapedPath string, flags OpenFlag) (*Handle, error) {
			if err := connect(); err != nil {
				return nil, err
			}
			return s.Open(decodedURL, escapedPath, flags)
		},
		Creat: func(decodedURL, escapedPath string) (*Handle, error) {
			if err := connect(); err != nil {
				return nil, err
			}
			return s.Creat(decodedURL, escapedPath)
		},
		Close: s.Close,
		Read: func(*Handle, []byte) (int, error) {
			return 0, nil
		},
		Write: func(*Handle, []byte) (int, error) {
			return 0, nil
		},
		SendFile: func(h *Handle, body io.ReadWriter, size int64) (SendResult, error) {
			return s.SendFile(h, body, size)
		},
		Lseek: func(*Handle, int64, int) (int64, error) {
			return 0, ocerr.New(ocerr.EInvalidArgument, "lseek unsupported by this transport")
		},
		OpenDir: func(target string) (*Dir, error) {
			if err := connect(); err != nil {
				return nil, err
			}
			return s.OpenDir(target)
		},
		CloseDir: s.CloseDir,
		ReadDir: func(target string, d *Dir) (*Resource, error) {
			return s.ReadDir(target, d)
		},
		Mkdir: func(escapedPath string) error {
			if err := connect(); err != nil {
				return err
			}
			return s.Mkdir(escapedPath)
		},
		Rmdir: func(escapedPath string) error {
			if err := connect(); err != nil {
				return err
			}
			return s.Rmdir(escapedPath)
		},
		Stat: func(target string) (*statCacheEntry, error) {
			if err := connect(); err != nil {
				return nil, err
			}
			return s.Stat(target)
		},
		Rename: func(oldEscapedPath, destinationURL string) error {
			if err := connect(); err != nil {
				return err
			}
			return s.Rename(oldEscapedPath, destinationURL)
		},
		Unlink: func(escapedPath string) error {
			if err := connect(); err != nil {
				return err
			}
			return s.Unlink(escapedPath)
		},
		Chmod:  s.Chmod,
		Chown:  s.Chown,
		Utimes: func(escapedPath string, mtime time.Time) error {
			if err := connect(); err != nil {
				return err
			}
			return s.Utimes(escapedPath, mtime)
		},
		SetProperty:    s.SetProperty,
		GetErrorString: s.LastError,
	}, nil
}

// Shutdown releases the method table's session. The protocol's
// connections are all plain HTTP keep-alive, so there is nothing to
// flush beyond letting the transport's idle connections close, which
// http.Client.CloseIdleConnections is not called for here deliberately:
// a host that re-Inits against the same endpoint soon after benefits
// from connection reuse across the gap.
func Shutdown(mt *MethodTable) {
	*mt = MethodTable{}
}
