// Package ocsync is the public lifecycle facade a sync engine imports:
// it owns the connection to a remote WebDAV endpoint and the local
// config store backing it, named in spec.md §1 as an external
// collaborator. The engine itself — tree walking, state database,
// update/reconcile/propagate — is out of scope; see ErrNotImplemented.
package ocsync

import (
	"context"

	"github.com/pkg/errors"

	"github.com/yagamy4680/ocsync/config"
	"github.com/yagamy4680/ocsync/lib/pacer"
	"github.com/yagamy4680/ocsync/vio"
)

// ErrNotImplemented is returned by every method this package names only
// as an external interface point, not a capability it provides.
var ErrNotImplemented = errors.New("ocsync: not implemented by this module; belongs to the sync engine")

// Option configures a Sync at construction time.
type Option func(*Sync)

// WithCredentials sets the remote's basic-auth credentials.
func WithCredentials(user, password string) Option {
	return func(s *Sync) { s.session.SetCredentials(user, password) }
}

// WithAuthCallback installs the host prompt used for missing
// credentials and SSL-trust decisions.
func WithAuthCallback(cb vio.AuthCallback) Option {
	return func(s *Sync) { s.session.SetAuthCallback(cb) }
}

// WithProgressCallback installs the transfer-progress sink.
func WithProgressCallback(cb vio.ProgressCallback) Option {
	return func(s *Sync) { s.session.SetProgressCallback(cb) }
}

// WithConfigPath points the config store at a file on disk; without
// this option, config changes are kept in memory only.
func WithConfigPath(path string) Option {
	return func(s *Sync) { s.configPath = path }
}

// WithMaxConnections caps the number of transfers this Sync's session
// will run concurrently, for hosts that drive SendFile from a worker
// pool rather than one file at a time.
func WithMaxConnections(n int) Option {
	return func(s *Sync) { s.session.SetTransferTokens(pacer.NewTokenDispenser(n)) }
}

// Sync is the facade a host binds its sync engine's remote side to. It
// is not itself a sync engine: it wires a vio.Session and a
// config.Store together and exposes them for one to be built on top of.
type Sync struct {
	localRoot  string
	remoteURL  string
	configPath string

	session *vio.Session
	store   *config.Store
}

// New builds a Sync bound to localRoot/remoteURL; Init performs the
// actual connection and config load.
func New(localRoot, remoteURL string, opts ...Option) (*Sync, error) {
	if localRoot == "" {
		return nil, errors.New("ocsync: localRoot must not be empty")
	}
	if remoteURL == "" {
		return nil, errors.New("ocsync: remoteURL must not be empty")
	}
	s := &Sync{
		localRoot: localRoot,
		remoteURL: remoteURL,
		session:   vio.NewSession(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Init loads the config store (if WithConfigPath was given) and
// connects the session. Repeated calls are safe: Session.Connect is
// idempotent and the store is only loaded once.
func (s *Sync) Init(ctx context.Context) error {
	if s.store == nil {
		store, err := config.New(s.configPath)
		if err != nil {
			return errors.Wrap(err, "ocsync: failed to load config")
		}
		s.store = store
	}
	if err := s.session.Connect(s.remoteURL); err != nil {
		return errors.Wrap(err, "ocsync: failed to connect")
	}
	return nil
}

// Destroy releases the session; the config store, being file-backed,
// needs no explicit teardown.
func (s *Sync) Destroy(ctx context.Context) error {
	s.session = nil
	return nil
}

// Session exposes the underlying vio.Session for a host engine to
// drive directly.
func (s *Sync) Session() *vio.Session { return s.session }

// ConfigStore exposes the underlying config.Store.
func (s *Sync) ConfigStore() *config.Store { return s.store }

// Update is named only as the external interface point a real sync
// engine would implement; this module stops at the VIO backend.
func (s *Sync) Update(ctx context.Context) error { return ErrNotImplemented }

// Reconcile is named only as the external interface point a real sync
// engine would implement; this module stops at the VIO backend.
func (s *Sync) Reconcile(ctx context.Context) error { return ErrNotImplemented }

// Propagate is named only as the external interface point a real sync
// engine would implement; this module stops at the VIO backend.
func (s *Sync) Propagate(ctx context.Context) error { return ErrNotImplemented }
