package vio

import (
	"context"
	"crypto/sha256"
	"crypto/tls"
	"crypto/x509"
	stderrors "errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/yagamy4680/ocsync/internal/log"
	"github.com/yagamy4680/ocsync/lib/fserrors"
	"github.com/yagamy4680/ocsync/lib/fshttp"
	"github.com/yagamy4680/ocsync/lib/pacer"
	"github.com/yagamy4680/ocsync/lib/rest"
	"github.com/yagamy4680/ocsync/vio/ocerr"
	"github.com/yagamy4680/ocsync/vio/ocurl"
)

// libraryVersion is embedded in the User-Agent string, the Go analogue
// of csyncoC/<LIBCSYNC_VERSION>.
const libraryVersion = "1.0.0"

const defaultReadTimeout = 30 * time.Second

// AuthCallback mirrors csync_auth_callback's shape: the host is prompted
// with a message, echo reports whether the reply may be shown as typed
// (true for the username and the SSL-accept prompt, false for the
// password), and the returned string is the host's reply.
type AuthCallback func(prompt string, echo bool) (reply string, err error)

// ProgressEventKind enumerates what a ProgressCallback reports; a tagged
// struct in place of the source's overloaded integer/pointer-smuggling
// arguments (SPEC_FULL.md §9 / spec.md's "Progress events" design note).
type ProgressEventKind int

const (
	EventProgress ProgressEventKind = iota
	EventStartUpload
	EventFinishedUpload
	EventStartDownload
	EventFinishedDownload
	EventError
)

// ProgressEvent carries everything a progress callback needs for one
// notification.
type ProgressEvent struct {
	Kind ProgressEventKind
	URL  string // decoded URL of the transfer this event concerns
	Done int64  // bytes transferred so far (EventProgress)
	Total int64 // total bytes expected (EventProgress), or HTTP status (EventError)
}

// ProgressCallback receives transfer lifecycle notifications.
type ProgressCallback func(ev ProgressEvent)

// Session owns the HTTP connection context, credentials, proxy
// configuration, SSL-trust callback, session-cookie capture/replay,
// and the three caches. It is initialized lazily on first I/O and torn
// down by Shutdown; it is NOT safe for concurrent use — the contract is
// single-caller, matching spec.md §5.
type Session struct {
	endpoint *ocurl.Endpoint
	client   *rest.Client
	pacer    *pacer.Pacer

	connected bool

	user     string
	password string
	proxy    ProxyConfig

	readTimeout time.Duration
	userAgent   string

	authCallback     AuthCallback
	progressCallback ProgressCallback
	hostUserdata     any

	sessionCookie string
	lastError     string

	delta timeDelta

	// caches
	listingCache *listingContext
	statCache    *statCacheEntry
	etagCache    *etagCacheEntry
	lastKnownDir string // one-entry "parent dir known to exist" memo

	transferTokens *pacer.TokenDispenser

	proxyAuthAttempts int
}

// NewSession creates an unconnected Session; Connect does the actual
// work. Session methods do not connect on their own: Connect must have
// succeeded first, which the MethodTable built by Init ensures by calling
// it before each network operation.
func NewSession() *Session {
	return &Session{
		readTimeout: defaultReadTimeout,
		userAgent:   fmt.Sprintf("csyncoC/%s", libraryVersion),
	}
}

// SetTransferTokens bounds the number of PUT/GET calls this session will
// have in flight at once; nil (the default) leaves transfers unbounded.
// Shared across multiple Sessions hitting the same account, this plays
// the role the teacher's per-backend uploadToken dispenser does: one
// pool, handed to every worker goroutine, capping total connections
// regardless of how many Sessions are driving them.
func (s *Session) SetTransferTokens(td *pacer.TokenDispenser) { s.transferTokens = td }

// SetAuthCallback installs the host's credential/SSL-accept prompt.
func (s *Session) SetAuthCallback(cb AuthCallback) { s.authCallback = cb }

// SetProgressCallback installs the host's transfer progress sink.
func (s *Session) SetProgressCallback(cb ProgressCallback) { s.progressCallback = cb }

// SetUserdata stores the opaque host context pointer handed back on
// every callback invocation.
func (s *Session) SetUserdata(u any) { s.hostUserdata = u }

// SetCredentials sets the user/password Connect authenticates with.
func (s *Session) SetCredentials(user, password string) {
	s.user = user
	s.password = password
}

// LastError returns the most recent error message captured into the
// session's error slot, retrievable via the capability table's error
// getter (get_error_string).
func (s *Session) LastError() string { return s.lastError }

// TimeDeltaMean returns the running-average server/local clock skew, a
// diagnostic-only value distinct from the sample used for translation
// (see SPEC_FULL.md §9 decision 3).
func (s *Session) TimeDeltaMean() time.Duration { return s.delta.Mean() }

func (s *Session) setLastError(err error) error {
	if err == nil {
		s.lastError = ""
		return nil
	}
	s.lastError = err.Error()
	return err
}

// Connect establishes the session if not already connected; repeated
// calls are idempotent, matching dav_connect's early return when
// _connected is set.
func (s *Session) Connect(rawURL string) error {
	if s.connected {
		return nil
	}

	endpoint, err := ocurl.Parse(rawURL)
	if err != nil {
		return s.setLastError(errors.Wrap(err, "connect: invalid uri"))
	}
	s.endpoint = endpoint
	if endpoint.User != "" {
		s.user = endpoint.User
	}
	if endpoint.Password != "" {
		s.password = endpoint.Password
	}
	s.resolveServerAuth()

	cfg := fshttp.DefaultConfig()
	cfg.UserAgent = s.userAgent
	cfg.Timeout = s.readTimeout

	transport := fshttp.NewTransport(cfg)

	// normalize/validate whatever SetProperty("proxy_*", ...) accumulated
	// field by field before it's used to build the transport.
	s.SetProxy(s.proxy)
	if s.proxy.Kind != NoProxy {
		transport.Proxy = http.ProxyURL(s.proxyURL())
	}

	if endpoint.SSL {
		// InsecureSkipVerify disables Go's built-in chain check so our
		// own VerifyPeerCertificate always runs and gets to decide,
		// the Go equivalent of neon invoking verify_sslcert only when
		// its own verification turned up failures.
		transport.TLSClientConfig = &tls.Config{
			InsecureSkipVerify:    true,
			VerifyPeerCertificate: s.verifySSLCert,
		}
	}
	httpClient := &http.Client{
		Transport: &cookieRoundTripper{session: s, next: transport},
		Timeout:   cfg.Timeout,
	}

	s.client = rest.NewClient(httpClient).
		SetRoot(endpoint.BaseURL().String()).
		SetUserPass(s.user, s.password)
	s.client.SetErrorHandler(s.errorHandler)

	s.pacer = pacer.New().SetMinSleep(10 * time.Millisecond).SetMaxSleep(2 * time.Second).SetDecayConstant(2)

	if s.proxy.Kind != NoProxy {
		s.client.SetHeader("Proxy-Connection", "Keep-Alive")
	}

	s.connected = true
	return nil
}

// errorHandler is the rest.Client ErrorHandler: it builds an *ocerr.Error
// and remembers the message in the session's last-error slot, the
// Go equivalent of set_error_message plus set_errno_from_http_errcode.
func (s *Session) errorHandler(resp *http.Response) error {
	body, _ := rest.ReadBody(resp)
	message := strings.TrimSpace(string(body))
	if message == "" {
		message = resp.Status
	}
	s.lastError = message
	return ocerr.FromHTTPStatusError(resp.StatusCode, message)
}

// shouldRetry is the Go equivalent of webdav.go's shouldRetry: pace
// retries on both transport-level failures and a short list of
// retriable HTTP statuses.
func (s *Session) shouldRetry(resp *http.Response, err error) (bool, error) {
	if resp != nil && resp.StatusCode == http.StatusProxyAuthRequired {
		return s.resolveProxyAuth(), err
	}
	s.proxyAuthAttempts = 0
	retriableHTTP := []int{http.StatusTooManyRequests, http.StatusServiceUnavailable}
	return fserrors.ShouldRetry(err) || fserrors.ShouldRetryHTTP(resp, retriableHTTP), err
}

// resolveProxyAuth is the Go equivalent of neon's ne_proxy_auth callback:
// the stored proxy credentials (already wired into every request via
// proxyURL's userinfo) don't change between attempts, only the decision
// to keep retrying does. Like ne_proxy_auth's "(attempt < 3) ? 0 : -1",
// this reports success for up to proxyAuthAttemptLimit attempts so a
// multi-round scheme such as NTLM gets the handshake rounds it needs,
// then gives up so a genuinely wrong password doesn't retry forever.
func (s *Session) resolveProxyAuth() bool {
	s.proxyAuthAttempts++
	return s.proxyAuthAttempts <= proxyAuthAttemptLimit
}

// classifyCallError normalizes an error returned by s.client.Call/CallXML
// into the session's (errno, message) taxonomy. An error already built by
// s.errorHandler (i.e. one that came with an HTTP response) is an
// *ocerr.Error already and is returned unchanged; anything else arrived
// before a response did (DNS failure, refused/reset connection, TLS
// handshake failure, timeout, ...) and is routed through
// ocerr.FromTransport instead, the Go equivalent of
// set_errno_from_neon_errcode running on every call site, not just the
// HTTP-status path.
func classifyCallError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := errors.Cause(err).(*ocerr.Error); ok {
		return err
	}
	return ocerr.FromTransport(transportCodeOf(err), err.Error())
}

// transportCodeOf inspects err's chain for the standard library's own
// network-failure shapes, the Go equivalent of inspecting neon's NE_*
// result code.
func transportCodeOf(err error) ocerr.TransportCode {
	var dnsErr *net.DNSError
	if stderrors.As(err, &dnsErr) {
		return ocerr.TransportLookupFail
	}
	if stderrors.Is(err, context.DeadlineExceeded) {
		return ocerr.TransportTimeout
	}
	var netErr net.Error
	if stderrors.As(err, &netErr) && netErr.Timeout() {
		return ocerr.TransportTimeout
	}
	var opErr *net.OpError
	if stderrors.As(err, &opErr) {
		if opErr.Op == "dial" {
			return ocerr.TransportConnectFail
		}
	}
	return ocerr.TransportGenericError
}

// --- proxy configuration -----------------------------------------------

// SetProxy configures the proxy per the fixed table in spec.md §4.4.
func (s *Session) SetProxy(cfg ProxyConfig) {
	switch cfg.Kind {
	case NoProxy:
		log.Debugf(s, "no proxy configured")
	case DefaultProxy, HTTPProxy, HTTPCachingProxy:
		if cfg.Host == "" {
			log.Logf(s, "proxy requested but no proxy host defined")
			s.proxy = ProxyConfig{Kind: NoProxy}
			return
		}
		if cfg.Port == 0 {
			cfg.Port = defaultProxyPort
		}
		s.proxy = cfg
	case FTPCachingProxy, Socks5Proxy:
		log.Logf(s, "unsupported proxy kind %d", cfg.Kind)
		s.proxy = ProxyConfig{Kind: NoProxy}
	}
}

// proxyURL builds the fixed proxy URL http.ProxyURL needs from the
// session's (already validated) proxy configuration.
func (s *Session) proxyURL() *url.URL {
	u := &url.URL{
		Scheme: "http",
		Host:   fmt.Sprintf("%s:%d", s.proxy.Host, s.proxy.Port),
	}
	if s.proxy.User != "" {
		u.User = url.UserPassword(s.proxy.User, s.proxy.Password)
	}
	return u
}

// --- cookie capture / replay --------------------------------------------

// cookieRoundTripper is the Go equivalent of neon's
// ne_hook_post_headers/ne_hook_create_request pair: it replays the
// captured session cookie (and a Proxy-Connection header under any
// proxy) on request construction, and captures a fresh one from
// Set-Cookie on 2xx/401 responses.
type cookieRoundTripper struct {
	session *Session
	next    http.RoundTripper
}

func (c *cookieRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	if cookie := c.session.sessionCookie; cookie != "" {
		req.Header.Set("Cookie", cookie)
	}
	if c.session.proxy.Kind != NoProxy {
		req.Header.Set("Proxy-Connection", "Keep-Alive")
	}

	resp, err := c.next.RoundTrip(req)
	if err != nil {
		return resp, err
	}

	if (resp.StatusCode >= 200 && resp.StatusCode < 300) || resp.StatusCode == http.StatusUnauthorized {
		if setCookie := resp.Header.Get("Set-Cookie"); setCookie != "" {
			if key := parseSessionKey(setCookie); key != "" {
				c.session.sessionCookie = key
			}
		}
	}
	return resp, nil
}

// parseSessionKey implements post_request_hook's Set-Cookie walk
// byte-for-byte: it splits on "; " to find the end of a cookie's
// key=value pair, and on ", " to move to the next Set-Cookie entry in a
// combined header. This is a specific server convention, not a general
// cookie parser — it will misparse a cookie whose Expires= attribute
// itself contains a comma (SPEC_FULL.md §9 decision 2, kept deliberately
// per spec.md's own open question).
func parseSessionKey(setCookieHeader string) string {
	var key string
	sc := setCookieHeader
	for sc != "" {
		semi := strings.IndexByte(sc, ';')
		comma := strings.IndexByte(sc, ',')
		switch {
		case semi < 0 && comma < 0:
			return key
		case semi >= 0 && (comma < 0 || semi < comma):
			key = sc[:semi]
			rest := sc[semi+1:]
			nextComma := strings.IndexByte(rest, ',')
			if nextComma < 0 {
				return key
			}
			sc = rest[nextComma+2:]
		default:
			if comma+1 < len(sc) && sc[comma+1] == ' ' {
				sc = sc[comma+2:]
			} else {
				return key
			}
		}
	}
	return key
}

// --- SSL verification ---------------------------------------------------

// verifySSLCert is the tls.Config.VerifyPeerCertificate callback
// installed when InsecureSkipVerify is set: it builds its own trust
// chain, formats a human-readable warning enumerating every failure the
// same way verify_sslcert/addSSLWarning did, and defers the
// accept/reject decision to the host auth callback. Acceptance requires
// the first byte of the reply to be 'y' or 'Y'.
func (s *Session) verifySSLCert(rawCerts [][]byte, _ [][]*x509.Certificate) error {
	if len(rawCerts) == 0 {
		return errors.New("verify_sslcert: no certificate presented")
	}
	certs := make([]*x509.Certificate, 0, len(rawCerts))
	for _, raw := range rawCerts {
		cert, err := x509.ParseCertificate(raw)
		if err != nil {
			return errors.Wrap(err, "verify_sslcert: unparseable certificate")
		}
		certs = append(certs, cert)
	}
	leaf := certs[0]

	pool := x509.NewCertPool()
	for _, cert := range certs[1:] {
		pool.AddCert(cert)
	}
	opts := x509.VerifyOptions{
		DNSName:       s.endpoint.Host,
		Intermediates: pool,
	}
	_, verifyErr := leaf.Verify(opts)
	if verifyErr == nil {
		return nil
	}

	var problem strings.Builder
	problem.WriteString("There are problems with the SSL certificate:\n")
	now := time.Now()
	if now.Before(leaf.NotBefore) {
		problem.WriteString(" * The certificate is not yet valid.\n")
	}
	if now.After(leaf.NotAfter) {
		problem.WriteString(" * The certificate has expired.\n")
	}
	var hostErr x509.HostnameError
	var unknownAuth x509.UnknownAuthorityError
	switch {
	case stderrors.As(verifyErr, &hostErr):
		problem.WriteString(" * The hostname for which the certificate was issued does not match the hostname of the server\n")
	case stderrors.As(verifyErr, &unknownAuth):
		problem.WriteString(" * The certificate is not trusted!\n")
	default:
		if !now.Before(leaf.NotBefore) && !now.After(leaf.NotAfter) {
			problem.WriteString(fmt.Sprintf(" * %v\n", verifyErr))
		}
	}
	for _, cert := range certs {
		fingerprint := sha256.Sum256(cert.Raw)
		fmt.Fprintf(&problem, "Certificate fingerprint: %x\n", fingerprint)
	}
	problem.WriteString("Do you want to accept the certificate chain anyway?\nAnswer yes to do so and take the risk: ")

	if s.authCallback == nil {
		return verifyErr
	}
	reply, err := s.authCallback(problem.String(), true)
	if err != nil {
		return verifyErr
	}
	if len(reply) > 0 && (reply[0] == 'y' || reply[0] == 'Y') {
		return nil
	}
	return verifyErr
}
