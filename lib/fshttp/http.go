// Package fshttp builds the http.Client used to talk to the remote
// WebDAV server: TLS configuration (including hot-reloaded client
// certificates), request/response dumping with credentials redacted
// from the log, and a sane set of transport timeouts.
package fshttp

import (
	"bytes"
	"crypto/tls"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/yagamy4680/ocsync/internal/log"
)

// expireWindow is not consulted anywhere: getClientCertificate reloads
// the client cert/key pair on every handshake without checking expiry.
const expireWindow = 100 * time.Millisecond

// Config carries the knobs that shape the transport. Fields mirror the
// connection-level options of a Session: TLS trust, client cert paths,
// timeouts and whether to dump traffic to the debug log.
type Config struct {
	UserAgent          string
	Timeout            time.Duration
	ConnectTimeout     time.Duration
	InsecureSkipVerify bool
	ClientCert         string // path to a PEM client certificate, reloaded on every dial
	ClientKey          string
	DumpHeaders        bool
	DumpBodies         bool
}

// DefaultConfig returns the connection defaults used when a Session
// doesn't override them.
func DefaultConfig() *Config {
	return &Config{
		UserAgent:      "ocsync",
		Timeout:        5 * time.Minute,
		ConnectTimeout: 30 * time.Second,
	}
}

// Transport wraps http.Transport with credential-safe request logging
// and on-the-fly client certificate reloading.
type Transport struct {
	*http.Transport
	cfg *Config
}

// NewTransport creates a Transport configured from cfg.
func NewTransport(cfg *Config) *Transport {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	t := &Transport{
		Transport: &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout:   cfg.ConnectTimeout,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			MaxIdleConns:          100,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
			// The session decodes a gzip-encoded GET response itself
			// (it needs to see Content-Encoding to decide this), so the
			// transport must not also transparently decompress it first.
			DisableCompression: true,
			TLSClientConfig: &tls.Config{
				InsecureSkipVerify: cfg.InsecureSkipVerify,
			},
		},
		cfg: cfg,
	}
	if cfg.ClientCert != "" && cfg.ClientKey != "" {
		t.TLSClientConfig.GetClientCertificate = t.getClientCertificate
	}
	return t
}

var certMu sync.Mutex

// getClientCertificate reloads the client cert/key pair from disk on
// every handshake so a rotated certificate is picked up without
// restarting the process.
func (t *Transport) getClientCertificate(*tls.CertificateRequestInfo) (*tls.Certificate, error) {
	certMu.Lock()
	defer certMu.Unlock()
	cert, err := tls.LoadX509KeyPair(t.cfg.ClientCert, t.cfg.ClientKey)
	if err != nil {
		return nil, err
	}
	return &cert, nil
}

// RoundTrip implements http.RoundTripper, logging the request and
// response with sensitive headers redacted when dumping is enabled.
func (t *Transport) RoundTrip(req *http.Request) (resp *http.Response, err error) {
	if req.Header.Get("User-Agent") == "" && t.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", t.cfg.UserAgent)
	}
	if t.cfg.DumpHeaders {
		log.Debugf(nil, "%s %s", req.Method, req.URL.String())
		for k, v := range req.Header {
			log.Debugf(nil, "%s", cleanAuths([]byte(k+": "+joinHeader(v)+"\n")))
		}
	}
	resp, err = t.Transport.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	if t.cfg.DumpHeaders {
		log.Debugf(nil, "< %s", resp.Status)
	}
	return resp, nil
}

func joinHeader(vs []string) string {
	var buf bytes.Buffer
	for i, v := range vs {
		if i > 0 {
			buf.WriteString(", ")
		}
		buf.WriteString(v)
	}
	return buf.String()
}

// NewClient builds an *http.Client configured from cfg.
func NewClient(cfg *Config) *http.Client {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &http.Client{
		Transport: NewTransport(cfg),
		Timeout:   cfg.Timeout,
	}
}

// authBufs lists the header name prefixes whose values are sensitive
// enough to redact before logging.
var authBufs = [][]byte{
	[]byte("Authorization: "),
	[]byte("X-Auth-Token: "),
}

// cleanAuth replaces the value following filter in buf (up to the next
// newline) with at most 4 X's, so a redacted header still hints at
// whether a value was present without leaking it.
func cleanAuth(buf, filter []byte) []byte {
	i := bytes.Index(buf, filter)
	if i < 0 {
		return buf
	}
	start := i + len(filter)
	end := start
	for end < len(buf) && buf[end] != '\n' {
		end++
	}
	n := end - start
	if n > 4 {
		n = 4
	}
	out := make([]byte, 0, len(buf))
	out = append(out, buf[:start]...)
	out = append(out, bytes.Repeat([]byte("X"), n)...)
	out = append(out, buf[end:]...)
	return out
}

// cleanAuths redacts every known sensitive header found in buf.
func cleanAuths(buf []byte) []byte {
	for _, a := range authBufs {
		buf = cleanAuth(buf, a)
	}
	return buf
}
