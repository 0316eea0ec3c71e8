// Package ocurl normalizes synchronizer-scheme URIs (owncloud://,
// ownclouds://) into the pieces a Session needs to connect, the Go
// equivalent of dav_connect's c_parse_uri call plus _cleanPath's
// ne_path_escape.
package ocurl

import (
	"fmt"
	"net/url"
	"strconv"

	"github.com/yagamy4680/ocsync/lib/rest"
)

// Endpoint is the parsed, normalized form of an owncloud(s):// URI.
type Endpoint struct {
	Scheme   string // "http" or "https"
	SSL      bool
	User     string
	Password string
	Host     string
	Port     int // 0 means "use the transport default"
	Path     string
}

// defaultPorts mirrors ne_uri_defaultport for the two protocols this
// backend ever connects with.
var defaultPorts = map[string]int{
	"http":  80,
	"https": 443,
}

// Parse accepts a raw "owncloud://" or "ownclouds://" URI and normalizes
// it to an Endpoint. owncloud maps to http, ownclouds to https (and
// additionally requests SSL). Returns an invalid-argument-shaped error
// if the scheme isn't one of those two or the URI doesn't parse.
func Parse(raw string) (*Endpoint, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("ocurl: malformed uri %q: %w", raw, err)
	}

	var scheme string
	var useSSL bool
	switch u.Scheme {
	case "owncloud":
		scheme = "http"
	case "ownclouds":
		scheme = "https"
		useSSL = true
	default:
		return nil, fmt.Errorf("ocurl: invalid scheme %q, want owncloud or ownclouds", u.Scheme)
	}

	host := u.Hostname()
	if host == "" {
		return nil, fmt.Errorf("ocurl: uri %q is missing a host", raw)
	}

	port := 0
	if p := u.Port(); p != "" {
		port, err = strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("ocurl: invalid port %q: %w", p, err)
		}
	}

	var user, password string
	if u.User != nil {
		user = u.User.Username()
		password, _ = u.User.Password()
	}

	return &Endpoint{
		Scheme:   scheme,
		SSL:      useSSL,
		User:     user,
		Password: password,
		Host:     host,
		Port:     port,
		Path:     u.Path,
	}, nil
}

// DefaultPort returns the transport's default port for e's scheme,
// applied when the URI carried none.
func (e *Endpoint) DefaultPort() int {
	return defaultPorts[e.Scheme]
}

// EffectivePort returns e.Port if set, else the scheme's default.
func (e *Endpoint) EffectivePort() int {
	if e.Port != 0 {
		return e.Port
	}
	return e.DefaultPort()
}

// BaseURL renders the endpoint's scheme://host:port as a url.URL with an
// empty path, suitable as the root a rest.Client resolves relative paths
// against.
func (e *Endpoint) BaseURL() *url.URL {
	return &url.URL{
		Scheme: e.Scheme,
		Host:   fmt.Sprintf("%s:%d", e.Host, e.EffectivePort()),
	}
}

// CleanPath percent-escapes p for use as a request-URI path component,
// the Go equivalent of _cleanPath's ne_path_escape call.
func CleanPath(p string) string {
	return rest.URLPathEscape(p)
}
