package vio

import (
	"time"

	"github.com/yagamy4680/ocsync/vio/api"
	"github.com/yagamy4680/ocsync/vio/ocerr"
)

// Capabilities reports the fixed capability record from §4.9.
func (s *Session) Capabilities() Capabilities {
	return DefaultCapabilities()
}

// SetProperty recognizes exactly the keys §4.9 lists; any other key
// fails rather than silently being ignored, since the host relies on
// the failure to catch a typo'd property name.
func (s *Session) SetProperty(key string, value any) error {
	switch key {
	case "session_key":
		str, ok := value.(string)
		if !ok {
			return ocerr.New(ocerr.EInvalidArgument, "session_key must be a string")
		}
		s.sessionCookie = str
	case "proxy_type":
		// proxy_* properties stage s.proxy field by field; Connect runs
		// the whole accumulated ProxyConfig through SetProxy once, which
		// validates it (missing host, default port, unsupported kind)
		// and wires it into the transport.
		str, ok := value.(string)
		if !ok {
			return ocerr.New(ocerr.EInvalidArgument, "proxy_type must be a string")
		}
		s.proxy.Kind = proxyKindFromString(str)
	case "proxy_host":
		str, ok := value.(string)
		if !ok {
			return ocerr.New(ocerr.EInvalidArgument, "proxy_host must be a string")
		}
		s.proxy.Host = str
	case "proxy_user":
		str, ok := value.(string)
		if !ok {
			return ocerr.New(ocerr.EInvalidArgument, "proxy_user must be a string")
		}
		s.proxy.User = str
	case "proxy_pwd":
		str, ok := value.(string)
		if !ok {
			return ocerr.New(ocerr.EInvalidArgument, "proxy_pwd must be a string")
		}
		s.proxy.Password = str
	case "proxy_port":
		port, ok := value.(int)
		if !ok {
			return ocerr.New(ocerr.EInvalidArgument, "proxy_port must be an int")
		}
		s.proxy.Port = port
	case "progress_callback":
		cb, ok := value.(ProgressCallback)
		if !ok {
			return ocerr.New(ocerr.EInvalidArgument, "progress_callback must be a vio.ProgressCallback")
		}
		s.progressCallback = cb
	case "read_timeout":
		seconds, ok := value.(int)
		if !ok {
			return ocerr.New(ocerr.EInvalidArgument, "read_timeout must be an int number of seconds")
		}
		s.readTimeout = time.Duration(seconds) * time.Second
	case "csync_context":
		s.hostUserdata = value
	default:
		return ocerr.New(ocerr.EInvalidArgument, "unknown property %q", key)
	}
	return nil
}

func proxyKindFromString(s string) ProxyKind {
	switch s {
	case "DefaultProxy":
		return DefaultProxy
	case "HttpProxy":
		return HTTPProxy
	case "HttpCachingProxy":
		return HTTPCachingProxy
	case "FtpCachingProxy":
		return FTPCachingProxy
	case "Socks5Proxy":
		return Socks5Proxy
	default:
		return NoProxy
	}
}

// FileID implements §4.8: consult the ETag cache first, else stat the
// path and use its content id, with surrounding quotes stripped.
func (s *Session) FileID(decodedURL, escapedPath string) (string, error) {
	if s.etagCache != nil && s.etagCache.URL == decodedURL {
		return api.Unquote(s.etagCache.ETag), nil
	}
	entry, err := s.Stat(escapedPath)
	if err != nil {
		return "", err
	}
	return api.Unquote(entry.ETag), nil
}
