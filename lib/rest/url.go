package rest

import "net/url"

// URLJoin joins a URL and a path, returning the resulting absolute URL.
func URLJoin(base *url.URL, path string) (*url.URL, error) {
	rel, err := url.Parse(path)
	if err != nil {
		return nil, err
	}
	return base.ResolveReference(rel), nil
}

// URLPathEscape escapes a path for use in a URL the way the server expects:
// spaces become %20, but characters meaningful to url.Parse (like ':') are
// left alone by prefixing a "./" when needed so they don't look like a
// scheme separator.
func URLPathEscape(path string) string {
	u := url.URL{Path: path}
	escaped := u.EscapedPath()
	if escaped != "" && !hasSlashPrefix(escaped) && hasColonBeforeSlash(escaped) {
		return "./" + escaped
	}
	return escaped
}

func hasSlashPrefix(s string) bool {
	return len(s) > 0 && s[0] == '/'
}

func hasColonBeforeSlash(s string) bool {
	for _, c := range s {
		if c == '/' {
			return false
		}
		if c == ':' {
			return true
		}
	}
	return false
}

// URLPathEscapeAll percent-escapes every character outside the unreserved
// set, including '.', used when a server requires the stricter encoding
// (e.g. webdav Destination headers).
func URLPathEscapeAll(path string) string {
	var out []byte
	for i := 0; i < len(path); i++ {
		c := path[i]
		if isUnreserved(c) && c != '.' {
			out = append(out, c)
		} else {
			out = append(out, '%', hexDigit(c>>4), hexDigit(c&0xF))
		}
	}
	return string(out)
}

func isUnreserved(c byte) bool {
	switch {
	case c >= 'A' && c <= 'Z', c >= 'a' && c <= 'z', c >= '0' && c <= '9':
		return true
	case c == '-' || c == '_' || c == '.' || c == '~' || c == '/':
		return true
	}
	return false
}

func hexDigit(b byte) byte {
	if b < 10 {
		return '0' + b
	}
	return 'A' + b - 10
}
