package vio

// resolveServerAuth implements ne_auth's credential resolution: prefer
// the stored user/password; if neither is set and a host auth callback
// is installed, prompt for username (echoed) then password (hidden).
// Unlike neon's callback-per-attempt model, Go's transport authenticates
// once per connection via HTTP Basic credentials set on the rest.Client,
// so this runs once during Connect rather than being re-invoked per
// retry attempt.
func (s *Session) resolveServerAuth() {
	if s.user != "" {
		return
	}
	if s.authCallback == nil {
		return
	}
	if username, err := s.authCallback("Enter your username: ", true); err == nil {
		s.user = username
	}
	if password, err := s.authCallback("Enter your password: ", false); err == nil {
		s.password = password
	}
}

// proxyAuthAttemptLimit mirrors ne_proxy_auth's "(attempt < 3) ? 0 : -1":
// multi-round schemes like NTLM get up to three attempts before the
// proxy credentials are considered wrong. Consulted by
// Session.resolveProxyAuth.
const proxyAuthAttemptLimit = 3
