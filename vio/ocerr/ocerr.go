// Package ocerr maps HTTP status codes and transport-level failures onto
// a stable, POSIX-flavored error taxonomy, the Go equivalent of
// csync_owncloud.c's set_errno_from_http_errcode/set_errno_from_neon_errcode.
package ocerr

import (
	"fmt"
	"strconv"
	"strings"
)

// Errno is a POSIX-style error number extended with a handful of
// domain-specific codes the wire protocol needs that have no errno
// analogue (service-unavailable, retry, redirect, ...).
type Errno int

// Filesystem-shaped codes mirror the errno values the source maps HTTP
// statuses onto. Domain-specific codes sit above 1000 (1000 plus their
// position in this block, so EServiceUnavailable is 1009) to stay clear
// of any real platform errno range.
const (
	EOK Errno = 0

	ENoSuchEntity    Errno = 2  // ENOENT
	EPermissionDenied Errno = 1  // EPERM
	EAccessDenied    Errno = 13 // EACCES
	EInvalidArgument Errno = 22 // EINVAL
	ENoSpace         Errno = 28 // ENOSPC
	EFileTooLarge    Errno = 27 // EFBIG
	ETryAgain        Errno = 11 // EAGAIN
	EIOError         Errno = 5  // EIO

	EServiceUnavailable Errno = 1000 + iota
	ELookupError
	EUserUnknown
	EProxyAuth
	EConnect
	ETimeout
	EPrecondition
	ERetry
	ERedirect
	EGeneral
	EWrongContent
	EErrorStringUnparseable
	// EAlreadyExists is reported when a MKCOL targets a collection that
	// is already there (HTTP 405/406), distinct from the generic
	// permission-denied mapping the §4.2 table would otherwise give 405.
	EAlreadyExists
)

// Error is the (errno, message) pair surfaced by every VIO operation,
// matching spec.md's "flat taxonomy surfaced as (errno, last-error-string)
// pairs". StatusCode carries the raw HTTP status when the error came
// from FromHTTPStatusError, used e.g. by Mkdir to recognize a 405/406
// "already exists" reply; it's 0 for transport-level errors.
type Error struct {
	Errno      Errno
	Message    string
	StatusCode int
}

func (e *Error) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("ocerr: errno %d", e.Errno)
	}
	return e.Message
}

// New builds an *Error from an errno and a formatted message.
func New(errno Errno, format string, args ...any) *Error {
	return &Error{Errno: errno, Message: fmt.Sprintf(format, args...)}
}

// FromHTTPStatus maps an HTTP status code to an Errno per the fixed table.
func FromHTTPStatus(code int) Errno {
	switch code {
	case 200, 201, 202, 203, 204, 205, 207, 304:
		return EOK
	case 401, 402, 405, 407:
		return EPermissionDenied
	case 301, 303, 404, 410:
		return ENoSuchEntity
	case 408, 504:
		return ETryAgain
	case 423:
		return EAccessDenied
	case 400, 403, 409, 411, 412, 414, 415, 424, 501:
		return EInvalidArgument
	case 507:
		return ENoSpace
	case 413:
		return EFileTooLarge
	case 503:
		return EServiceUnavailable
	case 206, 300, 302, 305, 306, 307, 406, 416, 417, 422, 500, 502, 505:
		return EIOError
	default:
		return EIOError
	}
}

// FromHTTPStatusError builds a full *Error from a status code and the
// server's status line / response body, the Go shape of
// set_errno_from_http_errcode + set_error_message.
func FromHTTPStatusError(code int, message string) *Error {
	return &Error{Errno: FromHTTPStatus(code), Message: message, StatusCode: code}
}

// TransportCode enumerates the transport-level results the underlying
// HTTP library itself can report, independent of any HTTP status code
// (the Go equivalent of neon's NE_* result codes).
type TransportCode int

const (
	TransportOK TransportCode = iota
	TransportGenericError
	TransportLookupFail
	TransportAuthFail
	TransportProxyAuthFail
	TransportConnectFail
	TransportTimeout
	TransportPreconditionFail
	TransportRetry
	TransportRedirect
)

// FromTransport maps a transport-level result to an Errno. For
// TransportGenericError, lastErrorMessage is parsed for a leading HTTP
// status number (http_result_code_from_session's strtol); if none is
// found, EErrorStringUnparseable is reported.
func FromTransport(code TransportCode, lastErrorMessage string) *Error {
	switch code {
	case TransportOK, TransportGenericError:
		return fromSessionMessage(lastErrorMessage)
	case TransportLookupFail:
		return &Error{Errno: ELookupError, Message: lastErrorMessage}
	case TransportAuthFail:
		return &Error{Errno: EUserUnknown, Message: lastErrorMessage}
	case TransportProxyAuthFail:
		return &Error{Errno: EProxyAuth, Message: lastErrorMessage}
	case TransportConnectFail:
		return &Error{Errno: EConnect, Message: lastErrorMessage}
	case TransportTimeout:
		return &Error{Errno: ETimeout, Message: lastErrorMessage}
	case TransportPreconditionFail:
		return &Error{Errno: EPrecondition, Message: lastErrorMessage}
	case TransportRetry:
		return &Error{Errno: ERetry, Message: lastErrorMessage}
	case TransportRedirect:
		return &Error{Errno: ERedirect, Message: lastErrorMessage}
	default:
		return &Error{Errno: EGeneral, Message: lastErrorMessage}
	}
}

// fromSessionMessage recovers a leading numeric HTTP status from the
// library's own error string, the Go equivalent of
// http_result_code_from_session's strtol-then-compare-pointers trick.
func fromSessionMessage(msg string) *Error {
	trimmed := strings.TrimSpace(msg)
	end := 0
	for end < len(trimmed) && trimmed[end] >= '0' && trimmed[end] <= '9' {
		end++
	}
	if end == 0 {
		return &Error{Errno: EErrorStringUnparseable, Message: msg}
	}
	code, err := strconv.Atoi(trimmed[:end])
	if err != nil {
		return &Error{Errno: EErrorStringUnparseable, Message: msg}
	}
	if code == int(EIOError) || code == int(EErrorStringUnparseable) {
		return &Error{Errno: Errno(code), Message: msg}
	}
	return &Error{Errno: FromHTTPStatus(code), Message: msg}
}

// WrongContentType builds the error reported when a PROPFIND response
// isn't exactly "application/xml; charset=utf-8".
func WrongContentType(got string) *Error {
	return New(EWrongContent, "unexpected content-type %q", got)
}
