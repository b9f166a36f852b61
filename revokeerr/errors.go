// Package revokeerr defines the typed error taxonomy shared across the
// crl, ocspclient, and revoke packages. Fallible operations in this module
// return one of these kinds (possibly combined through go-multierror)
// rather than an opaque error; the exception is a cancelled context, which
// surfaces as the bare context error. Callers can thus distinguish "the message was malformed" from "the network failed"
// from "the protocol was violated" without string matching.
package revokeerr

import (
	"fmt"

	"github.com/hashicorp/errwrap"
)

// Kind is a closed set of error categories. It is never extended at
// runtime; switches over Kind should be exhaustive.
type Kind int

const (
	// KindParse covers malformed PEM/DER, unexpected ASN.1 structure,
	// invalid dates, and unknown critical extensions. Always surfaced.
	KindParse Kind = iota
	// KindProtocol covers well-formed messages that violate the protocol:
	// CertID mismatch, non-zero OCSP response status, invalid CRL
	// signature, a CRL not yet in force, CRL Number going backward.
	KindProtocol
	// KindTransport covers network, TLS, timeout, and DNS failures.
	// Retryable at the caller's discretion.
	KindTransport
	// KindPolicy covers missing responder URLs, stale cached responses,
	// and absent issuer evidence.
	KindPolicy
)

func (k Kind) String() string {
	switch k {
	case KindParse:
		return "parse"
	case KindProtocol:
		return "protocol"
	case KindTransport:
		return "transport"
	case KindPolicy:
		return "policy"
	default:
		return "unknown"
	}
}

// Error is the concrete error type every component in this module returns
// for fallible operations. Cause, when present, is the underlying error
// that triggered this one (a network error, an asn1 unmarshal error, etc).
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return errwrap.Wrapf(fmt.Sprintf("%s: %s: {{err}}", e.Kind, e.Message), e.Cause).Error()
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// WrappedErrors implements errwrap.Wrapper, so errwrap.Walk/Contains can
// see through an *Error to its Cause the same way they see through an
// errwrap-constructed error.
func (e *Error) WrappedErrors() []error {
	if e.Cause == nil {
		return nil
	}
	return []error{e.Cause}
}

// Is allows errors.Is(err, &revokeerr.Error{Kind: revokeerr.KindProtocol})
// style matching: any *Error target with the same Kind matches; callers
// more commonly use errors.As(err, &revokeErr) and inspect .Kind directly.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

func Parse(format string, args ...interface{}) *Error {
	return &Error{Kind: KindParse, Message: fmt.Sprintf(format, args...)}
}

func ParseWrap(cause error, format string, args ...interface{}) *Error {
	return &Error{Kind: KindParse, Message: fmt.Sprintf(format, args...), Cause: cause}
}

func Protocol(format string, args ...interface{}) *Error {
	return &Error{Kind: KindProtocol, Message: fmt.Sprintf(format, args...)}
}

func ProtocolWrap(cause error, format string, args ...interface{}) *Error {
	return &Error{Kind: KindProtocol, Message: fmt.Sprintf(format, args...), Cause: cause}
}

func Transport(cause error, format string, args ...interface{}) *Error {
	return &Error{Kind: KindTransport, Message: fmt.Sprintf(format, args...), Cause: cause}
}

func Policy(format string, args ...interface{}) *Error {
	return &Error{Kind: KindPolicy, Message: fmt.Sprintf(format, args...)}
}

// NotFound is a KindTransport error for an HTTP 404 response fetching a
// CRL or OCSP responder resource. It shares KindTransport with other
// network failures and differs from them only in its "not found" message.
func NotFound(url string) *Error {
	return &Error{Kind: KindTransport, Message: fmt.Sprintf("not found: %s", url)}
}
