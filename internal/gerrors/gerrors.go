// Package gerrors defines the tagged error kinds the gateway core can
// raise, per spec.md §4.8.
package gerrors

import "fmt"

// Kind is a stable string code identifying an error's category.
type Kind string

const (
	// KindInvalidPacket: frame length header unparseable, in 1..3, or
	// exceeds the buffer with no truncation tolerated.
	KindInvalidPacket Kind = "invalid_packet"
	// KindIncompletePacket: stream ended with a partial frame outstanding.
	KindIncompletePacket Kind = "incomplete_packet"
	// KindInvalidBodyFor2xx: backend returned a <300 status with no body.
	KindInvalidBodyFor2xx Kind = "invalid_body_for_2xx"
	// KindMalformedCommand: a frame matched the pkt-line header but not
	// the service-specific grammar. Defined for completeness (spec
	// §4.8); the current observer implementation never raises it — see
	// DESIGN.md Open Question 3.
	KindMalformedCommand Kind = "malformed_command"
	// KindUsableSignalFailure: an onUsable observer threw.
	KindUsableSignalFailure Kind = "usable_signal_failure"
	// KindCompleteSignalFailure: an onComplete observer threw.
	KindCompleteSignalFailure Kind = "complete_signal_failure"
	// KindGitExecutionFailure: local git process exited non-zero when
	// its output was expected.
	KindGitExecutionFailure Kind = "git_execution_failure"
	// KindProxyMethodFailure: an overridden controller method threw.
	KindProxyMethodFailure Kind = "proxy_method_failure"
)

// Error is the tagged error carried through the gateway core. Every
// error has a Kind and may carry a StatusCode, an Inner cause, and
// kind-specific extra fields (ExitCode/Stderr for execution failures,
// MethodName for proxy failures).
type Error struct {
	Kind       Kind
	StatusCode int // 0 means "unset"
	Inner      error

	ExitCode   int    // set for KindGitExecutionFailure
	Stderr     string // set for KindGitExecutionFailure
	MethodName string // set for KindProxyMethodFailure
}

func (e *Error) Error() string {
	if e.Inner != nil {
		return fmt.Sprintf("%s: %v", e.Kind, e.Inner)
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error { return e.Inner }

// New constructs a bare Error of the given kind.
func New(kind Kind) *Error {
	return &Error{Kind: kind}
}

// Wrap constructs an Error of the given kind wrapping inner.
func Wrap(kind Kind, inner error) *Error {
	return &Error{Kind: kind, Inner: inner}
}

// WithStatus sets the StatusCode and returns the receiver, for chaining.
func (e *Error) WithStatus(code int) *Error {
	e.StatusCode = code
	return e
}

// WithStderr sets the Stderr field and returns the receiver, for
// chaining onto a KindGitExecutionFailure.
func (e *Error) WithStderr(s string) *Error {
	e.Stderr = s
	return e
}

// WithExitCode sets the ExitCode field and returns the receiver, for
// chaining onto a KindGitExecutionFailure.
func (e *Error) WithExitCode(code int) *Error {
	e.ExitCode = code
	return e
}

// Is reports whether err is a *Error of the given kind, unwrapping as
// needed.
func Is(err error, kind Kind) bool {
	var e *Error
	for err != nil {
		if ge, ok := err.(*Error); ok {
			e = ge
			break
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			break
		}
		err = u.Unwrap()
	}
	return e != nil && e.Kind == kind
}

// KindOf returns the error's Kind, or "" if err is not a *Error.
func KindOf(err error) Kind {
	var e *Error
	if ge, ok := err.(*Error); ok {
		e = ge
	}
	if e == nil {
		return ""
	}
	return e.Kind
}

// StatusOf returns the error's declared status code, falling back to
// def when unset or err is not a *Error.
func StatusOf(err error, def int) int {
	var e *Error
	if ge, ok := err.(*Error); ok {
		e = ge
	}
	if e == nil || e.StatusCode == 0 {
		return def
	}
	return e.StatusCode
}
