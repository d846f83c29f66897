// Package errs implements Conflux's error-kind taxonomy: every layer
// translates lower-layer errors into the kind that best describes the
// caller's situation, matching the teacher's fmt.Errorf wrapping idiom but
// adding a tag callers can dispatch on.
package errs

import "fmt"

// Kind classifies why an operation failed.
type Kind string

const (
	// Validation: input malformed or out of range. Reported before log append.
	Validation Kind = "validation"
	// Unauthorized: policy denied. Reported before log append.
	Unauthorized Kind = "unauthorized"
	// Overloaded: resource limiter rejected. Reported before log append.
	Overloaded Kind = "overloaded"
	// NotLeader: operation requires leadership. Reported before log append.
	NotLeader Kind = "not_leader"
	// ConsensusTimeout: proposal not committed in time. During log append.
	ConsensusTimeout Kind = "consensus_timeout"
	// Conflict: business precondition failed (e.g. name exists). Returned
	// inside an applied entry's response.
	Conflict Kind = "conflict"
	// NotFound: entity missing. Returned inside an applied entry's response.
	NotFound Kind = "not_found"
	// Storage: I/O failure. Fatal to the node.
	Storage Kind = "storage"
	// Internal: invariant violation detected at runtime. Fatal to the node.
	Internal Kind = "internal"
)

// Fatal reports whether errors of this kind require the node to stop
// participating in consensus rather than risk divergence.
func (k Kind) Fatal() bool {
	return k == Storage || k == Internal
}

// Error wraps a Kind with a message and an optional cause.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is lets errors.Is(err, errs.New(errs.Conflict, "")) match by comparing
// Kind; the target must itself be an *Error (a bare Kind is not an error).
func (e *Error) Is(target error) bool {
	other, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == other.Kind
}

// New constructs an *Error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap constructs an *Error of the given kind that records cause; Error()
// includes the cause's text and Unwrap returns it.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// KindOf extracts the Kind from err if it is (or wraps) an *Error, otherwise
// returns Internal as the conservative default.
func KindOf(err error) Kind {
	var e *Error
	if As(err, &e) {
		return e.Kind
	}
	return Internal
}

// As walks err's single-error Unwrap chain and stores the first *Error it
// finds in target. It does not call errors.As, so multi-error joins are not
// searched.
func As(err error, target **Error) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			*target = e
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
