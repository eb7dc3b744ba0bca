// Package ironerr defines the typed error kinds used across Ironpost.
//
// Kinds are coarse-grained categories (spec §7), not one type per failure
// site. The CLI switches on Kind (via ExitCode) to pick its exit code and
// prints errors as one plain-text line on stderr, also under --output json;
// no JSON error document is produced. Callers that need finer detail read
// the wrapped error via errors.Unwrap / fmt.Errorf("%w", …).
package ironerr

import "fmt"

// Kind is a coarse error category used for the CLI's exit-code mapping.
type Kind string

const (
	KindConfig     Kind = "config"
	KindLifecycle  Kind = "lifecycle"
	KindChannel    Kind = "channel"
	KindInput      Kind = "input"
	KindPolicy     Kind = "policy"
	KindAction     Kind = "action"
	KindStorage    Kind = "storage"
	KindInternal   Kind = "internal"
	KindUnreachable Kind = "unreachable"
)

// Error is a typed Ironpost error carrying a Kind, a human message, and
// optional Field/Path context for structured CLI output.
type Error struct {
	Kind    Kind
	Message string
	Field   string // optional: offending config/policy field
	Path    string // optional: offending file path
	Err     error  // optional: wrapped cause
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// New constructs an Error with the given kind and message.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap constructs an Error wrapping an existing error.
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// WithField returns a copy of e with Field set.
func (e *Error) WithField(field string) *Error {
	c := *e
	c.Field = field
	return &c
}

// WithPath returns a copy of e with Path set.
func (e *Error) WithPath(path string) *Error {
	c := *e
	c.Path = path
	return &c
}

// ExitCode maps a Kind to the CLI exit codes in spec.md §6:
// 0 success, 1 generic error, 2 config/validation failure, 3 daemon unreachable.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var ie *Error
	if ok := asIronErr(err, &ie); ok {
		switch ie.Kind {
		case KindConfig, KindPolicy, KindInput:
			return 2
		case KindUnreachable:
			return 3
		default:
			return 1
		}
	}
	return 1
}

func asIronErr(err error, target **Error) bool {
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
