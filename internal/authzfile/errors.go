package authzfile

import (
	"errors"
	"fmt"
)

// Kind identifies which part of the error domain a failure belongs to, per
// the engine's error handling design.
type Kind string

const (
	// KindConfigNotFound means the configured source is missing and
	// mustExist was true.
	KindConfigNotFound Kind = "config-not-found"
	// KindConfigParse means a byte-level parse failure occurred.
	KindConfigParse Kind = "config-parse"
	// KindInvalidConfig means the Validator rejected the loaded Config.
	KindInvalidConfig Kind = "invalid-config"
	// KindIllegalTarget means a URL-based load pointed at a directory or a
	// non-existent node.
	KindIllegalTarget Kind = "illegal-target"
	// KindInvalidArgument means a query violated its preconditions.
	KindInvalidArgument Kind = "invalid-argument"
)

// Error is the engine's error type. Source, when set, names the offending
// location (file path, line number, or similar) for diagnostics.
type Error struct {
	Kind   Kind
	Source string
	msg    string
	cause  error
}

func (e *Error) Error() string {
	if e.Source != "" {
		return fmt.Sprintf("authzfile: %s: %s (%s)", e.Kind, e.msg, e.Source)
	}
	return fmt.Sprintf("authzfile: %s: %s", e.Kind, e.msg)
}

func (e *Error) Unwrap() error { return e.cause }

// Is reports a match for any *Error target of the same Kind, so
// errors.Is(err, &authzfile.Error{Kind: authzfile.KindInvalidConfig}) works;
// IsKind is the shorthand for that check.
func (e *Error) Is(target error) bool {
	var other *Error
	if errors.As(target, &other) {
		return e.Kind == other.Kind
	}
	return false
}

func newError(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, msg: fmt.Sprintf(format, args...)}
}

func wrapError(kind Kind, source string, cause error, format string, args ...any) *Error {
	return &Error{Kind: kind, Source: source, msg: fmt.Sprintf(format, args...), cause: cause}
}

// IsKind reports whether err (or something it wraps) is an *Error of kind k.
func IsKind(err error, k Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == k
	}
	return false
}
