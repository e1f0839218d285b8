package ragcore

import "fmt"

// ErrorKind is the closed set of error classes the core surfaces to callers.
type ErrorKind string

const (
	ErrBudgetExceeded     ErrorKind = "budget_exceeded"
	ErrTimeout            ErrorKind = "timeout"
	ErrUpstreamUnavailable ErrorKind = "upstream_unavailable"
	ErrCancelled          ErrorKind = "cancelled"
	ErrInvalidRequest     ErrorKind = "invalid_request"
	ErrNoResults          ErrorKind = "no_results"
	ErrConfigError        ErrorKind = "config_error"
	ErrNoSources          ErrorKind = "no_sources"
)

// CoreError is the typed error every public operation returns for the
// recognized failure kinds in spec §7. Callers should use errors.As to
// branch on Kind rather than string-matching Error().
type CoreError struct {
	Kind  ErrorKind
	Msg   string
	Cause error
}

func (e *CoreError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *CoreError) Unwrap() error { return e.Cause }

// NewCoreError builds a CoreError of the given kind.
func NewCoreError(kind ErrorKind, msg string, cause error) *CoreError {
	return &CoreError{Kind: kind, Msg: msg, Cause: cause}
}

// IsKind reports whether err is a *CoreError of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	ce, ok := err.(*CoreError)
	if !ok {
		return false
	}
	return ce.Kind == kind
}
