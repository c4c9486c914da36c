package whoop

import "fmt"

// AuthError reports a failure of the interactive authorization flow. It is
// always fatal to the current attempt; retrying means re-running connect.
type AuthError struct {
	Reason string
	Err    error
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("whoop authorization failed: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("whoop authorization failed: %s", e.Reason)
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// TransportError reports a network-level failure where no HTTP response was
// received at all (DNS, connection reset, timeout).
type TransportError struct {
	URL string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("network error calling %s: %v", e.URL, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// HTTPError reports a non-2xx response, preserving the status and body for
// diagnostics.
type HTTPError struct {
	StatusCode int
	Body       string
	URL        string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d from %s: %s", e.StatusCode, e.URL, e.Body)
}

// ParseError reports a malformed response or a record missing a required
// field. Field names the offending key.
type ParseError struct {
	Field string
	Msg   string
}

func (e *ParseError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("missing or invalid `%s`", e.Field)
	}
	return e.Msg
}

// PersistenceError reports a credential store write failure. A refreshed but
// unpersisted token desyncs from the provider on next use, so these always
// surface to the caller.
type PersistenceError struct {
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("failed to persist whoop credentials: %v", e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}
