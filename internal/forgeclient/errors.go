package forgeclient

import "fmt"

// Kind classifies a forge-client failure so callers can decide whether to
// retry, downgrade a fact to "unknown", or abort.
type Kind string

const (
	KindAuth            Kind = "auth"
	KindPermissionDenied Kind = "permission_denied"
	KindNotFound        Kind = "not_found"
	KindRateLimited     Kind = "rate_limited"
	KindTransport       Kind = "transport"
	KindUnexpected      Kind = "unexpected"
)

// Error carries the last-seen status and body alongside a step tag
// identifying what the caller was trying to do (e.g. "detect_ci").
type Error struct {
	Kind   Kind
	Step   string
	Status int
	Body   string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("forgeclient: %s (step=%s status=%d): %v", e.Kind, e.Step, e.Status, e.Err)
	}
	return fmt.Sprintf("forgeclient: %s (step=%s status=%d)", e.Kind, e.Step, e.Status)
}

func (e *Error) Unwrap() error { return e.Err }

func classify(status int) Kind {
	switch {
	case status == 401:
		return KindAuth
	case status == 403:
		return KindPermissionDenied
	case status == 404:
		return KindNotFound
	case status == 429:
		return KindRateLimited
	default:
		return KindUnexpected
	}
}

func newStatusError(step string, status int, body string) *Error {
	return &Error{Kind: classify(status), Step: step, Status: status, Body: body}
}

func newTransportError(step string, err error) *Error {
	return &Error{Kind: KindTransport, Step: step, Err: err}
}
