package mapper

import "errors"

// Every operation reports failures through exactly one of these values
// (possibly wrapped). The split follows retryability: ErrNoResources is
// always worth a retry, the other three are not without changing the
// request.
var (
	// ErrBadBuffer means the handle is unknown, structurally invalid, or
	// in the wrong state for the operation.
	ErrBadBuffer = errors.New("bufmap: bad buffer")

	// ErrBadValue means the arguments are well formed but inconsistent or
	// out of range.
	ErrBadValue = errors.New("bufmap: bad value")

	// ErrNoResources means a transient resource shortage; retrying later
	// may succeed.
	ErrNoResources = errors.New("bufmap: no resources")

	// ErrUnsupported means the request can never be satisfied by this
	// implementation. Callers may cache it as a permanent capability fact.
	ErrUnsupported = errors.New("bufmap: unsupported")
)

// IsTransient reports whether err is safe to retry without changing the
// request.
func IsTransient(err error) bool {
	return errors.Is(err, ErrNoResources)
}
