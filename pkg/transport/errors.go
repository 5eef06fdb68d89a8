package transport

import (
	"errors"
	"fmt"
)

// Socket manager errors.
var (
	// ErrNotStarted is returned when sending or receiving before Start.
	ErrNotStarted = errors.New("socket manager not started")

	// ErrStopped is returned from Recv when Stop is called while waiting.
	ErrStopped = errors.New("socket manager stopped")

	// ErrRecvTimeout is returned when no datagram arrives in time.
	ErrRecvTimeout = errors.New("receive timed out")

	// ErrUnknownRole is returned for a role the port map does not name.
	ErrUnknownRole = errors.New("unknown port role")
)

// NetworkError wraps an OS-level socket failure. Callers retry these per
// their own policy; the transport itself never retries.
type NetworkError struct {
	// Op is the operation that failed ("bind", "send", "receive").
	Op string

	// Role is the logical port the operation targeted.
	Role PortRole

	// Err is the underlying error.
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s on %s: %v", e.Op, e.Role, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}
