package transport

import (
	"context"
	"net"
	"time"
)

// Conn is the send/receive surface the protocol and dispatcher layers
// build on. SocketManager implements it; tests substitute fakes.
type Conn interface {
	// Send writes a datagram to the device on the endpoint for role.
	Send(data []byte, role PortRole) error

	// Recv waits up to timeout for the next datagram on role's endpoint.
	// It returns ErrRecvTimeout when none arrives, ErrStopped when the
	// manager shuts down, or the context error when ctx is cancelled.
	Recv(ctx context.Context, role PortRole, timeout time.Duration) ([]byte, net.Addr, error)
}
