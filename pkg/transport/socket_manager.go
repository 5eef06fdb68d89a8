package transport

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	logpkg "github.com/emotiva-protocol/emotiva-go/pkg/log"
)

// PortRole is a logical port name from the device's transponder block.
type PortRole string

// Port roles used by the protocol.
const (
	PortControl PortRole = "controlPort"
	PortNotify  PortRole = "notifyPort"
	PortInfo    PortRole = "infoPort"
	PortSetup   PortRole = "setupPort"
)

// Roles lists all port roles in a fixed order, so Start binds
// deterministically and error output is stable.
var Roles = []PortRole{PortControl, PortNotify, PortInfo, PortSetup}

// PortMap maps a logical role to its UDP port number. Produced by
// discovery; immutable once passed to Start.
type PortMap map[PortRole]int

// Clone returns a copy of the port map.
func (m PortMap) Clone() PortMap {
	out := make(PortMap, len(m))
	for role, port := range m {
		out[role] = port
	}
	return out
}

const (
	// maxDatagramSize is the largest protocol datagram the device sends.
	maxDatagramSize = 4096

	// recvQueueSize bounds each role's private receive queue. When the
	// queue is full the oldest pending datagram is dropped, matching
	// UDP's own delivery guarantees.
	recvQueueSize = 64
)

// datagram is one received payload with its source address.
type datagram struct {
	data []byte
	addr net.Addr
}

// endpoint is one bound socket plus its private receive queue.
type endpoint struct {
	conn   *net.UDPConn
	remote *net.UDPAddr
	queue  chan datagram
}

// SocketManager owns one UDP endpoint per logical port role. Each bound
// endpoint gets a background reader feeding a private queue, so receive
// paths for different roles never contend.
type SocketManager struct {
	// mu serializes Start and Stop so they cannot interleave.
	mu sync.Mutex

	host    string
	started bool

	endpoints map[PortRole]*endpoint

	// stopCh is closed by Stop to release blocked Recv callers and
	// terminate the reader goroutines.
	stopCh chan struct{}
	wg     sync.WaitGroup

	logger logpkg.Logger
	connID string
}

// NewSocketManager creates a socket manager for the given device host.
// The logger may be nil.
func NewSocketManager(host string, logger logpkg.Logger, connID string) *SocketManager {
	return &SocketManager{
		host:   host,
		logger: logpkg.OrNoop(logger),
		connID: connID,
	}
}

// Start binds one UDP endpoint per role in ports. Either all ports bind
// or none do: on any bind failure every endpoint bound during this call
// is closed before the error is returned. Calling Start when already
// started is a no-op.
func (m *SocketManager) Start(ports PortMap) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.started {
		return nil
	}

	endpoints := make(map[PortRole]*endpoint, len(ports))
	for _, role := range Roles {
		port, ok := ports[role]
		if !ok {
			continue
		}

		ep, err := m.bind(role, port)
		if err != nil {
			for _, bound := range endpoints {
				bound.conn.Close()
			}
			return err
		}
		endpoints[role] = ep
	}

	m.endpoints = endpoints
	m.stopCh = make(chan struct{})
	m.started = true

	for role, ep := range m.endpoints {
		m.wg.Add(1)
		go m.readLoop(role, ep, m.stopCh)
	}
	return nil
}

// bind opens one local socket for role. Request/response roles bind
// ephemeral local ports: the device answers to the request's source
// address. Notify carries unsolicited pushes addressed to the advertised
// port number, so that role binds the advertised port locally.
func (m *SocketManager) bind(role PortRole, port int) (*endpoint, error) {
	remote, err := net.ResolveUDPAddr("udp", net.JoinHostPort(m.host, fmt.Sprintf("%d", port)))
	if err != nil {
		return nil, &NetworkError{Op: "resolve", Role: role, Err: err}
	}

	localPort := 0
	if role == PortNotify {
		localPort = port
	}

	conn, err := net.ListenUDP("udp", &net.UDPAddr{Port: localPort})
	if err != nil {
		return nil, &NetworkError{Op: "bind", Role: role, Err: err}
	}

	return &endpoint{
		conn:   conn,
		remote: remote,
		queue:  make(chan datagram, recvQueueSize),
	}, nil
}

// Send writes a datagram to the device on the endpoint for role.
func (m *SocketManager) Send(data []byte, role PortRole) error {
	m.mu.Lock()
	ep := m.endpoints[role]
	started := m.started
	m.mu.Unlock()

	if !started {
		return ErrNotStarted
	}
	if ep == nil {
		return fmt.Errorf("%w: %s", ErrUnknownRole, role)
	}

	if _, err := ep.conn.WriteToUDP(data, ep.remote); err != nil {
		m.logError("send", role, err)
		return &NetworkError{Op: "send", Role: role, Err: err}
	}

	m.logger.Log(logpkg.Event{
		Timestamp:    time.Now(),
		ConnectionID: m.connID,
		Direction:    logpkg.DirectionOut,
		Layer:        logpkg.LayerTransport,
		Category:     logpkg.CategoryMessage,
		RemoteAddr:   ep.remote.String(),
		PortRole:     string(role),
		Message:      &logpkg.MessageEvent{Size: len(data)},
	})
	return nil
}

// Recv waits up to timeout for the next datagram on role's endpoint.
func (m *SocketManager) Recv(ctx context.Context, role PortRole, timeout time.Duration) ([]byte, net.Addr, error) {
	m.mu.Lock()
	ep := m.endpoints[role]
	stopCh := m.stopCh
	started := m.started
	m.mu.Unlock()

	if !started {
		return nil, nil, ErrNotStarted
	}
	if ep == nil {
		return nil, nil, fmt.Errorf("%w: %s", ErrUnknownRole, role)
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case d := <-ep.queue:
		return d.data, d.addr, nil
	case <-timer.C:
		return nil, nil, ErrRecvTimeout
	case <-ctx.Done():
		return nil, nil, ctx.Err()
	case <-stopCh:
		return nil, nil, ErrStopped
	}
}

// Stop closes all endpoints and waits for the reader goroutines to exit.
// Safe to call multiple times and when never started.
func (m *SocketManager) Stop() {
	m.mu.Lock()
	if !m.started {
		m.mu.Unlock()
		return
	}

	m.started = false
	close(m.stopCh)
	for _, ep := range m.endpoints {
		ep.conn.Close()
	}
	endpoints := m.endpoints
	m.endpoints = nil

	// Readers never take m.mu, so the lock can be held through the
	// wait. Releasing it earlier would let a concurrent Start add new
	// readers to the group while it is still draining.
	m.wg.Wait()
	m.mu.Unlock()

	// Drain queues so buffered datagrams do not leak across a restart.
	for _, ep := range endpoints {
		for {
			select {
			case <-ep.queue:
				continue
			default:
			}
			break
		}
	}
}

// readLoop reads datagrams from one endpoint into its private queue.
// The stop channel is passed in rather than read from the manager, so a
// restart reassigning m.stopCh cannot race with a draining reader.
func (m *SocketManager) readLoop(role PortRole, ep *endpoint, stopCh <-chan struct{}) {
	defer m.wg.Done()

	buf := make([]byte, maxDatagramSize)
	for {
		n, addr, err := ep.conn.ReadFromUDP(buf)
		if err != nil {
			select {
			case <-stopCh:
				// Expected: Stop closed the socket.
			default:
				m.logError("receive", role, err)
			}
			return
		}

		data := make([]byte, n)
		copy(data, buf[:n])

		select {
		case ep.queue <- datagram{data: data, addr: addr}:
		default:
			// Queue full: shed the oldest datagram to keep the
			// freshest data flowing.
			select {
			case <-ep.queue:
			default:
			}
			select {
			case ep.queue <- datagram{data: data, addr: addr}:
			default:
			}
		}

		m.logger.Log(logpkg.Event{
			Timestamp:    time.Now(),
			ConnectionID: m.connID,
			Direction:    logpkg.DirectionIn,
			Layer:        logpkg.LayerTransport,
			Category:     logpkg.CategoryMessage,
			RemoteAddr:   addr.String(),
			PortRole:     string(role),
			Message:      &logpkg.MessageEvent{Size: n},
		})
	}
}

func (m *SocketManager) logError(ctx string, role PortRole, err error) {
	m.logger.Log(logpkg.Event{
		Timestamp:    time.Now(),
		ConnectionID: m.connID,
		Layer:        logpkg.LayerTransport,
		Category:     logpkg.CategoryError,
		PortRole:     string(role),
		Error: &logpkg.ErrorEventData{
			Layer:   logpkg.LayerTransport,
			Message: err.Error(),
			Context: ctx,
		},
	})
}

// Compile-time interface satisfaction check.
var _ Conn = (*SocketManager)(nil)
