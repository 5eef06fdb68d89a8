package emotiva

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/emotiva-protocol/emotiva-go/pkg/dispatcher"
	"github.com/emotiva-protocol/emotiva-go/pkg/discovery"
	"github.com/emotiva-protocol/emotiva-go/pkg/log"
	"github.com/emotiva-protocol/emotiva-go/pkg/protocol"
	"github.com/emotiva-protocol/emotiva-go/pkg/transport"
	"github.com/emotiva-protocol/emotiva-go/pkg/version"
	"github.com/emotiva-protocol/emotiva-go/pkg/wire"
)

// Client is the connection to one receiver. The zero value is not
// usable; construct with NewClient.
//
// Connect and Disconnect are idempotent and safe for concurrent use:
// simultaneous Connect calls collapse into a single discovery and
// socket startup, and every caller observes the same connected state.
type Client struct {
	config Config
	logger log.Logger

	mu          sync.Mutex
	state       ConnectionState
	connID      string
	transponder *discovery.Transponder
	sockets     *transport.SocketManager
	proto       *protocol.Protocol
	disp        *dispatcher.Dispatcher

	// Callback registrations, kept so callbacks survive reconnects and
	// can be registered before the first Connect.
	registrations map[string][]dispatcher.Callback

	// Properties currently subscribed, for unsubscribe-all on
	// disconnect.
	subscribed map[string]struct{}

	kaMu          sync.Mutex
	lastKeepalive time.Time
}

// NewClient creates a Client. A nil logger disables protocol logging.
func NewClient(config Config, logger log.Logger) *Client {
	config.applyDefaults()
	return &Client{
		config:        config,
		logger:        log.OrNoop(logger),
		registrations: make(map[string][]dispatcher.Callback),
	}
}

// State returns the current lifecycle state.
func (c *Client) State() ConnectionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// ConnectionID returns the identifier correlating log events of the
// current connection. Empty when disconnected.
func (c *Client) ConnectionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connID
}

// Transponder returns the device's self-description from discovery.
// Nil when disconnected.
func (c *Client) Transponder() *discovery.Transponder {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.transponder
}

// LastKeepalive returns when the device's keepalive notification was
// last seen. Zero if none arrived yet.
func (c *Client) LastKeepalive() time.Time {
	c.kaMu.Lock()
	defer c.kaMu.Unlock()
	return c.lastKeepalive
}

// Connect discovers the device, negotiates a protocol version, binds
// the port map and starts the notification dispatcher. A no-op when
// already connected. On any failure every partially-acquired resource
// is released and the client returns to the disconnected state.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StateConnected {
		return nil
	}
	// Disconnect runs its teardown without the lock; connecting over it
	// would race with the sockets being closed.
	if c.state == StateDisconnecting {
		return ErrDisconnecting
	}
	if err := c.config.Validate(); err != nil {
		return err
	}

	maxVer, err := version.Parse(c.config.MaxVersion)
	if err != nil {
		return err
	}

	connID := uuid.NewString()
	c.setState(StateConnecting, "connect requested", connID)

	t, err := discovery.FetchTransponder(ctx, c.config.Host, discovery.Options{
		Timeout:      c.config.Timeout,
		MaxAttempts:  c.config.MaxRetries,
		BaseBackoff:  c.config.BaseBackoff,
		MaxVersion:   maxVer,
		PingPort:     c.config.PingPort,
		Logger:       c.logger,
		ConnectionID: connID,
	})
	if err != nil {
		c.setState(StateDisconnected, "discovery failed", connID)
		return err
	}

	negotiated := version.Negotiate(maxVer, t.Version)

	sockets := transport.NewSocketManager(c.config.Host, c.logger, connID)
	if err := sockets.Start(t.Ports); err != nil {
		c.setState(StateDisconnected, "socket startup failed", connID)
		return err
	}

	proto := protocol.New(sockets, negotiated, protocol.Options{
		AckTimeout:   c.config.AckTimeout,
		MaxRetries:   c.config.MaxRetries,
		BaseBackoff:  c.config.BaseBackoff,
		Concurrency:  c.config.CommandConcurrency,
		Logger:       c.logger,
		ConnectionID: connID,
	})

	disp := dispatcher.New(sockets, dispatcher.Options{
		CallbackTimeout: c.config.CallbackTimeout,
		Logger:          c.logger,
		ConnectionID:    connID,
	})
	for property, cbs := range c.registrations {
		for _, cb := range cbs {
			disp.On(property, cb)
		}
	}
	disp.On("keepAlive", c.trackKeepalive)
	disp.Start()

	c.connID = connID
	c.transponder = t
	c.sockets = sockets
	c.proto = proto
	c.disp = disp
	c.subscribed = make(map[string]struct{})
	c.setState(StateConnected, "connected at "+negotiated.String(), connID)

	return nil
}

// Disconnect tears the connection down: best-effort unsubscribe of all
// active subscriptions, dispatcher stop, socket close. A no-op when not
// connected. The client always ends disconnected, even when the
// unsubscribe fails.
//
// The teardown runs without holding c.mu so that in-flight callbacks
// may still call client methods while the dispatcher drains.
func (c *Client) Disconnect(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateConnected {
		c.mu.Unlock()
		return nil
	}
	c.setState(StateDisconnecting, "disconnect requested", c.connID)
	proto := c.proto
	disp := c.disp
	sockets := c.sockets
	names := make([]string, 0, len(c.subscribed))
	for name := range c.subscribed {
		names = append(names, name)
	}
	c.mu.Unlock()

	if len(names) > 0 {
		unsubCtx, cancel := context.WithTimeout(ctx, c.config.AckTimeout)
		_, _ = proto.Unsubscribe(unsubCtx, names)
		cancel()
	}

	disp.Stop()
	sockets.Stop()

	c.mu.Lock()
	c.disp = nil
	c.proto = nil
	c.sockets = nil
	c.transponder = nil
	c.subscribed = nil
	c.setState(StateDisconnected, "disconnected", c.connID)
	c.connID = ""
	c.mu.Unlock()

	return nil
}

// On registers cb for updates of the named property. Registrations are
// kept across reconnects and may be made before the first Connect.
func (c *Client) On(property string, cb dispatcher.Callback) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.registrations[property] = append(c.registrations[property], cb)
	if c.disp != nil {
		c.disp.On(property, cb)
	}
}

// SendCommand sends a named command and waits for the device's ack.
func (c *Client) SendCommand(ctx context.Context, name string, attrs ...wire.Attr) error {
	proto, err := c.protoRef()
	if err != nil {
		return err
	}
	_, err = proto.SendCommand(ctx, name, attrs...)
	return err
}

// RequestProperties polls the named properties. Zero timeout uses the
// configured default. Properties the device did not answer for are
// absent from the result.
func (c *Client) RequestProperties(ctx context.Context, names []string, timeout time.Duration) (map[string]string, error) {
	proto, err := c.protoRef()
	if err != nil {
		return nil, err
	}
	if timeout <= 0 {
		timeout = c.config.Timeout
	}
	return proto.RequestProperties(ctx, names, timeout)
}

// Subscribe registers for push notifications of the named properties.
func (c *Client) Subscribe(ctx context.Context, names []string) (map[string]wire.PropertyStatus, error) {
	proto, err := c.protoRef()
	if err != nil {
		return nil, err
	}

	statuses, err := proto.Subscribe(ctx, names)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	if c.subscribed != nil {
		for _, name := range names {
			c.subscribed[name] = struct{}{}
		}
	}
	c.mu.Unlock()

	return statuses, nil
}

// Unsubscribe removes push-notification registrations.
func (c *Client) Unsubscribe(ctx context.Context, names []string) (map[string]wire.PropertyStatus, error) {
	proto, err := c.protoRef()
	if err != nil {
		return nil, err
	}

	statuses, err := proto.Unsubscribe(ctx, names)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	if c.subscribed != nil {
		for _, name := range names {
			delete(c.subscribed, name)
		}
	}
	c.mu.Unlock()

	return statuses, nil
}

func (c *Client) protoRef() (*protocol.Protocol, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateConnected {
		return nil, ErrNotConnected
	}
	return c.proto, nil
}

func (c *Client) trackKeepalive(_ context.Context, _, _ string) {
	c.kaMu.Lock()
	c.lastKeepalive = time.Now()
	c.kaMu.Unlock()
}

// setState transitions the lifecycle state and logs it. Callers hold
// c.mu.
func (c *Client) setState(next ConnectionState, reason, connID string) {
	prev := c.state
	c.state = next
	c.logger.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: connID,
		Layer:        log.LayerProtocol,
		Category:     log.CategoryState,
		RemoteAddr:   c.config.Host,
		StateChange: &log.StateChangeEvent{
			OldState: prev.String(),
			NewState: next.String(),
			Reason:   reason,
		},
	})
}
