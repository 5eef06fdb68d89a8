package protocol

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/emotiva-protocol/emotiva-go/pkg/backoff"
	"github.com/emotiva-protocol/emotiva-go/pkg/log"
	"github.com/emotiva-protocol/emotiva-go/pkg/transport"
	"github.com/emotiva-protocol/emotiva-go/pkg/version"
	"github.com/emotiva-protocol/emotiva-go/pkg/wire"
)

// Default option values.
const (
	DefaultAckTimeout  = 2 * time.Second
	DefaultMaxRetries  = 3
	DefaultBaseBackoff = 100 * time.Millisecond
	DefaultConcurrency = 5
)

// Options tune the retry and concurrency behavior. The zero value gets
// safe defaults.
type Options struct {
	// AckTimeout is how long each attempt waits for an acknowledgment.
	AckTimeout time.Duration

	// MaxRetries bounds the total number of send attempts per operation.
	MaxRetries int

	// BaseBackoff is the delay after the first failed attempt; it
	// doubles on each subsequent failure.
	BaseBackoff time.Duration

	// Concurrency caps the number of protocol exchanges in flight.
	Concurrency int

	Logger       log.Logger
	ConnectionID string
}

func (o *Options) fixup() {
	if o.AckTimeout <= 0 {
		o.AckTimeout = DefaultAckTimeout
	}
	if o.MaxRetries <= 0 {
		o.MaxRetries = DefaultMaxRetries
	}
	if o.BaseBackoff <= 0 {
		o.BaseBackoff = DefaultBaseBackoff
	}
	if o.Concurrency <= 0 {
		o.Concurrency = DefaultConcurrency
	}
	o.Logger = log.OrNoop(o.Logger)
}

// Protocol implements command, polling and subscription exchanges over a
// bound transport. Commands travel on the control role; property polls
// and subscription management travel on the info role so they never
// contend with the notification receive loop.
type Protocol struct {
	conn transport.Conn
	ver  version.SpecVersion
	opts Options

	// Counting semaphore bounding in-flight exchanges.
	sem chan struct{}
}

// New creates a Protocol over a started transport, speaking the
// negotiated version.
func New(conn transport.Conn, ver version.SpecVersion, opts Options) *Protocol {
	opts.fixup()
	return &Protocol{
		conn: conn,
		ver:  ver,
		opts: opts,
		sem:  make(chan struct{}, opts.Concurrency),
	}
}

// Version returns the negotiated protocol version.
func (p *Protocol) Version() version.SpecVersion {
	return p.ver
}

func (p *Protocol) acquire(ctx context.Context) error {
	select {
	case p.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Protocol) release() {
	<-p.sem
}

// SendCommand sends a named command on the control port and waits for
// the device's acknowledgment, which is returned to the caller. Extra
// attributes pass through to the wire verbatim; value and ack carry
// protocol defaults when absent.
//
// A timed-out wait and a response with an unexpected root tag both count
// as a failed attempt. Attempts are separated by exponentially growing
// backoff delays. After the attempt budget is exhausted an
// AckTimeoutError is returned.
func (p *Protocol) SendCommand(ctx context.Context, name string, attrs ...wire.Attr) (*wire.Element, error) {
	if err := p.acquire(ctx); err != nil {
		return nil, err
	}
	defer p.release()

	data := wire.BuildCommand(name, attrs)
	bo := backoff.New(p.opts.BaseBackoff)

	var lastErr error
	for attempt := 1; attempt <= p.opts.MaxRetries; attempt++ {
		if attempt > 1 {
			if !sleepCtx(ctx, bo.Next()) {
				return nil, ctx.Err()
			}
		}

		// A failed send is transient like a lost datagram: count the
		// attempt and retry.
		if err := p.conn.Send(data, transport.PortControl); err != nil {
			lastErr = err
			p.logAttemptFailure(name, attempt, "send: "+err.Error())
			continue
		}
		lastErr = nil
		p.logMessage(log.DirectionOut, transport.PortControl, &log.MessageEvent{
			RootTag: wire.TagControl,
			Command: name,
			Size:    len(data),
		})

		root, err := p.recvParsed(ctx, transport.PortControl, p.opts.AckTimeout)
		if err != nil {
			if errors.Is(err, transport.ErrRecvTimeout) {
				p.logAttemptFailure(name, attempt, "ack timeout")
				continue
			}
			return nil, err
		}

		if root.Tag != wire.TagAck {
			p.logAttemptFailure(name, attempt, fmt.Sprintf("unexpected response tag %q", root.Tag))
			continue
		}

		p.logMessage(log.DirectionIn, transport.PortControl, &log.MessageEvent{
			RootTag: root.Tag,
			Command: name,
		})
		return root, nil
	}

	if lastErr != nil {
		return nil, lastErr
	}
	return nil, &AckTimeoutError{Command: name, Attempts: p.opts.MaxRetries}
}

// RequestProperties polls the named properties and accumulates responses
// until every name has a value or the timeout expires. A partial or even
// empty result is not an error: absent properties simply have no entry
// in the returned map. A soft receive timeout just ends the collection
// window; hard send/receive errors are retried like SendCommand, with
// values collected so far preserved across attempts.
func (p *Protocol) RequestProperties(ctx context.Context, names []string, timeout time.Duration) (map[string]string, error) {
	if err := p.acquire(ctx); err != nil {
		return nil, err
	}
	defer p.release()

	if timeout <= 0 {
		timeout = p.opts.AckTimeout
	}

	data := wire.BuildUpdate(names, p.ver)
	want := make(map[string]bool, len(names))
	for _, n := range names {
		want[n] = true
	}

	result := make(map[string]string)
	deadline := time.Now().Add(timeout)
	bo := backoff.New(p.opts.BaseBackoff)

	var lastErr error
	for attempt := 1; attempt <= p.opts.MaxRetries; attempt++ {
		if attempt > 1 {
			if !sleepCtx(ctx, bo.Next()) {
				return nil, ctx.Err()
			}
		}

		if err := p.conn.Send(data, transport.PortInfo); err != nil {
			lastErr = err
			continue
		}
		p.logMessage(log.DirectionOut, transport.PortInfo, &log.MessageEvent{
			RootTag:    wire.TagUpdate,
			Properties: names,
			Size:       len(data),
		})

		err := p.collectProperties(ctx, want, result, deadline)
		if err == nil {
			return result, nil
		}
		if isTerminal(err) {
			return nil, err
		}
		lastErr = err
	}

	return nil, lastErr
}

// collectProperties accumulates polled values into result until every
// wanted name is present, the deadline passes or a receive timeout
// truncates the window. Both of the latter end collection successfully.
func (p *Protocol) collectProperties(ctx context.Context, want map[string]bool, result map[string]string, deadline time.Time) error {
	for len(result) < len(want) {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil
		}

		root, err := p.recvParsed(ctx, transport.PortInfo, remaining)
		if err != nil {
			if errors.Is(err, transport.ErrRecvTimeout) {
				return nil
			}
			return err
		}

		// Devices answer polls with either an update or a notify root
		// depending on firmware generation.
		if root.Tag != wire.TagUpdate && root.Tag != wire.TagNotify {
			continue
		}

		for name, value := range wire.ExtractProperties(root) {
			if want[name] {
				result[name] = value
			}
		}
	}
	return nil
}

// isTerminal reports whether a hard error cannot be helped by resending
// the request: cancellation, a stopped transport, or a datagram that
// arrived but did not parse.
func isTerminal(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, transport.ErrStopped) {
		return true
	}
	var malformed *wire.MalformedMessageError
	return errors.As(err, &malformed)
}

// Subscribe registers for push notifications of the named properties and
// returns the confirmed ones with their current value and visibility
// flag. Properties the device rejected are absent from the result.
//
// A response with the wrong root tag or no response at all counts as a
// failed attempt; after the attempt budget the result is an empty map,
// not an error, because some firmware applies the subscription without
// ever confirming it.
func (p *Protocol) Subscribe(ctx context.Context, names []string) (map[string]wire.PropertyStatus, error) {
	return p.subscription(ctx, wire.BuildSubscribe(names, p.ver), wire.TagSubscribe, names)
}

// Unsubscribe removes push-notification registrations for the named
// properties. Semantics mirror Subscribe.
func (p *Protocol) Unsubscribe(ctx context.Context, names []string) (map[string]wire.PropertyStatus, error) {
	return p.subscription(ctx, wire.BuildUnsubscribe(names), wire.TagUnsubscribe, names)
}

func (p *Protocol) subscription(ctx context.Context, data []byte, wantTag string, names []string) (map[string]wire.PropertyStatus, error) {
	if err := p.acquire(ctx); err != nil {
		return nil, err
	}
	defer p.release()

	bo := backoff.New(p.opts.BaseBackoff)

	var lastErr error
	for attempt := 1; attempt <= p.opts.MaxRetries; attempt++ {
		if attempt > 1 {
			if !sleepCtx(ctx, bo.Next()) {
				return nil, ctx.Err()
			}
		}

		// Send failures are counted and retried like a missing
		// confirmation.
		if err := p.conn.Send(data, transport.PortInfo); err != nil {
			lastErr = err
			continue
		}
		lastErr = nil
		p.logMessage(log.DirectionOut, transport.PortInfo, &log.MessageEvent{
			RootTag:    wantTag,
			Properties: names,
			Size:       len(data),
		})

		root, err := p.recvParsed(ctx, transport.PortInfo, p.opts.AckTimeout)
		if err != nil {
			if errors.Is(err, transport.ErrRecvTimeout) {
				continue
			}
			return nil, err
		}

		if root.Tag != wantTag {
			continue
		}

		statuses := wire.ExtractStatuses(root)
		for name, status := range statuses {
			if !status.Acked {
				delete(statuses, name)
			}
		}
		return statuses, nil
	}

	// The request never reached the wire, so nothing can have been
	// applied. Surface the send error instead of an empty result.
	if lastErr != nil {
		return nil, lastErr
	}

	// No confirmation within the attempt budget. The device may still
	// have applied the request; callers treat an empty result as
	// unconfirmed rather than failed.
	return map[string]wire.PropertyStatus{}, nil
}

// recvParsed receives one datagram on role and parses it. A malformed
// datagram is surfaced immediately: it indicates a protocol or version
// mismatch, not a transient fault.
func (p *Protocol) recvParsed(ctx context.Context, role transport.PortRole, timeout time.Duration) (*wire.Element, error) {
	data, _, err := p.conn.Recv(ctx, role, timeout)
	if err != nil {
		return nil, err
	}

	root, err := wire.Parse(data)
	if err != nil {
		p.opts.Logger.Log(log.Event{
			Timestamp:    time.Now(),
			ConnectionID: p.opts.ConnectionID,
			Direction:    log.DirectionIn,
			Layer:        log.LayerWire,
			Category:     log.CategoryError,
			PortRole:     string(role),
			Error: &log.ErrorEventData{
				Layer:   log.LayerWire,
				Message: err.Error(),
				Context: "parse received datagram",
			},
		})
		return nil, err
	}
	return root, nil
}

func (p *Protocol) logMessage(dir log.Direction, role transport.PortRole, msg *log.MessageEvent) {
	p.opts.Logger.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: p.opts.ConnectionID,
		Direction:    dir,
		Layer:        log.LayerProtocol,
		Category:     log.CategoryMessage,
		PortRole:     string(role),
		Message:      msg,
	})
}

func (p *Protocol) logAttemptFailure(command string, attempt int, reason string) {
	p.opts.Logger.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: p.opts.ConnectionID,
		Direction:    log.DirectionIn,
		Layer:        log.LayerProtocol,
		Category:     log.CategoryError,
		PortRole:     string(transport.PortControl),
		Error: &log.ErrorEventData{
			Layer:   log.LayerProtocol,
			Message: reason,
			Context: fmt.Sprintf("command %q attempt %d/%d", command, attempt, p.opts.MaxRetries),
		},
	})
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
