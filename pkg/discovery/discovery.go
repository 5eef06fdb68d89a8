package discovery

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/emotiva-protocol/emotiva-go/pkg/backoff"
	"github.com/emotiva-protocol/emotiva-go/pkg/log"
	"github.com/emotiva-protocol/emotiva-go/pkg/version"
	"github.com/emotiva-protocol/emotiva-go/pkg/wire"
)

// PingPort is the fixed UDP port undiscovered devices listen on for
// discovery pings.
const PingPort = 7000

// Default option values.
const (
	DefaultTimeout     = 2 * time.Second
	DefaultMaxAttempts = 3
	DefaultBaseBackoff = 100 * time.Millisecond
)

// Options tune a discovery probe. The zero value gets safe defaults.
type Options struct {
	// Timeout is how long each attempt waits for a transponder response.
	Timeout time.Duration

	// MaxAttempts bounds the total number of probe attempts.
	MaxAttempts int

	// BaseBackoff is the delay after the first failed attempt; it
	// doubles on each subsequent failure.
	BaseBackoff time.Duration

	// MaxVersion is the highest protocol version to advertise in the
	// ping. Defaults to the newest version this library implements.
	MaxVersion version.SpecVersion

	// PingPort overrides the discovery port. Zero means the protocol's
	// fixed port; tests point it at a fake device.
	PingPort int

	Logger       log.Logger
	ConnectionID string
}

func (o *Options) fixup() {
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = DefaultMaxAttempts
	}
	if o.BaseBackoff <= 0 {
		o.BaseBackoff = DefaultBaseBackoff
	}
	if o.MaxVersion == (version.SpecVersion{}) {
		o.MaxVersion = version.MustParse(version.Current)
	}
	if o.PingPort == 0 {
		o.PingPort = PingPort
	}
	o.Logger = log.OrNoop(o.Logger)
}

// FetchTransponder probes host with a version-tagged ping and parses the
// device's self-description.
//
// Network-level failures (bind, send, receive timeout) are retried up to
// Options.MaxAttempts with exponential backoff. A response that arrives
// but cannot be parsed as a transponder message aborts immediately: it
// indicates a protocol mismatch, not a transient fault. Each attempt
// binds a fresh ephemeral receive port so a prior attempt's
// still-draining socket cannot swallow the reply.
func FetchTransponder(ctx context.Context, host string, opts Options) (*Transponder, error) {
	opts.fixup()

	addrs, err := net.DefaultResolver.LookupIPAddr(ctx, host)
	if err != nil || len(addrs) == 0 {
		if err == nil {
			err = fmt.Errorf("no addresses for %s", host)
		}
		return nil, &DiscoveryError{Host: host, Attempts: 0, Err: err}
	}
	dest := &net.UDPAddr{IP: addrs[0].IP, Port: opts.PingPort}

	ping := wire.BuildPing(opts.MaxVersion)
	bo := backoff.New(opts.BaseBackoff)

	var lastErr error
	for attempt := 1; attempt <= opts.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, &DiscoveryError{Host: host, Attempts: attempt - 1, Err: err}
		}

		t, err := probe(ctx, dest, ping, opts)
		if err == nil {
			return t, nil
		}

		var malformed *wire.MalformedMessageError
		if errors.As(err, &malformed) {
			return nil, &DiscoveryError{Host: host, Attempts: attempt, Err: err}
		}
		var parseErr *transponderError
		if errors.As(err, &parseErr) {
			return nil, &DiscoveryError{Host: host, Attempts: attempt, Err: parseErr.err}
		}

		lastErr = err
		opts.Logger.Log(log.Event{
			Timestamp:    time.Now(),
			ConnectionID: opts.ConnectionID,
			Direction:    log.DirectionOut,
			Layer:        log.LayerProtocol,
			Category:     log.CategoryError,
			RemoteAddr:   dest.String(),
			Error: &log.ErrorEventData{
				Layer:   log.LayerProtocol,
				Message: err.Error(),
				Context: fmt.Sprintf("discovery attempt %d/%d", attempt, opts.MaxAttempts),
			},
		})

		if attempt < opts.MaxAttempts {
			if !sleepCtx(ctx, bo.Next()) {
				return nil, &DiscoveryError{Host: host, Attempts: attempt, Err: ctx.Err()}
			}
		}
	}

	return nil, &DiscoveryError{Host: host, Attempts: opts.MaxAttempts, Err: lastErr}
}

// transponderError marks a received-but-uninterpretable response so the
// retry loop can tell it apart from network failures.
type transponderError struct {
	err error
}

func (e *transponderError) Error() string { return e.err.Error() }
func (e *transponderError) Unwrap() error { return e.err }

func probe(ctx context.Context, dest *net.UDPAddr, ping []byte, opts Options) (*Transponder, error) {
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4zero, Port: 0})
	if err != nil {
		return nil, fmt.Errorf("bind discovery socket: %w", err)
	}
	defer conn.Close()

	if _, err := conn.WriteToUDP(ping, dest); err != nil {
		return nil, fmt.Errorf("send ping: %w", err)
	}
	opts.Logger.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: opts.ConnectionID,
		Direction:    log.DirectionOut,
		Layer:        log.LayerWire,
		Category:     log.CategoryMessage,
		RemoteAddr:   dest.String(),
		Message: &log.MessageEvent{
			RootTag: wire.TagPing,
			Size:    len(ping),
		},
	})

	deadline := time.Now().Add(opts.Timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := conn.SetReadDeadline(deadline); err != nil {
		return nil, fmt.Errorf("set deadline: %w", err)
	}

	buf := make([]byte, 4096)
	for {
		n, src, err := conn.ReadFromUDP(buf)
		if err != nil {
			if errors.Is(err, os.ErrDeadlineExceeded) {
				return nil, fmt.Errorf("no transponder response within %s", opts.Timeout)
			}
			return nil, fmt.Errorf("receive transponder: %w", err)
		}

		root, err := wire.Parse(buf[:n])
		if err != nil {
			return nil, err
		}

		// The socket may pick up stray traffic on a busy network.
		// Anything that parses but is not a transponder is ignored.
		if root.Tag != wire.TagTransponder {
			continue
		}

		opts.Logger.Log(log.Event{
			Timestamp:    time.Now(),
			ConnectionID: opts.ConnectionID,
			Direction:    log.DirectionIn,
			Layer:        log.LayerWire,
			Category:     log.CategoryMessage,
			RemoteAddr:   src.String(),
			Message: &log.MessageEvent{
				RootTag: root.Tag,
				Size:    n,
			},
		})

		t, err := ParseTransponder(root)
		if err != nil {
			return nil, &transponderError{err: err}
		}
		return t, nil
	}
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

// HostPort formats a discovered host and role port for display.
func HostPort(host string, port int) string {
	return net.JoinHostPort(host, strconv.Itoa(port))
}
