package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/emotiva-protocol/emotiva-go/pkg/log"
	"github.com/emotiva-protocol/emotiva-go/pkg/transport"
	"github.com/emotiva-protocol/emotiva-go/pkg/wire"
)

// DefaultCallbackTimeout bounds a single callback invocation.
const DefaultCallbackTimeout = 5 * time.Second

// recvPoll is how often the receive loop re-checks for shutdown while
// idle.
const recvPoll = 500 * time.Millisecond

// stopGrace bounds how long Stop waits for cancelled callbacks to
// return. A callback ignoring its context must not stall shutdown.
const stopGrace = time.Second

// Callback handles one property update. The context is cancelled when
// the invocation times out or the dispatcher stops; long-running
// callbacks should honor it.
type Callback func(ctx context.Context, property, value string)

// Options configure a Dispatcher.
type Options struct {
	// CallbackTimeout bounds each callback invocation.
	CallbackTimeout time.Duration

	Logger       log.Logger
	ConnectionID string
}

// Dispatcher receives pushed notifications and fans them out to
// per-property callback lists.
type Dispatcher struct {
	conn transport.Conn
	opts Options

	mu        sync.Mutex
	callbacks map[string][]Callback
	started   bool
	cancel    context.CancelFunc

	// Receive loop goroutine.
	loopWG sync.WaitGroup

	// In-flight callback invocations, tracked so Stop can enumerate
	// and wait for them.
	unitsMu sync.Mutex
	units   map[*dispatchUnit]struct{}
	unitsWG sync.WaitGroup

	// Last observed notification sequence, for staleness logging only.
	seqMu   sync.Mutex
	lastSeq uint64
	haveSeq bool
}

type dispatchUnit struct {
	property string
	cancel   context.CancelFunc
}

// New creates a Dispatcher reading from conn's notify role.
func New(conn transport.Conn, opts Options) *Dispatcher {
	if opts.CallbackTimeout <= 0 {
		opts.CallbackTimeout = DefaultCallbackTimeout
	}
	opts.Logger = log.OrNoop(opts.Logger)
	return &Dispatcher{
		conn:      conn,
		opts:      opts,
		callbacks: make(map[string][]Callback),
		units:     make(map[*dispatchUnit]struct{}),
	}
}

// On registers cb for updates of the named property. Multiple callbacks
// per property are invoked independently. Registration is allowed before
// or after Start.
func (d *Dispatcher) On(property string, cb Callback) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.callbacks[property] = append(d.callbacks[property], cb)
}

// Start launches the notify receive loop. Idempotent.
func (d *Dispatcher) Start() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started {
		return
	}
	d.started = true

	ctx, cancel := context.WithCancel(context.Background())
	d.cancel = cancel

	d.loopWG.Add(1)
	go d.receiveLoop(ctx)
}

// Stop cancels the receive loop and every in-flight callback, then
// waits up to stopGrace for the callbacks to finish. Callbacks still
// running after the grace period are abandoned. Idempotent, safe to
// call when never started.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if !d.started {
		d.mu.Unlock()
		return
	}
	d.started = false
	cancel := d.cancel
	d.cancel = nil
	d.mu.Unlock()

	cancel()
	d.loopWG.Wait()

	d.unitsMu.Lock()
	for unit := range d.units {
		unit.cancel()
	}
	d.unitsMu.Unlock()

	done := make(chan struct{})
	go func() {
		d.unitsWG.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(stopGrace):
		d.logError("callbacks still running after stop grace period", "stop")
	}
}

func (d *Dispatcher) receiveLoop(ctx context.Context) {
	defer d.loopWG.Done()

	for {
		data, _, err := d.conn.Recv(ctx, transport.PortNotify, recvPoll)
		if err != nil {
			if errors.Is(err, transport.ErrRecvTimeout) {
				continue
			}
			// Stopped transport or cancelled context ends the loop.
			return
		}

		root, err := wire.Parse(data)
		if err != nil {
			d.logError(err.Error(), "parse notification")
			continue
		}

		switch root.Tag {
		case wire.TagNotify, wire.TagMenuNotify, wire.TagUpdate:
		default:
			continue
		}

		d.checkSequence(root)

		props := wire.ExtractProperties(root)
		if len(props) == 0 {
			continue
		}

		names := make([]string, 0, len(props))
		for name := range props {
			names = append(names, name)
		}
		seq, _ := wire.Sequence(root)
		d.opts.Logger.Log(log.Event{
			Timestamp:    time.Now(),
			ConnectionID: d.opts.ConnectionID,
			Direction:    log.DirectionIn,
			Layer:        log.LayerProtocol,
			Category:     log.CategoryMessage,
			PortRole:     string(transport.PortNotify),
			Message: &log.MessageEvent{
				RootTag:    root.Tag,
				Properties: names,
				Sequence:   seq,
				Size:       len(data),
			},
		})

		for name, value := range props {
			d.dispatch(ctx, name, value)
		}
	}
}

// dispatch fans one property update out to its callbacks, each in its
// own tracked, timeout-bounded goroutine.
func (d *Dispatcher) dispatch(ctx context.Context, property, value string) {
	d.mu.Lock()
	cbs := d.callbacks[property]
	d.mu.Unlock()
	if len(cbs) == 0 {
		return
	}

	for _, cb := range cbs {
		unitCtx, unitCancel := context.WithTimeout(ctx, d.opts.CallbackTimeout)
		unit := &dispatchUnit{property: property, cancel: unitCancel}

		d.unitsMu.Lock()
		d.units[unit] = struct{}{}
		d.unitsMu.Unlock()

		d.unitsWG.Add(1)
		go func(cb Callback) {
			defer d.unitsWG.Done()
			defer unitCancel()
			defer func() {
				d.unitsMu.Lock()
				delete(d.units, unit)
				d.unitsMu.Unlock()
			}()
			defer func() {
				if r := recover(); r != nil {
					d.logError(fmt.Sprintf("callback panic: %v", r),
						fmt.Sprintf("property %q", property))
				}
			}()

			cb(unitCtx, property, value)
		}(cb)
	}
}

// checkSequence logs when a notification arrives with a sequence number
// at or below the last one seen. Stale notifications are still
// dispatched: sequence numbers inform diagnostics, never filtering.
func (d *Dispatcher) checkSequence(root *wire.Element) {
	raw, ok := wire.Sequence(root)
	if !ok {
		return
	}
	seq, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return
	}

	d.seqMu.Lock()
	defer d.seqMu.Unlock()

	if d.haveSeq && seq <= d.lastSeq {
		d.logError(
			fmt.Sprintf("stale notification sequence %d after %d", seq, d.lastSeq),
			"sequence check")
		return
	}
	d.lastSeq = seq
	d.haveSeq = true
}

func (d *Dispatcher) logError(message, context string) {
	d.opts.Logger.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: d.opts.ConnectionID,
		Direction:    log.DirectionIn,
		Layer:        log.LayerProtocol,
		Category:     log.CategoryError,
		PortRole:     string(transport.PortNotify),
		Error: &log.ErrorEventData{
			Layer:   log.LayerProtocol,
			Message: message,
			Context: context,
		},
	})
}
