package dispatcher

import (
	"context"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/emotiva-protocol/emotiva-go/pkg/transport"
)

// notifyConn is an in-memory transport whose notify role is fed by the
// test.
type notifyConn struct {
	ch chan []byte
}

func newNotifyConn() *notifyConn {
	return &notifyConn{ch: make(chan []byte, 16)}
}

func (c *notifyConn) push(data string) {
	c.ch <- []byte(data)
}

func (c *notifyConn) Send([]byte, transport.PortRole) error {
	return nil
}

func (c *notifyConn) Recv(ctx context.Context, role transport.PortRole, timeout time.Duration) ([]byte, net.Addr, error) {
	if role != transport.PortNotify {
		return nil, nil, transport.ErrUnknownRole
	}
	select {
	case data := <-c.ch:
		return data, &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)}, nil
	case <-time.After(timeout):
		return nil, nil, transport.ErrRecvTimeout
	case <-ctx.Done():
		return nil, nil, ctx.Err()
	}
}

func waitForValue(t *testing.T, ch <-chan string, want string) {
	t.Helper()
	select {
	case got := <-ch:
		if got != want {
			t.Errorf("callback got %q, want %q", got, want)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("callback never invoked with %q", want)
	}
}

func TestCallbackReceivesLegacyNotification(t *testing.T) {
	conn := newNotifyConn()
	d := New(conn, Options{})

	values := make(chan string, 1)
	d.On("power", func(_ context.Context, _, value string) {
		values <- value
	})

	d.Start()
	defer d.Stop()

	conn.push(`<emotivaNotify sequence="1"><power>On</power></emotivaNotify>`)
	waitForValue(t, values, "On")
}

func TestCallbackReceivesTaggedNotification(t *testing.T) {
	conn := newNotifyConn()
	d := New(conn, Options{})

	values := make(chan string, 1)
	d.On("volume", func(_ context.Context, _, value string) {
		values <- value
	})

	d.Start()
	defer d.Stop()

	conn.push(`<emotivaNotify sequence="1"><property name="volume" value="-40.5" visible="true"/></emotivaNotify>`)
	waitForValue(t, values, "-40.5")
}

func TestMultipleCallbacksPerProperty(t *testing.T) {
	conn := newNotifyConn()
	d := New(conn, Options{})

	first := make(chan string, 1)
	second := make(chan string, 1)
	d.On("power", func(_ context.Context, _, value string) { first <- value })
	d.On("power", func(_ context.Context, _, value string) { second <- value })

	d.Start()
	defer d.Stop()

	conn.push(`<emotivaNotify><power>Off</power></emotivaNotify>`)
	waitForValue(t, first, "Off")
	waitForValue(t, second, "Off")
}

func TestUnregisteredPropertyIgnored(t *testing.T) {
	conn := newNotifyConn()
	d := New(conn, Options{})

	var calls atomic.Int32
	d.On("power", func(_ context.Context, _, _ string) { calls.Add(1) })

	d.Start()
	defer d.Stop()

	conn.push(`<emotivaNotify><volume>-40</volume></emotivaNotify>`)
	time.Sleep(100 * time.Millisecond)

	if got := calls.Load(); got != 0 {
		t.Errorf("callback invoked %d times for unregistered property", got)
	}
}

func TestStopCancelsInFlightCallback(t *testing.T) {
	conn := newNotifyConn()
	d := New(conn, Options{CallbackTimeout: 30 * time.Second})

	running := make(chan struct{})
	cancelled := make(chan struct{})
	d.On("power", func(ctx context.Context, _, _ string) {
		close(running)
		<-ctx.Done()
		close(cancelled)
	})

	d.Start()
	conn.push(`<emotivaNotify><power>On</power></emotivaNotify>`)

	select {
	case <-running:
	case <-time.After(2 * time.Second):
		t.Fatal("callback never started")
	}

	done := make(chan struct{})
	go func() {
		d.Stop()
		close(done)
	}()

	select {
	case <-cancelled:
	case <-time.After(2 * time.Second):
		t.Fatal("callback did not observe cancellation")
	}
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return")
	}
}

func TestStopAbandonsUnresponsiveCallback(t *testing.T) {
	conn := newNotifyConn()
	d := New(conn, Options{CallbackTimeout: 30 * time.Second})

	running := make(chan struct{})
	release := make(chan struct{})
	d.On("power", func(_ context.Context, _, _ string) {
		close(running)
		// Ignores its context entirely.
		<-release
	})

	d.Start()
	conn.push(`<emotivaNotify><power>On</power></emotivaNotify>`)

	select {
	case <-running:
	case <-time.After(2 * time.Second):
		t.Fatal("callback never started")
	}

	done := make(chan struct{})
	go func() {
		d.Stop()
		close(done)
	}()

	// Stop returns after the grace period even though the callback is
	// still stuck.
	select {
	case <-done:
	case <-time.After(stopGrace + 2*time.Second):
		t.Fatal("Stop blocked on a callback that ignores cancellation")
	}
	close(release)
}

func TestNoCallbackAfterStop(t *testing.T) {
	conn := newNotifyConn()
	d := New(conn, Options{})

	var calls atomic.Int32
	d.On("power", func(_ context.Context, _, _ string) { calls.Add(1) })

	d.Start()
	conn.push(`<emotivaNotify><power>On</power></emotivaNotify>`)

	deadline := time.Now().Add(2 * time.Second)
	for calls.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}

	d.Stop()
	before := calls.Load()

	conn.push(`<emotivaNotify><power>Off</power></emotivaNotify>`)
	time.Sleep(100 * time.Millisecond)

	if got := calls.Load(); got != before {
		t.Errorf("callback ran after Stop: %d -> %d invocations", before, got)
	}
}

func TestPanickingCallbackIsolated(t *testing.T) {
	conn := newNotifyConn()
	d := New(conn, Options{})

	values := make(chan string, 2)
	d.On("power", func(_ context.Context, _, _ string) {
		panic("callback bug")
	})
	d.On("power", func(_ context.Context, _, value string) {
		values <- value
	})

	d.Start()
	defer d.Stop()

	conn.push(`<emotivaNotify><power>On</power></emotivaNotify>`)
	waitForValue(t, values, "On")

	// The loop survives for the next notification.
	conn.push(`<emotivaNotify><power>Off</power></emotivaNotify>`)
	waitForValue(t, values, "Off")
}

func TestStaleSequenceStillDispatched(t *testing.T) {
	conn := newNotifyConn()
	d := New(conn, Options{})

	values := make(chan string, 2)
	d.On("power", func(_ context.Context, _, value string) {
		values <- value
	})

	d.Start()
	defer d.Stop()

	conn.push(`<emotivaNotify sequence="5"><power>On</power></emotivaNotify>`)
	waitForValue(t, values, "On")

	// Older sequence number is logged but never dropped.
	conn.push(`<emotivaNotify sequence="3"><power>Off</power></emotivaNotify>`)
	waitForValue(t, values, "Off")
}

func TestMenuNotifyDispatched(t *testing.T) {
	conn := newNotifyConn()
	d := New(conn, Options{})

	values := make(chan string, 1)
	d.On("menu", func(_ context.Context, _, value string) {
		values <- value
	})

	d.Start()
	defer d.Stop()

	conn.push(`<emotivaMenuNotify><menu>On</menu></emotivaMenuNotify>`)
	waitForValue(t, values, "On")
}

func TestStartStopIdempotent(t *testing.T) {
	conn := newNotifyConn()
	d := New(conn, Options{})

	d.Stop() // never started
	d.Start()
	d.Start()
	d.Stop()
	d.Stop()
}

func TestMalformedNotificationSkipped(t *testing.T) {
	conn := newNotifyConn()
	d := New(conn, Options{})

	values := make(chan string, 1)
	d.On("power", func(_ context.Context, _, value string) {
		values <- value
	})

	d.Start()
	defer d.Stop()

	conn.push(`<emotivaNotify><broken`)
	conn.push(`<emotivaNotify><power>On</power></emotivaNotify>`)
	waitForValue(t, values, "On")
}
