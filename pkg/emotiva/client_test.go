package emotiva

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, timeout time.Duration, cond func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return cond()
}

func TestConnectDisconnectLifecycle(t *testing.T) {
	rx := newFakeReceiver(t, "3.1")
	client := NewClient(testConfig(rx), nil)
	ctx := context.Background()

	if client.State() != StateDisconnected {
		t.Fatalf("initial state = %v, want disconnected", client.State())
	}
	if _, err := client.RequestProperties(ctx, []string{"power"}, 0); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("request before connect: err = %v, want ErrNotConnected", err)
	}

	if err := client.Connect(ctx); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer client.Disconnect(ctx)

	if client.State() != StateConnected {
		t.Fatalf("state after connect = %v, want connected", client.State())
	}
	if client.ConnectionID() == "" {
		t.Error("connected client has empty connection ID")
	}

	tr := client.Transponder()
	if tr == nil {
		t.Fatal("connected client has nil transponder")
	}
	if tr.Name != "Test Rig" || tr.Model != "XMC-2" {
		t.Errorf("transponder identity = %q/%q", tr.Name, tr.Model)
	}
	if got := tr.Version.String(); got != "3.1" {
		t.Errorf("transponder version = %s, want 3.1", got)
	}

	// Second Connect is a no-op: no extra discovery round.
	pings := rx.pingCount.Load()
	if err := client.Connect(ctx); err != nil {
		t.Fatalf("repeated Connect: %v", err)
	}
	if got := rx.pingCount.Load(); got != pings {
		t.Errorf("repeated Connect sent %d extra pings", got-pings)
	}

	if err := client.Disconnect(ctx); err != nil {
		t.Fatalf("Disconnect: %v", err)
	}
	if client.State() != StateDisconnected {
		t.Fatalf("state after disconnect = %v, want disconnected", client.State())
	}
	if client.ConnectionID() != "" {
		t.Error("disconnected client still reports a connection ID")
	}
	if client.Transponder() != nil {
		t.Error("disconnected client still reports a transponder")
	}

	// Disconnect again is a no-op.
	if err := client.Disconnect(ctx); err != nil {
		t.Fatalf("repeated Disconnect: %v", err)
	}
}

func TestConcurrentConnectSingleDiscovery(t *testing.T) {
	rx := newFakeReceiver(t, "3.1")
	client := NewClient(testConfig(rx), nil)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make([]error, 5)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = client.Connect(ctx)
		}(i)
	}
	wg.Wait()
	defer client.Disconnect(ctx)

	for i, err := range errs {
		if err != nil {
			t.Errorf("Connect %d: %v", i, err)
		}
	}
	if got := rx.pingCount.Load(); got != 1 {
		t.Errorf("concurrent connects sent %d pings, want 1", got)
	}
	if client.State() != StateConnected {
		t.Fatalf("state = %v, want connected", client.State())
	}
}

func TestConnectFailureRollsBack(t *testing.T) {
	cfg := DefaultConfig("127.0.0.1")
	cfg.PingPort = freeUDPPort(t) // nobody answers here
	cfg.Timeout = 50 * time.Millisecond
	cfg.MaxRetries = 2
	cfg.BaseBackoff = 10 * time.Millisecond

	client := NewClient(cfg, nil)
	err := client.Connect(context.Background())
	if err == nil {
		t.Fatal("Connect against dead host succeeded")
	}
	if client.State() != StateDisconnected {
		t.Fatalf("state after failed connect = %v, want disconnected", client.State())
	}

	// Still usable: nothing is half-open.
	if _, err := client.RequestProperties(context.Background(), []string{"power"}, 0); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("err = %v, want ErrNotConnected", err)
	}
}

func TestConnectRejectsMissingHost(t *testing.T) {
	client := NewClient(Config{}, nil)
	if err := client.Connect(context.Background()); !errors.Is(err, ErrMissingHost) {
		t.Fatalf("err = %v, want ErrMissingHost", err)
	}
}

func TestLegacyNotificationReachesCallback(t *testing.T) {
	rx := newFakeReceiver(t, "2.0")
	client := NewClient(testConfig(rx), nil)
	ctx := context.Background()

	var mu sync.Mutex
	var got string
	client.On("power", func(_ context.Context, _, value string) {
		mu.Lock()
		got = value
		mu.Unlock()
	})

	if err := client.Connect(ctx); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer client.Disconnect(ctx)

	rx.pushNotify(`<emotivaNotify><power>On</power></emotivaNotify>`)

	ok := waitFor(t, 2*time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return got == "On"
	})
	if !ok {
		t.Fatalf("callback never saw power=On")
	}
}

func TestTaggedNotificationReachesCallback(t *testing.T) {
	rx := newFakeReceiver(t, "3.1")
	client := NewClient(testConfig(rx), nil)
	ctx := context.Background()

	var mu sync.Mutex
	var got string
	client.On("volume", func(_ context.Context, _, value string) {
		mu.Lock()
		got = value
		mu.Unlock()
	})

	if err := client.Connect(ctx); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer client.Disconnect(ctx)

	rx.pushNotify(`<emotivaNotify sequence="9"><property name="volume" value="-40.5" visible="true"/></emotivaNotify>`)

	ok := waitFor(t, 2*time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return got == "-40.5"
	})
	if !ok {
		t.Fatalf("callback never saw volume=-40.5")
	}
}

func TestDisconnectNotBlockedByCallback(t *testing.T) {
	rx := newFakeReceiver(t, "3.1")
	client := NewClient(testConfig(rx), nil)
	ctx := context.Background()

	started := make(chan struct{})
	client.On("power", func(_ context.Context, _, _ string) {
		close(started)
		// Linger long enough for Disconnect to begin, then call back
		// into the client. Neither must stall the teardown.
		time.Sleep(500 * time.Millisecond)
		_ = client.State()
	})

	if err := client.Connect(ctx); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	rx.pushNotify(`<emotivaNotify sequence="1"><property name="power" value="On" visible="true"/></emotivaNotify>`)

	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("callback never ran")
	}

	done := make(chan error, 1)
	go func() { done <- client.Disconnect(ctx) }()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Disconnect: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Disconnect blocked on an in-flight callback")
	}

	if st := client.State(); st != StateDisconnected {
		t.Errorf("state = %v, want %v", st, StateDisconnected)
	}
}

func TestSendCommandAcked(t *testing.T) {
	rx := newFakeReceiver(t, "3.1")
	client := NewClient(testConfig(rx), nil)
	ctx := context.Background()

	if err := client.Connect(ctx); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer client.Disconnect(ctx)

	if err := client.PowerOn(ctx); err != nil {
		t.Fatalf("PowerOn: %v", err)
	}
	if err := client.SetVolume(ctx, -30); err != nil {
		t.Fatalf("SetVolume: %v", err)
	}

	names := rx.commandNames()
	if len(names) != 2 || names[0] != "power_on" || names[1] != "set_volume" {
		t.Fatalf("device saw commands %v", names)
	}
}

func TestRequestPropertiesRoundTrip(t *testing.T) {
	rx := newFakeReceiver(t, "3.1")
	rx.setValue("power", "On")
	rx.setValue("volume", "-28.0")

	client := NewClient(testConfig(rx), nil)
	ctx := context.Background()

	if err := client.Connect(ctx); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer client.Disconnect(ctx)

	got, err := client.RequestProperties(ctx, []string{"power", "volume"}, 0)
	if err != nil {
		t.Fatalf("RequestProperties: %v", err)
	}
	if got["power"] != "On" || got["volume"] != "-28.0" {
		t.Fatalf("properties = %v", got)
	}
}

func TestSubscribeAndDisconnectUnsubscribes(t *testing.T) {
	rx := newFakeReceiver(t, "3.1")
	client := NewClient(testConfig(rx), nil)
	ctx := context.Background()

	if err := client.Connect(ctx); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	statuses, err := client.Subscribe(ctx, []string{"power", "volume"})
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	if !statuses["power"].Acked || !statuses["volume"].Acked {
		t.Fatalf("subscribe statuses = %v", statuses)
	}

	if err := client.Disconnect(ctx); err != nil {
		t.Fatalf("Disconnect: %v", err)
	}

	unsubs := rx.unsubscribed()
	if len(unsubs) != 1 {
		t.Fatalf("device saw %d unsubscribes, want 1", len(unsubs))
	}
	seen := map[string]bool{}
	for _, name := range unsubs[0] {
		seen[name] = true
	}
	if !seen["power"] || !seen["volume"] {
		t.Fatalf("disconnect unsubscribed %v", unsubs[0])
	}
}

func TestExplicitUnsubscribeShrinksDisconnectSet(t *testing.T) {
	rx := newFakeReceiver(t, "3.1")
	client := NewClient(testConfig(rx), nil)
	ctx := context.Background()

	if err := client.Connect(ctx); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	if _, err := client.Subscribe(ctx, []string{"power", "volume"}); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	if _, err := client.Unsubscribe(ctx, []string{"volume"}); err != nil {
		t.Fatalf("Unsubscribe: %v", err)
	}
	if err := client.Disconnect(ctx); err != nil {
		t.Fatalf("Disconnect: %v", err)
	}

	unsubs := rx.unsubscribed()
	if len(unsubs) != 2 {
		t.Fatalf("device saw %d unsubscribes, want 2", len(unsubs))
	}
	final := unsubs[1]
	if len(final) != 1 || final[0] != "power" {
		t.Fatalf("disconnect unsubscribed %v, want [power]", final)
	}
}

func TestKeepaliveTracking(t *testing.T) {
	rx := newFakeReceiver(t, "3.1")
	client := NewClient(testConfig(rx), nil)
	ctx := context.Background()

	if err := client.Connect(ctx); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer client.Disconnect(ctx)

	if !client.LastKeepalive().IsZero() {
		t.Fatal("keepalive timestamp set before any keepalive arrived")
	}

	rx.pushNotify(`<emotivaNotify sequence="1"><property name="keepAlive" value="7500" visible="true"/></emotivaNotify>`)

	ok := waitFor(t, 2*time.Second, func() bool {
		return !client.LastKeepalive().IsZero()
	})
	if !ok {
		t.Fatal("keepalive notification never tracked")
	}
}

func TestCallbackSurvivesReconnect(t *testing.T) {
	rx := newFakeReceiver(t, "3.1")
	client := NewClient(testConfig(rx), nil)
	ctx := context.Background()

	var mu sync.Mutex
	var got string
	client.On("power", func(_ context.Context, _, value string) {
		mu.Lock()
		got = value
		mu.Unlock()
	})

	if err := client.Connect(ctx); err != nil {
		t.Fatalf("first Connect: %v", err)
	}
	if err := client.Disconnect(ctx); err != nil {
		t.Fatalf("Disconnect: %v", err)
	}
	if err := client.Connect(ctx); err != nil {
		t.Fatalf("second Connect: %v", err)
	}
	defer client.Disconnect(ctx)

	rx.pushNotify(`<emotivaNotify><property name="power" value="Off" visible="true"/></emotivaNotify>`)

	ok := waitFor(t, 2*time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return got == "Off"
	})
	if !ok {
		t.Fatal("callback registered before reconnect never fired")
	}
}

func TestStatusPolls(t *testing.T) {
	rx := newFakeReceiver(t, "3.1")
	rx.setValue("power", "On")
	rx.setValue("mute", "Off")

	client := NewClient(testConfig(rx), nil)
	ctx := context.Background()

	if err := client.Connect(ctx); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer client.Disconnect(ctx)

	got, err := client.Status(ctx)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	// Only properties the device knows come back.
	if got["power"] != "On" || got["mute"] != "Off" {
		t.Fatalf("status = %v", got)
	}
	if _, ok := got["zone2_power"]; ok {
		t.Errorf("status includes a property the device never reported")
	}
}
