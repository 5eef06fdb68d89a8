package emotiva

import (
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/emotiva-protocol/emotiva-go/pkg/wire"
)

// fakeReceiver emulates a device on loopback: a discovery responder, a
// control port that acks commands, an info port that answers polls and
// subscriptions, and a notify pusher.
type fakeReceiver struct {
	t *testing.T

	ping    *net.UDPConn
	control *net.UDPConn
	info    *net.UDPConn

	// protocolVersion the transponder reports.
	protocolVersion string

	// notifyPort is where the client listens for pushes.
	notifyPort int

	pingCount atomic.Int32

	mu       sync.Mutex
	commands []string
	subs     [][]string
	unsubs   [][]string

	// property values served to emotivaUpdate polls.
	values map[string]string
}

func newFakeReceiver(t *testing.T, protocolVersion string) *fakeReceiver {
	t.Helper()

	r := &fakeReceiver{
		t:               t,
		protocolVersion: protocolVersion,
		notifyPort:      freeUDPPort(t),
		values:          map[string]string{},
	}
	r.ping = listenLoopback(t)
	r.control = listenLoopback(t)
	r.info = listenLoopback(t)

	go r.servePing()
	go r.serveControl()
	go r.serveInfo()
	return r
}

func listenLoopback(t *testing.T) *net.UDPConn {
	t.Helper()
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 0})
	if err != nil {
		t.Fatalf("fake receiver bind: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func freeUDPPort(t *testing.T) int {
	t.Helper()
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 0})
	if err != nil {
		t.Fatalf("probe for free port: %v", err)
	}
	port := conn.LocalAddr().(*net.UDPAddr).Port
	conn.Close()
	return port
}

func udpPort(conn *net.UDPConn) int {
	return conn.LocalAddr().(*net.UDPAddr).Port
}

func (r *fakeReceiver) pingPort() int {
	return udpPort(r.ping)
}

func (r *fakeReceiver) setValue(name, value string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.values[name] = value
}

func (r *fakeReceiver) commandNames() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.commands...)
}

func (r *fakeReceiver) unsubscribed() [][]string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([][]string(nil), r.unsubs...)
}

// pushNotify sends an unsolicited notification to the client's notify
// port.
func (r *fakeReceiver) pushNotify(payload string) {
	dest := &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: r.notifyPort}
	if _, err := r.info.WriteToUDP([]byte(payload), dest); err != nil {
		r.t.Logf("pushNotify: %v", err)
	}
}

func (r *fakeReceiver) transponderXML() string {
	return fmt.Sprintf(`<emotivaTransponder>
		<name>Test Rig</name>
		<model>XMC-2</model>
		<control>
			<version>%s</version>
			<controlPort>%d</controlPort>
			<notifyPort>%d</notifyPort>
			<infoPort>%d</infoPort>
			<keepAlive>7500</keepAlive>
		</control>
	</emotivaTransponder>`, r.protocolVersion, udpPort(r.control), r.notifyPort, udpPort(r.info))
}

func (r *fakeReceiver) servePing() {
	buf := make([]byte, 4096)
	for {
		n, src, err := r.ping.ReadFromUDP(buf)
		if err != nil {
			return
		}
		root, err := wire.Parse(buf[:n])
		if err != nil || root.Tag != wire.TagPing {
			continue
		}
		r.pingCount.Add(1)
		r.ping.WriteToUDP([]byte(r.transponderXML()), src)
	}
}

func (r *fakeReceiver) serveControl() {
	buf := make([]byte, 4096)
	for {
		n, src, err := r.control.ReadFromUDP(buf)
		if err != nil {
			return
		}
		root, err := wire.Parse(buf[:n])
		if err != nil || root.Tag != wire.TagControl || len(root.Children) == 0 {
			continue
		}

		name := root.Children[0].Tag
		r.mu.Lock()
		r.commands = append(r.commands, name)
		r.mu.Unlock()

		ack := wire.NewElement(wire.TagAck)
		ack.AddChild(name).SetAttr(wire.AttrStatus, wire.StatusAck)
		r.control.WriteToUDP(ack.Encode(), src)
	}
}

func (r *fakeReceiver) serveInfo() {
	buf := make([]byte, 4096)
	for {
		n, src, err := r.info.ReadFromUDP(buf)
		if err != nil {
			return
		}
		root, err := wire.Parse(buf[:n])
		if err != nil {
			continue
		}

		names := make([]string, 0, len(root.Children))
		for _, c := range root.Children {
			names = append(names, c.Tag)
		}

		switch root.Tag {
		case wire.TagUpdate:
			reply := wire.NewElement(wire.TagNotify)
			r.mu.Lock()
			for _, name := range names {
				if value, ok := r.values[name]; ok {
					p := reply.AddChild("property")
					p.SetAttr(wire.AttrName, name)
					p.SetAttr(wire.AttrValue, value)
					p.SetAttr(wire.AttrVisible, "true")
				}
			}
			r.mu.Unlock()
			r.info.WriteToUDP(reply.Encode(), src)

		case wire.TagSubscribe:
			r.mu.Lock()
			r.subs = append(r.subs, names)
			r.mu.Unlock()

			reply := wire.NewElement(wire.TagSubscribe)
			for _, name := range names {
				p := reply.AddChild("property")
				p.SetAttr(wire.AttrName, name)
				p.SetAttr(wire.AttrStatus, wire.StatusAck)
				p.SetAttr(wire.AttrVisible, "true")
			}
			r.info.WriteToUDP(reply.Encode(), src)

		case wire.TagUnsubscribe:
			r.mu.Lock()
			r.unsubs = append(r.unsubs, names)
			r.mu.Unlock()

			reply := wire.NewElement(wire.TagUnsubscribe)
			for _, name := range names {
				p := reply.AddChild("property")
				p.SetAttr(wire.AttrName, name)
				p.SetAttr(wire.AttrStatus, wire.StatusAck)
			}
			r.info.WriteToUDP(reply.Encode(), src)
		}
	}
}

// testConfig returns a Config pointed at the fake receiver with fast
// timeouts.
func testConfig(r *fakeReceiver) Config {
	c := DefaultConfig("127.0.0.1")
	c.PingPort = r.pingPort()
	c.Timeout = time.Second
	c.AckTimeout = time.Second
	c.BaseBackoff = 10 * time.Millisecond
	return c
}
