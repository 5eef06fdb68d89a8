package discovery

import (
	"fmt"
	"strconv"
	"time"

	"github.com/emotiva-protocol/emotiva-go/pkg/transport"
	"github.com/emotiva-protocol/emotiva-go/pkg/version"
	"github.com/emotiva-protocol/emotiva-go/pkg/wire"
)

// Transponder is a device's self-description: its identity, the protocol
// version it speaks, the port for each logical role and how often it
// promises to emit keepalive notifications.
type Transponder struct {
	Name    string
	Model   string
	Version version.SpecVersion
	Ports   transport.PortMap

	// KeepaliveInterval is the device-advertised interval between
	// keepalive notifications. Zero if the device did not report one.
	KeepaliveInterval time.Duration
}

// ParseTransponder interprets a parsed datagram as a transponder message.
// The element must have the transponder root tag and a control block
// reporting a version plus both a control and a notify port. Zone-2 capable devices
// report a TCP setup port; it is carried under the setup role so callers
// see a uniform port map.
func ParseTransponder(root *wire.Element) (*Transponder, error) {
	if root.Tag != wire.TagTransponder {
		return nil, fmt.Errorf("unexpected root tag %q, want %q", root.Tag, wire.TagTransponder)
	}

	control := root.Child("control")
	if control == nil {
		return nil, fmt.Errorf("transponder message has no control block")
	}

	ver, err := version.Parse(control.ChildText("version"))
	if err != nil {
		return nil, fmt.Errorf("transponder version: %w", err)
	}

	t := &Transponder{
		Name:    root.ChildText("name"),
		Model:   root.ChildText("model"),
		Version: ver,
		Ports:   transport.PortMap{},
	}

	for _, role := range transport.Roles {
		text := control.ChildText(string(role))
		if text == "" && role == transport.PortSetup {
			// Older firmware reports the setup port under its TCP name.
			text = control.ChildText("setupPortTCP")
		}
		if text == "" {
			continue
		}
		port, err := strconv.Atoi(text)
		if err != nil || port <= 0 || port > 65535 {
			return nil, fmt.Errorf("transponder reports invalid %s %q", role, text)
		}
		t.Ports[role] = port
	}

	// Commands need the control port and the notification loop needs the
	// notify port. A device advertising neither is unusable, so reject
	// it here rather than connecting with a dead notify path.
	for _, role := range []transport.PortRole{transport.PortControl, transport.PortNotify} {
		if _, ok := t.Ports[role]; !ok {
			return nil, fmt.Errorf("transponder reports no %s", role)
		}
	}

	if ka := control.ChildText("keepAlive"); ka != "" {
		ms, err := strconv.Atoi(ka)
		if err != nil || ms < 0 {
			return nil, fmt.Errorf("transponder reports invalid keepAlive %q", ka)
		}
		t.KeepaliveInterval = time.Duration(ms) * time.Millisecond
	}

	return t, nil
}
