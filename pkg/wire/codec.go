package wire

import (
	"github.com/emotiva-protocol/emotiva-go/pkg/version"
)

// protocolAttrMin is the first version whose update/subscribe requests
// carry an explicit protocol attribute.
var protocolAttrMin = version.SpecVersion{Major: 3, Minor: 0}

// BuildCommand builds an emotivaControl request carrying a single command.
// Every command carries an ack attribute (default "yes") and a value
// attribute (default "0"); extra attributes pass through verbatim in the
// order given. Output is deterministic.
func BuildCommand(name string, attrs []Attr) []byte {
	root := NewElement(TagControl)
	cmd := root.AddChild(name)

	cmd.SetAttr(AttrValue, "0")
	cmd.SetAttr(AttrAck, "yes")
	for _, a := range attrs {
		cmd.SetAttr(a.Name, a.Value)
	}
	return root.Encode()
}

// BuildUpdate builds an emotivaUpdate request polling the named
// properties. Versions 3.0 and later tag the request with the negotiated
// protocol version; older firmware rejects unknown attributes.
func BuildUpdate(names []string, v version.SpecVersion) []byte {
	root := NewElement(TagUpdate)
	if v.AtLeast(protocolAttrMin) {
		root.SetAttr(AttrProtocol, v.String())
	}
	for _, name := range names {
		root.AddChild(name)
	}
	return root.Encode()
}

// BuildSubscribe builds an emotivaSubscription request for the named
// properties. The protocol attribute follows the same rule as BuildUpdate.
func BuildSubscribe(names []string, v version.SpecVersion) []byte {
	root := NewElement(TagSubscribe)
	if v.AtLeast(protocolAttrMin) {
		root.SetAttr(AttrProtocol, v.String())
	}
	for _, name := range names {
		root.AddChild(name)
	}
	return root.Encode()
}

// BuildUnsubscribe builds an emotivaUnsubscribe request. Unsubscribe
// requests never carry a protocol attribute, on any version.
func BuildUnsubscribe(names []string) []byte {
	root := NewElement(TagUnsubscribe)
	for _, name := range names {
		root.AddChild(name)
	}
	return root.Encode()
}

// BuildPing builds the discovery ping. The ping is version-tagged so the
// device can answer with a transponder block for the highest mutually
// supported protocol.
func BuildPing(v version.SpecVersion) []byte {
	root := NewElement(TagPing)
	root.SetAttr(AttrProtocol, v.String())
	return root.Encode()
}
