package wire

import "strings"

// Format identifies which of the two property shapes a message uses.
// The two shapes never mix within one message.
type Format int

const (
	// FormatLegacy names each property by its element tag (protocol 2.x):
	// <power>On</power> or <power value="On"/>.
	FormatLegacy Format = iota

	// FormatTagged uses uniform "property" elements (protocol 3.x):
	// <property name="power" value="On"/>.
	FormatTagged
)

// String returns the format name.
func (f Format) String() string {
	if f == FormatTagged {
		return "TAGGED"
	}
	return "LEGACY"
}

// PropertyStatus is a per-property outcome from a subscription
// confirmation.
type PropertyStatus struct {
	// Acked reports whether the device accepted the subscription.
	Acked bool

	// Value is the property's current value at confirmation time.
	Value string

	// Visible reports whether the property is visible on the current
	// device configuration.
	Visible bool
}

// DetectFormat resolves which property shape a parsed notification or
// subscription element uses. A message whose children are all literally
// named "property" is the tagged format; anything else is legacy.
// Resolving the shape once here keeps format checks out of the protocol
// and dispatcher layers.
func DetectFormat(root *Element) Format {
	for _, c := range root.Children {
		if c.Tag == "property" {
			return FormatTagged
		}
	}
	return FormatLegacy
}

// ExtractProperties returns the property name to value mapping carried by
// a notification element, in either wire format.
//
// Legacy elements prefer their text content over a value attribute;
// tagged elements prefer the value attribute over text. A tagged element
// without a name attribute is ignored.
func ExtractProperties(root *Element) map[string]string {
	props := make(map[string]string)

	switch DetectFormat(root) {
	case FormatTagged:
		for _, c := range root.Children {
			if c.Tag != "property" {
				continue
			}
			name, ok := c.Attr(AttrName)
			if !ok || name == "" {
				continue
			}
			if v, ok := c.Attr(AttrValue); ok {
				props[name] = v
			} else {
				props[name] = strings.TrimSpace(c.Text)
			}
		}
	case FormatLegacy:
		for _, c := range root.Children {
			if text := strings.TrimSpace(c.Text); text != "" {
				props[c.Tag] = text
			} else {
				props[c.Tag] = c.AttrDefault(AttrValue, "")
			}
		}
	}
	return props
}

// ExtractStatuses returns the per-property outcomes carried by a
// subscription confirmation, in either wire format. Properties the
// device reported as failed appear with Acked false.
func ExtractStatuses(root *Element) map[string]PropertyStatus {
	statuses := make(map[string]PropertyStatus)

	record := func(name string, el *Element) {
		value, hasValue := el.Attr(AttrValue)
		if !hasValue {
			value = strings.TrimSpace(el.Text)
		}
		// Firmware that omits the status attribute still acked the
		// property: failures are always tagged explicitly.
		status := el.AttrDefault(AttrStatus, StatusAck)
		statuses[name] = PropertyStatus{
			Acked:   status == StatusAck,
			Value:   value,
			Visible: el.AttrDefault(AttrVisible, "false") == "true",
		}
	}

	switch DetectFormat(root) {
	case FormatTagged:
		for _, c := range root.Children {
			if c.Tag != "property" {
				continue
			}
			if name, ok := c.Attr(AttrName); ok && name != "" {
				record(name, c)
			}
		}
	case FormatLegacy:
		for _, c := range root.Children {
			record(c.Tag, c)
		}
	}
	return statuses
}

// Sequence returns the notification sequence number and whether the
// message carried one. Sequence numbers are monotonic per device session
// and used only for staleness logging, never for dedup or reordering.
func Sequence(root *Element) (string, bool) {
	return root.Attr(AttrSequence)
}
