package wire

// Root element tags for the protocol's message families.
const (
	// Requests (client to device).
	TagControl     = "emotivaControl"
	TagPing        = "emotivaPing"
	TagUpdate      = "emotivaUpdate"
	TagSubscribe   = "emotivaSubscription"
	TagUnsubscribe = "emotivaUnsubscribe"

	// Responses and pushes (device to client).
	TagAck         = "emotivaAck"
	TagTransponder = "emotivaTransponder"
	TagNotify      = "emotivaNotify"
	TagMenuNotify  = "emotivaMenuNotify"
)

// Well-known attribute names.
const (
	AttrName     = "name"
	AttrValue    = "value"
	AttrAck      = "ack"
	AttrVisible  = "visible"
	AttrStatus   = "status"
	AttrProtocol = "protocol"
	AttrSequence = "sequence"
)

// Status attribute values in subscription confirmations.
const (
	StatusAck  = "ack"
	StatusFail = "fail"
)

// MessageKind classifies a parsed document by its root tag.
type MessageKind int

const (
	KindUnknown MessageKind = iota
	KindControl
	KindPing
	KindUpdate
	KindSubscribe
	KindUnsubscribe
	KindAck
	KindTransponder
	KindNotify
	KindMenuNotify
)

// String returns the message kind name.
func (k MessageKind) String() string {
	switch k {
	case KindControl:
		return "CONTROL"
	case KindPing:
		return "PING"
	case KindUpdate:
		return "UPDATE"
	case KindSubscribe:
		return "SUBSCRIBE"
	case KindUnsubscribe:
		return "UNSUBSCRIBE"
	case KindAck:
		return "ACK"
	case KindTransponder:
		return "TRANSPONDER"
	case KindNotify:
		return "NOTIFY"
	case KindMenuNotify:
		return "MENU_NOTIFY"
	default:
		return "UNKNOWN"
	}
}

// Kind returns the message kind for a root element.
func Kind(root *Element) MessageKind {
	switch root.Tag {
	case TagControl:
		return KindControl
	case TagPing:
		return KindPing
	case TagUpdate:
		return KindUpdate
	case TagSubscribe:
		return KindSubscribe
	case TagUnsubscribe:
		return KindUnsubscribe
	case TagAck:
		return KindAck
	case TagTransponder:
		return KindTransponder
	case TagNotify:
		return KindNotify
	case TagMenuNotify:
		return KindMenuNotify
	default:
		return KindUnknown
	}
}
