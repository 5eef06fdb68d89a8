// Package wire defines the XML wire format for the Emotiva control protocol.
//
// The protocol exchanges small XML documents over UDP. All requests are
// wrapped in a root element that identifies the message family:
//
//   - emotivaControl: commands requiring acknowledgment
//   - emotivaUpdate: one-shot property polls
//   - emotivaSubscription / emotivaUnsubscribe: push subscriptions
//   - emotivaPing / emotivaTransponder: discovery
//   - emotivaNotify: unsolicited property-change pushes
//
// # Property formats
//
// Device firmware generations emit property values in two incompatible
// shapes. Protocol 2.x names each property by its element tag:
//
//	<emotivaNotify><power>On</power></emotivaNotify>
//
// Protocol 3.x uses a uniform "property" tag with name/value attributes:
//
//	<emotivaNotify><property name="power" value="On"/></emotivaNotify>
//
// DetectFormat resolves which shape a message uses once; ExtractProperties
// and ExtractStatuses return the same mapping for either shape.
package wire
