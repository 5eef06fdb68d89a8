// Package discovery resolves a receiver's hostname or IP address into a
// set of negotiated port assignments and a device-reported protocol
// version.
//
// A discovery probe is a version-tagged ping datagram sent to the fixed
// discovery port. The device answers with a transponder message that
// carries its name, model, protocol version, keepalive interval and the
// UDP port for each logical role. Network-level failures are retried
// with exponential backoff; a malformed response is surfaced immediately
// because it indicates a protocol mismatch rather than transience.
//
// The package also offers mDNS browsing for receivers that announce
// themselves on the local network, as a convenience for callers that do
// not know the device address upfront.
package discovery
