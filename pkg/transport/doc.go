// Package transport owns the UDP sockets used to talk to a device.
//
// The protocol assigns each message family its own UDP port: commands and
// their acks flow over the control port, unsolicited property pushes over
// the notify port, and so on. SocketManager binds one local socket per
// logical port role and gives each role a private receive queue, so a
// burst of notifications can never starve a command waiting for its ack.
//
// Start is atomic: either every port in the PortMap is bound, or none
// are. Start and Stop share one mutex and are both idempotent.
package transport
