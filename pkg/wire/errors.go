package wire

import "fmt"

// MalformedMessageError indicates a datagram that could not be parsed as
// protocol XML. It is never retried: a payload the device successfully
// delivered but the codec cannot read points at a protocol or version
// mismatch, not a transient fault.
type MalformedMessageError struct {
	// Data is the offending payload, kept for diagnostics.
	Data []byte

	// Err is the underlying parse error.
	Err error
}

func (e *MalformedMessageError) Error() string {
	return fmt.Sprintf("malformed protocol message (%d bytes): %v", len(e.Data), e.Err)
}

func (e *MalformedMessageError) Unwrap() error {
	return e.Err
}
