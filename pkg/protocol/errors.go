package protocol

import "fmt"

// AckTimeoutError indicates a command's acknowledgment did not arrive
// within the retry budget. The command may or may not have been applied
// by the device.
type AckTimeoutError struct {
	Command  string
	Attempts int
}

func (e *AckTimeoutError) Error() string {
	return fmt.Sprintf("command %q not acknowledged after %d attempts", e.Command, e.Attempts)
}
