package discovery

import "fmt"

// DiscoveryError indicates that a device could not be discovered: it was
// unreachable within the attempt budget, or it answered with a response
// that could not be interpreted as a transponder message.
type DiscoveryError struct {
	Host     string
	Attempts int
	Err      error
}

func (e *DiscoveryError) Error() string {
	if e.Attempts > 1 {
		return fmt.Sprintf("discovery of %s failed after %d attempts: %v", e.Host, e.Attempts, e.Err)
	}
	return fmt.Sprintf("discovery of %s failed: %v", e.Host, e.Err)
}

func (e *DiscoveryError) Unwrap() error {
	return e.Err
}
