// Package dispatcher owns the notify-port receive loop. It decodes
// pushed property notifications in either wire format and fans each
// property out to its registered callbacks.
//
// Callbacks run in their own goroutines under a per-invocation timeout
// so one slow or panicking callback cannot stall the receive loop or
// starve other callbacks. Every in-flight invocation is tracked, and
// Stop cancels them and waits for them to finish.
package dispatcher
