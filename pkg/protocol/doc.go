// Package protocol implements the request/response layer of the control
// protocol: command-with-ack, bulk property polling and subscription
// management.
//
// Every operation is bounded: acks are awaited with a timeout and
// retried with exponential backoff up to a configured attempt budget,
// and a semaphore caps the number of protocol exchanges in flight at
// once so a burst of callers cannot flood the device.
package protocol
