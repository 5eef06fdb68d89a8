// Package log provides structured protocol event logging.
//
// The protocol engine never logs to a process-global sink. Instead every
// layer accepts a Logger and emits Event values describing datagrams,
// state transitions, and errors. Applications decide where events go:
// NoopLogger discards them, SlogAdapter forwards them to log/slog for
// console output, FileLogger appends them to a compact CBOR event stream
// that Reader can replay and filter later, and MultiLogger fans out to
// several sinks at once.
package log
