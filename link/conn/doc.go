// Package conn implements the connection layer of the adapter: it pairs one
// exclusively-owned transport with an inbound and an outbound frame buffer
// and owns the connection lifecycle state machine
// (Opening -> Established -> Closing -> Closed).
//
// The package focuses on:
//   - One reader pump and one writer pump per connection, communicating with
//     the protocol layer only through the frame buffers
//   - Graceful half-open shutdown: buffered outbound frames are flushed
//     best-effort before the transport is released
//   - Error classification: orderly transport closure drives graceful
//     shutdown, transport faults and malformed frames terminate the
//     connection directly
//
// Key Components:
//
//   - Conn: the unit of lifecycle ownership. Send enqueues and never blocks
//     (failing fast with ErrBackpressure), Receive suspends cancellably until
//     a frame arrives, Close initiates graceful shutdown and is idempotent.
package conn
