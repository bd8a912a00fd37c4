// Package link defines the core contracts of the transport-agnostic protocol
// adapter layer. It sits between raw communication transports (stream sockets,
// datagram sockets, serial ports, websockets) and a higher-level framed wire
// protocol, so that protocol logic never depends on which physical transport
// carries its bytes.
//
// The package focuses on:
//   - Defining the Transport capability interface all concrete transports implement
//   - Defining the Resolver contract through which the wire-protocol layer
//     supplies frame boundary knowledge
//   - A uniform error taxonomy shared by every layer of the adapter
//   - Lifecycle states and the Observer contract for state transition hooks
//
// Key Components:
//
//   - Transport: flat capability interface (Read/Write/Close) with a Kind
//     discriminant, covering both stream and datagram delivery models.
//
//   - Resolver: callback supplied by the wire-protocol layer that inspects
//     buffered bytes and reports frame boundaries for stream transports.
//
//   - Observer: optional hook notified on every connection state transition,
//     used for logging and metrics.
//
//   - Config: tunable buffer bounds and sizes shared by the conn and framebuf
//     packages, with sensible defaults.
package link
