// Package framebuf implements the incremental frame buffer of the adapter
// layer: the inbound direction converts a stream of arbitrarily-chunked byte
// reads into complete protocol frames, the outbound direction serializes a
// queue of frames into chunks suitable for writing.
//
// The package focuses on:
//   - Chunk-size independent frame extraction driven by a caller-supplied
//     boundary resolver (stream transports)
//   - Message-atomic queuing for datagram transports behind the same API
//   - Backpressure accounting through a configurable outbound byte bound
//
// Key Components:
//
//   - Buffer: one direction's worth of buffering. A connection owns a pair,
//     one fed by the transport reader, one drained by the transport writer.
//
// A Buffer is safe for one producer and one consumer goroutine operating
// concurrently; the connection layer enforces the single-reader/single-writer
// discipline by construction.
package framebuf
