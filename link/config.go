package link

import (
	"fmt"
	"strings"
	"time"
)

// --------------------------------------------------------------------------
// Adapter configuration struct
// --------------------------------------------------------------------------

const (
	// DefaultMaxOutboundBytes bounds the per-connection outbound queue.
	DefaultMaxOutboundBytes = 4 * 1024 * 1024 // 4 MB

	// DefaultMaxFrameSize is the largest frame length the resolver may
	// report before the buffered data is treated as malformed.
	DefaultMaxFrameSize = 16 * 1024 * 1024 // 16 MB

	// DefaultReadBufferSize is the per-read chunk size for stream transports.
	DefaultReadBufferSize = 512 * 1024 // 512 KB

	// DefaultDrainChunkSize caps how many outbound bytes the writer pump
	// serializes per transport write for stream transports.
	DefaultDrainChunkSize = 64 * 1024 // 64 KB

	// DefaultFlushTimeout bounds the graceful-shutdown flush.
	DefaultFlushTimeout = 5 * time.Second
)

// Config holds the tunable parameters of the adapter layer. The zero value is
// not usable; start from DefaultConfig.
type Config struct {
	// MaxOutboundBytes is the outbound queue byte bound per connection.
	// Send fails fast with ErrBackpressure once exceeded. 0 disables the bound.
	MaxOutboundBytes int

	// MaxFrameSize is the largest resolver-reported frame length accepted
	// before the buffer is considered malformed. 0 disables the check.
	MaxFrameSize int

	// ReadBufferSize is the chunk size used when reading stream transports.
	ReadBufferSize int

	// DrainChunkSize caps the bytes drained per writer-pump iteration for
	// stream transports. Datagram transports always drain whole frames.
	DrainChunkSize int

	// FlushTimeout bounds how long a closing connection may spend flushing
	// queued outbound frames. When the peer stops draining, the transport is
	// forced closed after this delay. 0 waits indefinitely.
	FlushTimeout time.Duration

	// LogLevel configures the package loggers (debug, info, warn, error).
	LogLevel string
}

// DefaultConfig returns the default adapter configuration. It is a pure
// function so tests can re-initialize configuration freely.
func DefaultConfig() Config {
	return Config{
		MaxOutboundBytes: DefaultMaxOutboundBytes,
		MaxFrameSize:     DefaultMaxFrameSize,
		ReadBufferSize:   DefaultReadBufferSize,
		DrainChunkSize:   DefaultDrainChunkSize,
		FlushTimeout:     DefaultFlushTimeout,
		LogLevel:         "info",
	}
}

// String returns a formatted string representation of the configuration
func (c *Config) String() string {
	var sb strings.Builder

	addSection := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
	}

	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
	}

	addSection("Buffers")
	addField("Max Outbound Bytes", fmt.Sprintf("%d", c.MaxOutboundBytes))
	addField("Max Frame Size", fmt.Sprintf("%d", c.MaxFrameSize))
	addField("Read Buffer Size", fmt.Sprintf("%d", c.ReadBufferSize))
	addField("Drain Chunk Size", fmt.Sprintf("%d", c.DrainChunkSize))

	addSection("Shutdown")
	addField("Flush Timeout", c.FlushTimeout.String())

	addSection("Logging")
	addField("Log Level", c.LogLevel)

	return sb.String()
}
