package link

// --------------------------------------------------------------------------
// Transport Capability
// --------------------------------------------------------------------------

// Kind discriminates the two transport delivery models. A flat interface plus
// this discriminant is all the layers above need; concrete transports never
// leak their own types upward.
type Kind uint8

const (
	// KindStream is an ordered, reliable, byte-oriented transport with no
	// inherent message boundaries (TCP, unix sockets, serial ports).
	KindStream Kind = iota

	// KindDatagram is a message-atomic, size-bounded transport (UDP,
	// websocket messages). One read yields exactly one message.
	KindDatagram
)

func (k Kind) String() string {
	switch k {
	case KindStream:
		return "stream"
	case KindDatagram:
		return "datagram"
	default:
		return "unknown"
	}
}

// Transport is the capability every concrete transport must provide. It is
// the single three-operation contract that keeps the connection and frame
// buffer layers fully transport-agnostic; partial writes, datagram atomicity
// and endpoint stalls are absorbed by the implementations and translated into
// ErrTransportClosed or TransportError.
type Transport interface {
	// Read blocks until at least one byte (stream) or one complete message
	// (datagram) is available and returns it. It returns ErrTransportClosed
	// once the peer or the transport has terminated, or a TransportError for
	// lower-level failures. A concurrent Close unblocks a pending Read.
	Read() ([]byte, error)

	// Write attempts to write as much of p as the transport currently
	// accepts and returns the number of bytes written. Stream transports may
	// write less than len(p) under backpressure; the caller must retry with
	// the remainder. Datagram transports write the whole message or fail.
	Write(p []byte) (int, error)

	// Close closes the underlying transport exactly once. A second Close is
	// a no-op, not an error. Operations after Close return ErrTransportClosed.
	Close() error

	// Kind reports the delivery model of this transport.
	Kind() Kind

	// MaxDatagramSize returns the maximum message size for datagram
	// transports, or 0 when unbounded or not applicable.
	MaxDatagramSize() int
}

// --------------------------------------------------------------------------
// Frame Length Resolver
// --------------------------------------------------------------------------

// Resolution is the resolver's verdict on the buffered byte prefix.
type Resolution struct {
	// Skip is the count of leading framing bytes to discard before the
	// frame itself (for example a length prefix). May be zero for
	// self-contained frames.
	Skip int

	// Length is the byte count of the frame that follows the skipped bytes.
	// Zero is valid and yields an empty frame.
	Length int
}

// Resolver determines frame boundaries for stream transports. It is supplied
// by the wire-protocol layer; the adapter core never interprets frame bytes
// itself. Resolve inspects the currently buffered prefix and reports one of
// three outcomes:
//
//   - (res, true, nil): the boundary is known
//   - (_, false, nil): more bytes are needed before a verdict is possible
//   - (_, false, err): the buffered data cannot begin a valid frame
//
// The core calls Resolve exactly once per buffer-state change.
type Resolver interface {
	Resolve(prefix []byte) (Resolution, bool, error)
}

// ResolverFunc adapts a plain function to the Resolver interface.
type ResolverFunc func(prefix []byte) (Resolution, bool, error)

func (f ResolverFunc) Resolve(prefix []byte) (Resolution, bool, error) {
	return f(prefix)
}

// --------------------------------------------------------------------------
// Lifecycle Observer
// --------------------------------------------------------------------------

// State is the lifecycle state of a connection.
type State uint8

const (
	// StateOpening is entered on construction, before the first successful
	// read/write exchange.
	StateOpening State = iota

	// StateEstablished is entered on the first successful I/O operation.
	StateEstablished

	// StateClosing is entered when either side initiates shutdown. Buffered
	// outbound frames are drained best-effort before the terminal state.
	StateClosing

	// StateClosed is terminal. All subsequent operations fail with
	// ErrConnectionClosed.
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateOpening:
		return "opening"
	case StateEstablished:
		return "established"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Observer is notified on connection state transitions. Notification failures
// (including panics) never affect the connection's own state. The cause is
// non-nil when an error triggered the transition.
type Observer interface {
	StateChanged(id uint64, from, to State, cause error)
}

// ObserverFunc adapts a plain function to the Observer interface.
type ObserverFunc func(id uint64, from, to State, cause error)

func (f ObserverFunc) StateChanged(id uint64, from, to State, cause error) {
	f(id, from, to, cause)
}
