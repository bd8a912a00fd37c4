package link

import (
	"errors"
	"fmt"
	"io"
	"net"
)

// --------------------------------------------------------------------------
// Error Taxonomy
// --------------------------------------------------------------------------

var (
	// ErrTransportClosed signals orderly or peer-initiated closure of a
	// transport. It is a normal shutdown signal, not a process fault.
	ErrTransportClosed = errors.New("transport closed")

	// ErrConnectionClosed is returned by connection operations attempted
	// after the connection reached its terminal state.
	ErrConnectionClosed = errors.New("connection closed")

	// ErrBackpressure is returned by Send/Enqueue when the outbound queue
	// bound is exceeded. The frame is not enqueued; the caller should retry
	// after the queue drains.
	ErrBackpressure = errors.New("outbound queue bound exceeded")

	// ErrTimeout is returned by Receive when the caller-supplied deadline
	// expires before a frame arrives. The connection state is unaffected.
	ErrTimeout = errors.New("receive timed out")

	// ErrCancelled is returned by Receive when the caller cancels the wait.
	// The connection state is unaffected.
	ErrCancelled = errors.New("receive cancelled")
)

// TransportError wraps a lower-level I/O failure from a concrete transport.
// The underlying cause is attached, not interpreted. Generally fatal to the
// connection that owns the transport.
type TransportError struct {
	Cause error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport error: %v", e.Cause)
}

func (e *TransportError) Unwrap() error {
	return e.Cause
}

// MalformedFrameError signals that the resolver rejected buffered data.
// Fatal to the connection: stream alignment cannot be recovered without
// protocol-level framing knowledge.
type MalformedFrameError struct {
	Reason string
}

func (e *MalformedFrameError) Error() string {
	return fmt.Sprintf("malformed frame: %s", e.Reason)
}

// --------------------------------------------------------------------------
// Error Normalization
// --------------------------------------------------------------------------

// NormalizeIOError translates an error returned by an underlying I/O library
// into the adapter taxonomy: end-of-stream and closed-socket conditions become
// ErrTransportClosed, everything else is wrapped in a TransportError with the
// cause attached.
func NormalizeIOError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrClosedPipe) || errors.Is(err, net.ErrClosed) {
		return ErrTransportClosed
	}
	if errors.Is(err, ErrTransportClosed) {
		return ErrTransportClosed
	}
	var te *TransportError
	if errors.As(err, &te) {
		return err
	}
	return &TransportError{Cause: err}
}
