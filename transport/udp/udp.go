// Package udp provides the UDP datagram transport in connected mode: one
// socket, one peer, one read per datagram.
package udp

import (
	"fmt"
	"net"
	"sync"
	"sync/atomic"

	"github.com/framelink/framelink/link"
	"github.com/lni/dragonboat/v4/logger"
)

var Logger = logger.GetLogger("transport")

// DefaultMaxDatagramSize is the largest UDP payload over IPv4.
const DefaultMaxDatagramSize = 65507

// Dial connects to endpoint and returns a datagram-kind transport.
func Dial(endpoint string) (link.Transport, error) {
	conn, err := net.Dial("udp", endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %v", endpoint, err)
	}
	return Wrap(conn, DefaultMaxDatagramSize), nil
}

// Wrap wraps a connected datagram socket as a datagram-kind transport.
// maxSize bounds outgoing datagrams; 0 falls back to the UDP default.
func Wrap(conn net.Conn, maxSize int) link.Transport {
	if maxSize <= 0 {
		maxSize = DefaultMaxDatagramSize
	}
	return &transport{
		conn:    conn,
		maxSize: maxSize,
		buf:     make([]byte, maxSize),
	}
}

// transport adapts a connected datagram socket to the link.Transport
// capability. One Read yields exactly one datagram.
type transport struct {
	conn    net.Conn
	maxSize int
	buf     []byte

	closed    atomic.Bool
	closeOnce sync.Once
}

// --------------------------------------------------------------------------
// Interface Methods (docu see link.Transport)
// --------------------------------------------------------------------------

func (t *transport) Read() ([]byte, error) {
	if t.closed.Load() {
		return nil, link.ErrTransportClosed
	}

	n, err := t.conn.Read(t.buf)
	if err != nil {
		if t.closed.Load() {
			return nil, link.ErrTransportClosed
		}
		return nil, link.NormalizeIOError(err)
	}

	chunk := make([]byte, n)
	copy(chunk, t.buf[:n])
	return chunk, nil
}

func (t *transport) Write(p []byte) (int, error) {
	if t.closed.Load() {
		return 0, link.ErrTransportClosed
	}
	if len(p) > t.maxSize {
		return 0, &link.TransportError{Cause: fmt.Errorf("datagram of %d bytes exceeds limit of %d", len(p), t.maxSize)}
	}

	n, err := t.conn.Write(p)
	if err != nil {
		if t.closed.Load() {
			return n, link.ErrTransportClosed
		}
		return n, link.NormalizeIOError(err)
	}
	return n, nil
}

func (t *transport) Close() error {
	t.closeOnce.Do(func() {
		t.closed.Store(true)
		if err := t.conn.Close(); err != nil {
			Logger.Debugf("close: %v", err)
		}
	})
	return nil
}

func (t *transport) Kind() link.Kind {
	return link.KindDatagram
}

func (t *transport) MaxDatagramSize() int {
	return t.maxSize
}
