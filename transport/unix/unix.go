// Package unix provides the unix domain socket stream transport.
package unix

import (
	"fmt"
	"net"

	"github.com/framelink/framelink/link"
	"github.com/framelink/framelink/transport/stream"
)

// Dial connects to the socket at path and returns a stream-kind transport.
func Dial(path string) (link.Transport, error) {
	conn, err := net.Dial("unix", path)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %v", path, err)
	}
	return stream.New(conn), nil
}

// Listen creates a unix socket listener. Accepted connections are wrapped
// with Wrap.
func Listen(path string) (net.Listener, error) {
	listener, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("failed to create unix socket: %v", err)
	}
	return listener, nil
}

// Wrap wraps an accepted connection as a stream-kind transport.
func Wrap(conn net.Conn) link.Transport {
	return stream.New(conn)
}
