// Package tcp provides the TCP stream transport: dial and wrap helpers that
// hand a tuned net.Conn to the shared stream wrapper.
package tcp

import (
	"fmt"
	"net"
	"time"

	"github.com/framelink/framelink/link"
	"github.com/framelink/framelink/transport/stream"
)

// Config holds the TCP-specific socket settings
type Config struct {
	// NoDelay disables Nagle's algorithm
	NoDelay bool
	// KeepAlive enables TCP keep-alive with the given period when > 0
	KeepAlive time.Duration
	// ReadBufferSize sets the socket read buffer when > 0
	ReadBufferSize int
	// WriteBufferSize sets the socket write buffer when > 0
	WriteBufferSize int
}

// DefaultConfig returns the default TCP socket settings.
func DefaultConfig() Config {
	return Config{NoDelay: true}
}

// Dial connects to endpoint and returns a stream-kind transport.
func Dial(endpoint string, cfg Config) (link.Transport, error) {
	conn, err := net.Dial("tcp", endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %v", endpoint, err)
	}
	return Wrap(conn, cfg)
}

// Listen creates a TCP listener. Accepted connections are wrapped with Wrap.
func Listen(endpoint string) (net.Listener, error) {
	listener, err := net.Listen("tcp", endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to create TCP socket: %v", err)
	}
	return listener, nil
}

// Wrap applies the socket settings to an established connection and wraps it
// as a stream-kind transport.
func Wrap(conn net.Conn, cfg Config) (link.Transport, error) {
	if err := upgradeConn(conn, cfg); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to upgrade connection: %v", err)
	}
	return stream.New(conn), nil
}

// upgradeConn applies performance settings to a TCP connection
func upgradeConn(conn net.Conn, cfg Config) error {
	tcpConn, ok := conn.(*net.TCPConn)
	if !ok {
		return nil // not a TCP connection, nothing to upgrade
	}

	if err := tcpConn.SetNoDelay(cfg.NoDelay); err != nil {
		return err
	}

	if cfg.WriteBufferSize > 0 {
		if err := tcpConn.SetWriteBuffer(cfg.WriteBufferSize); err != nil {
			return err
		}
	}

	if cfg.ReadBufferSize > 0 {
		if err := tcpConn.SetReadBuffer(cfg.ReadBufferSize); err != nil {
			return err
		}
	}

	if cfg.KeepAlive > 0 {
		if err := tcpConn.SetKeepAlive(true); err != nil {
			return err
		}
		if err := tcpConn.SetKeepAlivePeriod(cfg.KeepAlive); err != nil {
			return err
		}
	}

	return nil
}
