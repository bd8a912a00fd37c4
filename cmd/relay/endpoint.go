package relay

import (
	"encoding/binary"
	"fmt"
	"net"
	"strings"

	"github.com/framelink/framelink/link"
	"github.com/framelink/framelink/link/conn"
	"github.com/framelink/framelink/transport/serial"
	"github.com/framelink/framelink/transport/tcp"
	"github.com/framelink/framelink/transport/udp"
	"github.com/framelink/framelink/transport/unix"
	"github.com/framelink/framelink/transport/ws"
)

// endpoint is a parsed scheme://address pair
type endpoint struct {
	scheme string
	addr   string
}

func parseEndpoint(s string) (endpoint, error) {
	parts := strings.SplitN(s, "://", 2)
	if len(parts) != 2 || parts[1] == "" {
		return endpoint{}, fmt.Errorf("invalid endpoint %q, expected scheme://address", s)
	}

	switch parts[0] {
	case "tcp", "unix", "udp", "ws", "wss", "serial":
		return endpoint{scheme: parts[0], addr: parts[1]}, nil
	default:
		return endpoint{}, fmt.Errorf("unsupported scheme %q", parts[0])
	}
}

// listen creates a listener for the endpoint. Only connection-oriented
// stream schemes can accept.
func listen(ep endpoint) (net.Listener, error) {
	switch ep.scheme {
	case "tcp":
		return tcp.Listen(ep.addr)
	case "unix":
		return unix.Listen(ep.addr)
	default:
		return nil, fmt.Errorf("scheme %q cannot listen", ep.scheme)
	}
}

// wrapAccepted wraps a connection accepted from listen as a transport
func wrapAccepted(ep endpoint, raw net.Conn) (link.Transport, error) {
	switch ep.scheme {
	case "tcp":
		return tcp.Wrap(raw, tcp.DefaultConfig())
	case "unix":
		return unix.Wrap(raw), nil
	default:
		return nil, fmt.Errorf("scheme %q cannot accept", ep.scheme)
	}
}

// dial opens a transport to the given endpoint string
func dial(s string) (link.Transport, error) {
	ep, err := parseEndpoint(s)
	if err != nil {
		return nil, err
	}

	switch ep.scheme {
	case "tcp":
		return tcp.Dial(ep.addr, tcp.DefaultConfig())
	case "unix":
		return unix.Dial(ep.addr)
	case "udp":
		return udp.Dial(ep.addr)
	case "ws", "wss":
		return ws.Dial(s)
	case "serial":
		return serial.Open(ep.addr, serial.DefaultConfig())
	default:
		return nil, fmt.Errorf("unsupported scheme %q", ep.scheme)
	}
}

// --------------------------------------------------------------------------
// Relay framing
// --------------------------------------------------------------------------

// prefixResolver parses the relay's stream framing: a 4-byte big-endian
// length prefix followed by the payload.
func prefixResolver(maxFrame int) link.Resolver {
	return link.ResolverFunc(func(prefix []byte) (link.Resolution, bool, error) {
		if len(prefix) < 4 {
			return link.Resolution{}, false, nil
		}
		length := binary.BigEndian.Uint32(prefix)
		if maxFrame > 0 && int(length) > maxFrame {
			return link.Resolution{}, false, fmt.Errorf("frame length %d exceeds limit of %d", length, maxFrame)
		}
		return link.Resolution{Skip: 4, Length: int(length)}, true, nil
	})
}

// encodeFrame serializes a payload for the destination connection: stream
// destinations get the length prefix, datagram destinations carry the
// payload as-is.
func encodeFrame(dst *conn.Conn, payload []byte) []byte {
	if dst.TransportKind() == link.KindDatagram {
		return payload
	}
	buf := make([]byte, 4+len(payload))
	binary.BigEndian.PutUint32(buf, uint32(len(payload)))
	copy(buf[4:], payload)
	return buf
}
