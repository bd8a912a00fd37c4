// Package ws provides the websocket transport. Websocket messages are
// atomic, so the transport is datagram-kind even though it runs over a
// stream: one read yields exactly one message and frames bypass stream
// reassembly.
package ws

import (
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/framelink/framelink/link"
	"github.com/gorilla/websocket"
	"github.com/lni/dragonboat/v4/logger"
)

var Logger = logger.GetLogger("transport")

// closeGracePeriod bounds the close handshake write.
const closeGracePeriod = time.Second

// Dial connects to the websocket endpoint (ws:// or wss:// URL) and returns
// a datagram-kind transport.
func Dial(url string) (link.Transport, error) {
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		return nil, link.NormalizeIOError(err)
	}
	return Wrap(conn), nil
}

// Wrap wraps an established websocket connection (dialed or upgraded
// server-side) as a datagram-kind transport.
func Wrap(conn *websocket.Conn) link.Transport {
	return &transport{conn: conn}
}

// transport adapts a websocket connection to the link.Transport capability
type transport struct {
	conn *websocket.Conn

	// websocket allows one concurrent writer only
	writeMu sync.Mutex

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

	for {
		msgType, data, err := t.conn.ReadMessage()
		if err != nil {
			return nil, t.normalize(err)
		}
		if msgType == websocket.BinaryMessage || msgType == websocket.TextMessage {
			return data, nil
		}
		// control frames are handled by gorilla internally; skip anything else
	}
}

func (t *transport) Write(p []byte) (int, error) {
	if t.closed.Load() {
		return 0, link.ErrTransportClosed
	}

	t.writeMu.Lock()
	err := t.conn.WriteMessage(websocket.BinaryMessage, p)
	t.writeMu.Unlock()

	if err != nil {
		return 0, t.normalize(err)
	}
	return len(p), nil
}

func (t *transport) Close() error {
	t.closeOnce.Do(func() {
		t.closed.Store(true)

		// best-effort close handshake before dropping the socket
		t.writeMu.Lock()
		deadline := time.Now().Add(closeGracePeriod)
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		if err := t.conn.WriteControl(websocket.CloseMessage, msg, deadline); err != nil {
			Logger.Debugf("close handshake: %v", err)
		}
		t.writeMu.Unlock()

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
	return 0
}

// normalize translates gorilla's error signals into the adapter taxonomy
func (t *transport) normalize(err error) error {
	if t.closed.Load() {
		return link.ErrTransportClosed
	}

	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) {
		switch closeErr.Code {
		case websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived:
			return link.ErrTransportClosed
		}
		return &link.TransportError{Cause: err}
	}
	if errors.Is(err, net.ErrClosed) {
		return link.ErrTransportClosed
	}
	return link.NormalizeIOError(err)
}
