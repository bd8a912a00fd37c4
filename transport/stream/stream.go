// Package stream wraps any io.ReadWriteCloser as a stream-kind transport
// capability, normalizing its error and closure signals. The concrete
// transport packages (tcp, unix, serial) build on it the way connectors
// build on a shared base.
package stream

import (
	"io"
	"sync"
	"sync/atomic"

	"github.com/framelink/framelink/link"
	"github.com/lni/dragonboat/v4/logger"
)

var Logger = logger.GetLogger("transport")

// -----------------------------------------------------------
// Options
// -----------------------------------------------------------

// Option configures the wrapper
type Option func(*transport)

// WithReadBufferSize sets the per-read chunk size.
func WithReadBufferSize(n int) Option {
	return func(t *transport) {
		if n > 0 {
			t.buf = make([]byte, n)
		}
	}
}

// -----------------------------------------------------------
// Transport
// -----------------------------------------------------------

// transport adapts an io.ReadWriteCloser to the link.Transport capability
type transport struct {
	rwc io.ReadWriteCloser
	buf []byte

	closed    atomic.Bool
	closeOnce sync.Once
}

// New wraps rwc as a stream-kind transport. The wrapper assumes a single
// reader goroutine, per the one-reader-one-writer connection discipline.
func New(rwc io.ReadWriteCloser, opts ...Option) link.Transport {
	t := &transport{
		rwc: rwc,
		buf: make([]byte, link.DefaultReadBufferSize),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// --------------------------------------------------------------------------
// Interface Methods (docu see link.Transport)
// --------------------------------------------------------------------------

func (t *transport) Read() ([]byte, error) {
	if t.closed.Load() {
		return nil, link.ErrTransportClosed
	}

	for {
		n, err := t.rwc.Read(t.buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, t.buf[:n])
			// a chunk alongside io.EOF is still a successful read; the
			// closure surfaces on the next call
			return chunk, nil
		}
		if err != nil {
			if t.closed.Load() {
				return nil, link.ErrTransportClosed
			}
			return nil, link.NormalizeIOError(err)
		}
		// n == 0 with nil error is allowed by io.Reader; retry
	}
}

func (t *transport) Write(p []byte) (int, error) {
	if t.closed.Load() {
		return 0, link.ErrTransportClosed
	}

	n, err := t.rwc.Write(p)
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
		if err := t.rwc.Close(); err != nil {
			Logger.Debugf("close: %v", err)
		}
	})
	return nil
}

func (t *transport) Kind() link.Kind {
	return link.KindStream
}

func (t *transport) MaxDatagramSize() int {
	return 0
}
