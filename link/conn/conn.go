package conn

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/framelink/framelink/link"
	"github.com/framelink/framelink/link/framebuf"
	"github.com/lni/dragonboat/v4/logger"
)

var Logger = logger.GetLogger("link/conn")

// nextConnID assigns connection identifiers. Monotonic for the process
// lifetime, never reused.
var nextConnID atomic.Uint64

// -----------------------------------------------------------
// Options
// -----------------------------------------------------------

type options struct {
	cfg      link.Config
	resolver link.Resolver
	observer link.Observer
}

// Option configures a Conn at construction
type Option func(*options)

// WithConfig overrides the default adapter configuration.
func WithConfig(cfg link.Config) Option {
	return func(o *options) { o.cfg = cfg }
}

// WithResolver sets the frame boundary resolver supplied by the wire-protocol
// layer. Required for stream transports.
func WithResolver(r link.Resolver) Option {
	return func(o *options) { o.resolver = r }
}

// WithObserver registers a lifecycle observer notified on state transitions.
func WithObserver(obs link.Observer) Option {
	return func(o *options) { o.observer = obs }
}

// -----------------------------------------------------------
// Conn
// -----------------------------------------------------------

// Conn pairs one transport with an inbound and an outbound frame buffer and
// owns the lifecycle state machine. A Conn never outlives its transport:
// closing one closes the other.
type Conn struct {
	id  uint64
	tr  link.Transport
	cfg link.Config
	obs link.Observer

	in  *framebuf.Buffer
	out *framebuf.Buffer

	mu    sync.Mutex
	state link.State
	cause error

	closingOnce sync.Once
	closedOnce  sync.Once
	closing     chan struct{}
	closed      chan struct{}
}

// New creates a connection over the given transport and starts its reader
// and writer pumps. The transport must be exclusively owned by this
// connection. Stream transports require a resolver.
func New(t link.Transport, opts ...Option) (*Conn, error) {
	o := options{cfg: link.DefaultConfig()}
	for _, opt := range opts {
		opt(&o)
	}

	if t.Kind() == link.KindStream && o.resolver == nil {
		return nil, fmt.Errorf("stream transport requires a frame resolver")
	}

	c := &Conn{
		id:      nextConnID.Add(1),
		tr:      t,
		cfg:     o.cfg,
		obs:     o.observer,
		state:   link.StateOpening,
		closing: make(chan struct{}),
		closed:  make(chan struct{}),
	}
	c.in = framebuf.New(t.Kind(),
		framebuf.WithResolver(o.resolver),
		framebuf.WithMaxFrameSize(o.cfg.MaxFrameSize),
	)
	c.out = framebuf.New(t.Kind(),
		framebuf.WithOutboundBound(o.cfg.MaxOutboundBytes),
	)

	link.MetricConnsOpened.Inc()
	Logger.Debugf("connection %d: opened over %s transport", c.id, t.Kind())

	go c.readLoop()
	go c.writeLoop()

	return c, nil
}

// ID returns the connection's identifier. Identifiers are unique for the
// process lifetime and never reused.
func (c *Conn) ID() uint64 {
	return c.id
}

// TransportKind reports the delivery model of the owned transport.
func (c *Conn) TransportKind() link.Kind {
	return c.tr.Kind()
}

// State returns the current lifecycle state.
func (c *Conn) State() link.State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Err returns the error that terminated the connection, or nil while the
// connection is live or after a graceful shutdown.
func (c *Conn) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if errors.Is(c.cause, link.ErrTransportClosed) {
		return nil
	}
	return c.cause
}

// Done returns a channel closed once the connection reaches its terminal
// state.
func (c *Conn) Done() <-chan struct{} {
	return c.closed
}

// -----------------------------------------------------------
// Public contract
// -----------------------------------------------------------

// Send enqueues a frame for writing. It never blocks: once the outbound
// queue bound is exceeded it fails fast with ErrBackpressure and the frame is
// not enqueued. Fails with ErrConnectionClosed in Closing or Closed state.
func (c *Conn) Send(frame []byte) error {
	c.mu.Lock()
	st := c.state
	c.mu.Unlock()

	if st == link.StateClosing || st == link.StateClosed {
		return link.ErrConnectionClosed
	}
	if err := c.out.Enqueue(frame); err != nil {
		return err
	}
	link.MetricFramesOut.Inc()
	return nil
}

// Receive returns the next available inbound frame, suspending the caller
// until one arrives or the connection closes. A deadline or cancellation on
// ctx aborts the wait with ErrTimeout or ErrCancelled without disturbing
// buffer state: no partially-consumed frame is lost or duplicated. Frames
// already buffered when the connection closes are still delivered; once no
// more frames will ever arrive, Receive fails with ErrConnectionClosed.
func (c *Conn) Receive(ctx context.Context) ([]byte, error) {
	for {
		frame, ok, err := c.in.NextFrame()
		if err != nil {
			c.fail(err)
			return nil, err
		}
		if ok {
			link.MetricFramesIn.Inc()
			return frame, nil
		}

		select {
		case <-c.in.Ready():
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return nil, link.ErrTimeout
			}
			return nil, link.ErrCancelled
		case <-c.closed:
			// late arrivals: a frame may have been fed between the last
			// check and the close signal
			if frame, ok, err := c.in.NextFrame(); err == nil && ok {
				link.MetricFramesIn.Inc()
				return frame, nil
			}
			return nil, link.ErrConnectionClosed
		}
	}
}

// Close initiates graceful shutdown: buffered outbound frames are flushed
// best-effort, then the transport is closed. Idempotent; a second Close is a
// no-op.
func (c *Conn) Close() error {
	c.beginClosing(nil)
	return nil
}

// -----------------------------------------------------------
// Pumps
// -----------------------------------------------------------

// readLoop is the single reader pump: transport bytes into the inbound
// buffer. Runs until the transport fails or closes.
func (c *Conn) readLoop() {
	for {
		chunk, err := c.tr.Read()
		if err != nil {
			if errors.Is(err, link.ErrTransportClosed) {
				Logger.Debugf("connection %d: transport closed", c.id)
				c.beginClosing(link.ErrTransportClosed)
			} else {
				Logger.Errorf("connection %d: read failed: %v", c.id, err)
				c.fail(err)
			}
			return
		}

		c.markEstablished()

		if len(chunk) > 0 {
			link.MetricBytesIn.Add(len(chunk))
		}
		if err := c.in.Feed(chunk); err != nil {
			Logger.Errorf("connection %d: %v", c.id, err)
			c.fail(err)
			return
		}
	}
}

// writeLoop is the single writer pump: outbound buffer into the transport.
// On shutdown it flushes the remaining queue best-effort before releasing
// the transport.
func (c *Conn) writeLoop() {
	for {
		data, ok := c.out.Drain(c.drainLimit())
		if !ok {
			select {
			case <-c.out.Ready():
				continue
			case <-c.closing:
				c.flush()
				c.finishClose()
				return
			}
		}

		if err := c.writeAll(data); err != nil {
			if errors.Is(err, link.ErrTransportClosed) {
				Logger.Debugf("connection %d: transport closed during write", c.id)
				c.beginClosing(link.ErrTransportClosed)
				c.finishClose()
			} else {
				Logger.Errorf("connection %d: write failed: %v", c.id, err)
				c.fail(err)
			}
			return
		}

		c.markEstablished()
	}
}

// drainLimit returns the per-iteration drain cap. Datagram buffers always
// drain whole frames, one per call.
func (c *Conn) drainLimit() int {
	if c.tr.Kind() == link.KindDatagram {
		return 0
	}
	return c.cfg.DrainChunkSize
}

// writeAll retries partial writes until data is fully written.
func (c *Conn) writeAll(data []byte) error {
	for len(data) > 0 {
		n, err := c.tr.Write(data)
		if n > 0 {
			link.MetricBytesOut.Add(n)
			data = data[n:]
		}
		if err != nil {
			return err
		}
		if n == 0 {
			return &link.TransportError{Cause: fmt.Errorf("transport accepted 0 bytes without error")}
		}
	}
	return nil
}

// flush drains whatever is still queued and writes it best-effort.
func (c *Conn) flush() {
	for {
		data, ok := c.out.Drain(c.drainLimit())
		if !ok {
			return
		}
		if err := c.writeAll(data); err != nil {
			Logger.Warningf("connection %d: flush failed: %v", c.id, err)
			return
		}
	}
}

// -----------------------------------------------------------
// State transitions
// -----------------------------------------------------------

func (c *Conn) markEstablished() {
	c.mu.Lock()
	if c.state != link.StateOpening {
		c.mu.Unlock()
		return
	}
	c.state = link.StateEstablished
	c.mu.Unlock()

	Logger.Debugf("connection %d: established", c.id)
	c.notifyObserver(link.StateOpening, link.StateEstablished, nil)
}

// beginClosing moves the connection to Closing. The writer pump picks up the
// signal, flushes the outbound queue and completes the shutdown.
func (c *Conn) beginClosing(cause error) {
	c.mu.Lock()
	if c.state == link.StateClosing || c.state == link.StateClosed {
		c.mu.Unlock()
		return
	}
	from := c.state
	c.state = link.StateClosing
	if c.cause == nil {
		c.cause = cause
	}
	c.mu.Unlock()

	Logger.Debugf("connection %d: closing", c.id)
	c.notifyObserver(from, link.StateClosing, cause)
	c.closingOnce.Do(func() { close(c.closing) })

	// The flush is best-effort only: a peer that stops draining must not
	// keep the connection in Closing forever. Forcing the transport closed
	// unblocks any write the pumps are parked in.
	if c.cfg.FlushTimeout > 0 {
		go func() {
			select {
			case <-c.closed:
			case <-time.After(c.cfg.FlushTimeout):
				Logger.Warningf("connection %d: flush timed out after %v, forcing transport closed", c.id, c.cfg.FlushTimeout)
				_ = c.tr.Close()
			}
		}()
	}
}

// finishClose completes a graceful shutdown after the outbound flush.
func (c *Conn) finishClose() {
	c.mu.Lock()
	if c.state == link.StateClosed {
		c.mu.Unlock()
		return
	}
	from := c.state
	c.state = link.StateClosed
	cause := c.cause
	c.mu.Unlock()

	_ = c.tr.Close()
	Logger.Debugf("connection %d: closed", c.id)
	c.notifyObserver(from, link.StateClosed, cause)
	c.closedOnce.Do(func() {
		close(c.closed)
		link.MetricConnsClosed.Inc()
	})
}

// fail terminates the connection directly from any state, recording the
// triggering error. Used for transport faults and malformed frames, which
// are never retried.
func (c *Conn) fail(cause error) {
	c.mu.Lock()
	if c.state == link.StateClosed {
		c.mu.Unlock()
		return
	}
	from := c.state
	c.state = link.StateClosed
	if c.cause == nil {
		c.cause = cause
	}
	c.mu.Unlock()

	c.closingOnce.Do(func() { close(c.closing) })
	_ = c.tr.Close()
	c.notifyObserver(from, link.StateClosed, cause)
	c.closedOnce.Do(func() {
		close(c.closed)
		link.MetricConnsClosed.Inc()
	})
}

// notifyObserver reports a transition. Observer failures never affect the
// connection's own state.
func (c *Conn) notifyObserver(from, to link.State, cause error) {
	if c.obs == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			Logger.Warningf("connection %d: observer panicked on %s->%s: %v", c.id, from, to, r)
		}
	}()
	c.obs.StateChanged(c.id, from, to, cause)
}
