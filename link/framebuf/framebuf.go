package framebuf

import (
	"fmt"
	"sync"

	"github.com/framelink/framelink/link"
)

// -----------------------------------------------------------
// Options
// -----------------------------------------------------------

// Option configures a Buffer
type Option func(*Buffer)

// WithResolver sets the frame boundary resolver. Required for stream-kind
// buffers that extract inbound frames; ignored by datagram-kind buffers.
func WithResolver(r link.Resolver) Option {
	return func(b *Buffer) { b.resolver = r }
}

// WithMaxFrameSize bounds the resolver-reported frame size (skip + length).
// Larger resolutions mark the buffer malformed. 0 disables the check.
func WithMaxFrameSize(n int) Option {
	return func(b *Buffer) { b.maxFrame = n }
}

// WithOutboundBound bounds the outbound queue in bytes. Enqueue fails with
// ErrBackpressure once the bound would be exceeded. 0 disables the bound.
func WithOutboundBound(n int) Option {
	return func(b *Buffer) { b.bound = n }
}

// -----------------------------------------------------------
// Buffer
// -----------------------------------------------------------

// Buffer accumulates raw inbound chunks until complete frames can be
// extracted, and queues outbound frames until they are drained for writing.
type Buffer struct {
	kind     link.Kind
	resolver link.Resolver
	maxFrame int
	bound    int

	mu sync.Mutex

	// inbound
	acc         []byte          // stream accumulator
	frames      [][]byte        // datagram frames, one per fed chunk
	pending     link.Resolution // resolved boundary of the next frame
	havePending bool
	consulted   bool // resolver already called for the current buffer state
	malformed   error

	// outbound
	out      [][]byte
	headOff  int // bytes of out[0] already drained (stream only)
	outBytes int

	ready chan struct{}
}

// New creates a Buffer for the given transport kind.
func New(kind link.Kind, opts ...Option) *Buffer {
	b := &Buffer{
		kind:  kind,
		ready: make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Ready returns a channel that receives a signal whenever data is fed or a
// frame is enqueued. Used by the connection pumps to wait without polling.
func (b *Buffer) Ready() <-chan struct{} {
	return b.ready
}

// notify nudges a waiter without blocking; callers hold b.mu
func (b *Buffer) notify() {
	select {
	case b.ready <- struct{}{}:
	default:
	}
}

// -----------------------------------------------------------
// Inbound direction
// -----------------------------------------------------------

// Feed appends a raw chunk to the inbound side. Feeding zero bytes is a
// no-op. For datagram buffers each fed chunk is one complete frame. Once the
// buffer is malformed, Feed keeps returning the recorded error.
func (b *Buffer) Feed(chunk []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.malformed != nil {
		return b.malformed
	}
	if len(chunk) == 0 {
		return nil
	}

	if b.kind == link.KindDatagram {
		frame := make([]byte, len(chunk))
		copy(frame, chunk)
		b.frames = append(b.frames, frame)
	} else {
		b.acc = append(b.acc, chunk...)
		b.consulted = false
	}

	b.notify()
	return nil
}

// NextFrame attempts to extract one complete frame. It returns (frame, true)
// on success, (nil, false) when more data must be fed first, or an error once
// the resolver rejected the buffered data. Calls are idempotent until more
// data arrives, and the buffer position advances exactly past each extracted
// frame. A zero-length frame is valid and returned as an empty non-nil slice.
func (b *Buffer) NextFrame() ([]byte, bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.malformed != nil {
		return nil, false, b.malformed
	}

	if b.kind == link.KindDatagram {
		if len(b.frames) == 0 {
			return nil, false, nil
		}
		frame := b.frames[0]
		b.frames = b.frames[1:]
		if len(b.frames) == 0 {
			b.frames = nil
		}
		return frame, true, nil
	}

	if !b.havePending {
		if b.consulted || len(b.acc) == 0 {
			return nil, false, nil
		}
		if b.resolver == nil {
			return nil, false, b.fail("no resolver configured for stream buffer")
		}

		// One resolver call per buffer-state change
		b.consulted = true
		res, ok, err := b.resolver.Resolve(b.acc)
		if err != nil {
			return nil, false, b.fail(err.Error())
		}
		if !ok {
			return nil, false, nil
		}
		if res.Skip < 0 || res.Length < 0 {
			return nil, false, b.fail(fmt.Sprintf("resolver returned negative resolution %+v", res))
		}
		if b.maxFrame > 0 && res.Skip+res.Length > b.maxFrame {
			return nil, false, b.fail(fmt.Sprintf("resolved frame of %d bytes exceeds limit of %d", res.Skip+res.Length, b.maxFrame))
		}
		b.pending = res
		b.havePending = true
	}

	total := b.pending.Skip + b.pending.Length
	if len(b.acc) < total {
		return nil, false, nil
	}

	frame := make([]byte, b.pending.Length)
	copy(frame, b.acc[b.pending.Skip:total])

	if len(b.acc) == total {
		b.acc = nil
	} else {
		b.acc = b.acc[total:]
	}
	b.havePending = false
	b.consulted = false

	return frame, true, nil
}

// fail records the malformed state; callers hold b.mu. At most one error is
// recorded per malformed region, every later call returns the same error.
func (b *Buffer) fail(reason string) error {
	b.malformed = &link.MalformedFrameError{Reason: reason}
	link.MetricMalformedFrames.Inc()
	return b.malformed
}

// -----------------------------------------------------------
// Outbound direction
// -----------------------------------------------------------

// Enqueue appends a frame to the outbound queue, failing fast with
// ErrBackpressure when the configured byte bound would be exceeded. The frame
// is not copied; frames are treated as immutable.
func (b *Buffer) Enqueue(frame []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.bound > 0 && b.outBytes+len(frame) > b.bound {
		link.MetricBackpressure.Inc()
		return link.ErrBackpressure
	}

	b.out = append(b.out, frame)
	b.outBytes += len(frame)
	b.notify()
	return nil
}

// Drain returns up to maxBytes of serialized outbound data, consuming from
// the front of the queue. maxBytes <= 0 means no limit. Stream buffers may
// split a frame mid-way and continue at the split on the next call. Datagram
// buffers return exactly one whole frame per call, or nothing when maxBytes
// is smaller than the head frame.
func (b *Buffer) Drain(maxBytes int) ([]byte, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.out) == 0 {
		return nil, false
	}

	if b.kind == link.KindDatagram {
		head := b.out[0]
		if maxBytes > 0 && len(head) > maxBytes {
			return nil, false
		}
		b.out = b.out[1:]
		if len(b.out) == 0 {
			b.out = nil
		}
		b.outBytes -= len(head)
		return head, true
	}

	var data []byte
	budget := maxBytes
	for len(b.out) > 0 {
		avail := b.out[0][b.headOff:]
		take := len(avail)
		if maxBytes > 0 && take > budget {
			take = budget
		}

		data = append(data, avail[:take]...)
		b.headOff += take
		b.outBytes -= take

		if b.headOff == len(b.out[0]) {
			b.out = b.out[1:]
			b.headOff = 0
			if len(b.out) == 0 {
				b.out = nil
			}
		}

		if maxBytes > 0 {
			budget -= take
			if budget == 0 {
				break
			}
		}
	}

	return data, len(data) > 0
}

// OutboundBytes returns the byte count currently queued for writing.
func (b *Buffer) OutboundBytes() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.outBytes
}

// OutboundFrames returns the frame count currently queued for writing.
func (b *Buffer) OutboundFrames() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.out)
}
