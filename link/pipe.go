package link

import (
	"fmt"
	"sync"
)

// --------------------------------------------------------------------------
// In-memory transport pair
// --------------------------------------------------------------------------

const (
	// pipeBacklog is the number of chunks buffered per direction.
	pipeBacklog = 64

	// pipeDatagramLimit is the datagram size bound of in-memory pairs.
	pipeDatagramLimit = 64 * 1024
)

// Pipe returns a connected pair of in-memory transports of the given kind.
// Whatever is written to one end is read from the other. Used by tests and
// loopback setups; chunks survive a peer close until the buffered backlog is
// drained, mirroring how a closed socket still yields already-received data.
func Pipe(kind Kind) (Transport, Transport) {
	atob := make(chan []byte, pipeBacklog)
	btoa := make(chan []byte, pipeBacklog)
	closedA := make(chan struct{})
	closedB := make(chan struct{})

	a := &pipeEnd{kind: kind, in: btoa, out: atob, closed: closedA, peerClosed: closedB}
	b := &pipeEnd{kind: kind, in: atob, out: btoa, closed: closedB, peerClosed: closedA}

	if kind == KindDatagram {
		a.limit = pipeDatagramLimit
		b.limit = pipeDatagramLimit
	}

	return a, b
}

// pipeEnd is one half of an in-memory transport pair
type pipeEnd struct {
	kind  Kind
	limit int

	in  chan []byte
	out chan []byte

	closed     chan struct{}
	peerClosed chan struct{}
	closeOnce  sync.Once
}

// --------------------------------------------------------------------------
// Interface Methods (docu see link.Transport)
// --------------------------------------------------------------------------

func (p *pipeEnd) Read() ([]byte, error) {
	select {
	case <-p.closed:
		return nil, ErrTransportClosed
	default:
	}

	// Prefer buffered data over a peer close signal
	select {
	case chunk := <-p.in:
		return chunk, nil
	default:
	}

	select {
	case chunk := <-p.in:
		return chunk, nil
	case <-p.closed:
		return nil, ErrTransportClosed
	case <-p.peerClosed:
		select {
		case chunk := <-p.in:
			return chunk, nil
		default:
			return nil, ErrTransportClosed
		}
	}
}

func (p *pipeEnd) Write(data []byte) (int, error) {
	select {
	case <-p.closed:
		return 0, ErrTransportClosed
	default:
	}

	if p.kind == KindDatagram && p.limit > 0 && len(data) > p.limit {
		return 0, &TransportError{Cause: fmt.Errorf("datagram of %d bytes exceeds limit of %d", len(data), p.limit)}
	}
	if p.kind == KindStream && len(data) == 0 {
		return 0, nil
	}

	// Copy so the caller may reuse its slice
	chunk := make([]byte, len(data))
	copy(chunk, data)

	select {
	case p.out <- chunk:
		return len(data), nil
	case <-p.closed:
		return 0, ErrTransportClosed
	case <-p.peerClosed:
		return 0, ErrTransportClosed
	}
}

func (p *pipeEnd) Close() error {
	p.closeOnce.Do(func() {
		close(p.closed)
	})
	return nil
}

func (p *pipeEnd) Kind() Kind {
	return p.kind
}

func (p *pipeEnd) MaxDatagramSize() int {
	return p.limit
}
