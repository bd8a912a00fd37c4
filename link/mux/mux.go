package mux

import (
	"fmt"

	"github.com/framelink/framelink/link"
	"github.com/framelink/framelink/link/conn"
	"github.com/hashicorp/go-multierror"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
)

var Logger = logger.GetLogger("link/mux")

// Registry tracks the set of live connections of a process. All methods are
// safe for concurrent use; lookups run concurrently with mutations.
type Registry struct {
	conns *xsync.MapOf[uint64, *conn.Conn]
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{
		conns: xsync.NewMapOf[uint64, *conn.Conn](),
	}
}

// Register adds a connection and returns its identifier. Identifiers come
// from the connection itself and are unique for the process lifetime, so a
// removed id is never reused.
func (r *Registry) Register(c *conn.Conn) uint64 {
	id := c.ID()
	r.conns.Store(id, c)
	Logger.Infof("registered connection %d (%d active)", id, r.conns.Size())
	return id
}

// Lookup returns the connection registered under id, or false when the id is
// unknown or already removed.
func (r *Registry) Lookup(id uint64) (*conn.Conn, bool) {
	return r.conns.Load(id)
}

// Remove permanently removes the connection registered under id. The
// connection itself is not closed; reaping a closed connection and closing a
// live one are both valid uses.
func (r *Registry) Remove(id uint64) {
	if _, ok := r.conns.LoadAndDelete(id); ok {
		Logger.Infof("removed connection %d (%d active)", id, r.conns.Size())
	}
}

// Len returns the number of registered connections.
func (r *Registry) Len() int {
	return r.conns.Size()
}

// Range calls f for each registered connection until f returns false. The
// iteration reflects a consistent snapshot discipline, not a global lock.
func (r *Registry) Range(f func(id uint64, c *conn.Conn) bool) {
	r.conns.Range(f)
}

// Broadcast sends a frame to every Established connection, continuing past
// individual failures. Failures are reported aggregated; a nil return means
// every Established connection accepted the frame.
func (r *Registry) Broadcast(frame []byte) error {
	var result *multierror.Error

	r.conns.Range(func(id uint64, c *conn.Conn) bool {
		if c.State() != link.StateEstablished {
			return true
		}
		if err := c.Send(frame); err != nil {
			result = multierror.Append(result, fmt.Errorf("connection %d: %w", id, err))
		}
		return true
	})

	return result.ErrorOrNil()
}

// CloseAll gracefully closes and removes every registered connection. Used
// for orderly process teardown.
func (r *Registry) CloseAll() {
	r.conns.Range(func(id uint64, c *conn.Conn) bool {
		_ = c.Close()
		r.conns.Delete(id)
		return true
	})
	Logger.Infof("closed all connections")
}
