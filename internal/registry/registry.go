// Package registry tracks live client connections per user. A user may hold
// several connections at once (multiple devices); delivery targets all of
// them. The registry is sharded by user to keep register/unregister cheap
// under churn.
package registry

import (
	"errors"
	"hash/fnv"
	"sync"
)

const shardCount = 16

// ErrSendBufferFull is returned by Conn.Push when the connection's outbound
// buffer is full. The caller treats the frame as dropped; durable delivery
// does not depend on the push succeeding.
var ErrSendBufferFull = errors.New("registry: send buffer full")

// Conn is one live client connection. Frames pushed to it are drained by the
// connection's write loop via Outbound.
type Conn struct {
	User string

	send chan []byte

	closeOnce sync.Once
	closed    chan struct{}
}

// NewConn builds a connection for user with the given outbound buffer size.
func NewConn(user string, buffer int) *Conn {
	if buffer <= 0 {
		buffer = 64
	}
	return &Conn{
		User:   user,
		send:   make(chan []byte, buffer),
		closed: make(chan struct{}),
	}
}

// Push enqueues a frame without blocking. A full buffer or a closed
// connection drops the frame and reports an error.
func (c *Conn) Push(frame []byte) error {
	select {
	case <-c.closed:
		return errors.New("registry: connection closed")
	default:
	}
	select {
	case c.send <- frame:
		return nil
	default:
		return ErrSendBufferFull
	}
}

// Outbound is the channel the connection's write loop drains.
func (c *Conn) Outbound() <-chan []byte { return c.send }

// Close marks the connection dead. Safe to call more than once.
func (c *Conn) Close() {
	c.closeOnce.Do(func() { close(c.closed) })
}

// Done is closed when the connection has been closed.
func (c *Conn) Done() <-chan struct{} { return c.closed }

type shard struct {
	mu    sync.RWMutex
	conns map[string]map[*Conn]struct{}
}

// Registry maps users to their live connections.
type Registry struct {
	shards [shardCount]*shard
}

func New() *Registry {
	r := &Registry{}
	for i := range r.shards {
		r.shards[i] = &shard{conns: make(map[string]map[*Conn]struct{})}
	}
	return r
}

func (r *Registry) shardFor(user string) *shard {
	h := fnv.New32a()
	h.Write([]byte(user))
	return r.shards[h.Sum32()%shardCount]
}

// Register adds a live connection for a user.
func (r *Registry) Register(c *Conn) {
	s := r.shardFor(c.User)
	s.mu.Lock()
	defer s.mu.Unlock()
	set, ok := s.conns[c.User]
	if !ok {
		set = make(map[*Conn]struct{})
		s.conns[c.User] = set
	}
	set[c] = struct{}{}
}

// Unregister removes a connection and closes it. Removing a connection that
// was never registered is a no-op.
func (r *Registry) Unregister(c *Conn) {
	s := r.shardFor(c.User)
	s.mu.Lock()
	if set, ok := s.conns[c.User]; ok {
		delete(set, c)
		if len(set) == 0 {
			delete(s.conns, c.User)
		}
	}
	s.mu.Unlock()
	c.Close()
}

// Connections returns the user's live connections. The returned slice is a
// snapshot; connections may close after it is taken.
func (r *Registry) Connections(user string) []*Conn {
	s := r.shardFor(user)
	s.mu.RLock()
	defer s.mu.RUnlock()
	set := s.conns[user]
	if len(set) == 0 {
		return nil
	}
	out := make([]*Conn, 0, len(set))
	for c := range set {
		out = append(out, c)
	}
	return out
}

// Online reports whether the user has at least one live connection.
func (r *Registry) Online(user string) bool {
	s := r.shardFor(user)
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.conns[user]) > 0
}

// CloseAll closes and removes every connection. Used at shutdown; write
// loops observe Done and send a close frame.
func (r *Registry) CloseAll() {
	for _, s := range r.shards {
		s.mu.Lock()
		for user, set := range s.conns {
			for c := range set {
				c.Close()
			}
			delete(s.conns, user)
		}
		s.mu.Unlock()
	}
}

// Len returns the total number of live connections.
func (r *Registry) Len() int {
	n := 0
	for _, s := range r.shards {
		s.mu.RLock()
		for _, set := range s.conns {
			n += len(set)
		}
		s.mu.RUnlock()
	}
	return n
}
