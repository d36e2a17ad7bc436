package transport

import "sync"

// registry is the connection_id -> *Connection map shared between the
// acceptor, the idle reaper, and shutdown. It is the only state shared
// across connections; everything else a Connection owns is private to
// its own read loop.
type registry struct {
	mu    sync.Mutex
	conns map[int64]*Connection
}

func newRegistry() *registry {
	return &registry{conns: make(map[int64]*Connection)}
}

func (r *registry) add(c *Connection) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conns[c.id] = c
}

// remove deletes c from the registry if present. Safe to call more than
// once; the second call is a no-op.
func (r *registry) remove(id int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.conns, id)
}

func (r *registry) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.conns)
}

// snapshot returns the currently registered connections. Taken under the
// lock but the slice itself is safe to use afterward without it.
func (r *registry) snapshot() []*Connection {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Connection, 0, len(r.conns))
	for _, c := range r.conns {
		out = append(out, c)
	}
	return out
}
