package gateway

import (
	"sync"
	"time"
)

// Registry maps identities to live connections. At most one binding per user:
// a second join overwrites the map entry and the prior socket is evicted.
// This is the only shared mutable state on the server side; nothing blocks or
// does IO while holding the lock.
type Registry struct {
	mu     sync.RWMutex
	byUser map[int64]*Conn
	byConn map[string]*Conn
}

func NewRegistry() *Registry {
	return &Registry{
		byUser: make(map[int64]*Conn),
		byConn: make(map[string]*Conn),
	}
}

// AddUnauth registers a freshly upgraded socket with a grace TTL; it is swept
// unless a join arrives in time.
func (r *Registry) AddUnauth(c *Conn, ttl time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c.expireAt = time.Now().Add(ttl)
	r.byConn[c.ID] = c
}

// Bind associates the connection with a user id and returns the evicted
// prior binding, if any. The caller closes the evicted socket outside the
// lock.
func (r *Registry) Bind(c *Conn, userID int64, ttl time.Duration) (evicted *Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if prior := r.byUser[userID]; prior != nil && prior != c {
		delete(r.byConn, prior.ID)
		evicted = prior
	}
	c.userID = userID
	c.authorized = true
	c.expireAt = time.Now().Add(ttl)
	r.byUser[userID] = c
	r.byConn[c.ID] = c
	return evicted
}

// Unbind removes the connection and reports whether it owned the current
// binding for its user. An evicted stale socket no longer appears in byConn
// and must not unbind its replacement.
func (r *Registry) Unbind(c *Conn) (userID int64, owned bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byConn[c.ID]; !ok {
		return 0, false
	}
	delete(r.byConn, c.ID)
	if c.authorized && r.byUser[c.userID] == c {
		delete(r.byUser, c.userID)
		return c.userID, true
	}
	return c.userID, false
}

func (r *Registry) Get(userID int64) (*Conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.byUser[userID]
	return c, ok
}

// Touch renews the heartbeat deadline; called from the pong handler. Only a
// bound connection is renewed: an un-joined socket keeps its grace deadline
// no matter how many pongs it answers, so the sweeper still collects it.
func (r *Registry) Touch(c *Conn, ttl time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byConn[c.ID]; ok && c.authorized {
		c.expireAt = time.Now().Add(ttl)
	}
}

// Snapshot returns every bound connection, for global broadcasts.
func (r *Registry) Snapshot() []*Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Conn, 0, len(r.byUser))
	for _, c := range r.byUser {
		out = append(out, c)
	}
	return out
}

// Expired lists connections past their deadline; the sweeper disconnects
// them outside the lock.
func (r *Registry) Expired(now time.Time) []*Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*Conn
	for _, c := range r.byConn {
		if now.After(c.expireAt) {
			out = append(out, c)
		}
	}
	return out
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byConn)
}

// Online lists the ids currently bound, the in-process presence truth.
func (r *Registry) Online() []int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]int64, 0, len(r.byUser))
	for id := range r.byUser {
		out = append(out, id)
	}
	return out
}
