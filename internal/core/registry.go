package core

// sessionRegistry is the ordered set of live sessions for one room.
// Only the owning room goroutine touches it, so it needs no lock.
// Iteration order is insertion order; removal while iterating over a
// snapshot is safe.
type sessionRegistry struct {
	order []SessionID
	conns map[SessionID]SignalConnection
}

func newSessionRegistry() *sessionRegistry {
	return &sessionRegistry{conns: make(map[SessionID]SignalConnection)}
}

func (r *sessionRegistry) add(sid SessionID, conn SignalConnection) {
	if _, ok := r.conns[sid]; !ok {
		r.order = append(r.order, sid)
	}
	r.conns[sid] = conn
}

// remove reports whether the session was present. Removing an absent
// session is a no-op.
func (r *sessionRegistry) remove(sid SessionID) bool {
	if _, ok := r.conns[sid]; !ok {
		return false
	}
	delete(r.conns, sid)
	for i, id := range r.order {
		if id == sid {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return true
}

func (r *sessionRegistry) conn(sid SessionID) (SignalConnection, bool) {
	c, ok := r.conns[sid]
	return c, ok
}

func (r *sessionRegistry) len() int { return len(r.conns) }

// snapshot copies the current iteration order so callers may remove
// entries while walking it.
func (r *sessionRegistry) snapshot() []SessionID {
	out := make([]SessionID, len(r.order))
	copy(out, r.order)
	return out
}
