package server

import (
	"sync"
	"sync/atomic"
)

// PendingUpload is the transient scratch state for a two-phase image
// transfer: metadata staged on the connection, consumed by the next
// binary frame. At most one per connection.
type PendingUpload struct {
	To        string
	Filename  string
	Encrypted bool
}

// Session represents one active client connection.
type Session struct {
	ID         uint64
	Conn       *SafeConn
	RemoteAddr string

	mu       sync.RWMutex   // Protects username and pendingUpload
	username string         // Bound at most once, empty until registration
	pending  *PendingUpload // Staged image metadata, nil when none

	alive atomic.Bool // Cleared by the liveness monitor, set by any inbound traffic
}

// Username returns the bound username, empty if the session never
// registered.
func (s *Session) Username() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.username
}

// StageUpload stores image metadata for the connection's next binary
// frame, replacing any previously staged record.
func (s *Session) StageUpload(p PendingUpload) {
	s.mu.Lock()
	s.pending = &p
	s.mu.Unlock()
}

// TakeUpload returns and unconditionally clears the staged metadata.
// The second return is false when nothing was staged.
func (s *Session) TakeUpload() (PendingUpload, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pending == nil {
		return PendingUpload{}, false
	}
	p := *s.pending
	s.pending = nil
	return p, true
}

// MarkAlive records inbound traffic for the liveness monitor.
func (s *Session) MarkAlive() {
	s.alive.Store(true)
}

// Registry maps usernames to at most one live session each and owns
// session lifecycle. It is the first lock in the fixed acquisition
// order: registry before conversation store, never the reverse.
type Registry struct {
	mu       sync.RWMutex
	sessions map[uint64]*Session
	byUser   map[string]*Session
	nextID   uint64

	metrics *Metrics
}

// NewRegistry creates an empty session registry.
func NewRegistry(metrics *Metrics) *Registry {
	return &Registry{
		sessions: make(map[uint64]*Session),
		byUser:   make(map[string]*Session),
		nextID:   1,
		metrics:  metrics,
	}
}

// Add creates a session for a freshly accepted connection.
func (r *Registry) Add(conn *SafeConn) *Session {
	sess := &Session{
		Conn:       conn,
		RemoteAddr: conn.RemoteAddr(),
	}
	sess.alive.Store(true)

	r.mu.Lock()
	sess.ID = r.nextID
	r.nextID++
	r.sessions[sess.ID] = sess
	count := len(r.sessions)
	r.mu.Unlock()

	if r.metrics != nil {
		r.metrics.RecordActiveSessions(count)
		r.metrics.RecordSessionCreated()
	}

	return sess
}

// Bind associates a username with a session. Returns any previous
// session still mapped to that username so the caller can terminate it;
// that can only be a stale connection whose close was never observed.
func (r *Registry) Bind(sess *Session, username string) (stale *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if prev := r.byUser[username]; prev != nil && prev != sess {
		stale = prev
	}
	r.byUser[username] = sess

	sess.mu.Lock()
	sess.username = username
	sess.mu.Unlock()

	return stale
}

// Lookup returns the live session for a username, if any.
func (r *Registry) Lookup(username string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sess, ok := r.byUser[username]
	return sess, ok
}

// Unbind removes a session and its username mapping, returning the
// username it was bound to. The mapping is only removed if it still
// points at this session, so a re-registration that already rebound the
// name is left alone.
func (r *Registry) Unbind(sess *Session) (username string, wasBound bool) {
	r.mu.Lock()
	if _, ok := r.sessions[sess.ID]; !ok {
		r.mu.Unlock()
		return "", false
	}
	delete(r.sessions, sess.ID)

	sess.mu.RLock()
	username = sess.username
	sess.mu.RUnlock()

	if username != "" && r.byUser[username] == sess {
		delete(r.byUser, username)
	}
	count := len(r.sessions)
	r.mu.Unlock()

	if r.metrics != nil {
		r.metrics.RecordActiveSessions(count)
		r.metrics.RecordSessionDisconnected()
	}

	return username, username != ""
}

// All returns a snapshot of every active session.
func (r *Registry) All() []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sessions := make([]*Session, 0, len(r.sessions))
	for _, sess := range r.sessions {
		sessions = append(sessions, sess)
	}
	return sessions
}

// Count returns the number of active sessions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// CloseAll closes every connection and empties the registry.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, sess := range r.sessions {
		sess.Conn.Close()
	}
	r.sessions = make(map[uint64]*Session)
	r.byUser = make(map[string]*Session)
}
