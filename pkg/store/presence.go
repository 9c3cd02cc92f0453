package store

import (
	"sort"
	"sync"
	"time"
)

// Presence states.
const (
	StatusOnline  = "online"
	StatusOffline = "offline"
)

// PresenceInfo is one user's presence as reported in snapshots. A zero
// LastSeen means the user has never been seen; an empty PublicKey means
// none is cached.
type PresenceInfo struct {
	Status    string
	LastSeen  time.Time
	PublicKey string
}

type userRecord struct {
	status   string
	lastSeen time.Time
}

// UserStore tracks every username that has ever registered, plus cached
// public-key blobs. Records are never deleted, only marked offline, so
// users can reconnect and keep their history. Key blobs may exist for
// names that never completed registration (a rejected register still
// stores the supplied key, matching the original protocol).
//
// Both maps grow for the life of the process. There is no expiry; this
// is a known unbounded-growth property, kept deliberately.
type UserStore struct {
	mu    sync.RWMutex
	users map[string]*userRecord
	keys  map[string]string
}

func NewUserStore() *UserStore {
	return &UserStore{
		users: make(map[string]*userRecord),
		keys:  make(map[string]string),
	}
}

// SetOnline marks a user online and stamps last-seen, creating the
// record on first registration.
func (us *UserStore) SetOnline(username string) {
	us.mu.Lock()
	defer us.mu.Unlock()

	rec := us.users[username]
	if rec == nil {
		rec = &userRecord{}
		us.users[username] = rec
	}
	rec.status = StatusOnline
	rec.lastSeen = time.Now().UTC()
}

// SetOffline marks a user offline and stamps last-seen. The record is
// retained.
func (us *UserStore) SetOffline(username string) {
	us.mu.Lock()
	defer us.mu.Unlock()

	if rec := us.users[username]; rec != nil {
		rec.status = StatusOffline
		rec.lastSeen = time.Now().UTC()
	}
}

// Touch refreshes last-seen without changing status. Called on liveness
// probe replies.
func (us *UserStore) Touch(username string) {
	us.mu.Lock()
	defer us.mu.Unlock()

	if rec := us.users[username]; rec != nil {
		rec.lastSeen = time.Now().UTC()
	}
}

// Known reports whether the username has ever completed registration.
func (us *UserStore) Known(username string) bool {
	us.mu.RLock()
	defer us.mu.RUnlock()

	_, ok := us.users[username]
	return ok
}

// IsOnline reports whether the username is currently online.
func (us *UserStore) IsOnline(username string) bool {
	us.mu.RLock()
	defer us.mu.RUnlock()

	rec := us.users[username]
	return rec != nil && rec.status == StatusOnline
}

// SetPublicKey caches a user's opaque public-key blob, overwriting any
// previous one. Empty blobs are ignored.
func (us *UserStore) SetPublicKey(username, publicKey string) {
	if publicKey == "" {
		return
	}
	us.mu.Lock()
	defer us.mu.Unlock()
	us.keys[username] = publicKey
}

// PublicKey returns the cached key blob for a username, if any.
func (us *UserStore) PublicKey(username string) (string, bool) {
	us.mu.RLock()
	defer us.mu.RUnlock()

	key, ok := us.keys[username]
	return key, ok
}

// Snapshot returns the sorted list of online usernames and the presence
// of every registered user.
func (us *UserStore) Snapshot() ([]string, map[string]PresenceInfo) {
	us.mu.RLock()
	defer us.mu.RUnlock()

	var online []string
	status := make(map[string]PresenceInfo, len(us.users))
	for name, rec := range us.users {
		if rec.status == StatusOnline {
			online = append(online, name)
		}
		status[name] = PresenceInfo{
			Status:    rec.status,
			LastSeen:  rec.lastSeen,
			PublicKey: us.keys[name],
		}
	}

	sort.Strings(online)
	return online, status
}
