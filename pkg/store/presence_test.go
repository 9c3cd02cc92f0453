package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPresenceLifecycle(t *testing.T) {
	us := NewUserStore()

	assert.False(t, us.Known("alice"))
	assert.False(t, us.IsOnline("alice"))

	us.SetOnline("alice")
	assert.True(t, us.Known("alice"))
	assert.True(t, us.IsOnline("alice"))

	us.SetOffline("alice")
	assert.True(t, us.Known("alice"), "records survive going offline")
	assert.False(t, us.IsOnline("alice"))

	us.SetOnline("alice")
	assert.True(t, us.IsOnline("alice"), "offline users can come back")
}

func TestSetOfflineUnknownIsNoop(t *testing.T) {
	us := NewUserStore()
	us.SetOffline("ghost")
	assert.False(t, us.Known("ghost"))
}

func TestLastSeenStamps(t *testing.T) {
	us := NewUserStore()

	us.SetOnline("alice")
	_, presence := us.Snapshot()
	first := presence["alice"].LastSeen
	require.False(t, first.IsZero())

	us.Touch("alice")
	_, presence = us.Snapshot()
	assert.False(t, presence["alice"].LastSeen.Before(first))
}

func TestPublicKeyWithoutRegistration(t *testing.T) {
	us := NewUserStore()

	// A rejected registration still caches the supplied key, but does
	// not make the name a known user.
	us.SetPublicKey("alice", "PEM-1")
	assert.False(t, us.Known("alice"))

	key, ok := us.PublicKey("alice")
	require.True(t, ok)
	assert.Equal(t, "PEM-1", key)
}

func TestPublicKeyOverwriteIdempotent(t *testing.T) {
	us := NewUserStore()

	us.SetPublicKey("alice", "PEM-1")
	us.SetPublicKey("alice", "PEM-2")
	us.SetPublicKey("alice", "PEM-2")

	key, _ := us.PublicKey("alice")
	assert.Equal(t, "PEM-2", key)

	// Empty blobs never clobber a cached key.
	us.SetPublicKey("alice", "")
	key, _ = us.PublicKey("alice")
	assert.Equal(t, "PEM-2", key)
}

func TestSnapshot(t *testing.T) {
	us := NewUserStore()

	us.SetOnline("carol")
	us.SetOnline("alice")
	us.SetOnline("bob")
	us.SetOffline("bob")
	us.SetPublicKey("alice", "PEM")

	online, presence := us.Snapshot()
	assert.Equal(t, []string{"alice", "carol"}, online, "online list is sorted")

	require.Len(t, presence, 3)
	assert.Equal(t, StatusOnline, presence["alice"].Status)
	assert.Equal(t, StatusOffline, presence["bob"].Status)
	assert.Equal(t, "PEM", presence["alice"].PublicKey)
	assert.Empty(t, presence["bob"].PublicKey)
}
