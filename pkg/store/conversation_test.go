package store

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestConversationIDOrderIndependent(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		a := rapid.StringMatching(`[a-zA-Z0-9_]{1,16}`).Draw(t, "a")
		b := rapid.StringMatching(`[a-zA-Z0-9_]{1,16}`).Draw(t, "b")

		if ConversationID(a, b) != ConversationID(b, a) {
			t.Fatalf("conv(%q,%q) != conv(%q,%q)", a, b, b, a)
		}
	})
}

func TestConversationIDCanonical(t *testing.T) {
	assert.Equal(t, "alice-bob", ConversationID("alice", "bob"))
	assert.Equal(t, "alice-bob", ConversationID("bob", "alice"))
	// Case-sensitive: uppercase sorts before lowercase.
	assert.Equal(t, "Bob-alice", ConversationID("alice", "Bob"))
}

func TestAppendReturnsStoredCopy(t *testing.T) {
	cs := NewConversationStore()

	stored, err := cs.Append("alice", "bob", Message{Body: "hi", Kind: KindText})
	require.NoError(t, err)
	assert.Equal(t, "alice", stored.Sender)
	assert.Equal(t, "hi", stored.Body)
	assert.Equal(t, KindText, stored.Kind)
	assert.False(t, stored.Timestamp.IsZero())
}

func TestAppendRejectsUnknownKind(t *testing.T) {
	cs := NewConversationStore()

	_, err := cs.Append("alice", "bob", Message{Body: "hi", Kind: "carrier-pigeon"})
	require.ErrorIs(t, err, ErrUnknownKind)
	assert.Equal(t, 0, cs.Len("alice", "bob"))
}

func TestHistoryEvictsOldestBeyondLimit(t *testing.T) {
	cs := NewConversationStore()

	for i := 0; i < HistoryLimit+1; i++ {
		_, err := cs.Append("alice", "bob", Message{Body: fmt.Sprintf("msg-%d", i), Kind: KindText})
		require.NoError(t, err)
	}

	convs := cs.HistoryFor("alice")
	require.Len(t, convs, 1)
	messages := convs[0].Messages
	require.Len(t, messages, HistoryLimit)

	// msg-0 evicted, remaining 50 preserve insertion order.
	assert.Equal(t, "msg-1", messages[0].Body)
	assert.Equal(t, fmt.Sprintf("msg-%d", HistoryLimit), messages[len(messages)-1].Body)
	for i := 1; i < len(messages); i++ {
		assert.False(t, messages[i].Timestamp.Before(messages[i-1].Timestamp))
	}
}

func TestHistoryBoundProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		cs := NewConversationStore()
		n := rapid.IntRange(0, 3*HistoryLimit).Draw(t, "n")

		for i := 0; i < n; i++ {
			if _, err := cs.Append("a", "b", Message{Body: fmt.Sprintf("%d", i), Kind: KindText}); err != nil {
				t.Fatalf("append %d: %v", i, err)
			}
		}

		got := cs.Len("a", "b")
		want := n
		if want > HistoryLimit {
			want = HistoryLimit
		}
		if got != want {
			t.Fatalf("after %d appends: len=%d, want %d", n, got, want)
		}
	})
}

func TestHistoryForExactParticipantMatch(t *testing.T) {
	cs := NewConversationStore()

	_, err := cs.Append("alice", "bob", Message{Body: "hi", Kind: KindText})
	require.NoError(t, err)
	_, err = cs.Append("carol", "dave", Message{Body: "yo", Kind: KindText})
	require.NoError(t, err)

	convs := cs.HistoryFor("alice")
	require.Len(t, convs, 1)
	assert.Equal(t, "alice-bob", convs[0].ID)

	// "al" is a substring of "alice" but not a participant.
	assert.Empty(t, cs.HistoryFor("al"))
	assert.Empty(t, cs.HistoryFor("ali"))
	assert.Empty(t, cs.HistoryFor("ob"))
}

func TestHistoryForSpansAllConversations(t *testing.T) {
	cs := NewConversationStore()

	_, err := cs.Append("alice", "bob", Message{Body: "1", Kind: KindText})
	require.NoError(t, err)
	_, err = cs.Append("carol", "alice", Message{Body: "2", Kind: KindEncrypted})
	require.NoError(t, err)

	convs := cs.HistoryFor("alice")
	require.Len(t, convs, 2)
	assert.Equal(t, "alice-bob", convs[0].ID)
	assert.Equal(t, "alice-carol", convs[1].ID)
}

func TestHistoryForReturnsCopies(t *testing.T) {
	cs := NewConversationStore()

	_, err := cs.Append("alice", "bob", Message{Body: "original", Kind: KindText})
	require.NoError(t, err)

	first := cs.HistoryFor("alice")
	first[0].Messages[0].Body = "mutated"

	again := cs.HistoryFor("alice")
	assert.Equal(t, "original", again[0].Messages[0].Body)
}
