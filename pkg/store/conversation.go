// Package store holds the relay's process-lifetime state: user presence
// records and bounded per-conversation message history. Nothing here is
// persisted; a restart starts empty by design.
package store

import (
	"errors"
	"sort"
	"strings"
	"sync"
	"time"
)

// HistoryLimit is the maximum number of retained messages per
// conversation. The oldest entry is evicted first.
const HistoryLimit = 50

// Message kinds.
const (
	KindText      = "text"
	KindEncrypted = "encrypted"
	KindImage     = "image"
)

// ErrUnknownKind is returned when a message with an unrecognized kind
// is appended. The router reports it as a generic send failure.
var ErrUnknownKind = errors.New("unknown message kind")

// Message is one immutable conversation entry. Body holds the text,
// ciphertext, or image filename; ImageData holds base64 image bytes for
// image-kind messages only.
type Message struct {
	Sender    string
	Body      string
	Kind      string
	Timestamp time.Time
	ImageData string
}

// Conversation is the retained backlog for one username pair.
type Conversation struct {
	ID       string
	Messages []Message
}

// ConversationID returns the canonical, order-independent key for a
// username pair: lexicographic sort joined with "-".
func ConversationID(a, b string) string {
	if strings.Compare(a, b) > 0 {
		a, b = b, a
	}
	return a + "-" + b
}

type conversation struct {
	participants [2]string
	messages     []Message
}

// ConversationStore owns all conversation backlogs. Safe for concurrent
// use; callers holding the session registry lock may call into it, the
// reverse order is not allowed.
type ConversationStore struct {
	mu    sync.RWMutex
	convs map[string]*conversation
}

func NewConversationStore() *ConversationStore {
	return &ConversationStore{convs: make(map[string]*conversation)}
}

// Append stores a message in the canonical conversation for the pair,
// stamping it with the current time, and returns the stored copy. The
// backlog is trimmed to HistoryLimit, oldest first.
func (cs *ConversationStore) Append(from, to string, msg Message) (Message, error) {
	switch msg.Kind {
	case KindText, KindEncrypted, KindImage:
	default:
		return Message{}, ErrUnknownKind
	}

	msg.Sender = from
	msg.Timestamp = time.Now().UTC()

	id := ConversationID(from, to)

	cs.mu.Lock()
	defer cs.mu.Unlock()

	conv := cs.convs[id]
	if conv == nil {
		a, b := from, to
		if strings.Compare(a, b) > 0 {
			a, b = b, a
		}
		conv = &conversation{participants: [2]string{a, b}}
		cs.convs[id] = conv
	}

	conv.messages = append(conv.messages, msg)
	if len(conv.messages) > HistoryLimit {
		conv.messages = conv.messages[len(conv.messages)-HistoryLimit:]
	}

	return msg, nil
}

// HistoryFor returns the full retained backlog of every conversation
// the username participates in, ordered by conversation id. Matching is
// by exact participant, so "al" never matches "alice-bob".
func (cs *ConversationStore) HistoryFor(username string) []Conversation {
	cs.mu.RLock()
	defer cs.mu.RUnlock()

	var result []Conversation
	for id, conv := range cs.convs {
		if conv.participants[0] != username && conv.participants[1] != username {
			continue
		}
		messages := make([]Message, len(conv.messages))
		copy(messages, conv.messages)
		result = append(result, Conversation{ID: id, Messages: messages})
	}

	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result
}

// Len returns the current backlog length for a pair.
func (cs *ConversationStore) Len(a, b string) int {
	cs.mu.RLock()
	defer cs.mu.RUnlock()

	conv := cs.convs[ConversationID(a, b)]
	if conv == nil {
		return 0
	}
	return len(conv.messages)
}
