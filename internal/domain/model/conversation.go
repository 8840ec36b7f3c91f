package model

import (
	"strings"
	"time"
)

// CanonicalKey derives the order-independent identifier of a two-party
// thread: the participant ids sorted lexicographically and joined.
// CanonicalKey(a, b) == CanonicalKey(b, a) for every pair.
func CanonicalKey(a, b string) string {
	if strings.Compare(a, b) > 0 {
		a, b = b, a
	}
	return a + ":" + b
}

// LastMessage is the most recent message of a conversation as carried by
// both the conversation-list API and new_message push events.
type LastMessage struct {
	ID        string
	Content   string
	Timestamp time.Time
	SenderID  string
}

// Conversation represents a two-party thread. At most one Conversation per
// canonical key is ever held in the active set; on conflict the record with
// the newer resolved timestamp wins outright.
type Conversation struct {
	ID     string
	ChatID string
	// Key is the canonical key of the two participants.
	Key         string
	OtherUser   User
	LastMessage *LastMessage
	UnreadCount int
	CreatedAt   time.Time
	UpdatedAt   time.Time
	// Provisional marks a conversation whose OtherUser is a placeholder
	// awaiting a directory lookup.
	Provisional bool
}

// ResolvedTimestamp returns the timestamp a conversation sorts and merges
// by: lastMessage.timestamp, falling back to updatedAt, then createdAt.
func (c *Conversation) ResolvedTimestamp() time.Time {
	if c.LastMessage != nil && !c.LastMessage.Timestamp.IsZero() {
		return c.LastMessage.Timestamp
	}
	if !c.UpdatedAt.IsZero() {
		return c.UpdatedAt
	}
	return c.CreatedAt
}
