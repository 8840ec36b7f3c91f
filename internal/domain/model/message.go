package model

import "time"

// Message is a single chat message. Immutable once created; append-only
// within a conversation's message store. Uniqueness is by ID, with a
// secondary near-duplicate guard applied by the store.
type Message struct {
	ID             string
	ConversationID string
	SenderID       string
	ReceiverID     string
	Content        string
	Timestamp      time.Time
	Seen           bool
}
