// Package event defines the JSON wire protocol spoken over the persistent
// connection: the closed set of inbound event kinds pushed by the server and
// the outbound commands emitted by the client. All frames are JSON text with
// a "type" discriminator field.
package event

import (
	"encoding/json"
	"fmt"
	"time"
)

// Kind enumerates every inbound event this client understands. Frames with
// an unrecognized type parse into KindUnknown instead of failing, so new
// server-side event types never break an older client.
type Kind int16

const (
	KindUnknown Kind = iota
	KindJoined
	KindPong
	KindNewMessage
	KindUserOnline
	KindUserOffline
	KindTypingStart
	KindTypingStop
)

// Wire type discriminators, inbound and outbound.
const (
	TypeJoined      = "joined"
	TypeConnected   = "connected" // legacy alias of "joined"
	TypePong        = "pong"
	TypeNewMessage  = "new_message"
	TypeUserOnline  = "user_online"
	TypeUserOffline = "user_offline"
	TypeTypingStart = "typing_start"
	TypeTypingStop  = "typing_stop"

	TypeJoin             = "join"
	TypePing             = "ping"
	TypeJoinConversation = "join_conversation"
)

func (k Kind) String() string {
	switch k {
	case KindJoined:
		return TypeJoined
	case KindPong:
		return TypePong
	case KindNewMessage:
		return TypeNewMessage
	case KindUserOnline:
		return TypeUserOnline
	case KindUserOffline:
		return TypeUserOffline
	case KindTypingStart:
		return TypeTypingStart
	case KindTypingStop:
		return TypeTypingStop
	default:
		return "unknown"
	}
}

// NewMessagePayload is the body of a new_message push event. Sender display
// metadata is optional; when present it seeds the placeholder identity of a
// conversation created from push.
type NewMessagePayload struct {
	Type         string    `json:"type"`
	MessageID    string    `json:"messageId"`
	Conversation ConvRef   `json:"conversation"`
	SenderID     string    `json:"senderId"`
	ReceiverID   string    `json:"receiverId"`
	Content      string    `json:"content"`
	Timestamp    time.Time `json:"timestamp"`
	SenderName   string    `json:"senderName,omitempty"`
	SenderAvatar string    `json:"senderAvatar,omitempty"`
}

// ConvRef carries the backend's conversation document reference.
type ConvRef struct {
	ID string `json:"_id"`
}

// PresencePayload is the body of a user_online / user_offline event.
type PresencePayload struct {
	Type   string `json:"type"`
	UserID string `json:"userId"`
}

// TypingPayload is the body of a typing_start / typing_stop event.
type TypingPayload struct {
	Type           string `json:"type"`
	ConversationID string `json:"conversationId"`
	UserID         string `json:"userId"`
}

// Inbound is one parsed frame. Exactly one payload pointer is non-nil,
// matching Kind; immutable once parsed and consumed by a single dispatch
// pass.
type Inbound struct {
	Kind     Kind
	Message  *NewMessagePayload // KindNewMessage
	Presence *PresencePayload   // KindUserOnline, KindUserOffline
	Typing   *TypingPayload     // KindTypingStart, KindTypingStop
}

// envelope extracts only the type discriminator so the rest of the frame
// can be decoded into the matching concrete struct.
type envelope struct {
	Type string `json:"type"`
}

// Parse decodes a raw inbound frame. A frame that is not valid JSON or has
// no type field returns an error; a well-formed frame of an unrecognized
// type returns KindUnknown with a nil payload.
func Parse(data []byte) (*Inbound, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("event: unmarshal envelope: %w", err)
	}
	if env.Type == "" {
		return nil, fmt.Errorf("event: missing type discriminator")
	}

	switch env.Type {
	case TypeJoined, TypeConnected:
		return &Inbound{Kind: KindJoined}, nil

	case TypePong:
		return &Inbound{Kind: KindPong}, nil

	case TypeNewMessage:
		var p NewMessagePayload
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, fmt.Errorf("event: unmarshal new_message: %w", err)
		}
		return &Inbound{Kind: KindNewMessage, Message: &p}, nil

	case TypeUserOnline, TypeUserOffline:
		var p PresencePayload
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, fmt.Errorf("event: unmarshal presence: %w", err)
		}
		kind := KindUserOnline
		if env.Type == TypeUserOffline {
			kind = KindUserOffline
		}
		return &Inbound{Kind: kind, Presence: &p}, nil

	case TypeTypingStart, TypeTypingStop:
		var p TypingPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, fmt.Errorf("event: unmarshal typing: %w", err)
		}
		kind := KindTypingStart
		if env.Type == TypeTypingStop {
			kind = KindTypingStop
		}
		return &Inbound{Kind: kind, Typing: &p}, nil

	default:
		return &Inbound{Kind: KindUnknown}, nil
	}
}
