package rest

import (
	"time"

	"github.com/socialink/realtime-core/internal/domain/model"
)

// Wire shapes of the backend REST API. Mapped to domain entities at the
// client boundary so nothing above this package depends on the JSON layout.

type userDTO struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Email    string `json:"email"`
	Avatar   string `json:"avatar"`
	IsOnline bool   `json:"isOnline"`
}

type lastMessageDTO struct {
	ID        string    `json:"id"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	SenderID  string    `json:"senderId"`
}

type conversationDTO struct {
	ID          string          `json:"id"`
	ChatID      string          `json:"chatId,omitempty"`
	OtherUser   userDTO         `json:"otherUser"`
	LastMessage *lastMessageDTO `json:"lastMessage"`
	UnreadCount int             `json:"unreadCount"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}

type messageDTO struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversationId"`
	SenderID       string    `json:"senderId"`
	ReceiverID     string    `json:"receiverId"`
	Content        string    `json:"content"`
	Timestamp      time.Time `json:"timestamp"`
	Seen           bool      `json:"seen"`
}

type sendMessageRequest struct {
	ReceiverID string `json:"receiverId"`
	Text       string `json:"text"`
}

func mapUser(d userDTO) model.User {
	return model.User{
		ID:       d.ID,
		Name:     d.Name,
		Email:    d.Email,
		Avatar:   d.Avatar,
		IsOnline: d.IsOnline,
	}
}

func mapConversation(selfID string, d conversationDTO) model.Conversation {
	c := model.Conversation{
		ID:          d.ID,
		ChatID:      d.ChatID,
		Key:         model.CanonicalKey(selfID, d.OtherUser.ID),
		OtherUser:   mapUser(d.OtherUser),
		UnreadCount: d.UnreadCount,
		CreatedAt:   d.CreatedAt,
		UpdatedAt:   d.UpdatedAt,
	}
	if d.LastMessage != nil {
		c.LastMessage = &model.LastMessage{
			ID:        d.LastMessage.ID,
			Content:   d.LastMessage.Content,
			Timestamp: d.LastMessage.Timestamp,
			SenderID:  d.LastMessage.SenderID,
		}
	}
	return c
}

func mapMessage(d messageDTO) model.Message {
	return model.Message{
		ID:             d.ID,
		ConversationID: d.ConversationID,
		SenderID:       d.SenderID,
		ReceiverID:     d.ReceiverID,
		Content:        d.Content,
		Timestamp:      d.Timestamp,
		Seen:           d.Seen,
	}
}
