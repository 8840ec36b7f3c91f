// Package devserver is an in-memory reference implementation of the
// backend this client core talks to: the WebSocket wire protocol plus the
// conversation, message, and user-directory REST APIs. It backs local
// development and the integration tests; it is not a production server.
package devserver

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/socialink/realtime-core/internal/domain/event"
	"github.com/socialink/realtime-core/internal/domain/model"
	"github.com/socialink/realtime-core/internal/metrics"
)

type storedUser struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Email  string `json:"email"`
	Avatar string `json:"avatar"`
}

type storedMessage struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversationId"`
	SenderID       string    `json:"senderId"`
	ReceiverID     string    `json:"receiverId"`
	Content        string    `json:"content"`
	Timestamp      time.Time `json:"timestamp"`
	Seen           bool      `json:"seen"`
}

type conversation struct {
	id        string
	a, b      string // participant ids
	messages  []storedMessage
	unread    map[string]int
	createdAt time.Time
	updatedAt time.Time
}

// Server holds all state in memory.
type Server struct {
	logger *slog.Logger
	hub    *hub

	mu     sync.Mutex
	users  map[string]storedUser
	convs  map[string]*conversation // id -> conversation
	byPair map[string]string        // canonical pair key -> conversation id
}

func New(logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		logger: logger,
		hub:    newHub(logger),
		users:  make(map[string]storedUser),
		convs:  make(map[string]*conversation),
		byPair: make(map[string]string),
	}
}

// AddUser seeds a directory record, used by fixtures and tests.
func (s *Server) AddUser(id, name, email, avatar string) {
	s.mu.Lock()
	s.users[id] = storedUser{ID: id, Name: name, Email: email, Avatar: avatar}
	s.mu.Unlock()
}

// Handler returns the full HTTP surface: /ws, /api/*, and /metrics.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Get("/ws", s.handleWS)
	r.Route("/api", func(r chi.Router) {
		r.Get("/conversations", s.handleConversations)
		r.Get("/messages/{userID}", s.handleHistory)
		r.Post("/messages", s.handleSend)
		r.Get("/users/{userID}", s.handleUser)
	})
	r.Handle("/metrics", metrics.Handler())
	return r
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("ws upgrade failed", "err", err)
		return
	}

	c := &client{conn: conn}
	defer func() {
		conn.Close()
		if c.userID != "" && s.hub.remove(c) {
			s.hub.broadcast(c.userID, event.PresencePayload{Type: event.TypeUserOffline, UserID: c.userID})
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		s.handleFrame(c, data)
	}
}

func (s *Server) handleFrame(c *client, data []byte) {
	var env struct {
		Type           string         `json:"type"`
		UserID         string         `json:"userId"`
		UserInfo       event.UserInfo `json:"userInfo"`
		ConversationID string         `json:"conversationId"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		s.logger.Debug("devserver dropping malformed frame", "err", err)
		return
	}

	switch env.Type {
	case event.TypeJoin:
		c.userID = env.UserID
		s.mu.Lock()
		if _, ok := s.users[env.UserID]; !ok {
			s.users[env.UserID] = storedUser{
				ID:     env.UserID,
				Name:   env.UserInfo.Name,
				Email:  env.UserInfo.Email,
				Avatar: env.UserInfo.Avatar,
			}
		}
		s.mu.Unlock()

		first := s.hub.add(c)
		_ = c.write(map[string]string{"type": event.TypeJoined})
		if first {
			s.hub.broadcast(c.userID, event.PresencePayload{Type: event.TypeUserOnline, UserID: c.userID})
		}

	case event.TypePing:
		_ = c.write(map[string]string{"type": event.TypePong})

	case event.TypeJoinConversation:
		// Subscription is implicit; both participants always receive
		// their conversation's events.

	case event.TypeTypingStart, event.TypeTypingStop:
		s.forwardTyping(c.userID, env.Type, env.ConversationID)

	default:
		s.logger.Debug("devserver dropping unsupported frame", "type", env.Type)
	}
}

// forwardTyping relays a typing signal to the other participant.
func (s *Server) forwardTyping(fromID, typ, conversationID string) {
	s.mu.Lock()
	conv, ok := s.convs[conversationID]
	s.mu.Unlock()
	if !ok || fromID == "" {
		return
	}

	other := conv.a
	if other == fromID {
		other = conv.b
	}
	s.hub.sendTo(other, event.TypingPayload{
		Type:           typ,
		ConversationID: conversationID,
		UserID:         fromID,
	})
}

// getOrCreateConv finds the conversation between two users, creating it on
// first contact.
func (s *Server) getOrCreateConv(a, b string) *conversation {
	key := model.CanonicalKey(a, b)
	if id, ok := s.byPair[key]; ok {
		return s.convs[id]
	}

	now := time.Now().UTC()
	conv := &conversation{
		id:        uuid.NewString(),
		a:         a,
		b:         b,
		unread:    make(map[string]int),
		createdAt: now,
		updatedAt: now,
	}
	s.convs[conv.id] = conv
	s.byPair[key] = conv.id
	return conv
}

func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	senderID := r.Header.Get("X-User-ID")
	if senderID == "" {
		http.Error(w, "missing X-User-ID", http.StatusUnauthorized)
		return
	}

	var req struct {
		ReceiverID string `json:"receiverId"`
		Text       string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ReceiverID == "" {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	conv := s.getOrCreateConv(senderID, req.ReceiverID)
	msg := storedMessage{
		ID:             uuid.NewString(),
		ConversationID: conv.id,
		SenderID:       senderID,
		ReceiverID:     req.ReceiverID,
		Content:        req.Text,
		Timestamp:      time.Now().UTC(),
	}
	conv.messages = append(conv.messages, msg)
	conv.updatedAt = msg.Timestamp
	conv.unread[req.ReceiverID]++
	sender := s.users[senderID]
	s.mu.Unlock()

	// Push to both parties; the sender's echo exercises the client-side
	// duplicate guards.
	push := event.NewMessagePayload{
		Type:         event.TypeNewMessage,
		MessageID:    msg.ID,
		Conversation: event.ConvRef{ID: conv.id},
		SenderID:     msg.SenderID,
		ReceiverID:   msg.ReceiverID,
		Content:      msg.Content,
		Timestamp:    msg.Timestamp,
		SenderName:   sender.Name,
		SenderAvatar: sender.Avatar,
	}
	s.hub.sendTo(req.ReceiverID, push)
	s.hub.sendTo(senderID, push)

	writeJSON(w, http.StatusCreated, msg)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	selfID := r.Header.Get("X-User-ID")
	otherID := chi.URLParam(r, "userID")
	if selfID == "" {
		http.Error(w, "missing X-User-ID", http.StatusUnauthorized)
		return
	}

	s.mu.Lock()
	out := []storedMessage{}
	if id, ok := s.byPair[model.CanonicalKey(selfID, otherID)]; ok {
		conv := s.convs[id]
		out = append(out, conv.messages...)
		conv.unread[selfID] = 0
	}
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleConversations(w http.ResponseWriter, r *http.Request) {
	selfID := r.Header.Get("X-User-ID")
	if selfID == "" {
		http.Error(w, "missing X-User-ID", http.StatusUnauthorized)
		return
	}

	type lastMessageJSON struct {
		ID        string    `json:"id"`
		Content   string    `json:"content"`
		Timestamp time.Time `json:"timestamp"`
		SenderID  string    `json:"senderId"`
	}
	type conversationJSON struct {
		ID        string `json:"id"`
		OtherUser struct {
			ID       string `json:"id"`
			Name     string `json:"name"`
			Email    string `json:"email"`
			Avatar   string `json:"avatar"`
			IsOnline bool   `json:"isOnline"`
		} `json:"otherUser"`
		LastMessage *lastMessageJSON `json:"lastMessage"`
		UnreadCount int              `json:"unreadCount"`
		CreatedAt   time.Time        `json:"createdAt"`
		UpdatedAt   time.Time        `json:"updatedAt"`
	}

	s.mu.Lock()
	out := []conversationJSON{}
	for _, conv := range s.convs {
		if conv.a != selfID && conv.b != selfID {
			continue
		}
		otherID := conv.a
		if otherID == selfID {
			otherID = conv.b
		}
		other := s.users[otherID]

		var cj conversationJSON
		cj.ID = conv.id
		cj.OtherUser.ID = otherID
		cj.OtherUser.Name = other.Name
		cj.OtherUser.Email = other.Email
		cj.OtherUser.Avatar = other.Avatar
		cj.OtherUser.IsOnline = s.hub.isOnline(otherID)
		cj.UnreadCount = conv.unread[selfID]
		cj.CreatedAt = conv.createdAt
		cj.UpdatedAt = conv.updatedAt
		if n := len(conv.messages); n > 0 {
			last := conv.messages[n-1]
			cj.LastMessage = &lastMessageJSON{
				ID:        last.ID,
				Content:   last.Content,
				Timestamp: last.Timestamp,
				SenderID:  last.SenderID,
			}
		}
		out = append(out, cj)
	}
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleUser(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "userID")

	s.mu.Lock()
	user, ok := s.users[id]
	s.mu.Unlock()

	if !ok {
		http.Error(w, "user not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
