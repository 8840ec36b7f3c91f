// Package session is the facade a UI talks to: it orchestrates the REST
// snapshot fetch, the reconciliation engine, the active-conversation
// message store, and the presence tracker into one coherent surface.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/socialink/realtime-core/infra/client/rest"
	"github.com/socialink/realtime-core/internal/domain/event"
	"github.com/socialink/realtime-core/internal/domain/model"
	"github.com/socialink/realtime-core/internal/presence"
	"github.com/socialink/realtime-core/internal/reconcile"
	"github.com/socialink/realtime-core/internal/service"
	"github.com/socialink/realtime-core/internal/store"
	"github.com/socialink/realtime-core/internal/ws"
)

// Session drives one user's messaging view. All REST failures are returned
// to the caller as explicit errors; the caller decides when to retry, so a
// broken backend never triggers a retry storm from here.
type Session struct {
	logger     *slog.Logger
	client     *rest.Client
	engine     *reconcile.Engine
	store      *store.MessageStore
	tracker    *presence.Tracker
	dispatcher *ws.Dispatcher
	directory  service.Directory
	selfID     string

	mu         sync.Mutex
	activeKey  string
	activeConv model.Conversation
	unregister func()
}

func New(
	logger *slog.Logger,
	client *rest.Client,
	engine *reconcile.Engine,
	msgStore *store.MessageStore,
	tracker *presence.Tracker,
	dispatcher *ws.Dispatcher,
	directory service.Directory,
	selfID string,
) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{
		logger:     logger,
		client:     client,
		engine:     engine,
		store:      msgStore,
		tracker:    tracker,
		dispatcher: dispatcher,
		directory:  directory,
		selfID:     selfID,
	}
}

// Start subscribes the session to live message events. The subscription is
// released by Close.
func (s *Session) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.unregister != nil {
		return
	}
	s.unregister = s.dispatcher.OnMessage(s.onNewMessage)
}

// Close releases the live subscription and clears the message cache.
func (s *Session) Close() {
	s.mu.Lock()
	if s.unregister != nil {
		s.unregister()
		s.unregister = nil
	}
	active := s.activeConv.ID
	s.activeKey = ""
	s.mu.Unlock()

	if active != "" {
		s.tracker.StopTyping(active)
	}
	s.store.Clear()
}

// onNewMessage appends live pushes for the open conversation to the
// message store. The reconciliation engine consumes the same events
// through its own subscription.
func (s *Session) onNewMessage(ev *event.Inbound) {
	p := ev.Message
	if p == nil {
		return
	}

	otherID := p.SenderID
	if otherID == s.selfID {
		otherID = p.ReceiverID
	}
	key := model.CanonicalKey(s.selfID, otherID)

	s.mu.Lock()
	active := s.activeKey
	s.mu.Unlock()
	if key != active {
		return
	}

	s.store.Append(model.Message{
		ID:             p.MessageID,
		ConversationID: p.Conversation.ID,
		SenderID:       p.SenderID,
		ReceiverID:     p.ReceiverID,
		Content:        p.Content,
		Timestamp:      p.Timestamp,
	})
}

// RefreshConversations fetches the full snapshot and folds it into the
// reconciliation engine.
func (s *Session) RefreshConversations(ctx context.Context) error {
	convs, err := s.client.Conversations(ctx)
	if err != nil {
		return fmt.Errorf("session: refresh conversations: %w", err)
	}

	// Snapshot identities are authoritative; cache them so push-created
	// conversations upgrade without a directory round-trip.
	identities := make([]model.User, 0, len(convs))
	for _, c := range convs {
		identities = append(identities, c.OtherUser)
	}
	s.directory.Seed(identities...)

	s.engine.MergeSnapshot(convs)

	// Conversations created from push before this snapshot may still be
	// provisional; warm their lookups in the background.
	if pending := s.engine.ProvisionalUsers(); len(pending) > 0 {
		go s.directory.Prefetch(context.WithoutCancel(ctx), pending)
	}
	return nil
}

// Conversations returns the merged, newest-first conversation list.
func (s *Session) Conversations() []model.Conversation {
	return s.engine.Conversations()
}

// OpenConversation switches the active conversation: loads its history
// into the store, subscribes to its typing events, and clears its unread
// counter.
func (s *Session) OpenConversation(ctx context.Context, conv model.Conversation) error {
	s.mu.Lock()
	prev := s.activeConv.ID
	s.activeKey = conv.Key
	s.activeConv = conv
	s.mu.Unlock()

	if prev != "" && prev != conv.ID {
		s.tracker.StopTyping(prev)
	}

	history, err := s.client.History(ctx, conv.OtherUser.ID)
	if err != nil {
		return fmt.Errorf("session: open conversation %s: %w", conv.ID, err)
	}

	s.store.ReplaceAll(history)
	s.dispatcher.Send(event.NewJoinConversation(conv.ID))
	s.engine.MarkRead(conv.Key)
	return nil
}

// Active returns the currently open conversation, if any.
func (s *Session) Active() (model.Conversation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeConv, s.activeKey != ""
}

// Messages returns the open conversation's messages, oldest first.
func (s *Session) Messages() []model.Message {
	return s.store.Messages()
}

// SendMessage persists a message to the open conversation and applies it
// optimistically: the store and engine update immediately, and the
// duplicate guards absorb the echo when the push event arrives.
func (s *Session) SendMessage(ctx context.Context, text string) (model.Message, error) {
	s.mu.Lock()
	conv := s.activeConv
	open := s.activeKey != ""
	s.mu.Unlock()

	if !open {
		return model.Message{}, fmt.Errorf("session: no open conversation")
	}

	s.tracker.StopTyping(conv.ID)

	msg, err := s.client.SendMessage(ctx, conv.OtherUser.ID, text)
	if err != nil {
		return model.Message{}, fmt.Errorf("session: send: %w", err)
	}

	s.store.Append(msg)
	s.engine.ApplyMessage(&event.NewMessagePayload{
		MessageID:    msg.ID,
		Conversation: event.ConvRef{ID: msg.ConversationID},
		SenderID:     msg.SenderID,
		ReceiverID:   msg.ReceiverID,
		Content:      msg.Content,
		Timestamp:    msg.Timestamp,
	})
	return msg, nil
}

// HandleTyping forwards a local keystroke to the typing debouncer.
func (s *Session) HandleTyping() {
	s.mu.Lock()
	conv := s.activeConv
	open := s.activeKey != ""
	s.mu.Unlock()

	if open {
		s.tracker.HandleTyping(conv.ID)
	}
}

// TypingUsers returns who is typing in the open conversation.
func (s *Session) TypingUsers() []string {
	s.mu.Lock()
	conv := s.activeConv
	s.mu.Unlock()
	return s.tracker.TypingIn(conv.ID)
}

// IsOnline reports the last known presence of a user.
func (s *Session) IsOnline(userID string) bool {
	return s.tracker.IsOnline(userID)
}
