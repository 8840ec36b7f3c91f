// Package presence maintains the per-session view of who is online and who
// is typing in which conversation, derived purely from inbound events, plus
// the debounced emission of the local user's own typing signals.
package presence

import (
	"log/slog"
	"sync"
	"time"

	"github.com/socialink/realtime-core/internal/domain/event"
	"github.com/socialink/realtime-core/internal/metrics"
)

// DefaultTypingDebounce is how long after the last local keystroke a
// typing_stop is emitted.
const DefaultTypingDebounce = 2 * time.Second

// Emitter sends an outbound command, best-effort. Satisfied by the ws
// dispatcher.
type Emitter interface {
	Send(cmd event.Command) bool
}

// Tracker owns the online-user set and the per-conversation typing sets.
// Both are mutated only from dispatcher callbacks and the local typing API;
// events about the local user are discarded at ingestion. Last event wins:
// out-of-order online/offline pairs are not disambiguated.
type Tracker struct {
	logger   *slog.Logger
	emitter  Emitter
	selfID   string
	debounce time.Duration

	mu     sync.Mutex
	online map[string]struct{}
	typing map[string]map[string]struct{} // conversationID -> typing user ids

	// stopTimers holds at most one outstanding local debounce timer per
	// conversation. Clear-before-set discipline prevents timer leaks.
	stopTimers map[string]*time.Timer
	// locallyTyping marks conversations where a typing_start has been
	// emitted and no stop has fired yet, so a burst of keystrokes emits
	// exactly one start.
	locallyTyping map[string]bool
}

func NewTracker(logger *slog.Logger, selfID string, debounce time.Duration) *Tracker {
	if debounce <= 0 {
		debounce = DefaultTypingDebounce
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{
		logger:        logger,
		selfID:        selfID,
		debounce:      debounce,
		online:        make(map[string]struct{}),
		typing:        make(map[string]map[string]struct{}),
		stopTimers:    make(map[string]*time.Timer),
		locallyTyping: make(map[string]bool),
	}
}

// BindEmitter attaches the outbound command path. The tracker is created
// before the dispatcher, so binding happens in a second phase.
func (t *Tracker) BindEmitter(e Emitter) {
	t.mu.Lock()
	t.emitter = e
	t.mu.Unlock()
}

// HandleEvent ingests a presence or typing event from the dispatcher.
func (t *Tracker) HandleEvent(ev *event.Inbound) {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch ev.Kind {
	case event.KindUserOnline:
		if ev.Presence.UserID == t.selfID {
			return
		}
		t.online[ev.Presence.UserID] = struct{}{}
	case event.KindUserOffline:
		if ev.Presence.UserID == t.selfID {
			return
		}
		delete(t.online, ev.Presence.UserID)
	case event.KindTypingStart:
		if ev.Typing.UserID == t.selfID {
			return
		}
		set, ok := t.typing[ev.Typing.ConversationID]
		if !ok {
			set = make(map[string]struct{})
			t.typing[ev.Typing.ConversationID] = set
		}
		set[ev.Typing.UserID] = struct{}{}
	case event.KindTypingStop:
		if ev.Typing.UserID == t.selfID {
			return
		}
		if set, ok := t.typing[ev.Typing.ConversationID]; ok {
			delete(set, ev.Typing.UserID)
			if len(set) == 0 {
				delete(t.typing, ev.Typing.ConversationID)
			}
		}
	}

	metrics.OnlineUsers.Set(float64(len(t.online)))
}

// HandleTyping is called on every local keystroke. The first call of a
// burst emits typing_start; every call resets the stop timer, so the
// typing_stop fires once, one debounce window after the last keystroke.
func (t *Tracker) HandleTyping(conversationID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.locallyTyping[conversationID] {
		t.locallyTyping[conversationID] = true
		if t.emitter != nil {
			t.emitter.Send(event.NewTypingStart(conversationID))
		}
	}

	if timer, ok := t.stopTimers[conversationID]; ok {
		timer.Stop()
	}
	t.stopTimers[conversationID] = time.AfterFunc(t.debounce, func() {
		t.stopLocalTyping(conversationID, true)
	})
}

// StopTyping ends the local typing state immediately, used when a message
// is sent or the conversation is closed.
func (t *Tracker) StopTyping(conversationID string) {
	t.stopLocalTyping(conversationID, true)
}

func (t *Tracker) stopLocalTyping(conversationID string, emit bool) {
	t.mu.Lock()
	if timer, ok := t.stopTimers[conversationID]; ok {
		timer.Stop()
		delete(t.stopTimers, conversationID)
	}
	wasTyping := t.locallyTyping[conversationID]
	delete(t.locallyTyping, conversationID)
	emitter := t.emitter
	t.mu.Unlock()

	if emit && wasTyping && emitter != nil {
		emitter.Send(event.NewTypingStop(conversationID))
	}
}

// IsOnline reports whether userID was last seen online.
func (t *Tracker) IsOnline(userID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.online[userID]
	return ok
}

// OnlineUsers returns a snapshot of the online-user set.
func (t *Tracker) OnlineUsers() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, 0, len(t.online))
	for id := range t.online {
		out = append(out, id)
	}
	return out
}

// TypingIn returns the users currently typing in a conversation.
func (t *Tracker) TypingIn(conversationID string) []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	set := t.typing[conversationID]
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	return out
}

// Reset clears all presence and typing state and cancels outstanding
// debounce timers. Called on disconnect: this state is scoped to the
// connection's lifetime, not persisted.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()

	for id, timer := range t.stopTimers {
		timer.Stop()
		delete(t.stopTimers, id)
	}
	t.online = make(map[string]struct{})
	t.typing = make(map[string]map[string]struct{})
	t.locallyTyping = make(map[string]bool)
	metrics.OnlineUsers.Set(0)
	t.logger.Debug("presence state cleared")
}
