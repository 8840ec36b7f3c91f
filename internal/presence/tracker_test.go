package presence

import (
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/socialink/realtime-core/internal/domain/event"
)

// fakeEmitter records every command sent through it.
type fakeEmitter struct {
	mu   sync.Mutex
	sent []event.Command
}

func (f *fakeEmitter) Send(cmd event.Command) bool {
	f.mu.Lock()
	f.sent = append(f.sent, cmd)
	f.mu.Unlock()
	return true
}

func (f *fakeEmitter) commands() []event.Command {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]event.Command, len(f.sent))
	copy(out, f.sent)
	return out
}

func newTestTracker(t *testing.T, debounce time.Duration) (*Tracker, *fakeEmitter) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	tr := NewTracker(logger, "self", debounce)
	em := &fakeEmitter{}
	tr.BindEmitter(em)
	t.Cleanup(tr.Reset)
	return tr, em
}

func presenceEvent(kind event.Kind, userID string) *event.Inbound {
	typ := event.TypeUserOnline
	if kind == event.KindUserOffline {
		typ = event.TypeUserOffline
	}
	return &event.Inbound{Kind: kind, Presence: &event.PresencePayload{Type: typ, UserID: userID}}
}

func typingEvent(kind event.Kind, convID, userID string) *event.Inbound {
	typ := event.TypeTypingStart
	if kind == event.KindTypingStop {
		typ = event.TypeTypingStop
	}
	return &event.Inbound{Kind: kind, Typing: &event.TypingPayload{Type: typ, ConversationID: convID, UserID: userID}}
}

func TestHandleEvent_OnlineOffline(t *testing.T) {
	tr, _ := newTestTracker(t, time.Second)

	tr.HandleEvent(presenceEvent(event.KindUserOnline, "bob"))
	if !tr.IsOnline("bob") {
		t.Error("bob should be online")
	}

	// Duplicate online is idempotent.
	tr.HandleEvent(presenceEvent(event.KindUserOnline, "bob"))
	if got := tr.OnlineUsers(); len(got) != 1 {
		t.Errorf("online users = %v, want one entry", got)
	}

	tr.HandleEvent(presenceEvent(event.KindUserOffline, "bob"))
	if tr.IsOnline("bob") {
		t.Error("bob should be offline")
	}

	// Offline for an unknown user is a no-op.
	tr.HandleEvent(presenceEvent(event.KindUserOffline, "carol"))
}

func TestHandleEvent_SelfEventsIgnored(t *testing.T) {
	tr, _ := newTestTracker(t, time.Second)

	tr.HandleEvent(presenceEvent(event.KindUserOnline, "self"))
	if tr.IsOnline("self") {
		t.Error("own presence event must be discarded")
	}

	tr.HandleEvent(typingEvent(event.KindTypingStart, "c1", "self"))
	if got := tr.TypingIn("c1"); len(got) != 0 {
		t.Errorf("own typing event must be discarded, got %v", got)
	}
}

func TestHandleEvent_TypingSets(t *testing.T) {
	tr, _ := newTestTracker(t, time.Second)

	tr.HandleEvent(typingEvent(event.KindTypingStart, "c1", "bob"))
	tr.HandleEvent(typingEvent(event.KindTypingStart, "c1", "carol"))
	if got := tr.TypingIn("c1"); len(got) != 2 {
		t.Errorf("typing in c1 = %v, want 2 users", got)
	}

	tr.HandleEvent(typingEvent(event.KindTypingStop, "c1", "bob"))
	got := tr.TypingIn("c1")
	if len(got) != 1 || got[0] != "carol" {
		t.Errorf("typing in c1 = %v, want [carol]", got)
	}

	if got := tr.TypingIn("c2"); len(got) != 0 {
		t.Errorf("typing in empty conversation = %v", got)
	}
}

func TestHandleTyping_DebouncedStop(t *testing.T) {
	tr, em := newTestTracker(t, 50*time.Millisecond)

	// A burst of keystrokes: exactly one typing_start.
	tr.HandleTyping("c1")
	tr.HandleTyping("c1")
	tr.HandleTyping("c1")

	if got := em.commands(); len(got) != 1 || got[0].CommandType() != event.TypeTypingStart {
		t.Fatalf("after burst: sent %d commands, want one typing_start", len(got))
	}

	// After the debounce window, one typing_stop.
	deadline := time.After(time.Second)
	for len(em.commands()) < 2 {
		select {
		case <-deadline:
			t.Fatal("typing_stop never emitted")
		case <-time.After(10 * time.Millisecond):
		}
	}
	got := em.commands()
	if got[1].CommandType() != event.TypeTypingStop {
		t.Fatalf("second command = %s, want typing_stop", got[1].CommandType())
	}

	// A new keystroke after the stop begins a fresh burst.
	tr.HandleTyping("c1")
	if got := em.commands(); len(got) != 3 || got[2].CommandType() != event.TypeTypingStart {
		t.Errorf("after new burst: %d commands", len(got))
	}
}

func TestHandleTyping_EachKeystrokeResetsTimer(t *testing.T) {
	tr, em := newTestTracker(t, 80*time.Millisecond)

	tr.HandleTyping("c1")
	// Keep typing faster than the debounce window.
	for i := 0; i < 4; i++ {
		time.Sleep(40 * time.Millisecond)
		tr.HandleTyping("c1")
	}
	// 160ms elapsed, well past one debounce window, but no stop yet.
	for _, cmd := range em.commands() {
		if cmd.CommandType() == event.TypeTypingStop {
			t.Fatal("typing_stop emitted while keystrokes kept arriving")
		}
	}
}

func TestStopTyping_Immediate(t *testing.T) {
	tr, em := newTestTracker(t, time.Hour)

	tr.HandleTyping("c1")
	tr.StopTyping("c1")

	got := em.commands()
	if len(got) != 2 || got[1].CommandType() != event.TypeTypingStop {
		t.Fatalf("commands = %d, want start then stop", len(got))
	}

	// Stopping again emits nothing.
	tr.StopTyping("c1")
	if len(em.commands()) != 2 {
		t.Error("redundant StopTyping emitted a command")
	}
}

func TestReset_ClearsEverything(t *testing.T) {
	tr, em := newTestTracker(t, 30*time.Millisecond)

	tr.HandleEvent(presenceEvent(event.KindUserOnline, "bob"))
	tr.HandleEvent(typingEvent(event.KindTypingStart, "c1", "bob"))
	tr.HandleTyping("c1")

	tr.Reset()

	if tr.IsOnline("bob") {
		t.Error("online set survived reset")
	}
	if got := tr.TypingIn("c1"); len(got) != 0 {
		t.Errorf("typing set survived reset: %v", got)
	}

	// The pending debounce timer was cancelled; no stop arrives.
	before := len(em.commands())
	time.Sleep(50 * time.Millisecond)
	if len(em.commands()) != before {
		t.Error("cancelled debounce timer still fired")
	}

	// After reset the next keystroke is a fresh burst.
	tr.HandleTyping("c1")
	got := em.commands()
	if got[len(got)-1].CommandType() != event.TypeTypingStart {
		t.Error("keystroke after reset did not emit typing_start")
	}
}
