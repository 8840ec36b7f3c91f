package devserver

import (
	"context"
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/socialink/realtime-core/infra/client/rest"
	"github.com/socialink/realtime-core/internal/domain/event"
	"github.com/socialink/realtime-core/internal/presence"
	"github.com/socialink/realtime-core/internal/ws"
)

// testPeer is one fully wired client stack: manager, dispatcher, tracker,
// and REST client, talking to the server under test.
type testPeer struct {
	id       string
	manager  *ws.Manager
	dispatch *ws.Dispatcher
	tracker  *presence.Tracker
	rest     *rest.Client

	mu       sync.Mutex
	messages []*event.NewMessagePayload
}

func newTestPeer(t *testing.T, srvURL, userID, name string) *testPeer {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	p := &testPeer{id: userID}
	p.tracker = presence.NewTracker(logger, userID, 50*time.Millisecond)
	p.dispatch = ws.NewDispatcher(logger, p.tracker)
	p.manager = ws.NewManager(logger,
		ws.Options{
			URL:               "ws" + strings.TrimPrefix(srvURL, "http") + "/ws",
			HandshakeTimeout:  2 * time.Second,
			HeartbeatInterval: time.Hour,
			Backoff:           ws.Backoff{Base: 10 * time.Millisecond, Max: 50 * time.Millisecond, MaxAttempts: 5},
		},
		ws.Identity{UserID: userID, Info: event.UserInfo{Name: name}})
	p.rest = rest.New(srvURL, userID, 5*time.Second, logger)

	p.dispatch.BindTransport(p.manager)
	p.manager.BindFrameHandler(p.dispatch.HandleFrame)
	p.tracker.BindEmitter(p.dispatch)
	p.dispatch.OnMessage(func(ev *event.Inbound) {
		p.mu.Lock()
		p.messages = append(p.messages, ev.Message)
		p.mu.Unlock()
	})

	t.Cleanup(p.manager.Disconnect)
	t.Cleanup(p.tracker.Reset)
	return p
}

func (p *testPeer) connect(t *testing.T) {
	t.Helper()
	if err := p.manager.Connect(); err != nil {
		t.Fatalf("%s: connect: %v", p.id, err)
	}
}

func (p *testPeer) messageCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.messages)
}

func waitUntil(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for !cond() {
		select {
		case <-deadline:
			t.Fatal("condition never held")
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func newTestServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	srv := New(logger)
	httpSrv := httptest.NewServer(srv.Handler())
	t.Cleanup(httpSrv.Close)
	return srv, httpSrv
}

func TestEndToEnd_PresencePropagates(t *testing.T) {
	_, httpSrv := newTestServer(t)

	alice := newTestPeer(t, httpSrv.URL, "alice", "Alice")
	bob := newTestPeer(t, httpSrv.URL, "bob", "Bob")

	alice.connect(t)
	bob.connect(t)

	// Each side learns the other is online.
	waitUntil(t, func() bool { return alice.tracker.IsOnline("bob") })

	bob.manager.Disconnect()
	waitUntil(t, func() bool { return !alice.tracker.IsOnline("bob") })
}

func TestEndToEnd_MessageDelivery(t *testing.T) {
	_, httpSrv := newTestServer(t)

	alice := newTestPeer(t, httpSrv.URL, "alice", "Alice")
	bob := newTestPeer(t, httpSrv.URL, "bob", "Bob")
	alice.connect(t)
	bob.connect(t)

	msg, err := alice.rest.SendMessage(context.Background(), "bob", "hello bob")
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if msg.ID == "" || msg.ConversationID == "" {
		t.Fatalf("created message = %+v", msg)
	}

	// The receiver gets the push, and the sender gets the echo.
	waitUntil(t, func() bool { return bob.messageCount() == 1 && alice.messageCount() == 1 })

	bob.mu.Lock()
	got := bob.messages[0]
	bob.mu.Unlock()
	if got.MessageID != msg.ID || got.Content != "hello bob" || got.SenderName != "Alice" {
		t.Errorf("push = %+v", got)
	}

	// The conversation list reflects the exchange, with the unread count
	// on the receiving side only.
	bobConvs, err := bob.rest.Conversations(context.Background())
	if err != nil {
		t.Fatalf("conversations: %v", err)
	}
	if len(bobConvs) != 1 || bobConvs[0].UnreadCount != 1 {
		t.Fatalf("bob conversations = %+v", bobConvs)
	}
	if bobConvs[0].OtherUser.Name != "Alice" || !bobConvs[0].OtherUser.IsOnline {
		t.Errorf("bob sees other user = %+v", bobConvs[0].OtherUser)
	}

	aliceConvs, err := alice.rest.Conversations(context.Background())
	if err != nil {
		t.Fatalf("conversations: %v", err)
	}
	if len(aliceConvs) != 1 || aliceConvs[0].UnreadCount != 0 {
		t.Fatalf("alice conversations = %+v", aliceConvs)
	}
}

func TestEndToEnd_HistoryResetsUnread(t *testing.T) {
	_, httpSrv := newTestServer(t)

	alice := newTestPeer(t, httpSrv.URL, "alice", "Alice")
	bob := newTestPeer(t, httpSrv.URL, "bob", "Bob")
	alice.connect(t)
	bob.connect(t)

	if _, err := alice.rest.SendMessage(context.Background(), "bob", "one"); err != nil {
		t.Fatalf("send: %v", err)
	}
	if _, err := alice.rest.SendMessage(context.Background(), "bob", "two"); err != nil {
		t.Fatalf("send: %v", err)
	}

	history, err := bob.rest.History(context.Background(), "alice")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 2 || history[0].Content != "one" || history[1].Content != "two" {
		t.Fatalf("history = %+v", history)
	}

	convs, err := bob.rest.Conversations(context.Background())
	if err != nil {
		t.Fatalf("conversations: %v", err)
	}
	if convs[0].UnreadCount != 0 {
		t.Errorf("unread = %d after reading history", convs[0].UnreadCount)
	}
}

func TestEndToEnd_TypingForwardedToOtherParticipant(t *testing.T) {
	_, httpSrv := newTestServer(t)

	alice := newTestPeer(t, httpSrv.URL, "alice", "Alice")
	bob := newTestPeer(t, httpSrv.URL, "bob", "Bob")
	alice.connect(t)
	bob.connect(t)

	// The conversation must exist before typing can be routed.
	msg, err := alice.rest.SendMessage(context.Background(), "bob", "hi")
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	convID := msg.ConversationID

	alice.tracker.HandleTyping(convID)
	waitUntil(t, func() bool { return len(bob.tracker.TypingIn(convID)) == 1 })

	// The debounce elapses without further keystrokes; the stop arrives.
	waitUntil(t, func() bool { return len(bob.tracker.TypingIn(convID)) == 0 })
}

func TestEndToEnd_DirectoryLookup(t *testing.T) {
	srv, httpSrv := newTestServer(t)
	srv.AddUser("carol", "Carol", "carol@example.com", "")

	alice := newTestPeer(t, httpSrv.URL, "alice", "Alice")

	user, err := alice.rest.User(context.Background(), "carol")
	if err != nil {
		t.Fatalf("user: %v", err)
	}
	if user.Name != "Carol" || user.Email != "carol@example.com" {
		t.Errorf("user = %+v", user)
	}

	if _, err := alice.rest.User(context.Background(), "nobody"); err == nil {
		t.Error("expected 404 error for unknown user")
	}
}
