package ws

import (
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/socialink/realtime-core/internal/domain/event"
)

type fakeTransport struct {
	mu    sync.Mutex
	sent  []event.Command
	pongs int
	ok    bool
}

func (f *fakeTransport) WriteCommand(cmd event.Command) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, cmd)
	return f.ok
}

func (f *fakeTransport) NotePong() {
	f.mu.Lock()
	f.pongs++
	f.mu.Unlock()
}

type fakeSink struct {
	mu     sync.Mutex
	events []*event.Inbound
}

func (f *fakeSink) HandleEvent(ev *event.Inbound) {
	f.mu.Lock()
	f.events = append(f.events, ev)
	f.mu.Unlock()
}

func newTestDispatcher(t *testing.T) (*Dispatcher, *fakeTransport, *fakeSink) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	sink := &fakeSink{}
	d := NewDispatcher(logger, sink)
	tr := &fakeTransport{ok: true}
	d.BindTransport(tr)
	return d, tr, sink
}

func TestDispatcher_NewMessageFanOut(t *testing.T) {
	d, _, _ := newTestDispatcher(t)

	var mu sync.Mutex
	var got []string
	for _, name := range []string{"a", "b"} {
		d.OnMessage(func(ev *event.Inbound) {
			mu.Lock()
			got = append(got, name+":"+ev.Message.MessageID)
			mu.Unlock()
		})
	}

	d.HandleFrame([]byte(`{"type":"new_message","messageId":"m1","conversation":{"_id":"c1"},"senderId":"x","receiverId":"y","content":"hi","timestamp":"2026-01-01T00:00:00Z"}`))

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 2 {
		t.Fatalf("handlers called %d times, want 2: %v", len(got), got)
	}
}

func TestDispatcher_Unregister(t *testing.T) {
	d, _, _ := newTestDispatcher(t)

	calls := 0
	unregister := d.OnMessage(func(ev *event.Inbound) { calls++ })
	if d.HandlerCount() != 1 {
		t.Fatalf("handler count = %d", d.HandlerCount())
	}

	unregister()
	if d.HandlerCount() != 0 {
		t.Fatalf("handler count after unregister = %d", d.HandlerCount())
	}

	d.HandleFrame([]byte(`{"type":"new_message","messageId":"m1","conversation":{"_id":"c1"},"senderId":"x","receiverId":"y","content":"hi","timestamp":"2026-01-01T00:00:00Z"}`))
	if calls != 0 {
		t.Error("unregistered handler was called")
	}

	// Unregistering twice is harmless.
	unregister()
}

func TestDispatcher_PongFeedsTransport(t *testing.T) {
	d, tr, _ := newTestDispatcher(t)

	d.HandleFrame([]byte(`{"type":"pong"}`))

	tr.mu.Lock()
	defer tr.mu.Unlock()
	if tr.pongs != 1 {
		t.Errorf("pongs = %d, want 1", tr.pongs)
	}
}

func TestDispatcher_PresenceAndTypingRouted(t *testing.T) {
	d, _, sink := newTestDispatcher(t)

	frames := []string{
		`{"type":"user_online","userId":"u1"}`,
		`{"type":"user_offline","userId":"u1"}`,
		`{"type":"typing_start","conversationId":"c1","userId":"u1"}`,
		`{"type":"typing_stop","conversationId":"c1","userId":"u1"}`,
	}
	for _, f := range frames {
		d.HandleFrame([]byte(f))
	}

	sink.mu.Lock()
	defer sink.mu.Unlock()
	if len(sink.events) != len(frames) {
		t.Errorf("sink received %d events, want %d", len(sink.events), len(frames))
	}
}

func TestDispatcher_MalformedAndUnknownFramesDropped(t *testing.T) {
	d, tr, sink := newTestDispatcher(t)
	d.OnMessage(func(ev *event.Inbound) {
		t.Error("handler called for a dropped frame")
	})

	d.HandleFrame([]byte(`garbage`))
	d.HandleFrame([]byte(`{"missing":"type"}`))
	d.HandleFrame([]byte(`{"type":"read_receipt"}`))

	sink.mu.Lock()
	defer sink.mu.Unlock()
	if len(sink.events) != 0 {
		t.Errorf("sink received %d events", len(sink.events))
	}
	tr.mu.Lock()
	defer tr.mu.Unlock()
	if tr.pongs != 0 {
		t.Errorf("pongs = %d", tr.pongs)
	}
}

func TestDispatcher_SendWithoutTransport(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	d := NewDispatcher(logger, &fakeSink{})

	if d.Send(event.NewPing()) {
		t.Error("send without transport reported success")
	}
}

func TestDispatcher_SendForwardsToTransport(t *testing.T) {
	d, tr, _ := newTestDispatcher(t)

	if !d.Send(event.NewPing()) {
		t.Fatal("send failed")
	}
	tr.mu.Lock()
	defer tr.mu.Unlock()
	if len(tr.sent) != 1 || tr.sent[0].CommandType() != event.TypePing {
		t.Errorf("transport received %v", tr.sent)
	}
}
